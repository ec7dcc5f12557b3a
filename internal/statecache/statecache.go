// Package statecache remembers the last known security gate result per
// product, so re-evaluations can tell an actual transition from a no-op.
package statecache

import (
	"context"
	"sync"

	"github.com/observatory-sec/observatory/internal/models"
)

// Cache is the gate-state memory contract. Get reports found=false when
// no result was ever recorded for the product.
type Cache interface {
	GetGateStatus(ctx context.Context, productID string) (status models.GateStatus, found bool, err error)
	SetGateStatus(ctx context.Context, productID string, status models.GateStatus) error
	Close() error
}

// MemoryCache keeps gate state in a mutex-guarded map.
type MemoryCache struct {
	mu     sync.RWMutex
	states map[string]models.GateStatus
}

// NewMemoryCache creates an empty in-memory gate state cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		states: make(map[string]models.GateStatus),
	}
}

func (m *MemoryCache) GetGateStatus(ctx context.Context, productID string) (models.GateStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.states[productID]
	return status, ok, nil
}

func (m *MemoryCache) SetGateStatus(ctx context.Context, productID string, status models.GateStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[productID] = status
	return nil
}

func (m *MemoryCache) Close() error { return nil }
