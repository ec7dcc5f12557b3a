package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/observatory-sec/observatory/internal/models"
)

// MemoryStore keeps everything in mutex-guarded maps. Used for unit
// tests and the embedded mode; reads and writes work on copies so
// callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	products     map[string]*models.Product
	observations map[string]*models.Observation
	logs         map[string]*models.ObservationLog
	logsByObs    map[string][]string

	// duplicate pairs keyed by sorted "a|b"
	duplicates map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:     make(map[string]*models.Product),
		observations: make(map[string]*models.Observation),
		logs:         make(map[string]*models.ObservationLog),
		logsByObs:    make(map[string][]string),
		duplicates:   make(map[string]struct{}),
	}
}

func (m *MemoryStore) Connect(ctx context.Context) error { return nil }

func (m *MemoryStore) SaveProduct(ctx context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *product
	m.products[product.ID] = &clone
	return nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *product
	return &clone, nil
}

func (m *MemoryStore) ListGroupMembers(ctx context.Context, groupID string) ([]*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members []*models.Product
	for _, product := range m.products {
		if product.GroupID == groupID {
			clone := *product
			members = append(members, &clone)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (m *MemoryStore) SaveObservation(ctx context.Context, obs *models.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observations[obs.ID] = cloneObservation(obs)
	return nil
}

func (m *MemoryStore) GetObservation(ctx context.Context, id string) (*models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obs, ok := m.observations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneObservation(obs), nil
}

func (m *MemoryStore) ListByScope(ctx context.Context, scope models.Scope, scannerFamily string) ([]*models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Observation
	for _, obs := range m.observations {
		if obs.Scope != scope {
			continue
		}
		if models.ScannerFamily(obs.Scanner) != scannerFamily {
			continue
		}
		result = append(result, cloneObservation(obs))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MemoryStore) ListOpenByProductBranch(ctx context.Context, productID, branch string) ([]*models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Observation
	for _, obs := range m.observations {
		if obs.Scope.ProductID != productID || obs.Scope.Branch != branch {
			continue
		}
		if obs.CurrentStatus != models.StatusOpen {
			continue
		}
		result = append(result, cloneObservation(obs))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MemoryStore) CountOpenBySeverity(ctx context.Context, productID, branch string) (models.SeverityCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts models.SeverityCounts
	for _, obs := range m.observations {
		if obs.Scope.ProductID != productID || obs.Scope.Branch != branch {
			continue
		}
		if obs.CurrentStatus != models.StatusOpen {
			continue
		}
		*counts.Bucket(obs.CurrentSeverity)++
	}
	return counts, nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, entry *models.ObservationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *entry
	m.logs[entry.ID] = &clone
	m.logsByObs[entry.ObservationID] = append(m.logsByObs[entry.ObservationID], entry.ID)
	return nil
}

func (m *MemoryStore) UpdateLog(ctx context.Context, entry *models.ObservationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.logs[entry.ID]; !ok {
		return ErrNotFound
	}
	clone := *entry
	m.logs[entry.ID] = &clone
	return nil
}

func (m *MemoryStore) GetLog(ctx context.Context, id string) (*models.ObservationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.logs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (m *MemoryStore) LatestLog(ctx context.Context, observationID string) (*models.ObservationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.logsByObs[observationID]
	if len(ids) == 0 {
		return nil, nil
	}
	clone := *m.logs[ids[len(ids)-1]]
	return &clone, nil
}

func (m *MemoryStore) ListLogs(ctx context.Context, observationID string) ([]*models.ObservationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.logsByObs[observationID]
	result := make([]*models.ObservationLog, 0, len(ids))
	for _, id := range ids {
		clone := *m.logs[id]
		result = append(result, &clone)
	}
	return result, nil
}

func (m *MemoryStore) ReplaceDuplicates(ctx context.Context, observationID string, otherIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.duplicates {
		a, b := splitPairKey(key)
		if a == observationID || b == observationID {
			delete(m.duplicates, key)
		}
	}
	for _, other := range otherIDs {
		if other == observationID {
			continue
		}
		m.duplicates[pairKey(observationID, other)] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) ListDuplicates(ctx context.Context, observationID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []string
	for key := range m.duplicates {
		a, b := splitPairKey(key)
		if a == observationID {
			result = append(result, b)
		} else if b == observationID {
			result = append(result, a)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func splitPairKey(key string) (string, string) {
	i := strings.Index(key, "|")
	return key[:i], key[i+1:]
}

// cloneObservation deep-copies the pointer-typed optional fields too.
func cloneObservation(obs *models.Observation) *models.Observation {
	clone := *obs
	clone.CWE = cloneInt(obs.CWE)
	clone.SourceLineStart = cloneInt(obs.SourceLineStart)
	clone.SourceLineEnd = cloneInt(obs.SourceLineEnd)
	clone.CVSS3Score = cloneFloat(obs.CVSS3Score)
	clone.RiskAcceptanceExpiry = cloneTime(obs.RiskAcceptanceExpiry)
	return &clone
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
