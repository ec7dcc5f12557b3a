// Package store provides the persistence adapters for products,
// observations, audit log entries and duplicate-candidate links.
package store

import (
	"context"
	"errors"

	"github.com/observatory-sec/observatory/internal/models"
)

var (
	// ErrNotFound - the requested entity does not exist
	ErrNotFound = errors.New("store: not found")

	// ErrNotConnected - Connect() not called | failed
	ErrNotConnected = errors.New("store: not connected to database")

	// ErrUnsupportedStore - fallback error for unknown driver names
	ErrUnsupportedStore = errors.New("store: unsupported store driver")
)

// Store defines what every persistence backend has to support. Batch
// atomicity (all-or-nothing persistence of one import) is the backend's
// responsibility and not re-specified per method.
type Store interface {
	Connect(ctx context.Context) error

	// Products
	SaveProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]*models.Product, error)

	// Observations
	SaveObservation(ctx context.Context, obs *models.Observation) error
	GetObservation(ctx context.Context, id string) (*models.Observation, error)
	// ListByScope returns every observation of one (product, branch,
	// service) scope for one scanner family, resolved ones included.
	// This is the index one import batch reconciles against: a resolved
	// observation whose fingerprint reappears is reopened, never
	// recreated.
	ListByScope(ctx context.Context, scope models.Scope, scannerFamily string) ([]*models.Observation, error)
	// ListOpenByProductBranch returns Open observations across all
	// services of a product branch, for duplicate detection.
	ListOpenByProductBranch(ctx context.Context, productID, branch string) ([]*models.Observation, error)
	CountOpenBySeverity(ctx context.Context, productID, branch string) (models.SeverityCounts, error)

	// Audit log
	AppendLog(ctx context.Context, entry *models.ObservationLog) error
	UpdateLog(ctx context.Context, entry *models.ObservationLog) error
	GetLog(ctx context.Context, id string) (*models.ObservationLog, error)
	LatestLog(ctx context.Context, observationID string) (*models.ObservationLog, error)
	ListLogs(ctx context.Context, observationID string) ([]*models.ObservationLog, error)

	// Duplicate candidate links, maintained as unordered pairs.
	// ReplaceDuplicates removes every pair touching observationID before
	// inserting the new candidates, keeping both sides consistent.
	ReplaceDuplicates(ctx context.Context, observationID string, otherIDs []string) error
	ListDuplicates(ctx context.Context, observationID string) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// NewStore creates a store for the given driver name.
func NewStore(driver string, connectionString string) (Store, error) {
	switch driver {
	case "postgres", "postgresql":
		return NewPostgresStore(connectionString), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, ErrUnsupportedStore
	}
}
