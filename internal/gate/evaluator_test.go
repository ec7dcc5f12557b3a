package gate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observatory-sec/observatory/internal/eventbus"
	"github.com/observatory-sec/observatory/internal/gate"
	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/statecache"
	"github.com/observatory-sec/observatory/internal/store"
)

// captureNotifier records gate events for assertions.
type captureNotifier struct {
	eventbus.NopNotifier
	gateEvents []*eventbus.GateChangedEvent
}

func (c *captureNotifier) PublishGateChanged(event *eventbus.GateChangedEvent) error {
	c.gateEvents = append(c.gateEvents, event)
	return nil
}

func intPtr(v int) *int { return &v }

func seedOpenObservation(t *testing.T, s *store.MemoryStore, id string, severity models.Severity) {
	t.Helper()
	require.NoError(t, s.SaveObservation(context.Background(), &models.Observation{
		ID:              id,
		Scope:           models.Scope{ProductID: "prod-1", Branch: "main"},
		Fingerprint:     "fp-" + id,
		CurrentSeverity: severity,
		CurrentStatus:   models.StatusOpen,
	}))
}

func TestEvaluate_Unconfigured(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveProduct(ctx, &models.Product{
		ID:            "prod-1",
		DefaultBranch: "main",
	}))
	seedOpenObservation(t, s, "obs-1", models.SeverityCritical)

	e := gate.NewEvaluator(s, statecache.NewMemoryCache(), &captureNotifier{})
	result, err := e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)

	assert.Equal(t, models.GateUnconfigured, result.Status)
	assert.Equal(t, 1, result.Counts.Critical)
}

func TestEvaluate_PassAndFail(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveProduct(ctx, &models.Product{
		ID:                 "prod-1",
		DefaultBranch:      "main",
		SecurityGateActive: true,
		Thresholds:         models.GateThresholds{Critical: intPtr(0), High: intPtr(2)},
	}))
	seedOpenObservation(t, s, "obs-1", models.SeverityHigh)
	seedOpenObservation(t, s, "obs-2", models.SeverityHigh)

	e := gate.NewEvaluator(s, statecache.NewMemoryCache(), &captureNotifier{})

	result, err := e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, models.GatePassed, result.Status, "counts at the limit still pass")

	seedOpenObservation(t, s, "obs-3", models.SeverityHigh)
	result, err = e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, models.GateFailed, result.Status)

	seedOpenObservation(t, s, "obs-4", models.SeverityCritical)
	result, err = e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, models.GateFailed, result.Status)
}

func TestEvaluate_UnsetThresholdImposesNoLimit(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveProduct(ctx, &models.Product{
		ID:                 "prod-1",
		DefaultBranch:      "main",
		SecurityGateActive: true,
		Thresholds:         models.GateThresholds{Critical: intPtr(0)},
	}))
	seedOpenObservation(t, s, "obs-1", models.SeverityHigh)
	seedOpenObservation(t, s, "obs-2", models.SeverityHigh)

	e := gate.NewEvaluator(s, statecache.NewMemoryCache(), &captureNotifier{})
	result, err := e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, models.GatePassed, result.Status)
}

func TestEvaluate_NotifiesOnlyOnTransition(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveProduct(ctx, &models.Product{
		ID:                 "prod-1",
		Name:               "backend",
		DefaultBranch:      "main",
		SecurityGateActive: true,
		Thresholds:         models.GateThresholds{Critical: intPtr(0)},
	}))

	notifier := &captureNotifier{}
	e := gate.NewEvaluator(s, statecache.NewMemoryCache(), notifier)

	// First evaluation has no previously known value: never notifies.
	_, err := e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Empty(t, notifier.gateEvents)

	// Same result again: still silent.
	_, err = e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Empty(t, notifier.gateEvents)

	// A critical observation flips the gate: exactly one event.
	seedOpenObservation(t, s, "obs-1", models.SeverityCritical)
	_, err = e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, notifier.gateEvents, 1)
	assert.Equal(t, models.GatePassed, notifier.gateEvents[0].Previous)
	assert.Equal(t, models.GateFailed, notifier.gateEvents[0].New)
	assert.Equal(t, "backend", notifier.gateEvents[0].ProductName)

	// Re-evaluating the failed gate does not re-notify.
	_, err = e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Len(t, notifier.gateEvents, 1)
}

func TestEvaluate_UnconfiguredTransitionNotifies(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	product := &models.Product{
		ID:            "prod-1",
		DefaultBranch: "main",
	}
	require.NoError(t, s.SaveProduct(ctx, product))

	notifier := &captureNotifier{}
	e := gate.NewEvaluator(s, statecache.NewMemoryCache(), notifier)

	_, err := e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	assert.Empty(t, notifier.gateEvents)

	product.SecurityGateActive = true
	product.Thresholds = models.GateThresholds{Critical: intPtr(0)}
	require.NoError(t, s.SaveProduct(ctx, product))

	_, err = e.Evaluate(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, notifier.gateEvents, 1)
	assert.Equal(t, models.GateUnconfigured, notifier.gateEvents[0].Previous)
	assert.Equal(t, models.GatePassed, notifier.gateEvents[0].New)
}

func TestEvaluate_GroupAggregatesMemberCounts(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveProduct(ctx, &models.Product{
		ID:                 "group-1",
		IsGroup:            true,
		SecurityGateActive: true,
		Thresholds:         models.GateThresholds{High: intPtr(1)},
	}))
	require.NoError(t, s.SaveProduct(ctx, &models.Product{
		ID:            "prod-1",
		DefaultBranch: "main",
		GroupID:       "group-1",
	}))
	require.NoError(t, s.SaveProduct(ctx, &models.Product{
		ID:            "prod-2",
		DefaultBranch: "main",
		GroupID:       "group-1",
	}))

	seedOpenObservation(t, s, "obs-1", models.SeverityHigh)
	require.NoError(t, s.SaveObservation(ctx, &models.Observation{
		ID:              "obs-2",
		Scope:           models.Scope{ProductID: "prod-2", Branch: "main"},
		Fingerprint:     "fp-obs-2",
		CurrentSeverity: models.SeverityHigh,
		CurrentStatus:   models.StatusOpen,
	}))

	e := gate.NewEvaluator(s, statecache.NewMemoryCache(), &captureNotifier{})
	result, err := e.Evaluate(ctx, "group-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Counts.High)
	assert.Equal(t, models.GateFailed, result.Status, "member counts sum against the group thresholds")
}
