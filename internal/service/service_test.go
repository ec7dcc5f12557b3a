package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observatory-sec/observatory/internal/auditlog"
	"github.com/observatory-sec/observatory/internal/eventbus"
	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/reconcile"
	"github.com/observatory-sec/observatory/internal/service"
	"github.com/observatory-sec/observatory/internal/statecache"
	"github.com/observatory-sec/observatory/internal/store"
)

type captureNotifier struct {
	gateEvents        []*eventbus.GateChangedEvent
	observationEvents []*eventbus.ObservationChangedEvent
}

func (c *captureNotifier) PublishGateChanged(event *eventbus.GateChangedEvent) error {
	c.gateEvents = append(c.gateEvents, event)
	return nil
}

func (c *captureNotifier) PublishObservationChanged(event *eventbus.ObservationChangedEvent) error {
	c.observationEvents = append(c.observationEvents, event)
	return nil
}

func (c *captureNotifier) Close() {}

type fixture struct {
	store    *store.MemoryStore
	notifier *captureNotifier
	service  *service.Service
}

func newFixture(t *testing.T, product *models.Product) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveProduct(context.Background(), product))
	notifier := &captureNotifier{}
	return &fixture{
		store:    s,
		notifier: notifier,
		service:  service.New(s, notifier, statecache.NewMemoryCache(), nil),
	}
}

var user = models.Actor{Username: "alice"}

func scannerFinding(title string) models.Finding {
	return models.Finding{
		Title:           title,
		ComponentName:   "openssl",
		Severity:        models.SeverityHigh,
		VulnerabilityID: title,
		Scanner:         "trivy/0.54.1",
	}
}

func importOne(t *testing.T, f *fixture, scope models.Scope) *models.Observation {
	t.Helper()
	result, err := f.service.ImportBatch(context.Background(), scope, []models.Finding{
		scannerFinding("CVE-2024-1"),
	}, models.SystemActor, reconcile.BatchMeta{Scanner: "trivy/0.54.1"})
	require.NoError(t, err)
	require.Len(t, result.Touched, 1)
	return result.Touched[0]
}

func TestRecordManualAssessment_OverridesCurrentState(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	ctx := context.Background()
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	updated, err := f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Severity:         models.SeverityLow,
		Status:           models.StatusFalsePositive,
		VexJustification: models.VexComponentNotPresent,
	}, "not reachable from our build", user)
	require.NoError(t, err)

	assert.Equal(t, models.SeverityLow, updated.CurrentSeverity)
	assert.Equal(t, models.StatusFalsePositive, updated.CurrentStatus)
	assert.Equal(t, models.SeverityHigh, updated.ParserSeverity, "scanner layer is untouched")

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	entry := logs[1]
	assert.Equal(t, "not reachable from our build", entry.Comment)
	assert.Equal(t, "alice", entry.User)
	assert.Equal(t, models.SeverityLow, entry.Severity)
	assert.Equal(t, models.SeverityHigh, entry.PreviousSeverity)
	assert.Equal(t, models.ApprovalStatusNone, entry.ApprovalStatus)
}

func TestRecordManualAssessment_InvalidChoices(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	_, err := f.service.RecordManualAssessment(context.Background(), obs.ID, service.Assessment{
		Severity: "Catastrophic",
	}, "", user)
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "severity", verr.Field)

	_, err = f.service.RecordManualAssessment(context.Background(), obs.ID, service.Assessment{
		Status: "Maybe",
	}, "", user)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)
}

func TestRemoveAssessment_FallsBackToScannerValues(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	ctx := context.Background()
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	_, err := f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Severity: models.SeverityLow,
	}, "downgrade", user)
	require.NoError(t, err)

	updated, err := f.service.RemoveAssessment(ctx, obs.ID, "assessment withdrawn", user)
	require.NoError(t, err)

	assert.Equal(t, models.SeverityHigh, updated.CurrentSeverity)
	assert.Empty(t, updated.AssessmentSeverity)

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.SeverityHigh, logs[2].Severity)
	assert.Equal(t, models.SeverityLow, logs[2].PreviousSeverity)
}

func TestApprovalGate_BlocksUntilDecided(t *testing.T) {
	f := newFixture(t, &models.Product{
		ID:                      "prod-1",
		DefaultBranch:           "main",
		AssessmentsNeedApproval: true,
	})
	ctx := context.Background()
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	_, err := f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Status: models.StatusRiskAccepted,
	}, "accepting for this release", user)
	require.NoError(t, err)

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	pending := logs[1]
	assert.Equal(t, models.ApprovalStatusNeedsApproval, pending.ApprovalStatus)

	// Further manual assessments are locked out while the entry is pending
	_, err = f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Status: models.StatusOpen,
	}, "changed my mind", user)
	assert.ErrorIs(t, err, auditlog.ErrPendingApproval)

	// System-driven imports are never blocked by the approval gate
	_, err = f.service.ImportBatch(ctx, models.Scope{ProductID: "prod-1", Branch: "main"}, []models.Finding{
		scannerFinding("CVE-2024-1"),
	}, models.SystemActor, reconcile.BatchMeta{Scanner: "trivy/0.54.1"})
	require.NoError(t, err)

	reviewer := models.Actor{Username: "bob"}
	require.NoError(t, f.service.ApproveLogEntry(ctx, pending.ID, models.ApprovalStatusApproved, "looks right", reviewer))

	stored, err := f.store.GetLog(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, stored.ApprovalStatus)
	assert.Equal(t, "bob", stored.ApprovalUser)
	assert.Equal(t, "looks right", stored.ApprovalRemark)

	// The observation accepts assessments again
	_, err = f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Status: models.StatusOpen,
	}, "reopening", user)
	assert.NoError(t, err)
}

func TestApprovalGate_RejectionUnlocks(t *testing.T) {
	f := newFixture(t, &models.Product{
		ID:                      "prod-1",
		DefaultBranch:           "main",
		AssessmentsNeedApproval: true,
	})
	ctx := context.Background()
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	_, err := f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Severity: models.SeverityLow,
	}, "downgrade", user)
	require.NoError(t, err)

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	pending := logs[len(logs)-1]

	require.NoError(t, f.service.ApproveLogEntry(ctx, pending.ID, models.ApprovalStatusRejected, "not convinced", models.Actor{Username: "bob"}))

	// Double-deciding the same entry fails
	err = f.service.ApproveLogEntry(ctx, pending.ID, models.ApprovalStatusApproved, "", models.Actor{Username: "bob"})
	assert.ErrorIs(t, err, auditlog.ErrNotPendingApproval)

	_, err = f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Severity: models.SeverityMedium,
	}, "second try", user)
	assert.NoError(t, err)
}

func TestApproveLogEntry_InvalidTarget(t *testing.T) {
	f := newFixture(t, &models.Product{
		ID:                      "prod-1",
		DefaultBranch:           "main",
		AssessmentsNeedApproval: true,
	})
	ctx := context.Background()
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	_, err := f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Severity: models.SeverityLow,
	}, "downgrade", user)
	require.NoError(t, err)

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	pending := logs[len(logs)-1]

	err = f.service.ApproveLogEntry(ctx, pending.ID, models.ApprovalStatusAutoApproved, "", models.Actor{Username: "bob"})
	assert.ErrorIs(t, err, auditlog.ErrInvalidApprovalTarget)
}

func TestApprovalGate_GroupSetting(t *testing.T) {
	f := newFixture(t, &models.Product{
		ID:                      "group-1",
		IsGroup:                 true,
		AssessmentsNeedApproval: true,
	})
	ctx := context.Background()
	require.NoError(t, f.store.SaveProduct(ctx, &models.Product{
		ID:            "prod-1",
		DefaultBranch: "main",
		GroupID:       "group-1",
	}))
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	_, err := f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Severity: models.SeverityLow,
	}, "downgrade", user)
	require.NoError(t, err)

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusNeedsApproval, logs[len(logs)-1].ApprovalStatus,
		"the group's approval setting applies to its members")
}

func TestRiskAcceptanceExpiryTracked(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	ctx := context.Background()
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	expiry := time.Now().UTC().AddDate(0, 3, 0)
	updated, err := f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Status:               models.StatusRiskAccepted,
		RiskAcceptanceExpiry: &expiry,
	}, "accepted until next quarter", user)
	require.NoError(t, err)

	require.NotNil(t, updated.RiskAcceptanceExpiry)
	assert.True(t, expiry.Equal(*updated.RiskAcceptanceExpiry))

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	entry := logs[len(logs)-1]
	assert.True(t, entry.RiskAcceptanceExpiryChanged)
	require.NotNil(t, entry.RiskAcceptanceExpiry)
	assert.True(t, expiry.Equal(*entry.RiskAcceptanceExpiry))
}

func TestImportBatch_SideEffects(t *testing.T) {
	f := newFixture(t, &models.Product{
		ID:                 "prod-1",
		DefaultBranch:      "main",
		SecurityGateActive: true,
		Thresholds:         models.GateThresholds{High: new(int)},
	})
	ctx := context.Background()

	// Import on the default branch publishes events and evaluates the gate
	result, err := f.service.ImportBatch(ctx, models.Scope{ProductID: "prod-1", Branch: "main"}, []models.Finding{
		scannerFinding("CVE-2024-1"),
	}, models.SystemActor, reconcile.BatchMeta{Scanner: "trivy/0.54.1"})
	require.NoError(t, err)
	require.Equal(t, 1, result.New)
	assert.Len(t, f.notifier.observationEvents, 1)
	assert.Equal(t, models.StatusOpen, f.notifier.observationEvents[0].Status)

	// Gate failed but the first evaluation never notifies
	assert.Empty(t, f.notifier.gateEvents)

	// A feature-branch import must not touch the gate
	_, err = f.service.ImportBatch(ctx, models.Scope{ProductID: "prod-1", Branch: "feature/x"}, []models.Finding{
		scannerFinding("CVE-2024-2"),
	}, models.SystemActor, reconcile.BatchMeta{Scanner: "trivy/0.54.1"})
	require.NoError(t, err)

	// Resolving the finding on main flips the gate: exactly one event
	_, err = f.service.ImportBatch(ctx, models.Scope{ProductID: "prod-1", Branch: "main"}, nil,
		models.SystemActor, reconcile.BatchMeta{Scanner: "trivy/0.54.1"})
	require.NoError(t, err)
	require.Len(t, f.notifier.gateEvents, 1)
	assert.Equal(t, models.GateFailed, f.notifier.gateEvents[0].Previous)
	assert.Equal(t, models.GatePassed, f.notifier.gateEvents[0].New)
}

func TestCreateManualObservation(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	ctx := context.Background()
	scope := models.Scope{ProductID: "prod-1", Branch: "main"}

	obs, err := f.service.CreateManualObservation(ctx, scope, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityHigh,
	}, user)
	require.NoError(t, err)

	assert.True(t, obs.ManuallyCreated)
	assert.Equal(t, "Manual", obs.Scanner)
	assert.Equal(t, models.StatusOpen, obs.CurrentStatus)

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Observation created manually", logs[0].Comment)
	assert.Equal(t, "alice", logs[0].User)

	// The same identity in the same scope is rejected
	_, err = f.service.CreateManualObservation(ctx, scope, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityHigh,
	}, user)
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "already exists")
}

func TestUpdateManualObservation(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	ctx := context.Background()
	scope := models.Scope{ProductID: "prod-1", Branch: "main"}

	obs, err := f.service.CreateManualObservation(ctx, scope, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityHigh,
	}, user)
	require.NoError(t, err)

	updated, err := f.service.UpdateManualObservation(ctx, obs.ID, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityCritical,
	}, user)
	require.NoError(t, err)

	assert.Equal(t, models.SeverityCritical, updated.CurrentSeverity)

	logs, err := f.service.ObservationLogs(ctx, obs.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "Observation changed manually", logs[1].Comment)
}

func TestUpdateManualObservation_RejectsIdentityCollision(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	ctx := context.Background()
	scope := models.Scope{ProductID: "prod-1", Branch: "main"}

	_, err := f.service.CreateManualObservation(ctx, scope, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityHigh,
	}, user)
	require.NoError(t, err)

	second, err := f.service.CreateManualObservation(ctx, scope, models.Finding{
		Title:    "Stale admin account in staging",
		Severity: models.SeverityMedium,
	}, user)
	require.NoError(t, err)

	// Retitling the second onto the first's identity must be rejected
	_, err = f.service.UpdateManualObservation(ctx, second.ID, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityMedium,
	}, user)
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "already exists")

	// Re-saving under its own identity is fine
	_, err = f.service.UpdateManualObservation(ctx, second.ID, models.Finding{
		Title:    "Stale admin account in staging",
		Severity: models.SeverityLow,
	}, user)
	assert.NoError(t, err)
}

func TestUpdateManualObservation_BlockedWhilePendingApproval(t *testing.T) {
	f := newFixture(t, &models.Product{
		ID:                      "prod-1",
		DefaultBranch:           "main",
		AssessmentsNeedApproval: true,
	})
	ctx := context.Background()
	scope := models.Scope{ProductID: "prod-1", Branch: "main"}

	obs, err := f.service.CreateManualObservation(ctx, scope, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityHigh,
	}, user)
	require.NoError(t, err)

	_, err = f.service.RecordManualAssessment(ctx, obs.ID, service.Assessment{
		Severity: models.SeverityLow,
	}, "downgrade", user)
	require.NoError(t, err)

	_, err = f.service.UpdateManualObservation(ctx, obs.ID, models.Finding{
		Title:    "Hardcoded credentials in deploy script",
		Severity: models.SeverityMedium,
	}, user)
	assert.ErrorIs(t, err, auditlog.ErrPendingApproval)
}

func TestUpdateManualObservation_RejectsScannerSourced(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	obs := importOne(t, f, models.Scope{ProductID: "prod-1", Branch: "main"})

	_, err := f.service.UpdateManualObservation(context.Background(), obs.ID, models.Finding{
		Title: "CVE-2024-1",
	}, user)
	assert.ErrorIs(t, err, service.ErrNotManual)
}

func TestMarkAsDuplicateViaAssessment(t *testing.T) {
	f := newFixture(t, &models.Product{ID: "prod-1", DefaultBranch: "main"})
	ctx := context.Background()
	scope := models.Scope{ProductID: "prod-1", Branch: "main"}

	result, err := f.service.ImportBatch(ctx, scope, []models.Finding{
		scannerFinding("CVE-2024-1"),
		{
			Title:            "CVE-2024-1",
			ComponentName:    "openssl",
			ComponentVersion: "3.0.1",
			Severity:         models.SeverityHigh,
			VulnerabilityID:  "CVE-2024-1",
			Scanner:          "trivy/0.54.1",
		},
	}, models.SystemActor, reconcile.BatchMeta{Scanner: "trivy/0.54.1"})
	require.NoError(t, err)
	require.Equal(t, 2, result.New)

	first, second := result.Touched[0], result.Touched[1]

	links, err := f.store.ListDuplicates(ctx, second.ID)
	require.NoError(t, err)
	require.Contains(t, links, first.ID, "the import flags the overlap")

	// Marking one Duplicate closes the overlap: its links clear
	updated, err := f.service.RecordManualAssessment(ctx, second.ID, service.Assessment{
		Status: models.StatusDuplicate,
	}, "same as the component-level report", user)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDuplicate, updated.CurrentStatus)

	links, err = f.store.ListDuplicates(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}
