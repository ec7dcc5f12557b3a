// Package service exposes the public operations of the reconciliation
// core: batch import, manual assessment, approval, gate evaluation and
// duplicate recomputation. Every operation takes an explicit actor; the
// core carries no ambient request state.
package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/observatory-sec/observatory/internal/auditlog"
	"github.com/observatory-sec/observatory/internal/duplicates"
	"github.com/observatory-sec/observatory/internal/eventbus"
	"github.com/observatory-sec/observatory/internal/gate"
	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/reconcile"
	"github.com/observatory-sec/observatory/internal/resolver"
	"github.com/observatory-sec/observatory/internal/statecache"
	"github.com/observatory-sec/observatory/internal/store"
)

var (
	// ErrNotManual - scanner-sourced observations cannot be edited directly
	ErrNotManual = errors.New("service: only manually created observations can be edited")
)

// Service wires the core components together.
type Service struct {
	store      store.Store
	notifier   eventbus.Notifier
	reconciler *reconcile.Reconciler
	gate       *gate.Evaluator
	duplicates *duplicates.Detector

	// One import at a time per scope. Imports into different scopes run
	// in parallel with no shared mutable state.
	scopeLocks sync.Map
}

// New creates the service. rules may be nil when no rule engine is
// attached.
func New(s store.Store, notifier eventbus.Notifier, cache statecache.Cache, rules reconcile.RuleEngine) *Service {
	return &Service{
		store:      s,
		notifier:   notifier,
		reconciler: reconcile.NewReconciler(s, rules),
		gate:       gate.NewEvaluator(s, cache, notifier),
		duplicates: duplicates.NewDetector(s),
	}
}

func (s *Service) lockScope(scope models.Scope) func() {
	value, _ := s.scopeLocks.LoadOrStore(scope.Key(), &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ImportBatch reconciles one scan's findings against the scope, then
// re-evaluates the product's gate (when the scope is the default branch)
// and recomputes duplicates for every touched observation.
func (s *Service) ImportBatch(ctx context.Context, scope models.Scope, findings []models.Finding, actor models.Actor, meta reconcile.BatchMeta) (*reconcile.BatchResult, error) {
	unlock := s.lockScope(scope)
	defer unlock()

	result, err := s.reconciler.ImportBatch(ctx, scope, findings, actor, meta)
	if err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, scope.ProductID)
	if err != nil {
		return nil, err
	}

	for _, obs := range result.Touched {
		s.publishObservationChanged(obs)
		if err := s.duplicates.Recompute(ctx, obs.ID); err != nil {
			log.Printf("Failed to recompute duplicates for observation %s: %v", obs.ID, err)
		}
	}

	if scope.Branch == product.DefaultBranch {
		if _, err := s.gate.Evaluate(ctx, product.ID); err != nil {
			log.Printf("Failed to evaluate security gate for product %s: %v", product.ID, err)
		}
	}

	return result, nil
}

// Assessment is the manual override layer of one observation. The
// provided values replace the assessment layer wholesale; an empty value
// clears its slot.
type Assessment struct {
	Severity             models.Severity
	Status               models.Status
	VexJustification     string
	RiskAcceptanceExpiry *time.Time
}

// RecordManualAssessment applies a manual assessment to any observation.
// Rejected while a prior entry of the observation still needs approval.
func (s *Service) RecordManualAssessment(ctx context.Context, observationID string, assessment Assessment, comment string, actor models.Actor) (*models.Observation, error) {
	if assessment.Severity != "" && !assessment.Severity.IsValid() {
		return nil, &ValidationError{Field: "severity", Message: "severity " + string(assessment.Severity) + " is not a valid choice"}
	}
	if assessment.Status != "" && !assessment.Status.IsValid() {
		return nil, &ValidationError{Field: "status", Message: "status " + string(assessment.Status) + " is not a valid choice"}
	}

	return s.applyAssessment(ctx, observationID, assessment, comment, actor)
}

// RemoveAssessment clears the assessment layer, falling back to rule and
// parser values.
func (s *Service) RemoveAssessment(ctx context.Context, observationID string, comment string, actor models.Actor) (*models.Observation, error) {
	return s.applyAssessment(ctx, observationID, Assessment{}, comment, actor)
}

func (s *Service) applyAssessment(ctx context.Context, observationID string, assessment Assessment, comment string, actor models.Actor) (*models.Observation, error) {
	obs, err := s.store.GetObservation(ctx, observationID)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.LatestLog(ctx, observationID)
	if err != nil {
		return nil, err
	}
	if err := auditlog.CheckNotLocked(latest, actor); err != nil {
		return nil, err
	}

	needsApproval, err := s.assessmentNeedsApproval(ctx, obs.Scope.ProductID, actor)
	if err != nil {
		return nil, err
	}

	previous := resolver.CurrentOf(obs)
	previousExpiry := obs.RiskAcceptanceExpiry

	obs.AssessmentSeverity = assessment.Severity
	obs.AssessmentStatus = assessment.Status
	obs.AssessmentVexJustification = assessment.VexJustification
	obs.RiskAcceptanceExpiry = assessment.RiskAcceptanceExpiry
	next := resolver.Apply(obs)

	approval := models.ApprovalStatusNone
	if actor.IsSystem {
		approval = models.ApprovalStatusAutoApproved
	} else if needsApproval {
		approval = models.ApprovalStatusNeedsApproval
	}

	entry := auditlog.NewEntry(obs.ID, auditlog.Change{
		Previous:       previous,
		Next:           next,
		PreviousExpiry: previousExpiry,
		NextExpiry:     obs.RiskAcceptanceExpiry,
		Comment:        comment,
		Actor:          actor,
		Approval:       approval,
	})

	if entry == nil {
		// Nothing resolved differently; persist the layer, no history.
		if err := s.store.SaveObservation(ctx, obs); err != nil {
			return nil, err
		}
		return obs, nil
	}

	obs.LastModified = entry.CreatedAt
	if err := s.store.SaveObservation(ctx, obs); err != nil {
		return nil, err
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}

	s.afterObservationChange(ctx, obs)
	return obs, nil
}

// assessmentNeedsApproval checks the product and, transitively, its
// product group. System actors never need approval.
func (s *Service) assessmentNeedsApproval(ctx context.Context, productID string, actor models.Actor) (bool, error) {
	if actor.IsSystem {
		return false, nil
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	if product.AssessmentsNeedApproval {
		return true, nil
	}
	if product.GroupID == "" {
		return false, nil
	}

	group, err := s.store.GetProduct(ctx, product.GroupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return group.AssessmentsNeedApproval, nil
}

// ApproveLogEntry accepts or rejects a pending needs-approval entry.
// Approval never re-resolves the observation.
func (s *Service) ApproveLogEntry(ctx context.Context, logID string, target models.ApprovalStatus, remark string, actor models.Actor) error {
	entry, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return err
	}

	if err := auditlog.ApplyApproval(entry, target, remark, actor); err != nil {
		return err
	}

	return s.store.UpdateLog(ctx, entry)
}

// EvaluateSecurityGate recomputes the gate for a product or group.
func (s *Service) EvaluateSecurityGate(ctx context.Context, productID string) (*models.GateResult, error) {
	return s.gate.Evaluate(ctx, productID)
}

// RecomputeDuplicates replaces the duplicate candidate set of one
// observation, both sides kept consistent.
func (s *Service) RecomputeDuplicates(ctx context.Context, observationID string) error {
	return s.duplicates.Recompute(ctx, observationID)
}

// ObservationLogs returns the audit trail of one observation, oldest
// first.
func (s *Service) ObservationLogs(ctx context.Context, observationID string) ([]*models.ObservationLog, error) {
	return s.store.ListLogs(ctx, observationID)
}

// afterObservationChange runs the post-change side effects shared by the
// manual paths: issue-tracker event, duplicate recomputation and a gate
// re-evaluation when the observation lives on the default branch.
func (s *Service) afterObservationChange(ctx context.Context, obs *models.Observation) {
	s.publishObservationChanged(obs)

	if err := s.duplicates.Recompute(ctx, obs.ID); err != nil {
		log.Printf("Failed to recompute duplicates for observation %s: %v", obs.ID, err)
	}

	product, err := s.store.GetProduct(ctx, obs.Scope.ProductID)
	if err != nil {
		log.Printf("Failed to load product %s: %v", obs.Scope.ProductID, err)
		return
	}
	if obs.Scope.Branch == product.DefaultBranch {
		if _, err := s.gate.Evaluate(ctx, product.ID); err != nil {
			log.Printf("Failed to evaluate security gate for product %s: %v", product.ID, err)
		}
	}
}

func (s *Service) publishObservationChanged(obs *models.Observation) {
	event := &eventbus.ObservationChangedEvent{
		ObservationID:    obs.ID,
		ProductID:        obs.Scope.ProductID,
		Branch:           obs.Scope.Branch,
		Title:            obs.Title,
		Fingerprint:      obs.Fingerprint,
		Severity:         obs.CurrentSeverity,
		Status:           obs.CurrentStatus,
		VexJustification: obs.CurrentVexJustification,
		Timestamp:        time.Now().Unix(),
	}
	if err := s.notifier.PublishObservationChanged(event); err != nil {
		log.Printf("Failed to publish observation change for %s: %v", obs.ID, err)
	}
}
