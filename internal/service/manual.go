package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/observatory-sec/observatory/internal/auditlog"
	"github.com/observatory-sec/observatory/internal/fingerprint"
	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/reconcile"
	"github.com/observatory-sec/observatory/internal/resolver"
)

// ValidationError rejects a single record with a precise field and
// condition, never a generic failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CreateManualObservation records an observation entered by hand rather
// than by a scanner. It runs through the same resolver and audit log
// contract as imported findings.
func (s *Service) CreateManualObservation(ctx context.Context, scope models.Scope, finding models.Finding, actor models.Actor) (*models.Observation, error) {
	if _, err := reconcile.ValidateScope(ctx, s.store, scope); err != nil {
		return nil, err
	}
	if reason := reconcile.NormalizeFinding(&finding); reason != "" {
		return nil, &ValidationError{Field: "finding", Message: reason}
	}

	unlock := s.lockScope(scope)
	defer unlock()

	if finding.Scanner == "" {
		finding.Scanner = "Manual"
	}
	fp := fingerprint.ForFinding(&finding)

	// One observation per fingerprint within the scope and scanner family.
	existing, err := s.store.ListByScope(ctx, scope, models.ScannerFamily(finding.Scanner))
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if other.Fingerprint == fp {
			return nil, &ValidationError{Field: "title", Message: "an observation with the same identity already exists in this scope"}
		}
	}

	now := time.Now().UTC()
	obs := &models.Observation{
		ID:              uuid.NewString(),
		Scope:           scope,
		Fingerprint:     fp,
		ManuallyCreated: true,
		FirstSeen:       now,
		ImportLastSeen:  now,
		LastModified:    now,
	}
	reconcile.ApplyFinding(obs, &finding, reconcile.BatchMeta{})
	res := resolver.Apply(obs)

	if err := s.store.SaveObservation(ctx, obs); err != nil {
		return nil, err
	}
	entry := auditlog.InitialEntry(obs.ID, res, "Observation created manually", actor)
	if err := s.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}

	s.afterObservationChange(ctx, obs)
	return obs, nil
}

// UpdateManualObservation edits the scanner-reported layer of a manually
// created observation. Scanner-sourced observations are rejected: their
// parser layer belongs to the importing scanner.
func (s *Service) UpdateManualObservation(ctx context.Context, observationID string, finding models.Finding, actor models.Actor) (*models.Observation, error) {
	obs, err := s.store.GetObservation(ctx, observationID)
	if err != nil {
		return nil, err
	}
	if !obs.ManuallyCreated {
		return nil, ErrNotManual
	}
	if reason := reconcile.NormalizeFinding(&finding); reason != "" {
		return nil, &ValidationError{Field: "finding", Message: reason}
	}

	latest, err := s.store.LatestLog(ctx, observationID)
	if err != nil {
		return nil, err
	}
	if err := auditlog.CheckNotLocked(latest, actor); err != nil {
		return nil, err
	}

	previous := resolver.CurrentOf(obs)

	if finding.Scanner == "" {
		finding.Scanner = obs.Scanner
	}

	// An edit can change the identity fields; the new fingerprint must
	// not collide with another observation in the scope.
	fp := fingerprint.ForFinding(&finding)
	if fp != obs.Fingerprint {
		existing, err := s.store.ListByScope(ctx, obs.Scope, models.ScannerFamily(finding.Scanner))
		if err != nil {
			return nil, err
		}
		for _, other := range existing {
			if other.ID != obs.ID && other.Fingerprint == fp {
				return nil, &ValidationError{Field: "title", Message: "an observation with the same identity already exists in this scope"}
			}
		}
	}

	reconcile.ApplyFinding(obs, &finding, reconcile.BatchMeta{})
	obs.Fingerprint = fp
	next := resolver.Apply(obs)

	now := time.Now().UTC()
	obs.LastModified = now

	if err := s.store.SaveObservation(ctx, obs); err != nil {
		return nil, err
	}

	entry := auditlog.NewEntry(obs.ID, auditlog.Change{
		Previous:       previous,
		Next:           next,
		PreviousExpiry: obs.RiskAcceptanceExpiry,
		NextExpiry:     obs.RiskAcceptanceExpiry,
		Comment:        "Observation changed manually",
		Actor:          actor,
	})
	if entry != nil {
		if err := s.store.AppendLog(ctx, entry); err != nil {
			return nil, err
		}
	}

	s.afterObservationChange(ctx, obs)
	return obs, nil
}
