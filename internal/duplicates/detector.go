// Package duplicates flags candidate duplicate observations reported by
// different scanners for the same underlying issue.
package duplicates

import (
	"context"
	"log"

	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/store"
)

// Detector recomputes duplicate candidate links within a product branch.
type Detector struct {
	store store.Store
}

// NewDetector creates a detector on top of the given store.
func NewDetector(s store.Store) *Detector {
	return &Detector{store: s}
}

// Recompute replaces the full candidate set of one observation. Links are
// symmetric rows, so replacing also drops the reverse link from any
// candidate that no longer qualifies. An observation that is not Open
// ends up with no candidates.
func (d *Detector) Recompute(ctx context.Context, observationID string) error {
	obs, err := d.store.GetObservation(ctx, observationID)
	if err != nil {
		return err
	}

	var candidates []string
	if obs.CurrentStatus == models.StatusOpen && obs.VulnerabilityID != "" {
		others, err := d.store.ListOpenByProductBranch(ctx, obs.Scope.ProductID, obs.Scope.Branch)
		if err != nil {
			return err
		}
		for _, other := range others {
			if isCandidate(obs, other) {
				candidates = append(candidates, other.ID)
			}
		}
	}

	if err := d.store.ReplaceDuplicates(ctx, observationID, candidates); err != nil {
		return err
	}

	if len(candidates) > 0 {
		log.Printf("Found %d potential duplicates for observation %s", len(candidates), observationID)
	}
	return nil
}

// isCandidate applies the matching heuristic: the same vulnerability id
// plus at least one identical origin field, but a different fingerprint
// (identical fingerprints are already merged by the reconciler).
func isCandidate(obs, other *models.Observation) bool {
	if other.ID == obs.ID {
		return false
	}
	if other.Fingerprint == obs.Fingerprint {
		return false
	}
	if other.VulnerabilityID != obs.VulnerabilityID {
		return false
	}

	switch {
	case obs.ComponentName != "" && obs.ComponentName == other.ComponentName:
		return true
	case obs.DockerImageName != "" && obs.DockerImageName == other.DockerImageName:
		return true
	case obs.EndpointURL != "" && obs.EndpointURL == other.EndpointURL:
		return true
	case obs.SourceFile != "" && obs.SourceFile == other.SourceFile:
		return true
	}
	return false
}
