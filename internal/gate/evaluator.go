// Package gate evaluates per-product security gates against configured
// open-observation thresholds.
package gate

import (
	"context"
	"log"
	"time"

	"github.com/observatory-sec/observatory/internal/eventbus"
	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/statecache"
	"github.com/observatory-sec/observatory/internal/store"
)

// Evaluator recomputes gate results on demand and notifies on actual
// transitions.
type Evaluator struct {
	store    store.Store
	cache    statecache.Cache
	notifier eventbus.Notifier
}

// NewEvaluator creates a gate evaluator.
func NewEvaluator(s store.Store, cache statecache.Cache, notifier eventbus.Notifier) *Evaluator {
	return &Evaluator{
		store:    s,
		cache:    cache,
		notifier: notifier,
	}
}

// Evaluate computes the gate result for a product or product group. A
// transition of the outcome against the last known value (including
// unconfigured to pass/fail and back) publishes exactly one gate-changed
// event; re-evaluating to the same result never re-notifies.
func (e *Evaluator) Evaluate(ctx context.Context, productID string) (*models.GateResult, error) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	result, err := e.compute(ctx, product)
	if err != nil {
		return nil, err
	}

	previous, known, err := e.cache.GetGateStatus(ctx, productID)
	if err != nil {
		return nil, err
	}

	if known && previous != result.Status {
		event := &eventbus.GateChangedEvent{
			ProductID:   product.ID,
			ProductName: product.Name,
			Previous:    previous,
			New:         result.Status,
			Counts:      result.Counts,
			Timestamp:   time.Now().Unix(),
		}
		if err := e.notifier.PublishGateChanged(event); err != nil {
			log.Printf("Failed to publish gate change for product %s: %v", product.ID, err)
		}
	}

	if err := e.cache.SetGateStatus(ctx, productID, result.Status); err != nil {
		return nil, err
	}

	return result, nil
}

// compute builds counts and applies thresholds. Product groups evaluate
// each member independently and sum the member counts; thresholds are
// the group's own.
func (e *Evaluator) compute(ctx context.Context, product *models.Product) (*models.GateResult, error) {
	result := &models.GateResult{ProductID: product.ID}

	if product.IsGroup {
		members, err := e.store.ListGroupMembers(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			memberResult, err := e.compute(ctx, member)
			if err != nil {
				return nil, err
			}
			result.Counts.Add(memberResult.Counts)
		}
	} else {
		counts, err := e.store.CountOpenBySeverity(ctx, product.ID, product.DefaultBranch)
		if err != nil {
			return nil, err
		}
		result.Counts = counts
	}

	if !product.SecurityGateActive {
		result.Status = models.GateUnconfigured
		return result, nil
	}

	if withinThresholds(product.Thresholds, result.Counts) {
		result.Status = models.GatePassed
	} else {
		result.Status = models.GateFailed
	}
	return result, nil
}

// withinThresholds passes iff every configured limit covers its count.
// An unset threshold imposes no limit.
func withinThresholds(t models.GateThresholds, counts models.SeverityCounts) bool {
	checks := []struct {
		limit *int
		count int
	}{
		{t.Critical, counts.Critical},
		{t.High, counts.High},
		{t.Medium, counts.Medium},
		{t.Low, counts.Low},
		{t.None, counts.None},
		{t.Unknown, counts.Unknown},
	}

	for _, check := range checks {
		if check.limit != nil && check.count > *check.limit {
			return false
		}
	}
	return true
}
