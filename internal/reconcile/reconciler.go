// Package reconcile matches one import batch of findings against the
// stored observations of its scope and drives the resolver and the audit
// log for every create, update and resolve.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/observatory-sec/observatory/internal/auditlog"
	"github.com/observatory-sec/observatory/internal/cvss"
	"github.com/observatory-sec/observatory/internal/fingerprint"
	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/resolver"
	"github.com/observatory-sec/observatory/internal/store"
)

var (
	// ErrProductNotFound - stated product does not exist
	ErrProductNotFound = errors.New("reconcile: product does not exist")

	// ErrProductIsGroup - product groups own no observations of their own
	ErrProductIsGroup = errors.New("reconcile: cannot import into a product group")

	// ErrBranchNotInProduct - scope names a branch outside the product
	ErrBranchNotInProduct = errors.New("reconcile: branch does not belong to the stated product")
)

// ValidateScope rejects a scope before any mutation: the product must
// exist, must not be a group, and the branch must belong to it when the
// product tracks its branches explicitly.
func ValidateScope(ctx context.Context, s store.Store, scope models.Scope) (*models.Product, error) {
	product, err := s.GetProduct(ctx, scope.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if product.IsGroup {
		return nil, ErrProductIsGroup
	}
	if len(product.Branches) > 0 && !containsBranch(product.Branches, scope.Branch) {
		return nil, ErrBranchNotInProduct
	}
	return product, nil
}

// RuleEngine is the external rule evaluation collaborator. Evaluate
// returns the matched rule's overrides, or nil when no rule applies.
type RuleEngine interface {
	Evaluate(obs *models.Observation) *models.RuleResult
}

// BatchMeta identifies the source of one import batch.
type BatchMeta struct {
	Scanner          string
	UploadFilename   string
	APIConfiguration string
}

// Rejection is a per-finding validation failure. Rejected findings do
// not abort the rest of the batch.
type Rejection struct {
	Index  int    `json:"index"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// BatchResult summarises one reconciled import batch.
type BatchResult struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Resolved  int `json:"resolved"`

	Rejections []Rejection `json:"rejections,omitempty"`

	// Touched holds every observation created, updated or resolved in
	// this batch, for post-batch side effects (issue tracker events,
	// duplicate recomputation).
	Touched []*models.Observation `json:"-"`
}

// Reconciler runs import batches against a store.
type Reconciler struct {
	store store.Store
	rules RuleEngine
}

// NewReconciler creates a reconciler. rules may be nil when no rule
// engine is attached; existing rule overrides are then left untouched.
func NewReconciler(s store.Store, rules RuleEngine) *Reconciler {
	return &Reconciler{
		store: s,
		rules: rules,
	}
}

// ImportBatch reconciles the findings of one scan against the scope's
// existing observations. The caller must hold the scope's import lock;
// the reconciler assumes exclusive access to the scope for the duration
// of the batch. Re-running an identical batch produces no new audit
// entries and no state transitions beyond last-seen refreshes.
func (r *Reconciler) ImportBatch(ctx context.Context, scope models.Scope, findings []models.Finding, actor models.Actor, meta BatchMeta) (*BatchResult, error) {
	if _, err := ValidateScope(ctx, r.store, scope); err != nil {
		return nil, err
	}

	family := models.ScannerFamily(meta.Scanner)
	existing, err := r.store.ListByScope(ctx, scope, family)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*models.Observation, len(existing))
	for _, obs := range existing {
		index[obs.Fingerprint] = obs
	}

	result := &BatchResult{}
	processed := make(map[string]struct{})
	now := time.Now().UTC()

	for i := range findings {
		finding := findings[i]

		if reason := NormalizeFinding(&finding); reason != "" {
			result.Rejections = append(result.Rejections, Rejection{
				Index:  i,
				Title:  finding.Title,
				Reason: reason,
			})
			continue
		}

		fp := fingerprint.ForFinding(&finding)
		if _, seen := processed[fp]; seen {
			// Same identity reported twice in one scan; already handled.
			continue
		}
		processed[fp] = struct{}{}

		obs, matched := index[fp]
		if matched {
			delete(index, fp)
			updated, err := r.updateMatched(ctx, obs, &finding, meta, now)
			if err != nil {
				return nil, err
			}
			if updated {
				result.Updated++
				result.Touched = append(result.Touched, obs)
			} else {
				result.Unchanged++
			}
			continue
		}

		obs, err := r.createNew(ctx, scope, &finding, fp, meta, now)
		if err != nil {
			return nil, err
		}
		result.New++
		result.Touched = append(result.Touched, obs)
	}

	// Whatever is left in the index was not reported by this scan.
	for _, obs := range index {
		resolved, err := r.resolveMissing(ctx, obs, now)
		if err != nil {
			return nil, err
		}
		if resolved {
			result.Resolved++
			result.Touched = append(result.Touched, obs)
		}
	}

	log.Printf("Reconciled batch for scope %s (%s): %d new, %d updated, %d unchanged, %d resolved, %d rejected",
		scope.Key(), family, result.New, result.Updated, result.Unchanged, result.Resolved, len(result.Rejections))

	return result, nil
}

// updateMatched overwrites the parser layer from the finding, re-resolves
// and logs only if the resolved state actually changed. The last-seen
// timestamp refreshes regardless.
func (r *Reconciler) updateMatched(ctx context.Context, obs *models.Observation, finding *models.Finding, meta BatchMeta, now time.Time) (bool, error) {
	previous := resolver.CurrentOf(obs)

	ApplyFinding(obs, finding, meta)
	r.applyRules(obs)
	next := resolver.Apply(obs)
	obs.ImportLastSeen = now

	changed := next != previous
	if changed {
		obs.LastModified = now
	}

	if err := r.store.SaveObservation(ctx, obs); err != nil {
		return false, err
	}

	if !changed {
		return false, nil
	}

	entry := auditlog.NewEntry(obs.ID, auditlog.Change{
		Previous:       previous,
		Next:           next,
		PreviousExpiry: obs.RiskAcceptanceExpiry,
		NextExpiry:     obs.RiskAcceptanceExpiry,
		Comment:        "Updated by parser",
		Actor:          models.SystemActor,
		Approval:       models.ApprovalStatusAutoApproved,
	})
	if entry == nil {
		return false, nil
	}
	if err := r.store.AppendLog(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// createNew persists an observation shell for a first-seen finding and
// logs its full initial state.
func (r *Reconciler) createNew(ctx context.Context, scope models.Scope, finding *models.Finding, fp string, meta BatchMeta, now time.Time) (*models.Observation, error) {
	obs := &models.Observation{
		ID:             uuid.NewString(),
		Scope:          scope,
		Fingerprint:    fp,
		FirstSeen:      now,
		ImportLastSeen: now,
		LastModified:   now,
	}
	ApplyFinding(obs, finding, meta)
	r.applyRules(obs)
	res := resolver.Apply(obs)

	if err := r.store.SaveObservation(ctx, obs); err != nil {
		return nil, err
	}

	entry := auditlog.InitialEntry(obs.ID, res, "Set by parser", models.SystemActor)
	if err := r.store.AppendLog(ctx, entry); err != nil {
		return nil, err
	}
	return obs, nil
}

// resolveMissing transitions an observation that disappeared from the
// scan. The parser layer flips to Resolved; severity stays untouched. If
// a rule or assessment override dominates the status, the resolved state
// does not change and no audit entry is written.
func (r *Reconciler) resolveMissing(ctx context.Context, obs *models.Observation, now time.Time) (bool, error) {
	previous := resolver.CurrentOf(obs)
	if previous.Status == models.StatusResolved {
		return false, nil
	}

	obs.ParserStatus = models.StatusResolved
	next := resolver.Apply(obs)

	changed := next != previous
	if changed {
		obs.LastModified = now
	}

	if err := r.store.SaveObservation(ctx, obs); err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	entry := auditlog.NewEntry(obs.ID, auditlog.Change{
		Previous:       previous,
		Next:           next,
		PreviousExpiry: obs.RiskAcceptanceExpiry,
		NextExpiry:     obs.RiskAcceptanceExpiry,
		Comment:        "Observation not found in latest scan",
		Actor:          models.SystemActor,
		Approval:       models.ApprovalStatusAutoApproved,
	})
	if entry == nil {
		return false, nil
	}
	if err := r.store.AppendLog(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// applyRules feeds the observation through the rule engine, replacing any
// stale rule overrides. Without an engine the rule layer is left alone.
func (r *Reconciler) applyRules(obs *models.Observation) {
	if r.rules == nil {
		return
	}

	rule := r.rules.Evaluate(obs)
	if rule == nil {
		obs.RuleSeverity = ""
		obs.RuleStatus = ""
		obs.RuleVexJustification = ""
		obs.RuleName = ""
		return
	}
	obs.RuleSeverity = rule.Severity
	obs.RuleStatus = rule.Status
	obs.RuleVexJustification = rule.VexJustification
	obs.RuleName = rule.RuleName
}

// ApplyFinding overwrites the parser layer and the scanner-origin fields.
func ApplyFinding(obs *models.Observation, finding *models.Finding, meta BatchMeta) {
	obs.Title = finding.Title
	obs.Description = finding.Description
	obs.Recommendation = finding.Recommendation
	obs.VulnerabilityID = finding.VulnerabilityID
	obs.CWE = finding.CWE
	obs.ComponentName = finding.ComponentName
	obs.ComponentVersion = finding.ComponentVersion
	obs.DockerImageName = finding.DockerImageName
	obs.EndpointURL = finding.EndpointURL
	obs.ServiceName = finding.ServiceName
	obs.SourceFile = finding.SourceFile
	obs.SourceLineStart = finding.SourceLineStart
	obs.SourceLineEnd = finding.SourceLineEnd
	obs.CVSS3Score = finding.CVSS3Score
	obs.CVSS3Vector = finding.CVSS3Vector

	obs.ParserSeverity = finding.Severity
	obs.ParserStatus = finding.Status
	obs.ParserVexJustification = finding.VexJustification

	obs.Scanner = finding.Scanner
	if obs.Scanner == "" {
		obs.Scanner = meta.Scanner
	}
	obs.UploadFilename = meta.UploadFilename
	obs.APIConfiguration = meta.APIConfiguration
}

// NormalizeFinding validates one finding and canonicalises its CVSS
// vector. Returns a rejection reason, or "" when the finding is usable.
func NormalizeFinding(finding *models.Finding) string {
	if finding.Title == "" {
		return "title is required"
	}
	if finding.Severity != "" && !finding.Severity.IsValid() {
		return fmt.Sprintf("severity %q is not a valid choice", string(finding.Severity))
	}
	if finding.Status != "" && !finding.Status.IsValid() {
		return fmt.Sprintf("status %q is not a valid choice", string(finding.Status))
	}

	if finding.CVSS3Vector != "" {
		canonical, baseScore, err := cvss.Validate(finding.CVSS3Vector, finding.CVSS3Score)
		if err != nil {
			return err.Error()
		}
		finding.CVSS3Vector = canonical
		if finding.CVSS3Score == nil {
			finding.CVSS3Score = &baseScore
		}
	}
	return ""
}

func containsBranch(branches []string, branch string) bool {
	for _, b := range branches {
		if b == branch {
			return true
		}
	}
	return false
}
