// Package auditlog builds append-only observation log entries and drives
// the optional approval workflow.
package auditlog

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/observatory-sec/observatory/internal/models"
	"github.com/observatory-sec/observatory/internal/resolver"
)

var (
	// ErrPendingApproval - a prior manual entry still needs approval
	ErrPendingApproval = errors.New("auditlog: cannot create new assessment, observation still needs approval")

	// ErrNotPendingApproval - approval attempted on an entry that is not waiting for it
	ErrNotPendingApproval = errors.New("auditlog: log entry is not in needs approval state")

	// ErrInvalidApprovalTarget - approval target must be approved or rejected
	ErrInvalidApprovalTarget = errors.New("auditlog: approval status must be approved or rejected")
)

// Change describes one accepted state transition to be logged.
type Change struct {
	Previous resolver.Resolution
	Next     resolver.Resolution

	PreviousExpiry *time.Time
	NextExpiry     *time.Time

	Comment  string
	Actor    models.Actor
	Approval models.ApprovalStatus
}

// NewEntry builds a log entry recording only the fields the change
// actually touched. Returns nil when nothing changed, so callers never
// append phantom history.
func NewEntry(observationID string, change Change) *models.ObservationLog {
	entry := &models.ObservationLog{
		ID:             uuid.NewString(),
		ObservationID:  observationID,
		Comment:        change.Comment,
		ApprovalStatus: change.Approval,
		CreatedAt:      time.Now().UTC(),
	}
	if !change.Actor.IsSystem {
		entry.User = change.Actor.Username
	}

	changed := false

	if change.Next.Severity != change.Previous.Severity {
		entry.Severity = change.Next.Severity
		entry.PreviousSeverity = change.Previous.Severity
		changed = true
	}
	if change.Next.Status != change.Previous.Status {
		entry.Status = change.Next.Status
		entry.PreviousStatus = change.Previous.Status
		changed = true
	}
	if change.Next.VexJustification != change.Previous.VexJustification {
		entry.VexJustification = change.Next.VexJustification
		entry.PreviousVexJustification = change.Previous.VexJustification
		changed = true
	}
	if !sameTime(change.NextExpiry, change.PreviousExpiry) {
		entry.RiskAcceptanceExpiry = change.NextExpiry
		entry.PreviousRiskAcceptanceExpiry = change.PreviousExpiry
		entry.RiskAcceptanceExpiryChanged = true
		changed = true
	}

	if !changed {
		return nil
	}
	return entry
}

// InitialEntry records the full initial triple of a freshly created
// observation, independent of field-level change detection.
func InitialEntry(observationID string, res resolver.Resolution, comment string, actor models.Actor) *models.ObservationLog {
	entry := &models.ObservationLog{
		ID:               uuid.NewString(),
		ObservationID:    observationID,
		Severity:         res.Severity,
		Status:           res.Status,
		VexJustification: res.VexJustification,
		Comment:          comment,
		ApprovalStatus:   models.ApprovalStatusAutoApproved,
		CreatedAt:        time.Now().UTC(),
	}
	if !actor.IsSystem {
		entry.User = actor.Username
	}
	return entry
}

// CheckNotLocked rejects new manual assessments while the latest entry of
// the observation is waiting for approval. System-driven changes are
// never blocked.
func CheckNotLocked(latest *models.ObservationLog, actor models.Actor) error {
	if actor.IsSystem {
		return nil
	}
	if latest != nil && latest.ApprovalStatus == models.ApprovalStatusNeedsApproval {
		return ErrPendingApproval
	}
	return nil
}

// ApplyApproval transitions a needs-approval entry to approved or
// rejected. Approval never re-resolves the observation: current_* stays
// as computed when the entry was created.
func ApplyApproval(entry *models.ObservationLog, target models.ApprovalStatus, remark string, actor models.Actor) error {
	if target != models.ApprovalStatusApproved && target != models.ApprovalStatusRejected {
		return ErrInvalidApprovalTarget
	}
	if entry.ApprovalStatus != models.ApprovalStatusNeedsApproval {
		return ErrNotPendingApproval
	}

	entry.ApprovalStatus = target
	entry.ApprovalUser = actor.Username
	entry.ApprovalRemark = remark
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
