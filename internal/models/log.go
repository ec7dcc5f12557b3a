package models

import "time"

// ApprovalStatus of an observation log entry
type ApprovalStatus string

const (
	ApprovalStatusNone          ApprovalStatus = ""
	ApprovalStatusAutoApproved  ApprovalStatus = "Auto approved"
	ApprovalStatusNeedsApproval ApprovalStatus = "Needs approval"
	ApprovalStatusApproved      ApprovalStatus = "Approved"
	ApprovalStatusRejected      ApprovalStatus = "Rejected"
)

// ObservationLog is one append-only audit entry for an accepted change.
// Each field carries a value only if this specific event changed it, so
// the history never contains phantom no-op transitions.
type ObservationLog struct {
	ID            string `json:"id"`
	ObservationID string `json:"observation_id"`

	Severity         Severity `json:"severity,omitempty"`
	Status           Status   `json:"status,omitempty"`
	VexJustification string   `json:"vex_justification,omitempty"`

	PreviousSeverity         Severity `json:"previous_severity,omitempty"`
	PreviousStatus           Status   `json:"previous_status,omitempty"`
	PreviousVexJustification string   `json:"previous_vex_justification,omitempty"`

	RiskAcceptanceExpiry         *time.Time `json:"risk_acceptance_expiry,omitempty"`
	PreviousRiskAcceptanceExpiry *time.Time `json:"previous_risk_acceptance_expiry,omitempty"`
	RiskAcceptanceExpiryChanged  bool       `json:"risk_acceptance_expiry_changed,omitempty"`

	Comment string `json:"comment"`

	// User is empty for system-driven changes
	User string `json:"user,omitempty"`

	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty"`
	ApprovalUser   string         `json:"approval_user,omitempty"`
	ApprovalRemark string         `json:"approval_remark,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
