package models

// Severity is the resolved criticality of an observation
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityNone     Severity = "None"
	SeverityUnknown  Severity = "Unknown"
)

// Numerical returns the sort/index rank of a severity (Critical=1 .. Unknown=6).
// Derived from the severity itself, never stored on its own.
func (s Severity) Numerical() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 4
	case SeverityNone:
		return 5
	default:
		return 6
	}
}

// IsValid reports whether s is one of the known severity choices.
// The empty string means "not set" and is not a valid reported value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityNone, SeverityUnknown:
		return true
	}
	return false
}

// Status is the resolved lifecycle state of an observation
type Status string

const (
	StatusOpen             Status = "Open"
	StatusResolved         Status = "Resolved"
	StatusDuplicate        Status = "Duplicate"
	StatusFalsePositive    Status = "False positive"
	StatusInReview         Status = "In review"
	StatusNotAffected      Status = "Not affected"
	StatusNotSecurityIssue Status = "Not security"
	StatusRiskAccepted     Status = "Risk accepted"
)

// IsValid reports whether s is one of the known status choices.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusResolved, StatusDuplicate, StatusFalsePositive,
		StatusInReview, StatusNotAffected, StatusNotSecurityIssue, StatusRiskAccepted:
		return true
	}
	return false
}

// VEX justification reason codes (per the OpenVEX / CSAF ecosystem)
const (
	VexComponentNotPresent                      = "component_not_present"
	VexVulnerableCodeNotPresent                 = "vulnerable_code_not_present"
	VexVulnerableCodeNotInExecutePath           = "vulnerable_code_not_in_execute_path"
	VexVulnerableCodeCannotBeControlledByAdvers = "vulnerable_code_cannot_be_controlled_by_adversary"
	VexInlineMitigationsAlreadyExist            = "inline_mitigations_already_exist"
)
