package models

import (
	"strings"
	"time"
)

// Scope is the (product, branch, optional service) triple within which
// fingerprints are unique.
type Scope struct {
	ProductID string `json:"product_id"`
	Branch    string `json:"branch"`
	Service   string `json:"service,omitempty"`
}

// Key returns a stable string form of the scope, usable as a lock/index key.
func (s Scope) Key() string {
	return s.ProductID + "|" + s.Branch + "|" + s.Service
}

// Actor identifies who is performing an operation. System actors cover
// parser imports and rule application; their changes are auto-approved.
type Actor struct {
	Username string `json:"username,omitempty"`
	IsSystem bool   `json:"is_system"`
}

// SystemActor is the actor used for scanner- and rule-driven changes.
var SystemActor = Actor{IsSystem: true}

// RuleResult is the outcome of the external rule engine for one
// observation: optional overrides plus the name of the matched rule.
type RuleResult struct {
	RuleName         string   `json:"rule_name"`
	Severity         Severity `json:"severity,omitempty"`
	Status           Status   `json:"status,omitempty"`
	VexJustification string   `json:"vex_justification,omitempty"`
}

// Observation is the persisted, deduplicated representation of one
// finding across all scans that reported it. Identity is the fingerprint,
// unique within (product, branch, service, scanner family).
type Observation struct {
	ID    string `json:"id"`
	Scope Scope  `json:"scope"`

	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`

	VulnerabilityID string `json:"vulnerability_id,omitempty"`
	CWE             *int   `json:"cwe,omitempty"`

	ComponentName    string `json:"component_name,omitempty"`
	ComponentVersion string `json:"component_version,omitempty"`
	DockerImageName  string `json:"docker_image_name,omitempty"`
	EndpointURL      string `json:"endpoint_url,omitempty"`
	ServiceName      string `json:"service_name,omitempty"`
	SourceFile       string `json:"source_file,omitempty"`
	SourceLineStart  *int   `json:"source_line_start,omitempty"`
	SourceLineEnd    *int   `json:"source_line_end,omitempty"`

	CVSS3Score  *float64 `json:"cvss3_score,omitempty"`
	CVSS3Vector string   `json:"cvss3_vector,omitempty"`

	// Override layers, consumed by the resolver in fixed precedence
	// (assessment > rule > parser). Empty means "not set".
	ParserSeverity     Severity `json:"parser_severity,omitempty"`
	RuleSeverity       Severity `json:"rule_severity,omitempty"`
	AssessmentSeverity Severity `json:"assessment_severity,omitempty"`

	ParserStatus     Status `json:"parser_status,omitempty"`
	RuleStatus       Status `json:"rule_status,omitempty"`
	AssessmentStatus Status `json:"assessment_status,omitempty"`

	ParserVexJustification     string `json:"parser_vex_justification,omitempty"`
	RuleVexJustification       string `json:"rule_vex_justification,omitempty"`
	AssessmentVexJustification string `json:"assessment_vex_justification,omitempty"`

	// Resolved values. Always a pure function of the override layers,
	// never written independently.
	CurrentSeverity         Severity `json:"current_severity"`
	CurrentStatus           Status   `json:"current_status"`
	CurrentVexJustification string   `json:"current_vex_justification,omitempty"`

	RiskAcceptanceExpiry *time.Time `json:"risk_acceptance_expiry,omitempty"`

	Fingerprint     string `json:"fingerprint"`
	Scanner         string `json:"scanner,omitempty"`
	RuleName        string `json:"rule_name,omitempty"`
	ManuallyCreated bool   `json:"manually_created"`

	// Batch metadata of the last import that touched this observation
	UploadFilename   string `json:"upload_filename,omitempty"`
	APIConfiguration string `json:"api_configuration,omitempty"`

	FirstSeen      time.Time `json:"first_seen"`
	ImportLastSeen time.Time `json:"import_last_seen"`
	LastModified   time.Time `json:"last_modified"`
}

// ScannerFamily strips the version suffix from a scanner name, so that
// "trivy/0.54.1" and "trivy/0.55.0" match the same observations.
func ScannerFamily(scanner string) string {
	if i := strings.Index(scanner, "/"); i >= 0 {
		return scanner[:i]
	}
	return scanner
}
