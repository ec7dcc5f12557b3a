package models

// Finding is one normalized issue record emitted by a scanner-specific
// parser for a single scan run. Findings are produced fresh on every
// import and never persisted directly.
type Finding struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`

	// Scanner-reported values, all optional
	Severity         Severity `json:"severity,omitempty"`
	Status           Status   `json:"status,omitempty"`
	VexJustification string   `json:"vex_justification,omitempty"`

	VulnerabilityID string `json:"vulnerability_id,omitempty"`
	CWE             *int   `json:"cwe,omitempty"`

	// Origin fields, populated depending on scanner type
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

	Scanner string `json:"scanner,omitempty"`
}
