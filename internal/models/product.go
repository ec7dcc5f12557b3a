package models

// GateThresholds are the optional per-severity limits of a product's
// security gate. A nil threshold imposes no limit.
type GateThresholds struct {
	Critical *int `json:"critical,omitempty"`
	High     *int `json:"high,omitempty"`
	Medium   *int `json:"medium,omitempty"`
	Low      *int `json:"low,omitempty"`
	None     *int `json:"none,omitempty"`
	Unknown  *int `json:"unknown,omitempty"`
}

// Product is the owning scope of observations. A product with IsGroup set
// has no observations of its own; its gate aggregates its members.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	DefaultBranch string `json:"default_branch,omitempty"`

	// Branches known to belong to this product. An empty list means
	// branches are tracked implicitly and any branch is accepted.
	Branches []string `json:"branches,omitempty"`

	// GroupID references the product group this product belongs to, if any
	GroupID string `json:"group_id,omitempty"`
	IsGroup bool   `json:"is_group,omitempty"`

	AssessmentsNeedApproval bool `json:"assessments_need_approval,omitempty"`

	SecurityGateActive bool           `json:"security_gate_active,omitempty"`
	Thresholds         GateThresholds `json:"thresholds,omitempty"`
}

// GateStatus is the tri-state outcome of a security gate evaluation
type GateStatus string

const (
	GatePassed       GateStatus = "Passed"
	GateFailed       GateStatus = "Failed"
	GateUnconfigured GateStatus = "Unconfigured"
)

// SeverityCounts are open-observation counts per severity bucket
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	None     int `json:"none"`
	Unknown  int `json:"unknown"`
}

// Add sums other into c, used for product-group aggregation
func (c *SeverityCounts) Add(other SeverityCounts) {
	c.Critical += other.Critical
	c.High += other.High
	c.Medium += other.Medium
	c.Low += other.Low
	c.None += other.None
	c.Unknown += other.Unknown
}

// Bucket returns a pointer to the counter for the given severity
func (c *SeverityCounts) Bucket(s Severity) *int {
	switch s {
	case SeverityCritical:
		return &c.Critical
	case SeverityHigh:
		return &c.High
	case SeverityMedium:
		return &c.Medium
	case SeverityLow:
		return &c.Low
	case SeverityNone:
		return &c.None
	default:
		return &c.Unknown
	}
}

// GateResult is the recomputed-on-demand outcome of one evaluation
type GateResult struct {
	ProductID string         `json:"product_id"`
	Status    GateStatus     `json:"status"`
	Counts    SeverityCounts `json:"counts"`
}
