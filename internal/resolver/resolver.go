// Package resolver computes the authoritative severity, status and VEX
// justification of an observation from its layered override sources.
package resolver

import (
	"github.com/observatory-sec/observatory/internal/cvss"
	"github.com/observatory-sec/observatory/internal/models"
)

// Sources are the three override layers plus the CVSS score fallback.
// Precedence is assessment > rule > parser; empty means "not set".
type Sources struct {
	ParserSeverity     models.Severity
	RuleSeverity       models.Severity
	AssessmentSeverity models.Severity

	ParserStatus     models.Status
	RuleStatus       models.Status
	AssessmentStatus models.Status

	ParserVexJustification     string
	RuleVexJustification       string
	AssessmentVexJustification string

	CVSS3Score *float64
}

// Resolution is the resolved (severity, status, vex justification) triple.
type Resolution struct {
	Severity         models.Severity
	Status           models.Status
	VexJustification string
}

// Resolve applies the precedence rules. Severity falls back to the CVSS
// score bands when no layer is set, then to Unknown; status falls back to
// Open; VEX justification falls back to empty.
func Resolve(src Sources) Resolution {
	res := Resolution{
		Severity:         models.SeverityUnknown,
		Status:           models.StatusOpen,
		VexJustification: "",
	}

	for _, sev := range []models.Severity{src.AssessmentSeverity, src.RuleSeverity, src.ParserSeverity} {
		if sev != "" {
			res.Severity = sev
			break
		}
	}
	if src.AssessmentSeverity == "" && src.RuleSeverity == "" && src.ParserSeverity == "" && src.CVSS3Score != nil {
		res.Severity = cvss.SeverityFromScore(*src.CVSS3Score)
	}

	for _, status := range []models.Status{src.AssessmentStatus, src.RuleStatus, src.ParserStatus} {
		if status != "" {
			res.Status = status
			break
		}
	}

	for _, vex := range []string{src.AssessmentVexJustification, src.RuleVexJustification, src.ParserVexJustification} {
		if vex != "" {
			res.VexJustification = vex
			break
		}
	}

	return res
}

// SourcesOf extracts the override layers of an observation.
func SourcesOf(o *models.Observation) Sources {
	return Sources{
		ParserSeverity:             o.ParserSeverity,
		RuleSeverity:               o.RuleSeverity,
		AssessmentSeverity:         o.AssessmentSeverity,
		ParserStatus:               o.ParserStatus,
		RuleStatus:                 o.RuleStatus,
		AssessmentStatus:           o.AssessmentStatus,
		ParserVexJustification:     o.ParserVexJustification,
		RuleVexJustification:       o.RuleVexJustification,
		AssessmentVexJustification: o.AssessmentVexJustification,
		CVSS3Score:                 o.CVSS3Score,
	}
}

// CurrentOf reads the resolved triple already stored on an observation.
func CurrentOf(o *models.Observation) Resolution {
	return Resolution{
		Severity:         o.CurrentSeverity,
		Status:           o.CurrentStatus,
		VexJustification: o.CurrentVexJustification,
	}
}

// Apply resolves an observation's layers and writes the result to its
// current_* fields. Returns the resolution for convenience.
func Apply(o *models.Observation) Resolution {
	res := Resolve(SourcesOf(o))
	o.CurrentSeverity = res.Severity
	o.CurrentStatus = res.Status
	o.CurrentVexJustification = res.VexJustification
	return res
}
