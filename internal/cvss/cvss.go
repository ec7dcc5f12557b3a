// Package cvss validates CVSS v3 vectors and maps scores to severities.
package cvss

import (
	"errors"
	"fmt"
	"math"
	"strings"

	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"

	"github.com/observatory-sec/observatory/internal/models"
)

var (
	// ErrMalformedVector - vector does not follow the CVSS v3 grammar
	ErrMalformedVector = errors.New("cvss: malformed CVSS3 vector")
)

// MismatchError is returned when a vector's computed base score differs
// from an independently supplied numeric score.
type MismatchError struct {
	VectorScore float64
	GivenScore  float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Score from CVSS3 vector (%.1f) is different than CVSS3 score (%.1f)",
		e.VectorScore, e.GivenScore)
}

// Validate parses a CVSS v3.0/v3.1 vector, checks score consistency and
// returns the canonical vector string plus the base score. The canonical
// form is what gets persisted, not the raw input. A nil score skips the
// consistency check and the vector's own base score is authoritative.
func Validate(vector string, score *float64) (string, float64, error) {
	var canonical string
	var baseScore float64

	switch {
	case strings.HasPrefix(vector, "CVSS:3.1/"):
		parsed, err := gocvss31.ParseVector(vector)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrMalformedVector, err)
		}
		canonical = parsed.Vector()
		baseScore = parsed.BaseScore()
	case strings.HasPrefix(vector, "CVSS:3.0/"):
		parsed, err := gocvss30.ParseVector(vector)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrMalformedVector, err)
		}
		canonical = parsed.Vector()
		baseScore = parsed.BaseScore()
	default:
		return "", 0, fmt.Errorf("%w: unsupported prefix", ErrMalformedVector)
	}

	if score != nil && !sameScore(baseScore, *score) {
		return "", 0, &MismatchError{VectorScore: baseScore, GivenScore: *score}
	}

	return canonical, baseScore, nil
}

// SeverityFromScore maps a CVSS base score to a severity using the fixed
// numeric bands. Only used when no explicit severity layer is set.
func SeverityFromScore(score float64) models.Severity {
	switch {
	case score == 0:
		return models.SeverityNone
	case score < 4:
		return models.SeverityLow
	case score < 7:
		return models.SeverityMedium
	case score < 9:
		return models.SeverityHigh
	default:
		return models.SeverityCritical
	}
}

// CVSS scores carry one decimal; compare on that grid
func sameScore(a, b float64) bool {
	return math.Round(a*10) == math.Round(b*10)
}
