// Package eventbus publishes state-change events to external
// collaborators (notification delivery, issue trackers).
package eventbus

import (
	"github.com/observatory-sec/observatory/internal/models"
)

// GateChangedEvent fires on an actual security gate transition, never on
// a re-evaluation that yields the same result.
type GateChangedEvent struct {
	ProductID   string                `json:"product_id"`
	ProductName string                `json:"product_name"`
	Previous    models.GateStatus     `json:"previous"`
	New         models.GateStatus     `json:"new"`
	Counts      models.SeverityCounts `json:"counts"`
	Timestamp   int64                 `json:"timestamp"`
}

// ObservationChangedEvent fires after every accepted log entry. It
// carries enough of the resolved state for an issue tracker to decide
// whether to open, update or close its external ticket.
type ObservationChangedEvent struct {
	ObservationID    string          `json:"observation_id"`
	ProductID        string          `json:"product_id"`
	Branch           string          `json:"branch"`
	Title            string          `json:"title"`
	Fingerprint      string          `json:"fingerprint"`
	Severity         models.Severity `json:"severity"`
	Status           models.Status   `json:"status"`
	VexJustification string          `json:"vex_justification,omitempty"`
	Timestamp        int64           `json:"timestamp"`
}

// Notifier is the outbound event contract. Implementations must be safe
// for concurrent use.
type Notifier interface {
	PublishGateChanged(event *GateChangedEvent) error
	PublishObservationChanged(event *ObservationChangedEvent) error
	Close()
}

// NopNotifier drops all events, for embedded and test use.
type NopNotifier struct{}

func (NopNotifier) PublishGateChanged(*GateChangedEvent) error               { return nil }
func (NopNotifier) PublishObservationChanged(*ObservationChangedEvent) error { return nil }
func (NopNotifier) Close()                                                   {}
