package eventbus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectGateChanged        = "securitygate.changed"
	SubjectObservationChanged = "observation.changed"
)

// Publisher publishes events to NATS
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher creates a new event bus publisher
func NewPublisher(natsURL string) (*Publisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Connected to NATS at %s", natsURL)

	return &Publisher{
		conn: conn,
	}, nil
}

// PublishGateChanged publishes a gate transition to the gate subject
func (p *Publisher) PublishGateChanged(event *GateChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(SubjectGateChanged, data); err != nil {
		return err
	}

	log.Printf("Published gate change to event bus: %s %s -> %s", event.ProductID, event.Previous, event.New)

	return nil
}

// PublishObservationChanged publishes an observation state change
func (p *Publisher) PublishObservationChanged(event *ObservationChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(SubjectObservationChanged, data); err != nil {
		return err
	}

	log.Printf("Published observation change to event bus: [%s] %s", event.Severity, event.Title)

	return nil
}

// Close disconnects from NATS
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		log.Printf("Disconnected from NATS")
	}
}

// IsConnected reports whether the NATS connection is up
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}
