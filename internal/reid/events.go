package reid

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// EventPublisher emits global-identity lifecycle notifications. It is a
// best-effort side channel: nothing in the registry's own decision procedure
// depends on a publish succeeding.
type EventPublisher interface {
	PublishCreated(globalID, camera string)
	PublishRemoved(globalID string)
}

// identityEvent is the wire payload for both lifecycle events.
type identityEvent struct {
	Type      string    `json:"type"`
	GlobalID  string    `json:"global_id"`
	Camera    string    `json:"camera,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSPublisher publishes identity lifecycle events to a NATS core subject.
// Core pub/sub, not JetStream: a dropped event here only costs a consumer a
// stale view of who's currently tracked, never a correctness problem for the
// registry itself, so the durability and redelivery JetStream offers aren't
// worth the operational surface.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to url and returns a publisher on subject. If url
// is empty, NewNATSPublisher returns (nil, nil) — events are simply not
// published, since the event bus is an optional deployment.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url, nats.Name("persontrack-reid"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) PublishCreated(globalID, camera string) {
	p.publish(identityEvent{Type: "identity.created", GlobalID: globalID, Camera: camera, Timestamp: time.Now()})
}

func (p *NATSPublisher) PublishRemoved(globalID string) {
	p.publish(identityEvent{Type: "identity.removed", GlobalID: globalID, Timestamp: time.Now()})
}

func (p *NATSPublisher) publish(evt identityEvent) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil && p.logger != nil {
		p.logger.Warn("reid event publish failed", "error", err, "type", evt.Type)
	}
}

// Close drains and closes the underlying connection.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}
