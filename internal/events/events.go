// Package events publishes run lifecycle events for external observers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/station/internal/logging"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "station.runs"

// Event types.
const (
	TypeRunStarted    = "run.started"
	TypeRunFinished   = "run.finished"
	TypePhaseFinished = "phase.finished"
)

// Event is one lifecycle notification.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Apply     bool      `json:"apply"`
	Status    string    `json:"status,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Steps     int       `json:"steps,omitempty"`
	Touched   []string  `json:"touched,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSPublisher publishes JSON events to a NATS subject.
type NATSPublisher struct {
	nc           conn
	subject      string
	flushTimeout time.Duration
}

// DialNATS connects to url and returns a publisher for subject.
func DialNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("station"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return newNATSPublisher(nc, subject), nil
}

func newNATSPublisher(nc conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject, flushTimeout: 2 * time.Second}
}

// Subject returns the subject events are published to.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// Publish encodes ev and publishes it, waiting for the server to accept it.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	timeout := p.flushTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}
	if err := p.nc.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("failed to flush %s: %w", ev.Type, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Logged wraps a publisher so failures are logged and never returned.
type Logged struct {
	pub    Publisher
	logger *logging.Logger
}

// NewLogged wraps pub.
func NewLogged(pub Publisher, logger *logging.Logger) *Logged {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Logged{pub: pub, logger: logger.WithComponent("events")}
}

// Emit publishes ev, logging any failure.
func (l *Logged) Emit(ctx context.Context, ev Event) {
	if err := l.pub.Publish(ctx, ev); err != nil {
		l.logger.Warn("event_publish_failed", map[string]interface{}{"type": ev.Type, "error": err.Error()})
	}
}

// Close closes the underlying publisher.
func (l *Logged) Close() error {
	return l.pub.Close()
}
