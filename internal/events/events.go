// Package events publishes document lifecycle events over NATS.
//
// Ingestion events are published to:
//   - {prefix}.{operation_id}.started
//   - {prefix}.{operation_id}.progress
//   - {prefix}.{operation_id}.completed
//   - {prefix}.{operation_id}.failed
//
// Source removals are published to {prefix}.removed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "ragd.documents"

// Kind is the lifecycle stage an event reports.
type Kind string

const (
	KindStarted   Kind = "started"
	KindProgress  Kind = "progress"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindRemoved   Kind = "removed"
)

// Event is the JSON payload of every published message.
type Event struct {
	OperationID string    `json:"operation_id"`
	Operation   string    `json:"operation"`
	Kind        Kind      `json:"kind"`
	Source      string    `json:"source"`
	Done        int       `json:"done,omitempty"`
	Total       int       `json:"total,omitempty"`
	DocumentIDs []string  `json:"document_ids,omitempty"`
	Redactions  int       `json:"redactions,omitempty"`
	Removed     int       `json:"removed,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Subject returns the NATS subject for e under prefix.
func (e Event) Subject(prefix string) string {
	if e.Kind == KindRemoved {
		return prefix + ".removed"
	}
	return fmt.Sprintf("%s.%s.%s", prefix, e.OperationID, e.Kind)
}

// NewOperationID returns a fresh operation id.
func NewOperationID() string {
	return uuid.New().String()
}

// Publisher delivers events. Publish errors are reported to the caller,
// which usually logs them and carries on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// NATSPublisher publishes events as JSON on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	logger *zap.Logger
}

// Connect dials url and returns a publisher that owns the connection.
func Connect(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("ragd"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("events: nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("events: nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	p := NewNATSPublisher(nc, prefix, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisher wraps an existing connection. The caller keeps
// ownership of nc.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Kind, err)
	}
	subject := e.Subject(p.prefix)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("events: published", zap.String("subject", subject))
	return nil
}

// Close drains the connection when the publisher owns it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*NATSPublisher)(nil)
)
