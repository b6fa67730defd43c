package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject decision records are published on.
const DefaultSubject = "ontomap.audit.decision"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each decision record as a JSON message.
type NATSSink struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	retry   retry.Config
	logger  *slog.Logger
}

// NATSOption configures a NATSSink.
type NATSOption func(*NATSSink)

// WithSubject overrides the publish subject.
func WithSubject(subject string) NATSOption {
	return func(s *NATSSink) {
		if subject != "" {
			s.subject = subject
		}
	}
}

// WithRetryConfig sets the publish retry policy.
func WithRetryConfig(cfg retry.Config) NATSOption {
	return func(s *NATSSink) {
		s.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) NATSOption {
	return func(s *NATSSink) {
		s.logger = logger
	}
}

// NewNATSSink publishes through pub.
func NewNATSSink(pub Publisher, opts ...NATSOption) *NATSSink {
	s := &NATSSink{
		pub:     pub,
		subject: DefaultSubject,
		retry:   retry.Quick(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectNATSSink dials url and returns a sink owning the connection.
func ConnectNATSSink(url string, opts ...NATSOption) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("ontomap-audit"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	s := NewNATSSink(conn, opts...)
	s.conn = conn
	return s, nil
}

// Append publishes records in order. Marshal failures are not retried.
func (s *NATSSink) Append(ctx context.Context, records []DecisionRecord) error {
	for _, r := range records {
		err := retry.Do(ctx, s.retry, func() error {
			data, err := json.Marshal(r)
			if err != nil {
				return retry.NonRetryable(fmt.Errorf("marshal decision record: %w", err))
			}
			return s.pub.Publish(s.subject, data)
		})
		if err != nil {
			s.logger.Warn("Failed to publish decision record",
				"subject", s.subject,
				"property", r.PropertyIRI,
				"error", err,
				"retryable", !retry.IsNonRetryable(err))
			return fmt.Errorf("publish decision record: %w", err)
		}
	}
	if s.conn != nil {
		return s.conn.Flush()
	}
	return nil
}

// Close drains the owned connection, if any.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
