// Package audit records one decision per property per match call.
//
// Records are append-only. The engine never reads them back; sinks persist
// them to a line-oriented log file, a SQLite table, or a NATS subject.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a decision record.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Sentinel values used when a record has nothing to name.
const (
	GroupUngrouped = "ungrouped"
	FieldNone      = "none"
)

// Result values.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "match failed"
)

// TimestampLayout is the timestamp format used in log lines.
const TimestampLayout = "2006-01-02 15:04:05"

// DecisionRecord is the audit entry for one property in one match call.
type DecisionRecord struct {
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	Level         Level     `json:"level"`
	Mode          string    `json:"mode"`
	PropertyIRI   string    `json:"property_iri"`
	PropertyLabel string    `json:"property_label"`
	GroupName     string    `json:"group_name"`
	Field         string    `json:"field"`
	Result        string    `json:"result"`
	Reason        string    `json:"reason"`
	Score         *float64  `json:"score,omitempty"`
}

// Line renders the record in the audit log line format.
func (r DecisionRecord) Line() string {
	return fmt.Sprintf("%s：%s %s %s %s %s %s",
		r.Level,
		r.Timestamp.Format(TimestampLayout),
		orDefault(r.PropertyLabel, r.PropertyIRI),
		orDefault(r.GroupName, GroupUngrouped),
		orDefault(r.Field, FieldNone),
		r.Result,
		oneLine(r.Reason),
	)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Sink persists decision records. Implementations must be safe for
// concurrent use by overlapping match calls.
type Sink interface {
	Append(ctx context.Context, records []DecisionRecord) error
}

// MultiSink fans records out to several sinks. Every sink is attempted;
// failures are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a sink writing to each non-nil sink in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Append writes records to every sink.
func (m *MultiSink) Append(ctx context.Context, records []DecisionRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// MemorySink keeps records in memory. Useful in tests and for the API's
// last-run view.
type MemorySink struct {
	mu      sync.Mutex
	records []DecisionRecord
}

// Append stores copies of records.
func (m *MemorySink) Append(_ context.Context, records []DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

// Records returns a snapshot of everything appended so far.
func (m *MemorySink) Records() []DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DecisionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Reset discards stored records.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}
