package adminauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one structured security event. Dependency failures carry
// their full detail here and only here; clients see generic messages.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AdminID   string            `json:"admin_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Audit event types emitted by the engine.
const (
	EventLoginSuccess       = "login.success"
	EventLoginFailure       = "login.failure"
	EventLoginLockedOut     = "login.locked_out"
	EventLoginRateLimited   = "login.rate_limited"
	EventCodeIssued         = "login.code_issued"
	EventCodeResent         = "login.code_resent"
	EventCodeVerified       = "login.code_verified"
	EventCodeRejected       = "login.code_rejected"
	EventSessionIssued      = "session.issued"
	EventSessionRefreshed   = "session.refreshed"
	EventLogout             = "session.logout"
	EventTokenRevoked       = "session.token_revoked"
	EventMailDispatchFailed = "mail.dispatch_failed"
	EventBackendDegraded    = "backend.degraded"
)

// AuditSink receives audit events. Implementations must be safe for
// concurrent use and should never block for long; the dispatcher already
// decouples them from request handling.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel, for tests and custom
// pipelines.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

// Emit implements AuditSink.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink on w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
