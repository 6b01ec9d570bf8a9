package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event types
const (
	EventTypeTool     = "tool"
	EventTypeSecurity = "security"
	EventTypeConfig   = "config"
)

// Audit statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type          string                 `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	Actor         string                 `json:"actor,omitempty"` // caller ID
	Role          string                 `json:"role,omitempty"`
	Action        string                 `json:"action"` // e.g. "execute:food.nutrition.addMeal"
	Status        string                 `json:"status"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	TraceID       string                 `json:"trace_id,omitempty"`
}

// AuditLogger handles recording and persisting audit events
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditMu   sync.RWMutex
	auditInst *AuditLogger
)

// NewAuditLogger writes audit events as JSON lines to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// OpenAuditLogger appends audit events to the file at path
func OpenAuditLogger(path string) (*AuditLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	a := NewAuditLogger(file)
	a.file = file
	return a, nil
}

// GetAuditLogger returns the global audit logger instance, stderr unless
// InitAuditLogger was called
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	a := auditInst
	auditMu.RUnlock()
	if a != nil {
		return a
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = NewAuditLogger(os.Stderr)
	}
	return auditInst
}

// InitAuditLogger points the global audit logger at a file
func InitAuditLogger(path string) error {
	a, err := OpenAuditLogger(path)
	if err != nil {
		return err
	}

	auditMu.Lock()
	prev := auditInst
	auditInst = a
	auditMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Record emits an audit event to the log and, when ctx carries a recording
// span, as an OpenTelemetry span event
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("event_time", event.Timestamp).
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("role", event.Role).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.CorrelationID != "" {
		entry.Str("correlation_id", event.CorrelationID)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// RecordTool records a tool execution
func (a *AuditLogger) RecordTool(ctx context.Context, tool, actor, role, status, correlationID string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Type:          EventTypeTool,
		Actor:         actor,
		Role:          role,
		Action:        "execute:" + tool,
		Status:        status,
		CorrelationID: correlationID,
		Metadata:      metadata,
	})
}

// RecordDenial records a permission denial for a tool call
func (a *AuditLogger) RecordDenial(ctx context.Context, tool, actor, role, reason string) {
	a.Record(ctx, AuditEvent{
		Type:     EventTypeSecurity,
		Actor:    actor,
		Role:     role,
		Action:   "deny:" + tool,
		Status:   StatusDenied,
		Metadata: map[string]interface{}{"reason": reason},
	})
}

// RecordConfig records a configuration change
func (a *AuditLogger) RecordConfig(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Type:     EventTypeConfig,
		Actor:    actor,
		Action:   action,
		Status:   StatusSuccess,
		Metadata: metadata,
	})
}

// RecordConfigAudit records a configuration change on the global audit logger
func RecordConfigAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().RecordConfig(ctx, action, actor, metadata)
}
