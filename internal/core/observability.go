package core

import (
	"context"
	"strings"
	"time"

	"scodata/pkg/domain"
)

// Logger is the structured logging surface used by the service. Key/value
// pairs follow the message.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies timestamps for created/started/finished fields.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Operation identifies one service call. Name is "<collection>.<verb>";
// Resource is the resource acted on, or the owner for attachment calls. Its ID
// is empty for creates and listings.
type Operation struct {
	Name     string
	Resource domain.Ref
}

// Collection returns the part of Name before the last dot.
func (o Operation) Collection() string {
	if i := strings.LastIndexByte(o.Name, '.'); i >= 0 {
		return o.Name[:i]
	}
	return ""
}

// Verb returns the part of Name after the last dot.
func (o Operation) Verb() string {
	return o.Name[strings.LastIndexByte(o.Name, '.')+1:]
}

// Mutation reports whether the call can change stored state.
func (o Operation) Mutation() bool {
	switch o.Verb() {
	case "get", "list", "count", "get_member", "list_members", "get_attachment", "list_attachments", "open":
		return false
	}
	return true
}

// MetricsRecorder observes the outcome of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, op Operation, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, Operation, bool, time.Duration) {}

// Tracer starts a span per service operation.
type Tracer interface {
	Start(ctx context.Context, op Operation) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation error (nil on success).
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ Operation) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// AuditStatus is the outcome recorded for an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one mutating operation.
type AuditEntry struct {
	Operation    string
	ResourceType domain.ResourceType
	ResourceID   string
	Status       AuditStatus
	Error        string
	Duration     time.Duration
	Timestamp    time.Time
}

// AuditRecorder receives an entry for every create, update, transition and delete.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}
