package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// CycleIDKey identifies one rebuild cycle
	CycleIDKey ContextKey = "cycle_id"
	// JobIDKey identifies a queued lifecycle job
	JobIDKey ContextKey = "job_id"
	// VersionIDKey is the memory version an operation targets
	VersionIDKey ContextKey = "version_id"
	// ActorKey names who started the operation (cli, api, scheduler, watcher)
	ActorKey ContextKey = "actor"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	CycleID   string
	JobID     string
	VersionID string
	Actor     string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewCycleID generates a new rebuild cycle ID
func NewCycleID() string {
	return uuid.New().String()
}

func withValue(ctx context.Context, key ContextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func getValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withValue(ctx, TraceIDKey, traceID)
}

func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return withValue(ctx, CycleIDKey, cycleID)
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return withValue(ctx, JobIDKey, jobID)
}

func WithVersionID(ctx context.Context, versionID string) context.Context {
	return withValue(ctx, VersionIDKey, versionID)
}

func WithActor(ctx context.Context, actor string) context.Context {
	return withValue(ctx, ActorKey, actor)
}

func GetTraceID(ctx context.Context) string   { return getValue(ctx, TraceIDKey) }
func GetCycleID(ctx context.Context) string   { return getValue(ctx, CycleIDKey) }
func GetJobID(ctx context.Context) string     { return getValue(ctx, JobIDKey) }
func GetVersionID(ctx context.Context) string { return getValue(ctx, VersionIDKey) }

// GetActor returns the actor stored in ctx, or "cli" when none is set.
func GetActor(ctx context.Context) string {
	if actor := getValue(ctx, ActorKey); actor != "" {
		return actor
	}
	return "cli"
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		CycleID:   GetCycleID(ctx),
		JobID:     GetJobID(ctx),
		VersionID: GetVersionID(ctx),
		Actor:     getValue(ctx, ActorKey),
	}
}

// NewContext copies tc into ctx
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.CycleID != "" {
		ctx = WithCycleID(ctx, tc.CycleID)
	}
	if tc.JobID != "" {
		ctx = WithJobID(ctx, tc.JobID)
	}
	if tc.VersionID != "" {
		ctx = WithVersionID(ctx, tc.VersionID)
	}
	if tc.Actor != "" {
		ctx = WithActor(ctx, tc.Actor)
	}
	return ctx
}

// NewCycleContext starts a rebuild cycle with fresh trace and cycle ids.
func NewCycleContext(ctx context.Context, actor string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithCycleID(ctx, NewCycleID())
	if actor != "" {
		ctx = WithActor(ctx, actor)
	}
	return ctx
}

// Detach returns a background context carrying the tracing values of ctx,
// for work that must outlive the request that started it.
func Detach(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
