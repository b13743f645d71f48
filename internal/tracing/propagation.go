package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds the tracing values of ctx to logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()

	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.CycleID != "" {
		lc = lc.Str("cycle_id", tc.CycleID)
	}
	if tc.JobID != "" {
		lc = lc.Str("job_id", tc.JobID)
	}
	if tc.VersionID != "" {
		lc = lc.Str("version_id", tc.VersionID)
	}
	if tc.Actor != "" {
		lc = lc.Str("actor", tc.Actor)
	}

	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source into target where target has none
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.CycleID != "" && GetCycleID(target) == "" {
		target = WithCycleID(target, tc.CycleID)
	}
	if tc.JobID != "" && GetJobID(target) == "" {
		target = WithJobID(target, tc.JobID)
	}
	if tc.Actor != "" && getValue(target, ActorKey) == "" {
		target = WithActor(target, tc.Actor)
	}

	return target
}
