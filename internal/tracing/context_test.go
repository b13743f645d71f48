package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithCycleID(ctx, "cycle-1")
	ctx = WithJobID(ctx, "job-1")
	ctx = WithVersionID(ctx, "v3_20240101_000000")
	ctx = WithActor(ctx, "scheduler")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" || tc.CycleID != "cycle-1" || tc.JobID != "job-1" {
		t.Errorf("unexpected trace context: %+v", tc)
	}
	if tc.VersionID != "v3_20240101_000000" {
		t.Errorf("expected version id, got %q", tc.VersionID)
	}
	if GetActor(ctx) != "scheduler" {
		t.Errorf("expected actor scheduler, got %q", GetActor(ctx))
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" || GetCycleID(ctx) != "" || GetJobID(ctx) != "" || GetVersionID(ctx) != "" {
		t.Error("expected empty values on a bare context")
	}
	if GetActor(ctx) != "cli" {
		t.Errorf("expected default actor cli, got %q", GetActor(ctx))
	}
}

func TestNewCycleContext(t *testing.T) {
	ctx := NewCycleContext(context.Background(), "api")

	if GetTraceID(ctx) == "" {
		t.Error("trace id not generated")
	}
	if GetCycleID(ctx) == "" {
		t.Error("cycle id not generated")
	}
	if GetActor(ctx) != "api" {
		t.Errorf("expected actor api, got %q", GetActor(ctx))
	}

	kept := NewCycleContext(WithTraceID(context.Background(), "existing"), "")
	if GetTraceID(kept) != "existing" {
		t.Error("existing trace id was replaced")
	}
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	parent = WithTraceID(parent, "trace-d")
	parent = WithJobID(parent, "job-d")
	cancel()

	detached := Detach(parent)
	if detached.Err() != nil {
		t.Error("detached context must not inherit cancellation")
	}
	if GetTraceID(detached) != "trace-d" || GetJobID(detached) != "job-d" {
		t.Error("tracing values not carried over")
	}
}
