package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithCycleID(ctx, "cycle-456")
	ctx = WithJobID(ctx, "job-789")
	ctx = WithActor(ctx, "watcher")

	var buf bytes.Buffer
	logger := PropagateToLogger(ctx, zerolog.New(&buf))
	logger.Info().Msg("test message")

	output := buf.String()
	for _, want := range []string{"trace-123", "cycle-456", "job-789", "watcher"} {
		if !strings.Contains(output, want) {
			t.Errorf("%s not in log output: %s", want, output)
		}
	}
	if strings.Contains(output, "version_id") {
		t.Error("unset version id must not be logged")
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-xyz")

	var buf bytes.Buffer
	logger := LoggerFromContext(ctx, zerolog.New(&buf))
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), "trace-xyz") {
		t.Error("Trace ID not in log output")
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-source")
	source = WithCycleID(source, "cycle-source")

	target := WithCycleID(context.Background(), "cycle-target")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-source" {
		t.Error("trace id not merged")
	}
	if GetCycleID(merged) != "cycle-target" {
		t.Error("existing cycle id was overwritten")
	}
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), TracerLifecycle, "test.span")
	defer span.End()

	if ctx == nil {
		t.Fatal("nil context")
	}
	FailSpan(span, nil)
}
