package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/commandqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu        sync.Mutex
	busy      bool
	err       error
	submitted []*commandqueue.TaskOptions
	actors    []string
}

func (f *fakeQueue) Busy(lane string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeQueue) Submit(ctx context.Context, lane string, task commandqueue.Task, options *commandqueue.TaskOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, options)
	f.actors = append(f.actors, tracing.GetActor(ctx))
	return "job_1", nil
}

func noop(ctx context.Context) (interface{}, error) { return nil, nil }

func TestTick(t *testing.T) {
	q := &fakeQueue{}
	s, err := New(Config{Queue: q, Task: noop, Logger: zerolog.Nop()})
	require.NoError(t, err)

	id, skipped, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, "job_1", id)
	require.Len(t, q.submitted, 1)
	assert.Equal(t, "rebuild", q.submitted[0].Kind)
	assert.Equal(t, "scheduler", q.actors[0])

	q.busy = true
	id, skipped, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Empty(t, id)
	assert.Len(t, q.submitted, 1)

	q.busy = false
	q.err = errors.New("queue closed")
	_, _, err = s.Tick(context.Background())
	assert.Error(t, err)
}

func TestTick_RealQueueSkipsWhileBusy(t *testing.T) {
	cq := commandqueue.New(commandqueue.Config{Logger: zerolog.Nop()})
	defer cq.Close()

	release := make(chan struct{})
	_, err := cq.Submit(context.Background(), commandqueue.LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	}, nil)
	require.NoError(t, err)

	s, err := New(Config{Queue: cq, Task: noop, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, skipped, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, skipped)

	close(release)
	require.Eventually(t, func() bool { return !cq.Busy(commandqueue.LaneLifecycle) }, time.Second, 5*time.Millisecond)

	id, skipped, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.NotEmpty(t, id)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Task: noop})
	assert.Error(t, err)

	_, err = New(Config{Queue: &fakeQueue{}, Task: noop, Expr: "not a cron"})
	assert.Error(t, err)

	_, err = New(Config{Queue: &fakeQueue{}, Task: noop, Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestParseExpr(t *testing.T) {
	for _, expr := range []string{"0 3 * * *", "*/15 * * * *", "@daily", "@every 1h"} {
		assert.NoError(t, ParseExpr(expr), expr)
	}
	for _, expr := range []string{"", "0 3 * *", "61 * * * *"} {
		assert.Error(t, ParseExpr(expr), expr)
	}
}

func TestStartStopAndNext(t *testing.T) {
	s, err := New(Config{Queue: &fakeQueue{}, Task: noop, Expr: "@hourly", Timezone: "UTC", Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Start()
	next := s.Next()
	assert.False(t, next.IsZero())
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), next, 31*time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
