package commandqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) *CommandQueue {
	t.Helper()
	cq := New(Config{Lanes: map[string]int{"reads": 4}, Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = cq.Close() })
	return cq
}

func waitJob(t *testing.T, cq *CommandQueue, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = cq.Job(id)
		return ok && job.Done()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestEnqueue(t *testing.T) {
	cq := newQueue(t)

	result, err := cq.Enqueue(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return "result", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "result", result)

	expected := errors.New("task failed")
	result, err = cq.Enqueue(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return nil, expected
	}, nil)
	assert.ErrorIs(t, err, expected)
	assert.Nil(t, result)
}

func TestLifecycleLaneIsSerial(t *testing.T) {
	cq := New(Config{Lanes: map[string]int{LaneLifecycle: 8}, Logger: zerolog.Nop()})
	defer cq.Close()

	var (
		mu      sync.Mutex
		running int
		peak    int
		order   []int
	)
	var ids []string
	for i := 0; i < 5; i++ {
		i := i
		id, err := cq.Submit(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			order = append(order, i)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil, nil
		}, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		waitJob(t, cq, id)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestConcurrentLane(t *testing.T) {
	cq := newQueue(t)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	for i := 0; i < 3; i++ {
		_, err := cq.Submit(context.Background(), "reads", func(ctx context.Context) (interface{}, error) {
			started.Done()
			<-release
			return nil, nil
		}, nil)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		started.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reads lane did not run tasks concurrently")
	}
	assert.Equal(t, 3, cq.GetRunningCount("reads"))
	close(release)
	assert.True(t, cq.WaitForActive(2*time.Second))
}

func TestJobRegistry(t *testing.T) {
	cq := newQueue(t)

	release := make(chan struct{})
	id, err := cq.Submit(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		<-release
		return map[string]int{"points": 3}, nil
	}, &TaskOptions{Kind: "rebuild"})
	require.NoError(t, err)
	assert.Regexp(t, `^job_`, id)

	require.Eventually(t, func() bool {
		job, _ := cq.Job(id)
		return job.Status == JobRunning
	}, time.Second, 5*time.Millisecond)
	assert.True(t, cq.Busy(LaneLifecycle))

	queuedID, err := cq.Submit(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	}, &TaskOptions{Kind: "rollback"})
	require.NoError(t, err)
	job, ok := cq.Job(queuedID)
	require.True(t, ok)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, 1, cq.GetQueueSize(LaneLifecycle))

	close(release)

	done := waitJob(t, cq, id)
	assert.Equal(t, JobSucceeded, done.Status)
	assert.Equal(t, "rebuild", done.Kind)
	assert.Equal(t, map[string]int{"points": 3}, done.Result)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.FinishedAt)

	failed := waitJob(t, cq, queuedID)
	assert.Equal(t, JobFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)

	jobs := cq.Jobs()
	require.Len(t, jobs, 2)

	_, ok = cq.Job("job_missing")
	assert.False(t, ok)
}

func TestJobRegistry_Retention(t *testing.T) {
	cq := New(Config{MaxJobs: 2, Logger: zerolog.Nop()})
	defer cq.Close()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := cq.Submit(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
			return nil, nil
		}, nil)
		require.NoError(t, err)
		waitJob(t, cq, id)
		ids = append(ids, id)
	}

	_, ok := cq.Job(ids[0])
	assert.False(t, ok)
	_, ok = cq.Job(ids[3])
	assert.True(t, ok)
}

func TestSubmit_RequestIDDedup(t *testing.T) {
	cq := newQueue(t)
	task := func(ctx context.Context) (interface{}, error) { return nil, nil }

	first, err := cq.Submit(context.Background(), LaneLifecycle, task, &TaskOptions{RequestID: "req-1"})
	require.NoError(t, err)
	second, err := cq.Submit(context.Background(), LaneLifecycle, task, &TaskOptions{RequestID: "req-1"})
	require.NoError(t, err)
	third, err := cq.Submit(context.Background(), LaneLifecycle, task, &TaskOptions{RequestID: "req-2"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, cq.dedup.Size())
}

func TestPanicFailsJob(t *testing.T) {
	cq := newQueue(t)

	_, err := cq.Enqueue(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		panic("unexpected")
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected")

	result, err := cq.Enqueue(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return "still running", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "still running", result)
}

func TestEvents(t *testing.T) {
	cq := newQueue(t)

	var mu sync.Mutex
	var types []string
	cq.On(EventAll, func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})
	var completed []Event
	cq.On(EventCompleted, func(e Event) {
		mu.Lock()
		completed = append(completed, e)
		mu.Unlock()
	})

	_, err := cq.Enqueue(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}, &TaskOptions{Kind: "rebuild"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventEnqueued, EventStarted, EventCompleted}, types)
	assert.Equal(t, "rebuild", completed[0].Kind)
	assert.Equal(t, true, completed[0].Data["success"])

	cq.Off(EventAll)
}

func TestClearAndResetLane(t *testing.T) {
	cq := newQueue(t)

	release := make(chan struct{})
	blocker, err := cq.Submit(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	}, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return cq.GetRunningCount(LaneLifecycle) == 1 }, time.Second, 5*time.Millisecond)

	noop := func(ctx context.Context) (interface{}, error) { return nil, nil }
	a, _ := cq.Submit(context.Background(), LaneLifecycle, noop, nil)
	b, _ := cq.Submit(context.Background(), LaneLifecycle, noop, nil)
	assert.Equal(t, 2, cq.ClearLane(LaneLifecycle))

	for _, id := range []string{a, b} {
		job := waitJob(t, cq, id)
		assert.Equal(t, ErrLaneCleared.Error(), job.Error)
	}

	c, _ := cq.Submit(context.Background(), LaneLifecycle, noop, nil)
	cq.ResetLane(LaneLifecycle)
	assert.Equal(t, ErrLaneReset.Error(), waitJob(t, cq, c).Error)

	close(release)
	assert.Equal(t, JobSucceeded, waitJob(t, cq, blocker).Status)

	stats := cq.GetStats()
	assert.Equal(t, 1, stats[LaneLifecycle]["concurrency"])
	assert.Equal(t, 4, stats["reads"]["concurrency"])
}

func TestEnqueue_CallerCancellation(t *testing.T) {
	cq := newQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := cq.Enqueue(ctx, LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_RejectsSubmissions(t *testing.T) {
	cq := New(Config{Logger: zerolog.Nop()})
	require.NoError(t, cq.Close())

	_, err := cq.Submit(context.Background(), LaneLifecycle, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDedupCache_Shutdown(t *testing.T) {
	cache := newDedupCache(context.Background(), 50*time.Millisecond)
	cache.Set("a", "job_1")
	id, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "job_1", id)

	cache.Stop()
	select {
	case <-cache.done:
	case <-time.After(time.Second):
		t.Fatal("dedup cache cleanup did not stop")
	}
}
