package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/internal/tracing"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// LaneLifecycle is the serial lane every mutating lifecycle job runs on.
const LaneLifecycle = "lifecycle"

// Event types
const (
	EventEnqueued  = "enqueued"
	EventStarted   = "started"
	EventCompleted = "completed"

	// EventAll subscribes a handler to every event type.
	EventAll = "*"
)

var (
	ErrLaneCleared = errors.New("lane cleared")
	ErrLaneReset   = errors.New("lane reset")
	ErrClosed      = errors.New("queue closed")
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// TaskOptions provides configuration for task execution
type TaskOptions struct {
	Kind      string // job kind shown in the registry, e.g. "rebuild"
	RequestID string // submissions with the same request id within the dedup TTL share one job
	WarnAfter time.Duration
	OnWait    func(wait time.Duration, queuePos int)
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is the registry view of a submitted task.
type Job struct {
	ID         string      `json:"id"`
	Lane       string      `json:"lane"`
	Kind       string      `json:"kind,omitempty"`
	Status     JobStatus   `json:"status"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool { return j.Status == JobSucceeded || j.Status == JobFailed }

type taskRecord struct {
	job        *Job
	task       Task
	ctx        context.Context
	generation int
	options    TaskOptions
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

type laneState struct {
	generation  int
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// EventHandler is a function that handles queue events
type EventHandler func(event Event)

// Event represents a queue event
type Event struct {
	Type  string                 `json:"type"`
	Lane  string                 `json:"lane"`
	JobID string                 `json:"job_id"`
	Kind  string                 `json:"kind,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Config holds queue configuration
type Config struct {
	Lanes    map[string]int // lane name to concurrency; the lifecycle lane is always serial
	MaxJobs  int            // finished jobs kept in the registry
	DedupTTL time.Duration
	Logger   zerolog.Logger
}

// CommandQueue provides lane-based task serialization with a job registry.
type CommandQueue struct {
	lanes   map[string]*laneState
	mu      sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
	dedup   *dedupCache
	maxJobs int

	jobs     map[string]*Job
	finished []string
	jobsMu   sync.RWMutex

	eventHandlers map[string][]EventHandler
	eventMu       sync.RWMutex
}

// New creates a CommandQueue with a serial lifecycle lane.
func New(cfg Config) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 100
	}

	cq := &CommandQueue{
		lanes:         make(map[string]*laneState),
		ctx:           ctx,
		cancel:        cancel,
		logger:        cfg.Logger,
		dedup:         newDedupCache(ctx, cfg.DedupTTL),
		maxJobs:       maxJobs,
		jobs:          make(map[string]*Job),
		eventHandlers: make(map[string][]EventHandler),
	}

	cq.initLane(LaneLifecycle, 1)
	for lane, n := range cfg.Lanes {
		if lane == LaneLifecycle {
			continue
		}
		cq.initLane(lane, n)
	}
	return cq
}

func (cq *CommandQueue) initLane(lane string, concurrency int) *laneState {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	if ls, exists := cq.lanes[lane]; exists {
		return ls
	}
	if concurrency < 1 {
		concurrency = 1
	}
	ls := &laneState{concurrency: concurrency}
	cq.lanes[lane] = ls
	cq.logger.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane initialized")
	return ls
}

func (cq *CommandQueue) lane(lane string) *laneState {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if exists {
		return ls
	}
	return cq.initLane(lane, 1)
}

// Enqueue runs a task on a lane and waits for its result.
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task, options *TaskOptions) (interface{}, error) {
	record, _, err := cq.submit(ctx, lane, task, options)
	if err != nil {
		return nil, err
	}

	select {
	case result := <-record.result:
		return result.value, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit queues a task and returns its job id without waiting. A repeated
// RequestID within the dedup TTL returns the id of the earlier job.
func (cq *CommandQueue) Submit(ctx context.Context, lane string, task Task, options *TaskOptions) (string, error) {
	record, id, err := cq.submit(ctx, lane, task, options)
	if err != nil {
		return "", err
	}
	if record == nil {
		return id, nil
	}
	return record.job.ID, nil
}

func (cq *CommandQueue) submit(ctx context.Context, lane string, task Task, options *TaskOptions) (*taskRecord, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cq.ctx.Err() != nil {
		return nil, "", ErrClosed
	}

	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}
	if opts.RequestID != "" {
		if id, ok := cq.dedup.Get(opts.RequestID); ok {
			return nil, id, nil
		}
	}

	ctx, span := tracing.StartSpan(ctx, tracing.TracerQueue, "commandqueue.enqueue", attribute.String("lane", lane))
	defer span.End()

	id, err := gonanoid.New()
	if err != nil {
		return nil, "", fmt.Errorf("generate job id: %w", err)
	}
	job := &Job{ID: "job_" + id, Lane: lane, Kind: opts.Kind, Status: JobQueued, EnqueuedAt: time.Now()}
	ctx = tracing.WithJobID(tracing.Detach(ctx), job.ID)
	span.SetAttributes(attribute.String("job_id", job.ID))

	cq.jobsMu.Lock()
	cq.jobs[job.ID] = job
	cq.jobsMu.Unlock()
	if opts.RequestID != "" {
		cq.dedup.Set(opts.RequestID, job.ID)
	}

	ls := cq.lane(lane)
	record := &taskRecord{
		job:     job,
		task:    task,
		ctx:     ctx,
		options: opts,
		result:  make(chan taskResult, 1),
	}

	ls.mu.Lock()
	record.generation = ls.generation
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	enqueueLogger := tracing.LoggerFromContext(ctx, cq.logger)
	enqueueLogger.Debug().
		Str("lane", lane).
		Str("kind", opts.Kind).
		Int("queue_size", queueSize).
		Msg("Job enqueued")

	observability.RecordQueueEnqueue(lane, queueSize)
	cq.emit(Event{Type: EventEnqueued, Lane: lane, JobID: job.ID, Kind: opts.Kind, Data: map[string]interface{}{
		"queue_size": queueSize,
	}})

	if opts.WarnAfter > 0 {
		go cq.startWarnTimer(record, lane)
	}

	go cq.processLane(lane)
	return record, job.ID, nil
}

func (cq *CommandQueue) processLane(lane string) {
	ls := cq.lane(lane)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]

		if record.generation != ls.generation {
			cq.reject(record, ErrLaneReset)
			continue
		}

		ls.running++
		cq.wg.Add(1)
		go cq.executeTask(lane, record)
	}
	observability.SetQueueSize(lane, len(ls.queue))
}

func (cq *CommandQueue) executeTask(lane string, record *taskRecord) {
	defer cq.wg.Done()

	taskCtx, span := tracing.StartSpan(record.ctx, tracing.TracerQueue, "commandqueue.execute",
		attribute.String("lane", lane),
		attribute.String("job_id", record.job.ID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(taskCtx, cq.logger)

	runCtx, cancel := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()
	cq.jobsMu.Lock()
	record.job.Status = JobRunning
	record.job.StartedAt = &startTime
	cq.jobsMu.Unlock()
	logger.Debug().Str("lane", lane).Str("kind", record.job.Kind).Msg("Job started")
	cq.emit(Event{Type: EventStarted, Lane: lane, JobID: record.job.ID, Kind: record.job.Kind})

	value, err := cq.run(runCtx, record.task)
	duration := time.Since(startTime)

	ls := cq.lane(lane)
	ls.mu.Lock()
	ls.running--
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	cq.finish(record.job, value, err)
	record.result <- taskResult{value: value, err: err}
	close(record.result)

	if err != nil {
		tracing.FailSpan(span, err)
		logger.Error().Err(err).Str("lane", lane).Str("kind", record.job.Kind).Dur("duration", duration).Msg("Job failed")
	} else {
		logger.Debug().Str("lane", lane).Str("kind", record.job.Kind).Dur("duration", duration).Msg("Job completed")
	}

	observability.RecordQueueCompletion(lane, duration, err == nil, queueSize)
	cq.emit(Event{Type: EventCompleted, Lane: lane, JobID: record.job.ID, Kind: record.job.Kind, Data: map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"success":     err == nil,
		"status":      string(cq.statusOf(record.job.ID)),
	}})

	go cq.processLane(lane)
}

// run executes a task, turning a panic into an error so the lane keeps draining.
func (cq *CommandQueue) run(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (cq *CommandQueue) finish(job *Job, value interface{}, err error) {
	now := time.Now()

	cq.jobsMu.Lock()
	defer cq.jobsMu.Unlock()

	job.FinishedAt = &now
	job.Result = value
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobSucceeded
	}

	cq.finished = append(cq.finished, job.ID)
	for len(cq.finished) > cq.maxJobs {
		delete(cq.jobs, cq.finished[0])
		cq.finished = cq.finished[1:]
	}
}

// reject fails a record that never started. Callers hold the lane lock.
func (cq *CommandQueue) reject(record *taskRecord, err error) {
	cq.finish(record.job, nil, err)
	record.result <- taskResult{err: err}
	close(record.result)
	cq.emit(Event{Type: EventCompleted, Lane: record.job.Lane, JobID: record.job.ID, Kind: record.job.Kind, Data: map[string]interface{}{
		"success": false,
		"status":  string(JobFailed),
	}})
}

func (cq *CommandQueue) statusOf(id string) JobStatus {
	cq.jobsMu.RLock()
	defer cq.jobsMu.RUnlock()
	if job, ok := cq.jobs[id]; ok {
		return job.Status
	}
	return ""
}

func (cq *CommandQueue) startWarnTimer(record *taskRecord, lane string) {
	timer := time.NewTimer(record.options.WarnAfter)
	defer timer.Stop()

	select {
	case <-timer.C:
		ls := cq.lane(lane)
		ls.mu.Lock()
		queuePos := -1
		for i, r := range ls.queue {
			if r == record {
				queuePos = i
				break
			}
		}
		ls.mu.Unlock()

		if queuePos >= 0 {
			wait := time.Since(record.job.EnqueuedAt)
			cq.logger.Warn().
				Str("lane", lane).
				Str("job_id", record.job.ID).
				Dur("wait", wait).
				Int("queue_pos", queuePos).
				Msg("Job waiting longer than expected")

			if record.options.OnWait != nil {
				record.options.OnWait(wait, queuePos)
			}
		}
	case <-cq.ctx.Done():
	}
}

// Job returns a copy of the registry entry for id.
func (cq *CommandQueue) Job(id string) (Job, bool) {
	cq.jobsMu.RLock()
	defer cq.jobsMu.RUnlock()
	job, ok := cq.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns all known jobs, newest first.
func (cq *CommandQueue) Jobs() []Job {
	cq.jobsMu.RLock()
	out := make([]Job, 0, len(cq.jobs))
	for _, job := range cq.jobs {
		out = append(out, *job)
	}
	cq.jobsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.After(out[j].EnqueuedAt) })
	return out
}

// GetQueueSize returns the number of queued tasks for a lane
func (cq *CommandQueue) GetQueueSize(lane string) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// GetRunningCount returns the number of currently executing tasks for a lane
func (cq *CommandQueue) GetRunningCount(lane string) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// Busy reports whether a lane has queued or running tasks.
func (cq *CommandQueue) Busy(lane string) bool {
	return cq.GetQueueSize(lane) > 0 || cq.GetRunningCount(lane) > 0
}

// GetStats returns statistics for all lanes
func (cq *CommandQueue) GetStats() map[string]map[string]int {
	cq.mu.RLock()
	defer cq.mu.RUnlock()

	stats := make(map[string]map[string]int)
	for lane, ls := range cq.lanes {
		ls.mu.Lock()
		stats[lane] = map[string]int{
			"queued":      len(ls.queue),
			"running":     ls.running,
			"concurrency": ls.concurrency,
		}
		ls.mu.Unlock()
	}
	return stats
}

// ClearLane fails all queued tasks in a lane. Running tasks are not affected.
func (cq *CommandQueue) ClearLane(lane string) int {
	return cq.drop(lane, ErrLaneCleared, false)
}

// ResetLane bumps the lane generation and fails everything still queued.
func (cq *CommandQueue) ResetLane(lane string) {
	cq.drop(lane, ErrLaneReset, true)
}

func (cq *CommandQueue) drop(lane string, reason error, bump bool) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if bump {
		ls.generation++
	}
	count := len(ls.queue)
	for _, record := range ls.queue {
		cq.reject(record, reason)
	}
	ls.queue = nil

	cq.logger.Info().Str("lane", lane).Int("dropped", count).Err(reason).Msg("Lane drained")
	observability.SetQueueSize(lane, 0)
	return count
}

// WaitForActive waits until no lane has running tasks.
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		idle := true
		cq.mu.RLock()
		for _, ls := range cq.lanes {
			ls.mu.Lock()
			if ls.running > 0 {
				idle = false
			}
			ls.mu.Unlock()
		}
		cq.mu.RUnlock()

		if idle {
			return true
		}
		if time.Now().After(deadline) {
			cq.logger.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active jobs")
			return false
		}
		<-ticker.C
	}
}

// Close cancels running tasks and waits for them to return.
func (cq *CommandQueue) Close() error {
	cq.cancel()
	cq.dedup.Stop()
	cq.wg.Wait()
	return nil
}

// On registers an event handler for a specific event type, or EventAll.
func (cq *CommandQueue) On(eventType string, handler EventHandler) {
	cq.eventMu.Lock()
	defer cq.eventMu.Unlock()
	cq.eventHandlers[eventType] = append(cq.eventHandlers[eventType], handler)
}

// Off removes all handlers for the event type
func (cq *CommandQueue) Off(eventType string) {
	cq.eventMu.Lock()
	defer cq.eventMu.Unlock()
	delete(cq.eventHandlers, eventType)
}

// emit calls handlers synchronously
func (cq *CommandQueue) emit(event Event) {
	cq.eventMu.RLock()
	handlers := append([]EventHandler{}, cq.eventHandlers[event.Type]...)
	handlers = append(handlers, cq.eventHandlers[EventAll]...)
	cq.eventMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
