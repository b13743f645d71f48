// Package commandqueue provides lane-based job execution with FIFO ordering per lane
// and a registry of submitted jobs.
//
// Invariants:
//   - Jobs in the same lane start in FIFO order; the lifecycle lane runs one job at a time.
//   - Every submitted job is visible in the registry as queued, running, succeeded or failed
//     until it ages out of the finished-job window.
//   - Queue activity is observable through enqueued/started/completed events and metrics.
//
// Usage:
//
//	queue := commandqueue.New(commandqueue.Config{Logger: logger})
//	defer queue.Close()
//	id, err := queue.Submit(ctx, commandqueue.LaneLifecycle, func(ctx context.Context) (interface{}, error) {
//		return svc.Rebuild(ctx, opts)
//	}, &commandqueue.TaskOptions{Kind: "rebuild"})
package commandqueue
