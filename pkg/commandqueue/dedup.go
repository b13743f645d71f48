package commandqueue

import (
	"context"
	"sync"
	"time"
)

type dedupEntry struct {
	jobID     string
	timestamp time.Time
}

// dedupCache maps request ids to job ids for a bounded time
type dedupCache struct {
	entries map[string]dedupEntry
	ttl     time.Duration
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func newDedupCache(ctx context.Context, ttl time.Duration) *dedupCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(ctx)
	cache := &dedupCache{
		entries: make(map[string]dedupEntry),
		ttl:     ttl,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go cache.cleanup()
	return cache
}

func (dc *dedupCache) Stop() {
	dc.cancel()
}

// Get returns the job id recorded for requestID if it has not expired
func (dc *dedupCache) Get(requestID string) (string, bool) {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	entry, exists := dc.entries[requestID]
	if !exists || time.Since(entry.timestamp) > dc.ttl {
		return "", false
	}
	return entry.jobID, true
}

func (dc *dedupCache) Set(requestID, jobID string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.entries[requestID] = dedupEntry{jobID: jobID, timestamp: time.Now()}
}

func (dc *dedupCache) cleanup() {
	defer close(dc.done)
	interval := dc.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-dc.ctx.Done():
			return
		case <-ticker.C:
			dc.mu.Lock()
			now := time.Now()
			for requestID, entry := range dc.entries {
				if now.Sub(entry.timestamp) > dc.ttl {
					delete(dc.entries, requestID)
				}
			}
			dc.mu.Unlock()
		}
	}
}

func (dc *dedupCache) Size() int {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return len(dc.entries)
}
