package vectorstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrReleased is returned by a Handle between Release and Reopen.
var ErrReleased = errors.New("vector store released")

// Handle is a Store whose backing store can be released and reopened, so the
// data directory can be swapped underneath it during a snapshot restore.
type Handle struct {
	cfg   Config
	mu    sync.RWMutex
	store Store
}

// OpenHandle opens cfg and wraps it in a Handle.
func OpenHandle(cfg Config) (*Handle, error) {
	store, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &Handle{cfg: cfg, store: store}, nil
}

// Release closes the backing store. The in-memory backend has nothing on
// disk to swap and stays open.
func (h *Handle) Release() error {
	if strings.EqualFold(h.cfg.Backend, BackendMemory) {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store == nil {
		return nil
	}
	err := h.store.Close()
	h.store = nil
	return err
}

// Reopen opens the backing store again if it was released.
func (h *Handle) Reopen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store != nil {
		return nil
	}
	store, err := Open(h.cfg)
	if err != nil {
		return err
	}
	h.store = store
	return nil
}

func (h *Handle) current() (Store, func(), error) {
	h.mu.RLock()
	if h.store == nil {
		h.mu.RUnlock()
		return nil, nil, ErrReleased
	}
	return h.store, h.mu.RUnlock, nil
}

func (h *Handle) Collections(ctx context.Context) ([]string, error) {
	s, done, err := h.current()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.Collections(ctx)
}

func (h *Handle) CollectionExists(ctx context.Context, name string) (bool, error) {
	s, done, err := h.current()
	if err != nil {
		return false, err
	}
	defer done()
	return s.CollectionExists(ctx, name)
}

func (h *Handle) RecreateCollection(ctx context.Context, name string, dim int) error {
	s, done, err := h.current()
	if err != nil {
		return err
	}
	defer done()
	return s.RecreateCollection(ctx, name, dim)
}

func (h *Handle) Count(ctx context.Context, name string) (int, error) {
	s, done, err := h.current()
	if err != nil {
		return 0, err
	}
	defer done()
	return s.Count(ctx, name)
}

func (h *Handle) Upsert(ctx context.Context, name string, points []Point) error {
	s, done, err := h.current()
	if err != nil {
		return err
	}
	defer done()
	return s.Upsert(ctx, name, points)
}

func (h *Handle) Scroll(ctx context.Context, name string, offset, limit int) ([]Point, error) {
	s, done, err := h.current()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.Scroll(ctx, name, offset, limit)
}

func (h *Handle) Search(ctx context.Context, name string, vector []float32, limit int) ([]Match, error) {
	s, done, err := h.current()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.Search(ctx, name, vector, limit)
}

// Close closes the backing store for good.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store == nil {
		return nil
	}
	err := h.store.Close()
	h.store = nil
	return err
}
