package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period after the last event before OnChange fires.
const DefaultDebounce = 2 * time.Second

// Config holds watcher configuration
type Config struct {
	Dirs       []string
	Extensions []string // lowercase with dot; empty accepts every file
	Debounce   time.Duration
	OnChange   func(paths []string)
	Logger     zerolog.Logger
}

// Watcher watches data directories recursively and reports debounced batches
// of changed files.
type Watcher struct {
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger
	onChange   func(paths []string)
	debounce   time.Duration
	extensions map[string]bool

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]bool
	stopped bool

	stopCh chan struct{}
	done   chan struct{}
}

// New creates a watcher over every existing directory in cfg.Dirs. Missing
// directories are skipped with a warning.
func New(cfg Config) (*Watcher, error) {
	if cfg.OnChange == nil {
		return nil, errors.New("OnChange callback is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}

	w := &Watcher{
		watcher:    fsw,
		logger:     cfg.Logger,
		onChange:   cfg.OnChange,
		debounce:   debounce,
		extensions: exts,
		pending:    make(map[string]bool),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	watched := 0
	for _, dir := range cfg.Dirs {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			w.logger.Warn().Str("dir", dir).Msg("Watch directory missing, skipping")
			continue
		}
		if err := w.addTree(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
		watched++
	}
	if watched == 0 {
		_ = fsw.Close()
		return nil, errors.New("no existing directories to watch")
	}

	go w.run()
	return w, nil
}

// addTree registers dir and all of its subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

// WatchList returns the directories currently registered.
func (w *Watcher) WatchList() []string {
	list := w.watcher.WatchList()
	sort.Strings(list)
	return list
}

// Stop stops the watcher and drops any pending batch.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("File watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.accepts(event.Name) {
		return
	}

	w.logger.Debug().
		Str("file", filepath.Base(event.Name)).
		Str("op", event.Op.String()).
		Msg("File change detected")
	w.schedule(event.Name)
}

func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(base))]
}

// schedule debounces change notifications
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.stopped || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)
	w.logger.Info().Int("files", len(paths)).Msg("Data changes settled")
	w.onChange(paths)
}
