package changetracker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/harun/twinself/pkg/fingerprint"
	"github.com/harun/twinself/pkg/fsutil"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/rs/zerolog"
)

// Category names a data category tracked by the cache
type Category string

const (
	CategorySemantic     Category = "semantic"
	CategoryEpisodic     Category = "episodic"
	CategoryProcedural   Category = "procedural"
	CategorySystemPrompt Category = "system_prompt"
)

// Categories lists every tracked category.
var Categories = []Category{CategorySemantic, CategoryEpisodic, CategoryProcedural, CategorySystemPrompt}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategorySemantic, CategoryEpisodic, CategoryProcedural, CategorySystemPrompt:
		return true
	}
	return false
}

// CategoryCache maps category -> absolute file path -> hex digest.
type CategoryCache map[Category]map[string]string

// ChangeSet is the difference between the live directory and the cached state.
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// TotalChanges returns |added|+|modified|+|deleted|
func (cs ChangeSet) TotalChanges() int {
	return len(cs.Added) + len(cs.Modified) + len(cs.Deleted)
}

// HasChanges reports whether anything changed
func (cs ChangeSet) HasChanges() bool {
	return cs.TotalChanges() > 0
}

// Summary holds the cardinalities of a ChangeSet.
type Summary struct {
	Added        int `json:"added"`
	Modified     int `json:"modified"`
	Deleted      int `json:"deleted"`
	TotalChanges int `json:"total_changes"`
}

// Summary returns the counts of cs
func (cs ChangeSet) Summary() Summary {
	return Summary{
		Added:        len(cs.Added),
		Modified:     len(cs.Modified),
		Deleted:      len(cs.Deleted),
		TotalChanges: cs.TotalChanges(),
	}
}

// Config holds change tracker configuration
type Config struct {
	CachePath  string
	Extensions []string
	Logger     zerolog.Logger
}

// Tracker detects file changes per category against a persisted cache.
type Tracker struct {
	cachePath  string
	extensions []string
	logger     zerolog.Logger
	cache      CategoryCache
	mu         sync.RWMutex
}

// New loads the cache from disk. A missing cache file starts empty; a corrupt one
// is a PersistenceError.
func New(cfg Config) (*Tracker, error) {
	if cfg.CachePath == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	extensions := cfg.Extensions
	if len(extensions) == 0 {
		extensions = fingerprint.DefaultExtensions
	}

	t := &Tracker{
		cachePath:  cfg.CachePath,
		extensions: extensions,
		logger:     cfg.Logger,
		cache:      make(CategoryCache),
	}

	found, err := fsutil.ReadJSON(cfg.CachePath, &t.cache)
	if err != nil {
		return nil, &memerrors.PersistenceError{Op: "load", Path: cfg.CachePath, Err: err}
	}
	if t.cache == nil {
		t.cache = make(CategoryCache)
	}
	if found {
		t.logger.Debug().Str("path", cfg.CachePath).Int("categories", len(t.cache)).Msg("Build cache loaded")
	}

	return t, nil
}

// DetectChanges compares the current contents of dir with the cached state of category.
func (t *Tracker) DetectChanges(dir string, category Category) (ChangeSet, error) {
	if !category.Valid() {
		return ChangeSet{}, fmt.Errorf("%w: %s", memerrors.ErrInvalidCategory, category)
	}

	current, err := fingerprint.ScanDirectory(dir, t.extensions)
	if err != nil {
		return ChangeSet{}, err
	}

	t.mu.RLock()
	cached := t.cache[category]
	t.mu.RUnlock()

	if len(current) == 0 && !fsutil.Exists(dir) {
		return ChangeSet{}, nil
	}

	var cs ChangeSet
	for path, digest := range current {
		prev, ok := cached[path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, path)
		case prev != digest:
			cs.Modified = append(cs.Modified, path)
		}
	}
	for path := range cached {
		if _, ok := current[path]; !ok {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	sort.Strings(cs.Added)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Deleted)

	return cs, nil
}

// NeedsRebuild reports whether category has any change in dir.
func (t *Tracker) NeedsRebuild(dir string, category Category) (bool, error) {
	cs, err := t.DetectChanges(dir, category)
	if err != nil {
		return false, err
	}
	return cs.HasChanges(), nil
}

// ChangeSummary returns only the change counts for category.
func (t *Tracker) ChangeSummary(dir string, category Category) (Summary, error) {
	cs, err := t.DetectChanges(dir, category)
	if err != nil {
		return Summary{}, err
	}
	return cs.Summary(), nil
}

// UpdateCache replaces the cache entry of category with the current state of dir
// and persists the whole cache. Call it only after category was rebuilt successfully.
func (t *Tracker) UpdateCache(dir string, category Category) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %s", memerrors.ErrInvalidCategory, category)
	}

	current, err := fingerprint.ScanDirectory(dir, t.extensions)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	previous, hadPrevious := t.cache[category]
	t.cache[category] = current

	if err := fsutil.WriteJSONAtomic(t.cachePath, t.cache); err != nil {
		if hadPrevious {
			t.cache[category] = previous
		} else {
			delete(t.cache, category)
		}
		return &memerrors.PersistenceError{Op: "save", Path: t.cachePath, Err: err}
	}

	t.logger.Debug().
		Str("category", string(category)).
		Int("files", len(current)).
		Msg("Build cache updated")

	return nil
}

// Cached returns a copy of the cached entry for category.
func (t *Tracker) Cached(category Category) map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]string, len(t.cache[category]))
	for k, v := range t.cache[category] {
		out[k] = v
	}
	return out
}
