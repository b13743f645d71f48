package version

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/twinself/pkg/fsutil"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/rs/zerolog"
)

// Config holds registry configuration
type Config struct {
	Path   string
	Logger zerolog.Logger
	Clock  func() time.Time // Optional, defaults to time.Now
}

// Registry is the file-backed ledger of memory versions.
type Registry struct {
	path     string
	logger   zerolog.Logger
	now      func() time.Time
	versions []MemoryVersion
	mu       sync.RWMutex
}

// NewRegistry loads the registry file, starting empty when it does not exist.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := &Registry{
		path:   cfg.Path,
		logger: cfg.Logger,
		now:    clock,
	}

	var file registryFile
	found, err := fsutil.ReadJSON(cfg.Path, &file)
	if err != nil {
		return nil, &memerrors.PersistenceError{Op: "load", Path: cfg.Path, Err: err}
	}
	r.versions = file.Versions
	if found {
		r.logger.Debug().Int("versions", len(r.versions)).Msg("Version registry loaded")
	}

	return r, nil
}

// CreateVersion records a new active version and deactivates all others.
func (r *Registry) CreateVersion(collections map[string]int, dataHashes map[string]string, metadata map[string]interface{}) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	id := r.nextID(now)

	if collections == nil {
		collections = map[string]int{}
	}
	if dataHashes == nil {
		dataHashes = map[string]string{}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	record := MemoryVersion{
		VersionID:   id,
		Timestamp:   now.Format(TimestampLayout),
		Collections: collections,
		DataHash:    dataHashes,
		Metadata:    metadata,
		IsActive:    true,
	}

	previous := r.snapshotState()
	for i := range r.versions {
		r.versions[i].IsActive = false
	}
	r.versions = append(r.versions, record.clone())

	if err := r.persist(); err != nil {
		r.versions = previous
		return "", err
	}

	r.logger.Info().
		Str("version_id", id).
		Int("collections", len(collections)).
		Int("total_points", record.TotalPoints()).
		Msg("Memory version created")

	return id, nil
}

// nextID builds v{n}_{timestamp}, bumping n until the id is unused.
func (r *Registry) nextID(now time.Time) string {
	used := make(map[string]bool, len(r.versions))
	for _, v := range r.versions {
		used[v.VersionID] = true
	}

	stamp := now.Format(idTimeLayout)
	for n := len(r.versions) + 1; ; n++ {
		id := fmt.Sprintf("v%d_%s", n, stamp)
		if !used[id] {
			return id
		}
	}
}

// ActiveVersion returns the newest version flagged active.
func (r *Registry) ActiveVersion() (*MemoryVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.versions) - 1; i >= 0; i-- {
		if r.versions[i].IsActive {
			v := r.versions[i].clone()
			return &v, true
		}
	}
	return nil, false
}

// ListVersions returns all versions in creation order.
func (r *Registry) ListVersions() []MemoryVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MemoryVersion, len(r.versions))
	for i, v := range r.versions {
		out[i] = v.clone()
	}
	return out
}

// Get returns the version with id.
func (r *Registry) Get(id string) (*MemoryVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		v := r.versions[i].clone()
		return &v, true
	}
	return nil, false
}

// Activate makes id the only active version and persists the registry.
func (r *Registry) Activate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.indexOf(id)
	if target < 0 {
		return fmt.Errorf("version %s: %w", id, memerrors.ErrNotFound)
	}

	previous := r.snapshotState()
	for i := range r.versions {
		r.versions[i].IsActive = i == target
	}

	if err := r.persist(); err != nil {
		r.versions = previous
		return err
	}

	r.logger.Info().Str("version_id", id).Msg("Active version switched")
	return nil
}

// SetSystemPromptFile binds the prompt file used by version id.
func (r *Registry) SetSystemPromptFile(id, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("version %s: %w", id, memerrors.ErrNotFound)
	}

	previous := r.versions[i].SystemPromptFile
	p := path
	r.versions[i].SystemPromptFile = &p

	if err := r.persist(); err != nil {
		r.versions[i].SystemPromptFile = previous
		return err
	}
	return nil
}

// Diff compares version a with version b. ok is false when either id is unknown.
func (r *Registry) Diff(a, b string) (Diff, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	diff := Diff{
		From:              a,
		To:                b,
		CollectionChanges: map[string]CollectionChange{},
		HashChanges:       map[string]HashChange{},
	}

	ia, ib := r.indexOf(a), r.indexOf(b)
	if ia < 0 || ib < 0 {
		return diff, false
	}
	va, vb := r.versions[ia], r.versions[ib]

	for _, name := range unionKeys(va.Collections, vb.Collections) {
		before, after := va.Collections[name], vb.Collections[name]
		if before != after {
			diff.CollectionChanges[name] = CollectionChange{
				Before: before,
				After:  after,
				Delta:  after - before,
			}
		}
	}

	for _, category := range unionKeys(va.DataHash, vb.DataHash) {
		before, after := va.DataHash[category], vb.DataHash[category]
		if before != after {
			diff.HashChanges[category] = HashChange{
				Changed: true,
				Before:  truncate(before, 8),
				After:   truncate(after, 8),
			}
		}
	}

	return diff, true
}

// Len returns the number of recorded versions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.versions)
}

// Path returns the registry file path
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) indexOf(id string) int {
	for i := range r.versions {
		if r.versions[i].VersionID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) snapshotState() []MemoryVersion {
	out := make([]MemoryVersion, len(r.versions))
	copy(out, r.versions)
	return out
}

// persist rewrites the whole registry through a temp file and rename.
func (r *Registry) persist() error {
	versions := r.versions
	if versions == nil {
		versions = []MemoryVersion{}
	}
	if err := fsutil.WriteJSONAtomic(r.path, registryFile{Versions: versions}); err != nil {
		return &memerrors.PersistenceError{Op: "save", Path: r.path, Err: err}
	}
	return nil
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
