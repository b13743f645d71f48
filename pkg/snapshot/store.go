package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/fsutil"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/harun/twinself/pkg/version"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// PromptFileName is the name under which a version's prompt is stored in its snapshot.
const PromptFileName = "system_prompt.md"

const backupTimeLayout = "20060102_150405"

// DefaultExcludePatterns skip transient engine files.
var DefaultExcludePatterns = []string{"**/*.lock", "**/*.tmp", "**/*.temp"}

// VersionLookup resolves a version record; *version.Registry satisfies it.
type VersionLookup interface {
	Get(id string) (*version.MemoryVersion, bool)
}

// Config holds snapshot store configuration
type Config struct {
	SnapshotsDir    string
	LiveDir         string // vector-store data directory
	ExcludePatterns []string
	Versions        VersionLookup
	Logger          zerolog.Logger
	Clock           func() time.Time
}

// Info describes one stored snapshot.
type Info struct {
	VersionID string `json:"version_id"`
	SizeBytes int64  `json:"size_bytes"`
	HasPrompt bool   `json:"has_prompt"`
}

// Store copies the live vector-store directory into version-keyed snapshots and back.
type Store struct {
	root     string
	liveDir  string
	excludes []string
	versions VersionLookup
	logger   zerolog.Logger
	now      func() time.Time

	mu         sync.Mutex
	lastBackup string
}

// New creates the snapshots root and validates the exclude patterns.
func New(cfg Config) (*Store, error) {
	if cfg.SnapshotsDir == "" {
		return nil, errors.New("snapshots directory is required")
	}
	if cfg.LiveDir == "" {
		return nil, errors.New("live data directory is required")
	}

	excludes := cfg.ExcludePatterns
	if len(excludes) == 0 {
		excludes = DefaultExcludePatterns
	}
	for _, p := range excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	if err := os.MkdirAll(cfg.SnapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Store{
		root:     cfg.SnapshotsDir,
		liveDir:  cfg.LiveDir,
		excludes: excludes,
		versions: cfg.Versions,
		logger:   cfg.Logger,
		now:      clock,
	}, nil
}

// Path returns the directory of the snapshot for versionID.
func (s *Store) Path(versionID string) string {
	return filepath.Join(s.root, versionID)
}

// Create copies the live directory into the snapshot of versionID and, when
// promptFile exists, stores it as system_prompt.md. A failed copy leaves no
// snapshot directory behind.
func (s *Store) Create(ctx context.Context, versionID, promptFile string) bool {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerSnapshot, "snapshot.create",
		attribute.String("version_id", versionID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	dst := s.Path(versionID)

	err := s.create(dst, promptFile)
	if err != nil {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			logger.Error().Err(rmErr).Str("path", dst).Msg("Failed to remove partial snapshot")
		}
		serr := &memerrors.SnapshotError{Op: "create", VersionID: versionID, Err: err}
		tracing.FailSpan(span, serr)
		logger.Error().Err(serr).Msg("Snapshot creation failed")
		observability.RecordSnapshotOp("create", false)
		return false
	}

	size := fsutil.DirSize(dst)
	observability.RecordSnapshotOp("create", true)
	observability.SetSnapshotSize(size)
	observability.SetSnapshotsStored(len(s.List()))

	logger.Info().
		Str("version_id", versionID).
		Int64("size_bytes", size).
		Dur("duration", time.Since(start)).
		Msg("Snapshot created")
	return true
}

func (s *Store) create(dst, promptFile string) error {
	info, err := os.Stat(s.liveDir)
	if err != nil {
		return fmt.Errorf("live directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.liveDir)
	}

	if fsutil.Exists(dst) {
		s.logger.Warn().Str("path", dst).Msg("Snapshot already exists, overwriting")
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to remove existing snapshot: %w", err)
		}
	}

	if err := s.copyTree(s.liveDir, dst, nil); err != nil {
		return err
	}

	if promptFile != "" {
		if fsutil.Exists(promptFile) {
			if err := fsutil.CopyFile(promptFile, filepath.Join(dst, PromptFileName)); err != nil {
				return fmt.Errorf("failed to copy prompt file: %w", err)
			}
		} else {
			s.logger.Warn().Str("prompt_file", promptFile).Msg("Prompt file not found, snapshot stored without it")
		}
	}
	return nil
}

// Restore replaces the live directory with the snapshot of versionID after
// backing up the current live directory. When restorePrompt is set and the
// version recorded a prompt file, the snapshot's prompt is copied back to it.
// On failure the backup is left in place for manual recovery.
func (s *Store) Restore(ctx context.Context, versionID string, restorePrompt bool) bool {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerSnapshot, "snapshot.restore",
		attribute.String("version_id", versionID),
		attribute.Bool("restore_prompt", restorePrompt))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.mu.Lock()
	s.lastBackup = ""
	s.mu.Unlock()

	src := s.Path(versionID)
	if !fsutil.Exists(src) {
		err := &memerrors.SnapshotError{Op: "restore", VersionID: versionID, Err: memerrors.ErrNotFound}
		tracing.FailSpan(span, err)
		logger.Error().Err(err).Msg("Snapshot not found")
		observability.RecordSnapshotOp("restore", false)
		return false
	}

	backup, err := s.restore(src)
	if backup != "" {
		s.mu.Lock()
		s.lastBackup = backup
		s.mu.Unlock()
	}
	if err != nil {
		serr := &memerrors.SnapshotError{Op: "restore", VersionID: versionID, Err: err}
		tracing.FailSpan(span, serr)
		logger.Error().Err(serr).Str("backup", backup).Msg("Snapshot restore failed, backup kept for manual recovery")
		observability.RecordSnapshotOp("restore", false)
		return false
	}

	if restorePrompt {
		if err := s.restorePrompt(versionID, src); err != nil {
			serr := &memerrors.SnapshotError{Op: "restore", VersionID: versionID, Err: err}
			tracing.FailSpan(span, serr)
			logger.Error().Err(serr).Msg("Prompt restore failed")
			observability.RecordSnapshotOp("restore", false)
			return false
		}
	}

	observability.RecordSnapshotOp("restore", true)
	logger.Info().Str("version_id", versionID).Str("backup", backup).Msg("Snapshot restored")
	return true
}

func (s *Store) restore(src string) (string, error) {
	var backup string
	if fsutil.Exists(s.liveDir) {
		backup = s.backupPath()
		if err := s.copyTree(s.liveDir, backup, nil); err != nil {
			os.RemoveAll(backup)
			return "", fmt.Errorf("failed to back up live directory: %w", err)
		}
		if err := os.RemoveAll(s.liveDir); err != nil {
			return backup, fmt.Errorf("failed to clear live directory: %w", err)
		}
	}

	skipPrompt := func(rel string) bool { return rel == PromptFileName }
	if err := s.copyTree(src, s.liveDir, skipPrompt); err != nil {
		return backup, fmt.Errorf("failed to copy snapshot: %w", err)
	}
	return backup, nil
}

func (s *Store) restorePrompt(versionID, src string) error {
	if s.versions == nil {
		return nil
	}
	v, ok := s.versions.Get(versionID)
	if !ok || v.PromptFile() == "" {
		return nil
	}
	stored := filepath.Join(src, PromptFileName)
	if !fsutil.Exists(stored) {
		s.logger.Warn().Str("version_id", versionID).Msg("Snapshot has no prompt file, skipping prompt restore")
		return nil
	}
	return fsutil.CopyFile(stored, v.PromptFile())
}

// backupPath returns <parent>/<live>_backup_<timestamp>, suffixed when taken.
func (s *Store) backupPath() string {
	parent := filepath.Dir(filepath.Clean(s.liveDir))
	base := fmt.Sprintf("%s_backup_%s", filepath.Base(filepath.Clean(s.liveDir)), s.now().Format(backupTimeLayout))
	path := filepath.Join(parent, base)
	for i := 1; fsutil.Exists(path); i++ {
		path = filepath.Join(parent, fmt.Sprintf("%s_%d", base, i))
	}
	return path
}

// LastBackup returns the backup taken by the most recent restore, or "" when
// that restore took none.
func (s *Store) LastBackup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBackup
}

// List returns the ids of stored snapshots, oldest version first.
func (s *Store) List() []string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	version.SortIDs(ids)
	return ids
}

// Infos returns size and prompt presence of every snapshot.
func (s *Store) Infos() []Info {
	ids := s.List()
	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, Info{
			VersionID: id,
			SizeBytes: s.Size(id),
			HasPrompt: fsutil.Exists(filepath.Join(s.Path(id), PromptFileName)),
		})
	}
	return infos
}

// Exists reports whether a snapshot for versionID is stored.
func (s *Store) Exists(versionID string) bool {
	return fsutil.Exists(s.Path(versionID))
}

// Delete removes the snapshot of versionID. It returns false when absent.
func (s *Store) Delete(versionID string) bool {
	path := s.Path(versionID)
	if versionID == "" || !fsutil.Exists(path) {
		return false
	}
	if err := os.RemoveAll(path); err != nil {
		s.logger.Error().Err(&memerrors.SnapshotError{Op: "delete", VersionID: versionID, Err: err}).Msg("Snapshot delete failed")
		observability.RecordSnapshotOp("delete", false)
		return false
	}
	observability.RecordSnapshotOp("delete", true)
	s.logger.Info().Str("version_id", versionID).Msg("Snapshot deleted")
	return true
}

// Size returns the total size of the snapshot in bytes, 0 when absent.
func (s *Store) Size(versionID string) int64 {
	return fsutil.DirSize(s.Path(versionID))
}

// Cleanup keeps the keepLast newest snapshots by version sequence and deletes the rest.
func (s *Store) Cleanup(keepLast int) int {
	if keepLast < 0 {
		keepLast = 0
	}
	ids := s.List()
	if len(ids) <= keepLast {
		return 0
	}

	deleted := 0
	for _, id := range ids[:len(ids)-keepLast] {
		if s.Delete(id) {
			deleted++
		}
	}

	observability.SetSnapshotsStored(len(s.List()))
	s.logger.Info().Int("deleted", deleted).Int("kept", keepLast).Msg("Old snapshots cleaned up")
	return deleted
}

// copyTree copies regular files from src to dst, skipping excluded patterns and
// any relative path for which skip returns true.
func (s *Store) copyTree(src, dst string, skip func(rel string) bool) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			return os.MkdirAll(filepath.Join(dst, filepath.FromSlash(rel)), 0755)
		}
		if !d.Type().IsRegular() || s.excluded(rel) || (skip != nil && skip(rel)) {
			return nil
		}
		return fsutil.CopyFile(path, filepath.Join(dst, filepath.FromSlash(rel)))
	})
}

func (s *Store) excluded(rel string) bool {
	for _, pattern := range s.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
