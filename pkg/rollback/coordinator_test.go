package rollback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/twinself/pkg/memerrors"
	"github.com/harun/twinself/pkg/snapshot"
	"github.com/harun/twinself/pkg/version"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	coord     *Coordinator
	registry  *version.Registry
	snapshots *snapshot.Store
	live      string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := t.TempDir()
	live := filepath.Join(base, "vectors")
	logger := zerolog.Nop()

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	registry, err := version.NewRegistry(version.Config{
		Path:   filepath.Join(base, "version_registry.json"),
		Logger: logger,
		Clock: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	})
	require.NoError(t, err)

	store, err := snapshot.New(snapshot.Config{
		SnapshotsDir: filepath.Join(base, "snapshots"),
		LiveDir:      live,
		Versions:     registry,
		Logger:       logger,
	})
	require.NoError(t, err)

	coord, err := New(Config{Versions: registry, Snapshots: store, Logger: logger})
	require.NoError(t, err)

	return &env{coord: coord, registry: registry, snapshots: store, live: live}
}

// version writes live content, records a version and snapshots it.
func (e *env) version(t *testing.T, content string, points int, snap bool) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(e.live, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.live, "vectors.db"), []byte(content), 0644))

	id, err := e.registry.CreateVersion(
		map[string]int{"me_semantic_memory_v1": points},
		map[string]string{"semantic": content + "-hash"},
		nil,
	)
	require.NoError(t, err)
	if snap {
		require.True(t, e.snapshots.Create(context.Background(), id, ""))
	}
	return id
}

func (e *env) liveContent(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.live, "vectors.db"))
	require.NoError(t, err)
	return string(data)
}

func activeID(t *testing.T, r *version.Registry) string {
	t.Helper()
	v, ok := r.ActiveVersion()
	require.True(t, ok)
	return v.VersionID
}

func countActive(r *version.Registry) int {
	n := 0
	for _, v := range r.ListVersions() {
		if v.IsActive {
			n++
		}
	}
	return n
}

func TestRollback_RestoresData(t *testing.T) {
	e := newEnv(t)
	v1 := e.version(t, "first", 10, true)
	e.version(t, "second", 20, true)
	assert.Equal(t, "second", e.liveContent(t))

	res := e.coord.Rollback(context.Background(), v1, true)

	assert.True(t, res.OK())
	assert.False(t, res.Partial())
	assert.True(t, res.DataRestored)
	assert.NotEmpty(t, res.Backup)
	assert.Equal(t, "success", res.Outcome())
	assert.Empty(t, res.Error())
	assert.Equal(t, v1, activeID(t, e.registry))
	assert.Equal(t, 1, countActive(e.registry))
	assert.Equal(t, "first", e.liveContent(t))
}

func TestRollback_MissingSnapshotStillUpdatesPointer(t *testing.T) {
	e := newEnv(t)
	v1 := e.version(t, "first", 10, false)
	e.version(t, "second", 20, true)

	res := e.coord.Rollback(context.Background(), v1, true)

	assert.True(t, res.Found)
	assert.True(t, res.PointerUpdated)
	assert.False(t, res.DataRestored)
	assert.True(t, res.Partial())
	assert.False(t, res.OK())
	assert.Equal(t, "partial", res.Outcome())
	assert.Contains(t, res.Error(), v1)

	var serr *memerrors.SnapshotError
	assert.True(t, errors.As(res.Err, &serr))

	assert.Equal(t, v1, activeID(t, e.registry))
	assert.Equal(t, "second", e.liveContent(t))
}

func TestRollback_BackupBelongsToThisRestore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v1 := e.version(t, "first", 10, true)
	v2 := e.version(t, "second", 20, false)

	res := e.coord.Rollback(ctx, v1, true)
	require.True(t, res.OK())
	require.NotEmpty(t, res.Backup)

	res = e.coord.Rollback(ctx, v2, true)
	assert.True(t, res.Partial())
	assert.Empty(t, res.Backup)

	require.NoError(t, os.RemoveAll(e.live))
	res = e.coord.Rollback(ctx, v1, true)
	assert.True(t, res.OK())
	assert.Empty(t, res.Backup)
	assert.Equal(t, "first", e.liveContent(t))
}

func TestRollback_MetadataOnly(t *testing.T) {
	e := newEnv(t)
	v1 := e.version(t, "first", 10, true)
	e.version(t, "second", 20, true)

	res := e.coord.Rollback(context.Background(), v1, false)

	assert.True(t, res.OK())
	assert.False(t, res.DataRequested)
	assert.Equal(t, v1, activeID(t, e.registry))
	assert.Equal(t, "second", e.liveContent(t))
	assert.Empty(t, res.Backup)
}

func TestRollback_UnknownVersion(t *testing.T) {
	e := newEnv(t)
	v1 := e.version(t, "first", 10, true)

	res := e.coord.Rollback(context.Background(), "v99_20240101_000000", true)

	assert.False(t, res.Found)
	assert.False(t, res.PointerUpdated)
	assert.False(t, res.OK())
	assert.Equal(t, "not_found", res.Outcome())
	assert.True(t, memerrors.IsNotFound(res.Err))
	assert.Equal(t, v1, activeID(t, e.registry))
}

func TestRollback_SingleActiveAcrossSequence(t *testing.T) {
	e := newEnv(t)
	v1 := e.version(t, "a", 1, true)
	v2 := e.version(t, "b", 2, true)
	v3 := e.version(t, "c", 3, true)

	for _, id := range []string{v1, v3, v2, v2, v1} {
		res := e.coord.Rollback(context.Background(), id, true)
		require.True(t, res.OK(), res.Error())
		assert.Equal(t, id, activeID(t, e.registry))
		assert.Equal(t, 1, countActive(e.registry))
	}
	assert.Equal(t, "a", e.liveContent(t))
	assert.Len(t, e.registry.ListVersions(), 3)
}

type failingVersions struct {
	version.MemoryVersion
}

func (f failingVersions) Get(id string) (*version.MemoryVersion, bool) {
	v := f.MemoryVersion
	return &v, id == v.VersionID
}

func (f failingVersions) Activate(string) error {
	return &memerrors.PersistenceError{Op: "save", Path: "registry.json", Err: errors.New("disk full")}
}

func (f failingVersions) Diff(a, b string) (version.Diff, bool) { return version.Diff{}, false }

type okSnapshots struct{ restored bool }

func (s *okSnapshots) Restore(context.Context, string, bool) bool {
	s.restored = true
	return true
}
func (s *okSnapshots) LastBackup() string { return "/tmp/backup" }

func TestRollback_PersistFailure(t *testing.T) {
	snaps := &okSnapshots{}
	coord, err := New(Config{
		Versions:  failingVersions{version.MemoryVersion{VersionID: "v1_20240101_000000"}},
		Snapshots: snaps,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	res := coord.Rollback(context.Background(), "v1_20240101_000000", true)

	assert.True(t, snaps.restored)
	assert.True(t, res.DataRestored)
	assert.False(t, res.PointerUpdated)
	assert.False(t, res.OK())
	assert.False(t, res.Partial())
	assert.Equal(t, "failure", res.Outcome())

	var perr *memerrors.PersistenceError
	assert.True(t, errors.As(res.Err, &perr))
}

func TestDiff(t *testing.T) {
	e := newEnv(t)
	v1 := e.version(t, "first", 10, false)
	v2 := e.version(t, "second", 25, false)

	diff, ok := e.coord.Diff(v1, v2)
	require.True(t, ok)
	assert.Equal(t, 15, diff.CollectionChanges["me_semantic_memory_v1"].Delta)
	assert.True(t, diff.HashChanges["semantic"].Changed)

	_, ok = e.coord.Diff(v1, "nope")
	assert.False(t, ok)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Versions: failingVersions{}})
	assert.Error(t, err)
}
