package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/twinself/pkg/memerrors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) (Store, string) {
	return map[string]func(t *testing.T) (Store, string){
		BackendMemory: func(t *testing.T) (Store, string) {
			return NewMemoryStore(), ""
		},
		BackendSQLite: func(t *testing.T) (Store, string) {
			dir := t.TempDir()
			s, err := Open(Config{Backend: BackendSQLite, Dir: dir, Logger: zerolog.Nop()})
			require.NoError(t, err)
			return s, dir
		},
		BackendChromem: func(t *testing.T) (Store, string) {
			dir := t.TempDir()
			s, err := Open(Config{Backend: BackendChromem, Dir: dir, Logger: zerolog.Nop()})
			require.NoError(t, err)
			return s, dir
		},
	}
}

func samplePoints() []Point {
	return []Point{
		{ID: "c", Vector: []float32{0, 0, 1}, Payload: map[string]interface{}{"text": "gamma"}},
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{"text": "alpha"}},
		{ID: "b", Vector: []float32{0, 1, 0}, Payload: map[string]interface{}{"text": "beta"}},
	}
}

func TestStores(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := open(t)
			defer s.Close()

			exists, err := s.CollectionExists(ctx, "me_semantic_memory_v1")
			require.NoError(t, err)
			assert.False(t, exists)

			_, err = s.Count(ctx, "me_semantic_memory_v1")
			assert.True(t, errors.Is(err, memerrors.ErrCollectionNotFound))

			require.NoError(t, s.RecreateCollection(ctx, "me_semantic_memory_v1", 3))
			require.NoError(t, s.Upsert(ctx, "me_semantic_memory_v1", samplePoints()))

			n, err := s.Count(ctx, "me_semantic_memory_v1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			page, err := s.Scroll(ctx, "me_semantic_memory_v1", 0, 2)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "a", page[0].ID)
			assert.Equal(t, "b", page[1].ID)
			assert.Equal(t, "alpha", page[0].Payload["text"])
			assert.InDeltaSlice(t, []float32{1, 0, 0}, page[0].Vector, 1e-6)

			rest, err := s.Scroll(ctx, "me_semantic_memory_v1", 2, 10)
			require.NoError(t, err)
			require.Len(t, rest, 1)
			assert.Equal(t, "c", rest[0].ID)

			// upsert replaces in place
			require.NoError(t, s.Upsert(ctx, "me_semantic_memory_v1", []Point{
				{ID: "a", Vector: []float32{0, 1, 0}, Payload: map[string]interface{}{"text": "alpha2"}},
			}))
			n, err = s.Count(ctx, "me_semantic_memory_v1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			matches, err := s.Search(ctx, "me_semantic_memory_v1", []float32{0, 0, 1}, 1)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "c", matches[0].ID)
			assert.InDelta(t, 1.0, matches[0].Score, 1e-4)

			err = s.Upsert(ctx, "me_semantic_memory_v1", []Point{{ID: "x", Vector: []float32{1, 0}}})
			assert.True(t, errors.Is(err, memerrors.ErrDimensionMismatch))

			require.NoError(t, s.RecreateCollection(ctx, "me_semantic_memory_v1", 3))
			n, err = s.Count(ctx, "me_semantic_memory_v1")
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			names, err := s.Collections(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"me_semantic_memory_v1"}, names)
		})
	}
}

func TestPersistentStoresReopen(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendChromem} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s, err := Open(Config{Backend: backend, Dir: dir, Logger: zerolog.Nop()})
			require.NoError(t, err)
			require.NoError(t, s.RecreateCollection(ctx, "me_episodic_memory_v1", 3))
			require.NoError(t, s.Upsert(ctx, "me_episodic_memory_v1", samplePoints()))
			require.NoError(t, s.Close())

			s, err = Open(Config{Backend: backend, Dir: dir, Logger: zerolog.Nop()})
			require.NoError(t, err)
			defer s.Close()

			n, err := s.Count(ctx, "me_episodic_memory_v1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			err = s.Upsert(ctx, "me_episodic_memory_v1", []Point{{ID: "x", Vector: []float32{1}}})
			assert.True(t, errors.Is(err, memerrors.ErrDimensionMismatch))
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "qdrant", Dir: t.TempDir()})
	var cerr *memerrors.ConfigurationError
	assert.True(t, errors.As(err, &cerr))

	_, err = Open(Config{Backend: BackendSQLite})
	assert.True(t, errors.As(err, &cerr))
}

func TestPointID(t *testing.T) {
	a := PointID("semantic", "notes/a.md", 0)
	assert.Equal(t, a, PointID("semantic", "notes/a.md", 0))
	assert.NotEqual(t, a, PointID("semantic", "notes/a.md", 1))
	assert.NotEqual(t, a, PointID("episodic", "notes/a.md", 0))
	assert.Len(t, a, 36)
}

func TestVecTableName(t *testing.T) {
	assert.Regexp(t, `^vec_me_semantic_memory_v_1_[0-9a-f]{8}$`, vecTableName("me-semantic-memory-v.1"))
	assert.NotEqual(t, vecTableName("a-b"), vecTableName("a_b"))
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		total, offset, limit int
		start, end           int
	}{
		{10, 0, 0, 0, 10},
		{10, 2, 3, 2, 5},
		{10, 8, 5, 8, 10},
		{10, 20, 5, 10, 10},
		{10, -1, 2, 0, 2},
	}
	for _, tt := range tests {
		start, end := clampPage(tt.total, tt.offset, tt.limit)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}
