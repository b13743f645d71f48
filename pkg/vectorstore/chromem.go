package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/harun/twinself/pkg/fsutil"
	"github.com/harun/twinself/pkg/memerrors"
	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
)

const (
	chromemSubdir      = "chromem"
	chromemDimsFile    = "dimensions.json"
	chromemConcurrency = 4
)

// ChromemConfig holds chromem store configuration
type ChromemConfig struct {
	Dir      string
	Compress bool
	Logger   zerolog.Logger
}

// ChromemStore persists collections with chromem-go. Payloads are stored as
// the document content; chromem normalises vectors on insert, so Scroll
// returns unit-length vectors.
type ChromemStore struct {
	db       *chromem.DB
	dimsPath string
	logger   zerolog.Logger

	mu   sync.RWMutex
	dims map[string]int
}

// NewChromemStore opens the persistent chromem database under cfg.Dir.
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(cfg.Dir, chromemSubdir), cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("create persistent DB: %w", err)
	}

	s := &ChromemStore{
		db:       db,
		dimsPath: filepath.Join(cfg.Dir, chromemDimsFile),
		logger:   cfg.Logger,
		dims:     map[string]int{},
	}
	if _, err := fsutil.ReadJSON(s.dimsPath, &s.dims); err != nil {
		return nil, fmt.Errorf("read collection dimensions: %w", err)
	}
	return s, nil
}

// noEmbedding keeps chromem from calling a remote embedder; every point carries its vector.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embeddings must be supplied with the point")
}

func (s *ChromemStore) get(name string) *chromem.Collection {
	return s.db.GetCollection(name, noEmbedding)
}

func (s *ChromemStore) Collections(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *ChromemStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	return s.get(name) != nil, nil
}

func (s *ChromemStore) RecreateCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: fmt.Errorf("invalid dimension %d", dim)}
	}
	if s.get(name) != nil {
		if err := s.db.DeleteCollection(name); err != nil {
			return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
		}
	}
	if _, err := s.db.CreateCollection(name, nil, noEmbedding); err != nil {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims[name] = dim
	if err := fsutil.WriteJSONAtomic(s.dimsPath, s.dims); err != nil {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
	}
	s.logger.Info().Str("collection", name).Int("dimension", dim).Msg("Collection recreated")
	return nil
}

func (s *ChromemStore) Count(ctx context.Context, name string) (int, error) {
	col := s.get(name)
	if col == nil {
		return 0, notFound("count", name)
	}
	return col.Count(), nil
}

func (s *ChromemStore) Upsert(ctx context.Context, name string, points []Point) error {
	col := s.get(name)
	if col == nil {
		return notFound("upsert", name)
	}
	s.mu.RLock()
	dim := s.dims[name]
	s.mu.RUnlock()
	if err := checkDimension("upsert", name, dim, points); err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		content, err := json.Marshal(p.Payload)
		if err != nil {
			return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: fmt.Errorf("marshal payload %s: %w", p.ID, err)}
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   string(content),
			Embedding: append([]float32(nil), p.Vector...),
		})
	}

	if err := col.AddDocuments(ctx, docs, chromemConcurrency); err != nil {
		return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: err}
	}
	return nil
}

// all returns every document of the collection. chromem has no listing call,
// so this queries with a constant vector for as many results as there are documents.
func (s *ChromemStore) all(ctx context.Context, name string, query []float32) ([]chromem.Result, error) {
	col := s.get(name)
	if col == nil {
		return nil, notFound("query", name)
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if query == nil {
		s.mu.RLock()
		dim := s.dims[name]
		s.mu.RUnlock()
		query = make([]float32, dim)
		for i := range query {
			query[i] = 1
		}
	}
	results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, &memerrors.VectorStoreError{Op: "query", Collection: name, Err: err}
	}
	return results, nil
}

func (s *ChromemStore) Scroll(ctx context.Context, name string, offset, limit int) ([]Point, error) {
	results, err := s.all(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	start, end := clampPage(len(results), offset, limit)
	points := make([]Point, 0, end-start)
	for _, r := range results[start:end] {
		p, err := resultPoint(r)
		if err != nil {
			return nil, &memerrors.VectorStoreError{Op: "scroll", Collection: name, Err: err}
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *ChromemStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]Match, error) {
	col := s.get(name)
	if col == nil {
		return nil, notFound("search", name)
	}
	if limit <= 0 {
		limit = 10
	}
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, &memerrors.VectorStoreError{Op: "search", Collection: name, Err: err}
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		p, err := resultPoint(r)
		if err != nil {
			return nil, &memerrors.VectorStoreError{Op: "search", Collection: name, Err: err}
		}
		matches = append(matches, Match{Point: p, Score: r.Similarity})
	}
	return matches, nil
}

// Close is a no-op; chromem writes every change through to disk.
func (s *ChromemStore) Close() error { return nil }

func resultPoint(r chromem.Result) (Point, error) {
	p := Point{ID: r.ID, Vector: r.Embedding}
	if err := json.Unmarshal([]byte(r.Content), &p.Payload); err != nil {
		return Point{}, fmt.Errorf("decode payload %s: %w", r.ID, err)
	}
	return p, nil
}
