package vectorstore

import (
	"context"
	"sort"
	"sync"
)

type memCollection struct {
	dim    int
	points map[string]Point
}

// MemoryStore keeps collections in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (s *MemoryStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryStore) RecreateCollection(ctx context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = &memCollection{dim: dim, points: make(map[string]Point)}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, notFound("count", name)
	}
	return len(c.points), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, name string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return notFound("upsert", name)
	}
	if err := checkDimension("upsert", name, c.dim, points); err != nil {
		return err
	}
	for _, p := range points {
		c.points[p.ID] = clonePoint(p)
	}
	return nil
}

func (s *MemoryStore) Scroll(ctx context.Context, name string, offset, limit int) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, notFound("scroll", name)
	}

	all := make([]Point, 0, len(c.points))
	for _, p := range c.points {
		all = append(all, clonePoint(p))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start, end := clampPage(len(all), offset, limit)
	return all[start:end], nil
}

func (s *MemoryStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, notFound("search", name)
	}

	matches := make([]Match, 0, len(c.points))
	for _, p := range c.points {
		matches = append(matches, Match{Point: clonePoint(p), Score: cosine(vector, p.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryStore) Close() error { return nil }

func clonePoint(p Point) Point {
	out := Point{ID: p.ID, Vector: append([]float32(nil), p.Vector...)}
	if p.Payload != nil {
		out.Payload = make(map[string]interface{}, len(p.Payload))
		for k, v := range p.Payload {
			out.Payload[k] = v
		}
	}
	return out
}
