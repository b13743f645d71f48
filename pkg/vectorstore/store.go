package vectorstore

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/rs/zerolog"
)

// Backend names accepted by Open.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendMemory  = "memory"
)

// Point is one stored vector with its payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// Match is a search hit.
type Match struct {
	Point
	Score float32 `json:"score"` // cosine similarity
}

// Store is the narrow vector-store surface the memory lifecycle depends on.
type Store interface {
	Collections(ctx context.Context) ([]string, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	// RecreateCollection drops name if present and creates it empty with dimension dim.
	RecreateCollection(ctx context.Context, name string, dim int) error
	Count(ctx context.Context, name string) (int, error)
	Upsert(ctx context.Context, name string, points []Point) error
	// Scroll returns points ordered by id.
	Scroll(ctx context.Context, name string, offset, limit int) ([]Point, error)
	Search(ctx context.Context, name string, vector []float32, limit int) ([]Match, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Dir     string // data directory; snapshots copy it as a whole
	Logger  zerolog.Logger
}

// Open opens the configured backend.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		if cfg.Dir == "" {
			return nil, &memerrors.ConfigurationError{Field: "vector_store.dir", Message: "required for sqlite backend"}
		}
		return NewSQLiteStore(SQLiteConfig{Path: filepath.Join(cfg.Dir, SQLiteFileName), Logger: cfg.Logger})
	case BackendChromem:
		if cfg.Dir == "" {
			return nil, &memerrors.ConfigurationError{Field: "vector_store.dir", Message: "required for chromem backend"}
		}
		return NewChromemStore(ChromemConfig{Dir: cfg.Dir, Logger: cfg.Logger})
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, &memerrors.ConfigurationError{Field: "vector_store.backend", Message: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

// PointID derives a stable point id so that rebuilding the same source
// upserts in place instead of duplicating.
func PointID(category, source string, index int) string {
	name := fmt.Sprintf("%s/%s/%d", category, source, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func checkDimension(op, collection string, dim int, points []Point) error {
	for _, p := range points {
		if len(p.Vector) != dim {
			return &memerrors.VectorStoreError{
				Op:         op,
				Collection: collection,
				Err:        fmt.Errorf("point %s has %d dimensions, want %d: %w", p.ID, len(p.Vector), dim, memerrors.ErrDimensionMismatch),
			}
		}
		if p.ID == "" {
			return &memerrors.VectorStoreError{Op: op, Collection: collection, Err: fmt.Errorf("point id is required")}
		}
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clampPage(total, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}

func notFound(op, name string) error {
	return &memerrors.VectorStoreError{Op: op, Collection: name, Err: memerrors.ErrCollectionNotFound}
}
