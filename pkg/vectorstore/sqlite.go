package vectorstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/memerrors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteFileName is the database file inside the vector-store directory.
const SQLiteFileName = "vectors.db"

var unsafeTableChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SQLiteConfig holds SQLite store configuration
type SQLiteConfig struct {
	Path   string
	Logger zerolog.Logger
}

// SQLiteStore keeps each collection in a sqlite-vec vec0 table next to a
// payload table, all inside one database file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating when needed) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Rollback journal keeps all committed state in the single database file.
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	s := &SQLiteStore{db: db, path: cfg.Path, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", cfg.Path).Msg("SQLite vector store opened")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			vec_table TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS points (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		);
	`)
	return err
}

// vecTableName maps a collection name to a safe, collision-free table name.
func vecTableName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("vec_%s_%s", unsafeTableChars.ReplaceAllString(name, "_"), hex.EncodeToString(sum[:4]))
}

func (s *SQLiteStore) collection(ctx context.Context, name string) (table string, dim int, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT vec_table, dimension FROM collections WHERE name = ?", name,
	).Scan(&table, &dim)
	return table, dim, err
}

func (s *SQLiteStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, &memerrors.VectorStoreError{Op: "collections", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, _, err := s.collection(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &memerrors.VectorStoreError{Op: "exists", Collection: name, Err: err}
	}
	return true, nil
}

func (s *SQLiteStore) RecreateCollection(ctx context.Context, name string, dim int) error {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerVector, "vectorstore.recreate",
		attribute.String("collection", name), attribute.Int("dimension", dim))
	defer span.End()

	if dim <= 0 {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: fmt.Errorf("invalid dimension %d", dim)}
	}
	table := vecTableName(name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", table),
		fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING vec0(
			point_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		)`, table, dim),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tracing.FailSpan(span, err)
			return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM points WHERE collection = ?", name); err != nil {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO collections (name, vec_table, dimension, created_at) VALUES (?, ?, ?, ?)",
		name, table, dim, time.Now().Unix(),
	); err != nil {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &memerrors.VectorStoreError{Op: "recreate", Collection: name, Err: err}
	}
	s.logger.Info().Str("collection", name).Int("dimension", dim).Msg("Collection recreated")
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context, name string) (int, error) {
	if _, _, err := s.collection(ctx, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, notFound("count", name)
		}
		return 0, &memerrors.VectorStoreError{Op: "count", Collection: name, Err: err}
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE collection = ?", name).Scan(&n); err != nil {
		return 0, &memerrors.VectorStoreError{Op: "count", Collection: name, Err: err}
	}
	return n, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, name string, points []Point) error {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerVector, "vectorstore.upsert",
		attribute.String("collection", name), attribute.Int("points", len(points)))
	defer span.End()

	table, dim, err := s.collection(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("upsert", name)
	}
	if err != nil {
		return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: err}
	}
	if err := checkDimension("upsert", name, dim, points); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: err}
	}
	defer tx.Rollback()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: fmt.Errorf("marshal payload %s: %w", p.ID, err)}
		}
		vector, err := json.Marshal(p.Vector)
		if err != nil {
			return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: fmt.Errorf("marshal vector %s: %w", p.ID, err)}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO points (collection, id, payload) VALUES (?, ?, ?)",
			name, p.ID, string(payload),
		); err != nil {
			tracing.FailSpan(span, err)
			return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: err}
		}
		// vec0 tables do not honour OR REPLACE, so replace explicitly.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE point_id = ?", table), p.ID); err != nil {
			return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (point_id, embedding) VALUES (?, ?)", table),
			p.ID, string(vector),
		); err != nil {
			tracing.FailSpan(span, err)
			return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &memerrors.VectorStoreError{Op: "upsert", Collection: name, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Scroll(ctx context.Context, name string, offset, limit int) ([]Point, error) {
	table, _, err := s.collection(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("scroll", name)
	}
	if err != nil {
		return nil, &memerrors.VectorStoreError{Op: "scroll", Collection: name, Err: err}
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT p.id, p.payload, vec_to_json(v.embedding)
		FROM points p
		JOIN %s v ON v.point_id = p.id
		WHERE p.collection = ?
		ORDER BY p.id
		LIMIT ? OFFSET ?
	`, table), name, limit, offset)
	if err != nil {
		return nil, &memerrors.VectorStoreError{Op: "scroll", Collection: name, Err: err}
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, &memerrors.VectorStoreError{Op: "scroll", Collection: name, Err: err}
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLiteStore) Search(ctx context.Context, name string, vector []float32, limit int) ([]Match, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerVector, "vectorstore.search",
		attribute.String("collection", name))
	defer span.End()

	table, dim, err := s.collection(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("search", name)
	}
	if err != nil {
		return nil, &memerrors.VectorStoreError{Op: "search", Collection: name, Err: err}
	}
	if len(vector) != dim {
		return nil, &memerrors.VectorStoreError{Op: "search", Collection: name, Err: memerrors.ErrDimensionMismatch}
	}
	if limit <= 0 {
		limit = 10
	}

	query, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT p.id, p.payload, vec_to_json(v.embedding), vec_distance_cosine(v.embedding, ?) AS distance
		FROM %s v
		JOIN points p ON p.collection = ? AND p.id = v.point_id
		ORDER BY distance ASC, p.id ASC
		LIMIT ?
	`, table), string(query), name, limit)
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, &memerrors.VectorStoreError{Op: "search", Collection: name, Err: err}
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id, payload, vec string
			distance         float64
		)
		if err := rows.Scan(&id, &payload, &vec, &distance); err != nil {
			return nil, err
		}
		p, err := decodePoint(id, payload, vec)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Point: p, Score: float32(1 - distance)})
	}
	return matches, rows.Err()
}

// Close closes the database handle. The file can then be copied or replaced.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanPoint(rows *sql.Rows) (Point, error) {
	var id, payload, vec string
	if err := rows.Scan(&id, &payload, &vec); err != nil {
		return Point{}, err
	}
	return decodePoint(id, payload, vec)
}

func decodePoint(id, payload, vec string) (Point, error) {
	p := Point{ID: id}
	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return Point{}, fmt.Errorf("decode payload %s: %w", id, err)
	}
	if err := json.NewDecoder(strings.NewReader(vec)).Decode(&p.Vector); err != nil {
		return Point{}, fmt.Errorf("decode vector %s: %w", id, err)
	}
	return p, nil
}
