package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/twinself/pkg/changetracker"
	"github.com/harun/twinself/pkg/embedding"
	"github.com/harun/twinself/pkg/vectorstore"
	"github.com/rs/zerolog"
)

const defaultBatchSize = 64

// Deps are the collaborators every build routine writes through.
type Deps struct {
	Store     vectorstore.Store
	Embedder  embedding.Provider
	BatchSize int
	Logger    zerolog.Logger
	Clock     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

type document struct {
	source  string
	index   int
	text    string // embedded text
	payload map[string]interface{}
}

// write recreates collection and fills it with the embedded documents.
func (d Deps) write(ctx context.Context, category changetracker.Category, collection string, docs []document) error {
	if d.Store == nil || d.Embedder == nil {
		return fmt.Errorf("vector store and embedder are required")
	}
	if err := d.Store.RecreateCollection(ctx, collection, d.Embedder.Dimension()); err != nil {
		return err
	}

	batch := d.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	ingested := d.now().UTC().Format(time.RFC3339)

	for start := 0; start < len(docs); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batch
		if end > len(docs) {
			end = len(docs)
		}
		part := docs[start:end]

		texts := make([]string, len(part))
		for i, doc := range part {
			texts[i] = doc.text
		}
		vectors, err := d.Embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(part) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(part))
		}

		points := make([]vectorstore.Point, len(part))
		for i, doc := range part {
			payload := map[string]interface{}{
				"category":    string(category),
				"source":      doc.source,
				"ingested_at": ingested,
			}
			for k, v := range doc.payload {
				payload[k] = v
			}
			points[i] = vectorstore.Point{
				ID:      vectorstore.PointID(string(category), doc.source, doc.index),
				Vector:  vectors[i],
				Payload: payload,
			}
		}
		if err := d.Store.Upsert(ctx, collection, points); err != nil {
			return err
		}
		d.Logger.Debug().
			Str("collection", collection).
			Int("batch_start", start).
			Int("batch_size", len(part)).
			Msg("Batch upserted")
	}

	d.Logger.Info().
		Str("collection", collection).
		Int("points", len(docs)).
		Msg("Collection built")
	return nil
}
