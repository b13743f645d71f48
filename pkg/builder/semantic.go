package builder

import (
	"context"
	"fmt"
	"os"

	"github.com/harun/twinself/pkg/changetracker"
	"github.com/harun/twinself/pkg/fingerprint"
	"github.com/harun/twinself/pkg/memerrors"
)

// SemanticRoutine chunks markdown and text documents into one point per chunk.
type SemanticRoutine struct {
	Deps
	ChunkSize    int
	ChunkOverlap int
}

func (r *SemanticRoutine) Build(ctx context.Context, sourceDir, collection string) error {
	files, err := fingerprint.Scan(sourceDir, []string{".md", ".txt"})
	if err != nil {
		return &memerrors.DataLoadingError{Path: sourceDir, Err: err}
	}
	if len(files) == 0 {
		return &memerrors.DataLoadingError{Path: sourceDir, Err: fmt.Errorf("no .md or .txt documents found")}
	}

	var docs []document
	for _, f := range files {
		content, err := os.ReadFile(f.Path)
		if err != nil {
			return &memerrors.DataLoadingError{Path: f.Path, Err: err}
		}
		for i, c := range SplitText(string(content), r.ChunkSize, r.ChunkOverlap) {
			docs = append(docs, document{
				source: f.RelPath,
				index:  i,
				text:   c.Text,
				payload: map[string]interface{}{
					"text":         c.Text,
					"chunk_index":  i,
					"start_offset": c.Start,
					"file_digest":  f.Digest,
				},
			})
		}
	}

	r.Logger.Info().Int("documents", len(files)).Int("chunks", len(docs)).Msg("Semantic documents loaded")
	return r.write(ctx, changetracker.CategorySemantic, collection, docs)
}
