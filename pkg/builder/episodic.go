package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harun/twinself/pkg/changetracker"
	"github.com/harun/twinself/pkg/fingerprint"
	"github.com/harun/twinself/pkg/memerrors"
)

// Example is one recorded question and the owner's answer.
type Example struct {
	UserQuery    string `json:"user_query"`
	YourResponse string `json:"your_response"`
}

// EpisodicRoutine stores one point per example, embedding the response.
type EpisodicRoutine struct {
	Deps
}

func (r *EpisodicRoutine) Build(ctx context.Context, sourceDir, collection string) error {
	examples, err := LoadExamples(sourceDir, r.Logger.Warn)
	if err != nil {
		return err
	}

	docs := make([]document, 0, len(examples))
	for i, ex := range examples {
		docs = append(docs, document{
			source: ex.source,
			index:  ex.index,
			text:   ex.YourResponse,
			payload: map[string]interface{}{
				"example_id":    fmt.Sprintf("episodic_example_%d", i),
				"user_query":    ex.UserQuery,
				"your_response": ex.YourResponse,
			},
		})
	}
	return r.write(ctx, changetracker.CategoryEpisodic, collection, docs)
}

// SourcedExample is an Example with the file and position it came from.
type SourcedExample struct {
	Example
	source string
	index  int
}

// LoadExamples reads every JSON array of examples under dir. A missing
// directory, unparsable file or an empty result is a DataLoadingError; items
// missing either field are skipped.
func LoadExamples(dir string, warn WarnFunc) ([]SourcedExample, error) {
	var out []SourcedExample
	err := loadJSONArrays(dir, func(rel string, raw []json.RawMessage) {
		for i, item := range raw {
			var ex Example
			if err := json.Unmarshal(item, &ex); err != nil || ex.UserQuery == "" || ex.YourResponse == "" {
				warnf(warn, rel, i, "expected user_query and your_response")
				continue
			}
			out = append(out, SourcedExample{Example: ex, source: rel, index: i})
		}
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &memerrors.DataLoadingError{Path: dir, Err: fmt.Errorf("no valid episodic examples found")}
	}
	return out, nil
}

// loadJSONArrays decodes each .json file under dir as an array and passes it to fn.
func loadJSONArrays(dir string, fn func(rel string, raw []json.RawMessage)) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &memerrors.DataLoadingError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return &memerrors.DataLoadingError{Path: dir, Err: fmt.Errorf("not a directory")}
	}

	files, err := fingerprint.Scan(dir, []string{".json"})
	if err != nil {
		return &memerrors.DataLoadingError{Path: dir, Err: err}
	}
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return &memerrors.DataLoadingError{Path: f.Path, Err: err}
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return &memerrors.DataLoadingError{Path: f.Path, Err: fmt.Errorf("expected a JSON array: %w", err)}
		}
		fn(f.RelPath, raw)
	}
	return nil
}
