package datavalidate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/harun/twinself/pkg/fingerprint"
	"github.com/xeipuuv/gojsonschema"
)

const episodicSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["user_query", "your_response"],
		"properties": {
			"user_query": {"type": "string"},
			"your_response": {"type": "string"}
		}
	}
}`

const proceduralSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["rule_name", "rule_content"],
		"properties": {
			"rule_name": {"type": "string", "minLength": 1},
			"rule_content": {"type": "string", "minLength": 1}
		}
	}
}`

// Quality thresholds below which a warning is reported.
const (
	MinSemanticFiles    = 3
	MinEpisodicExamples = 10
	MinTextLength       = 50
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding about a data file or the data set as a whole.
type Issue struct {
	Severity Severity `json:"severity"`
	Path     string   `json:"path,omitempty"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	loc := i.Path
	if i.Field != "" {
		loc += "[" + i.Field + "]"
	}
	if loc == "" {
		return i.Message
	}
	return loc + ": " + i.Message
}

// Stats counts what the data directories contain.
type Stats struct {
	SemanticFiles    int `json:"semantic_files"`
	EpisodicFiles    int `json:"episodic_files"`
	EpisodicExamples int `json:"episodic_examples"`
	ProceduralFiles  int `json:"procedural_files"`
	ProceduralRules  int `json:"procedural_rules"`
	PromptFiles      int `json:"prompt_files"`
}

// Report is the result of validating every data directory.
type Report struct {
	Issues       []Issue `json:"issues"`
	Stats        Stats   `json:"stats"`
	FilesChecked int     `json:"files_checked"`
}

func (r Report) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

func (r Report) Errors() []Issue   { return r.filter(SeverityError) }
func (r Report) Warnings() []Issue { return r.filter(SeverityWarning) }

// OK reports whether no errors were found. Warnings do not fail validation.
func (r Report) OK() bool { return len(r.Errors()) == 0 }

// Dirs are the data directories to validate.
type Dirs struct {
	Semantic      string
	Episodic      string
	Procedural    string
	SystemPrompts string
}

// Validator checks data files against the episodic and procedural schemas.
type Validator struct {
	episodic   *gojsonschema.Schema
	procedural *gojsonschema.Schema
}

// New compiles the schemas.
func New() (*Validator, error) {
	episodic, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(episodicSchema))
	if err != nil {
		return nil, fmt.Errorf("compile episodic schema: %w", err)
	}
	procedural, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(proceduralSchema))
	if err != nil {
		return nil, fmt.Errorf("compile procedural schema: %w", err)
	}
	return &Validator{episodic: episodic, procedural: procedural}, nil
}

// ValidateEpisodic checks one episodic file's contents. It returns the number
// of items and the issues found.
func (v *Validator) ValidateEpisodic(path string, data []byte) (int, []Issue) {
	n, issues := v.validate(v.episodic, path, data)
	if len(issues) > 0 {
		return n, issues
	}

	var items []map[string]string
	if err := json.Unmarshal(data, &items); err == nil {
		for i, item := range items {
			for _, key := range []string{"user_query", "your_response"} {
				if strings.TrimSpace(item[key]) == "" {
					issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Field: fmt.Sprintf("%d.%s", i, key), Message: "empty value"})
				}
			}
		}
	}
	return n, issues
}

// ValidateProcedural checks one procedural file's contents.
func (v *Validator) ValidateProcedural(path string, data []byte) (int, []Issue) {
	return v.validate(v.procedural, path, data)
}

func (v *Validator) validate(schema *gojsonschema.Schema, path string, data []byte) (int, []Issue) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var anyJSON interface{}
		if json.Unmarshal(data, &anyJSON) == nil {
			return 0, []Issue{{Severity: SeverityError, Path: path, Message: "must be a JSON array"}}
		}
		return 0, []Issue{{Severity: SeverityError, Path: path, Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return len(raw), []Issue{{Severity: SeverityError, Path: path, Message: err.Error()}}
	}

	var issues []Issue
	for _, e := range result.Errors() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path,
			Field:    e.Field(),
			Message:  e.Description(),
		})
	}
	return len(raw), issues
}

// ValidateText checks a markdown or text file.
func ValidateText(path string, data []byte) []Issue {
	content := strings.TrimSpace(string(data))
	switch {
	case content == "":
		return []Issue{{Severity: SeverityWarning, Path: path, Message: "empty file"}}
	case len(content) < MinTextLength:
		return []Issue{{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf("very short content (%d chars)", len(content))}}
	}
	return nil
}

// Validate checks every file in dirs and the overall data quality.
func (v *Validator) Validate(dirs Dirs) Report {
	var r Report

	r.eachFile(dirs.Semantic, []string{".md", ".txt"}, func(f fingerprint.File, data []byte) {
		r.Stats.SemanticFiles++
		r.Issues = append(r.Issues, ValidateText(f.Path, data)...)
	})
	r.eachFile(dirs.Episodic, []string{".json"}, func(f fingerprint.File, data []byte) {
		n, issues := v.ValidateEpisodic(f.Path, data)
		r.Stats.EpisodicFiles++
		r.Stats.EpisodicExamples += n
		r.Issues = append(r.Issues, issues...)
	})
	r.eachFile(dirs.Procedural, []string{".json"}, func(f fingerprint.File, data []byte) {
		n, issues := v.ValidateProcedural(f.Path, data)
		r.Stats.ProceduralFiles++
		r.Stats.ProceduralRules += n
		r.Issues = append(r.Issues, issues...)
	})
	if dirs.SystemPrompts != "" {
		r.eachFile(dirs.SystemPrompts, []string{".md"}, func(f fingerprint.File, data []byte) {
			r.Stats.PromptFiles++
			if strings.TrimSpace(string(data)) == "" {
				r.Issues = append(r.Issues, Issue{Severity: SeverityWarning, Path: f.Path, Message: "empty prompt"})
			}
		})
	}

	switch {
	case r.Stats.SemanticFiles == 0:
		r.Issues = append(r.Issues, Issue{Severity: SeverityError, Message: "no semantic data files found"})
	case r.Stats.SemanticFiles < MinSemanticFiles:
		r.Issues = append(r.Issues, Issue{Severity: SeverityWarning, Message: fmt.Sprintf("only %d semantic files (recommend at least %d)", r.Stats.SemanticFiles, MinSemanticFiles)})
	}
	switch {
	case r.Stats.EpisodicExamples == 0:
		r.Issues = append(r.Issues, Issue{Severity: SeverityError, Message: "no episodic examples found"})
	case r.Stats.EpisodicExamples < MinEpisodicExamples:
		r.Issues = append(r.Issues, Issue{Severity: SeverityWarning, Message: fmt.Sprintf("only %d episodic examples (recommend at least %d)", r.Stats.EpisodicExamples, MinEpisodicExamples)})
	}
	if r.Stats.ProceduralRules == 0 {
		r.Issues = append(r.Issues, Issue{Severity: SeverityWarning, Message: "no procedural rules found"})
	}

	return r
}

func (r *Report) eachFile(dir string, exts []string, fn func(fingerprint.File, []byte)) {
	if dir == "" {
		return
	}
	files, err := fingerprint.Scan(dir, exts)
	if err != nil {
		r.Issues = append(r.Issues, Issue{Severity: SeverityError, Path: dir, Message: err.Error()})
		return
	}
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			r.Issues = append(r.Issues, Issue{Severity: SeverityError, Path: f.Path, Message: fmt.Sprintf("read failed: %v", err)})
			continue
		}
		r.FilesChecked++
		fn(f, data)
	}
}
