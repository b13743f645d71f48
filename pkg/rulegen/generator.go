package rulegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/builder"
	"github.com/harun/twinself/pkg/datavalidate"
	"github.com/harun/twinself/pkg/fsutil"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultOutputFile is the name of the generated rules file in the procedural directory.
const DefaultOutputFile = "generated_procedural_rules.json"

// MinRules is the fewest rules a response must contain to be accepted.
const MinRules = 4

const systemPrompt = "You analyse conversation examples and extract procedural rules for a digital persona. " +
	"Infer the persona, tone and interaction style from the examples and state them as clear, actionable " +
	"rules for a chatbot. Answer with JSON only, in the requested format."

const userPromptTemplate = `Here are examples of questions and how I answered them:

%s

Based on these examples, define procedural rules for the chatbot's persona, tone and interaction strategy.
Focus on general guidelines, not specific answers. Include a rule for questions outside its knowledge
(fallback behaviour). Give at least %d distinct rules in this JSON format:

{"rules": [
  {"rule_name": "general_persona", "rule_content": "..."},
  {"rule_name": "tone_guidelines", "rule_content": "..."},
  {"rule_name": "interaction_strategy", "rule_content": "..."},
  {"rule_name": "fallback_behavior", "rule_content": "..."}
]}`

// Config holds generator configuration
type Config struct {
	Completer   Completer
	Validator   *datavalidate.Validator
	EpisodicDir string
	OutputPath  string // usually <procedural_dir>/generated_procedural_rules.json
	MaxExamples int
	Logger      zerolog.Logger
}

// Generator derives procedural rules from episodic examples.
type Generator struct {
	completer   Completer
	validator   *datavalidate.Validator
	episodicDir string
	outputPath  string
	maxExamples int
	logger      zerolog.Logger
}

func New(cfg Config) (*Generator, error) {
	if cfg.Completer == nil {
		return nil, errors.New("completer is required")
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("output path is required")
	}
	validator := cfg.Validator
	if validator == nil {
		v, err := datavalidate.New()
		if err != nil {
			return nil, err
		}
		validator = v
	}
	max := cfg.MaxExamples
	if max <= 0 {
		max = 50
	}
	return &Generator{
		completer:   cfg.Completer,
		validator:   validator,
		episodicDir: cfg.EpisodicDir,
		outputPath:  cfg.OutputPath,
		maxExamples: max,
		logger:      cfg.Logger,
	}, nil
}

// OutputPath returns the generated rules file.
func (g *Generator) OutputPath() string { return g.outputPath }

// Generate asks the model for rules and writes them to the output file. It
// reports whether the file content changed. An existing file is left alone
// when generation or validation fails.
func (g *Generator) Generate(ctx context.Context) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerBuilder, "rulegen.generate")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, g.logger)

	changed, err := g.generate(ctx, logger)
	switch {
	case err != nil:
		tracing.FailSpan(span, err)
		observability.RecordRuleGeneration("failure")
	case changed:
		observability.RecordRuleGeneration("changed")
	default:
		observability.RecordRuleGeneration("unchanged")
	}
	span.SetAttributes(attribute.Bool("changed", changed))
	return changed, err
}

func (g *Generator) generate(ctx context.Context, logger zerolog.Logger) (bool, error) {
	examples, err := builder.LoadExamples(g.episodicDir, logger.Warn)
	if err != nil {
		return false, err
	}
	sample := Sample(examples, g.maxExamples)

	var formatted []string
	for _, ex := range sample {
		formatted = append(formatted, fmt.Sprintf("User Query: %s\nMy Response: %s", ex.UserQuery, ex.YourResponse))
	}

	logger.Info().Int("examples", len(sample)).Int("available", len(examples)).Msg("Generating procedural rules")
	reply, err := g.completer.Complete(ctx, systemPrompt, fmt.Sprintf(userPromptTemplate, strings.Join(formatted, "\n\n"), MinRules))
	if err != nil {
		return false, fmt.Errorf("rule generation request: %w", err)
	}

	rules, err := ParseRules(reply)
	if err != nil {
		return false, err
	}
	if len(rules) < MinRules {
		return false, fmt.Errorf("model returned %d rules, want at least %d", len(rules), MinRules)
	}

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return false, err
	}
	_, issues := g.validator.ValidateProcedural(g.outputPath, data)
	for _, issue := range issues {
		if issue.Severity == datavalidate.SeverityError {
			return false, fmt.Errorf("generated rules failed validation: %s", issue)
		}
	}

	if existing, err := os.ReadFile(g.outputPath); err == nil && bytes.Equal(existing, data) {
		logger.Info().Msg("Generated rules unchanged")
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(g.outputPath), 0755); err != nil {
		return false, err
	}
	if err := fsutil.WriteFileAtomic(g.outputPath, data, 0644); err != nil {
		return false, fmt.Errorf("write generated rules: %w", err)
	}
	logger.Info().Int("rules", len(rules)).Str("path", g.outputPath).Msg("Procedural rules generated")
	return true, nil
}

// Sample picks at most n examples spread evenly across the input.
func Sample(examples []builder.SourcedExample, n int) []builder.SourcedExample {
	if n <= 0 || len(examples) <= n {
		return examples
	}
	out := make([]builder.SourcedExample, 0, n)
	step := float64(len(examples)) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, examples[int(float64(i)*step)])
	}
	return out
}

// ParseRules extracts the rules array from a model reply, tolerating code
// fences and text around the JSON object.
func ParseRules(reply string) ([]builder.Rule, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in model reply")
	}

	var payload struct {
		Rules []builder.Rule `json:"rules"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	if payload.Rules == nil {
		return nil, errors.New("model reply has no rules array")
	}
	return payload.Rules, nil
}
