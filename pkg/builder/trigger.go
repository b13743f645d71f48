package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/changetracker"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Order is the fixed evaluation order of buildable categories. Rule generation
// reads episodic output, so procedural always comes after episodic.
var Order = []changetracker.Category{
	changetracker.CategorySemantic,
	changetracker.CategoryEpisodic,
	changetracker.CategoryProcedural,
}

// Routine rebuilds one collection from a source directory.
type Routine interface {
	Build(ctx context.Context, sourceDir, collection string) error
}

// RoutineFunc adapts a function to Routine.
type RoutineFunc func(ctx context.Context, sourceDir, collection string) error

func (f RoutineFunc) Build(ctx context.Context, sourceDir, collection string) error {
	return f(ctx, sourceDir, collection)
}

// ChangeDetector is the change-tracking surface the trigger needs.
type ChangeDetector interface {
	ChangeSummary(dir string, category changetracker.Category) (changetracker.Summary, error)
	UpdateCache(dir string, category changetracker.Category) error
}

// AfterBuildFunc runs after a category was rebuilt and its cache updated.
// Returning true forces procedural to rebuild later in the same cycle.
type AfterBuildFunc func(ctx context.Context, category changetracker.Category) (bool, error)

// Target binds a category to its source directory, collection and routine.
type Target struct {
	Dir        string
	Collection string
	Routine    Routine
}

// Config holds trigger configuration
type Config struct {
	Tracker    ChangeDetector
	Targets    map[changetracker.Category]Target
	AfterBuild AfterBuildFunc // Optional
	Logger     zerolog.Logger
}

// Outcome records what happened to one category during a cycle.
type Outcome struct {
	Category   changetracker.Category `json:"category"`
	Changes    changetracker.Summary  `json:"changes"`
	Forced     bool                   `json:"forced"`
	Rebuilt    bool                   `json:"rebuilt"`
	Error      string                 `json:"error,omitempty"`
	HookError  string                 `json:"hook_error,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
}

// Result is the outcome of one trigger cycle.
type Result struct {
	Outcomes []Outcome `json:"outcomes"`
}

// Rebuilt lists the categories whose build routine succeeded.
func (r Result) Rebuilt() []changetracker.Category {
	var out []changetracker.Category
	for _, o := range r.Outcomes {
		if o.Rebuilt {
			out = append(out, o.Category)
		}
	}
	return out
}

// Failures maps failed categories to their error text.
func (r Result) Failures() map[changetracker.Category]string {
	out := map[changetracker.Category]string{}
	for _, o := range r.Outcomes {
		if o.Error != "" {
			out[o.Category] = o.Error
		}
	}
	return out
}

// Changes maps every evaluated category to its change summary.
func (r Result) Changes() map[changetracker.Category]changetracker.Summary {
	out := map[changetracker.Category]changetracker.Summary{}
	for _, o := range r.Outcomes {
		out[o.Category] = o.Changes
	}
	return out
}

// Trigger decides per category whether to rebuild and runs the routines.
type Trigger struct {
	tracker    ChangeDetector
	targets    map[changetracker.Category]Target
	afterBuild AfterBuildFunc
	logger     zerolog.Logger
}

// NewTrigger validates that every category in Order has a target.
func NewTrigger(cfg Config) (*Trigger, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("change tracker is required")
	}
	for _, category := range Order {
		t, ok := cfg.Targets[category]
		if !ok || t.Routine == nil {
			return nil, fmt.Errorf("no build routine for category %s", category)
		}
		if t.Collection == "" {
			return nil, fmt.Errorf("no collection for category %s", category)
		}
	}
	return &Trigger{
		tracker:    cfg.Tracker,
		targets:    cfg.Targets,
		afterBuild: cfg.AfterBuild,
		logger:     cfg.Logger,
	}, nil
}

// Run evaluates every category in Order. A category is rebuilt when force is
// set or its directory changed. The cache of a category is updated only after
// its build succeeded; a failed build is recorded and the cycle continues.
func (t *Trigger) Run(ctx context.Context, force bool) Result {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerBuilder, "builder.run",
		attribute.Bool("force", force))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, t.logger)

	var res Result
	forced := map[changetracker.Category]bool{}

	for _, category := range Order {
		target := t.targets[category]
		out := Outcome{Category: category, Forced: force || forced[category]}

		summary, err := t.tracker.ChangeSummary(target.Dir, category)
		if err != nil {
			out.Error = fmt.Sprintf("change detection: %v", err)
			logger.Error().Err(err).Str("category", string(category)).Msg("Change detection failed")
			res.Outcomes = append(res.Outcomes, out)
			continue
		}
		out.Changes = summary
		observability.SetPendingChanges(string(category), summary.TotalChanges)

		if !out.Forced && summary.TotalChanges == 0 {
			logger.Debug().Str("category", string(category)).Msg("No changes, skipping")
			res.Outcomes = append(res.Outcomes, out)
			continue
		}

		t.build(ctx, target, &out)

		if out.Rebuilt && t.afterBuild != nil {
			produced, err := t.afterBuild(ctx, category)
			if err != nil {
				out.HookError = err.Error()
				logger.Warn().Err(err).Str("category", string(category)).Msg("Post-build hook failed")
			}
			if produced {
				forced[changetracker.CategoryProcedural] = true
				logger.Info().Str("category", string(category)).Msg("New procedural content produced, procedural will rebuild")
			}
		}

		res.Outcomes = append(res.Outcomes, out)
	}

	if len(res.Failures()) > 0 {
		span.SetAttributes(attribute.Int("failures", len(res.Failures())))
	}
	return res
}

func (t *Trigger) build(ctx context.Context, target Target, out *Outcome) {
	category := out.Category
	ctx, span := tracing.StartSpan(ctx, tracing.TracerBuilder, "builder.category",
		attribute.String("category", string(category)),
		attribute.String("collection", target.Collection))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, t.logger).With().Str("category", string(category)).Logger()

	logger.Info().
		Str("collection", target.Collection).
		Int("changes", out.Changes.TotalChanges).
		Bool("forced", out.Forced).
		Msg("Rebuilding memory")

	start := time.Now()
	err := target.Routine.Build(ctx, target.Dir, target.Collection)
	duration := time.Since(start)
	out.DurationMS = duration.Milliseconds()
	observability.RecordCategoryBuild(string(category), duration, err == nil)

	if err != nil {
		out.Error = err.Error()
		tracing.FailSpan(span, err)
		logger.Error().Err(err).Msg("Build failed, cache left untouched")
		return
	}
	out.Rebuilt = true

	if err := t.tracker.UpdateCache(target.Dir, category); err != nil {
		out.Error = fmt.Sprintf("cache update: %v", err)
		tracing.FailSpan(span, err)
		logger.Error().Err(err).Msg("Build succeeded but cache update failed")
		return
	}
	observability.SetPendingChanges(string(category), 0)
	logger.Info().Dur("duration", duration).Msg("Memory rebuilt")
}
