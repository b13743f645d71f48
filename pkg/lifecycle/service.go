package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/twinself/internal/config"
	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/builder"
	"github.com/harun/twinself/pkg/changetracker"
	"github.com/harun/twinself/pkg/datavalidate"
	"github.com/harun/twinself/pkg/embedding"
	"github.com/harun/twinself/pkg/fingerprint"
	"github.com/harun/twinself/pkg/hooks"
	"github.com/harun/twinself/pkg/prompt"
	"github.com/harun/twinself/pkg/rollback"
	"github.com/harun/twinself/pkg/rulegen"
	"github.com/harun/twinself/pkg/snapshot"
	"github.com/harun/twinself/pkg/suggestions"
	"github.com/harun/twinself/pkg/vectorstore"
	"github.com/harun/twinself/pkg/version"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidData is returned by Rebuild when validation finds errors.
var ErrInvalidData = errors.New("data validation failed")

// Options controls one rebuild cycle.
type Options struct {
	Force             bool   `json:"force"`
	DryRun            bool   `json:"dry_run"`
	SkipProceduralGen bool   `json:"skip_procedural_gen"`
	CreateVersion     bool   `json:"create_version"`
	Validate          bool   `json:"validate"`
	Trigger           string `json:"trigger,omitempty"` // cli, api, scheduler, watch
}

// CategoryPlan is what a cycle would do to one category.
type CategoryPlan struct {
	Category    changetracker.Category `json:"category"`
	Dir         string                 `json:"dir"`
	Collection  string                 `json:"collection,omitempty"`
	Changes     changetracker.Summary  `json:"changes"`
	WillRebuild bool                   `json:"will_rebuild"`
	Error       string                 `json:"error,omitempty"`
}

// Plan lists per-category change summaries without building anything.
type Plan struct {
	Force         bool           `json:"force"`
	Categories    []CategoryPlan `json:"categories"`
	GenerateRules bool           `json:"generate_rules"`
	PromptChanged bool           `json:"prompt_changed"`
	TotalChanges  int            `json:"total_changes"`
}

// HasChanges reports whether any category changed.
func (p Plan) HasChanges() bool { return p.TotalChanges > 0 }

// Report is the outcome of one Rebuild call.
type Report struct {
	CycleID          string                            `json:"cycle_id"`
	Options          Options                           `json:"options"`
	Plan             Plan                              `json:"plan"`
	Validation       *datavalidate.Report              `json:"validation,omitempty"`
	Build            *builder.Result                   `json:"build,omitempty"`
	UpToDate         bool                              `json:"up_to_date"`
	VersionID        string                            `json:"version_id,omitempty"`
	Collections      map[string]int                    `json:"collections,omitempty"`
	PromptFile       string                            `json:"prompt_file,omitempty"`
	SnapshotCreated  bool                              `json:"snapshot_created"`
	SnapshotsRemoved int                               `json:"snapshots_removed"`
	Failures         map[changetracker.Category]string `json:"failures,omitempty"`
	Outcome          string                            `json:"outcome"`
	DurationMS       int64                             `json:"duration_ms"`
}

// Status summarizes the current memory state.
type Status struct {
	Active      *version.MemoryVersion                           `json:"active,omitempty"`
	Versions    int                                              `json:"versions"`
	Snapshots   int                                              `json:"snapshots"`
	Collections map[string]int                                   `json:"collections"`
	Pending     map[changetracker.Category]changetracker.Summary `json:"pending"`
	Backend     string                                           `json:"backend"`
	Embedder    string                                           `json:"embedder"`
}

// Option customizes collaborators, mostly for tests.
type Option func(*Service)

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(p embedding.Provider) Option {
	return func(s *Service) { s.embedder = p }
}

// WithCompleter replaces the configured rule generation model.
func WithCompleter(c rulegen.Completer) Option {
	return func(s *Service) { s.completer = c }
}

// WithClock sets the clock used for version ids and ingestion stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// Service runs rebuild cycles and rollbacks over one data directory.
type Service struct {
	cfg    *config.Config
	logger zerolog.Logger
	clock  func() time.Time

	tracker     *changetracker.Tracker
	registry    *version.Registry
	snapshots   *snapshot.Store
	coordinator *rollback.Coordinator
	store       *vectorstore.Handle
	embedder    embedding.Provider
	completer   rulegen.Completer
	generator   *rulegen.Generator
	validator   *datavalidate.Validator
	prompts     *prompt.Loader
	hooks       *hooks.Manager
	inbox       *suggestions.Inbox

	// serializes cycles and rollbacks started outside the command queue
	mu sync.Mutex
}

// New opens every collaborator described by cfg.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	s := &Service{cfg: cfg, logger: logger.With().Str("component", "lifecycle").Logger()}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.tracker, err = changetracker.New(changetracker.Config{
		CachePath: cfg.Resolve(cfg.Paths.BuildCache),
		Logger:    s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open build cache: %w", err)
	}

	s.registry, err = version.NewRegistry(version.Config{
		Path:   cfg.Resolve(cfg.Paths.VersionRegistry),
		Logger: s.logger,
		Clock:  s.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open version registry: %w", err)
	}

	s.snapshots, err = snapshot.New(snapshot.Config{
		SnapshotsDir:    cfg.Resolve(cfg.Paths.Snapshots),
		LiveDir:         cfg.Resolve(cfg.Paths.VectorStore),
		ExcludePatterns: cfg.Snapshots.Exclude,
		Versions:        s.registry,
		Logger:          s.logger,
		Clock:           s.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	s.coordinator, err = rollback.New(rollback.Config{
		Versions:  s.registry,
		Snapshots: s.snapshots,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}

	s.validator, err = datavalidate.New()
	if err != nil {
		return nil, err
	}

	s.prompts, err = prompt.NewLoader(prompt.Config{
		Dir:       cfg.Resolve(cfg.Paths.SystemPrompts),
		Versions:  s.registry,
		Snapshots: s.snapshots,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}

	if s.embedder == nil {
		s.embedder, err = embedding.New(embedding.Config{
			Provider:  cfg.Embedding.Provider,
			Model:     cfg.Embedding.Model,
			APIKey:    cfg.Embedding.APIKey,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
			CacheSize: cfg.Embedding.CacheSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
	}

	if err := s.initRuleGeneration(); err != nil {
		return nil, err
	}

	s.hooks, err = hooks.NewManager(hookConfig(cfg.Hooks, s.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to load hooks: %w", err)
	}

	s.inbox, err = NewInbox(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	s.store, err = vectorstore.OpenHandle(vectorstore.Config{
		Backend: cfg.VectorStore.Backend,
		Dir:     cfg.Resolve(cfg.Paths.VectorStore),
		Logger:  s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	s.publishState()
	return s, nil
}

func (s *Service) initRuleGeneration() error {
	rg := s.cfg.RuleGeneration
	if !rg.Enabled {
		return nil
	}
	if s.completer == nil {
		if rg.APIKey == "" {
			s.logger.Warn().Msg("Rule generation enabled but no Anthropic API key configured, skipping")
			return nil
		}
		c, err := rulegen.NewAnthropicCompleter(rulegen.AnthropicConfig{
			APIKey:    rg.APIKey,
			Model:     rg.Model,
			MaxTokens: rg.MaxTokens,
		})
		if err != nil {
			return err
		}
		s.completer = c
	}

	output := rg.OutputFile
	if output == "" {
		output = rulegen.DefaultOutputFile
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(s.cfg.CategoryDir(changetracker.CategoryProcedural), output)
	}

	gen, err := rulegen.New(rulegen.Config{
		Completer:   s.completer,
		Validator:   s.validator,
		EpisodicDir: s.cfg.CategoryDir(changetracker.CategoryEpisodic),
		OutputPath:  output,
		MaxExamples: rg.MaxExamples,
		Logger:      s.logger,
	})
	if err != nil {
		return err
	}
	s.generator = gen
	return nil
}

// Close releases the vector store.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) Config() *config.Config          { return s.cfg }
func (s *Service) Registry() *version.Registry     { return s.registry }
func (s *Service) Snapshots() *snapshot.Store      { return s.snapshots }
func (s *Service) Prompts() *prompt.Loader         { return s.prompts }
func (s *Service) Suggestions() *suggestions.Inbox { return s.inbox }
func (s *Service) Store() vectorstore.Store        { return s.store }
func (s *Service) Tracker() *changetracker.Tracker { return s.tracker }
func (s *Service) RuleGenerationEnabled() bool     { return s.generator != nil }

// DataDirs lists the watched source directories in category order.
func (s *Service) DataDirs() []string {
	dirs := make([]string, 0, len(changetracker.Categories))
	for _, c := range changetracker.Categories {
		dirs = append(dirs, s.cfg.CategoryDir(c))
	}
	return dirs
}

// Validate checks the data directories.
func (s *Service) Validate() datavalidate.Report {
	return s.validator.Validate(datavalidate.Dirs{
		Semantic:      s.cfg.CategoryDir(changetracker.CategorySemantic),
		Episodic:      s.cfg.CategoryDir(changetracker.CategoryEpisodic),
		Procedural:    s.cfg.CategoryDir(changetracker.CategoryProcedural),
		SystemPrompts: s.cfg.CategoryDir(changetracker.CategorySystemPrompt),
	})
}

// Plan computes per-category change summaries. Nothing is built and no cache is touched.
func (s *Service) Plan(ctx context.Context, force bool) (Plan, error) {
	_, span := tracing.StartSpan(ctx, tracing.TracerLifecycle, "lifecycle.plan",
		attribute.Bool("force", force))
	defer span.End()

	plan := Plan{Force: force}
	var errs []error
	for _, category := range changetracker.Categories {
		cp := CategoryPlan{Category: category, Dir: s.cfg.CategoryDir(category)}
		if category != changetracker.CategorySystemPrompt {
			cp.Collection = s.cfg.CollectionName(category)
		}
		summary, err := s.tracker.ChangeSummary(cp.Dir, category)
		if err != nil {
			cp.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", category, err))
		}
		cp.Changes = summary
		plan.TotalChanges += summary.TotalChanges
		if cp.Collection != "" {
			cp.WillRebuild = force || summary.TotalChanges > 0
		} else {
			plan.PromptChanged = summary.TotalChanges > 0
		}
		// New rules from a changed episodic set also rebuild procedural.
		if category == changetracker.CategoryEpisodic && cp.WillRebuild && s.generator != nil {
			plan.GenerateRules = true
		}
		plan.Categories = append(plan.Categories, cp)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		tracing.FailSpan(span, err)
		return plan, err
	}
	return plan, nil
}

// Rebuild runs one cycle: validate, detect changes, rebuild changed
// categories, then record a version and snapshot it when anything was rebuilt.
func (s *Service) Rebuild(ctx context.Context, opts Options) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tracing.GetCycleID(ctx) == "" {
		ctx = tracing.NewCycleContext(ctx, opts.Trigger)
	}
	ctx, span := tracing.StartSpan(ctx, tracing.TracerLifecycle, "lifecycle.rebuild",
		attribute.Bool("force", opts.Force),
		attribute.Bool("dry_run", opts.DryRun))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	report := &Report{CycleID: tracing.GetCycleID(ctx), Options: opts}
	finish := func(outcome string) {
		report.Outcome = outcome
		report.DurationMS = time.Since(start).Milliseconds()
		observability.RecordRebuildCycle(outcome, time.Since(start))
		if outcome == "failed" || outcome == "partial" {
			s.fireHook(ctx, hooks.EventRebuildFailed, map[string]interface{}{
				"cycle_id": report.CycleID,
				"trigger":  opts.Trigger,
				"outcome":  outcome,
				"failures": len(report.Failures),
			})
		}
	}

	if opts.Validate {
		vr := s.Validate()
		report.Validation = &vr
		if !vr.OK() {
			err := fmt.Errorf("%w: %d errors", ErrInvalidData, len(vr.Errors()))
			logger.Error().Int("errors", len(vr.Errors())).Msg("Validation failed, rebuild aborted")
			tracing.FailSpan(span, err)
			finish("failed")
			return report, err
		}
	}

	plan, err := s.Plan(ctx, opts.Force)
	report.Plan = plan
	if err != nil {
		logger.Warn().Err(err).Msg("Change detection reported errors")
	}

	if opts.DryRun {
		finish("dry_run")
		return report, nil
	}
	if !opts.Force && !opts.CreateVersion && !plan.HasChanges() {
		logger.Info().Msg("No changes detected, memories are up to date")
		report.UpToDate = true
		finish("noop")
		return report, nil
	}

	trigger, err := s.newTrigger(opts)
	if err != nil {
		tracing.FailSpan(span, err)
		finish("failed")
		return report, err
	}
	result := trigger.Run(ctx, opts.Force)
	report.Build = &result
	report.Failures = result.Failures()

	rebuilt := len(result.Rebuilt()) > 0
	if rebuilt || plan.PromptChanged || opts.CreateVersion {
		if err := s.recordVersion(ctx, report); err != nil {
			tracing.FailSpan(span, err)
			finish("failed")
			return report, err
		}
		s.fireHook(ctx, hooks.EventVersionCreated, map[string]interface{}{
			"version_id": report.VersionID,
			"cycle_id":   report.CycleID,
			"trigger":    opts.Trigger,
			"snapshot":   report.SnapshotCreated,
			"prompt":     report.PromptFile,
		})
	}

	switch {
	case len(report.Failures) > 0 && rebuilt:
		finish("partial")
	case len(report.Failures) > 0:
		finish("failed")
	default:
		finish("success")
	}

	logger.Info().
		Str("outcome", report.Outcome).
		Int("rebuilt", len(result.Rebuilt())).
		Int("failures", len(report.Failures)).
		Str("version_id", report.VersionID).
		Msg("Rebuild cycle finished")
	return report, nil
}

func (s *Service) newTrigger(opts Options) (*builder.Trigger, error) {
	deps := builder.Deps{
		Store:     s.store,
		Embedder:  s.embedder,
		BatchSize: s.cfg.Embedding.BatchSize,
		Logger:    s.logger,
		Clock:     s.clock,
	}
	targets := map[changetracker.Category]builder.Target{
		changetracker.CategorySemantic: {
			Routine: &builder.SemanticRoutine{Deps: deps, ChunkSize: s.cfg.Chunking.Size, ChunkOverlap: s.cfg.Chunking.Overlap},
		},
		changetracker.CategoryEpisodic:   {Routine: &builder.EpisodicRoutine{Deps: deps}},
		changetracker.CategoryProcedural: {Routine: &builder.ProceduralRoutine{Deps: deps}},
	}
	for category, t := range targets {
		t.Dir = s.cfg.CategoryDir(category)
		t.Collection = s.cfg.CollectionName(category)
		targets[category] = t
	}

	var hook builder.AfterBuildFunc
	if s.generator != nil && !opts.SkipProceduralGen {
		hook = func(ctx context.Context, category changetracker.Category) (bool, error) {
			if category != changetracker.CategoryEpisodic {
				return false, nil
			}
			return s.generator.Generate(ctx)
		}
	}

	return builder.NewTrigger(builder.Config{
		Tracker:    s.tracker,
		Targets:    targets,
		AfterBuild: hook,
		Logger:     s.logger,
	})
}

// recordVersion creates the version for a finished build and snapshots it.
// Snapshot problems are logged; the version record stands on its own.
func (s *Service) recordVersion(ctx context.Context, report *Report) error {
	logger := tracing.LoggerFromContext(ctx, s.logger)

	counts, err := s.collectionCounts(ctx)
	if err != nil {
		return err
	}
	hashes, err := s.dataHashes(ctx)
	if err != nil {
		return err
	}

	changes := map[string]interface{}{}
	for _, cp := range report.Plan.Categories {
		changes[string(cp.Category)] = cp.Changes
	}
	metadata := map[string]interface{}{
		"changes": changes,
		"force":   report.Options.Force,
		"cycle":   report.CycleID,
	}
	if report.Options.Trigger != "" {
		metadata["trigger"] = report.Options.Trigger
	}
	if len(report.Failures) > 0 {
		failures := map[string]string{}
		for c, msg := range report.Failures {
			failures[string(c)] = msg
		}
		metadata["failures"] = failures
	}

	id, err := s.registry.CreateVersion(counts, hashes, metadata)
	if err != nil {
		return err
	}
	ctx = tracing.WithVersionID(ctx, id)
	report.VersionID = id
	report.Collections = counts
	observability.RecordVersionAudit(ctx, id, tracing.GetActor(ctx), metadata)

	promptFile, _, perr := s.prompts.Resolve()
	if perr == nil {
		if err := s.registry.SetSystemPromptFile(id, promptFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to bind system prompt to version")
		} else {
			report.PromptFile = promptFile
		}
	}
	s.prompts.Invalidate()

	// The system prompt is versioned through the snapshot, so its cache only moves now.
	if err := s.tracker.UpdateCache(s.cfg.CategoryDir(changetracker.CategorySystemPrompt), changetracker.CategorySystemPrompt); err != nil {
		logger.Warn().Err(err).Msg("Failed to update system prompt cache")
	}

	report.SnapshotCreated = s.snapshot(ctx, id, report.PromptFile)
	if report.SnapshotCreated && s.cfg.Snapshots.AutoCleanup {
		report.SnapshotsRemoved = s.CleanupSnapshots(ctx, s.cfg.Snapshots.KeepLast)
	}

	s.publishState()
	logger.Info().
		Str("version_id", id).
		Bool("snapshot", report.SnapshotCreated).
		Msg("Version recorded")
	return nil
}

// snapshot copies the live store with the handle released, so the
// copy never sees a half-written database file.
func (s *Service) snapshot(ctx context.Context, id, promptFile string) bool {
	if err := s.store.Release(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to release vector store before snapshot")
	}
	ok := s.snapshots.Create(ctx, id, promptFile)
	if err := s.store.Reopen(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to reopen vector store after snapshot")
	}

	status := "success"
	if !ok {
		status = "failure"
	}
	observability.RecordSnapshotAudit(ctx, "create", id, tracing.GetActor(ctx), status, map[string]interface{}{
		"size": s.snapshots.Size(id),
	})
	return ok
}

func (s *Service) collectionCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	for _, category := range builder.Order {
		name := s.cfg.CollectionName(category)
		exists, err := s.store.CollectionExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			counts[name] = 0
			continue
		}
		n, err := s.store.Count(ctx, name)
		if err != nil {
			return nil, err
		}
		counts[name] = n
	}
	observability.SetCollectionSizes(counts)
	return counts, nil
}

// dataHashes hashes every category directory concurrently.
func (s *Service) dataHashes(ctx context.Context) (map[string]string, error) {
	hashes := make([]string, len(changetracker.Categories))
	g, _ := errgroup.WithContext(ctx)
	for i, category := range changetracker.Categories {
		i, dir := i, s.cfg.CategoryDir(category)
		g.Go(func() error {
			h, err := fingerprint.HashDirectory(dir, fingerprint.DefaultExtensions)
			if err != nil {
				return fmt.Errorf("hash %s: %w", dir, err)
			}
			hashes[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(hashes))
	for i, category := range changetracker.Categories {
		out[string(category)] = hashes[i]
	}
	return out, nil
}

// Rollback makes id active and, when restoreData is set, restores its
// snapshot over the live vector store.
func (s *Service) Rollback(ctx context.Context, id string, restoreData bool) rollback.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if restoreData {
		if err := s.store.Release(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release vector store before restore")
		}
	}
	res := s.coordinator.Rollback(ctx, id, restoreData)
	if restoreData {
		if err := s.store.Reopen(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to reopen vector store after restore")
			if res.Err == nil {
				res.Err = err
			}
		}
		observability.RecordSnapshotAudit(ctx, "restore", id, tracing.GetActor(ctx), res.Outcome(), map[string]interface{}{
			"backup": res.Backup,
		})
	}
	s.prompts.Invalidate()
	s.publishState()
	if res.PointerUpdated {
		s.fireHook(ctx, hooks.EventRollback, map[string]interface{}{
			"version_id":    id,
			"outcome":       res.Outcome(),
			"data_restored": res.DataRestored,
		})
	}
	return res
}

// Diff compares two versions. ok is false when either is unknown.
func (s *Service) Diff(a, b string) (version.Diff, bool) {
	return s.coordinator.Diff(a, b)
}

// DeleteSnapshot removes one snapshot; the version record stays.
func (s *Service) DeleteSnapshot(ctx context.Context, id string) bool {
	ok := s.snapshots.Delete(id)
	status := "success"
	if !ok {
		status = "not_found"
	}
	observability.RecordSnapshotAudit(ctx, "delete", id, tracing.GetActor(ctx), status, nil)
	s.publishState()
	return ok
}

// CleanupSnapshots keeps the newest keep snapshots.
func (s *Service) CleanupSnapshots(ctx context.Context, keep int) int {
	removed := s.snapshots.Cleanup(keep)
	if removed > 0 {
		observability.RecordSnapshotAudit(ctx, "cleanup", "", tracing.GetActor(ctx), "success", map[string]interface{}{
			"removed":   removed,
			"keep_last": keep,
		})
	}
	return removed
}

// Status reports the active version, stored counts and pending changes.
func (s *Service) Status(ctx context.Context) (Status, error) {
	st := Status{
		Versions:  s.registry.Len(),
		Snapshots: len(s.snapshots.List()),
		Pending:   map[changetracker.Category]changetracker.Summary{},
		Backend:   s.cfg.VectorStore.Backend,
		Embedder:  s.embedder.Name(),
	}
	if v, ok := s.registry.ActiveVersion(); ok {
		st.Active = v
	}
	counts, err := s.collectionCounts(ctx)
	if err != nil {
		return st, err
	}
	st.Collections = counts
	for _, category := range changetracker.Categories {
		summary, err := s.tracker.ChangeSummary(s.cfg.CategoryDir(category), category)
		if err != nil {
			return st, err
		}
		st.Pending[category] = summary
	}
	return st, nil
}

func (s *Service) publishState() {
	active := ""
	if v, ok := s.registry.ActiveVersion(); ok {
		active = v.VersionID
	}
	observability.SetVersionState(s.registry.Len(), active)
	observability.SetSnapshotsStored(len(s.snapshots.List()))
}

func hookConfig(cfg config.HooksConfig, logger zerolog.Logger) hooks.Config {
	out := hooks.Config{Enabled: cfg.Enabled, Logger: logger}
	for _, h := range cfg.Hooks {
		out.Hooks = append(out.Hooks, hooks.Hook{
			ID:      h.ID,
			Event:   h.Event,
			Script:  h.Script,
			Timeout: time.Duration(h.TimeoutSec) * time.Second,
			Enabled: h.Enabled,
		})
	}
	return out
}

// fireHook runs the scripts for event. A failing hook never fails the operation.
func (s *Service) fireHook(ctx context.Context, event string, data map[string]interface{}) {
	if s.hooks.Count(event) == 0 {
		return
	}
	if err := s.hooks.Trigger(ctx, event, data); err != nil {
		hookLogger := tracing.LoggerFromContext(ctx, s.logger)
		hookLogger.Warn().Err(err).Str("event", event).Msg("Lifecycle hook failed")
	}
}

// NewInbox opens the user suggestion inbox described by cfg.
func NewInbox(cfg *config.Config, logger zerolog.Logger) (*suggestions.Inbox, error) {
	return suggestions.New(suggestions.Config{
		InboxPath:  cfg.Resolve(cfg.Suggestions.Inbox),
		OutputPath: cfg.SuggestionsOutput(),
		ArchiveDir: cfg.Resolve(cfg.Suggestions.ArchiveDir),
		Logger:     logger,
	})
}
