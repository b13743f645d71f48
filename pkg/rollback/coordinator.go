package rollback

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/internal/tracing"
	"github.com/harun/twinself/pkg/memerrors"
	"github.com/harun/twinself/pkg/version"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Versions is the registry surface the coordinator needs.
type Versions interface {
	Get(id string) (*version.MemoryVersion, bool)
	Activate(id string) error
	Diff(a, b string) (version.Diff, bool)
}

// Snapshots is the snapshot surface the coordinator needs.
type Snapshots interface {
	Restore(ctx context.Context, versionID string, restorePrompt bool) bool
	LastBackup() string
}

// Config holds coordinator configuration
type Config struct {
	Versions  Versions
	Snapshots Snapshots
	Logger    zerolog.Logger
}

// Result describes what a rollback achieved.
type Result struct {
	VersionID      string `json:"version_id"`
	Found          bool   `json:"found"`
	PointerUpdated bool   `json:"pointer_updated"`
	DataRequested  bool   `json:"data_requested"`
	DataRestored   bool   `json:"data_restored"`
	Backup         string `json:"backup,omitempty"`
	Err            error  `json:"-"`
}

// Partial reports that the pointer moved but the requested data restore did not happen.
func (r Result) Partial() bool {
	return r.PointerUpdated && r.DataRequested && !r.DataRestored
}

// OK reports that everything asked for succeeded.
func (r Result) OK() bool {
	return r.Found && r.PointerUpdated && (!r.DataRequested || r.DataRestored)
}

// Outcome is the label used in metrics and audit records.
func (r Result) Outcome() string {
	switch {
	case r.OK():
		return "success"
	case r.Partial():
		return "partial"
	case !r.Found:
		return "not_found"
	default:
		return "failure"
	}
}

// Error returns a message naming the version and what did not happen, or "".
func (r Result) Error() string {
	switch {
	case r.OK():
		return ""
	case !r.Found:
		return fmt.Sprintf("version %s not found", r.VersionID)
	case r.Partial():
		return fmt.Sprintf("active version set to %s but snapshot data was not restored", r.VersionID)
	case r.Err != nil:
		return fmt.Sprintf("rollback to %s failed: %v", r.VersionID, r.Err)
	default:
		return fmt.Sprintf("rollback to %s failed", r.VersionID)
	}
}

// Coordinator moves the active version pointer and optionally restores snapshot data.
type Coordinator struct {
	versions  Versions
	snapshots Snapshots
	logger    zerolog.Logger
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Versions == nil {
		return nil, fmt.Errorf("version registry is required")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	return &Coordinator{
		versions:  cfg.Versions,
		snapshots: cfg.Snapshots,
		logger:    cfg.Logger,
	}, nil
}

// Rollback makes versionID active. When restoreData is set the version's
// snapshot is restored first; the pointer is moved even if that restore fails
// so operator intent is recorded, and the result reports the partial outcome.
func (c *Coordinator) Rollback(ctx context.Context, versionID string, restoreData bool) Result {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerLifecycle, "rollback",
		attribute.String("version_id", versionID),
		attribute.Bool("restore_data", restoreData))
	defer span.End()
	ctx = tracing.WithVersionID(ctx, versionID)
	logger := tracing.LoggerFromContext(ctx, c.logger)

	start := time.Now()
	res := Result{VersionID: versionID, DataRequested: restoreData}

	target, ok := c.versions.Get(versionID)
	if !ok {
		res.Err = fmt.Errorf("version %s: %w", versionID, memerrors.ErrNotFound)
		logger.Error().Msg("Rollback target not found")
		c.finish(ctx, res, start)
		tracing.FailSpan(span, res.Err)
		return res
	}

	if restoreData {
		res.DataRestored = c.snapshots.Restore(ctx, versionID, true)
		res.Backup = c.snapshots.LastBackup()
		if !res.DataRestored {
			res.Err = &memerrors.SnapshotError{Op: "restore", VersionID: versionID, Err: fmt.Errorf("snapshot data not restored")}
			logger.Error().Msg("Snapshot restore failed, switching active version anyway")
		}
	}

	if err := c.versions.Activate(versionID); err != nil {
		res.Err = err
		logger.Error().Err(err).Msg("Failed to switch active version")
		c.finish(ctx, res, start)
		tracing.FailSpan(span, err)
		return res
	}
	res.PointerUpdated = true

	if res.Partial() {
		logger.Error().
			Str("backup", res.Backup).
			Msg("Rollback partially failed: active version switched but data was not restored")
		tracing.FailSpan(span, res.Err)
	} else {
		logger.Info().
			Bool("data_restored", res.DataRestored).
			Int("points", target.TotalPoints()).
			Msg("Rolled back to version")
	}

	c.finish(ctx, res, start)
	return res
}

func (c *Coordinator) finish(ctx context.Context, res Result, start time.Time) {
	observability.RecordRollback(res.Outcome())
	md := map[string]interface{}{
		"data_requested":  res.DataRequested,
		"data_restored":   res.DataRestored,
		"pointer_updated": res.PointerUpdated,
		"duration_ms":     time.Since(start).Milliseconds(),
	}
	if res.Backup != "" {
		md["backup"] = res.Backup
	}
	if res.Err != nil {
		md["error"] = res.Err.Error()
	}
	observability.RecordRollbackAudit(ctx, res.VersionID, tracing.GetActor(ctx), res.Outcome(), md)
}

// Diff compares two versions. ok is false when either is unknown.
func (c *Coordinator) Diff(a, b string) (version.Diff, bool) {
	return c.versions.Diff(a, b)
}
