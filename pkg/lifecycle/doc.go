// Package lifecycle runs the versioned memory lifecycle for one data directory.
//
// A rebuild cycle validates the data (optional), asks the change tracker which
// categories changed, rebuilds those collections, and when anything was rebuilt
// records a new active version and snapshots the vector store under its id.
// A rollback switches the active version and can restore the snapshot over the
// live store, with the store handle released while its files are replaced.
//
// Usage:
//
//	svc, err := lifecycle.New(cfg, logger)
//	report, err := svc.Rebuild(ctx, lifecycle.Options{CreateVersion: true})
//	res := svc.Rollback(ctx, report.VersionID, true)
package lifecycle
