// Package snapshot stores full copies of the vector-store directory keyed by version id.
//
// Invariants:
// - A snapshot that exists is a complete copy; failed copies are removed before returning.
// - Restore never deletes live data without first copying it to a timestamped backup.
// - Copy and restore failures are logged and reported as false, never returned as errors.
//
// Usage:
//
//	store, err := snapshot.New(snapshot.Config{SnapshotsDir: "data/snapshots", LiveDir: "data/qdrant/twinself", Versions: reg})
//	ok := store.Create(ctx, versionID, promptPath)
//	ok = store.Restore(ctx, versionID, true)
package snapshot
