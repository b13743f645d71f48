// Package version keeps the append-only registry of memory versions.
//
// Invariants:
//   - Exactly one version is active once any version exists.
//   - Records are never deleted; only the active flag and the prompt file change.
//   - Every mutation rewrites the registry file through a temp file and rename, and
//     a failed write leaves the in-memory state as it was before the call.
//
// Usage:
//
//	reg, err := version.NewRegistry(version.Config{Path: "data/version_registry.json", Logger: logger})
//	id, err := reg.CreateVersion(counts, hashes, map[string]interface{}{"trigger": "manual"})
//	diff, ok := reg.Diff(prevID, id)
package version
