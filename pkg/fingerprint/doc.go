// Package fingerprint computes content digests for data files and directories.
//
// Invariants:
// - A file digest depends only on the file bytes.
// - A directory digest is independent of filesystem iteration order.
// - An absent directory is treated as empty content and never returns an error.
//
// Usage:
//
//	digest, err := fingerprint.HashDirectory("semantic_data", fingerprint.DefaultExtensions)
package fingerprint
