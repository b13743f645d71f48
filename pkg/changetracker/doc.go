// Package changetracker detects added, modified and deleted data files per category.
//
// Invariants:
// - The cache entry of a category reflects the file set of its last successful rebuild.
// - Only UpdateCache mutates the cache, and it persists the whole document atomically.
// - A missing data directory is an empty, valid state.
package changetracker
