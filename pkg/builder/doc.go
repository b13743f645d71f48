// Package builder decides which memory categories need rebuilding and runs
// the routines that turn source files into vector-store collections.
//
// A Trigger walks semantic, episodic and procedural in that order. Each
// category's cache entry is updated only after its routine succeeded, so a
// failed build is retried on the next cycle.
package builder
