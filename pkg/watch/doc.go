// Package watch turns file system events in the data directories into
// debounced change batches, which the CLI's watch command submits as
// incremental rebuild jobs.
package watch
