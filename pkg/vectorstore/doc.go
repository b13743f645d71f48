// Package vectorstore provides the collection store that memory builds write into.
//
// Backends:
//   - sqlite: sqlite-vec vec0 tables in a single vectors.db file (default)
//   - chromem: chromem-go persistent database
//   - memory: in-process, for tests and dry runs
//
// Snapshots copy the backend's data directory as a whole, so a store handle
// should be closed before a restore replaces that directory.
package vectorstore
