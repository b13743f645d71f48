// Package memerrors defines the error taxonomy shared by the memory lifecycle packages.
//
// Typed errors carry the operation and the path or id they concern and unwrap to
// their cause, so callers can use errors.As for the type and errors.Is for the cause.
package memerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a version or snapshot id is unknown
	ErrNotFound = errors.New("not found")

	// ErrInvalidCategory is returned for a category outside semantic/episodic/procedural/system_prompt
	ErrInvalidCategory = errors.New("invalid category")

	// ErrCollectionNotFound is returned when a vector-store collection does not exist
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch is returned when a vector does not match the collection dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// DataLoadingError reports a source directory or file that could not be read or parsed.
type DataLoadingError struct {
	Path string
	Err  error
}

func (e *DataLoadingError) Error() string {
	return fmt.Sprintf("data loading failed for %s: %v", e.Path, e.Err)
}

func (e *DataLoadingError) Unwrap() error { return e.Err }

// PersistenceError reports a registry or cache file that could not be read or written.
type PersistenceError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SnapshotError reports a copy or restore failure. It is logged by the snapshot
// store and never returned past its public methods.
type SnapshotError struct {
	Op        string // "create", "restore", "delete"
	VersionID string
	Err       error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.VersionID, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid configuration value.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
}

// EmbeddingError reports a failure of the embedding backend.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// VectorStoreError reports a failure of the vector-store backend.
type VectorStoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *VectorStoreError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vector store %s on %s: %v", e.Op, e.Collection, e.Err)
}

func (e *VectorStoreError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
