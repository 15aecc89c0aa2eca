package chunkcache

import (
	"errors"
	"fmt"
)

var (
	// ErrEvictionImpossible is returned when a free slot is required but
	// every resident chunk is pinned by the current batch.
	ErrEvictionImpossible = errors.New("no evictable chunk: every resident chunk is pinned by the current batch")

	// ErrClosed is returned when an operation is invoked after Close.
	ErrClosed = errors.New("manager is closed")

	// ErrMemoryBudget is returned by New when the resource controller denies
	// the memory required for the host and fast tiers.
	ErrMemoryBudget = errors.New("tier allocation exceeds the configured memory limit")
)

// ErrCapacityExceeded indicates that a batch references more distinct chunks
// than the fast tier can hold; the batch cannot be served regardless of
// eviction.
type ErrCapacityExceeded struct {
	WorkingSet int
	Capacity   int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("batch pulls %d chunks, which exceeds the fast-tier capacity of %d chunks; "+
		"increase capacity or chunk size, or shrink the batch", e.WorkingSet, e.Capacity)
}

// ErrInvalidID indicates a row id outside [0, NumRows).
type ErrInvalidID struct {
	ID      uint32
	NumRows int
}

func (e *ErrInvalidID) Error() string {
	return fmt.Sprintf("row id %d out of range [0, %d)", e.ID, e.NumRows)
}

// ErrGeometryMismatch indicates a checkpoint whose shape does not match the
// manager it is being restored into.
type ErrGeometryMismatch struct {
	Field    string
	Expected int
	Actual   int
}

func (e *ErrGeometryMismatch) Error() string {
	return fmt.Sprintf("checkpoint geometry mismatch: %s is %d, expected %d", e.Field, e.Actual, e.Expected)
}
