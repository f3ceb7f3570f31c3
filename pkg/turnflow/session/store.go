// Package session provides durable snapshot storage for suspend/resume
// and crash recovery.
package session

import (
	"errors"
	"fmt"
	"time"
)

// Store persists run snapshots keyed by (runID, nodeID). Saving the
// same key again replaces the previous snapshot and moves it to the
// end of the List order. Implementations must be safe for concurrent
// use.
type Store interface {
	// Save writes a snapshot, replacing any existing one for the key.
	Save(runID, nodeID string, data []byte) error

	// Load returns a snapshot or ErrNotFound.
	Load(runID, nodeID string) ([]byte, error)

	// List returns a run's snapshot metadata in save order. A run
	// with no snapshots yields an empty slice, not an error.
	List(runID string) ([]Info, error)

	// Delete removes one snapshot. Missing keys are not an error.
	Delete(runID, nodeID string) error

	// DeleteRun removes every snapshot of a run.
	DeleteRun(runID string) error

	// Close releases connections or files held by the store.
	Close() error
}

// Info is snapshot metadata, cheap to list without loading state.
type Info struct {
	RunID     string
	NodeID    string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

var (
	// ErrNotFound means no snapshot exists for the requested key.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed means the store was closed before the call.
	ErrStoreClosed = errors.New("snapshot store closed")

	// ErrVersionMismatch means the stored bytes use a different
	// snapshot format version.
	ErrVersionMismatch = errors.New("snapshot version mismatch")
)

// LoadLatest decodes the newest snapshot of a run. A run with no
// snapshots is ErrNotFound; a stale format is ErrVersionMismatch.
func LoadLatest(store Store, runID string) (*Snapshot, error) {
	infos, err := store.List(runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}

	newest := infos[len(infos)-1]
	data, err := store.Load(runID, newest.NodeID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrVersionMismatch, snap.Version, Version)
	}
	return snap, nil
}
