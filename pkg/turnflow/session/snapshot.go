package session

import (
	"encoding/json"
	"time"
)

// Version is the snapshot format version. Bump it on breaking changes
// to the Snapshot layout.
const Version = 1

// Status describes where a run stands at the time of a snapshot.
type Status string

const (
	// StatusRunning means the run saved this snapshot mid-execution.
	StatusRunning Status = "running"

	// StatusSuspended means the run stopped at a node that is waiting
	// for an external value before it can continue.
	StatusSuspended Status = "suspended"

	// StatusCompleted means the run reached END.
	StatusCompleted Status = "completed"
)

// InterruptRecord captures why a run suspended and what it showed the caller.
// The payload is whatever the suspending node passed to Await, serialized.
type InterruptRecord struct {
	NodeID  string          `json:"node_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Snapshot is everything a resumed run needs to pick up where the
// saved one stopped.
type Snapshot struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`

	// State is the serialized run state; NextNode is where resume
	// continues from.
	State    json.RawMessage `json:"state"`
	NextNode string          `json:"next_node"`

	Attempt    int              `json:"attempt"`
	PrevNodeID string           `json:"prev_node_id,omitempty"`
	Interrupt  *InterruptRecord `json:"interrupt,omitempty"`
}

// Marshal serializes a snapshot to JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a snapshot from JSON.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// New creates a new snapshot with the given parameters.
// State must already be JSON-serialized. Status defaults to running.
func New(runID, nodeID string, sequence int, state []byte, nextNode string) *Snapshot {
	return &Snapshot{
		Version:   Version,
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		Status:    StatusRunning,
		State:     state,
		NextNode:  nextNode,
		Attempt:   1,
	}
}

// WithStatus sets the run status.
func (s *Snapshot) WithStatus(status Status) *Snapshot {
	s.Status = status
	return s
}

// WithInterrupt records the interrupt that suspended the run.
func (s *Snapshot) WithInterrupt(rec *InterruptRecord) *Snapshot {
	s.Interrupt = rec
	return s
}

// WithAttempt records which retry attempt produced this snapshot.
func (s *Snapshot) WithAttempt(attempt int) *Snapshot {
	s.Attempt = attempt
	return s
}

// WithPrevNode records the node that ran before this one.
func (s *Snapshot) WithPrevNode(prevNodeID string) *Snapshot {
	s.PrevNodeID = prevNodeID
	return s
}
