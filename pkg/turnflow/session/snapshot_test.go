package session_test

import (
	"encoding/json"
	"testing"

	"github.com/randalmurphal/traveops/pkg/turnflow/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot(t *testing.T) {
	state := []byte(`{"count": 42}`)
	snap := session.New("run-1", "node-a", 3, state, "node-b")

	assert.Equal(t, session.Version, snap.Version)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, "node-a", snap.NodeID)
	assert.Equal(t, 3, snap.Sequence)
	assert.Equal(t, session.StatusRunning, snap.Status)
	assert.Equal(t, json.RawMessage(state), snap.State)
	assert.Equal(t, "node-b", snap.NextNode)
	assert.Equal(t, 1, snap.Attempt)
	assert.False(t, snap.Timestamp.IsZero())
}

func TestSnapshotBuilders(t *testing.T) {
	rec := &session.InterruptRecord{
		NodeID:  "approval",
		Payload: json.RawMessage(`{"prompt":"ok?"}`),
	}

	snap := session.New("run-1", "approval", 5, []byte(`{}`), "approval").
		WithStatus(session.StatusSuspended).
		WithInterrupt(rec).
		WithPrevNode("research").
		WithAttempt(2)

	assert.Equal(t, session.StatusSuspended, snap.Status)
	assert.Equal(t, rec, snap.Interrupt)
	assert.Equal(t, "research", snap.PrevNodeID)
	assert.Equal(t, 2, snap.Attempt)
}

func TestSnapshotRoundTrip(t *testing.T) {
	original := session.New("run-1", "approval", 7, []byte(`{"query":"trip"}`), "approval").
		WithStatus(session.StatusSuspended).
		WithInterrupt(&session.InterruptRecord{
			NodeID:  "approval",
			Payload: json.RawMessage(`{"prompt":"Approve?"}`),
		}).
		WithPrevNode("research")

	data, err := original.Marshal()
	require.NoError(t, err)

	decoded, err := session.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.Version, decoded.Version)
	assert.Equal(t, original.RunID, decoded.RunID)
	assert.Equal(t, original.NodeID, decoded.NodeID)
	assert.Equal(t, original.Sequence, decoded.Sequence)
	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.State, decoded.State)
	assert.Equal(t, original.NextNode, decoded.NextNode)
	assert.Equal(t, original.PrevNodeID, decoded.PrevNodeID)
	require.NotNil(t, decoded.Interrupt)
	assert.Equal(t, original.Interrupt.NodeID, decoded.Interrupt.NodeID)
	assert.JSONEq(t, string(original.Interrupt.Payload), string(decoded.Interrupt.Payload))
}

func TestSnapshotUnmarshalInvalid(t *testing.T) {
	_, err := session.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestLoadLatestVersionMismatch(t *testing.T) {
	store := session.NewMemoryStore()
	defer store.Close()

	snap := session.New("run-1", "node-a", 1, []byte(`{}`), "__end__")
	snap.Version = session.Version + 1
	data, err := snap.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Save("run-1", "node-a", data))

	_, err = session.LoadLatest(store, "run-1")
	assert.ErrorIs(t, err, session.ErrVersionMismatch)
}
