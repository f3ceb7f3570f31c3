package session

import (
	"bytes"
	"cmp"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. Suited to tests and
// single-process runs; everything is gone on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]map[string]memEntry
	nextSeq map[string]int
	closed  bool
}

type memEntry struct {
	payload []byte
	seq     int
	savedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]map[string]memEntry),
		nextSeq: make(map[string]int),
	}
}

func (m *MemoryStore) Save(runID, nodeID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	byNode := m.runs[runID]
	if byNode == nil {
		byNode = make(map[string]memEntry)
		m.runs[runID] = byNode
	}

	m.nextSeq[runID]++
	byNode[nodeID] = memEntry{
		payload: bytes.Clone(data),
		seq:     m.nextSeq[runID],
		savedAt: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) Load(runID, nodeID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := m.runs[runID][nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(entry.payload), nil
}

func (m *MemoryStore) List(runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	byNode := m.runs[runID]
	if len(byNode) == 0 {
		return nil, nil
	}

	infos := make([]Info, 0, len(byNode))
	for nodeID, entry := range byNode {
		infos = append(infos, Info{
			RunID:     runID,
			NodeID:    nodeID,
			Sequence:  entry.seq,
			Timestamp: entry.savedAt,
			Size:      int64(len(entry.payload)),
		})
	}
	slices.SortFunc(infos, func(a, b Info) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return infos, nil
}

func (m *MemoryStore) Delete(runID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs[runID], nodeID)
	return nil
}

func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	delete(m.nextSeq, runID)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	m.nextSeq = nil
	return nil
}

// Len counts snapshots across all runs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, byNode := range m.runs {
		n += len(byNode)
	}
	return n
}
