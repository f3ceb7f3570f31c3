package signal

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Store persists signals and their delivery outcomes.
type Store interface {
	// Enqueue adds a signal for delivery, filling in ID, SentAt and
	// Status if the caller left them zero.
	Enqueue(ctx context.Context, signal *Signal) error

	// Pending returns undelivered signals for a conversation.
	Pending(ctx context.Context, targetID string) ([]*Signal, error)

	// Get looks up a signal by ID.
	Get(ctx context.Context, signalID string) (*Signal, error)

	// MarkProcessed records that a signal was handled successfully.
	MarkProcessed(ctx context.Context, signalID string) error

	// MarkFailed records that handling a signal failed.
	MarkFailed(ctx context.Context, signalID string, err error) error

	// ListByTarget returns all signals for a conversation, sent order.
	ListByTarget(ctx context.Context, targetID string) ([]*Signal, error)

	// Delete removes a single signal.
	Delete(ctx context.Context, signalID string) error

	// PurgeTarget removes every signal for a conversation.
	PurgeTarget(ctx context.Context, targetID string) error
}

// MemoryStore keeps signals in process memory, one ordered queue per
// conversation plus an ID index into the same entries.
type MemoryStore struct {
	mu     sync.RWMutex
	queues map[string][]*Signal
	index  map[string]*Signal
}

// NewMemoryStore creates an empty in-memory signal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string][]*Signal),
		index:  make(map[string]*Signal),
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, sig *Signal) error {
	if sig.ID == "" {
		sig.ID = newID()
	}
	if sig.SentAt.IsZero() {
		sig.SentAt = time.Now()
	}
	if sig.Status == "" {
		sig.Status = StatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := sig.Clone()
	s.queues[sig.TargetID] = append(s.queues[sig.TargetID], stored)
	s.index[sig.ID] = stored
	return nil
}

func (s *MemoryStore) Pending(_ context.Context, targetID string) ([]*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Signal
	for _, sig := range s.queues[targetID] {
		if sig.Status == StatusPending {
			out = append(out, sig.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, signalID string) (*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.index[signalID]
	if !ok {
		return nil, ErrSignalNotFound
	}
	return sig.Clone(), nil
}

// stamp finalizes a signal with its delivery outcome.
func (s *MemoryStore) stamp(signalID string, status Status, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.index[signalID]
	if !ok {
		return ErrSignalNotFound
	}

	now := time.Now()
	sig.Status = status
	sig.ProcessedAt = &now
	if cause != nil {
		sig.Error = cause.Error()
	}
	return nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, signalID string) error {
	return s.stamp(signalID, StatusProcessed, nil)
}

func (s *MemoryStore) MarkFailed(_ context.Context, signalID string, err error) error {
	return s.stamp(signalID, StatusFailed, err)
}

func (s *MemoryStore) ListByTarget(_ context.Context, targetID string) ([]*Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue := s.queues[targetID]
	out := make([]*Signal, len(queue))
	for i, sig := range queue {
		out[i] = sig.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, signalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.index[signalID]
	if !ok {
		return ErrSignalNotFound
	}

	s.queues[sig.TargetID] = slices.DeleteFunc(s.queues[sig.TargetID], func(q *Signal) bool {
		return q.ID == signalID
	})
	delete(s.index, signalID)
	return nil
}

func (s *MemoryStore) PurgeTarget(_ context.Context, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sig := range s.queues[targetID] {
		delete(s.index, sig.ID)
	}
	delete(s.queues, targetID)
	return nil
}
