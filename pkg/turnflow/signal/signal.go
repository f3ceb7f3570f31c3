// Package signal delivers fire-and-forget messages to conversations.
//
// A signal carries an external event into a running or suspended
// conversation: a user's reply from a chat channel, an approval decision,
// a cancellation request. Signals are queued per conversation, dispatched
// to named handlers, and kept with their outcome, so each conversation
// has an auditable record of what was delivered and whether handling
// succeeded.
//
// The shape follows Temporal's workflow signals: senders never block on
// the receiving conversation.
package signal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the delivery state of a signal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// ErrSignalNotFound is returned when a signal ID is unknown.
var ErrSignalNotFound = errors.New("signal not found")

// ErrNoHandler is returned when a signal's name has no registered handler.
var ErrNoHandler = errors.New("no handler for signal")

// Signal is a fire-and-forget message to a conversation. Name selects
// the handler; Payload carries whatever that handler needs.
type Signal struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	TargetID string         `json:"target_id"`
	Payload  map[string]any `json:"payload,omitempty"`
	SenderID string         `json:"sender_id,omitempty"`
	Status   Status         `json:"status"`

	SentAt      time.Time  `json:"sent_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// Error holds the handler failure, if any.
	Error string `json:"error,omitempty"`
}

func newID() string {
	return fmt.Sprintf("sig-%s", uuid.New().String()[:8])
}

// NewSignal creates a pending signal addressed to targetID.
func NewSignal(name, targetID string, payload map[string]any) *Signal {
	return &Signal{
		ID:       newID(),
		Name:     name,
		TargetID: targetID,
		Payload:  payload,
		Status:   StatusPending,
		SentAt:   time.Now(),
	}
}

// WithSender records who sent the signal, returning it for chaining.
func (s *Signal) WithSender(senderID string) *Signal {
	s.SenderID = senderID
	return s
}

// Clone returns a copy that shares nothing mutable with the original.
func (s *Signal) Clone() *Signal {
	dup := *s
	dup.Payload = maps.Clone(s.Payload)
	if s.ProcessedAt != nil {
		t := *s.ProcessedAt
		dup.ProcessedAt = &t
	}
	return &dup
}

// Handler processes one signal delivered to a conversation.
type Handler func(ctx context.Context, targetID string, signal *Signal) error

// Registry maps signal names to their handlers.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty signal registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for a signal name. A name can only be
// claimed once.
func (r *Registry) Register(signalName string, handler Handler) error {
	switch {
	case signalName == "":
		return errors.New("signal name is required")
	case handler == nil:
		return errors.New("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.handlers[signalName]; taken {
		return fmt.Errorf("handler for signal %q already registered", signalName)
	}
	r.handlers[signalName] = handler
	return nil
}

// MustRegister panics where Register would return an error, for
// handler wiring done once at startup.
func (r *Registry) MustRegister(signalName string, handler Handler) {
	if err := r.Register(signalName, handler); err != nil {
		panic(err)
	}
}

// Get looks up the handler for a signal name.
func (r *Registry) Get(signalName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[signalName]
	return handler, ok
}

// List returns the registered signal names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

// Unregister removes the handler for a signal name.
func (r *Registry) Unregister(signalName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, signalName)
}
