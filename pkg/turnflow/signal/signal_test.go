package signal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/traveops/pkg/turnflow/signal"
)

func noop(_ context.Context, _ string, _ *signal.Signal) error { return nil }

func newDispatcher() (*signal.Registry, *signal.MemoryStore, *signal.Dispatcher) {
	registry := signal.NewRegistry()
	store := signal.NewMemoryStore()
	return registry, store, signal.NewDispatcher(registry, store)
}

func TestSignal(t *testing.T) {
	t.Run("new signal starts pending", func(t *testing.T) {
		sig := signal.NewSignal("user_reply", "conv-123", map[string]any{"text": "yes"})

		assert.NotEmpty(t, sig.ID)
		assert.Equal(t, "user_reply", sig.Name)
		assert.Equal(t, "conv-123", sig.TargetID)
		assert.Equal(t, "yes", sig.Payload["text"])
		assert.Equal(t, signal.StatusPending, sig.Status)
		assert.NotZero(t, sig.SentAt)
	})

	t.Run("with sender", func(t *testing.T) {
		sig := signal.NewSignal("user_reply", "conv-1", nil).
			WithSender("whatsapp:+14155550100")
		assert.Equal(t, "whatsapp:+14155550100", sig.SenderID)
	})

	t.Run("clone detaches the payload", func(t *testing.T) {
		sig := signal.NewSignal("user_reply", "conv-1", map[string]any{"text": "yes"})
		sig.SenderID = "user-1"

		dup := sig.Clone()
		assert.Equal(t, sig.ID, dup.ID)
		assert.Equal(t, sig.Name, dup.Name)
		assert.Equal(t, sig.SenderID, dup.SenderID)

		dup.Payload["text"] = "modified"
		assert.Equal(t, "yes", sig.Payload["text"])
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		registry := signal.NewRegistry()

		called := false
		require.NoError(t, registry.Register("user_reply", func(_ context.Context, _ string, _ *signal.Signal) error {
			called = true
			return nil
		}))

		handler, ok := registry.Get("user_reply")
		require.True(t, ok)
		require.NotNil(t, handler)

		require.NoError(t, handler(context.Background(), "conv-1", &signal.Signal{}))
		assert.True(t, called)

		_, ok = registry.Get("nonexistent")
		assert.False(t, ok)
	})

	t.Run("a name can only be claimed once", func(t *testing.T) {
		registry := signal.NewRegistry()

		require.NoError(t, registry.Register("user_reply", noop))
		err := registry.Register("user_reply", noop)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("rejects empty name", func(t *testing.T) {
		err := signal.NewRegistry().Register("", noop)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name is required")
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		err := signal.NewRegistry().Register("test", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler is required")
	})

	t.Run("must register panics on duplicate", func(t *testing.T) {
		registry := signal.NewRegistry()
		registry.MustRegister("test", noop)
		assert.Panics(t, func() { registry.MustRegister("test", noop) })
	})

	t.Run("list is sorted", func(t *testing.T) {
		registry := signal.NewRegistry()
		require.NoError(t, registry.Register("user_reply", noop))
		require.NoError(t, registry.Register("cancel", noop))

		assert.Equal(t, []string{"cancel", "user_reply"}, registry.List())
	})

	t.Run("unregister", func(t *testing.T) {
		registry := signal.NewRegistry()
		require.NoError(t, registry.Register("user_reply", noop))

		registry.Unregister("user_reply")

		_, ok := registry.Get("user_reply")
		assert.False(t, ok)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueue and get round-trips", func(t *testing.T) {
		store := signal.NewMemoryStore()

		sig := signal.NewSignal("user_reply", "conv-123", map[string]any{"text": "yes"})
		require.NoError(t, store.Enqueue(ctx, sig))

		got, err := store.Get(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, sig.ID, got.ID)
		assert.Equal(t, sig.Name, got.Name)
	})

	t.Run("enqueue fills zero fields on the caller's signal", func(t *testing.T) {
		store := signal.NewMemoryStore()

		sig := &signal.Signal{Name: "user_reply", TargetID: "conv-1"}
		require.NoError(t, store.Enqueue(ctx, sig))

		assert.NotEmpty(t, sig.ID)
		assert.NotZero(t, sig.SentAt)
		assert.Equal(t, signal.StatusPending, sig.Status)
	})

	t.Run("pending lists only undelivered signals", func(t *testing.T) {
		store := signal.NewMemoryStore()

		for range 3 {
			require.NoError(t, store.Enqueue(ctx, signal.NewSignal("user_reply", "conv-123", nil)))
		}

		pending, err := store.Pending(ctx, "conv-123")
		require.NoError(t, err)
		assert.Len(t, pending, 3)

		pending, err = store.Pending(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("mark processed clears pending", func(t *testing.T) {
		store := signal.NewMemoryStore()

		sig := signal.NewSignal("user_reply", "conv-123", nil)
		require.NoError(t, store.Enqueue(ctx, sig))
		require.NoError(t, store.MarkProcessed(ctx, sig.ID))

		pending, err := store.Pending(ctx, "conv-123")
		require.NoError(t, err)
		assert.Empty(t, pending)

		got, err := store.Get(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, signal.StatusProcessed, got.Status)
		assert.NotNil(t, got.ProcessedAt)
	})

	t.Run("mark failed records the cause", func(t *testing.T) {
		store := signal.NewMemoryStore()

		sig := signal.NewSignal("user_reply", "conv-123", nil)
		require.NoError(t, store.Enqueue(ctx, sig))
		require.NoError(t, store.MarkFailed(ctx, sig.ID, errors.New("handler failed")))

		got, err := store.Get(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, signal.StatusFailed, got.Status)
		assert.Equal(t, "handler failed", got.Error)
	})

	t.Run("get of unknown id", func(t *testing.T) {
		store := signal.NewMemoryStore()

		_, err := store.Get(ctx, "nonexistent")
		assert.ErrorIs(t, err, signal.ErrSignalNotFound)
	})

	t.Run("list by target keeps sent order", func(t *testing.T) {
		store := signal.NewMemoryStore()

		first := signal.NewSignal("user_reply", "conv-1", map[string]any{"text": "5000"})
		second := signal.NewSignal("user_reply", "conv-1", map[string]any{"text": "yes"})
		require.NoError(t, store.Enqueue(ctx, first))
		require.NoError(t, store.Enqueue(ctx, second))
		require.NoError(t, store.Enqueue(ctx, signal.NewSignal("cancel", "conv-2", nil)))

		listed, err := store.ListByTarget(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, first.ID, listed[0].ID)
		assert.Equal(t, second.ID, listed[1].ID)

		listed, err = store.ListByTarget(ctx, "conv-2")
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	})

	t.Run("delete removes the signal everywhere", func(t *testing.T) {
		store := signal.NewMemoryStore()

		sig := signal.NewSignal("user_reply", "conv-123", nil)
		require.NoError(t, store.Enqueue(ctx, sig))
		require.NoError(t, store.Delete(ctx, sig.ID))

		_, err := store.Get(ctx, sig.ID)
		assert.ErrorIs(t, err, signal.ErrSignalNotFound)

		listed, err := store.ListByTarget(ctx, "conv-123")
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("delete of unknown id", func(t *testing.T) {
		store := signal.NewMemoryStore()

		err := store.Delete(ctx, "nonexistent")
		assert.ErrorIs(t, err, signal.ErrSignalNotFound)
	})

	t.Run("purge target leaves other conversations alone", func(t *testing.T) {
		store := signal.NewMemoryStore()

		kept := signal.NewSignal("user_reply", "conv-2", nil)
		require.NoError(t, store.Enqueue(ctx, signal.NewSignal("user_reply", "conv-1", nil)))
		require.NoError(t, store.Enqueue(ctx, signal.NewSignal("user_reply", "conv-1", nil)))
		require.NoError(t, store.Enqueue(ctx, kept))

		require.NoError(t, store.PurgeTarget(ctx, "conv-1"))

		listed, err := store.ListByTarget(ctx, "conv-1")
		require.NoError(t, err)
		assert.Empty(t, listed)

		got, err := store.Get(ctx, kept.ID)
		require.NoError(t, err)
		assert.Equal(t, kept.ID, got.ID)
	})
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("send enqueues as pending", func(t *testing.T) {
		_, store, dispatcher := newDispatcher()

		sig := signal.NewSignal("user_reply", "conv-123", map[string]any{"text": "approve"})
		require.NoError(t, dispatcher.Send(ctx, sig))

		pending, err := store.Pending(ctx, "conv-123")
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("send requires a target", func(t *testing.T) {
		_, _, dispatcher := newDispatcher()

		err := dispatcher.Send(ctx, &signal.Signal{Name: "user_reply"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target ID is required")
	})

	t.Run("send requires a name", func(t *testing.T) {
		_, _, dispatcher := newDispatcher()

		err := dispatcher.Send(ctx, &signal.Signal{TargetID: "conv-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signal name is required")
	})

	t.Run("process delivers every pending signal", func(t *testing.T) {
		registry, store, dispatcher := newDispatcher()

		var delivered []*signal.Signal
		require.NoError(t, registry.Register("user_reply", func(_ context.Context, _ string, s *signal.Signal) error {
			delivered = append(delivered, s)
			return nil
		}))

		for range 3 {
			require.NoError(t, store.Enqueue(ctx, signal.NewSignal("user_reply", "conv-123", nil)))
		}

		require.NoError(t, dispatcher.Process(ctx, "conv-123"))
		assert.Len(t, delivered, 3)

		pending, err := store.Pending(ctx, "conv-123")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("unknown signal name is marked failed", func(t *testing.T) {
		_, store, dispatcher := newDispatcher()

		sig := signal.NewSignal("unknown-signal", "conv-123", nil)
		require.NoError(t, store.Enqueue(ctx, sig))

		// Process itself succeeds; the outcome lands on the signal.
		require.NoError(t, dispatcher.Process(ctx, "conv-123"))

		got, err := store.Get(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, signal.StatusFailed, got.Status)
		assert.Contains(t, got.Error, "no handler")
	})

	t.Run("handler error is recorded on the signal", func(t *testing.T) {
		registry, store, dispatcher := newDispatcher()

		require.NoError(t, registry.Register("failing-signal", func(_ context.Context, _ string, _ *signal.Signal) error {
			return errors.New("handler exploded")
		}))

		sig := signal.NewSignal("failing-signal", "conv-123", nil)
		require.NoError(t, store.Enqueue(ctx, sig))
		require.NoError(t, dispatcher.Process(ctx, "conv-123"))

		got, err := store.Get(ctx, sig.ID)
		require.NoError(t, err)
		assert.Equal(t, signal.StatusFailed, got.Status)
		assert.Equal(t, "handler exploded", got.Error)
	})

	t.Run("one failure does not stop the rest", func(t *testing.T) {
		registry, store, dispatcher := newDispatcher()

		calls := 0
		require.NoError(t, registry.Register("user_reply", func(_ context.Context, _ string, _ *signal.Signal) error {
			calls++
			if calls == 1 {
				return errors.New("first delivery failed")
			}
			return nil
		}))

		first := signal.NewSignal("user_reply", "conv-123", nil)
		second := signal.NewSignal("user_reply", "conv-123", nil)
		require.NoError(t, store.Enqueue(ctx, first))
		require.NoError(t, store.Enqueue(ctx, second))

		require.NoError(t, dispatcher.Process(ctx, "conv-123"))
		assert.Equal(t, 2, calls)

		gotFirst, err := store.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, signal.StatusFailed, gotFirst.Status)

		gotSecond, err := store.Get(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, signal.StatusProcessed, gotSecond.Status)
	})

	t.Run("process one delivers by id", func(t *testing.T) {
		registry, store, dispatcher := newDispatcher()

		delivered := false
		require.NoError(t, registry.Register("user_reply", func(_ context.Context, _ string, _ *signal.Signal) error {
			delivered = true
			return nil
		}))

		sig := signal.NewSignal("user_reply", "conv-123", nil)
		require.NoError(t, store.Enqueue(ctx, sig))

		require.NoError(t, dispatcher.ProcessOne(ctx, sig.ID))
		assert.True(t, delivered)
	})

	t.Run("process one surfaces unknown ids", func(t *testing.T) {
		_, _, dispatcher := newDispatcher()

		err := dispatcher.ProcessOne(ctx, "nonexistent")
		assert.ErrorIs(t, err, signal.ErrSignalNotFound)
	})
}
