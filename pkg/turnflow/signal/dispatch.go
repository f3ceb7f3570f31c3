package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Dispatcher sends signals and routes pending ones to their handlers.
type Dispatcher struct {
	registry *Registry
	store    Store
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over a registry and store.
func NewDispatcher(registry *Registry, store Store) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		store:    store,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the dispatcher.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// Send enqueues a signal for a conversation. The signal's ID is filled
// in if empty, so callers can track it afterwards.
func (d *Dispatcher) Send(ctx context.Context, sig *Signal) error {
	if sig.TargetID == "" {
		return errors.New("target ID is required")
	}
	if sig.Name == "" {
		return errors.New("signal name is required")
	}

	if err := d.store.Enqueue(ctx, sig); err != nil {
		return fmt.Errorf("failed to enqueue signal: %w", err)
	}

	d.logger.Debug("signal sent",
		"signal_id", sig.ID, "signal_name", sig.Name, "target_id", sig.TargetID)
	return nil
}

// Process delivers all pending signals for a conversation. A failing
// signal is recorded and does not stop the rest.
func (d *Dispatcher) Process(ctx context.Context, targetID string) error {
	pending, err := d.store.Pending(ctx, targetID)
	if err != nil {
		return fmt.Errorf("failed to load pending signals: %w", err)
	}

	for _, sig := range pending {
		if err := d.deliver(ctx, sig); err != nil {
			d.logger.Error("signal processing failed",
				"signal_id", sig.ID, "signal_name", sig.Name,
				"target_id", targetID, "error", err)
		}
	}
	return nil
}

// ProcessOne delivers a specific signal by ID.
func (d *Dispatcher) ProcessOne(ctx context.Context, signalID string) error {
	sig, err := d.store.Get(ctx, signalID)
	if err != nil {
		return err
	}
	return d.deliver(ctx, sig)
}

func (d *Dispatcher) deliver(ctx context.Context, sig *Signal) error {
	handler, ok := d.registry.Get(sig.Name)
	if !ok {
		d.logger.Warn("no handler for signal",
			"signal_name", sig.Name, "signal_id", sig.ID)
		d.fail(ctx, sig, ErrNoHandler)
		return ErrNoHandler
	}

	if err := handler(ctx, sig.TargetID, sig); err != nil {
		d.fail(ctx, sig, err)
		return err
	}

	if err := d.store.MarkProcessed(ctx, sig.ID); err != nil {
		d.logger.Error("failed to mark signal as processed",
			"signal_id", sig.ID, "error", err)
	}

	d.logger.Debug("signal processed",
		"signal_id", sig.ID, "signal_name", sig.Name, "target_id", sig.TargetID)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, sig *Signal, cause error) {
	if err := d.store.MarkFailed(ctx, sig.ID, cause); err != nil {
		d.logger.Error("failed to mark signal as failed",
			"signal_id", sig.ID, "error", err)
	}
}
