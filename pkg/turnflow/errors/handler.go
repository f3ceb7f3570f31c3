package errors

import (
	"context"
	"log/slog"
)

// Handler runs operations with retry and model escalation layered
// together. Transient failures are retried at the current model;
// escalatable failures move up the chain; human-required failures are
// returned untouched for the caller to surface.
type Handler struct {
	retry       RetryConfig
	escalation  *EscalationChain
	logger      *slog.Logger
	onEscalate  func(from, to ModelName, err error)
	onExhausted func(err error)
}

// HandlerOption adjusts a Handler at construction.
type HandlerOption func(*Handler)

// WithRetryConfig sets the per-model retry policy.
func WithRetryConfig(cfg RetryConfig) HandlerOption {
	return func(h *Handler) { h.retry = cfg }
}

// WithEscalation sets the model chain to climb on escalatable failures.
func WithEscalation(chain *EscalationChain) HandlerOption {
	return func(h *Handler) { h.escalation = chain }
}

// WithLogger sets the logger for escalation events.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithOnEscalate registers a callback fired on each model switch.
func WithOnEscalate(fn func(from, to ModelName, err error)) HandlerOption {
	return func(h *Handler) { h.onEscalate = fn }
}

// WithOnExhausted registers a callback fired when the handler gives up.
func WithOnExhausted(fn func(err error)) HandlerOption {
	return func(h *Handler) { h.onExhausted = fn }
}

// NewHandler builds a Handler with DefaultRetry and the default logger
// unless options say otherwise.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		retry:  DefaultRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ExecuteResult reports the outcome of an Execute run: which model
// finally answered, the total attempts across all models, and how many
// times the handler escalated.
type ExecuteResult[T any] struct {
	Value       T
	Err         error
	FinalModel  ModelName
	Attempts    int
	Escalations int
}

// Execute runs an operation that produces no value.
func (h *Handler) Execute(ctx context.Context, startModel ModelName, fn func(ctx context.Context, m ModelName) error) ExecuteResult[struct{}] {
	return Execute(ctx, h, startModel, func(ctx context.Context, m ModelName) (struct{}, error) {
		return struct{}{}, fn(ctx, m)
	})
}

// Execute runs fn with h's full strategy, starting at startModel. Each
// model gets a full retry cycle; when retries exhaust on a transient or
// escalatable failure the handler moves to the next model in the chain.
// A standalone function because methods cannot add type parameters.
func Execute[T any](ctx context.Context, h *Handler, startModel ModelName, fn func(ctx context.Context, m ModelName) (T, error)) ExecuteResult[T] {
	model := startModel
	attempts := 0
	escalations := 0
	esc := newEscalationState(h.escalation, startModel)

	fail := func(err error) ExecuteResult[T] {
		return ExecuteResult[T]{
			Err:         err,
			FinalModel:  model,
			Attempts:    attempts,
			Escalations: escalations,
		}
	}
	giveUp := func(err error) ExecuteResult[T] {
		if h.onExhausted != nil {
			h.onExhausted(err)
		}
		return fail(err)
	}

	for {
		r := WithRetryContext(ctx, h.retry, func(ctx context.Context) (T, error) {
			return fn(ctx, model)
		})
		attempts += r.Attempts

		if r.Err == nil {
			return ExecuteResult[T]{
				Value:       r.Value,
				FinalModel:  model,
				Attempts:    attempts,
				Escalations: escalations,
			}
		}

		category := Categorize(r.Err)
		switch category {
		case CategoryTransient, CategoryEscalatable:
			if !esc.RecordFailure() {
				return giveUp(r.Err)
			}
			next := esc.CurrentModel()
			if next != model {
				h.logger.Info("escalating model",
					"from", model,
					"to", next,
					"error", r.Err)
				if h.onEscalate != nil {
					h.onEscalate(model, next, r.Err)
				}
				model = next
				escalations++
			} else if category == CategoryEscalatable {
				// Already at the top of the chain; no stronger model
				// to hand this to.
				return giveUp(r.Err)
			}
		case CategoryHumanRequired:
			// Only the user can resolve this. Retrying or escalating
			// cannot.
			return fail(r.Err)
		case CategoryPermanent:
			return giveUp(r.Err)
		default:
			return fail(r.Err)
		}

		if esc.Exhausted() {
			return giveUp(r.Err)
		}
	}
}

// SimpleHandler retries without escalation, for callers that run a
// single model.
type SimpleHandler struct {
	retry  RetryConfig
	logger *slog.Logger
}

// NewSimpleHandler builds a SimpleHandler. Escalation options are
// accepted and ignored.
func NewSimpleHandler(opts ...HandlerOption) *SimpleHandler {
	h := NewHandler(opts...)
	return &SimpleHandler{retry: h.retry, logger: h.logger}
}

// Execute runs fn with retry.
func (h *SimpleHandler) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	r := WithRetryContext(ctx, h.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return r.Err
}

// ExecuteWithValue runs fn with retry and returns its value.
func ExecuteWithValue[T any](ctx context.Context, h *SimpleHandler, fn func(ctx context.Context) (T, error)) (T, error) {
	r := WithRetryContext(ctx, h.retry, func(ctx context.Context) (T, error) {
		return fn(ctx)
	})
	return r.Value, r.Err
}
