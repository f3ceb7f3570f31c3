// Package orchestrator wires intent classification, the travel workflow,
// the reminder agent loop, and the creative handler into one conversation
// graph, and fronts it with a turn-based chat API backed by durable
// snapshots. Each turn executes as its own run; suspended turns are
// resumed by the next user message on the same conversation.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/traveops/internal/agent"
	"github.com/randalmurphal/traveops/internal/config"
	"github.com/randalmurphal/traveops/internal/genai"
	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/internal/tools"
	"github.com/randalmurphal/traveops/internal/travel"
	"github.com/randalmurphal/traveops/pkg/turnflow"
	"github.com/randalmurphal/traveops/pkg/turnflow/query"
	"github.com/randalmurphal/traveops/pkg/turnflow/registry"
	"github.com/randalmurphal/traveops/pkg/turnflow/session"
	"github.com/randalmurphal/traveops/pkg/turnflow/signal"
)

// SignalUserReply is recorded for every message that answers a suspended
// conversation, leaving an auditable trail beside the snapshot history.
const SignalUserReply = "user_reply"

// ErrNotReady is returned by Chat before the orchestrator finished
// assembling its graph.
var ErrNotReady = errors.New("orchestrator is not ready")

// ChatRequest is one user turn.
type ChatRequest struct {
	// Message is the user's text. Required.
	Message string `json:"message"`

	// ConversationID threads turns together. Empty starts a new
	// conversation with a generated ID.
	ConversationID string `json:"conversation_id,omitempty"`

	// Phone is the user's WhatsApp number. Optional; applied when a turn
	// starts, ignored on messages that answer a pending question.
	Phone string `json:"phone,omitempty"`
}

// ChatResponse is the assistant's side of a turn.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`

	// Response is the user-facing text: the final reply for a finished
	// turn, or the question being asked for a suspended one.
	Response string `json:"response"`

	Intent string `json:"intent,omitempty"`

	// Suspended reports that the turn is waiting on the user. The next
	// Chat call on this conversation answers it.
	Suspended bool `json:"suspended"`

	// SuspendPayload is the raw interrupt payload for suspended turns,
	// for callers that render approvals or confirmations themselves.
	SuspendPayload json.RawMessage `json:"suspend_payload,omitempty"`
}

// HistoryMessage is one entry of a conversation transcript.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationStatus is the queryable view of where a conversation stands.
type ConversationStatus struct {
	ConversationID string               `json:"conversation_id"`
	Status         string               `json:"status"`
	CurrentNode    string               `json:"current_node,omitempty"`
	Intent         string               `json:"intent,omitempty"`
	Variables      map[string]any       `json:"variables,omitempty"`
	PendingPrompt  *query.PendingPrompt `json:"pending_prompt,omitempty"`
}

// Orchestrator owns the conversation graph and its supporting stores.
// Safe for concurrent use; turns on the same conversation serialize.
type Orchestrator struct {
	cfg   config.Config
	llm   genai.ClientInterface
	tools *tools.Registry

	graph    *turnflow.CompiledGraph[models.AgentState]
	store    session.Store
	signals  *signal.Dispatcher
	sigStore signal.Store
	queries  *query.Executor

	// turns maps conversation ID to its latest turn number; locks
	// serializes turns per conversation.
	turns *registry.Registry[string, int]
	locks *registry.Registry[string, *sync.Mutex]

	logger *slog.Logger
	now    func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger passed to graph runs and dispatchers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the reference time source used for date resolution
// and agent prompts.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New assembles the conversation graph over the given model client, tool
// registry, and snapshot store. The store is owned by the caller.
func New(cfg config.Config, llm genai.ClientInterface, reg *tools.Registry, store session.Store, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:    cfg,
		llm:    llm,
		tools:  reg,
		store:  store,
		turns:  registry.New[string, int](),
		locks:  registry.New[string, *sync.Mutex](),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	travelFlow := travel.New(llm, reg, cfg.Travel, travel.WithClock(o.now))
	reminderLoop := agent.New(llm, reg, cfg.Agent, agent.WithClock(o.now))

	g := turnflow.NewGraph[models.AgentState]()
	g.AddNode(NodeClassifyIntent, o.classifyIntent).
		AddNode(NodeReminderAgent, reminderLoop.Run).
		AddNode(NodeCreativeHandler, o.creativeHandler).
		AddNode(NodeUnknownHandler, o.unknownHandler).
		AddNode(NodeFinalize, o.finalize)
	travelFlow.Attach(g, NodeFinalize)
	g.AddConditionalEdge(NodeClassifyIntent, o.routeToSubgraph).
		AddEdge(NodeReminderAgent, NodeFinalize).
		AddEdge(NodeCreativeHandler, NodeFinalize).
		AddEdge(NodeUnknownHandler, NodeFinalize).
		AddEdge(NodeFinalize, turnflow.END).
		SetEntry(NodeClassifyIntent)

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile conversation graph: %w", err)
	}
	o.graph = compiled

	sigReg := signal.NewRegistry()
	sigReg.MustRegister(SignalUserReply, func(_ context.Context, targetID string, sig *signal.Signal) error {
		o.logger.Debug("user reply recorded", "conversation_id", targetID, "signal_id", sig.ID)
		return nil
	})
	o.sigStore = signal.NewMemoryStore()
	o.signals = signal.NewDispatcher(sigReg, o.sigStore).WithLogger(o.logger)

	qReg := query.NewRegistry()
	if err := query.RegisterBuiltins(qReg, o.loadQueryState); err != nil {
		return nil, fmt.Errorf("register conversation queries: %w", err)
	}
	o.queries = query.NewExecutor(qReg)

	return o, nil
}

// Ready reports whether Chat can accept turns.
func (o *Orchestrator) Ready() bool {
	return o != nil && o.graph != nil
}

// Chat executes one turn. A new conversation runs the full graph from
// intent classification; a conversation suspended on a question treats the
// message as the answer and resumes where it stopped; anything else starts
// a fresh turn over the accumulated state.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if !o.Ready() {
		return ChatResponse{}, ErrNotReady
	}
	if strings.TrimSpace(req.Message) == "" {
		return ChatResponse{}, errors.New("message is required")
	}

	id := req.ConversationID
	if id == "" {
		id = uuid.NewString()
	}

	mu := o.lock(id)
	mu.Lock()
	defer mu.Unlock()

	prior := models.AgentState{}
	turn, err := o.latestTurn(id)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	if turn > 0 {
		runID := turnRunID(id, turn)
		snap, err := session.LoadLatest(o.store, runID)
		if err != nil {
			return ChatResponse{}, fmt.Errorf("conversation %s: %w", id, err)
		}

		if snap.Status == session.StatusSuspended {
			o.recordReply(ctx, id, req.Message)
			state, rerr := o.graph.Resume(o.turnContext(ctx, runID), o.store, runID, resumeValue(req.Message),
				turnflow.WithRunOptions(turnflow.WithRunLogger(o.logger)))
			return o.respond(id, state, rerr)
		}

		if err := json.Unmarshal(snap.State, &prior); err != nil {
			return ChatResponse{}, fmt.Errorf("conversation %s: decode state: %w", id, err)
		}
	}

	turn++
	runID := turnRunID(id, turn)
	state, rerr := o.graph.Run(o.turnContext(ctx, runID), newTurn(prior, req),
		turnflow.WithSnapshots(o.store),
		turnflow.WithRunID(runID),
		turnflow.WithRunLogger(o.logger))
	if _, suspended := turnflow.AsInterrupt(rerr); rerr == nil || suspended {
		o.turns.Register(id, turn)
	}
	return o.respond(id, state, rerr)
}

// History returns the conversation transcript, oldest first. Unknown
// conversations return an empty transcript.
func (o *Orchestrator) History(id string) ([]HistoryMessage, error) {
	state, ok, err := o.latestState(id)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}

	out := make([]HistoryMessage, 0, len(state.Messages))
	for _, m := range state.Messages {
		out = append(out, HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Clear resets a conversation by stacking a blank completed turn on top of
// its history. Earlier snapshots stay in the store for inspection; the
// next message starts from scratch. Pending questions are abandoned.
func (o *Orchestrator) Clear(ctx context.Context, id string) error {
	mu := o.lock(id)
	mu.Lock()
	defer mu.Unlock()

	turn, err := o.latestTurn(id)
	if err != nil {
		return fmt.Errorf("conversation %s: %w", id, err)
	}
	if turn == 0 {
		return nil
	}

	blank, err := json.Marshal(models.AgentState{})
	if err != nil {
		return fmt.Errorf("conversation %s: encode blank state: %w", id, err)
	}
	turn++
	runID := turnRunID(id, turn)
	snap := session.New(runID, NodeFinalize, 1, blank, turnflow.END).
		WithStatus(session.StatusCompleted)
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("conversation %s: encode snapshot: %w", id, err)
	}
	if err := o.store.Save(runID, NodeFinalize, data); err != nil {
		return fmt.Errorf("conversation %s: save cleared state: %w", id, err)
	}
	o.turns.Register(id, turn)

	if err := o.sigStore.PurgeTarget(ctx, id); err != nil {
		o.logger.Warn("failed to purge signal trail", "conversation_id", id, "error", err)
	}
	o.logger.Info("conversation cleared", "conversation_id", id)
	return nil
}

// Status answers where a conversation stands without advancing it.
func (o *Orchestrator) Status(ctx context.Context, id string) (ConversationStatus, error) {
	v, err := o.queries.Execute(ctx, id, query.QueryState, nil)
	if err != nil {
		return ConversationStatus{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	st, ok := v.(*query.State)
	if !ok {
		return ConversationStatus{}, fmt.Errorf("conversation %s: unexpected query result %T", id, v)
	}
	return ConversationStatus{
		ConversationID: id,
		Status:         st.Status,
		CurrentNode:    st.CurrentNode,
		Intent:         st.Intent,
		Variables:      st.Variables,
		PendingPrompt:  st.PendingPrompt,
	}, nil
}

// Query runs a named conversation query (status, intent, variables, ...)
// against the latest turn.
func (o *Orchestrator) Query(ctx context.Context, id, queryName string, args any) (any, error) {
	return o.queries.Execute(ctx, id, queryName, args)
}

func (o *Orchestrator) lock(id string) *sync.Mutex {
	return o.locks.GetOrCreate(id, func() *sync.Mutex { return new(sync.Mutex) })
}

func (o *Orchestrator) turnContext(ctx context.Context, runID string) turnflow.Context {
	return turnflow.NewContext(ctx,
		turnflow.WithLogger(o.logger),
		turnflow.WithContextRunID(runID))
}

// turnRunID names the engine run for one turn of a conversation.
func turnRunID(id string, turn int) string {
	return fmt.Sprintf("%s.turn%d", id, turn)
}

// latestTurn returns the highest turn number that left snapshots, zero for
// an unknown conversation. Probes the store once, then serves from cache.
func (o *Orchestrator) latestTurn(id string) (int, error) {
	if n, ok := o.turns.Get(id); ok {
		return n, nil
	}
	n := 0
	for {
		infos, err := o.store.List(turnRunID(id, n+1))
		if err != nil {
			return 0, err
		}
		if len(infos) == 0 {
			break
		}
		n++
	}
	if n > 0 {
		o.turns.Register(id, n)
	}
	return n, nil
}

// latestState loads the accumulated state of a conversation's most recent
// turn. The second return is false for unknown conversations.
func (o *Orchestrator) latestState(id string) (models.AgentState, bool, error) {
	var state models.AgentState

	turn, err := o.latestTurn(id)
	if err != nil {
		return state, false, err
	}
	if turn == 0 {
		return state, false, nil
	}

	snap, err := session.LoadLatest(o.store, turnRunID(id, turn))
	if err != nil {
		return state, false, err
	}
	if err := json.Unmarshal(snap.State, &state); err != nil {
		return state, false, fmt.Errorf("decode state: %w", err)
	}
	return state, true, nil
}

// newTurn resets the turn-scoped fields over the accumulated state.
// Conversation history and extracted sub-state carry over.
func newTurn(prior models.AgentState, req ChatRequest) models.AgentState {
	s := prior
	s.Query = req.Message
	s.FinalResponse = ""
	s.Errors = nil
	if req.Phone != "" {
		s.Phone = req.Phone
	}
	s.Messages = append(s.Messages, models.NewMessage(models.RoleUser, req.Message))
	return s
}

// resumeValue shapes the user's answer for delivery to the waiting node.
// JSON objects pass through raw so structured approvals keep their fields;
// everything else is delivered as plain text.
func resumeValue(message string) any {
	trimmed := strings.TrimSpace(message)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return message
}

// recordReply persists the answer as a signal before the engine consumes
// it. Failures are logged, not fatal: the resume itself must not depend on
// the audit trail.
func (o *Orchestrator) recordReply(ctx context.Context, id, message string) {
	sig := signal.NewSignal(SignalUserReply, id, map[string]any{"message": message})
	if err := o.signals.Send(ctx, sig); err != nil {
		o.logger.Warn("failed to record reply signal", "conversation_id", id, "error", err)
		return
	}
	if err := o.signals.ProcessOne(ctx, sig.ID); err != nil {
		o.logger.Warn("failed to process reply signal", "conversation_id", id, "error", err)
	}
}

// respond shapes the engine outcome into a ChatResponse. A suspension is a
// successful outcome: the response carries the question being asked.
func (o *Orchestrator) respond(id string, state models.AgentState, err error) (ChatResponse, error) {
	resp := ChatResponse{ConversationID: id, Intent: string(state.Intent)}

	if err == nil {
		resp.Response = deriveResponse(state)
		return resp, nil
	}
	if intr, ok := turnflow.AsInterrupt(err); ok {
		resp.Suspended = true
		resp.SuspendPayload = intr.Payload
		resp.Response = promptFromPayload(intr.Payload, state)
		return resp, nil
	}
	return ChatResponse{}, fmt.Errorf("conversation %s: %w", id, err)
}

// promptFromPayload extracts user-facing text from an interrupt payload:
// a JSON string is the prompt itself, an object may carry a "prompt"
// field, anything else falls back to the derived response.
func promptFromPayload(payload json.RawMessage, state models.AgentState) string {
	var text string
	if err := json.Unmarshal(payload, &text); err == nil && text != "" {
		return text
	}
	var obj struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Prompt != "" {
		return obj.Prompt
	}
	return deriveResponse(state)
}

// loadQueryState adapts the snapshot store to the query engine's view of
// a conversation. (nil, nil) marks unknown conversations.
func (o *Orchestrator) loadQueryState(_ context.Context, targetID string) (*query.State, error) {
	turn, err := o.latestTurn(targetID)
	if err != nil {
		return nil, err
	}
	if turn == 0 {
		return nil, nil
	}

	snap, err := session.LoadLatest(o.store, turnRunID(targetID, turn))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var s models.AgentState
	if err := json.Unmarshal(snap.State, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	qs := &query.State{
		TargetID:    targetID,
		Status:      string(snap.Status),
		CurrentNode: snap.NodeID,
		Intent:      string(s.Intent),
		Variables:   stateVariables(s),
	}
	if snap.Status == session.StatusSuspended && snap.Interrupt != nil {
		qs.PendingPrompt = &query.PendingPrompt{
			NodeID:   snap.Interrupt.NodeID,
			Question: promptFromPayload(snap.Interrupt.Payload, s),
			Payload:  payloadMap(snap.Interrupt.Payload),
			AskedAt:  snap.Timestamp.Format(time.RFC3339),
		}
	}
	return qs, nil
}

// stateVariables flattens extracted travel constraints for the variables
// query. Nil when nothing was extracted yet.
func stateVariables(s models.AgentState) map[string]any {
	t := s.Travel
	if t == nil {
		return nil
	}
	vars := map[string]any{}
	if t.Origin != "" {
		vars["origin"] = t.Origin
	}
	if t.Destination != "" {
		vars["destination"] = t.Destination
	}
	if t.DepartureDate != "" {
		vars["departure_date"] = t.DepartureDate
	}
	if t.ReturnDate != "" {
		vars["return_date"] = t.ReturnDate
	}
	if t.BudgetNPR > 0 {
		vars["budget_npr"] = t.BudgetNPR
	}
	if len(vars) == 0 {
		return nil
	}
	return vars
}

// payloadMap decodes an interrupt payload to a map for the query view.
// String payloads wrap as {"prompt": text}.
func payloadMap(payload json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err == nil {
		return m
	}
	var text string
	if err := json.Unmarshal(payload, &text); err == nil && text != "" {
		return map[string]any{"prompt": text}
	}
	return nil
}
