// Package agent implements the bounded tool-calling loop behind the
// reminder intent. Each turn offers the registered tools to the model,
// executes what it requests and feeds the results back until the model
// answers in plain text or the iteration bound is reached. The WhatsApp
// send is the one side-effecting tool, so it never executes directly:
// the loop suspends with a confirmation payload and only sends after the
// user's resume value is an explicit yes.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/randalmurphal/traveops/internal/config"
	"github.com/randalmurphal/traveops/internal/genai"
	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/internal/tools"
	"github.com/randalmurphal/traveops/pkg/turnflow"
	"github.com/randalmurphal/traveops/pkg/turnflow/template"
)

// TypeNotifyConfirmation tags the suspend payload of a pending send.
const TypeNotifyConfirmation = "notify_confirmation"

// NotifyConfirmation is surfaced to the caller while a WhatsApp send
// awaits the user's go-ahead.
type NotifyConfirmation struct {
	Type   string `json:"type"`
	To     string `json:"to"`
	Draft  string `json:"draft"`
	Prompt string `json:"prompt"`
}

const defaultMaxIterations = 5

const agentSystemPrompt = `You are a reminder assistant for a personal life admin service.
You help the user set reminders and send WhatsApp notifications.
When the user wants to be reminded or notified about something, draft a short,
friendly WhatsApp message and send it with the send_whatsapp_message tool.
Use the other tools when they help answer the request; otherwise answer directly.
Today is ${today}.`

const declinedResult = "Notification declined by user."

// Loop drives one reminder turn. History lives in ReminderState so a
// conversation spans turns; a pending confirmation survives suspension
// through PendingTool.
type Loop struct {
	llm           genai.ClientInterface
	tools         *tools.Registry
	maxIterations int
	now           func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock fixes the reference time used in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// New creates a loop bound to the model client and tool registry.
func New(llm genai.ClientInterface, reg *tools.Registry, cfg config.AgentConfig, opts ...Option) *Loop {
	l := &Loop{
		llm:           llm,
		tools:         reg,
		maxIterations: cfg.MaxIterations,
		now:           time.Now,
	}
	if l.maxIterations <= 0 {
		l.maxIterations = defaultMaxIterations
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run is the reminder node. A turn that parked a send in PendingTool is
// a resumed one and picks up at the confirmation gate instead of
// replaying the model calls that led there.
func (l *Loop) Run(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	if s.Reminder == nil {
		s.Reminder = &models.ReminderState{}
	}
	r := s.Reminder

	if r.PendingTool != nil {
		return l.resumePending(ctx, s)
	}

	r.History = append(r.History, models.NewMessage(models.RoleUser, s.Query))
	r.Iterations = 0

	messages := l.conversation(s)
	defs := l.tools.Definitions()

	var toolLog []string
	for r.Iterations < l.maxIterations {
		r.Iterations++

		resp, err := l.llm.GenerateWithTools(ctx, messages, defs)
		if err != nil {
			return l.fallback(ctx, s, toolLog, err), nil
		}
		if !resp.HasToolCalls() {
			return l.finish(ctx, s, resp.Content), nil
		}

		messages = append(messages, resp.AssistantParam())
		for _, call := range resp.ToolCalls {
			if call.Name == tools.ToolWhatsApp {
				r.PendingTool = &models.ToolCallRecord{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: string(call.Arguments),
				}
				payload := l.confirmation(s, r.PendingTool)
				ctx.Logger().Info("awaiting notification confirmation", "to", payload.To)
				_, err := turnflow.Await[json.RawMessage](ctx, payload)
				return s, err
			}

			result, _ := l.invoke(ctx, call.Name, call.Arguments)
			toolLog = append(toolLog, result)
			messages = append(messages, openai.ToolMessage(result, call.ID))
		}
	}

	return l.fallback(ctx, s, toolLog, nil), nil
}

// resumePending consumes the resume value for the parked send. The
// interrupted round is reduced to that one call: the rebuilt exchange is
// assistant-requests-send followed by its result, and the turn closes
// with a plain completion so no further tool calls can ride on it.
func (l *Loop) resumePending(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	r := s.Reminder
	pending := r.PendingTool

	raw, err := turnflow.Await[json.RawMessage](ctx, l.confirmation(s, pending))
	if err != nil {
		return s, err
	}
	r.PendingTool = nil

	var result string
	if confirmed(raw) {
		var ok bool
		result, ok = l.invoke(ctx, pending.Name, json.RawMessage(pending.Arguments))
		r.NotificationSent = ok
		ctx.Logger().Info("notification confirmed", "sent", ok)
	} else {
		result = declinedResult
		ctx.Logger().Info("notification declined")
	}

	assistant := &genai.ToolCallResponse{
		ToolCalls: []genai.ToolCall{{
			ID:        pending.ID,
			Name:      pending.Name,
			Arguments: json.RawMessage(pending.Arguments),
		}},
	}
	messages := append(l.conversation(s), assistant.AssistantParam(), openai.ToolMessage(result, pending.ID))

	content, err := l.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		ctx.Logger().Warn("closing model call failed, replying with the tool result", "error", err)
		return l.finish(ctx, s, result), nil
	}
	return l.finish(ctx, s, content), nil
}

// invoke runs one requested call, synthesizing a conversational result
// for unknown names and failures so the loop never aborts on a tool.
func (l *Loop) invoke(ctx context.Context, name string, args json.RawMessage) (string, bool) {
	if !l.tools.Has(name) {
		return fmt.Sprintf("Sorry, I don't know how to use the tool '%s'.", name), false
	}
	result, err := l.tools.Invoke(ctx, name, args)
	if err != nil {
		return fmt.Sprintf("Tool '%s' failed: %v", name, err), false
	}
	return result, true
}

// conversation rebuilds the model-facing message list from the persisted
// history.
func (l *Loop) conversation(s models.AgentState) []openai.ChatCompletionMessageParamUnion {
	system := template.Expand(agentSystemPrompt, map[string]any{
		"today": l.now().Format("2006-01-02"),
	})
	if s.Phone != "" {
		system += "\nThe user's WhatsApp number is " + s.Phone + "."
	}

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	for _, m := range s.Reminder.History {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}

// confirmation builds the suspend payload for a parked send.
func (l *Loop) confirmation(s models.AgentState, rec *models.ToolCallRecord) NotifyConfirmation {
	var a struct {
		ToNumber string `json:"to_number"`
		Body     string `json:"body"`
	}
	_ = json.Unmarshal([]byte(rec.Arguments), &a)

	to := a.ToNumber
	if to == "" {
		to = s.Phone
	}
	return NotifyConfirmation{
		Type:   TypeNotifyConfirmation,
		To:     to,
		Draft:  a.Body,
		Prompt: fmt.Sprintf("Send this WhatsApp message to %s?\n\n%s\n\nReply yes to send it.", to, a.Body),
	}
}

// confirmed interprets the resume value: an affirmative token or a
// structured confirmed flag; anything else declines.
func confirmed(raw json.RawMessage) bool {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return models.IsAffirmative(text)
	}

	var flag struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag.Confirmed
	}
	return false
}

// finish records the assistant reply and closes the turn. An empty
// content is left for the finalize step to fill.
func (l *Loop) finish(ctx turnflow.Context, s models.AgentState, content string) models.AgentState {
	if strings.TrimSpace(content) != "" {
		s.Reminder.History = append(s.Reminder.History, models.NewMessage(models.RoleAssistant, content))
		s.FinalResponse = content
	}
	ctx.Logger().Info("reminder turn complete",
		"iterations", s.Reminder.Iterations,
		"notification_sent", s.Reminder.NotificationSent)
	return s
}

// fallback closes a turn that ran out of model calls: the iteration
// bound was hit or the model failed mid-loop. Collected tool results
// become the reply so the work done is not discarded.
func (l *Loop) fallback(ctx turnflow.Context, s models.AgentState, toolLog []string, cause error) models.AgentState {
	if cause != nil {
		ctx.Logger().Error("reminder model call failed", "error", cause)
		s.RecordError("Reminder agent error: %v", cause)
	} else {
		ctx.Logger().Warn("reminder loop hit the iteration bound", "iterations", s.Reminder.Iterations)
	}
	return l.finish(ctx, s, strings.Join(toolLog, "\n"))
}
