package orchestrator

import (
	"strings"

	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/internal/travel"
	"github.com/randalmurphal/traveops/pkg/turnflow"
)

// Node IDs for the conversation graph. The travel workflow carries its
// own IDs and attaches between classify_intent and finalize.
const (
	NodeClassifyIntent  = "classify_intent"
	NodeReminderAgent   = "reminder_agent"
	NodeCreativeHandler = "creative_handler"
	NodeUnknownHandler  = "unknown_handler"
	NodeFinalize        = "finalize"
)

const classifySystemPrompt = `You are an intent classifier for a life admin assistant.

Classify the user's query into exactly one of these intents:

1. travel_planning - the user wants to plan or book a trip (flights, hotels, weather, budgets).
   Examples: "Plan a trip to Pokhara under 40k", "Find me a flight to Delhi next Friday", "Weekend getaway ideas with hotel"

2. reminder - the user wants to be reminded or notified about something.
   Examples: "Remind me to call mom at 5pm", "Send me a WhatsApp before my flight", "Don't let me forget the visa appointment"

3. creative - the user wants creative content such as moodboards, image ideas, or concept writeups.
   Examples: "Generate a romantic dinner moodboard", "Create an image of mountains at dawn"

4. unknown - greetings, questions about the assistant itself, or anything that fits none of the above.
   Examples: "Hello", "What can you do?"

Respond with JSON: {"intent": "<intent>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}`

const creativeSystemPrompt = `You are a creative assistant who produces moodboard concepts, image
prompts, and short creative writeups. Give a vivid, concrete response the user
can act on directly. Keep it under 200 words.`

const unknownHelpText = "I'm a life admin assistant specialized in:\n\n" +
	"• **Travel planning**: Flights, hotels, weather research\n" +
	"• **Reminders**: WhatsApp notifications & alerts\n" +
	"• **Creative**: Moodboards & AI images\n\n" +
	"Could you rephrase your request to match one of these?"

// classifyIntent decides which branch handles the turn. A model failure
// degrades to the unknown branch so the user still gets a reply.
func (o *Orchestrator) classifyIntent(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	var result models.IntentClassification
	if err := o.llm.GenerateStructured(ctx, classifySystemPrompt, s.Query, &result); err != nil {
		ctx.Logger().Error("intent classification failed", "error", err)
		s.RecordError("Classification error: %v", err)
		s.ActivateIntent(models.IntentUnknown)
		return s, nil
	}

	intent := models.ParseIntent(result.Intent)
	s.ActivateIntent(intent)
	ctx.Logger().Info("intent classified",
		"intent", intent,
		"confidence", result.Confidence,
		"reasoning", result.Reasoning)
	return s, nil
}

var subgraphByIntent = map[models.Intent]string{
	models.IntentTravelPlanning: travel.NodeExtractConstraints,
	models.IntentReminder:       NodeReminderAgent,
	models.IntentCreative:       NodeCreativeHandler,
	models.IntentUnknown:        NodeUnknownHandler,
}

func (o *Orchestrator) routeToSubgraph(ctx turnflow.Context, s models.AgentState) string {
	if next, ok := subgraphByIntent[s.Intent]; ok {
		return next
	}
	return NodeUnknownHandler
}

// creativeHandler is a single-shot generation. Moodboard image rendering
// is not wired to a backend yet, so the reply carries the concept text only.
func (o *Orchestrator) creativeHandler(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	if s.Creative == nil {
		s.Creative = &models.CreativeState{}
	}
	s.Creative.Brief = s.Query

	content, err := o.llm.Generate(ctx, creativeSystemPrompt, s.Query)
	if err != nil {
		ctx.Logger().Error("creative generation failed", "error", err)
		s.RecordError("Creative generation error: %v", err)
		return s, nil
	}
	s.FinalResponse = content
	ctx.Logger().Info("creative brief answered", "brief_len", len(s.Creative.Brief))
	return s, nil
}

func (o *Orchestrator) unknownHandler(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	ctx.Logger().Info("query did not match a known intent", "query", s.Query)
	s.FinalResponse = unknownHelpText
	return s, nil
}

// finalize closes the turn: it settles FinalResponse and appends the
// assistant reply to the conversation history. The reminder loop records
// its own replies, so an already-appended identical message is left alone.
func (o *Orchestrator) finalize(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	s.FinalResponse = deriveResponse(s)
	if n := len(s.Messages); n == 0 ||
		s.Messages[n-1].Role != models.RoleAssistant ||
		s.Messages[n-1].Content != s.FinalResponse {
		s.Messages = append(s.Messages, models.NewMessage(models.RoleAssistant, s.FinalResponse))
	}
	ctx.Logger().Info("turn finalized", "intent", s.Intent, "errors", len(s.Errors))
	return s, nil
}

// deriveResponse picks the user-facing reply for a finished turn. Branches
// normally set FinalResponse themselves; the fallbacks cover degraded turns
// and halts that skip finalize.
func deriveResponse(s models.AgentState) string {
	if s.FinalResponse != "" {
		return s.FinalResponse
	}
	switch len(s.Errors) {
	case 0:
	case 1:
		return s.Errors[0]
	default:
		return "I ran into a few problems:\n- " + strings.Join(s.Errors, "\n- ")
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == models.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return "I've processed your request."
}
