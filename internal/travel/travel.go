// Package travel implements the travel-planning workflow: constraint
// extraction, budget validation, a parallel research fan-out over
// weather, flights and hotels, a human approval gate and booking with
// an optional WhatsApp confirmation.
//
// The nodes operate on models.AgentState and are registered on a host
// graph with Attach, so the orchestrator composes them alongside the
// other intent handlers.
package travel

import (
	"time"

	"github.com/randalmurphal/traveops/internal/config"
	"github.com/randalmurphal/traveops/internal/genai"
	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/internal/tools"
	"github.com/randalmurphal/traveops/pkg/turnflow"
)

// Node IDs registered by Attach.
const (
	NodeExtractConstraints  = "extract_constraints"
	NodeValidateBudget      = "validate_budget"
	NodeConstraintClarifier = "constraint_clarifier"
	NodePrepareResearch     = "prepare_research"
	NodeResearchWeather     = "research_weather"
	NodeResearchFlights     = "research_flights"
	NodeResearchHotels      = "research_hotels"
	NodeHumanApproval       = "human_approval"
	NodeBookingExecutor     = "booking_executor"
)

// Workflow binds the travel nodes to their collaborators.
type Workflow struct {
	llm   genai.ClientInterface
	tools *tools.Registry
	cfg   config.TravelConfig

	// now anchors natural-language date resolution.
	now func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock replaces the reference time source. Tests use it to pin
// relative dates like "tomorrow".
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// New returns a workflow using the given LLM client, tool registry and
// travel settings.
func New(llm genai.ClientInterface, reg *tools.Registry, cfg config.TravelConfig, opts ...Option) *Workflow {
	w := &Workflow{llm: llm, tools: reg, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Attach registers the travel nodes and edges on g. Control enters at
// NodeExtractConstraints and leaves to next after booking or
// clarification; an infeasible budget ends the run directly.
//
// The three unconditional edges out of NodePrepareResearch make it a
// fork node; the branches rejoin at NodeHumanApproval.
func (w *Workflow) Attach(g *turnflow.Graph[models.AgentState], next string) {
	g.AddNode(NodeExtractConstraints, w.extractConstraints).
		AddNode(NodeValidateBudget, w.validateBudget).
		AddNode(NodeConstraintClarifier, w.constraintClarifier).
		AddNode(NodePrepareResearch, w.prepareResearch).
		AddNode(NodeResearchWeather, w.researchWeather).
		AddNode(NodeResearchFlights, w.researchFlights).
		AddNode(NodeResearchHotels, w.researchHotels).
		AddNode(NodeHumanApproval, w.humanApproval).
		AddNode(NodeBookingExecutor, w.bookingExecutor)

	g.AddEdge(NodeExtractConstraints, NodeValidateBudget).
		AddEdge(NodeValidateBudget, NodePrepareResearch).
		AddEdge(NodeConstraintClarifier, next)

	g.AddEdge(NodePrepareResearch, NodeResearchWeather).
		AddEdge(NodePrepareResearch, NodeResearchFlights).
		AddEdge(NodePrepareResearch, NodeResearchHotels).
		AddEdge(NodeResearchWeather, NodeHumanApproval).
		AddEdge(NodeResearchFlights, NodeHumanApproval).
		AddEdge(NodeResearchHotels, NodeHumanApproval)

	g.AddConditionalEdge(NodeHumanApproval, w.routeAfterApproval).
		AddEdge(NodeBookingExecutor, next)
}
