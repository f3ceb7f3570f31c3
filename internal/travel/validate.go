package travel

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/pkg/turnflow"
	"github.com/randalmurphal/traveops/pkg/turnflow/expr"
)

// fieldLabels translates machine field names into the wording shown to
// the user when asking for missing details.
var fieldLabels = map[string]string{
	"origin":         "departure city/airport",
	"destination":    "destination city/airport",
	"departure_date": "departure date",
	"budget_npr":     "total budget (in NPR)",
}

// validateBudget gates the expensive part of the workflow. Checks run in
// order: an infeasible budget halts the turn outright, incomplete
// constraints divert to the clarifier, and only a complete feasible
// request falls through to research.
func (w *Workflow) validateBudget(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	t := s.Travel

	feasible := t.BudgetNPR >= w.cfg.MinBudgetNPR
	if rule := w.cfg.FeasibilityRule; rule != "" {
		ok, err := expr.Eval(rule, map[string]any{
			"budget":     t.BudgetNPR,
			"min_budget": w.cfg.MinBudgetNPR,
		})
		if err != nil {
			ctx.Logger().Error("feasibility rule is invalid, using minimum threshold", "rule", rule, "error", err)
			s.RecordError("Invalid feasibility rule %q: %v", rule, err)
		} else {
			feasible = ok
		}
	}

	if !feasible {
		ctx.Logger().Warn("budget below minimum", "budget_npr", t.BudgetNPR, "min_budget_npr", w.cfg.MinBudgetNPR)
		t.BudgetFeasible = false
		s.RecordError("Budget too low. Minimum needed: %v", w.cfg.MinBudgetNPR)
		return s, turnflow.Halt()
	}
	t.BudgetFeasible = true

	if !t.ConstraintsComplete {
		ctx.Logger().Info("constraints incomplete", "missing", t.MissingFields)
		return s, turnflow.Goto(NodeConstraintClarifier)
	}

	ctx.Logger().Info("budget feasible, proceeding to research", "budget_npr", t.BudgetNPR)
	return s, nil
}

// constraintClarifier composes a single message asking for what is still
// missing. It also serves as the landing spot for a declined approval,
// where nothing is missing and the user wants different options instead.
func (w *Workflow) constraintClarifier(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	t := s.Travel

	var msg string
	if len(t.MissingFields) == 0 {
		msg = "No booking made. Tell me what to change (destination, dates or budget) and I'll search again."
	} else {
		labels := make([]string, 0, len(t.MissingFields))
		for _, f := range t.MissingFields {
			label, ok := fieldLabels[f]
			if !ok {
				label = f
			}
			labels = append(labels, label)
		}
		msg = fmt.Sprintf("Missing information: %s. Please provide these details to continue.", strings.Join(labels, ", "))
	}

	s.RecordError("%s", msg)
	s.FinalResponse = msg
	ctx.Logger().Info("clarification requested", "missing", t.MissingFields)
	return s, nil
}
