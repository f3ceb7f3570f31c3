package travel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/randalmurphal/traveops/internal/config"
	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/pkg/turnflow"
)

// humanApproval joins the research branches, presents the findings and
// suspends until the user answers. The prompt is built once and kept in
// ApprovalPrompt so the suspended snapshot carries it and the resume
// re-execution does not rebuild it. The resume value becomes the
// approval decision; routing on it happens in routeAfterApproval.
func (w *Workflow) humanApproval(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	t := s.Travel

	t.EstimatedCostNPR = CheapestCombination(t.FlightOptions, t.HotelOptions, estimateNights(t))
	if t.ApprovalPrompt == "" {
		t.ApprovalPrompt = buildApprovalPrompt(t)
	}

	ctx.Logger().Info("presenting options for approval",
		"flights", len(t.FlightOptions),
		"hotels", len(t.HotelOptions),
		"estimated_cost_npr", t.EstimatedCostNPR)

	raw, err := turnflow.Await[json.RawMessage](ctx, t.ApprovalPrompt)
	if err != nil {
		return s, err
	}

	decision := parseDecision(raw)
	t.UserApproved = decision.Approved
	t.SelectedFlightIndex = decision.SelectedFlightIndex
	t.SelectedHotelIndex = decision.SelectedHotelIndex
	t.ApprovalPrompt = ""

	if decision.Approved {
		ctx.Logger().Info("plan approved",
			"flight_index", decision.SelectedFlightIndex,
			"hotel_index", decision.SelectedHotelIndex)
	} else {
		ctx.Logger().Info("plan declined", "feedback", decision.Feedback)
		if w.cfg.RejectionRoute == config.RejectReResearch {
			t.RetryCount++
		}
	}
	return s, nil
}

// routeAfterApproval dispatches on the resume decision alone: approval
// books, anything else follows the configured rejection route.
func (w *Workflow) routeAfterApproval(ctx turnflow.Context, s models.AgentState) string {
	if s.Travel != nil && s.Travel.UserApproved {
		return NodeBookingExecutor
	}
	if w.cfg.RejectionRoute == config.RejectReResearch {
		return NodePrepareResearch
	}
	return NodeConstraintClarifier
}

// parseDecision interprets the resume value. A JSON string is matched
// against the affirmative tokens, with anything unrecognized kept as
// feedback; a JSON object is decoded as a structured decision; all other
// shapes mean decline.
func parseDecision(raw json.RawMessage) models.ApprovalDecision {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if models.IsAffirmative(text) {
			return models.ApprovalDecision{Approved: true}
		}
		return models.ApprovalDecision{Feedback: strings.TrimSpace(text)}
	}

	var decision models.ApprovalDecision
	if err := json.Unmarshal(raw, &decision); err == nil {
		return decision
	}

	return models.ApprovalDecision{}
}

// estimateNights is the stay length used for cost estimates: a one-way
// trip is priced as a single night.
func estimateNights(t *models.TravelState) int {
	if t.ReturnDate == "" {
		return 1
	}
	return Nights(t.DepartureDate, t.ReturnDate)
}

// buildApprovalPrompt renders the research summary shown at the approval
// gate. Sections for empty slots are omitted; the cost estimate needs
// both flights and hotels.
func buildApprovalPrompt(t *models.TravelState) string {
	lines := []string{"Travel Options Found\n"}

	if len(t.WeatherOptions) > 0 {
		lines = append(lines, "## Weather Forecast")
		for _, day := range t.WeatherOptions {
			lines = append(lines, fmt.Sprintf("- %s %s: %s, %s°C - %s°C",
				day.DayOfWeek, day.Date, day.Condition,
				formatNPR(day.TempMinC), formatNPR(day.TempMaxC)))
		}
		lines = append(lines, "")
	}

	if len(t.FlightOptions) > 0 {
		lines = append(lines, "## Flight Options")
		for i, f := range t.FlightOptions {
			stops := "Direct"
			if !f.Direct {
				stops = fmt.Sprintf("%d stops", f.Stops)
			}
			lines = append(lines, fmt.Sprintf("%d. %s %s - NPR %s - %s - %s",
				i+1, f.Airline, f.FlightNumber, formatNPR(f.PriceNPR),
				FormatDuration(f.DurationMinutes), stops))
		}
		lines = append(lines, "")
	}

	if len(t.HotelOptions) > 0 {
		lines = append(lines, "## Hotel Options")
		for i, h := range t.HotelOptions {
			rating := "N/A"
			if h.Rating > 0 {
				rating = formatNPR(h.Rating)
			}
			lines = append(lines, fmt.Sprintf("%d. %s - NPR %s/night - Rating: %s",
				i+1, h.Name, formatNPR(h.PricePerNightNPR), rating))
		}
		lines = append(lines, "")
	}

	if len(t.FlightOptions) > 0 && len(t.HotelOptions) > 0 {
		verdict := "✅ Within budget"
		if t.EstimatedCostNPR > t.BudgetNPR {
			verdict = "⚠️ Over budget"
		}
		lines = append(lines,
			"## Cost Estimate",
			fmt.Sprintf("- Cheapest combination: NPR %s", formatNPR(t.EstimatedCostNPR)),
			fmt.Sprintf("- Your budget: NPR %s", formatNPR(t.BudgetNPR)),
			"- "+verdict,
			"")
	}

	lines = append(lines, "**Approve to proceed with booking?**")
	return strings.Join(lines, "\n")
}
