package travel

import (
	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/pkg/turnflow"
	"github.com/randalmurphal/traveops/pkg/turnflow/template"
)

const extractSystemPrompt = `You are a precise travel constraint extractor.
Extract the following from the user's query:
- origin: IATA code (e.g., KTM) or city name (e.g., Kathmandu)
- destination: IATA code or city name
- departure_date: YYYY-MM-DD or natural language (e.g., tomorrow, next Friday)
- return_date: YYYY-MM-DD or natural language (empty if one-way or not mentioned)
- budget_npr: total budget in NPR (number only, convert k to thousands)
- adults: number of travelers (default 1 if not mentioned)

List any missing required fields (origin, destination, departure_date, budget_npr) in missing_fields.
If a field is ambiguous or missing, leave it empty and add it to missing_fields if required.

Query: "${query}"
Today: ${today} (use for relative dates)`

// requiredFields is what extraction must produce before research can run.
var requiredFields = []string{"origin", "destination", "departure_date", "budget_npr"}

// extractConstraints pulls trip constraints out of the query and merges
// them over whatever earlier turns accumulated: non-empty extracted
// values overwrite, absent values keep what we had. Completeness is then
// recomputed from the merged result, so a clarifier round-trip converges
// as the user fills gaps. Extraction failures degrade to "everything
// missing" and are never propagated.
func (w *Workflow) extractConstraints(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	if s.Travel == nil {
		s.Travel = models.NewTravelState()
	}
	t := s.Travel

	if s.Query == "" {
		t.RecomputeCompleteness()
		return s, nil
	}

	system := template.Expand(extractSystemPrompt, map[string]any{
		"query": s.Query,
		"today": w.now().Format(dateLayout),
	})

	var extracted models.ExtractedConstraints
	if err := w.llm.GenerateStructured(ctx, system, s.Query, &extracted); err != nil {
		ctx.Logger().Error("constraint extraction failed", "error", err)
		s.RecordError("Constraint extraction error: %v", err)
		t.ConstraintsComplete = false
		t.MissingFields = append([]string(nil), requiredFields...)
		return s, nil
	}

	if extracted.Origin != "" {
		t.Origin = ResolveAirportCode(extracted.Origin)
	}
	if extracted.Destination != "" {
		t.Destination = ResolveAirportCode(extracted.Destination)
	}
	if extracted.DepartureDate != "" {
		t.DepartureDate = w.normalizeDate(extracted.DepartureDate)
	}
	if extracted.ReturnDate != "" {
		t.ReturnDate = w.normalizeDate(extracted.ReturnDate)
	}
	if extracted.BudgetNPR > 0 {
		t.BudgetNPR = extracted.BudgetNPR
	}
	if extracted.Adults > 0 {
		t.Adults = extracted.Adults
	}

	t.RecomputeCompleteness()
	ctx.Logger().Info("constraints extracted",
		"origin", t.Origin,
		"destination", t.Destination,
		"departure_date", t.DepartureDate,
		"budget_npr", t.BudgetNPR,
		"complete", t.ConstraintsComplete)
	return s, nil
}

// normalizeDate resolves natural-language dates, keeping the raw text
// when it cannot so the gap stays visible to the user.
func (w *Workflow) normalizeDate(s string) string {
	if normalized, ok := ParseNaturalDate(s, w.now()); ok {
		return normalized
	}
	return s
}
