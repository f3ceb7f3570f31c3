package travel

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/pkg/turnflow"
)

// bookingExecutor composes the booked-plan summary from the selected
// options and delivers it over WhatsApp when a phone number and a
// notifier are both available. Delivery failures are recorded, never
// raised: the summary is still the turn's response.
func (w *Workflow) bookingExecutor(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	t := s.Travel

	flightIdx := clampIndex(t.SelectedFlightIndex, len(t.FlightOptions))
	hotelIdx := clampIndex(t.SelectedHotelIndex, len(t.HotelOptions))

	lines := []string{"🎉 Your travel plan is ready!\n"}

	if len(t.FlightOptions) > 0 {
		f := t.FlightOptions[flightIdx]
		lines = append(lines, fmt.Sprintf("✈️ Flight: %s %s\n   Departs: %s\n   Price: NPR %s",
			f.Airline, f.FlightNumber, FormatFlightTime(f.DepartureTime), formatNPR(f.PriceNPR)))
	}
	if len(t.HotelOptions) > 0 {
		h := t.HotelOptions[hotelIdx]
		lines = append(lines, fmt.Sprintf("\n🏨 Hotel: %s\n   Price: NPR %s/night",
			h.Name, formatNPR(h.PricePerNightNPR)))
	}

	summary := strings.Join(lines, "\n")
	s.FinalResponse = summary
	t.WhatsAppSent = false

	notifier, ok := w.tools.Notifier()
	if !ok || s.Phone == "" {
		ctx.Logger().Info("booking summary ready", "notified", false)
		return s, nil
	}

	if err := notifier.Send(ctx, s.Phone, summary); err != nil {
		ctx.Logger().Warn("whatsapp notification failed", "error", err)
		s.RecordError("WhatsApp notification failed: %v", err)
		return s, nil
	}

	t.WhatsAppSent = true
	ctx.Logger().Info("whatsapp notification sent", "to", s.Phone)
	return s, nil
}

// clampIndex keeps a user-selected option index inside the list,
// falling back to the first option.
func clampIndex(i, n int) int {
	if i < 0 || i >= n {
		return 0
	}
	return i
}
