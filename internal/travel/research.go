package travel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/internal/tools"
	"github.com/randalmurphal/traveops/pkg/turnflow"
)

// prepareResearch is the fork anchor. It clears the result slots before
// the branches run: slots merge first-non-empty, so stale data from an
// earlier round would otherwise shadow fresh results.
func (w *Workflow) prepareResearch(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	t := s.Travel
	t.WeatherOptions = nil
	t.FlightOptions = nil
	t.HotelOptions = nil

	ctx.Logger().Info("starting parallel research",
		"origin", t.Origin,
		"destination", t.Destination,
		"departure_date", t.DepartureDate,
		"flight_ceiling_npr", t.BudgetNPR*w.cfg.FlightBudgetShare,
		"hotel_allocation_npr", t.BudgetNPR*w.cfg.HotelBudgetShare)
	return s, nil
}

// researchWeather fills the forecast slot for the stay. A one-way trip
// collapses the range to the departure day.
func (w *Workflow) researchWeather(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	tool, ok := w.tools.Weather()
	if !ok {
		return s, nil
	}
	t := s.Travel

	end := t.ReturnDate
	if end == "" {
		end = t.DepartureDate
	}

	callCtx, cancel := w.researchContext(ctx)
	defer cancel()

	days, err := tool.Forecast(callCtx, tools.WeatherQuery{
		Location:  t.Destination,
		StartDate: t.DepartureDate,
		EndDate:   end,
	})
	if err != nil {
		ctx.Logger().Warn("weather research failed", "error", err)
		s.RecordError("%s", researchFailure("weather", err))
		return s, nil
	}

	t.WeatherOptions = days
	ctx.Logger().Info("weather research complete", "days", len(days))
	return s, nil
}

// researchFlights fills the flight slot, capping fares at the configured
// share of the budget.
func (w *Workflow) researchFlights(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	tool, ok := w.tools.Flights()
	if !ok {
		return s, nil
	}
	t := s.Travel

	callCtx, cancel := w.researchContext(ctx)
	defer cancel()

	flights, err := tool.SearchFlights(callCtx, tools.FlightQuery{
		Origin:        t.Origin,
		Destination:   t.Destination,
		DepartureDate: t.DepartureDate,
		ReturnDate:    t.ReturnDate,
		Adults:        t.Adults,
		MaxPriceNPR:   t.BudgetNPR * w.cfg.FlightBudgetShare,
	})
	if err != nil {
		ctx.Logger().Warn("flight research failed", "error", err)
		s.RecordError("%s", researchFailure("flight", err))
		return s, nil
	}

	t.FlightOptions = flights
	ctx.Logger().Info("flight research complete", "options", len(flights))
	return s, nil
}

// researchHotels fills the hotel slot. It needs a return date: without
// one the number of nights is undefined, so the whole lookup is skipped.
// The nightly ceiling spreads the hotel share of the budget across the
// stay.
func (w *Workflow) researchHotels(ctx turnflow.Context, s models.AgentState) (models.AgentState, error) {
	tool, ok := w.tools.Hotels()
	if !ok {
		return s, nil
	}
	t := s.Travel
	if t.ReturnDate == "" {
		return s, nil
	}

	nights := Nights(t.DepartureDate, t.ReturnDate)
	maxPerNight := t.BudgetNPR * w.cfg.HotelBudgetShare / float64(max(nights, 1))

	callCtx, cancel := w.researchContext(ctx)
	defer cancel()

	hotels, err := tool.SearchHotels(callCtx, tools.HotelQuery{
		CityCode:            t.Destination,
		CheckInDate:         t.DepartureDate,
		CheckOutDate:        t.ReturnDate,
		Adults:              t.Adults,
		MaxPricePerNightNPR: maxPerNight,
	})
	if err != nil {
		ctx.Logger().Warn("hotel research failed", "error", err)
		s.RecordError("%s", researchFailure("hotel", err))
		return s, nil
	}

	t.HotelOptions = hotels
	ctx.Logger().Info("hotel research complete", "options", len(hotels))
	return s, nil
}

// researchContext bounds a single research call. Zero timeout means the
// branch runs under the parent deadline alone.
func (w *Workflow) researchContext(ctx turnflow.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(w.cfg.ResearchTimeout)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// researchFailure renders a per-source failure, calling out timeouts
// separately so slow providers are distinguishable from broken ones.
func researchFailure(source string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return source + " research timed out"
	}
	return fmt.Sprintf("%s research failed: %v", source, err)
}
