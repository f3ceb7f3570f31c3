package tools

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/randalmurphal/traveops/internal/config"
	"github.com/randalmurphal/traveops/internal/models"
)

const forecastMaxDays = 7

var defaultConditions = []string{"Sunny", "Partly cloudy", "Cloudy", "Light rain", "Clear"}

// StaticProvider serves deterministic research data without network
// access. Results are a pure function of the query, so the same trip
// always yields the same options. Per-tool settings can inject a response
// delay or a simulated outage.
type StaticProvider struct {
	weather    sectionSettings
	flights    sectionSettings
	hotels     sectionSettings
	conditions []string
}

type sectionSettings struct {
	delay time.Duration
	fail  bool
}

// NewStaticProvider builds a provider from per-tool settings keyed by wire
// name. A nil map uses the defaults for every tool.
func NewStaticProvider(settings map[string]config.Values) *StaticProvider {
	p := &StaticProvider{conditions: defaultConditions}
	p.weather = sectionFor(settings[ToolWeather])
	p.flights = sectionFor(settings[ToolFlights])
	p.hotels = sectionFor(settings[ToolHotels])
	if cs := settings[ToolWeather].StringSlice("conditions", nil); len(cs) > 0 {
		p.conditions = cs
	}
	return p
}

func sectionFor(v config.Values) sectionSettings {
	return sectionSettings{
		delay: v.Duration("delay", 0),
		fail:  v.Bool("fail", false),
	}
}

// Forecast returns one entry per day from start to end date, capped at a
// week. A missing or malformed end date collapses the range to the start
// day.
func (p *StaticProvider) Forecast(ctx context.Context, q WeatherQuery) ([]models.WeatherDay, error) {
	if err := hold(ctx, p.weather.delay); err != nil {
		return nil, err
	}
	if p.weather.fail {
		return nil, fmt.Errorf("weather service unavailable for %s", q.Location)
	}
	start, err := time.Parse("2006-01-02", q.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parse start_date %q: %w", q.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", q.EndDate)
	if err != nil || end.Before(start) {
		end = start
	}

	var days []models.WeatherDay
	for d := start; !d.After(end) && len(days) < forecastMaxDays; d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		s := seed(q.Location, date)
		minC := 8 + float64(s%12)
		days = append(days, models.WeatherDay{
			Date:      date,
			DayOfWeek: d.Weekday().String()[:3],
			Condition: p.conditions[int(s>>16)%len(p.conditions)],
			TempMinC:  minC,
			TempMaxC:  minC + 5 + float64((s>>8)%8),
		})
	}
	return days, nil
}

var flightCatalog = []models.FlightOption{
	{Airline: "Himalaya Airlines", FlightNumber: "H9 551", DepartureTime: "08:15", DurationMinutes: 95, PriceNPR: 14200, Direct: true},
	{Airline: "Buddha Air", FlightNumber: "U4 605", DepartureTime: "11:40", DurationMinutes: 110, PriceNPR: 12800, Direct: true},
	{Airline: "Nepal Airlines", FlightNumber: "RA 207", DepartureTime: "14:05", DurationMinutes: 170, PriceNPR: 9900, Stops: 1},
	{Airline: "Yeti Airlines", FlightNumber: "YT 881", DepartureTime: "17:30", DurationMinutes: 100, PriceNPR: 15600, Direct: true},
	{Airline: "Shree Airlines", FlightNumber: "SH 412", DepartureTime: "06:50", DurationMinutes: 205, PriceNPR: 8700, Stops: 2},
}

// SearchFlights scales a fixed catalog by a per-route factor and filters
// by the total price ceiling when one is set.
func (p *StaticProvider) SearchFlights(ctx context.Context, q FlightQuery) ([]models.FlightOption, error) {
	if err := hold(ctx, p.flights.delay); err != nil {
		return nil, err
	}
	if p.flights.fail {
		return nil, fmt.Errorf("flight search unavailable for %s-%s", q.Origin, q.Destination)
	}

	factor := routeFactor(seed(q.Origin, q.Destination))
	travellers := float64(max(q.Adults, 1))

	var out []models.FlightOption
	for _, f := range flightCatalog {
		f.PriceNPR = math.Round(f.PriceNPR * factor * travellers)
		if q.MaxPriceNPR > 0 && f.PriceNPR > q.MaxPriceNPR {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

var hotelCatalog = []struct {
	name   string
	rate   float64
	rating float64
}{
	{"%s Heritage Hotel", 5200, 4.5},
	{"Hotel %s Plaza", 3800, 4.1},
	{"%s Garden Inn", 2900, 3.8},
	{"%s Backpackers Lodge", 1400, 0},
	{"The %s Grand", 7600, 4.8},
}

// SearchHotels substitutes the city code into fixed hotel templates,
// scales the nightly rate per city, and filters by the nightly price
// ceiling when one is set.
func (p *StaticProvider) SearchHotels(ctx context.Context, q HotelQuery) ([]models.HotelOption, error) {
	if err := hold(ctx, p.hotels.delay); err != nil {
		return nil, err
	}
	if p.hotels.fail {
		return nil, fmt.Errorf("hotel search unavailable for %s", q.CityCode)
	}

	factor := routeFactor(seed(q.CityCode))

	var out []models.HotelOption
	for _, h := range hotelCatalog {
		rate := math.Round(h.rate * factor)
		if q.MaxPricePerNightNPR > 0 && rate > q.MaxPricePerNightNPR {
			continue
		}
		out = append(out, models.HotelOption{
			Name:             fmt.Sprintf(h.name, q.CityCode),
			PricePerNightNPR: rate,
			Rating:           h.rating,
		})
	}
	return out, nil
}

// routeFactor maps a seed onto a price multiplier in [0.80, 1.29].
func routeFactor(s uint64) float64 {
	return 0.8 + float64(s%50)/100
}

func seed(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
