package models

import "strings"

// WeatherDay is one day of forecast data.
type WeatherDay struct {
	Date      string  `json:"date"`
	DayOfWeek string  `json:"day_of_week"`
	Condition string  `json:"condition"`
	TempMinC  float64 `json:"temp_min_c"`
	TempMaxC  float64 `json:"temp_max_c"`
}

// FlightOption is one flight search result.
type FlightOption struct {
	Airline         string  `json:"airline"`
	FlightNumber    string  `json:"flight_number"`
	DepartureTime   string  `json:"departure_time"`
	DurationMinutes int     `json:"duration_minutes"`
	PriceNPR        float64 `json:"price_npr"`
	Direct          bool    `json:"direct"`
	Stops           int     `json:"stops"`
}

// HotelOption is one hotel search result. A zero Rating means unrated.
type HotelOption struct {
	Name             string  `json:"name"`
	PricePerNightNPR float64 `json:"price_per_night_npr"`
	Rating           float64 `json:"rating"`
}

// ExtractedConstraints is the structured extractor output.
// MissingFields is the extractor's own account of what it could not
// determine; state completeness is recomputed from the merged values
// afterwards, not taken from here.
type ExtractedConstraints struct {
	Origin        string   `json:"origin"`
	Destination   string   `json:"destination"`
	DepartureDate string   `json:"departure_date"`
	ReturnDate    string   `json:"return_date"`
	BudgetNPR     float64  `json:"budget_npr"`
	Adults        int      `json:"adults"`
	MissingFields []string `json:"missing_fields"`
}

// ApprovalDecision is the parsed resume value at the approval gate.
// Zero indexes select the first option.
type ApprovalDecision struct {
	Approved            bool   `json:"approved"`
	SelectedFlightIndex int    `json:"selected_flight_index"`
	SelectedHotelIndex  int    `json:"selected_hotel_index"`
	Feedback            string `json:"feedback,omitempty"`
}

var affirmatives = map[string]bool{
	"yes":      true,
	"y":        true,
	"approve":  true,
	"approved": true,
	"ok":       true,
	"confirm":  true,
	"book it":  true,
	"go ahead": true,
}

// IsAffirmative reports whether a free-text reply counts as user consent.
// Matching is exact after trimming and lowercasing, so "yes please" is
// not consent and callers should treat it as feedback instead.
func IsAffirmative(s string) bool {
	return affirmatives[strings.ToLower(strings.TrimSpace(s))]
}
