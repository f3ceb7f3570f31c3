package travel

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/traveops/internal/models"
)

const dateLayout = "2006-01-02"

// airportCodes maps lowercase city names to IATA codes: Nepali airports
// plus the international destinations Nepali travellers most commonly
// fly to.
var airportCodes = map[string]string{
	"kathmandu":    "KTM",
	"pokhara":      "PKR",
	"bharatpur":    "BHR",
	"biratnagar":   "BIR",
	"nepalgunj":    "KEP",
	"janakpur":     "JKR",
	"bhadrapur":    "BDP",
	"dhangadhi":    "DHI",
	"tumlingtar":   "TMI",
	"simara":       "SIF",
	"lukla":        "LUA",
	"delhi":        "DEL",
	"new delhi":    "DEL",
	"mumbai":       "BOM",
	"kolkata":      "CCU",
	"bangkok":      "BKK",
	"singapore":    "SIN",
	"dubai":        "DXB",
	"doha":         "DOH",
	"kuala lumpur": "KUL",
	"hong kong":    "HKG",
	"tokyo":        "NRT",
	"london":       "LHR",
	"new york":     "JFK",
	"paris":        "CDG",
	"istanbul":     "IST",
	"frankfurt":    "FRA",
}

// ResolveAirportCode maps a city name to its IATA code. Three-letter
// alphabetic input is treated as a code and uppercased; unknown names
// come back unchanged so downstream search still has something to use.
func ResolveAirportCode(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 3 && isAlpha(trimmed) {
		return strings.ToUpper(trimmed)
	}
	if code, ok := airportCodes[strings.ToLower(trimmed)]; ok {
		return code
	}
	return trimmed
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseNaturalDate resolves a natural-language date relative to ref.
// Understood forms: "today", "tomorrow", "in N days", a weekday name or
// "next <weekday>" (both mean the first occurrence strictly after ref)
// and YYYY-MM-DD passthrough. The second return is false when s is none
// of these.
func ParseNaturalDate(s string, ref time.Time) (string, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))

	switch norm {
	case "":
		return "", false
	case "today":
		return ref.Format(dateLayout), true
	case "tomorrow":
		return ref.AddDate(0, 0, 1).Format(dateLayout), true
	}

	if d, err := time.Parse(dateLayout, norm); err == nil {
		return d.Format(dateLayout), true
	}

	if rest, ok := strings.CutPrefix(norm, "in "); ok {
		rest = strings.TrimSuffix(rest, " days")
		rest = strings.TrimSuffix(rest, " day")
		if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && n >= 0 {
			return ref.AddDate(0, 0, n).Format(dateLayout), true
		}
		return "", false
	}

	if wd, ok := weekdays[strings.TrimPrefix(norm, "next ")]; ok {
		return nextWeekday(ref, wd).Format(dateLayout), true
	}

	return "", false
}

// nextWeekday is the first occurrence of target strictly after ref, so a
// Friday reference resolves "friday" to the following week.
func nextWeekday(ref time.Time, target time.Weekday) time.Time {
	days := (int(target) - int(ref.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return ref.AddDate(0, 0, days)
}

// Nights returns the stay length between two YYYY-MM-DD dates, or 0 when
// either date is missing or malformed or the return is not after the
// departure.
func Nights(departure, ret string) int {
	dep, err := time.Parse(dateLayout, departure)
	if err != nil {
		return 0
	}
	rd, err := time.Parse(dateLayout, ret)
	if err != nil || !rd.After(dep) {
		return 0
	}
	return int(rd.Sub(dep).Hours() / 24)
}

// CheapestCombination is the lowest flight fare plus the lowest nightly
// hotel rate over the stay. Zero when either list is empty.
func CheapestCombination(flights []models.FlightOption, hotels []models.HotelOption, nights int) float64 {
	if len(flights) == 0 || len(hotels) == 0 {
		return 0
	}

	cheapestFlight := flights[0].PriceNPR
	for _, f := range flights[1:] {
		if f.PriceNPR < cheapestFlight {
			cheapestFlight = f.PriceNPR
		}
	}

	cheapestNight := hotels[0].PricePerNightNPR
	for _, h := range hotels[1:] {
		if h.PricePerNightNPR < cheapestNight {
			cheapestNight = h.PricePerNightNPR
		}
	}

	return cheapestFlight + cheapestNight*float64(nights)
}

// FormatDuration renders flight minutes as "2h 15m", dropping the zero
// component.
func FormatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

var flightTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "15:04"}

// FormatFlightTime extracts the clock time from a departure timestamp,
// accepting RFC 3339, date-and-time or a bare clock time. Anything else
// comes back unchanged.
func FormatFlightTime(s string) string {
	for _, layout := range flightTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Format("15:04")
		}
	}
	return s
}

// formatNPR renders an amount without trailing zeros, matching how the
// summaries quote prices.
func formatNPR(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
