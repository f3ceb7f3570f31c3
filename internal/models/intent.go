package models

// Intent is the classified purpose of a user turn.
type Intent string

// The closed intent set. Classification never guesses outside it.
const (
	IntentTravelPlanning Intent = "travel_planning"
	IntentReminder       Intent = "reminder"
	IntentCreative       Intent = "creative"
	IntentUnknown        Intent = "unknown"
)

// ParseIntent maps a classifier label onto the closed intent set.
// Anything unrecognized becomes IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentTravelPlanning, IntentReminder, IntentCreative, IntentUnknown:
		return Intent(s)
	default:
		return IntentUnknown
	}
}

// IntentClassification is the structured classifier output.
type IntentClassification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}
