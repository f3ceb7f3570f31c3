// Package models defines the shared conversation state and the typed
// records exchanged with collaborators: classifier output, extracted trip
// constraints, research results, approval decisions and the chat
// entry-point contract.
//
// AgentState is the single state type flowing through the orchestration
// graph. It satisfies turnflow's ParallelState so research branches can
// fork it and re-join with append-merge semantics for the turn log.
package models

import (
	"fmt"
	"sort"
)

// AgentState is the root state for one conversation, accumulated across
// turns and persisted between them.
type AgentState struct {
	// Query is the latest user utterance.
	Query string `json:"query"`

	// Phone is the optional handle for outbound notifications.
	Phone string `json:"phone,omitempty"`

	// Intent is set once per turn by the classifier, never guessed.
	Intent Intent `json:"intent,omitempty"`

	// At most one sub-state is active at a time, selected by Intent.
	// Switching intent replaces the prior variant.
	Travel   *TravelState   `json:"travel_state,omitempty"`
	Reminder *ReminderState `json:"reminder_state,omitempty"`
	Creative *CreativeState `json:"creative_state,omitempty"`

	// Messages is the append-only turn log.
	Messages []Message `json:"messages,omitempty"`

	// FinalResponse is the user-visible text for the turn, last write wins.
	FinalResponse string `json:"final_response,omitempty"`

	// Errors accumulates human-readable failures during the turn.
	Errors []string `json:"errors,omitempty"`
}

// TravelState is the travel-planning sub-state.
type TravelState struct {
	// Constraints extracted from the query. Origin and Destination hold
	// canonical airport codes once extraction completes; dates are
	// YYYY-MM-DD, ReturnDate strictly after DepartureDate when present.
	Origin        string  `json:"origin,omitempty"`
	Destination   string  `json:"destination,omitempty"`
	DepartureDate string  `json:"departure_date,omitempty"`
	ReturnDate    string  `json:"return_date,omitempty"`
	BudgetNPR     float64 `json:"budget_npr,omitempty"`
	Adults        int     `json:"adults"`

	// ConstraintsComplete and MissingFields are derived together from
	// the fields above; see RecomputeCompleteness.
	ConstraintsComplete bool     `json:"constraints_complete"`
	MissingFields       []string `json:"missing_fields"`

	// Research results. Empty means no data, not an error; failures are
	// recorded in AgentState.Errors.
	WeatherOptions []WeatherDay   `json:"weather_options,omitempty"`
	FlightOptions  []FlightOption `json:"flight_options,omitempty"`
	HotelOptions   []HotelOption  `json:"hotel_options,omitempty"`

	EstimatedCostNPR float64 `json:"estimated_cost_npr,omitempty"`
	BudgetFeasible   bool    `json:"budget_feasible"`

	// ApprovalPrompt is present only while awaiting approval.
	ApprovalPrompt string `json:"approval_prompt,omitempty"`

	// Set only from the resume value supplied by the human.
	UserApproved        bool `json:"user_approved"`
	SelectedFlightIndex int  `json:"selected_flight_index,omitempty"`
	SelectedHotelIndex  int  `json:"selected_hotel_index,omitempty"`

	WhatsAppSent    bool     `json:"whatsapp_sent"`
	MoodboardImages []string `json:"moodboard_images,omitempty"`
	RetryCount      int      `json:"retry_count,omitempty"`
}

// ReminderState is the reminder sub-state, driven by the agent loop.
type ReminderState struct {
	History          []Message       `json:"history,omitempty"`
	PendingTool      *ToolCallRecord `json:"pending_tool,omitempty"`
	Iterations       int             `json:"iterations"`
	NotificationSent bool            `json:"notification_sent"`
}

// CreativeState is the creative sub-state.
type CreativeState struct {
	Brief           string   `json:"brief,omitempty"`
	MoodboardImages []string `json:"moodboard_images,omitempty"`
}

// NewTravelState returns the travel defaults applied when the intent is
// first classified: one adult, nothing extracted yet.
func NewTravelState() *TravelState {
	return &TravelState{
		Adults:        1,
		MissingFields: []string{},
	}
}

// ActivateIntent sets the intent and makes the matching sub-state the
// active one, initializing it if absent and dropping any other variant.
func (s *AgentState) ActivateIntent(intent Intent) {
	s.Intent = intent
	switch intent {
	case IntentTravelPlanning:
		if s.Travel == nil {
			s.Travel = NewTravelState()
		}
		s.Reminder, s.Creative = nil, nil
	case IntentReminder:
		if s.Reminder == nil {
			s.Reminder = &ReminderState{}
		}
		s.Travel, s.Creative = nil, nil
	case IntentCreative:
		if s.Creative == nil {
			s.Creative = &CreativeState{}
		}
		s.Travel, s.Reminder = nil, nil
	default:
		s.Travel, s.Reminder, s.Creative = nil, nil, nil
	}
}

// RecordError appends a formatted failure to the turn's error list.
func (s *AgentState) RecordError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// RecomputeCompleteness derives ConstraintsComplete and MissingFields
// from the current constraint values. Required: origin, destination,
// departure date and a positive budget.
func (t *TravelState) RecomputeCompleteness() {
	missing := []string{}
	if t.Origin == "" {
		missing = append(missing, "origin")
	}
	if t.Destination == "" {
		missing = append(missing, "destination")
	}
	if t.DepartureDate == "" {
		missing = append(missing, "departure_date")
	}
	if t.BudgetNPR <= 0 {
		missing = append(missing, "budget_npr")
	}
	t.MissingFields = missing
	t.ConstraintsComplete = len(missing) == 0
}

func copySlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func (t *TravelState) clone() *TravelState {
	if t == nil {
		return nil
	}
	c := *t
	c.MissingFields = copySlice(t.MissingFields)
	c.WeatherOptions = copySlice(t.WeatherOptions)
	c.FlightOptions = copySlice(t.FlightOptions)
	c.HotelOptions = copySlice(t.HotelOptions)
	c.MoodboardImages = copySlice(t.MoodboardImages)
	return &c
}

func (r *ReminderState) clone() *ReminderState {
	if r == nil {
		return nil
	}
	c := *r
	c.History = copySlice(r.History)
	if r.PendingTool != nil {
		tool := *r.PendingTool
		c.PendingTool = &tool
	}
	return &c
}

func (c *CreativeState) clone() *CreativeState {
	if c == nil {
		return nil
	}
	cp := *c
	cp.MoodboardImages = copySlice(c.MoodboardImages)
	return &cp
}

// Clone deep-copies the state for a parallel branch.
func (s AgentState) Clone(branchID string) AgentState {
	clone := s
	clone.Travel = s.Travel.clone()
	clone.Reminder = s.Reminder.clone()
	clone.Creative = s.Creative.clone()
	clone.Messages = copySlice(s.Messages)
	clone.Errors = copySlice(s.Errors)
	return clone
}

// lww overwrites dst when the branch changed the value relative to the
// state the branches forked from.
func lww[T comparable](dst *T, base, branch T) {
	if branch != base {
		*dst = branch
	}
}

// delta returns the entries a branch appended beyond the forked prefix.
func delta[T any](base, branch []T) []T {
	if len(branch) <= len(base) {
		return nil
	}
	return branch[len(base):]
}

// Merge re-joins parallel branches onto the state they forked from.
// Scalars are keyed last-write-wins in branch-ID order; Messages and
// Errors concatenate what each branch appended; research slots take the
// first non-empty value. Branches cannot remove a sub-state.
func (s AgentState) Merge(branches map[string]AgentState) AgentState {
	merged := s.Clone("")

	ids := make([]string, 0, len(branches))
	for id := range branches {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		branch := branches[id]

		lww(&merged.Query, s.Query, branch.Query)
		lww(&merged.Phone, s.Phone, branch.Phone)
		lww(&merged.Intent, s.Intent, branch.Intent)
		lww(&merged.FinalResponse, s.FinalResponse, branch.FinalResponse)

		merged.Messages = append(merged.Messages, delta(s.Messages, branch.Messages)...)
		merged.Errors = append(merged.Errors, delta(s.Errors, branch.Errors)...)

		if branch.Travel != nil {
			if merged.Travel == nil {
				merged.Travel = branch.Travel.clone()
			} else {
				base := s.Travel
				if base == nil {
					base = &TravelState{}
				}
				mergeTravelState(merged.Travel, base, branch.Travel)
			}
		}
		if branch.Reminder != nil {
			if merged.Reminder == nil {
				merged.Reminder = branch.Reminder.clone()
			} else {
				base := s.Reminder
				if base == nil {
					base = &ReminderState{}
				}
				mergeReminderState(merged.Reminder, base, branch.Reminder)
			}
		}
		if branch.Creative != nil {
			if merged.Creative == nil {
				merged.Creative = branch.Creative.clone()
			} else {
				base := s.Creative
				if base == nil {
					base = &CreativeState{}
				}
				mergeCreativeState(merged.Creative, base, branch.Creative)
			}
		}
	}

	return merged
}

func mergeTravelState(dst, base, branch *TravelState) {
	lww(&dst.Origin, base.Origin, branch.Origin)
	lww(&dst.Destination, base.Destination, branch.Destination)
	lww(&dst.DepartureDate, base.DepartureDate, branch.DepartureDate)
	lww(&dst.ReturnDate, base.ReturnDate, branch.ReturnDate)
	lww(&dst.BudgetNPR, base.BudgetNPR, branch.BudgetNPR)
	lww(&dst.Adults, base.Adults, branch.Adults)
	lww(&dst.EstimatedCostNPR, base.EstimatedCostNPR, branch.EstimatedCostNPR)
	lww(&dst.BudgetFeasible, base.BudgetFeasible, branch.BudgetFeasible)
	lww(&dst.ApprovalPrompt, base.ApprovalPrompt, branch.ApprovalPrompt)
	lww(&dst.UserApproved, base.UserApproved, branch.UserApproved)
	lww(&dst.SelectedFlightIndex, base.SelectedFlightIndex, branch.SelectedFlightIndex)
	lww(&dst.SelectedHotelIndex, base.SelectedHotelIndex, branch.SelectedHotelIndex)
	lww(&dst.WhatsAppSent, base.WhatsAppSent, branch.WhatsAppSent)
	lww(&dst.RetryCount, base.RetryCount, branch.RetryCount)

	// Completeness fields move together to keep them consistent.
	if branch.ConstraintsComplete != base.ConstraintsComplete {
		dst.ConstraintsComplete = branch.ConstraintsComplete
		dst.MissingFields = copySlice(branch.MissingFields)
	}

	// Research slots: first branch to fill a slot wins.
	if len(dst.WeatherOptions) == 0 && len(branch.WeatherOptions) > 0 {
		dst.WeatherOptions = copySlice(branch.WeatherOptions)
	}
	if len(dst.FlightOptions) == 0 && len(branch.FlightOptions) > 0 {
		dst.FlightOptions = copySlice(branch.FlightOptions)
	}
	if len(dst.HotelOptions) == 0 && len(branch.HotelOptions) > 0 {
		dst.HotelOptions = copySlice(branch.HotelOptions)
	}
	if len(dst.MoodboardImages) == 0 && len(branch.MoodboardImages) > 0 {
		dst.MoodboardImages = copySlice(branch.MoodboardImages)
	}
}

func mergeReminderState(dst, base, branch *ReminderState) {
	lww(&dst.Iterations, base.Iterations, branch.Iterations)
	lww(&dst.NotificationSent, base.NotificationSent, branch.NotificationSent)
	dst.History = append(dst.History, delta(base.History, branch.History)...)
	if dst.PendingTool == nil && branch.PendingTool != nil {
		tool := *branch.PendingTool
		dst.PendingTool = &tool
	}
}

func mergeCreativeState(dst, base, branch *CreativeState) {
	lww(&dst.Brief, base.Brief, branch.Brief)
	if len(dst.MoodboardImages) == 0 && len(branch.MoodboardImages) > 0 {
		dst.MoodboardImages = copySlice(branch.MoodboardImages)
	}
}
