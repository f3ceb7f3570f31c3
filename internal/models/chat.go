package models

// ChatRequest is one inbound user turn.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the outcome of one turn. When Suspended is set the
// conversation is waiting on the user and Response carries the prompt.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	Intent         Intent `json:"intent,omitempty"`
	Suspended      bool   `json:"suspended"`
	SuspendPayload any    `json:"suspend_payload,omitempty"`
}

// NotifyConfirmationType tags NotifyConfirmation suspend payloads.
const NotifyConfirmationType = "notify_confirmation"

// NotifyConfirmation is the suspend payload raised before an outbound
// notification is sent: the draft is shown and nothing goes out without
// an affirmative resume value.
type NotifyConfirmation struct {
	Type   string `json:"type"`
	To     string `json:"to"`
	Draft  string `json:"draft"`
	Prompt string `json:"prompt"`
}
