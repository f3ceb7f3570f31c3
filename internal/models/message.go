package models

import "time"

// Message roles, matching the chat completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation's turn log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// HistoryMessage is the external view of a logged message.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCallRecord captures a model-requested tool invocation. It is kept
// on the state while the call awaits user confirmation.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
