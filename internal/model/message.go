package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role that may appear in a conversation.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one entry of a conversation. Messages are immutable once appended.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SendMessageRequest is the request to submit a prompt to the active conversation.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// TokenEvent represents a streamed fragment.
type TokenEvent struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

// MessageCompleteEvent is emitted when a turn appended an assistant message.
type MessageCompleteEvent struct {
	Conversation string  `json:"conversation"`
	Message      Message `json:"message"`
	Outcome      string  `json:"outcome"`
}

// StoppedEvent is emitted when a turn was stopped before any content arrived.
type StoppedEvent struct {
	Conversation string `json:"conversation"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
