package model

import (
	"time"
)

// EventType represents the type of session event.
type EventType string

const (
	EventConversationCreated EventType = "conversation_created"
	EventConversationDeleted EventType = "conversation_deleted"
	EventConversationRenamed EventType = "conversation_renamed"
	EventModelSwitched       EventType = "model_switched"
	EventTurnCompleted       EventType = "turn_completed"
	EventTurnStopped         EventType = "turn_stopped"
	EventTurnFailed          EventType = "turn_failed"
)

// SessionEvent records a structural change or a finished turn in a user's
// session.
type SessionEvent struct {
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	Type         EventType         `json:"type"`
	Conversation string            `json:"conversation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
