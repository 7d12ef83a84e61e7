// Package model defines data structures for the chat front-end.
package model

// BaselineModel is assigned to conversations that predate per-conversation
// model selection.
const BaselineModel = "gpt-3.5-turbo"

// DocumentVersion is the current session document layout.
const DocumentVersion = 2

// Conversation is a named, ordered list of messages. The name is the key in
// the owning SessionDocument.
type Conversation struct {
	Messages      []Message `json:"messages"`
	SelectedModel string    `json:"selected_model"`
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	out := &Conversation{SelectedModel: c.SelectedModel}
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// SessionDocument holds every conversation of one user and is persisted as a
// single file.
type SessionDocument struct {
	Version        int                      `json:"version"`
	Conversations  map[string]*Conversation `json:"conversations"`
	Order          []string                 `json:"order"`
	SelectedModel  string                   `json:"selected_model,omitempty"`
	NextChatNumber int                      `json:"next_chat_number"`
}

// NewSessionDocument returns an empty document.
func NewSessionDocument() *SessionDocument {
	return &SessionDocument{
		Version:        DocumentVersion,
		Conversations:  make(map[string]*Conversation),
		Order:          []string{},
		NextChatNumber: 1,
	}
}

// Clone returns a deep copy of the document.
func (d *SessionDocument) Clone() *SessionDocument {
	out := &SessionDocument{
		Version:        d.Version,
		Conversations:  make(map[string]*Conversation, len(d.Conversations)),
		Order:          append([]string(nil), d.Order...),
		SelectedModel:  d.SelectedModel,
		NextChatNumber: d.NextChatNumber,
	}
	for name, conv := range d.Conversations {
		out.Conversations[name] = conv.Clone()
	}
	return out
}

// ConversationResponse is the API view of one conversation.
type ConversationResponse struct {
	Name          string    `json:"name"`
	Messages      []Message `json:"messages"`
	SelectedModel string    `json:"selected_model"`
	Active        bool      `json:"active"`
}

// SessionSnapshot is the API view of a user's session.
type SessionSnapshot struct {
	Username        string           `json:"username"`
	DisplayName     string           `json:"display_name"`
	Conversations   []string         `json:"conversations"`
	Active          string           `json:"active,omitempty"`
	PendingRename   string           `json:"pending_rename,omitempty"`
	Model           string           `json:"model"`
	Params          GenerationParams `json:"params"`
	AvailableModels []string         `json:"available_models,omitempty"`
	TurnActive      bool             `json:"turn_active"`
}

// RenameRequest carries a new conversation name.
type RenameRequest struct {
	Name string `json:"name"`
}

// StageRenameRequest names the conversation to stage for renaming.
type StageRenameRequest struct {
	Target string `json:"target"`
}

// SwitchModelRequest selects the model for the session.
type SwitchModelRequest struct {
	Model string `json:"model"`
}
