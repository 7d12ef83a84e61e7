// Package chatstate holds the in-memory state of one user's session and the
// commands that change it. Commands never perform I/O; they report the side
// effects the caller must carry out.
package chatstate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
)

var (
	// ErrConversationNotFound is returned when a command names an unknown conversation.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationExists is returned when a rename would collide with another conversation.
	ErrConversationExists = errors.New("conversation name already in use")
	// ErrNoActiveConversation is returned when a turn starts without a selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
)

// Effect is a side effect requested by a command.
type Effect string

const (
	// EffectPersist asks the caller to write the session document.
	EffectPersist Effect = "persist"
)

// Effects is the list of side effects produced by one command.
type Effects []Effect

// Has reports whether e contains effect.
func (e Effects) Has(effect Effect) bool {
	for _, x := range e {
		if x == effect {
			return true
		}
	}
	return false
}

var persist = Effects{EffectPersist}

// State is the working copy of a user's session. It is not safe for
// concurrent use; callers serialize access.
type State struct {
	doc           *model.SessionDocument
	active        string
	pendingRename string
	model         string
	defaultModel  string
	params        model.GenerationParams
}

// New wraps a loaded document. defaultModel is used for new conversations;
// the session model starts at the document's last selection, or defaultModel.
func New(doc *model.SessionDocument, defaultModel string) *State {
	if doc == nil {
		doc = model.NewSessionDocument()
	}
	if defaultModel == "" {
		defaultModel = model.BaselineModel
	}
	current := doc.SelectedModel
	if current == "" {
		current = defaultModel
	}
	return &State{
		doc:          doc,
		model:        current,
		defaultModel: defaultModel,
		params:       model.DefaultGenerationParams(),
	}
}

// Document returns the live document. Callers must not modify it.
func (s *State) Document() *model.SessionDocument {
	return s.doc
}

// Active returns the active conversation name, or "".
func (s *State) Active() string {
	return s.active
}

// PendingRename returns the conversation staged for renaming, or "".
func (s *State) PendingRename() string {
	return s.pendingRename
}

// Model returns the session model.
func (s *State) Model() string {
	return s.model
}

// Params returns the session generation parameters.
func (s *State) Params() model.GenerationParams {
	return s.params
}

// Names returns conversation names in listing order.
func (s *State) Names() []string {
	return append([]string(nil), s.doc.Order...)
}

// Conversation returns a copy of the named conversation.
func (s *State) Conversation(name string) (*model.Conversation, bool) {
	conv, ok := s.doc.Conversations[name]
	if !ok {
		return nil, false
	}
	return conv.Clone(), true
}

// Select makes name the active conversation and adopts its model.
func (s *State) Select(name string) error {
	conv, ok := s.doc.Conversations[name]
	if !ok {
		return ErrConversationNotFound
	}
	s.active = name
	s.model = modelOrBaseline(conv.SelectedModel)
	return nil
}

// CreateNew inserts an empty conversation named "Chat N" and makes it active.
// N comes from the document's counter and skips names already in use.
func (s *State) CreateNew() (string, Effects) {
	n := s.doc.NextChatNumber
	if n < 1 {
		n = 1
	}
	name := chatName(n)
	for s.exists(name) {
		n++
		name = chatName(n)
	}
	s.doc.NextChatNumber = n + 1

	s.doc.Conversations[name] = &model.Conversation{
		Messages:      []model.Message{},
		SelectedModel: s.defaultModel,
	}
	s.doc.Order = append(s.doc.Order, name)
	s.active = name
	s.model = s.defaultModel
	return name, persist
}

// Delete removes name. Deleting the active conversation clears the selection.
func (s *State) Delete(name string) Effects {
	if !s.exists(name) {
		return nil
	}
	delete(s.doc.Conversations, name)
	s.doc.Order = removeName(s.doc.Order, name)
	if s.active == name {
		s.active = ""
	}
	if s.pendingRename == name {
		s.pendingRename = ""
	}
	return persist
}

// Rename re-keys oldName to newName. Unknown oldName or an empty newName is a
// silent no-op.
func (s *State) Rename(oldName, newName string) (Effects, error) {
	newName = strings.TrimSpace(newName)
	if !s.exists(oldName) || newName == "" || newName == oldName {
		return nil, nil
	}
	if s.exists(newName) {
		return nil, ErrConversationExists
	}

	s.doc.Conversations[newName] = s.doc.Conversations[oldName]
	delete(s.doc.Conversations, oldName)
	s.doc.Order = append(removeName(s.doc.Order, oldName), newName)
	if s.active == oldName {
		s.active = newName
	}
	if s.pendingRename == oldName {
		s.pendingRename = newName
	}
	return persist, nil
}

// StageRename marks name as the single pending rename target, replacing any
// earlier one.
func (s *State) StageRename(name string) error {
	if !s.exists(name) {
		return ErrConversationNotFound
	}
	s.pendingRename = name
	return nil
}

// CommitRename renames the staged conversation and clears the stage.
func (s *State) CommitRename(newName string) (Effects, error) {
	target := s.pendingRename
	if target == "" {
		return nil, nil
	}
	effects, err := s.Rename(target, newName)
	if err != nil {
		return nil, err
	}
	s.pendingRename = ""
	return effects, nil
}

// CancelRename clears the staged rename target.
func (s *State) CancelRename() {
	s.pendingRename = ""
}

// SwitchModel changes the session model and stamps it on the active
// conversation.
func (s *State) SwitchModel(name string) Effects {
	s.model = name
	s.doc.SelectedModel = name
	conv, ok := s.doc.Conversations[s.active]
	if !ok {
		return nil
	}
	conv.SelectedModel = name
	return persist
}

// UpdateParams replaces the generation parameters after clamping them.
func (s *State) UpdateParams(p model.GenerationParams) model.GenerationParams {
	s.params = p.Clamp()
	return s.params
}

// BeginTurn appends the prompt to the active conversation in memory and
// returns the conversation name and the history to send upstream.
func (s *State) BeginTurn(prompt string) (string, []model.Message, error) {
	conv, ok := s.doc.Conversations[s.active]
	if !ok {
		return "", nil, ErrNoActiveConversation
	}
	conv.Messages = append(conv.Messages, model.Message{Role: model.RoleUser, Content: prompt})

	history := make([]model.Message, len(conv.Messages))
	copy(history, conv.Messages)
	return s.active, history, nil
}

// FinishTurn appends the assistant reply to name. Empty content appends
// nothing and requests no persistence.
func (s *State) FinishTurn(name, content string) (Effects, error) {
	if content == "" {
		return nil, nil
	}
	conv, ok := s.doc.Conversations[name]
	if !ok {
		return nil, fmt.Errorf("finish turn: %w", ErrConversationNotFound)
	}
	conv.Messages = append(conv.Messages, model.Message{Role: model.RoleAssistant, Content: content})
	return persist, nil
}

func (s *State) exists(name string) bool {
	_, ok := s.doc.Conversations[name]
	return ok
}

func chatName(n int) string {
	return fmt.Sprintf("Chat %d", n)
}

func modelOrBaseline(name string) string {
	if name == "" {
		return model.BaselineModel
	}
	return name
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
