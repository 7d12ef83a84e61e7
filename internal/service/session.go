// Package service ties the stores, the conversation state and the completion
// orchestrator into per-user sessions.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/chatstate"
	"github.com/oaiwrapper/oaiwrapper/internal/completion"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
	"github.com/oaiwrapper/oaiwrapper/pkg/metrics"
)

// DocumentStore loads and saves session documents.
type DocumentStore interface {
	Load(ctx context.Context, userID string) (*model.SessionDocument, error)
	Save(ctx context.Context, userID string, doc *model.SessionDocument) error
}

// Completer runs one streamed completion.
type Completer interface {
	Run(ctx context.Context, req *completion.Request, onFragment completion.FragmentFunc) *completion.Outcome
}

// ModelCatalog lists the models that can be selected.
type ModelCatalog interface {
	Models() []string
}

// Session is one logged-in user's working state.
type Session struct {
	mu          sync.Mutex
	username    string
	displayName string
	state       *chatstate.State
	turn        context.CancelFunc
}

// TurnResult describes a finished turn.
type TurnResult struct {
	Conversation string
	State        completion.State
	Content      string
	Fragments    int
	// Appended reports whether an assistant message was added.
	Appended bool
}

// SessionService owns the registry of open sessions.
type SessionService struct {
	store        DocumentStore
	completer    Completer
	catalog      ModelCatalog
	publisher    EventPublisher
	events       EventReader
	defaultModel string
	logger       *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithEvents publishes session events to p and serves history from r.
func WithEvents(p EventPublisher, r EventReader) SessionOption {
	return func(s *SessionService) {
		if p != nil {
			s.publisher = p
		}
		s.events = r
	}
}

// WithDefaultModel sets the model for new conversations.
func WithDefaultModel(name string) SessionOption {
	return func(s *SessionService) {
		if name != "" {
			s.defaultModel = name
		}
	}
}

// NewSessionService creates a session service.
func NewSessionService(store DocumentStore, completer Completer, catalog ModelCatalog, log *logger.Logger, opts ...SessionOption) *SessionService {
	if log == nil {
		log = logger.NewNop()
	}
	s := &SessionService{
		store:        store,
		completer:    completer,
		catalog:      catalog,
		publisher:    nopPublisher{},
		defaultModel: model.BaselineModel,
		logger:       log.Named("session"),
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the user's document and registers the session. An already open
// session is reused.
func (s *SessionService) Open(ctx context.Context, username, displayName string) (*Session, error) {
	if sess := s.lookup(username); sess != nil {
		return sess, nil
	}

	doc, err := s.store.Load(ctx, username)
	if err != nil {
		s.logger.Error("failed to load session document", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("%w: load session: %v", ErrStore, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[username]; ok {
		return sess, nil
	}
	sess := &Session{
		username:    username,
		displayName: displayName,
		state:       chatstate.New(doc, s.defaultModel),
	}
	s.sessions[username] = sess
	metrics.SessionsActive.Inc()

	s.logger.Info("session opened",
		zap.String("username", username),
		zap.Int("conversations", len(doc.Conversations)),
	)
	return sess, nil
}

// Get returns the user's session, opening it when a valid token outlived a
// restart.
func (s *SessionService) Get(ctx context.Context, username, displayName string) (*Session, error) {
	return s.Open(ctx, username, displayName)
}

// Close drops the user's session and stops any streaming turn.
func (s *SessionService) Close(username string) {
	s.mu.Lock()
	sess, ok := s.sessions[username]
	delete(s.sessions, username)
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.SessionsActive.Dec()

	sess.mu.Lock()
	if sess.turn != nil {
		sess.turn()
	}
	sess.mu.Unlock()

	s.logger.Info("session closed", zap.String("username", username))
}

func (s *SessionService) lookup(username string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[username]
}

// Snapshot returns the user's session view.
func (s *SessionService) Snapshot(ctx context.Context, username, displayName string) (*model.SessionSnapshot, error) {
	sess, err := s.Get(ctx, username, displayName)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return &model.SessionSnapshot{
		Username:        sess.username,
		DisplayName:     sess.displayName,
		Conversations:   sess.state.Names(),
		Active:          sess.state.Active(),
		PendingRename:   sess.state.PendingRename(),
		Model:           sess.state.Model(),
		Params:          sess.state.Params(),
		AvailableModels: s.Models(),
		TurnActive:      sess.turn != nil,
	}, nil
}

// Models lists the selectable models.
func (s *SessionService) Models() []string {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.Models()
}

// Conversation returns one conversation with its messages.
func (s *SessionService) Conversation(ctx context.Context, username, displayName, name string) (*model.ConversationResponse, error) {
	sess, err := s.Get(ctx, username, displayName)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	conv, ok := sess.state.Conversation(name)
	if !ok {
		return nil, chatstate.ErrConversationNotFound
	}
	return &model.ConversationResponse{
		Name:          name,
		Messages:      conv.Messages,
		SelectedModel: conv.SelectedModel,
		Active:        sess.state.Active() == name,
	}, nil
}

// CreateConversation adds a new empty conversation and makes it active.
func (s *SessionService) CreateConversation(ctx context.Context, username, displayName string) (string, error) {
	var name string
	err := s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		var effects chatstate.Effects
		name, effects = sess.state.CreateNew()
		metrics.ConversationsTotal.Inc()
		return effects, newEvent(username, model.EventConversationCreated, name, nil), nil
	})
	return name, err
}

// DeleteConversation removes name.
func (s *SessionService) DeleteConversation(ctx context.Context, username, displayName, name string) error {
	return s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		if _, ok := sess.state.Conversation(name); !ok {
			return nil, nil, chatstate.ErrConversationNotFound
		}
		return sess.state.Delete(name), newEvent(username, model.EventConversationDeleted, name, nil), nil
	})
}

// SelectConversation makes name active.
func (s *SessionService) SelectConversation(ctx context.Context, username, displayName, name string) error {
	return s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		return nil, nil, sess.state.Select(name)
	})
}

// RenameConversation re-keys oldName to newName.
func (s *SessionService) RenameConversation(ctx context.Context, username, displayName, oldName, newName string) error {
	return s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		effects, err := sess.state.Rename(oldName, newName)
		if err != nil || !effects.Has(chatstate.EffectPersist) {
			return nil, nil, err
		}
		return effects, renamedEvent(username, oldName, newName), nil
	})
}

// StageRename marks name as the pending rename target.
func (s *SessionService) StageRename(ctx context.Context, username, displayName, name string) error {
	return s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		return nil, nil, sess.state.StageRename(name)
	})
}

// CommitRename renames the pending target to newName.
func (s *SessionService) CommitRename(ctx context.Context, username, displayName, newName string) error {
	return s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		target := sess.state.PendingRename()
		effects, err := sess.state.CommitRename(newName)
		if err != nil || !effects.Has(chatstate.EffectPersist) {
			return nil, nil, err
		}
		return effects, renamedEvent(username, target, newName), nil
	})
}

// CancelRename clears the pending rename target.
func (s *SessionService) CancelRename(ctx context.Context, username, displayName string) error {
	return s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		sess.state.CancelRename()
		return nil, nil, nil
	})
}

// SwitchModel selects the session model. When providers are configured the
// model must be one of theirs.
func (s *SessionService) SwitchModel(ctx context.Context, username, displayName, name string) error {
	if available := s.Models(); len(available) > 0 && !contains(available, name) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		effects := sess.state.SwitchModel(name)
		return effects, newEvent(username, model.EventModelSwitched, sess.state.Active(), map[string]string{"model": name}), nil
	})
}

// UpdateParams replaces the generation parameters and returns the clamped
// values.
func (s *SessionService) UpdateParams(ctx context.Context, username, displayName string, p model.GenerationParams) (model.GenerationParams, error) {
	var applied model.GenerationParams
	err := s.mutate(ctx, username, displayName, func(sess *Session) (chatstate.Effects, *model.SessionEvent, error) {
		applied = sess.state.UpdateParams(p)
		return nil, nil, nil
	})
	return applied, err
}

// Events returns the user's recent session events.
func (s *SessionService) Events(ctx context.Context, username string, limit int) ([]model.SessionEvent, error) {
	if s.events == nil {
		return nil, ErrEventsDisabled
	}
	return s.events.RecentEvents(ctx, username, limit)
}

// mutate runs fn under the session lock and applies its effects. Commands
// are refused while a turn streams.
func (s *SessionService) mutate(ctx context.Context, username, displayName string, fn func(*Session) (chatstate.Effects, *model.SessionEvent, error)) error {
	sess, err := s.Get(ctx, username, displayName)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.turn != nil {
		return ErrTurnInProgress
	}
	effects, event, err := fn(sess)
	if err != nil {
		return err
	}
	return s.apply(ctx, sess, effects, event)
}

// apply performs the side effects requested by a state command. The caller
// holds sess.mu.
func (s *SessionService) apply(ctx context.Context, sess *Session, effects chatstate.Effects, events ...*model.SessionEvent) error {
	if effects.Has(chatstate.EffectPersist) {
		err := s.store.Save(ctx, sess.username, sess.state.Document())
		metrics.RecordSave(err)
		if err != nil {
			s.logger.Error("failed to save session document",
				zap.String("username", sess.username),
				zap.Error(err),
			)
			return fmt.Errorf("%w: save session: %v", ErrStore, err)
		}
	}
	s.publish(ctx, events...)
	return nil
}

// SendPrompt appends prompt to the active conversation and streams the reply.
// onFragment sees every fragment as it arrives. Cancelling ctx or calling Stop
// ends the turn as stopped; partial content is kept either way.
func (s *SessionService) SendPrompt(ctx context.Context, username, displayName, prompt string, onFragment completion.FragmentFunc) (*TurnResult, error) {
	sess, err := s.Get(ctx, username, displayName)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.turn != nil {
		sess.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	name, history, err := sess.state.BeginTurn(prompt)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	req := &completion.Request{
		Model:    sess.state.Model(),
		Messages: history,
		Params:   sess.state.Params(),
	}
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.turn = cancel
	sess.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	out := s.completer.Run(turnCtx, req, onFragment)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turn = nil

	result := &TurnResult{
		Conversation: name,
		State:        out.State,
		Content:      out.Content,
		Fragments:    out.Fragments,
	}

	effects, err := sess.state.FinishTurn(name, out.Content)
	if err != nil {
		return result, err
	}
	result.Appended = effects.Has(chatstate.EffectPersist)
	if result.Appended {
		metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	}

	// The request context may already be gone when the client disconnected;
	// the reply is still saved.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.apply(persistCtx, sess, effects, turnEvent(username, name, req.Model, out)); err != nil {
		return result, err
	}

	if out.State == completion.StateFailed {
		return result, out.Err
	}
	return result, nil
}

// Stop cancels the user's streaming turn and reports whether there was one.
func (s *SessionService) Stop(username string) bool {
	sess := s.lookup(username)
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.turn == nil {
		return false
	}
	sess.turn()
	return true
}

func turnEvent(username, conversation, modelName string, out *completion.Outcome) *model.SessionEvent {
	var eventType model.EventType
	switch out.State {
	case completion.StateCompleted:
		eventType = model.EventTurnCompleted
	case completion.StateFailed:
		eventType = model.EventTurnFailed
	default:
		eventType = model.EventTurnStopped
	}
	meta := map[string]string{
		"model":     modelName,
		"fragments": strconv.Itoa(out.Fragments),
	}
	if out.Err != nil {
		meta["error"] = out.Err.Error()
	}
	return newEvent(username, eventType, conversation, meta)
}

func renamedEvent(username, oldName, newName string) *model.SessionEvent {
	return newEvent(username, model.EventConversationRenamed, strings.TrimSpace(newName), map[string]string{"from": oldName})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
