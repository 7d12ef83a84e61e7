package chatstate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
)

func newState(t *testing.T, names ...string) *State {
	t.Helper()
	doc := model.NewSessionDocument()
	for _, name := range names {
		doc.Conversations[name] = &model.Conversation{
			Messages:      []model.Message{{Role: model.RoleUser, Content: "in " + name}},
			SelectedModel: "gpt-4o",
		}
		doc.Order = append(doc.Order, name)
	}
	doc.NextChatNumber = len(names) + 1
	return New(doc, "gpt-3.5-turbo")
}

func TestCreateNew(t *testing.T) {
	s := newState(t)

	name, effects := s.CreateNew()
	if name != "Chat 1" {
		t.Fatalf("name = %q", name)
	}
	if !effects.Has(EffectPersist) {
		t.Fatalf("create must persist")
	}
	if s.Active() != "Chat 1" {
		t.Fatalf("new chat should be active, got %q", s.Active())
	}
	conv, ok := s.Conversation("Chat 1")
	if !ok || len(conv.Messages) != 0 || conv.SelectedModel != "gpt-3.5-turbo" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if s.Model() != "gpt-3.5-turbo" {
		t.Fatalf("session model = %q", s.Model())
	}
}

func TestCreateNewNeverReusesNameAfterDelete(t *testing.T) {
	s := newState(t)

	s.CreateNew() // Chat 1
	s.CreateNew() // Chat 2
	s.Delete("Chat 1")

	name, _ := s.CreateNew()
	if name != "Chat 3" {
		t.Fatalf("expected Chat 3, got %q", name)
	}
	conv, _ := s.Conversation("Chat 2")
	if conv == nil {
		t.Fatalf("Chat 2 was overwritten")
	}
}

func TestCreateNewSkipsExistingNames(t *testing.T) {
	doc := model.NewSessionDocument()
	doc.Conversations["Chat 1"] = &model.Conversation{Messages: []model.Message{{Role: model.RoleUser, Content: "keep"}}}
	doc.Order = []string{"Chat 1"}
	doc.NextChatNumber = 1 // counter lagging behind, e.g. a hand-edited document
	s := New(doc, "")

	name, _ := s.CreateNew()
	if name != "Chat 2" {
		t.Fatalf("expected Chat 2, got %q", name)
	}
	conv, _ := s.Conversation("Chat 1")
	if len(conv.Messages) != 1 {
		t.Fatalf("existing Chat 1 was overwritten")
	}
	if s.Document().NextChatNumber != 3 {
		t.Fatalf("NextChatNumber = %d", s.Document().NextChatNumber)
	}
}

func TestSelectHydratesModel(t *testing.T) {
	s := newState(t, "a")
	s.Document().Conversations["legacy"] = &model.Conversation{}
	s.Document().Order = append(s.Document().Order, "legacy")

	if err := s.Select("a"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if s.Model() != "gpt-4o" {
		t.Fatalf("model = %q", s.Model())
	}
	if err := s.Select("legacy"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if s.Model() != model.BaselineModel {
		t.Fatalf("legacy conversation should fall back to baseline, got %q", s.Model())
	}
	if err := s.Select("missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if s.Active() != "legacy" {
		t.Fatalf("failed select must not change active, got %q", s.Active())
	}
}

func TestDeleteActiveClearsSelection(t *testing.T) {
	s := newState(t, "a", "b")
	_ = s.Select("a")

	if effects := s.Delete("a"); !effects.Has(EffectPersist) {
		t.Fatalf("delete must persist")
	}
	if s.Active() != "" {
		t.Fatalf("active = %q, want empty", s.Active())
	}
	if !reflect.DeepEqual(s.Names(), []string{"b"}) {
		t.Fatalf("names = %v", s.Names())
	}
}

func TestDeleteOtherKeepsSelection(t *testing.T) {
	s := newState(t, "a", "b")
	_ = s.Select("a")

	s.Delete("b")
	if s.Active() != "a" {
		t.Fatalf("active = %q, want a", s.Active())
	}
	if effects := s.Delete("missing"); effects != nil {
		t.Fatalf("deleting unknown conversation should be a no-op, got %v", effects)
	}
}

func TestRenamePreservesContentAndMovesActive(t *testing.T) {
	s := newState(t, "a", "b")
	_ = s.Select("a")
	before, _ := s.Conversation("a")

	effects, err := s.Rename("a", "  renamed ")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !effects.Has(EffectPersist) {
		t.Fatalf("rename must persist")
	}
	after, ok := s.Conversation("renamed")
	if !ok {
		t.Fatalf("renamed conversation missing")
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("content changed: %+v vs %+v", before, after)
	}
	if _, ok := s.Conversation("a"); ok {
		t.Fatalf("old name still present")
	}
	if s.Active() != "renamed" {
		t.Fatalf("active = %q", s.Active())
	}

	if _, err := s.Rename("b", "b2"); err != nil {
		t.Fatalf("rename b: %v", err)
	}
	if s.Active() != "renamed" {
		t.Fatalf("renaming a non-active conversation moved the selection to %q", s.Active())
	}
}

func TestRenameNoOps(t *testing.T) {
	s := newState(t, "a", "b")

	for _, tc := range []struct{ old, new string }{
		{"missing", "x"},
		{"a", ""},
		{"a", "   "},
		{"a", "a"},
	} {
		effects, err := s.Rename(tc.old, tc.new)
		if err != nil || effects != nil {
			t.Fatalf("rename(%q, %q) = %v, %v; want no-op", tc.old, tc.new, effects, err)
		}
	}
	if !reflect.DeepEqual(s.Names(), []string{"a", "b"}) {
		t.Fatalf("names changed: %v", s.Names())
	}

	if _, err := s.Rename("a", "b"); !errors.Is(err, ErrConversationExists) {
		t.Fatalf("expected ErrConversationExists, got %v", err)
	}
	conv, _ := s.Conversation("b")
	if conv.Messages[0].Content != "in b" {
		t.Fatalf("collision overwrote b")
	}
}

func TestStagedRename(t *testing.T) {
	s := newState(t, "a", "b")

	if err := s.StageRename("missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	_ = s.StageRename("a")
	_ = s.StageRename("b")
	if s.PendingRename() != "b" {
		t.Fatalf("only the last staged target should remain, got %q", s.PendingRename())
	}

	effects, err := s.CommitRename("beta")
	if err != nil || !effects.Has(EffectPersist) {
		t.Fatalf("commit: %v %v", effects, err)
	}
	if s.PendingRename() != "" {
		t.Fatalf("pending rename not cleared")
	}
	if _, ok := s.Conversation("beta"); !ok {
		t.Fatalf("beta missing")
	}

	_ = s.StageRename("a")
	s.CancelRename()
	if effects, _ := s.CommitRename("alpha"); effects != nil {
		t.Fatalf("commit without a staged target should be a no-op")
	}
}

func TestSwitchModel(t *testing.T) {
	s := newState(t, "a")

	if effects := s.SwitchModel("gpt-4-turbo"); effects != nil {
		t.Fatalf("no active conversation: expected no effects, got %v", effects)
	}
	if s.Model() != "gpt-4-turbo" || s.Document().SelectedModel != "gpt-4-turbo" {
		t.Fatalf("session model not updated")
	}

	_ = s.Select("a")
	if effects := s.SwitchModel("gpt-4o-mini"); !effects.Has(EffectPersist) {
		t.Fatalf("active conversation: expected persist")
	}
	conv, _ := s.Conversation("a")
	if conv.SelectedModel != "gpt-4o-mini" {
		t.Fatalf("conversation model = %q", conv.SelectedModel)
	}
}

func TestUpdateParamsClamps(t *testing.T) {
	s := newState(t)
	got := s.UpdateParams(model.GenerationParams{Temperature: 9, MaxTokens: 0, TopP: 0.5, FrequencyPenalty: 0})
	want := model.GenerationParams{Temperature: 2, MaxTokens: 1, TopP: 0.5, FrequencyPenalty: 0}
	if got != want || s.Params() != want {
		t.Fatalf("params = %+v", got)
	}
}

func TestTurnLifecycle(t *testing.T) {
	s := newState(t)

	if _, _, err := s.BeginTurn("hello"); !errors.Is(err, ErrNoActiveConversation) {
		t.Fatalf("expected ErrNoActiveConversation, got %v", err)
	}

	name, _ := s.CreateNew()
	got, history, err := s.BeginTurn("hello")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got != name || len(history) != 1 || history[0].Content != "hello" {
		t.Fatalf("unexpected begin result %q %+v", got, history)
	}

	if effects, _ := s.FinishTurn(name, ""); effects != nil {
		t.Fatalf("empty reply should not persist")
	}
	effects, err := s.FinishTurn(name, "Hi there")
	if err != nil || !effects.Has(EffectPersist) {
		t.Fatalf("finish: %v %v", effects, err)
	}

	conv, _ := s.Conversation(name)
	want := []model.Message{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "Hi there"},
	}
	if !reflect.DeepEqual(conv.Messages, want) {
		t.Fatalf("messages = %+v", conv.Messages)
	}

	if _, err := s.FinishTurn("gone", "x"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
