package nats

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
)

func TestEventSubject(t *testing.T) {
	tests := []struct {
		username string
		want     string
	}{
		{"alice", "session.alice.turn_completed"},
		{"a.b", "session.a_b.turn_completed"},
		{"x*>y", "session.x__y.turn_completed"},
		{"with space", "session.with_space.turn_completed"},
		{"", "session._.turn_completed"},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			if got := EventSubject(tt.username, model.EventTurnCompleted); got != tt.want {
				t.Errorf("EventSubject(%q) = %q, want %q", tt.username, got, tt.want)
			}
		})
	}
}

func TestUserFilter(t *testing.T) {
	if got := UserFilter("bob.smith"); got != "session.bob_smith.>" {
		t.Fatalf("UserFilter = %q", got)
	}
}

func runJetStream(t *testing.T) *StreamManager {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	opts.JetStreamMaxStore = 2 << 30
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	client, err := Connect(context.Background(), Config{URL: srv.ClientURL()}, logger.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	m := NewStreamManager(client)
	if err := m.EnsureStream(context.Background()); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	// A second call finds the existing stream.
	if err := m.EnsureStream(context.Background()); err != nil {
		t.Fatalf("ensure existing stream: %v", err)
	}
	return m
}

func publish(t *testing.T, m *StreamManager, username, conversation string) uint64 {
	t.Helper()
	seq, err := m.PublishEvent(context.Background(), &model.SessionEvent{
		ID:           conversation,
		Username:     username,
		Type:         model.EventConversationCreated,
		Conversation: conversation,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return seq
}

func conversations(events []model.SessionEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Conversation
	}
	return names
}

func TestRecentEventsKeepsNewestPerUser(t *testing.T) {
	m := runJetStream(t)
	ctx := context.Background()

	var last uint64
	for i := 1; i <= 5; i++ {
		seq := publish(t, m, "alice", fmt.Sprintf("Chat %d", i))
		if seq <= last {
			t.Fatalf("sequence %d not increasing after %d", seq, last)
		}
		last = seq
		publish(t, m, "a.lice", fmt.Sprintf("Other %d", i))
	}

	events, err := m.RecentEvents(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if got := conversations(events); !reflect.DeepEqual(got, []string{"Chat 3", "Chat 4", "Chat 5"}) {
		t.Fatalf("events = %v", got)
	}

	events, err = m.RecentEvents(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 5 || events[0].Conversation != "Chat 1" || events[0].Username != "alice" {
		t.Fatalf("default limit returned %v", conversations(events))
	}

	events, err = m.RecentEvents(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unexpected events for unknown user: %v", conversations(events))
	}
}

func TestRecentEventsSpansFetchBatches(t *testing.T) {
	m := runJetStream(t)

	const total = 300
	for i := 0; i < total; i++ {
		publish(t, m, "bob", fmt.Sprintf("c%03d", i))
	}

	events, err := m.RecentEvents(context.Background(), "bob", total)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != total {
		t.Fatalf("got %d events, want %d", len(events), total)
	}
	if events[0].Conversation != "c000" || events[total-1].Conversation != "c299" {
		t.Fatalf("events out of order: first %q last %q", events[0].Conversation, events[total-1].Conversation)
	}
}
