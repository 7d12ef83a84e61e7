package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
)

const (
	// StreamName is the name of the session events stream.
	StreamName = "SESSION_EVENTS"

	// SubjectPrefix is the prefix for all session event subjects.
	SubjectPrefix = "session"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the session events stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		Description: "Chat session structural changes and finished turns",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a user's event.
func EventSubject(username string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken(username), eventType)
}

// UserFilter returns the filter subject for all events of a user.
func UserFilter(username string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, subjectToken(username))
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.', r == '*', r == '>', r <= ' ', r == 0x7f:
			return '_'
		}
		return r
	}, s)
}

// PublishEvent publishes a session event and returns its stream sequence.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.SessionEvent) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, EventSubject(event.Username, event.Type), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// RecentEvents returns the last limit events of a user, oldest first.
func (m *StreamManager) RecentEvents(ctx context.Context, username string, limit int) ([]model.SessionEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{UserFilter(username)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var events []model.SessionEvent
	for {
		batch, err := consumer.FetchNoWait(256)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++
			var event model.SessionEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				continue
			}
			events = append(events, event)
			if len(events) > limit {
				events = events[1:]
			}
		}

		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if received == 0 || ctx.Err() != nil {
			return events, nil
		}
	}
}
