package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/pkg/metrics"
)

// EventPublisher sends session events to the audit stream.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.SessionEvent) (uint64, error)
}

// EventReader reads back a user's recent session events.
type EventReader interface {
	RecentEvents(ctx context.Context, username string, limit int) ([]model.SessionEvent, error)
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, *model.SessionEvent) (uint64, error) {
	return 0, nil
}

func newEvent(username string, eventType model.EventType, conversation string, metadata map[string]string) *model.SessionEvent {
	return &model.SessionEvent{
		ID:           uuid.NewString(),
		Username:     username,
		Type:         eventType,
		Conversation: conversation,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
}

// publish is best effort: a failed publish is logged and counted, never
// returned to the user.
func (s *SessionService) publish(ctx context.Context, events ...*model.SessionEvent) {
	for _, event := range events {
		if event == nil {
			continue
		}
		if _, err := s.publisher.PublishEvent(ctx, event); err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "error").Inc()
			s.logger.Warn("failed to publish session event",
				zap.String("username", event.Username),
				zap.String("type", string(event.Type)),
				zap.Error(err),
			)
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "ok").Inc()
	}
}
