package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/completion"
	"github.com/oaiwrapper/oaiwrapper/internal/middleware"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/internal/service"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
	"github.com/oaiwrapper/oaiwrapper/pkg/metrics"
)

// ChatHandler handles prompt submission and stop requests.
type ChatHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.SessionService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// eventStream writes SSE frames. Headers are sent with the first frame so
// errors raised before the turn starts can still be plain JSON responses.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	prompt  string
}

func (s *eventStream) start() error {
	if s.started {
		return nil
	}
	s.started = true
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.Header().Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	return sendSSEEvent(s.w, s.flusher, "user_message", &model.Message{
		Role:    model.RoleUser,
		Content: s.prompt,
	})
}

func (s *eventStream) send(event string, data interface{}) error {
	if err := s.start(); err != nil {
		return err
	}
	return sendSSEEvent(s.w, s.flusher, event, data)
}

// Send handles POST /api/v1/chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := middleware.GetUsername(ctx)
	log := middleware.RequestLogger(ctx, h.logger)

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	stream := &eventStream{w: w, flusher: flusher, prompt: req.Content}
	index := 0

	result, err := h.service.SendPrompt(ctx, username, middleware.GetDisplayName(ctx), req.Content,
		func(fragment, _ string) error {
			if err := stream.send("token", &model.TokenEvent{Token: fragment, Index: index}); err != nil {
				return err
			}
			index++
			return nil
		})

	if result == nil {
		// The turn never started.
		writeServiceError(w, log, err)
		return
	}

	if result.Appended {
		stream.send("message_complete", &model.MessageCompleteEvent{
			Conversation: result.Conversation,
			Message:      model.Message{Role: model.RoleAssistant, Content: result.Content},
			Outcome:      string(result.State),
		})
	} else if result.State == completion.StateStopped {
		stream.send("stopped", &model.StoppedEvent{Conversation: result.Conversation})
	}

	if err != nil {
		stream.send("error", errorEvent(log, err))
	}

	stream.send("done", map[string]bool{"success": err == nil})
}

func errorEvent(log *logger.Logger, err error) *model.ErrorEvent {
	if errors.Is(err, service.ErrCompletion) {
		return &model.ErrorEvent{Code: "completion_failed", Message: err.Error()}
	}
	log.Error("turn failed", zap.Error(err))
	return &model.ErrorEvent{Code: "internal_error", Message: "internal error"}
}

// Stop handles POST /api/v1/chat/stop
func (h *ChatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	stopped := h.service.Stop(middleware.GetUsername(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
