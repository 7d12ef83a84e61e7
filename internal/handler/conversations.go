package handler

import (
	"net/http"
	"strconv"

	"github.com/oaiwrapper/oaiwrapper/internal/middleware"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/internal/service"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
)

// ConversationHandler handles session and conversation endpoints.
type ConversationHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.SessionService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

func (h *ConversationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, middleware.RequestLogger(r.Context(), h.logger), err)
}

// respondSnapshot writes the caller's session snapshot.
func (h *ConversationHandler) respondSnapshot(w http.ResponseWriter, r *http.Request, status int) {
	ctx := r.Context()
	snap, err := h.service.Snapshot(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, snap)
}

// Session handles GET /api/v1/session
func (h *ConversationHandler) Session(w http.ResponseWriter, r *http.Request) {
	h.respondSnapshot(w, r, http.StatusOK)
}

// Models handles GET /api/v1/models
func (h *ConversationHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.service.Models()
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, err := h.service.CreateConversation(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	conv, err := h.service.Conversation(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// Get handles GET /api/v1/conversations/{name}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conv, err := h.service.Conversation(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), nameParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{name}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.DeleteConversation(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), nameParam(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /api/v1/conversations/{name}/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.SelectConversation(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), nameParam(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondSnapshot(w, r, http.StatusOK)
}

// Rename handles PUT /api/v1/conversations/{name}/name
//
// An empty name leaves the conversation unchanged.
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req model.RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		if err := middleware.ValidateConversationName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := r.Context()
	if err := h.service.RenameConversation(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), nameParam(r), req.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondSnapshot(w, r, http.StatusOK)
}

// StageRename handles POST /api/v1/rename
func (h *ConversationHandler) StageRename(w http.ResponseWriter, r *http.Request) {
	var req model.StageRenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.service.StageRename(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), req.Target); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondSnapshot(w, r, http.StatusOK)
}

// CommitRename handles POST /api/v1/rename/commit
func (h *ConversationHandler) CommitRename(w http.ResponseWriter, r *http.Request) {
	var req model.RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		if err := middleware.ValidateConversationName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := r.Context()
	if err := h.service.CommitRename(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), req.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondSnapshot(w, r, http.StatusOK)
}

// CancelRename handles DELETE /api/v1/rename
func (h *ConversationHandler) CancelRename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.CancelRename(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondSnapshot(w, r, http.StatusOK)
}

// SwitchModel handles PUT /api/v1/model
func (h *ConversationHandler) SwitchModel(w http.ResponseWriter, r *http.Request) {
	var req model.SwitchModelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	ctx := r.Context()
	if err := h.service.SwitchModel(ctx, middleware.GetUsername(ctx), middleware.GetDisplayName(ctx), req.Model); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondSnapshot(w, r, http.StatusOK)
}

// UpdateParams handles PUT /api/v1/params
//
// Fields missing from the body keep their current values.
func (h *ConversationHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username, displayName := middleware.GetUsername(ctx), middleware.GetDisplayName(ctx)

	snap, err := h.service.Snapshot(ctx, username, displayName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	params := snap.Params
	if !decodeJSON(w, r, &params) {
		return
	}

	applied, err := h.service.UpdateParams(ctx, username, displayName, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

// Events handles GET /api/v1/events?limit=
func (h *ConversationHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	ctx := r.Context()
	events, err := h.service.Events(ctx, middleware.GetUsername(ctx), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []model.SessionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
