package handler

import (
	"net/http"

	"github.com/oaiwrapper/oaiwrapper/internal/middleware"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/internal/service"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
)

// AuthHandler handles signup, login, logout and view resolution.
type AuthHandler struct {
	service *service.AuthService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *service.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		logger:  log,
	}
}

// Signup handles POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	for _, err := range []error{
		middleware.ValidateUsername(req.Username),
		middleware.ValidateDisplayName(req.DisplayName),
		middleware.ValidatePassword(req.Password, req.PasswordConfirm),
	} {
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	view, err := h.service.Signup(r.Context(), &req)
	if err != nil {
		writeServiceError(w, middleware.RequestLogger(r.Context(), h.logger), err)
		return
	}

	writeJSON(w, http.StatusCreated, &model.ViewResponse{View: view})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, middleware.RequestLogger(r.Context(), h.logger), err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Logout(r.Context(), middleware.GetClaims(r.Context()))
	if err != nil {
		writeServiceError(w, middleware.RequestLogger(r.Context(), h.logger), err)
		return
	}

	writeJSON(w, http.StatusOK, &model.ViewResponse{View: view})
}

// View handles GET /api/v1/view?page=
func (h *AuthHandler) View(w http.ResponseWriter, r *http.Request) {
	authenticated := middleware.GetUsername(r.Context()) != ""
	requested := model.Page(r.URL.Query().Get("page"))

	writeJSON(w, http.StatusOK, &model.ViewResponse{
		View: service.ResolvePage(authenticated, requested),
	})
}
