package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oaiwrapper/oaiwrapper/internal/auth"
	"github.com/oaiwrapper/oaiwrapper/internal/middleware"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
)

// RouterConfig holds what the route tree needs besides the handlers.
type RouterConfig struct {
	Logger                *logger.Logger
	Tokens                middleware.TokenParser
	Revoker               auth.Revoker
	CORSOrigins           []string
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	AuthRateLimitRequests int
}

// Handlers groups the endpoint handlers.
type Handlers struct {
	Health        *HealthHandler
	Auth          *AuthHandler
	Conversations *ConversationHandler
	Chat          *ChatHandler
}

// NewRouter builds the HTTP route tree.
func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.OptionalAuth(cfg.Tokens, cfg.Revoker)).Get("/view", h.Auth.View)

		r.Group(func(r chi.Router) {
			if cfg.AuthRateLimitRequests > 0 {
				r.Use(middleware.IPRateLimit(cfg.AuthRateLimitRequests, window))
			}
			r.Post("/auth/signup", h.Auth.Signup)
			r.Post("/auth/login", h.Auth.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens, cfg.Revoker))
			if cfg.RateLimitRequests > 0 {
				r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, window))
			}

			r.Post("/auth/logout", h.Auth.Logout)

			r.Get("/session", h.Conversations.Session)
			r.Get("/models", h.Conversations.Models)
			r.Get("/events", h.Conversations.Events)
			r.Put("/model", h.Conversations.SwitchModel)
			r.Put("/params", h.Conversations.UpdateParams)

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", h.Conversations.Create)
				r.Route("/{name}", func(r chi.Router) {
					r.Get("/", h.Conversations.Get)
					r.Delete("/", h.Conversations.Delete)
					r.Post("/select", h.Conversations.Select)
					r.Put("/name", h.Conversations.Rename)
				})
			})

			r.Route("/rename", func(r chi.Router) {
				r.Post("/", h.Conversations.StageRename)
				r.Post("/commit", h.Conversations.CommitRename)
				r.Delete("/", h.Conversations.CancelRename)
			})

			r.Post("/chat", h.Chat.Send)
			r.Post("/chat/stop", h.Chat.Stop)
		})
	})

	return r
}
