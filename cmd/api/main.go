// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/auth"
	"github.com/oaiwrapper/oaiwrapper/internal/completion"
	"github.com/oaiwrapper/oaiwrapper/internal/config"
	"github.com/oaiwrapper/oaiwrapper/internal/credential"
	"github.com/oaiwrapper/oaiwrapper/internal/handler"
	"github.com/oaiwrapper/oaiwrapper/internal/llm"
	natsclient "github.com/oaiwrapper/oaiwrapper/internal/nats"
	"github.com/oaiwrapper/oaiwrapper/internal/service"
	"github.com/oaiwrapper/oaiwrapper/internal/session"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
	"github.com/oaiwrapper/oaiwrapper/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.FromEnv(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "oaiwrapper", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Credential store
	creds, err := credential.Open(cfg.UsersDBPath, credential.WithCost(cfg.BcryptCost))
	if err != nil {
		log.Fatal("failed to open credential store", zap.String("path", cfg.UsersDBPath), zap.Error(err))
	}
	defer creds.Close()

	// Session documents
	store, err := session.NewFileStore(cfg.SessionsDir(), log)
	if err != nil {
		log.Fatal("failed to prepare session directory", zap.Error(err))
	}

	// LLM clients; a provider without a key is left out
	clients := make(map[llm.Provider]llm.Client)
	for provider, endpoint := range map[llm.Provider]struct{ key, baseURL string }{
		llm.ProviderOpenAI:    {cfg.OpenAIAPIKey, cfg.OpenAIBaseURL},
		llm.ProviderAnthropic: {cfg.AnthropicAPIKey, cfg.AnthropicBaseURL},
	} {
		if endpoint.key == "" {
			continue
		}
		c, err := llm.NewClient(provider, endpoint.key, endpoint.baseURL)
		if err != nil {
			log.Warn("failed to create LLM client", zap.String("provider", string(provider)), zap.Error(err))
			continue
		}
		clients[provider] = c
	}
	router := llm.NewRouter(clients)
	if router.Empty() {
		log.Warn("no LLM provider configured, completions will fail")
	}

	// Tokens and revocation
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	if err != nil {
		log.Fatal("failed to create token issuer", zap.Error(err))
	}

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if cfg.RedisAddr != "" {
		rr := auth.NewRedisRevoker(cfg.RedisAddr, cfg.RedisPassword)
		if err := rr.Ping(ctx); err != nil {
			log.Fatal("failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rr.Close()
		revoker = rr
		log.Info("token revocation backed by Redis", zap.String("addr", cfg.RedisAddr))
	}

	sessionOpts := []service.SessionOption{service.WithDefaultModel(cfg.DefaultModel)}

	// Session events are optional
	var natsClient *natsclient.Client
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		sessionOpts = append(sessionOpts, service.WithEvents(streamManager, streamManager))
	}

	// Initialize services
	sessionSvc := service.NewSessionService(store, completion.New(router, log), router, log, sessionOpts...)
	authSvc := service.NewAuthService(creds, issuer, revoker, sessionSvc, log)

	// Create router
	h := handler.NewRouter(handler.RouterConfig{
		Logger:                log,
		Tokens:                issuer,
		Revoker:               revoker,
		CORSOrigins:           cfg.CORSAllowedOrigins,
		RateLimitRequests:     cfg.RateLimitRequests,
		RateLimitWindow:       cfg.RateLimitWindow,
		AuthRateLimitRequests: cfg.AuthRateLimitRequests,
	}, handler.Handlers{
		Health:        handler.NewHealthHandler(creds, natsClient),
		Auth:          handler.NewAuthHandler(authSvc, log),
		Conversations: handler.NewConversationHandler(sessionSvc, log),
		Chat:          handler.NewChatHandler(sessionSvc, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      h,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
