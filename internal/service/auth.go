package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/auth"
	"github.com/oaiwrapper/oaiwrapper/internal/credential"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
	"github.com/oaiwrapper/oaiwrapper/pkg/metrics"
)

// Credentials is the credential table.
type Credentials interface {
	Register(ctx context.Context, username, displayName, password string) error
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// TokenIssuer issues session tokens.
type TokenIssuer interface {
	Issue(username, displayName string) (string, time.Time, error)
	Remaining(claims *auth.Claims) time.Duration
}

// AuthService handles signup, login and logout.
type AuthService struct {
	credentials Credentials
	issuer      TokenIssuer
	revoker     auth.Revoker
	sessions    *SessionService
	logger      *logger.Logger
}

// NewAuthService creates an auth service.
func NewAuthService(credentials Credentials, issuer TokenIssuer, revoker auth.Revoker, sessions *SessionService, log *logger.Logger) *AuthService {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuthService{
		credentials: credentials,
		issuer:      issuer,
		revoker:     revoker,
		sessions:    sessions,
		logger:      log.Named("auth"),
	}
}

// Signup registers a user. The next view is the login page.
func (s *AuthService) Signup(ctx context.Context, req *model.SignupRequest) (model.Page, error) {
	err := s.credentials.Register(ctx, req.Username, req.DisplayName, req.Password)
	switch {
	case err == nil:
		metrics.RecordAuth("signup", "ok")
		s.logger.Info("user registered", zap.String("username", req.Username))
		return model.PageLogin, nil
	case errors.Is(err, credential.ErrUsernameTaken):
		metrics.RecordAuth("signup", "conflict")
		return model.PageSignup, err
	default:
		metrics.RecordAuth("signup", "error")
		s.logger.Error("failed to register user", zap.String("username", req.Username), zap.Error(err))
		return model.PageSignup, fmt.Errorf("%w: register: %v", ErrStore, err)
	}
}

// Login verifies the password, issues a token and opens the user's session.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	displayName, err := s.credentials.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidCredentials) {
			metrics.RecordAuth("login", "denied")
			return nil, err
		}
		metrics.RecordAuth("login", "error")
		s.logger.Error("failed to authenticate", zap.String("username", req.Username), zap.Error(err))
		return nil, fmt.Errorf("%w: authenticate: %v", ErrStore, err)
	}

	token, expiresAt, err := s.issuer.Issue(req.Username, displayName)
	if err != nil {
		metrics.RecordAuth("login", "error")
		return nil, err
	}

	if _, err := s.sessions.Open(ctx, req.Username, displayName); err != nil {
		metrics.RecordAuth("login", "error")
		return nil, err
	}

	metrics.RecordAuth("login", "ok")
	s.logger.Info("user logged in", zap.String("username", req.Username))

	return &model.LoginResponse{
		Token:       token,
		ExpiresAt:   expiresAt,
		DisplayName: displayName,
		View:        ResolvePage(true, ""),
	}, nil
}

// Logout revokes the presented token for the rest of its lifetime and closes
// the user's session. The next view is the login page.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) (model.Page, error) {
	if claims == nil {
		return ResolvePage(false, ""), nil
	}
	if s.revoker != nil {
		if err := s.revoker.Revoke(ctx, claims.ID, s.issuer.Remaining(claims)); err != nil {
			s.logger.Error("failed to revoke token", zap.String("username", claims.Subject), zap.Error(err))
			return model.PageMain, fmt.Errorf("%w: revoke token: %v", ErrStore, err)
		}
	}
	s.sessions.Close(claims.Subject)
	metrics.RecordAuth("logout", "ok")
	s.logger.Info("user logged out", zap.String("username", claims.Subject))
	return ResolvePage(false, ""), nil
}
