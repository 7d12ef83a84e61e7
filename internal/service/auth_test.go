package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oaiwrapper/oaiwrapper/internal/auth"
	"github.com/oaiwrapper/oaiwrapper/internal/credential"
	"github.com/oaiwrapper/oaiwrapper/internal/model"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
)

func newAuthFixture(t *testing.T) (*AuthService, *SessionService, *auth.Issuer, *auth.MemoryRevoker) {
	t.Helper()
	creds, err := credential.Open(filepath.Join(t.TempDir(), "users.db"), credential.WithCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("open credential store: %v", err)
	}
	t.Cleanup(func() { creds.Close() })

	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	revoker := auth.NewMemoryRevoker()
	sessions := newFixture(t).svc

	return NewAuthService(creds, issuer, revoker, sessions, logger.NewNop()), sessions, issuer, revoker
}

func TestSignupAndLogin(t *testing.T) {
	svc, sessions, issuer, _ := newAuthFixture(t)
	ctx := context.Background()

	page, err := svc.Signup(ctx, &model.SignupRequest{Username: "alice", DisplayName: "Alice", Password: "pw"})
	if err != nil || page != model.PageLogin {
		t.Fatalf("signup: page %q err %v", page, err)
	}
	if _, err := svc.Signup(ctx, &model.SignupRequest{Username: "alice", DisplayName: "Other", Password: "x"}); !errors.Is(err, credential.ErrUsernameTaken) {
		t.Fatalf("duplicate signup: expected ErrUsernameTaken, got %v", err)
	}

	if _, err := svc.Login(ctx, &model.LoginRequest{Username: "alice", Password: "wrong"}); !errors.Is(err, credential.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, &model.LoginRequest{Username: "nobody", Password: "pw"}); !errors.Is(err, credential.ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}

	resp, err := svc.Login(ctx, &model.LoginRequest{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.DisplayName != "Alice" || resp.View != model.PageMain || resp.Token == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	claims, err := issuer.Parse(resp.Token)
	if err != nil || claims.Subject != "alice" {
		t.Fatalf("token claims: %+v, %v", claims, err)
	}
	if sessions.lookup("alice") == nil {
		t.Fatalf("login did not open a session")
	}
}

func TestLogoutRevokesTokenAndClosesSession(t *testing.T) {
	svc, sessions, issuer, revoker := newAuthFixture(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, &model.SignupRequest{Username: "bob", DisplayName: "Bob", Password: "pw"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	resp, err := svc.Login(ctx, &model.LoginRequest{Username: "bob", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := issuer.Parse(resp.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	page, err := svc.Logout(ctx, claims)
	if err != nil || page != model.PageLogin {
		t.Fatalf("logout: page %q err %v", page, err)
	}
	if revoked, _ := revoker.IsRevoked(ctx, claims.ID); !revoked {
		t.Fatalf("token not revoked")
	}
	if sessions.lookup("bob") != nil {
		t.Fatalf("session still open after logout")
	}
}
