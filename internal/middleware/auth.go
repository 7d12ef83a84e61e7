// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/oaiwrapper/oaiwrapper/internal/auth"
	"github.com/oaiwrapper/oaiwrapper/pkg/logger"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UsernameKey is the context key for the authenticated username.
	UsernameKey ContextKey = "username"
	// DisplayNameKey is the context key for the user's display name.
	DisplayNameKey ContextKey = "display_name"
	// ClaimsKey is the context key for the verified token claims.
	ClaimsKey ContextKey = "claims"
)

// TokenParser verifies a bearer token.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Auth creates JWT authentication middleware. Tokens found in revoker are
// rejected.
func Auth(parser TokenParser, revoker auth.Revoker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			tokenString, ok := bearerToken(authHeader)
			if !ok {
				http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			claims, err := verify(r.Context(), parser, revoker, tokenString)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches the user to the context when a valid token is
// present and passes every request through.
func OptionalAuth(parser TokenParser, revoker auth.Revoker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString, ok := bearerToken(r.Header.Get("Authorization")); ok {
				if claims, err := verify(r.Context(), parser, revoker, tokenString); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func verify(ctx context.Context, parser TokenParser, revoker auth.Revoker, tokenString string) (*auth.Claims, error) {
	claims, err := parser.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if revoker != nil {
		revoked, err := revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			logger.Global().Error("revocation check failed", zap.Error(err))
			return nil, err
		}
		if revoked {
			return nil, auth.ErrInvalidToken
		}
	}
	return claims, nil
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	noteUser(ctx, claims.Subject)
	ctx = context.WithValue(ctx, UsernameKey, claims.Subject)
	ctx = context.WithValue(ctx, DisplayNameKey, claims.Name)
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUsername gets the authenticated username from context.
func GetUsername(ctx context.Context) string {
	if v, ok := ctx.Value(UsernameKey).(string); ok {
		return v
	}
	return ""
}

// GetDisplayName gets the display name from context.
func GetDisplayName(ctx context.Context) string {
	if v, ok := ctx.Value(DisplayNameKey).(string); ok {
		return v
	}
	return ""
}

// GetClaims gets the verified token claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(ClaimsKey).(*auth.Claims); ok {
		return v
	}
	return nil
}

// WithUser returns ctx carrying claims as if Auth had verified them.
func WithUser(ctx context.Context, claims *auth.Claims) context.Context {
	return withClaims(ctx, claims)
}
