package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/repo"
)

// DevUserHeader carries the caller id when token verification is disabled.
const DevUserHeader = "X-User-ID"

// UserStore loads and registers users.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*repo.User, error)
	UpsertUser(ctx context.Context, profile repo.UserProfile) (*repo.User, error)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the middleware.
func FromContext(ctx context.Context) (access.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(access.Principal)
	return p, ok
}

// Middleware authenticates requests and attaches the caller to the context.
type Middleware struct {
	verifier *Verifier
	users    UserStore
	logger   *slog.Logger
}

// NewMiddleware creates the middleware. A nil verifier trusts DevUserHeader.
func NewMiddleware(verifier *Verifier, users UserStore, logger *slog.Logger) *Middleware {
	return &Middleware{
		verifier: verifier,
		users:    users,
		logger:   logger.With("component", "auth"),
	}
}

// Handler wraps next with authentication. Unknown users presenting a valid token are
// registered as students on first sight; inactive users are rejected.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, claims, err := m.identify(r)
		if err != nil {
			m.logger.Debug("authentication failed", "error", err, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := m.users.GetUser(r.Context(), userID)
		if errors.Is(err, apperr.ErrNotFound) {
			user, err = m.users.UpsertUser(r.Context(), profileFromClaims(userID, claims))
			if err == nil {
				m.logger.Info("user registered", "user_id", userID)
			}
		}
		if err != nil {
			m.logger.Error("load caller failed", "error", err, "user_id", userID)
			writeError(w, apperr.HTTPStatus(err), "failed to load user")
			return
		}
		if !user.IsActive {
			writeError(w, http.StatusForbidden, "account is deactivated")
			return
		}

		p := access.Principal{UserID: user.ID, Role: user.Role, Active: user.IsActive}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (m *Middleware) identify(r *http.Request) (string, *Claims, error) {
	if m.verifier == nil {
		id := strings.TrimSpace(r.Header.Get(DevUserHeader))
		if id == "" {
			return "", nil, apperr.ErrUnauthenticated
		}
		return id, nil, nil
	}

	header := r.Header.Get("Authorization")
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return "", nil, apperr.ErrUnauthenticated
	}
	claims, err := m.verifier.Verify(strings.TrimSpace(header[len("bearer "):]))
	if err != nil {
		return "", nil, err
	}
	return claims.Subject, claims, nil
}

func profileFromClaims(id string, claims *Claims) repo.UserProfile {
	profile := repo.UserProfile{ID: id}
	if claims == nil {
		return profile
	}
	if claims.Email != "" {
		profile.Email = &claims.Email
	}
	if claims.GivenName != "" {
		profile.FirstName = &claims.GivenName
	}
	if claims.FamilyName != "" {
		profile.LastName = &claims.FamilyName
	}
	return profile
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
