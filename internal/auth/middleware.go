package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/utilities"
)

// Middleware guards handlers with bearer-token checks.
type Middleware struct {
	tokens *TokenService
	logger *zap.SugaredLogger
}

func NewMiddleware(tokens *TokenService, logger *zap.SugaredLogger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
// It returns "" when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < len("bearer ") || !strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("bearer "):])
}

// ClaimsFromRequest verifies the request's bearer token without writing a
// response. ok is false when there is no token or it does not verify.
func (m *Middleware) ClaimsFromRequest(r *http.Request) (*Claims, bool) {
	raw := BearerToken(r)
	if raw == "" {
		return nil, false
	}
	c, err := m.tokens.Verify(raw)
	if err != nil {
		return nil, false
	}
	return c, true
}

// Authenticate rejects requests without a token (401) or with a token that
// fails verification (403), and attaches the claims to the context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)
		if raw == "" {
			utilities.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}
		claims, err := m.tokens.Verify(raw)
		if err != nil {
			m.logger.Debugw("token rejected", "path", r.URL.Path, "err", err)
			utilities.WriteError(w, http.StatusForbidden, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireAdmin is Authenticate plus a role check.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok || !claims.IsAdmin() {
			m.logger.Debugw("admin route refused", "path", r.URL.Path)
			utilities.WriteError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
