package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/picshelf/service/internal/response"
	"github.com/picshelf/service/internal/token"
)

// CookieName is the cookie carrying the session token.
const CookieName = "jwtToken"

// contextKey is an unexported type for context keys in this package.
type contextKey string

// principalKey is the context key for the authenticated principal.
const principalKey contextKey = "principal"

// Validator verifies a raw token and returns the principal it carries.
type Validator interface {
	Validate(raw string) (token.Principal, error)
}

// Gate authenticates every request whose path is not on the bypass list.
type Gate struct {
	validator Validator
	bypass    []string
	log       *slog.Logger
}

// NewGate returns a Gate letting requests under any of bypass through
// without a token.
func NewGate(v Validator, bypass []string, log *slog.Logger) *Gate {
	return &Gate{validator: v, bypass: bypass, log: log}
}

// Handler is the middleware func.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.bypassed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		p, err := g.authenticate(r)
		if err != nil {
			g.log.Warn("auth: request rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"reason", err,
			)
			response.Unauthorized(w, rejectionMessage(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (g *Gate) bypassed(path string) bool {
	for _, prefix := range g.bypass {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Gate) authenticate(r *http.Request) (token.Principal, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return token.Principal{}, token.ErrMissingToken
	}
	return g.validator.Validate(c.Value)
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrMissingToken):
		return "authentication required"
	case errors.Is(err, token.ErrExpired):
		return "token expired"
	default:
		return "invalid token"
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p token.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal attached by the Gate.
func PrincipalFrom(ctx context.Context) (token.Principal, bool) {
	p, ok := ctx.Value(principalKey).(token.Principal)
	return p, ok && p.Subject != ""
}
