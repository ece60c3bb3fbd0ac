package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/luiznunees/backend-canaldireto/internal/observability/metrics"
	obsmw "github.com/luiznunees/backend-canaldireto/internal/observability/middleware"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator guards the caller-facing surface. Server-to-server callers
// present the static key in the apikey header; dashboard sessions may instead
// present an HS256 bearer token whose subject is the user id. Token support
// is disabled when no secret is configured.
type Authenticator struct {
	apiKey    []byte
	jwtSecret []byte
}

func NewAuthenticator(apiKey, jwtSecret string) *Authenticator {
	return &Authenticator{apiKey: []byte(apiKey), jwtSecret: []byte(jwtSecret)}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())

		if key := r.Header.Get("apikey"); key != "" {
			if subtle.ConstantTimeCompare([]byte(key), a.apiKey) == 1 {
				metrics.AuthenticationAttemptsTotal.WithLabelValues("apikey", "success").Inc()
				next.ServeHTTP(w, r)
				return
			}
			metrics.AuthenticationAttemptsTotal.WithLabelValues("apikey", "failure").Inc()
			slog.Warn("auth invalid api key", "request_id", reqID)
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}

		raw := r.Header.Get("Authorization")
		if len(a.jwtSecret) == 0 || !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			metrics.AuthenticationAttemptsTotal.WithLabelValues("none", "failure").Inc()
			slog.Warn("auth missing credentials", "request_id", reqID)
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}
		tokStr := strings.TrimSpace(raw[len("Bearer "):])

		token, err := jwt.Parse(tokStr, func(token *jwt.Token) (interface{}, error) {
			// Ensure HS* (HMAC) only
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
			}
			return a.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			metrics.AuthenticationAttemptsTotal.WithLabelValues("bearer", "failure").Inc()
			slog.Warn("auth invalid token", "error", err, "request_id", reqID)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			metrics.AuthenticationAttemptsTotal.WithLabelValues("bearer", "failure").Inc()
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			metrics.AuthenticationAttemptsTotal.WithLabelValues("bearer", "failure").Inc()
			http.Error(w, "no subject", http.StatusUnauthorized)
			return
		}

		metrics.AuthenticationAttemptsTotal.WithLabelValues("bearer", "success").Inc()
		next.ServeHTTP(w, r.WithContext(contextWithSubject(r.Context(), sub)))
	})
}

type subjectKey struct{}

func contextWithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFrom returns the authenticated bearer subject, when there is one.
func SubjectFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey{}).(string)
	return v, ok
}
