package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gosuda/agentd/internal/auth"
)

type contextKey string

const subjectKey contextKey = "subject"

// Auth validates the Bearer token on every request. Websocket clients that
// cannot set headers may pass the token as an "access_token" query
// parameter instead.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				token = r.URL.Query().Get("access_token")
			}

			if token != "" {
				claims, err := auth.ValidateToken(jwtSecret, token)
				if err == nil {
					ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

// SubjectFromContext returns the authenticated client subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectKey).(string)
	return subject, ok
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}
