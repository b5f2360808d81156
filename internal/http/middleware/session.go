// Package middleware holds net/http middleware shared by the handlers.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aanand-mishra/studyabroad-api/internal/session"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
	"github.com/aanand-mishra/studyabroad-api/internal/utils/response"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// Token extracts the session token of a request: the bearer token of the
// Authorization header, or the token query parameter. Browsers cannot set
// headers on a WebSocket handshake, hence the query fallback.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// ─────────────────────────────────────────────────────────────────────────────
// Session wraps next so it only runs for requests carrying a valid
// session token. The verified session is stored in the request context,
// where handlers read it with session.FromContext.
//
// Usage:
//
//	auth := middleware.Session(cfg.JWTSecret)
//	router.Handle("POST /api/chat/{clientId}/messages", auth(chat.Post(...)))
//
// Requests without a token, or with one that fails verification, get
// 401 Unauthorized and never reach next.
// ─────────────────────────────────────────────────────────────────────────────
func Session(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := Token(r)
			if token == "" {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errMissingToken))
				return
			}

			sess, err := session.Parse(token, secret)
			if err != nil {
				slog.Debug("rejected session token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errInvalidToken))
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

// RequireRole wraps next so it only runs for sessions in role. It must sit
// inside Session:
//
//	admin := func(h http.Handler) http.Handler { return auth(middleware.RequireRole(types.RoleAdmin)(h)) }
//
// A request without a session gets 401, one in another role 403.
func RequireRole(role types.ChatRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(session.ErrNoSession))
				return
			}
			if sess.Role != role {
				slog.Info("role not allowed",
					slog.String("path", r.URL.Path),
					slog.String("user_id", sess.UserID),
					slog.String("role", string(sess.Role)))
				response.WriteJSON(w, http.StatusForbidden, response.GeneralError(session.ErrForbidden))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
