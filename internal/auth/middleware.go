package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const contextKeySession contextKey = "auth.session"

// WithSession stores the session in the request context.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

// SessionFromContext extracts the session placed by RequireSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	session, ok := ctx.Value(contextKeySession).(Session)
	return session, ok
}

// FailureHandler renders the response for an unauthenticated request. The
// HTML surface redirects to the login page, the JSON API answers 401; both
// sit in front of the same check.
type FailureHandler func(w http.ResponseWriter, r *http.Request)

// RedirectToLogin is the FailureHandler for browser-facing routes.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// JSONUnauthorized is the FailureHandler for the JSON API.
func JSONUnauthorized(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}

// RequireSession guards a route group: requests without a live session are
// handed to onFail, everything else proceeds with the session in context.
func RequireSession(manager *Manager, onFail FailureHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := manager.Current(r)
			if !ok {
				onFail(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}
