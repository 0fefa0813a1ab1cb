// Package gateway exposes the portal's HTTP surface: login and session
// endpoints, the device CRUD API and the enriched node views. It is the only
// layer that maps failure kinds to status codes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"

	"ncm-portal/internal/audit"
	"ncm-portal/internal/auth"
	inventory "ncm-portal/internal/inventory/domain"
	"ncm-portal/internal/observability/metrics"
	"ncm-portal/internal/reconcile"
)

// Handler carries the gateway's collaborators.
type Handler struct {
	auth       *auth.Authenticator
	sessions   *auth.Manager
	reconciler *reconcile.Reconciler
	devices    inventory.Repository
	audit      audit.Logger
	logger     *log.Logger
	staticDir  string
}

// NewHandler constructs the gateway handler. audit may be nil; everything
// else is required.
func NewHandler(
	authenticator *auth.Authenticator,
	sessions *auth.Manager,
	reconciler *reconcile.Reconciler,
	devices inventory.Repository,
	auditLog audit.Logger,
	logger *log.Logger,
	staticDir string,
) (*Handler, error) {
	if authenticator == nil {
		return nil, errors.New("gateway: nil authenticator")
	}
	if sessions == nil {
		return nil, errors.New("gateway: nil session manager")
	}
	if reconciler == nil {
		return nil, errors.New("gateway: nil reconciler")
	}
	if devices == nil {
		return nil, errors.New("gateway: nil device repository")
	}
	if logger == nil {
		return nil, errors.New("gateway: nil logger")
	}
	return &Handler{
		auth:       authenticator,
		sessions:   sessions,
		reconciler: reconciler,
		devices:    devices,
		audit:      auditLog,
		logger:     logger,
		staticDir:  staticDir,
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login handles POST /login for both the form and the JSON client.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var creds loginRequest
	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		creds.Username = r.PostFormValue("username")
		creds.Password = r.PostFormValue("password")
	}

	identity, err := h.auth.Authenticate(r.Context(), creds.Username, creds.Password)
	if err != nil {
		metrics.ObserveAuthAttempt(authResult(err))
		h.auditLogin(r, creds.Username, authResult(err))
		renderError(w, err)
		return
	}
	metrics.ObserveAuthAttempt(metrics.ResultSuccess)
	h.auditLogin(r, identity.AccountName, metrics.ResultSuccess)

	if _, err := h.sessions.Establish(w, identity); err != nil {
		h.logger.Printf("gateway: establish session: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"displayName": identity.DisplayName})
}

// logout clears the session and sends the browser back to the login page.
// Clearing an absent session succeeds.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.sessions.Current(r); ok {
		h.auditEntry(r, audit.Entry{Actor: session.Account, Action: audit.ActionLogout})
	}
	h.sessions.Destroy(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// checkLogin reports the current identity summary. The session guard has
// already rejected unauthenticated callers.
func (h *Handler) checkLogin(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"displayName": session.DisplayName})
}

// index serves the single-page client.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.staticDir, "index.html"))
}

// loginPage serves the login form.
func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(h.staticDir, "login.html"))
}

func authResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return metrics.ResultInvalid
	case errors.Is(err, auth.ErrNotAuthorized):
		return metrics.ResultUnauthorized
	default:
		return metrics.ResultUnavailable
	}
}

func (h *Handler) auditLogin(r *http.Request, actor, result string) {
	h.auditEntry(r, audit.Entry{
		Actor:  actor,
		Action: audit.ActionLogin,
		Result: result,
	})
}

// auditEntry records an entry, filling request metadata. Audit failures are
// logged and never change the response.
func (h *Handler) auditEntry(r *http.Request, entry audit.Entry) {
	if h.audit == nil {
		return
	}
	entry.IP = clientIP(r)
	entry.UserAgent = r.UserAgent()
	if entry.Actor == "" {
		if session, ok := auth.SessionFromContext(r.Context()); ok {
			entry.Actor = session.Account
		}
	}
	// The request context is canceled when the response is written; audit
	// writes use a detached context so late writes still land.
	if err := h.audit.Log(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Printf("gateway: audit write failed: %v", err)
	}
}
