package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"ncm-portal/internal/auth"
	inventory "ncm-portal/internal/inventory/domain"
	"ncm-portal/internal/nodeapi"
	"ncm-portal/internal/reconcile"
)

// Fixed user-facing messages. Internal error text never reaches the client.
const (
	msgBadCredentials   = "Unknown user and/or bad password."
	msgNotAllowed       = "Sorry, you are not allowed to access this web application."
	msgDirectoryDown    = "An error occurred communicating with the authentication server."
	msgCollectorDown    = "Unable to contact the backup collector API. Is the collector running?"
	msgNotFound         = "Not found."
	msgDuplicateAddress = "A device with that address already exists."
	msgInternal         = "An internal error occurred."
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// renderError is the single place a failure kind becomes a status code.
func renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
	case errors.Is(err, auth.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, msgNotAllowed)
	case errors.Is(err, auth.ErrDirectoryUnavailable):
		writeError(w, http.StatusBadGateway, msgDirectoryDown)
	case errors.Is(err, nodeapi.ErrUnavailable):
		writeError(w, http.StatusBadGateway, msgCollectorDown)
	case errors.Is(err, reconcile.ErrNotFound), errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, inventory.ErrExists):
		writeError(w, http.StatusConflict, msgDuplicateAddress)
	default:
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
