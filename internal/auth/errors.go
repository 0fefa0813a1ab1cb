package auth

import "errors"

var (
	// ErrInvalidCredentials maps to a 401 at the gateway boundary.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrNotAuthorized indicates a successful bind whose groups match no
	// allow-list entry. Maps to a 403, never a 401.
	ErrNotAuthorized = errors.New("auth: not authorized")
	// ErrDirectoryUnavailable indicates the directory could not be consulted.
	ErrDirectoryUnavailable = errors.New("auth: directory unavailable")
)
