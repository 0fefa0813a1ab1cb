package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"ncm-portal/internal/directory"
)

// DirectoryBinder is the directory operation the authenticator depends on.
type DirectoryBinder interface {
	BindAs(ctx context.Context, username, password string) (*directory.Identity, error)
}

// Credentials accepted unconditionally when the development bypass is active.
const (
	devBypassUser     = "test"
	devBypassPassword = "test"
)

// Authenticator decides pass/fail for operator logins: a directory bind-as
// followed by the group allow-list check.
//
// The allow-list check is case-insensitive substring containment: an identity
// is authorized when any of its group names contains any configured fragment.
// A fragment like "admin" therefore also matches "subadmin-helpdesk"; the
// rule is kept for compatibility with the previous front end, so fragments
// should be chosen deliberately.
type Authenticator struct {
	dir           DirectoryBinder
	allowedGroups []string
	devBypass     bool
	logger        *log.Logger
}

// NewAuthenticator constructs an authenticator. devBypass enables the fixed
// test credential pair and must only be set in development environments; the
// caller is expected to log loudly when it is.
func NewAuthenticator(dir DirectoryBinder, allowedGroups []string, devBypass bool, logger *log.Logger) (*Authenticator, error) {
	if dir == nil && !devBypass {
		return nil, errors.New("auth: nil directory client")
	}
	return &Authenticator{
		dir:           dir,
		allowedGroups: allowedGroups,
		devBypass:     devBypass,
		logger:        logger,
	}, nil
}

// Authenticate verifies credentials and applies the allow-list policy.
// Failures are one of ErrInvalidCredentials, ErrNotAuthorized or
// ErrDirectoryUnavailable; the caller decides what each looks like on the
// wire.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*directory.Identity, error) {
	if a == nil {
		return nil, errors.New("auth: nil authenticator")
	}

	if a.devBypass && username == devBypassUser && password == devBypassPassword {
		if a.logger != nil {
			a.logger.Printf("auth: development bypass login")
		}
		return &directory.Identity{
			AccountName: devBypassUser,
			DisplayName: "Test User",
			Groups:      []string{},
		}, nil
	}

	if a.dir == nil {
		return nil, ErrDirectoryUnavailable
	}

	identity, err := a.dir.BindAs(ctx, username, password)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrInvalidCredentials):
			return nil, ErrInvalidCredentials
		case errors.Is(err, directory.ErrUnavailable):
			return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
		}
	}

	if !groupAllowed(identity.Groups, a.allowedGroups) {
		return nil, ErrNotAuthorized
	}
	return identity, nil
}

func groupAllowed(groups, allowed []string) bool {
	for _, group := range groups {
		lower := strings.ToLower(group)
		for _, fragment := range allowed {
			if fragment == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(fragment)) {
				return true
			}
		}
	}
	return false
}
