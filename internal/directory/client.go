// Package directory wraps the LDAP bind-as-user flow used for operator login.
// A fixed service account performs the search phase; the supplied password is
// only ever used for the bind-as phase against the entry the search found.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

var (
	// ErrInvalidCredentials indicates the directory rejected the account or
	// password. Unknown accounts are reported the same way on purpose.
	ErrInvalidCredentials = errors.New("directory: invalid credentials")
	// ErrUnavailable indicates the directory could not be reached or the
	// service-account phase failed.
	ErrUnavailable = errors.New("directory: unavailable")
)

// Identity is the result of one successful bind-as. It is never persisted.
type Identity struct {
	AccountName string
	DisplayName string
	Groups      []string
}

// Client performs bind-as-user authentication against one directory server.
type Client struct {
	url          string
	bindUser     string
	bindPassword string
	baseDN       string
	timeout      time.Duration
}

// NewClient constructs a directory client. url is an ldap:// or ldaps:// URL.
func NewClient(url, bindUser, bindPassword, baseDN string, timeout time.Duration) (*Client, error) {
	if url == "" {
		return nil, errors.New("directory: empty url")
	}
	if baseDN == "" {
		return nil, errors.New("directory: empty base dn")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:          url,
		bindUser:     bindUser,
		bindPassword: bindPassword,
		baseDN:       baseDN,
		timeout:      timeout,
	}, nil
}

// BindAs authenticates username/password and returns the bound identity with
// its group memberships. An account without groups yields an empty slice.
func (c *Client) BindAs(ctx context.Context, username, password string) (*Identity, error) {
	if c == nil {
		return nil, errors.New("directory: nil client")
	}
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	// An empty password would turn the bind-as phase into an anonymous bind,
	// which many servers accept. Reject it before touching the wire.
	if password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	conn, err := ldap.DialURL(c.url, ldap.DialWithDialer(&net.Dialer{Timeout: c.timeout}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()
	conn.SetTimeout(c.timeout)

	if err := conn.Bind(c.bindUser, c.bindPassword); err != nil {
		return nil, fmt.Errorf("%w: service bind: %v", ErrUnavailable, err)
	}

	search := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, 0, false,
		fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(username)),
		[]string{"dn", "sAMAccountName", "displayName", "memberOf"},
		nil,
	)
	result, err := conn.Search(search)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	if len(result.Entries) == 0 {
		return nil, ErrInvalidCredentials
	}
	entry := result.Entries[0]

	if err := conn.Bind(entry.DN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: bind-as: %v", ErrUnavailable, err)
	}

	identity := &Identity{
		AccountName: entry.GetAttributeValue("sAMAccountName"),
		DisplayName: entry.GetAttributeValue("displayName"),
		Groups:      entry.GetAttributeValues("memberOf"),
	}
	if identity.AccountName == "" {
		identity.AccountName = username
	}
	if identity.Groups == nil {
		identity.Groups = []string{}
	}
	return identity, nil
}
