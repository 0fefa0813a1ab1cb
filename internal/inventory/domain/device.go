package inventory

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Device represents a managed network device whose configuration is backed
// up by the remote collector. Address is the primary key and the join key
// against remote node data; it is immutable once created.
type Device struct {
	Address   string
	Name      string
	Type      string
	Username  string
	Password  string
	Enable    string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Kept byte-for-byte compatible with the address rule enforced by the
// existing front end.
var addressPattern = regexp.MustCompile(`^((25[0-5]|(2[0-4]|1\d|[1-9]|)\d)\.?\b){4}$`)

// ValidAddress reports whether address is a dotted-quad IPv4 address.
func ValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// Validate checks device invariants. Field errors are keyed by field name so
// the API layer can return them per field.
func (d Device) Validate() map[string]string {
	fields := map[string]string{}
	if d.Name == "" {
		fields["name"] = "A name is required."
	}
	if !ValidAddress(d.Address) {
		fields["address"] = "Address must be a valid IP address."
	}
	if d.Type == "" {
		fields["type"] = "A type is required."
	}
	if d.Username == "" {
		fields["username"] = "A username is required."
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Repository manages device persistence.
type Repository interface {
	FindAll(ctx context.Context) ([]Device, error)
	FindByAddress(ctx context.Context, address string) (*Device, error)
	Insert(ctx context.Context, device *Device) error
	// Update rewrites the mutable columns of the device at address. The two
	// secret columns are only written when the corresponding set flag is
	// true, so a blank form field leaves the stored secret unchanged.
	Update(ctx context.Context, address string, device *Device, setPassword, setEnable bool) error
	Delete(ctx context.Context, address string) error
}

var (
	// ErrNotFound indicates a missing device record.
	ErrNotFound = errors.New("inventory: device not found")
	// ErrExists indicates an insert for an address that is already taken.
	ErrExists = errors.New("inventory: device already exists")
)
