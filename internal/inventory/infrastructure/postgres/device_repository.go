package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	inventory "ncm-portal/internal/inventory/domain"
)

const defaultDevicesTable = "devices"

// DBTX is the subset of *sql.DB / *sql.Tx used by repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DeviceRepository is a Postgres implementation of inventory.Repository.
type DeviceRepository struct {
	db    DBTX
	table string
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db DBTX, opts ...DeviceOption) *DeviceRepository {
	repo := &DeviceRepository{db: db, table: defaultDevicesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// DeviceOption configures the repository.
type DeviceOption func(*DeviceRepository)

// WithDeviceTable overrides the default table name.
func WithDeviceTable(table string) DeviceOption {
	return func(repo *DeviceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// FindAll loads every device, without the secret columns, ordered by address.
func (r *DeviceRepository) FindAll(ctx context.Context) ([]inventory.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT address, name, type, username, created_at, updated_at
FROM %s
ORDER BY address ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Device
	for rows.Next() {
		var device inventory.Device
		var username sql.NullString
		var updatedAt sql.NullTime
		if err := rows.Scan(
			&device.Address,
			&device.Name,
			&device.Type,
			&username,
			&device.CreatedAt,
			&updatedAt,
		); err != nil {
			return nil, err
		}
		device.Username = username.String
		normalizeTimes(&device, updatedAt)
		result = append(result, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// FindByAddress loads one device including the secret columns. Callers that
// serialize devices must copy into a response type without secret fields.
func (r *DeviceRepository) FindByAddress(ctx context.Context, address string) (*inventory.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if address == "" {
		return nil, inventory.ErrNotFound
	}

	query := fmt.Sprintf(`
SELECT address, name, type, username, password, enable, created_at, updated_at
FROM %s
WHERE address = $1
LIMIT 1`, r.table)

	var device inventory.Device
	var username, password, enable sql.NullString
	var updatedAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, address).Scan(
		&device.Address,
		&device.Name,
		&device.Type,
		&username,
		&password,
		&enable,
		&device.CreatedAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	device.Username = username.String
	device.Password = password.String
	device.Enable = enable.String
	normalizeTimes(&device, updatedAt)
	return &device, nil
}

// Insert creates a device. A duplicate address yields inventory.ErrExists.
func (r *DeviceRepository) Insert(ctx context.Context, device *inventory.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if device == nil {
		return errors.New("device repo: nil device")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (address, name, type, username, password, enable, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW())`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		device.Address,
		device.Name,
		device.Type,
		device.Username,
		device.Password,
		device.Enable,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return inventory.ErrExists
		}
		return err
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Update rewrites the mutable columns of the device at address. Secrets are
// written only when their set flag is true.
func (r *DeviceRepository) Update(ctx context.Context, address string, device *inventory.Device, setPassword, setEnable bool) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if device == nil {
		return errors.New("device repo: nil device")
	}

	assignments := []string{
		"name = $2",
		"type = $3",
		"username = $4",
		"updated_at = NOW()",
	}
	args := []any{address, device.Name, device.Type, device.Username}
	if setPassword {
		args = append(args, device.Password)
		assignments = append(assignments, fmt.Sprintf("password = $%d", len(args)))
	}
	if setEnable {
		args = append(args, device.Enable)
		assignments = append(assignments, fmt.Sprintf("enable = $%d", len(args)))
	}

	query := fmt.Sprintf(`
UPDATE %s
SET %s
WHERE address = $1`, r.table, strings.Join(assignments, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// Delete removes the device at address. Deleting an unknown address yields
// inventory.ErrNotFound, so a repeated delete is not reported as success.
func (r *DeviceRepository) Delete(ctx context.Context, address string) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if address == "" {
		return inventory.ErrNotFound
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE address = $1`, r.table)
	result, err := r.db.ExecContext(ctx, query, address)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func normalizeTimes(device *inventory.Device, updatedAt sql.NullTime) {
	device.CreatedAt = device.CreatedAt.UTC()
	if updatedAt.Valid {
		utc := updatedAt.Time.UTC()
		device.UpdatedAt = &utc
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
