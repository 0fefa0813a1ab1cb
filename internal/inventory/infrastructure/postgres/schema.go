package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// EnsureSchema creates the portal tables when they do not exist yet. It
// mirrors the schema the previous front end managed, so an existing database
// keeps working unchanged.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("schema: nil db")
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS devices (
	address VARCHAR(50) PRIMARY KEY,
	name VARCHAR(50) NOT NULL,
	type VARCHAR(50) NOT NULL,
	username VARCHAR(50),
	password VARCHAR(50),
	enable VARCHAR(50),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ
)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT,
	resource_id TEXT,
	result TEXT,
	metadata JSONB,
	payload_digest TEXT,
	ip TEXT,
	user_agent TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	}

	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
