package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"blinds_bridge/internal/models"
)

type CredentialSQLite struct {
	db *sql.DB
}

func NewCredentialSQLite(db *sql.DB) *CredentialSQLite {
	return &CredentialSQLite{db: db}
}

var _ CredentialRepo = (*CredentialSQLite)(nil)

const (
	upsertCredentialsSQL = `
		INSERT INTO gateway_credentials (host, identity, psk, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			identity=excluded.identity,
			psk=excluded.psk,
			updated_at=excluded.updated_at
	`

	selectCredentialsSQL = `
		SELECT host, identity, psk, updated_at
		FROM gateway_credentials WHERE host=?
	`
)

// Save upserts the credentials for c.Host.
func (r *CredentialSQLite) Save(ctx context.Context, c models.GatewayCredentials) error {
	if c.Host == "" {
		return errors.New("save credentials: empty host")
	}
	ts := c.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	if _, err := r.db.ExecContext(ctx, upsertCredentialsSQL,
		c.Host,
		c.Identity,
		c.PSK,
		ts.UTC().Format(timestampLayout),
	); err != nil {
		return fmt.Errorf("save credentials for %q: %w", c.Host, err)
	}
	return nil
}

// Load returns the credentials for host, or a zero value if none were saved.
func (r *CredentialSQLite) Load(ctx context.Context, host string) (models.GatewayCredentials, error) {
	var c models.GatewayCredentials
	err := r.db.QueryRowContext(ctx, selectCredentialsSQL, host).Scan(
		&c.Host,
		&c.Identity,
		&c.PSK,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GatewayCredentials{}, nil
		}
		return models.GatewayCredentials{}, fmt.Errorf("load credentials for %q: %w", host, err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
