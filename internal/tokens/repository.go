// FilePath: internal/tokens/repository.go
package tokens

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/itsatony/relayhub/internal/database"
	"github.com/itsatony/relayhub/internal/errors"
)

// Repository persists token assignments and host redirects.
type Repository interface {
	Upsert(ctx context.Context, token string, a Assignment) error
	Delete(ctx context.Context, token string) error
	LoadAll(ctx context.Context) (map[string]Assignment, error)
	RedirectHost(ctx context.Context, token string) (string, error)
}

// PostgresTokenRepository backs the token table with the device_tokens and
// redirect_tokens tables.
type PostgresTokenRepository struct {
	db database.DB
}

// NewPostgresTokenRepository creates a repository on db.
func NewPostgresTokenRepository(db database.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

type tokenRow struct {
	Token string `db:"token"`
	Assignment
}

// Upsert writes the assignment, replacing any previous token of the same
// device.
func (r *PostgresTokenRepository) Upsert(ctx context.Context, token string, a Assignment) error {
	const query = `
		INSERT INTO device_tokens (token, email, dash_id, device_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email, dash_id, device_id)
		DO UPDATE SET token = EXCLUDED.token`
	if _, err := r.db.GetDB().ExecContext(ctx, query, token, a.Email, a.DashID, a.DeviceID); err != nil {
		return errors.NewStorageError("failed to persist token", err)
	}
	return nil
}

// Delete removes the token row.
func (r *PostgresTokenRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.GetDB().ExecContext(ctx, `DELETE FROM device_tokens WHERE token = $1`, token); err != nil {
		return errors.NewStorageError("failed to delete token", err)
	}
	return nil
}

// LoadAll returns every persisted assignment, used to seed the manager
// at startup.
func (r *PostgresTokenRepository) LoadAll(ctx context.Context) (map[string]Assignment, error) {
	var rows []tokenRow
	if err := r.db.GetDB().SelectContext(ctx, &rows, `SELECT token, email, dash_id, device_id FROM device_tokens`); err != nil {
		return nil, errors.NewStorageError("failed to load tokens", err)
	}
	out := make(map[string]Assignment, len(rows))
	for _, row := range rows {
		out[row.Token] = row.Assignment
	}
	return out, nil
}

// RedirectHost returns the host a migrated token should reconnect to.
// Not-found means the token lives on this host.
func (r *PostgresTokenRepository) RedirectHost(ctx context.Context, token string) (string, error) {
	var host string
	err := r.db.GetDB().GetContext(ctx, &host, `SELECT host FROM redirect_tokens WHERE token = $1`, token)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", errors.NewNotFoundError("token has no redirect", err)
	}
	if err != nil {
		return "", errors.NewStorageError("failed to look up redirect", err)
	}
	return host, nil
}
