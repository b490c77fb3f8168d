// FilePath: internal/profiles/profiles.go
package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/itsatony/relayhub/internal/database"
	"github.com/itsatony/relayhub/internal/errors"
	"github.com/itsatony/relayhub/internal/models"
)

// Repository persists account profiles. The live profile is mutated on the
// owning session loop only; SaveRaw takes pre-marshaled JSON so the loop
// never blocks on the database.
type Repository interface {
	Load(ctx context.Context, email string) (*models.Profile, error)
	SaveRaw(ctx context.Context, email string, raw []byte) error
}

// PostgresProfileRepository backs profiles with the user_profiles table,
// one JSONB document per account.
type PostgresProfileRepository struct {
	db database.DB
}

// NewPostgresProfileRepository creates a repository on db.
func NewPostgresProfileRepository(db database.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

// Load returns the account's persisted profile.
func (r *PostgresProfileRepository) Load(ctx context.Context, email string) (*models.Profile, error) {
	var raw []byte
	err := r.db.GetDB().GetContext(ctx, &raw, `SELECT profile FROM user_profiles WHERE email = $1`, email)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no profile for account", err)
	}
	if err != nil {
		return nil, errors.NewStorageError("failed to load profile", err)
	}

	var profile models.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, errors.NewStorageError("failed to decode profile", err)
	}
	return &profile, nil
}

// SaveRaw upserts the account's profile document.
func (r *PostgresProfileRepository) SaveRaw(ctx context.Context, email string, raw []byte) error {
	const query = `
		INSERT INTO user_profiles (email, profile, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (email)
		DO UPDATE SET profile = EXCLUDED.profile, updated_at = NOW()`
	if _, err := r.db.GetDB().ExecContext(ctx, query, email, raw); err != nil {
		return errors.NewStorageError("failed to save profile", err)
	}
	return nil
}
