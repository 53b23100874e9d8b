package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aqylal/apiserver/types"
)

// SettingsStore handles persistence for per-account settings.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, userID int) (types.UserSettings, error) {
	const query = `SELECT user_id, language FROM user_settings WHERE user_id = $1`
	var settings types.UserSettings
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&settings.UserID, &settings.Language)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.UserSettings{}, ErrNotFound
		}
		return types.UserSettings{}, err
	}
	return settings, nil
}

func (s *SettingsStore) SetLanguage(ctx context.Context, userID int, language string) error {
	const query = `
		INSERT INTO user_settings (user_id, language)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET language = EXCLUDED.language`
	_, err := s.db.ExecContext(ctx, query, userID, language)
	return err
}

// relinkSettings copies the settings row from oldID to newID and removes
// the old row. The user_id column is unique-keyed, so the copy upserts in
// case a row already exists under newID.
func relinkSettings(ctx context.Context, q dbtx, oldID, newID int) error {
	if oldID == newID {
		return nil
	}
	const copyQuery = `
		INSERT INTO user_settings (user_id, language)
		SELECT $1, language FROM user_settings WHERE user_id = $2
		ON CONFLICT (user_id) DO UPDATE SET language = EXCLUDED.language`
	if _, err := q.ExecContext(ctx, copyQuery, newID, oldID); err != nil {
		return err
	}
	const deleteQuery = `DELETE FROM user_settings WHERE user_id = $1`
	_, err := q.ExecContext(ctx, deleteQuery, oldID)
	return err
}
