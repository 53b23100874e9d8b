package store

import (
	"context"
	"database/sql"
)

// IdentityStore maintains the user_ids ledger of every account id ever
// issued. Ids are recorded once and never removed, so a value handed out
// by any role table cannot be silently reused for an unrelated account.
type IdentityStore struct {
	db *sql.DB
}

func NewIdentityStore(db *sql.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

// EnsureID idempotently records id in the ledger. An already-present id is
// success, not an error.
func (s *IdentityStore) EnsureID(ctx context.Context, id int) error {
	return ensureID(ctx, s.db, id)
}

// IsIssued reports whether id has ever been recorded in the ledger.
func (s *IdentityStore) IsIssued(ctx context.Context, id int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM user_ids WHERE id = $1)`
	var issued bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&issued); err != nil {
		return false, err
	}
	return issued, nil
}

func ensureID(ctx context.Context, q dbtx, id int) error {
	const query = `INSERT INTO user_ids (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	_, err := q.ExecContext(ctx, query, id)
	return err
}
