package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aqylal/apiserver/types"
)

// SessionStore handles persistence for login sessions.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, userID int, token string, ttl time.Duration) (types.Session, error) {
	session := types.Session{
		UserID:    userID,
		Token:     token,
		CreatedAt: time.Now(),
	}
	session.ExpiresAt = session.CreatedAt.Add(ttl)

	const query = `
		INSERT INTO sessions (user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := s.db.QueryRowContext(
		ctx,
		query,
		session.UserID,
		session.Token,
		session.ExpiresAt,
		session.CreatedAt,
	).Scan(&session.ID); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

func (s *SessionStore) FindByToken(ctx context.Context, token string) (types.Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > now()`
	var session types.Session
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

func (s *SessionStore) DeleteByToken(ctx context.Context, token string) error {
	const query = `DELETE FROM sessions WHERE token = $1`
	_, err := s.db.ExecContext(ctx, query, token)
	return err
}

func (s *SessionStore) DeleteByUserID(ctx context.Context, userID int) error {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

func (s *SessionStore) CountByUserID(ctx context.Context, userID int) (int, error) {
	const query = `SELECT COUNT(1) FROM sessions WHERE user_id = $1`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// relinkSessions repoints every session from oldID to newID. A same-id
// relink is a no-op.
func relinkSessions(ctx context.Context, q dbtx, oldID, newID int) error {
	if oldID == newID {
		return nil
	}
	const query = `UPDATE sessions SET user_id = $1 WHERE user_id = $2`
	_, err := q.ExecContext(ctx, query, newID, oldID)
	return err
}
