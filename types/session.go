package types

import "time"

// Session is a login session row. Sessions reference the owning account by
// the id of its current role-table row, so they are relinked when the
// account migrates between tables.
type Session struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Token     string    `json:"-" db:"token"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserSettings is the per-account settings row, unique per user id.
type UserSettings struct {
	UserID   int    `json:"user_id" db:"user_id"`
	Language string `json:"language" db:"language"`
}

// RoleChangeEvent is the payload published to the message broker after a
// completed cross-table migration.
type RoleChangeEvent struct {
	OldUserID  int       `json:"old_user_id"`
	NewUserID  int       `json:"new_user_id"`
	OldRoleID  int       `json:"old_role_id"`
	NewRoleID  int       `json:"new_role_id"`
	ActorID    int       `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
