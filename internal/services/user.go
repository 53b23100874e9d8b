package services

import (
	"context"
	"time"

	"github.com/aqylal/apiserver/internal/store"
	"github.com/aqylal/apiserver/types"
)

// UserRepository defines persistence operations for profiles.
type UserRepository interface {
	FindByID(ctx context.Context, id int) (types.Profile, error)
	FindByEmail(ctx context.Context, email string) (types.Profile, error)
	FindInTable(ctx context.Context, table string, id int) (types.Profile, error)
	Register(ctx context.Context, input store.RegisterInput) (types.Profile, error)
	UpdateProfile(ctx context.Context, table string, id int, upd types.ProfileUpdate) error
}

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, userID int, token string, ttl time.Duration) (types.Session, error)
	FindByToken(ctx context.Context, token string) (types.Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID int) error
	CountByUserID(ctx context.Context, userID int) (int, error)
}

// SettingsRepository defines persistence operations for account settings.
type SettingsRepository interface {
	Get(ctx context.Context, userID int) (types.UserSettings, error)
	SetLanguage(ctx context.Context, userID int, language string) error
}

// SubjectRepository defines persistence operations for teacher subjects.
type SubjectRepository interface {
	ListForTeacher(ctx context.Context, teacherID int) ([]string, error)
	ReplaceForTeacher(ctx context.Context, teacherID int, names []string) error
}

// UserService encapsulates account use-cases.
type UserService struct {
	users    UserRepository
	sessions SessionRepository
	subjects SubjectRepository
	settings SettingsRepository
}

func NewUserService(users UserRepository, sessions SessionRepository, subjects SubjectRepository, settings SettingsRepository) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		subjects: subjects,
		settings: settings,
	}
}

func (s *UserService) FindByID(ctx context.Context, id int) (types.Profile, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (types.Profile, error) {
	return s.users.FindByEmail(ctx, email)
}

func (s *UserService) FindInTable(ctx context.Context, table string, id int) (types.Profile, error) {
	return s.users.FindInTable(ctx, table, id)
}

func (s *UserService) Register(ctx context.Context, input store.RegisterInput) (types.Profile, error) {
	return s.users.Register(ctx, input)
}

// UpdateProfile applies a partial edit and, for teachers, replaces the
// subject list when one is supplied.
func (s *UserService) UpdateProfile(ctx context.Context, profile types.Profile, upd types.ProfileUpdate) error {
	if err := s.users.UpdateProfile(ctx, profile.Table, profile.ID, upd); err != nil {
		return err
	}
	if profile.RoleID == types.RoleTeacher && upd.Subjects != nil {
		return s.subjects.ReplaceForTeacher(ctx, profile.ID, upd.Subjects)
	}
	return nil
}

// Subjects returns the subject names for a teacher profile.
func (s *UserService) Subjects(ctx context.Context, teacherID int) ([]string, error) {
	return s.subjects.ListForTeacher(ctx, teacherID)
}

// OpenSession records a login session for the token.
func (s *UserService) OpenSession(ctx context.Context, userID int, token string, ttl time.Duration) (types.Session, error) {
	return s.sessions.Create(ctx, userID, token, ttl)
}

// Session resolves an unexpired session by its token.
func (s *UserService) Session(ctx context.Context, token string) (types.Session, error) {
	return s.sessions.FindByToken(ctx, token)
}

// CloseSession removes the session holding the token.
func (s *UserService) CloseSession(ctx context.Context, token string) error {
	return s.sessions.DeleteByToken(ctx, token)
}

// CloseAllSessions removes every session owned by the user id and reports
// how many were open.
func (s *UserService) CloseAllSessions(ctx context.Context, userID int) (int, error) {
	count, err := s.sessions.CountByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return 0, err
	}
	return count, nil
}

// Settings returns the account's settings row.
func (s *UserService) Settings(ctx context.Context, userID int) (types.UserSettings, error) {
	return s.settings.Get(ctx, userID)
}

// SetLanguage upserts the account's interface language.
func (s *UserService) SetLanguage(ctx context.Context, userID int, language string) error {
	return s.settings.SetLanguage(ctx, userID, language)
}
