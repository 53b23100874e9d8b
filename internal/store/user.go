package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aqylal/apiserver/types"
)

// sharedColumns exist in all four role tables. The students table adds
// grade and grade_letter on top.
const sharedColumns = "id, email, login, password_hash, role_id, first_name, last_name, patronymic, phone, birth_date, profile_completed"

// UserStore reads and writes profile rows across the four role tables.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// RegisterInput carries the fields needed to create a student account.
type RegisterInput struct {
	Email        string
	Login        string
	PasswordHash string
	FirstName    string
	LastName     string
	Language     string
}

// findAnywhereQuery probes all four role tables and tags each branch with
// its table name. The students branch goes first so its grade columns set
// the result types for the NULL placeholders in the other branches.
const findAnywhereQuery = `
	SELECT ` + sharedColumns + `, grade, grade_letter, 'users' AS table_name
	FROM users WHERE %[1]s = $1
	UNION ALL
	SELECT ` + sharedColumns + `, NULL, NULL, 'teachers' FROM teachers WHERE %[1]s = $1
	UNION ALL
	SELECT ` + sharedColumns + `, NULL, NULL, 'moders' FROM moders WHERE %[1]s = $1
	UNION ALL
	SELECT ` + sharedColumns + `, NULL, NULL, 'admins' FROM admins WHERE %[1]s = $1`

// FindByID locates an account in whichever role table currently holds it.
func (s *UserStore) FindByID(ctx context.Context, id int) (types.Profile, error) {
	return scanProfileWithTable(s.db.QueryRowContext(ctx, fmt.Sprintf(findAnywhereQuery, "id"), id))
}

// FindByEmail locates an account by email across all role tables.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (types.Profile, error) {
	return scanProfileWithTable(s.db.QueryRowContext(ctx, fmt.Sprintf(findAnywhereQuery, "email"), email))
}

// FindInTable resolves an (id, table) pair, typically from token claims.
// The table name must be one of the four role tables.
func (s *UserStore) FindInTable(ctx context.Context, table string, id int) (types.Profile, error) {
	if !types.ValidTable(table) {
		return types.Profile{}, ErrInvalidTable
	}
	return findInTable(ctx, s.db, table, id, false)
}

func findInTable(ctx context.Context, q dbtx, table string, id int, forUpdate bool) (types.Profile, error) {
	gradeCols := "NULL, NULL"
	if table == types.TableUsers {
		gradeCols = "grade, grade_letter"
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE id = $1", sharedColumns, gradeCols, table)
	if forUpdate {
		query += " FOR UPDATE"
	}

	profile, err := scanProfile(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Profile{}, err
	}
	profile.Table = table
	return profile, nil
}

// Register creates a student account together with its allocator entry and
// default settings row.
func (s *UserStore) Register(ctx context.Context, input RegisterInput) (types.Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Profile{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertQuery = `
		INSERT INTO users (email, login, password_hash, role_id, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	var id int
	if err := tx.QueryRowContext(
		ctx,
		insertQuery,
		input.Email,
		input.Login,
		input.PasswordHash,
		types.RoleStudent,
		input.FirstName,
		input.LastName,
	).Scan(&id); err != nil {
		return types.Profile{}, err
	}

	if err := ensureID(ctx, tx, id); err != nil {
		return types.Profile{}, err
	}

	language := input.Language
	if language == "" {
		language = "ru"
	}
	const settingsQuery = `
		INSERT INTO user_settings (user_id, language)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, settingsQuery, id, language); err != nil {
		return types.Profile{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Profile{}, err
	}

	return types.Profile{
		ID:        id,
		Email:     input.Email,
		Login:     input.Login,
		RoleID:    types.RoleStudent,
		Table:     types.TableUsers,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}, nil
}

// UpdateProfile applies a partial edit to the row at (table, id) and marks
// the profile completed. Grade fields only apply to the students table.
func (s *UserStore) UpdateProfile(ctx context.Context, table string, id int, upd types.ProfileUpdate) error {
	if !types.ValidTable(table) {
		return ErrInvalidTable
	}

	sets := []string{
		"first_name = COALESCE($1, first_name)",
		"last_name = COALESCE($2, last_name)",
		"patronymic = COALESCE($3, patronymic)",
		"login = COALESCE($4, login)",
		"phone = COALESCE($5, phone)",
		"birth_date = COALESCE($6, birth_date)",
		"profile_completed = TRUE",
	}
	args := []any{upd.FirstName, upd.LastName, upd.Patronymic, upd.Login, upd.Phone, upd.BirthDate}
	if table == types.TableUsers {
		sets = append(sets,
			fmt.Sprintf("grade = COALESCE($%d, grade)", len(args)+1),
			fmt.Sprintf("grade_letter = COALESCE($%d, grade_letter)", len(args)+2),
		)
		args = append(args, upd.Grade, upd.GradeLetter)
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d",
		table, strings.Join(sets, ", "), len(args),
	)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProfile(row *sql.Row) (types.Profile, error) {
	var profile types.Profile
	var birthDate sql.NullTime
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.Login,
		&profile.PasswordHash,
		&profile.RoleID,
		&profile.FirstName,
		&profile.LastName,
		&profile.Patronymic,
		&profile.Phone,
		&birthDate,
		&profile.ProfileCompleted,
		&profile.Grade,
		&profile.GradeLetter,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}
	if birthDate.Valid {
		d := birthDate.Time
		profile.BirthDate = &d
	}
	return profile, nil
}

func scanProfileWithTable(row *sql.Row) (types.Profile, error) {
	var profile types.Profile
	var birthDate sql.NullTime
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.Login,
		&profile.PasswordHash,
		&profile.RoleID,
		&profile.FirstName,
		&profile.LastName,
		&profile.Patronymic,
		&profile.Phone,
		&birthDate,
		&profile.ProfileCompleted,
		&profile.Grade,
		&profile.GradeLetter,
		&profile.Table,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, ErrNotFound
		}
		return types.Profile{}, err
	}
	if birthDate.Valid {
		d := birthDate.Time
		profile.BirthDate = &d
	}
	return profile, nil
}
