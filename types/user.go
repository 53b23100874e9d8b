package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role identifiers. Each role maps to its own profile table; an account
// lives in exactly one of the four tables at any time.
const (
	RoleAdmin     = 1
	RoleModerator = 2
	RoleTeacher   = 3
	RoleStudent   = 4
)

// Role table names.
const (
	TableAdmins   = "admins"
	TableModers   = "moders"
	TableTeachers = "teachers"
	TableUsers    = "users"
)

// RoleTables lists every role table in probe order.
var RoleTables = []string{TableUsers, TableTeachers, TableModers, TableAdmins}

var roleToTable = map[int]string{
	RoleAdmin:     TableAdmins,
	RoleModerator: TableModers,
	RoleTeacher:   TableTeachers,
	RoleStudent:   TableUsers,
}

var roleNames = map[int]string{
	RoleAdmin:     "admin",
	RoleModerator: "moderator",
	RoleTeacher:   "teacher",
	RoleStudent:   "student",
}

// ValidRole reports whether id is one of the four known role ids.
func ValidRole(id int) bool {
	_, ok := roleToTable[id]
	return ok
}

// TableForRole returns the profile table holding accounts with the given role.
func TableForRole(roleID int) (string, error) {
	table, ok := roleToTable[roleID]
	if !ok {
		return "", fmt.Errorf("unknown role id %d", roleID)
	}
	return table, nil
}

// ValidTable reports whether name is one of the four role tables.
func ValidTable(name string) bool {
	for _, table := range RoleTables {
		if table == name {
			return true
		}
	}
	return false
}

// RoleName returns the human-readable name for a role id ("student", ...).
func RoleName(roleID int) string {
	if name, ok := roleNames[roleID]; ok {
		return name
	}
	return "unknown"
}

// ParseRole accepts either a role name ("teacher") or a numeric id ("3").
func ParseRole(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "moderator", "moder":
		return RoleModerator, nil
	case "teacher":
		return RoleTeacher, nil
	case "student", "user":
		return RoleStudent, nil
	}
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !ValidRole(id) {
		return 0, fmt.Errorf("invalid role %q", s)
	}
	return id, nil
}

// Profile is an account row in one of the role tables.
// The same column set exists in all four tables; Grade and GradeLetter are
// only populated for rows in the students table.
type Profile struct {
	// ID is the row's primary key within its current table. It changes when
	// the account migrates to another role table.
	ID int `json:"id" db:"id"`

	// Email is the unique address the account registered with.
	Email string `json:"email" db:"email"`

	// Login is the display login name.
	Login string `json:"login" db:"login"`

	// PasswordHash is the bcrypt hash of the account password.
	// Never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RoleID is the account's role (1=admin, 2=moderator, 3=teacher, 4=student).
	RoleID int `json:"role_id" db:"role_id"`

	// Table is the role table the row was read from. Derived, not stored.
	Table string `json:"table_name" db:"-"`

	FirstName  string     `json:"first_name" db:"first_name"`
	LastName   string     `json:"last_name" db:"last_name"`
	Patronymic *string    `json:"patronymic,omitempty" db:"patronymic"`
	Phone      *string    `json:"phone,omitempty" db:"phone"`
	BirthDate  *time.Time `json:"birth_date,omitempty" db:"birth_date"`

	// ProfileCompleted marks whether the user finished the profile form.
	ProfileCompleted bool `json:"profile_completed" db:"profile_completed"`

	// Grade and GradeLetter are student-only fields.
	Grade       *int    `json:"grade,omitempty" db:"grade"`
	GradeLetter *string `json:"grade_letter,omitempty" db:"grade_letter"`
}

// ProfileUpdate carries a partial profile edit. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	Patronymic  *string    `json:"patronymic"`
	Login       *string    `json:"login"`
	Phone       *string    `json:"phone"`
	BirthDate   *time.Time `json:"birth_date"`
	Grade       *int       `json:"grade"`
	GradeLetter *string    `json:"grade_letter"`

	// Subjects replaces the teacher's subject list when set.
	Subjects []string `json:"subject"`
}
