package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/aqylal/apiserver/types"
)

// MigrationStore relocates an account between role tables. The whole
// relocation runs in one transaction: locate-and-lock the source row,
// insert a copy into the target table, relink dependent records to the
// freshly assigned id, delete the source row. Any failure rolls every
// step back.
type MigrationStore struct {
	db *sql.DB
}

func NewMigrationStore(db *sql.DB) *MigrationStore {
	return &MigrationStore{db: db}
}

// MigrateOptions tunes a single migration run.
type MigrateOptions struct {
	// Verify re-reads the target row after each dependent-table update and
	// after the source delete, failing the transaction if it disappeared.
	// Used by the operator CLI; the HTTP path relies on the transaction
	// alone.
	Verify bool
}

// MigrationResult describes a completed relocation.
type MigrationResult struct {
	OldUserID int
	NewUserID int
	OldRoleID int
	NewRoleID int

	SourceTable string
	TargetTable string

	// StaleTargetRemoved is set when a leftover row with the old id had to
	// be cleaned out of the target table before the insert.
	StaleTargetRemoved bool
}

// MigrateRole moves the account at userID into the role table for
// targetRoleID and returns the id the target table assigned.
//
// The source row is locked with FOR UPDATE, so two concurrent migrations
// of the same account serialize: the loser blocks on the lock and then
// observes the source row gone (ErrNotFound). Callers must never assume
// the new id equals the old one; the role tables keep independent
// sequences.
func (s *MigrationStore) MigrateRole(ctx context.Context, userID, targetRoleID int, opts MigrateOptions) (MigrationResult, error) {
	if !types.ValidRole(targetRoleID) {
		return MigrationResult{}, ErrInvalidRole
	}
	targetTable, err := types.TableForRole(targetRoleID)
	if err != nil {
		return MigrationResult{}, ErrInvalidRole
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MigrationResult{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Step 1: locate the source row, taking a row lock where found.
	source, err := locateForUpdate(ctx, tx, userID)
	if err != nil {
		return MigrationResult{}, err
	}

	if source.RoleID == targetRoleID || source.Table == targetTable {
		return MigrationResult{}, ErrSameRole
	}

	result := MigrationResult{
		OldUserID:   userID,
		OldRoleID:   source.RoleID,
		NewRoleID:   targetRoleID,
		SourceTable: source.Table,
		TargetTable: targetTable,
	}

	// The allocator keeps every issued id forever, whichever table owns it.
	if err := ensureID(ctx, tx, userID); err != nil {
		return MigrationResult{}, err
	}

	// Step 2: a row under the old id in the target table is debris from a
	// crashed migration. Remove it so the insert starts clean.
	removed, err := removeStaleTarget(ctx, tx, targetTable, userID)
	if err != nil {
		return MigrationResult{}, err
	}
	if removed {
		log.Printf("migration: removed stale row id=%d from %s before insert", userID, targetTable)
		result.StaleTargetRemoved = true
	}

	// Step 3: insert the copy. The target table assigns a new id from its
	// own sequence.
	newID, err := insertIntoTarget(ctx, tx, targetTable, targetRoleID, source)
	if err != nil {
		return MigrationResult{}, err
	}
	result.NewUserID = newID

	if err := ensureID(ctx, tx, newID); err != nil {
		return MigrationResult{}, err
	}

	// Step 4: relink the enumerated dependent tables. This list is
	// maintained by hand; a new dependent table means a new line here.
	if err := relinkSessions(ctx, tx, userID, newID); err != nil {
		return MigrationResult{}, fmt.Errorf("relink sessions: %w", err)
	}
	if err := verifyTargetRow(ctx, tx, targetTable, newID, opts, "after sessions relink"); err != nil {
		return MigrationResult{}, err
	}

	if err := relinkSettings(ctx, tx, userID, newID); err != nil {
		return MigrationResult{}, fmt.Errorf("relink settings: %w", err)
	}
	if err := verifyTargetRow(ctx, tx, targetTable, newID, opts, "after settings relink"); err != nil {
		return MigrationResult{}, err
	}

	// Subject links follow the account into the teacher role and are
	// dropped when it leaves; either way the old id keeps no links.
	if targetTable == types.TableTeachers {
		if err := copyTeacherSubjects(ctx, tx, userID, newID); err != nil {
			return MigrationResult{}, fmt.Errorf("copy teacher subjects: %w", err)
		}
	}
	if err := deleteTeacherSubjects(ctx, tx, userID); err != nil {
		return MigrationResult{}, fmt.Errorf("delete teacher subjects: %w", err)
	}
	if err := verifyTargetRow(ctx, tx, targetTable, newID, opts, "after subjects relink"); err != nil {
		return MigrationResult{}, err
	}

	// Step 5: remove the source row.
	if err := deleteSourceRow(ctx, tx, source.Table, userID); err != nil {
		return MigrationResult{}, err
	}
	if err := verifyTargetRow(ctx, tx, targetTable, newID, opts, "after source delete"); err != nil {
		return MigrationResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return MigrationResult{}, err
	}
	return result, nil
}

// locateForUpdate probes the role tables one by one and locks the row it
// finds. Probing per table (instead of the UNION used on the read path)
// keeps FOR UPDATE applicable.
func locateForUpdate(ctx context.Context, tx *sql.Tx, userID int) (types.Profile, error) {
	for _, table := range types.RoleTables {
		profile, err := findInTable(ctx, tx, table, userID, true)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return types.Profile{}, err
		}
	}
	return types.Profile{}, ErrNotFound
}

func removeStaleTarget(ctx context.Context, tx *sql.Tx, targetTable string, userID int) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", targetTable)
	result, err := tx.ExecContext(ctx, query, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func insertIntoTarget(ctx context.Context, tx *sql.Tx, targetTable string, targetRoleID int, source types.Profile) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (email, login, password_hash, role_id, first_name, last_name, patronymic, phone, birth_date, profile_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`, targetTable)
	var newID int
	err := tx.QueryRowContext(
		ctx,
		query,
		source.Email,
		source.Login,
		source.PasswordHash,
		targetRoleID,
		source.FirstName,
		source.LastName,
		source.Patronymic,
		source.Phone,
		source.BirthDate,
		source.ProfileCompleted,
	).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", targetTable, err)
	}
	return newID, nil
}

func deleteSourceRow(ctx context.Context, tx *sql.Tx, sourceTable string, userID int) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", sourceTable)
	result, err := tx.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", sourceTable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("delete from %s: row %d vanished mid-migration", sourceTable, userID)
	}
	return nil
}

func verifyTargetRow(ctx context.Context, tx *sql.Tx, targetTable string, newID int, opts MigrateOptions, stage string) error {
	if !opts.Verify {
		return nil
	}
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", targetTable)
	var exists bool
	if err := tx.QueryRowContext(ctx, query, newID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("verify %s: row %d missing %s", targetTable, newID, stage)
	}
	return nil
}
