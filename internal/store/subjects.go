package store

import (
	"context"
	"database/sql"
)

// SubjectStore handles the subject catalogue and teacher-subject links.
type SubjectStore struct {
	db *sql.DB
}

func NewSubjectStore(db *sql.DB) *SubjectStore {
	return &SubjectStore{db: db}
}

// ListForTeacher returns the subject names linked to a teacher id.
func (s *SubjectStore) ListForTeacher(ctx context.Context, teacherID int) ([]string, error) {
	const query = `
		SELECT sub.name
		FROM teacher_subjects ts
		JOIN subjects sub ON sub.id = ts.subject_id
		WHERE ts.teacher_id = $1
		ORDER BY sub.name`
	rows, err := s.db.QueryContext(ctx, query, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ReplaceForTeacher swaps the teacher's subject links for the named set.
// Unknown subject names are skipped, matching the original profile form.
func (s *SubjectStore) ReplaceForTeacher(ctx context.Context, teacherID int, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const deleteQuery = `DELETE FROM teacher_subjects WHERE teacher_id = $1`
	if _, err := tx.ExecContext(ctx, deleteQuery, teacherID); err != nil {
		return err
	}

	const insertQuery = `
		INSERT INTO teacher_subjects (teacher_id, subject_id)
		SELECT $1, id FROM subjects WHERE name = $2
		ON CONFLICT DO NOTHING`
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, insertQuery, teacherID, name); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// copyTeacherSubjects carries subject links forward to a new teacher id.
func copyTeacherSubjects(ctx context.Context, q dbtx, oldID, newID int) error {
	if oldID == newID {
		return nil
	}
	const query = `
		INSERT INTO teacher_subjects (teacher_id, subject_id)
		SELECT $1, subject_id FROM teacher_subjects WHERE teacher_id = $2
		ON CONFLICT DO NOTHING`
	_, err := q.ExecContext(ctx, query, newID, oldID)
	return err
}

// deleteTeacherSubjects drops the links a departing teacher id leaves
// behind, so no orphaned rows survive a migration out of the role.
func deleteTeacherSubjects(ctx context.Context, q dbtx, teacherID int) error {
	const query = `DELETE FROM teacher_subjects WHERE teacher_id = $1`
	_, err := q.ExecContext(ctx, query, teacherID)
	return err
}
