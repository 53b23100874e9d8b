package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aqylal/apiserver/internal/store"
	"github.com/aqylal/apiserver/types"
)

type mockFinder struct {
	findByIDFn func(ctx context.Context, id int) (types.Profile, error)
}

func (m *mockFinder) FindByID(ctx context.Context, id int) (types.Profile, error) {
	return m.findByIDFn(ctx, id)
}

type mockMigrator struct {
	migrateFn func(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error)
	calls     int
}

func (m *mockMigrator) MigrateRole(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error) {
	m.calls++
	return m.migrateFn(ctx, userID, targetRoleID, opts)
}

type mockPublisher struct {
	events []types.RoleChangeEvent
	err    error
}

func (m *mockPublisher) PublishRoleChange(ctx context.Context, event types.RoleChangeEvent) error {
	m.events = append(m.events, event)
	return m.err
}

type mockArchive struct {
	saved []types.Profile
	err   error
}

func (m *mockArchive) SaveProfile(ctx context.Context, profile types.Profile) (string, error) {
	m.saved = append(m.saved, profile)
	return "role-migrations/test.json", m.err
}

type mockMetrics struct {
	migrations int
	failures   int
}

func (m *mockMetrics) RecordMigration(from, to string)          { m.migrations++ }
func (m *mockMetrics) RecordMigrationFailure(reason string)     { m.failures++ }
func (m *mockMetrics) ObserveMigrationDuration(d time.Duration) {}

func teacherProfile(id int) types.Profile {
	return types.Profile{
		ID:     id,
		Email:  "t@example.com",
		RoleID: types.RoleTeacher,
		Table:  types.TableTeachers,
	}
}

func TestChangeRole_AdminMigratesTeacher(t *testing.T) {
	finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
		return teacherProfile(id), nil
	}}
	migrator := &mockMigrator{migrateFn: func(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error) {
		return store.MigrationResult{
			OldUserID:   userID,
			NewUserID:   107,
			OldRoleID:   types.RoleTeacher,
			NewRoleID:   targetRoleID,
			SourceTable: types.TableTeachers,
			TargetTable: types.TableUsers,
		}, nil
	}}
	publisher := &mockPublisher{}
	archive := &mockArchive{}
	recorder := &mockMetrics{}

	svc := NewRoleChangeService(finder, migrator, publisher, archive, recorder)
	actor := Actor{ID: 1, RoleID: types.RoleAdmin, Table: types.TableAdmins}

	result, err := svc.ChangeRole(context.Background(), actor, 42, types.RoleStudent)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if !result.Migrated {
		t.Fatal("expected a migration")
	}
	if result.NewUserID != 107 {
		t.Errorf("NewUserID = %d, want 107", result.NewUserID)
	}
	if result.TargetTable != types.TableUsers {
		t.Errorf("TargetTable = %q, want %q", result.TargetTable, types.TableUsers)
	}
	if len(archive.saved) != 1 || archive.saved[0].ID != 42 {
		t.Errorf("expected snapshot of account 42, got %+v", archive.saved)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.OldUserID != 42 || event.NewUserID != 107 || event.ActorID != 1 {
		t.Errorf("unexpected event %+v", event)
	}
	if recorder.migrations != 1 {
		t.Errorf("migrations recorded = %d, want 1", recorder.migrations)
	}
}

func TestChangeRole_ModeratorCannotTouchElevatedRoles(t *testing.T) {
	for _, subjectRole := range []int{types.RoleAdmin, types.RoleModerator} {
		table, _ := types.TableForRole(subjectRole)
		finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
			return types.Profile{ID: id, RoleID: subjectRole, Table: table}, nil
		}}
		migrator := &mockMigrator{migrateFn: func(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error) {
			return store.MigrationResult{}, nil
		}}

		svc := NewRoleChangeService(finder, migrator, nil, nil, nil)
		actor := Actor{ID: 9, RoleID: types.RoleModerator, Table: types.TableModers}

		_, err := svc.ChangeRole(context.Background(), actor, 42, types.RoleStudent)
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("subject role %d: err = %v, want ErrForbidden", subjectRole, err)
		}
		if migrator.calls != 0 {
			t.Errorf("subject role %d: migrator ran despite rejection", subjectRole)
		}
	}
}

func TestChangeRole_StudentCannotMigrateOthers(t *testing.T) {
	finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
		return teacherProfile(id), nil
	}}
	migrator := &mockMigrator{migrateFn: func(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error) {
		return store.MigrationResult{}, nil
	}}

	svc := NewRoleChangeService(finder, migrator, nil, nil, nil)
	actor := Actor{ID: 5, RoleID: types.RoleStudent, Table: types.TableUsers}

	if _, err := svc.ChangeRole(context.Background(), actor, 42, types.RoleStudent); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestChangeRole_SelfServiceAllowed(t *testing.T) {
	finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
		return types.Profile{ID: id, RoleID: types.RoleStudent, Table: types.TableUsers}, nil
	}}
	migrator := &mockMigrator{migrateFn: func(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error) {
		return store.MigrationResult{
			OldUserID:   userID,
			NewUserID:   200,
			OldRoleID:   types.RoleStudent,
			NewRoleID:   targetRoleID,
			SourceTable: types.TableUsers,
			TargetTable: types.TableTeachers,
		}, nil
	}}

	svc := NewRoleChangeService(finder, migrator, nil, nil, nil)
	actor := Actor{ID: 42, RoleID: types.RoleStudent, Table: types.TableUsers}

	result, err := svc.ChangeRole(context.Background(), actor, 42, types.RoleTeacher)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if !result.Migrated || result.NewUserID != 200 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestChangeRole_SameRoleIsNoOp(t *testing.T) {
	finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
		return teacherProfile(id), nil
	}}
	migrator := &mockMigrator{migrateFn: func(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error) {
		t.Fatal("migrator must not run for a same-role request")
		return store.MigrationResult{}, nil
	}}
	archive := &mockArchive{}

	svc := NewRoleChangeService(finder, migrator, nil, archive, nil)
	actor := Actor{ID: 1, RoleID: types.RoleAdmin, Table: types.TableAdmins}

	result, err := svc.ChangeRole(context.Background(), actor, 42, types.RoleTeacher)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if result.Migrated {
		t.Error("same-role change must not migrate")
	}
	if result.NewUserID != 42 {
		t.Errorf("NewUserID = %d, want unchanged 42", result.NewUserID)
	}
	if len(archive.saved) != 0 {
		t.Error("no snapshot expected for a no-op")
	}
}

func TestChangeRole_InvalidRoleRejectedBeforeLookup(t *testing.T) {
	finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
		t.Fatal("lookup must not run for an invalid role")
		return types.Profile{}, nil
	}}
	svc := NewRoleChangeService(finder, &mockMigrator{}, nil, nil, nil)
	actor := Actor{ID: 1, RoleID: types.RoleAdmin, Table: types.TableAdmins}

	if _, err := svc.ChangeRole(context.Background(), actor, 42, 9); !errors.Is(err, store.ErrInvalidRole) {
		t.Errorf("err = %v, want ErrInvalidRole", err)
	}
}

func TestChangeRole_SubjectMissing(t *testing.T) {
	finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
		return types.Profile{}, store.ErrNotFound
	}}
	svc := NewRoleChangeService(finder, &mockMigrator{}, nil, nil, nil)
	actor := Actor{ID: 1, RoleID: types.RoleAdmin, Table: types.TableAdmins}

	if _, err := svc.ChangeRole(context.Background(), actor, 42, types.RoleStudent); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestChangeRole_MigrationFailureRecorded(t *testing.T) {
	finder := &mockFinder{findByIDFn: func(ctx context.Context, id int) (types.Profile, error) {
		return teacherProfile(id), nil
	}}
	migrator := &mockMigrator{migrateFn: func(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error) {
		return store.MigrationResult{}, errors.New("connection reset")
	}}
	publisher := &mockPublisher{}
	recorder := &mockMetrics{}

	svc := NewRoleChangeService(finder, migrator, publisher, nil, recorder)
	actor := Actor{ID: 1, RoleID: types.RoleAdmin, Table: types.TableAdmins}

	if _, err := svc.ChangeRole(context.Background(), actor, 42, types.RoleStudent); err == nil {
		t.Fatal("expected error")
	}
	if recorder.failures != 1 {
		t.Errorf("failures recorded = %d, want 1", recorder.failures)
	}
	if len(publisher.events) != 0 {
		t.Error("no event expected for a failed migration")
	}
}
