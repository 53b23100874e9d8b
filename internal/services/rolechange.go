package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aqylal/apiserver/internal/store"
	"github.com/aqylal/apiserver/types"
)

// ErrForbidden is returned when the actor lacks the rights for a role change.
var ErrForbidden = errors.New("forbidden")

// Actor is the verified identity performing a role change.
type Actor struct {
	ID     int
	RoleID int
	Table  string
}

// RoleMigrator runs the cross-table relocation transaction.
type RoleMigrator interface {
	MigrateRole(ctx context.Context, userID, targetRoleID int, opts store.MigrateOptions) (store.MigrationResult, error)
}

// ProfileFinder resolves an account wherever it currently lives.
type ProfileFinder interface {
	FindByID(ctx context.Context, id int) (types.Profile, error)
}

// EventPublisher announces completed migrations to downstream systems.
type EventPublisher interface {
	PublishRoleChange(ctx context.Context, event types.RoleChangeEvent) error
}

// SnapshotArchive stores a copy of the source row before relocation.
type SnapshotArchive interface {
	SaveProfile(ctx context.Context, profile types.Profile) (string, error)
}

// MetricsRecorder counts migration outcomes.
type MetricsRecorder interface {
	RecordMigration(from, to string)
	RecordMigrationFailure(reason string)
	ObserveMigrationDuration(d time.Duration)
}

// RoleChangeResult is what a role-change request produced.
type RoleChangeResult struct {
	// Migrated is false when the subject already held the target role and
	// nothing was written.
	Migrated bool

	OldUserID int
	NewUserID int
	NewRoleID int

	// TargetTable holds the role table now owning the account.
	TargetTable string
}

// RoleChangeService authorizes and orchestrates role migrations: snapshot,
// transaction, metrics, event. Publisher, archive, and metrics are
// optional; a nil value disables that concern.
type RoleChangeService struct {
	finder    ProfileFinder
	migrator  RoleMigrator
	publisher EventPublisher
	archive   SnapshotArchive
	metrics   MetricsRecorder
}

func NewRoleChangeService(
	finder ProfileFinder,
	migrator RoleMigrator,
	publisher EventPublisher,
	archive SnapshotArchive,
	metrics MetricsRecorder,
) *RoleChangeService {
	return &RoleChangeService{
		finder:    finder,
		migrator:  migrator,
		publisher: publisher,
		archive:   archive,
		metrics:   metrics,
	}
}

// ChangeRole moves the subject account to the target role on behalf of the
// actor. Validation and authorization run before the transaction starts;
// a rejected request leaves the database untouched.
//
// Authorization: an account may migrate itself; otherwise the actor must
// be an admin or a moderator, and moderators may not act on admins or
// other moderators.
func (s *RoleChangeService) ChangeRole(ctx context.Context, actor Actor, subjectID, targetRoleID int) (RoleChangeResult, error) {
	if !types.ValidRole(targetRoleID) {
		return RoleChangeResult{}, store.ErrInvalidRole
	}

	subject, err := s.finder.FindByID(ctx, subjectID)
	if err != nil {
		return RoleChangeResult{}, err
	}

	selfService := actor.ID == subjectID && actor.Table == subject.Table
	if !selfService {
		if actor.RoleID != types.RoleAdmin && actor.RoleID != types.RoleModerator {
			return RoleChangeResult{}, ErrForbidden
		}
		if actor.RoleID == types.RoleModerator &&
			(subject.RoleID == types.RoleAdmin || subject.RoleID == types.RoleModerator) {
			return RoleChangeResult{}, ErrForbidden
		}
	}

	if subject.RoleID == targetRoleID {
		return RoleChangeResult{
			Migrated:    false,
			OldUserID:   subjectID,
			NewUserID:   subjectID,
			NewRoleID:   targetRoleID,
			TargetTable: subject.Table,
		}, nil
	}

	s.snapshot(ctx, subject)

	start := time.Now()
	result, err := s.migrator.MigrateRole(ctx, subjectID, targetRoleID, store.MigrateOptions{})
	if err != nil {
		s.recordFailure(err)
		return RoleChangeResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveMigrationDuration(time.Since(start))
		s.metrics.RecordMigration(types.RoleName(result.OldRoleID), types.RoleName(result.NewRoleID))
	}

	s.publish(ctx, actor, result)

	return RoleChangeResult{
		Migrated:    true,
		OldUserID:   result.OldUserID,
		NewUserID:   result.NewUserID,
		NewRoleID:   result.NewRoleID,
		TargetTable: result.TargetTable,
	}, nil
}

// snapshot archives the source row before the move. Best effort: a failed
// upload is logged, not fatal, so an unreachable object store cannot block
// role changes.
func (s *RoleChangeService) snapshot(ctx context.Context, profile types.Profile) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.SaveProfile(ctx, profile)
	if err != nil {
		log.Printf("rolechange: snapshot of %s/%d failed: %v", profile.Table, profile.ID, err)
		return
	}
	log.Printf("rolechange: snapshot of %s/%d saved as %s", profile.Table, profile.ID, key)
}

func (s *RoleChangeService) publish(ctx context.Context, actor Actor, result store.MigrationResult) {
	if s.publisher == nil {
		return
	}
	event := types.RoleChangeEvent{
		OldUserID:  result.OldUserID,
		NewUserID:  result.NewUserID,
		OldRoleID:  result.OldRoleID,
		NewRoleID:  result.NewRoleID,
		ActorID:    actor.ID,
		OccurredAt: time.Now(),
	}
	if err := s.publisher.PublishRoleChange(ctx, event); err != nil {
		log.Printf("rolechange: publish for %d->%d failed: %v", result.OldUserID, result.NewUserID, err)
	}
}

func (s *RoleChangeService) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	reason := "server"
	switch {
	case errors.Is(err, store.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, store.ErrSameRole):
		reason = "same_role"
	case errors.Is(err, store.ErrInvalidRole):
		reason = "invalid_role"
	}
	s.metrics.RecordMigrationFailure(reason)
}

// Describe renders a one-line summary for operator output.
func (r RoleChangeResult) Describe() string {
	if !r.Migrated {
		return fmt.Sprintf("account %d already has role %s", r.OldUserID, types.RoleName(r.NewRoleID))
	}
	return fmt.Sprintf("account %d moved to %s as id %d", r.OldUserID, r.TargetTable, r.NewUserID)
}
