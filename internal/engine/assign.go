package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kitchenflow/internal/domain"
	"kitchenflow/internal/events"
	"kitchenflow/internal/rbac"
	"kitchenflow/internal/repo"
)

// AssignPhaseOptions are parameters for handing a phase to a team member.
type AssignPhaseOptions struct {
	PhaseID           string
	AssigneeID        string
	Notes             string
	ExpectedUpdatedAt string
}

// AssignPhase sets the phase's current assignee and, in the same
// transaction, appends the audit row, notifies the assignee, and records the
// feed event. Eligibility is checked before any write.
func (e Engine) AssignPhase(ctx context.Context, actor rbac.AuthContext, opts AssignPhaseOptions) (domain.AssignmentRecord, error) {
	if err := rbac.Require(actor, rbac.PermAssignTasks); err != nil {
		return domain.AssignmentRecord{}, err
	}
	phase, err := e.Repo.GetPhase(ctx, opts.PhaseID)
	if err != nil {
		return domain.AssignmentRecord{}, err
	}
	if opts.ExpectedUpdatedAt != "" && opts.ExpectedUpdatedAt != phase.UpdatedAt {
		return domain.AssignmentRecord{}, ConflictError{Entity: "phase", ID: opts.PhaseID}
	}
	if err := e.checkAssignee(ctx, opts.AssigneeID); err != nil {
		return domain.AssignmentRecord{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	rec := domain.AssignmentRecord{
		ID:         uuid.NewString(),
		ProjectID:  phase.ProjectID,
		PhaseID:    phase.ID,
		AssignedTo: opts.AssigneeID,
		AssignedBy: actor.UserID,
		AssignedAt: now,
		Notes:      opts.Notes,
		CreatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AssignmentRecord{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdatePhaseAssignmentTx(ctx, tx, phase.ID, opts.AssigneeID, actor.UserID, now, now); err != nil {
		return domain.AssignmentRecord{}, fmt.Errorf("update phase assignment: %w", err)
	}
	if err := e.Repo.InsertAssignmentTx(ctx, tx, rec); err != nil {
		return domain.AssignmentRecord{}, fmt.Errorf("insert assignment record: %w", err)
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    opts.AssigneeID,
		Title:     "New phase assignment",
		Message:   fmt.Sprintf("You have been assigned the %s phase", phase.PhaseName),
		Type:      "assignment",
		ProjectID: &phase.ProjectID,
		CreatedAt: now,
	}
	if err := e.Repo.InsertNotificationTx(ctx, tx, n); err != nil {
		return domain.AssignmentRecord{}, fmt.Errorf("insert notification: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypePhaseAssigned, phase.ProjectID, "phase", phase.ID, actor.UserID, events.EventPayload{
		"assigned_to":  opts.AssigneeID,
		"phase_number": phase.PhaseNumber,
	}); err != nil {
		return domain.AssignmentRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AssignmentRecord{}, err
	}
	return rec, nil
}

// AssignTaskOptions are parameters for handing a project task to a team
// member.
type AssignTaskOptions struct {
	TaskID            string
	AssigneeID        string
	Notes             string
	ExpectedUpdatedAt string
}

func (e Engine) AssignTask(ctx context.Context, actor rbac.AuthContext, opts AssignTaskOptions) (domain.AssignmentRecord, error) {
	if err := rbac.Require(actor, rbac.PermAssignTasks); err != nil {
		return domain.AssignmentRecord{}, err
	}
	task, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.AssignmentRecord{}, err
	}
	if opts.ExpectedUpdatedAt != "" && opts.ExpectedUpdatedAt != task.UpdatedAt {
		return domain.AssignmentRecord{}, ConflictError{Entity: "task", ID: opts.TaskID}
	}
	if err := e.checkAssignee(ctx, opts.AssigneeID); err != nil {
		return domain.AssignmentRecord{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	rec := domain.AssignmentRecord{
		ID:         uuid.NewString(),
		ProjectID:  task.ProjectID,
		TaskID:     task.ID,
		AssignedTo: opts.AssigneeID,
		AssignedBy: actor.UserID,
		AssignedAt: now,
		Notes:      opts.Notes,
		CreatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AssignmentRecord{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskAssignmentTx(ctx, tx, task.ID, opts.AssigneeID, actor.UserID, now, now); err != nil {
		return domain.AssignmentRecord{}, fmt.Errorf("update task assignment: %w", err)
	}
	if err := e.Repo.InsertAssignmentTx(ctx, tx, rec); err != nil {
		return domain.AssignmentRecord{}, fmt.Errorf("insert assignment record: %w", err)
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    opts.AssigneeID,
		Title:     "New task assignment",
		Message:   fmt.Sprintf("You have been assigned the task %q", task.TaskName),
		Type:      "assignment",
		ProjectID: &task.ProjectID,
		TaskID:    &task.ID,
		CreatedAt: now,
	}
	if err := e.Repo.InsertNotificationTx(ctx, tx, n); err != nil {
		return domain.AssignmentRecord{}, fmt.Errorf("insert notification: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskAssigned, task.ProjectID, "task", task.ID, actor.UserID, events.EventPayload{
		"assigned_to": opts.AssigneeID,
	}); err != nil {
		return domain.AssignmentRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AssignmentRecord{}, err
	}
	return rec, nil
}

func (e Engine) checkAssignee(ctx context.Context, assigneeID string) error {
	role, err := e.Repo.GetUserRole(ctx, assigneeID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("assignee %s: %w", assigneeID, repo.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !rbac.EligibleAssignee(role) {
		return IneligibleAssigneeError{UserID: assigneeID, Role: role}
	}
	return nil
}

// ListAssignableProfiles returns team members whose role may hold
// assignments.
func (e Engine) ListAssignableProfiles(ctx context.Context) ([]domain.Profile, error) {
	return e.Repo.ListProfilesByRoles(ctx, []string{
		domain.RoleDesigner, domain.RoleWorker, domain.RoleFactory,
		domain.RoleInstaller, domain.RoleManager,
	})
}

func (e Engine) ListPhaseAssignments(ctx context.Context, phaseID string) ([]domain.AssignmentRecord, error) {
	return e.Repo.ListAssignmentsByPhase(ctx, phaseID)
}

func (e Engine) ListProjectAssignments(ctx context.Context, projectID string) ([]domain.AssignmentRecord, error) {
	return e.Repo.ListAssignmentsByProject(ctx, projectID)
}
