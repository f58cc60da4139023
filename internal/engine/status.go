package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kitchenflow/internal/domain"
	"kitchenflow/internal/events"
	"kitchenflow/internal/rbac"
)

// canTouch is the shared status guard: editors may change anything, the
// current assignee may change their own work.
func canTouch(actor rbac.AuthContext, assignedTo *string) bool {
	if rbac.HasPermission(actor.Role, rbac.PermEditProjects) {
		return true
	}
	return assignedTo != nil && *assignedTo == actor.UserID
}

// SetPhaseStatus moves a phase between todo, in_progress and done.
// Entering in_progress stamps started_at once; done stamps completed_at;
// leaving done clears it again.
func (e Engine) SetPhaseStatus(ctx context.Context, actor rbac.AuthContext, phaseID, status, expectedUpdatedAt string) (domain.Phase, error) {
	status, err := domain.ParseTaskStatus(status)
	if err != nil {
		return domain.Phase{}, err
	}
	phase, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.Phase{}, err
	}
	if !canTouch(actor, phase.AssignedTo) {
		return domain.Phase{}, rbac.PermissionDeniedError{Role: actor.Role, Permission: rbac.PermEditProjects}
	}
	if expectedUpdatedAt != "" && expectedUpdatedAt != phase.UpdatedAt {
		return domain.Phase{}, ConflictError{Entity: "phase", ID: phaseID}
	}
	now := e.now().UTC().Format(time.RFC3339)
	startedAt := phase.StartedAt
	if status == domain.StatusInProgress && startedAt == nil {
		startedAt = &now
	}
	var completedAt *string
	if status == domain.StatusDone {
		completedAt = phase.CompletedAt
		if completedAt == nil {
			completedAt = &now
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Phase{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdatePhaseStatusTx(ctx, tx, phaseID, status, startedAt, completedAt, now); err != nil {
		return domain.Phase{}, fmt.Errorf("update phase status: %w", err)
	}
	if err := e.notifyCounterpart(ctx, tx, actor, phase.AssignedTo, phase.AssignedBy, now, domain.Notification{
		Title:     "Phase status changed",
		Message:   fmt.Sprintf("Phase %s is now %s", phase.PhaseName, status),
		Type:      "status",
		ProjectID: &phase.ProjectID,
	}); err != nil {
		return domain.Phase{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypePhaseStatusChanged, phase.ProjectID, "phase", phase.ID, actor.UserID, events.EventPayload{
		"from": phase.Status,
		"to":   status,
	}); err != nil {
		return domain.Phase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Phase{}, err
	}
	return e.Repo.GetPhase(ctx, phaseID)
}

func (e Engine) SetTaskStatus(ctx context.Context, actor rbac.AuthContext, taskID, status, expectedUpdatedAt string) (domain.Task, error) {
	status, err := domain.ParseTaskStatus(status)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !canTouch(actor, task.AssignedTo) {
		return domain.Task{}, rbac.PermissionDeniedError{Role: actor.Role, Permission: rbac.PermEditProjects}
	}
	if expectedUpdatedAt != "" && expectedUpdatedAt != task.UpdatedAt {
		return domain.Task{}, ConflictError{Entity: "task", ID: taskID}
	}
	now := e.now().UTC().Format(time.RFC3339)
	var completedAt *string
	if status == domain.StatusDone {
		completedAt = task.CompletedAt
		if completedAt == nil {
			completedAt = &now
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskStatusTx(ctx, tx, taskID, status, completedAt, now); err != nil {
		return domain.Task{}, fmt.Errorf("update task status: %w", err)
	}
	if err := e.notifyCounterpart(ctx, tx, actor, task.AssignedTo, task.AssignedBy, now, domain.Notification{
		Title:     "Task status changed",
		Message:   fmt.Sprintf("Task %q is now %s", task.TaskName, status),
		Type:      "status",
		ProjectID: &task.ProjectID,
		TaskID:    &task.ID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskStatusChanged, task.ProjectID, "task", task.ID, actor.UserID, events.EventPayload{
		"from": task.Status,
		"to":   status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// SetIndividualTaskStatus moves a phase-scoped task through its own status
// set. Completion images may be attached alongside the transition.
func (e Engine) SetIndividualTaskStatus(ctx context.Context, actor rbac.AuthContext, taskID, status string, images []string, expectedUpdatedAt string) (domain.IndividualTask, error) {
	status, err := domain.ParseIndividualTaskStatus(status)
	if err != nil {
		return domain.IndividualTask{}, err
	}
	task, err := e.Repo.GetIndividualTask(ctx, taskID)
	if err != nil {
		return domain.IndividualTask{}, err
	}
	allowed := rbac.HasPermission(actor.Role, rbac.PermEditProjects) ||
		task.AssignedTo == actor.UserID || task.CreatedBy == actor.UserID
	if !allowed {
		return domain.IndividualTask{}, rbac.PermissionDeniedError{Role: actor.Role, Permission: rbac.PermEditProjects}
	}
	if expectedUpdatedAt != "" && expectedUpdatedAt != task.UpdatedAt {
		return domain.IndividualTask{}, ConflictError{Entity: "individual task", ID: taskID}
	}
	phase, err := e.Repo.GetPhase(ctx, task.PhaseID)
	if err != nil {
		return domain.IndividualTask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	var completedAt *string
	if status == domain.IndividualStatusCompleted {
		completedAt = task.CompletedAt
		if completedAt == nil {
			completedAt = &now
		}
	}
	if images == nil {
		images = task.Images
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.IndividualTask{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateIndividualTaskStatusTx(ctx, tx, taskID, status, images, completedAt, now); err != nil {
		return domain.IndividualTask{}, fmt.Errorf("update individual task: %w", err)
	}
	if task.CreatedBy != actor.UserID {
		n := domain.Notification{
			ID:        uuid.NewString(),
			UserID:    task.CreatedBy,
			Title:     "Task update",
			Message:   fmt.Sprintf("%q is now %s", task.Title, status),
			Type:      "status",
			ProjectID: &phase.ProjectID,
			TaskID:    &task.ID,
			CreatedAt: now,
		}
		if err := e.Repo.InsertNotificationTx(ctx, tx, n); err != nil {
			return domain.IndividualTask{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeIndividualTaskStatusChanged, phase.ProjectID, "individual_task", task.ID, actor.UserID, events.EventPayload{
		"from": task.Status,
		"to":   status,
	}); err != nil {
		return domain.IndividualTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.IndividualTask{}, err
	}
	return e.Repo.GetIndividualTask(ctx, taskID)
}

// notifyCounterpart notifies the other side of an assignment about a status
// change: the assigner when the assignee acted, the assignee otherwise.
// No notification is written when there is no counterpart.
func (e Engine) notifyCounterpart(ctx context.Context, tx *sql.Tx, actor rbac.AuthContext, assignedTo, assignedBy *string, now string, n domain.Notification) error {
	var target string
	if assignedTo != nil && *assignedTo == actor.UserID {
		if assignedBy != nil {
			target = *assignedBy
		}
	} else if assignedTo != nil {
		target = *assignedTo
	}
	if target == "" || target == actor.UserID {
		return nil
	}
	n.ID = uuid.NewString()
	n.UserID = target
	n.CreatedAt = now
	return e.Repo.InsertNotificationTx(ctx, tx, n)
}
