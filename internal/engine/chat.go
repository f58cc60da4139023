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
)

// PostChatMessage inserts the message and fans out notification rows to
// every other project participant in the same transaction.
func (e Engine) PostChatMessage(ctx context.Context, actor rbac.AuthContext, projectID, message string) (domain.ChatMessage, error) {
	if message == "" {
		return domain.ChatMessage{}, errors.New("message is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.ChatMessage{}, err
	}
	participants, err := e.Repo.ListChatParticipants(ctx, projectID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	sender, err := e.Repo.GetProfile(ctx, actor.UserID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.ChatMessage{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		SenderID:  actor.UserID,
		Message:   message,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertChatMessageTx(ctx, tx, m); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	senderName := sender.FullName
	if senderName == "" {
		senderName = sender.Email
	}
	for _, userID := range participants {
		if userID == actor.UserID {
			continue
		}
		n := domain.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			Title:     "New message",
			Message:   fmt.Sprintf("%s posted in the project chat", senderName),
			Type:      "chat",
			ProjectID: &projectID,
			CreatedAt: now,
		}
		if err := e.Repo.InsertNotificationTx(ctx, tx, n); err != nil {
			return domain.ChatMessage{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeChatMessagePosted, projectID, "chat_message", m.ID, actor.UserID, nil); err != nil {
		return domain.ChatMessage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChatMessage{}, err
	}
	m.SenderName = senderName
	return m, nil
}

func (e Engine) ListChatMessages(ctx context.Context, projectID string) ([]domain.ChatMessage, error) {
	return e.Repo.ListChatMessages(ctx, projectID)
}

// --- notifications ---

func (e Engine) ListNotifications(ctx context.Context, actor rbac.AuthContext, unreadOnly bool) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, actor.UserID, unreadOnly)
}

func (e Engine) UnreadNotificationCount(ctx context.Context, actor rbac.AuthContext) (int, error) {
	return e.Repo.CountUnreadNotifications(ctx, actor.UserID)
}

// NotOwnerError indicates an attempt to act on another user's notification.
type NotOwnerError struct {
	NotificationID string
}

func (e NotOwnerError) Error() string {
	return fmt.Sprintf("notification %s belongs to another user", e.NotificationID)
}

func (e Engine) MarkNotificationRead(ctx context.Context, actor rbac.AuthContext, id string) error {
	n, err := e.Repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != actor.UserID {
		return NotOwnerError{NotificationID: id}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.MarkNotificationReadTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) MarkAllNotificationsRead(ctx context.Context, actor rbac.AuthContext) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := e.Repo.MarkAllNotificationsReadTx(ctx, tx, actor.UserID)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// --- project tasks and individual tasks ---

// TaskCreateOptions are parameters for a project-level task.
type TaskCreateOptions struct {
	ProjectID   string
	TaskName    string
	Description string
}

func (e Engine) CreateTask(ctx context.Context, actor rbac.AuthContext, opts TaskCreateOptions) (domain.Task, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermAssignTasks) && !rbac.HasPermission(actor.Role, rbac.PermEditProjects) {
		return domain.Task{}, rbac.PermissionDeniedError{Role: actor.Role, Permission: rbac.PermAssignTasks}
	}
	if opts.TaskName == "" {
		return domain.Task{}, errors.New("task name is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		TaskName:    opts.TaskName,
		Description: opts.Description,
		Status:      domain.StatusTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskCreated, t.ProjectID, "task", t.ID, actor.UserID, events.EventPayload{"task_name": t.TaskName}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, projectID)
}

func (e Engine) ListMyTasks(ctx context.Context, actor rbac.AuthContext) ([]domain.Task, error) {
	return e.Repo.ListTasksAssignedTo(ctx, actor.UserID)
}

// IndividualTaskCreateOptions are parameters for a phase-scoped personal
// task.
type IndividualTaskCreateOptions struct {
	PhaseID    string
	Title      string
	Notes      string
	AssignedTo string
	Images     []string
}

// CreateIndividualTask lets any team member file a task for themselves;
// targeting someone else requires canAssignTasks and an eligible assignee.
func (e Engine) CreateIndividualTask(ctx context.Context, actor rbac.AuthContext, opts IndividualTaskCreateOptions) (domain.IndividualTask, error) {
	if opts.Title == "" {
		return domain.IndividualTask{}, errors.New("title is required")
	}
	if opts.AssignedTo == "" {
		opts.AssignedTo = actor.UserID
	}
	if opts.AssignedTo != actor.UserID {
		if err := rbac.Require(actor, rbac.PermAssignTasks); err != nil {
			return domain.IndividualTask{}, err
		}
		if err := e.checkAssignee(ctx, opts.AssignedTo); err != nil {
			return domain.IndividualTask{}, err
		}
	}
	phase, err := e.Repo.GetPhase(ctx, opts.PhaseID)
	if err != nil {
		return domain.IndividualTask{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.IndividualTask{
		ID:         uuid.NewString(),
		PhaseID:    phase.ID,
		Title:      opts.Title,
		Notes:      opts.Notes,
		Status:     domain.IndividualStatusTodo,
		AssignedTo: opts.AssignedTo,
		CreatedBy:  actor.UserID,
		Images:     opts.Images,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.IndividualTask{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertIndividualTaskTx(ctx, tx, t); err != nil {
		return domain.IndividualTask{}, fmt.Errorf("insert individual task: %w", err)
	}
	if t.AssignedTo != actor.UserID {
		n := domain.Notification{
			ID:        uuid.NewString(),
			UserID:    t.AssignedTo,
			Title:     "New task",
			Message:   fmt.Sprintf("You have a new task: %s", t.Title),
			Type:      "assignment",
			ProjectID: &phase.ProjectID,
			TaskID:    &t.ID,
			CreatedAt: now,
		}
		if err := e.Repo.InsertNotificationTx(ctx, tx, n); err != nil {
			return domain.IndividualTask{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeIndividualTaskCreated, phase.ProjectID, "individual_task", t.ID, actor.UserID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.IndividualTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.IndividualTask{}, err
	}
	return t, nil
}

func (e Engine) ListIndividualTasksByPhase(ctx context.Context, phaseID string) ([]domain.IndividualTask, error) {
	return e.Repo.ListIndividualTasksByPhase(ctx, phaseID)
}

func (e Engine) ListMyIndividualTasks(ctx context.Context, actor rbac.AuthContext) ([]domain.IndividualTask, error) {
	return e.Repo.ListIndividualTasksAssignedTo(ctx, actor.UserID)
}

// AddTaskUpdate appends a progress note, optionally with ordered image
// URLs, to a project task's thread.
func (e Engine) AddTaskUpdate(ctx context.Context, actor rbac.AuthContext, taskID, message string, images []string) (domain.TaskUpdate, error) {
	if message == "" {
		return domain.TaskUpdate{}, errors.New("message is required")
	}
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskUpdate{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	u := domain.TaskUpdate{
		ID:        uuid.NewString(),
		TaskID:    &task.ID,
		UserID:    actor.UserID,
		Message:   message,
		Images:    images,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskUpdate{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTaskUpdateTx(ctx, tx, u); err != nil {
		return domain.TaskUpdate{}, fmt.Errorf("insert task update: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeTaskUpdatePosted, task.ProjectID, "task_update", u.ID, actor.UserID, nil); err != nil {
		return domain.TaskUpdate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskUpdate{}, err
	}
	return u, nil
}

func (e Engine) ListTaskUpdates(ctx context.Context, taskID string) ([]domain.TaskUpdate, error) {
	return e.Repo.ListTaskUpdates(ctx, taskID)
}
