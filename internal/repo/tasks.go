package repo

import (
	"context"
	"database/sql"

	"kitchenflow/internal/domain"
)

const taskCols = `id,project_id,task_name,description,status,assigned_to,assigned_by,assigned_at,completed_at,created_at,updated_at`

func scanTaskFields(scan func(dest ...any) error) (domain.Task, error) {
	var (
		t          domain.Task
		desc       sql.NullString
		assignedTo sql.NullString
		assignedBy sql.NullString
		assignedAt sql.NullString
		doneAt     sql.NullString
	)
	err := scan(&t.ID, &t.ProjectID, &t.TaskName, &desc, &t.Status,
		&assignedTo, &assignedBy, &assignedAt, &doneAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = desc.String
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if assignedBy.Valid {
		t.AssignedBy = &assignedBy.String
	}
	if assignedAt.Valid {
		t.AssignedAt = &assignedAt.String
	}
	if doneAt.Valid {
		t.CompletedAt = &doneAt.String
	}
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kitchen_project_tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.TaskName, nullable(t.Description), t.Status,
		nullableStringPtr(t.AssignedTo), nullableStringPtr(t.AssignedBy), nullableStringPtr(t.AssignedAt),
		nullableStringPtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM kitchen_project_tasks WHERE id=?`, id)
	return scanTaskFields(row.Scan)
}

func (r Repo) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskCols+` FROM kitchen_project_tasks WHERE project_id=? ORDER BY created_at`, projectID)
}

func (r Repo) ListTasksAssignedTo(ctx context.Context, userID string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskCols+` FROM kitchen_project_tasks WHERE assigned_to=? ORDER BY created_at DESC`, userID)
}

func (r Repo) UpdateTaskAssignmentTx(ctx context.Context, tx *sql.Tx, taskID, assignedTo, assignedBy, assignedAt, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE kitchen_project_tasks SET assigned_to=?, assigned_by=?, assigned_at=?, updated_at=? WHERE id=?`,
		assignedTo, assignedBy, assignedAt, now, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTaskStatusTx(ctx context.Context, tx *sql.Tx, taskID, status string, completedAt *string, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE kitchen_project_tasks SET status=?, completed_at=?, updated_at=? WHERE id=?`,
		status, nullableStringPtr(completedAt), now, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM kitchen_project_tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- individual tasks ---

const individualTaskCols = `id,phase_id,title,notes,status,assigned_to,created_by,images_json,completed_at,created_at,updated_at`

func scanIndividualTaskFields(scan func(dest ...any) error) (domain.IndividualTask, error) {
	var (
		t      domain.IndividualTask
		notes  sql.NullString
		images string
		doneAt sql.NullString
	)
	err := scan(&t.ID, &t.PhaseID, &t.Title, &notes, &t.Status, &t.AssignedTo, &t.CreatedBy,
		&images, &doneAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Notes = notes.String
	t.Images = decodeStringList(images)
	if doneAt.Valid {
		t.CompletedAt = &doneAt.String
	}
	return t, nil
}

func (r Repo) InsertIndividualTaskTx(ctx context.Context, tx *sql.Tx, t domain.IndividualTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO individual_tasks(`+individualTaskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.PhaseID, t.Title, nullable(t.Notes), t.Status, t.AssignedTo, t.CreatedBy,
		encodeStringList(t.Images), nullableStringPtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetIndividualTask(ctx context.Context, id string) (domain.IndividualTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+individualTaskCols+` FROM individual_tasks WHERE id=?`, id)
	return scanIndividualTaskFields(row.Scan)
}

func (r Repo) queryIndividualTasks(ctx context.Context, query string, args ...any) ([]domain.IndividualTask, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IndividualTask
	for rows.Next() {
		t, err := scanIndividualTaskFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListIndividualTasksByPhase(ctx context.Context, phaseID string) ([]domain.IndividualTask, error) {
	return r.queryIndividualTasks(ctx, `SELECT `+individualTaskCols+` FROM individual_tasks WHERE phase_id=? ORDER BY created_at`, phaseID)
}

func (r Repo) ListIndividualTasksAssignedTo(ctx context.Context, userID string) ([]domain.IndividualTask, error) {
	return r.queryIndividualTasks(ctx, `SELECT `+individualTaskCols+` FROM individual_tasks WHERE assigned_to=? ORDER BY created_at DESC`, userID)
}

func (r Repo) UpdateIndividualTaskStatusTx(ctx context.Context, tx *sql.Tx, id, status string, images []string, completedAt *string, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE individual_tasks SET status=?, images_json=?, completed_at=?, updated_at=? WHERE id=?`,
		status, encodeStringList(images), nullableStringPtr(completedAt), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- task updates (append-only) ---

func (r Repo) InsertTaskUpdateTx(ctx context.Context, tx *sql.Tx, u domain.TaskUpdate) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_updates(id,task_id,user_id,message,images_json,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, nullableStringPtr(u.TaskID), u.UserID, u.Message, encodeStringList(u.Images), u.CreatedAt)
	return err
}

func (r Repo) ListTaskUpdates(ctx context.Context, taskID string) ([]domain.TaskUpdate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,user_id,message,images_json,created_at FROM task_updates WHERE task_id=? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskUpdate
	for rows.Next() {
		var (
			u      domain.TaskUpdate
			tid    sql.NullString
			images string
		)
		if err := rows.Scan(&u.ID, &tid, &u.UserID, &u.Message, &images, &u.CreatedAt); err != nil {
			return nil, err
		}
		if tid.Valid {
			u.TaskID = &tid.String
		}
		u.Images = decodeStringList(images)
		res = append(res, u)
	}
	return res, rows.Err()
}
