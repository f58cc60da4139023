package repo

import (
	"context"
	"database/sql"

	"kitchenflow/internal/domain"
)

const assignmentCols = `id,project_id,phase_id,task_id,assigned_to,assigned_by,assigned_at,notes,created_at`

func scanAssignmentFields(scan func(dest ...any) error) (domain.AssignmentRecord, error) {
	var (
		a       domain.AssignmentRecord
		phaseID sql.NullString
		taskID  sql.NullString
		notes   sql.NullString
	)
	err := scan(&a.ID, &a.ProjectID, &phaseID, &taskID, &a.AssignedTo, &a.AssignedBy, &a.AssignedAt, &notes, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.PhaseID = phaseID.String
	a.TaskID = taskID.String
	a.Notes = notes.String
	return a, nil
}

func (r Repo) InsertAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.AssignmentRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kitchen_project_assignments(`+assignmentCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, nullable(a.PhaseID), nullable(a.TaskID), a.AssignedTo, a.AssignedBy, a.AssignedAt, nullable(a.Notes), a.CreatedAt)
	return err
}

func (r Repo) ListAssignmentsByPhase(ctx context.Context, phaseID string) ([]domain.AssignmentRecord, error) {
	return r.queryAssignments(ctx, `SELECT `+assignmentCols+` FROM kitchen_project_assignments WHERE phase_id=? ORDER BY assigned_at, id`, phaseID)
}

func (r Repo) ListAssignmentsByProject(ctx context.Context, projectID string) ([]domain.AssignmentRecord, error) {
	return r.queryAssignments(ctx, `SELECT `+assignmentCols+` FROM kitchen_project_assignments WHERE project_id=? ORDER BY assigned_at, id`, projectID)
}

func (r Repo) queryAssignments(ctx context.Context, query string, args ...any) ([]domain.AssignmentRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AssignmentRecord
	for rows.Next() {
		a, err := scanAssignmentFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- project files ---

const fileCols = `id,project_id,task_id,file_name,file_type,file_size,file_url,uploaded_by,created_at`

func (r Repo) InsertFileTx(ctx context.Context, tx *sql.Tx, f domain.ProjectFile) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kitchen_project_files(`+fileCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		f.ID, f.ProjectID, nullableStringPtr(f.TaskID), f.FileName, f.FileType, f.FileSize, f.FileURL, f.UploadedBy, f.CreatedAt)
	return err
}

func (r Repo) ListProjectFiles(ctx context.Context, projectID string) ([]domain.ProjectFile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+fileCols+` FROM kitchen_project_files WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectFile
	for rows.Next() {
		var (
			f      domain.ProjectFile
			taskID sql.NullString
			size   sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.ProjectID, &taskID, &f.FileName, &f.FileType, &size, &f.FileURL, &f.UploadedBy, &f.CreatedAt); err != nil {
			return nil, err
		}
		if taskID.Valid {
			f.TaskID = &taskID.String
		}
		if size.Valid {
			f.FileSize = &size.Int64
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// --- event feed ---

const eventCols = `id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json`

func scanEventFields(scan func(dest ...any) error) (domain.Event, error) {
	var (
		e         domain.Event
		projectID sql.NullString
		entityID  sql.NullString
	)
	err := scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &e.Payload)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.ProjectID = projectID.String
	e.EntityID = entityID.String
	return e, nil
}

// LatestEvents returns the newest events first, optionally scoped to a project.
func (r Repo) LatestEvents(ctx context.Context, limit int, projectID string) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE id > ? ORDER BY id LIMIT ?`, cursor, limit)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	return id.Int64, err
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEventFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
