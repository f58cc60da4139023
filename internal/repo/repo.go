package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kitchenflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func encodeStringList(in []string) string {
	if in == nil {
		in = []string{}
	}
	b, _ := json.Marshal(in)
	return string(b)
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// --- clients ---

func (r Repo) InsertClientTx(ctx context.Context, tx *sql.Tx, c domain.Client, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kitchen_clients(id,client_code,name,email,phone,address,password_hash,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ClientCode, c.Name, c.Email, c.Phone, c.Address, nullable(passwordHash), c.CreatedAt, c.UpdatedAt)
	return err
}

func scanClient(row *sql.Row) (domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.ClientCode, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

const clientCols = `id,client_code,name,email,phone,address,created_at,updated_at`

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return scanClient(r.DB.QueryRowContext(ctx, `SELECT `+clientCols+` FROM kitchen_clients WHERE id=?`, id))
}

func (r Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientCols+` FROM kitchen_clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.ClientCode, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountClients(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM kitchen_clients`).Scan(&n)
	return n, err
}

// --- projects ---

const projectCols = `id,project_reference,client_id,kitchen_shape,budget_bracket,materials_json,status,current_phase,reference_images_json,existing_kitchen_images_json,intake_pdf_url,created_at,updated_at`

func scanProjectFields(scan func(dest ...any) error) (domain.Project, error) {
	var (
		p           domain.Project
		clientID    sql.NullString
		materials   string
		refImages   string
		existImages string
		pdfURL      sql.NullString
	)
	err := scan(&p.ID, &p.ProjectReference, &clientID, &p.KitchenShape, &p.BudgetBracket,
		&materials, &p.Status, &p.CurrentPhase, &refImages, &existImages, &pdfURL, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.ClientID = clientID.String
	p.Materials = decodeStringList(materials)
	p.ReferenceImages = decodeStringList(refImages)
	p.ExistingImages = decodeStringList(existImages)
	if pdfURL.Valid {
		p.IntakePDFURL = &pdfURL.String
	}
	return p, nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kitchen_projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectReference, nullable(p.ClientID), p.KitchenShape, p.BudgetBracket,
		encodeStringList(p.Materials), p.Status, p.CurrentPhase,
		encodeStringList(p.ReferenceImages), encodeStringList(p.ExistingImages),
		nullableStringPtr(p.IntakePDFURL), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM kitchen_projects WHERE id=?`, id)
	return scanProjectFields(row.Scan)
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return r.queryProjects(ctx, `SELECT `+projectCols+` FROM kitchen_projects ORDER BY created_at DESC`)
}

func (r Repo) ListProjectsByClient(ctx context.Context, clientID string) ([]domain.Project, error) {
	return r.queryProjects(ctx, `SELECT `+projectCols+` FROM kitchen_projects WHERE client_id=? ORDER BY created_at DESC`, clientID)
}

// ListProjectsByClientEmail links a client-role login to its intake record
// through the shared email address.
func (r Repo) ListProjectsByClientEmail(ctx context.Context, email string) ([]domain.Project, error) {
	return r.queryProjects(ctx, `
SELECT `+projectCols+` FROM kitchen_projects
WHERE client_id IN (SELECT id FROM kitchen_clients WHERE email=?)
ORDER BY created_at DESC`, email)
}

// ListProjectsAssignedTo returns projects where the user holds a phase or
// project-task assignment.
func (r Repo) ListProjectsAssignedTo(ctx context.Context, userID string) ([]domain.Project, error) {
	return r.queryProjects(ctx, `
SELECT `+projectCols+` FROM kitchen_projects
WHERE id IN (SELECT project_id FROM kitchen_project_phases WHERE assigned_to=?)
   OR id IN (SELECT project_id FROM kitchen_project_tasks WHERE assigned_to=?)
ORDER BY created_at DESC`, userID, userID)
}

func (r Repo) queryProjects(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, id, status string, currentPhase *int, now string) error {
	var (
		fields []string
		args   []any
	)
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if currentPhase != nil {
		fields = append(fields, "current_phase=?")
		args = append(args, *currentPhase)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE kitchen_projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM kitchen_projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountProjectsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM kitchen_projects GROUP BY status`)
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

// CountProjectReferences reports how many project references exist with the
// given prefix; used to derive the next sequence number.
func (r Repo) CountProjectReferences(ctx context.Context, prefix string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM kitchen_projects WHERE project_reference LIKE ?`, prefix+"%").Scan(&n)
	return n, err
}

// --- phases ---

const phaseCols = `id,project_id,phase_number,phase_name,status,assigned_to,assigned_by,assigned_at,started_at,completed_at,created_at,updated_at`

func scanPhaseFields(scan func(dest ...any) error) (domain.Phase, error) {
	var (
		p          domain.Phase
		assignedTo sql.NullString
		assignedBy sql.NullString
		assignedAt sql.NullString
		startedAt  sql.NullString
		doneAt     sql.NullString
	)
	err := scan(&p.ID, &p.ProjectID, &p.PhaseNumber, &p.PhaseName, &p.Status,
		&assignedTo, &assignedBy, &assignedAt, &startedAt, &doneAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if assignedTo.Valid {
		p.AssignedTo = &assignedTo.String
	}
	if assignedBy.Valid {
		p.AssignedBy = &assignedBy.String
	}
	if assignedAt.Valid {
		p.AssignedAt = &assignedAt.String
	}
	if startedAt.Valid {
		p.StartedAt = &startedAt.String
	}
	if doneAt.Valid {
		p.CompletedAt = &doneAt.String
	}
	return p, nil
}

func (r Repo) InsertPhaseTx(ctx context.Context, tx *sql.Tx, p domain.Phase) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO kitchen_project_phases(`+phaseCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.PhaseNumber, p.PhaseName, p.Status,
		nullableStringPtr(p.AssignedTo), nullableStringPtr(p.AssignedBy), nullableStringPtr(p.AssignedAt),
		nullableStringPtr(p.StartedAt), nullableStringPtr(p.CompletedAt), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPhase(ctx context.Context, id string) (domain.Phase, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+phaseCols+` FROM kitchen_project_phases WHERE id=?`, id)
	return scanPhaseFields(row.Scan)
}

func (r Repo) ListPhases(ctx context.Context, projectID string) ([]domain.Phase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+phaseCols+` FROM kitchen_project_phases WHERE project_id=? ORDER BY phase_number`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Phase
	for rows.Next() {
		p, err := scanPhaseFields(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePhaseAssignmentTx(ctx context.Context, tx *sql.Tx, phaseID, assignedTo, assignedBy, assignedAt, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE kitchen_project_phases SET assigned_to=?, assigned_by=?, assigned_at=?, updated_at=? WHERE id=?`,
		assignedTo, assignedBy, assignedAt, now, phaseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdatePhaseStatusTx(ctx context.Context, tx *sql.Tx, phaseID, status string, startedAt, completedAt *string, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE kitchen_project_phases SET status=?, started_at=?, completed_at=?, updated_at=? WHERE id=?`,
		status, nullableStringPtr(startedAt), nullableStringPtr(completedAt), now, phaseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPhasesByStatus groups phase counts by status; an empty projectID
// counts across the whole workspace.
func (r Repo) CountPhasesByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	query := `SELECT status, count(*) FROM kitchen_project_phases GROUP BY status`
	args := []any{}
	if projectID != "" {
		query = `SELECT status, count(*) FROM kitchen_project_phases WHERE project_id=? GROUP BY status`
		args = append(args, projectID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
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
