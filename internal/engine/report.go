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

// ProjectReport summarizes one project's phase progress and task counts.
type ProjectReport struct {
	ProjectID        string         `json:"project_id"`
	ProjectReference string         `json:"project_reference"`
	Status           string         `json:"status"`
	CurrentPhase     int            `json:"current_phase"`
	PhasesDone       int            `json:"phases_done"`
	PhasesTotal      int            `json:"phases_total"`
	ProgressPercent  int            `json:"progress_percent"`
	TaskCounts       map[string]int `json:"task_counts"`
}

func (e Engine) Report(ctx context.Context, actor rbac.AuthContext, projectID string) (ProjectReport, error) {
	if err := rbac.Require(actor, rbac.PermViewReports); err != nil {
		return ProjectReport{}, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return ProjectReport{}, err
	}
	phases, err := e.Repo.ListPhases(ctx, projectID)
	if err != nil {
		return ProjectReport{}, err
	}
	taskCounts, err := e.Repo.CountTasksByStatus(ctx, projectID)
	if err != nil {
		return ProjectReport{}, err
	}
	done := 0
	for _, ph := range phases {
		if ph.Status == domain.StatusDone {
			done++
		}
	}
	r := ProjectReport{
		ProjectID:        p.ID,
		ProjectReference: p.ProjectReference,
		Status:           p.Status,
		CurrentPhase:     p.CurrentPhase,
		PhasesDone:       done,
		PhasesTotal:      len(phases),
		TaskCounts:       taskCounts,
	}
	if len(phases) > 0 {
		r.ProgressPercent = done * 100 / len(phases)
	}
	return r, nil
}

// Summary aggregates project and phase status counts across the workspace.
type Summary struct {
	Projects map[string]int `json:"projects_by_status"`
	Phases   map[string]int `json:"phases_by_status"`
	Clients  int            `json:"clients"`
}

func (e Engine) Summarize(ctx context.Context, actor rbac.AuthContext) (Summary, error) {
	if err := rbac.Require(actor, rbac.PermViewReports); err != nil {
		return Summary{}, err
	}
	projects, err := e.Repo.CountProjectsByStatus(ctx)
	if err != nil {
		return Summary{}, err
	}
	phases, err := e.Repo.CountPhasesByStatus(ctx, "")
	if err != nil {
		return Summary{}, err
	}
	clients, err := e.Repo.CountClients(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Projects: projects, Phases: phases, Clients: clients}, nil
}

// FileRegisterOptions describe an object already uploaded to a bucket.
type FileRegisterOptions struct {
	ProjectID string
	TaskID    string
	FileName  string
	FileType  string
	FileSize  int64
	FileURL   string
}

// RegisterProjectFile records an uploaded object's metadata; the binary
// lives in external storage and only the URL is kept.
func (e Engine) RegisterProjectFile(ctx context.Context, actor rbac.AuthContext, opts FileRegisterOptions) (domain.ProjectFile, error) {
	if opts.FileName == "" || opts.FileURL == "" {
		return domain.ProjectFile{}, errors.New("file name and url are required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.ProjectFile{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	f := domain.ProjectFile{
		ID:         uuid.NewString(),
		ProjectID:  opts.ProjectID,
		FileName:   opts.FileName,
		FileType:   opts.FileType,
		FileURL:    opts.FileURL,
		UploadedBy: actor.UserID,
		CreatedAt:  now,
	}
	if opts.TaskID != "" {
		f.TaskID = &opts.TaskID
	}
	if opts.FileSize > 0 {
		f.FileSize = &opts.FileSize
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectFile{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertFileTx(ctx, tx, f); err != nil {
		return domain.ProjectFile{}, fmt.Errorf("insert file: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeFileRegistered, f.ProjectID, "file", f.ID, actor.UserID, events.EventPayload{"file_name": f.FileName}); err != nil {
		return domain.ProjectFile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectFile{}, err
	}
	return f, nil
}

func (e Engine) ListProjectFiles(ctx context.Context, projectID string) ([]domain.ProjectFile, error) {
	return e.Repo.ListProjectFiles(ctx, projectID)
}

func (e Engine) LatestEvents(ctx context.Context, limit int, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, projectID)
}

func (e Engine) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return e.Repo.EventsAfter(ctx, cursor, limit)
}
