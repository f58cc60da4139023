package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kitchenflow/internal/config"
	"kitchenflow/internal/domain"
	"kitchenflow/internal/events"
	"kitchenflow/internal/rbac"
	"kitchenflow/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ConflictError indicates the caller's view of a row was stale.
type ConflictError struct {
	Entity string
	ID     string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Entity, e.ID)
}

// IneligibleAssigneeError indicates the target user's role cannot hold
// phase or task assignments.
type IneligibleAssigneeError struct {
	UserID string
	Role   string
}

func (e IneligibleAssigneeError) Error() string {
	return fmt.Sprintf("user %s has role %s, which cannot be assigned work", e.UserID, e.Role)
}

// ClientCreateOptions are parameters for registering a client record.
type ClientCreateOptions struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	Password string
}

func (e Engine) CreateClient(ctx context.Context, actor rbac.AuthContext, opts ClientCreateOptions) (domain.Client, error) {
	if err := rbac.Require(actor, rbac.PermManageClients); err != nil {
		return domain.Client{}, err
	}
	if opts.Name == "" {
		return domain.Client{}, errors.New("name is required")
	}
	if opts.Email == "" {
		return domain.Client{}, errors.New("email is required")
	}
	passwordHash := ""
	if opts.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Client{}, err
		}
		passwordHash = string(h)
	}
	n, err := e.Repo.CountClients(ctx)
	if err != nil {
		return domain.Client{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Client{
		ID:         uuid.NewString(),
		ClientCode: fmt.Sprintf("CL-%04d", n+1),
		Name:       opts.Name,
		Email:      opts.Email,
		Phone:      opts.Phone,
		Address:    opts.Address,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertClientTx(ctx, tx, c, passwordHash); err != nil {
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeClientCreated, "", "client", c.ID, actor.UserID, events.EventPayload{"client_code": c.ClientCode}); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (e Engine) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return e.Repo.GetClient(ctx, id)
}

func (e Engine) ListClients(ctx context.Context, actor rbac.AuthContext) ([]domain.Client, error) {
	if err := rbac.Require(actor, rbac.PermManageClients); err != nil {
		return nil, err
	}
	return e.Repo.ListClients(ctx)
}

func (e Engine) ListClientProjects(ctx context.Context, clientID string) ([]domain.Project, error) {
	if _, err := e.Repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return e.Repo.ListProjectsByClient(ctx, clientID)
}

// ProjectCreateOptions are parameters for opening a kitchen project.
type ProjectCreateOptions struct {
	ClientID        string
	KitchenShape    string
	BudgetBracket   string
	Materials       []string
	ReferenceImages []string
	ExistingImages  []string
	IntakePDFURL    string
}

// CreateProject opens a project with its full six-phase plan in one
// transaction. The project reference is derived from the creation year and
// a per-year sequence.
func (e Engine) CreateProject(ctx context.Context, actor rbac.AuthContext, opts ProjectCreateOptions) (domain.Project, error) {
	if err := rbac.Require(actor, rbac.PermCreateProjects); err != nil {
		return domain.Project{}, err
	}
	shape, err := domain.ParseKitchenShape(opts.KitchenShape)
	if err != nil {
		return domain.Project{}, err
	}
	bracket, err := domain.ParseBudgetBracket(opts.BudgetBracket)
	if err != nil {
		return domain.Project{}, err
	}
	materials, err := domain.ParseMaterials(opts.Materials)
	if err != nil {
		return domain.Project{}, err
	}
	if _, err := e.Repo.GetClient(ctx, opts.ClientID); err != nil {
		return domain.Project{}, err
	}
	ts := e.now().UTC()
	now := ts.Format(time.RFC3339)
	prefix := fmt.Sprintf("KP-%d-", ts.Year())
	seq, err := e.Repo.CountProjectReferences(ctx, prefix)
	if err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:               uuid.NewString(),
		ProjectReference: fmt.Sprintf("%s%04d", prefix, seq+1),
		ClientID:         opts.ClientID,
		KitchenShape:     shape,
		BudgetBracket:    bracket,
		Materials:        materials,
		Status:           "intake",
		CurrentPhase:     1,
		ReferenceImages:  opts.ReferenceImages,
		ExistingImages:   opts.ExistingImages,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if opts.IntakePDFURL != "" {
		p.IntakePDFURL = &opts.IntakePDFURL
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for i, name := range domain.PhaseNames {
		ph := domain.Phase{
			ID:          uuid.NewString(),
			ProjectID:   p.ID,
			PhaseNumber: i + 1,
			PhaseName:   name,
			Status:      domain.StatusTodo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertPhaseTx(ctx, tx, ph); err != nil {
			return domain.Project{}, fmt.Errorf("insert phase %d: %w", i+1, err)
		}
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectCreated, p.ID, "project", p.ID, actor.UserID, events.EventPayload{
		"project_reference": p.ProjectReference,
		"client_id":         p.ClientID,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ProjectUpdateOptions carries the mutable project fields. Empty or nil
// fields are left untouched.
type ProjectUpdateOptions struct {
	Status            string
	CurrentPhase      *int
	ExpectedUpdatedAt string
}

func (e Engine) UpdateProject(ctx context.Context, actor rbac.AuthContext, projectID string, opts ProjectUpdateOptions) (domain.Project, error) {
	if err := rbac.Require(actor, rbac.PermEditProjects); err != nil {
		return domain.Project{}, err
	}
	if opts.Status != "" {
		if _, err := domain.ParseProjectStatus(opts.Status); err != nil {
			return domain.Project{}, err
		}
	}
	if opts.CurrentPhase != nil && (*opts.CurrentPhase < 1 || *opts.CurrentPhase > len(domain.PhaseNames)) {
		return domain.Project{}, fmt.Errorf("current phase %d out of range", *opts.CurrentPhase)
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if opts.ExpectedUpdatedAt != "" && opts.ExpectedUpdatedAt != p.UpdatedAt {
		return domain.Project{}, ConflictError{Entity: "project", ID: projectID}
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProjectTx(ctx, tx, projectID, opts.Status, opts.CurrentPhase, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectUpdated, projectID, "project", projectID, actor.UserID, events.EventPayload{
		"status":        opts.Status,
		"current_phase": opts.CurrentPhase,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) DeleteProject(ctx context.Context, actor rbac.AuthContext, projectID string) error {
	if err := rbac.Require(actor, rbac.PermDeleteProjects); err != nil {
		return err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProjectTx(ctx, tx, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TypeProjectDeleted, projectID, "project", projectID, actor.UserID, events.EventPayload{
		"project_reference": p.ProjectReference,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

// ListProjectsFor applies the visibility rule: viewers with
// canViewAllProjects see everything, clients see their own intake's
// projects, and everyone else sees what they are assigned to.
func (e Engine) ListProjectsFor(ctx context.Context, actor rbac.AuthContext) ([]domain.Project, error) {
	if rbac.HasPermission(actor.Role, rbac.PermViewAllProjects) {
		return e.Repo.ListProjects(ctx)
	}
	if actor.Role == domain.RoleClient {
		p, err := e.Repo.GetProfile(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		return e.Repo.ListProjectsByClientEmail(ctx, p.Email)
	}
	return e.Repo.ListProjectsAssignedTo(ctx, actor.UserID)
}

func (e Engine) ListPhases(ctx context.Context, projectID string) ([]domain.Phase, error) {
	return e.Repo.ListPhases(ctx, projectID)
}

func (e Engine) GetUserRole(ctx context.Context, userID string) (string, error) {
	return e.Repo.GetUserRole(ctx, userID)
}
