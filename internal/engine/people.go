package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kitchenflow/internal/domain"
	"kitchenflow/internal/events"
	"kitchenflow/internal/rbac"
	"kitchenflow/internal/repo"
)

// ErrInvalidCredentials is returned for a bad email or password without
// saying which.
var ErrInvalidCredentials = errors.New("invalid email or password")

// RegisterUserOptions are parameters for creating a login.
type RegisterUserOptions struct {
	Email    string
	FullName string
	Password string
	Role     string
}

func (e Engine) RegisterUser(ctx context.Context, actor rbac.AuthContext, opts RegisterUserOptions) (domain.Profile, error) {
	if err := rbac.Require(actor, rbac.PermRegisterUsers); err != nil {
		return domain.Profile{}, err
	}
	return e.createProfile(ctx, actor.UserID, opts)
}

// Bootstrap creates the first profile without a permission check; callers
// must ensure the profile table is empty.
func (e Engine) Bootstrap(ctx context.Context, opts RegisterUserOptions) (domain.Profile, error) {
	return e.createProfile(ctx, "", opts)
}

func (e Engine) createProfile(ctx context.Context, actorID string, opts RegisterUserOptions) (domain.Profile, error) {
	role, err := domain.ParseRole(opts.Role)
	if err != nil {
		return domain.Profile{}, err
	}
	if opts.Email == "" {
		return domain.Profile{}, errors.New("email is required")
	}
	if opts.Password == "" {
		return domain.Profile{}, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Profile{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Profile{
		ID:        uuid.NewString(),
		Email:     opts.Email,
		FullName:  opts.FullName,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actorID == "" {
		actorID = p.ID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProfileTx(ctx, tx, p, string(hash)); err != nil {
		return domain.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeUserRegistered, "", "profile", p.ID, actorID, events.EventPayload{"role": p.Role}); err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// Login verifies an email/password pair and returns the profile.
func (e Engine) Login(ctx context.Context, email, password string) (domain.Profile, error) {
	p, hash, err := e.Repo.GetCredentials(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Profile{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Profile{}, err
	}
	if hash == "" {
		return domain.Profile{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return domain.Profile{}, ErrInvalidCredentials
	}
	return p, nil
}

func (e Engine) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return e.Repo.GetProfile(ctx, id)
}

func (e Engine) ListProfiles(ctx context.Context, actor rbac.AuthContext) ([]domain.Profile, error) {
	if err := rbac.Require(actor, rbac.PermManageTeam); err != nil {
		return nil, err
	}
	return e.Repo.ListProfiles(ctx)
}

// TeamMemberOptions carries the directory fields kept alongside a profile.
type TeamMemberOptions struct {
	UserID     string
	Department string
	Phone      string
	Status     string
}

func (e Engine) AddTeamMember(ctx context.Context, actor rbac.AuthContext, opts TeamMemberOptions) (domain.TeamMember, error) {
	if err := rbac.Require(actor, rbac.PermManageTeam); err != nil {
		return domain.TeamMember{}, err
	}
	if _, err := e.Repo.GetProfile(ctx, opts.UserID); err != nil {
		return domain.TeamMember{}, err
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	now := e.now().UTC().Format(time.RFC3339)
	m := domain.TeamMember{
		ID:         uuid.NewString(),
		UserID:     opts.UserID,
		Department: opts.Department,
		Phone:      opts.Phone,
		Status:     opts.Status,
		AddedBy:    actor.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TeamMember{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertTeamMemberTx(ctx, tx, m); err != nil {
		return domain.TeamMember{}, fmt.Errorf("upsert team member: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TypeTeamMemberAdded, "", "team_member", m.ID, actor.UserID, events.EventPayload{"user_id": m.UserID}); err != nil {
		return domain.TeamMember{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TeamMember{}, err
	}
	return m, nil
}

func (e Engine) ListTeamMembers(ctx context.Context, actor rbac.AuthContext) ([]domain.TeamMember, error) {
	if err := rbac.Require(actor, rbac.PermManageTeam); err != nil {
		return nil, err
	}
	return e.Repo.ListTeamMembers(ctx)
}
