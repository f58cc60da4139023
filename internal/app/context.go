package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kitchenflow/internal/config"
	"kitchenflow/internal/db"
	"kitchenflow/internal/engine"
	"kitchenflow/internal/migrate"
	"kitchenflow/internal/rbac"
	"kitchenflow/internal/repo"
)

// Context carries the open workspace handles shared by CLI commands.
type Context struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	ActorID   string
}

// Open prepares the workspace: creates the data directory, opens the
// database, applies migrations and loads kitchenflow.yml.
func Open(workspace, actorID string) (*Context, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Engine:    engine.New(conn, cfg),
		ActorID:   actorID,
	}, nil
}

func (a *Context) Close() error {
	return a.DB.Close()
}

// Actor resolves the acting profile for permission checks. The role always
// comes from the database, never from the flag.
func (a *Context) Actor(ctx context.Context) (rbac.AuthContext, error) {
	if a.ActorID == "" {
		return rbac.AuthContext{}, errors.New("actor not set; use --actor or KITCHENFLOW_ACTOR")
	}
	role, err := a.Engine.Repo.GetUserRole(ctx, a.ActorID)
	if errors.Is(err, repo.ErrNotFound) {
		return rbac.AuthContext{}, fmt.Errorf("unknown actor %q", a.ActorID)
	}
	if err != nil {
		return rbac.AuthContext{}, err
	}
	return rbac.AuthContext{UserID: a.ActorID, Role: role}, nil
}

// SeedOwner creates the first owner profile. It refuses to run once any
// profile exists.
func (a *Context) SeedOwner(ctx context.Context, email, fullName, password string) (rbac.AuthContext, error) {
	existing, err := a.Engine.Repo.ListProfiles(ctx)
	if err != nil {
		return rbac.AuthContext{}, err
	}
	if len(existing) > 0 {
		return rbac.AuthContext{}, errors.New("workspace already has profiles; use register instead")
	}
	p, err := a.Engine.Bootstrap(ctx, engine.RegisterUserOptions{
		Email:    email,
		FullName: fullName,
		Password: password,
		Role:     "owner",
	})
	if err != nil {
		return rbac.AuthContext{}, err
	}
	return rbac.AuthContext{UserID: p.ID, Role: p.Role}, nil
}
