package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"kitchenflow/internal/config"
	"kitchenflow/internal/db"
	"kitchenflow/internal/domain"
	"kitchenflow/internal/engine"
	"kitchenflow/internal/migrate"
	"kitchenflow/internal/rbac"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Users  map[string]rbac.AuthContext
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	eng.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()
	owner, err := eng.Bootstrap(ctx, engine.RegisterUserOptions{
		Email: "owner@test.local", FullName: "Owner", Password: "pw", Role: "owner",
	})
	if err != nil {
		t.Fatalf("bootstrap owner: %v", err)
	}
	users := map[string]rbac.AuthContext{"owner": {UserID: owner.ID, Role: owner.Role}}
	for _, role := range []string{"manager", "designer", "worker", "sales", "factory"} {
		p, err := eng.RegisterUser(ctx, users["owner"], engine.RegisterUserOptions{
			Email: role + "@test.local", FullName: role, Password: "pw", Role: role,
		})
		if err != nil {
			t.Fatalf("register %s: %v", role, err)
		}
		users[role] = rbac.AuthContext{UserID: p.ID, Role: p.Role}
	}
	return testEnv{Engine: eng, Ctx: ctx, Users: users}
}

func (env testEnv) newProject(t *testing.T) domain.Project {
	t.Helper()
	c, err := env.Engine.CreateClient(env.Ctx, env.Users["owner"], engine.ClientCreateOptions{
		Name: "Asha Rao", Email: "asha@test.local", Phone: "99", Address: "12 Lake Rd",
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	p, err := env.Engine.CreateProject(env.Ctx, env.Users["owner"], engine.ProjectCreateOptions{
		ClientID:      c.ID,
		KitchenShape:  "L-shape",
		BudgetBracket: "3-5 lakhs",
		Materials:     []string{"Plywood"},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestProjectCreatesSixPhases(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	if p.ProjectReference != "KP-2024-0001" {
		t.Fatalf("reference = %s", p.ProjectReference)
	}
	if p.Status != "intake" || p.CurrentPhase != 1 {
		t.Fatalf("status=%s phase=%d", p.Status, p.CurrentPhase)
	}
	phases, err := env.Engine.ListPhases(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list phases: %v", err)
	}
	if len(phases) != len(domain.PhaseNames) {
		t.Fatalf("got %d phases", len(phases))
	}
	for i, ph := range phases {
		if ph.PhaseNumber != i+1 {
			t.Fatalf("phase %d numbered %d", i, ph.PhaseNumber)
		}
		if ph.PhaseName != domain.PhaseNames[i] {
			t.Fatalf("phase %d named %s", i+1, ph.PhaseName)
		}
		if ph.Status != "todo" {
			t.Fatalf("phase %d status %s", i+1, ph.Status)
		}
	}
	p2 := env.newProject(t)
	if p2.ProjectReference != "KP-2024-0002" {
		t.Fatalf("second reference = %s", p2.ProjectReference)
	}
}

func TestAssignPhaseRejectsIneligibleRole(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	_, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID:    phases[0].ID,
		AssigneeID: env.Users["sales"].UserID,
	})
	var ineligible engine.IneligibleAssigneeError
	if !errors.As(err, &ineligible) {
		t.Fatalf("expected ineligible assignee error, got %v", err)
	}
	// nothing written
	ph, _ := env.Engine.Repo.GetPhase(env.Ctx, phases[0].ID)
	if ph.AssignedTo != nil {
		t.Fatalf("phase got assigned anyway")
	}
	recs, _ := env.Engine.ListPhaseAssignments(env.Ctx, phases[0].ID)
	if len(recs) != 0 {
		t.Fatalf("audit rows written: %d", len(recs))
	}
	notes, _ := env.Engine.ListNotifications(env.Ctx, env.Users["sales"], false)
	if len(notes) != 0 {
		t.Fatalf("notification written: %d", len(notes))
	}
}

func TestAssignPhaseRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	_, err := env.Engine.AssignPhase(env.Ctx, env.Users["worker"], engine.AssignPhaseOptions{
		PhaseID:    phases[0].ID,
		AssigneeID: env.Users["designer"].UserID,
	})
	var denied rbac.PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected permission denial, got %v", err)
	}
}

func TestReassignKeepsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	phaseID := phases[0].ID
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phaseID, AssigneeID: env.Users["designer"].UserID,
	}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phaseID, AssigneeID: env.Users["worker"].UserID,
	}); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	ph, _ := env.Engine.Repo.GetPhase(env.Ctx, phaseID)
	if ph.AssignedTo == nil || *ph.AssignedTo != env.Users["worker"].UserID {
		t.Fatalf("current assignee not the worker")
	}
	recs, _ := env.Engine.ListPhaseAssignments(env.Ctx, phaseID)
	if len(recs) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(recs))
	}
	if recs[0].AssignedTo != env.Users["designer"].UserID || recs[1].AssignedTo != env.Users["worker"].UserID {
		t.Fatalf("audit order wrong")
	}
}

func TestStaleAssignmentConflicts(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	stale := phases[0].UpdatedAt
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phases[0].ID, AssigneeID: env.Users["designer"].UserID, ExpectedUpdatedAt: stale,
	}); err != nil {
		t.Fatalf("first assign with fresh timestamp: %v", err)
	}
	_, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phases[0].ID, AssigneeID: env.Users["worker"].UserID, ExpectedUpdatedAt: stale,
	})
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	ph, _ := env.Engine.Repo.GetPhase(env.Ctx, phases[0].ID)
	if *ph.AssignedTo != env.Users["designer"].UserID {
		t.Fatalf("conflicting write went through")
	}
}

func TestPhaseStatusTimestamps(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	phaseID := phases[0].ID
	actor := env.Users["manager"]

	ph, err := env.Engine.SetPhaseStatus(env.Ctx, actor, phaseID, "in_progress", "")
	if err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	if ph.StartedAt == nil {
		t.Fatalf("started_at not stamped")
	}
	started := *ph.StartedAt

	ph, err = env.Engine.SetPhaseStatus(env.Ctx, actor, phaseID, "done", "")
	if err != nil {
		t.Fatalf("to done: %v", err)
	}
	if ph.CompletedAt == nil {
		t.Fatalf("completed_at not stamped")
	}

	// reopening clears the completion stamp but keeps the start stamp
	ph, err = env.Engine.SetPhaseStatus(env.Ctx, actor, phaseID, "in_progress", "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if ph.CompletedAt != nil {
		t.Fatalf("completed_at survived reopen")
	}
	if ph.StartedAt == nil || *ph.StartedAt != started {
		t.Fatalf("started_at changed on reopen")
	}
}

func TestStatusGuard(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	phaseID := phases[0].ID
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phaseID, AssigneeID: env.Users["worker"].UserID,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// the assignee may move their own phase
	if _, err := env.Engine.SetPhaseStatus(env.Ctx, env.Users["worker"], phaseID, "in_progress", ""); err != nil {
		t.Fatalf("assignee status change: %v", err)
	}
	// an unrelated non-editor may not
	_, err := env.Engine.SetPhaseStatus(env.Ctx, env.Users["factory"], phaseID, "done", "")
	var denied rbac.PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial for bystander, got %v", err)
	}
}

func TestAssignmentNotifiesAssignee(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phases[0].ID, AssigneeID: env.Users["worker"].UserID,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	worker := env.Users["worker"]
	notes, err := env.Engine.ListNotifications(env.Ctx, worker, true)
	if err != nil || len(notes) != 1 {
		t.Fatalf("unread = %d (%v)", len(notes), err)
	}
	// only the owner of a notification may mark it read
	if err := env.Engine.MarkNotificationRead(env.Ctx, env.Users["manager"], notes[0].ID); err == nil {
		t.Fatalf("expected ownership error")
	}
	if err := env.Engine.MarkNotificationRead(env.Ctx, worker, notes[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	n, _ := env.Engine.UnreadNotificationCount(env.Ctx, worker)
	if n != 0 {
		t.Fatalf("unread count = %d", n)
	}
}

func TestChatFanout(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phases[0].ID, AssigneeID: env.Users["worker"].UserID,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := env.Engine.PostChatMessage(env.Ctx, env.Users["manager"], p.ID, "kickoff"); err != nil {
		t.Fatalf("post: %v", err)
	}
	// the assignee is a participant and hears about the manager's message
	notes, _ := env.Engine.ListNotifications(env.Ctx, env.Users["worker"], false)
	chat := 0
	for _, n := range notes {
		if n.Type == "chat" {
			chat++
		}
	}
	if chat != 1 {
		t.Fatalf("worker chat notifications = %d", chat)
	}
	// replying notifies prior senders, not the author
	if _, err := env.Engine.PostChatMessage(env.Ctx, env.Users["worker"], p.ID, "on it"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	mNotes, _ := env.Engine.ListNotifications(env.Ctx, env.Users["manager"], false)
	chat = 0
	for _, n := range mNotes {
		if n.Type == "chat" {
			chat++
		}
	}
	if chat != 1 {
		t.Fatalf("manager chat notifications = %d", chat)
	}
	msgs, _ := env.Engine.ListChatMessages(env.Ctx, p.ID)
	if len(msgs) != 2 || msgs[0].Message != "kickoff" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestIndividualTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	task, err := env.Engine.CreateIndividualTask(env.Ctx, env.Users["manager"], engine.IndividualTaskCreateOptions{
		PhaseID:    phases[0].ID,
		Title:      "measure countertop",
		AssignedTo: env.Users["worker"].UserID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	task, err = env.Engine.SetIndividualTaskStatus(env.Ctx, env.Users["worker"], task.ID, "completed", []string{"https://img/1.jpg"}, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if task.CompletedAt == nil || len(task.Images) != 1 {
		t.Fatalf("completion not recorded: %+v", task)
	}
	// the creator hears about the assignee's progress
	notes, _ := env.Engine.ListNotifications(env.Ctx, env.Users["manager"], false)
	found := false
	for _, n := range notes {
		if n.Type == "status" {
			found = true
		}
	}
	if !found {
		t.Fatalf("creator not notified")
	}
}

func TestProjectVisibility(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.newProject(t)

	all, err := env.Engine.ListProjectsFor(env.Ctx, env.Users["sales"])
	if err != nil || len(all) != 2 {
		t.Fatalf("sales sees %d (%v)", len(all), err)
	}
	mine, err := env.Engine.ListProjectsFor(env.Ctx, env.Users["worker"])
	if err != nil || len(mine) != 0 {
		t.Fatalf("unassigned worker sees %d (%v)", len(mine), err)
	}
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phases[0].ID, AssigneeID: env.Users["worker"].UserID,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	mine, _ = env.Engine.ListProjectsFor(env.Ctx, env.Users["worker"])
	if len(mine) != 1 || mine[0].ID != p.ID {
		t.Fatalf("assigned worker sees %d", len(mine))
	}
}

func TestReportProgress(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	for _, ph := range phases[:3] {
		if _, err := env.Engine.SetPhaseStatus(env.Ctx, env.Users["manager"], ph.ID, "done", ""); err != nil {
			t.Fatalf("complete phase: %v", err)
		}
	}
	r, err := env.Engine.Report(env.Ctx, env.Users["owner"], p.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r.PhasesDone != 3 || r.PhasesTotal != 6 || r.ProgressPercent != 50 {
		t.Fatalf("report = %+v", r)
	}
	// viewing reports is permission gated
	if _, err := env.Engine.Report(env.Ctx, env.Users["worker"], p.ID); err == nil {
		t.Fatalf("worker read a report")
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.Login(env.Ctx, "worker@test.local", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if p.Role != "worker" {
		t.Fatalf("role = %s", p.Role)
	}
	if _, err := env.Engine.Login(env.Ctx, "worker@test.local", "wrong"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.Engine.Login(env.Ctx, "ghost@test.local", "pw"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestEventFeedOrdering(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	phases, _ := env.Engine.ListPhases(env.Ctx, p.ID)
	if _, err := env.Engine.AssignPhase(env.Ctx, env.Users["manager"], engine.AssignPhaseOptions{
		PhaseID: phases[0].ID, AssigneeID: env.Users["worker"].UserID,
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	evts, err := env.Engine.EventsAfter(env.Ctx, 0, 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) == 0 {
		t.Fatalf("no events")
	}
	var lastID int64
	for _, e := range evts {
		if e.ID <= lastID {
			t.Fatalf("feed not monotonic")
		}
		lastID = e.ID
	}
	if evts[len(evts)-1].Type != "phase.assigned" {
		t.Fatalf("last event = %s", evts[len(evts)-1].Type)
	}
}
