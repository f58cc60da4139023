package rbac_test

import (
	"testing"

	"kitchenflow/internal/rbac"
)

func TestPermissionMatrix(t *testing.T) {
	cases := []struct {
		role       string
		permission string
		want       bool
	}{
		{"owner", rbac.PermDeleteProjects, true},
		{"owner", rbac.PermRegisterUsers, true},
		{"manager", rbac.PermManageTeam, true},
		{"manager", rbac.PermDeleteProjects, false},
		{"designer", rbac.PermEditProjects, true},
		{"designer", rbac.PermCreateProjects, true},
		{"sales", rbac.PermCreateProjects, true},
		{"sales", rbac.PermManageClients, true},
		{"sales", rbac.PermEditProjects, false},
		{"sales", rbac.PermAssignTasks, false},
		{"factory", rbac.PermViewAllProjects, false},
		{"installer", rbac.PermEditProjects, false},
		{"worker", rbac.PermViewReports, false},
		{"client", rbac.PermCreateProjects, false},
	}
	for _, c := range cases {
		if got := rbac.HasPermission(c.role, c.permission); got != c.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", c.role, c.permission, got, c.want)
		}
	}
}

func TestUnknownRoleHasNothing(t *testing.T) {
	if rbac.HasPermission("intern", rbac.PermCreateProjects) {
		t.Fatalf("unknown role granted a permission")
	}
	if rbac.HasPermission("", rbac.PermViewAllProjects) {
		t.Fatalf("empty role granted a permission")
	}
	if rbac.HasPermission("owner", "canDoAnything") {
		t.Fatalf("unknown permission granted")
	}
	if got := rbac.NavigationFor("intern"); len(got) != 0 {
		t.Fatalf("unknown role got navigation: %d items", len(got))
	}
	if rbac.CanAccessRoute("intern", "/dashboard") {
		t.Fatalf("unknown role allowed on a registered route")
	}
}

func TestRequire(t *testing.T) {
	actor := rbac.AuthContext{UserID: "u1", Role: "worker"}
	if err := rbac.Require(actor, rbac.PermAssignTasks); err == nil {
		t.Fatalf("expected denial")
	}
	denied, ok := rbac.Require(actor, rbac.PermAssignTasks).(rbac.PermissionDeniedError)
	if !ok || denied.Role != "worker" || denied.Permission != rbac.PermAssignTasks {
		t.Fatalf("error = %+v", denied)
	}
	if err := rbac.Require(rbac.AuthContext{UserID: "u2", Role: "manager"}, rbac.PermAssignTasks); err != nil {
		t.Fatalf("manager denied: %v", err)
	}
}

func TestEligibleAssignee(t *testing.T) {
	for _, role := range []string{"designer", "worker", "factory", "installer", "manager"} {
		if !rbac.EligibleAssignee(role) {
			t.Errorf("%s should be assignable", role)
		}
	}
	for _, role := range []string{"owner", "sales", "client", "", "intern"} {
		if rbac.EligibleAssignee(role) {
			t.Errorf("%s should not be assignable", role)
		}
	}
}

func TestNavigationVisibility(t *testing.T) {
	owner := rbac.NavigationFor("owner")
	worker := rbac.NavigationFor("worker")
	if len(owner) <= len(worker) {
		t.Fatalf("owner nav (%d) not larger than worker nav (%d)", len(owner), len(worker))
	}
	hasPath := func(items []rbac.NavItem, path string) bool {
		for _, it := range items {
			if it.Path == path {
				return true
			}
		}
		return false
	}
	if !hasPath(owner, "/admin/register") {
		t.Fatalf("owner missing register entry")
	}
	if hasPath(worker, "/admin/register") {
		t.Fatalf("worker sees register entry")
	}
	// entries open to everyone show up for every known role
	for _, role := range []string{"owner", "manager", "designer", "sales", "factory", "installer", "worker", "client"} {
		if !hasPath(rbac.NavigationFor(role), "/dashboard") {
			t.Errorf("%s missing dashboard", role)
		}
	}
}

func TestRouteAccess(t *testing.T) {
	cases := []struct {
		role string
		path string
		want bool
	}{
		{"worker", "/dashboard", true},
		{"worker", "/admin/register", false},
		{"owner", "/admin/register", true},
		{"client", "/clients", false},
		{"manager", "/clients", true},
		// unregistered paths stay open
		{"worker", "/some/unknown/page", true},
		// prefix matching stops at the first governing entry, so project
		// subpages inherit the open project list entry
		{"worker", "/kitchen-projects/123", true},
		{"worker", "/kitchen-projects/new", true},
	}
	for _, c := range cases {
		if got := rbac.CanAccessRoute(c.role, c.path); got != c.want {
			t.Errorf("CanAccessRoute(%s, %s) = %v, want %v", c.role, c.path, got, c.want)
		}
	}
}

func TestPermissionNames(t *testing.T) {
	names := rbac.PermissionNames("sales")
	want := map[string]bool{
		rbac.PermCreateProjects:  true,
		rbac.PermManageClients:   true,
		rbac.PermViewAllProjects: true,
	}
	if len(names) != len(want) {
		t.Fatalf("sales permissions = %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected permission %s", n)
		}
	}
}
