// Package rbac is the static role registry and permission evaluator. All
// lookups are pure: an absent or unknown role simply has no permissions and
// no navigation, never an error.
package rbac

import (
	"fmt"
	"strings"

	"kitchenflow/internal/domain"
)

// Permission names used to gate workflows and routes.
const (
	PermCreateProjects  = "canCreateProjects"
	PermEditProjects    = "canEditProjects"
	PermDeleteProjects  = "canDeleteProjects"
	PermManageTeam      = "canManageTeam"
	PermManageClients   = "canManageClients"
	PermViewReports     = "canViewReports"
	PermAssignTasks     = "canAssignTasks"
	PermViewAllProjects = "canViewAllProjects"
	PermRegisterUsers   = "canRegisterUsers"
)

// Permissions is one row of the registry. Every role has an explicit value
// for every flag; there is no implicit defaulting.
type Permissions struct {
	CanCreateProjects  bool
	CanEditProjects    bool
	CanDeleteProjects  bool
	CanManageTeam      bool
	CanManageClients   bool
	CanViewReports     bool
	CanAssignTasks     bool
	CanViewAllProjects bool
	CanRegisterUsers   bool
}

var rolePermissions = map[string]Permissions{
	domain.RoleOwner: {
		CanCreateProjects:  true,
		CanEditProjects:    true,
		CanDeleteProjects:  true,
		CanManageTeam:      true,
		CanManageClients:   true,
		CanViewReports:     true,
		CanAssignTasks:     true,
		CanViewAllProjects: true,
		CanRegisterUsers:   true,
	},
	domain.RoleManager: {
		CanCreateProjects:  true,
		CanEditProjects:    true,
		CanManageTeam:      true,
		CanManageClients:   true,
		CanViewReports:     true,
		CanAssignTasks:     true,
		CanViewAllProjects: true,
		CanRegisterUsers:   true,
	},
	domain.RoleDesigner: {
		CanCreateProjects:  true,
		CanEditProjects:    true,
		CanViewReports:     true,
		CanAssignTasks:     true,
		CanViewAllProjects: true,
	},
	domain.RoleSales: {
		CanCreateProjects:  true,
		CanManageClients:   true,
		CanViewAllProjects: true,
	},
	domain.RoleFactory:   {},
	domain.RoleInstaller: {},
	domain.RoleWorker:    {},
	domain.RoleClient:    {},
}

// AuthContext identifies the acting user for a single call. It is passed
// explicitly into every workflow rather than read from ambient state.
type AuthContext struct {
	UserID string
	Role   string
}

// PermissionDeniedError indicates a missing permission flag.
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %s lacks permission %s", e.Role, e.Permission)
}

// HasPermission reports whether role holds the named permission. Unknown
// roles and unknown permission names yield false.
func HasPermission(role, permission string) bool {
	p, ok := rolePermissions[role]
	if !ok {
		return false
	}
	switch permission {
	case PermCreateProjects:
		return p.CanCreateProjects
	case PermEditProjects:
		return p.CanEditProjects
	case PermDeleteProjects:
		return p.CanDeleteProjects
	case PermManageTeam:
		return p.CanManageTeam
	case PermManageClients:
		return p.CanManageClients
	case PermViewReports:
		return p.CanViewReports
	case PermAssignTasks:
		return p.CanAssignTasks
	case PermViewAllProjects:
		return p.CanViewAllProjects
	case PermRegisterUsers:
		return p.CanRegisterUsers
	}
	return false
}

// Require returns a PermissionDeniedError unless the actor's role holds the
// permission.
func Require(actor AuthContext, permission string) error {
	if HasPermission(actor.Role, permission) {
		return nil
	}
	return PermissionDeniedError{Role: actor.Role, Permission: permission}
}

// PermissionsFor returns the full row for a role; the zero row for unknown
// roles.
func PermissionsFor(role string) Permissions {
	return rolePermissions[role]
}

// PermissionNames lists the granted permission names for a role, in
// registry order.
func PermissionNames(role string) []string {
	var out []string
	for _, name := range []string{
		PermCreateProjects, PermEditProjects, PermDeleteProjects,
		PermManageTeam, PermManageClients, PermViewReports,
		PermAssignTasks, PermViewAllProjects, PermRegisterUsers,
	} {
		if HasPermission(role, name) {
			out = append(out, name)
		}
	}
	return out
}

var eligibleAssigneeRoles = map[string]bool{
	domain.RoleDesigner:  true,
	domain.RoleWorker:    true,
	domain.RoleFactory:   true,
	domain.RoleInstaller: true,
	domain.RoleManager:   true,
}

// EligibleAssignee reports whether a role may be assigned phases and tasks.
func EligibleAssignee(role string) bool {
	return eligibleAssigneeRoles[role]
}

// NavItem is one sidebar entry. Roles nil means visible to every
// authenticated role.
type NavItem struct {
	Label       string   `json:"label"`
	Path        string   `json:"path"`
	Roles       []string `json:"roles,omitempty"`
	Description string   `json:"description,omitempty"`
}

var navigationItems = []NavItem{
	{Label: "Dashboard", Path: "/dashboard", Description: "Overview and quick actions"},
	{Label: "Kitchen Projects", Path: "/kitchen-projects", Description: "View and manage kitchen projects"},
	{Label: "New Project", Path: "/kitchen-projects/new",
		Roles:       []string{domain.RoleOwner, domain.RoleManager, domain.RoleDesigner, domain.RoleSales},
		Description: "Create a new kitchen project"},
	{Label: "My Tasks", Path: "/my-tasks", Description: "View your assigned tasks"},
	{Label: "All Tasks", Path: "/tasks",
		Roles:       []string{domain.RoleOwner, domain.RoleManager, domain.RoleDesigner},
		Description: "Manage all project tasks"},
	{Label: "Team", Path: "/team", Description: "View team and assignments"},
	{Label: "Reports", Path: "/reports",
		Roles:       []string{domain.RoleOwner, domain.RoleManager, domain.RoleDesigner},
		Description: "View project reports"},
	{Label: "Clients", Path: "/clients",
		Roles:       []string{domain.RoleOwner, domain.RoleManager},
		Description: "Manage client information"},
	{Label: "Register Users", Path: "/admin/register",
		Roles:       []string{domain.RoleOwner, domain.RoleManager},
		Description: "Register new team members"},
}

func validRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

func itemVisible(item NavItem, role string) bool {
	if item.Roles == nil {
		return true
	}
	for _, r := range item.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NavigationFor returns the ordered nav entries visible to role. Absent or
// unknown role sees nothing.
func NavigationFor(role string) []NavItem {
	if !validRole(role) {
		return nil
	}
	var out []NavItem
	for _, item := range navigationItems {
		if itemVisible(item, role) {
			out = append(out, item)
		}
	}
	return out
}

// CanAccessRoute reports whether role may open path. Paths not governed by
// any nav entry are allowed for every authenticated role.
func CanAccessRoute(role, path string) bool {
	if !validRole(role) {
		return false
	}
	for _, item := range navigationItems {
		if path == item.Path || strings.HasPrefix(path, item.Path+"/") {
			return itemVisible(item, role)
		}
	}
	return true
}
