package domain

import "fmt"

// DecodeError reports a value read from the database or a request that is
// outside one of the closed enum sets.
type DecodeError struct {
	Field string
	Value string
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("invalid %s value %q", e.Field, e.Value)
}

// Roles. Every user holds exactly one.
const (
	RoleOwner     = "owner"
	RoleManager   = "manager"
	RoleDesigner  = "designer"
	RoleSales     = "sales"
	RoleFactory   = "factory"
	RoleInstaller = "installer"
	RoleWorker    = "worker"
	RoleClient    = "client"
)

var Roles = []string{
	RoleOwner, RoleManager, RoleDesigner, RoleSales,
	RoleFactory, RoleInstaller, RoleWorker, RoleClient,
}

func ParseRole(v string) (string, error) {
	for _, r := range Roles {
		if v == r {
			return r, nil
		}
	}
	return "", DecodeError{Field: "role", Value: v}
}

// Phase and project-task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

var TaskStatuses = []string{StatusTodo, StatusInProgress, StatusDone}

func ParseTaskStatus(v string) (string, error) {
	for _, s := range TaskStatuses {
		if v == s {
			return s, nil
		}
	}
	return "", DecodeError{Field: "status", Value: v}
}

// Individual (phase-level) task statuses form a richer, independent set.
const (
	IndividualStatusTodo       = "todo"
	IndividualStatusStarted    = "started"
	IndividualStatusInProgress = "in_progress"
	IndividualStatusCompleted  = "completed"
)

var IndividualTaskStatuses = []string{
	IndividualStatusTodo, IndividualStatusStarted,
	IndividualStatusInProgress, IndividualStatusCompleted,
}

func ParseIndividualTaskStatus(v string) (string, error) {
	for _, s := range IndividualTaskStatuses {
		if v == s {
			return s, nil
		}
	}
	return "", DecodeError{Field: "status", Value: v}
}

// PhaseNames is the canonical six-phase plan, in order. Every project gets
// all six at creation, numbered 1-6; phases are never deleted.
var PhaseNames = []string{
	"design_quotation",
	"confirmation_payment",
	"production_prep",
	"factory_production",
	"site_installation",
	"closure_feedback",
}

var ProjectStatuses = []string{
	"intake", "design", "confirmation", "production_prep",
	"factory", "installation", "closure",
}

func ParseProjectStatus(v string) (string, error) {
	for _, s := range ProjectStatuses {
		if v == s {
			return s, nil
		}
	}
	return "", DecodeError{Field: "project status", Value: v}
}

var KitchenShapes = []string{"L-shape", "U-shape", "Parallel", "Island", "Straight"}

func ParseKitchenShape(v string) (string, error) {
	for _, s := range KitchenShapes {
		if v == s {
			return s, nil
		}
	}
	return "", DecodeError{Field: "kitchen shape", Value: v}
}

var BudgetBrackets = []string{"3-5 lakhs", "5-8 lakhs", "8-10+ lakhs"}

func ParseBudgetBracket(v string) (string, error) {
	for _, b := range BudgetBrackets {
		if v == b {
			return b, nil
		}
	}
	return "", DecodeError{Field: "budget bracket", Value: v}
}

var Materials = []string{"Plywood", "MDF", "HDHMR", "Acrylic", "Laminate"}

func ParseMaterials(vs []string) ([]string, error) {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		ok := false
		for _, m := range Materials {
			if v == m {
				ok = true
				break
			}
		}
		if !ok {
			return nil, DecodeError{Field: "material", Value: v}
		}
		out = append(out, v)
	}
	return out, nil
}
