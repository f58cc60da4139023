package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"kitchenflow/internal/app"
	"kitchenflow/internal/config"
	"kitchenflow/internal/db"
	"kitchenflow/internal/engine"
	"kitchenflow/internal/rbac"
	"kitchenflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "kf",
	Short: "KitchenFlow CLI",
	Long: `KitchenFlow tracks modular kitchen projects from intake to handover.
Every project carries the same six phases (design and quotation through
closure and feedback); phases and tasks are assigned to team members, and
each assignment, status change and chat message lands in the event log.
Roles gate what an actor may do: owners and managers run the workspace,
designers and factory staff work their assignments, clients follow along.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("KITCHENFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting profile id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(itaskCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(navCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func bootstrapCmd() *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first owner profile in an empty workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				actor, err := a.SeedOwner(ctx, email, name, password)
				if err != nil {
					return err
				}
				fmt.Printf("Owner profile %s created. Use --actor %s or set KITCHENFLOW_ACTOR.\n", actor.UserID, actor.UserID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "owner email")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage login profiles",
	}
	user.AddCommand(userRegisterCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userWhoamiCmd())
	return user
}

func userRegisterCmd() *cobra.Command {
	var opts engine.RegisterUserOptions
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a team member or client login",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				p, err := a.Engine.RegisterUser(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role (owner, manager, designer, sales, factory, installer, worker, client)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				items, err := a.Engine.ListProfiles(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Name", "Role"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Email, p.FullName, p.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the acting profile, permissions and navigation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				p, err := a.Engine.GetProfile(ctx, actor.UserID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"user_id":     p.ID,
					"email":       p.Email,
					"role":        p.Role,
					"permissions": rbac.PermissionNames(p.Role),
					"navigation":  rbac.NavigationFor(p.Role),
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func clientCmd() *cobra.Command {
	client := &cobra.Command{
		Use:   "client",
		Short: "Manage kitchen clients",
	}
	client.AddCommand(clientCreateCmd())
	client.AddCommand(clientListCmd())
	client.AddCommand(clientShowCmd())
	client.AddCommand(clientProjectsCmd())
	return client
}

func clientProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects <id>",
		Short: "List a client's projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListClientProjects(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func clientCreateCmd() *cobra.Command {
	var opts engine.ClientCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				c, err := a.Engine.CreateClient(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "client name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Address, "address", "", "address")
	cmd.Flags().StringVar(&opts.Password, "password", "", "portal password (optional)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func clientListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				items, err := a.Engine.ListClients(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Code", "Name", "Email", "Phone"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.ClientCode, c.Name, c.Email, c.Phone})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func clientShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.GetClient(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage kitchen projects",
		Long:  "Projects carry the client's kitchen order. Each one is created with six phases already in place; statuses and the phase pointer move as the work does.",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectPhasesCmd())
	prj.AddCommand(projectFilesCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project with its six phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				p, err := a.Engine.CreateProject(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&opts.KitchenShape, "shape", "", "kitchen shape (L-shape, U-shape, Parallel, Island, Straight)")
	cmd.Flags().StringVar(&opts.BudgetBracket, "budget", "", "budget bracket (3-5 lakhs, 5-8 lakhs, 8-10+ lakhs)")
	cmd.Flags().StringArrayVar(&opts.Materials, "material", []string{}, "material (repeatable)")
	cmd.Flags().StringArrayVar(&opts.ReferenceImages, "reference-image", []string{}, "reference image URL (repeatable)")
	cmd.Flags().StringArrayVar(&opts.ExistingImages, "existing-image", []string{}, "existing kitchen image URL (repeatable)")
	cmd.Flags().StringVar(&opts.IntakePDFURL, "intake-pdf", "", "intake PDF URL")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("shape")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				items, err := a.Engine.ListProjectsFor(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Reference", "Status", "Phase", "Shape", "Budget"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.ProjectReference, p.Status, p.CurrentPhase, p.KitchenShape, p.BudgetBracket})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				p, err := a.Engine.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var status, expected string
	var phase int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update project status or phase pointer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				opts := engine.ProjectUpdateOptions{Status: status, ExpectedUpdatedAt: expected}
				if cmd.Flags().Changed("phase") {
					opts.CurrentPhase = &phase
				}
				p, err := a.Engine.UpdateProject(ctx, actor, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "project status")
	cmd.Flags().IntVar(&phase, "phase", 0, "current phase number (1-6)")
	cmd.Flags().StringVar(&expected, "expected-updated-at", "", "last seen updated_at for conflict detection")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				return a.Engine.DeleteProject(ctx, actor, args[0])
			})
		},
	}
	return cmd
}

func projectPhasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phases <id>",
		Short: "List a project's phases in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListPhases(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "#", "Phase", "Status", "Assignee"})
				for _, ph := range items {
					tw.AppendRow(table.Row{ph.ID, ph.PhaseNumber, ph.PhaseName, ph.Status, deref(ph.AssignedTo)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectFilesCmd() *cobra.Command {
	files := &cobra.Command{
		Use:   "files",
		Short: "Project file records",
	}
	var opts engine.FileRegisterOptions
	add := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Record an uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				opts.ProjectID = args[0]
				f, err := a.Engine.RegisterProjectFile(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	add.Flags().StringVar(&opts.FileName, "name", "", "file name")
	add.Flags().StringVar(&opts.FileType, "type", "", "file type")
	add.Flags().Int64Var(&opts.FileSize, "size", 0, "file size in bytes")
	add.Flags().StringVar(&opts.FileURL, "url", "", "file URL")
	add.Flags().StringVar(&opts.TaskID, "task", "", "related task id")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("url")
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListProjectFiles(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	files.AddCommand(add)
	files.AddCommand(list)
	return files
}

func phaseCmd() *cobra.Command {
	phase := &cobra.Command{
		Use:   "phase",
		Short: "Work the project phases",
		Long:  "Phases are the six fixed steps of every project. Assigning one notifies the assignee; moving one to done stamps its completion time.",
	}
	phase.AddCommand(phaseAssignCmd())
	phase.AddCommand(phaseStatusCmd())
	phase.AddCommand(phaseHistoryCmd())
	return phase
}

func phaseAssignCmd() *cobra.Command {
	var opts engine.AssignPhaseOptions
	cmd := &cobra.Command{
		Use:   "assign <phase-id>",
		Short: "Assign a phase to a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				opts.PhaseID = args[0]
				rec, err := a.Engine.AssignPhase(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AssigneeID, "to", "", "assignee profile id")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "assignment notes")
	cmd.Flags().StringVar(&opts.ExpectedUpdatedAt, "expected-updated-at", "", "last seen updated_at for conflict detection")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func phaseStatusCmd() *cobra.Command {
	var expected string
	cmd := &cobra.Command{
		Use:   "status <phase-id> <status>",
		Short: "Move a phase between todo, in_progress and done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				ph, err := a.Engine.SetPhaseStatus(ctx, actor, args[0], args[1], expected)
				if err != nil {
					return err
				}
				return printJSONOrTable(ph)
			})
		},
	}
	cmd.Flags().StringVar(&expected, "expected-updated-at", "", "last seen updated_at for conflict detection")
	return cmd
}

func phaseHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <phase-id>",
		Short: "Show the phase's assignment audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListPhaseAssignments(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Assigned To", "Assigned By", "At", "Notes"})
				for _, rec := range items {
					tw.AppendRow(table.Row{rec.AssignedTo, rec.AssignedBy, rec.AssignedAt, rec.Notes})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage project tasks",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskUpdatesCmd())
	task.AddCommand(taskMineCmd())
	return task
}

func taskMineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List project tasks assigned to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				items, err := a.Engine.ListMyTasks(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				t, err := a.Engine.CreateTask(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.TaskName, "name", "", "task name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListTasks(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Assignee"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.TaskName, t.Status, deref(t.AssignedTo)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				t, err := a.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var opts engine.AssignTaskOptions
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Assign a task to a team member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				opts.TaskID = args[0]
				rec, err := a.Engine.AssignTask(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AssigneeID, "to", "", "assignee profile id")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "assignment notes")
	cmd.Flags().StringVar(&opts.ExpectedUpdatedAt, "expected-updated-at", "", "last seen updated_at for conflict detection")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var expected string
	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task between todo, in_progress and done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				t, err := a.Engine.SetTaskStatus(ctx, actor, args[0], args[1], expected)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&expected, "expected-updated-at", "", "last seen updated_at for conflict detection")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var message string
	var images []string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Append a progress note to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				u, err := a.Engine.AddTaskUpdate(ctx, actor, args[0], message, images)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "progress note")
	cmd.Flags().StringArrayVar(&images, "image", []string{}, "image URL (repeatable)")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func taskUpdatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updates <task-id>",
		Short: "List a task's progress notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListTaskUpdates(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func itaskCmd() *cobra.Command {
	itask := &cobra.Command{
		Use:   "itask",
		Short: "Phase-scoped individual tasks",
		Long:  "Individual tasks hang off a phase. Anyone can file one for themselves; handing one to a colleague needs the assignment permission.",
	}
	itask.AddCommand(itaskCreateCmd())
	itask.AddCommand(itaskListCmd())
	itask.AddCommand(itaskStatusCmd())
	itask.AddCommand(itaskMineCmd())
	return itask
}

func itaskCreateCmd() *cobra.Command {
	var opts engine.IndividualTaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create <phase-id>",
		Short: "Create a phase-scoped task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				opts.PhaseID = args[0]
				t, err := a.Engine.CreateIndividualTask(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&opts.AssignedTo, "to", "", "assignee profile id (defaults to the actor)")
	cmd.Flags().StringArrayVar(&opts.Images, "image", []string{}, "image URL (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func itaskListCmd() *cobra.Command {
	var phaseID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a phase's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListIndividualTasksByPhase(ctx, phaseID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&phaseID, "phase", "", "phase id")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func itaskStatusCmd() *cobra.Command {
	var expected string
	var images []string
	cmd := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move an individual task between todo, started, in_progress and completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				var imgs []string
				if cmd.Flags().Changed("image") {
					imgs = images
				}
				t, err := a.Engine.SetIndividualTaskStatus(ctx, actor, args[0], args[1], imgs, expected)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&expected, "expected-updated-at", "", "last seen updated_at for conflict detection")
	cmd.Flags().StringArrayVar(&images, "image", []string{}, "replace image URLs (repeatable)")
	return cmd
}

func itaskMineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List the actor's individual tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				items, err := a.Engine.ListMyIndividualTasks(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Phase", "Title", "Status"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.PhaseID, t.Title, t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{
		Use:   "team",
		Short: "Manage the team roster",
	}
	var opts engine.TeamMemberOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or update a team member record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				m, err := a.Engine.AddTeamMember(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	add.Flags().StringVar(&opts.UserID, "user", "", "profile id")
	add.Flags().StringVar(&opts.Department, "department", "", "department")
	add.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	add.Flags().StringVar(&opts.Status, "status", "", "status (defaults to active)")
	_ = add.MarkFlagRequired("user")
	list := &cobra.Command{
		Use:   "list",
		Short: "List team member records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				items, err := a.Engine.ListTeamMembers(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	assignable := &cobra.Command{
		Use:   "assignable",
		Short: "List profiles whose role may hold assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListAssignableProfiles(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	team.AddCommand(add)
	team.AddCommand(list)
	team.AddCommand(assignable)
	return team
}

func chatCmd() *cobra.Command {
	chat := &cobra.Command{
		Use:   "chat",
		Short: "Project chat",
	}
	var message string
	post := &cobra.Command{
		Use:   "post <project-id>",
		Short: "Post to a project chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				m, err := a.Engine.PostChatMessage(ctx, actor, args[0], message)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	post.Flags().StringVar(&message, "message", "", "message text")
	_ = post.MarkFlagRequired("message")
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's chat oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Engine.ListChatMessages(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for _, m := range items {
					name := m.SenderName
					if name == "" {
						name = m.SenderID
					}
					fmt.Printf("[%s] %s: %s\n", m.CreatedAt, name, m.Message)
				}
				return nil
			})
		},
	}
	chat.AddCommand(post)
	chat.AddCommand(list)
	return chat
}

func notifyCmd() *cobra.Command {
	notify := &cobra.Command{
		Use:   "notify",
		Short: "Notifications",
	}
	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List the actor's notifications newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				items, err := a.Engine.ListNotifications(ctx, actor, unread)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Read", "At"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Title, n.Type, n.Read, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "unread only")
	count := &cobra.Command{
		Use:   "count",
		Short: "Count unread notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				n, err := a.Engine.UnreadNotificationCount(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"unread": n})
			})
		},
	}
	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				return a.Engine.MarkNotificationRead(ctx, actor, args[0])
			})
		},
	}
	readAll := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				n, err := a.Engine.MarkAllNotificationsRead(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"marked": n})
			})
		},
	}
	notify.AddCommand(list)
	notify.AddCommand(count)
	notify.AddCommand(read)
	notify.AddCommand(readAll)
	return notify
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Progress reporting",
	}
	project := &cobra.Command{
		Use:   "project <id>",
		Short: "Phase progress and task counts for one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				r, err := a.Engine.Report(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				fmt.Printf("Project: %s (%s)\n", r.ProjectReference, r.Status)
				fmt.Printf("Phase %d of %d, %d%% done\n", r.CurrentPhase, r.PhasesTotal, r.ProgressPercent)
				fmt.Println("Tasks:")
				for status, c := range r.TaskCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Workspace-wide status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.Context, actor rbac.AuthContext) error {
				s, err := a.Engine.Summarize(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	report.AddCommand(project)
	report.AddCommand(summary)
	return report
}

func navCmd() *cobra.Command {
	nav := &cobra.Command{
		Use:   "nav",
		Short: "Role navigation",
	}
	show := &cobra.Command{
		Use:   "show <role>",
		Short: "Show the navigation items a role sees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := rbac.NavigationFor(args[0])
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Path", "Label"})
			for _, item := range items {
				tw.AppendRow(table.Row{item.Path, item.Label})
			}
			tw.Render()
			return nil
		},
	}
	check := &cobra.Command{
		Use:   "check <role> <path>",
		Short: "Check whether a role may open a route",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSONOrTable(map[string]bool{"allowed": rbac.CanAccessRoute(args[0], args[1])})
		},
	}
	nav.AddCommand(show)
	nav.AddCommand(check)
	return nav
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	var n int
	var projectID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Engine.LatestEvents(ctx, n, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&projectID, "project", "", "project filter")
	log.AddCommand(tail)
	return log
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default kitchenflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return printJSONOrTable(a.Config)
			})
		},
	}
	cfg.AddCommand(initCmd)
	cfg.AddCommand(show)
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				secret := a.Config.Auth.JWTSecret
				if secret == "" {
					secret = os.Getenv("KITCHENFLOW_JWT_SECRET")
				}
				if secret == "" {
					return fmt.Errorf("jwt secret is required; set auth.jwt_secret or KITCHENFLOW_JWT_SECRET")
				}
				logger, err := zap.NewProduction()
				if err != nil {
					return err
				}
				defer logger.Sync()
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						AllowLegacyActorHeader: a.Config.Auth.AllowLegacyActorHeader,
					},
					Logger: logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving KitchenFlow API on http://%s%s (OpenAPI at %s/openapi.json, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(viper.GetString("workspace"), viper.GetString("actor"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withActor(ctx context.Context, fn func(context.Context, *app.Context, rbac.AuthContext) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		actor, err := a.Actor(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, a, actor)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
