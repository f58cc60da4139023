package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"kitchenflow/internal/domain"
	"kitchenflow/internal/engine"
)

func registerClients(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Register a client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateClient(ctx, actor, engine.ClientCreateOptions{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Phone:    input.Body.Phone,
			Address:  input.Body.Address,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Client `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListClients(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Client{}
		}
		return &struct {
			Body []domain.Client `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/clients/{id}",
		Summary:     "Get client",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		c, err := e.GetClient(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-client-projects",
		Method:      http.MethodGet,
		Path:        "/clients/{id}/projects",
		Summary:     "List a client's projects",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.ListClientProjects(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create kitchen project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, actor, engine.ProjectCreateOptions{
			ClientID:        input.Body.ClientID,
			KitchenShape:    input.Body.KitchenShape,
			BudgetBracket:   input.Body.BudgetBracket,
			Materials:       input.Body.Materials,
			ReferenceImages: input.Body.ReferenceImages,
			ExistingImages:  input.Body.ExistingImages,
			IntakePDFURL:    input.Body.IntakePDFURL,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjectsFor(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project status or phase pointer",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, actor, input.ID, engine.ProjectUpdateOptions{
			Status:            input.Body.Status,
			CurrentPhase:      input.Body.CurrentPhase,
			ExpectedUpdatedAt: input.Body.ExpectedUpdatedAt,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-phases",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/phases",
		Summary:     "List the project's phases in order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Phase `json:"body"`
	}, error) {
		if _, err := e.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListPhases(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Phase `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-report",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/report",
		Summary:     "Phase progress and task counts",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body engine.ProjectReport `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.Report(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProjectReport `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "summary",
		Method:      http.MethodGet,
		Path:        "/reports/summary",
		Summary:     "Cross-project status summary",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Summary `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Summarize(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Summary `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register-project-file",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/files",
		Summary:       "Record an uploaded file",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body RegisterFileRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectFile `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.RegisterProjectFile(ctx, actor, engine.FileRegisterOptions{
			ProjectID: input.ID,
			TaskID:    input.Body.TaskID,
			FileName:  input.Body.FileName,
			FileType:  input.Body.FileType,
			FileSize:  input.Body.FileSize,
			FileURL:   input.Body.FileURL,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectFile `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-files",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/files",
		Summary:     "List a project's files",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ProjectFile `json:"body"`
	}, error) {
		if _, err := e.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListProjectFiles(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ProjectFile{}
		}
		return &struct {
			Body []domain.ProjectFile `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-chat-message",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/chat",
		Summary:       "Post to the project chat",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body ChatMessageRequest `json:"body"`
	}) (*struct {
		Body domain.ChatMessage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.PostChatMessage(ctx, actor, input.ID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatMessage `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chat-messages",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/chat",
		Summary:     "List the project chat oldest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.ChatMessage `json:"body"`
	}, error) {
		if _, err := e.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListChatMessages(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ChatMessage{}
		}
		return &struct {
			Body []domain.ChatMessage `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-assignments",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/assignments",
		Summary:     "Assignment audit trail for a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.AssignmentRecord `json:"body"`
	}, error) {
		if _, err := e.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListProjectAssignments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AssignmentRecord{}
		}
		return &struct {
			Body []domain.AssignmentRecord `json:"body"`
		}{Body: items}, nil
	})
}

func registerPhases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "assign-phase",
		Method:        http.MethodPost,
		Path:          "/phases/{id}/assign",
		Summary:       "Assign a phase to a team member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*struct {
		Body domain.AssignmentRecord `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.AssignPhase(ctx, actor, engine.AssignPhaseOptions{
			PhaseID:           input.ID,
			AssigneeID:        input.Body.AssigneeID,
			Notes:             input.Body.Notes,
			ExpectedUpdatedAt: input.Body.ExpectedUpdatedAt,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AssignmentRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-phase-status",
		Method:      http.MethodPatch,
		Path:        "/phases/{id}/status",
		Summary:     "Move a phase between statuses",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Phase `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ph, err := e.SetPhaseStatus(ctx, actor, input.ID, input.Body.Status, input.Body.ExpectedUpdatedAt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Phase `json:"body"`
		}{Body: ph}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-phase-assignments",
		Method:      http.MethodGet,
		Path:        "/phases/{id}/assignments",
		Summary:     "Assignment audit trail for a phase",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.AssignmentRecord `json:"body"`
	}, error) {
		items, err := e.ListPhaseAssignments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AssignmentRecord{}
		}
		return &struct {
			Body []domain.AssignmentRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-individual-task",
		Method:        http.MethodPost,
		Path:          "/phases/{id}/tasks",
		Summary:       "Create a phase-scoped task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                      `path:"id"`
		Body CreateIndividualTaskRequest `json:"body"`
	}) (*struct {
		Body domain.IndividualTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateIndividualTask(ctx, actor, engine.IndividualTaskCreateOptions{
			PhaseID:    input.ID,
			Title:      input.Body.Title,
			Notes:      input.Body.Notes,
			AssignedTo: input.Body.AssignedTo,
			Images:     input.Body.Images,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.IndividualTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-individual-tasks",
		Method:      http.MethodGet,
		Path:        "/phases/{id}/tasks",
		Summary:     "List a phase's tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.IndividualTask `json:"body"`
	}, error) {
		items, err := e.ListIndividualTasksByPhase(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.IndividualTask{}
		}
		return &struct {
			Body []domain.IndividualTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-individual-task-status",
		Method:      http.MethodPatch,
		Path:        "/individual-tasks/{id}/status",
		Summary:     "Move a phase-scoped task between statuses",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                     `path:"id"`
		Body SetIndividualStatusRequest `json:"body"`
	}) (*struct {
		Body domain.IndividualTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetIndividualTaskStatus(ctx, actor, input.ID, input.Body.Status, input.Body.Images, input.Body.ExpectedUpdatedAt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.IndividualTask `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-tasks",
		Method:      http.MethodGet,
		Path:        "/my/tasks",
		Summary:     "List the caller's phase-scoped tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.IndividualTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMyIndividualTasks(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.IndividualTask{}
		}
		return &struct {
			Body []domain.IndividualTask `json:"body"`
		}{Body: items}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/tasks",
		Summary:       "Create a project task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, actor, engine.TaskCreateOptions{
			ProjectID:   input.ID,
			TaskName:    input.Body.TaskName,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/tasks",
		Summary:     "List a project's tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := e.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListTasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Task{}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-task",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/assign",
		Summary:       "Assign a project task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*struct {
		Body domain.AssignmentRecord `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.AssignTask(ctx, actor, engine.AssignTaskOptions{
			TaskID:            input.ID,
			AssigneeID:        input.Body.AssigneeID,
			Notes:             input.Body.Notes,
			ExpectedUpdatedAt: input.Body.ExpectedUpdatedAt,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AssignmentRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}/status",
		Summary:     "Move a project task between statuses",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTaskStatus(ctx, actor, input.ID, input.Body.Status, input.Body.ExpectedUpdatedAt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-task-update",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/updates",
		Summary:       "Append a progress note to a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TaskUpdateRequest `json:"body"`
	}) (*struct {
		Body domain.TaskUpdate `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.AddTaskUpdate(ctx, actor, input.ID, input.Body.Message, input.Body.Images)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskUpdate `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-updates",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/updates",
		Summary:     "List a task's progress notes oldest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.TaskUpdate `json:"body"`
	}, error) {
		if _, err := e.GetTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListTaskUpdates(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.TaskUpdate{}
		}
		return &struct {
			Body []domain.TaskUpdate `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-project-tasks",
		Method:      http.MethodGet,
		Path:        "/my/project-tasks",
		Summary:     "List project tasks assigned to the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMyTasks(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Task{}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List the caller's notifications newest first",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListNotifications(ctx, actor, input.Unread)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Notification{}
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unread-count",
		Method:      http.MethodGet,
		Path:        "/notifications/unread-count",
		Summary:     "Count the caller's unread notifications",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.UnreadNotificationCount(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"unread": n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{id}/read",
		Summary:     "Mark one notification read",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MarkNotificationRead(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark all of the caller's notifications read",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int64 `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.MarkAllNotificationsRead(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int64 `json:"body"`
		}{Body: map[string]int64{"marked": n}}, nil
	})
}

func registerTeam(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-team-member",
		Method:        http.MethodPost,
		Path:          "/team",
		Summary:       "Add or update a team member record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body AddTeamMemberRequest `json:"body"`
	}) (*struct {
		Body domain.TeamMember `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddTeamMember(ctx, actor, engine.TeamMemberOptions{
			UserID:     input.Body.UserID,
			Department: input.Body.Department,
			Phone:      input.Body.Phone,
			Status:     input.Body.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TeamMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-team-members",
		Method:      http.MethodGet,
		Path:        "/team",
		Summary:     "List team member records",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TeamMember `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTeamMembers(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.TeamMember{}
		}
		return &struct {
			Body []domain.TeamMember `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignable",
		Method:      http.MethodGet,
		Path:        "/team/assignable",
		Summary:     "List profiles whose role may hold assignments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Profile `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAssignableProfiles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Profile{}
		}
		return &struct {
			Body []domain.Profile `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Poll the audit event feed",
	}, func(ctx context.Context, input *struct {
		After     int64  `query:"after"`
		Limit     int    `query:"limit" default:"100"`
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		var (
			items []domain.Event
			err   error
		)
		if input.After > 0 {
			items, err = e.EventsAfter(ctx, input.After, input.Limit)
		} else {
			items, err = e.LatestEvents(ctx, input.Limit, input.ProjectID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
