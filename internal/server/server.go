package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kitchenflow/internal/domain"
	"kitchenflow/internal/engine"
	"kitchenflow/internal/rbac"
	"kitchenflow/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"role worker lacks permission canAssignTasks"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the KitchenFlow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(metricsMiddleware)
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo, logger))
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	hcfg := huma.DefaultConfig("KitchenFlow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerMe(group, cfg.Engine)
	registerClients(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerPhases(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerTeam(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	startFeedDispatcher(cfg.Engine, logger)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var denied rbac.PermissionDeniedError
	if errors.As(err, &denied) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": denied.Permission})
	}
	var notOwner engine.NotOwnerError
	if errors.As(err, &notOwner) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var conflict engine.ConflictError
	if errors.As(err, &conflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"entity": conflict.Entity, "id": conflict.ID})
	}
	var ineligible engine.IneligibleAssigneeError
	if errors.As(err, &ineligible) {
		return newAPIError(http.StatusUnprocessableEntity, "ineligible_assignee", err.Error(), map[string]any{"role": ineligible.Role})
	}
	var decode domain.DecodeError
	if errors.As(err, &decode) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": decode.Field, "value": decode.Value})
	}
	if errors.Is(err, engine.ErrInvalidCredentials) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "out of range") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
