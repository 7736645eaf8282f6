package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"officedesk/internal/engine"
	"officedesk/internal/repo"
	"officedesk/internal/service/llm"
	"officedesk/internal/service/semantic"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	LLM      *llm.Client
	Semantic *semantic.Client
	Logger   *zap.SugaredLogger
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError is the JSON body of every non-2xx response.
type apiError struct {
	status  int
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the Officedesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the required envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(log))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isMultipart(r) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestKey{}, r)))
				return
			}
			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(body))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Officedesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerUpload(router, basePath, cfg.Engine)
	registerDownload(router, basePath, cfg.Engine)
	registerUsers(group, cfg.Engine, cfg.Auth)
	registerChat(group, cfg)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
}

func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debugw("request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start).String(),
			)
		})
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusBadGateway, "upstream_error", "llm provider request failed", map[string]any{
			"provider": pe.Provider,
			"status":   pe.StatusCode,
		})
	}
	if errors.Is(err, llm.ErrNoAPIKey) {
		return newAPIError(http.StatusBadGateway, "upstream_error", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrTaskNotRunnable) {
		return newAPIError(http.StatusConflict, "task_not_runnable", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrBadCredentials) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already taken"),
		strings.Contains(lowered, "already exists"),
		strings.Contains(lowered, "is running"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "not allowed"):
		return newAPIError(http.StatusBadRequest, "extension_not_allowed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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
	case http.StatusRequestEntityTooLarge:
		return "file_too_large"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openRoutes := map[string]bool{}
	for _, p := range []string{path.Join(basePath, "health"), path.Join(basePath, "auth/login")} {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		openRoutes[p] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openRoutes[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Officedesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		status := "ok"
		if err := e.DB.PingContext(ctx); err != nil {
			status = "degraded"
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": status}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			Name:        input.Body.Name,
			Description: stringOrEmpty(input.Body.Description),
			Status:      stringOrEmpty(input.Body.Status),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, ok := decodeCursor(input.Cursor)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedProjects{Items: []ProjectResponse{}}
		if len(items) > limit {
			resp.NextCursor = encodeCursor(items[limit-1].CreatedAt, items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = mapProjects(items)
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project with attached tasks and documents",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectDetailResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.ListProjectTasks(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		docs, err := e.Repo.ListProjectDocuments(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectDetailResponse `json:"body"`
		}{Body: ProjectDetailResponse{
			ProjectResponse: projectResponse(p),
			Tasks:           mapTasks(tasks),
			Documents:       mapDocuments(docs),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:          input.ProjectID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, input.ProjectID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "attach-task",
		Method:        http.MethodPut,
		Path:          "/projects/{project_id}/tasks/{task_id}",
		Summary:       "Attach task to project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AttachTask(ctx, input.ProjectID, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "detach-task",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/tasks/{task_id}",
		Summary:       "Detach task from project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DetachTask(ctx, input.ProjectID, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "attach-document",
		Method:        http.MethodPut,
		Path:          "/projects/{project_id}/documents/{document_id}",
		Summary:       "Attach document to project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		DocumentID string `path:"document_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AttachDocument(ctx, input.ProjectID, input.DocumentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "detach-document",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/documents/{document_id}",
		Summary:       "Detach document from project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		DocumentID string `path:"document_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DetachDocument(ctx, input.ProjectID, input.DocumentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			Name:              input.Body.Name,
			Description:       stringOrEmpty(input.Body.Description),
			Category:          input.Body.Category,
			Type:              input.Body.Type,
			Parameters:        input.Body.Parameters,
			Tags:              input.Body.Tags,
			ScheduledFor:      stringOrEmpty(input.Body.ScheduledFor),
			IsRecurring:       input.Body.IsRecurring,
			RecurrencePattern: stringOrEmpty(input.Body.RecurrencePattern),
			ProjectID:         stringOrEmpty(input.Body.ProjectID),
			ActorID:           actorID,
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Category string `query:"category"`
		Priority int    `query:"priority"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, ok := decodeCursor(input.Cursor)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Status:          input.Status,
			Category:        input.Category,
			Priority:        input.Priority,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(tasks) > limit {
			resp.NextCursor = encodeCursor(tasks[limit-1].CreatedAt, tasks[limit-1].ID)
			tasks = tasks[:limit]
		}
		resp.Items = mapTasks(tasks)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-stats",
		Method:      http.MethodGet,
		Path:        "/tasks/stats",
		Summary:     "Task counts by status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		counts, err := e.Repo.CountTasksByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:           input.TaskID,
			Name:         input.Body.Name,
			Description:  input.Body.Description,
			Priority:     input.Body.Priority,
			Parameters:   input.Body.Parameters,
			Tags:         input.Body.Tags,
			ScheduledFor: input.Body.ScheduledFor,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/run",
		Summary:     "Run task",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RunTask(ctx, input.TaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/documents",
		Summary:     "List documents",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedDocuments `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorUploaded, cursorID, ok := decodeCursor(input.Cursor)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		docs, err := e.Repo.ListDocuments(ctx, repo.DocumentFilters{
			Limit:            limit + 1,
			CursorUploadedAt: cursorUploaded,
			CursorID:         cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedDocuments{Items: []DocumentResponse{}}
		if len(docs) > limit {
			resp.NextCursor = encodeCursor(docs[limit-1].UploadedAt, docs[limit-1].ID)
			docs = docs[:limit]
		}
		resp.Items = mapDocuments(docs)
		return &struct {
			Body paginatedDocuments `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/documents/{document_id}",
		Summary:     "Get document metadata",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DocumentID string `path:"document_id"`
	}) (*struct {
		Body DocumentResponse `json:"body"`
	}, error) {
		d, err := e.Repo.GetDocument(ctx, input.DocumentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentResponse `json:"body"`
		}{Body: documentResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-document",
		Method:        http.MethodDelete,
		Path:          "/documents/{document_id}",
		Summary:       "Delete document",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DocumentID string `path:"document_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteDocument(ctx, input.DocumentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// registerUpload handles multipart uploads as a raw chi route so the
// body can be size-capped before it is read.
func registerUpload(r chi.Router, basePath string, e engine.Engine) {
	r.Post(path.Join(basePath, "documents"), func(w http.ResponseWriter, req *http.Request) {
		maxBytes := e.Config.Uploads.MaxBytes
		// Headroom for the multipart framing around the file part.
		req.Body = http.MaxBytesReader(w, req.Body, maxBytes+64*1024)
		if err := req.ParseMultipartForm(10 << 20); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "file_too_large",
					fmt.Sprintf("upload exceeds %d bytes", maxBytes), nil))
				return
			}
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid multipart body", nil))
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file field is required", nil))
			return
		}
		defer file.Close()
		if header.Size > maxBytes {
			respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("upload exceeds %d bytes", maxBytes), nil))
			return
		}
		actorID := "anonymous"
		if p, ok := principalFromContext(req.Context()); ok && p.ActorID != "" {
			actorID = p.ActorID
		}
		d, err := e.UploadDocument(req.Context(), engine.DocumentUploadOptions{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
			ProjectID:   req.FormValue("project_id"),
			ActorID:     actorID,
		})
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(documentResponse(d))
	})
}

// registerDownload streams stored files outside of Huma so responses
// are not forced through the JSON codec.
func registerDownload(r chi.Router, basePath string, e engine.Engine) {
	r.Get(path.Join(basePath, "documents/{document_id}/download"), func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "document_id")
		d, err := e.Repo.GetDocument(req.Context(), id)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		f, err := e.Store.Open(d.StoredName)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusNotFound, "not_found", "stored file missing", nil))
			return
		}
		defer f.Close()
		contentType := d.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
		w.Header().Set("Content-Length", fmt.Sprintf("%d", d.SizeBytes))
		io.Copy(w, f)
	})
}

func registerUsers(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Username: input.Body.Username,
			Password: input.Body.Password,
			Role:     stringOrEmpty(input.Body.Role),
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		u, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{user_id}",
		Summary:     "Update user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string            `path:"user_id"`
		Body   UpdateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdateUser(ctx, engine.UserUpdateOptions{
			ID:       input.UserID,
			Role:     input.Body.Role,
			Password: input.Body.Password,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{user_id}",
		Summary:       "Delete user",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteUser(ctx, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.Username == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "username and password are required", nil)
		}
		u, err := e.Authenticate(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := auth.issueToken(u, time.Now().UTC())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string              `path:"user_id"`
		Body   CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreatedAPIKeyResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		k, secret, err := e.CreateAPIKey(ctx, input.UserID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedAPIKeyResponse `json:"body"`
		}{Body: CreatedAPIKeyResponse{APIKeyResponse: apiKeyResponse(k), Key: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/users/{user_id}/keys/{key_id}",
		Summary:       "Delete API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		KeyID  string `path:"key_id"`
	}) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerChat(api huma.API, cfg Config) {
	serveChat := func(ctx context.Context, body ChatRequest, system string) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		if body.Message == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil)
		}
		if cfg.LLM == nil {
			return nil, newAPIError(http.StatusBadGateway, "upstream_error", "no llm provider configured", nil)
		}
		resp, err := cfg.LLM.Chat(ctx, llm.Request{
			Message:  body.Message,
			System:   system,
			Provider: body.Provider,
			Model:    body.Model,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: ChatResponse{Reply: resp.Reply, Provider: resp.Provider, Model: resp.Model}}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Chat with the configured LLM provider",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		return serveChat(ctx, input.Body, "")
	})

	huma.Register(api, huma.Operation{
		OperationID: "chat-project",
		Method:      http.MethodPost,
		Path:        "/chat/projects/{project_id}",
		Summary:     "Chat with project context",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string      `path:"project_id"`
		Body      ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		if _, err := cfg.Engine.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		system := ""
		if cfg.Semantic != nil && cfg.Semantic.Available(ctx) {
			chunks, err := cfg.Semantic.Context(ctx, input.ProjectID, input.Body.Message, 5)
			if err == nil {
				system = semantic.Prompt(chunks)
			}
		}
		return serveChat(ctx, input.Body, system)
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50"`
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		events, err := e.Repo.LatestEvents(ctx, limit, input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(events))
		for _, evt := range events {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
