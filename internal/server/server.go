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
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/engine/auth"
	"taskline/internal/events"
	"taskline/internal/export"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"cycle_rejected"`
	Message string         `json:"message" example:"dependency 3 -> 7 would create a cycle"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"task_id\":3}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taskline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Taskline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerDependencies(group, cfg.Engine)
	registerRecurrence(group, cfg.Engine)
	registerTimeLogs(group, cfg.Engine)
	registerAnalytics(group, cfg.Engine)
	registerAuthRoutes(group, cfg.Engine, cfg.Auth)
	registerEvents(group, cfg.Engine)
	registerAdmin(group, cfg.Engine)
	registerExport(router, basePath, cfg.Engine)
	registerOpenAPI(router, api, basePath)

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
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), nil)
	}
	var ce engine.CycleError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "cycle_rejected", err.Error(), map[string]any{
			"task_id":       ce.TaskID,
			"depends_on_id": ce.DependsOnID,
		})
	}
	var de engine.DuplicateEdgeError
	if errors.As(err, &de) {
		return newAPIError(http.StatusConflict, "duplicate_edge", err.Error(), map[string]any{
			"task_id":       de.TaskID,
			"depends_on_id": de.DependsOnID,
		})
	}
	var re auth.RegistrationError
	if errors.As(err, &re) {
		return newAPIError(http.StatusBadRequest, "registration_failed", err.Error(), nil)
	}
	var le auth.LoginError
	if errors.As(err, &le) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
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
	open := map[string]bool{}
	for _, suffix := range []string{"health", "auth/signup", "auth/login"} {
		p := path.Join(basePath, suffix)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		open[p] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
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
    <title>Taskline API Docs</title>
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
		Body HealthResponse `json:"body"`
	}, error) {
		counts, err := e.Repo.CountTasksByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok", Tasks: counts}}, nil
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
			http.StatusConflict,
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
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Priority:    stringOrEmpty(input.Body.Priority),
			DueDate:     stringOrEmpty(input.Body.DueDate),
			DependsOn:   input.Body.DependsOn,
			ActorID:     actorFromContext(ctx),
		})
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
		Status    string `query:"status" enum:"not_started,in_progress,done,blocked"`
		Priority  string `query:"priority" enum:"high,medium,low"`
		Recurring string `query:"recurring" enum:"true,false"`
		DueBefore string `query:"due_before"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorRaw, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		var cursorID int64
		if cursorRaw != "" {
			cursorID, err = strconv.ParseInt(cursorRaw, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
		}
		filter := repo.TaskFilters{
			Status:          input.Status,
			Priority:        input.Priority,
			DueBefore:       input.DueBefore,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		}
		switch input.Recurring {
		case "true":
			v := true
			filter.Recurring = &v
		case "false":
			v := false
			filter.Recurring = &v
		}
		tasks, err := e.Repo.ListTasks(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(tasks) > limit {
			tasks = tasks[:limit]
			last := tasks[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, strconv.FormatInt(last.ID, 10))
		}
		resp.Items = mapTasks(tasks)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "next-task",
		Method:      http.MethodGet,
		Path:        "/tasks/next",
		Summary:     "Highest-priority available task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.NextTask(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "no available tasks", nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "available-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/available",
		Summary:     "Tasks ready to start",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.Repo.AvailableTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "blocked-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/blocked",
		Summary:     "Tasks waiting on dependencies",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.Repo.BlockedTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "overdue-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/overdue",
		Summary:     "Tasks past their due date",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		today := engineNow(e).UTC().Format("2006-01-02")
		items, err := e.Repo.OverdueTasks(ctx, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
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
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			Status:      input.Body.Status,
			DueDate:     input.Body.DueDate,
			ActorID:     actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.ID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/start",
		Summary:     "Start task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.StartTask(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Complete task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body CompleteTaskResponse `json:"body"`
	}, error) {
		t, unblocked, err := e.CompleteTask(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompleteTaskResponse `json:"body"`
		}{Body: CompleteTaskResponse{
			Task:      taskResponse(t),
			Unblocked: mapTasks(unblocked),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "block-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/block",
		Summary:     "Block task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.BlockTask(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/status",
		Summary:     "Set task status",
		Description: "Overwrites the status without lifecycle checks.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64            `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		t, err := e.SetStatus(ctx, input.ID, input.Body.Status, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-summary",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/summary",
		Summary:     "Task with dependencies, dependents and logged time",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskSummaryResponse `json:"body"`
	}, error) {
		s, err := e.TaskSummary(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskSummaryResponse `json:"body"`
		}{Body: summaryResponse(s)}, nil
	})
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/dependencies",
		Summary:       "Add dependency",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body AddDependencyRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		t, err := e.AddDependency(ctx, input.ID, input.Body.DependsOnID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-dependency",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/dependencies/{depends_on_id}",
		Summary:     "Remove dependency",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID          int64 `path:"id"`
		DependsOnID int64 `path:"depends_on_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.RemoveDependency(ctx, input.ID, input.DependsOnID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/dependencies",
		Summary:     "Tasks this task depends on",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.Dependencies(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependents",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/dependents",
		Summary:     "Tasks that depend on this task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.Dependents(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dependency-tree",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/tree",
		Summary:     "Dependency tree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body DependencyNodeResponse `json:"body"`
	}, error) {
		node, err := e.DependencyTree(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependencyNodeResponse `json:"body"`
		}{Body: treeResponse(node)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-availability",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/availability",
		Summary:     "Whether task can start now",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body AvailabilityResponse `json:"body"`
	}, error) {
		available, err := e.IsAvailable(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		blocked, err := e.IsBlocked(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AvailabilityResponse `json:"body"`
		}{Body: AvailabilityResponse{
			TaskID:    input.ID,
			Available: available,
			Blocked:   blocked,
		}}, nil
	})
}

func registerRecurrence(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-recurring",
		Method:        http.MethodPost,
		Path:          "/recurring",
		Summary:       "Create recurring task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRecurringRequest `json:"body"`
	}) (*struct {
		Body RecurringTaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		interval := 1
		if input.Body.Interval != nil {
			interval = *input.Body.Interval
		}
		t, p, err := e.CreateRecurringTask(ctx, engine.RecurringCreateOptions{
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Priority:    stringOrEmpty(input.Body.Priority),
			Frequency:   input.Body.Frequency,
			Interval:    interval,
			EndDate:     stringOrEmpty(input.Body.EndDate),
			DaysOfWeek:  input.Body.DaysOfWeek,
			ActorID:     actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecurringTaskResponse `json:"body"`
		}{Body: RecurringTaskResponse{
			Task:    taskResponse(t),
			Pattern: patternResponse(p),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-recurring",
		Method:      http.MethodGet,
		Path:        "/recurring",
		Summary:     "List recurring patterns",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PatternResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListPatterns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PatternResponse `json:"body"`
		}{Body: mapPatterns(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-instances",
		Method:        http.MethodPost,
		Path:          "/recurring/{id}/generate",
		Summary:       "Generate upcoming task instances",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		Count int   `query:"count"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.GenerateInstances(ctx, input.ID, input.Count, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recurring-tasks",
		Method:      http.MethodGet,
		Path:        "/recurring/{id}/tasks",
		Summary:     "Tasks generated from a pattern",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetPattern(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.TasksForPattern(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})
}

func registerTimeLogs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-timer",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/timer/start",
		Summary:       "Start timer",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TimeLogResponse `json:"body"`
	}, error) {
		l, err := e.StartTimer(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimeLogResponse `json:"body"`
		}{Body: timeLogResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-timer",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/timer/stop",
		Summary:     "Stop timer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TimeLogResponse `json:"body"`
	}, error) {
		l, err := e.StopTimer(ctx, input.ID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimeLogResponse `json:"body"`
		}{Body: timeLogResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-timers",
		Method:      http.MethodGet,
		Path:        "/timers",
		Summary:     "Running timers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TimeLogResponse `json:"body"`
	}, error) {
		items, err := e.ActiveTimers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TimeLogResponse `json:"body"`
		}{Body: mapTimeLogs(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-time",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/time",
		Summary:       "Log time manually",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64          `path:"id"`
		Body LogTimeRequest `json:"body"`
	}) (*struct {
		Body TimeLogResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		l, err := e.LogTime(ctx, input.ID, input.Body.Minutes, stringOrEmpty(input.Body.Date), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimeLogResponse `json:"body"`
		}{Body: timeLogResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-time",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/time",
		Summary:     "Time logged against a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskTimeResponse `json:"body"`
	}, error) {
		items, err := e.TimeLogs(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		total, err := e.TotalTime(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskTimeResponse `json:"body"`
		}{Body: TaskTimeResponse{
			Items:          mapTimeLogs(items),
			TotalMinutes:   total,
			TotalFormatted: engine.FormatMinutes(total),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-time-log",
		Method:      http.MethodDelete,
		Path:        "/time/{log_id}",
		Summary:     "Delete time log",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LogID int64 `path:"log_id"`
	}) (*struct{}, error) {
		if err := e.DeleteTimeLog(ctx, input.LogID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAnalytics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats-today",
		Method:      http.MethodGet,
		Path:        "/stats/today",
		Summary:     "Today's aggregates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.DateStats `json:"body"`
	}, error) {
		s, err := e.TodayStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DateStats `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-daily",
		Method:      http.MethodGet,
		Path:        "/stats/daily/{date}",
		Summary:     "Aggregates for one day",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Date string `path:"date"`
	}) (*struct {
		Body domain.DateStats `json:"body"`
	}, error) {
		s, err := e.DateStats(ctx, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DateStats `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-weekly",
		Method:      http.MethodGet,
		Path:        "/stats/weekly",
		Summary:     "Trailing seven-day aggregates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EndDate string `query:"end_date"`
	}) (*struct {
		Body domain.RangeStats `json:"body"`
	}, error) {
		s, err := e.WeeklyStats(ctx, input.EndDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RangeStats `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-monthly",
		Method:      http.MethodGet,
		Path:        "/stats/monthly",
		Summary:     "Calendar month aggregates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Year  int `query:"year"`
		Month int `query:"month"`
	}) (*struct {
		Body domain.RangeStats `json:"body"`
	}, error) {
		s, err := e.MonthlyStats(ctx, input.Year, input.Month)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RangeStats `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-range",
		Method:      http.MethodGet,
		Path:        "/stats/range",
		Summary:     "Aggregates over a date range",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		StartDate string `query:"start_date" required:"true"`
		EndDate   string `query:"end_date" required:"true"`
	}) (*struct {
		Body domain.RangeStats `json:"body"`
	}, error) {
		s, err := e.RangeStats(ctx, input.StartDate, input.EndDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RangeStats `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-completion",
		Method:      http.MethodGet,
		Path:        "/stats/completion",
		Summary:     "Overall completion rate",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.CompletionRate `json:"body"`
	}, error) {
		s, err := e.CompletionRate(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CompletionRate `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-priorities",
		Method:      http.MethodGet,
		Path:        "/stats/priorities",
		Summary:     "Completion rate per priority",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]domain.PriorityRate `json:"body"`
	}, error) {
		s, err := e.PriorityCompletionRates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]domain.PriorityRate `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-trend",
		Method:      http.MethodGet,
		Path:        "/stats/trend",
		Summary:     "Per-day stats for the trailing N days",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" default:"7"`
	}) (*struct {
		Body []domain.DateStats `json:"body"`
	}, error) {
		items, err := e.Trend(ctx, input.Days)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DateStats `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-average-completion",
		Method:      http.MethodGet,
		Path:        "/stats/average-completion",
		Summary:     "Average days from creation to done",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.AvgCompletion `json:"body"`
	}, error) {
		s, err := e.AvgCompletionTime(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AvgCompletion `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-priority-analysis",
		Method:      http.MethodGet,
		Path:        "/stats/priority-analysis",
		Summary:     "Status breakdown per priority",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.PriorityBreakdown `json:"body"`
	}, error) {
		items, err := e.PriorityAnalysis(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PriorityBreakdown `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-dashboard",
		Method:      http.MethodGet,
		Path:        "/stats/dashboard",
		Summary:     "Combined productivity dashboard",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Dashboard `json:"body"`
	}, error) {
		s, err := e.Dashboard(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dashboard `json:"body"`
		}{Body: s}, nil
	})
}

func registerAuthRoutes(api huma.API, e engine.Engine, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Register user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SignupRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		svc := auth.Service{Repo: e.Repo, Now: e.Now}
		u, err := svc.Register(ctx, input.Body.Username, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signToken(cfg.JWTSecret, u, cfg.tokenTTL(), engineNow(e))
		if err != nil {
			return nil, handleError(err)
		}
		if err := appendEvent(ctx, e, "user.registered", "user", strconv.FormatInt(u.ID, 10), u.Username, events.EventPayload{"username": u.Username}); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Authenticate user",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		svc := auth.Service{Repo: e.Repo, Now: e.Now}
		u, err := svc.Authenticate(ctx, input.Body.Login, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signToken(cfg.JWTSecret, u, cfg.tokenTTL(), engineNow(e))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuthResponse `json:"body"`
		}{Body: AuthResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			p = Principal{Username: anonymousActor, Source: "anonymous"}
		}
		resp := MeResponse{Username: p.Username, Source: p.Source}
		if p.UserID != 0 {
			u, err := e.Repo.GetUserByID(ctx, p.UserID)
			if err == nil {
				ur := userResponse(u)
				resp.User = &ur
			} else if !errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		Description:   "The plaintext key is returned once and stored hashed.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreatedAPIKeyResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == 0 {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "sign in to manage api keys", nil)
		}
		key := uuid.NewString()
		k := domain.APIKey{
			ID:        uuid.NewString(),
			UserID:    p.UserID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(key),
			CreatedAt: engineNow(e).UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
			return nil, handleError(err)
		}
		if err := appendEvent(ctx, e, "apikey.created", "apikey", k.ID, p.Username, events.EventPayload{"name": k.Name}); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedAPIKeyResponse `json:"body"`
		}{Body: CreatedAPIKeyResponse{
			ID:        k.ID,
			Name:      k.Name,
			Key:       key,
			CreatedAt: k.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == 0 {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "sign in to manage api keys", nil)
		}
		items, err := e.Repo.ListAPIKeys(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			resp = append(resp, APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-apikey",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Delete API key",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == 0 {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "sign in to manage api keys", nil)
		}
		items, err := e.Repo.ListAPIKeys(ctx, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		owned := false
		for _, k := range items {
			if k.ID == input.ID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, newAPIError(http.StatusNotFound, "not_found", "api key not found", nil)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		if err := appendEvent(ctx, e, "apikey.deleted", "apikey", input.ID, p.Username, nil); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
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
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"task,pattern,timelog,user,apikey,db"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "db-stats",
		Method:      http.MethodGet,
		Path:        "/db/stats",
		Summary:     "Row counts and schema version",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DBStatsResponse `json:"body"`
	}, error) {
		tables, err := e.Repo.TableCounts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		version, err := migrate.Version(e.DB)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DBStatsResponse `json:"body"`
		}{Body: DBStatsResponse{Tables: tables, SchemaVersion: version}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-data",
		Method:      http.MethodPost,
		Path:        "/db/clear",
		Summary:     "Delete all data",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body ClearDataRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if !input.Body.Confirm {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "confirm must be true", nil)
		}
		if err := e.Repo.ClearAll(ctx); err != nil {
			return nil, handleError(err)
		}
		if err := appendEvent(ctx, e, "db.cleared", "db", "", actorFromContext(ctx), nil); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "cleared"}}, nil
	})
}

// registerExport serves iCalendar straight from chi; the payload is not JSON
// so it stays outside the Huma API. The auth middleware still covers it.
func registerExport(r chi.Router, basePath string, e engine.Engine) {
	x := export.Exporter{Repo: e.Repo, Now: e.Now}
	icsPath := path.Join(basePath, "export/calendar.ics")
	r.Get(icsPath, func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		scope := req.URL.Query().Get("scope")
		priority := req.URL.Query().Get("priority")
		var (
			cal string
			err error
		)
		switch {
		case priority != "":
			if priority != "high" && priority != "medium" && priority != "low" {
				respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid priority", map[string]any{"priority": priority}))
				return
			}
			cal, err = x.PriorityCalendar(ctx, priority)
		case scope == "pending":
			cal, err = x.PendingCalendar(ctx)
		case scope == "overdue":
			cal, err = x.OverdueCalendar(ctx)
		case scope == "" || scope == "all":
			cal, err = x.Calendar(ctx)
		default:
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid scope", map[string]any{"scope": scope}))
			return
		}
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="taskline.ics"`)
		io.WriteString(w, cal)
	})
}

func appendEvent(ctx context.Context, e engine.Engine, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func engineNow(e engine.Engine) time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
