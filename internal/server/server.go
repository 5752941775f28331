package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"siteline/internal/dateindex"
	"siteline/internal/domain"
	"siteline/internal/engine"
	"siteline/internal/engine/auth"
	"siteline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"timeline not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Siteline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Siteline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerTimelines(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ve repo.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{"field": ve.Field, "reason": ve.Reason}
		if ve.TaskID != "" {
			details["task_id"] = ve.TaskID
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, dateindex.ErrInvalidDate) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func engineNow(e engine.Engine) time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// queryDate resolves an optional ?date= parameter, defaulting to the engine
// clock.
func queryDate(e engine.Engine, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return engineNow(e), nil
	}
	return dateindex.Parse(raw)
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
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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
	openPaths := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
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
    <title>Siteline API Docs</title>
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

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		p, err := e.CreateProject(ctx, userID, input.Body.Name)
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
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "project.delete", auth.CanDeleteTimelines); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upsert-member",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/members/{user_id}",
		Summary:     "Add or update a project member",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		UserID    string        `path:"user_id"`
		Body      MemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "member.manage", auth.CanManageTimelines); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		switch input.Body.Permission {
		case auth.TierOwner, auth.TierAdmin, auth.TierSupport, auth.TierEmployee:
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown permission tier", nil)
		}
		m := domain.Member{
			ProjectID:       input.ProjectID,
			UserID:          input.UserID,
			Permission:      input.Body.Permission,
			CanEditTimeline: input.Body.CanEditTimeline,
			CreatedAt:       engineNow(e).UTC().Format(time.RFC3339),
		}
		if err := e.Repo.UpsertMember(ctx, nil, m); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetMember(ctx, input.ProjectID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListMembers(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: mapMembers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-member",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/members/{user_id}",
		Summary:     "Remove a project member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct{}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "member.manage", auth.CanManageTimelines); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteMember(ctx, input.ProjectID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerTimelines(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-timeline",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/timelines",
		Summary:       "Create a timeline revision",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      engine.TimelineInput `json:"body"`
	}) (*struct {
		Body engine.TimelineView `json:"body"`
	}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "timeline.create", auth.CanManageTimelines); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tl, err := e.CreateTimeline(ctx, userID, input.ProjectID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		tier, err := resolveTier(ctx, e, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TimelineView `json:"body"`
		}{Body: engine.ProjectTimeline(tl, tier, engineNow(e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-timelines",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/timelines",
		Summary:     "List timeline revisions, projected at a date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Date      string `query:"date"`
	}) (*struct {
		Body []engine.TimelineView `json:"body"`
	}, error) {
		tier, err := resolveTier(ctx, e, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		at, err := queryDate(e, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListTimelines(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		views := make([]engine.TimelineView, len(items))
		for i, tl := range items {
			views[i] = engine.ProjectTimeline(tl, tier, at)
		}
		return &struct {
			Body []engine.TimelineView `json:"body"`
		}{Body: views}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-timeline",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/timelines/latest",
		Summary:     "Latest timeline revision, projected at a date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Date      string `query:"date"`
	}) (*struct {
		Body engine.TimelineView `json:"body"`
	}, error) {
		tier, err := resolveTier(ctx, e, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		at, err := queryDate(e, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		tl, err := e.LatestTimeline(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TimelineView `json:"body"`
		}{Body: engine.ProjectTimeline(tl, tier, at)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "timeline-dashboard",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/timelines/dashboard",
		Summary:     "Project dashboard",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.Dashboard(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "timeline-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/timelines/history",
		Summary:     "Measurement history across revisions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `query:"task_id"`
	}) (*struct {
		Body []engine.HistoryEntry `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		entries, err := e.History(ctx, input.ProjectID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.HistoryEntry `json:"body"`
		}{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-timeline",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/timelines/{timeline_id}",
		Summary:     "Get one timeline revision, projected at a date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		TimelineID string `path:"timeline_id"`
		Date       string `query:"date"`
	}) (*struct {
		Body engine.TimelineView `json:"body"`
	}, error) {
		tier, err := resolveTier(ctx, e, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		at, err := queryDate(e, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		tl, err := e.GetTimeline(ctx, input.ProjectID, input.TimelineID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TimelineView `json:"body"`
		}{Body: engine.ProjectTimeline(tl, tier, at)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-timeline",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/timelines/{timeline_id}",
		Summary:     "Rename a timeline revision",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string                `path:"project_id"`
		TimelineID string                `path:"timeline_id"`
		Body       RenameTimelineRequest `json:"body"`
	}) (*struct {
		Body TimelineSummary `json:"body"`
	}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "timeline.update", auth.CanManageTimelines); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		tl, err := e.RenameTimeline(ctx, userID, input.ProjectID, input.TimelineID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimelineSummary `json:"body"`
		}{Body: timelineSummary(tl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-timeline",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/timelines/{timeline_id}",
		Summary:     "Delete a timeline revision",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		TimelineID string `path:"timeline_id"`
	}) (*struct{}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "timeline.delete", auth.CanDeleteTimelines); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTimeline(ctx, userID, input.ProjectID, input.TimelineID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-progress-date",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/timelines/{timeline_id}/progress",
		Summary:     "Remove every entry recorded for one date",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		TimelineID string `path:"timeline_id"`
		Date       string `query:"date" required:"true"`
	}) (*struct {
		Body TimelineSummary `json:"body"`
	}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "progress.delete", auth.CanManageTimelines); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date, err := dateindex.Parse(input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		tl, err := e.DeleteProgressDate(ctx, userID, input.ProjectID, input.TimelineID, date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TimelineSummary `json:"body"`
		}{Body: timelineSummary(tl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-measurement",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/timelines/{timeline_id}/measurements",
		Summary:     "Record a progress measurement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string             `path:"project_id"`
		TimelineID string             `path:"timeline_id"`
		Body       MeasurementRequest `json:"body"`
	}) (*struct {
		Body engine.TimelineView `json:"body"`
	}, error) {
		if err := requireMeasurementAccess(ctx, e, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date := engineNow(e)
		if strings.TrimSpace(input.Body.MeasurementDate) != "" {
			var err error
			date, err = dateindex.Parse(input.Body.MeasurementDate)
			if err != nil {
				return nil, handleError(err)
			}
		}
		tl, err := e.RecordMeasurement(ctx, userID, input.ProjectID, input.TimelineID, input.Body.TaskID, input.Body.ProgressPercentage, date)
		if err != nil {
			return nil, handleError(err)
		}
		tier, err := resolveTier(ctx, e, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TimelineView `json:"body"`
		}{Body: engine.ProjectTimeline(tl, tier, engineNow(e))}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "bulk-update-tasks",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/timelines/{timeline_id}/tasks/bulk",
		Summary:     "Apply a batch of task edits in one write",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		TimelineID string `path:"timeline_id"`
		Body       struct {
			Tasks []engine.TaskUpdate `json:"tasks" minItems:"1"`
		} `json:"body"`
	}) (*struct {
		Body engine.TimelineView `json:"body"`
	}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "timeline.update", auth.CanManageTimelines); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tl, err := e.BulkUpdateTasks(ctx, userID, input.ProjectID, input.TimelineID, input.Body.Tasks)
		if err != nil {
			return nil, handleError(err)
		}
		tier, err := resolveTier(ctx, e, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TimelineView `json:"body"`
		}{Body: engine.ProjectTimeline(tl, tier, engineNow(e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/timelines/{timeline_id}/tasks/{task_id}",
		Summary:     "Update one task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string            `path:"project_id"`
		TimelineID string            `path:"timeline_id"`
		TaskID     string            `path:"task_id"`
		Body       engine.TaskUpdate `json:"body"`
	}) (*struct {
		Body engine.TimelineView `json:"body"`
	}, error) {
		if err := requireTier(ctx, e, input.ProjectID, "timeline.update", auth.CanManageTimelines); err != nil {
			return nil, handleError(err)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		update := input.Body
		update.ID = input.TaskID
		tl, err := e.BulkUpdateTasks(ctx, userID, input.ProjectID, input.TimelineID, []engine.TaskUpdate{update})
		if err != nil {
			return nil, handleError(err)
		}
		tier, err := resolveTier(ctx, e, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TimelineView `json:"body"`
		}{Body: engine.ProjectTimeline(tl, tier, engineNow(e))}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "Event log tail, newest first",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := e.Repo.ListEvents(ctx, input.ProjectID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if err := requireCredentialTier(ctx, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		key, secret, err := newAPIKey(ctx, e, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		res := apiKeyResponse(key)
		res.Key = secret
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if err := requireCredentialTier(ctx, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, len(items))
		for i, k := range items {
			res[i] = apiKeyResponse(k)
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Revoke an API key",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := requireCredentialTier(ctx, "apikey.manage"); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

// requireCredentialTier gates key management on the tier carried by the
// credential itself; project membership does not apply here.
func requireCredentialTier(ctx context.Context, permName string) error {
	p, ok := principalFromContext(ctx)
	if !ok || p.UserID == "" {
		return newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	if p.Source == "legacy_header" || auth.CanManageTimelines(p.Permission) {
		return nil
	}
	return auth.ForbiddenError{Permission: permName}
}

// requireMeasurementAccess allows admins and owners plus members explicitly
// flagged as timeline editors.
func requireMeasurementAccess(ctx context.Context, e engine.Engine, projectID string) error {
	tier, err := resolveTier(ctx, e, projectID)
	if err != nil {
		return err
	}
	if auth.CanManageTimelines(tier) {
		return nil
	}
	p, _ := principalFromContext(ctx)
	m, err := e.Repo.GetMember(ctx, projectID, p.UserID)
	if err == nil && m.CanEditTimeline {
		return nil
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return auth.ForbiddenError{Permission: "measurement.record"}
}

func newAPIKey(ctx context.Context, e engine.Engine, req CreateAPIKeyRequest) (domain.APIKey, string, error) {
	if strings.TrimSpace(req.ActorID) == "" {
		return domain.APIKey{}, "", newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
	}
	secret := uuid.NewString()
	key := domain.APIKey{
		ID:         uuid.NewString(),
		ActorID:    req.ActorID,
		Name:       req.Name,
		Permission: req.Permission,
		KeyHash:    repo.HashAPIKey(secret),
		CreatedAt:  engineNow(e).UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if key.Permission == "" {
		key.Permission = auth.TierEmployee
	}
	return key, secret, nil
}

func registerDevAuth(api huma.API, cfg AuthConfig, e engine.Engine) {
	if !cfg.AllowLegacyActorHeader || strings.TrimSpace(cfg.JWTSecret) == "" {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a development token",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			UserID     string `json:"user_id" minLength:"1"`
			Permission string `json:"permission,omitempty" enum:"owner,admin,support,employee"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		token, err := issueJWT(cfg.JWTSecret, input.Body.UserID, input.Body.Permission, cfg.TokenTTL, engineNow(e))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token}}, nil
	})
}
