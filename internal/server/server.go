// Package server exposes the HTTP API: profiles, runs, approvals, listings,
// schedules, and the human action queue.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"erasure/internal/domain"
	"erasure/internal/engine"
	"erasure/internal/repo"
	"erasure/internal/scheduler"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    engine.Engine
	Scheduler *scheduler.Scheduler
	BasePath  string
	Auth      AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"run not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope returned by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns the API handler.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Erasure API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProfiles(group, cfg.Engine, cfg.Scheduler)
	registerRuns(group, cfg.Engine)
	registerApprovals(group, cfg.Engine)
	registerListings(group, cfg.Engine)
	registerSchedules(group, cfg.Engine)
	registerQueue(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already resolved"), strings.Contains(lowered, "not pending"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "cannot move from"):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "not found for plan_id"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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

func registerProfiles(api huma.API, e engine.Engine, sched *scheduler.Scheduler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-profile",
		Method:        http.MethodPost,
		Path:          "/profiles",
		Summary:       "Create profile",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateProfileRequest `json:"body"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProfile(ctx, input.Body.Label, input.Body.Data, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "List profiles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProfileResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProfiles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProfileResponse `json:"body"`
		}{Body: mapProfiles(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPut,
		Path:        "/profiles/{profile_id}",
		Summary:     "Update profile data",
	}, func(ctx context.Context, input *struct {
		ProfileID string               `path:"profile_id"`
		Body      UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body struct {
			Profile ProfileResponse `json:"profile"`
			Changed bool            `json:"changed"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, changed, err := e.UpdateProfile(ctx, input.ProfileID, input.Body.Data, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Profile ProfileResponse `json:"profile"`
				Changed bool            `json:"changed"`
			} `json:"body"`
		}{}
		out.Body.Profile = profileResponse(p)
		out.Body.Changed = changed
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-profile",
		Method:      http.MethodDelete,
		Path:        "/profiles/{profile_id}",
		Summary:     "Delete profile",
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProfile(ctx, input.ProfileID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "deleted"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "init-profile-schedules",
		Method:        http.MethodPost,
		Path:          "/profiles/{profile_id}/schedules",
		Summary:       "Seed scan schedules for a profile",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if sched == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "scheduler_disabled", "scheduler not running", nil)
		}
		if _, err := e.Repo.GetProfile(ctx, input.ProfileID); err != nil {
			return nil, handleError(err)
		}
		seeded, err := sched.InitializeForProfile(ctx, input.ProfileID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"seeded": seeded}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "profile-status",
		Method:      http.MethodGet,
		Path:        "/profiles/{profile_id}/status",
		Summary:     "Listing counts for a profile",
	}, func(ctx context.Context, input *struct {
		ProfileID string `path:"profile_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProfile(ctx, input.ProfileID); err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountListingsByStatus(ctx, input.ProfileID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"profile_id":     input.ProfileID,
			"listing_counts": counts,
		}}, nil
	})
}

func registerRuns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-run",
		Method:        http.MethodPost,
		Path:          "/runs",
		Summary:       "Start a run",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body StartRunRequest `json:"body"`
	}) (*struct {
		Body StartRunResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		run, created, err := e.StartRun(ctx, engine.StartRunOptions{
			PlanID:         input.Body.PlanID,
			Params:         input.Body.Params,
			RequestedBy:    actorID,
			IdempotencyKey: input.Body.IdempotencyKey,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StartRunResponse `json:"body"`
		}{Body: StartRunResponse{Run: run, Created: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List runs",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		PlanID string `query:"plan_id"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []domain.Run `json:"body"`
	}, error) {
		runs, err := e.Repo.ListRuns(ctx, repo.RunFilters{Status: input.Status, PlanID: input.PlanID, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Run `json:"body"`
		}{Body: runs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{run_id}",
		Summary:     "Run detail",
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
	}) (*struct {
		Body RunDetailResponse `json:"body"`
	}, error) {
		run, err := e.Repo.GetRun(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		taskRuns, err := e.Repo.ListTaskRuns(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		approvals, err := e.Repo.ListApprovals(ctx, repo.ApprovalFilters{RunID: input.RunID})
		if err != nil {
			return nil, handleError(err)
		}
		artifacts, err := e.Repo.ListArtifacts(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunDetailResponse `json:"body"`
		}{Body: RunDetailResponse{Run: run, Tasks: taskRuns, Approvals: approvals, Artifacts: artifacts}}, nil
	})
}

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-approvals",
		Method:      http.MethodGet,
		Path:        "/approvals",
		Summary:     "List approvals",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		RunID  string `query:"run_id"`
	}) (*struct {
		Body []domain.Approval `json:"body"`
	}, error) {
		items, err := e.Repo.ListApprovals(ctx, repo.ApprovalFilters{Status: input.Status, RunID: input.RunID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Approval `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-approval",
		Method:      http.MethodPost,
		Path:        "/approvals/{approval_id}",
		Summary:     "Approve or deny",
	}, func(ctx context.Context, input *struct {
		ApprovalID string                 `path:"approval_id"`
		Body       ResolveApprovalRequest `json:"body"`
	}) (*struct {
		Body domain.Approval `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		switch input.Body.Decision {
		case "approve", "deny":
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "decision must be approve or deny", nil)
		}
		a, err := e.ResolveApproval(ctx, input.ApprovalID, input.Body.Decision == "approve", actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Approval `json:"body"`
		}{Body: a}, nil
	})
}

func registerListings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-listings",
		Method:      http.MethodGet,
		Path:        "/listings",
		Summary:     "List broker listings",
	}, func(ctx context.Context, input *struct {
		BrokerID  string `query:"broker_id"`
		ProfileID string `query:"profile_id"`
		Status    string `query:"status"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.BrokerListing `json:"body"`
	}, error) {
		items, err := e.Repo.ListListings(ctx, repo.ListingFilters{
			BrokerID:  input.BrokerID,
			ProfileID: input.ProfileID,
			Status:    input.Status,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.BrokerListing `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-listing",
		Method:      http.MethodGet,
		Path:        "/listings/{listing_id}",
		Summary:     "Listing detail",
	}, func(ctx context.Context, input *struct {
		ListingID string `path:"listing_id"`
	}) (*struct {
		Body domain.BrokerListing `json:"body"`
	}, error) {
		l, err := e.Repo.GetListing(ctx, input.ListingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BrokerListing `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-listing",
		Method:      http.MethodPost,
		Path:        "/listings/{listing_id}/status",
		Summary:     "Transition listing status",
	}, func(ctx context.Context, input *struct {
		ListingID string                   `path:"listing_id"`
		Body      TransitionListingRequest `json:"body"`
	}) (*struct {
		Body domain.BrokerListing `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.TransitionListing(ctx, input.ListingID, input.Body.Status, input.Body.Notes); err != nil {
			return nil, handleError(err)
		}
		l, err := e.Repo.GetListing(ctx, input.ListingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.BrokerListing `json:"body"`
		}{Body: l}, nil
	})
}

func registerSchedules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-schedules",
		Method:      http.MethodGet,
		Path:        "/schedules",
		Summary:     "List scan schedules",
	}, func(ctx context.Context, input *struct {
		ProfileID string `query:"profile_id"`
	}) (*struct {
		Body []domain.ScanSchedule `json:"body"`
	}, error) {
		items, err := e.Repo.ListSchedules(ctx, input.ProfileID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ScanSchedule `json:"body"`
		}{Body: items}, nil
	})
}

func registerQueue(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-queue",
		Method:      http.MethodGet,
		Path:        "/queue",
		Summary:     "List human action queue",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []domain.HumanQueueItem `json:"body"`
	}, error) {
		items, err := e.Repo.ListQueueItems(ctx, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.HumanQueueItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-queue-item",
		Method:      http.MethodPost,
		Path:        "/queue/{queue_id}/complete",
		Summary:     "Complete a manual action",
	}, func(ctx context.Context, input *struct {
		QueueID string                   `path:"queue_id"`
		Body    CompleteQueueItemRequest `json:"body"`
	}) (*struct {
		Body domain.HumanQueueItem `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.CompleteQueueItem(ctx, input.QueueID, input.Body.Notes, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HumanQueueItem `json:"body"`
		}{Body: q}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit events",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
