// Package engine is the control plane for removal runs: starting runs,
// resolving approvals, maintaining profiles and listings. The runner in this
// package executes claimed runs.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"erasure/internal/catalog"
	"erasure/internal/config"
	"erasure/internal/domain"
	"erasure/internal/events"
	"erasure/internal/plan"
	"erasure/internal/repo"
	"erasure/internal/vault"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Vault   *vault.Vault
	Catalog *catalog.Catalog
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, v *vault.Vault, cat *catalog.Catalog) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Vault:   v,
		Catalog: cat,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// StartRunOptions are parameters for starting a run.
type StartRunOptions struct {
	PlanID         string
	Params         map[string]any
	RequestedBy    string
	IdempotencyKey string
	ActorID        string
}

// StartRun validates the plan and parameters and enqueues a run. When an
// idempotency key is supplied and a run already exists for it, that run is
// returned with created=false and nothing else happens.
func (e Engine) StartRun(ctx context.Context, opts StartRunOptions) (domain.Run, bool, error) {
	if opts.PlanID == "" {
		return domain.Run{}, false, errors.New("plan is required")
	}
	p, err := plan.Load(e.Config.Paths.PlansRoot, opts.PlanID)
	if err != nil {
		return domain.Run{}, false, err
	}
	if err := plan.ValidateParams(p, opts.Params); err != nil {
		return domain.Run{}, false, err
	}
	params := opts.Params
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return domain.Run{}, false, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Run{}, false, err
	}
	defer tx.Rollback()

	if opts.IdempotencyKey != "" {
		existing, err := e.Repo.FindRunByIdempotencyKey(ctx, tx, opts.IdempotencyKey)
		if err == nil {
			return existing, false, tx.Commit()
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Run{}, false, err
		}
	}

	run := domain.Run{
		RunID:          uuid.NewString(),
		PlanID:         p.PlanID,
		PlanHash:       plan.Hash(p),
		Status:         domain.RunQueued,
		RequestedBy:    optionalString(opts.RequestedBy),
		IdempotencyKey: optionalString(opts.IdempotencyKey),
		CreatedAt:      e.nowRFC3339(),
		ParamsJSON:     string(paramsJSON),
	}
	if err := e.Repo.InsertRun(ctx, tx, run); err != nil {
		return domain.Run{}, false, fmt.Errorf("insert run: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "run.created", "run", run.RunID, opts.ActorID, events.EventPayload{
		"plan_id":   run.PlanID,
		"plan_hash": run.PlanHash,
	}); err != nil {
		return domain.Run{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Run{}, false, err
	}
	return run, true, nil
}

// ResolveApproval applies an operator decision exactly once. Approval
// re-queues the blocked run; denial fails the run terminally.
func (e Engine) ResolveApproval(ctx context.Context, approvalID string, approve bool, resolvedBy string) (domain.Approval, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Approval{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetApprovalTx(ctx, tx, approvalID)
	if err != nil {
		return domain.Approval{}, err
	}

	status := domain.ApprovalApproved
	if !approve {
		status = domain.ApprovalDenied
	}
	now := e.nowRFC3339()
	ok, err := e.Repo.ResolveApproval(ctx, tx, approvalID, status, resolvedBy, now)
	if err != nil {
		return domain.Approval{}, err
	}
	if !ok {
		return domain.Approval{}, fmt.Errorf("approval %s already resolved (%s)", approvalID, a.Status)
	}
	a.Status = status
	a.ResolvedAt = &now
	a.ResolvedBy = &resolvedBy

	if approve {
		if err := e.Repo.SetRunStatus(ctx, tx, a.RunID, domain.RunQueued); err != nil {
			return domain.Approval{}, err
		}
	} else {
		code := domain.ErrCodeApprovalDenied
		msg := fmt.Sprintf("approval denied for task %s", a.TaskID)
		if err := e.Repo.FinishRun(ctx, tx, a.RunID, domain.RunFailed, now, &code, &msg); err != nil {
			return domain.Approval{}, err
		}
		taskRun, err := e.Repo.GetTaskRunTx(ctx, tx, a.RunID, a.TaskID)
		if err == nil {
			taskRun.Status = domain.TaskFailed
			taskRun.FinishedAt = &now
			taskRun.ErrorCode = &code
			taskRun.ErrorMessage = &msg
			if err := e.Repo.UpsertTaskRun(ctx, tx, taskRun); err != nil {
				return domain.Approval{}, err
			}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Approval{}, err
		}
	}

	evtType := "approval.approved"
	if !approve {
		evtType = "approval.denied"
	}
	if err := e.Events.Append(ctx, tx, evtType, "approval", a.ApprovalID, resolvedBy, events.EventPayload{
		"run_id":  a.RunID,
		"task_id": a.TaskID,
	}); err != nil {
		return domain.Approval{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Approval{}, err
	}
	return a, nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func marshalJSON(v any) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
