package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"erasure/internal/artifacts"
	"erasure/internal/domain"
	"erasure/internal/events"
	"erasure/internal/plan"
	"erasure/internal/tasks"
)

// Runner claims queued runs and drives their plans to a terminal status.
// Multiple runners may share a database; the claim compare-and-set decides
// ownership and expired claims are taken over.
type Runner struct {
	Engine    Engine
	Registry  *tasks.Registry
	Artifacts *artifacts.Store
	Owner     string
	Log       *slog.Logger

	// Sleep is injectable so retry backoff is testable.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(e Engine, reg *tasks.Registry, store *artifacts.Store, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		Engine:    e,
		Registry:  reg,
		Artifacts: store,
		Owner:     "runner-" + uuid.NewString()[:8],
		Log:       log,
		Sleep:     ctxSleep,
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Run polls for claimable runs until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	interval := time.Duration(r.Engine.Config.Runner.PollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	for {
		if err := r.Poll(ctx); err != nil && ctx.Err() == nil {
			r.Log.Error("poll failed", "err", err)
		}
		if err := ctxSleep(ctx, interval); err != nil {
			return nil
		}
	}
}

// Poll claims and executes one batch of due runs.
func (r *Runner) Poll(ctx context.Context) error {
	now := r.Engine.nowRFC3339()
	limit := r.Engine.Config.Runner.MaxConcurrentRuns
	if limit <= 0 {
		limit = 1
	}
	runs, err := r.Engine.Repo.ClaimableRuns(ctx, r.Owner, now, limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		claimed, err := r.claim(ctx, run.RunID)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		if err := r.ExecuteRun(ctx, run.RunID); err != nil {
			r.Log.Error("run execution failed", "run_id", run.RunID, "err", err)
		}
	}
	return nil
}

func (r *Runner) claim(ctx context.Context, runID string) (bool, error) {
	expires := r.Engine.now().UTC().Add(r.claimTTL()).Format(time.RFC3339)
	return r.Engine.Repo.ClaimRun(ctx, runID, r.Owner, expires, r.Engine.nowRFC3339())
}

func (r *Runner) claimTTL() time.Duration {
	ttl := time.Duration(r.Engine.Config.Runner.ClaimTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return ttl
}

// ErrClaimLost is returned when another runner took over mid-run. The losing
// runner abandons the run without writing anything further.
var ErrClaimLost = errors.New("run claim lost")

// ExecuteRun drives one claimed run forward: to completion, to a terminal
// failure, to an approval block, or to a parked deferred resume.
func (r *Runner) ExecuteRun(ctx context.Context, runID string) error {
	e := r.Engine
	run, err := e.Repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	p, err := plan.Load(e.Config.Paths.PlansRoot, run.PlanID)
	if err != nil {
		return r.failRun(ctx, run.RunID, domain.ErrCodeTaskFailed, fmt.Sprintf("plan unavailable: %v", err))
	}
	// A plan edited after the run was created invalidates the run rather
	// than silently executing different steps than were reviewed.
	if plan.Hash(p) != run.PlanHash {
		return r.failRun(ctx, run.RunID, domain.ErrCodePlanHashMismatch,
			fmt.Sprintf("plan %s changed since run was created", run.PlanID))
	}

	if timedOut, err := r.checkRunTimeout(ctx, run); timedOut || err != nil {
		return err
	}

	if run.Status == domain.RunBlockedForApproval {
		pending, err := e.Repo.CountPendingApprovals(ctx, run.RunID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return r.block(ctx, run.RunID)
		}
	}

	if err := r.markStarted(ctx, run.RunID); err != nil {
		return err
	}

	params := map[string]any{}
	if run.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(run.ParamsJSON), &params); err != nil {
			return r.failRun(ctx, run.RunID, domain.ErrCodeTaskFailed, fmt.Sprintf("invalid run params: %v", err))
		}
	}
	state := map[string]any{"params": params, "run_id": run.RunID}

	done, err := r.restoreState(ctx, run.RunID, p, state)
	if err != nil {
		return err
	}

	targets := map[string]plan.Target{}
	for _, t := range p.Targets {
		targets[t.TargetID] = t
	}

	ordered := p.OrderedTasks()
	for idx, task := range ordered {
		if done[task.ID] {
			continue
		}

		if renewed, err := e.Repo.RenewClaim(ctx, run.RunID, r.Owner, r.Engine.now().UTC().Add(r.claimTTL()).Format(time.RFC3339)); err != nil {
			return err
		} else if !renewed {
			r.Log.Warn("claim lost, abandoning run", "run_id", run.RunID)
			return ErrClaimLost
		}
		if timedOut, err := r.checkRunTimeout(ctx, run); timedOut || err != nil {
			return err
		}

		resolvedInput, _ := plan.ResolveValue(task.Input, state).(map[string]any)
		if resolvedInput == nil {
			resolvedInput = map[string]any{}
		}

		if r.requiresApproval(task, resolvedInput) {
			proceed, err := r.gateOnApproval(ctx, run.RunID, task, resolvedInput)
			if err != nil || !proceed {
				return err
			}
		}

		result, execErr := r.executeWithRetry(ctx, run, task, idx, resolvedInput, params, state, targets)
		if execErr != nil {
			return r.failRun(ctx, run.RunID, domain.ErrCodeTaskFailed,
				fmt.Sprintf("task %s failed: %v", task.ID, execErr))
		}

		if result.ResumeAt != nil {
			if err := r.park(ctx, run.RunID, task, idx, result); err != nil {
				return err
			}
			return nil
		}

		saveOutput(state, task, result.Output)
		done[task.ID] = true

		if err := r.persistArtifact(ctx, run.RunID, task, result.Output); err != nil {
			r.Log.Warn("artifact persistence failed", "run_id", run.RunID, "task_id", task.ID, "err", err)
		}
	}

	return r.succeed(ctx, run.RunID)
}

// requiresApproval applies the side-effect policy on top of the plan's own
// flags. Mutating HTTP requests count as side effects.
func (r *Runner) requiresApproval(task plan.Task, input map[string]any) bool {
	if task.RequiresApproval {
		return true
	}
	if !r.Engine.Config.Policy.SideEffectsRequireApproval {
		return false
	}
	if plan.SideEffectTypes[task.Type] {
		return true
	}
	if task.Type == plan.TypeHTTPRequest {
		if method, ok := input["method"].(string); ok && !tasks.ReadOnlyMethod(method) {
			return true
		}
	}
	return false
}

// gateOnApproval ensures the approval row and acts on its current status.
// Returns proceed=false when the run blocked or failed here.
func (r *Runner) gateOnApproval(ctx context.Context, runID string, task plan.Task, input map[string]any) (bool, error) {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	prompt := fmt.Sprintf("Approve execution of %s (%s)?", task.Name, task.Type)
	if task.Approval != nil && task.Approval.Prompt != "" {
		prompt = task.Approval.Prompt
	}
	a, err := e.Repo.EnsureApproval(ctx, tx, domain.Approval{
		ApprovalID:  uuid.NewString(),
		RunID:       runID,
		TaskID:      task.ID,
		Status:      domain.ApprovalPending,
		Prompt:      prompt,
		PreviewJSON: marshalJSON(input),
		CreatedAt:   e.nowRFC3339(),
	})
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	switch a.Status {
	case domain.ApprovalApproved:
		return true, nil
	case domain.ApprovalDenied:
		return false, r.failRun(ctx, runID, domain.ErrCodeApprovalDenied,
			fmt.Sprintf("approval denied for task %s", task.ID))
	default:
		return false, r.block(ctx, runID)
	}
}

// executeWithRetry runs a task with exponential backoff. Only transient
// failures of idempotent tasks retry; everything else fails on the first
// error.
func (r *Runner) executeWithRetry(ctx context.Context, run domain.Run, task plan.Task, idx int,
	input, params, state map[string]any, targets map[string]plan.Target) (tasks.Result, error) {

	e := r.Engine
	executor, err := r.Registry.Get(task.Type)
	if err != nil {
		return tasks.Result{}, err
	}

	attempts := task.MaxAttempts
	if attempts <= 0 {
		attempts = e.Config.Retry.Attempts
	}
	timeout := time.Duration(task.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(e.Config.Runner.DefaultTimeoutMS) * time.Millisecond
	}

	inv := tasks.Invocation{
		RunID:   run.RunID,
		TaskID:  task.ID,
		Input:   input,
		Params:  params,
		State:   state,
		Targets: targets,
		Now:     e.now,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := r.recordTaskAttempt(ctx, run.RunID, task, idx, attempt, attempts, input); err != nil {
			return tasks.Result{}, err
		}

		taskCtx, cancel := context.WithTimeout(ctx, timeout)
		result, execErr := executor.Execute(taskCtx, inv)
		cancel()

		if execErr == nil {
			if err := r.recordTaskSuccess(ctx, run.RunID, task.ID, result.Output); err != nil {
				return tasks.Result{}, err
			}
			return result, nil
		}
		lastErr = execErr

		retryable := tasks.IsTransient(execErr) && task.IsIdempotent()
		if !retryable || attempt == attempts {
			break
		}
		delay := r.backoff(attempt)
		r.Log.Info("retrying task", "run_id", run.RunID, "task_id", task.ID, "attempt", attempt, "delay", delay)
		if err := r.Sleep(ctx, delay); err != nil {
			return tasks.Result{}, err
		}
	}

	if err := r.recordTaskFailure(ctx, run.RunID, task.ID, lastErr); err != nil {
		return tasks.Result{}, err
	}
	return tasks.Result{}, lastErr
}

// backoff doubles from the configured floor, capped at the ceiling, with
// proportional jitter.
func (r *Runner) backoff(attempt int) time.Duration {
	cfg := r.Engine.Config.Retry
	delay := float64(cfg.MinDelayMS)
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= float64(cfg.MaxDelayMS) {
			delay = float64(cfg.MaxDelayMS)
			break
		}
	}
	if cfg.Jitter > 0 {
		delay += delay * cfg.Jitter * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay) * time.Millisecond
}

func (r *Runner) recordTaskAttempt(ctx context.Context, runID string, task plan.Task, idx, attempt, maxAttempts int, input map[string]any) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	inputJSON, _ := json.Marshal(input)
	tr := domain.TaskRun{
		TaskRunID:        uuid.NewString(),
		RunID:            runID,
		TaskID:           task.ID,
		TaskIndex:        idx,
		TaskName:         task.Name,
		TaskType:         string(task.Type),
		Status:           domain.TaskRunning,
		Attempt:          attempt,
		MaxAttempts:      maxAttempts,
		Idempotent:       task.IsIdempotent(),
		RequiresApproval: task.RequiresApproval,
		StartedAt:        &now,
		InputJSON:        string(inputJSON),
	}
	if err := e.Repo.UpsertTaskRun(ctx, tx, tr); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.started", "run", runID, r.Owner, events.EventPayload{
		"task_id": task.ID,
		"attempt": attempt,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) recordTaskSuccess(ctx context.Context, runID, taskID string, output map[string]any) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tr, err := e.Repo.GetTaskRunTx(ctx, tx, runID, taskID)
	if err != nil {
		return err
	}
	now := e.nowRFC3339()
	tr.Status = domain.TaskSucceeded
	tr.FinishedAt = &now
	tr.OutputJSON = marshalJSON(output)
	if err := e.Repo.UpsertTaskRun(ctx, tx, tr); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.succeeded", "run", runID, r.Owner, events.EventPayload{"task_id": taskID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) recordTaskFailure(ctx context.Context, runID, taskID string, execErr error) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tr, err := e.Repo.GetTaskRunTx(ctx, tx, runID, taskID)
	if err != nil {
		return err
	}
	now := e.nowRFC3339()
	code := tasks.Code(execErr)
	msg := execErr.Error()
	tr.Status = domain.TaskFailed
	tr.FinishedAt = &now
	tr.ErrorCode = &code
	tr.ErrorMessage = &msg
	if err := e.Repo.UpsertTaskRun(ctx, tx, tr); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.failed", "run", runID, r.Owner, events.EventPayload{
		"task_id": taskID,
		"code":    code,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) markStarted(ctx context.Context, runID string) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkRunStarted(ctx, tx, runID, e.nowRFC3339()); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) succeed(ctx context.Context, runID string) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.FinishRun(ctx, tx, runID, domain.RunSucceeded, e.nowRFC3339(), nil, nil); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "run.succeeded", "run", runID, r.Owner, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) failRun(ctx context.Context, runID, code, msg string) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.FinishRun(ctx, tx, runID, domain.RunFailed, e.nowRFC3339(), &code, &msg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "run.failed", "run", runID, r.Owner, events.EventPayload{
		"code":    code,
		"message": msg,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) block(ctx context.Context, runID string) error {
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.BlockRun(ctx, tx, runID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "run.blocked", "run", runID, r.Owner, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// park records the deferring task as succeeded and schedules the run to wake
// after the resume time. The worker is released immediately.
func (r *Runner) park(ctx context.Context, runID string, task plan.Task, idx int, result tasks.Result) error {
	if err := r.recordTaskSuccess(ctx, runID, task.ID, result.Output); err != nil {
		return err
	}
	e := r.Engine
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	wakeAt := result.ResumeAt.UTC().Format(time.RFC3339)
	if err := e.Repo.ParkRun(ctx, tx, runID, wakeAt); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "run.parked", "run", runID, r.Owner, events.EventPayload{
		"task_id": task.ID,
		"wake_at": wakeAt,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// checkRunTimeout fails runs whose execution has lived past the configured
// ceiling. Time spent queued behind a backlog does not count; the clock
// starts at the first claim.
func (r *Runner) checkRunTimeout(ctx context.Context, run domain.Run) (bool, error) {
	limit := time.Duration(r.Engine.Config.Runner.RunTimeoutMS) * time.Millisecond
	if limit <= 0 || run.StartedAt == nil {
		return false, nil
	}
	started, err := time.Parse(time.RFC3339, *run.StartedAt)
	if err != nil {
		return false, nil
	}
	if r.Engine.now().UTC().Sub(started) <= limit {
		return false, nil
	}
	return true, r.failRun(ctx, run.RunID, domain.ErrCodeRunTimeout,
		fmt.Sprintf("run exceeded %s", limit))
}

// restoreState reloads outputs of previously completed tasks so resumed runs
// continue where they left off.
func (r *Runner) restoreState(ctx context.Context, runID string, p *plan.Plan, state map[string]any) (map[string]bool, error) {
	completed, err := r.Engine.Repo.SucceededTaskRuns(ctx, runID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(completed))
	for _, tr := range completed {
		done[tr.TaskID] = true
		if tr.OutputJSON == nil {
			continue
		}
		var output map[string]any
		if err := json.Unmarshal([]byte(*tr.OutputJSON), &output); err != nil {
			continue
		}
		if task, ok := p.TaskByID(tr.TaskID); ok {
			saveOutput(state, task, output)
		}
	}
	return done, nil
}

// saveOutput exposes a task's output under its id, and additionally under
// the plan's save_as alias.
func saveOutput(state map[string]any, task plan.Task, output map[string]any) {
	if output == nil {
		output = map[string]any{}
	}
	state[task.ID] = output
	if task.Output != nil && task.Output.SaveAs != "" {
		state[task.Output.SaveAs] = output
	}
}

// persistArtifact stores evidence for tasks that declare an artifact kind.
func (r *Runner) persistArtifact(ctx context.Context, runID string, task plan.Task, output map[string]any) error {
	if r.Artifacts == nil || task.Output == nil || task.Output.ArtifactKind == "" {
		return nil
	}
	return r.Artifacts.SaveJSON(ctx, runID, task.Output.ArtifactKind, map[string]any{
		"task_id": task.ID,
		"output":  output,
	})
}
