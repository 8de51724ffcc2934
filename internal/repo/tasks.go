package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const taskRunColumns = `task_run_id,run_id,task_id,task_index,task_name,task_type,status,attempt,max_attempts,idempotent,requires_approval,started_at,finished_at,input_json,output_json,error_code,error_message`

func scanTaskRun(s scanner) (domain.TaskRun, error) {
	var t domain.TaskRun
	var startedAt, finishedAt, outputJSON, errCode, errMsg sql.NullString
	var idempotent, requiresApproval int
	err := s.Scan(&t.TaskRunID, &t.RunID, &t.TaskID, &t.TaskIndex, &t.TaskName, &t.TaskType, &t.Status,
		&t.Attempt, &t.MaxAttempts, &idempotent, &requiresApproval, &startedAt, &finishedAt,
		&t.InputJSON, &outputJSON, &errCode, &errMsg)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Idempotent = idempotent != 0
	t.RequiresApproval = requiresApproval != 0
	t.StartedAt = stringPtr(startedAt)
	t.FinishedAt = stringPtr(finishedAt)
	t.OutputJSON = stringPtr(outputJSON)
	t.ErrorCode = stringPtr(errCode)
	t.ErrorMessage = stringPtr(errMsg)
	return t, nil
}

// UpsertTaskRun inserts or replaces the single row per (run, task). Retries
// of the same task update the row in place rather than stacking history.
func (r Repo) UpsertTaskRun(ctx context.Context, tx *sql.Tx, t domain.TaskRun) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO run_tasks(`+taskRunColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(run_id, task_id) DO UPDATE SET
  status=excluded.status, attempt=excluded.attempt, started_at=excluded.started_at,
  finished_at=excluded.finished_at, input_json=excluded.input_json, output_json=excluded.output_json,
  error_code=excluded.error_code, error_message=excluded.error_message`,
		t.TaskRunID, t.RunID, t.TaskID, t.TaskIndex, t.TaskName, t.TaskType, t.Status,
		t.Attempt, t.MaxAttempts, boolToInt(t.Idempotent), boolToInt(t.RequiresApproval),
		nullableStringPtr(t.StartedAt), nullableStringPtr(t.FinishedAt), t.InputJSON,
		nullableStringPtr(t.OutputJSON), nullableStringPtr(t.ErrorCode), nullableStringPtr(t.ErrorMessage))
	return err
}

func (r Repo) GetTaskRun(ctx context.Context, runID, taskID string) (domain.TaskRun, error) {
	return scanTaskRun(r.DB.QueryRowContext(ctx, `SELECT `+taskRunColumns+` FROM run_tasks WHERE run_id=? AND task_id=?`, runID, taskID))
}

func (r Repo) GetTaskRunTx(ctx context.Context, tx *sql.Tx, runID, taskID string) (domain.TaskRun, error) {
	return scanTaskRun(tx.QueryRowContext(ctx, `SELECT `+taskRunColumns+` FROM run_tasks WHERE run_id=? AND task_id=?`, runID, taskID))
}

func (r Repo) ListTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskRunColumns+` FROM run_tasks WHERE run_id=? ORDER BY task_index ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRun
	for rows.Next() {
		t, err := scanTaskRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// SucceededTaskRuns returns completed tasks for a run so a resumed run can
// restore outputs without re-executing.
func (r Repo) SucceededTaskRuns(ctx context.Context, runID string) ([]domain.TaskRun, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskRunColumns+` FROM run_tasks WHERE run_id=? AND status IN ('succeeded','skipped') ORDER BY task_index ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskRun
	for rows.Next() {
		t, err := scanTaskRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
