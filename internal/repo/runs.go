package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const runColumns = `run_id,plan_id,plan_hash,status,requested_by,idempotency_key,created_at,started_at,finished_at,claimed_by,claim_expires_at,wake_at,params_json,error_code,error_message`

func scanRun(s scanner) (domain.Run, error) {
	var r domain.Run
	var requestedBy, idemKey, startedAt, finishedAt, claimedBy, claimExpires, wakeAt, errCode, errMsg sql.NullString
	err := s.Scan(&r.RunID, &r.PlanID, &r.PlanHash, &r.Status, &requestedBy, &idemKey, &r.CreatedAt,
		&startedAt, &finishedAt, &claimedBy, &claimExpires, &wakeAt, &r.ParamsJSON, &errCode, &errMsg)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.RequestedBy = stringPtr(requestedBy)
	r.IdempotencyKey = stringPtr(idemKey)
	r.StartedAt = stringPtr(startedAt)
	r.FinishedAt = stringPtr(finishedAt)
	r.ClaimedBy = stringPtr(claimedBy)
	r.ClaimExpiresAt = stringPtr(claimExpires)
	r.WakeAt = stringPtr(wakeAt)
	r.ErrorCode = stringPtr(errCode)
	r.ErrorMessage = stringPtr(errMsg)
	return r, nil
}

func (r Repo) InsertRun(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO runs(`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.RunID, run.PlanID, run.PlanHash, run.Status, nullableStringPtr(run.RequestedBy), nullableStringPtr(run.IdempotencyKey),
		run.CreatedAt, nullableStringPtr(run.StartedAt), nullableStringPtr(run.FinishedAt), nullableStringPtr(run.ClaimedBy),
		nullableStringPtr(run.ClaimExpiresAt), nullableStringPtr(run.WakeAt), run.ParamsJSON,
		nullableStringPtr(run.ErrorCode), nullableStringPtr(run.ErrorMessage))
	return err
}

func (r Repo) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id=?`, runID))
}

func (r Repo) GetRunTx(ctx context.Context, tx *sql.Tx, runID string) (domain.Run, error) {
	return scanRun(tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id=?`, runID))
}

// FindRunByIdempotencyKey returns the existing run for a key, if any.
func (r Repo) FindRunByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (domain.Run, error) {
	return scanRun(tx.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE idempotency_key=?`, key))
}

type RunFilters struct {
	Status string
	PlanID string
	Limit  int
}

func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.Run, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PlanID != "" {
		clauses = append(clauses, "plan_id=?")
		args = append(args, f.PlanID)
	}
	query := `SELECT ` + runColumns + ` FROM runs ` + whereClause(clauses) + ` ORDER BY created_at DESC, run_id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

// ClaimableRuns returns runs a worker may try to claim: queued, parked runs
// whose wake time passed, or runs whose previous claim expired. Ordered
// oldest first.
func (r Repo) ClaimableRuns(ctx context.Context, owner, now string, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
WHERE status IN ('queued','running','blocked_for_approval')
  AND (claimed_by IS NULL OR claimed_by=? OR claim_expires_at IS NULL OR claim_expires_at<?)
  AND (wake_at IS NULL OR wake_at<=?)
ORDER BY created_at ASC, run_id ASC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, owner, now, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

// ClaimRun is a compare-and-set: it succeeds only when the run is still in a
// claimable status and not validly claimed by another owner.
func (r Repo) ClaimRun(ctx context.Context, runID, owner, expiresAt, now string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE runs SET claimed_by=?, claim_expires_at=?, wake_at=NULL
WHERE run_id=?
  AND status IN ('queued','running','blocked_for_approval')
  AND (claimed_by IS NULL OR claimed_by=? OR claim_expires_at IS NULL OR claim_expires_at<?)
  AND (wake_at IS NULL OR wake_at<=?)`,
		owner, expiresAt, runID, owner, now, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RenewClaim extends the lease; fails when the claim was lost to another
// owner.
func (r Repo) RenewClaim(ctx context.Context, runID, owner, expiresAt string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE runs SET claim_expires_at=? WHERE run_id=? AND claimed_by=?`,
		expiresAt, runID, owner)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) ClearClaim(ctx context.Context, tx *sql.Tx, runID, owner string) error {
	_, err := tx.ExecContext(ctx, `UPDATE runs SET claimed_by=NULL, claim_expires_at=NULL WHERE run_id=? AND claimed_by=?`, runID, owner)
	return err
}

func (r Repo) SetRunStatus(ctx context.Context, tx *sql.Tx, runID, status string) error {
	_, err := tx.ExecContext(ctx, `UPDATE runs SET status=? WHERE run_id=?`, status, runID)
	return err
}

func (r Repo) MarkRunStarted(ctx context.Context, tx *sql.Tx, runID, startedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE runs SET status='running', started_at=COALESCE(started_at,?) WHERE run_id=?`, startedAt, runID)
	return err
}

// FinishRun records a terminal status and releases the claim.
func (r Repo) FinishRun(ctx context.Context, tx *sql.Tx, runID, status, finishedAt string, errCode, errMsg *string) error {
	_, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, finished_at=?, error_code=?, error_message=?, claimed_by=NULL, claim_expires_at=NULL, wake_at=NULL WHERE run_id=?`,
		status, finishedAt, nullableStringPtr(errCode), nullableStringPtr(errMsg), runID)
	return err
}

// ParkRun releases the claim and sets the wake time for a deferred resume.
func (r Repo) ParkRun(ctx context.Context, tx *sql.Tx, runID, wakeAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE runs SET wake_at=?, claimed_by=NULL, claim_expires_at=NULL WHERE run_id=?`, wakeAt, runID)
	return err
}

// BlockRun marks the run waiting on approval and releases the claim so other
// workers do not spin on it.
func (r Repo) BlockRun(ctx context.Context, tx *sql.Tx, runID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE runs SET status='blocked_for_approval', claimed_by=NULL, claim_expires_at=NULL WHERE run_id=?`, runID)
	return err
}
