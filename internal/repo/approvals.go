package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const approvalColumns = `approval_id,run_id,task_id,status,prompt,preview_json,created_at,resolved_at,resolved_by`

func scanApproval(s scanner) (domain.Approval, error) {
	var a domain.Approval
	var preview, resolvedAt, resolvedBy sql.NullString
	err := s.Scan(&a.ApprovalID, &a.RunID, &a.TaskID, &a.Status, &a.Prompt, &preview, &a.CreatedAt, &resolvedAt, &resolvedBy)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.PreviewJSON = stringPtr(preview)
	a.ResolvedAt = stringPtr(resolvedAt)
	a.ResolvedBy = stringPtr(resolvedBy)
	return a, nil
}

// EnsureApproval inserts the approval row for (run, task) if absent and
// returns the current row either way. A re-executed approval gate reuses the
// existing decision.
func (r Repo) EnsureApproval(ctx context.Context, tx *sql.Tx, a domain.Approval) (domain.Approval, error) {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO run_approvals(`+approvalColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ApprovalID, a.RunID, a.TaskID, a.Status, a.Prompt, nullableStringPtr(a.PreviewJSON),
		a.CreatedAt, nullableStringPtr(a.ResolvedAt), nullableStringPtr(a.ResolvedBy))
	if err != nil {
		return domain.Approval{}, err
	}
	return scanApproval(tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM run_approvals WHERE run_id=? AND task_id=?`, a.RunID, a.TaskID))
}

func (r Repo) GetApproval(ctx context.Context, approvalID string) (domain.Approval, error) {
	return scanApproval(r.DB.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM run_approvals WHERE approval_id=?`, approvalID))
}

func (r Repo) GetApprovalTx(ctx context.Context, tx *sql.Tx, approvalID string) (domain.Approval, error) {
	return scanApproval(tx.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM run_approvals WHERE approval_id=?`, approvalID))
}

func (r Repo) GetApprovalForTask(ctx context.Context, runID, taskID string) (domain.Approval, error) {
	return scanApproval(r.DB.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM run_approvals WHERE run_id=? AND task_id=?`, runID, taskID))
}

type ApprovalFilters struct {
	RunID  string
	Status string
	Limit  int
}

func (r Repo) ListApprovals(ctx context.Context, f ApprovalFilters) ([]domain.Approval, error) {
	var clauses []string
	var args []any
	if f.RunID != "" {
		clauses = append(clauses, "run_id=?")
		args = append(args, f.RunID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + approvalColumns + ` FROM run_approvals ` + whereClause(clauses) + ` ORDER BY created_at ASC, approval_id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ResolveApproval transitions pending to approved/denied exactly once. The
// compare-and-set fails (returns false) if the approval was already resolved.
func (r Repo) ResolveApproval(ctx context.Context, tx *sql.Tx, approvalID, status, resolvedBy, resolvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE run_approvals SET status=?, resolved_by=?, resolved_at=? WHERE approval_id=? AND status='pending'`,
		status, resolvedBy, resolvedAt, approvalID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountPendingApprovals tells the runner whether a blocked run is still
// waiting.
func (r Repo) CountPendingApprovals(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM run_approvals WHERE run_id=? AND status='pending'`, runID).Scan(&n)
	return n, err
}
