package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const queueColumns = `queue_id,listing_id,broker_id,action_needed,instructions,priority,status,created_at,completed_at,completed_notes`

func scanQueueItem(s scanner) (domain.HumanQueueItem, error) {
	var q domain.HumanQueueItem
	var listingID, instructions, completedAt, completedNotes sql.NullString
	err := s.Scan(&q.QueueID, &listingID, &q.BrokerID, &q.ActionNeeded, &instructions, &q.Priority,
		&q.Status, &q.CreatedAt, &completedAt, &completedNotes)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}
	q.ListingID = stringPtr(listingID)
	q.Instructions = stringPtr(instructions)
	q.CompletedAt = stringPtr(completedAt)
	q.CompletedNotes = stringPtr(completedNotes)
	return q, nil
}

func (r Repo) InsertQueueItem(ctx context.Context, tx *sql.Tx, q domain.HumanQueueItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO human_action_queue(`+queueColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		q.QueueID, nullableStringPtr(q.ListingID), q.BrokerID, q.ActionNeeded, nullableStringPtr(q.Instructions),
		q.Priority, q.Status, q.CreatedAt, nullableStringPtr(q.CompletedAt), nullableStringPtr(q.CompletedNotes))
	return err
}

func (r Repo) GetQueueItem(ctx context.Context, queueID string) (domain.HumanQueueItem, error) {
	return scanQueueItem(r.DB.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM human_action_queue WHERE queue_id=?`, queueID))
}

func (r Repo) ListQueueItems(ctx context.Context, status string, limit int) ([]domain.HumanQueueItem, error) {
	var clauses []string
	var args []any
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT ` + queueColumns + ` FROM human_action_queue ` + whereClause(clauses) + ` ORDER BY priority DESC, created_at ASC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HumanQueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// CompleteQueueItem transitions pending to completed exactly once.
func (r Repo) CompleteQueueItem(ctx context.Context, tx *sql.Tx, queueID, notes, completedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE human_action_queue SET status='completed', completed_at=?, completed_notes=? WHERE queue_id=? AND status='pending'`,
		completedAt, nullable(notes), queueID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
