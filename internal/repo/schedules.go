package repo

import (
	"context"
	"database/sql"

	"erasure/internal/domain"
)

const scheduleColumns = `schedule_id,broker_id,profile_id,scan_type,next_run_at,last_run_id,last_run_at,interval_days,enabled,created_at`

func scanSchedule(s scanner) (domain.ScanSchedule, error) {
	var sc domain.ScanSchedule
	var lastRunID, lastRunAt sql.NullString
	var enabled int
	err := s.Scan(&sc.ScheduleID, &sc.BrokerID, &sc.ProfileID, &sc.ScanType, &sc.NextRunAt,
		&lastRunID, &lastRunAt, &sc.IntervalDays, &enabled, &sc.CreatedAt)
	if err == sql.ErrNoRows {
		return sc, ErrNotFound
	}
	if err != nil {
		return sc, err
	}
	sc.LastRunID = stringPtr(lastRunID)
	sc.LastRunAt = stringPtr(lastRunAt)
	sc.Enabled = enabled != 0
	return sc, nil
}

// InsertScheduleIfAbsent seeds a schedule once per (broker, profile);
// existing rows keep their cadence.
func (r Repo) InsertScheduleIfAbsent(ctx context.Context, sc domain.ScanSchedule) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO scan_schedule(`+scheduleColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		sc.ScheduleID, sc.BrokerID, sc.ProfileID, sc.ScanType, sc.NextRunAt,
		nullableStringPtr(sc.LastRunID), nullableStringPtr(sc.LastRunAt), sc.IntervalDays, boolToInt(sc.Enabled), sc.CreatedAt)
	return err
}

func (r Repo) GetSchedule(ctx context.Context, scheduleID string) (domain.ScanSchedule, error) {
	return scanSchedule(r.DB.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM scan_schedule WHERE schedule_id=?`, scheduleID))
}

func (r Repo) ListSchedules(ctx context.Context, profileID string) ([]domain.ScanSchedule, error) {
	var clauses []string
	var args []any
	if profileID != "" {
		clauses = append(clauses, "profile_id=?")
		args = append(args, profileID)
	}
	query := `SELECT ` + scheduleColumns + ` FROM scan_schedule ` + whereClause(clauses) + ` ORDER BY next_run_at ASC, schedule_id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScanSchedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sc)
	}
	return res, rows.Err()
}

// DueSchedules returns enabled schedules whose next run time has passed,
// oldest first.
func (r Repo) DueSchedules(ctx context.Context, now string, limit int) ([]domain.ScanSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM scan_schedule WHERE enabled=1 AND next_run_at<=? ORDER BY next_run_at ASC, schedule_id ASC`
	args := []any{now}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScanSchedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sc)
	}
	return res, rows.Err()
}

// MarkScheduleStarted advances the cadence from now, not from the prior due
// time, so a backlog never causes a burst of catch-up scans.
func (r Repo) MarkScheduleStarted(ctx context.Context, scheduleID string, runID *string, lastRunAt, nextRunAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE scan_schedule SET last_run_id=?, last_run_at=?, next_run_at=? WHERE schedule_id=?`,
		nullableStringPtr(runID), lastRunAt, nextRunAt, scheduleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSchedulesEnabledForBroker flips every schedule for a broker, used by
// dead-letter handling.
func (r Repo) SetSchedulesEnabledForBroker(ctx context.Context, brokerID string, enabled bool) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE scan_schedule SET enabled=? WHERE broker_id=?`, boolToInt(enabled), brokerID)
	return err
}
