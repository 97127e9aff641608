package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertTimeLog(ctx context.Context, tx *sql.Tx, l domain.TimeLog) (int64, error) {
	var end any
	if l.EndTime != nil {
		end = *l.EndTime
	}
	var minutes any
	if l.DurationMinutes != nil {
		minutes = *l.DurationMinutes
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO time_logs(task_id,start_time,end_time,duration_minutes,created_at)
VALUES (?,?,?,?,?)`, l.TaskID, l.StartTime, end, minutes, l.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanTimeLogRow(scan func(...any) error) (domain.TimeLog, error) {
	var l domain.TimeLog
	var end sql.NullString
	var minutes sql.NullInt64
	err := scan(&l.ID, &l.TaskID, &l.StartTime, &end, &minutes, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if end.Valid {
		l.EndTime = &end.String
	}
	if minutes.Valid {
		m := int(minutes.Int64)
		l.DurationMinutes = &m
	}
	return l, nil
}

const timeLogCols = `id,task_id,start_time,end_time,duration_minutes,created_at`

// ActiveTimeLogTx returns the open log for a task, if any.
func (r Repo) ActiveTimeLogTx(ctx context.Context, tx *sql.Tx, taskID int64) (domain.TimeLog, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+timeLogCols+` FROM time_logs WHERE task_id=? AND end_time IS NULL`, taskID)
	return scanTimeLogRow(row.Scan)
}

func (r Repo) ActiveTimeLogs(ctx context.Context) ([]domain.TimeLog, error) {
	return r.queryTimeLogs(ctx, `SELECT `+timeLogCols+` FROM time_logs WHERE end_time IS NULL ORDER BY start_time ASC`)
}

func (r Repo) CloseTimeLog(ctx context.Context, tx *sql.Tx, id int64, endTime string, minutes int) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_logs SET end_time=?, duration_minutes=? WHERE id=? AND end_time IS NULL`,
		endTime, minutes, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTimeLogs(ctx context.Context, taskID int64) ([]domain.TimeLog, error) {
	return r.queryTimeLogs(ctx, `SELECT `+timeLogCols+` FROM time_logs WHERE task_id=? ORDER BY start_time ASC, id ASC`, taskID)
}

func (r Repo) queryTimeLogs(ctx context.Context, query string, args ...any) ([]domain.TimeLog, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeLog
	for rows.Next() {
		l, err := scanTimeLogRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTimeLog(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM time_logs WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TotalMinutesForTask sums closed log durations for one task.
func (r Repo) TotalMinutesForTask(ctx context.Context, taskID int64) (int, error) {
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(duration_minutes),0) FROM time_logs WHERE task_id=? AND duration_minutes IS NOT NULL`, taskID).Scan(&total)
	return total, err
}
