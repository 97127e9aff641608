package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

// DateAggregates computes live counts for one calendar day from the tasks
// and time_logs tables. Timestamps are stored RFC3339, which SQLite's DATE()
// understands directly.
func (r Repo) DateAggregates(ctx context.Context, date string) (domain.DateStats, error) {
	s := domain.DateStats{Date: date}
	err := r.DB.QueryRowContext(ctx, `SELECT
  (SELECT COUNT(1) FROM tasks WHERE status='done' AND DATE(updated_at)=?),
  (SELECT COUNT(1) FROM tasks WHERE DATE(created_at)=?),
  (SELECT COUNT(1) FROM tasks WHERE status='done' AND priority='high' AND DATE(updated_at)=?),
  (SELECT COALESCE(SUM(duration_minutes),0) FROM time_logs WHERE duration_minutes IS NOT NULL AND DATE(start_time)=?)`,
		date, date, date, date).Scan(&s.TasksCompleted, &s.TasksCreated, &s.HighPriorityCompleted, &s.MinutesLogged)
	return s, err
}

// RangeAggregates computes live counts for an inclusive date range.
func (r Repo) RangeAggregates(ctx context.Context, start, end string) (domain.RangeStats, error) {
	s := domain.RangeStats{StartDate: start, EndDate: end}
	err := r.DB.QueryRowContext(ctx, `SELECT
  (SELECT COUNT(1) FROM tasks WHERE status='done' AND DATE(updated_at) BETWEEN ? AND ?),
  (SELECT COUNT(1) FROM tasks WHERE DATE(created_at) BETWEEN ? AND ?),
  (SELECT COUNT(1) FROM tasks WHERE status='done' AND priority='high' AND DATE(updated_at) BETWEEN ? AND ?),
  (SELECT COALESCE(SUM(duration_minutes),0) FROM time_logs WHERE duration_minutes IS NOT NULL AND DATE(start_time) BETWEEN ? AND ?)`,
		start, end, start, end, start, end, start, end).Scan(&s.TasksCompleted, &s.TasksCreated, &s.HighPriorityCompleted, &s.MinutesLogged)
	return s, err
}

// UpsertDateStats caches one day's aggregates in productivity_stats.
func (r Repo) UpsertDateStats(ctx context.Context, s domain.DateStats, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO productivity_stats(date,tasks_completed,tasks_created,high_priority_completed,minutes_logged,updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(date) DO UPDATE SET
  tasks_completed=excluded.tasks_completed,
  tasks_created=excluded.tasks_created,
  high_priority_completed=excluded.high_priority_completed,
  minutes_logged=excluded.minutes_logged,
  updated_at=excluded.updated_at`,
		s.Date, s.TasksCompleted, s.TasksCreated, s.HighPriorityCompleted, s.MinutesLogged, updatedAt)
	return err
}

func (r Repo) CompletionCounts(ctx context.Context) (total, completed int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT COUNT(1), COUNT(CASE WHEN status='done' THEN 1 END) FROM tasks`).Scan(&total, &completed)
	return total, completed, err
}

type PriorityCompletion struct {
	Priority  string
	Total     int
	Completed int
}

func (r Repo) PriorityCompletionCounts(ctx context.Context) ([]PriorityCompletion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT priority, COUNT(1), COUNT(CASE WHEN status='done' THEN 1 END)
FROM tasks GROUP BY priority
ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []PriorityCompletion
	for rows.Next() {
		var pc PriorityCompletion
		if err := rows.Scan(&pc.Priority, &pc.Total, &pc.Completed); err != nil {
			return nil, err
		}
		res = append(res, pc)
	}
	return res, rows.Err()
}

func (r Repo) OverdueCount(ctx context.Context, today string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE status != 'done' AND due_date IS NOT NULL AND due_date < ?`, today).Scan(&n)
	return n, err
}

func (r Repo) BlockedStatusCount(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE status='blocked'`).Scan(&n)
	return n, err
}

// MostProductiveDay is the day with the most completions, or nil when no
// task has been completed.
func (r Repo) MostProductiveDay(ctx context.Context) (*domain.DateStats, error) {
	var s domain.DateStats
	err := r.DB.QueryRowContext(ctx, `SELECT DATE(updated_at), COUNT(1) FROM tasks
WHERE status='done' GROUP BY DATE(updated_at) ORDER BY COUNT(1) DESC LIMIT 1`).Scan(&s.Date, &s.TasksCompleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AvgCompletionDays averages whole days between creation and completion
// across done tasks, or nil when none are done.
func (r Repo) AvgCompletionDays(ctx context.Context) (*float64, error) {
	var avg sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, `SELECT AVG(CAST(julianday(updated_at) - julianday(created_at) AS INTEGER))
FROM tasks WHERE status='done'`).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// PriorityBreakdowns reports per-priority status counts plus total minutes
// logged against that priority's tasks.
func (r Repo) PriorityBreakdowns(ctx context.Context) ([]domain.PriorityBreakdown, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT t.priority,
  COUNT(1),
  COUNT(CASE WHEN t.status='done' THEN 1 END),
  COUNT(CASE WHEN t.status='in_progress' THEN 1 END),
  COUNT(CASE WHEN t.status='blocked' THEN 1 END),
  COALESCE(SUM((SELECT COALESCE(SUM(l.duration_minutes),0) FROM time_logs l WHERE l.task_id=t.id AND l.duration_minutes IS NOT NULL)),0)
FROM tasks t GROUP BY t.priority
ORDER BY CASE t.priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PriorityBreakdown
	for rows.Next() {
		var b domain.PriorityBreakdown
		if err := rows.Scan(&b.Priority, &b.Total, &b.Completed, &b.InProgress, &b.Blocked, &b.TotalMinutes); err != nil {
			return nil, err
		}
		b.Pending = b.Total - b.Completed - b.InProgress - b.Blocked
		res = append(res, b)
	}
	return res, rows.Err()
}
