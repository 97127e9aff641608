package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskline/internal/domain"
)

// Repo wraps raw SQL access to the taskline schema.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(title,description,priority,status,due_date,is_recurring,recurring_pattern_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		t.Title, nullable(t.Description), t.Priority, t.Status, nullableStringPtr(t.DueDate),
		boolInt(t.IsRecurring), nullableInt64Ptr(t.RecurringPatternID), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, priority=?, status=?, due_date=?, is_recurring=?, recurring_pattern_id=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Priority, t.Status, nullableStringPtr(t.DueDate),
		boolInt(t.IsRecurring), nullableInt64Ptr(t.RecurringPatternID), t.UpdatedAt, t.ID)
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

// UpdateTaskStatus moves a task without touching its other columns. Used by
// the lifecycle cascade where only status and updated_at change.
func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id int64, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
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

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
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

func scanTaskRow(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var description, dueDate sql.NullString
	var patternID sql.NullInt64
	var recurring int
	err := scan(&t.ID, &t.Title, &description, &t.Priority, &t.Status, &dueDate, &recurring, &patternID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	t.IsRecurring = recurring != 0
	if patternID.Valid {
		t.RecurringPatternID = &patternID.Int64
	}
	return t, nil
}

const taskCols = `id,title,description,priority,status,due_date,is_recurring,recurring_pattern_id,created_at,updated_at`

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTaskRow(row.Scan)
	if err != nil {
		return t, err
	}
	deps, err := r.ListTaskDependencies(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.DependsOn = deps
	return t, nil
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTaskRow(row.Scan)
	if err != nil {
		return t, err
	}
	deps, err := r.ListTaskDependenciesTx(ctx, tx, t.ID)
	if err != nil {
		return t, err
	}
	t.DependsOn = deps
	return t, nil
}

type TaskFilters struct {
	Status          string
	Priority        string
	Recurring       *bool
	DueBefore       string
	Limit           int
	CursorCreatedAt string
	CursorID        int64
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Recurring != nil {
		clauses = append(clauses, "is_recurring=?")
		args = append(args, boolInt(*f.Recurring))
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, f.DueBefore)
	}
	if f.CursorCreatedAt != "" && f.CursorID != 0 {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryTasks(ctx, query, args...)
}

// AvailableTasks returns tasks whose status is not blocked and whose direct
// dependencies are all done.
func (r Repo) AvailableTasks(ctx context.Context) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskCols+` FROM tasks
WHERE status != 'blocked' AND NOT EXISTS (
  SELECT 1 FROM task_dependencies d JOIN tasks dep ON dep.id = d.depends_on_id
  WHERE d.task_id = tasks.id AND dep.status != 'done')
ORDER BY created_at DESC, id DESC`)
}

// BlockedTasks returns tasks with at least one incomplete dependency,
// regardless of their stored status.
func (r Repo) BlockedTasks(ctx context.Context) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskCols+` FROM tasks
WHERE EXISTS (
  SELECT 1 FROM task_dependencies d JOIN tasks dep ON dep.id = d.depends_on_id
  WHERE d.task_id = tasks.id AND dep.status != 'done')
ORDER BY created_at DESC, id DESC`)
}

func (r Repo) OverdueTasks(ctx context.Context, today string) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskCols+` FROM tasks
WHERE due_date IS NOT NULL AND due_date < ? AND status != 'done'
ORDER BY due_date ASC, id ASC`, today)
}

// NextTask suggests the highest-priority task that could be started right
// now, earliest due date first.
func (r Repo) NextTask(ctx context.Context) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks
WHERE status NOT IN ('done','blocked','in_progress') AND NOT EXISTS (
  SELECT 1 FROM task_dependencies d JOIN tasks dep ON dep.id = d.depends_on_id
  WHERE d.task_id = tasks.id AND dep.status != 'done')
ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
  COALESCE(due_date, '9999-12-31') ASC, created_at ASC
LIMIT 1`)
	t, err := scanTaskRow(row.Scan)
	if err != nil {
		return t, err
	}
	deps, err := r.ListTaskDependencies(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.DependsOn = deps
	return t, nil
}

func (r Repo) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
}

func (r Repo) CountTasksByPriority(ctx context.Context) (map[string]int, error) {
	return r.countGrouped(ctx, `SELECT priority, COUNT(1) FROM tasks GROUP BY priority`)
}

func (r Repo) countGrouped(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		res[key] = count
	}
	return res, rows.Err()
}

// TableCounts reports row counts per table for the db stats command.
func (r Repo) TableCounts(ctx context.Context) (map[string]int, error) {
	tables := []string{"tasks", "task_dependencies", "recurring_patterns", "time_logs", "productivity_stats", "users", "api_keys", "events"}
	res := map[string]int{}
	for _, table := range tables {
		var n int
		if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table).Scan(&n); err != nil {
			return nil, err
		}
		res[table] = n
	}
	return res, nil
}

// ClearAll removes every row from the data tables, keeping the schema.
func (r Repo) ClearAll(ctx context.Context) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"time_logs", "task_dependencies", "tasks", "recurring_patterns", "productivity_stats", "api_keys", "users", "events"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}
