package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertPattern(ctx context.Context, tx *sql.Tx, p domain.RecurringPattern) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO recurring_patterns(frequency,interval,days_of_week,end_date,created_at)
VALUES (?,?,?,?,?)`,
		p.Frequency, p.Interval, nullableStringPtr(p.DaysOfWeekJSON), nullableStringPtr(p.EndDate), p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanPatternRow(scan func(...any) error) (domain.RecurringPattern, error) {
	var p domain.RecurringPattern
	var days, endDate sql.NullString
	err := scan(&p.ID, &p.Frequency, &p.Interval, &days, &endDate, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if days.Valid {
		p.DaysOfWeekJSON = &days.String
	}
	if endDate.Valid {
		p.EndDate = &endDate.String
	}
	return p, nil
}

const patternCols = `id,frequency,interval,days_of_week,end_date,created_at`

func (r Repo) GetPattern(ctx context.Context, id int64) (domain.RecurringPattern, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+patternCols+` FROM recurring_patterns WHERE id=?`, id)
	return scanPatternRow(row.Scan)
}

func (r Repo) GetPatternTx(ctx context.Context, tx *sql.Tx, id int64) (domain.RecurringPattern, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+patternCols+` FROM recurring_patterns WHERE id=?`, id)
	return scanPatternRow(row.Scan)
}

func (r Repo) ListPatterns(ctx context.Context) ([]domain.RecurringPattern, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+patternCols+` FROM recurring_patterns ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecurringPattern
	for rows.Next() {
		p, err := scanPatternRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// TasksForPattern lists the tasks generated from a pattern, oldest first.
func (r Repo) TasksForPattern(ctx context.Context, patternID int64) ([]domain.Task, error) {
	return r.queryTasks(ctx, `SELECT `+taskCols+` FROM tasks
WHERE recurring_pattern_id=? ORDER BY due_date ASC, id ASC`, patternID)
}

// TemplateForPattern returns the recurring template task that carries the
// pattern reference.
func (r Repo) TemplateForPattern(ctx context.Context, patternID int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks
WHERE recurring_pattern_id=? AND is_recurring=1 ORDER BY id LIMIT 1`, patternID)
	return scanTaskRow(row.Scan)
}
