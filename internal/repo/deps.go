package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

// ListTaskDependencies returns the ids of tasks the given task depends on.
func (r Repo) ListTaskDependencies(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT depends_on_id FROM task_dependencies WHERE task_id=? ORDER BY depends_on_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r Repo) ListTaskDependenciesTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT depends_on_id FROM task_dependencies WHERE task_id=? ORDER BY depends_on_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ListTaskDependents returns the ids of tasks that depend on the given task.
func (r Repo) ListTaskDependents(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id FROM task_dependencies WHERE depends_on_id=? ORDER BY task_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r Repo) ListTaskDependentsTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT task_id FROM task_dependencies WHERE depends_on_id=? ORDER BY task_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) DependencyExistsTx(ctx context.Context, tx *sql.Tx, taskID, dependsOnID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM task_dependencies WHERE task_id=? AND depends_on_id=?`, taskID, dependsOnID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, e domain.DependencyEdge) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_dependencies(task_id,depends_on_id,created_at) VALUES (?,?,?)`,
		e.TaskID, e.DependsOnID, e.CreatedAt)
	return err
}

func (r Repo) DeleteDependency(ctx context.Context, tx *sql.Tx, taskID, dependsOnID int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id=? AND depends_on_id=?`, taskID, dependsOnID)
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

// IncompleteDependencyCountTx counts direct dependencies of the task that are
// not done yet.
func (r Repo) IncompleteDependencyCountTx(ctx context.Context, tx *sql.Tx, taskID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM task_dependencies d
JOIN tasks dep ON dep.id = d.depends_on_id
WHERE d.task_id=? AND dep.status != 'done'`, taskID).Scan(&n)
	return n, err
}

// TaskRefs resolves ids to id/title pairs, preserving the input order and
// skipping ids that no longer exist.
func (r Repo) TaskRefs(ctx context.Context, ids []int64) ([]domain.TaskRef, error) {
	refs := make([]domain.TaskRef, 0, len(ids))
	for _, id := range ids {
		var ref domain.TaskRef
		err := r.DB.QueryRowContext(ctx, `SELECT id, title FROM tasks WHERE id=?`, id).Scan(&ref.ID, &ref.Title)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
