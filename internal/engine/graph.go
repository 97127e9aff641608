package engine

import (
	"context"
	"database/sql"
	"time"

	"taskline/internal/domain"
	"taskline/internal/events"
)

// AddDependency records that taskID depends on dependsOnID. The edge insert
// and the blocking side effect commit together.
func (e Engine) AddDependency(ctx context.Context, taskID, dependsOnID int64, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.addDependencyTx(ctx, tx, taskID, dependsOnID, actorID); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) addDependencyTx(ctx context.Context, tx *sql.Tx, taskID, dependsOnID int64, actorID string) error {
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}
	target, err := e.Repo.GetTaskTx(ctx, tx, dependsOnID)
	if err != nil {
		return err
	}
	cycle, err := e.wouldCreateCycleTx(ctx, tx, taskID, dependsOnID)
	if err != nil {
		return err
	}
	if cycle {
		return CycleError{TaskID: taskID, DependsOnID: dependsOnID}
	}
	exists, err := e.Repo.DependencyExistsTx(ctx, tx, taskID, dependsOnID)
	if err != nil {
		return err
	}
	if exists {
		return DuplicateEdgeError{TaskID: taskID, DependsOnID: dependsOnID}
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	edge := domain.DependencyEdge{TaskID: taskID, DependsOnID: dependsOnID, CreatedAt: nowStr}
	if err := e.Repo.InsertDependency(ctx, tx, edge); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "dependency.added", "task", itoa(taskID), actorID, events.EventPayload{
		"depends_on": dependsOnID,
	}); err != nil {
		return err
	}
	if target.Status != "done" && t.Status != "blocked" {
		if err := e.Repo.UpdateTaskStatus(ctx, tx, taskID, "blocked", nowStr); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "task.status_changed", "task", itoa(taskID), actorID, events.EventPayload{
			"from": t.Status,
			"to":   "blocked",
		}); err != nil {
			return err
		}
	}
	return nil
}

// wouldCreateCycleTx reports whether taskID is reachable from dependsOnID
// along existing depends-on edges. Depth-first with a visited set, so each
// edge is walked at most once per call.
func (e Engine) wouldCreateCycleTx(ctx context.Context, tx *sql.Tx, taskID, dependsOnID int64) (bool, error) {
	visited := map[int64]bool{}
	stack := []int64{dependsOnID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == taskID {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		next, err := e.Repo.ListTaskDependenciesTx(ctx, tx, cur)
		if err != nil {
			return false, err
		}
		stack = append(stack, next...)
	}
	return false, nil
}

// RemoveDependency deletes the edge and, when the task was blocked and no
// incomplete dependencies remain, returns it to not_started in the same
// transaction.
func (e Engine) RemoveDependency(ctx context.Context, taskID, dependsOnID int64, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDependency(ctx, tx, taskID, dependsOnID); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "dependency.removed", "task", itoa(taskID), actorID, events.EventPayload{
		"depends_on": dependsOnID,
	}); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, err
	}
	if t.Status == "blocked" {
		incomplete, err := e.Repo.IncompleteDependencyCountTx(ctx, tx, taskID)
		if err != nil {
			return t, err
		}
		if incomplete == 0 {
			nowStr := e.now().UTC().Format(time.RFC3339)
			if err := e.Repo.UpdateTaskStatus(ctx, tx, taskID, "not_started", nowStr); err != nil {
				return t, err
			}
			if err := e.Events.Append(ctx, tx, "task.status_changed", "task", itoa(taskID), actorID, events.EventPayload{
				"from": "blocked",
				"to":   "not_started",
			}); err != nil {
				return t, err
			}
			t.Status = "not_started"
			t.UpdatedAt = nowStr
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.DependsOn, _ = e.Repo.ListTaskDependencies(ctx, t.ID)
	return t, nil
}

// Dependencies returns the tasks the given task directly depends on.
func (e Engine) Dependencies(ctx context.Context, taskID int64) ([]domain.Task, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	ids, err := e.Repo.ListTaskDependencies(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return e.loadTasks(ctx, ids)
}

// Dependents returns the tasks that directly depend on the given task.
func (e Engine) Dependents(ctx context.Context, taskID int64) ([]domain.Task, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	ids, err := e.Repo.ListTaskDependents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return e.loadTasks(ctx, ids)
}

func (e Engine) loadTasks(ctx context.Context, ids []int64) ([]domain.Task, error) {
	res := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := e.Repo.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// IsAvailable reports whether the task could be worked on now: its stored
// status is not blocked and every direct dependency is done.
func (e Engine) IsAvailable(ctx context.Context, taskID int64) (bool, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if t.Status == "blocked" {
		return false, nil
	}
	for _, depID := range t.DependsOn {
		dep, err := e.Repo.GetTask(ctx, depID)
		if err != nil {
			return false, err
		}
		if dep.Status != "done" {
			return false, nil
		}
	}
	return true, nil
}

// IsBlocked reports whether the task has at least one incomplete
// dependency. Computed from the edges, not the stored status.
func (e Engine) IsBlocked(ctx context.Context, taskID int64) (bool, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, depID := range t.DependsOn {
		dep, err := e.Repo.GetTask(ctx, depID)
		if err != nil {
			return false, err
		}
		if dep.Status != "done" {
			return true, nil
		}
	}
	return false, nil
}

// Edges in the store are kept acyclic, but the tree walk still carries a
// visited set and a depth cap so data mutated outside the engine cannot
// trap it in a loop.
const maxTreeDepth = 32

// DependencyTree builds the recursive depends-on structure plus a shallow
// required-by list at every node.
func (e Engine) DependencyTree(ctx context.Context, taskID int64) (*domain.DependencyNode, error) {
	visited := map[int64]bool{}
	return e.dependencyTree(ctx, taskID, visited, 0)
}

func (e Engine) dependencyTree(ctx context.Context, taskID int64, visited map[int64]bool, depth int) (*domain.DependencyNode, error) {
	if depth > maxTreeDepth || visited[taskID] {
		return nil, nil
	}
	visited[taskID] = true
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	node := &domain.DependencyNode{Task: t, DependsOn: []*domain.DependencyNode{}}
	for _, depID := range t.DependsOn {
		child, err := e.dependencyTree(ctx, depID, visited, depth+1)
		if err != nil {
			return nil, err
		}
		if child != nil {
			node.DependsOn = append(node.DependsOn, child)
		}
	}
	dependents, err := e.Repo.ListTaskDependents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	refs, err := e.Repo.TaskRefs(ctx, dependents)
	if err != nil {
		return nil, err
	}
	node.RequiredBy = refs
	return node, nil
}
