package engine

import (
	"context"
	"errors"
	"time"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

// StartTask moves a task to in_progress. Allowed from not_started or
// blocked; every direct dependency must be done. The stored status is not
// trusted for the guard, the dependencies are re-checked.
func (e Engine) StartTask(ctx context.Context, id int64, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Status != "not_started" && t.Status != "blocked" {
		return t, validationf("cannot start task %d from status %s", id, t.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	incomplete, err := e.Repo.IncompleteDependencyCountTx(ctx, tx, id)
	if err != nil {
		return t, err
	}
	if incomplete > 0 {
		return t, validationf("cannot start task %d: %d dependencies not done", id, incomplete)
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTaskStatus(ctx, tx, id, "in_progress", nowStr); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.status_changed", "task", itoa(id), actorID, events.EventPayload{
		"from": t.Status,
		"to":   "in_progress",
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.Status = "in_progress"
	t.UpdatedAt = nowStr
	return t, nil
}

// CompleteTask moves a task to done and runs the one-hop unblock cascade:
// every blocked direct dependent whose dependencies are now all done returns
// to not_started, one level deep only. An active timer on the task is stopped
// first. One transaction covers the timer, the completion and the cascade.
// The second return value lists the dependents the cascade moved.
func (e Engine) CompleteTask(ctx context.Context, id int64, actorID string) (domain.Task, []domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, nil, err
	}
	if t.Status == "done" {
		return t, nil, validationf("task %d is already done", id)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, nil, err
	}
	defer tx.Rollback()

	now := e.now().UTC()
	active, err := e.Repo.ActiveTimeLogTx(ctx, tx, id)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return t, nil, err
	}
	if err == nil {
		if _, err := e.stopTimerTx(ctx, tx, active, now, actorID); err != nil {
			return t, nil, err
		}
	}

	nowStr := now.Format(time.RFC3339)
	if err := e.Repo.UpdateTaskStatus(ctx, tx, id, "done", nowStr); err != nil {
		return t, nil, err
	}
	if err := e.Events.Append(ctx, tx, "task.status_changed", "task", itoa(id), actorID, events.EventPayload{
		"from": t.Status,
		"to":   "done",
	}); err != nil {
		return t, nil, err
	}

	dependents, err := e.Repo.ListTaskDependentsTx(ctx, tx, id)
	if err != nil {
		return t, nil, err
	}
	var unblocked []domain.Task
	for _, depID := range dependents {
		incomplete, err := e.Repo.IncompleteDependencyCountTx(ctx, tx, depID)
		if err != nil {
			return t, nil, err
		}
		if incomplete > 0 {
			continue
		}
		dep, err := e.Repo.GetTaskTx(ctx, tx, depID)
		if err != nil {
			return t, nil, err
		}
		if dep.Status != "blocked" {
			continue
		}
		if err := e.Repo.UpdateTaskStatus(ctx, tx, depID, "not_started", nowStr); err != nil {
			return t, nil, err
		}
		if err := e.Events.Append(ctx, tx, "task.status_changed", "task", itoa(depID), actorID, events.EventPayload{
			"from": dep.Status,
			"to":   "not_started",
		}); err != nil {
			return t, nil, err
		}
		dep.Status = "not_started"
		dep.UpdatedAt = nowStr
		unblocked = append(unblocked, dep)
	}
	if err := tx.Commit(); err != nil {
		return t, nil, err
	}
	t.Status = "done"
	t.UpdatedAt = nowStr
	return t, unblocked, nil
}

// BlockTask moves a task to blocked from any status, no guard.
func (e Engine) BlockTask(ctx context.Context, id int64, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Status == "blocked" {
		return t, nil
	}
	return e.setStatus(ctx, t, "blocked", actorID)
}

// SetStatus is the admin-style overwrite: enum is validated, lifecycle
// guards are not applied.
func (e Engine) SetStatus(ctx context.Context, id int64, status, actorID string) (domain.Task, error) {
	if err := validateStatus(status); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Status == status {
		return t, nil
	}
	return e.setStatus(ctx, t, status, actorID)
}

func (e Engine) setStatus(ctx context.Context, t domain.Task, status, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTaskStatus(ctx, tx, t.ID, status, nowStr); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.status_changed", "task", itoa(t.ID), actorID, events.EventPayload{
		"from": t.Status,
		"to":   status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.Status = status
	t.UpdatedAt = nowStr
	return t, nil
}
