package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ValidationError marks failed input or state checks. Recoverable; the
// caller reports it and carries on.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) ValidationError {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// CycleError rejects a dependency edge that would close a loop.
type CycleError struct {
	TaskID      int64
	DependsOnID int64
}

func (e CycleError) Error() string {
	return fmt.Sprintf("dependency %d -> %d would create a cycle", e.TaskID, e.DependsOnID)
}

// DuplicateEdgeError rejects a dependency edge that already exists.
type DuplicateEdgeError struct {
	TaskID      int64
	DependsOnID int64
}

func (e DuplicateEdgeError) Error() string {
	return fmt.Sprintf("task %d already depends on %d", e.TaskID, e.DependsOnID)
}

const dateLayout = "2006-01-02"

func validatePriority(p string) error {
	switch p {
	case "high", "medium", "low":
		return nil
	}
	return validationf("invalid priority %q (expected high, medium or low)", p)
}

func validateStatus(s string) error {
	switch s {
	case "not_started", "in_progress", "done", "blocked":
		return nil
	}
	return validationf("invalid status %q (expected not_started, in_progress, done or blocked)", s)
}

func validateDate(s string) error {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return validationf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title              string
	Description        string
	Priority           string
	DueDate            string
	DependsOn          []int64
	IsRecurring        bool
	RecurringPatternID *int64
	ActorID            string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Task{}, validationf("title is required")
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if err := validatePriority(opts.Priority); err != nil {
		return domain.Task{}, err
	}
	if opts.DueDate != "" {
		if err := validateDate(opts.DueDate); err != nil {
			return domain.Task{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	nowStr := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		Title:              opts.Title,
		Description:        opts.Description,
		Priority:           opts.Priority,
		Status:             "not_started",
		IsRecurring:        opts.IsRecurring,
		RecurringPatternID: opts.RecurringPatternID,
		CreatedAt:          nowStr,
		UpdatedAt:          nowStr,
	}
	if opts.DueDate != "" {
		t.DueDate = &opts.DueDate
	}
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return t, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "task.created", "task", itoa(t.ID), opts.ActorID, events.EventPayload{
		"title":    t.Title,
		"priority": t.Priority,
	}); err != nil {
		return t, err
	}
	for _, depID := range opts.DependsOn {
		if err := e.addDependencyTx(ctx, tx, t.ID, depID, opts.ActorID); err != nil {
			return t, err
		}
	}
	if len(opts.DependsOn) > 0 {
		t, err = e.Repo.GetTaskTx(ctx, tx, t.ID)
		if err != nil {
			return t, err
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.DependsOn, _ = e.Repo.ListTaskDependencies(ctx, t.ID)
	return t, nil
}

// TaskUpdateOptions are parameters for editing a task. Nil pointers leave
// the field untouched; a pointer to the empty string clears description or
// due date. Status here is the admin-style overwrite: it validates the enum
// but skips the lifecycle guards.
type TaskUpdateOptions struct {
	ID          int64
	Title       *string
	Description *string
	Priority    *string
	Status      *string
	DueDate     *string
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	original := t
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return t, validationf("title is required")
		}
		t.Title = title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		if err := validatePriority(*opts.Priority); err != nil {
			return t, err
		}
		t.Priority = *opts.Priority
	}
	if opts.Status != nil {
		if err := validateStatus(*opts.Status); err != nil {
			return t, err
		}
		t.Status = *opts.Status
	}
	if opts.DueDate != nil {
		if *opts.DueDate == "" {
			t.DueDate = nil
		} else {
			if err := validateDate(*opts.DueDate); err != nil {
				return t, err
			}
			t.DueDate = opts.DueDate
		}
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", itoa(t.ID), opts.ActorID, events.EventPayload{
		"title": t.Title,
	}); err != nil {
		return t, err
	}
	if t.Status != original.Status {
		if err := e.Events.Append(ctx, tx, "task.status_changed", "task", itoa(t.ID), opts.ActorID, events.EventPayload{
			"from": original.Status,
			"to":   t.Status,
		}); err != nil {
			return t, err
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.DependsOn, _ = e.Repo.ListTaskDependencies(ctx, t.ID)
	return t, nil
}

// DeleteTask removes a task. The schema cascades the delete to dependency
// edges on both sides and to the task's time logs; surviving tasks keep
// their status.
func (e Engine) DeleteTask(ctx context.Context, id int64, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", itoa(id), actorID, events.EventPayload{
		"title": t.Title,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
