package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

// StartTimer opens a time log for the task. One open log per task; starting
// again while one is running is an error.
func (e Engine) StartTimer(ctx context.Context, taskID int64, actorID string) (domain.TimeLog, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.TimeLog{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeLog{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.ActiveTimeLogTx(ctx, tx, taskID); err == nil {
		return domain.TimeLog{}, validationf("timer already running for task %d", taskID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.TimeLog{}, err
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	l := domain.TimeLog{TaskID: taskID, StartTime: nowStr, CreatedAt: nowStr}
	id, err := e.Repo.InsertTimeLog(ctx, tx, l)
	if err != nil {
		return l, err
	}
	l.ID = id
	if err := e.Events.Append(ctx, tx, "timer.started", "task", itoa(taskID), actorID, events.EventPayload{
		"log_id": id,
	}); err != nil {
		return l, err
	}
	if err := tx.Commit(); err != nil {
		return l, err
	}
	return l, nil
}

// StopTimer closes the task's open time log, recording whole minutes.
func (e Engine) StopTimer(ctx context.Context, taskID int64, actorID string) (domain.TimeLog, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.TimeLog{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimeLog{}, err
	}
	defer tx.Rollback()
	active, err := e.Repo.ActiveTimeLogTx(ctx, tx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.TimeLog{}, validationf("no active timer for task %d", taskID)
		}
		return domain.TimeLog{}, err
	}
	l, err := e.stopTimerTx(ctx, tx, active, e.now().UTC(), actorID)
	if err != nil {
		return l, err
	}
	if err := tx.Commit(); err != nil {
		return l, err
	}
	return l, nil
}

func (e Engine) stopTimerTx(ctx context.Context, tx *sql.Tx, l domain.TimeLog, now time.Time, actorID string) (domain.TimeLog, error) {
	start, err := time.Parse(time.RFC3339, l.StartTime)
	if err != nil {
		return l, fmt.Errorf("parse start time: %w", err)
	}
	minutes := int(now.Sub(start).Seconds() / 60)
	if minutes < 0 {
		minutes = 0
	}
	endStr := now.Format(time.RFC3339)
	if err := e.Repo.CloseTimeLog(ctx, tx, l.ID, endStr, minutes); err != nil {
		return l, err
	}
	l.EndTime = &endStr
	l.DurationMinutes = &minutes
	if err := e.Events.Append(ctx, tx, "timer.stopped", "task", itoa(l.TaskID), actorID, events.EventPayload{
		"log_id":  l.ID,
		"minutes": minutes,
	}); err != nil {
		return l, err
	}
	return l, nil
}

// LogTime records a closed time entry directly. Duration must be positive.
// With a date the entry starts at midnight of that day, otherwise at now.
func (e Engine) LogTime(ctx context.Context, taskID int64, minutes int, date, actorID string) (domain.TimeLog, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return domain.TimeLog{}, err
	}
	if minutes <= 0 {
		return domain.TimeLog{}, validationf("duration must be positive")
	}
	var start time.Time
	if date != "" {
		if err := validateDate(date); err != nil {
			return domain.TimeLog{}, err
		}
		start, _ = time.Parse(dateLayout, date)
	} else {
		start = e.now().UTC()
	}
	startStr := start.UTC().Format(time.RFC3339)
	endStr := start.UTC().Add(time.Duration(minutes) * time.Minute).Format(time.RFC3339)
	nowStr := e.now().UTC().Format(time.RFC3339)
	l := domain.TimeLog{
		TaskID:          taskID,
		StartTime:       startStr,
		EndTime:         &endStr,
		DurationMinutes: &minutes,
		CreatedAt:       nowStr,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return l, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertTimeLog(ctx, tx, l)
	if err != nil {
		return l, err
	}
	l.ID = id
	if err := e.Events.Append(ctx, tx, "timelog.added", "task", itoa(taskID), actorID, events.EventPayload{
		"log_id":  id,
		"minutes": minutes,
	}); err != nil {
		return l, err
	}
	if err := tx.Commit(); err != nil {
		return l, err
	}
	return l, nil
}

// ActiveTimers lists every open time log.
func (e Engine) ActiveTimers(ctx context.Context) ([]domain.TimeLog, error) {
	return e.Repo.ActiveTimeLogs(ctx)
}

// TimeLogs lists a task's time entries, oldest first.
func (e Engine) TimeLogs(ctx context.Context, taskID int64) ([]domain.TimeLog, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListTimeLogs(ctx, taskID)
}

// TotalTime returns the task's closed minutes.
func (e Engine) TotalTime(ctx context.Context, taskID int64) (int, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return 0, err
	}
	return e.Repo.TotalMinutesForTask(ctx, taskID)
}

func (e Engine) DeleteTimeLog(ctx context.Context, logID int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTimeLog(ctx, tx, logID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "timelog.deleted", "timelog", itoa(logID), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
