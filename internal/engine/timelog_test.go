package engine_test

import (
	"errors"
	"testing"
	"time"

	"taskline/internal/engine"
	"taskline/internal/repo"
)

func TestTimerStartStop(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "timed")

	started, err := env.Engine.StartTimer(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if started.EndTime != nil || started.DurationMinutes != nil {
		t.Fatalf("running timer should have open end: %+v", started)
	}
	if started.StartTime != "2025-06-02T08:00:00Z" {
		t.Fatalf("unexpected start %s", started.StartTime)
	}

	env.advance(25*time.Minute + 40*time.Second)
	stopped, err := env.Engine.StopTimer(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if stopped.DurationMinutes == nil || *stopped.DurationMinutes != 25 {
		t.Fatalf("expected seconds truncated to 25 minutes, got %v", stopped.DurationMinutes)
	}
	if stopped.EndTime == nil || *stopped.EndTime != "2025-06-02T08:25:40Z" {
		t.Fatalf("unexpected end %v", stopped.EndTime)
	}
}

func TestTimerDoubleStart(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "timed")
	if _, err := env.Engine.StartTimer(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	var verr engine.ValidationError
	if _, err := env.Engine.StartTimer(env.Ctx, task.ID, "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected double start rejected, got %v", err)
	}
}

func TestTimerStopWithoutActive(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "idle")
	var verr engine.ValidationError
	if _, err := env.Engine.StopTimer(env.Ctx, task.ID, "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected stop without timer rejected, got %v", err)
	}
}

func TestTimerStoppedByCompletion(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "timed")
	if _, err := env.Engine.StartTimer(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	env.advance(10 * time.Minute)
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	active, err := env.Engine.ActiveTimers(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("completion should stop the timer, %d still active", len(active))
	}
	total, err := env.Engine.TotalTime(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 10 {
		t.Fatalf("expected 10 minutes booked, got %d", total)
	}
}

func TestLogTimeManualEntry(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "manual")

	entry, err := env.Engine.LogTime(env.Ctx, task.ID, 90, "2025-05-30", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if entry.StartTime != "2025-05-30T00:00:00Z" {
		t.Fatalf("dated entry should start at midnight, got %s", entry.StartTime)
	}
	if entry.EndTime == nil || *entry.EndTime != "2025-05-30T01:30:00Z" {
		t.Fatalf("unexpected end %v", entry.EndTime)
	}

	undated, err := env.Engine.LogTime(env.Ctx, task.ID, 30, "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if undated.StartTime != "2025-06-02T08:00:00Z" {
		t.Fatalf("undated entry should start now, got %s", undated.StartTime)
	}

	total, err := env.Engine.TotalTime(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 120 {
		t.Fatalf("expected 120 minutes total, got %d", total)
	}
	logs, err := env.Engine.TimeLogs(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
}

func TestLogTimeValidation(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "manual")
	var verr engine.ValidationError
	if _, err := env.Engine.LogTime(env.Ctx, task.ID, 0, "", "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected zero minutes rejected, got %v", err)
	}
	if _, err := env.Engine.LogTime(env.Ctx, task.ID, -5, "", "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected negative minutes rejected, got %v", err)
	}
	if _, err := env.Engine.LogTime(env.Ctx, task.ID, 10, "yesterday", "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected bad date rejected, got %v", err)
	}
	if _, err := env.Engine.LogTime(env.Ctx, 9999, 10, "", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown task rejected, got %v", err)
	}
}

func TestDeleteTimeLog(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "manual")
	entry, err := env.Engine.LogTime(env.Ctx, task.ID, 15, "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTimeLog(env.Ctx, entry.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTimeLog(env.Ctx, entry.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected second delete to fail, got %v", err)
	}
	total, err := env.Engine.TotalTime(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Fatalf("expected zero after delete, got %d", total)
	}
}
