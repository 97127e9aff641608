package engine_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"taskline/internal/engine"
	"taskline/internal/repo"
)

func TestCreateRecurringTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts engine.RecurringCreateOptions
	}{
		{"bad frequency", engine.RecurringCreateOptions{Title: "x", Frequency: "yearly"}},
		{"negative interval", engine.RecurringCreateOptions{Title: "x", Frequency: "daily", Interval: -1}},
		{"days on daily", engine.RecurringCreateOptions{Title: "x", Frequency: "daily", DaysOfWeek: []int{1}}},
		{"day out of range", engine.RecurringCreateOptions{Title: "x", Frequency: "weekly", DaysOfWeek: []int{7}}},
		{"bad end date", engine.RecurringCreateOptions{Title: "x", Frequency: "daily", EndDate: "June 2025"}},
		{"empty title", engine.RecurringCreateOptions{Title: " ", Frequency: "daily"}},
	}
	var verr engine.ValidationError
	for _, tc := range cases {
		tc.opts.ActorID = "tester"
		if _, _, err := env.Engine.CreateRecurringTask(env.Ctx, tc.opts); !errors.As(err, &verr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCreateRecurringTaskTemplate(t *testing.T) {
	env := newTestEnv(t)
	task, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:      "standup notes",
		Frequency:  "weekly",
		DaysOfWeek: []int{1, 3},
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !task.IsRecurring || task.RecurringPatternID == nil || *task.RecurringPatternID != pattern.ID {
		t.Fatalf("template not linked to pattern: %+v", task)
	}
	if pattern.Interval != 1 {
		t.Fatalf("zero interval should default to 1, got %d", pattern.Interval)
	}
	if pattern.DaysOfWeekJSON == nil || *pattern.DaysOfWeekJSON != "[1,3]" {
		t.Fatalf("unexpected days_of_week %v", pattern.DaysOfWeekJSON)
	}
	got, err := env.Engine.Repo.TemplateForPattern(env.Ctx, pattern.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != task.ID {
		t.Fatalf("template lookup returned %d, want %d", got.ID, task.ID)
	}
}

func TestGenerateInstancesDaily(t *testing.T) {
	env := newTestEnv(t)
	_, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:       "water plants",
		Description: "the ones on the balcony",
		Priority:    "low",
		Frequency:   "daily",
		Interval:    1,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	instances, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 5, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 5 {
		t.Fatalf("expected 5 instances, got %d", len(instances))
	}
	// clock starts 2025-06-02
	want := []string{"2025-06-02", "2025-06-03", "2025-06-04", "2025-06-05", "2025-06-06"}
	for i, inst := range instances {
		if inst.DueDate == nil || *inst.DueDate != want[i] {
			t.Fatalf("instance %d due %v, want %s", i, inst.DueDate, want[i])
		}
		if inst.IsRecurring {
			t.Fatalf("instance %d must not be expandable", i)
		}
		if inst.RecurringPatternID == nil || *inst.RecurringPatternID != pattern.ID {
			t.Fatalf("instance %d lost its pattern reference: %v", i, inst.RecurringPatternID)
		}
		if inst.Title != "water plants" || inst.Priority != "low" {
			t.Fatalf("instance %d did not copy template fields: %+v", i, inst)
		}
	}
	// template plus the five instances belong to the pattern
	owned, err := env.Engine.Repo.TasksForPattern(env.Ctx, pattern.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(owned) != 6 {
		t.Fatalf("expected 6 pattern tasks, got %d", len(owned))
	}
}

func TestGenerateInstancesWeeklyInterval(t *testing.T) {
	env := newTestEnv(t)
	_, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:     "sprint review",
		Frequency: "weekly",
		Interval:  2,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	instances, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 3, "tester")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2025-06-02", "2025-06-16", "2025-06-30"}
	for i, inst := range instances {
		if *inst.DueDate != want[i] {
			t.Fatalf("instance %d due %s, want %s", i, *inst.DueDate, want[i])
		}
	}
}

func TestGenerateInstancesMonthlyClampsDay(t *testing.T) {
	env := newTestEnv(t)
	*env.clock = env.clock.AddDate(0, 0, -123) // 2025-01-30
	if env.clock.Format("2006-01-02") != "2025-01-30" {
		t.Fatalf("clock setup drifted to %s", env.clock.Format("2006-01-02"))
	}
	_, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:     "pay rent",
		Frequency: "monthly",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	instances, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 3, "tester")
	if err != nil {
		t.Fatal(err)
	}
	// February 2025 has 28 days, so the day clamps there and recovers in March
	want := []string{"2025-01-30", "2025-02-28", "2025-03-30"}
	for i, inst := range instances {
		if *inst.DueDate != want[i] {
			t.Fatalf("instance %d due %s, want %s", i, *inst.DueDate, want[i])
		}
	}
}

func TestGenerateInstancesStopsAtEndDate(t *testing.T) {
	env := newTestEnv(t)
	_, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:     "short run",
		Frequency: "daily",
		EndDate:   "2025-06-04",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	instances, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 10, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 3 {
		t.Fatalf("expected generation to stop at the end date, got %d instances", len(instances))
	}
	if *instances[2].DueDate != "2025-06-04" {
		t.Fatalf("last due %s, want 2025-06-04", *instances[2].DueDate)
	}

	var payload string
	err = env.Engine.DB.QueryRowContext(env.Ctx,
		`SELECT payload_json FROM events WHERE type='pattern.generated' AND entity_id=? ORDER BY id DESC LIMIT 1`,
		strconv.FormatInt(pattern.ID, 10)).Scan(&payload)
	if err != nil {
		t.Fatal(err)
	}
	if payload != `{"count":3}` {
		t.Fatalf("unexpected pattern.generated payload %s", payload)
	}
}

func TestGenerateInstancesDefaultCount(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Recurrence.DefaultCount = 4
	_, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:     "inbox zero",
		Frequency: "daily",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	instances, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 0, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 4 {
		t.Fatalf("expected configured default of 4, got %d", len(instances))
	}
}

func TestGenerateInstancesBatchesAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	_, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:     "journal",
		Frequency: "daily",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 2, "tester"); err != nil {
		t.Fatal(err)
	}
	env.advance(24 * time.Hour)
	second, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 2, "tester")
	if err != nil {
		t.Fatal(err)
	}
	// the second batch starts from the current clock, not after the first batch
	if *second[0].DueDate != "2025-06-03" {
		t.Fatalf("second batch starts at %s, want 2025-06-03", *second[0].DueDate)
	}
}

func TestGenerateInstancesUnknownPattern(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GenerateInstances(env.Ctx, 42, 3, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGenerateInstancesWithoutTemplate(t *testing.T) {
	env := newTestEnv(t)
	task, pattern, err := env.Engine.CreateRecurringTask(env.Ctx, engine.RecurringCreateOptions{
		Title:     "orphaned",
		Frequency: "daily",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	var verr engine.ValidationError
	if _, err := env.Engine.GenerateInstances(env.Ctx, pattern.ID, 3, "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for missing template, got %v", err)
	}
}
