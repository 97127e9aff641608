package engine_test

import (
	"errors"
	"testing"
	"time"

	"taskline/internal/engine"
)

func TestDateStatsAggregatesAndCache(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "a", Priority: "high", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	b := createTask(t, env, "b")
	createTask(t, env, "c")
	if _, _, err := env.Engine.CompleteTask(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.LogTime(env.Ctx, a.ID, 90, "", "tester"); err != nil {
		t.Fatal(err)
	}

	s, err := env.Engine.DateStats(env.Ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Date != "2025-06-02" {
		t.Fatalf("empty date should mean today, got %s", s.Date)
	}
	if s.TasksCreated != 3 || s.TasksCompleted != 2 || s.HighPriorityCompleted != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.MinutesLogged != 90 || s.TimeFormatted != "1h 30m" {
		t.Fatalf("unexpected time: %d %q", s.MinutesLogged, s.TimeFormatted)
	}

	var cached int
	err = env.Engine.DB.QueryRowContext(env.Ctx,
		`SELECT tasks_completed FROM productivity_stats WHERE date='2025-06-02'`).Scan(&cached)
	if err != nil {
		t.Fatal(err)
	}
	if cached != 2 {
		t.Fatalf("cache row holds %d, want 2", cached)
	}

	var verr engine.ValidationError
	if _, err := env.Engine.DateStats(env.Ctx, "02.06.2025"); !errors.As(err, &verr) {
		t.Fatalf("expected bad date rejected, got %v", err)
	}
}

func TestWeeklyStatsWindowBoundaries(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "logged")
	// on the start boundary, inside, and one day before the window
	for _, entry := range []struct {
		date    string
		minutes int
	}{
		{"2025-05-26", 30},
		{"2025-05-30", 45},
		{"2025-05-25", 60},
	} {
		if _, err := env.Engine.LogTime(env.Ctx, task.ID, entry.minutes, entry.date, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	s, err := env.Engine.WeeklyStats(env.Ctx, "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if s.StartDate != "2025-05-26" || s.EndDate != "2025-06-02" {
		t.Fatalf("unexpected window %s..%s", s.StartDate, s.EndDate)
	}
	if s.MinutesLogged != 75 {
		t.Fatalf("expected 75 minutes inside the window, got %d", s.MinutesLogged)
	}
	if s.TasksCompleted != 1 || s.TasksCreated != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
}

func TestMonthlyStatsDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "june work")
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	s, err := env.Engine.MonthlyStats(env.Ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.StartDate != "2025-06-01" || s.EndDate != "2025-06-30" {
		t.Fatalf("unexpected month window %s..%s", s.StartDate, s.EndDate)
	}
	if s.TasksCompleted != 1 {
		t.Fatalf("expected 1 completed, got %d", s.TasksCompleted)
	}
	var verr engine.ValidationError
	if _, err := env.Engine.MonthlyStats(env.Ctx, 2025, 13); !errors.As(err, &verr) {
		t.Fatalf("expected month 13 rejected, got %v", err)
	}
}

func TestCompletionRate(t *testing.T) {
	env := newTestEnv(t)
	r, err := env.Engine.CompletionRate(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalTasks != 0 || r.Rate != 0 {
		t.Fatalf("empty store should report zero: %+v", r)
	}

	first := createTask(t, env, "1")
	createTask(t, env, "2")
	createTask(t, env, "3")
	createTask(t, env, "4")
	if _, _, err := env.Engine.CompleteTask(env.Ctx, first.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	r, err = env.Engine.CompletionRate(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalTasks != 4 || r.CompletedTasks != 1 || r.RemainingTasks != 3 || r.Rate != 25.0 {
		t.Fatalf("unexpected completion rate: %+v", r)
	}
}

func TestTrendExcludesToday(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "today only")
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	points, err := env.Engine.Trend(env.Ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2025-05-30", "2025-05-31", "2025-06-01"}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i, p := range points {
		if p.Date != want[i] {
			t.Fatalf("point %d date %s, want %s", i, p.Date, want[i])
		}
		if p.TasksCompleted != 0 {
			t.Fatalf("today's completion leaked into %s", p.Date)
		}
	}

	// zero days falls back to a week
	points, err = env.Engine.Trend(env.Ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 7 {
		t.Fatalf("expected 7 default points, got %d", len(points))
	}
}

func TestAvgCompletionTimeTruncatesPerTask(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.AvgCompletionTime(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.AverageDays != 0 || a.AverageHours != 0 {
		t.Fatalf("no done tasks should mean zero: %+v", a)
	}

	task := createTask(t, env, "slow")
	env.advance(36 * time.Hour)
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	a, err = env.Engine.AvgCompletionTime(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	// 36 hours counts as one whole day
	if a.AverageDays != 1.0 || a.AverageHours != 24.0 {
		t.Fatalf("unexpected averages: %+v", a)
	}
}

func TestPriorityAnalysisOrderAndPending(t *testing.T) {
	env := newTestEnv(t)
	mk := func(title, priority string) int64 {
		t.Helper()
		task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: title, Priority: priority, ActorID: "tester"})
		if err != nil {
			t.Fatal(err)
		}
		return task.ID
	}
	h1 := mk("h1", "high")
	h2 := mk("h2", "high")
	mk("h3", "high")
	m1 := mk("m1", "medium")
	mk("l1", "low")

	if _, _, err := env.Engine.CompleteTask(env.Ctx, h1, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, h2, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.BlockTask(env.Ctx, m1, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.LogTime(env.Ctx, h1, 125, "", "tester"); err != nil {
		t.Fatal(err)
	}

	rows, err := env.Engine.PriorityAnalysis(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 priorities, got %d", len(rows))
	}
	if rows[0].Priority != "high" || rows[1].Priority != "medium" || rows[2].Priority != "low" {
		t.Fatalf("unexpected order %s/%s/%s", rows[0].Priority, rows[1].Priority, rows[2].Priority)
	}
	high := rows[0]
	if high.Total != 3 || high.Completed != 1 || high.InProgress != 1 || high.Pending != 1 {
		t.Fatalf("unexpected high row: %+v", high)
	}
	if high.TotalMinutes != 125 || high.TotalTimeFormatted != "2h 5m" {
		t.Fatalf("unexpected high time: %d %q", high.TotalMinutes, high.TotalTimeFormatted)
	}
	if rows[1].Blocked != 1 || rows[1].Pending != 0 {
		t.Fatalf("unexpected medium row: %+v", rows[1])
	}
	if rows[2].Pending != 1 || rows[2].TotalTimeFormatted != "0m" {
		t.Fatalf("unexpected low row: %+v", rows[2])
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.Dashboard(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.MostProductiveDay != nil {
		t.Fatalf("expected no productive day on empty store, got %+v", d.MostProductiveDay)
	}

	done, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "done", Priority: "high", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, done.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	overdue, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "late", DueDate: "2025-05-01", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.BlockTask(env.Ctx, overdue.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	d, err = env.Engine.Dashboard(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.Today.TasksCompleted != 1 || d.Weekly.TasksCompleted != 1 {
		t.Fatalf("unexpected today/weekly: %+v / %+v", d.Today, d.Weekly)
	}
	if d.Completion.Rate != 50.0 {
		t.Fatalf("unexpected completion rate %v", d.Completion.Rate)
	}
	if d.StatusCounts["done"] != 1 || d.StatusCounts["blocked"] != 1 {
		t.Fatalf("unexpected status counts %v", d.StatusCounts)
	}
	if d.PriorityCounts["high"] != 1 || d.PriorityCounts["medium"] != 1 {
		t.Fatalf("unexpected priority counts %v", d.PriorityCounts)
	}
	if d.OverdueCount != 1 || d.BlockedCount != 1 {
		t.Fatalf("unexpected overdue/blocked %d/%d", d.OverdueCount, d.BlockedCount)
	}
	if d.MostProductiveDay == nil || d.MostProductiveDay.Date != "2025-06-02" {
		t.Fatalf("unexpected most productive day %+v", d.MostProductiveDay)
	}
	if d.PriorityCompletion["high"].CompletionRate != 100.0 {
		t.Fatalf("unexpected high completion %+v", d.PriorityCompletion["high"])
	}
}

func TestTaskSummary(t *testing.T) {
	env := newTestEnv(t)
	dep := createTask(t, env, "dep")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "main", DependsOn: []int64{dep.ID}, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	child := createTask(t, env, "child")
	if _, err := env.Engine.AddDependency(env.Ctx, child.ID, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.LogTime(env.Ctx, task.ID, 75, "", "tester"); err != nil {
		t.Fatal(err)
	}

	s, err := env.Engine.TaskSummary(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Task.ID != task.ID {
		t.Fatalf("wrong task %d", s.Task.ID)
	}
	if len(s.Dependencies) != 1 || s.Dependencies[0].ID != dep.ID {
		t.Fatalf("unexpected dependencies %v", s.Dependencies)
	}
	if len(s.Dependents) != 1 || s.Dependents[0].ID != child.ID {
		t.Fatalf("unexpected dependents %v", s.Dependents)
	}
	if len(s.TimeLogs) != 1 || s.TotalMinutes != 75 || s.TotalFormatted != "1h 15m" {
		t.Fatalf("unexpected time summary: %d logs, %d minutes, %q", len(s.TimeLogs), s.TotalMinutes, s.TotalFormatted)
	}
}

func TestFormatMinutes(t *testing.T) {
	cases := map[int]string{
		-5:  "0m",
		0:   "0m",
		59:  "0h 59m",
		60:  "1h 0m",
		125: "2h 5m",
	}
	for in, want := range cases {
		if got := engine.FormatMinutes(in); got != want {
			t.Fatalf("FormatMinutes(%d) = %q, want %q", in, got, want)
		}
	}
}
