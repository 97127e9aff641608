package engine

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/migrate"
)

func newSchedulerEnv(t *testing.T) (Engine, *time.Time) {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := New(conn, config.Default("taskline"))
	clock := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	eng.Events.Now = eng.Now
	return eng, &clock
}

func generatedCount(t *testing.T, eng Engine, patternID int64) int {
	t.Helper()
	var n int
	err := eng.DB.QueryRow(`SELECT COUNT(1) FROM events WHERE type='pattern.generated' AND entity_id=?`,
		strconv.FormatInt(patternID, 10)).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestStartSchedulerDisabled(t *testing.T) {
	eng, _ := newSchedulerEnv(t)
	eng.Config.Scheduler.Enabled = false
	s, err := StartScheduler(eng, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Fatal("disabled scheduler should be nil")
	}
	s.Stop()
}

func TestStartSchedulerBadCron(t *testing.T) {
	eng, _ := newSchedulerEnv(t)
	eng.Config.Scheduler.Enabled = true
	eng.Config.Scheduler.Cron = "every day at six"
	if _, err := StartScheduler(eng, nil); err == nil || !strings.Contains(err.Error(), "invalid scheduler cron") {
		t.Fatalf("expected cron spec rejected, got %v", err)
	}
}

func TestStartSchedulerStartStop(t *testing.T) {
	eng, _ := newSchedulerEnv(t)
	eng.Config.Scheduler.Enabled = true
	s, err := StartScheduler(eng, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if s == nil {
		t.Fatal("expected a running scheduler")
	}
	s.Stop()
}

func TestGenerationDue(t *testing.T) {
	eng, clock := newSchedulerEnv(t)
	ctx := context.Background()
	_, pattern, err := eng.CreateRecurringTask(ctx, RecurringCreateOptions{
		Title:     "biweekly",
		Frequency: "daily",
		Interval:  2,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	s := &Scheduler{engine: eng, log: zap.NewNop()}

	due, err := s.generationDue(ctx, pattern, eng.now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if !due {
		t.Fatal("never generated pattern should be due")
	}

	if _, err := eng.GenerateInstances(ctx, pattern.ID, 1, "scheduler"); err != nil {
		t.Fatal(err)
	}
	if due, _ = s.generationDue(ctx, pattern, eng.now().UTC()); due {
		t.Fatal("fresh generation should not be due")
	}
	*clock = clock.Add(24 * time.Hour)
	if due, _ = s.generationDue(ctx, pattern, eng.now().UTC()); due {
		t.Fatal("one day into a two day interval should not be due")
	}
	*clock = clock.Add(24 * time.Hour)
	if due, _ = s.generationDue(ctx, pattern, eng.now().UTC()); !due {
		t.Fatal("a full interval later should be due")
	}
}

func TestTopUpPacesLiveAndSkipsExpired(t *testing.T) {
	eng, clock := newSchedulerEnv(t)
	ctx := context.Background()
	_, live, err := eng.CreateRecurringTask(ctx, RecurringCreateOptions{
		Title:     "live",
		Frequency: "daily",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, expired, err := eng.CreateRecurringTask(ctx, RecurringCreateOptions{
		Title:     "expired",
		Frequency: "daily",
		EndDate:   "2025-06-01",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	s := &Scheduler{engine: eng, log: zap.NewNop()}

	s.topUp()
	if n := generatedCount(t, eng, live.ID); n != 1 {
		t.Fatalf("live pattern generated %d times, want 1", n)
	}
	if n := generatedCount(t, eng, expired.ID); n != 0 {
		t.Fatalf("expired pattern generated %d times, want 0", n)
	}

	// a second firing inside the same period is a no-op
	s.topUp()
	if n := generatedCount(t, eng, live.ID); n != 1 {
		t.Fatalf("live pattern generated %d times after refire, want 1", n)
	}

	*clock = clock.Add(24 * time.Hour)
	s.topUp()
	if n := generatedCount(t, eng, live.ID); n != 2 {
		t.Fatalf("live pattern generated %d times a day later, want 2", n)
	}
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		start  string
		months int
		want   string
	}{
		{"2025-01-31", 1, "2025-02-28"},
		{"2024-01-31", 1, "2024-02-29"},
		{"2025-01-31", 2, "2025-03-31"},
		{"2025-03-31", 1, "2025-04-30"},
		{"2025-01-15", 1, "2025-02-15"},
		{"2025-12-31", 2, "2026-02-28"},
	}
	for _, tc := range cases {
		start, err := time.Parse(dateLayout, tc.start)
		if err != nil {
			t.Fatal(err)
		}
		if got := addMonths(start, tc.months).Format(dateLayout); got != tc.want {
			t.Fatalf("addMonths(%s, %d) = %s, want %s", tc.start, tc.months, got, tc.want)
		}
	}
}
