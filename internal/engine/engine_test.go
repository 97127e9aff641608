package engine_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
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
	eng := engine.New(conn, config.Default("taskline"))
	clock := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	return testEnv{Engine: eng, Ctx: context.Background(), clock: &clock}
}

func (env testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func createTask(t *testing.T, env testEnv, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: title, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "  Write report  ", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "Write report" {
		t.Fatalf("expected trimmed title, got %q", task.Title)
	}
	if task.Priority != "medium" || task.Status != "not_started" {
		t.Fatalf("unexpected defaults: %s/%s", task.Priority, task.Status)
	}
	if task.CreatedAt != task.UpdatedAt {
		t.Fatalf("created_at %s != updated_at %s", task.CreatedAt, task.UpdatedAt)
	}
	if task.CreatedAt != "2025-06-02T08:00:00Z" {
		t.Fatalf("unexpected created_at %s", task.CreatedAt)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	var verr engine.ValidationError
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "   "}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Priority: "urgent"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for priority, got %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", DueDate: "06/02/2025"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for due date, got %v", err)
	}
}

func TestCreateTaskWithDependenciesBlocks(t *testing.T) {
	env := newTestEnv(t)
	dep := createTask(t, env, "dep")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:     "main",
		DependsOn: []int64{dep.ID},
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != "blocked" {
		t.Fatalf("expected blocked on unfinished dependency, got %s", task.Status)
	}
	if len(task.DependsOn) != 1 || task.DependsOn[0] != dep.ID {
		t.Fatalf("unexpected depends_on %v", task.DependsOn)
	}
}

func TestUpdateTaskFields(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "before")
	env.advance(time.Hour)

	title := "after"
	priority := "high"
	due := "2025-07-01"
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:       task.ID,
		Title:    &title,
		Priority: &priority,
		DueDate:  &due,
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "after" || updated.Priority != "high" {
		t.Fatalf("unexpected fields %s/%s", updated.Title, updated.Priority)
	}
	if updated.DueDate == nil || *updated.DueDate != "2025-07-01" {
		t.Fatalf("unexpected due date %v", updated.DueDate)
	}
	if !(updated.UpdatedAt > updated.CreatedAt) {
		t.Fatalf("updated_at %s not after created_at %s", updated.UpdatedAt, updated.CreatedAt)
	}

	// empty due date pointer clears the field
	empty := ""
	cleared, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, DueDate: &empty, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if cleared.DueDate != nil {
		t.Fatalf("expected cleared due date, got %v", *cleared.DueDate)
	}
}

func TestUpdateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "edit me")
	var verr engine.ValidationError
	empty := " "
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Title: &empty}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}
	bad := "urgent"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Priority: &bad}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for priority, got %v", err)
	}
	badStatus := "paused"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: &badStatus}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for status, got %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: 9999}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	env := newTestEnv(t)
	dep := createTask(t, env, "dep")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "main", DependsOn: []int64{dep.ID}, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.LogTime(env.Ctx, task.ID, 30, "", "tester"); err != nil {
		t.Fatal(err)
	}

	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected task gone, got %v", err)
	}

	// edges and time logs went with it, the surviving task keeps its status
	dependents, err := env.Engine.Dependents(env.Ctx, dep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(dependents) != 0 {
		t.Fatalf("expected no dependents, got %d", len(dependents))
	}
	var logCount int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT COUNT(1) FROM time_logs WHERE task_id=?`, task.ID).Scan(&logCount); err != nil {
		t.Fatal(err)
	}
	if logCount != 0 {
		t.Fatalf("expected cascaded time logs, got %d", logCount)
	}
	survivor, err := env.Engine.Repo.GetTask(env.Ctx, dep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if survivor.Status != "not_started" {
		t.Fatalf("survivor status changed to %s", survivor.Status)
	}
}

func TestAddDependencyBlocksAndIsVisibleBothEnds(t *testing.T) {
	env := newTestEnv(t)
	a := createTask(t, env, "a")
	b := createTask(t, env, "b")

	updated, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != "blocked" {
		t.Fatalf("expected a blocked, got %s", updated.Status)
	}
	deps, err := env.Engine.Dependencies(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0].ID != b.ID {
		t.Fatalf("unexpected dependencies %v", deps)
	}
	dependents, err := env.Engine.Dependents(env.Ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(dependents) != 1 || dependents[0].ID != a.ID {
		t.Fatalf("unexpected dependents %v", dependents)
	}
}

func TestAddDependencyOnDoneTargetKeepsStatus(t *testing.T) {
	env := newTestEnv(t)
	a := createTask(t, env, "a")
	b := createTask(t, env, "b")
	if _, _, err := env.Engine.CompleteTask(env.Ctx, b.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	updated, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != "not_started" {
		t.Fatalf("expected not_started on done dependency, got %s", updated.Status)
	}
}

func TestAddDependencyErrors(t *testing.T) {
	env := newTestEnv(t)
	a := createTask(t, env, "a")
	b := createTask(t, env, "b")
	if _, err := env.Engine.AddDependency(env.Ctx, a.ID, 9999, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, 9999, b.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	var dup engine.DuplicateEdgeError
	_, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, "tester")
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate edge error, got %v", err)
	}
	if dup.TaskID != a.ID || dup.DependsOnID != b.ID {
		t.Fatalf("unexpected duplicate pair %d -> %d", dup.TaskID, dup.DependsOnID)
	}
}

func TestCycleRejectedLeavesGraphUnchanged(t *testing.T) {
	env := newTestEnv(t)
	a := createTask(t, env, "a")
	b := createTask(t, env, "b")
	c := createTask(t, env, "c")
	if _, err := env.Engine.AddDependency(env.Ctx, a.ID, b.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, b.ID, c.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	var cycle engine.CycleError
	if _, err := env.Engine.AddDependency(env.Ctx, b.ID, a.ID, "tester"); !errors.As(err, &cycle) {
		t.Fatalf("expected direct cycle rejection, got %v", err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, c.ID, a.ID, "tester"); !errors.As(err, &cycle) {
		t.Fatalf("expected transitive cycle rejection, got %v", err)
	}
	if cycle.TaskID != c.ID || cycle.DependsOnID != a.ID {
		t.Fatalf("unexpected cycle pair %d -> %d", cycle.TaskID, cycle.DependsOnID)
	}

	// the rejected edges left nothing behind
	deps, err := env.Engine.Dependencies(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 0 {
		t.Fatalf("expected c to keep zero dependencies, got %d", len(deps))
	}
	deps, err = env.Engine.Dependencies(env.Ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0].ID != c.ID {
		t.Fatalf("b's dependencies changed: %v", deps)
	}
}

func TestSelfDependencyRejected(t *testing.T) {
	env := newTestEnv(t)
	a := createTask(t, env, "a")
	var cycle engine.CycleError
	if _, err := env.Engine.AddDependency(env.Ctx, a.ID, a.ID, "tester"); !errors.As(err, &cycle) {
		t.Fatalf("expected self cycle rejection, got %v", err)
	}
}

func TestRemoveDependencyUnblocksAtZeroIncomplete(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "main")
	d1 := createTask(t, env, "d1")
	d2 := createTask(t, env, "d2")
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, d1.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, d2.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	after, err := env.Engine.RemoveDependency(env.Ctx, task.ID, d1.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != "blocked" {
		t.Fatalf("expected still blocked with one incomplete dependency, got %s", after.Status)
	}
	after, err = env.Engine.RemoveDependency(env.Ctx, task.ID, d2.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != "not_started" {
		t.Fatalf("expected not_started after last dependency removed, got %s", after.Status)
	}

	if _, err := env.Engine.RemoveDependency(env.Ctx, task.ID, d1.ID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for absent edge, got %v", err)
	}
}

func TestRemoveDependencyNoSideEffectWhenNotBlocked(t *testing.T) {
	env := newTestEnv(t)
	done := createTask(t, env, "done-dep")
	if _, _, err := env.Engine.CompleteTask(env.Ctx, done.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	task := createTask(t, env, "main")
	if _, err := env.Engine.AddDependency(env.Ctx, task.ID, done.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	after, err := env.Engine.RemoveDependency(env.Ctx, task.ID, done.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != "in_progress" {
		t.Fatalf("removal should not touch a non-blocked task, got %s", after.Status)
	}
}

func TestCompleteCascadeWaitsForLastDependency(t *testing.T) {
	env := newTestEnv(t)
	a := createTask(t, env, "a")
	b := createTask(t, env, "b")
	c := createTask(t, env, "c")
	for _, dep := range []int64{b.ID, c.ID} {
		if _, err := env.Engine.AddDependency(env.Ctx, a.ID, dep, "tester"); err != nil {
			t.Fatal(err)
		}
	}

	_, unblocked, err := env.Engine.CompleteTask(env.Ctx, b.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(unblocked) != 0 {
		t.Fatalf("a should stay blocked while c is incomplete, got %v", unblocked)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, a.ID)
	if got.Status != "blocked" {
		t.Fatalf("expected a blocked, got %s", got.Status)
	}

	_, unblocked, err = env.Engine.CompleteTask(env.Ctx, c.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(unblocked) != 1 || unblocked[0].ID != a.ID {
		t.Fatalf("expected a unblocked by the last dependency, got %v", unblocked)
	}
	got, _ = env.Engine.Repo.GetTask(env.Ctx, a.ID)
	if got.Status != "not_started" {
		t.Fatalf("expected a not_started, got %s", got.Status)
	}
}

func TestStartTaskGate(t *testing.T) {
	env := newTestEnv(t)
	dep := createTask(t, env, "dep")
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "main", DependsOn: []int64{dep.ID}, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}

	var verr engine.ValidationError
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected start blocked by dependency, got %v", err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, dep.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	started, err := env.Engine.StartTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if started.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %s", started.Status)
	}
	// done is not a start state
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected start refused from done, got %v", err)
	}
}

func TestCompleteCascadeOneHop(t *testing.T) {
	env := newTestEnv(t)
	t1 := createTask(t, env, "t1")
	t2 := createTask(t, env, "t2")
	t3 := createTask(t, env, "t3")
	if _, err := env.Engine.AddDependency(env.Ctx, t2.ID, t1.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, t3.ID, t2.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	_, unblocked, err := env.Engine.CompleteTask(env.Ctx, t1.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(unblocked) != 1 || unblocked[0].ID != t2.ID {
		t.Fatalf("expected only t2 unblocked, got %v", unblocked)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, t3.ID)
	if got.Status != "blocked" {
		t.Fatalf("t3 should stay blocked one hop away, got %s", got.Status)
	}

	_, unblocked, err = env.Engine.CompleteTask(env.Ctx, t2.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(unblocked) != 1 || unblocked[0].ID != t3.ID {
		t.Fatalf("expected t3 unblocked after t2, got %v", unblocked)
	}
	got, _ = env.Engine.Repo.GetTask(env.Ctx, t3.ID)
	if got.Status != "not_started" || len(got.DependsOn) != 1 {
		t.Fatalf("t3 should be not_started with its edge intact, got %s %v", got.Status, got.DependsOn)
	}
}

func TestCompleteCascadeOnlyMovesBlockedDependents(t *testing.T) {
	env := newTestEnv(t)
	dep := createTask(t, env, "dep")
	waiting := createTask(t, env, "waiting")
	running := createTask(t, env, "running")
	for _, id := range []int64{waiting.ID, running.ID} {
		if _, err := env.Engine.AddDependency(env.Ctx, id, dep.ID, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	// someone reset these by hand; the cascade must leave them alone
	if _, err := env.Engine.SetStatus(env.Ctx, waiting.ID, "not_started", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, running.ID, "in_progress", "tester"); err != nil {
		t.Fatal(err)
	}
	_, unblocked, err := env.Engine.CompleteTask(env.Ctx, dep.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(unblocked) != 0 {
		t.Fatalf("expected no cascade for hand-edited dependents, got %v", unblocked)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, running.ID)
	if got.Status != "in_progress" {
		t.Fatalf("in_progress dependent should keep its status, got %s", got.Status)
	}
}

func TestCompleteAlreadyDone(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "once")
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	var verr engine.ValidationError
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected already-done error, got %v", err)
	}
}

func TestBlockAndSetStatus(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "manual")
	blocked, err := env.Engine.BlockTask(env.Ctx, task.ID, "tester")
	if err != nil || blocked.Status != "blocked" {
		t.Fatalf("block: %v %s", err, blocked.Status)
	}
	// blocking again is a no-op
	if _, err := env.Engine.BlockTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	set, err := env.Engine.SetStatus(env.Ctx, task.ID, "in_progress", "tester")
	if err != nil || set.Status != "in_progress" {
		t.Fatalf("set status: %v %s", err, set.Status)
	}
	var verr engine.ValidationError
	if _, err := env.Engine.SetStatus(env.Ctx, task.ID, "paused", "tester"); !errors.As(err, &verr) {
		t.Fatalf("expected enum rejection, got %v", err)
	}
}

func TestIsAvailableAndIsBlocked(t *testing.T) {
	env := newTestEnv(t)
	free := createTask(t, env, "free")
	dep := createTask(t, env, "dep")
	gated, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "gated", DependsOn: []int64{dep.ID}, ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}

	if avail, _ := env.Engine.IsAvailable(env.Ctx, free.ID); !avail {
		t.Fatalf("free task should be available")
	}
	if blocked, _ := env.Engine.IsBlocked(env.Ctx, free.ID); blocked {
		t.Fatalf("free task should not be blocked")
	}
	if avail, _ := env.Engine.IsAvailable(env.Ctx, gated.ID); avail {
		t.Fatalf("gated task should not be available")
	}
	if blocked, _ := env.Engine.IsBlocked(env.Ctx, gated.ID); !blocked {
		t.Fatalf("gated task should compute blocked")
	}

	// a manual block hides the task from availability even with done deps
	if _, _, err := env.Engine.CompleteTask(env.Ctx, dep.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.BlockTask(env.Ctx, gated.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if avail, _ := env.Engine.IsAvailable(env.Ctx, gated.ID); avail {
		t.Fatalf("manually blocked task should not be available")
	}
	if blocked, _ := env.Engine.IsBlocked(env.Ctx, gated.ID); blocked {
		t.Fatalf("IsBlocked follows edges, not the stored status")
	}
}

func TestDependencyTreeSharedVisited(t *testing.T) {
	env := newTestEnv(t)
	a := createTask(t, env, "a")
	b := createTask(t, env, "b")
	c := createTask(t, env, "c")
	d := createTask(t, env, "d")
	for _, pair := range [][2]int64{{a.ID, b.ID}, {a.ID, c.ID}, {b.ID, d.ID}, {c.ID, d.ID}} {
		if _, err := env.Engine.AddDependency(env.Ctx, pair[0], pair[1], "tester"); err != nil {
			t.Fatal(err)
		}
	}

	node, err := env.Engine.DependencyTree(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if node.Task.ID != a.ID || len(node.DependsOn) != 2 {
		t.Fatalf("unexpected root %d with %d children", node.Task.ID, len(node.DependsOn))
	}
	// the diamond's shared leaf is expanded once
	first, second := node.DependsOn[0], node.DependsOn[1]
	if len(first.DependsOn) != 1 || first.DependsOn[0].Task.ID != d.ID {
		t.Fatalf("expected d under the first branch, got %v", first.DependsOn)
	}
	if len(second.DependsOn) != 0 {
		t.Fatalf("expected visited leaf skipped on second branch, got %d", len(second.DependsOn))
	}
	if len(first.Task.DependsOn) == 0 {
		t.Fatalf("tree nodes should carry raw dependency ids")
	}
	refs := node.DependsOn[0].RequiredBy
	if len(refs) != 1 || refs[0].ID != a.ID {
		t.Fatalf("expected required_by to list the root, got %v", refs)
	}
}

func TestEventsWrittenForLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task := createTask(t, env, "evented")
	if _, err := env.Engine.StartTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_kind='task' AND entity_id=? ORDER BY id`, strconv.FormatInt(task.ID, 10))
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatal(err)
		}
		types = append(types, typ)
	}
	if len(types) != 3 || types[0] != "task.created" || types[1] != "task.status_changed" || types[2] != "task.status_changed" {
		t.Fatalf("unexpected event trail %v", types)
	}
}
