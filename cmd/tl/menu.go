package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/export"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

func menuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Interactive console menu",
		Long:  "A numbered menu over the same engine as the subcommands, for working a task list without leaving one terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return runMenu(ctx, e)
			})
		},
	}
	return cmd
}

func runMenu(ctx context.Context, e engine.Engine) error {
	sc := bufio.NewScanner(os.Stdin)
	for {
		printMenu()
		choice, ok := promptLine(sc, "Choice")
		if !ok || choice == "0" || strings.EqualFold(choice, "q") {
			return nil
		}
		if err := runMenuChoice(ctx, e, sc, choice); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func printMenu() {
	fmt.Println()
	fmt.Println("Taskline")
	fmt.Println(" 1) List tasks            12) Remove dependency")
	fmt.Println(" 2) Task details          13) Dependency tree")
	fmt.Println(" 3) Create task           14) Start timer")
	fmt.Println(" 4) Create recurring task 15) Stop timer")
	fmt.Println(" 5) Edit task             16) Log time")
	fmt.Println(" 6) Delete task           17) Dashboard")
	fmt.Println(" 7) Start task            18) Weekly report")
	fmt.Println(" 8) Complete task         19) Priority analysis")
	fmt.Println(" 9) Block task            20) Export calendar")
	fmt.Println("10) Set status            21) Database stats")
	fmt.Println("11) Add dependency         0) Quit")
}

func runMenuChoice(ctx context.Context, e engine.Engine, sc *bufio.Scanner, choice string) error {
	actor := viper.GetString("user")
	switch choice {
	case "1":
		return menuListTasks(ctx, e, sc)
	case "2":
		return menuTaskDetails(ctx, e, sc)
	case "3":
		return menuCreateTask(ctx, e, sc, actor)
	case "4":
		return menuCreateRecurring(ctx, e, sc, actor)
	case "5":
		return menuEditTask(ctx, e, sc, actor)
	case "6":
		return menuDeleteTask(ctx, e, sc, actor)
	case "7":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		t, err := e.StartTask(ctx, id, actor)
		if err != nil {
			return err
		}
		fmt.Printf("Started #%d %s\n", t.ID, t.Title)
		return nil
	case "8":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		t, unblocked, err := e.CompleteTask(ctx, id, actor)
		if err != nil {
			return err
		}
		fmt.Printf("Completed #%d %s\n", t.ID, t.Title)
		for _, u := range unblocked {
			fmt.Printf("Unblocked #%d %s\n", u.ID, u.Title)
		}
		return nil
	case "9":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		t, err := e.BlockTask(ctx, id, actor)
		if err != nil {
			return err
		}
		fmt.Printf("Blocked #%d %s\n", t.ID, t.Title)
		return nil
	case "10":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		status, _ := promptLine(sc, "Status (not_started/in_progress/done/blocked)")
		t, err := e.SetStatus(ctx, id, status, actor)
		if err != nil {
			return err
		}
		fmt.Printf("#%d is now %s\n", t.ID, t.Status)
		return nil
	case "11":
		taskID, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		dependsOnID, err := promptID(sc, "Depends on id")
		if err != nil {
			return err
		}
		t, err := e.AddDependency(ctx, taskID, dependsOnID, actor)
		if err != nil {
			return err
		}
		fmt.Printf("#%d now depends on #%d (status %s)\n", taskID, dependsOnID, t.Status)
		return nil
	case "12":
		taskID, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		dependsOnID, err := promptID(sc, "Depends on id")
		if err != nil {
			return err
		}
		t, err := e.RemoveDependency(ctx, taskID, dependsOnID, actor)
		if err != nil {
			return err
		}
		fmt.Printf("Removed dependency #%d -> #%d (status %s)\n", taskID, dependsOnID, t.Status)
		return nil
	case "13":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		node, err := e.DependencyTree(ctx, id)
		if err != nil {
			return err
		}
		printDependencyTree(node, "", true)
		return nil
	case "14":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		l, err := e.StartTimer(ctx, id, actor)
		if err != nil {
			return err
		}
		fmt.Printf("Timer %d running on task %d since %s\n", l.ID, l.TaskID, l.StartTime)
		return nil
	case "15":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		l, err := e.StopTimer(ctx, id, actor)
		if err != nil {
			return err
		}
		minutes := 0
		if l.DurationMinutes != nil {
			minutes = *l.DurationMinutes
		}
		fmt.Printf("Stopped: %s\n", engine.FormatMinutes(minutes))
		return nil
	case "16":
		id, err := promptID(sc, "Task id")
		if err != nil {
			return err
		}
		minutes, err := promptInt(sc, "Minutes", 0)
		if err != nil {
			return err
		}
		date, _ := promptLine(sc, "Date (YYYY-MM-DD, empty = today)")
		l, err := e.LogTime(ctx, id, minutes, date, actor)
		if err != nil {
			return err
		}
		fmt.Printf("Logged %s on task %d\n", engine.FormatMinutes(minutes), l.TaskID)
		return nil
	case "17":
		return menuDashboard(ctx, e)
	case "18":
		s, err := e.WeeklyStats(ctx, "")
		if err != nil {
			return err
		}
		fmt.Printf("Week %s .. %s: %d completed, %d created, %d high-priority done, %s logged\n",
			s.StartDate, s.EndDate, s.TasksCompleted, s.TasksCreated, s.HighPriorityCompleted, s.TimeFormatted)
		return nil
	case "19":
		rows, err := e.PriorityAnalysis(ctx)
		if err != nil {
			return err
		}
		renderPriorityTable(rows)
		return nil
	case "20":
		return menuExport(ctx, e, sc)
	case "21":
		return menuDBStats(ctx, e)
	default:
		fmt.Printf("Unknown choice %q\n", choice)
		return nil
	}
}

func menuListTasks(ctx context.Context, e engine.Engine, sc *bufio.Scanner) error {
	status, _ := promptLine(sc, "Status filter (empty = all)")
	priority, _ := promptLine(sc, "Priority filter (empty = all)")
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: status, Priority: priority})
	if err != nil {
		return err
	}
	renderTaskTable(tasks)
	return nil
}

func menuTaskDetails(ctx context.Context, e engine.Engine, sc *bufio.Scanner) error {
	id, err := promptID(sc, "Task id")
	if err != nil {
		return err
	}
	s, err := e.TaskSummary(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("#%d %s [%s, %s]\n", s.Task.ID, s.Task.Title, s.Task.Priority, s.Task.Status)
	if s.Task.Description != "" {
		fmt.Printf("  %s\n", s.Task.Description)
	}
	if s.Task.DueDate != nil {
		fmt.Printf("  Due %s\n", *s.Task.DueDate)
	}
	if len(s.Dependencies) > 0 {
		fmt.Println("Depends on:")
		renderTaskTable(s.Dependencies)
	}
	if len(s.Dependents) > 0 {
		fmt.Println("Required by:")
		renderTaskTable(s.Dependents)
	}
	if len(s.TimeLogs) > 0 {
		fmt.Println("Time logs:")
		renderTimeLogTable(s.TimeLogs)
	}
	fmt.Printf("Total time: %s\n", s.TotalFormatted)
	return nil
}

func menuCreateTask(ctx context.Context, e engine.Engine, sc *bufio.Scanner, actor string) error {
	title, _ := promptLine(sc, "Title")
	description, _ := promptLine(sc, "Description (optional)")
	priority, _ := promptLine(sc, "Priority (high/medium/low, empty = medium)")
	if priority == "" {
		priority = "medium"
	}
	due, _ := promptLine(sc, "Due date (YYYY-MM-DD, optional)")
	t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
		Title:       title,
		Description: description,
		Priority:    priority,
		DueDate:     due,
		ActorID:     actor,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created #%d %s\n", t.ID, t.Title)
	return nil
}

func menuCreateRecurring(ctx context.Context, e engine.Engine, sc *bufio.Scanner, actor string) error {
	title, _ := promptLine(sc, "Title")
	frequency, _ := promptLine(sc, "Frequency (daily/weekly/monthly)")
	interval, err := promptInt(sc, "Interval (empty = 1)", 1)
	if err != nil {
		return err
	}
	endDate, _ := promptLine(sc, "End date (YYYY-MM-DD, optional)")
	var days []int
	if frequency == "weekly" {
		raw, _ := promptLine(sc, "Days of week 0=Sun..6=Sat, comma separated (optional)")
		days, err = parseDayList(raw)
		if err != nil {
			return err
		}
	}
	t, p, err := e.CreateRecurringTask(ctx, engine.RecurringCreateOptions{
		Title:      title,
		Priority:   "medium",
		Frequency:  frequency,
		Interval:   interval,
		EndDate:    endDate,
		DaysOfWeek: days,
		ActorID:    actor,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created template #%d %s (pattern %d, %s every %d)\n", t.ID, t.Title, p.ID, p.Frequency, p.Interval)
	return nil
}

func menuEditTask(ctx context.Context, e engine.Engine, sc *bufio.Scanner, actor string) error {
	id, err := promptID(sc, "Task id")
	if err != nil {
		return err
	}
	opts := engine.TaskUpdateOptions{ID: id, ActorID: actor}
	if v, _ := promptLine(sc, "New title (empty = keep)"); v != "" {
		opts.Title = &v
	}
	if v, _ := promptLine(sc, "New description (empty = keep)"); v != "" {
		opts.Description = &v
	}
	if v, _ := promptLine(sc, "New priority (empty = keep)"); v != "" {
		opts.Priority = &v
	}
	if v, _ := promptLine(sc, "New due date (empty = keep)"); v != "" {
		opts.DueDate = &v
	}
	t, err := e.UpdateTask(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Updated #%d %s\n", t.ID, t.Title)
	return nil
}

func menuDeleteTask(ctx context.Context, e engine.Engine, sc *bufio.Scanner, actor string) error {
	id, err := promptID(sc, "Task id")
	if err != nil {
		return err
	}
	confirm, _ := promptLine(sc, fmt.Sprintf("Delete task %d and its time logs? (y/N)", id))
	if !strings.EqualFold(confirm, "y") && !strings.EqualFold(confirm, "yes") {
		fmt.Println("Kept.")
		return nil
	}
	if err := e.DeleteTask(ctx, id, actor); err != nil {
		return err
	}
	fmt.Printf("Deleted task %d\n", id)
	return nil
}

func menuDashboard(ctx context.Context, e engine.Engine) error {
	d, err := e.Dashboard(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Today: %d completed, %d created, %s logged\n", d.Today.TasksCompleted, d.Today.TasksCreated, d.Today.TimeFormatted)
	fmt.Printf("Week:  %d completed, %d created, %s logged\n", d.Weekly.TasksCompleted, d.Weekly.TasksCreated, d.Weekly.TimeFormatted)
	fmt.Printf("Completion: %.1f%% (%d of %d, %d remaining)\n", d.Completion.Rate, d.Completion.CompletedTasks, d.Completion.TotalTasks, d.Completion.RemainingTasks)
	fmt.Printf("Overdue: %d   Blocked: %d\n", d.OverdueCount, d.BlockedCount)
	fmt.Println("By status:")
	for status, c := range d.StatusCounts {
		fmt.Printf("  %s: %d\n", status, c)
	}
	fmt.Println("By priority:")
	for priority, c := range d.PriorityCounts {
		fmt.Printf("  %s: %d\n", priority, c)
	}
	if d.MostProductiveDay != nil {
		fmt.Printf("Most productive day: %s (%d completed)\n", d.MostProductiveDay.Date, d.MostProductiveDay.TasksCompleted)
	}
	fmt.Printf("Avg completion: %.1f days\n", d.AvgCompletion.AverageDays)
	return nil
}

func menuExport(ctx context.Context, e engine.Engine, sc *bufio.Scanner) error {
	path, _ := promptLine(sc, "Output file (empty = taskline.ics)")
	if path == "" {
		path = "taskline.ics"
	}
	x := export.Exporter{Repo: e.Repo, Now: e.Now}
	ics, err := x.Calendar(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(ics), 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes)\n", path, len(ics))
	return nil
}

func menuDBStats(ctx context.Context, e engine.Engine) error {
	counts, err := e.Repo.TableCounts(ctx)
	if err != nil {
		return err
	}
	version, err := migrate.Version(e.DB)
	if err != nil {
		return err
	}
	path := db.Path(viper.GetString("workspace"))
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	fmt.Println("Rows:")
	for tbl, c := range counts {
		fmt.Printf("  %s: %d\n", tbl, c)
	}
	fmt.Printf("Schema version: %d\n", version)
	fmt.Printf("Database: %s (%d bytes)\n", path, size)
	return nil
}

// --- prompts ---

func promptLine(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Printf("%s: ", label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

func promptID(sc *bufio.Scanner, label string) (int64, error) {
	raw, ok := promptLine(sc, label)
	if !ok {
		return 0, fmt.Errorf("input closed")
	}
	return parseID(raw, strings.ToLower(label))
}

func promptInt(sc *bufio.Scanner, label string, def int) (int, error) {
	raw, ok := promptLine(sc, label)
	if !ok {
		return 0, fmt.Errorf("input closed")
	}
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return n, nil
}

func parseDayList(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var days []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid day %q", part)
		}
		days = append(days, n)
	}
	return days, nil
}
