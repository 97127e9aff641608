package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"taskline/internal/app"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/engine/auth"
	"taskline/internal/events"
	"taskline/internal/export"
	"taskline/internal/migrate"
	"taskline/internal/repo"
	"taskline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskline CLI",
	Long: `Taskline tracks personal tasks with dependencies, recurrence and time logs.
Core concepts:
- Workspace: the .taskline directory holding the SQLite database; taskline.yml next to it tunes the server, scheduler and webhooks.
- Tasks: work items with a priority (high/medium/low) and a status that flows not_started -> in_progress -> done, with blocked as a holding pen.
- Dependencies: tasks can depend on other tasks; the graph stays acyclic, dependents are blocked until their dependencies are done, and completing a task releases whoever was only waiting on it.
- Recurrence: daily/weekly/monthly patterns stamp out task instances ahead of time ('tl recur generate' or the serve-mode scheduler).
- Timers: start/stop a timer per task or log minutes by hand; totals feed the stats.
- Stats: daily/weekly/monthly/range reports, completion rates, trends and a dashboard ('tl stats dashboard').
- Event log: diary of every change, view with 'tl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "local", "actor recorded in the event log")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(recurCmd())
	rootCmd.AddCommand(timerCmd())
	rootCmd.AddCommand(timeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(menuCmd())
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		Long:  "Creates the .taskline directory and writes a starter taskline.yml. Use --force to overwrite an existing config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath, err := app.InitWorkspace(workspace, name, viper.GetBool("force"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"workspace": workspace, "config": cfgPath})
			}
			fmt.Printf("Initialized workspace %s\n", workspace)
			fmt.Printf("Wrote %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name for taskline.yml")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		Long:  "The scoreboard: task counts by status and priority, how many are overdue, and what to pick up next.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				statusCounts, err := e.Repo.CountTasksByStatus(ctx)
				if err != nil {
					return err
				}
				priorityCounts, err := e.Repo.CountTasksByPriority(ctx)
				if err != nil {
					return err
				}
				today := e.Now().UTC().Format("2006-01-02")
				overdue, err := e.Repo.OverdueTasks(ctx, today)
				if err != nil {
					return err
				}
				var next *domain.Task
				if t, err := e.Repo.NextTask(ctx); err == nil {
					next = &t
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				out := map[string]any{
					"status_counts":   statusCounts,
					"priority_counts": priorityCounts,
					"overdue_count":   len(overdue),
					"next_task":       next,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Println("Tasks by status:")
				for status, c := range statusCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("Tasks by priority:")
				for priority, c := range priorityCounts {
					fmt.Printf("  %s: %d\n", priority, c)
				}
				fmt.Printf("Overdue: %d\n", len(overdue))
				if next != nil {
					fmt.Printf("Next up: #%d %s [%s]\n", next.ID, next.Title, next.Priority)
				} else {
					fmt.Println("Next up: none")
				}
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are the work items. They flow not_started -> in_progress -> done, can depend on each other, and show up blocked while a dependency is unfinished.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskEditCmd())
	task.AddCommand(taskRmCmd())
	task.AddCommand(taskStartCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskBlockCmd())
	task.AddCommand(taskSetStatusCmd())
	task.AddCommand(taskAvailableCmd())
	task.AddCommand(taskBlockedCmd())
	task.AddCommand(taskOverdueCmd())
	task.AddCommand(taskNextCmd())
	task.AddCommand(taskSummaryCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var dependsOn []int64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("user")
			opts.DependsOn = dependsOn
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "medium", "priority (high|medium|low)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().Int64SliceVar(&dependsOn, "depends-on", []int64{}, "dependency task id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var recurring bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("recurring") {
				f.Recurring = &recurring
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().BoolVar(&recurring, "recurring", false, "recurring filter")
	cmd.Flags().StringVar(&f.DueBefore, "due-before", "", "due before date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows (0 = all)")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskEditCmd() *cobra.Command {
	var title, description, priority, status, due string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			opts := engine.TaskUpdateOptions{ID: id, ActorID: viper.GetString("user")}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&due, "due", "", "new due date (empty clears)")
	return cmd
}

func taskRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete task",
		Long:  "Deletes the task along with its dependency edges and time logs.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, id, viper.GetString("user")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": id})
				}
				fmt.Printf("Deleted task %d\n", id)
				return nil
			})
		},
	}
	return cmd
}

func taskStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.StartTask(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Complete task",
		Long:  "Marks the task done, stops its running timer, and unblocks dependents whose dependencies are now all complete.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, unblocked, err := e.CompleteTask(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": t, "unblocked": unblocked})
				}
				fmt.Printf("Completed #%d %s\n", t.ID, t.Title)
				for _, u := range unblocked {
					fmt.Printf("Unblocked #%d %s\n", u.ID, u.Title)
				}
				return nil
			})
		},
	}
	return cmd
}

func taskBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block <id>",
		Short: "Block task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.BlockTask(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Set task status directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetStatus(ctx, id, status, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskAvailableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "available",
		Short: "List tasks ready to start",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.AvailableTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	return cmd
}

func taskBlockedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "List tasks waiting on dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.BlockedTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	return cmd
}

func taskOverdueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List overdue tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				today := e.Now().UTC().Format("2006-01-02")
				tasks, err := e.Repo.OverdueTasks(ctx, today)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	return cmd
}

func taskNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Suggest the next task to work on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.NextTask(ctx)
				if errors.Is(err, repo.ErrNotFound) {
					if viper.GetBool("json") {
						return printJSON(nil)
					}
					fmt.Println("No available tasks.")
					return nil
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary <id>",
		Short: "Show task with dependencies, dependents and time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.TaskSummary(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func depCmd() *cobra.Command {
	dep := &cobra.Command{
		Use:   "dep",
		Short: "Manage task dependencies",
		Long:  "Dependencies are edges 'task depends on other task'. The graph stays acyclic; adding an edge on an unfinished dependency blocks the task, and removing the last unfinished one releases it.",
	}
	dep.AddCommand(depAddCmd())
	dep.AddCommand(depRmCmd())
	dep.AddCommand(depListCmd())
	dep.AddCommand(depDependentsCmd())
	dep.AddCommand(depTreeCmd())
	return dep
}

func depAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <task-id> <depends-on-id>",
		Short: "Add dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			dependsOnID, err := parseID(args[1], "depends-on id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddDependency(ctx, taskID, dependsOnID, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func depRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <task-id> <depends-on-id>",
		Short: "Remove dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			dependsOnID, err := parseID(args[1], "depends-on id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveDependency(ctx, taskID, dependsOnID, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func depListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List direct dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Dependencies(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	return cmd
}

func depDependentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dependents <task-id>",
		Short: "List tasks depending on this one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Dependents(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	return cmd
}

func depTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <task-id>",
		Short: "Show dependency tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				node, err := e.DependencyTree(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(node)
				}
				printDependencyTree(node, "", true)
				if len(node.RequiredBy) > 0 {
					fmt.Println("Required by:")
					for _, ref := range node.RequiredBy {
						fmt.Printf("  #%d %s\n", ref.ID, ref.Title)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func recurCmd() *cobra.Command {
	recur := &cobra.Command{
		Use:   "recur",
		Short: "Manage recurring tasks",
		Long:  "Recurring patterns (daily/weekly/monthly with an interval and optional end date) stamp out task instances ahead of time.",
	}
	recur.AddCommand(recurAddCmd())
	recur.AddCommand(recurListCmd())
	recur.AddCommand(recurGenerateCmd())
	recur.AddCommand(recurTasksCmd())
	return recur
}

func recurAddCmd() *cobra.Command {
	var opts engine.RecurringCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a recurring task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("user")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, p, err := e.CreateRecurringTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"task": t, "pattern": p})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "medium", "priority (high|medium|low)")
	cmd.Flags().StringVar(&opts.Frequency, "frequency", "", "frequency (daily|weekly|monthly)")
	cmd.Flags().IntVar(&opts.Interval, "interval", 1, "repeat every N periods")
	cmd.Flags().StringVar(&opts.EndDate, "end-date", "", "stop generating after this date (YYYY-MM-DD)")
	cmd.Flags().IntSliceVar(&opts.DaysOfWeek, "days-of-week", []int{}, "weekly only: days 0=Sunday..6=Saturday (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("frequency")
	return cmd
}

func recurListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				patterns, err := e.Repo.ListPatterns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(patterns)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Frequency", "Interval", "Days", "End date"})
				for _, p := range patterns {
					days := ""
					if p.DaysOfWeekJSON != nil {
						days = *p.DaysOfWeekJSON
					}
					end := ""
					if p.EndDate != nil {
						end = *p.EndDate
					}
					tw.AppendRow(table.Row{p.ID, p.Frequency, p.Interval, days, end})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func recurGenerateCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "generate <pattern-id>",
		Short: "Generate upcoming instances",
		Long:  "Creates the next task instances for a pattern, resuming from the latest existing due date. Count 0 uses the configured default.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pattern id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.GenerateInstances(ctx, id, count, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "number of instances (0 = config default)")
	return cmd
}

func recurTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks <pattern-id>",
		Short: "List instances of a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "pattern id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetPattern(ctx, id); err != nil {
					return err
				}
				tasks, err := e.Repo.TasksForPattern(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	return cmd
}

func timerCmd() *cobra.Command {
	timer := &cobra.Command{
		Use:   "timer",
		Short: "Track time with start/stop timers",
	}
	timer.AddCommand(timerStartCmd())
	timer.AddCommand(timerStopCmd())
	timer.AddCommand(timerActiveCmd())
	return timer
}

func timerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start a timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.StartTimer(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	return cmd
}

func timerStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop the running timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.StopTimer(ctx, id, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(l)
				}
				minutes := 0
				if l.DurationMinutes != nil {
					minutes = *l.DurationMinutes
				}
				fmt.Printf("Stopped timer on task %d: %s\n", l.TaskID, engine.FormatMinutes(minutes))
				return nil
			})
		},
	}
	return cmd
}

func timerActiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "List running timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.ActiveTimers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Log", "Task", "Started"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.ID, l.TaskID, l.StartTime})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func timeCmd() *cobra.Command {
	tc := &cobra.Command{
		Use:   "time",
		Short: "Manage manual time logs",
	}
	tc.AddCommand(timeAddCmd())
	tc.AddCommand(timeListCmd())
	tc.AddCommand(timeTotalCmd())
	tc.AddCommand(timeRmCmd())
	return tc
}

func timeAddCmd() *cobra.Command {
	var minutes int
	var date string
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Log minutes on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.LogTime(ctx, id, minutes, date, viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "duration in minutes")
	cmd.Flags().StringVar(&date, "date", "", "log date (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func timeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List time logs for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.TimeLogs(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				renderTimeLogTable(logs)
				return nil
			})
		},
	}
	return cmd
}

func timeTotalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "total <task-id>",
		Short: "Total time on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				total, err := e.TotalTime(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task_id": id, "total_minutes": total, "total_formatted": engine.FormatMinutes(total)})
				}
				fmt.Printf("Task %d: %s (%d minutes)\n", id, engine.FormatMinutes(total), total)
				return nil
			})
		},
	}
	return cmd
}

func timeRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <log-id>",
		Short: "Delete a time log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "log id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTimeLog(ctx, id, viper.GetString("user")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": id})
				}
				fmt.Printf("Deleted time log %d\n", id)
				return nil
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Productivity reports",
		Long:  "Reports over completed/created tasks and logged time: daily, weekly, monthly, ranges, completion rates, trends and a dashboard.",
	}
	stats.AddCommand(statsTodayCmd())
	stats.AddCommand(statsDateCmd())
	stats.AddCommand(statsWeekCmd())
	stats.AddCommand(statsMonthCmd())
	stats.AddCommand(statsRangeCmd())
	stats.AddCommand(statsCompletionCmd())
	stats.AddCommand(statsPrioritiesCmd())
	stats.AddCommand(statsTrendCmd())
	stats.AddCommand(statsAverageCmd())
	stats.AddCommand(statsAnalysisCmd())
	stats.AddCommand(statsDashboardCmd())
	return stats
}

func statsTodayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Today's stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.TodayStats(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func statsDateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "date <YYYY-MM-DD>",
		Short: "Stats for a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.DateStats(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func statsWeekCmd() *cobra.Command {
	var endDate string
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Trailing 7-day stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.WeeklyStats(ctx, endDate)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&endDate, "end-date", "", "week ending date (default today)")
	return cmd
}

func statsMonthCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Calendar month stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.MonthlyStats(ctx, year, month)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default current)")
	return cmd
}

func statsRangeCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Stats over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.RangeStats(ctx, start, end)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func statsCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Overall completion rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CompletionRate(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func statsPrioritiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priorities",
		Short: "Completion rate per priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.PriorityCompletionRates(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func statsTrendCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Per-day stats for the last N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Trend(ctx, days)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days")
	return cmd
}

func statsAverageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "average",
		Short: "Average completion time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AvgCompletionTime(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func statsAnalysisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Per-priority breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.PriorityAnalysis(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				renderPriorityTable(rows)
				return nil
			})
		},
	}
	return cmd
}

func statsDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Aggregate dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Dashboard(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func exportCmd() *cobra.Command {
	var out, scope, priority string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as an iCalendar file",
		Long:  "Writes an RFC 5545 calendar of tasks with due dates (recurring templates carry RRULEs). Scope: all, pending or overdue; --priority narrows to one level.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				x := export.Exporter{Repo: e.Repo, Now: e.Now}
				var ics string
				var err error
				switch {
				case priority != "":
					ics, err = x.PriorityCalendar(ctx, priority)
				case scope == "pending":
					ics, err = x.PendingCalendar(ctx)
				case scope == "overdue":
					ics, err = x.OverdueCalendar(ctx)
				case scope == "" || scope == "all":
					ics, err = x.Calendar(ctx)
				default:
					return fmt.Errorf("invalid scope %q (want all, pending or overdue)", scope)
				}
				if err != nil {
					return err
				}
				if out == "" {
					fmt.Print(ics)
					return nil
				}
				if err := os.WriteFile(out, []byte(ics), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s (%d bytes)\n", out, len(ics))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.Flags().StringVar(&scope, "scope", "all", "all, pending or overdue")
	cmd.Flags().StringVar(&priority, "priority", "", "only tasks with this priority")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
		Long:  "Users exist for the HTTP API: signup/login issue bearer tokens, API keys hang off a user. Local CLI commands never require one.",
	}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userLoginCmd())
	user.AddCommand(userActivateCmd(true))
	user.AddCommand(userActivateCmd(false))
	return user
}

func userAddCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				svc := auth.Service{Repo: e.Repo, Now: e.Now}
				u, err := svc.Register(ctx, username, email, password)
				if err != nil {
					return err
				}
				if err := logEvent(ctx, e, "user.registered", "user", strconv.FormatInt(u.ID, 10), events.EventPayload{"username": u.Username}); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username (min 3 chars)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (min 6 chars)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(users)
			})
		},
	}
	return cmd
}

func userLoginCmd() *cobra.Command {
	var login, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				svc := auth.Service{Repo: r}
				u, err := svc.Authenticate(ctx, login, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "username or email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("login")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userActivateCmd(active bool) *cobra.Command {
	use, short := "activate <id>", "Reactivate a user"
	if !active {
		use, short = "deactivate <id>", "Deactivate a user (login refused)"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.SetUserActive(ctx, id, active); err != nil {
					return err
				}
				u, err := e.Repo.GetUserByID(ctx, id)
				if err != nil {
					return err
				}
				if err := logEvent(ctx, e, "user.updated", "user", args[0], events.EventPayload{"is_active": active}); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func dbCmd() *cobra.Command {
	dbc := &cobra.Command{
		Use:   "db",
		Short: "Database administration",
	}
	dbc.AddCommand(dbStatsCmd())
	dbc.AddCommand(dbClearCmd())
	return dbc
}

func dbStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show row counts, schema version and file size",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.TableCounts(ctx)
				if err != nil {
					return err
				}
				version, err := migrate.Version(r.DB)
				if err != nil {
					return err
				}
				path := db.Path(workspace)
				var size int64
				if info, err := os.Stat(path); err == nil {
					size = info.Size()
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"tables":         counts,
						"schema_version": version,
						"file":           path,
						"file_bytes":     size,
					})
				}
				fmt.Println("Rows:")
				for tbl, c := range counts {
					fmt.Printf("  %s: %d\n", tbl, c)
				}
				fmt.Printf("Schema version: %d\n", version)
				fmt.Printf("Database: %s (%d bytes)\n", path, size)
				return nil
			})
		},
	}
	return cmd
}

func dbClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all data",
		Long:  "Removes every task, dependency, pattern, time log, stat row and event. Requires --force.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !viper.GetBool("force") {
				return fmt.Errorf("refusing to clear all data without --force")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.ClearAll(ctx); err != nil {
					return err
				}
				if err := logEvent(ctx, e, "db.cleared", "db", "", nil); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"status": "cleared"})
				}
				fmt.Println("Cleared all data.")
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: task changes, dependency edits, timers, generation runs and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				evts, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the REST API with OpenAPI docs, plus the webhook dispatcher and the recurring-task scheduler when taskline.yml enables them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer logger.Sync()
			authCfg := server.AuthConfig{
				Require:   cfg.Auth.Require,
				JWTSecret: cfg.Auth.JWTSecret,
				TokenTTL:  time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
				Logger:    logger,
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e, logger)
			sched, err := engine.StartScheduler(e, logger)
			if err != nil {
				return err
			}
			defer sched.Stop()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from taskline.yml, else :8787)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from taskline.yml, else /api/v1)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func logEvent(ctx context.Context, e engine.Engine, evtType, entityKind, entityID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, entityKind, entityID, viper.GetString("user"), payload); err != nil {
		return err
	}
	return tx.Commit()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

func renderTaskTable(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Status", "Due"})
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = *t.DueDate
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Status, due})
	}
	tw.Render()
}

func renderTimeLogTable(logs []domain.TimeLog) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Task", "Start", "End", "Minutes"})
	for _, l := range logs {
		end := "running"
		if l.EndTime != nil {
			end = *l.EndTime
		}
		minutes := ""
		if l.DurationMinutes != nil {
			minutes = strconv.Itoa(*l.DurationMinutes)
		}
		tw.AppendRow(table.Row{l.ID, l.TaskID, l.StartTime, end, minutes})
	}
	tw.Render()
}

func renderPriorityTable(rows []domain.PriorityBreakdown) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Priority", "Total", "Done", "In progress", "Blocked", "Pending", "Time"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.Priority, r.Total, r.Completed, r.InProgress, r.Blocked, r.Pending, r.TotalTimeFormatted})
	}
	tw.Render()
}

func printDependencyTree(n *domain.DependencyNode, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s#%d %s [%s]\n", prefix, connector, n.Task.ID, n.Task.Title, n.Task.Status)
	for i, c := range n.DependsOn {
		printDependencyTree(c, newPrefix, i == len(n.DependsOn)-1)
	}
}
