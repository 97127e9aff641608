package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"taskline/internal/domain"
)

// FormatMinutes renders a minute total the way the reports print it.
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// DateStats computes live aggregates for one day and refreshes the
// productivity_stats cache for that day as a side effect. An empty date
// means today.
func (e Engine) DateStats(ctx context.Context, date string) (domain.DateStats, error) {
	if date == "" {
		date = e.now().UTC().Format(dateLayout)
	} else if err := validateDate(date); err != nil {
		return domain.DateStats{}, err
	}
	s, err := e.Repo.DateAggregates(ctx, date)
	if err != nil {
		return s, err
	}
	s.TimeFormatted = FormatMinutes(s.MinutesLogged)
	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertDateStats(ctx, s, nowStr); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) TodayStats(ctx context.Context) (domain.DateStats, error) {
	return e.DateStats(ctx, "")
}

// WeeklyStats covers the trailing seven days ending at endDate (today when
// empty), boundaries inclusive.
func (e Engine) WeeklyStats(ctx context.Context, endDate string) (domain.RangeStats, error) {
	end := e.now().UTC()
	if endDate != "" {
		if err := validateDate(endDate); err != nil {
			return domain.RangeStats{}, err
		}
		end, _ = time.Parse(dateLayout, endDate)
	}
	start := end.AddDate(0, 0, -7)
	return e.RangeStats(ctx, start.Format(dateLayout), end.Format(dateLayout))
}

// MonthlyStats covers one calendar month. Zero year/month means the current
// month.
func (e Engine) MonthlyStats(ctx context.Context, year int, month int) (domain.RangeStats, error) {
	if year == 0 || month == 0 {
		now := e.now().UTC()
		year = now.Year()
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return domain.RangeStats{}, validationf("invalid month %d", month)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return e.RangeStats(ctx, first.Format(dateLayout), last.Format(dateLayout))
}

func (e Engine) RangeStats(ctx context.Context, start, end string) (domain.RangeStats, error) {
	if err := validateDate(start); err != nil {
		return domain.RangeStats{}, err
	}
	if err := validateDate(end); err != nil {
		return domain.RangeStats{}, err
	}
	s, err := e.Repo.RangeAggregates(ctx, start, end)
	if err != nil {
		return s, err
	}
	s.TimeFormatted = FormatMinutes(s.MinutesLogged)
	return s, nil
}

func (e Engine) CompletionRate(ctx context.Context) (domain.CompletionRate, error) {
	total, completed, err := e.Repo.CompletionCounts(ctx)
	if err != nil {
		return domain.CompletionRate{}, err
	}
	r := domain.CompletionRate{
		TotalTasks:     total,
		CompletedTasks: completed,
		RemainingTasks: total - completed,
	}
	if total > 0 {
		r.Rate = round1(float64(completed) / float64(total) * 100)
	}
	return r, nil
}

func (e Engine) PriorityCompletionRates(ctx context.Context) (map[string]domain.PriorityRate, error) {
	rows, err := e.Repo.PriorityCompletionCounts(ctx)
	if err != nil {
		return nil, err
	}
	res := map[string]domain.PriorityRate{}
	for _, row := range rows {
		pr := domain.PriorityRate{
			Total:     row.Total,
			Completed: row.Completed,
			Remaining: row.Total - row.Completed,
		}
		if row.Total > 0 {
			pr.CompletionRate = round1(float64(row.Completed) / float64(row.Total) * 100)
		}
		res[row.Priority] = pr
	}
	return res, nil
}

// Trend lists per-day stats for the past days, oldest first, refreshing the
// productivity_stats cache along the way.
func (e Engine) Trend(ctx context.Context, days int) ([]domain.DateStats, error) {
	if days <= 0 {
		days = 7
	}
	now := e.now().UTC()
	res := make([]domain.DateStats, 0, days)
	for i := days; i > 0; i-- {
		date := now.AddDate(0, 0, -i).Format(dateLayout)
		s, err := e.DateStats(ctx, date)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (e Engine) AvgCompletionTime(ctx context.Context) (domain.AvgCompletion, error) {
	avg, err := e.Repo.AvgCompletionDays(ctx)
	if err != nil {
		return domain.AvgCompletion{}, err
	}
	if avg == nil {
		return domain.AvgCompletion{}, nil
	}
	return domain.AvgCompletion{
		AverageDays:  round1(*avg),
		AverageHours: round1(*avg * 24),
	}, nil
}

// PriorityAnalysis reports per-priority status counts plus total time.
func (e Engine) PriorityAnalysis(ctx context.Context) ([]domain.PriorityBreakdown, error) {
	rows, err := e.Repo.PriorityBreakdowns(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TotalTimeFormatted = FormatMinutes(rows[i].TotalMinutes)
	}
	return rows, nil
}

// Dashboard assembles the full productivity view.
func (e Engine) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	var d domain.Dashboard
	var err error
	if d.Today, err = e.TodayStats(ctx); err != nil {
		return d, err
	}
	if d.Weekly, err = e.WeeklyStats(ctx, ""); err != nil {
		return d, err
	}
	if d.Completion, err = e.CompletionRate(ctx); err != nil {
		return d, err
	}
	if d.PriorityCompletion, err = e.PriorityCompletionRates(ctx); err != nil {
		return d, err
	}
	if d.StatusCounts, err = e.Repo.CountTasksByStatus(ctx); err != nil {
		return d, err
	}
	if d.PriorityCounts, err = e.Repo.CountTasksByPriority(ctx); err != nil {
		return d, err
	}
	today := e.now().UTC().Format(dateLayout)
	if d.OverdueCount, err = e.Repo.OverdueCount(ctx, today); err != nil {
		return d, err
	}
	if d.BlockedCount, err = e.Repo.BlockedStatusCount(ctx); err != nil {
		return d, err
	}
	if d.MostProductiveDay, err = e.Repo.MostProductiveDay(ctx); err != nil {
		return d, err
	}
	if d.AvgCompletion, err = e.AvgCompletionTime(ctx); err != nil {
		return d, err
	}
	return d, nil
}

// TaskSummary is the task detail view: dependencies in both directions plus
// the time tracking totals.
func (e Engine) TaskSummary(ctx context.Context, taskID int64) (domain.TaskSummary, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskSummary{}, err
	}
	deps, err := e.loadTasks(ctx, t.DependsOn)
	if err != nil {
		return domain.TaskSummary{}, err
	}
	dependentIDs, err := e.Repo.ListTaskDependents(ctx, taskID)
	if err != nil {
		return domain.TaskSummary{}, err
	}
	dependents, err := e.loadTasks(ctx, dependentIDs)
	if err != nil {
		return domain.TaskSummary{}, err
	}
	logs, err := e.Repo.ListTimeLogs(ctx, taskID)
	if err != nil {
		return domain.TaskSummary{}, err
	}
	total, err := e.Repo.TotalMinutesForTask(ctx, taskID)
	if err != nil {
		return domain.TaskSummary{}, err
	}
	return domain.TaskSummary{
		Task:           t,
		Dependencies:   deps,
		Dependents:     dependents,
		TimeLogs:       logs,
		TotalMinutes:   total,
		TotalFormatted: FormatMinutes(total),
	}, nil
}
