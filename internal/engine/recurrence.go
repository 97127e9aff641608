package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

// RecurringCreateOptions are parameters for creating a recurring task: the
// pattern plus its template task, inserted together.
type RecurringCreateOptions struct {
	Title       string
	Description string
	Priority    string
	Frequency   string
	Interval    int
	EndDate     string
	DaysOfWeek  []int
	ActorID     string
}

func (e Engine) CreateRecurringTask(ctx context.Context, opts RecurringCreateOptions) (domain.Task, domain.RecurringPattern, error) {
	var t domain.Task
	var p domain.RecurringPattern
	if opts.Title == "" {
		return t, p, validationf("title is required")
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if err := validatePriority(opts.Priority); err != nil {
		return t, p, err
	}
	switch opts.Frequency {
	case "daily", "weekly", "monthly":
	default:
		return t, p, validationf("invalid frequency %q (expected daily, weekly or monthly)", opts.Frequency)
	}
	if opts.Interval == 0 {
		opts.Interval = 1
	}
	if opts.Interval < 1 {
		return t, p, validationf("interval must be >= 1")
	}
	if opts.EndDate != "" {
		if err := validateDate(opts.EndDate); err != nil {
			return t, p, err
		}
	}
	var daysJSON *string
	if len(opts.DaysOfWeek) > 0 {
		if opts.Frequency != "weekly" {
			return t, p, validationf("days_of_week only applies to weekly patterns")
		}
		for _, d := range opts.DaysOfWeek {
			if d < 0 || d > 6 {
				return t, p, validationf("days_of_week values must be 0..6, got %d", d)
			}
		}
		b, err := json.Marshal(opts.DaysOfWeek)
		if err != nil {
			return t, p, err
		}
		s := string(b)
		daysJSON = &s
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, p, err
	}
	defer tx.Rollback()

	nowStr := e.now().UTC().Format(time.RFC3339)
	p = domain.RecurringPattern{
		Frequency:      opts.Frequency,
		Interval:       opts.Interval,
		DaysOfWeekJSON: daysJSON,
		CreatedAt:      nowStr,
	}
	if opts.EndDate != "" {
		p.EndDate = &opts.EndDate
	}
	pid, err := e.Repo.InsertPattern(ctx, tx, p)
	if err != nil {
		return t, p, err
	}
	p.ID = pid
	if err := e.Events.Append(ctx, tx, "pattern.created", "pattern", itoa(pid), opts.ActorID, events.EventPayload{
		"frequency": p.Frequency,
		"interval":  p.Interval,
	}); err != nil {
		return t, p, err
	}

	t = domain.Task{
		Title:              opts.Title,
		Description:        opts.Description,
		Priority:           opts.Priority,
		Status:             "not_started",
		IsRecurring:        true,
		RecurringPatternID: &p.ID,
		CreatedAt:          nowStr,
		UpdatedAt:          nowStr,
	}
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return t, p, err
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "task.created", "task", itoa(id), opts.ActorID, events.EventPayload{
		"title":     t.Title,
		"priority":  t.Priority,
		"recurring": true,
	}); err != nil {
		return t, p, err
	}
	if err := tx.Commit(); err != nil {
		return t, p, err
	}
	return t, p, nil
}

// GenerateInstances expands a pattern into concrete tasks. Due dates step
// forward from now; generation stops early once a date passes the pattern's
// end date and returns the partial batch. Each instance copies the
// template's title, description and priority and records which pattern it
// came from, but is not itself recurring: editing or completing an instance
// never touches the pattern or its siblings. Two calls produce two
// independent batches relative to now at call time.
func (e Engine) GenerateInstances(ctx context.Context, patternID int64, count int, actorID string) ([]domain.Task, error) {
	if count <= 0 {
		count = e.defaultGenerateCount()
	}
	pattern, err := e.Repo.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	template, err := e.Repo.TemplateForPattern(ctx, patternID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, validationf("no recurring template task references pattern %d", patternID)
		}
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	start := e.now().UTC()
	nowStr := start.Format(time.RFC3339)
	created := []domain.Task{}
	for i := 0; i < count; i++ {
		var next time.Time
		switch pattern.Frequency {
		case "daily":
			next = start.AddDate(0, 0, i*pattern.Interval)
		case "weekly":
			next = start.AddDate(0, 0, 7*i*pattern.Interval)
		case "monthly":
			next = addMonths(start, i*pattern.Interval)
		default:
			return nil, validationf("invalid frequency %q", pattern.Frequency)
		}
		due := next.Format(dateLayout)
		if pattern.EndDate != nil && due > *pattern.EndDate {
			break
		}
		t := domain.Task{
			Title:              template.Title,
			Description:        template.Description,
			Priority:           template.Priority,
			Status:             "not_started",
			DueDate:            &due,
			RecurringPatternID: &pattern.ID,
			CreatedAt:          nowStr,
			UpdatedAt:          nowStr,
		}
		id, err := e.Repo.InsertTask(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		t.ID = id
		if err := e.Events.Append(ctx, tx, "task.created", "task", itoa(id), actorID, events.EventPayload{
			"title":    t.Title,
			"priority": t.Priority,
			"due_date": due,
		}); err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	if err := e.Events.Append(ctx, tx, "pattern.generated", "pattern", itoa(patternID), actorID, events.EventPayload{
		"count": len(created),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (e Engine) defaultGenerateCount() int {
	if e.Config != nil && e.Config.Recurrence.DefaultCount > 0 {
		return e.Config.Recurrence.DefaultCount
	}
	return 10
}

// addMonths advances by whole calendar months, clamping the day of month to
// the last day of a shorter target month (Jan 31 + 1 month = Feb 28). The
// stdlib AddDate would normalize the overflow into the following month
// instead.
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := t.Day()
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
