package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

const (
	dateLayout  = "2006-01-02"
	stampLayout = "20060102T150405Z"
	basicDate   = "20060102"
)

// Exporter renders tasks as an iCalendar (RFC 5545) document that Google
// Calendar, Outlook and Apple Calendar can import.
type Exporter struct {
	Repo repo.Repo
	Now  func() time.Time
}

func New(r repo.Repo) Exporter {
	return Exporter{Repo: r}
}

func (x Exporter) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

// Calendar exports every task.
func (x Exporter) Calendar(ctx context.Context) (string, error) {
	tasks, err := x.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return "", err
	}
	return x.render(ctx, tasks)
}

// PendingCalendar exports tasks that are not done yet.
func (x Exporter) PendingCalendar(ctx context.Context) (string, error) {
	tasks, err := x.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return "", err
	}
	pending := tasks[:0]
	for _, t := range tasks {
		if t.Status != "done" {
			pending = append(pending, t)
		}
	}
	return x.render(ctx, pending)
}

// PriorityCalendar exports tasks at one priority level.
func (x Exporter) PriorityCalendar(ctx context.Context, priority string) (string, error) {
	tasks, err := x.Repo.ListTasks(ctx, repo.TaskFilters{Priority: priority})
	if err != nil {
		return "", err
	}
	return x.render(ctx, tasks)
}

// OverdueCalendar exports incomplete tasks whose due date is in the past.
func (x Exporter) OverdueCalendar(ctx context.Context) (string, error) {
	today := x.now().UTC().Format(dateLayout)
	tasks, err := x.Repo.OverdueTasks(ctx, today)
	if err != nil {
		return "", err
	}
	return x.render(ctx, tasks)
}

func (x Exporter) render(ctx context.Context, tasks []domain.Task) (string, error) {
	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "PRODID:-//Taskline//EN")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "CALSCALE:GREGORIAN")
	writeLine(&b, "METHOD:PUBLISH")
	writeLine(&b, "X-WR-CALNAME:Taskline")
	writeLine(&b, "X-WR-TIMEZONE:UTC")
	writeLine(&b, "X-WR-CALDESC:Exported tasks from Taskline")
	stamp := x.now().UTC().Format(stampLayout)
	for _, t := range tasks {
		var pattern *domain.RecurringPattern
		if t.IsRecurring && t.RecurringPatternID != nil {
			if p, err := x.Repo.GetPattern(ctx, *t.RecurringPatternID); err == nil {
				pattern = &p
			}
		}
		x.writeEvent(&b, t, pattern, stamp)
	}
	writeLine(&b, "END:VCALENDAR")
	return b.String(), nil
}

func (x Exporter) writeEvent(b *strings.Builder, t domain.Task, pattern *domain.RecurringPattern, stamp string) {
	writeLine(b, "BEGIN:VEVENT")
	writeLine(b, fmt.Sprintf("UID:task-%d@taskline", t.ID))
	writeLine(b, "DTSTAMP:"+stamp)
	writeLine(b, "SUMMARY:"+escapeText(t.Title))

	desc := t.Description
	desc += "\n\nPriority: " + t.Priority
	desc += "\nStatus: " + t.Status
	if t.IsRecurring {
		desc += "\nRecurring: Yes"
	}
	writeLine(b, "DESCRIPTION:"+escapeText(strings.TrimLeft(desc, "\n")))

	if t.DueDate != nil {
		if due, err := time.Parse(dateLayout, *t.DueDate); err == nil {
			writeLine(b, "DTSTART;VALUE=DATE:"+due.Format(basicDate))
			writeLine(b, "DTEND;VALUE=DATE:"+due.AddDate(0, 0, 1).Format(basicDate))
		}
	} else {
		writeLine(b, "DTSTART;VALUE=DATE:"+x.parseStamp(t.CreatedAt).Format(basicDate))
	}
	writeLine(b, "CREATED:"+x.parseStamp(t.CreatedAt).Format(stampLayout))
	writeLine(b, "LAST-MODIFIED:"+x.parseStamp(t.UpdatedAt).Format(stampLayout))
	writeLine(b, "PRIORITY:"+icsPriority(t.Priority))
	writeLine(b, "STATUS:"+icsStatus(t.Status))
	writeLine(b, "CATEGORIES:"+strings.ToUpper(t.Priority))
	if pattern != nil {
		if rule := rrule(*pattern); rule != "" {
			writeLine(b, "RRULE:"+rule)
		}
	}
	writeLine(b, "END:VEVENT")
}

func (x Exporter) parseStamp(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC()
	}
	return x.now().UTC()
}

// icsPriority maps to the RFC 5545 1..9 scale (1=high, 5=medium, 9=low).
func icsPriority(priority string) string {
	switch priority {
	case "high":
		return "1"
	case "low":
		return "9"
	default:
		return "5"
	}
}

func icsStatus(status string) string {
	switch status {
	case "done":
		return "COMPLETED"
	case "in_progress":
		return "IN-PROCESS"
	case "blocked":
		return "CANCELLED"
	default:
		return "NEEDS-ACTION"
	}
}

// byDay translates weekday indexes (0=Monday .. 6=Sunday) to BYDAY codes.
var byDay = [7]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

func rrule(p domain.RecurringPattern) string {
	var freq string
	switch p.Frequency {
	case "daily":
		freq = "DAILY"
	case "weekly":
		freq = "WEEKLY"
	case "monthly":
		freq = "MONTHLY"
	default:
		return ""
	}
	parts := []string{"FREQ=" + freq}
	if p.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", p.Interval))
	}
	if p.EndDate != nil {
		if end, err := time.Parse(dateLayout, *p.EndDate); err == nil {
			parts = append(parts, "UNTIL="+end.Format(basicDate))
		}
	}
	if p.Frequency == "weekly" {
		if days := decodeDays(p.DaysOfWeekJSON); len(days) > 0 {
			parts = append(parts, "BYDAY="+strings.Join(days, ","))
		}
	}
	return strings.Join(parts, ";")
}

func decodeDays(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var idxs []int
	if err := json.Unmarshal([]byte(*raw), &idxs); err != nil {
		return nil
	}
	var days []string
	for _, idx := range idxs {
		if idx >= 0 && idx < len(byDay) {
			days = append(days, byDay[idx])
		}
	}
	return days
}

// escapeText applies RFC 5545 text escaping.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// writeLine folds content at 75 octets with space continuations and
// terminates with CRLF, as RFC 5545 requires.
func writeLine(b *strings.Builder, line string) {
	const limit = 75
	for len(line) > limit {
		cut := limit
		for cut > 0 && cut > limit-4 && !isCutSafe(line, cut) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

// isCutSafe reports whether cutting before index i keeps UTF-8 sequences
// intact.
func isCutSafe(s string, i int) bool {
	return i >= len(s) || (s[i]&0xC0) != 0x80
}
