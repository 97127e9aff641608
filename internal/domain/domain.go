package domain

type Task struct {
	ID                 int64   `json:"id"`
	Title              string  `json:"title"`
	Description        string  `json:"description,omitempty"`
	Priority           string  `json:"priority" enum:"high,medium,low"`
	Status             string  `json:"status" enum:"not_started,in_progress,done,blocked"`
	DueDate            *string `json:"due_date,omitempty"`
	IsRecurring        bool    `json:"is_recurring"`
	RecurringPatternID *int64  `json:"recurring_pattern_id,omitempty"`
	DependsOn          []int64 `json:"depends_on,omitempty"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

type DependencyEdge struct {
	TaskID      int64  `json:"task_id"`
	DependsOnID int64  `json:"depends_on_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type RecurringPattern struct {
	ID             int64   `json:"id"`
	Frequency      string  `json:"frequency" enum:"daily,weekly,monthly"`
	Interval       int     `json:"interval"`
	DaysOfWeekJSON *string `json:"days_of_week_json,omitempty"`
	EndDate        *string `json:"end_date,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type TimeLog struct {
	ID              int64   `json:"id"`
	TaskID          int64   `json:"task_id"`
	StartTime       string  `json:"start_time" format:"date-time"`
	EndTime         *string `json:"end_time,omitempty" format:"date-time"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// TaskRef is the shallow task reference used in dependency tree nodes.
type TaskRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// DependencyNode is one node of a dependency tree: the task itself, the
// tasks it depends on (expanded recursively), and the tasks that require it
// (shallow references only).
type DependencyNode struct {
	Task       Task              `json:"task"`
	DependsOn  []*DependencyNode `json:"depends_on"`
	RequiredBy []TaskRef         `json:"required_by"`
}

// TaskSummary is the detail view: the task plus its graph neighbours and
// time tracking totals.
type TaskSummary struct {
	Task           Task      `json:"task"`
	Dependencies   []Task    `json:"dependencies"`
	Dependents     []Task    `json:"dependents"`
	TimeLogs       []TimeLog `json:"time_logs"`
	TotalMinutes   int       `json:"total_time_minutes"`
	TotalFormatted string    `json:"total_time_formatted"`
}

type DateStats struct {
	Date                  string `json:"date"`
	TasksCompleted        int    `json:"tasks_completed"`
	TasksCreated          int    `json:"tasks_created"`
	HighPriorityCompleted int    `json:"high_priority_completed"`
	MinutesLogged         int    `json:"minutes_logged"`
	TimeFormatted         string `json:"time_formatted,omitempty"`
}

type RangeStats struct {
	StartDate             string `json:"start_date"`
	EndDate               string `json:"end_date"`
	TasksCompleted        int    `json:"tasks_completed"`
	TasksCreated          int    `json:"tasks_created"`
	HighPriorityCompleted int    `json:"high_priority_completed"`
	MinutesLogged         int    `json:"minutes_logged"`
	TimeFormatted         string `json:"time_formatted,omitempty"`
}

type CompletionRate struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	Rate           float64 `json:"completion_rate"`
	RemainingTasks int     `json:"remaining_tasks"`
}

// PriorityRate is the completion rate within one priority level.
type PriorityRate struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
	Remaining      int     `json:"remaining"`
}

type AvgCompletion struct {
	AverageDays  float64 `json:"average_days"`
	AverageHours float64 `json:"average_hours"`
}

type PriorityBreakdown struct {
	Priority           string `json:"priority" enum:"high,medium,low"`
	Total              int    `json:"total_tasks"`
	Completed          int    `json:"completed"`
	InProgress         int    `json:"in_progress"`
	Blocked            int    `json:"blocked"`
	Pending            int    `json:"pending"`
	TotalMinutes       int    `json:"total_time_minutes"`
	TotalTimeFormatted string `json:"total_time_formatted"`
}

type Dashboard struct {
	Today              DateStats               `json:"today"`
	Weekly             RangeStats              `json:"weekly"`
	Completion         CompletionRate          `json:"completion_rate"`
	PriorityCompletion map[string]PriorityRate `json:"priority_completion"`
	StatusCounts       map[string]int          `json:"task_status_distribution"`
	PriorityCounts     map[string]int          `json:"task_priority_distribution"`
	OverdueCount       int                     `json:"overdue_count"`
	BlockedCount       int                     `json:"blocked_count"`
	MostProductiveDay  *DateStats              `json:"most_productive_day,omitempty"`
	AvgCompletion      AvgCompletion           `json:"avg_completion_time"`
}
