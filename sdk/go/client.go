package tasksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Taskline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL points at the server
// root, e.g. http://localhost:8787.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "api/v1",
		Timeout:  10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID                 int64   `json:"id"`
	Title              string  `json:"title"`
	Description        string  `json:"description,omitempty"`
	Priority           string  `json:"priority"`
	Status             string  `json:"status"`
	DueDate            *string `json:"due_date,omitempty"`
	IsRecurring        bool    `json:"is_recurring"`
	RecurringPatternID *int64  `json:"recurring_pattern_id,omitempty"`
	DependsOn          []int64 `json:"depends_on"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// TaskRef is a shallow task reference.
type TaskRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// CompleteResult is the outcome of completing a task.
type CompleteResult struct {
	Task      Task   `json:"task"`
	Unblocked []Task `json:"unblocked"`
}

// Availability reports whether a task can be started.
type Availability struct {
	TaskID    int64 `json:"task_id"`
	Available bool  `json:"available"`
	Blocked   bool  `json:"blocked"`
}

// DependencyNode is one node of a dependency tree.
type DependencyNode struct {
	Task       Task             `json:"task"`
	DependsOn  []DependencyNode `json:"depends_on"`
	RequiredBy []TaskRef        `json:"required_by"`
}

// Pattern represents a recurring schedule.
type Pattern struct {
	ID         int64   `json:"id"`
	Frequency  string  `json:"frequency"`
	Interval   int     `json:"interval"`
	DaysOfWeek []int   `json:"days_of_week,omitempty"`
	EndDate    *string `json:"end_date,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// RecurringTask pairs a template task with its pattern.
type RecurringTask struct {
	Task    Task    `json:"task"`
	Pattern Pattern `json:"pattern"`
}

// TimeLog represents one timer session or manual entry.
type TimeLog struct {
	ID              int64   `json:"id"`
	TaskID          int64   `json:"task_id"`
	StartTime       string  `json:"start_time"`
	EndTime         *string `json:"end_time,omitempty"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// TaskTime is the time spent on a single task.
type TaskTime struct {
	Items          []TimeLog `json:"items"`
	TotalMinutes   int       `json:"total_minutes"`
	TotalFormatted string    `json:"total_formatted"`
}

// TaskSummary bundles a task with its graph neighbours and time logs.
type TaskSummary struct {
	Task           Task      `json:"task"`
	Dependencies   []Task    `json:"dependencies"`
	Dependents     []Task    `json:"dependents"`
	TimeLogs       []TimeLog `json:"time_logs"`
	TotalMinutes   int       `json:"total_time_minutes"`
	TotalFormatted string    `json:"total_time_formatted"`
}

// User represents a registered account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// Auth is a signup or login result.
type Auth struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Identity describes the authenticated caller.
type Identity struct {
	Username string `json:"username"`
	Source   string `json:"source"`
	User     *User  `json:"user,omitempty"`
}

// APIKey represents a stored key. The plaintext is never listed.
type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

// CreatedAPIKey includes the plaintext key, returned exactly once.
type CreatedAPIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

// Event is one entry of the activity log.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Health is the server health report.
type Health struct {
	Status string         `json:"status"`
	Tasks  map[string]int `json:"tasks"`
}

// DateStats holds per-day productivity numbers (partial).
type DateStats struct {
	Date                  string `json:"date"`
	TasksCompleted        int    `json:"tasks_completed"`
	TasksCreated          int    `json:"tasks_created"`
	HighPriorityCompleted int    `json:"high_priority_completed"`
	MinutesLogged         int    `json:"minutes_logged"`
	TimeFormatted         string `json:"time_formatted"`
}

// CompletionRate summarizes overall progress.
type CompletionRate struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	Rate           float64 `json:"completion_rate"`
	RemainingTasks int     `json:"remaining_tasks"`
}

// Dashboard is the combined productivity overview (partial).
type Dashboard struct {
	Today             DateStats      `json:"today"`
	Completion        CompletionRate `json:"completion_rate"`
	StatusCounts      map[string]int `json:"task_status_distribution"`
	PriorityCounts    map[string]int `json:"task_priority_distribution"`
	OverdueCount      int            `json:"overdue_count"`
	BlockedCount      int            `json:"blocked_count"`
	MostProductiveDay string         `json:"most_productive_day"`
}

// PaginatedTasks wraps task listings with a cursor.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// NewTask describes a task to create.
type NewTask struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	DueDate     string  `json:"due_date,omitempty"`
	DependsOn   []int64 `json:"depends_on,omitempty"`
}

// TaskPatch holds optional task updates. Nil fields are left unchanged;
// a pointer to an empty due date clears it.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

// NewRecurring describes a recurring task to create.
type NewRecurring struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Frequency   string `json:"frequency"`
	Interval    int    `json:"interval,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	DaysOfWeek  []int  `json:"days_of_week,omitempty"`
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status    string
	Priority  string
	Recurring *bool
	Limit     int
	Cursor    string
}

// EventFilter narrows event listings.
type EventFilter struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	Cursor     string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, task NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", task, &resp)
	return resp, err
}

// Task fetches a task by id.
func (c *Client) Task(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &resp)
	return resp, err
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, id int64, patch TaskPatch) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, taskPath(id, ""), patch, &resp)
	return resp, err
}

// DeleteTask removes a task together with its edges and time logs.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, taskPath(id, ""), nil, nil)
}

// Tasks returns a page of tasks, newest first.
func (c *Client) Tasks(ctx context.Context, filter TaskFilter) (PaginatedTasks, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Priority != "" {
		q.Set("priority", filter.Priority)
	}
	if filter.Recurring != nil {
		q.Set("recurring", strconv.FormatBool(*filter.Recurring))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Cursor != "" {
		q.Set("cursor", filter.Cursor)
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q), nil, &resp)
	return resp, err
}

// NextTask suggests the best available task to work on.
func (c *Client) NextTask(ctx context.Context) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/next", nil, &resp)
	return resp, err
}

// AvailableTasks lists tasks whose dependencies are all done.
func (c *Client) AvailableTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks/available", nil, &resp)
	return resp, err
}

// BlockedTasks lists tasks waiting on unfinished dependencies.
func (c *Client) BlockedTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks/blocked", nil, &resp)
	return resp, err
}

// OverdueTasks lists unfinished tasks past their due date.
func (c *Client) OverdueTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks/overdue", nil, &resp)
	return resp, err
}

// StartTask moves a task to in_progress.
func (c *Client) StartTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(id, "start"), nil, &resp)
	return resp, err
}

// CompleteTask marks a task done and reports any unblocked dependents.
func (c *Client) CompleteTask(ctx context.Context, id int64) (CompleteResult, error) {
	var resp CompleteResult
	err := c.do(ctx, http.MethodPost, taskPath(id, "complete"), nil, &resp)
	return resp, err
}

// BlockTask marks a task blocked.
func (c *Client) BlockTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(id, "block"), nil, &resp)
	return resp, err
}

// SetStatus forces a task into the given status.
func (c *Client) SetStatus(ctx context.Context, id int64, status string) (Task, error) {
	body := map[string]any{"status": status}
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(id, "status"), body, &resp)
	return resp, err
}

// AddDependency makes task id depend on dependsOnID.
func (c *Client) AddDependency(ctx context.Context, id, dependsOnID int64) (Task, error) {
	body := map[string]any{"depends_on_id": dependsOnID}
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(id, "dependencies"), body, &resp)
	return resp, err
}

// RemoveDependency deletes the edge from id to dependsOnID.
func (c *Client) RemoveDependency(ctx context.Context, id, dependsOnID int64) (Task, error) {
	endpoint := taskPath(id, "dependencies/"+strconv.FormatInt(dependsOnID, 10))
	var resp Task
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// Dependencies lists the tasks id depends on.
func (c *Client) Dependencies(ctx context.Context, id int64) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, taskPath(id, "dependencies"), nil, &resp)
	return resp, err
}

// Dependents lists the tasks that depend on id.
func (c *Client) Dependents(ctx context.Context, id int64) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, taskPath(id, "dependents"), nil, &resp)
	return resp, err
}

// DependencyTree returns the recursive dependency view rooted at id.
func (c *Client) DependencyTree(ctx context.Context, id int64) (DependencyNode, error) {
	var resp DependencyNode
	err := c.do(ctx, http.MethodGet, taskPath(id, "tree"), nil, &resp)
	return resp, err
}

// Availability reports whether id can be started right now.
func (c *Client) Availability(ctx context.Context, id int64) (Availability, error) {
	var resp Availability
	err := c.do(ctx, http.MethodGet, taskPath(id, "availability"), nil, &resp)
	return resp, err
}

// TaskSummary returns the task with its neighbours and time logs.
func (c *Client) TaskSummary(ctx context.Context, id int64) (TaskSummary, error) {
	var resp TaskSummary
	err := c.do(ctx, http.MethodGet, taskPath(id, "summary"), nil, &resp)
	return resp, err
}

// CreateRecurring creates a template task with a recurring pattern.
func (c *Client) CreateRecurring(ctx context.Context, task NewRecurring) (RecurringTask, error) {
	var resp RecurringTask
	err := c.do(ctx, http.MethodPost, "recurring", task, &resp)
	return resp, err
}

// RecurringPatterns lists all patterns.
func (c *Client) RecurringPatterns(ctx context.Context) ([]Pattern, error) {
	var resp []Pattern
	err := c.do(ctx, http.MethodGet, "recurring", nil, &resp)
	return resp, err
}

// GenerateInstances expands a pattern into upcoming task instances.
// count <= 0 uses the server default.
func (c *Client) GenerateInstances(ctx context.Context, patternID int64, count int) ([]Task, error) {
	endpoint := fmt.Sprintf("recurring/%d/generate", patternID)
	if count > 0 {
		endpoint = fmt.Sprintf("%s?count=%d", endpoint, count)
	}
	var resp []Task
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// PatternTasks lists the template and instances of a pattern.
func (c *Client) PatternTasks(ctx context.Context, patternID int64) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("recurring/%d/tasks", patternID), nil, &resp)
	return resp, err
}

// StartTimer opens a timer session on a task.
func (c *Client) StartTimer(ctx context.Context, taskID int64) (TimeLog, error) {
	var resp TimeLog
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "timer/start"), nil, &resp)
	return resp, err
}

// StopTimer closes the running timer on a task.
func (c *Client) StopTimer(ctx context.Context, taskID int64) (TimeLog, error) {
	var resp TimeLog
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "timer/stop"), nil, &resp)
	return resp, err
}

// ActiveTimers lists currently running timers.
func (c *Client) ActiveTimers(ctx context.Context) ([]TimeLog, error) {
	var resp []TimeLog
	err := c.do(ctx, http.MethodGet, "timers", nil, &resp)
	return resp, err
}

// LogTime records minutes against a task. date is optional YYYY-MM-DD;
// empty means today.
func (c *Client) LogTime(ctx context.Context, taskID int64, minutes int, date string) (TimeLog, error) {
	body := map[string]any{"minutes": minutes}
	if date != "" {
		body["date"] = date
	}
	var resp TimeLog
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "time"), body, &resp)
	return resp, err
}

// TaskTime returns all time entries for a task with totals.
func (c *Client) TaskTime(ctx context.Context, taskID int64) (TaskTime, error) {
	var resp TaskTime
	err := c.do(ctx, http.MethodGet, taskPath(taskID, "time"), nil, &resp)
	return resp, err
}

// DeleteTimeLog removes a time entry.
func (c *Client) DeleteTimeLog(ctx context.Context, logID int64) error {
	return c.do(ctx, http.MethodDelete, "time/"+strconv.FormatInt(logID, 10), nil, nil)
}

// TodayStats returns today's productivity numbers.
func (c *Client) TodayStats(ctx context.Context) (DateStats, error) {
	var resp DateStats
	err := c.do(ctx, http.MethodGet, "stats/today", nil, &resp)
	return resp, err
}

// CompletionStats returns the overall completion rate.
func (c *Client) CompletionStats(ctx context.Context) (CompletionRate, error) {
	var resp CompletionRate
	err := c.do(ctx, http.MethodGet, "stats/completion", nil, &resp)
	return resp, err
}

// Dashboard returns the combined productivity overview.
func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, "stats/dashboard", nil, &resp)
	return resp, err
}

// Signup registers an account and returns a token.
func (c *Client) Signup(ctx context.Context, username, email, password string) (Auth, error) {
	body := map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}
	var resp Auth
	err := c.do(ctx, http.MethodPost, "auth/signup", body, &resp)
	return resp, err
}

// Login exchanges a username or email plus password for a token.
func (c *Client) Login(ctx context.Context, login, password string) (Auth, error) {
	body := map[string]any{
		"login":    login,
		"password": password,
	}
	var resp Auth
	err := c.do(ctx, http.MethodPost, "auth/login", body, &resp)
	return resp, err
}

// Me describes the caller as the server sees it.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var resp Identity
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateAPIKey mints a key for the signed-in user.
func (c *Client) CreateAPIKey(ctx context.Context, name string) (CreatedAPIKey, error) {
	body := map[string]any{"name": name}
	var resp CreatedAPIKey
	err := c.do(ctx, http.MethodPost, "apikeys", body, &resp)
	return resp, err
}

// APIKeys lists the caller's keys without plaintext.
func (c *Client) APIKeys(ctx context.Context) ([]APIKey, error) {
	var resp []APIKey
	err := c.do(ctx, http.MethodGet, "apikeys", nil, &resp)
	return resp, err
}

// DeleteAPIKey revokes one of the caller's keys.
func (c *Client) DeleteAPIKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "apikeys/"+url.PathEscape(id), nil, nil)
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, EventFilter{Limit: limit})
	return page.Items, err
}

// EventsPage returns a filtered, paginated event listing.
func (c *Client) EventsPage(ctx context.Context, filter EventFilter) (PaginatedEvents, error) {
	q := url.Values{}
	if filter.Type != "" {
		q.Set("type", filter.Type)
	}
	if filter.EntityKind != "" {
		q.Set("entity_kind", filter.EntityKind)
	}
	if filter.EntityID != "" {
		q.Set("entity_id", filter.EntityID)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Cursor != "" {
		q.Set("cursor", filter.Cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

// Calendar downloads the iCalendar export. Scope may be all, pending, or
// overdue; priority narrows to a single priority. Empty means no filter.
func (c *Client) Calendar(ctx context.Context, scope, priority string) ([]byte, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", scope)
	}
	if priority != "" {
		q.Set("priority", priority)
	}
	req, err := c.newRequest(ctx, http.MethodGet, withQuery("export/calendar.ics", q), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	bp := strings.Trim(c.BasePath, "/")
	if bp == "" {
		bp = "api/v1"
	}
	return base + "/" + bp
}

func taskPath(id int64, suffix string) string {
	p := "tasks/" + strconv.FormatInt(id, 10)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
