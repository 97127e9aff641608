package server

import (
	"encoding/json"

	"taskline/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"high,medium,low"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	DependsOn   []int64 `json:"depends_on,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"high,medium,low"`
	Status      *string `json:"status,omitempty" enum:"not_started,in_progress,done,blocked"`
	DueDate     *string `json:"due_date,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"not_started,in_progress,done,blocked"`
}

type AddDependencyRequest struct {
	DependsOnID int64 `json:"depends_on_id"`
}

type CreateRecurringRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"high,medium,low"`
	Frequency   string  `json:"frequency" enum:"daily,weekly,monthly"`
	Interval    *int    `json:"interval,omitempty" minimum:"1"`
	EndDate     *string `json:"end_date,omitempty" format:"date"`
	DaysOfWeek  []int   `json:"days_of_week,omitempty"`
}

type LogTimeRequest struct {
	Minutes int     `json:"minutes" minimum:"1"`
	Date    *string `json:"date,omitempty" format:"date"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type ClearDataRequest struct {
	Confirm bool `json:"confirm"`
}

// Response payloads

type TaskResponse struct {
	ID                 int64   `json:"id"`
	Title              string  `json:"title"`
	Description        string  `json:"description,omitempty"`
	Priority           string  `json:"priority" enum:"high,medium,low"`
	Status             string  `json:"status" enum:"not_started,in_progress,done,blocked"`
	DueDate            *string `json:"due_date,omitempty" format:"date"`
	IsRecurring        bool    `json:"is_recurring"`
	RecurringPatternID *int64  `json:"recurring_pattern_id,omitempty"`
	DependsOn          []int64 `json:"depends_on"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

type CompleteTaskResponse struct {
	Task      TaskResponse   `json:"task"`
	Unblocked []TaskResponse `json:"unblocked"`
}

type AvailabilityResponse struct {
	TaskID    int64 `json:"task_id"`
	Available bool  `json:"available"`
	Blocked   bool  `json:"blocked"`
}

type DependencyNodeResponse struct {
	Task       TaskResponse             `json:"task"`
	DependsOn  []DependencyNodeResponse `json:"depends_on"`
	RequiredBy []TaskRefResponse        `json:"required_by"`
}

type TaskRefResponse struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type PatternResponse struct {
	ID         int64   `json:"id"`
	Frequency  string  `json:"frequency" enum:"daily,weekly,monthly"`
	Interval   int     `json:"interval"`
	DaysOfWeek []int   `json:"days_of_week,omitempty"`
	EndDate    *string `json:"end_date,omitempty" format:"date"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type RecurringTaskResponse struct {
	Task    TaskResponse    `json:"task"`
	Pattern PatternResponse `json:"pattern"`
}

type TimeLogResponse struct {
	ID              int64   `json:"id"`
	TaskID          int64   `json:"task_id"`
	StartTime       string  `json:"start_time" format:"date-time"`
	EndTime         *string `json:"end_time,omitempty" format:"date-time"`
	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type TaskTimeResponse struct {
	Items          []TimeLogResponse `json:"items"`
	TotalMinutes   int               `json:"total_minutes"`
	TotalFormatted string            `json:"total_formatted"`
}

type TaskSummaryResponse struct {
	Task           TaskResponse      `json:"task"`
	Dependencies   []TaskResponse    `json:"dependencies"`
	Dependents     []TaskResponse    `json:"dependents"`
	TimeLogs       []TimeLogResponse `json:"time_logs"`
	TotalMinutes   int               `json:"total_time_minutes"`
	TotalFormatted string            `json:"total_time_formatted"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type MeResponse struct {
	Username string        `json:"username"`
	Source   string        `json:"source" enum:"jwt,api_key,anonymous"`
	User     *UserResponse `json:"user,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreatedAPIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type HealthResponse struct {
	Status string         `json:"status"`
	Tasks  map[string]int `json:"tasks"`
}

type DBStatsResponse struct {
	Tables        map[string]int `json:"tables"`
	SchemaVersion int            `json:"schema_version"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Priority:           t.Priority,
		Status:             t.Status,
		DueDate:            t.DueDate,
		IsRecurring:        t.IsRecurring,
		RecurringPatternID: t.RecurringPatternID,
		DependsOn:          nonNilSlice(t.DependsOn),
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func patternResponse(p domain.RecurringPattern) PatternResponse {
	return PatternResponse{
		ID:         p.ID,
		Frequency:  p.Frequency,
		Interval:   p.Interval,
		DaysOfWeek: decodeIntSlice(p.DaysOfWeekJSON),
		EndDate:    p.EndDate,
		CreatedAt:  p.CreatedAt,
	}
}

func mapPatterns(items []domain.RecurringPattern) []PatternResponse {
	res := make([]PatternResponse, 0, len(items))
	for _, p := range items {
		res = append(res, patternResponse(p))
	}
	return res
}

func timeLogResponse(l domain.TimeLog) TimeLogResponse {
	return TimeLogResponse{
		ID:              l.ID,
		TaskID:          l.TaskID,
		StartTime:       l.StartTime,
		EndTime:         l.EndTime,
		DurationMinutes: l.DurationMinutes,
		CreatedAt:       l.CreatedAt,
	}
}

func mapTimeLogs(items []domain.TimeLog) []TimeLogResponse {
	res := make([]TimeLogResponse, 0, len(items))
	for _, l := range items {
		res = append(res, timeLogResponse(l))
	}
	return res
}

func treeResponse(n *domain.DependencyNode) DependencyNodeResponse {
	res := DependencyNodeResponse{
		Task:       taskResponse(n.Task),
		DependsOn:  []DependencyNodeResponse{},
		RequiredBy: []TaskRefResponse{},
	}
	for _, child := range n.DependsOn {
		if child == nil {
			continue
		}
		res.DependsOn = append(res.DependsOn, treeResponse(child))
	}
	for _, ref := range n.RequiredBy {
		res.RequiredBy = append(res.RequiredBy, TaskRefResponse{ID: ref.ID, Title: ref.Title})
	}
	return res
}

func summaryResponse(s domain.TaskSummary) TaskSummaryResponse {
	return TaskSummaryResponse{
		Task:           taskResponse(s.Task),
		Dependencies:   mapTasks(s.Dependencies),
		Dependents:     mapTasks(s.Dependents),
		TimeLogs:       mapTimeLogs(s.TimeLogs),
		TotalMinutes:   s.TotalMinutes,
		TotalFormatted: s.TotalFormatted,
	}
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func decodeIntSlice(raw *string) []int {
	if raw == nil || *raw == "" {
		return nil
	}
	var arr []int
	if err := json.Unmarshal([]byte(*raw), &arr); err != nil {
		return nil
	}
	return arr
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
