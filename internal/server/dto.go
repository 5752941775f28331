package server

import (
	"encoding/json"

	"siteline/internal/domain"
)

type CreateProjectRequest struct {
	Name string `json:"name" minLength:"1" example:"riverside tower"`
}

type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Status:    p.Status,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, len(items))
	for i, p := range items {
		res[i] = projectResponse(p)
	}
	return res
}

type MemberRequest struct {
	Permission      string `json:"permission" enum:"owner,admin,support,employee"`
	CanEditTimeline bool   `json:"can_edit_timeline,omitempty"`
}

type MemberResponse struct {
	ProjectID       string `json:"project_id"`
	UserID          string `json:"user_id"`
	Permission      string `json:"permission"`
	CanEditTimeline bool   `json:"can_edit_timeline"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse(m)
}

func mapMembers(items []domain.Member) []MemberResponse {
	res := make([]MemberResponse, len(items))
	for i, m := range items {
		res[i] = memberResponse(m)
	}
	return res
}

// TimelineSummary is the list-view shape: metadata only, no task tree.
type TimelineSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency,omitempty"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
	TaskCount int    `json:"task_count"`
}

func timelineSummary(tl domain.Timeline) TimelineSummary {
	count := 0
	var walk func([]domain.Task)
	walk = func(tasks []domain.Task) {
		for _, t := range tasks {
			count++
			walk(t.Subtasks)
		}
	}
	walk(tl.Tasks)
	return TimelineSummary{
		ID:        tl.ID,
		Name:      tl.Name,
		Currency:  tl.Currency,
		CreatedBy: tl.CreatedBy,
		CreatedAt: tl.CreatedAt,
		TaskCount: count,
	}
}

func mapTimelines(items []domain.Timeline) []TimelineSummary {
	res := make([]TimelineSummary, len(items))
	for i, tl := range items {
		res[i] = timelineSummary(tl)
	}
	return res
}

type MeasurementRequest struct {
	TaskID             string  `json:"task_id" minLength:"1"`
	ProgressPercentage float64 `json:"progress_percentage" minimum:"0" maximum:"1"`
	MeasurementDate    string  `json:"measurement_date,omitempty" format:"date-time"`
}

type RenameTimelineRequest struct {
	Name string `json:"name" minLength:"1"`
}

type CreateAPIKeyRequest struct {
	ActorID    string `json:"actor_id" minLength:"1"`
	Name       string `json:"name,omitempty"`
	Permission string `json:"permission,omitempty" enum:"owner,admin,support,employee"`
}

type APIKeyResponse struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	Name       string `json:"name,omitempty"`
	Permission string `json:"permission"`
	CreatedAt  string `json:"created_at" format:"date-time"`

	// Key is only present in the creation response.
	Key string `json:"key,omitempty"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		ActorID:    k.ActorID,
		Name:       k.Name,
		Permission: k.Permission,
		CreatedAt:  k.CreatedAt,
	}
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage([]byte("{}"))
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage([]byte(e.Payload))
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, len(items))
	for i, e := range items {
		res[i] = eventResponse(e)
	}
	return res
}
