package engine

import (
	"time"

	"siteline/internal/domain"
)

// PermissionEmployee is the lowest tier; it is the only tier the projector
// interprets. Everything else sees costs.
const PermissionEmployee = "employee"

// TaskView is the client-facing shape of one task node at a query date.
type TaskView struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	StartDate       string     `json:"start_date" format:"date-time"`
	EndDate         string     `json:"end_date" format:"date-time"`
	Weight          float64    `json:"weight"`
	Duration        int        `json:"duration"`
	Cost            *float64   `json:"cost,omitempty"`
	Hierarchy       string     `json:"hierarchy,omitempty"`
	PlannedProgress float64    `json:"planned_progress"`
	ActualProgress  float64    `json:"actual_progress"`
	IsEditedToday   bool       `json:"is_edited_today"`
	ActualStartDate *string    `json:"actual_start_date,omitempty" format:"date-time"`
	ActualEndDate   *string    `json:"actual_end_date,omitempty" format:"date-time"`
	ExecutionStatus string     `json:"execution_status" enum:"planned,started,completed"`
	OverallStatus   string     `json:"overall_status" enum:"on_time,ahead,delayed"`
	Subtasks        []TaskView `json:"subtasks,omitempty"`
}

// TimelineView passes timeline-level fields through unfiltered and projects
// every task recursively.
type TimelineView struct {
	ID              string                        `json:"id"`
	Name            string                        `json:"name"`
	Currency        string                        `json:"currency,omitempty"`
	CreatedAt       string                        `json:"created_at" format:"date-time"`
	PlannedProgress map[string]float64            `json:"planned_progress"`
	ActualProgress  map[string]domain.Measurement `json:"actual_progress,omitempty"`
	Tasks           []TaskView                    `json:"tasks"`
}

// ProjectTimeline assembles the permission-filtered, date-filtered view of a
// whole timeline. The source timeline is never mutated; the raw progress maps
// are shared by reference into the view.
func ProjectTimeline(tl domain.Timeline, permission string, at time.Time) TimelineView {
	tasks := make([]TaskView, len(tl.Tasks))
	for i, t := range tl.Tasks {
		tasks[i] = ProjectTask(t, permission, at)
	}
	return TimelineView{
		ID:              tl.ID,
		Name:            tl.Name,
		Currency:        tl.Currency,
		CreatedAt:       tl.CreatedAt,
		PlannedProgress: tl.PlannedProgress,
		ActualProgress:  tl.ActualProgress,
		Tasks:           tasks,
	}
}

// ProjectTask resolves one task (and its subtasks) at the query date. Cost is
// redacted for the employee tier: the field is omitted, not zeroed.
func ProjectTask(t domain.Task, permission string, at time.Time) TaskView {
	view := TaskView{
		ID:              t.ID,
		Name:            t.Name,
		StartDate:       t.StartDate,
		EndDate:         t.EndDate,
		Weight:          t.Weight,
		Duration:        t.Duration,
		Hierarchy:       t.Hierarchy,
		PlannedProgress: PlannedProgressAt(t, at),
		ActualProgress:  ActualProgressAt(t, at),
		IsEditedToday:   EditedOn(t, at),
		ActualStartDate: t.ActualStartDate,
		ActualEndDate:   t.ActualEndDate,
		ExecutionStatus: ExecutionStatus(t),
		OverallStatus:   OverallStatus(t, at),
	}
	if permission != PermissionEmployee {
		view.Cost = t.Cost
	}
	if len(t.Subtasks) > 0 {
		view.Subtasks = make([]TaskView, len(t.Subtasks))
		for i, sub := range t.Subtasks {
			view.Subtasks[i] = ProjectTask(sub, permission, at)
		}
	}
	return view
}
