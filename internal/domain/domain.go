package domain

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Member binds a user to a project with a permission tier. The engine only
// distinguishes "employee" (costs redacted) from everything else; richer tiers
// gate the mutation endpoints.
type Member struct {
	ProjectID       string `json:"project_id"`
	UserID          string `json:"user_id"`
	Permission      string `json:"permission" enum:"owner,admin,support,employee"`
	CanEditTimeline bool   `json:"can_edit_timeline"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

// Measurement is one user-recorded progress reading. MeasurementDate is the
// date the reading applies to; PublicationDate is when it was recorded, which
// differs for back-dated entries.
type Measurement struct {
	ProgressPercentage float64 `json:"progress_percentage" minimum:"0" maximum:"1"`
	MeasurementDate    string  `json:"measurement_date" format:"date-time"`
	PublicationDate    string  `json:"publication_date" format:"date-time"`
}

// Task is one node of a timeline's task tree. Progress maps are keyed by the
// canonical date string (see dateindex.Key) so lexical and chronological
// ordering coincide. A parent's maps are authored independently of its
// subtasks; nothing here aggregates children into the parent.
type Task struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	StartDate       string                 `json:"start_date" format:"date-time"`
	EndDate         string                 `json:"end_date" format:"date-time"`
	ActualStartDate *string                `json:"actual_start_date,omitempty" format:"date-time"`
	ActualEndDate   *string                `json:"actual_end_date,omitempty" format:"date-time"`
	Weight          float64                `json:"weight"`
	Duration        int                    `json:"duration"`
	Cost            *float64               `json:"cost,omitempty"`
	Hierarchy       string                 `json:"hierarchy,omitempty"`
	PlannedProgress map[string]float64     `json:"planned_progress"`
	ActualProgress  map[string]Measurement `json:"actual_progress,omitempty"`
	Subtasks        []Task                 `json:"subtasks,omitempty"`
}

// Timeline is one revision of a project's schedule. The newest revision is the
// live one; the oldest serves as the dashboard baseline.
type Timeline struct {
	ID              string                 `json:"id"`
	ProjectID       string                 `json:"project_id"`
	Name            string                 `json:"name"`
	Currency        string                 `json:"currency,omitempty"`
	CreatedBy       string                 `json:"created_by"`
	CreatedAt       string                 `json:"created_at" format:"date-time"`
	WorksSaturdays  bool                   `json:"works_saturdays"`
	WorksSundays    bool                   `json:"works_sundays"`
	PlannedProgress map[string]float64     `json:"planned_progress"`
	ActualProgress  map[string]Measurement `json:"actual_progress,omitempty"`
	Tasks           []Task                 `json:"tasks"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	Name       string `json:"name,omitempty"`
	Permission string `json:"permission"`
	KeyHash    string `json:"key_hash"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}
