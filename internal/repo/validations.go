package repo

import (
	"fmt"

	"siteline/internal/dateindex"
	"siteline/internal/domain"
)

// ValidationError reports a structurally invalid timeline document. It is
// raised by the creation path, never by the read-side computations, and
// carries the offending task and field so clients can point at the problem.
type ValidationError struct {
	TaskID string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: task %s: %s: %s", e.TaskID, e.Field, e.Reason)
}

// ValidateTimelineDoc checks the whole task tree before the document is
// persisted: parsable dates, non-degenerate windows, weights in [0,1] and
// non-negative costs.
func ValidateTimelineDoc(tl domain.Timeline) error {
	if tl.Name == "" {
		return ValidationError{Field: "name", Reason: "required"}
	}
	for _, t := range tl.Tasks {
		if err := validateTask(t); err != nil {
			return err
		}
	}
	return nil
}

func validateTask(t domain.Task) error {
	if t.ID == "" {
		return ValidationError{Field: "id", Reason: "required"}
	}
	start, err := dateindex.Parse(t.StartDate)
	if err != nil {
		return ValidationError{TaskID: t.ID, Field: "start_date", Reason: "invalid date"}
	}
	end, err := dateindex.Parse(t.EndDate)
	if err != nil {
		return ValidationError{TaskID: t.ID, Field: "end_date", Reason: "invalid date"}
	}
	if end.Before(start) {
		return ValidationError{TaskID: t.ID, Field: "end_date", Reason: "before start_date"}
	}
	if !end.After(start) {
		return ValidationError{TaskID: t.ID, Field: "duration", Reason: "task duration is zero"}
	}
	if t.Weight < 0 || t.Weight > 1 {
		return ValidationError{TaskID: t.ID, Field: "weight", Reason: "must be within [0,1]"}
	}
	if t.Cost != nil && *t.Cost < 0 {
		return ValidationError{TaskID: t.ID, Field: "cost", Reason: "must be non-negative"}
	}
	for _, sub := range t.Subtasks {
		if err := validateTask(sub); err != nil {
			return err
		}
	}
	return nil
}
