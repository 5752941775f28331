package repo

import (
	"errors"
	"testing"

	"siteline/internal/domain"
)

func validDoc() domain.Timeline {
	return domain.Timeline{
		Name: "baseline",
		Tasks: []domain.Task{{
			ID:        "t1",
			Name:      "groundwork",
			StartDate: "2024-03-04T00:00:00Z",
			EndDate:   "2024-03-08T00:00:00Z",
			Weight:    0.5,
		}},
	}
}

func TestValidateTimelineDoc(t *testing.T) {
	if err := ValidateTimelineDoc(validDoc()); err != nil {
		t.Fatalf("valid doc rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.Timeline)
		field  string
	}{
		{"missing name", func(tl *domain.Timeline) { tl.Name = "" }, "name"},
		{"missing task id", func(tl *domain.Timeline) { tl.Tasks[0].ID = "" }, "id"},
		{"bad start date", func(tl *domain.Timeline) { tl.Tasks[0].StartDate = "yesterday" }, "start_date"},
		{"end before start", func(tl *domain.Timeline) { tl.Tasks[0].EndDate = "2024-03-01T00:00:00Z" }, "end_date"},
		{"zero duration", func(tl *domain.Timeline) { tl.Tasks[0].EndDate = tl.Tasks[0].StartDate }, "duration"},
		{"weight out of range", func(tl *domain.Timeline) { tl.Tasks[0].Weight = 1.5 }, "weight"},
		{"negative cost", func(tl *domain.Timeline) {
			cost := -10.0
			tl.Tasks[0].Cost = &cost
		}, "cost"},
	}
	for _, tc := range cases {
		doc := validDoc()
		tc.mutate(&doc)
		err := ValidateTimelineDoc(doc)
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: want ValidationError, got %v", tc.name, err)
			continue
		}
		if verr.Field != tc.field {
			t.Errorf("%s: field %s, want %s", tc.name, verr.Field, tc.field)
		}
	}
}

func TestValidateDescendsIntoSubtasks(t *testing.T) {
	doc := validDoc()
	doc.Tasks[0].Subtasks = []domain.Task{{
		ID:        "t1.1",
		StartDate: "2024-03-04T00:00:00Z",
		EndDate:   "bad",
	}}
	err := ValidateTimelineDoc(doc)
	var verr ValidationError
	if !errors.As(err, &verr) || verr.TaskID != "t1.1" {
		t.Fatalf("want subtask error, got %v", err)
	}
}
