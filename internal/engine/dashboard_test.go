package engine

import (
	"testing"

	"siteline/internal/domain"
)

func revision(id string) domain.Timeline {
	return domain.Timeline{
		ID:        id,
		ProjectID: "p1",
		Name:      "rev " + id,
		PlannedProgress: map[string]float64{
			"2024-03-01T00:00:00Z": 0.25,
			"2024-03-02T00:00:00Z": 0.5,
			"2024-03-03T00:00:00Z": 0.75,
			"2024-03-04T00:00:00Z": 1.0,
		},
		ActualProgress: map[string]domain.Measurement{
			"2024-03-02T00:00:00Z": {ProgressPercentage: 0.4, MeasurementDate: "2024-03-02T00:00:00Z"},
		},
		Tasks: []domain.Task{sampleTask()},
	}
}

func TestBuildDashboardDayCounts(t *testing.T) {
	latest := revision("a")
	d := BuildDashboard(latest, nil, day(2024, 3, 3))
	if d.TotalDays != 4 {
		t.Fatalf("total days: got %d, want 4", d.TotalDays)
	}
	if d.ElapsedDays != 2 {
		t.Fatalf("elapsed days: got %d, want 2", d.ElapsedDays)
	}
	if d.RemainingDays != 2 {
		t.Fatalf("remaining days: got %d, want 2", d.RemainingDays)
	}
	if d.Today != "2024-03-03" {
		t.Fatalf("today: got %s", d.Today)
	}
	if d.StartDate != "2024-03-01T00:00:00Z" || d.EndDate != "2024-03-10T00:00:00Z" {
		t.Fatalf("date range: got %s..%s", d.StartDate, d.EndDate)
	}
}

func TestBuildDashboardCurveMerge(t *testing.T) {
	latest := revision("a")
	original := revision("b")
	original.PlannedProgress = map[string]float64{
		"2024-03-01T00:00:00Z": 0.5,
		"2024-03-06T00:00:00Z": 1.0,
	}
	d := BuildDashboard(latest, &original, day(2024, 3, 3))

	pt := d.ProgressCurves["2024-03-01T00:00:00Z"]
	if pt.Planned == nil || *pt.Planned != 0.25 {
		t.Fatalf("planned on 03-01: %+v", pt)
	}
	if pt.Original == nil || *pt.Original != 0.5 {
		t.Fatalf("original on 03-01: %+v", pt)
	}
	pt = d.ProgressCurves["2024-03-02T00:00:00Z"]
	if pt.Actual == nil || *pt.Actual != 0.4 {
		t.Fatalf("actual on 03-02: %+v", pt)
	}

	// 03-05 has no series anywhere but must exist as a gap day so the curve is
	// a contiguous daily sequence through 03-06.
	pt, ok := d.ProgressCurves["2024-03-05T00:00:00Z"]
	if !ok {
		t.Fatal("gap day 03-05 missing from merged curve")
	}
	if pt.Planned != nil || pt.Actual != nil || pt.Original != nil {
		t.Fatalf("gap day must be empty: %+v", pt)
	}
	if len(d.ProgressCurves) != 6 {
		t.Fatalf("curve length: got %d, want 6", len(d.ProgressCurves))
	}
}

func TestBuildDashboardSkipsBaselineWhenSameRevision(t *testing.T) {
	latest := revision("a")
	same := revision("a")
	d := BuildDashboard(latest, &same, day(2024, 3, 3))
	for k, pt := range d.ProgressCurves {
		if pt.Original != nil {
			t.Fatalf("original series leaked on %s", k)
		}
	}
}

func TestBuildDashboardEmptyTimeline(t *testing.T) {
	d := BuildDashboard(domain.Timeline{ID: "a"}, nil, day(2024, 3, 3))
	if d.StartDate != "" || d.EndDate != "" {
		t.Fatalf("empty timeline range: %s..%s", d.StartDate, d.EndDate)
	}
	if d.TotalDays != 0 || len(d.ProgressCurves) != 0 {
		t.Fatalf("empty timeline counts: %+v", d)
	}
	if d.TaskExecution != (ExecutionCounts{}) || d.TaskDateStatus != (DateStatusCounts{}) {
		t.Fatalf("empty timeline rollups: %+v", d)
	}
}
