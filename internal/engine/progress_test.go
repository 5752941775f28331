package engine

import (
	"testing"
	"time"

	"siteline/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleTask() domain.Task {
	return domain.Task{
		ID:        "t1",
		Name:      "foundation",
		StartDate: "2024-03-01T00:00:00Z",
		EndDate:   "2024-03-10T00:00:00Z",
		Weight:    1,
		PlannedProgress: map[string]float64{
			"2024-03-01T00:00:00Z": 0.1,
			"2024-03-05T00:00:00Z": 0.5,
			"2024-03-10T00:00:00Z": 1.0,
		},
	}
}

func TestPlannedProgressBoundaries(t *testing.T) {
	task := sampleTask()
	if got := PlannedProgressAt(task, day(2024, 2, 20)); got != 0 {
		t.Fatalf("before start: got %v, want 0", got)
	}
	if got := PlannedProgressAt(task, day(2024, 4, 1)); got != 1 {
		t.Fatalf("after end: got %v, want 1", got)
	}
}

func TestPlannedProgressNearestPrior(t *testing.T) {
	task := sampleTask()
	// 2024-03-07 has no entry; the 03-05 value applies.
	if got := PlannedProgressAt(task, day(2024, 3, 7)); got != 0.5 {
		t.Fatalf("got %v, want 0.5", got)
	}
	if got := PlannedProgressAt(task, day(2024, 3, 5)); got != 0.5 {
		t.Fatalf("exact day: got %v, want 0.5", got)
	}
}

func TestPlannedProgressSparseCurveDefaultsToZero(t *testing.T) {
	task := sampleTask()
	task.PlannedProgress = map[string]float64{"2024-03-08T00:00:00Z": 0.9}
	// In the window but before the only entry.
	if got := PlannedProgressAt(task, day(2024, 3, 2)); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestActualProgressNoClamping(t *testing.T) {
	task := sampleTask()
	// No history: zero even after the planned end.
	if got := ActualProgressAt(task, day(2024, 4, 1)); got != 0 {
		t.Fatalf("empty history after end: got %v, want 0", got)
	}
	task.ActualProgress = map[string]domain.Measurement{
		"2024-03-03T00:00:00Z": {ProgressPercentage: 0.2, MeasurementDate: "2024-03-03T00:00:00Z"},
	}
	// Before the only measurement the history reads as zero, never planned 0.
	if got := ActualProgressAt(task, day(2024, 3, 2)); got != 0 {
		t.Fatalf("before first measurement: got %v, want 0", got)
	}
	if got := ActualProgressAt(task, day(2024, 3, 8)); got != 0.2 {
		t.Fatalf("after measurement: got %v, want 0.2", got)
	}
}

func TestEditedOn(t *testing.T) {
	task := sampleTask()
	task.ActualProgress = map[string]domain.Measurement{
		"2024-03-03T00:00:00Z": {ProgressPercentage: 0.2, MeasurementDate: "2024-03-03T08:30:00Z"},
	}
	if !EditedOn(task, day(2024, 3, 3)) {
		t.Fatal("same-day measurement should read as edited")
	}
	if EditedOn(task, day(2024, 3, 4)) {
		t.Fatal("nearest-prior from another day must not read as edited")
	}
	if EditedOn(domain.Task{}, day(2024, 3, 3)) {
		t.Fatal("empty history must not read as edited")
	}
}
