package engine

import (
	"testing"
	"time"

	"siteline/internal/domain"
)

func TestExecutionStatus(t *testing.T) {
	cases := []struct {
		name    string
		history map[string]domain.Measurement
		want    string
	}{
		{"empty", nil, ExecutionPlanned},
		{"last zero", map[string]domain.Measurement{
			"2024-03-01T00:00:00Z": {ProgressPercentage: 0.3},
			"2024-03-05T00:00:00Z": {ProgressPercentage: 0},
		}, ExecutionPlanned},
		{"partial", map[string]domain.Measurement{
			"2024-03-05T00:00:00Z": {ProgressPercentage: 0.7},
		}, ExecutionStarted},
		{"complete", map[string]domain.Measurement{
			"2024-03-01T00:00:00Z": {ProgressPercentage: 0.4},
			"2024-03-09T00:00:00Z": {ProgressPercentage: 1},
		}, ExecutionCompleted},
	}
	for _, tc := range cases {
		task := sampleTask()
		task.ActualProgress = tc.history
		if got := ExecutionStatus(task); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestOverallStatusToleranceBand(t *testing.T) {
	task := sampleTask()
	at := day(2024, 3, 5) // planned 0.5
	cases := []struct {
		actual float64
		want   string
	}{
		{0.50, StatusOnTime},
		{0.45, StatusOnTime}, // exactly on the lower edge
		{0.55, StatusOnTime}, // exactly on the upper edge
		{0.44, StatusDelayed},
		{0.56, StatusAhead},
	}
	for _, tc := range cases {
		task.ActualProgress = map[string]domain.Measurement{
			"2024-03-05T00:00:00Z": {ProgressPercentage: tc.actual, MeasurementDate: "2024-03-05T00:00:00Z"},
		}
		if got := OverallStatus(task, at); got != tc.want {
			t.Errorf("actual %v: got %s, want %s", tc.actual, got, tc.want)
		}
	}
}

func TestOverallStatusActualEndDateWins(t *testing.T) {
	task := sampleTask()
	early := "2024-03-08T00:00:00Z"
	late := "2024-03-12T00:00:00Z"
	exact := "2024-03-10T00:00:00Z"
	at := day(2024, 3, 20)

	task.ActualEndDate = &early
	if got := OverallStatus(task, at); got != StatusAhead {
		t.Fatalf("early finish: got %s, want %s", got, StatusAhead)
	}
	task.ActualEndDate = &late
	if got := OverallStatus(task, at); got != StatusDelayed {
		t.Fatalf("late finish: got %s, want %s", got, StatusDelayed)
	}
	task.ActualEndDate = &exact
	if got := OverallStatus(task, at); got != StatusOnTime {
		t.Fatalf("exact finish: got %s, want %s", got, StatusOnTime)
	}
}

func TestRollupsCountEveryNode(t *testing.T) {
	done := map[string]domain.Measurement{"2024-03-09T00:00:00Z": {ProgressPercentage: 1}}
	leaf := sampleTask()
	leaf.ID = "leaf"
	leaf.ActualProgress = done

	mid := sampleTask()
	mid.ID = "mid"
	mid.Subtasks = []domain.Task{leaf}

	root := sampleTask()
	root.ID = "root"
	root.ActualProgress = map[string]domain.Measurement{"2024-03-05T00:00:00Z": {ProgressPercentage: 0.5}}
	root.Subtasks = []domain.Task{mid}

	exec := RollupExecution(root)
	if exec.Planned != 1 || exec.Started != 1 || exec.Completed != 1 {
		t.Fatalf("execution rollup: got %+v", exec)
	}

	at := day(2024, 3, 5)
	ds := RollupDateStatus(root, at)
	if total := ds.OnTime + ds.Ahead + ds.Delayed; total != 3 {
		t.Fatalf("date-status rollup must bucket all three nodes, got %+v", ds)
	}
}

func TestProjectTaskRedactsCostForEmployee(t *testing.T) {
	task := sampleTask()
	cost := 1250.0
	task.Cost = &cost
	sub := sampleTask()
	sub.ID = "t2"
	sub.Cost = &cost
	task.Subtasks = []domain.Task{sub}
	at := day(2024, 3, 5)

	view := ProjectTask(task, PermissionEmployee, at)
	if view.Cost != nil || view.Subtasks[0].Cost != nil {
		t.Fatal("employee view must omit cost at every level")
	}
	view = ProjectTask(task, "admin", at)
	if view.Cost == nil || *view.Cost != cost {
		t.Fatal("admin view must carry cost")
	}
	// Projection must not touch the source.
	if task.Cost == nil || *task.Cost != cost {
		t.Fatal("projection mutated the source task")
	}
}

func TestProjectTimelineKeepsRawCurves(t *testing.T) {
	tl := domain.Timeline{
		ID:              "tl1",
		Name:            "rev 1",
		PlannedProgress: map[string]float64{"2024-03-01T00:00:00Z": 0.1},
		Tasks:           []domain.Task{sampleTask()},
	}
	view := ProjectTimeline(tl, PermissionEmployee, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	if len(view.PlannedProgress) != 1 || len(view.Tasks) != 1 {
		t.Fatalf("unexpected view shape: %+v", view)
	}
}
