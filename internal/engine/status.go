package engine

import (
	"time"

	"siteline/internal/dateindex"
	"siteline/internal/domain"
)

// Execution statuses describe the shape of a task's actual history; overall
// statuses compare execution against the plan.
const (
	ExecutionPlanned   = "planned"
	ExecutionStarted   = "started"
	ExecutionCompleted = "completed"

	StatusOnTime  = "on_time"
	StatusAhead   = "ahead"
	StatusDelayed = "delayed"
)

// statusTolerance is the fixed band around the planned curve inside which a
// task still counts as on time.
const statusTolerance = 0.05

// ExecutionStatus classifies a task from its chronologically last measurement
// alone, independent of any query date. Subtasks are not consulted.
func ExecutionStatus(t domain.Task) string {
	last := ""
	for k := range t.ActualProgress {
		if k > last {
			last = k
		}
	}
	if last == "" {
		return ExecutionPlanned
	}
	switch p := t.ActualProgress[last].ProgressPercentage; {
	case p == 0:
		return ExecutionPlanned
	case p < 1:
		return ExecutionStarted
	default:
		return ExecutionCompleted
	}
}

// OverallStatus classifies a task against its plan at the query date. A task
// with a recorded actual end date is judged purely on that date versus the
// planned end; otherwise resolved actual progress is compared to planned
// progress within the tolerance band.
func OverallStatus(t domain.Task, at time.Time) string {
	if t.ActualEndDate != nil {
		actualEnd, aerr := dateindex.Parse(*t.ActualEndDate)
		plannedEnd, perr := dateindex.Parse(t.EndDate)
		if aerr == nil && perr == nil {
			switch {
			case actualEnd.Before(plannedEnd):
				return StatusAhead
			case actualEnd.After(plannedEnd):
				return StatusDelayed
			default:
				return StatusOnTime
			}
		}
	}
	planned := PlannedProgressAt(t, at)
	actual := ActualProgressAt(t, at)
	switch {
	case actual < planned-statusTolerance:
		return StatusDelayed
	case actual > planned+statusTolerance:
		return StatusAhead
	default:
		return StatusOnTime
	}
}

type ExecutionCounts struct {
	Planned   int `json:"planned"`
	Started   int `json:"started"`
	Completed int `json:"completed"`
}

func (c *ExecutionCounts) add(o ExecutionCounts) {
	c.Planned += o.Planned
	c.Started += o.Started
	c.Completed += o.Completed
}

type DateStatusCounts struct {
	OnTime  int `json:"on_time"`
	Ahead   int `json:"ahead"`
	Delayed int `json:"delayed"`
}

func (c *DateStatusCounts) add(o DateStatusCounts) {
	c.OnTime += o.OnTime
	c.Ahead += o.Ahead
	c.Delayed += o.Delayed
}

// RollupExecution counts execution statuses across a task and all its
// descendants. Every node lands in exactly one bucket.
func RollupExecution(t domain.Task) ExecutionCounts {
	var counts ExecutionCounts
	switch ExecutionStatus(t) {
	case ExecutionPlanned:
		counts.Planned = 1
	case ExecutionStarted:
		counts.Started = 1
	case ExecutionCompleted:
		counts.Completed = 1
	}
	for _, sub := range t.Subtasks {
		counts.add(RollupExecution(sub))
	}
	return counts
}

// RollupDateStatus counts overall statuses at the query date across a task
// and all its descendants.
func RollupDateStatus(t domain.Task, at time.Time) DateStatusCounts {
	var counts DateStatusCounts
	switch OverallStatus(t, at) {
	case StatusOnTime:
		counts.OnTime = 1
	case StatusAhead:
		counts.Ahead = 1
	case StatusDelayed:
		counts.Delayed = 1
	}
	for _, sub := range t.Subtasks {
		counts.add(RollupDateStatus(sub, at))
	}
	return counts
}
