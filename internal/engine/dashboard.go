package engine

import (
	"time"

	"siteline/internal/dateindex"
	"siteline/internal/domain"
)

// CurvePoint carries the three dashboard series for one calendar day. A nil
// field means that series has no value recorded for the day.
type CurvePoint struct {
	Planned  *float64 `json:"planned,omitempty"`
	Actual   *float64 `json:"actual,omitempty"`
	Original *float64 `json:"original,omitempty"`
}

// Dashboard is the project-wide aggregate over the latest timeline revision,
// with the earliest revision's planned curve retained as the baseline.
type Dashboard struct {
	StartDate      string                `json:"start_date" format:"date-time"`
	EndDate        string                `json:"end_date" format:"date-time"`
	Today          string                `json:"today"`
	TotalDays      int                   `json:"total_days"`
	ElapsedDays    int                   `json:"elapsed_days"`
	RemainingDays  int                   `json:"remaining_days"`
	ProgressCurves map[string]CurvePoint `json:"progress_curves"`
	TaskExecution  ExecutionCounts       `json:"task_execution"`
	TaskDateStatus DateStatusCounts      `json:"task_date_status"`
}

// BuildDashboard merges the latest revision's planned and actual curves with
// the baseline's planned curve and totals the per-task rollups. original may
// be nil when the project has a single revision. A timeline with no tasks
// yields empty dates and zero counts rather than an error.
func BuildDashboard(latest domain.Timeline, original *domain.Timeline, now time.Time) Dashboard {
	d := Dashboard{
		Today:          now.UTC().Format("2006-01-02"),
		ProgressCurves: map[string]CurvePoint{},
	}
	d.StartDate, d.EndDate = taskDateRange(latest.Tasks)

	// Day counts come from the recorded planned-progress keys, not from the
	// calendar span; the two coincide when the curve is authored per day.
	todayKey := dateindex.DayKey(now)
	d.TotalDays = len(latest.PlannedProgress)
	for k := range latest.PlannedProgress {
		if k < todayKey {
			d.ElapsedDays++
		}
	}
	d.RemainingDays = d.TotalDays - d.ElapsedDays

	for k, v := range latest.PlannedProgress {
		day, err := dateindex.Parse(k)
		if err != nil {
			continue
		}
		pt := d.ProgressCurves[dateindex.DayKey(day)]
		pt.Planned = ptr(v)
		d.ProgressCurves[dateindex.DayKey(day)] = pt
	}
	for k, m := range latest.ActualProgress {
		day, err := dateindex.Parse(k)
		if err != nil {
			continue
		}
		pt := d.ProgressCurves[dateindex.DayKey(day)]
		pt.Actual = ptr(m.ProgressPercentage)
		d.ProgressCurves[dateindex.DayKey(day)] = pt
	}
	if original != nil && original.ID != latest.ID {
		for k, v := range original.PlannedProgress {
			day, err := dateindex.Parse(k)
			if err != nil {
				continue
			}
			pt := d.ProgressCurves[dateindex.DayKey(day)]
			pt.Original = ptr(v)
			d.ProgressCurves[dateindex.DayKey(day)] = pt
		}
	}
	fillCurveGaps(d.ProgressCurves)

	for _, t := range latest.Tasks {
		d.TaskExecution.add(RollupExecution(t))
		d.TaskDateStatus.add(RollupDateStatus(t, now))
	}
	return d
}

// taskDateRange finds the min start and max end across top-level tasks.
func taskDateRange(tasks []domain.Task) (start, end string) {
	var minStart, maxEnd time.Time
	for _, t := range tasks {
		if s, err := dateindex.Parse(t.StartDate); err == nil {
			if minStart.IsZero() || s.Before(minStart) {
				minStart = s
			}
		}
		if e, err := dateindex.Parse(t.EndDate); err == nil {
			if maxEnd.IsZero() || e.After(maxEnd) {
				maxEnd = e
			}
		}
	}
	if minStart.IsZero() || maxEnd.IsZero() {
		return "", ""
	}
	return dateindex.Key(minStart), dateindex.Key(maxEnd)
}

// fillCurveGaps extends the merged curve so every calendar day between the
// earliest and latest recorded day is present, weekends included. Gap days
// get an empty point with all series unset.
func fillCurveGaps(curves map[string]CurvePoint) {
	if len(curves) == 0 {
		return
	}
	var first, last time.Time
	for k := range curves {
		day, err := dateindex.Parse(k)
		if err != nil {
			continue
		}
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if first.IsZero() {
		return
	}
	for day := range dateindex.Days(first, last, true, true) {
		key := dateindex.Key(day)
		if _, ok := curves[key]; !ok {
			curves[key] = CurvePoint{}
		}
	}
}

func ptr(v float64) *float64 {
	return &v
}
