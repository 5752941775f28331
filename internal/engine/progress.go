package engine

import (
	"time"

	"siteline/internal/dateindex"
	"siteline/internal/domain"
)

// PlannedProgressAt resolves a task's planned completion fraction at a point
// in time. Outside the planned window the answer is fixed regardless of how
// sparse the curve is: 0 before start, 1 after end. Inside the window the
// nearest prior curve entry wins, defaulting to 0 when the curve has no entry
// at or before the query date.
func PlannedProgressAt(t domain.Task, at time.Time) float64 {
	start, err := dateindex.Parse(t.StartDate)
	if err == nil && at.Before(start) {
		return 0
	}
	end, err := dateindex.Parse(t.EndDate)
	if err == nil && at.After(end) {
		return 1
	}
	key, ok := dateindex.NearestPrior(mapKeys(t.PlannedProgress), at)
	if !ok {
		return 0
	}
	return t.PlannedProgress[key]
}

// ActualProgressAt resolves the latest recorded progress at or before the
// query date. Unlike the planned curve there is no window clamping: an empty
// history reads as 0 on any date.
func ActualProgressAt(t domain.Task, at time.Time) float64 {
	if len(t.ActualProgress) == 0 {
		return 0
	}
	key, ok := dateindex.NearestPrior(mapKeys(t.ActualProgress), at)
	if !ok {
		return 0
	}
	return t.ActualProgress[key].ProgressPercentage
}

// EditedOn reports whether the measurement resolved for the query date was
// taken on that same calendar day (an exact day match, not merely nearest).
func EditedOn(t domain.Task, at time.Time) bool {
	if len(t.ActualProgress) == 0 {
		return false
	}
	key, ok := dateindex.NearestPrior(mapKeys(t.ActualProgress), at)
	if !ok {
		return false
	}
	md, err := dateindex.Parse(t.ActualProgress[key].MeasurementDate)
	if err != nil {
		return false
	}
	return dateindex.SameDay(md, at)
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
