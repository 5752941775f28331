// Package dateindex holds the canonical date-string format used as map keys
// throughout the timeline engine, plus the nearest-prior lookup and day-range
// enumeration the progress computations are built on.
package dateindex

import (
	"errors"
	"iter"
	"time"
)

// Layout is the canonical key format: UTC, seconds precision, literal Z.
// Lexical ordering of keys in this layout matches chronological ordering.
const Layout = "2006-01-02T15:04:05Z"

var ErrInvalidDate = errors.New("invalid date")

// Key canonicalizes a timestamp to the map-key string. Sub-second precision is
// truncated, not rounded.
func Key(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(Layout)
}

// DayKey is the canonical key for the midnight of t's UTC calendar day.
func DayKey(t time.Time) string {
	return Key(StartOfDay(t))
}

// Parse reads a canonical key or any RFC3339 timestamp back into a time.
// Failures wrap ErrInvalidDate so callers can report them distinctly.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(Layout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidDate, err)
	}
	return t.UTC(), nil
}

func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.YearDay() == bu.YearDay()
}

// NearestPrior returns the chronologically largest key that is at or before
// target. A key on the same calendar day as the target qualifies even if its
// time-of-day is later, and when several qualifying keys share the latest day
// the latest time wins. Unparsable keys are skipped. ok is false when nothing
// qualifies.
func NearestPrior(keys []string, target time.Time) (string, bool) {
	var (
		best  time.Time
		found bool
	)
	tgt := target.UTC()
	for _, k := range keys {
		d, err := Parse(k)
		if err != nil {
			continue
		}
		if d.After(tgt) && !SameDay(d, tgt) {
			continue
		}
		if !found || d.After(best) {
			best = d
			found = true
		}
	}
	if !found {
		return "", false
	}
	return Key(best), true
}

// Days yields whole days from start to end. The end day is included when
// includeEndDate is set; Saturdays and Sundays are skipped when
// includeWeekends is not. The sequence is finite and restartable.
func Days(start, end time.Time, includeWeekends, includeEndDate bool) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		last := StartOfDay(end)
		if includeEndDate {
			last = last.AddDate(0, 0, 1)
		}
		for d := StartOfDay(start); d.Before(last); d = d.AddDate(0, 0, 1) {
			if !includeWeekends {
				if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
					continue
				}
			}
			if !yield(d) {
				return
			}
		}
	}
}
