package dateindex

import (
	"errors"
	"testing"
	"time"
)

func TestKeyTruncatesSubSecond(t *testing.T) {
	in := time.Date(2023, 1, 10, 14, 30, 45, 999_000_000, time.UTC)
	if got := Key(in); got != "2023-01-10T14:30:45Z" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestKeyConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	in := time.Date(2023, 1, 10, 22, 0, 0, 0, loc)
	if got := Key(in); got != "2023-01-11T01:00:00Z" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := "2023-05-02T08:15:00Z"
	d, err := Parse(in)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if Key(d) != in {
		t.Fatalf("round trip got %q", Key(d))
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("02/05/2023")
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestNearestPrior(t *testing.T) {
	keys := []string{
		"2023-01-01T00:00:00Z",
		"2023-01-10T00:00:00Z",
	}
	target := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	got, ok := NearestPrior(keys, target)
	if !ok || got != "2023-01-01T00:00:00Z" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestNearestPriorSameDayCountsAsAt(t *testing.T) {
	// A measurement later in the day still matches a midnight target.
	keys := []string{"2023-01-10T18:00:00Z"}
	target := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	got, ok := NearestPrior(keys, target)
	if !ok || got != "2023-01-10T18:00:00Z" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestNearestPriorSameDayTieBreak(t *testing.T) {
	keys := []string{
		"2023-01-10T08:00:00Z",
		"2023-01-10T17:30:00Z",
		"2023-01-09T12:00:00Z",
	}
	target := time.Date(2023, 1, 10, 12, 0, 0, 0, time.UTC)
	got, ok := NearestPrior(keys, target)
	if !ok || got != "2023-01-10T17:30:00Z" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestNearestPriorNone(t *testing.T) {
	keys := []string{"2023-02-01T00:00:00Z"}
	target := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, ok := NearestPrior(keys, target); ok {
		t.Fatalf("expected no match")
	}
}

func TestDaysInclusive(t *testing.T) {
	start := time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC) // Monday
	end := time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC)    // Friday
	var got []string
	for d := range Days(start, end, true, true) {
		got = append(got, d.Format("2006-01-02"))
	}
	want := []string{"2023-01-02", "2023-01-03", "2023-01-04", "2023-01-05", "2023-01-06"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("day %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestDaysSkipsWeekends(t *testing.T) {
	start := time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC) // Friday
	end := time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC)   // Monday
	var got []time.Weekday
	for d := range Days(start, end, false, true) {
		got = append(got, d.Weekday())
	}
	if len(got) != 2 || got[0] != time.Friday || got[1] != time.Monday {
		t.Fatalf("got %v", got)
	}
}

func TestDaysExclusiveEnd(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC)
	count := 0
	for range Days(start, end, true, false) {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 days, got %d", count)
	}
}

func TestDaysRestartable(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC)
	seq := Days(start, end, true, true)
	first, second := 0, 0
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	if first != second || first != 3 {
		t.Fatalf("first=%d second=%d", first, second)
	}
}
