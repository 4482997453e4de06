// Package recurrence materializes a recurring post submission into concrete occurrences.
package recurrence

import (
	"fmt"
	"time"

	"social-post-scheduler/internal/models"
)

// DefaultMaxOccurrences bounds a single series when the caller does not.
const DefaultMaxOccurrences = 1000

var (
	ErrInvalidRange   = fmt.Errorf("%w: recurrence end date is before start date", models.ErrInvalidRequest)
	ErrInvalidPattern = fmt.Errorf("%w: recurrence pattern must be daily, weekly or monthly", models.ErrInvalidRequest)
	ErrSeriesTooLong  = fmt.Errorf("%w: recurrence produces too many posts", models.ErrInvalidRequest)
)

// Occurrence is one concrete post of a series.
type Occurrence struct {
	Content      string
	ScheduledFor time.Time
	Pattern      models.Pattern
	EndDate      time.Time
}

// Expander turns a recurrence rule into occurrences.
type Expander struct {
	MaxOccurrences int
}

// Expand is a convenience for Expander{}.Expand with the default bound.
func Expand(content string, start time.Time, pattern models.Pattern, end time.Time) ([]Occurrence, error) {
	return Expander{}.Expand(content, start, pattern, end)
}

// Expand walks from start to end (inclusive) one period at a time. The first
// occurrence is always start. Monthly steps keep the start's day of month and
// clamp to the last day of shorter months.
func (e Expander) Expand(content string, start time.Time, pattern models.Pattern, end time.Time) ([]Occurrence, error) {
	if !pattern.Valid() {
		return nil, ErrInvalidPattern
	}
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	limit := e.MaxOccurrences
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}

	var out []Occurrence
	for n := 0; ; n++ {
		cursor := step(start, pattern, n)
		if cursor.After(end) {
			break
		}
		if len(out) == limit {
			return nil, fmt.Errorf("%w (limit %d)", ErrSeriesTooLong, limit)
		}
		out = append(out, Occurrence{
			Content:      content,
			ScheduledFor: cursor,
			Pattern:      pattern,
			EndDate:      end,
		})
	}
	return out, nil
}

// step returns the n-th occurrence counted from start. Computing from the
// anchor rather than the previous cursor keeps month-end clamping from drifting.
func step(start time.Time, pattern models.Pattern, n int) time.Time {
	switch pattern {
	case models.PatternDaily:
		return start.AddDate(0, 0, n)
	case models.PatternWeekly:
		return start.AddDate(0, 0, 7*n)
	default:
		return addMonthsClamped(start, n)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
