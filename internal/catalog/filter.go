// Package catalog filters and orders the event list shown to members.
package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/eventdesk/internal/model"
)

// DateBucket restricts events to a window relative to today.
type DateBucket string

const (
	BucketAll      DateBucket = "all"
	BucketUpcoming DateBucket = "upcoming"
	BucketToday    DateBucket = "today"
	BucketWeek     DateBucket = "week"
	BucketMonth    DateBucket = "month"
	BucketPast     DateBucket = "past"
)

// ParseDateBucket accepts the bucket names and the empty string (all).
func ParseDateBucket(s string) (DateBucket, error) {
	switch b := DateBucket(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BucketAll, nil
	case BucketAll, BucketUpcoming, BucketToday, BucketWeek, BucketMonth, BucketPast:
		return b, nil
	}
	return "", fmt.Errorf("unknown date bucket %q", s)
}

// Criteria is one set of catalog restrictions. The zero value matches everything.
type Criteria struct {
	Search   string
	Type     string
	Location string
	When     DateBucket
}

const allValues = "all"

// Filter returns the events matching every criteria, ordered by date.
// Events sharing a date keep their input order. The input is not modified.
func Filter(events []model.Event, now time.Time, criteria ...Criteria) []model.Event {
	today := model.DateOf(now)

	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if matchesAll(e, today, criteria) {
			out = append(out, e)
		}
	}

	slices.SortStableFunc(out, func(a, b model.Event) int {
		return a.Date.Compare(b.Date)
	})
	return out
}

// FilterNow evaluates date buckets against the current time.
func FilterNow(events []model.Event, criteria ...Criteria) []model.Event {
	return Filter(events, time.Now(), criteria...)
}

func matchesAll(e model.Event, today model.Date, criteria []Criteria) bool {
	for _, c := range criteria {
		if !c.matches(e, today) {
			return false
		}
	}
	return true
}

func (c Criteria) matches(e model.Event, today model.Date) bool {
	if c.Search != "" {
		q := strings.ToLower(c.Search)
		if !strings.Contains(strings.ToLower(e.Name), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			return false
		}
	}
	if c.Type != "" && c.Type != allValues && e.Type != c.Type {
		return false
	}
	if c.Location != "" && c.Location != allValues && e.Location != c.Location {
		return false
	}
	return c.When.contains(e.Date, today)
}

func (b DateBucket) contains(d, today model.Date) bool {
	switch b {
	case BucketUpcoming:
		return !d.Before(today)
	case BucketPast:
		return d.Before(today)
	case BucketToday:
		return d == today
	case BucketWeek:
		return !d.Before(today) && !d.After(today.AddDate(0, 0, 7))
	case BucketMonth:
		return !d.Before(today) && !d.After(today.AddDate(0, 1, 0))
	default:
		// all, empty and unrecognised buckets
		return true
	}
}

// Facets lists the distinct non-empty types and locations in events, sorted.
func Facets(events []model.Event) (types, locations []string) {
	seenType := make(map[string]bool)
	seenLoc := make(map[string]bool)
	for _, e := range events {
		if e.Type != "" && !seenType[e.Type] {
			seenType[e.Type] = true
			types = append(types, e.Type)
		}
		if e.Location != "" && !seenLoc[e.Location] {
			seenLoc[e.Location] = true
			locations = append(locations, e.Location)
		}
	}
	slices.Sort(types)
	slices.Sort(locations)
	return types, locations
}
