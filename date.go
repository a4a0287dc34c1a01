package harvest

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateRange is an inclusive publish-time window. A zero Start or End leaves
// that side open; a zero DateRange does not filter at all.
type DateRange struct {
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// IsZero reports whether the range is unbounded on both sides.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t lies inside the range.
// A nil t is never contained in a bounded range.
func (r DateRange) Contains(t *time.Time) bool {
	if r.IsZero() {
		return true
	}
	if t == nil {
		return false
	}
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// LastDays returns the range from midnight n days before now through the end of today.
func LastDays(now time.Time, n int) DateRange {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return DateRange{
		Start: end.AddDate(0, 0, -n),
		End:   end.Add(24*time.Hour - time.Nanosecond),
	}
}

// Layouts used by scraped sites, tried before falling back to dateparse.
var (
	dateTimeLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/1/2 15:04:05",
		"2006/1/2 15:04",
		time.RFC3339,
	}
	dateLayouts = []string{
		"2006-01-02",
		"2006/1/2",
		"2006年1月2日",
		"2006.1.2",
	}
)

// ParsePublishTime parses a publish time as scraped from a page. Times without
// a zone are taken as UTC. An empty string yields nil without error.
func ParsePublishTime(s string) (*time.Time, error) {
	t, _, err := parseTime(s)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// ParseDateRange parses the bounds of a date-filtered query. An end given as a
// bare date covers that whole day. Empty strings leave the side open.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if r.Start, _, err = parseTime(start); err != nil {
		return DateRange{}, err
	}
	var dateOnly bool
	if r.End, dateOnly, err = parseTime(end); err != nil {
		return DateRange{}, err
	}
	if dateOnly {
		r.End = r.End.Add(24*time.Hour - time.Nanosecond)
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, Errorf(EINVALID, "date range end %s is before start %s", end, start)
	}
	return r, nil
}

func parseTime(s string) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), false, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true, nil
		}
	}
	t, err = dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false, Errorf(EINVALID, "unrecognized date %q", s)
	}
	return t.UTC(), false, nil
}
