// scraper/dates.go
package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Some approval rows carry mistyped dates; only M/D/YYYY-shaped values that
// are also real calendar dates take part in aggregation.
var startDateRegex = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

const (
	startDateLayout = "1/2/2006"
	isoDateLayout   = "2006-01-02"
)

// ParseStartDate parses an approval "Start Date" value.
func ParseStartDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !startDateRegex.MatchString(s) {
		return time.Time{}, fmt.Errorf("start date %q does not match M/D/YYYY", s)
	}
	t, err := time.Parse(startDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("start date %q is not a calendar date: %w", s, err)
	}
	return t, nil
}

// MostRecentFriday returns the date of the latest Friday on or before now,
// truncated to midnight in now's location.
func MostRecentFriday(now time.Time) time.Time {
	offset := (int(now.Weekday()) - int(time.Friday) + 7) % 7
	y, m, d := now.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
}
