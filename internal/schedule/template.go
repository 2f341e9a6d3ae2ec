package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"vocsched/internal/tree"
)

// Template describes an empty schedule for an upcoming congress.
type Template struct {
	// Name is the sub-event name, e.g. "sendezentrum".
	Name string
	// Congress is the congress number; the year is 1983+Congress.
	Congress int
	// StartDay is the day of month of the first conference day.
	StartDay int
	// Days is the number of conference days.
	Days int
	// Month defaults to December.
	Month time.Month
	// Location defaults to CET (+01:00).
	Location *time.Location
	// Now stamps the version field; defaults to time.Now.
	Now time.Time
}

const (
	dayStartHour = 6
	dayEndHour   = 4
)

var cet = time.FixedZone("CET", 3600)

// FromTemplate builds a schedule with empty rooms whose days run from 06:00
// to 04:00 the following morning.
func FromTemplate(t Template) (*Schedule, error) {
	if t.Congress < 1 {
		return nil, errors.New("schedule: template congress number must be positive")
	}
	if t.Days < 1 {
		return nil, errors.New("schedule: template needs at least one day")
	}
	if t.StartDay < 1 || t.StartDay > 31 {
		return nil, fmt.Errorf("schedule: template start day %d out of range", t.StartDay)
	}
	if t.Month == 0 {
		t.Month = time.December
	}
	if t.Location == nil {
		t.Location = cet
	}
	if t.Now.IsZero() {
		t.Now = time.Now()
	}

	year := 1983 + t.Congress
	first := time.Date(year, t.Month, t.StartDay, dayStartHour, 0, 0, 0, t.Location)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   t.Days,
		Dtstart: first,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: template recurrence: %w", err)
	}
	starts := r.All()

	days := make(tree.List, 0, len(starts))
	for i, start := range starts {
		start = start.In(t.Location)
		end := time.Date(start.Year(), start.Month(), start.Day()+1, dayEndHour, 0, 0, 0, t.Location)
		days = append(days, tree.MapOf(
			"index", tree.Int(i+1),
			"date", tree.String(start.Format(time.DateOnly)),
			"day_start", tree.String(start.Format(time.RFC3339)),
			"day_end", tree.String(end.Format(time.RFC3339)),
			"rooms", tree.NewMap(),
		))
	}
	last := starts[len(starts)-1]

	conf := tree.MapOf(
		"acronym", tree.String(fmt.Sprintf("%dC3-%s", t.Congress, strings.ToLower(t.Name))),
		"title", tree.String(fmt.Sprintf("%d. Chaos Communication Congress - %s", t.Congress, t.Name)),
		"start", tree.String(first.Format(time.DateOnly)),
		"end", tree.String(last.Format(time.DateOnly)),
		"daysCount", tree.Int(t.Days),
		"timeslot_duration", tree.String("00:15"),
		"days", days,
	)

	root := tree.MapOf("schedule", tree.MapOf(
		"version", tree.String(t.Now.Format("2006-01-02 15:04")),
		"conference", conf,
	))
	return New(root)
}
