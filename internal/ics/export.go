package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "vocsched/internal/log"
	"vocsched/internal/schedule"
	"vocsched/internal/tree"
)

const productID = "-//vocsched//schedule export//EN"

// Export renders every event of s as a VEVENT. DTEND is derived from the
// event duration; events with an unreadable duration end at their start.
func Export(s *schedule.Schedule, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if title := s.Title(); title != "" {
		cal.SetXWRCalName(title)
	}
	if base := s.BaseURL(); base != "" {
		cal.SetUrl(base)
	}

	s.Each(func(_ *schedule.Day, room string, ev *tree.Event) {
		f := ev.Fields()
		uid, ok := f.String("guid")
		if !ok || uid == "" {
			id, _ := f.Int("id")
			uid = fmt.Sprintf("%s-%d@%s", strings.ToLower(s.Acronym()), id, productHost)
		}

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.Start())

		end := ev.Start()
		if raw, ok := f.String("duration"); ok {
			if d, err := ParseDuration(raw); err == nil {
				end = end.Add(d)
			} else {
				appLog.Debug("ics: bad duration", "guid", uid, "duration", raw)
			}
		}
		ve.SetEndAt(end)

		ve.SetSummary(ev.Title())
		ve.SetLocation(room)
		if desc := description(f); desc != "" {
			ve.SetDescription(desc)
		}
		if u, ok := f.String("url"); ok && u != "" {
			ve.SetURL(u)
		}
		if track, ok := f.String("track"); ok && track != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, track)
		}
	})

	return cal.Serialize()
}

const productHost = "vocsched"

func description(f *tree.Map) string {
	for _, key := range []string{"abstract", "description"} {
		if v, ok := f.String(key); ok && v != "" {
			return v
		}
	}
	return ""
}
