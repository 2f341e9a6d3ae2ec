package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "vocsched/internal/log"
)

const defaultMaxOccurrences = 1000

// Occurrence is one concrete instance of a ParsedEvent.
type Occurrence struct {
	Event ParsedEvent
	Start time.Time
	End   time.Time
}

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	// Location is the zone occurrences are converted to; nil keeps the
	// event's own zone.
	Location *time.Location

	// From and To bound occurrence starts, both inclusive.
	From time.Time
	To   time.Time

	// MaxOccurrences caps each recurring event.
	MaxOccurrences int

	// KeepOutOfRange also returns non-recurring events outside the window,
	// for callers that report them instead of dropping them.
	KeepOutOfRange bool
}

// ExpandResult lists occurrences in feed order, recurring instances in
// time order.
type ExpandResult struct {
	Occurrences []Occurrence
	// Truncated lists UIDs that hit MaxOccurrences.
	Truncated []string
}

// Expand turns parsed events into occurrences within [From, To]. RRULE,
// EXDATE and RECURRENCE-ID overrides are applied.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.To.Before(cfg.From) {
		return result, errors.New("ics: expand window ends before it starts")
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = defaultMaxOccurrences
	}

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		var occ []Occurrence
		if ev.RawRRule == "" {
			occ = expandSingle(ev, overrides[ev.UID], cfg)
		} else {
			var capped bool
			occ, capped = expandRecurring(ev, overrides[ev.UID], cfg)
			if capped {
				result.Truncated = append(result.Truncated, ev.UID)
				appLog.Warn("ics: occurrences truncated", "uid", ev.UID, "cap", cfg.MaxOccurrences)
			}
		}
		result.Occurrences = append(result.Occurrences, occ...)
	}

	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	if !cfg.KeepOutOfRange && (ev.Start.Before(cfg.From) || ev.Start.After(cfg.To)) {
		return nil
	}
	if o, ok := findOverride(overrides, ev.Start); ok {
		return []Occurrence{makeOccurrence(o, o.Start, o.End, cfg.Location)}
	}
	return []Occurrence{makeOccurrence(ev, ev.Start, ev.End, cfg.Location)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(cfg.From.In(loc), cfg.To.In(loc), true)
	capped := false
	if len(starts) > cfg.MaxOccurrences {
		starts = starts[:cfg.MaxOccurrences]
		capped = true
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		if o, ok := findOverride(overrides, start); ok {
			out = append(out, makeOccurrence(o, o.Start, o.End, cfg.Location))
			continue
		}
		out = append(out, makeOccurrence(ev, start, start.Add(dur), cfg.Location))
	}
	return out, capped
}

func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func makeOccurrence(ev ParsedEvent, start, end time.Time, loc *time.Location) Occurrence {
	if loc != nil {
		start, end = start.In(loc), end.In(loc)
	}
	return Occurrence{Event: ev, Start: start, End: end}
}
