package ics

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	appLog "vocsched/internal/log"
	"vocsched/internal/tree"
)

// ImportOptions controls how occurrences become schedule events.
type ImportOptions struct {
	// Acronym prefixes event slugs, e.g. "33c3".
	Acronym string
	// Location is the zone of the date field; nil keeps the occurrence zone.
	Location *time.Location
}

// ToEvents converts occurrences into schedule event records. Occurrences
// without any room, from LOCATION or the source default, are skipped.
func ToEvents(occs []Occurrence, opts ImportOptions) []*tree.Event {
	out := make([]*tree.Event, 0, len(occs))
	seq := 0
	for _, occ := range occs {
		src := occ.Event.Source
		room := occ.Event.Location
		if room == "" {
			room = src.Room
		}
		if room == "" {
			appLog.Warn("ics: occurrence without room skipped", "source", src.ID, "uid", occ.Event.UID)
			continue
		}

		seq++
		start := occ.Start
		if opts.Location != nil {
			start = start.In(opts.Location)
		}
		id := src.IDOffset + seq
		fields := eventFields(occ, opts, id, start, room)

		ev, err := tree.NewEvent(fields, start)
		if err != nil {
			appLog.Warn("ics: occurrence skipped", "source", src.ID, "uid", occ.Event.UID, "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out
}

func eventFields(occ Occurrence, opts ImportOptions, id int, start time.Time, room string) *tree.Map {
	ev := occ.Event
	track := ev.Source.Track
	if len(ev.Categories) > 0 {
		track = ev.Categories[0]
	}

	links := tree.List{}
	if ev.URL != "" {
		links = append(links, tree.MapOf("url", tree.String(ev.URL), "title", tree.String(ev.Summary)))
	}

	return tree.MapOf(
		"id", tree.Int(id),
		"guid", tree.String(GUID(ev.UID, occ.Start)),
		"logo", tree.Null{},
		"date", tree.String(start.Format(time.RFC3339)),
		"start", tree.String(start.Format("15:04")),
		"duration", tree.String(FormatDuration(occ.End.Sub(occ.Start))),
		"room", tree.String(room),
		"slug", tree.String(Slug(opts.Acronym, id, ev.Summary)),
		"url", tree.String(ev.URL),
		"recording_license", tree.String(""),
		"do_not_record", tree.Bool(false),
		"title", tree.String(ev.Summary),
		"subtitle", tree.String(""),
		"track", tree.String(track),
		"type", tree.String("other"),
		"language", tree.String(""),
		"abstract", tree.String(""),
		"description", tree.String(ev.Description),
		"links", links,
	)
}

// GUID derives a stable event guid from the feed UID and the instance
// start, so every recurrence instance gets its own guid.
func GUID(uid string, start time.Time) string {
	key := uid + "@" + start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// FormatDuration renders d as hh:mm, rounded down to the minute.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseDuration reads the hh:mm form written by FormatDuration. A bare
// number is taken as minutes.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var h, m int
	if strings.Contains(s, ":") {
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("ics: duration %q: %w", s, err)
		}
	} else if _, err := fmt.Sscanf(s, "%d", &m); err != nil {
		return 0, fmt.Errorf("ics: duration %q: %w", s, err)
	}
	if h < 0 || m < 0 {
		return 0, fmt.Errorf("ics: negative duration %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Slug builds "<acronym>-<id>-<title>" with the title lowercased and runs of
// other characters collapsed to one underscore.
func Slug(acronym string, id int, title string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
			continue
		}
		sep = true
	}
	parts := make([]string, 0, 3)
	if acronym != "" {
		parts = append(parts, strings.ToLower(acronym))
	}
	parts = append(parts, fmt.Sprint(id))
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "-")
}
