package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocsched/internal/schedule"
	"vocsched/internal/tree"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var feed = calendar(
	"BEGIN:VEVENT",
	"UID:talk-1",
	"DTSTART:20151227T100000Z",
	"DTEND:20151227T104500Z",
	"SUMMARY:Lightning Talks",
	"DESCRIPTION:Short talks",
	"LOCATION:Lounge",
	"URL:https://example.org/talk-1",
	"CATEGORIES:Community,Talks",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTART:20151227T120000Z",
	"SUMMARY:No UID",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:daily",
	"DTSTART:20151227T090000Z",
	"DTEND:20151227T093000Z",
	"SUMMARY:Morning Show",
	"RRULE:FREQ=DAILY;COUNT=4",
	"EXDATE:20151229T090000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:daily",
	"RECURRENCE-ID:20151228T090000Z",
	"DTSTART:20151228T110000Z",
	"DTEND:20151228T120000Z",
	"SUMMARY:Morning Show (late)",
	"END:VEVENT",
)

var src = Source{ID: "lounge", Room: "Lounge", Track: "Sendezentrum", IDOffset: 9000}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(src, feed)
	require.NoError(t, err)
	require.Len(t, events, 3, "event without UID is skipped")

	talk := events[0]
	assert.Equal(t, "talk-1", talk.UID)
	assert.Equal(t, "Lightning Talks", talk.Summary)
	assert.Equal(t, "Short talks", talk.Description)
	assert.Equal(t, "Lounge", talk.Location)
	assert.Equal(t, "https://example.org/talk-1", talk.URL)
	assert.Equal(t, []string{"Community", "Talks"}, talk.Categories)
	assert.Equal(t, time.Date(2015, 12, 27, 10, 0, 0, 0, time.UTC), talk.Start)
	assert.Equal(t, 45*time.Minute, talk.End.Sub(talk.Start))
	assert.False(t, talk.AllDay)
	assert.Equal(t, src, talk.Source)

	daily := events[1]
	assert.Equal(t, "FREQ=DAILY;COUNT=4", daily.RawRRule)
	require.Len(t, daily.ExDates, 1)
	assert.False(t, daily.IsOverride())
	assert.True(t, events[2].IsOverride())
}

func TestParseICSEmpty(t *testing.T) {
	_, err := ParseICS(src, []byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyCalendar)
}

func TestExpand(t *testing.T) {
	events, err := ParseICS(src, feed)
	require.NoError(t, err)

	res, err := Expand(events, ExpandConfig{
		From: time.Date(2015, 12, 27, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Truncated)

	var got []string
	for _, o := range res.Occurrences {
		got = append(got, o.Start.Format("02 15:04")+" "+o.Event.Summary)
	}
	assert.Equal(t, []string{
		"27 10:00 Lightning Talks",
		"27 09:00 Morning Show",
		"28 11:00 Morning Show (late)",
		"30 09:00 Morning Show",
	}, got)
}

func TestExpandWindowAndCap(t *testing.T) {
	events, err := ParseICS(src, feed)
	require.NoError(t, err)

	res, err := Expand(events, ExpandConfig{
		From:           time.Date(2015, 12, 28, 0, 0, 0, 0, time.UTC),
		To:             time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
		MaxOccurrences: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	assert.Equal(t, "Morning Show (late)", res.Occurrences[0].Event.Summary)
	assert.Equal(t, []string{"daily"}, res.Truncated)

	res, err = Expand(events, ExpandConfig{
		From:           time.Date(2015, 12, 28, 0, 0, 0, 0, time.UTC),
		To:             time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
		KeepOutOfRange: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 3)
	assert.Equal(t, "Lightning Talks", res.Occurrences[0].Event.Summary)

	_, err = Expand(events, ExpandConfig{From: time.Now(), To: time.Now().Add(-time.Hour)})
	assert.Error(t, err)
}

func TestToEvents(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	start := time.Date(2015, 12, 27, 10, 0, 0, 0, time.UTC)
	occs := []Occurrence{
		{Event: ParsedEvent{Source: src, UID: "a", Summary: "Hello, World!", Location: "Stage"}, Start: start, End: start.Add(90 * time.Minute)},
		{Event: ParsedEvent{Source: Source{ID: "x"}, UID: "b", Summary: "Nowhere"}, Start: start, End: start},
		{Event: ParsedEvent{Source: src, UID: "c", Summary: "Default room", Categories: []string{"Art"}}, Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)},
	}

	evs := ToEvents(occs, ImportOptions{Acronym: "32C3", Location: cet})
	require.Len(t, evs, 2, "occurrence without room is skipped")

	first := evs[0].Fields()
	id, _ := first.Int("id")
	assert.Equal(t, int64(9001), id)
	assert.Equal(t, "Stage", mustString(t, first, "room"))
	assert.Equal(t, "2015-12-27T11:00:00+01:00", mustString(t, first, "date"))
	assert.Equal(t, "11:00", mustString(t, first, "start"))
	assert.Equal(t, "01:30", mustString(t, first, "duration"))
	assert.Equal(t, "32c3-9001-hello_world", mustString(t, first, "slug"))
	assert.Equal(t, "Sendezentrum", mustString(t, first, "track"))
	assert.Equal(t, GUID("a", start), mustString(t, first, "guid"))
	assert.True(t, evs[0].Start().Equal(start))
	assert.Equal(t, []string{
		"id", "guid", "logo", "date", "start", "duration", "room", "slug", "url",
		"recording_license", "do_not_record", "title", "subtitle", "track", "type",
		"language", "abstract", "description", "links",
	}, first.Keys())

	second := evs[1].Fields()
	assert.Equal(t, "Lounge", mustString(t, second, "room"))
	assert.Equal(t, "Art", mustString(t, second, "track"))
	id, _ = second.Int("id")
	assert.Equal(t, int64(9002), id)
}

func TestGUIDIsStablePerInstance(t *testing.T) {
	t1 := time.Date(2015, 12, 27, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, GUID("a", t1), GUID("a", t1.In(time.FixedZone("X", 7200))))
	assert.NotEqual(t, GUID("a", t1), GUID("a", t1.Add(24*time.Hour)))
	assert.NotEqual(t, GUID("a", t1), GUID("b", t1))
}

func TestDurations(t *testing.T) {
	assert.Equal(t, "00:45", FormatDuration(45*time.Minute))
	assert.Equal(t, "12:05", FormatDuration(12*time.Hour+5*time.Minute+30*time.Second))
	assert.Equal(t, "00:00", FormatDuration(-time.Minute))

	d, err := ParseDuration("01:30")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
	d, err = ParseDuration("45")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, d)
	_, err = ParseDuration("soon")
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "33c3-7-opening_event", Slug("33C3", 7, "  Opening -- Event "))
	assert.Equal(t, "12", Slug("", 12, "!!!"))
}

func TestExport(t *testing.T) {
	s, err := schedule.FromTemplate(schedule.Template{Name: "Sendezentrum", Congress: 32, StartDay: 27, Days: 2})
	require.NoError(t, err)
	s.Conference().Set("base_url", tree.String("https://fahrplan.example/"))

	start := time.Date(2015, 12, 27, 10, 0, 0, 0, time.UTC)
	evs := ToEvents([]Occurrence{{
		Event: ParsedEvent{Source: src, UID: "a", Summary: "Opening", Description: "Welcome", URL: "https://example.org/a"},
		Start: start,
		End:   start.Add(30 * time.Minute),
	}}, ImportOptions{Acronym: s.Acronym()})
	require.Len(t, evs, 1)
	require.NoError(t, s.AddEvent(evs[0]))

	out := Export(s, time.Date(2015, 12, 1, 0, 0, 0, 0, time.UTC))
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"METHOD:PUBLISH",
		"UID:" + GUID("a", start),
		"DTSTART:20151227T100000Z",
		"DTEND:20151227T103000Z",
		"SUMMARY:Opening",
		"LOCATION:Lounge",
		"DESCRIPTION:Welcome",
		"CATEGORIES:Sendezentrum",
	} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 1, strings.Count(out, "BEGIN:VEVENT"))
}

func mustString(t *testing.T, m *tree.Map, key string) string {
	t.Helper()
	v, ok := m.String(key)
	require.True(t, ok, key)
	return v
}
