package tree

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

// ErrInvalidTime is returned when a timestamp field cannot be parsed.
var ErrInvalidTime = errors.New("tree: invalid timestamp")

// Event is one schedule event: an ordered attribute set plus the start
// instant derived from its date field.
type Event struct {
	fields *Map
	start  time.Time
}

// NewEvent wraps fields as an event. When start is zero it is parsed from
// the "date" field.
func NewEvent(fields *Map, start time.Time) (*Event, error) {
	if fields == nil {
		fields = NewMap()
	}
	if start.IsZero() {
		date, ok := fields.String("date")
		if !ok {
			return nil, fmt.Errorf("%w: event has no date", ErrInvalidTime)
		}
		t, err := ParseTime(date)
		if err != nil {
			return nil, err
		}
		start = t
	}
	return &Event{fields: fields, start: start}, nil
}

func (e *Event) Start() time.Time { return e.start }

// Fields exposes the backing mapping.
func (e *Event) Fields() *Map { return e.fields }

func (e *Event) Get(key string) (Node, bool) { return e.fields.Get(key) }

func (e *Event) Len() int {
	if e == nil {
		return 0
	}
	return e.fields.Len()
}

func (e *Event) All() iter.Seq2[string, Node] { return e.fields.All() }

// Room returns the room name, if the event has one.
func (e *Event) Room() (string, bool) {
	room, ok := e.fields.String("room")
	if !ok || room == "" {
		return "", false
	}
	return room, true
}

func (e *Event) Title() string {
	title, _ := e.fields.String("title")
	return title
}

// Equal compares attribute sets including their order.
func (e *Event) Equal(other *Event) bool {
	return Equal(e, other)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts the ISO-8601 forms found in schedule files, with or
// without seconds and offset. Values without an offset are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTime)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}
