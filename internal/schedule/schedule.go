// Package schedule holds a conference schedule document: conference
// metadata plus the ordered list of days, each with its rooms and events.
package schedule

import (
	"errors"
	"fmt"
	"io"
	"time"

	appLog "vocsched/internal/log"
	"vocsched/internal/tree"
)

var (
	ErrDayOutOfRange     = errors.New("schedule: day out of range")
	ErrMalformedDocument = errors.New("schedule: malformed document")
	ErrRoomExists        = errors.New("schedule: room already exists")
	ErrInvalidEvent      = errors.New("schedule: invalid event")
	ErrUnknownDay        = errors.New("schedule: unknown day index")
)

// Schedule is the document root. It owns the ordered tree it was built
// from; every mutation goes through the tree so that encoding it again
// yields the current state.
type Schedule struct {
	root *tree.Map
	body *tree.Map
	conf *tree.Map

	// days has exactly daysCount entries; days[i].Index == i+1.
	days []*Day
}

// Decode reads schedule JSON and builds a document from it.
func Decode(r io.Reader) (*Schedule, error) {
	n, err := tree.Decode(r)
	if err != nil {
		return nil, err
	}
	root, ok := n.(*tree.Map)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %T", ErrMalformedDocument, n)
	}
	return New(root)
}

// New builds a document from an already parsed tree. The tree is adopted,
// not copied: event mappings inside room lists are replaced by events.
func New(root *tree.Map) (*Schedule, error) {
	body, ok := root.Map("schedule")
	if !ok {
		return nil, fmt.Errorf("%w: missing schedule", ErrMalformedDocument)
	}
	conf, ok := body.Map("conference")
	if !ok {
		return nil, fmt.Errorf("%w: missing schedule.conference", ErrMalformedDocument)
	}
	count, ok := conf.Int("daysCount")
	if !ok || count < 0 {
		return nil, fmt.Errorf("%w: missing conference.daysCount", ErrMalformedDocument)
	}
	list, ok := conf.List("days")
	if !ok {
		return nil, fmt.Errorf("%w: missing conference.days", ErrMalformedDocument)
	}
	if int(count) != len(list) {
		return nil, fmt.Errorf("%w: daysCount is %d but %d days are listed", ErrMalformedDocument, count, len(list))
	}

	s := &Schedule{
		root: root,
		body: body,
		conf: conf,
		days: make([]*Day, count),
	}

	for i, n := range list {
		m, ok := n.(*tree.Map)
		if !ok {
			return nil, fmt.Errorf("%w: day %d is %T", ErrMalformedDocument, i+1, n)
		}
		d, err := newDay(m)
		if err != nil {
			return nil, err
		}
		if d.Index != i+1 {
			return nil, fmt.Errorf("%w: day at position %d has index %d", ErrMalformedDocument, i+1, d.Index)
		}
		if err := d.adoptEvents(); err != nil {
			return nil, err
		}
		s.days[i] = d
	}

	if err := s.checkWindows(); err != nil {
		return nil, err
	}

	appLog.Debug("schedule loaded", "acronym", s.Acronym(), "days", len(s.days), "events", s.EventCount())
	return s, nil
}

// checkWindows rejects day windows that overlap: any timestamp must
// resolve to at most one day.
func (s *Schedule) checkWindows() error {
	for i, a := range s.days {
		for _, b := range s.days[i+1:] {
			if a.Start.Before(b.End) && b.Start.Before(a.End) {
				return fmt.Errorf("%w: windows of day %d and day %d overlap", ErrMalformedDocument, a.Index, b.Index)
			}
		}
	}
	return nil
}

// Tree returns the backing tree, including added rooms and events.
func (s *Schedule) Tree() *tree.Map { return s.root }

func (s *Schedule) Conference() *tree.Map { return s.conf }

func (s *Schedule) Version() string {
	v, _ := s.body.String("version")
	return v
}

func (s *Schedule) Acronym() string {
	v, _ := s.conf.String("acronym")
	return v
}

func (s *Schedule) Title() string {
	v, _ := s.conf.String("title")
	return v
}

// BaseURL returns conference.base_url, falling back to the schedule level
// field older exports carry.
func (s *Schedule) BaseURL() string {
	if v, ok := s.conf.String("base_url"); ok {
		return v
	}
	v, _ := s.body.String("base_url")
	return v
}

func (s *Schedule) DaysCount() int { return len(s.days) }

// Days returns the days in index order.
func (s *Schedule) Days() []*Day {
	out := make([]*Day, len(s.days))
	copy(out, s.days)
	return out
}

// Day returns the day with the given 1-based index.
func (s *Schedule) Day(index int) (*Day, error) {
	if index < 1 || index > len(s.days) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDay, index)
	}
	return s.days[index-1], nil
}

// ResolveDay returns the index of the first day whose window contains t.
func (s *Schedule) ResolveDay(t time.Time) (int, error) {
	for _, d := range s.days {
		if d.Contains(t) {
			return d.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: illegal start time %s", ErrDayOutOfRange, t.Format(time.RFC3339))
}

// AddRooms makes sure every day has a room for each name. Existing rooms
// and their events are left alone.
func (s *Schedule) AddRooms(names []string) {
	for _, d := range s.days {
		for _, name := range names {
			if !d.HasRoom(name) {
				d.addRoom(name)
			}
		}
	}
}

func (s *Schedule) RoomExists(day int, name string) bool {
	d, err := s.Day(day)
	if err != nil {
		return false
	}
	return d.HasRoom(name)
}

// AddRoom creates an empty room on one day. The room must not exist yet.
func (s *Schedule) AddRoom(day int, name string) error {
	d, err := s.Day(day)
	if err != nil {
		return err
	}
	if d.HasRoom(name) {
		return fmt.Errorf("%w: %q on day %d", ErrRoomExists, name, day)
	}
	d.addRoom(name)
	return nil
}

// AddEvent appends ev to its room on the day whose window contains its
// start, creating the room when needed. On error nothing is changed.
func (s *Schedule) AddEvent(ev *tree.Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	room, ok := ev.Room()
	if !ok {
		return fmt.Errorf("%w: event %q has no room", ErrInvalidEvent, ev.Title())
	}
	index, err := s.ResolveDay(ev.Start())
	if err != nil {
		return err
	}

	d := s.days[index-1]
	if !d.HasRoom(room) {
		d.addRoom(room)
	}
	d.appendEvent(room, ev)
	return nil
}

// Each visits every event: days in index order, rooms in creation order,
// events in insertion order.
func (s *Schedule) Each(fn func(d *Day, room string, ev *tree.Event)) {
	for _, d := range s.days {
		for _, room := range d.Rooms() {
			for _, ev := range d.Events(room) {
				fn(d, room, ev)
			}
		}
	}
}

// ForEach applies fn to every event in visiting order and collects the
// results in the same order.
func ForEach[T any](s *Schedule, fn func(ev *tree.Event) T) []T {
	var out []T
	s.Each(func(_ *Day, _ string, ev *tree.Event) {
		out = append(out, fn(ev))
	})
	return out
}

func (s *Schedule) EventCount() int {
	n := 0
	s.Each(func(*Day, string, *tree.Event) { n++ })
	return n
}

// WriteJSON encodes the document, added events included.
func (s *Schedule) WriteJSON(w io.Writer) error {
	return tree.Encode(w, s.root)
}
