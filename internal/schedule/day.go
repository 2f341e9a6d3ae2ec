package schedule

import (
	"fmt"
	"time"

	"vocsched/internal/tree"
)

// Day is one conference day. Its window [Start, End) runs from the
// morning of Date until the early hours of the next calendar day, so that
// late-night events stay on the day they belong to.
type Day struct {
	Index int
	Date  string
	Start time.Time
	End   time.Time

	node *tree.Map
}

func newDay(node *tree.Map) (*Day, error) {
	idx, ok := node.Int("index")
	if !ok {
		return nil, fmt.Errorf("%w: day without index", ErrMalformedDocument)
	}
	d := &Day{Index: int(idx), node: node}
	d.Date, _ = node.String("date")

	var err error
	if d.Start, err = dayTime(node, "day_start"); err != nil {
		return nil, err
	}
	if d.End, err = dayTime(node, "day_end"); err != nil {
		return nil, err
	}
	if !d.Start.Before(d.End) {
		return nil, fmt.Errorf("%w: day %d ends before it starts", ErrMalformedDocument, d.Index)
	}

	rooms, ok := node.Get("rooms")
	if !ok {
		node.Set("rooms", tree.NewMap())
		return d, nil
	}
	if _, isMap := rooms.(*tree.Map); !isMap {
		return nil, fmt.Errorf("%w: day %d rooms is %T", ErrMalformedDocument, d.Index, rooms)
	}
	return d, nil
}

func dayTime(node *tree.Map, key string) (time.Time, error) {
	s, ok := node.String(key)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: day without %s", ErrMalformedDocument, key)
	}
	t, err := tree.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrMalformedDocument, key, err)
	}
	return t, nil
}

// Contains reports whether t falls inside the half-open day window.
func (d *Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

func (d *Day) rooms() *tree.Map {
	m, _ := d.node.Map("rooms")
	return m
}

// Rooms returns room names in creation order.
func (d *Day) Rooms() []string {
	return d.rooms().Keys()
}

func (d *Day) HasRoom(name string) bool {
	return d.rooms().Has(name)
}

// Events returns the events of a room in insertion order.
func (d *Day) Events(room string) []*tree.Event {
	l, _ := d.rooms().List(room)
	out := make([]*tree.Event, 0, len(l))
	for _, n := range l {
		if ev, ok := n.(*tree.Event); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (d *Day) addRoom(name string) {
	d.rooms().Set(name, tree.List{})
}

func (d *Day) appendEvent(room string, ev *tree.Event) {
	rooms := d.rooms()
	l, _ := rooms.List(room)
	rooms.Set(room, append(l, ev))
}

// adoptEvents turns plain event mappings loaded from JSON into events.
func (d *Day) adoptEvents() error {
	rooms := d.rooms()
	for name, n := range rooms.All() {
		l, ok := n.(tree.List)
		if !ok {
			return fmt.Errorf("%w: day %d room %q is %T", ErrMalformedDocument, d.Index, name, n)
		}
		for i, item := range l {
			m, ok := item.(*tree.Map)
			if !ok {
				return fmt.Errorf("%w: day %d room %q event %d is %T", ErrMalformedDocument, d.Index, name, i, item)
			}
			ev, err := tree.NewEvent(m, time.Time{})
			if err != nil {
				return fmt.Errorf("%w: day %d room %q event %d: %v", ErrMalformedDocument, d.Index, name, i, err)
			}
			l[i] = ev
		}
	}
	return nil
}
