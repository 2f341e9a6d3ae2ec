package pentabarf

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"vocsched/internal/tree"
)

// intAttrs are attributes whose values were integers in the source tree.
var intAttrs = map[string]bool{"id": true, "index": true}

// textKeys names the field that collapsed into an element's text when the
// element also carries attributes.
var textKeys = map[string]string{"link": "title", "attachment": "title"}

// Read parses XML produced by Export and projects it back into a tree.
func Read(r io.Reader) (*tree.Map, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("pentabarf: read: %w", err)
	}
	return Project(doc)
}

// Project maps a pentabarf document back to the schedule tree shape. The
// recording element is split into recording_license and do_not_record
// again; which fields were attributes and which were elements in the
// original tree cannot always be recovered.
func Project(doc *etree.Document) (*tree.Map, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no document element", ErrMalformedDocument)
	}

	body := tree.NewMap()
	var conf *tree.Map
	days := tree.List{}
	for _, el := range root.ChildElements() {
		switch el.Tag {
		case ctxConference:
			conf = projectConference(el)
			body.Set(ctxConference, conf)
		case ctxDay:
			days = append(days, projectDay(el))
		default:
			body.Set(el.Tag, projectElement(el))
		}
	}
	if conf == nil {
		conf = tree.NewMap()
		body.Set(ctxConference, conf)
	}
	conf.Set("days", days)

	return tree.MapOf(root.Tag, body), nil
}

func projectConference(el *etree.Element) *tree.Map {
	m := tree.NewMap()
	projectAttrs(m, el)
	for _, c := range el.ChildElements() {
		if c.Tag == "days" {
			if n, err := strconv.ParseInt(strings.TrimSpace(c.Text()), 10, 64); err == nil {
				m.Set("daysCount", tree.Int(n))
				continue
			}
		}
		m.Set(c.Tag, projectElement(c))
	}
	return m
}

func projectDay(el *etree.Element) *tree.Map {
	m := tree.NewMap()
	for _, a := range el.Attr {
		key := a.Key
		switch key {
		case "start", "end":
			key = "day_" + key
		}
		m.Set(key, attrValue(key, a.Value))
	}

	rooms := tree.NewMap()
	for _, c := range el.ChildElements() {
		if c.Tag != ctxRoom {
			m.Set(c.Tag, projectElement(c))
			continue
		}
		events := tree.List{}
		for _, ev := range c.SelectElements(ctxEvent) {
			events = append(events, projectElement(ev))
		}
		rooms.Set(c.SelectAttrValue("name", ""), events)
	}
	m.Set("rooms", rooms)
	return m
}

func projectAttrs(m *tree.Map, el *etree.Element) {
	for _, a := range el.Attr {
		key := a.Key
		if key == "href" {
			key = "url"
		}
		m.Set(key, attrValue(key, a.Value))
	}
}

func attrValue(key, v string) tree.Node {
	if intAttrs[key] {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return tree.Int(n)
		}
	}
	return tree.String(v)
}

func projectElement(el *etree.Element) tree.Node {
	children := el.ChildElements()
	if len(el.Attr) == 0 && len(children) == 0 {
		return tree.String(el.Text())
	}

	m := tree.NewMap()
	projectAttrs(m, el)
	if len(children) == 0 {
		if text := el.Text(); text != "" {
			key, ok := textKeys[el.Tag]
			if !ok {
				key = "value"
			}
			m.Set(key, tree.String(text))
		}
		return m
	}

	counts := make(map[string]int, len(children))
	for _, c := range children {
		counts[c.Tag]++
	}
	for _, c := range children {
		switch {
		case c.Tag == "recording":
			m.Set("recording_license", tree.String(c.SelectAttrValue("license", "")))
			m.Set("do_not_record", tree.Bool(c.SelectAttrValue("optout", "false") == "true"))
		case isWrapper(c):
			items := tree.List{}
			for _, item := range c.ChildElements() {
				items = append(items, projectElement(item))
			}
			m.Set(c.Tag, items)
		case counts[c.Tag] > 1:
			// Repeated siblings come from a plural key without wrapper.
			key := c.Tag + "s"
			l, _ := m.List(key)
			m.Set(key, append(l, projectElement(c)))
		default:
			m.Set(c.Tag, projectElement(c))
		}
	}
	return m
}

// isWrapper reports whether el is a plural collection element such as
// <links>, whose children are all named by the singular tag.
func isWrapper(el *etree.Element) bool {
	if !strings.HasSuffix(el.Tag, "s") || len(el.Attr) != 0 {
		return false
	}
	singular := strings.TrimSuffix(el.Tag, "s")
	for _, c := range el.ChildElements() {
		if c.Tag != singular {
			return false
		}
	}
	return len(el.ChildElements()) > 0 || strings.TrimSpace(el.Text()) == ""
}
