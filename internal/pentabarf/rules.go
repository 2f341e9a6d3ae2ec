package pentabarf

import (
	"strings"

	"github.com/beevik/etree"

	"vocsched/internal/tree"
)

// Parent contexts. The context of a nested value is the tag of the element
// it is written into, so these double as tag names.
const (
	ctxSchedule   = "schedule"
	ctxConference = "conference"
	ctxDay        = "day"
	ctxRoom       = "room"
	ctxEvent      = "event"
)

// keyRule rewrites a source key before any placement decision.
type keyRule struct {
	name    string
	match   func(ctx, key string) bool
	rewrite func(key string) string
}

var keyRules = []keyRule{
	{
		name:    "strip day_ prefix",
		match:   func(ctx, key string) bool { return ctx == ctxDay && strings.HasPrefix(key, "day_") },
		rewrite: func(key string) string { return strings.TrimPrefix(key, "day_") },
	},
}

// attrRule promotes a field to an attribute of the current element.
type attrRule struct {
	name  string
	match func(ctx, key string, v tree.Node) bool
	// as renames the attribute; empty keeps the key.
	as string
}

var attrRules = []attrRule{
	{
		name:  "identity attribute",
		match: func(_, key string, _ tree.Node) bool { return key == "id" || key == "guid" },
	},
	{
		name: "day scalar attribute",
		match: func(ctx, _ string, v tree.Node) bool {
			_, ok := tree.Text(v)
			return ctx == ctxDay && ok
		},
	},
	{
		name:  "url as href",
		match: func(ctx, key string, _ tree.Node) bool { return key == "url" && ctx != ctxEvent },
		as:    "href",
	},
}

func matchAttr(ctx, key string, v tree.Node) (string, bool) {
	for _, r := range attrRules {
		if r.match(ctx, key, v) {
			if r.as != "" {
				return r.as, true
			}
			return key, true
		}
	}
	return "", false
}

// emission is a field on its way to becoming child elements.
type emission struct {
	root   *etree.Element
	parent *etree.Element
	tag    string
	value  tree.Node

	// attributes writes a mapping value as attributes of the new element.
	attributes bool
	// inline writes the value into parent instead of a new element.
	inline bool
	skip   bool
}

// scope is per-mapping state shared by the fields of one mapping.
type scope struct {
	license tree.Node
}

// elementRule reshapes an emission. Rules run in table order; among rules
// marked rename only the first match applies.
type elementRule struct {
	name   string
	rename bool
	match  func(ctx string, e *emission) bool
	apply  func(ctx string, e *emission, sc *scope)
}

var elementRules = []elementRule{
	{
		// Under "room" every key is a room name holding that room's events.
		name:  "room element",
		match: func(ctx string, _ *emission) bool { return ctx == ctxRoom },
		apply: func(_ string, e *emission, _ *scope) {
			room := e.parent.CreateElement("room")
			room.CreateAttr("name", e.tag)
			e.parent = room
			e.tag = "event"
		},
	},
	{
		name:  "days under document root",
		match: func(_ string, e *emission) bool { return e.tag == "days" },
		apply: func(_ string, e *emission, _ *scope) { e.parent = e.root },
	},
	{
		name:   "plural collection",
		rename: true,
		match:  func(_ string, e *emission) bool { return strings.HasSuffix(e.tag, "s") },
		apply: func(ctx string, e *emission, _ *scope) {
			if ctx == ctxEvent {
				e.parent = e.parent.CreateElement(e.tag)
			}
			e.tag = strings.TrimSuffix(e.tag, "s")
		},
	},
	{
		name:   "days count",
		rename: true,
		match:  func(ctx string, e *emission) bool { return ctx == ctxConference && e.tag == "daysCount" },
		apply:  func(_ string, e *emission, _ *scope) { e.tag = "days" },
	},
	{
		name:   "buffer recording license",
		rename: true,
		match:  func(_ string, e *emission) bool { return e.tag == "recording_license" },
		apply: func(_ string, e *emission, sc *scope) {
			sc.license = e.value
			e.skip = true
		},
	},
	{
		name:   "recording opt-out",
		rename: true,
		match:  func(_ string, e *emission) bool { return e.tag == "do_not_record" },
		apply: func(_ string, e *emission, sc *scope) {
			license := sc.license
			if license == nil {
				license = tree.String("")
			}
			optout := "false"
			if tree.Truthy(e.value) {
				optout = "true"
			}
			e.tag = "recording"
			e.value = tree.MapOf("license", license, "optout", tree.String(optout))
			e.attributes = true
		},
	},
	{
		// The rooms mapping of a day has no element of its own; each room
		// gets one from the room element rule.
		name: "inline rooms",
		match: func(ctx string, e *emission) bool {
			_, isList := e.value.(tree.List)
			return ctx == ctxDay && e.tag == "room" && !isList
		},
		apply: func(_ string, e *emission, _ *scope) { e.inline = true },
	},
}

func reshape(ctx string, e *emission, sc *scope) {
	renamed := false
	for _, r := range elementRules {
		if r.rename && renamed {
			continue
		}
		if !r.match(ctx, e) {
			continue
		}
		r.apply(ctx, e, sc)
		if r.rename {
			renamed = true
		}
	}
}
