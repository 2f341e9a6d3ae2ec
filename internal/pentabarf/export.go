// Package pentabarf converts schedule trees to and from the legacy
// pentabarf-style schedule XML (variant without person elements).
package pentabarf

import (
	"errors"
	"fmt"
	"io"

	"github.com/beevik/etree"

	appLog "vocsched/internal/log"
	"vocsched/internal/tree"
)

var (
	ErrMalformedDocument    = errors.New("pentabarf: malformed document")
	ErrUnsupportedValueType = errors.New("pentabarf: unsupported value type")
)

// Warning records a field that was left out of the XML output.
type Warning struct {
	Path string
	Key  string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %s: %v", w.Path, w.Key, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Result is a finished export. A non-empty Warnings list means the
// conversion succeeded with dropped fields.
type Result struct {
	Doc      *etree.Document
	Warnings []Warning
}

func (r *Result) String() (string, error) {
	return r.Doc.WriteToString()
}

func (r *Result) WriteTo(w io.Writer) (int64, error) {
	return r.Doc.WriteTo(w)
}

type transcoder struct {
	root     *etree.Element
	warnings []Warning
}

// Export converts a schedule tree into pentabarf XML. The tree must have a
// single top-level key, which names the document element. The tree is not
// modified.
func Export(root *tree.Map) (*Result, error) {
	if root.Len() != 1 {
		return nil, fmt.Errorf("%w: expected one top-level key, got %d", ErrMalformedDocument, root.Len())
	}
	tag := root.Keys()[0]
	body, _ := root.Get(tag)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	t := &transcoder{root: doc.CreateElement(tag)}
	t.value(body, t.root, ctxSchedule, tag)
	doc.Indent(2)

	for _, w := range t.warnings {
		appLog.Warn("pentabarf: field dropped", "path", w.Path, "key", w.Key, "err", w.Err)
	}
	return &Result{Doc: doc, Warnings: t.warnings}, nil
}

func (t *transcoder) warn(path, key string, v tree.Node) {
	t.warnings = append(t.warnings, Warning{
		Path: path,
		Key:  key,
		Err:  fmt.Errorf("%w: %T", ErrUnsupportedValueType, v),
	})
}

// value writes v into el, which was created for it.
func (t *transcoder) value(v tree.Node, el *etree.Element, ctx, path string) {
	switch n := v.(type) {
	case tree.String:
		if n != "" {
			el.SetText(string(n))
		}
	case tree.Int:
		s, _ := tree.Text(n)
		el.SetText(s)
	case tree.Null:
	case *tree.Map:
		t.mapping(n, el, ctx, path)
	case *tree.Event:
		t.mapping(n.Fields(), el, ctx, path)
	case tree.Bool, tree.Float, tree.List:
		t.warn(path, ctx, v)
	default:
		t.warn(path, ctx, v)
	}
}

func (t *transcoder) mapping(m *tree.Map, el *etree.Element, ctx, path string) {
	if ctx == ctxSchedule {
		m = relocateBaseURL(m)
	}

	type field struct {
		key  string
		val  tree.Node
		attr string
	}
	fields := make([]field, 0, m.Len())
	remaining := 0
	for k, v := range m.All() {
		for _, r := range keyRules {
			if r.match(ctx, k) {
				k = r.rewrite(k)
			}
		}
		f := field{key: k, val: v}
		if name, ok := matchAttr(ctx, k, v); ok {
			f.attr = name
		} else {
			remaining++
		}
		fields = append(fields, f)
	}

	sc := &scope{}
	for _, f := range fields {
		if f.attr != "" {
			t.attr(el, f.attr, f.val, path)
			continue
		}
		if s, ok := f.val.(tree.String); ok && remaining == 1 {
			el.SetText(string(s))
			continue
		}
		t.element(el, ctx, f.key, f.val, sc, path)
	}
}

func (t *transcoder) attr(el *etree.Element, name string, v tree.Node, path string) {
	s, ok := tree.Text(v)
	if !ok {
		t.warn(path, name, v)
		return
	}
	el.CreateAttr(name, s)
}

func (t *transcoder) element(parent *etree.Element, ctx, key string, v tree.Node, sc *scope, path string) {
	e := &emission{root: t.root, parent: parent, tag: key, value: v}
	reshape(ctx, e, sc)

	switch {
	case e.skip:
	case e.inline:
		t.value(e.value, e.parent, e.tag, path)
	default:
		if items, ok := e.value.(tree.List); ok {
			for _, item := range items {
				t.child(e, item, path)
			}
			return
		}
		t.child(e, e.value, path)
	}
}

// child creates one element named e.tag under e.parent for v.
func (t *transcoder) child(e *emission, v tree.Node, path string) {
	switch v.(type) {
	case tree.Bool, tree.Float, tree.List:
		t.warn(path, e.tag, v)
		return
	}

	el := e.parent.CreateElement(e.tag)
	if e.attributes {
		m, _ := tree.Fields(v)
		for k, fv := range m.All() {
			t.attr(el, k, fv, path+"/"+e.tag)
		}
		return
	}
	t.value(v, el, e.tag, path+"/"+e.tag)
}

// relocateBaseURL moves a schedule level base_url into the conference.
// Copies are returned; m is left as it is.
func relocateBaseURL(m *tree.Map) *tree.Map {
	base, ok := m.Get("base_url")
	if !ok {
		return m
	}
	conf, ok := m.Map("conference")
	if !ok {
		return m
	}
	conf = conf.Clone()
	conf.Set("base_url", base)

	out := m.Clone()
	out.Delete("base_url")
	out.Set("conference", conf)
	return out
}
