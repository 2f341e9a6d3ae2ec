// Package tree holds the ordered document tree that schedules are decoded
// into and exported from. Key insertion order is preserved everywhere so
// that encoded output is reproducible and diffable.
package tree

import "strconv"

// Node is one value of the tree. The set of implementations is closed:
// String, Int, Float, Bool, Null, List, *Map and *Event.
type Node interface {
	node()
}

type (
	String string
	Int    int64
	Float  float64
	Bool   bool
	Null   struct{}
	List   []Node
)

func (String) node() {}
func (Int) node()    {}
func (Float) node()  {}
func (Bool) node()   {}
func (Null) node()   {}
func (List) node()   {}
func (*Map) node()   {}
func (*Event) node() {}

// Fields returns the mapping behind n when n is a *Map or an *Event.
func Fields(n Node) (*Map, bool) {
	switch v := n.(type) {
	case *Map:
		return v, v != nil
	case *Event:
		return v.fields, v != nil
	default:
		return nil, false
	}
}

// IsScalar reports whether n is a leaf value.
func IsScalar(n Node) bool {
	switch n.(type) {
	case String, Int, Float, Bool, Null:
		return true
	default:
		return false
	}
}

// Truthy mirrors the loose truthiness used by schedule flags such as
// do_not_record: false, 0, "", null and empty containers are false.
func Truthy(n Node) bool {
	switch v := n.(type) {
	case nil, Null:
		return false
	case String:
		return v != ""
	case Int:
		return v != 0
	case Float:
		return v != 0
	case Bool:
		return bool(v)
	case List:
		return len(v) > 0
	case *Map:
		return v.Len() > 0
	case *Event:
		return v.Len() > 0
	default:
		return false
	}
}

// Text returns the string form of a String or Int leaf.
func Text(n Node) (string, bool) {
	switch v := n.(type) {
	case String:
		return string(v), true
	case Int:
		return strconv.FormatInt(int64(v), 10), true
	default:
		return "", false
	}
}

// Equal compares two nodes deeply. Mapping comparison is order sensitive,
// and an *Event equals any node whose fields are equal to its own.
func Equal(a, b Node) bool {
	if am, ok := Fields(a); ok {
		bm, ok := Fields(b)
		if !ok || am.Len() != bm.Len() {
			return false
		}
		for i, k := range am.keys {
			if bm.keys[i] != k || !Equal(am.values[k], bm.values[k]) {
				return false
			}
		}
		return true
	}

	switch av := a.(type) {
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case String, Int, Float, Bool, Null:
		return a == b
	default:
		return a == nil && b == nil
	}
}
