package tree

import "iter"

// Map is an ordered key→node mapping.
type Map struct {
	keys   []string
	values map[string]Node
}

// NewMap returns an empty mapping.
func NewMap() *Map {
	return &Map{values: make(map[string]Node)}
}

// MapOf builds a mapping from alternating key, value arguments. It panics on
// a non-string key, which only happens with a programming error.
func MapOf(kv ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1].(Node))
	}
	return m
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Map) Get(key string) (Node, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set replaces the value of an existing key in place, or appends the key.
func (m *Map) Set(key string, v Node) {
	if m.values == nil {
		m.values = make(map[string]Node)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Delete removes key, keeping the order of the remaining keys.
func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			return
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// All iterates over key/value pairs in insertion order.
func (m *Map) All() iter.Seq2[string, Node] {
	return func(yield func(string, Node) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// Clone returns a shallow copy. Nested containers are shared.
func (m *Map) Clone() *Map {
	out := &Map{
		keys:   make([]string, len(m.keys)),
		values: make(map[string]Node, len(m.values)),
	}
	copy(out.keys, m.keys)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// String returns the value of key if it is a String leaf.
func (m *Map) String(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

// Int returns the value of key if it is an Int leaf.
func (m *Map) Int(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(Int)
	return int64(n), ok
}

// Map returns the value of key if it is a mapping.
func (m *Map) Map(key string) (*Map, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Map)
	return sub, ok
}

// List returns the value of key if it is a list.
func (m *Map) List(key string) (List, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	l, ok := v.(List)
	return l, ok
}
