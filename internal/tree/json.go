package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-json-experiment/json/jsontext"
)

// Decode reads one JSON value from r, keeping object keys in input order.
func Decode(r io.Reader) (Node, error) {
	dec := jsontext.NewDecoder(r)
	n, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("tree: decode: %w", err)
	}
	if _, err := dec.ReadToken(); !errors.Is(err, io.EOF) {
		return nil, errors.New("tree: decode: trailing data after top-level value")
	}
	return n, nil
}

func decodeValue(dec *jsontext.Decoder) (Node, error) {
	tok, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}

	switch tok.Kind() {
	case '{':
		m := NewMap()
		for dec.PeekKind() != '}' {
			name, err := dec.ReadToken()
			if err != nil {
				return nil, err
			}
			// the token is only valid until the next read
			key := name.String()
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			m.Set(key, v)
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		return m, nil
	case '[':
		l := List{}
		for dec.PeekKind() != ']' {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			l = append(l, v)
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		return l, nil
	case '"':
		return String(tok.String()), nil
	case '0':
		raw := tok.String()
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(n), nil
		}
		return Float(tok.Float()), nil
	case 't':
		return Bool(true), nil
	case 'f':
		return Bool(false), nil
	case 'n':
		return Null{}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok.Kind())
	}
}

// Encode writes n as indented JSON, preserving key order.
func Encode(w io.Writer, n Node) error {
	enc := jsontext.NewEncoder(w, jsontext.WithIndent("    "))
	if err := encodeValue(enc, n); err != nil {
		return fmt.Errorf("tree: encode: %w", err)
	}
	return nil
}

func encodeValue(enc *jsontext.Encoder, n Node) error {
	switch v := n.(type) {
	case *Map, *Event:
		m, _ := Fields(v)
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		for k, child := range m.All() {
			if err := enc.WriteToken(jsontext.String(k)); err != nil {
				return err
			}
			if err := encodeValue(enc, child); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndObject)
	case List:
		if err := enc.WriteToken(jsontext.BeginArray); err != nil {
			return err
		}
		for _, child := range v {
			if err := encodeValue(enc, child); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndArray)
	case String:
		return enc.WriteToken(jsontext.String(string(v)))
	case Int:
		return enc.WriteToken(jsontext.Int(int64(v)))
	case Float:
		return enc.WriteToken(jsontext.Float(float64(v)))
	case Bool:
		return enc.WriteToken(jsontext.Bool(bool(v)))
	case Null, nil:
		return enc.WriteToken(jsontext.Null)
	default:
		return fmt.Errorf("unsupported node %T", n)
	}
}

// Plain converts n into the generic values produced by encoding/json with
// UseNumber, for consumers that only understand those.
func Plain(n Node) any {
	switch v := n.(type) {
	case *Map, *Event:
		m, _ := Fields(v)
		out := make(map[string]any, m.Len())
		for k, child := range m.All() {
			out[k] = Plain(child)
		}
		return out
	case List:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Plain(child)
		}
		return out
	case String:
		return string(v)
	case Int:
		return json.Number(strconv.FormatInt(int64(v), 10))
	case Float:
		return json.Number(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case Bool:
		return bool(v)
	default:
		return nil
	}
}
