// Package validate checks schedule documents against a JSON schema and
// exported XML against an XSD.
package validate

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"vocsched/internal/tree"
)

//go:embed schedule.schema.json
var defaultSchema []byte

const defaultSchemaURL = "schedule.schema.json"

// SchemaError is the first leaf failure reported by the schema.
type SchemaError struct {
	// Path is the instance location as a dotted path, e.g.
	// schedule.conference.days.0.index.
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return "schema: " + e.Message
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Message)
}

// JSON validates decoded schedule trees.
type JSON struct {
	schema *jsonschema.Schema
}

// NewJSON compiles the schema at path, or the built-in schedule schema
// when path is empty.
func NewJSON(path string) (*JSON, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	url := defaultSchemaURL
	if path == "" {
		if err := compiler.AddResource(url, bytes.NewReader(defaultSchema)); err != nil {
			return nil, fmt.Errorf("validate: add schema: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("validate: schema: %w", err)
		}
		url = path
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("validate: compile schema: %w", err)
	}
	return &JSON{schema: schema}, nil
}

// Validate returns nil or a *SchemaError.
func (v *JSON) Validate(n tree.Node) error {
	err := v.schema.Validate(tree.Plain(n))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &SchemaError{Message: err.Error()}
	}
	leaf := firstLeaf(ve)
	return &SchemaError{Path: pointerToPath(leaf.InstanceLocation), Message: leaf.Message}
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}
