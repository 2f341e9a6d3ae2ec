package validate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocsched/internal/tree"
)

func decode(t *testing.T, src string) tree.Node {
	t.Helper()
	n, err := tree.Decode(strings.NewReader(src))
	require.NoError(t, err)
	return n
}

const valid = `{"schedule": {"version": "1", "conference": {"title": "x", "daysCount": 1, "timeslot_duration": "00:15", "days": [
	{"index": 1, "day_start": "2015-12-27T06:00:00+01:00", "day_end": "2015-12-28T04:00:00+01:00", "rooms": {
		"Hall 1": [{"id": 1, "date": "2015-12-27T11:00:00+01:00", "title": "Opening", "duration": "00:30", "do_not_record": false}]
	}}
]}}}`

func TestDefaultSchemaAcceptsSchedule(t *testing.T) {
	v, err := NewJSON("")
	require.NoError(t, err)
	assert.NoError(t, v.Validate(decode(t, valid)))
}

func TestDefaultSchemaReportsFirstLeaf(t *testing.T) {
	v, err := NewJSON("")
	require.NoError(t, err)

	bad := strings.Replace(valid, `"index": 1`, `"index": "one"`, 1)
	err = v.Validate(decode(t, bad))
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "schedule.conference.days.0.index", se.Path)
	assert.NotEmpty(t, se.Message)

	err = v.Validate(decode(t, `{"other": 1}`))
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "schema:")
}

func TestCustomSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strict.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type": "object", "required": ["schedule", "generator"]}`), 0o600))

	v, err := NewJSON(path)
	require.NoError(t, err)
	assert.Error(t, v.Validate(decode(t, valid)))

	_, err = NewJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPointerToPath(t *testing.T) {
	assert.Equal(t, "", pointerToPath(""))
	assert.Equal(t, "a.0.b/c", pointerToPath("/a/0/b~1c"))
}

func TestXMLLintMissing(t *testing.T) {
	old := xmllint
	xmllint = "xmllint-does-not-exist"
	defer func() { xmllint = old }()

	err := XMLLint(context.Background(), "schema.xsd", "schedule.xml")
	assert.ErrorIs(t, err, ErrValidatorMissing)
}
