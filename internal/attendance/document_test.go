package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/enrollment/internal/occurrence"
)

var utcCodec = occurrence.NewCodec(time.UTC)

func TestDecodeEmptyPayloads(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte(""), []byte("  "), []byte("null")} {
		doc, err := Decode(utcCodec, payload)
		require.NoError(t, err)
		assert.Empty(t, doc.Occurrences)
		assert.Equal(t, DefaultScope(), doc.Assignments)
	}
}

func TestDecodeCurrentShape(t *testing.T) {
	payload := []byte(`{
		"occurrences": {"2024-05-01 18:00:00": {"status": "present", "recorded_at": "2024-05-01 18:05:00"}},
		"assignments": {"mode": "custom", "occurrences": ["2024-05-08 18:00:00", "2024-05-01T18:00:00"]}
	}`)
	doc, err := Decode(utcCodec, payload)
	require.NoError(t, err)

	require.Contains(t, doc.Occurrences, "2024-05-01 18:00:00")
	assert.Equal(t, occurrence.StatusPresent, doc.Occurrences["2024-05-01 18:00:00"].Status)
	assert.Equal(t, Scope{Mode: ModeCustom, Occurrences: []string{"2024-05-01 18:00:00", "2024-05-08 18:00:00"}}, doc.Assignments)
}

func TestDecodeWithoutAssignments(t *testing.T) {
	payload := []byte(`{"occurrences": {"2024-05-01 18:00:00": {"status": "absent"}}}`)
	doc, err := Decode(utcCodec, payload)
	require.NoError(t, err)
	assert.Len(t, doc.Occurrences, 1)
	assert.Equal(t, DefaultScope(), doc.Assignments)
}

func TestDecodeLegacyBareMap(t *testing.T) {
	payload := []byte(`{
		"2024-05-01 18:00:00": {"status": "present", "recorded_at": "2024-05-01 18:10:00"},
		"2024-05-08T18:00:00": {"status": "ABSENT"}
	}`)
	doc, err := Decode(utcCodec, payload)
	require.NoError(t, err)

	assert.Len(t, doc.Occurrences, 2)
	assert.Contains(t, doc.Occurrences, "2024-05-01 18:00:00")
	assert.Equal(t, occurrence.StatusAbsent, doc.Occurrences["2024-05-08 18:00:00"].Status)
	assert.Equal(t, DefaultScope(), doc.Assignments)
}

func TestDecodeLegacyStatusStrings(t *testing.T) {
	doc, err := Decode(utcCodec, []byte(`{"2024-05-01 18:00:00": "present", "2024-05-02 18:00:00": "pending"}`))
	require.NoError(t, err)
	require.Len(t, doc.Occurrences, 1)
	assert.Equal(t, occurrence.StatusPresent, doc.Occurrences["2024-05-01 18:00:00"].Status)
}

func TestDecodeDropsInvalidEntries(t *testing.T) {
	payload := []byte(`{"occurrences": {
		"not a date": {"status": "present"},
		"2024-05-01 18:00:00": {"status": "late"},
		"2024-05-02 18:00:00": 12,
		"2024-05-03 18:00:00": {"status": "present"}
	}}`)
	doc, err := Decode(utcCodec, payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-03 18:00:00"}, keys(doc.Occurrences))
}

func TestDecodeMalformed(t *testing.T) {
	doc, err := Decode(utcCodec, []byte(`[1,2,3]`))
	require.Error(t, err)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Occurrences)
}

func TestDecodeScopeModeCollapses(t *testing.T) {
	doc, err := Decode(utcCodec, []byte(`{"assignments": {"mode": "Custom", "occurrences": ["2024-05-01 18:00:00"]}}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultScope(), doc.Assignments)
}

func TestDecodeEmptyCustomScope(t *testing.T) {
	doc, err := Decode(utcCodec, []byte(`{"occurrences": {}, "assignments": {"mode": "custom", "occurrences": ["nope"]}}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultScope(), doc.Assignments)
}

func TestEncodeEmptyIsNil(t *testing.T) {
	b, err := Encode(newDocument())
	require.NoError(t, err)
	assert.Nil(t, b)

	doc := newDocument()
	doc.Assignments = Scope{Mode: ModeCustom, Occurrences: []string{}}
	b, err = Encode(doc)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestEncodeOmitsDefaultAssignments(t *testing.T) {
	doc := newDocument()
	doc.Occurrences["2024-05-01 18:00:00"] = Record{Status: occurrence.StatusPresent, RecordedAt: "2024-05-01 18:01:00"}

	b, err := Encode(doc)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &top))
	assert.Contains(t, top, "occurrences")
	assert.NotContains(t, top, "assignments")
}

func TestEncodeAssignmentsOnly(t *testing.T) {
	doc := newDocument()
	doc.Assignments = Scope{Mode: ModeCustom, Occurrences: []string{"2024-05-01 18:00:00"}}

	b, err := Encode(doc)
	require.NoError(t, err)
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &top))
	assert.NotContains(t, top, "occurrences")
	assert.Contains(t, top, "assignments")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	actor := uuid.New()
	doc := newDocument()
	doc.Occurrences["2024-05-01 18:00:00"] = Record{
		Status:        occurrence.StatusAbsent,
		RecordedAt:    "2024-05-01 18:30:00",
		RecordedBy:    &actor,
		Notes:         "sick",
		OccurrenceEnd: "2024-05-01 20:00:00",
	}
	doc.Assignments = Scope{Mode: ModeCustom, Occurrences: []string{"2024-05-01 18:00:00"}}

	b, err := Encode(doc)
	require.NoError(t, err)
	got, err := Decode(utcCodec, b)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}
