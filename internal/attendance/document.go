package attendance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/aura-events/enrollment/internal/occurrence"
)

// Scope modes.
const (
	ModeAll    = "all"
	ModeCustom = "custom"
)

// Record is the attendance of one member at one occurrence.
type Record struct {
	Status        occurrence.Status `json:"status"`
	RecordedAt    string            `json:"recorded_at"`
	RecordedBy    *uuid.UUID        `json:"recorded_by"`
	Notes         string            `json:"notes,omitempty"`
	OccurrenceEnd string            `json:"occurrence_end,omitempty"`
}

// Scope declares which occurrences a registration covers.
type Scope struct {
	Mode        string   `json:"mode"`
	Occurrences []string `json:"occurrences"`
}

// DefaultScope covers every occurrence.
func DefaultScope() Scope {
	return Scope{Mode: ModeAll, Occurrences: []string{}}
}

// Custom reports whether the scope restricts coverage to an explicit list.
func (s Scope) Custom() bool { return s.Mode == ModeCustom }

// Document is the decoded attendance payload of one registration.
type Document struct {
	Occurrences map[string]Record
	Assignments Scope
}

func newDocument() *Document {
	return &Document{Occurrences: map[string]Record{}, Assignments: DefaultScope()}
}

// wrappedShape is the current payload layout; the older layout without assignments decodes through it too.
type wrappedShape struct {
	Occurrences map[string]json.RawMessage `json:"occurrences,omitempty"`
	Assignments *Scope                     `json:"assignments,omitempty"`
}

// Decode parses a stored payload. Empty payloads, JSON null and unreadable payloads
// yield an empty document with the default scope; unreadable payloads also return an error.
func Decode(c *occurrence.Codec, payload []byte) (*Document, error) {
	doc := newDocument()
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return doc, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return doc, fmt.Errorf("decode attendance document: %w", err)
	}

	_, hasOccurrences := top["occurrences"]
	_, hasAssignments := top["assignments"]
	raw := top
	if hasOccurrences || hasAssignments {
		var w wrappedShape
		if err := json.Unmarshal(payload, &w); err != nil {
			return doc, fmt.Errorf("decode attendance document: %w", err)
		}
		raw = w.Occurrences
		if w.Assignments != nil {
			doc.Assignments = normalizeScope(c, *w.Assignments)
		}
	}

	for key, value := range raw {
		k := c.Normalize(key)
		if k == "" {
			continue
		}
		rec, ok := decodeRecord(c, value)
		if !ok {
			continue
		}
		doc.Occurrences[k] = rec
	}
	return doc, nil
}

// decodeRecord accepts either a record object or a bare status string.
func decodeRecord(c *occurrence.Codec, value json.RawMessage) (Record, bool) {
	var rec Record
	var status string
	if err := json.Unmarshal(value, &status); err == nil {
		rec.Status = occurrence.Status(status)
	} else {
		var obj struct {
			Status        string     `json:"status"`
			RecordedAt    string     `json:"recorded_at"`
			RecordedBy    *uuid.UUID `json:"recorded_by"`
			Notes         string     `json:"notes"`
			OccurrenceEnd string     `json:"occurrence_end"`
		}
		if err := json.Unmarshal(value, &obj); err != nil {
			return Record{}, false
		}
		rec = Record{
			Status:        occurrence.Status(obj.Status),
			RecordedAt:    obj.RecordedAt,
			RecordedBy:    obj.RecordedBy,
			Notes:         obj.Notes,
			OccurrenceEnd: c.Normalize(obj.OccurrenceEnd),
		}
	}
	rec.Status = occurrence.NormalizeStatus(string(rec.Status))
	if !rec.Status.Stored() {
		return Record{}, false
	}
	return rec, true
}

// Encode renders the document for storage. It returns nil when there is nothing worth keeping.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}
	var w wrappedShape
	if len(doc.Occurrences) > 0 {
		w.Occurrences = make(map[string]json.RawMessage, len(doc.Occurrences))
		for k, rec := range doc.Occurrences {
			b, err := json.Marshal(rec)
			if err != nil {
				return nil, fmt.Errorf("encode attendance record %s: %w", k, err)
			}
			w.Occurrences[k] = b
		}
	}
	if doc.Assignments.Custom() && len(doc.Assignments.Occurrences) > 0 {
		scope := doc.Assignments
		w.Assignments = &scope
	}
	if w.Occurrences == nil && w.Assignments == nil {
		return nil, nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode attendance document: %w", err)
	}
	return b, nil
}

// normalizeScope collapses anything but a non-empty "custom" list to the default scope and canonicalizes custom keys.
func normalizeScope(c *occurrence.Codec, s Scope) Scope {
	if s.Mode != ModeCustom {
		return DefaultScope()
	}
	seen := make(map[string]struct{}, len(s.Occurrences))
	keys := make([]string, 0, len(s.Occurrences))
	for _, o := range s.Occurrences {
		k := c.Normalize(o)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return DefaultScope()
	}
	sort.Strings(keys)
	return Scope{Mode: ModeCustom, Occurrences: keys}
}
