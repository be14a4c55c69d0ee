// Package occurrence canonicalizes occurrence timestamps and attendance statuses
// so that records, assignment scopes and lookups key consistently.
package occurrence

import (
	"strings"
	"time"

	"github.com/aura-events/enrollment/internal/models"
)

// Layout is the canonical occurrence key layout, rendered in the configured timezone.
const Layout = "2006-01-02 15:04:05"

// Status is an attendance status.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusPending Status = "pending"
)

// Stored reports whether s is kept in an attendance document. Pending and empty clear the record.
func (s Status) Stored() bool {
	return s == StatusPresent || s == StatusAbsent
}

// zoned layouts carry their own offset; the value is converted into the codec location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// local layouts are interpreted as wall-clock time in the codec location.
var localLayouts = []string{
	Layout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Codec normalizes occurrence values against one timezone.
type Codec struct {
	loc *time.Location
	now func() time.Time
}

// NewCodec creates a codec for loc (UTC when nil).
func NewCodec(loc *time.Location) *Codec {
	if loc == nil {
		loc = time.UTC
	}
	return &Codec{loc: loc, now: time.Now}
}

// WithClock returns a copy of c reading the current time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Location returns the codec timezone.
func (c *Codec) Location() *time.Location { return c.loc }

// Now returns the current time in the codec timezone.
func (c *Codec) Now() time.Time { return c.now().In(c.loc) }

// Format renders t as a canonical key.
func (c *Codec) Format(t time.Time) string {
	return t.In(c.loc).Format(Layout)
}

// Normalize returns the canonical key for value, or "" when value cannot be interpreted.
// Accepted values are time.Time, *time.Time, models.Occurrence, *models.Occurrence and strings.
func (c *Codec) Normalize(value any) string {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return c.Format(v)
	case *time.Time:
		if v == nil {
			return ""
		}
		return c.Normalize(*v)
	case models.Occurrence:
		return c.Normalize(v.Start)
	case *models.Occurrence:
		if v == nil {
			return ""
		}
		return c.Normalize(v.Start)
	case string:
		t, ok := c.Parse(v)
		if !ok {
			return ""
		}
		return c.Format(t)
	}
	return ""
}

// Parse interprets a free-form timestamp string.
func (c *Codec) Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(c.loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeStatus validates a status against the closed set. Unknown values yield "".
func NormalizeStatus(value string) Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusPresent, StatusAbsent, StatusPending:
		return s
	}
	return ""
}
