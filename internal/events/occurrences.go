package events

import (
	"context"
	"time"

	"github.com/aura-events/enrollment/internal/models"
)

// SingleOccurrence expands a non-recurring event into its one occurrence.
type SingleOccurrence struct {
	now func() time.Time
}

// NewSingleOccurrence creates the expander used when no recurrence engine is configured.
func NewSingleOccurrence(now func() time.Time) *SingleOccurrence {
	if now == nil {
		now = time.Now
	}
	return &SingleOccurrence{now: now}
}

// Occurrences returns the event's start as its only occurrence. Past occurrences are
// dropped unless q.IncludePast is set.
func (s *SingleOccurrence) Occurrences(_ context.Context, ev *models.Event, q models.OccurrenceQuery) ([]models.Occurrence, error) {
	if ev == nil || ev.DateDebut.IsZero() || q.Max < 0 {
		return nil, nil
	}
	if !q.IncludePast && !ev.DateDebut.After(s.now()) {
		return nil, nil
	}
	return []models.Occurrence{{Start: ev.DateDebut, End: ev.DateFin, Label: ev.Title}}, nil
}
