package reminder

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
)

type Event struct {
	ID       uuid.UUID
	MatchID  uuid.UUID
	StartsAt time.Time
	RemindAt time.Time
	Status   Status
}

func (e Event) Due(now time.Time) bool {
	return e.Status == StatusScheduled && !e.RemindAt.After(now)
}

// Cursor marks a position in (RemindAt, ID) order. The zero Cursor is before every event.
type Cursor struct {
	RemindAt time.Time
	ID       uuid.UUID
}

func (c Cursor) IsZero() bool {
	return c.RemindAt.IsZero() && c.ID == uuid.Nil
}

func CursorOf(e Event) Cursor {
	return Cursor{RemindAt: e.RemindAt, ID: e.ID}
}

// After reports whether e sorts strictly after c.
func (e Event) After(c Cursor) bool {
	if c.IsZero() {
		return true
	}
	if !e.RemindAt.Equal(c.RemindAt) {
		return e.RemindAt.After(c.RemindAt)
	}
	return e.ID.String() > c.ID.String()
}
