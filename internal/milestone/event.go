package milestone

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	UserLoggedIn        EventType = "UserLoggedIn"
	HabitCompleted      EventType = "HabitCompleted"
	TaskCompleted       EventType = "TaskCompleted"
	IdentityProofAdded  EventType = "IdentityProofAdded"
	JournalEntryCreated EventType = "JournalEntryCreated"
)

func (t EventType) Valid() bool {
	switch t {
	case UserLoggedIn, HabitCompleted, TaskCompleted, IdentityProofAdded, JournalEntryCreated:
		return true
	}
	return false
}

// Event is an append-only record of a user action.
type Event struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	Type       EventType       `json:"event_type" db:"event_type"`
	OccurredAt time.Time       `json:"occurred_at" db:"occurred_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// EventCounter answers window queries over a user's event log.
type EventCounter interface {
	CountSince(eventType EventType, since time.Time) int
}

// EventLog is an in-memory EventCounter over an already loaded slice of one user's events.
type EventLog []Event

// CountSince counts events of the given type at or after since.
func (l EventLog) CountSince(eventType EventType, since time.Time) int {
	n := 0
	for _, e := range l {
		if e.Type == eventType && !e.OccurredAt.Before(since) {
			n++
		}
	}
	return n
}
