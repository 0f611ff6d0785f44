package milestone

import (
	"errors"
	"fmt"
	"time"
)

// Counter field names as they appear in count rule data.
const (
	FieldLoginCount           = "login_count"
	FieldTotalWins            = "total_wins"
	FieldTotalHabitsCompleted = "total_habits_completed"
	FieldTotalTasksCompleted  = "total_tasks_completed"
	FieldTotalIdentityProofs  = "total_identity_proofs"
	FieldTotalJournalEntries  = "total_journal_entries"
)

var ErrUnknownCounterField = errors.New("unknown counter field")

// Stats are a user's aggregate counters. They only ever grow.
type Stats struct {
	LoginCount           int        `json:"login_count" db:"login_count"`
	TotalWins            int        `json:"total_wins" db:"total_wins"`
	TotalHabitsCompleted int        `json:"total_habits_completed" db:"total_habits_completed"`
	TotalTasksCompleted  int        `json:"total_tasks_completed" db:"total_tasks_completed"`
	TotalIdentityProofs  int        `json:"total_identity_proofs" db:"total_identity_proofs"`
	TotalJournalEntries  int        `json:"total_journal_entries" db:"total_journal_entries"`
	LastLoginAt          *time.Time `json:"last_login_at" db:"last_login_at"`
	PreviousLoginAt      *time.Time `json:"previous_login_at" db:"previous_login_at"`
	LastActivityAt       *time.Time `json:"last_activity_at" db:"last_activity_at"`
}

// Delta is the increment one event applies to Stats. The persistence layer turns it
// into a single atomic upsert.
type Delta struct {
	Login                bool
	TotalWins            int
	TotalHabitsCompleted int
	TotalTasksCompleted  int
	TotalIdentityProofs  int
	TotalJournalEntries  int
}

func DeltaFor(eventType EventType) Delta {
	switch eventType {
	case UserLoggedIn:
		return Delta{Login: true}
	case HabitCompleted:
		return Delta{TotalHabitsCompleted: 1, TotalWins: 1}
	case TaskCompleted:
		return Delta{TotalTasksCompleted: 1, TotalWins: 1}
	case IdentityProofAdded:
		return Delta{TotalIdentityProofs: 1, TotalWins: 1}
	case JournalEntryCreated:
		return Delta{TotalJournalEntries: 1, TotalWins: 1}
	}
	return Delta{}
}

// Apply returns the counters after one event at the given time.
// A login shifts LastLoginAt into PreviousLoginAt.
func (s Stats) Apply(eventType EventType, at time.Time) Stats {
	d := DeltaFor(eventType)
	next := s
	t := at
	next.LastActivityAt = &t

	if d.Login {
		next.PreviousLoginAt = s.LastLoginAt
		next.LastLoginAt = &t
		next.LoginCount++
	}
	next.TotalWins += d.TotalWins
	next.TotalHabitsCompleted += d.TotalHabitsCompleted
	next.TotalTasksCompleted += d.TotalTasksCompleted
	next.TotalIdentityProofs += d.TotalIdentityProofs
	next.TotalJournalEntries += d.TotalJournalEntries
	return next
}

func (s Stats) Field(name string) (int, error) {
	switch name {
	case FieldLoginCount:
		return s.LoginCount, nil
	case FieldTotalWins:
		return s.TotalWins, nil
	case FieldTotalHabitsCompleted:
		return s.TotalHabitsCompleted, nil
	case FieldTotalTasksCompleted:
		return s.TotalTasksCompleted, nil
	case FieldTotalIdentityProofs:
		return s.TotalIdentityProofs, nil
	case FieldTotalJournalEntries:
		return s.TotalJournalEntries, nil
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownCounterField)
}

func knownField(name string) bool {
	_, err := Stats{}.Field(name)
	return err == nil
}
