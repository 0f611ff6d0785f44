package milestone

import (
	"errors"
	"testing"
	"time"
)

func TestApplyLoginShiftsTimestamps(t *testing.T) {
	first := now.Add(-48 * time.Hour)
	s := Stats{}.Apply(UserLoggedIn, first)
	if s.LoginCount != 1 || s.PreviousLoginAt != nil || !s.LastLoginAt.Equal(first) {
		t.Fatalf("after first login: %+v", s)
	}

	s = s.Apply(UserLoggedIn, now)
	if s.LoginCount != 2 || !s.PreviousLoginAt.Equal(first) || !s.LastLoginAt.Equal(now) {
		t.Fatalf("after second login: %+v", s)
	}
	if s.TotalWins != 0 {
		t.Fatalf("logins are not wins, got total_wins=%d", s.TotalWins)
	}
}

func TestApplyActivityCountsWins(t *testing.T) {
	var s Stats
	for _, et := range []EventType{HabitCompleted, HabitCompleted, TaskCompleted, IdentityProofAdded, JournalEntryCreated} {
		s = s.Apply(et, now)
	}
	if s.TotalWins != 5 || s.TotalHabitsCompleted != 2 || s.TotalTasksCompleted != 1 ||
		s.TotalIdentityProofs != 1 || s.TotalJournalEntries != 1 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.LastActivityAt == nil || !s.LastActivityAt.Equal(now) {
		t.Fatalf("last activity not recorded")
	}
}

func TestApplyDoesNotMutateReceiver(t *testing.T) {
	before := Stats{TotalWins: 3}
	_ = before.Apply(TaskCompleted, now)
	if before.TotalWins != 3 || before.LastActivityAt != nil {
		t.Fatalf("Apply mutated its receiver: %+v", before)
	}
}

func TestField(t *testing.T) {
	s := Stats{LoginCount: 4, TotalJournalEntries: 2}
	if v, err := s.Field(FieldLoginCount); err != nil || v != 4 {
		t.Fatalf("login_count: want 4 got %d (%v)", v, err)
	}
	if v, err := s.Field(FieldTotalJournalEntries); err != nil || v != 2 {
		t.Fatalf("total_journal_entries: want 2 got %d (%v)", v, err)
	}
	if _, err := s.Field("streaks"); !errors.Is(err, ErrUnknownCounterField) {
		t.Fatalf("want ErrUnknownCounterField got %v", err)
	}
}

func TestParseRuleRejectsNonPositiveValues(t *testing.T) {
	tests := []struct {
		ruleType string
		data     string
	}{
		{"count", `{"field":"total_wins","threshold":0}`},
		{"window_count", `{"count":5,"days":0}`},
		{"return_after_gap", `{"gap_days":-1}`},
	}
	for _, tt := range tests {
		if _, err := ParseRule(tt.ruleType, []byte(tt.data)); !errors.Is(err, ErrInvalidRuleValue) {
			t.Errorf("%s %s: want ErrInvalidRuleValue got %v", tt.ruleType, tt.data, err)
		}
	}
	if _, err := ParseRule("count", nil); !errors.Is(err, ErrMissingRuleField) {
		t.Errorf("empty data: want ErrMissingRuleField got %v", err)
	}
}

func TestEncodeRuleMatchesStoredShape(t *testing.T) {
	rt, data, err := EncodeRule(ReturnAfterGapRule{GapDays: 14})
	if err != nil {
		t.Fatalf("EncodeRule: %v", err)
	}
	if rt != RuleReturnAfterGap || string(data) != `{"gap_days":14}` {
		t.Fatalf("got %s %s", rt, data)
	}
}

func TestEventLogCountSince(t *testing.T) {
	log := EventLog{
		{Type: HabitCompleted, OccurredAt: now.Add(-72 * time.Hour)},
		{Type: HabitCompleted, OccurredAt: now.Add(-time.Hour)},
		{Type: TaskCompleted, OccurredAt: now.Add(-time.Hour)},
	}
	if got := log.CountSince(HabitCompleted, now.Add(-48*time.Hour)); got != 1 {
		t.Fatalf("want 1 got %d", got)
	}
}
