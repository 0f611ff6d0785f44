package milestone

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var now = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func record(code string, trigger EventType, ruleType, data string, order int) DefinitionRecord {
	return DefinitionRecord{
		ID:           uuid.New(),
		Code:         code,
		TitleKey:     "milestones." + code + ".title",
		Icon:         "*",
		TriggerEvent: trigger,
		RuleType:     ruleType,
		RuleData:     json.RawMessage(data),
		SortOrder:    order,
		IsActive:     true,
	}
}

func mustEngine(t *testing.T, records ...DefinitionRecord) *Engine {
	t.Helper()
	e, errs := NewEngine(records)
	if len(errs) != 0 {
		t.Fatalf("NewEngine: unexpected definition errors: %v", errs)
	}
	return e
}

func TestCountRuleFiresOnceAtThreshold(t *testing.T) {
	rec := record("habits_10", HabitCompleted, "count", `{"field":"total_habits_completed","threshold":10}`, 1)
	e := mustEngine(t, rec)
	awarded := map[uuid.UUID]bool{}

	fired := 0
	stats := Stats{TotalHabitsCompleted: 8}
	for i := 0; i < 5; i++ {
		stats = stats.Apply(HabitCompleted, now)
		res := e.Evaluate(Input{EventType: HabitCompleted, OccurredAt: now, Stats: stats, Awarded: awarded})
		for _, f := range res.Fired {
			if stats.TotalHabitsCompleted != 10 {
				t.Fatalf("fired at counter %d, want 10", stats.TotalHabitsCompleted)
			}
			awarded[f.DefinitionID] = true
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("want exactly one award, got %d", fired)
	}
}

func TestEvaluateSkipsAlreadyAwarded(t *testing.T) {
	rec := record("first_login", UserLoggedIn, "count", `{"field":"login_count","threshold":1}`, 1)
	e := mustEngine(t, rec)
	in := Input{EventType: UserLoggedIn, OccurredAt: now, Stats: Stats{}.Apply(UserLoggedIn, now), Awarded: map[uuid.UUID]bool{}}

	first := e.Evaluate(in)
	if len(first.Fired) != 1 || first.Fired[0].Code != "first_login" {
		t.Fatalf("first evaluation: want first_login, got %v", first.Codes())
	}

	in.Awarded[rec.ID] = true
	if again := e.Evaluate(in); len(again.Fired) != 0 {
		t.Fatalf("second evaluation must not re-award, got %v", again.Codes())
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := mustEngine(t,
		record("b", TaskCompleted, "count", `{"field":"total_wins","threshold":1}`, 2),
		record("a", TaskCompleted, "count", `{"field":"total_tasks_completed","threshold":1}`, 2),
		record("c", TaskCompleted, "count", `{"field":"total_wins","threshold":1}`, 1),
	)
	in := Input{EventType: TaskCompleted, OccurredAt: now, Stats: Stats{}.Apply(TaskCompleted, now)}

	want := []string{"c", "a", "b"}
	for run := 0; run < 3; run++ {
		got := e.Evaluate(in).Codes()
		if len(got) != len(want) {
			t.Fatalf("run %d: want %v got %v", run, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("run %d: want %v got %v", run, want, got)
			}
		}
	}
}

func TestReturnAfterGap(t *testing.T) {
	rec := record("return_after_2_weeks", UserLoggedIn, "return_after_gap", `{"gap_days":14}`, 1)
	e := mustEngine(t, rec)

	tests := []struct {
		name string
		gap  time.Duration
		want int
	}{
		{"twenty days", 20 * 24 * time.Hour, 1},
		{"exactly fourteen days", 14 * 24 * time.Hour, 1},
		{"ten days", 10 * 24 * time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := now.Add(-tt.gap)
			stats := Stats{LastLoginAt: &prev, LoginCount: 3}.Apply(UserLoggedIn, now)
			res := e.Evaluate(Input{EventType: UserLoggedIn, OccurredAt: now, Stats: stats})
			if len(res.Fired) != tt.want {
				t.Fatalf("want %d fired got %v", tt.want, res.Codes())
			}
		})
	}
}

func TestReturnAfterGapNeedsBothLogins(t *testing.T) {
	e := mustEngine(t, record("return", UserLoggedIn, "return_after_gap", `{"gap_days":1}`, 1))
	stats := Stats{}.Apply(UserLoggedIn, now)
	if res := e.Evaluate(Input{EventType: UserLoggedIn, OccurredAt: now, Stats: stats}); len(res.Fired) != 0 {
		t.Fatalf("first ever login has no gap, got %v", res.Codes())
	}
}

func TestWindowCount(t *testing.T) {
	e := mustEngine(t, record("habits_5_in_week", HabitCompleted, "window_count", `{"count":5,"days":7}`, 1))
	user := uuid.New()

	var log EventLog
	for _, daysAgo := range []int{9, 6, 4, 2, 1} {
		log = append(log, Event{UserID: user, Type: HabitCompleted, OccurredAt: now.AddDate(0, 0, -daysAgo)})
	}
	log = append(log, Event{UserID: user, Type: TaskCompleted, OccurredAt: now})

	in := Input{UserID: user, EventType: HabitCompleted, OccurredAt: now, Events: log}
	if res := e.Evaluate(in); len(res.Fired) != 0 {
		t.Fatalf("four in-window habits must not fire, got %v", res.Codes())
	}

	in.Events = append(log, Event{UserID: user, Type: HabitCompleted, OccurredAt: now})
	if res := e.Evaluate(in); len(res.Fired) != 1 {
		t.Fatalf("five in-window habits must fire, got %v", res.Codes())
	}
}

func TestWindowCountBoundaryIsInclusive(t *testing.T) {
	e := mustEngine(t, record("two_in_day", HabitCompleted, "window_count", `{"count":2,"days":1}`, 1))
	log := EventLog{
		{Type: HabitCompleted, OccurredAt: now.Add(-24 * time.Hour)},
		{Type: HabitCompleted, OccurredAt: now},
	}
	if res := e.Evaluate(Input{EventType: HabitCompleted, OccurredAt: now, Events: log}); len(res.Fired) != 1 {
		t.Fatalf("event exactly at the window start must count, got %v", res.Codes())
	}
}

func TestInactiveDefinitionsAreNotEvaluated(t *testing.T) {
	rec := record("first_journal", JournalEntryCreated, "count", `{"field":"total_journal_entries","threshold":1}`, 1)
	rec.IsActive = false
	e := mustEngine(t, rec)

	stats := Stats{}.Apply(JournalEntryCreated, now)
	if res := e.Evaluate(Input{EventType: JournalEntryCreated, OccurredAt: now, Stats: stats}); len(res.Fired) != 0 {
		t.Fatalf("inactive definition fired: %v", res.Codes())
	}
	if len(e.Definitions()) != 1 {
		t.Fatalf("inactive definitions are still listed")
	}
}

func TestOtherTriggersAreIgnored(t *testing.T) {
	e := mustEngine(t, record("first_task", TaskCompleted, "count", `{"field":"total_wins","threshold":1}`, 1))
	stats := Stats{}.Apply(HabitCompleted, now)
	if res := e.Evaluate(Input{EventType: HabitCompleted, OccurredAt: now, Stats: stats}); len(res.Fired) != 0 {
		t.Fatalf("definition fired for a different trigger: %v", res.Codes())
	}
}

func TestNewEngineSkipsMalformedDefinitions(t *testing.T) {
	good := record("first_habit", HabitCompleted, "count", `{"field":"total_habits_completed","threshold":1}`, 1)
	records := []DefinitionRecord{
		good,
		record("typo_rule", HabitCompleted, "streak", `{"days":3}`, 2),
		record("no_threshold", HabitCompleted, "count", `{"field":"total_wins"}`, 3),
		record("bad_field", HabitCompleted, "count", `{"field":"karma","threshold":1}`, 4),
		record("broken_json", HabitCompleted, "count", `{"field":`, 5),
		record("bad_trigger", "HabitSkipped", "count", `{"field":"total_wins","threshold":1}`, 6),
		record("gap_on_habit", HabitCompleted, "return_after_gap", `{"gap_days":3}`, 7),
		record("first_habit", HabitCompleted, "count", `{"field":"total_wins","threshold":1}`, 8),
	}

	e, errs := NewEngine(records)
	if len(errs) != len(records)-1 {
		t.Fatalf("want %d definition errors got %d: %v", len(records)-1, len(errs), errs)
	}

	wantErr := map[string]error{
		"typo_rule":    ErrUnknownRuleType,
		"no_threshold": ErrMissingRuleField,
		"bad_field":    ErrUnknownCounterField,
		"broken_json":  ErrInvalidRuleValue,
		"bad_trigger":  ErrUnknownTriggerEvent,
		"gap_on_habit": ErrRuleTriggerMismatch,
		"first_habit":  ErrDuplicateCode,
	}
	for _, de := range errs {
		if want := wantErr[de.Code]; !errors.Is(de, want) {
			t.Errorf("%s: want %v got %v", de.Code, want, de.Err)
		}
	}

	stats := Stats{}.Apply(HabitCompleted, now)
	res := e.Evaluate(Input{EventType: HabitCompleted, OccurredAt: now, Stats: stats})
	if len(res.Fired) != 1 || res.Fired[0].DefinitionID != good.ID {
		t.Fatalf("the valid definition must still fire, got %v", res.Codes())
	}
	if res.Fired[0].AnimationType != DefaultAnimation {
		t.Fatalf("animation: want default %q got %q", DefaultAnimation, res.Fired[0].AnimationType)
	}
}

func TestDefaultDefinitionsLoadCleanly(t *testing.T) {
	defs := DefaultDefinitions()
	e, errs := NewEngine(defs)
	if len(errs) != 0 {
		t.Fatalf("catalogue has invalid definitions: %v", errs)
	}
	if len(e.Definitions()) != len(defs) {
		t.Fatalf("want %d definitions got %d", len(defs), len(e.Definitions()))
	}
	if DefinitionID("first_login") != defs[0].ID {
		t.Fatalf("definition IDs must be derived from codes")
	}

	stats := Stats{}.Apply(UserLoggedIn, now)
	res := e.Evaluate(Input{EventType: UserLoggedIn, OccurredAt: now, Stats: stats})
	if codes := res.Codes(); len(codes) != 1 || codes[0] != "first_login" {
		t.Fatalf("first login: want [first_login] got %v", codes)
	}
}
