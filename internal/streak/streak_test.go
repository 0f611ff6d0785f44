package streak

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

var today = civil.Date{Year: 2025, Month: 3, Day: 10}

func day(offset int) civil.Date { return today.AddDays(offset) }

func days(offsets ...int) []civil.Date {
	out := make([]civil.Date, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, day(o))
	}
	return out
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		history []civil.Date
		current int
		longest int
	}{
		{"empty", nil, 0, 0},
		{"only today", days(0), 1, 1},
		{"three consecutive ending today", days(-2, -1, 0), 3, 3},
		{"ending yesterday is within grace", days(-3, -2, -1), 3, 3},
		{"ending two days ago is broken", days(-4, -3, -2), 0, 3},
		{"gap splits runs", days(-9, -8, -7, -6, -2, -1, 0), 3, 4},
		{"single old completion", days(-30), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.history, today)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if got.Current != tt.current {
				t.Errorf("current: want=%d got=%d", tt.current, got.Current)
			}
			if got.Longest != tt.longest {
				t.Errorf("longest: want=%d got=%d", tt.longest, got.Longest)
			}
			if len(tt.history) == 0 && got.LastCompleted != nil {
				t.Errorf("last completed: want nil got %v", *got.LastCompleted)
			}
			if len(tt.history) > 0 && (got.LastCompleted == nil || *got.LastCompleted != tt.history[len(tt.history)-1]) {
				t.Errorf("last completed: want %v got %v", tt.history[len(tt.history)-1], got.LastCompleted)
			}
		})
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	if _, err := Compute(days(0, -1), today); !errors.Is(err, ErrUnsortedHistory) {
		t.Fatalf("unsorted: want ErrUnsortedHistory got %v", err)
	}
	if _, err := Compute(days(-1, -1), today); !errors.Is(err, ErrUnsortedHistory) {
		t.Fatalf("duplicate: want ErrUnsortedHistory got %v", err)
	}
	if _, err := Compute(days(-1, 1), today); !errors.Is(err, ErrFutureCompletion) {
		t.Fatalf("future: want ErrFutureCompletion got %v", err)
	}
}

func TestCompleteContinuity(t *testing.T) {
	last := day(-1)
	s := State{Current: 4, Longest: 4, LastCompleted: &last}

	got, err := Complete(s, day(0))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Current != 5 || got.Longest != 5 {
		t.Fatalf("want current=5 longest=5, got current=%d longest=%d", got.Current, got.Longest)
	}
	if *got.LastCompleted != day(0) {
		t.Fatalf("last completed: want %v got %v", day(0), *got.LastCompleted)
	}
}

func TestCompleteKeepsLongestWhenBelow(t *testing.T) {
	last := day(-1)
	s := State{Current: 2, Longest: 9, LastCompleted: &last}

	got, err := Complete(s, day(0))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Current != 3 || got.Longest != 9 {
		t.Fatalf("want current=3 longest=9, got current=%d longest=%d", got.Current, got.Longest)
	}
}

func TestCompleteResetAfterGap(t *testing.T) {
	last := day(-3)
	s := State{Current: 6, Longest: 8, LastCompleted: &last}

	got, err := Complete(s, day(0))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Current != 1 {
		t.Fatalf("current: want=1 got=%d", got.Current)
	}
	if got.Longest != 8 {
		t.Fatalf("longest: want=8 got=%d", got.Longest)
	}
}

func TestCompleteFirstEverAndIdempotent(t *testing.T) {
	got, err := Complete(State{}, day(0))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Current != 1 || got.Longest != 1 {
		t.Fatalf("first completion: got current=%d longest=%d", got.Current, got.Longest)
	}

	again, err := Complete(got, day(0))
	if err != nil {
		t.Fatalf("Complete again: %v", err)
	}
	if again.Current != 1 || again.Longest != 1 {
		t.Fatalf("same-day completion must be a no-op, got current=%d longest=%d", again.Current, again.Longest)
	}
}

func TestCompleteBackfillNeedsRecalculation(t *testing.T) {
	last := day(0)
	s := State{Current: 1, Longest: 1, LastCompleted: &last}

	if _, err := Complete(s, day(-1)); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("want ErrOutOfOrder got %v", err)
	}
}

func TestCompleteRefusesBrokenComputedState(t *testing.T) {
	s, err := Compute(days(-4, -3, -2), today)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if _, err := Complete(s, day(-1)); !errors.Is(err, ErrStaleState) {
		t.Fatalf("want ErrStaleState got %v", err)
	}
}

// applyCompletion mirrors the persistence path: incremental first, full recalculation when refused.
func applyCompletion(t *testing.T, s State, history []civil.Date, d civil.Date) (State, []civil.Date) {
	t.Helper()
	history = Normalize(append(append([]civil.Date{}, history...), d))
	next, err := Complete(s, d)
	if errors.Is(err, ErrOutOfOrder) || errors.Is(err, ErrStaleState) {
		next, err = Recalculate(history, today)
	}
	if err != nil {
		t.Fatalf("complete %s: %v", d, err)
	}
	return next, history
}

func TestCompleteAfterRecomputedState(t *testing.T) {
	tests := []struct {
		name    string
		start   func(t *testing.T) (State, []civil.Date)
		add     []int
		current int
		longest int
	}{
		{
			name: "toggle off then on again",
			start: func(t *testing.T) (State, []civil.Date) {
				s, err := Uncomplete(days(-2, -1), day(-1), today)
				if err != nil {
					t.Fatalf("Uncomplete: %v", err)
				}
				return s, days(-2)
			},
			add:     []int{-1},
			current: 2,
			longest: 2,
		},
		{
			name: "uncomplete today then complete again",
			start: func(t *testing.T) (State, []civil.Date) {
				s, err := Uncomplete(days(-2, -1, 0), day(0), today)
				if err != nil {
					t.Fatalf("Uncomplete: %v", err)
				}
				return s, days(-2, -1)
			},
			add:     []int{0},
			current: 3,
			longest: 3,
		},
		{
			name: "recompute past grace then extend the run",
			start: func(t *testing.T) (State, []civil.Date) {
				s, err := Recalculate(days(-4, -3, -2), today)
				if err != nil {
					t.Fatalf("Recalculate: %v", err)
				}
				return s, days(-4, -3, -2)
			},
			add:     []int{-1},
			current: 4,
			longest: 4,
		},
		{
			name: "backfill then forward completion",
			start: func(t *testing.T) (State, []civil.Date) {
				s, err := Compute(days(-3, -1), today)
				if err != nil {
					t.Fatalf("Compute: %v", err)
				}
				return s, days(-3, -1)
			},
			add:     []int{-2, 0},
			current: 4,
			longest: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, history := tt.start(t)
			for _, o := range tt.add {
				s, history = applyCompletion(t, s, history, day(o))
			}
			truth, err := Compute(history, today)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if s.Current != tt.current || truth.Current != tt.current {
				t.Errorf("current: want=%d got=%d computed=%d", tt.current, s.Current, truth.Current)
			}
			if s.Longest != tt.longest || truth.Longest != tt.longest {
				t.Errorf("longest: want=%d got=%d computed=%d", tt.longest, s.Longest, truth.Longest)
			}
		})
	}
}

func TestUncompleteRecalculatesFromHistory(t *testing.T) {
	history := days(-2, -1, 0)
	before, err := Compute(history, today)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if before.Current != 3 {
		t.Fatalf("precondition: want current=3 got=%d", before.Current)
	}

	after, err := Uncomplete(history, day(-1), today)
	if err != nil {
		t.Fatalf("Uncomplete: %v", err)
	}
	if after.Current != 1 {
		t.Errorf("current: want=1 got=%d", after.Current)
	}
	if after.Longest != 1 {
		t.Errorf("longest: want=1 got=%d", after.Longest)
	}
}

func TestUncompleteLastCompletion(t *testing.T) {
	after, err := Uncomplete(days(0), day(0), today)
	if err != nil {
		t.Fatalf("Uncomplete: %v", err)
	}
	if after.Current != 0 || after.Longest != 0 || after.LastCompleted != nil {
		t.Fatalf("want zero state, got %+v", after)
	}
}

func TestDaysUntilBreak(t *testing.T) {
	tests := []struct {
		name string
		last *civil.Date
		want int
	}{
		{"never completed", nil, 0},
		{"completed today", ptr(day(0)), 2},
		{"completed yesterday", ptr(day(-1)), 1},
		{"completed two days ago", ptr(day(-2)), 0},
		{"completed long ago", ptr(day(-20)), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DaysUntilBreak(State{LastCompleted: tt.last}, today)
			if got != tt.want {
				t.Fatalf("want=%d got=%d", tt.want, got)
			}
		})
	}
}

func TestGracePeriodMonotonicity(t *testing.T) {
	last := day(0)
	s := State{Current: 1, Longest: 1, LastCompleted: &last}

	prev := DaysUntilBreak(s, last)
	for offset := 1; offset <= 5; offset++ {
		got := DaysUntilBreak(s, last.AddDays(offset))
		if got > prev {
			t.Fatalf("offset %d: days until break increased from %d to %d", offset, prev, got)
		}
		prev = got
	}
	if !IsOnGracePeriod(s, last.AddDays(1)) {
		t.Fatalf("expected grace period the day after last completion")
	}
	if IsOnGracePeriod(s, last.AddDays(2)) {
		t.Fatalf("grace period must be over two days after last completion")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(days(0, -2, -1, 0, -2))
	want := days(-2, -1, 0)
	if len(got) != len(want) {
		t.Fatalf("len: want=%d got=%d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: want=%v got=%v", i, want[i], got[i])
		}
	}
}

func TestSummarize(t *testing.T) {
	items := []ItemStreak{
		NewItemStreak(uuid.New(), "stretch", State{Current: 3, Longest: 5, LastCompleted: ptr(day(0))}, today),
		NewItemStreak(uuid.New(), "read", State{Current: 7, Longest: 7, LastCompleted: ptr(day(-1))}, today),
		NewItemStreak(uuid.New(), "journal", State{Current: 0, Longest: 2, LastCompleted: ptr(day(-9))}, today),
	}

	got := Summarize(items)
	if got.TotalHabits != 3 || got.ActiveStreaks != 2 || got.LongestActiveStreak != 7 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	if !items[1].IsOnGrace || items[1].DaysUntilBreak != 1 {
		t.Fatalf("read: want grace with 1 day left, got %+v", items[1])
	}
}

func ptr(d civil.Date) *civil.Date { return &d }
