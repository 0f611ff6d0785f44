package streak

import (
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

var (
	ErrUnsortedHistory  = errors.New("completion history must be strictly ascending")
	ErrFutureCompletion = errors.New("completion date is after the as-of date")
	ErrOutOfOrder       = errors.New("completion predates last completed date; recalculate from history")
	ErrStaleState       = errors.New("state has a broken current streak; recalculate from history")
)

// GraceDays is how long a streak survives without a new completion.
// A completion yesterday still counts as an alive streak today.
const GraceDays = 1

type Completion struct {
	ItemID uuid.UUID  `json:"habit_item_id" db:"habit_stack_item_id"`
	Date   civil.Date `json:"completed_date" db:"completed_date"`
}

type State struct {
	Current       int         `json:"current_streak" db:"current_streak"`
	Longest       int         `json:"longest_streak" db:"longest_streak"`
	LastCompleted *civil.Date `json:"last_completed_date" db:"last_completed_date"`
}

// Compute walks a sorted completion history and returns the streak state as of asOf.
// Current is 0 once the most recent completion falls outside the grace window.
func Compute(history []civil.Date, asOf civil.Date) (State, error) {
	if err := validate(history, asOf); err != nil {
		return State{}, err
	}
	if len(history) == 0 {
		return State{}, nil
	}

	last := history[len(history)-1]
	state := State{
		Longest:       longestRun(history),
		LastCompleted: &last,
	}

	if asOf.DaysSince(last) > GraceDays {
		return state, nil
	}

	current := 1
	for i := len(history) - 1; i > 0; i-- {
		if history[i].DaysSince(history[i-1]) != 1 {
			break
		}
		current++
	}
	state.Current = current
	return state, nil
}

// Recalculate rebuilds both counters from the full history. Used after retroactive edits.
func Recalculate(history []civil.Date, asOf civil.Date) (State, error) {
	return Compute(history, asOf)
}

// Complete applies a single new completion to an existing state without needing history.
// A state whose Current was zeroed by Compute no longer knows the run ending at LastCompleted,
// so it is refused with ErrStaleState and the caller must recalculate.
func Complete(s State, day civil.Date) (State, error) {
	next := s
	switch {
	case s.LastCompleted == nil:
		next.Current = 1
	case day == *s.LastCompleted:
		return s, nil
	case day.Before(*s.LastCompleted):
		return s, fmt.Errorf("complete %s after %s: %w", day, *s.LastCompleted, ErrOutOfOrder)
	case s.Current == 0:
		return s, fmt.Errorf("complete %s after broken streak ending %s: %w", day, *s.LastCompleted, ErrStaleState)
	case day.DaysSince(*s.LastCompleted) == 1:
		next.Current = s.Current + 1
	default:
		next.Current = 1
	}

	d := day
	next.LastCompleted = &d
	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	return next, nil
}

// Uncomplete removes a completion and recomputes from the remaining history.
// Removing an interior date can split one streak into two, so nothing is decremented in place.
func Uncomplete(history []civil.Date, removed civil.Date, asOf civil.Date) (State, error) {
	remaining := make([]civil.Date, 0, len(history))
	for _, d := range history {
		if d != removed {
			remaining = append(remaining, d)
		}
	}
	return Compute(remaining, asOf)
}

// DaysUntilBreak is the grace boundary minus asOf: 1 the day after the last completion,
// 0 once the streak is broken or when nothing was ever completed.
func DaysUntilBreak(s State, asOf civil.Date) int {
	if s.LastCompleted == nil {
		return 0
	}
	boundary := s.LastCompleted.AddDays(GraceDays + 1)
	days := boundary.DaysSince(asOf)
	if days < 0 {
		return 0
	}
	return days
}

func IsOnGracePeriod(s State, asOf civil.Date) bool {
	return s.LastCompleted != nil && asOf.DaysSince(*s.LastCompleted) == GraceDays
}

// Normalize sorts and dedupes dates for callers that cannot guarantee ordering.
func Normalize(dates []civil.Date) []civil.Date {
	out := make([]civil.Date, len(dates))
	copy(out, dates)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	n := 0
	for i, d := range out {
		if i > 0 && d == out[n-1] {
			continue
		}
		out[n] = d
		n++
	}
	return out[:n]
}

func validate(history []civil.Date, asOf civil.Date) error {
	for i, d := range history {
		if !d.IsValid() {
			return fmt.Errorf("invalid completion date at index %d: %q", i, d.String())
		}
		if d.After(asOf) {
			return fmt.Errorf("%s after %s: %w", d, asOf, ErrFutureCompletion)
		}
		if i > 0 && !history[i-1].Before(d) {
			return fmt.Errorf("index %d (%s) not after %s: %w", i, d, history[i-1], ErrUnsortedHistory)
		}
	}
	return nil
}

func longestRun(history []civil.Date) int {
	longest, run := 0, 0
	for i := range history {
		if i > 0 && history[i].DaysSince(history[i-1]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
