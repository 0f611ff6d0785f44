package identity

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type SourceKind string

const (
	SourceHabit      SourceKind = "habit"
	SourceStackBonus SourceKind = "stack_bonus"
	SourceTask       SourceKind = "task"
	SourceProof      SourceKind = "proof"
)

const (
	HabitWeight      = 1
	StackBonusWeight = 2
	TaskWeight       = 2
)

// Intensity of an identity proof. The numeric value is the vote weight.
type Intensity int

const (
	Easy     Intensity = 1
	Moderate Intensity = 2
	Hard     Intensity = 3
)

var ErrInvalidIntensity = errors.New("invalid proof intensity")

func ParseIntensity(s string) (Intensity, error) {
	switch s {
	case "Easy", "easy":
		return Easy, nil
	case "Moderate", "moderate":
		return Moderate, nil
	case "Hard", "hard":
		return Hard, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrInvalidIntensity)
}

func (i Intensity) Valid() bool { return i >= Easy && i <= Hard }

func (i Intensity) String() string {
	switch i {
	case Easy:
		return "Easy"
	case Moderate:
		return "Moderate"
	case Hard:
		return "Hard"
	}
	return fmt.Sprintf("Intensity(%d)", int(i))
}

type Vote struct {
	IdentityID uuid.UUID  `json:"identity_id"`
	Date       civil.Date `json:"occurred_date"`
	Weight     int        `json:"weight"`
	Source     SourceKind `json:"source_kind"`
}

// Stack is a habit stack attributed to an identity, with each item's completion dates.
type Stack struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Items      []StackItem
}

type StackItem struct {
	ID          uuid.UUID
	Completions []civil.Date
}

type TaskCompletion struct {
	TaskID      uuid.UUID
	IdentityID  uuid.UUID
	CompletedOn civil.Date
}

type Proof struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	Date       civil.Date
	Intensity  Intensity
}

// Sources is everything votes are derived from. Votes are never stored.
type Sources struct {
	Stacks []Stack
	Tasks  []TaskCompletion
	Proofs []Proof
}

// ProjectVotes derives the vote feed from completions, tasks and proofs.
// A stack earns one bonus per day on which every one of its items was completed.
func ProjectVotes(src Sources) ([]Vote, error) {
	var votes []Vote

	for _, stack := range src.Stacks {
		perDay := make(map[civil.Date]int)
		for _, item := range stack.Items {
			seen := make(map[civil.Date]bool, len(item.Completions))
			for _, d := range item.Completions {
				if seen[d] {
					continue
				}
				seen[d] = true
				perDay[d]++
				votes = append(votes, Vote{IdentityID: stack.IdentityID, Date: d, Weight: HabitWeight, Source: SourceHabit})
			}
		}
		if len(stack.Items) == 0 {
			continue
		}
		for d, n := range perDay {
			if n == len(stack.Items) {
				votes = append(votes, Vote{IdentityID: stack.IdentityID, Date: d, Weight: StackBonusWeight, Source: SourceStackBonus})
			}
		}
	}

	for _, task := range src.Tasks {
		votes = append(votes, Vote{IdentityID: task.IdentityID, Date: task.CompletedOn, Weight: TaskWeight, Source: SourceTask})
	}

	for _, p := range src.Proofs {
		if !p.Intensity.Valid() {
			return nil, fmt.Errorf("proof %s: %w", p.ID, ErrInvalidIntensity)
		}
		votes = append(votes, Vote{IdentityID: p.IdentityID, Date: p.Date, Weight: int(p.Intensity), Source: SourceProof})
	}

	return votes, nil
}

// Breakdown is the weighted vote total for one day, split by source.
type Breakdown struct {
	Total      int `json:"total_votes"`
	Habit      int `json:"habit_votes"`
	StackBonus int `json:"stack_bonus_votes"`
	Task       int `json:"task_votes"`
	Proof      int `json:"proof_votes"`
	Count      int `json:"vote_count"`
}

func Tally(votes []Vote, d civil.Date) Breakdown {
	var b Breakdown
	for _, v := range votes {
		if v.Date != d {
			continue
		}
		b.Count++
		b.Total += v.Weight
		switch v.Source {
		case SourceHabit:
			b.Habit += v.Weight
		case SourceStackBonus:
			b.StackBonus += v.Weight
		case SourceTask:
			b.Task += v.Weight
		case SourceProof:
			b.Proof += v.Weight
		}
	}
	return b
}

// ByIdentity groups a mixed vote feed per identity.
func ByIdentity(votes []Vote) map[uuid.UUID][]Vote {
	out := make(map[uuid.UUID][]Vote)
	for _, v := range votes {
		out[v.IdentityID] = append(out[v.IdentityID], v)
	}
	return out
}

func validSource(k SourceKind) bool {
	switch k {
	case SourceHabit, SourceStackBonus, SourceTask, SourceProof:
		return true
	}
	return false
}
