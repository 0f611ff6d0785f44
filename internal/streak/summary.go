package streak

import (
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// ItemStreak is the per-habit view shown on the analytics screen.
type ItemStreak struct {
	ItemID         uuid.UUID   `json:"habit_item_id"`
	Name           string      `json:"name"`
	CurrentStreak  int         `json:"current_streak"`
	LongestStreak  int         `json:"longest_streak"`
	LastCompleted  *civil.Date `json:"last_completed_date"`
	IsOnGrace      bool        `json:"is_on_grace_period"`
	DaysUntilBreak int         `json:"days_until_streak_breaks"`
}

type Summary struct {
	TotalHabits         int          `json:"total_habits"`
	ActiveStreaks       int          `json:"active_streaks"`
	LongestActiveStreak int          `json:"longest_active_streak"`
	Streaks             []ItemStreak `json:"streaks"`
}

func NewItemStreak(itemID uuid.UUID, name string, s State, asOf civil.Date) ItemStreak {
	return ItemStreak{
		ItemID:         itemID,
		Name:           name,
		CurrentStreak:  s.Current,
		LongestStreak:  s.Longest,
		LastCompleted:  s.LastCompleted,
		IsOnGrace:      IsOnGracePeriod(s, asOf),
		DaysUntilBreak: DaysUntilBreak(s, asOf),
	}
}

func Summarize(items []ItemStreak) Summary {
	summary := Summary{
		TotalHabits: len(items),
		Streaks:     items,
	}
	if summary.Streaks == nil {
		summary.Streaks = []ItemStreak{}
	}

	for _, it := range items {
		if it.CurrentStreak <= 0 {
			continue
		}
		summary.ActiveStreaks++
		if it.CurrentStreak > summary.LongestActiveStreak {
			summary.LongestActiveStreak = it.CurrentStreak
		}
	}
	return summary
}
