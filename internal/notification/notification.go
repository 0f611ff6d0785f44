package notification

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"momentumAPI/internal/milestone"
)

type Kind string

const (
	KindMilestone  Kind = "milestone_awarded"
	KindStreakRisk Kind = "streak_risk"
)

type DeviceToken struct {
	Token    string    `json:"token" db:"token"`
	Platform string    `json:"platform" db:"platform"`
	AddedAt  time.Time `json:"added_at" db:"added_at"`
	LastUsed time.Time `json:"last_used" db:"last_used"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}

// Push is one message fanned out to all of a user's devices.
type Push struct {
	UserID uuid.UUID
	Kind   Kind
	Title  string
	Body   string
	Data   map[string]string
}

func MilestonePush(userID uuid.UUID, f milestone.Fired) Push {
	return Push{
		UserID: userID,
		Kind:   KindMilestone,
		Title:  fmt.Sprintf("%s Milestone unlocked", f.Icon),
		Body:   f.TitleKey,
		Data: map[string]string{
			"type":                    string(KindMilestone),
			"code":                    f.Code,
			"title_key":               f.TitleKey,
			"description_key":         f.DescriptionKey,
			"milestone_definition_id": f.DefinitionID.String(),
			"animation_type":          f.AnimationType,
		},
	}
}

func StreakRiskPush(userID, itemID uuid.UUID, itemName string, streak int) Push {
	return Push{
		UserID: userID,
		Kind:   KindStreakRisk,
		Title:  "Keep your streak alive",
		Body:   fmt.Sprintf("Your %d-day %s streak ends tonight. Complete it today!", streak, itemName),
		Data: map[string]string{
			"type":           string(KindStreakRisk),
			"habit_item_id":  itemID.String(),
			"current_streak": strconv.Itoa(streak),
		},
	}
}
