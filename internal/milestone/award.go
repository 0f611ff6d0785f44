package milestone

import (
	"time"

	"github.com/google/uuid"
)

// Award is a milestone a user has earned. At most one exists per user and definition.
type Award struct {
	ID             uuid.UUID `json:"id" db:"id"`
	DefinitionID   uuid.UUID `json:"milestone_definition_id" db:"milestone_definition_id"`
	Code           string    `json:"code" db:"code"`
	TitleKey       string    `json:"title_key" db:"title_key"`
	DescriptionKey string    `json:"description_key" db:"description_key"`
	Icon           string    `json:"icon" db:"icon"`
	AnimationType  string    `json:"animation_type" db:"animation_type"`
	AnimationData  *string   `json:"animation_data" db:"animation_data"`
	AwardedAt      time.Time `json:"awarded_at" db:"awarded_at"`
	HasBeenSeen    bool      `json:"has_been_seen" db:"has_been_seen"`
}

func NewAward(id uuid.UUID, f Fired, at time.Time) Award {
	return Award{
		ID:             id,
		DefinitionID:   f.DefinitionID,
		Code:           f.Code,
		TitleKey:       f.TitleKey,
		DescriptionKey: f.DescriptionKey,
		Icon:           f.Icon,
		AnimationType:  f.AnimationType,
		AnimationData:  f.AnimationData,
		AwardedAt:      at,
	}
}

// MaxWindowDays is the widest window_count rule among defs, or 0 when there is none.
func MaxWindowDays(defs []Definition) int {
	max := 0
	for _, d := range defs {
		if w, ok := d.Rule.(WindowCountRule); ok && w.Days > max {
			max = w.Days
		}
	}
	return max
}
