package milestone

import (
	"encoding/json"

	"github.com/google/uuid"
)

// seedNamespace derives stable definition IDs from codes so reseeding never changes them.
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("momentum/milestones"))

func DefinitionID(code string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(code))
}

type seed struct {
	code    string
	icon    string
	trigger EventType
	rule    Rule
	order   int
}

var catalogue = []seed{
	{"first_login", "🎉", UserLoggedIn, CountRule{FieldLoginCount, 1}, 1},
	{"logins_7", "📅", UserLoggedIn, CountRule{FieldLoginCount, 7}, 2},
	{"logins_30", "🌟", UserLoggedIn, CountRule{FieldLoginCount, 30}, 3},
	{"return_after_2_weeks", "🔄", UserLoggedIn, ReturnAfterGapRule{14}, 4},

	{"first_habit", "✅", HabitCompleted, CountRule{FieldTotalHabitsCompleted, 1}, 10},
	{"habits_10", "🔥", HabitCompleted, CountRule{FieldTotalHabitsCompleted, 10}, 11},
	{"habits_50", "💪", HabitCompleted, CountRule{FieldTotalHabitsCompleted, 50}, 12},
	{"habits_100", "🏆", HabitCompleted, CountRule{FieldTotalHabitsCompleted, 100}, 13},
	{"habits_5_in_week", "⚡", HabitCompleted, WindowCountRule{Count: 5, Days: 7}, 14},

	{"first_task", "📝", TaskCompleted, CountRule{FieldTotalTasksCompleted, 1}, 20},
	{"tasks_10", "📋", TaskCompleted, CountRule{FieldTotalTasksCompleted, 10}, 21},
	{"tasks_50", "🎯", TaskCompleted, CountRule{FieldTotalTasksCompleted, 50}, 22},

	{"first_journal", "📖", JournalEntryCreated, CountRule{FieldTotalJournalEntries, 1}, 30},
	{"journals_10", "✍️", JournalEntryCreated, CountRule{FieldTotalJournalEntries, 10}, 31},

	{"first_identity_proof", "🪪", IdentityProofAdded, CountRule{FieldTotalIdentityProofs, 1}, 40},
	{"identity_proofs_10", "🌱", IdentityProofAdded, CountRule{FieldTotalIdentityProofs, 10}, 41},
	{"identity_proofs_50", "🌳", IdentityProofAdded, CountRule{FieldTotalIdentityProofs, 50}, 42},

	{"wins_25", "🎖️", HabitCompleted, CountRule{FieldTotalWins, 25}, 50},
	{"wins_100", "🥇", HabitCompleted, CountRule{FieldTotalWins, 100}, 51},
	{"wins_500", "👑", HabitCompleted, CountRule{FieldTotalWins, 500}, 52},
}

// DefaultDefinitions is the built-in catalogue inserted at startup when missing.
func DefaultDefinitions() []DefinitionRecord {
	out := make([]DefinitionRecord, 0, len(catalogue))
	for _, s := range catalogue {
		ruleType, data, err := EncodeRule(s.rule)
		if err != nil {
			// the catalogue only holds plain structs
			panic(err)
		}
		out = append(out, DefinitionRecord{
			ID:             DefinitionID(s.code),
			Code:           s.code,
			TitleKey:       "milestones." + s.code + ".title",
			DescriptionKey: "milestones." + s.code + ".description",
			Icon:           s.icon,
			TriggerEvent:   s.trigger,
			RuleType:       string(ruleType),
			RuleData:       json.RawMessage(data),
			AnimationType:  DefaultAnimation,
			SortOrder:      s.order,
			IsActive:       true,
		})
	}
	return out
}
