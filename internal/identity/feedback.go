package identity

import (
	"bytes"
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Feedback is the per-identity reinforcement shown after today's actions.
type Feedback struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Name       string    `json:"name"`
	Breakdown
	Message string `json:"reinforcement_message"`
}

func NewFeedback(votes []Vote, day civil.Date, identityID uuid.UUID, name string) Feedback {
	var own []Vote
	for _, v := range votes {
		if v.IdentityID == identityID {
			own = append(own, v)
		}
	}
	b := Tally(own, day)
	return Feedback{
		IdentityID: identityID,
		Name:       name,
		Breakdown:  b,
		Message:    ReinforcementMessage(name, b.Total),
	}
}

// FeedbackFor builds feedback for every named identity with at least one vote on day,
// most votes first, then by name and identity ID.
func FeedbackFor(votes []Vote, day civil.Date, names map[uuid.UUID]string) []Feedback {
	out := make([]Feedback, 0, len(names))
	for id, name := range names {
		f := NewFeedback(votes, day, id, name)
		if f.Total > 0 {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return bytes.Compare(out[i].IdentityID[:], out[j].IdentityID[:]) < 0
	})
	return out
}

func ReinforcementMessage(name string, total int) string {
	switch {
	case total == 1:
		return fmt.Sprintf("You showed up as %s today!", name)
	case total == 2:
		return fmt.Sprintf("Two votes for %s!", name)
	case total >= 3:
		return fmt.Sprintf("Amazing! %d votes for %s today!", total, name)
	default:
		return fmt.Sprintf("Keep building %s!", name)
	}
}
