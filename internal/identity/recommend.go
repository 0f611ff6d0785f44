package identity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type Mode string

const (
	ModeWeakest   Mode = "weakest"
	ModeStrongest Mode = "strongest"
)

var ErrInvalidMode = errors.New("recommendation mode must be weakest or strongest")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeWeakest:
		return ModeWeakest, nil
	case ModeStrongest:
		return ModeStrongest, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidMode)
}

// Rank orders snapshots by score, highest first. Ties keep their input order.
func Rank(snapshots []Snapshot) []Snapshot {
	out := make([]Snapshot, len(snapshots))
	copy(out, snapshots)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

type Recommendation struct {
	IdentityID *uuid.UUID `json:"recommended_identity_id"`
	Mode       Mode       `json:"mode"`
	Options    []Option   `json:"options"`
}

type Option struct {
	Snapshot
	Recommended bool `json:"recommended"`
}

// Recommend picks the identity needing attention (lowest score) or the strongest one.
// The first identity in input order wins a tie.
func Recommend(snapshots []Snapshot, mode Mode) Recommendation {
	rec := Recommendation{Mode: mode, Options: make([]Option, 0, len(snapshots))}
	if len(snapshots) == 0 {
		return rec
	}

	pick := 0
	for i, s := range snapshots[1:] {
		best := snapshots[pick].Score
		if (mode == ModeStrongest && s.Score > best) || (mode != ModeStrongest && s.Score < best) {
			pick = i + 1
		}
	}
	id := snapshots[pick].IdentityID
	rec.IdentityID = &id

	for i, s := range snapshots {
		rec.Options = append(rec.Options, Option{Snapshot: s, Recommended: i == pick})
	}
	return rec
}
