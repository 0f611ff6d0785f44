package identity

import (
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type Status string

const (
	Dormant     Status = "Dormant"
	Forming     Status = "Forming"
	Emerging    Status = "Emerging"
	Stabilizing Status = "Stabilizing"
	Strong      Status = "Strong"
	Automatic   Status = "Automatic"
)

type Trend string

const (
	TrendUp      Trend = "Up"
	TrendDown    Trend = "Down"
	TrendNeutral Trend = "Neutral"
)

var (
	ErrInvalidWeight      = errors.New("vote weight must be positive")
	ErrUnknownSource      = errors.New("unknown vote source kind")
	ErrForeignVote        = errors.New("vote belongs to another identity")
	ErrNegativeAccountAge = errors.New("account age must not be negative")
)

// Scorer holds the tunables of the score curve. The zero value is not usable; start from DefaultScorer.
type Scorer struct {
	// Weighted votes in a day that count as a fully maintained day.
	MaintenanceTarget int
	MaxWindowDays     int
	MinWindowDays     int
	// Per-day multiplier applied to older days: yesterday weighs 1, the day before RecencyDecay, ...
	RecencyDecay float64
	// Multiplier applied once per consecutive empty day counting back from yesterday.
	InactivityDecay float64

	BeginnerDays         int
	BeginnerFloorBase    float64
	BeginnerFloorPerDay  float64
	BeginnerActivityDays int

	TrendSpanDays int
	TrendMargin   int

	MinAgeForNumericScore int
}

func DefaultScorer() Scorer {
	return Scorer{
		MaintenanceTarget:     5,
		MaxWindowDays:         14,
		MinWindowDays:         2,
		RecencyDecay:          0.85,
		InactivityDecay:       0.985,
		BeginnerDays:          14,
		BeginnerFloorBase:     30,
		BeginnerFloorPerDay:   2,
		BeginnerActivityDays:  3,
		TrendSpanDays:         3,
		TrendMargin:           1,
		MinAgeForNumericScore: 0,
	}
}

type ScoreInput struct {
	IdentityID uuid.UUID
	AsOf       civil.Date
	Votes      []Vote
	// Days between the identity's first recorded action and AsOf.
	AccountAgeDays int
	// False when the identity has never had a single action.
	HasHistory bool
}

type Snapshot struct {
	IdentityID       uuid.UUID `json:"identity_id"`
	Score            int       `json:"score"`
	Status           Status    `json:"status"`
	Trend            Trend     `json:"trend"`
	AccountAgeDays   int       `json:"account_age_days"`
	ShowNumericScore bool      `json:"show_numeric_score"`
	TodayVotes       int       `json:"today_votes"`
}

func (s Scorer) Compute(in ScoreInput) (Snapshot, error) {
	if in.AccountAgeDays < 0 {
		return Snapshot{}, fmt.Errorf("identity %s: %w", in.IdentityID, ErrNegativeAccountAge)
	}
	perDay, todayCount, err := bucket(in)
	if err != nil {
		return Snapshot{}, err
	}

	if !in.HasHistory {
		return Snapshot{
			IdentityID: in.IdentityID,
			Status:     Dormant,
			Trend:      TrendNeutral,
			TodayVotes: todayCount,
		}, nil
	}

	score := s.rawScore(perDay, in.AsOf, in.AccountAgeDays)
	score = s.applyInactivity(score, perDay, in.AsOf, s.window(in.AccountAgeDays))
	score = s.applyBeginnerFloor(score, perDay, in.AsOf, in.AccountAgeDays)
	rounded := int(math.Round(clamp(score, 0, 100)))

	return Snapshot{
		IdentityID:       in.IdentityID,
		Score:            rounded,
		Status:           StatusFor(rounded),
		Trend:            s.trend(perDay, in.AsOf),
		AccountAgeDays:   in.AccountAgeDays,
		ShowNumericScore: in.AccountAgeDays >= s.MinAgeForNumericScore,
		TodayVotes:       todayCount,
	}, nil
}

// StatusFor maps a 0-100 score onto the six fixed tiers.
func StatusFor(score int) Status {
	switch {
	case score >= 90:
		return Automatic
	case score >= 75:
		return Strong
	case score >= 60:
		return Stabilizing
	case score >= 40:
		return Emerging
	case score >= 25:
		return Forming
	default:
		return Dormant
	}
}

// AccountAge returns the number of days from the first action to asOf, or false when there is none.
func AccountAge(firstAction *civil.Date, asOf civil.Date) (int, bool) {
	if firstAction == nil {
		return 0, false
	}
	age := asOf.DaysSince(*firstAction)
	if age < 0 {
		age = 0
	}
	return age, true
}

func (s Scorer) window(ageDays int) int {
	w := ageDays + 3
	if w > s.MaxWindowDays {
		w = s.MaxWindowDays
	}
	if w < s.MinWindowDays {
		w = s.MinWindowDays
	}
	return w
}

// rawScore excludes today so that a user who has not acted yet is not penalized mid-day.
func (s Scorer) rawScore(perDay map[civil.Date]int, asOf civil.Date, ageDays int) float64 {
	w := s.window(ageDays)
	var raw, max float64
	weight := 1.0
	for offset := 1; offset <= w; offset++ {
		votes := perDay[asOf.AddDays(-offset)]
		fulfillment := math.Min(1, float64(votes)/float64(s.MaintenanceTarget))
		raw += fulfillment * weight
		max += weight
		weight *= s.RecencyDecay
	}
	if max == 0 {
		return 0
	}
	return raw / max * 100
}

func (s Scorer) applyInactivity(score float64, perDay map[civil.Date]int, asOf civil.Date, w int) float64 {
	inactive := 0
	for offset := 1; offset <= w; offset++ {
		if perDay[asOf.AddDays(-offset)] != 0 {
			break
		}
		inactive++
	}
	if inactive == 0 {
		return score
	}
	return score * math.Pow(s.InactivityDecay, float64(inactive))
}

// applyBeginnerFloor keeps new identities out of Dormant while they are still active.
func (s Scorer) applyBeginnerFloor(score float64, perDay map[civil.Date]int, asOf civil.Date, ageDays int) float64 {
	if ageDays >= s.BeginnerDays {
		return score
	}
	active := false
	for offset := 0; offset <= s.BeginnerActivityDays; offset++ {
		if perDay[asOf.AddDays(-offset)] > 0 {
			active = true
			break
		}
	}
	if !active {
		return score
	}
	floor := s.BeginnerFloorBase + float64(ageDays)*s.BeginnerFloorPerDay
	return math.Max(score, floor)
}

func (s Scorer) trend(perDay map[civil.Date]int, asOf civil.Date) Trend {
	recent, previous := 0, 0
	for offset := 1; offset <= s.TrendSpanDays; offset++ {
		recent += perDay[asOf.AddDays(-offset)]
		previous += perDay[asOf.AddDays(-offset-s.TrendSpanDays)]
	}
	switch {
	case recent > previous+s.TrendMargin:
		return TrendUp
	case recent < previous-s.TrendMargin:
		return TrendDown
	default:
		return TrendNeutral
	}
}

func bucket(in ScoreInput) (map[civil.Date]int, int, error) {
	perDay := make(map[civil.Date]int)
	today := 0
	for i, v := range in.Votes {
		if v.IdentityID != in.IdentityID {
			return nil, 0, fmt.Errorf("vote %d for %s: %w", i, v.IdentityID, ErrForeignVote)
		}
		if v.Weight <= 0 {
			return nil, 0, fmt.Errorf("vote %d weight %d: %w", i, v.Weight, ErrInvalidWeight)
		}
		if !validSource(v.Source) {
			return nil, 0, fmt.Errorf("vote %d source %q: %w", i, v.Source, ErrUnknownSource)
		}
		perDay[v.Date] += v.Weight
		if v.Date == in.AsOf {
			today++
		}
	}
	return perDay, today, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
