package identity

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

func TestProjectVotesDailyBreakdown(t *testing.T) {
	id := uuid.New()
	src := Sources{
		Stacks: []Stack{
			{ID: uuid.New(), IdentityID: id, Items: []StackItem{{ID: uuid.New(), Completions: []civil.Date{asOf}}}},
		},
		Tasks: []TaskCompletion{{TaskID: uuid.New(), IdentityID: id, CompletedOn: asOf}},
	}

	votes, err := ProjectVotes(src)
	if err != nil {
		t.Fatalf("ProjectVotes: %v", err)
	}
	b := Tally(votes, asOf)
	if b.Total != 5 || b.Habit != 1 || b.StackBonus != 2 || b.Task != 2 || b.Proof != 0 {
		t.Fatalf("want total=5 (1+2+2), got %+v", b)
	}
	if b.Count != 3 {
		t.Fatalf("vote records: want=3 got=%d", b.Count)
	}

	snap := compute(t, ScoreInput{IdentityID: id, AsOf: asOf, Votes: votes, HasHistory: true})
	if snap.TodayVotes != 3 {
		t.Fatalf("today votes counts records: want=3 got=%d", snap.TodayVotes)
	}
}

func TestProjectVotesStackBonusNeedsEveryItem(t *testing.T) {
	id := uuid.New()
	yesterday := asOf.AddDays(-1)
	src := Sources{Stacks: []Stack{{
		ID:         uuid.New(),
		IdentityID: id,
		Items: []StackItem{
			{ID: uuid.New(), Completions: []civil.Date{yesterday, asOf}},
			{ID: uuid.New(), Completions: []civil.Date{yesterday}},
		},
	}}}

	votes, err := ProjectVotes(src)
	if err != nil {
		t.Fatalf("ProjectVotes: %v", err)
	}
	if got := Tally(votes, yesterday); got.StackBonus != StackBonusWeight || got.Habit != 2 {
		t.Fatalf("yesterday: want full stack bonus, got %+v", got)
	}
	if got := Tally(votes, asOf); got.StackBonus != 0 || got.Habit != 1 {
		t.Fatalf("today: partial stack must not earn a bonus, got %+v", got)
	}
}

func TestProjectVotesDedupesCompletions(t *testing.T) {
	id := uuid.New()
	src := Sources{Stacks: []Stack{{
		ID:         uuid.New(),
		IdentityID: id,
		Items:      []StackItem{{ID: uuid.New(), Completions: []civil.Date{asOf, asOf}}},
	}}}

	votes, err := ProjectVotes(src)
	if err != nil {
		t.Fatalf("ProjectVotes: %v", err)
	}
	if got := Tally(votes, asOf); got.Habit != 1 || got.StackBonus != StackBonusWeight {
		t.Fatalf("duplicate completion counted twice: %+v", got)
	}
}

func TestProjectVotesProofIntensity(t *testing.T) {
	id := uuid.New()
	src := Sources{Proofs: []Proof{
		{ID: uuid.New(), IdentityID: id, Date: asOf, Intensity: Easy},
		{ID: uuid.New(), IdentityID: id, Date: asOf, Intensity: Hard},
	}}
	votes, err := ProjectVotes(src)
	if err != nil {
		t.Fatalf("ProjectVotes: %v", err)
	}
	if got := Tally(votes, asOf); got.Proof != 4 {
		t.Fatalf("proof votes: want=4 got=%d", got.Proof)
	}

	src.Proofs = append(src.Proofs, Proof{ID: uuid.New(), IdentityID: id, Date: asOf, Intensity: 7})
	if _, err := ProjectVotes(src); !errors.Is(err, ErrInvalidIntensity) {
		t.Fatalf("want ErrInvalidIntensity got %v", err)
	}
}

func TestParseIntensity(t *testing.T) {
	got, err := ParseIntensity("Moderate")
	if err != nil || got != Moderate {
		t.Fatalf("want Moderate got %v (%v)", got, err)
	}
	if _, err := ParseIntensity("extreme"); !errors.Is(err, ErrInvalidIntensity) {
		t.Fatalf("want ErrInvalidIntensity got %v", err)
	}
}

func TestByIdentity(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	votes := append(habitVotes(a, 0, 2), habitVotes(b, 1, 3)...)
	grouped := ByIdentity(votes)
	if len(grouped[a]) != 2 || len(grouped[b]) != 3 {
		t.Fatalf("unexpected grouping: a=%d b=%d", len(grouped[a]), len(grouped[b]))
	}
}

func TestRecommend(t *testing.T) {
	reader, runner, writer := uuid.New(), uuid.New(), uuid.New()
	snaps := []Snapshot{
		{IdentityID: reader, Score: 55},
		{IdentityID: runner, Score: 20},
		{IdentityID: writer, Score: 80},
	}

	weak := Recommend(snaps, ModeWeakest)
	if weak.IdentityID == nil || *weak.IdentityID != runner {
		t.Fatalf("weakest: want runner got %v", weak.IdentityID)
	}
	if !weak.Options[1].Recommended || weak.Options[0].Recommended {
		t.Fatalf("recommended flag not set on the chosen option: %+v", weak.Options)
	}

	strong := Recommend(snaps, ModeStrongest)
	if strong.IdentityID == nil || *strong.IdentityID != writer {
		t.Fatalf("strongest: want writer got %v", strong.IdentityID)
	}

	if empty := Recommend(nil, ModeWeakest); empty.IdentityID != nil || len(empty.Options) != 0 {
		t.Fatalf("no identities: want no recommendation, got %+v", empty)
	}
}

func TestRecommendTieKeepsInputOrder(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	rec := Recommend([]Snapshot{{IdentityID: first, Score: 10}, {IdentityID: second, Score: 10}}, ModeWeakest)
	if *rec.IdentityID != first {
		t.Fatalf("tie: want first identity")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeWeakest {
		t.Fatalf("default mode: want weakest got %q (%v)", m, err)
	}
	if _, err := ParseMode("random"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("want ErrInvalidMode got %v", err)
	}
}

func TestRank(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	ranked := Rank([]Snapshot{{IdentityID: a, Score: 10}, {IdentityID: b, Score: 70}, {IdentityID: c, Score: 10}})
	if ranked[0].IdentityID != b || ranked[1].IdentityID != a || ranked[2].IdentityID != c {
		t.Fatalf("unexpected order: %+v", ranked)
	}
}

func TestFeedbackFor(t *testing.T) {
	writer, runner, idle := uuid.New(), uuid.New(), uuid.New()
	votes := append(habitVotes(writer, 0, 1), Vote{IdentityID: runner, Date: asOf, Weight: TaskWeight, Source: SourceTask})
	votes = append(votes, habitVotes(runner, 0, 2)...)

	got := FeedbackFor(votes, asOf, map[uuid.UUID]string{writer: "Writer", runner: "Runner", idle: "Idle"})
	if len(got) != 2 {
		t.Fatalf("identities without votes must be dropped, got %d entries", len(got))
	}
	if got[0].IdentityID != runner || got[0].Total != 4 {
		t.Fatalf("first entry: want runner with 4 votes, got %+v", got[0])
	}
	if got[0].Message != "Amazing! 4 votes for Runner today!" {
		t.Fatalf("unexpected message %q", got[0].Message)
	}
	if got[1].Message != "You showed up as Writer today!" {
		t.Fatalf("unexpected message %q", got[1].Message)
	}
}

func TestFeedbackForTieBreaksOnIdentityID(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	votes := []Vote{
		{IdentityID: high, Date: asOf, Weight: HabitWeight, Source: SourceHabit},
		{IdentityID: low, Date: asOf, Weight: HabitWeight, Source: SourceHabit},
	}
	names := map[uuid.UUID]string{high: "Runner", low: "Runner"}

	for i := 0; i < 20; i++ {
		got := FeedbackFor(votes, asOf, names)
		if len(got) != 2 || got[0].IdentityID != low || got[1].IdentityID != high {
			t.Fatalf("run %d: unstable order %+v", i, got)
		}
	}
}

func TestReinforcementMessage(t *testing.T) {
	if got := ReinforcementMessage("Reader", 2); got != "Two votes for Reader!" {
		t.Fatalf("got %q", got)
	}
	if got := ReinforcementMessage("Reader", 0); got != "Keep building Reader!" {
		t.Fatalf("got %q", got)
	}
}
