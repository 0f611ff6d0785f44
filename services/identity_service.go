package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"momentumAPI/cache"
	"momentumAPI/internal/identity"
)

type IdentityService struct {
	db     *pgxpool.Pool
	scores *cache.ScoreCache
	scorer identity.Scorer
	logger *zap.Logger
	now    func() time.Time
}

func NewIdentityService(db *pgxpool.Pool, scores *cache.ScoreCache, scorer identity.Scorer, logger *zap.Logger) *IdentityService {
	return &IdentityService{db: db, scores: scores, scorer: scorer, logger: logger, now: time.Now}
}

type IdentityScore struct {
	identity.Snapshot
	Name  string  `json:"name"`
	Icon  *string `json:"icon,omitempty"`
	Color *string `json:"color,omitempty"`
}

type RecommendationResponse struct {
	identity.Recommendation
	Name *string `json:"recommended_identity_name,omitempty"`
}

type identityRow struct {
	id    uuid.UUID
	name  string
	icon  *string
	color *string
}

func (s *IdentityService) listIdentities(ctx context.Context, userID uuid.UUID) ([]identityRow, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, icon, color FROM identities WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var out []identityRow
	for rows.Next() {
		var r identityRow
		if err := rows.Scan(&r.id, &r.name, &r.icon, &r.color); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// loadSources reads every vote source for the user between from and to inclusive.
// Stacks carry all their items, so a day missing one item earns no bonus.
func (s *IdentityService) loadSources(ctx context.Context, userID uuid.UUID, from, to civil.Date) (identity.Sources, error) {
	var src identity.Sources

	rows, err := s.db.Query(ctx, `
		SELECT hs.id, hs.identity_id, i.id, c.completed_date
		FROM habit_stacks hs
		JOIN habit_stack_items i ON i.habit_stack_id = hs.id
		LEFT JOIN habit_completions c ON c.habit_stack_item_id = i.id
			AND c.completed_date BETWEEN $2 AND $3
		WHERE hs.user_id = $1 AND hs.identity_id IS NOT NULL
		ORDER BY hs.id, i.id, c.completed_date`,
		userID, dateToTime(from), dateToTime(to),
	)
	if err != nil {
		return src, fmt.Errorf("failed to query habit completions: %w", err)
	}
	stackIdx := make(map[uuid.UUID]int)
	itemIdx := make(map[uuid.UUID]int)
	for rows.Next() {
		var stackID, identityID, itemID uuid.UUID
		var completed *time.Time
		if err := rows.Scan(&stackID, &identityID, &itemID, &completed); err != nil {
			rows.Close()
			return src, fmt.Errorf("failed to scan habit completion: %w", err)
		}
		si, ok := stackIdx[stackID]
		if !ok {
			si = len(src.Stacks)
			stackIdx[stackID] = si
			src.Stacks = append(src.Stacks, identity.Stack{ID: stackID, IdentityID: identityID})
		}
		stack := &src.Stacks[si]
		ii, ok := itemIdx[itemID]
		if !ok {
			ii = len(stack.Items)
			itemIdx[itemID] = ii
			stack.Items = append(stack.Items, identity.StackItem{ID: itemID})
		}
		if completed != nil {
			stack.Items[ii].Completions = append(stack.Items[ii].Completions, timeToDate(*completed))
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return src, fmt.Errorf("failed to read habit completions: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT id, identity_id, completed_on FROM tasks
		WHERE user_id = $1 AND identity_id IS NOT NULL AND status = 'completed'
			AND completed_on BETWEEN $2 AND $3`,
		userID, dateToTime(from), dateToTime(to),
	)
	if err != nil {
		return src, fmt.Errorf("failed to query tasks: %w", err)
	}
	for rows.Next() {
		var t identity.TaskCompletion
		var on time.Time
		if err := rows.Scan(&t.TaskID, &t.IdentityID, &on); err != nil {
			rows.Close()
			return src, fmt.Errorf("failed to scan task: %w", err)
		}
		t.CompletedOn = timeToDate(on)
		src.Tasks = append(src.Tasks, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return src, fmt.Errorf("failed to read tasks: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT id, identity_id, proof_date, intensity FROM identity_proofs
		WHERE user_id = $1 AND proof_date BETWEEN $2 AND $3`,
		userID, dateToTime(from), dateToTime(to),
	)
	if err != nil {
		return src, fmt.Errorf("failed to query identity proofs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p identity.Proof
		var day time.Time
		var intensity int16
		if err := rows.Scan(&p.ID, &p.IdentityID, &day, &intensity); err != nil {
			return src, fmt.Errorf("failed to scan identity proof: %w", err)
		}
		p.Date = timeToDate(day)
		p.Intensity = identity.Intensity(intensity)
		src.Proofs = append(src.Proofs, p)
	}
	return src, rows.Err()
}

// firstActions returns the earliest action date per identity, up to asOf.
func (s *IdentityService) firstActions(ctx context.Context, userID uuid.UUID, asOf civil.Date) (map[uuid.UUID]civil.Date, error) {
	rows, err := s.db.Query(ctx, `
		SELECT identity_id, MIN(day) FROM (
			SELECT hs.identity_id, c.completed_date AS day
			FROM habit_completions c
			JOIN habit_stack_items i ON i.id = c.habit_stack_item_id
			JOIN habit_stacks hs ON hs.id = i.habit_stack_id
			WHERE hs.user_id = $1 AND hs.identity_id IS NOT NULL
			UNION ALL
			SELECT identity_id, completed_on FROM tasks
			WHERE user_id = $1 AND identity_id IS NOT NULL AND status = 'completed'
			UNION ALL
			SELECT identity_id, proof_date FROM identity_proofs WHERE user_id = $1
		) actions
		WHERE day <= $2
		GROUP BY identity_id`,
		userID, dateToTime(asOf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query first actions: %w", err)
	}
	defer rows.Close()

	first := make(map[uuid.UUID]civil.Date)
	for rows.Next() {
		var id uuid.UUID
		var day time.Time
		if err := rows.Scan(&id, &day); err != nil {
			return nil, fmt.Errorf("failed to scan first action: %w", err)
		}
		first[id] = timeToDate(day)
	}
	return first, rows.Err()
}

func (s *IdentityService) votes(ctx context.Context, userID uuid.UUID, from, to civil.Date) ([]identity.Vote, error) {
	src, err := s.loadSources(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	votes, err := identity.ProjectVotes(src)
	if err != nil {
		return nil, fmt.Errorf("failed to project votes: %w", err)
	}
	return votes, nil
}

func (s *IdentityService) computeScores(ctx context.Context, userID uuid.UUID, asOf civil.Date) ([]IdentityScore, error) {
	var cached []IdentityScore
	hit, err := s.scores.Get(ctx, userID, asOf, &cached)
	if err != nil {
		s.logger.Warn("score_cache_get_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	identities, err := s.listIdentities(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]IdentityScore, 0, len(identities))
	if len(identities) == 0 {
		return out, nil
	}

	votes, err := s.votes(ctx, userID, asOf.AddDays(-s.scorer.MaxWindowDays), asOf)
	if err != nil {
		return nil, err
	}
	first, err := s.firstActions(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}
	byIdentity := identity.ByIdentity(votes)

	for _, row := range identities {
		in := identity.ScoreInput{IdentityID: row.id, AsOf: asOf, Votes: byIdentity[row.id]}
		if d, ok := first[row.id]; ok {
			in.AccountAgeDays, in.HasHistory = identity.AccountAge(&d, asOf)
		}
		snap, err := s.scorer.Compute(in)
		if err != nil {
			return nil, fmt.Errorf("failed to score identity %s: %w", row.id, err)
		}
		out = append(out, IdentityScore{Snapshot: snap, Name: row.name, Icon: row.icon, Color: row.color})
	}
	out = rankScores(out)

	if err := s.scores.Set(ctx, userID, asOf, out); err != nil {
		s.logger.Warn("score_cache_set_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return out, nil
}

// rankScores orders scores highest first, keeping creation order among ties.
func rankScores(scores []IdentityScore) []IdentityScore {
	byID := make(map[uuid.UUID]IdentityScore, len(scores))
	snapshots := make([]identity.Snapshot, len(scores))
	for i, sc := range scores {
		byID[sc.IdentityID] = sc
		snapshots[i] = sc.Snapshot
	}
	ranked := make([]IdentityScore, 0, len(scores))
	for _, snap := range identity.Rank(snapshots) {
		ranked = append(ranked, byID[snap.IdentityID])
	}
	return ranked
}

// GetScores returns one snapshot per identity of the user, highest score first.
func (s *IdentityService) GetScores(ctx context.Context, clerkID string, asOf civil.Date) ([]IdentityScore, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	return s.computeScores(ctx, userID, asOf)
}

// GetFeedback returns today's vote breakdown per identity that received votes.
func (s *IdentityService) GetFeedback(ctx context.Context, clerkID string, day civil.Date) ([]identity.Feedback, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	identities, err := s.listIdentities(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(identities))
	for _, row := range identities {
		names[row.id] = row.name
	}

	votes, err := s.votes(ctx, userID, day, day)
	if err != nil {
		return nil, err
	}
	return identity.FeedbackFor(votes, day, names), nil
}

func (s *IdentityService) Recommend(ctx context.Context, clerkID string, mode identity.Mode, asOf civil.Date) (*RecommendationResponse, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	scores, err := s.computeScores(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}

	snapshots := make([]identity.Snapshot, len(scores))
	for i, sc := range scores {
		snapshots[i] = sc.Snapshot
	}
	resp := &RecommendationResponse{Recommendation: identity.Recommend(snapshots, mode)}
	if resp.IdentityID != nil {
		for _, sc := range scores {
			if sc.IdentityID == *resp.IdentityID {
				name := sc.Name
				resp.Name = &name
				break
			}
		}
	}
	return resp, nil
}
