package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"momentumAPI/internal/milestone"
	"momentumAPI/utils"
)

// MilestoneNotifier is told about every award after it has been committed.
type MilestoneNotifier interface {
	NotifyMilestone(ctx context.Context, userID uuid.UUID, f milestone.Fired)
}

type MilestoneService struct {
	db       *pgxpool.Pool
	notifier MilestoneNotifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewMilestoneService(db *pgxpool.Pool, notifier MilestoneNotifier, logger *zap.Logger) *MilestoneService {
	return &MilestoneService{db: db, notifier: notifier, logger: logger, now: time.Now}
}

const definitionColumns = `id, code, title_key, description_key, icon, trigger_event, rule_type,
	rule_data, animation_type, animation_data, sort_order, is_active`

func scanDefinition(row pgx.Row) (milestone.DefinitionRecord, error) {
	var rec milestone.DefinitionRecord
	var ruleData []byte
	err := row.Scan(
		&rec.ID, &rec.Code, &rec.TitleKey, &rec.DescriptionKey, &rec.Icon, &rec.TriggerEvent, &rec.RuleType,
		&ruleData, &rec.AnimationType, &rec.AnimationData, &rec.SortOrder, &rec.IsActive,
	)
	rec.RuleData = json.RawMessage(ruleData)
	return rec, err
}

// RecordEvent appends the event, bumps the counters and awards whatever newly fires,
// all in one transaction. Pushes go out after commit.
func (s *MilestoneService) RecordEvent(ctx context.Context, userID uuid.UUID, eventType milestone.EventType, metadata any) ([]milestone.Award, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("event type %q: %w", eventType, ErrInvalidInput)
	}

	var metaJSON []byte
	if metadata != nil {
		var err error
		if metaJSON, err = json.Marshal(metadata); err != nil {
			return nil, fmt.Errorf("failed to encode event metadata: %w", err)
		}
	}
	occurredAt := s.now().UTC()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO domain_events (id, user_id, event_type, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), userID, eventType, metaJSON, occurredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert domain event: %w", err)
	}

	stats, err := applyStatsDelta(ctx, tx, userID, milestone.DeltaFor(eventType), occurredAt)
	if err != nil {
		return nil, err
	}

	engine, err := s.loadEngine(ctx, tx, eventType)
	if err != nil {
		return nil, err
	}

	awarded, err := awardedSet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var events milestone.EventCounter
	if days := milestone.MaxWindowDays(engine.Definitions()); days > 0 {
		since := occurredAt.Add(-time.Duration(days) * 24 * time.Hour)
		if events, err = loadEventLog(ctx, tx, userID, eventType, since); err != nil {
			return nil, err
		}
	}

	result := engine.Evaluate(milestone.Input{
		UserID:     userID,
		EventType:  eventType,
		OccurredAt: occurredAt,
		Stats:      stats,
		Events:     events,
		Awarded:    awarded,
	})

	awards := make([]milestone.Award, 0, len(result.Fired))
	fired := make([]milestone.Fired, 0, len(result.Fired))
	for _, f := range result.Fired {
		var id uuid.UUID
		var at time.Time
		err := tx.QueryRow(ctx, `
			INSERT INTO user_milestones (id, user_id, milestone_definition_id, awarded_at, has_been_seen)
			VALUES ($1, $2, $3, $4, FALSE)
			ON CONFLICT (user_id, milestone_definition_id) DO NOTHING
			RETURNING id, awarded_at`,
			uuid.New(), userID, f.DefinitionID, occurredAt,
		).Scan(&id, &at)
		if errors.Is(err, pgx.ErrNoRows) {
			// a concurrent event already awarded it
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert award %s: %w", f.Code, err)
		}
		awards = append(awards, milestone.NewAward(id, f, at))
		fired = append(fired, f)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit event: %w", err)
	}

	for _, f := range fired {
		utils.MilestonesAwarded.WithLabelValues(f.Code).Inc()
		s.logger.Info("milestone_awarded",
			zap.String("user_id", userID.String()),
			zap.String("code", f.Code),
			zap.String("event_type", string(eventType)),
		)
		if s.notifier != nil {
			s.notifier.NotifyMilestone(ctx, userID, f)
		}
	}
	return awards, nil
}

// RecordEventForClerk resolves the user first. Used by handlers that only know the clerk ID.
func (s *MilestoneService) RecordEventForClerk(ctx context.Context, clerkID string, eventType milestone.EventType, metadata any) ([]milestone.Award, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	return s.RecordEvent(ctx, userID, eventType, metadata)
}

func applyStatsDelta(ctx context.Context, db dbtx, userID uuid.UUID, d milestone.Delta, at time.Time) (milestone.Stats, error) {
	login := 0
	if d.Login {
		login = 1
	}

	var st milestone.Stats
	err := db.QueryRow(ctx, `
		INSERT INTO user_stats (
			user_id, login_count, total_wins, total_habits_completed, total_tasks_completed,
			total_identity_proofs, total_journal_entries, last_login_at, previous_login_at, last_activity_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $8::boolean THEN $9::timestamptz END, NULL, $9::timestamptz, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			login_count            = user_stats.login_count + EXCLUDED.login_count,
			total_wins             = user_stats.total_wins + EXCLUDED.total_wins,
			total_habits_completed = user_stats.total_habits_completed + EXCLUDED.total_habits_completed,
			total_tasks_completed  = user_stats.total_tasks_completed + EXCLUDED.total_tasks_completed,
			total_identity_proofs  = user_stats.total_identity_proofs + EXCLUDED.total_identity_proofs,
			total_journal_entries  = user_stats.total_journal_entries + EXCLUDED.total_journal_entries,
			previous_login_at      = CASE WHEN $8::boolean THEN user_stats.last_login_at ELSE user_stats.previous_login_at END,
			last_login_at          = CASE WHEN $8::boolean THEN $9::timestamptz ELSE user_stats.last_login_at END,
			last_activity_at       = $9::timestamptz,
			updated_at             = NOW()
		RETURNING login_count, total_wins, total_habits_completed, total_tasks_completed,
			total_identity_proofs, total_journal_entries, last_login_at, previous_login_at, last_activity_at`,
		userID, login, d.TotalWins, d.TotalHabitsCompleted, d.TotalTasksCompleted,
		d.TotalIdentityProofs, d.TotalJournalEntries, d.Login, at,
	).Scan(
		&st.LoginCount, &st.TotalWins, &st.TotalHabitsCompleted, &st.TotalTasksCompleted,
		&st.TotalIdentityProofs, &st.TotalJournalEntries, &st.LastLoginAt, &st.PreviousLoginAt, &st.LastActivityAt,
	)
	if err != nil {
		return milestone.Stats{}, fmt.Errorf("failed to update user stats: %w", err)
	}
	return st, nil
}

func (s *MilestoneService) loadEngine(ctx context.Context, db dbtx, eventType milestone.EventType) (*milestone.Engine, error) {
	rows, err := db.Query(ctx, `SELECT `+definitionColumns+` FROM milestone_definitions WHERE trigger_event = $1`, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to load milestone definitions: %w", err)
	}
	defer rows.Close()

	var records []milestone.DefinitionRecord
	for rows.Next() {
		rec, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone definition: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read milestone definitions: %w", err)
	}

	engine, skipped := milestone.NewEngine(records)
	for _, de := range skipped {
		utils.DefinitionsSkipped.Inc()
		s.logger.Warn("milestone_definition_skipped",
			zap.String("code", de.Code),
			zap.String("definition_id", de.ID.String()),
			zap.Error(de.Err),
		)
	}
	return engine, nil
}

func awardedSet(ctx context.Context, db dbtx, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := db.Query(ctx, `SELECT milestone_definition_id FROM user_milestones WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load awarded milestones: %w", err)
	}
	defer rows.Close()

	awarded := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan awarded milestone: %w", err)
		}
		awarded[id] = true
	}
	return awarded, rows.Err()
}

func loadEventLog(ctx context.Context, db dbtx, userID uuid.UUID, eventType milestone.EventType, since time.Time) (milestone.EventLog, error) {
	rows, err := db.Query(ctx, `
		SELECT id, event_type, occurred_at FROM domain_events
		WHERE user_id = $1 AND event_type = $2 AND occurred_at >= $3
		ORDER BY occurred_at`,
		userID, eventType, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load event log: %w", err)
	}
	defer rows.Close()

	var log milestone.EventLog
	for rows.Next() {
		e := milestone.Event{UserID: userID}
		if err := rows.Scan(&e.ID, &e.Type, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan domain event: %w", err)
		}
		log = append(log, e)
	}
	return log, rows.Err()
}

const awardQuery = `
	SELECT um.id, um.milestone_definition_id, d.code, d.title_key, d.description_key, d.icon,
		d.animation_type, d.animation_data, um.awarded_at, um.has_been_seen
	FROM user_milestones um
	JOIN milestone_definitions d ON d.id = um.milestone_definition_id
	WHERE um.user_id = $1`

func (s *MilestoneService) queryAwards(ctx context.Context, clerkID, filter string) ([]milestone.Award, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, awardQuery+filter, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestones: %w", err)
	}
	defer rows.Close()

	awards := []milestone.Award{}
	for rows.Next() {
		var a milestone.Award
		if err := rows.Scan(
			&a.ID, &a.DefinitionID, &a.Code, &a.TitleKey, &a.DescriptionKey, &a.Icon,
			&a.AnimationType, &a.AnimationData, &a.AwardedAt, &a.HasBeenSeen,
		); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		awards = append(awards, a)
	}
	return awards, rows.Err()
}

func (s *MilestoneService) GetUserMilestones(ctx context.Context, clerkID string) ([]milestone.Award, error) {
	return s.queryAwards(ctx, clerkID, ` ORDER BY um.awarded_at DESC`)
}

func (s *MilestoneService) GetUnseenMilestones(ctx context.Context, clerkID string) ([]milestone.Award, error) {
	return s.queryAwards(ctx, clerkID, ` AND NOT um.has_been_seen ORDER BY um.awarded_at ASC`)
}

func (s *MilestoneService) MarkMilestonesSeen(ctx context.Context, clerkID string, ids []uuid.UUID) (int64, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE user_milestones SET has_been_seen = TRUE WHERE user_id = $1 AND id = ANY($2)`,
		userID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark milestones seen: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *MilestoneService) GetUserStats(ctx context.Context, clerkID string) (*milestone.Stats, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	st := &milestone.Stats{}
	err = s.db.QueryRow(ctx, `
		SELECT login_count, total_wins, total_habits_completed, total_tasks_completed,
			total_identity_proofs, total_journal_entries, last_login_at, previous_login_at, last_activity_at
		FROM user_stats WHERE user_id = $1`, userID,
	).Scan(
		&st.LoginCount, &st.TotalWins, &st.TotalHabitsCompleted, &st.TotalTasksCompleted,
		&st.TotalIdentityProofs, &st.TotalJournalEntries, &st.LastLoginAt, &st.PreviousLoginAt, &st.LastActivityAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return st, nil
}

func (s *MilestoneService) GetDefinitions(ctx context.Context) ([]milestone.DefinitionRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+definitionColumns+` FROM milestone_definitions ORDER BY sort_order, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestone definitions: %w", err)
	}
	defer rows.Close()

	defs := []milestone.DefinitionRecord{}
	for rows.Next() {
		rec, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone definition: %w", err)
		}
		defs = append(defs, rec)
	}
	return defs, rows.Err()
}

// validateDefinition runs a record through the same parser the engine uses.
func validateDefinition(rec milestone.DefinitionRecord) error {
	if _, errs := milestone.NewEngine([]milestone.DefinitionRecord{rec}); len(errs) > 0 {
		return fmt.Errorf("%v: %w", errs[0].Err, ErrInvalidInput)
	}
	return nil
}

func (s *MilestoneService) CreateDefinition(ctx context.Context, rec milestone.DefinitionRecord) (*milestone.DefinitionRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.AnimationType == "" {
		rec.AnimationType = milestone.DefaultAnimation
	}
	if err := validateDefinition(rec); err != nil {
		return nil, err
	}

	out, err := scanDefinition(s.db.QueryRow(ctx, `
		INSERT INTO milestone_definitions (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+definitionColumns,
		rec.ID, rec.Code, rec.TitleKey, rec.DescriptionKey, rec.Icon, rec.TriggerEvent, rec.RuleType,
		[]byte(rec.RuleData), rec.AnimationType, rec.AnimationData, rec.SortOrder, rec.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone definition: %w", err)
	}
	return &out, nil
}

// UpdateDefinition replaces a definition's data. Existing awards are kept.
func (s *MilestoneService) UpdateDefinition(ctx context.Context, rec milestone.DefinitionRecord) (*milestone.DefinitionRecord, error) {
	if rec.AnimationType == "" {
		rec.AnimationType = milestone.DefaultAnimation
	}
	if err := validateDefinition(rec); err != nil {
		return nil, err
	}

	out, err := scanDefinition(s.db.QueryRow(ctx, `
		UPDATE milestone_definitions SET
			code = $2, title_key = $3, description_key = $4, icon = $5, trigger_event = $6, rule_type = $7,
			rule_data = $8, animation_type = $9, animation_data = $10, sort_order = $11, is_active = $12
		WHERE id = $1
		RETURNING `+definitionColumns,
		rec.ID, rec.Code, rec.TitleKey, rec.DescriptionKey, rec.Icon, rec.TriggerEvent, rec.RuleType,
		[]byte(rec.RuleData), rec.AnimationType, rec.AnimationData, rec.SortOrder, rec.IsActive,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("milestone definition %s: %w", rec.ID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update milestone definition: %w", err)
	}
	return &out, nil
}

// ToggleDefinition only flips is_active. Deactivating never revokes awards.
func (s *MilestoneService) ToggleDefinition(ctx context.Context, id uuid.UUID, isActive bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE milestone_definitions SET is_active = $2 WHERE id = $1`, id, isActive)
	if err != nil {
		return fmt.Errorf("failed to toggle milestone definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("milestone definition %s: %w", id, ErrNotFound)
	}
	return nil
}

// SeedDefinitions inserts built-in definitions whose code is not present yet.
func (s *MilestoneService) SeedDefinitions(ctx context.Context) (int, error) {
	inserted := 0
	for _, rec := range milestone.DefaultDefinitions() {
		tag, err := s.db.Exec(ctx, `
			INSERT INTO milestone_definitions (`+definitionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (code) DO NOTHING`,
			rec.ID, rec.Code, rec.TitleKey, rec.DescriptionKey, rec.Icon, rec.TriggerEvent, rec.RuleType,
			[]byte(rec.RuleData), rec.AnimationType, rec.AnimationData, rec.SortOrder, rec.IsActive,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed milestone %s: %w", rec.Code, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if inserted > 0 {
		s.logger.Info("milestone_definitions_seeded", zap.Int("count", inserted))
	} else {
		s.logger.Info("milestone_definitions_up_to_date")
	}
	return inserted, nil
}
