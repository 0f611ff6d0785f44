package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"momentumAPI/cache"
	"momentumAPI/internal/milestone"
	"momentumAPI/internal/streak"
	"momentumAPI/utils"
)

type HabitService struct {
	db         *pgxpool.Pool
	milestones *MilestoneService
	scores     *cache.ScoreCache
	logger     *zap.Logger
	now        func() time.Time
}

func NewHabitService(db *pgxpool.Pool, milestones *MilestoneService, scores *cache.ScoreCache, logger *zap.Logger) *HabitService {
	return &HabitService{db: db, milestones: milestones, scores: scores, logger: logger, now: time.Now}
}

type ToggleResult struct {
	ItemID        uuid.UUID         `json:"habit_item_id"`
	StackID       uuid.UUID         `json:"habit_stack_id"`
	Date          civil.Date        `json:"date"`
	IsCompleted   bool              `json:"is_completed"`
	CurrentStreak int               `json:"current_streak"`
	LongestStreak int               `json:"longest_streak"`
	Milestones    []milestone.Award `json:"new_milestones"`
}

type CompleteAllResult struct {
	StackID    uuid.UUID         `json:"habit_stack_id"`
	Completed  int               `json:"completed"`
	Total      int               `json:"total"`
	Milestones []milestone.Award `json:"new_milestones"`
}

// ToggleCompletion completes the item on day, or removes that completion when it already exists.
func (s *HabitService) ToggleCompletion(ctx context.Context, clerkID string, itemID uuid.UUID, day civil.Date) (*ToggleResult, error) {
	if err := checkNotFuture(day, s.now()); err != nil {
		return nil, err
	}
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}
	return s.setCompletion(ctx, userID, itemID, day, false)
}

// CompleteAll completes every item of the stack that is not yet completed on day.
func (s *HabitService) CompleteAll(ctx context.Context, clerkID string, stackID uuid.UUID, day civil.Date) (*CompleteAllResult, error) {
	if err := checkNotFuture(day, s.now()); err != nil {
		return nil, err
	}
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT i.id FROM habit_stack_items i
		JOIN habit_stacks hs ON hs.id = i.habit_stack_id
		WHERE hs.id = $1 AND hs.user_id = $2
		ORDER BY i.sort_order`,
		stackID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stack items: %w", err)
	}
	itemIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to read stack items: %w", err)
	}
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("habit stack %s: %w", stackID, ErrNotFound)
	}

	res := &CompleteAllResult{StackID: stackID, Total: len(itemIDs), Milestones: []milestone.Award{}}
	for _, id := range itemIDs {
		r, err := s.setCompletion(ctx, userID, id, day, true)
		if err != nil {
			return nil, err
		}
		res.Completed++
		res.Milestones = append(res.Milestones, r.Milestones...)
	}
	return res, nil
}

// setCompletion runs the completion change and streak update in one transaction.
// With onlyComplete an existing completion is left alone.
func (s *HabitService) setCompletion(ctx context.Context, userID, itemID uuid.UUID, day civil.Date, onlyComplete bool) (*ToggleResult, error) {
	asOf := Today(s.now())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res := &ToggleResult{ItemID: itemID, Date: day, Milestones: []milestone.Award{}}
	var state streak.State
	var last *time.Time
	err = tx.QueryRow(ctx, `
		SELECT i.habit_stack_id, i.current_streak, i.longest_streak, i.last_completed_date
		FROM habit_stack_items i
		JOIN habit_stacks hs ON hs.id = i.habit_stack_id
		WHERE i.id = $1 AND hs.user_id = $2
		FOR UPDATE OF i`,
		itemID, userID,
	).Scan(&res.StackID, &state.Current, &state.Longest, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("habit item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load habit item: %w", err)
	}
	state.LastCompleted = optionalDate(last)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM habit_completions WHERE habit_stack_item_id = $1 AND completed_date = $2)`,
		itemID, dateToTime(day),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check completion: %w", err)
	}

	if exists && onlyComplete {
		res.IsCompleted = true
		res.CurrentStreak, res.LongestStreak = state.Current, state.Longest
		return res, nil
	}

	var next streak.State
	if exists {
		history, err := completionHistory(ctx, tx, itemID, asOf)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM habit_completions WHERE habit_stack_item_id = $1 AND completed_date = $2`,
			itemID, dateToTime(day),
		); err != nil {
			return nil, fmt.Errorf("failed to delete completion: %w", err)
		}
		if next, err = streak.Uncomplete(history, day, asOf); err != nil {
			return nil, fmt.Errorf("failed to recalculate streak: %w", err)
		}
		utils.StreakRecalculations.Inc()
	} else {
		if _, err := tx.Exec(ctx, `
			INSERT INTO habit_completions (id, habit_stack_item_id, completed_date, completed_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (habit_stack_item_id, completed_date) DO NOTHING`,
			uuid.New(), itemID, dateToTime(day),
		); err != nil {
			return nil, fmt.Errorf("failed to insert completion: %w", err)
		}

		next, err = streak.Complete(state, day)
		if errors.Is(err, streak.ErrOutOfOrder) || errors.Is(err, streak.ErrStaleState) {
			history, herr := completionHistory(ctx, tx, itemID, asOf)
			if herr != nil {
				return nil, herr
			}
			next, err = streak.Recalculate(history, asOf)
			utils.StreakRecalculations.Inc()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update streak: %w", err)
		}
		res.IsCompleted = true
	}

	if _, err := tx.Exec(ctx, `
		UPDATE habit_stack_items
		SET current_streak = $2, longest_streak = $3, last_completed_date = $4
		WHERE id = $1`,
		itemID, next.Current, next.Longest, optionalTime(next.LastCompleted),
	); err != nil {
		return nil, fmt.Errorf("failed to store streak: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}

	res.CurrentStreak, res.LongestStreak = next.Current, next.Longest
	s.scores.Invalidate(ctx, userID)

	if res.IsCompleted {
		awards, err := s.milestones.RecordEvent(ctx, userID, milestone.HabitCompleted, map[string]string{
			"habit_item_id": itemID.String(),
			"date":          day.String(),
		})
		if err != nil {
			// the completion itself is committed; milestones catch up on the next event
			s.logger.Error("habit_completed_event_failed", zap.String("user_id", userID.String()), zap.Error(err))
		} else {
			res.Milestones = awards
		}
	}
	return res, nil
}

func completionHistory(ctx context.Context, db dbtx, itemID uuid.UUID, asOf civil.Date) ([]civil.Date, error) {
	rows, err := db.Query(ctx, `
		SELECT completed_date FROM habit_completions
		WHERE habit_stack_item_id = $1 AND completed_date <= $2
		ORDER BY completed_date`,
		itemID, dateToTime(asOf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load completion history: %w", err)
	}
	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("failed to read completion history: %w", err)
	}

	history := make([]civil.Date, len(times))
	for i, t := range times {
		history[i] = timeToDate(t)
	}
	return history, nil
}

// GetStreakSummary recomputes display streaks from history so stale stored counters never show.
func (s *HabitService) GetStreakSummary(ctx context.Context, clerkID string, asOf civil.Date) (*streak.Summary, error) {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.name, c.completed_date
		FROM habit_stack_items i
		JOIN habit_stacks hs ON hs.id = i.habit_stack_id
		LEFT JOIN habit_completions c ON c.habit_stack_item_id = i.id AND c.completed_date <= $2
		WHERE hs.user_id = $1
		ORDER BY hs.created_at, i.sort_order, i.id, c.completed_date`,
		userID, dateToTime(asOf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query streak history: %w", err)
	}
	defer rows.Close()

	type itemHistory struct {
		id      uuid.UUID
		name    string
		history []civil.Date
	}
	var items []*itemHistory
	byID := make(map[uuid.UUID]*itemHistory)

	for rows.Next() {
		var id uuid.UUID
		var name string
		var completed *time.Time
		if err := rows.Scan(&id, &name, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan streak history: %w", err)
		}
		it, ok := byID[id]
		if !ok {
			it = &itemHistory{id: id, name: name}
			byID[id] = it
			items = append(items, it)
		}
		if completed != nil {
			it.history = append(it.history, timeToDate(*completed))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read streak history: %w", err)
	}

	streaks := make([]streak.ItemStreak, 0, len(items))
	for _, it := range items {
		st, err := streak.Compute(streak.Normalize(it.history), asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to compute streak for %s: %w", it.id, err)
		}
		streaks = append(streaks, streak.NewItemStreak(it.id, it.name, st, asOf))
	}

	summary := streak.Summarize(streaks)
	return &summary, nil
}
