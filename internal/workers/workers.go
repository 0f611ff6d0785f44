package workers

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"momentumAPI/internal/streak"
)

// StreakNotifier sends the "your streak breaks tomorrow" push.
type StreakNotifier interface {
	NotifyStreakRisk(ctx context.Context, userID, itemID uuid.UUID, itemName string, currentStreak int)
}

// Candidate is a habit item whose streak was last extended yesterday.
type Candidate struct {
	UserID   uuid.UUID
	ItemID   uuid.UUID
	ItemName string
	State    streak.State
}

type alertStore interface {
	candidates(ctx context.Context, asOf civil.Date) ([]Candidate, error)
	// markAlerted reports false when an alert for the item and day already exists.
	markAlerted(ctx context.Context, itemID uuid.UUID, day civil.Date) (bool, error)
}

type StreakAlertWorker struct {
	store    alertStore
	notifier StreakNotifier
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewStreakAlertWorker(db *pgxpool.Pool, notifier StreakNotifier, interval time.Duration, logger *zap.Logger) *StreakAlertWorker {
	return &StreakAlertWorker{
		store:    &pgAlertStore{db: db},
		notifier: notifier,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run scans once immediately and then on every tick until ctx is cancelled.
func (w *StreakAlertWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("streak_alert_worker_started", zap.Duration("interval", w.interval))
	for {
		if n, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("streak_alert_scan_failed", zap.Error(err))
		} else if n > 0 {
			w.logger.Info("streak_alerts_sent", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("streak_alert_worker_stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce alerts every at-risk streak that has not been alerted today and returns how many were sent.
func (w *StreakAlertWorker) RunOnce(ctx context.Context) (int, error) {
	scanCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	asOf := civil.DateOf(w.now().UTC())
	candidates, err := w.store.candidates(scanCtx, asOf)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, c := range candidates {
		if !atRisk(c.State, asOf) {
			continue
		}
		fresh, err := w.store.markAlerted(scanCtx, c.ItemID, asOf)
		if err != nil {
			w.logger.Warn("streak_alert_mark_failed", zap.String("item_id", c.ItemID.String()), zap.Error(err))
			continue
		}
		if !fresh {
			continue
		}
		w.notifier.NotifyStreakRisk(scanCtx, c.UserID, c.ItemID, c.ItemName, c.State.Current)
		sent++
	}
	return sent, nil
}

// atRisk is true for a live streak of at least two days that breaks unless completed today.
func atRisk(s streak.State, asOf civil.Date) bool {
	return s.Current >= 2 && streak.DaysUntilBreak(s, asOf) == 1
}

type pgAlertStore struct {
	db *pgxpool.Pool
}

func (p *pgAlertStore) candidates(ctx context.Context, asOf civil.Date) ([]Candidate, error) {
	yesterday := asOf.AddDays(-1)
	rows, err := p.db.Query(ctx, `
		SELECT hs.user_id, i.id, i.name, i.current_streak, i.longest_streak, i.last_completed_date
		FROM habit_stack_items i
		JOIN habit_stacks hs ON hs.id = i.habit_stack_id
		WHERE i.last_completed_date = $1 AND i.current_streak >= 2
			AND NOT EXISTS (
				SELECT 1 FROM streak_alerts a
				WHERE a.habit_stack_item_id = i.id AND a.alert_date = $2
			)`,
		yesterday.In(time.UTC), asOf.In(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query streak candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var last time.Time
		if err := rows.Scan(&c.UserID, &c.ItemID, &c.ItemName, &c.State.Current, &c.State.Longest, &last); err != nil {
			return nil, fmt.Errorf("failed to scan streak candidate: %w", err)
		}
		d := civil.DateOf(last.UTC())
		c.State.LastCompleted = &d
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *pgAlertStore) markAlerted(ctx context.Context, itemID uuid.UUID, day civil.Date) (bool, error) {
	tag, err := p.db.Exec(ctx, `
		INSERT INTO streak_alerts (habit_stack_item_id, alert_date) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		itemID, day.In(time.UTC),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record streak alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
