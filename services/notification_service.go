package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"momentumAPI/internal/milestone"
	"momentumAPI/internal/notification"
)

type NotificationService struct {
	db         *pgxpool.Pool
	dispatcher *NotificationDispatcher
	logger     *zap.Logger
}

// NewNotificationService starts the dispatcher. provider may be nil when FCM is not configured.
func NewNotificationService(db *pgxpool.Pool, provider PushProvider, logger *zap.Logger) *NotificationService {
	s := &NotificationService{db: db, logger: logger}
	s.dispatcher = NewNotificationDispatcher(s, provider, 5, logger)
	return s
}

func (s *NotificationService) RegisterDevice(ctx context.Context, clerkID string, req notification.RegisterDeviceRequest) error {
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO device_tokens (token, user_id, platform, added_at, last_used)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, last_used = NOW()`,
		req.Token, userID, req.Platform,
	)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *NotificationService) deviceTokens(ctx context.Context, p notification.Push) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `SELECT token, platform, added_at, last_used FROM device_tokens WHERE user_id = $1`, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform, &t.AddedAt, &t.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *NotificationService) NotifyMilestone(_ context.Context, userID uuid.UUID, f milestone.Fired) {
	s.dispatcher.Dispatch(notification.MilestonePush(userID, f))
}

func (s *NotificationService) NotifyStreakRisk(_ context.Context, userID, itemID uuid.UUID, itemName string, currentStreak int) {
	s.dispatcher.Dispatch(notification.StreakRiskPush(userID, itemID, itemName, currentStreak))
}

func (s *NotificationService) Stop() {
	s.dispatcher.Stop()
}
