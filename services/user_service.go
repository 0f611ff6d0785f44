package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"momentumAPI/internal/user"
)

// UserService keeps the local users table in step with Clerk.
type UserService struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserService(db *pgxpool.Pool, logger *zap.Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

// upsertUser creates the user on first sight. An empty email never overwrites a stored one.
func upsertUser(ctx context.Context, db dbtx, clerkID, email string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := db.QueryRow(ctx, `
		INSERT INTO users (id, clerk_id, email, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NOW())
		ON CONFLICT (clerk_id) DO UPDATE SET email = COALESCE(EXCLUDED.email, users.email)
		RETURNING id`,
		uuid.New(), clerkID, email,
	).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return userID, nil
}

func (s *UserService) SyncUser(ctx context.Context, clerkID, email string) (*user.User, error) {
	if clerkID == "" {
		return nil, fmt.Errorf("empty clerk id: %w", ErrInvalidInput)
	}
	if _, err := upsertUser(ctx, s.db, clerkID, email); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, clerkID)
}

func (s *UserService) GetUser(ctx context.Context, clerkID string) (*user.User, error) {
	var u user.User
	err := s.db.QueryRow(ctx,
		"SELECT id, clerk_id, email, created_at FROM users WHERE clerk_id = $1", clerkID,
	).Scan(&u.ID, &u.ClerkID, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user with clerk_id %s: %w", clerkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes the user and, through cascades, all of their history.
// Deleting an unknown user is not an error since Clerk may retry deliveries.
func (s *UserService) DeleteUser(ctx context.Context, clerkID string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM users WHERE clerk_id = $1", clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Info("user_delete_noop", zap.String("clerk_id", clerkID))
	}
	return nil
}
