package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrFutureDate       = errors.New("date is in the future")
	ErrAlreadyCompleted = errors.New("already completed")
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getUserID(ctx context.Context, db dbtx, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := db.QueryRow(ctx, "SELECT id FROM users WHERE clerk_id = $1", clerkID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("user with clerk_id %s: %w", clerkID, ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, nil
}

// Today is the current calendar day in UTC.
func Today(now time.Time) civil.Date {
	return civil.DateOf(now.UTC())
}

func dateToTime(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func timeToDate(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}

func optionalDate(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := timeToDate(*t)
	return &d
}

func optionalTime(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := dateToTime(*d)
	return &t
}

func checkNotFuture(day civil.Date, now time.Time) error {
	if day.After(Today(now)) {
		return fmt.Errorf("%s: %w", day, ErrFutureDate)
	}
	return nil
}
