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
	"momentumAPI/internal/identity"
	"momentumAPI/internal/milestone"
)

// ActivityService owns the non-habit writes that produce votes or milestone events.
type ActivityService struct {
	db         *pgxpool.Pool
	milestones *MilestoneService
	scores     *cache.ScoreCache
	logger     *zap.Logger
	now        func() time.Time
}

func NewActivityService(db *pgxpool.Pool, milestones *MilestoneService, scores *cache.ScoreCache, logger *zap.Logger) *ActivityService {
	return &ActivityService{db: db, milestones: milestones, scores: scores, logger: logger, now: time.Now}
}

type TaskResult struct {
	TaskID      uuid.UUID         `json:"task_id"`
	CompletedOn civil.Date        `json:"completed_on"`
	Milestones  []milestone.Award `json:"new_milestones"`
}

type ProofRequest struct {
	IdentityID  uuid.UUID `json:"identity_id" validate:"required"`
	Description string    `json:"description" validate:"max=500"`
	Intensity   string    `json:"intensity" validate:"required"`
	Date        string    `json:"date"`
}

type ProofResult struct {
	ProofID    uuid.UUID          `json:"proof_id"`
	IdentityID uuid.UUID          `json:"identity_id"`
	Intensity  identity.Intensity `json:"intensity"`
	Date       civil.Date         `json:"date"`
	Milestones []milestone.Award  `json:"new_milestones"`
}

type JournalRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content"`
	Date    string `json:"date"`
}

type JournalResult struct {
	EntryID    uuid.UUID         `json:"entry_id"`
	Date       civil.Date        `json:"date"`
	Milestones []milestone.Award `json:"new_milestones"`
}

type LoginResult struct {
	UserID     uuid.UUID         `json:"user_id"`
	Milestones []milestone.Award `json:"new_milestones"`
}

func (s *ActivityService) recordEvent(ctx context.Context, userID uuid.UUID, eventType milestone.EventType, metadata any) []milestone.Award {
	awards, err := s.milestones.RecordEvent(ctx, userID, eventType, metadata)
	if err != nil {
		s.logger.Error("milestone_event_failed",
			zap.String("user_id", userID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
		return []milestone.Award{}
	}
	return awards
}

// CompleteTask marks a pending task completed on day. Completing twice is rejected.
func (s *ActivityService) CompleteTask(ctx context.Context, clerkID string, taskID uuid.UUID, day civil.Date) (*TaskResult, error) {
	if err := checkNotFuture(day, s.now()); err != nil {
		return nil, err
	}
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	var completedOn time.Time
	err = s.db.QueryRow(ctx, `
		UPDATE tasks SET status = 'completed', completed_on = $3
		WHERE id = $1 AND user_id = $2 AND status <> 'completed'
		RETURNING completed_on`,
		taskID, userID, dateToTime(day),
	).Scan(&completedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND user_id = $2)`, taskID, userID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check task: %w", err)
		}
		if exists {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrAlreadyCompleted)
		}
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	s.scores.Invalidate(ctx, userID)
	return &TaskResult{
		TaskID:      taskID,
		CompletedOn: timeToDate(completedOn),
		Milestones:  s.recordEvent(ctx, userID, milestone.TaskCompleted, map[string]string{"task_id": taskID.String()}),
	}, nil
}

func (s *ActivityService) AddProof(ctx context.Context, clerkID string, req ProofRequest, day civil.Date) (*ProofResult, error) {
	intensity, err := identity.ParseIntensity(req.Intensity)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if err := checkNotFuture(day, s.now()); err != nil {
		return nil, err
	}
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	var owned bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1 AND user_id = $2)`, req.IdentityID, userID,
	).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("failed to check identity: %w", err)
	}
	if !owned {
		return nil, fmt.Errorf("identity %s: %w", req.IdentityID, ErrNotFound)
	}

	proofID := uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO identity_proofs (id, user_id, identity_id, description, intensity, proof_date)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		proofID, userID, req.IdentityID, req.Description, int(intensity), dateToTime(day),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert identity proof: %w", err)
	}

	s.scores.Invalidate(ctx, userID)
	return &ProofResult{
		ProofID:    proofID,
		IdentityID: req.IdentityID,
		Intensity:  intensity,
		Date:       day,
		Milestones: s.recordEvent(ctx, userID, milestone.IdentityProofAdded, map[string]string{
			"proof_id":    proofID.String(),
			"identity_id": req.IdentityID.String(),
			"intensity":   intensity.String(),
		}),
	}, nil
}

func (s *ActivityService) RecordJournalEntry(ctx context.Context, clerkID string, req JournalRequest, day civil.Date) (*JournalResult, error) {
	if err := checkNotFuture(day, s.now()); err != nil {
		return nil, err
	}
	userID, err := getUserID(ctx, s.db, clerkID)
	if err != nil {
		return nil, err
	}

	entryID := uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO journal_entries (id, user_id, title, content, entry_date)
		VALUES ($1, $2, $3, $4, $5)`,
		entryID, userID, req.Title, req.Content, dateToTime(day),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert journal entry: %w", err)
	}

	return &JournalResult{
		EntryID:    entryID,
		Date:       day,
		Milestones: s.recordEvent(ctx, userID, milestone.JournalEntryCreated, map[string]string{"entry_id": entryID.String()}),
	}, nil
}

// RecordLogin creates the user on first sight and records the login event.
func (s *ActivityService) RecordLogin(ctx context.Context, clerkID, email string) (*LoginResult, error) {
	userID, err := upsertUser(ctx, s.db, clerkID, email)
	if err != nil {
		return nil, err
	}

	awards, err := s.milestones.RecordEvent(ctx, userID, milestone.UserLoggedIn, nil)
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserID: userID, Milestones: awards}, nil
}
