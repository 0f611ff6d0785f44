package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"momentumAPI/internal/user"
	"momentumAPI/services"
)

const maxWebhookBody = 1 << 20

type userSyncer interface {
	SyncUser(ctx context.Context, clerkID, email string) (*user.User, error)
	DeleteUser(ctx context.Context, clerkID string) error
}

type WebhookHandler struct {
	users  userSyncer
	secret string
	logger *zap.Logger
	now    func() time.Time
}

func NewWebhookHandler(userService *services.UserService, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{users: userService, secret: secret, logger: logger, now: time.Now}
}

// HandleClerkWebhook mirrors Clerk user lifecycle events into the users table.
func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		respondWithError(w, http.StatusServiceUnavailable, "Webhook not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Error reading body")
		return
	}

	if err := user.VerifySignature(h.secret, r.Header, body, h.now()); err != nil {
		h.logger.Warn("clerk_webhook_rejected", zap.Error(err))
		respondWithError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var event user.ClerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondWithError(w, http.StatusBadRequest, "Error parsing webhook")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.dispatch(ctx, event); err != nil {
		h.logger.Error("clerk_webhook_failed", zap.String("type", event.Type), zap.Error(err))
		if errors.Is(err, services.ErrInvalidInput) {
			respondWithError(w, http.StatusBadRequest, "Invalid event payload")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Error processing webhook")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *WebhookHandler) dispatch(ctx context.Context, event user.ClerkWebhookEvent) error {
	switch event.Type {
	case "user.created", "user.updated", "user.deleted":
	default:
		h.logger.Debug("clerk_webhook_ignored", zap.String("type", event.Type))
		return nil
	}

	var data user.ClerkUserData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", services.ErrInvalidInput)
	}
	if data.ID == "" {
		return fmt.Errorf("user event without id: %w", services.ErrInvalidInput)
	}

	if event.Type == "user.deleted" {
		return h.users.DeleteUser(ctx, data.ID)
	}
	_, err := h.users.SyncUser(ctx, data.ID, data.PrimaryEmail())
	return err
}
