package handlers

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/civil"

	"momentumAPI/middleware"
	"momentumAPI/services"
)

type ActivityHandler struct {
	activityService *services.ActivityService
	now             func() time.Time
}

func NewActivityHandler(activityService *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService, now: time.Now}
}

// bodyDate resolves an optional YYYY-MM-DD field from a request body.
func (h *ActivityHandler) bodyDate(raw string) (civil.Date, error) {
	if raw == "" {
		return services.Today(h.now()), nil
	}
	return civil.ParseDate(raw)
}

// POST /api/v1/tasks/{id}/complete?date=YYYY-MM-DD
func (h *ActivityHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	taskID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := parseDate(r, h.now())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.activityService.CompleteTask(ctx, clerkID, taskID, day)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// POST /api/v1/identities/{id}/proofs
func (h *ActivityHandler) AddProof(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	identityID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req services.ProofRequest
	req.IdentityID = identityID
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IdentityID != identityID {
		respondWithError(w, http.StatusBadRequest, "identity_id does not match path")
		return
	}
	day, err := h.bodyDate(req.Date)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	res, err := h.activityService.AddProof(ctx, clerkID, req, day)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

// POST /api/v1/journal
func (h *ActivityHandler) RecordJournalEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req services.JournalRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := h.bodyDate(req.Date)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	res, err := h.activityService.RecordJournalEntry(ctx, clerkID, req, day)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

type loginEventRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// POST /api/v1/auth/login-event
func (h *ActivityHandler) RecordLogin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req loginEventRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res, err := h.activityService.RecordLogin(ctx, clerkID, req.Email)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
