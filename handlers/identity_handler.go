package handlers

import (
	"context"
	"net/http"
	"time"

	"momentumAPI/internal/identity"
	"momentumAPI/middleware"
	"momentumAPI/services"
)

type IdentityHandler struct {
	identityService *services.IdentityService
	now             func() time.Time
}

func NewIdentityHandler(identityService *services.IdentityService) *IdentityHandler {
	return &IdentityHandler{identityService: identityService, now: time.Now}
}

// GET /api/v1/identities/scores?date=YYYY-MM-DD
func (h *IdentityHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	asOf, err := parseDate(r, h.now())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	scores, err := h.identityService.GetScores(ctx, clerkID, asOf)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, scores)
}

// GET /api/v1/identities/feedback?date=YYYY-MM-DD
func (h *IdentityHandler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	day, err := parseDate(r, h.now())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	feedback, err := h.identityService.GetFeedback(ctx, clerkID, day)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, feedback)
}

// GET /api/v1/identities/recommendation?mode=weakest|strongest&date=YYYY-MM-DD
func (h *IdentityHandler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	mode, err := identity.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	asOf, err := parseDate(r, h.now())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.identityService.Recommend(ctx, clerkID, mode, asOf)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}
