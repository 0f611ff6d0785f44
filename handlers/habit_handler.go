package handlers

import (
	"context"
	"net/http"
	"time"

	"momentumAPI/middleware"
	"momentumAPI/services"
)

type HabitHandler struct {
	habitService *services.HabitService
	now          func() time.Time
}

func NewHabitHandler(habitService *services.HabitService) *HabitHandler {
	return &HabitHandler{habitService: habitService, now: time.Now}
}

// POST /api/v1/habit-items/{id}/toggle?date=YYYY-MM-DD
func (h *HabitHandler) ToggleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	itemID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := parseDate(r, h.now())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.habitService.ToggleCompletion(ctx, clerkID, itemID, day)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// POST /api/v1/habit-stacks/{id}/complete-all?date=YYYY-MM-DD
func (h *HabitHandler) CompleteAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	stackID, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := parseDate(r, h.now())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.habitService.CompleteAll(ctx, clerkID, stackID, day)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// GET /api/v1/analytics/streaks?date=YYYY-MM-DD
func (h *HabitHandler) GetStreakSummary(w http.ResponseWriter, r *http.Request) {
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

	summary, err := h.habitService.GetStreakSummary(ctx, clerkID, asOf)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
