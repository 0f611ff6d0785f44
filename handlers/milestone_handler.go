package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"momentumAPI/internal/milestone"
	"momentumAPI/middleware"
	"momentumAPI/services"
)

type MilestoneHandler struct {
	milestoneService *services.MilestoneService
}

func NewMilestoneHandler(milestoneService *services.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestoneService: milestoneService}
}

// GET /api/v1/milestones
func (h *MilestoneHandler) GetUserMilestones(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	awards, err := h.milestoneService.GetUserMilestones(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, awards)
}

// GET /api/v1/milestones/unseen
func (h *MilestoneHandler) GetUnseenMilestones(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	awards, err := h.milestoneService.GetUnseenMilestones(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, awards)
}

type markSeenRequest struct {
	MilestoneIDs []uuid.UUID `json:"milestone_ids" validate:"required,min=1,max=100"`
}

// POST /api/v1/milestones/mark-seen
func (h *MilestoneHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req markSeenRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.milestoneService.MarkMilestonesSeen(ctx, clerkID, req.MilestoneIDs)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// GET /api/v1/milestones/stats
func (h *MilestoneHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	stats, err := h.milestoneService.GetUserStats(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// GET /api/v1/milestones/definitions
func (h *MilestoneHandler) GetDefinitions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	defs, err := h.milestoneService.GetDefinitions(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, defs)
}

type definitionRequest struct {
	Code           string              `json:"code" validate:"required,max=64"`
	TitleKey       string              `json:"title_key" validate:"required"`
	DescriptionKey string              `json:"description_key" validate:"required"`
	Icon           string              `json:"icon" validate:"required"`
	TriggerEvent   milestone.EventType `json:"trigger_event" validate:"required"`
	RuleType       string              `json:"rule_type" validate:"required"`
	RuleData       json.RawMessage     `json:"rule_data" validate:"required"`
	AnimationType  string              `json:"animation_type"`
	AnimationData  *string             `json:"animation_data"`
	SortOrder      int                 `json:"sort_order"`
	IsActive       *bool               `json:"is_active"`
}

func (req definitionRequest) record(id uuid.UUID) milestone.DefinitionRecord {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return milestone.DefinitionRecord{
		ID:             id,
		Code:           req.Code,
		TitleKey:       req.TitleKey,
		DescriptionKey: req.DescriptionKey,
		Icon:           req.Icon,
		TriggerEvent:   req.TriggerEvent,
		RuleType:       req.RuleType,
		RuleData:       req.RuleData,
		AnimationType:  req.AnimationType,
		AnimationData:  req.AnimationData,
		SortOrder:      req.SortOrder,
		IsActive:       active,
	}
}

// POST /api/v1/milestones/definitions
func (h *MilestoneHandler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req definitionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	def, err := h.milestoneService.CreateDefinition(ctx, req.record(uuid.Nil))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, def)
}

// PUT /api/v1/milestones/definitions/{id}
func (h *MilestoneHandler) UpdateDefinition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req definitionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	def, err := h.milestoneService.UpdateDefinition(ctx, req.record(id))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

type toggleDefinitionRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// PUT /api/v1/milestones/definitions/{id}/toggle
func (h *MilestoneHandler) ToggleDefinition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := pathUUID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req toggleDefinitionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.milestoneService.ToggleDefinition(ctx, id, *req.IsActive); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": *req.IsActive})
}
