package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wwfm-app/wwfm/internal/domain"
)

type AggregatesReader interface {
	GetAggregatedFields(ctx context.Context, goalID, variantID uuid.UUID) (*domain.GoalSolutionLink, error)
}

type AggregatesHandler struct {
	svc AggregatesReader
}

func NewAggregatesHandler(svc AggregatesReader) *AggregatesHandler {
	return &AggregatesHandler{svc: svc}
}

type aggregatesResponse struct {
	GoalID            uuid.UUID                  `json:"goal_id"`
	SolutionVariantID uuid.UUID                  `json:"solution_variant_id"`
	DisplayMode       domain.DisplayMode         `json:"display_mode"`
	AggregatedFields  *domain.AggregatedFieldSet `json:"aggregated_fields"`
	AvgEffectiveness  float64                    `json:"avg_effectiveness"`
	RatingCount       int                        `json:"rating_count"`
	HumanRatingCount  int                        `json:"human_rating_count"`
	TransitionedAt    *time.Time                 `json:"transitioned_at,omitempty"`
}

func (h *AggregatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	goalID, ok := uuidParam(r, "goalID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}
	variantID, ok := uuidParam(r, "variantID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid variant id")
		return
	}

	link, err := h.svc.GetAggregatedFields(r.Context(), goalID, variantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load aggregates")
		return
	}
	if link == nil {
		writeError(w, http.StatusNotFound, "no aggregates for this goal and variant")
		return
	}

	writeJSON(w, http.StatusOK, aggregatesResponse{
		GoalID:            link.GoalID,
		SolutionVariantID: link.SolutionVariantID,
		DisplayMode:       link.DisplayMode,
		AggregatedFields:  link.AggregatedFields,
		AvgEffectiveness:  link.AvgEffectiveness,
		RatingCount:       link.RatingCount,
		HumanRatingCount:  link.HumanRatingCount,
		TransitionedAt:    link.TransitionedAt,
	})
}
