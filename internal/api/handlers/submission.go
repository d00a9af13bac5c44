package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/wwfm-app/wwfm/internal/api/middleware"
	"github.com/wwfm-app/wwfm/internal/domain"
	"github.com/wwfm-app/wwfm/internal/service"
	"go.uber.org/zap"
)

// Submitter runs the rating submission workflow.
type Submitter interface {
	Submit(ctx context.Context, callerID uuid.UUID, sub *domain.Submission) (*domain.SubmissionResult, error)
}

type SubmissionHandler struct {
	svc    Submitter
	logger *zap.Logger
}

func NewSubmissionHandler(svc Submitter, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, logger: logger}
}

type failedSolutionRequest struct {
	SolutionID    string  `json:"solution_id,omitempty"`
	Title         string  `json:"title,omitempty"`
	Category      string  `json:"category,omitempty"`
	Effectiveness float64 `json:"effectiveness"`
}

type submitRequest struct {
	// UserID is the asserted submitter; it defaults to the caller.
	UserID          string                  `json:"user_id,omitempty"`
	GoalID          string                  `json:"goal_id"`
	SolutionID      string                  `json:"solution_id,omitempty"`
	SolutionTitle   string                  `json:"solution_title,omitempty"`
	Category        string                  `json:"category,omitempty"`
	Variant         domain.VariantDetails   `json:"variant"`
	Effectiveness   float64                 `json:"effectiveness"`
	Fields          map[string]any          `json:"fields,omitempty"`
	FailedSolutions []failedSolutionRequest `json:"failed_solutions,omitempty"`
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, msg := req.toSubmission(user.ID)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.svc.Submit(r.Context(), user.ID, sub)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthorized):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, service.ErrDuplicateSubmission):
			writeError(w, http.StatusConflict, err.Error())
		case service.IsValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("submission failed",
				zap.String("user_id", user.ID.String()),
				zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, service.ErrPersistenceFailure.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (req *submitRequest) toSubmission(callerID uuid.UUID) (*domain.Submission, string) {
	sub := &domain.Submission{
		UserID:        callerID,
		SolutionTitle: req.SolutionTitle,
		Category:      req.Category,
		Variant:       req.Variant,
		Effectiveness: req.Effectiveness,
		Fields:        req.Fields,
	}

	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, "invalid user_id"
		}
		sub.UserID = id
	}

	goalID, err := uuid.Parse(req.GoalID)
	if err != nil {
		return nil, "invalid goal_id"
	}
	sub.GoalID = goalID

	if req.SolutionID != "" {
		id, err := uuid.Parse(req.SolutionID)
		if err != nil {
			return nil, "invalid solution_id"
		}
		sub.SolutionID = &id
	}

	for _, f := range req.FailedSolutions {
		failed := domain.FailedSolution{Title: f.Title, Category: f.Category, Effectiveness: f.Effectiveness}
		if f.SolutionID != "" {
			id, err := uuid.Parse(f.SolutionID)
			if err != nil {
				return nil, "invalid failed_solutions solution_id"
			}
			failed.SolutionID = &id
		}
		sub.FailedSolutions = append(sub.FailedSolutions, failed)
	}

	return sub, ""
}
