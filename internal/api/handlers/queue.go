package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wwfm-app/wwfm/internal/domain"
	"github.com/wwfm-app/wwfm/internal/service"
	"go.uber.org/zap"
)

// QueueRunner is the operator surface of the aggregation queue processor.
type QueueRunner interface {
	ProcessPendingJobs(ctx context.Context) (*service.ProcessSummary, error)
	ClearStuckJobs(ctx context.Context) (int64, error)
	GetQueueMetrics(ctx context.Context) (*domain.QueueMetrics, error)
}

type QueueHandler struct {
	runner QueueRunner
	logger *zap.Logger
}

func NewQueueHandler(runner QueueRunner, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{runner: runner, logger: logger}
}

func (h *QueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.ProcessPendingJobs(r.Context())
	if err != nil {
		h.logger.Error("manual queue processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process queue")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *QueueHandler) Reap(w http.ResponseWriter, r *http.Request) {
	n, err := h.runner.ClearStuckJobs(r.Context())
	if err != nil {
		h.logger.Error("manual stuck job reap failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear stuck jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

type queueMetricsResponse struct {
	PendingCount         int     `json:"pending_count"`
	ProcessingCount      int     `json:"processing_count"`
	OldestJobAgeSeconds  float64 `json:"oldest_job_age_seconds"`
	AverageJobAgeSeconds float64 `json:"average_job_age_seconds"`
	OldestJobQueuedAt    *string `json:"oldest_job_queued_at,omitempty"`
}

func (h *QueueHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.runner.GetQueueMetrics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue metrics")
		return
	}

	resp := queueMetricsResponse{
		PendingCount:         m.PendingCount,
		ProcessingCount:      m.ProcessingCount,
		OldestJobAgeSeconds:  m.OldestJobAge.Seconds(),
		AverageJobAgeSeconds: m.AverageJobAge.Seconds(),
	}
	if m.OldestJobQueuedAt != nil {
		ts := m.OldestJobQueuedAt.UTC().Format(time.RFC3339)
		resp.OldestJobQueuedAt = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}
