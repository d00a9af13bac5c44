package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueJob is a deferred aggregation run for one pair. At most one job exists
// per pair.
type QueueJob struct {
	GoalID            uuid.UUID `json:"goal_id"`
	SolutionVariantID uuid.UUID `json:"solution_variant_id"`
	Attempts          int       `json:"attempts"`
	QueuedAt          time.Time `json:"queued_at"`
	Processing        bool      `json:"processing"`
	LastError         *string   `json:"last_error,omitempty"`
}

func (j *QueueJob) Key() PairKey {
	return PairKey{GoalID: j.GoalID, SolutionVariantID: j.SolutionVariantID}
}

// QueueMetrics is a read-only health snapshot of the aggregation queue.
type QueueMetrics struct {
	PendingCount      int           `json:"pending_count"`
	ProcessingCount   int           `json:"processing_count"`
	OldestJobAge      time.Duration `json:"oldest_job_age"`
	AverageJobAge     time.Duration `json:"average_job_age"`
	OldestJobQueuedAt *time.Time    `json:"oldest_job_queued_at,omitempty"`
}
