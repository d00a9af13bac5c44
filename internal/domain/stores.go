package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*User, error)
}

type SolutionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Solution, error)
	GetByTitle(ctx context.Context, title, category string) (*Solution, error)
	Create(ctx context.Context, s *Solution) error
	Approve(ctx context.Context, id uuid.UUID) error

	GetVariantByID(ctx context.Context, id uuid.UUID) (*SolutionVariant, error)
	GetVariantByName(ctx context.Context, solutionID uuid.UUID, name string) (*SolutionVariant, error)
	CreateVariant(ctx context.Context, v *SolutionVariant) error
}

type ObservationStore interface {
	Create(ctx context.Context, o *Observation) error
	ExistsForUser(ctx context.Context, userID, goalID, variantID uuid.UUID) (bool, error)
	// ListHumanByPair returns human observations oldest first.
	ListHumanByPair(ctx context.Context, goalID, variantID uuid.UUID) ([]Observation, error)
	GetRollup(ctx context.Context, goalID, variantID uuid.UUID) (RatingRollup, error)
	CountOtherSubmitters(ctx context.Context, goalID, variantID, userID uuid.UUID) (int, error)
}

// LinkStore persists GoalSolutionLink rows. Every write targets only the
// columns it owns.
type LinkStore interface {
	Get(ctx context.Context, goalID, variantID uuid.UUID) (*GoalSolutionLink, error)
	// IncrementHumanRatingCount atomically bumps the counter, creating the
	// link in AI mode when absent, and returns the new count.
	IncrementHumanRatingCount(ctx context.Context, goalID, variantID uuid.UUID) (int, error)
	// RaiseHumanRatingCount lifts the counter to count if it is lower and
	// reports whether it did.
	RaiseHumanRatingCount(ctx context.Context, goalID, variantID uuid.UUID, count int) (bool, error)
	// UpsertAggregatedFields writes fields unless the link preserves AI data.
	// It reports whether the row was written.
	UpsertAggregatedFields(ctx context.Context, goalID, variantID uuid.UUID, fields *AggregatedFieldSet) (bool, error)
	// TryTransition flips an AI link to human display if its human rating
	// count has reached threshold. Only one caller can ever observe true.
	TryTransition(ctx context.Context, goalID, variantID uuid.UUID, threshold int, now time.Time) (bool, error)
	// UpsertRollup writes avg_effectiveness and rating_count under the same
	// guard as UpsertAggregatedFields.
	UpsertRollup(ctx context.Context, goalID, variantID uuid.UUID, rollup RatingRollup) error
}

type QueueStore interface {
	// Enqueue creates a job for the pair. An idle job is left as is; a job
	// being processed is marked dirty.
	Enqueue(ctx context.Context, goalID, variantID uuid.UUID) error
	// Claim marks up to limit of the oldest idle jobs as processing and
	// returns them.
	Claim(ctx context.Context, limit int) ([]QueueJob, error)
	// Complete deletes a processed job, or releases it for another run when
	// it was marked dirty meanwhile. It reports whether the job was kept.
	Complete(ctx context.Context, goalID, variantID uuid.UUID) (bool, error)
	Delete(ctx context.Context, goalID, variantID uuid.UUID) error
	// RecordFailure increments attempts, stores the error and clears the
	// processing flag. It returns the new attempt count.
	RecordFailure(ctx context.Context, goalID, variantID uuid.UUID, lastErr string) (int, error)
	// ResetStuck clears the processing flag on jobs queued before cutoff.
	ResetStuck(ctx context.Context, cutoff time.Time) (int64, error)
	Metrics(ctx context.Context, now time.Time) (*QueueMetrics, error)
}

type FollowUpStore interface {
	Schedule(ctx context.Context, e *FollowUpEvent) error
}
