package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/wwfm-app/wwfm/internal/domain"
)

type QueueStore struct {
	db Pool
}

func NewQueueStore(db Pool) *QueueStore {
	return &QueueStore{db: db}
}

// Enqueue leaves an idle job for the pair as it is. A job that is being
// processed is marked dirty so Complete runs it again.
func (s *QueueStore) Enqueue(ctx context.Context, goalID, variantID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO aggregation_queue (goal_id, solution_variant_id, attempts, queued_at, processing, dirty)
		 VALUES ($1, $2, 0, NOW(), FALSE, FALSE)
		 ON CONFLICT (goal_id, solution_variant_id) DO UPDATE
		 SET dirty = TRUE
		 WHERE aggregation_queue.processing`,
		goalID, variantID,
	)
	return eris.Wrap(err, "store: enqueue aggregation job")
}

// Claim flags the oldest idle jobs as processing in one statement. SKIP
// LOCKED keeps two claimers from taking the same rows.
func (s *QueueStore) Claim(ctx context.Context, limit int) ([]domain.QueueJob, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.Query(ctx,
		`UPDATE aggregation_queue q
		 SET processing = TRUE
		 FROM (
		   SELECT goal_id, solution_variant_id
		   FROM aggregation_queue
		   WHERE processing = FALSE
		   ORDER BY queued_at ASC
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 ) claimed
		 WHERE q.goal_id = claimed.goal_id AND q.solution_variant_id = claimed.solution_variant_id
		 RETURNING q.goal_id, q.solution_variant_id, q.attempts, q.queued_at, q.processing, q.last_error`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: claim aggregation jobs")
	}
	defer rows.Close()

	var jobs []domain.QueueJob
	for rows.Next() {
		var j domain.QueueJob
		if err := rows.Scan(&j.GoalID, &j.SolutionVariantID, &j.Attempts, &j.QueuedAt, &j.Processing, &j.LastError); err != nil {
			return nil, eris.Wrap(err, "store: scan aggregation job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: claim aggregation jobs iterate")
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].QueuedAt.Before(jobs[k].QueuedAt)
	})
	return jobs, nil
}

func (s *QueueStore) Delete(ctx context.Context, goalID, variantID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM aggregation_queue WHERE goal_id = $1 AND solution_variant_id = $2`,
		goalID, variantID,
	)
	return eris.Wrap(err, "store: delete aggregation job")
}

// Complete finishes a successful job. A clean job is deleted; a dirty one is
// released with fresh attempts and reported as requeued.
func (s *QueueStore) Complete(ctx context.Context, goalID, variantID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM aggregation_queue
		 WHERE goal_id = $1 AND solution_variant_id = $2 AND dirty = FALSE`,
		goalID, variantID,
	)
	if err != nil {
		return false, eris.Wrap(err, "store: complete aggregation job")
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	tag, err = s.db.Exec(ctx,
		`UPDATE aggregation_queue
		 SET processing = FALSE, dirty = FALSE, attempts = 0, last_error = NULL, queued_at = NOW()
		 WHERE goal_id = $1 AND solution_variant_id = $2 AND dirty = TRUE`,
		goalID, variantID,
	)
	if err != nil {
		return false, eris.Wrap(err, "store: requeue dirty aggregation job")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *QueueStore) RecordFailure(ctx context.Context, goalID, variantID uuid.UUID, lastErr string) (int, error) {
	var attempts int
	err := s.db.QueryRow(ctx,
		`UPDATE aggregation_queue
		 SET attempts = attempts + 1, last_error = $3, processing = FALSE, dirty = FALSE
		 WHERE goal_id = $1 AND solution_variant_id = $2
		 RETURNING attempts`,
		goalID, variantID, lastErr,
	).Scan(&attempts)
	if err != nil {
		return 0, eris.Wrapf(err, "store: record failure for job %s/%s", goalID, variantID)
	}
	return attempts, nil
}

// ResetStuck leaves attempts untouched.
func (s *QueueStore) ResetStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE aggregation_queue SET processing = FALSE
		 WHERE processing = TRUE AND queued_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "store: reset stuck jobs")
	}
	return tag.RowsAffected(), nil
}

func (s *QueueStore) Metrics(ctx context.Context, now time.Time) (*domain.QueueMetrics, error) {
	var (
		pending, processing int
		oldest              *time.Time
		avgAgeSeconds       *float64
	)
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE processing = FALSE),
		        COUNT(*) FILTER (WHERE processing = TRUE),
		        MIN(queued_at),
		        AVG(EXTRACT(EPOCH FROM ($1::timestamptz - queued_at)))::float8
		 FROM aggregation_queue`,
		now,
	).Scan(&pending, &processing, &oldest, &avgAgeSeconds)
	if err != nil {
		return nil, eris.Wrap(err, "store: queue metrics")
	}

	m := &domain.QueueMetrics{
		PendingCount:      pending,
		ProcessingCount:   processing,
		OldestJobQueuedAt: oldest,
	}
	if oldest != nil {
		m.OldestJobAge = now.Sub(*oldest)
	}
	if avgAgeSeconds != nil {
		m.AverageJobAge = time.Duration(*avgAgeSeconds * float64(time.Second))
	}
	return m, nil
}
