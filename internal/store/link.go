package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/wwfm-app/wwfm/internal/domain"
)

// LinkStore owns goal_solution_links. Writers update only their own columns
// so the aggregator, the transition gate and the rollup step do not clobber
// each other on a contended row.
type LinkStore struct {
	db Pool
}

func NewLinkStore(db Pool) *LinkStore {
	return &LinkStore{db: db}
}

func (s *LinkStore) Get(ctx context.Context, goalID, variantID uuid.UUID) (*domain.GoalSolutionLink, error) {
	l := &domain.GoalSolutionLink{}
	var fields, snapshot []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, goal_id, solution_variant_id, display_mode, human_rating_count, aggregated_fields,
		        ai_snapshot, transitioned_at, avg_effectiveness, rating_count, created_at, updated_at
		 FROM goal_solution_links
		 WHERE goal_id = $1 AND solution_variant_id = $2`,
		goalID, variantID,
	).Scan(&l.ID, &l.GoalID, &l.SolutionVariantID, &l.DisplayMode, &l.HumanRatingCount, &fields,
		&snapshot, &l.TransitionedAt, &l.AvgEffectiveness, &l.RatingCount, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: get link")
	}

	if len(fields) > 0 {
		l.AggregatedFields = &domain.AggregatedFieldSet{}
		if err := json.Unmarshal(fields, l.AggregatedFields); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal aggregated fields")
		}
	}
	if len(snapshot) > 0 {
		l.AISnapshot = &domain.AISnapshot{}
		if err := json.Unmarshal(snapshot, l.AISnapshot); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal ai snapshot")
		}
	}
	return l, nil
}

func (s *LinkStore) IncrementHumanRatingCount(ctx context.Context, goalID, variantID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`INSERT INTO goal_solution_links (goal_id, solution_variant_id, display_mode, human_rating_count)
		 VALUES ($1, $2, 'ai', 1)
		 ON CONFLICT (goal_id, solution_variant_id) DO UPDATE
		 SET human_rating_count = goal_solution_links.human_rating_count + 1, updated_at = NOW()
		 RETURNING human_rating_count`,
		goalID, variantID,
	).Scan(&count)
	if err != nil {
		return 0, eris.Wrap(err, "store: increment human rating count")
	}
	return count, nil
}

// RaiseHumanRatingCount lifts the counter to count when it is lower, creating
// the link in AI mode when absent. It never lowers the counter and reports
// whether it changed anything.
func (s *LinkStore) RaiseHumanRatingCount(ctx context.Context, goalID, variantID uuid.UUID, count int) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO goal_solution_links (goal_id, solution_variant_id, display_mode, human_rating_count)
		 VALUES ($1, $2, 'ai', $3)
		 ON CONFLICT (goal_id, solution_variant_id) DO UPDATE
		 SET human_rating_count = EXCLUDED.human_rating_count, updated_at = NOW()
		 WHERE goal_solution_links.human_rating_count < EXCLUDED.human_rating_count`,
		goalID, variantID, count,
	)
	if err != nil {
		return false, eris.Wrap(err, "store: raise human rating count")
	}
	return tag.RowsAffected() > 0, nil
}

// preservesAIData matches an existing link whose AI-seeded state must survive
// until the transition snapshots it.
const preservesAIData = `(
		   goal_solution_links.display_mode = 'ai'
		   AND (
		     goal_solution_links.ai_snapshot IS NOT NULL
		     OR COALESCE(goal_solution_links.aggregated_fields->'_metadata'->>'data_source', '') = 'ai_research'
		   )
		 )`

// UpsertAggregatedFields creates the link when absent. An existing link that
// is still in AI mode and carries a snapshot or AI-seeded fields is left
// untouched; the guard sits in the statement itself so a concurrent
// transition cannot slip between check and write.
func (s *LinkStore) UpsertAggregatedFields(ctx context.Context, goalID, variantID uuid.UUID, fields *domain.AggregatedFieldSet) (bool, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal aggregated fields")
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO goal_solution_links (goal_id, solution_variant_id, display_mode, aggregated_fields)
		 VALUES ($1, $2, 'ai', $3)
		 ON CONFLICT (goal_id, solution_variant_id) DO UPDATE
		 SET aggregated_fields = EXCLUDED.aggregated_fields, updated_at = NOW()
		 WHERE NOT `+preservesAIData,
		goalID, variantID, payload,
	)
	if err != nil {
		return false, eris.Wrap(err, "store: upsert aggregated fields")
	}
	return tag.RowsAffected() > 0, nil
}

// TryTransition relies on single-row UPDATE atomicity: concurrent callers
// serialize on the row lock and re-check the WHERE clause, so exactly one
// of them sees a modified row. The snapshot is only written when still null.
func (s *LinkStore) TryTransition(ctx context.Context, goalID, variantID uuid.UUID, threshold int, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE goal_solution_links
		 SET display_mode = 'human',
		     transitioned_at = $4,
		     ai_snapshot = COALESCE(ai_snapshot, jsonb_build_object(
		       'aggregated_fields', aggregated_fields,
		       'avg_effectiveness', avg_effectiveness,
		       'rating_count', rating_count,
		       'captured_at', $4::timestamptz
		     )),
		     updated_at = NOW()
		 WHERE goal_id = $1 AND solution_variant_id = $2
		   AND display_mode = 'ai'
		   AND transitioned_at IS NULL
		   AND human_rating_count >= $3`,
		goalID, variantID, threshold, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "store: transition link")
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertRollup writes the simple rating rollups under the same guard as
// UpsertAggregatedFields, so the snapshot captures the AI-seeded figures.
func (s *LinkStore) UpsertRollup(ctx context.Context, goalID, variantID uuid.UUID, rollup domain.RatingRollup) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO goal_solution_links (goal_id, solution_variant_id, display_mode, avg_effectiveness, rating_count)
		 VALUES ($1, $2, 'ai', $3, $4)
		 ON CONFLICT (goal_id, solution_variant_id) DO UPDATE
		 SET avg_effectiveness = EXCLUDED.avg_effectiveness,
		     rating_count = EXCLUDED.rating_count,
		     updated_at = NOW()
		 WHERE NOT `+preservesAIData,
		goalID, variantID, rollup.AvgEffectiveness, rollup.RatingCount,
	)
	return eris.Wrap(err, "store: upsert rollup")
}
