package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/wwfm-app/wwfm/internal/domain"
)

type ObservationStore struct {
	db Pool
}

func NewObservationStore(db Pool) *ObservationStore {
	return &ObservationStore{db: db}
}

// Create inserts an observation. A second observation for the same user,
// goal and variant violates the unique index and returns ErrConflict.
func (s *ObservationStore) Create(ctx context.Context, o *domain.Observation) error {
	fields := []byte("{}")
	if len(o.Fields) > 0 {
		b, err := json.Marshal(o.Fields)
		if err != nil {
			return eris.Wrap(err, "store: marshal observation fields")
		}
		fields = b
	}
	if o.Provenance == "" {
		o.Provenance = domain.ProvenanceHuman
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO observations (user_id, goal_id, solution_variant_id, effectiveness, fields, provenance)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		o.UserID, o.GoalID, o.SolutionVariantID, o.Effectiveness, fields, o.Provenance,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return eris.Wrap(err, "store: create observation")
	}
	return nil
}

func (s *ObservationStore) ExistsForUser(ctx context.Context, userID, goalID, variantID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM observations
		   WHERE user_id = $1 AND goal_id = $2 AND solution_variant_id = $3 AND provenance = 'human'
		 )`,
		userID, goalID, variantID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "store: check duplicate observation")
	}
	return exists, nil
}

func (s *ObservationStore) ListHumanByPair(ctx context.Context, goalID, variantID uuid.UUID) ([]domain.Observation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, goal_id, solution_variant_id, effectiveness, fields, provenance, created_at
		 FROM observations
		 WHERE goal_id = $1 AND solution_variant_id = $2 AND provenance = 'human'
		 ORDER BY created_at ASC, id ASC`,
		goalID, variantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list observations")
	}
	defer rows.Close()

	var observations []domain.Observation
	for rows.Next() {
		var o domain.Observation
		var fields []byte
		if err := rows.Scan(&o.ID, &o.UserID, &o.GoalID, &o.SolutionVariantID, &o.Effectiveness, &fields, &o.Provenance, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan observation")
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &o.Fields); err != nil {
				return nil, eris.Wrapf(err, "store: unmarshal observation %s fields", o.ID)
			}
		}
		observations = append(observations, o)
	}
	return observations, eris.Wrap(rows.Err(), "store: list observations iterate")
}

func (s *ObservationStore) GetRollup(ctx context.Context, goalID, variantID uuid.UUID) (domain.RatingRollup, error) {
	var r domain.RatingRollup
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(AVG(effectiveness), 0), COUNT(*)
		 FROM observations
		 WHERE goal_id = $1 AND solution_variant_id = $2 AND provenance = 'human'`,
		goalID, variantID,
	).Scan(&r.AvgEffectiveness, &r.RatingCount)
	if err != nil {
		return r, eris.Wrap(err, "store: rollup observations")
	}
	return r, nil
}

func (s *ObservationStore) CountOtherSubmitters(ctx context.Context, goalID, variantID, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id)
		 FROM observations
		 WHERE goal_id = $1 AND solution_variant_id = $2 AND user_id <> $3 AND provenance = 'human'`,
		goalID, variantID, userID,
	).Scan(&count)
	return count, eris.Wrap(err, "store: count other submitters")
}
