package store

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/wwfm-app/wwfm/internal/domain"
)

type FollowUpStore struct {
	db Pool
}

func NewFollowUpStore(db Pool) *FollowUpStore {
	return &FollowUpStore{db: db}
}

func (s *FollowUpStore) Schedule(ctx context.Context, e *domain.FollowUpEvent) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO follow_up_events (user_id, goal_id, solution_variant_id, event_type, due_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.UserID, e.GoalID, e.SolutionVariantID, e.EventType, e.DueAt,
	).Scan(&e.ID, &e.CreatedAt)
	return eris.Wrap(err, "store: schedule follow-up")
}
