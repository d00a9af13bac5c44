package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/wwfm-app/wwfm/internal/domain"
)

// LinkService is the read path for a pair's displayed statistics.
type LinkService struct {
	linkStore domain.LinkStore
}

func NewLinkService(ls domain.LinkStore) *LinkService {
	return &LinkService{linkStore: ls}
}

// GetAggregatedFields returns the link for the pair, or nil when the pair has
// no link yet. Whatever aggregated_fields currently holds is what is shown,
// AI-seeded before the transition and human-computed after.
func (s *LinkService) GetAggregatedFields(ctx context.Context, goalID, variantID uuid.UUID) (*domain.GoalSolutionLink, error) {
	link, err := s.linkStore.Get(ctx, goalID, variantID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return link, nil
}
