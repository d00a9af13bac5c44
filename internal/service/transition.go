package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wwfm-app/wwfm/internal/domain"
	"go.uber.org/zap"
)

const DefaultTransitionThreshold = 3

// TransitionGate performs the one-way flip of a link from AI-estimated to
// human display. The flip itself is a conditional write in the store, so
// concurrent callers for the same pair see at most one success.
type TransitionGate struct {
	linkStore domain.LinkStore
	threshold int
	logger    *zap.Logger
	now       func() time.Time
}

func NewTransitionGate(ls domain.LinkStore, threshold int, logger *zap.Logger) *TransitionGate {
	if threshold <= 0 {
		threshold = DefaultTransitionThreshold
	}
	return &TransitionGate{
		linkStore: ls,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

func (g *TransitionGate) Threshold() int {
	return g.threshold
}

// CheckAndExecuteTransition returns true only when this call performed the
// transition. Below threshold, already transitioned and a lost race all
// return false.
func (g *TransitionGate) CheckAndExecuteTransition(ctx context.Context, goalID, variantID uuid.UUID) (bool, error) {
	link, err := g.linkStore.Get(ctx, goalID, variantID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get link: %w", err)
	}
	if link.DisplayMode != domain.DisplayModeAI || link.TransitionedAt != nil {
		return false, nil
	}
	if link.HumanRatingCount < g.threshold {
		return false, nil
	}

	fired, err := g.linkStore.TryTransition(ctx, goalID, variantID, g.threshold, g.now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition link: %w", err)
	}
	if fired {
		transitionsTotal.Inc()
		g.logger.Info("link transitioned to human display",
			zap.String("goal_id", goalID.String()),
			zap.String("solution_variant_id", variantID.String()),
			zap.Int("human_rating_count", link.HumanRatingCount),
		)
	}
	return fired, nil
}
