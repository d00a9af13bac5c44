package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineResult is the outcome of one gate-then-aggregate run.
type PipelineResult struct {
	Transitioned bool
	Aggregation  *AggregationResult
}

// AggregationPipeline is the unit of work shared by the inline submission
// path and the queue processor. The gate runs first so a transition fired by
// this run is followed immediately by the human recompute.
type AggregationPipeline struct {
	gate       *TransitionGate
	aggregator *Aggregator
	logger     *zap.Logger
}

func NewAggregationPipeline(gate *TransitionGate, aggregator *Aggregator, logger *zap.Logger) *AggregationPipeline {
	return &AggregationPipeline{gate: gate, aggregator: aggregator, logger: logger}
}

// Reconcile raises the link's human counter to the number of stored human
// observations before the gate reads it.
func (p *AggregationPipeline) Reconcile(ctx context.Context, goalID, variantID uuid.UUID) error {
	return p.aggregator.ReconcileHumanRatingCount(ctx, goalID, variantID)
}

func (p *AggregationPipeline) Run(ctx context.Context, goalID, variantID uuid.UUID) (*PipelineResult, error) {
	transitioned, err := p.gate.CheckAndExecuteTransition(ctx, goalID, variantID)
	if err != nil {
		return nil, err
	}

	agg, err := p.aggregator.UpdateAggregatesAfterObservation(ctx, goalID, variantID)
	if err != nil {
		return &PipelineResult{Transitioned: transitioned}, err
	}

	// Rollups are held at their AI-seeded values until the snapshot. Any run
	// that writes human aggregates refreshes them too, so a transition whose
	// first aggregation failed is caught up on retry.
	if transitioned || agg.Written {
		if _, err := p.aggregator.RefreshRollup(ctx, goalID, variantID); err != nil {
			p.logger.Warn("failed to refresh rollup",
				zap.String("goal_id", goalID.String()),
				zap.String("solution_variant_id", variantID.String()),
				zap.Bool("transitioned", transitioned),
				zap.Error(err),
			)
		}
	}

	return &PipelineResult{Transitioned: transitioned, Aggregation: agg}, nil
}
