package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wwfm-app/wwfm/internal/domain"
	"go.uber.org/zap"
)

// AggregationResult describes what a single aggregation run did.
type AggregationResult struct {
	Fields  *domain.AggregatedFieldSet
	Written bool
	// Guarded is true when the link still holds preserved AI data and the
	// write was skipped.
	Guarded bool
}

// Aggregator recomputes a pair's AggregatedFieldSet from its human
// observations. It never retries; callers decide what to do with errors.
type Aggregator struct {
	observationStore domain.ObservationStore
	linkStore        domain.LinkStore
	logger           *zap.Logger
	now              func() time.Time
}

func NewAggregator(os domain.ObservationStore, ls domain.LinkStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		observationStore: os,
		linkStore:        ls,
		logger:           logger,
		now:              time.Now,
	}
}

// ComputeAggregates builds a fresh field set from every human observation of
// the pair. Zero observations yield an empty field set, not an error.
func (a *Aggregator) ComputeAggregates(ctx context.Context, goalID, variantID uuid.UUID) (*domain.AggregatedFieldSet, error) {
	observations, err := a.observationStore.ListHumanByPair(ctx, goalID, variantID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}

	human := observations[:0:0]
	for _, o := range observations {
		if o.Provenance == domain.ProvenanceHuman {
			human = append(human, o)
		}
	}

	fs := domain.NewAggregatedFieldSet(domain.DataSourceUserSubmission, len(human), a.now().UTC())
	if len(human) == 0 {
		return fs, nil
	}

	tallies := make(map[string]*domain.Tally)
	reports := make(map[string]int)
	var order []string

	for _, o := range human {
		for name, raw := range o.Fields {
			fieldType, ok := domain.LookupFieldType(name)
			if !ok {
				continue
			}
			values := normalizeFieldValue(fieldType, raw)
			if len(values) == 0 {
				continue
			}

			t, ok := tallies[name]
			if !ok {
				t = domain.NewTally()
				tallies[name] = t
				order = append(order, name)
			}
			for _, v := range values {
				t.Add(v)
			}
			reports[name]++
		}
	}

	for _, name := range order {
		if d := domain.BuildDistribution(tallies[name], reports[name], domain.DataSourceUserSubmission); d != nil {
			fs.Fields[name] = d
		}
	}

	return fs, nil
}

// UpdateAggregatesAfterObservation recomputes the pair's aggregates and writes
// them to its link, creating the link if needed. A link that still preserves
// AI data is left untouched; only the transition gate may release it.
func (a *Aggregator) UpdateAggregatesAfterObservation(ctx context.Context, goalID, variantID uuid.UUID) (*AggregationResult, error) {
	start := time.Now()
	defer func() { aggregationDuration.Observe(time.Since(start).Seconds()) }()

	link, err := a.linkStore.Get(ctx, goalID, variantID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("get link: %w", err)
	}
	if link.PreservesAIData() {
		a.logger.Debug("aggregation skipped, link preserves AI data",
			zap.String("goal_id", goalID.String()),
			zap.String("solution_variant_id", variantID.String()),
		)
		return &AggregationResult{Guarded: true}, nil
	}

	fs, err := a.ComputeAggregates(ctx, goalID, variantID)
	if err != nil {
		return nil, err
	}
	if fs.Metadata.TotalRatings == 0 {
		return &AggregationResult{Fields: fs}, nil
	}

	written, err := a.linkStore.UpsertAggregatedFields(ctx, goalID, variantID, fs)
	if err != nil {
		return nil, fmt.Errorf("write aggregated fields: %w", err)
	}

	return &AggregationResult{Fields: fs, Written: written, Guarded: !written}, nil
}

// RefreshRollup recomputes avg_effectiveness and rating_count from the pair's
// human observations and writes them to the link.
func (a *Aggregator) RefreshRollup(ctx context.Context, goalID, variantID uuid.UUID) (domain.RatingRollup, error) {
	rollup, err := a.observationStore.GetRollup(ctx, goalID, variantID)
	if err != nil {
		return rollup, fmt.Errorf("compute rollup: %w", err)
	}
	if err := a.linkStore.UpsertRollup(ctx, goalID, variantID, rollup); err != nil {
		return rollup, fmt.Errorf("write rollup: %w", err)
	}
	return rollup, nil
}

// ReconcileHumanRatingCount lifts human_rating_count to the stored human
// observation count. The counter only moves up, so a lost increment is
// recovered without undoing a concurrent one.
func (a *Aggregator) ReconcileHumanRatingCount(ctx context.Context, goalID, variantID uuid.UUID) error {
	rollup, err := a.observationStore.GetRollup(ctx, goalID, variantID)
	if err != nil {
		return fmt.Errorf("count observations: %w", err)
	}
	if rollup.RatingCount == 0 {
		return nil
	}
	raised, err := a.linkStore.RaiseHumanRatingCount(ctx, goalID, variantID, rollup.RatingCount)
	if err != nil {
		return fmt.Errorf("reconcile human rating count: %w", err)
	}
	if raised {
		a.logger.Info("human rating count reconciled",
			zap.String("goal_id", goalID.String()),
			zap.String("solution_variant_id", variantID.String()),
			zap.Int("human_rating_count", rollup.RatingCount),
		)
	}
	return nil
}

// normalizeFieldValue turns a raw observation value into the bucket labels it
// counts toward. Array fields contribute each distinct non-empty element.
func normalizeFieldValue(fieldType domain.FieldType, raw any) []string {
	switch fieldType {
	case domain.FieldTypeArray:
		var items []any
		switch v := raw.(type) {
		case []any:
			items = v
		case []string:
			for _, s := range v {
				items = append(items, s)
			}
		default:
			items = []any{v}
		}
		seen := make(map[string]struct{}, len(items))
		var out []string
		for _, item := range items {
			s, ok := scalarString(item)
			if !ok {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		return out

	case domain.FieldTypeBoolean:
		switch v := raw.(type) {
		case bool:
			return []string{strconv.FormatBool(v)}
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes":
				return []string{"true"}
			case "false", "no":
				return []string{"false"}
			}
		}
		return nil

	default:
		if s, ok := scalarString(raw); ok {
			return []string{s}
		}
		return nil
	}
}

func scalarString(raw any) (string, bool) {
	var s string
	switch v := raw.(type) {
	case string:
		s = strings.TrimSpace(v)
	case bool:
		s = strconv.FormatBool(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		s = strconv.Itoa(v)
	default:
		return "", false
	}
	return s, s != ""
}
