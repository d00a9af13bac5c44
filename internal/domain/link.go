package domain

import (
	"time"

	"github.com/google/uuid"
)

type DisplayMode string

const (
	DisplayModeAI    DisplayMode = "ai"
	DisplayModeHuman DisplayMode = "human"
)

// AISnapshot is the frozen pre-transition AI state of a link. It is written
// exactly once, when the link transitions to human display.
type AISnapshot struct {
	AggregatedFields *AggregatedFieldSet `json:"aggregated_fields"`
	AvgEffectiveness float64             `json:"avg_effectiveness"`
	RatingCount      int                 `json:"rating_count"`
	CapturedAt       time.Time           `json:"captured_at"`
}

// GoalSolutionLink is the mutable record for one goal/solution-variant pair.
type GoalSolutionLink struct {
	ID                uuid.UUID           `json:"id"`
	GoalID            uuid.UUID           `json:"goal_id"`
	SolutionVariantID uuid.UUID           `json:"solution_variant_id"`
	DisplayMode       DisplayMode         `json:"display_mode"`
	HumanRatingCount  int                 `json:"human_rating_count"`
	AggregatedFields  *AggregatedFieldSet `json:"aggregated_fields"`
	AISnapshot        *AISnapshot         `json:"ai_snapshot,omitempty"`
	TransitionedAt    *time.Time          `json:"transitioned_at,omitempty"`
	AvgEffectiveness  float64             `json:"avg_effectiveness"`
	RatingCount       int                 `json:"rating_count"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// PreservesAIData reports whether aggregate writes must leave this link's
// aggregated fields alone: it is still in AI display mode and either carries
// a snapshot or shows AI-seeded fields.
func (l *GoalSolutionLink) PreservesAIData() bool {
	if l == nil || l.DisplayMode != DisplayModeAI {
		return false
	}
	if l.AISnapshot != nil {
		return true
	}
	return l.AggregatedFields != nil && l.AggregatedFields.Metadata.DataSource == DataSourceAIResearch
}

func (l *GoalSolutionLink) Key() PairKey {
	return PairKey{GoalID: l.GoalID, SolutionVariantID: l.SolutionVariantID}
}
