package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provenance tags who produced an observation. Only human observations are
// ever aggregated.
type Provenance string

const (
	ProvenanceHuman  Provenance = "human"
	ProvenanceAISeed Provenance = "ai-seed"
)

// Observation is one user's rating of a solution variant for a goal. It is
// immutable once created.
type Observation struct {
	ID                uuid.UUID      `json:"id"`
	UserID            uuid.UUID      `json:"user_id"`
	GoalID            uuid.UUID      `json:"goal_id"`
	SolutionVariantID uuid.UUID      `json:"solution_variant_id"`
	Effectiveness     float64        `json:"effectiveness"`
	Fields            map[string]any `json:"fields,omitempty"`
	Provenance        Provenance     `json:"provenance"`
	CreatedAt         time.Time      `json:"created_at"`
}

const (
	MinEffectiveness = 1
	MaxEffectiveness = 5
)

func ValidEffectiveness(score float64) bool {
	return score >= MinEffectiveness && score <= MaxEffectiveness
}

// PairKey identifies a goal/solution-variant pair.
type PairKey struct {
	GoalID            uuid.UUID `json:"goal_id"`
	SolutionVariantID uuid.UUID `json:"solution_variant_id"`
}

// RatingRollup is the simple average/count summary of a pair.
type RatingRollup struct {
	AvgEffectiveness float64
	RatingCount      int
}
