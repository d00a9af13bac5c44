package domain

import (
	"github.com/google/uuid"
)

// Submission is a user's rating of one solution for a goal, optionally
// accompanied by solutions that did not work for them.
type Submission struct {
	UserID          uuid.UUID        `json:"user_id"`
	GoalID          uuid.UUID        `json:"goal_id"`
	SolutionID      *uuid.UUID       `json:"solution_id,omitempty"`
	SolutionTitle   string           `json:"solution_title,omitempty"`
	Category        string           `json:"category"`
	Variant         VariantDetails   `json:"variant"`
	Effectiveness   float64          `json:"effectiveness"`
	Fields          map[string]any   `json:"fields,omitempty"`
	FailedSolutions []FailedSolution `json:"failed_solutions,omitempty"`
}

// FailedSolution is a "did not work" rating: effectiveness only, no fields.
type FailedSolution struct {
	SolutionID    *uuid.UUID `json:"solution_id,omitempty"`
	Title         string     `json:"title,omitempty"`
	Category      string     `json:"category,omitempty"`
	Effectiveness float64    `json:"effectiveness"`
}

type SubmissionResult struct {
	Success              bool      `json:"success"`
	SolutionID           uuid.UUID `json:"solution_id"`
	VariantID            uuid.UUID `json:"variant_id"`
	ObservationID        uuid.UUID `json:"observation_id"`
	OtherSubmittersCount int       `json:"other_submitters_count"`
	Transitioned         bool      `json:"transitioned"`
	AggregationDeferred  bool      `json:"aggregation_deferred"`
}
