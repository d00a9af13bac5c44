package domain

import (
	"time"

	"github.com/google/uuid"
)

const FollowUpRatingCheckIn = "rating_check_in"

// FollowUpEvent asks a user to revisit a rating at a later date.
type FollowUpEvent struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	GoalID            uuid.UUID `json:"goal_id"`
	SolutionVariantID uuid.UUID `json:"solution_variant_id"`
	EventType         string    `json:"event_type"`
	DueAt             time.Time `json:"due_at"`
	CreatedAt         time.Time `json:"created_at"`
}
