package service

import (
	"errors"

	"github.com/wwfm-app/wwfm/internal/store"
)

var (
	ErrUnauthorized        = errors.New("caller is not the submitting user")
	ErrDuplicateSubmission = errors.New("user already rated this solution for this goal")
	ErrPersistenceFailure  = errors.New("failed to save submission")

	ErrMissingGoalID        = errors.New("goal_id is required")
	ErrMissingSolution      = errors.New("solution_id or solution_title is required")
	ErrMissingCategory      = errors.New("category is required when creating a solution")
	ErrInvalidEffectiveness = errors.New("effectiveness must be between 1 and 5")
	ErrUnknownField         = errors.New("field is not tracked for this category")
	ErrSolutionNotFound     = errors.New("solution not found")
)

// IsValidationError reports whether err is caused by a malformed submission.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrMissingGoalID,
		ErrMissingSolution,
		ErrMissingCategory,
		ErrInvalidEffectiveness,
		ErrUnknownField,
		ErrSolutionNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
