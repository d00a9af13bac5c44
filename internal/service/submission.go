package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wwfm-app/wwfm/internal/domain"
	"github.com/wwfm-app/wwfm/internal/resilience"
	"go.uber.org/zap"
)

const (
	DefaultAutoApproveThreshold = 3
	DefaultFollowUpDelay        = 4380 * time.Hour
)

var errAggregationNotVisible = errors.New("aggregated fields not visible after write")

type SubmissionConfig struct {
	// Retry bounds the inline aggregation attempts. MaxAttempts <= 0 skips
	// the inline run and hands every pair straight to the queue.
	Retry                resilience.RetryConfig
	AutoApproveThreshold int
	FollowUpDelay        time.Duration
}

func DefaultSubmissionConfig() SubmissionConfig {
	return SubmissionConfig{
		Retry:                resilience.DefaultRetryConfig(),
		AutoApproveThreshold: DefaultAutoApproveThreshold,
		FollowUpDelay:        DefaultFollowUpDelay,
	}
}

// SubmissionService runs the per-rating workflow. Only authorization,
// validation, duplicate and primary-write failures reach the caller;
// everything after the observation is saved is best-effort.
type SubmissionService struct {
	solutionStore    domain.SolutionStore
	observationStore domain.ObservationStore
	linkStore        domain.LinkStore
	queueStore       domain.QueueStore
	followUpStore    domain.FollowUpStore
	pipeline         *AggregationPipeline
	cfg              SubmissionConfig
	logger           *zap.Logger
	now              func() time.Time
}

func NewSubmissionService(
	ss domain.SolutionStore,
	os domain.ObservationStore,
	ls domain.LinkStore,
	qs domain.QueueStore,
	fs domain.FollowUpStore,
	pipeline *AggregationPipeline,
	cfg SubmissionConfig,
	logger *zap.Logger,
) *SubmissionService {
	if cfg.AutoApproveThreshold <= 0 {
		cfg.AutoApproveThreshold = DefaultAutoApproveThreshold
	}
	if cfg.FollowUpDelay <= 0 {
		cfg.FollowUpDelay = DefaultFollowUpDelay
	}
	return &SubmissionService{
		solutionStore:    ss,
		observationStore: os,
		linkStore:        ls,
		queueStore:       qs,
		followUpStore:    fs,
		pipeline:         pipeline,
		cfg:              cfg,
		logger:           logger,
		now:              time.Now,
	}
}

func (s *SubmissionService) Submit(ctx context.Context, callerID uuid.UUID, sub *domain.Submission) (*domain.SubmissionResult, error) {
	result, err := s.submit(ctx, callerID, sub)
	switch {
	case err == nil:
		submissionsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, ErrUnauthorized):
		submissionsTotal.WithLabelValues("unauthorized").Inc()
	case errors.Is(err, ErrDuplicateSubmission):
		submissionsTotal.WithLabelValues("duplicate").Inc()
	case IsValidationError(err):
		submissionsTotal.WithLabelValues("invalid").Inc()
	default:
		submissionsTotal.WithLabelValues("persistence_failure").Inc()
	}
	return result, err
}

func (s *SubmissionService) submit(ctx context.Context, callerID uuid.UUID, sub *domain.Submission) (*domain.SubmissionResult, error) {
	// 1. Identity
	if callerID == uuid.Nil || sub.UserID != callerID {
		return nil, ErrUnauthorized
	}
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	// 2-3. Resolve the target, then reject duplicates before writing anything
	solution, err := s.resolveSolution(ctx, sub.SolutionID, sub.SolutionTitle, sub.Category, callerID)
	if err != nil {
		return nil, err
	}
	if sub.SolutionID != nil {
		if err := checkCategoryFields(solution.Category, sub.Fields); err != nil {
			return nil, err
		}
	}
	variant, err := s.resolveVariant(ctx, solution, sub.Variant)
	if err != nil {
		return nil, err
	}

	exists, err := s.observationStore.ExistsForUser(ctx, callerID, sub.GoalID, variant.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if exists {
		return nil, ErrDuplicateSubmission
	}

	// 4. Primary write
	obs := &domain.Observation{
		UserID:            callerID,
		GoalID:            sub.GoalID,
		SolutionVariantID: variant.ID,
		Effectiveness:     sub.Effectiveness,
		Fields:            sub.Fields,
		Provenance:        domain.ProvenanceHuman,
	}
	if err := s.observationStore.Create(ctx, obs); err != nil {
		if isConflict(err) {
			return nil, ErrDuplicateSubmission
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	result := &domain.SubmissionResult{
		Success:       true,
		SolutionID:    solution.ID,
		VariantID:     variant.ID,
		ObservationID: obs.ID,
	}

	logger := s.logger.With(
		zap.String("user_id", callerID.String()),
		zap.String("goal_id", sub.GoalID.String()),
		zap.String("solution_variant_id", variant.ID.String()),
	)

	// Everything below is best-effort. A missed increment is recovered by
	// the queue processor, which reconciles the count before the gate runs.
	if _, err := s.linkStore.IncrementHumanRatingCount(ctx, sub.GoalID, variant.ID); err != nil {
		logger.Error("failed to increment human rating count, queueing reconcile", zap.Error(err))
		s.enqueue(ctx, sub.GoalID, variant.ID, logger)
	}

	// 5. Inline aggregation
	transitioned, deferred := s.aggregateInline(ctx, sub.GoalID, variant.ID, logger)
	result.Transitioned = transitioned
	result.AggregationDeferred = deferred

	// 6. Rollups and auto-approval
	s.refreshRollup(ctx, sub.GoalID, variant.ID, solution, logger)

	// 7. Solutions that did not work
	for _, failed := range sub.FailedSolutions {
		s.recordFailedSolution(ctx, callerID, sub.GoalID, failed, logger)
	}

	// 8. Follow-up
	s.scheduleFollowUp(ctx, callerID, sub.GoalID, variant.ID, logger)

	others, err := s.observationStore.CountOtherSubmitters(ctx, sub.GoalID, variant.ID, callerID)
	if err != nil {
		logger.Warn("failed to count other submitters", zap.Error(err))
	}
	result.OtherSubmittersCount = others

	return result, nil
}

func validateSubmission(sub *domain.Submission) error {
	if sub.GoalID == uuid.Nil {
		return ErrMissingGoalID
	}
	if sub.SolutionID == nil && strings.TrimSpace(sub.SolutionTitle) == "" {
		return ErrMissingSolution
	}
	if sub.SolutionID == nil && strings.TrimSpace(sub.Category) == "" {
		return ErrMissingCategory
	}
	if !domain.ValidEffectiveness(sub.Effectiveness) {
		return ErrInvalidEffectiveness
	}
	for name := range sub.Fields {
		if _, ok := domain.LookupFieldType(name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}
	// Submissions by id are checked once the solution's category is known.
	if sub.SolutionID == nil {
		return checkCategoryFields(sub.Category, sub.Fields)
	}
	return nil
}

// checkCategoryFields rejects fields the category's form does not collect.
func checkCategoryFields(category string, fields map[string]any) error {
	cfg := domain.FieldsForCategory(category)
	for name := range fields {
		if !cfg.Collects(name) {
			return fmt.Errorf("%w: %s is not collected for %s", ErrUnknownField, name, category)
		}
	}
	return nil
}

// resolveTarget finds or creates the solution and its variant. A unique
// violation on create means another request won; the row is re-fetched.
func (s *SubmissionService) resolveTarget(ctx context.Context, solutionID *uuid.UUID, title, category string, details domain.VariantDetails, createdBy uuid.UUID) (*domain.Solution, *domain.SolutionVariant, error) {
	solution, err := s.resolveSolution(ctx, solutionID, title, category, createdBy)
	if err != nil {
		return nil, nil, err
	}
	variant, err := s.resolveVariant(ctx, solution, details)
	if err != nil {
		return nil, nil, err
	}
	return solution, variant, nil
}

func (s *SubmissionService) resolveSolution(ctx context.Context, solutionID *uuid.UUID, title, category string, createdBy uuid.UUID) (*domain.Solution, error) {
	if solutionID != nil {
		solution, err := s.solutionStore.GetByID(ctx, *solutionID)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrSolutionNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		return solution, nil
	}

	title = strings.TrimSpace(title)
	category = strings.TrimSpace(category)

	solution, err := s.solutionStore.GetByTitle(ctx, title, category)
	if err == nil {
		return solution, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	solution = &domain.Solution{Title: title, Category: category, CreatedBy: createdBy}
	if err := s.solutionStore.Create(ctx, solution); err != nil {
		if !isConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		solution, err = s.solutionStore.GetByTitle(ctx, title, category)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
	}
	return solution, nil
}

func (s *SubmissionService) resolveVariant(ctx context.Context, solution *domain.Solution, details domain.VariantDetails) (*domain.SolutionVariant, error) {
	name := domain.VariantName(solution.Category, details)

	variant, err := s.solutionStore.GetVariantByName(ctx, solution.ID, name)
	if err == nil {
		return variant, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	variant = &domain.SolutionVariant{
		SolutionID:  solution.ID,
		VariantName: name,
		IsDefault:   name == domain.StandardVariantName,
	}
	if name != domain.StandardVariantName {
		variant.Amount = strings.TrimSpace(details.Amount)
		variant.Unit = strings.TrimSpace(details.Unit)
		variant.Form = strings.TrimSpace(details.Form)
	}
	if err := s.solutionStore.CreateVariant(ctx, variant); err != nil {
		if !isConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		variant, err = s.solutionStore.GetVariantByName(ctx, solution.ID, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
	}
	return variant, nil
}

// aggregateInline runs the pipeline with bounded retries. Each attempt is
// only counted as a success once the write is visible on the link. When the
// attempts run out the pair is queued for the background processor.
func (s *SubmissionService) aggregateInline(ctx context.Context, goalID, variantID uuid.UUID, logger *zap.Logger) (transitioned, deferred bool) {
	if s.cfg.Retry.MaxAttempts <= 0 {
		s.enqueue(ctx, goalID, variantID, logger)
		return false, true
	}

	logRetry := resilience.RetryLogger(logger, "inline aggregation")
	retry := s.cfg.Retry
	retry.OnRetry = func(attempt int, err error) {
		aggregationAttempts.WithLabelValues("inline", "retry").Inc()
		logRetry(attempt, err)
	}

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		res, err := s.pipeline.Run(ctx, goalID, variantID)
		if res != nil && res.Transitioned {
			transitioned = true
		}
		if err != nil {
			return err
		}
		return s.verifyAggregation(ctx, goalID, variantID, res.Aggregation)
	})
	if err != nil {
		aggregationAttempts.WithLabelValues("inline", "exhausted").Inc()
		logger.Error("inline aggregation exhausted retries, deferring to queue", zap.Error(err))
		s.enqueue(ctx, goalID, variantID, logger)
		return transitioned, true
	}

	aggregationAttempts.WithLabelValues("inline", "success").Inc()
	return transitioned, false
}

func (s *SubmissionService) verifyAggregation(ctx context.Context, goalID, variantID uuid.UUID, agg *AggregationResult) error {
	if agg == nil || !agg.Written {
		return nil
	}
	link, err := s.linkStore.Get(ctx, goalID, variantID)
	if err != nil {
		return fmt.Errorf("verify aggregation: %w", err)
	}
	if link.AggregatedFields == nil ||
		link.AggregatedFields.Metadata.ComputedAt.Before(agg.Fields.Metadata.ComputedAt) {
		return errAggregationNotVisible
	}
	return nil
}

func (s *SubmissionService) enqueue(ctx context.Context, goalID, variantID uuid.UUID, logger *zap.Logger) {
	if err := s.queueStore.Enqueue(ctx, goalID, variantID); err != nil {
		logger.Error("failed to enqueue aggregation job", zap.Error(err))
	}
}

func (s *SubmissionService) refreshRollup(ctx context.Context, goalID, variantID uuid.UUID, solution *domain.Solution, logger *zap.Logger) {
	rollup, err := s.pipeline.aggregator.RefreshRollup(ctx, goalID, variantID)
	if err != nil {
		logger.Error("failed to refresh rating rollup", zap.Error(err))
		return
	}

	if !solution.IsApproved && rollup.RatingCount >= s.cfg.AutoApproveThreshold {
		if err := s.solutionStore.Approve(ctx, solution.ID); err != nil {
			logger.Error("failed to auto-approve solution", zap.String("solution_id", solution.ID.String()), zap.Error(err))
			return
		}
		solution.IsApproved = true
		logger.Info("solution auto-approved", zap.String("solution_id", solution.ID.String()), zap.Int("rating_count", rollup.RatingCount))
	}
}

// recordFailedSolution stores an effectiveness-only rating for a solution the
// user tried without success. Its aggregation always goes through the queue.
func (s *SubmissionService) recordFailedSolution(ctx context.Context, userID, goalID uuid.UUID, failed domain.FailedSolution, logger *zap.Logger) {
	if !domain.ValidEffectiveness(failed.Effectiveness) {
		logger.Warn("skipping failed solution with invalid effectiveness", zap.Float64("effectiveness", failed.Effectiveness))
		return
	}
	if failed.SolutionID == nil && (strings.TrimSpace(failed.Title) == "" || strings.TrimSpace(failed.Category) == "") {
		logger.Warn("skipping failed solution without id or title")
		return
	}

	solution, variant, err := s.resolveTarget(ctx, failed.SolutionID, failed.Title, failed.Category, domain.VariantDetails{}, userID)
	if err != nil {
		logger.Warn("failed to resolve failed solution", zap.Error(err))
		return
	}
	fl := logger.With(zap.String("failed_solution_variant_id", variant.ID.String()))

	exists, err := s.observationStore.ExistsForUser(ctx, userID, goalID, variant.ID)
	if err != nil {
		fl.Warn("failed to check failed solution duplicate", zap.Error(err))
		return
	}
	if exists {
		return
	}

	obs := &domain.Observation{
		UserID:            userID,
		GoalID:            goalID,
		SolutionVariantID: variant.ID,
		Effectiveness:     failed.Effectiveness,
		Provenance:        domain.ProvenanceHuman,
	}
	if err := s.observationStore.Create(ctx, obs); err != nil {
		if !isConflict(err) {
			fl.Warn("failed to save failed solution rating", zap.Error(err))
		}
		return
	}

	if _, err := s.linkStore.IncrementHumanRatingCount(ctx, goalID, variant.ID); err != nil {
		fl.Warn("failed to increment human rating count", zap.Error(err))
	}
	s.refreshRollup(ctx, goalID, variant.ID, solution, fl)
	s.enqueue(ctx, goalID, variant.ID, fl)
}

func (s *SubmissionService) scheduleFollowUp(ctx context.Context, userID, goalID, variantID uuid.UUID, logger *zap.Logger) {
	event := &domain.FollowUpEvent{
		UserID:            userID,
		GoalID:            goalID,
		SolutionVariantID: variantID,
		EventType:         domain.FollowUpRatingCheckIn,
		DueAt:             s.now().UTC().Add(s.cfg.FollowUpDelay),
	}
	if err := s.followUpStore.Schedule(ctx, event); err != nil {
		logger.Warn("failed to schedule follow-up", zap.Error(err))
	}
}
