package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/wwfm-app/wwfm/internal/domain"
	"github.com/wwfm-app/wwfm/internal/store"
)

// fakeSolutionStore implements domain.SolutionStore for testing.
type fakeSolutionStore struct {
	mu        sync.Mutex
	solutions map[uuid.UUID]*domain.Solution
	variants  map[uuid.UUID]*domain.SolutionVariant
	approved  []uuid.UUID
}

func newFakeSolutionStore() *fakeSolutionStore {
	return &fakeSolutionStore{
		solutions: make(map[uuid.UUID]*domain.Solution),
		variants:  make(map[uuid.UUID]*domain.SolutionVariant),
	}
}

func (f *fakeSolutionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Solution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.solutions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSolutionStore) GetByTitle(ctx context.Context, title, category string) (*domain.Solution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.solutions {
		if strings.EqualFold(s.Title, title) && s.Category == category {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSolutionStore) Create(ctx context.Context, s *domain.Solution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.solutions {
		if strings.EqualFold(existing.Title, s.Title) && existing.Category == s.Category {
			return store.ErrConflict
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	f.solutions[s.ID] = &cp
	return nil
}

func (f *fakeSolutionStore) Approve(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.solutions[id]
	if !ok {
		return store.ErrNotFound
	}
	if !s.IsApproved {
		s.IsApproved = true
		f.approved = append(f.approved, id)
	}
	return nil
}

func (f *fakeSolutionStore) GetVariantByID(ctx context.Context, id uuid.UUID) (*domain.SolutionVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.variants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeSolutionStore) GetVariantByName(ctx context.Context, solutionID uuid.UUID, name string) (*domain.SolutionVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.variants {
		if v.SolutionID == solutionID && v.VariantName == name {
			cp := *v
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSolutionStore) CreateVariant(ctx context.Context, v *domain.SolutionVariant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.variants {
		if existing.SolutionID == v.SolutionID && existing.VariantName == v.VariantName {
			return store.ErrConflict
		}
	}
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	cp := *v
	f.variants[v.ID] = &cp
	return nil
}

func (f *fakeSolutionStore) isApproved(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.solutions[id]
	return ok && s.IsApproved
}

// fakeObservationStore implements domain.ObservationStore for testing.
type fakeObservationStore struct {
	mu           sync.Mutex
	observations []domain.Observation
	createErr    error
}

func newFakeObservationStore() *fakeObservationStore {
	return &fakeObservationStore{}
}

func (f *fakeObservationStore) add(o domain.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Provenance == "" {
		o.Provenance = domain.ProvenanceHuman
	}
	f.observations = append(f.observations, o)
}

func (f *fakeObservationStore) Create(ctx context.Context, o *domain.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.observations {
		if existing.UserID == o.UserID && existing.GoalID == o.GoalID && existing.SolutionVariantID == o.SolutionVariantID {
			return store.ErrConflict
		}
	}
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	if o.Provenance == "" {
		o.Provenance = domain.ProvenanceHuman
	}
	f.observations = append(f.observations, *o)
	return nil
}

func (f *fakeObservationStore) ExistsForUser(ctx context.Context, userID, goalID, variantID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.observations {
		if o.UserID == userID && o.GoalID == goalID && o.SolutionVariantID == variantID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeObservationStore) ListHumanByPair(ctx context.Context, goalID, variantID uuid.UUID) ([]domain.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Observation
	for _, o := range f.observations {
		if o.GoalID == goalID && o.SolutionVariantID == variantID && o.Provenance == domain.ProvenanceHuman {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeObservationStore) GetRollup(ctx context.Context, goalID, variantID uuid.UUID) (domain.RatingRollup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum float64
	var n int
	for _, o := range f.observations {
		if o.GoalID == goalID && o.SolutionVariantID == variantID && o.Provenance == domain.ProvenanceHuman {
			sum += o.Effectiveness
			n++
		}
	}
	if n == 0 {
		return domain.RatingRollup{}, nil
	}
	return domain.RatingRollup{AvgEffectiveness: sum / float64(n), RatingCount: n}, nil
}

func (f *fakeObservationStore) CountOtherSubmitters(ctx context.Context, goalID, variantID, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make(map[uuid.UUID]struct{})
	for _, o := range f.observations {
		if o.GoalID == goalID && o.SolutionVariantID == variantID && o.UserID != userID && o.Provenance == domain.ProvenanceHuman {
			users[o.UserID] = struct{}{}
		}
	}
	return len(users), nil
}

func (f *fakeObservationStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observations)
}

// fakeLinkStore implements domain.LinkStore. TryTransition holds the lock
// across its check and write the way a single-row conditional UPDATE does.
type fakeLinkStore struct {
	mu    sync.Mutex
	links map[domain.PairKey]*domain.GoalSolutionLink

	getErr       map[domain.PairKey]error
	upsertFails  int
	incrementErr error

	transitionWrites int
	snapshotWrites   int
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{
		links:  make(map[domain.PairKey]*domain.GoalSolutionLink),
		getErr: make(map[domain.PairKey]error),
	}
}

func pairKey(goalID, variantID uuid.UUID) domain.PairKey {
	return domain.PairKey{GoalID: goalID, SolutionVariantID: variantID}
}

func (f *fakeLinkStore) put(l *domain.GoalSolutionLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	f.links[l.Key()] = l
}

func (f *fakeLinkStore) failGet(goalID, variantID uuid.UUID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr[pairKey(goalID, variantID)] = err
}

func (f *fakeLinkStore) link(goalID, variantID uuid.UUID) *domain.GoalSolutionLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[pairKey(goalID, variantID)]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (f *fakeLinkStore) Get(ctx context.Context, goalID, variantID uuid.UUID) (*domain.GoalSolutionLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(goalID, variantID)
	if err := f.getErr[key]; err != nil {
		return nil, err
	}
	l, ok := f.links[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLinkStore) ensure(goalID, variantID uuid.UUID) *domain.GoalSolutionLink {
	key := pairKey(goalID, variantID)
	l, ok := f.links[key]
	if !ok {
		l = &domain.GoalSolutionLink{
			ID:                uuid.New(),
			GoalID:            goalID,
			SolutionVariantID: variantID,
			DisplayMode:       domain.DisplayModeAI,
			CreatedAt:         time.Now(),
		}
		f.links[key] = l
	}
	return l
}

func (f *fakeLinkStore) IncrementHumanRatingCount(ctx context.Context, goalID, variantID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	l := f.ensure(goalID, variantID)
	l.HumanRatingCount++
	return l.HumanRatingCount, nil
}

func (f *fakeLinkStore) RaiseHumanRatingCount(ctx context.Context, goalID, variantID uuid.UUID, count int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.ensure(goalID, variantID)
	if l.HumanRatingCount >= count {
		return false, nil
	}
	l.HumanRatingCount = count
	return true, nil
}

func (f *fakeLinkStore) UpsertAggregatedFields(ctx context.Context, goalID, variantID uuid.UUID, fields *domain.AggregatedFieldSet) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertFails > 0 {
		f.upsertFails--
		return false, errTransient
	}
	l := f.ensure(goalID, variantID)
	if l.PreservesAIData() {
		return false, nil
	}
	l.AggregatedFields = fields
	l.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeLinkStore) TryTransition(ctx context.Context, goalID, variantID uuid.UUID, threshold int, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[pairKey(goalID, variantID)]
	if !ok || l.DisplayMode != domain.DisplayModeAI || l.TransitionedAt != nil || l.HumanRatingCount < threshold {
		return false, nil
	}
	if l.AISnapshot == nil {
		l.AISnapshot = &domain.AISnapshot{
			AggregatedFields: l.AggregatedFields,
			AvgEffectiveness: l.AvgEffectiveness,
			RatingCount:      l.RatingCount,
			CapturedAt:       now,
		}
		f.snapshotWrites++
	}
	l.DisplayMode = domain.DisplayModeHuman
	l.TransitionedAt = &now
	f.transitionWrites++
	return true, nil
}

func (f *fakeLinkStore) UpsertRollup(ctx context.Context, goalID, variantID uuid.UUID, rollup domain.RatingRollup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.ensure(goalID, variantID)
	if l.PreservesAIData() {
		return nil
	}
	l.AvgEffectiveness = rollup.AvgEffectiveness
	l.RatingCount = rollup.RatingCount
	return nil
}

// fakeQueueStore implements domain.QueueStore for testing.
type fakeQueueStore struct {
	mu         sync.Mutex
	jobs       map[domain.PairKey]*domain.QueueJob
	dirty      map[domain.PairKey]bool
	claimed    int
	enqueueErr error
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{
		jobs:  make(map[domain.PairKey]*domain.QueueJob),
		dirty: make(map[domain.PairKey]bool),
	}
}

func (f *fakeQueueStore) put(j domain.QueueJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.Key()] = &j
}

func (f *fakeQueueStore) job(goalID, variantID uuid.UUID) *domain.QueueJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[pairKey(goalID, variantID)]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (f *fakeQueueStore) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeQueueStore) Enqueue(ctx context.Context, goalID, variantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	key := pairKey(goalID, variantID)
	j, ok := f.jobs[key]
	if !ok {
		f.jobs[key] = &domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, QueuedAt: time.Now()}
		return nil
	}
	if j.Processing {
		f.dirty[key] = true
	}
	return nil
}

func (f *fakeQueueStore) Claim(ctx context.Context, limit int) ([]domain.QueueJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var idle []*domain.QueueJob
	for _, j := range f.jobs {
		if !j.Processing {
			idle = append(idle, j)
		}
	}
	sort.Slice(idle, func(a, b int) bool { return idle[a].QueuedAt.Before(idle[b].QueuedAt) })
	if len(idle) > limit {
		idle = idle[:limit]
	}
	out := make([]domain.QueueJob, 0, len(idle))
	for _, j := range idle {
		j.Processing = true
		out = append(out, *j)
	}
	f.claimed += len(out)
	return out, nil
}

func (f *fakeQueueStore) Delete(ctx context.Context, goalID, variantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(goalID, variantID)
	delete(f.jobs, key)
	delete(f.dirty, key)
	return nil
}

func (f *fakeQueueStore) Complete(ctx context.Context, goalID, variantID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(goalID, variantID)
	j, ok := f.jobs[key]
	if !ok {
		return false, nil
	}
	if !f.dirty[key] {
		delete(f.jobs, key)
		return false, nil
	}
	delete(f.dirty, key)
	j.Processing = false
	j.Attempts = 0
	j.LastError = nil
	j.QueuedAt = time.Now()
	return true, nil
}

func (f *fakeQueueStore) RecordFailure(ctx context.Context, goalID, variantID uuid.UUID, lastErr string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[pairKey(goalID, variantID)]
	if !ok {
		return 0, store.ErrNotFound
	}
	j.Attempts++
	j.LastError = &lastErr
	j.Processing = false
	delete(f.dirty, pairKey(goalID, variantID))
	return j.Attempts, nil
}

func (f *fakeQueueStore) ResetStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.jobs {
		if j.Processing && j.QueuedAt.Before(cutoff) {
			j.Processing = false
			n++
		}
	}
	return n, nil
}

func (f *fakeQueueStore) Metrics(ctx context.Context, now time.Time) (*domain.QueueMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &domain.QueueMetrics{}
	var total time.Duration
	for _, j := range f.jobs {
		if j.Processing {
			m.ProcessingCount++
		} else {
			m.PendingCount++
		}
		age := now.Sub(j.QueuedAt)
		total += age
		if age > m.OldestJobAge {
			m.OldestJobAge = age
			q := j.QueuedAt
			m.OldestJobQueuedAt = &q
		}
	}
	if n := len(f.jobs); n > 0 {
		m.AverageJobAge = total / time.Duration(n)
	}
	return m, nil
}

// mockFollowUpStore is a testify mock for domain.FollowUpStore.
type mockFollowUpStore struct {
	mock.Mock
}

func (m *mockFollowUpStore) Schedule(ctx context.Context, e *domain.FollowUpEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
