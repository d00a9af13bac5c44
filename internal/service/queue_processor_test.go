package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwfm-app/wwfm/internal/domain"
	"go.uber.org/zap"
)

func newTestQueueProcessor(cfg QueueConfig) (*QueueProcessor, *fakeQueueStore, *fakeLinkStore, *fakeObservationStore) {
	logger := zap.NewNop()
	queue := newFakeQueueStore()
	links := newFakeLinkStore()
	obs := newFakeObservationStore()
	pipeline := NewAggregationPipeline(
		NewTransitionGate(links, 3, logger),
		NewAggregator(obs, links, logger),
		logger,
	)
	return NewQueueProcessor(queue, pipeline, cfg, logger), queue, links, obs
}

func TestProcessPendingJobs_Success(t *testing.T) {
	p, queue, links, obs := newTestQueueProcessor(DefaultQueueConfig())
	goalID, variantID := uuid.New(), uuid.New()
	addHuman(obs, goalID, variantID, map[string]any{"cost": "Free"})
	queue.put(domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, QueuedAt: time.Now()})

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ProcessSummary{Claimed: 1, Succeeded: 1}, summary)
	assert.Equal(t, 0, queue.size())
	assert.Equal(t, "Free", links.link(goalID, variantID).AggregatedFields.Field("cost").Mode)
}

func TestProcessPendingJobs_TransitionsViaQueue(t *testing.T) {
	p, queue, links, obs := newTestQueueProcessor(DefaultQueueConfig())
	goalID, variantID := seedAILink(links, 3)
	for i := 0; i < 3; i++ {
		addHuman(obs, goalID, variantID, map[string]any{"cost": "Free"})
	}
	queue.put(domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, QueuedAt: time.Now()})

	_, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)

	link := links.link(goalID, variantID)
	assert.Equal(t, domain.DisplayModeHuman, link.DisplayMode)
	require.NotNil(t, link.AISnapshot)
	assert.Equal(t, 15, link.AISnapshot.RatingCount)
	assert.Equal(t, 3, link.RatingCount)
	assert.Equal(t, domain.DataSourceUserSubmission, link.AggregatedFields.Metadata.DataSource)
}

func TestProcessPendingJobs_RetryAfterTransitionRefreshesRollup(t *testing.T) {
	p, queue, links, obs := newTestQueueProcessor(DefaultQueueConfig())
	goalID, variantID := seedAILink(links, 3)
	for i := 0; i < 3; i++ {
		addHuman(obs, goalID, variantID, map[string]any{"cost": "Free"})
	}
	links.upsertFails = 1
	queue.put(domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, QueuedAt: time.Now()})

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	link := links.link(goalID, variantID)
	assert.Equal(t, domain.DisplayModeHuman, link.DisplayMode)
	assert.Equal(t, 15, link.RatingCount, "rollup untouched while the write failed")

	summary, err = p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, queue.size())

	link = links.link(goalID, variantID)
	assert.Equal(t, domain.DisplayModeHuman, link.DisplayMode)
	assert.Equal(t, domain.DataSourceUserSubmission, link.AggregatedFields.Metadata.DataSource)
	assert.Equal(t, 3, link.RatingCount)
	assert.InDelta(t, 4.0, link.AvgEffectiveness, 0.001)
	require.NotNil(t, link.AISnapshot)
	assert.InDelta(t, 4.2, link.AISnapshot.AvgEffectiveness, 0.001)
}

func TestProcessPendingJobs_ReconcilesLaggingHumanCount(t *testing.T) {
	p, queue, links, obs := newTestQueueProcessor(DefaultQueueConfig())
	goalID, variantID := seedAILink(links, 2)
	for i := 0; i < 3; i++ {
		addHuman(obs, goalID, variantID, map[string]any{"cost": "Free"})
	}
	queue.put(domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, QueuedAt: time.Now()})

	_, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)

	link := links.link(goalID, variantID)
	assert.Equal(t, 3, link.HumanRatingCount)
	assert.Equal(t, domain.DisplayModeHuman, link.DisplayMode)
	assert.Equal(t, 3, link.RatingCount)
}

func TestProcessJob_RequeuesWhenEnqueuedWhileProcessing(t *testing.T) {
	p, queue, links, obs := newTestQueueProcessor(DefaultQueueConfig())
	goalID, variantID := uuid.New(), uuid.New()
	addHuman(obs, goalID, variantID, map[string]any{"cost": "Free"})
	job := domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, Attempts: 1, Processing: true, QueuedAt: time.Now().Add(-time.Minute)}
	queue.put(job)

	// A second observation lands after the job was claimed.
	addHuman(obs, goalID, variantID, map[string]any{"cost": "$10-25/month"})
	require.NoError(t, queue.Enqueue(context.Background(), goalID, variantID))

	assert.Equal(t, jobRequeued, p.processJob(context.Background(), job))

	kept := queue.job(goalID, variantID)
	require.NotNil(t, kept)
	assert.False(t, kept.Processing)
	assert.Equal(t, 0, kept.Attempts)

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ProcessSummary{Claimed: 1, Succeeded: 1}, summary)
	assert.Equal(t, 0, queue.size())
	assert.Equal(t, 2, links.link(goalID, variantID).AggregatedFields.Field("cost").TotalReports)
}

func TestProcessPendingJobs_CountsRequeued(t *testing.T) {
	p, queue, _, _ := newTestQueueProcessor(DefaultQueueConfig())
	goalID, variantID := uuid.New(), uuid.New()
	queue.put(domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, QueuedAt: time.Now()})
	queue.dirty[pairKey(goalID, variantID)] = true

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &ProcessSummary{Claimed: 1, Succeeded: 1, Requeued: 1}, summary)
	assert.Equal(t, 1, queue.size())
}

func TestProcessPendingJobs_BoundedRetry(t *testing.T) {
	p, queue, links, _ := newTestQueueProcessor(DefaultQueueConfig())
	goalID, variantID := uuid.New(), uuid.New()
	links.failGet(goalID, variantID, errTransient)
	queue.put(domain.QueueJob{GoalID: goalID, SolutionVariantID: variantID, QueuedAt: time.Now()})

	for attempt := 1; attempt <= 2; attempt++ {
		summary, err := p.ProcessPendingJobs(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 0, summary.Abandoned)

		job := queue.job(goalID, variantID)
		require.NotNil(t, job)
		assert.Equal(t, attempt, job.Attempts)
		assert.False(t, job.Processing)
		require.NotNil(t, job.LastError)
		assert.Contains(t, *job.LastError, errTransient.Error())
	}

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Abandoned)
	assert.Nil(t, queue.job(goalID, variantID))

	summary, err = p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Claimed)
	assert.Equal(t, 3, queue.claimed, "never processed a fourth time")
}

func TestProcessPendingJobs_FailureDoesNotAffectOthers(t *testing.T) {
	p, queue, links, _ := newTestQueueProcessor(DefaultQueueConfig())
	base := time.Now().Add(-time.Minute)

	var failing domain.PairKey
	for i := 0; i < 5; i++ {
		j := domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), QueuedAt: base.Add(time.Duration(i) * time.Second)}
		queue.put(j)
		if i == 2 {
			failing = j.Key()
			links.failGet(j.GoalID, j.SolutionVariantID, errTransient)
		}
	}

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Claimed)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, queue.size())
	assert.NotNil(t, queue.job(failing.GoalID, failing.SolutionVariantID))
}

func TestProcessPendingJobs_ClaimsOldestBatch(t *testing.T) {
	p, queue, _, _ := newTestQueueProcessor(QueueConfig{BatchSize: 5})
	base := time.Now().Add(-time.Hour)

	jobs := make([]domain.QueueJob, 7)
	for i := range jobs {
		jobs[i] = domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), QueuedAt: base.Add(time.Duration(i) * time.Minute)}
		queue.put(jobs[i])
	}

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Claimed)
	assert.Equal(t, 2, queue.size())
	assert.NotNil(t, queue.job(jobs[5].GoalID, jobs[5].SolutionVariantID))
	assert.NotNil(t, queue.job(jobs[6].GoalID, jobs[6].SolutionVariantID))
}

func TestProcessPendingJobs_SkipsWhenAlreadyRunning(t *testing.T) {
	p, queue, _, _ := newTestQueueProcessor(DefaultQueueConfig())
	queue.put(domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), QueuedAt: time.Now()})

	p.running.Store(true)
	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, 1, queue.size())
	assert.Equal(t, 0, queue.claimed)

	p.running.Store(false)
	summary, err = p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestClearStuckJobs_ReleasesStaleJob(t *testing.T) {
	p, queue, _, _ := newTestQueueProcessor(DefaultQueueConfig())
	now := time.Now()

	stuck := domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), Attempts: 1, Processing: true, QueuedAt: now.Add(-6 * time.Minute)}
	recent := domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), Processing: true, QueuedAt: now.Add(-time.Minute)}
	queue.put(stuck)
	queue.put(recent)

	n, err := p.ClearStuckJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job := queue.job(stuck.GoalID, stuck.SolutionVariantID)
	assert.False(t, job.Processing)
	assert.Equal(t, 1, job.Attempts)
	assert.True(t, queue.job(recent.GoalID, recent.SolutionVariantID).Processing)

	summary, err := p.ProcessPendingJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Claimed)
	assert.Nil(t, queue.job(stuck.GoalID, stuck.SolutionVariantID))
}

func TestGetQueueMetrics(t *testing.T) {
	p, queue, _, _ := newTestQueueProcessor(DefaultQueueConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	queue.put(domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), QueuedAt: now.Add(-10 * time.Minute)})
	queue.put(domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), QueuedAt: now.Add(-2 * time.Minute), Processing: true})

	m, err := p.GetQueueMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.PendingCount)
	assert.Equal(t, 1, m.ProcessingCount)
	assert.Equal(t, 10*time.Minute, m.OldestJobAge)
	assert.Equal(t, 6*time.Minute, m.AverageJobAge)
	assert.Equal(t, 2, queue.size(), "metrics have no side effects")
}

func TestQueueProcessor_StartStop(t *testing.T) {
	p, queue, _, _ := newTestQueueProcessor(QueueConfig{Interval: 10 * time.Millisecond})
	queue.put(domain.QueueJob{GoalID: uuid.New(), SolutionVariantID: uuid.New(), QueuedAt: time.Now()})

	p.Start()
	assert.Eventually(t, func() bool { return queue.size() == 0 }, time.Second, 10*time.Millisecond)
	p.Stop()
}
