package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wwfm-app/wwfm/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultQueueBatchSize    = 5
	DefaultQueueMaxAttempts  = 3
	DefaultQueueInterval     = 30 * time.Second
	DefaultQueueStuckTimeout = 5 * time.Minute
)

type QueueConfig struct {
	BatchSize    int
	MaxAttempts  int
	Interval     time.Duration
	StuckTimeout time.Duration
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		BatchSize:    DefaultQueueBatchSize,
		MaxAttempts:  DefaultQueueMaxAttempts,
		Interval:     DefaultQueueInterval,
		StuckTimeout: DefaultQueueStuckTimeout,
	}
}

// ProcessSummary tallies one ProcessPendingJobs run. Requeued jobs succeeded
// but stay queued because a new observation arrived while they ran.
type ProcessSummary struct {
	Skipped   bool `json:"skipped"`
	Claimed   int  `json:"claimed"`
	Succeeded int  `json:"succeeded"`
	Requeued  int  `json:"requeued"`
	Failed    int  `json:"failed"`
	Abandoned int  `json:"abandoned"`
}

// QueueProcessor drains deferred aggregation jobs. The running flag only
// prevents overlapping runs inside this process; across instances the
// store's claim query keeps two workers off the same job.
type QueueProcessor struct {
	queueStore domain.QueueStore
	pipeline   *AggregationPipeline
	cfg        QueueConfig
	logger     *zap.Logger
	now        func() time.Time

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewQueueProcessor(qs domain.QueueStore, pipeline *AggregationPipeline, cfg QueueConfig, logger *zap.Logger) *QueueProcessor {
	def := DefaultQueueConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = def.StuckTimeout
	}
	return &QueueProcessor{
		queueStore: qs,
		pipeline:   pipeline,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start reaps stuck jobs and drains the queue on a periodic schedule.
func (p *QueueProcessor) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		p.logger.Info("aggregation queue processor started", zap.Duration("interval", p.cfg.Interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Interval)
				if _, err := p.ClearStuckJobs(ctx); err != nil {
					p.logger.Error("failed to clear stuck jobs", zap.Error(err))
				}
				if _, err := p.ProcessPendingJobs(ctx); err != nil {
					p.logger.Error("failed to process aggregation queue", zap.Error(err))
				}
				cancel()
			case <-p.stopCh:
				p.logger.Info("aggregation queue processor stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the processor.
func (p *QueueProcessor) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// ProcessPendingJobs claims a batch and runs every job concurrently. One
// job's failure never cancels the others.
func (p *QueueProcessor) ProcessPendingJobs(ctx context.Context) (*ProcessSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debug("queue processing already running, skipping")
		return &ProcessSummary{Skipped: true}, nil
	}
	defer p.running.Store(false)

	jobs, err := p.queueStore.Claim(ctx, p.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	summary := &ProcessSummary{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return summary, nil
	}

	outcomes := make([]jobOutcome, len(jobs))
	var g errgroup.Group
	for i := range jobs {
		g.Go(func() error {
			outcomes[i] = p.processJob(ctx, jobs[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch o {
		case jobSucceeded:
			summary.Succeeded++
		case jobRequeued:
			summary.Succeeded++
			summary.Requeued++
		case jobAbandoned:
			summary.Failed++
			summary.Abandoned++
		default:
			summary.Failed++
		}
	}

	p.logger.Info("aggregation queue batch processed",
		zap.Int("claimed", summary.Claimed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("requeued", summary.Requeued),
		zap.Int("failed", summary.Failed),
		zap.Int("abandoned", summary.Abandoned),
	)
	return summary, nil
}

type jobOutcome int

const (
	jobSucceeded jobOutcome = iota
	jobRequeued
	jobRetry
	jobAbandoned
)

func (p *QueueProcessor) processJob(ctx context.Context, job domain.QueueJob) jobOutcome {
	logger := p.logger.With(
		zap.String("goal_id", job.GoalID.String()),
		zap.String("solution_variant_id", job.SolutionVariantID.String()),
		zap.Int("attempt", job.Attempts+1),
	)

	runErr := p.pipeline.Reconcile(ctx, job.GoalID, job.SolutionVariantID)
	if runErr == nil {
		_, runErr = p.pipeline.Run(ctx, job.GoalID, job.SolutionVariantID)
	}
	if runErr == nil {
		aggregationAttempts.WithLabelValues("queue", "success").Inc()
		queueJobsTotal.WithLabelValues("succeeded").Inc()
		requeued, err := p.queueStore.Complete(ctx, job.GoalID, job.SolutionVariantID)
		if err != nil {
			logger.Error("failed to complete job", zap.Error(err))
			return jobSucceeded
		}
		if requeued {
			logger.Debug("job received new observations while processing, requeued")
			return jobRequeued
		}
		return jobSucceeded
	}

	aggregationAttempts.WithLabelValues("queue", "failure").Inc()
	attempts, err := p.queueStore.RecordFailure(ctx, job.GoalID, job.SolutionVariantID, runErr.Error())
	if err != nil {
		logger.Error("failed to record job failure", zap.NamedError("job_error", runErr), zap.Error(err))
		queueJobsTotal.WithLabelValues("failed").Inc()
		return jobRetry
	}

	if attempts >= p.cfg.MaxAttempts {
		if err := p.queueStore.Delete(ctx, job.GoalID, job.SolutionVariantID); err != nil {
			logger.Error("failed to delete abandoned job", zap.Error(err))
		}
		logger.Warn("aggregation job abandoned after max attempts", zap.Int("attempts", attempts), zap.Error(runErr))
		queueJobsTotal.WithLabelValues("abandoned").Inc()
		return jobAbandoned
	}

	logger.Warn("aggregation job failed", zap.Int("attempts", attempts), zap.Error(runErr))
	queueJobsTotal.WithLabelValues("failed").Inc()
	return jobRetry
}

// ClearStuckJobs releases jobs that have been flagged processing for longer
// than the stuck timeout. Attempts are left unchanged.
func (p *QueueProcessor) ClearStuckJobs(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.cfg.StuckTimeout)
	n, err := p.queueStore.ResetStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Warn("reset stuck aggregation jobs", zap.Int64("count", n))
	}
	return n, nil
}

// GetQueueMetrics returns a health snapshot and mirrors it into the queue
// gauges.
func (p *QueueProcessor) GetQueueMetrics(ctx context.Context) (*domain.QueueMetrics, error) {
	m, err := p.queueStore.Metrics(ctx, p.now())
	if err != nil {
		return nil, err
	}
	queuePending.Set(float64(m.PendingCount))
	queueProcessing.Set(float64(m.ProcessingCount))
	queueOldestAge.Set(m.OldestJobAge.Seconds())
	return m, nil
}
