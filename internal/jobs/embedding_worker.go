package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxRetries is the maximum number of attempts for a transient failure
	MaxRetries = 3

	DefaultConcurrency   = 4
	defaultBackfillLimit = 100
)

// EmbeddingJobRepository defines the interface for embedding job persistence
type EmbeddingJobRepository interface {
	// ClaimPending moves up to limit pending jobs to processing and returns them
	ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error)

	UpdateStatus(ctx context.Context, jobID string, status domain.EmbeddingJobStatus, errMsg string) error

	IncrementRetries(ctx context.Context, jobID string) error

	// RequeueStale returns processing jobs created before cutoff to pending
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaterialProcessor runs the chunk and embed pipeline for one material.
type MaterialProcessor interface {
	ProcessMaterial(ctx context.Context, orgID, materialID string) error
	FailMaterial(ctx context.Context, orgID, materialID, reason string) error
	EnqueueBackfill(ctx context.Context, limit int) (int, error)
}

// EmbeddingWorkerConfig tunes job throughput.
type EmbeddingWorkerConfig struct {
	Concurrency   int
	BackfillLimit int
}

// EmbeddingWorker processes embedding jobs
type EmbeddingWorker struct {
	repo      EmbeddingJobRepository
	processor MaterialProcessor
	cfg       EmbeddingWorkerConfig
	logger    *zap.Logger
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(repo EmbeddingJobRepository, processor MaterialProcessor, cfg EmbeddingWorkerConfig, logger *zap.Logger) *EmbeddingWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = defaultBackfillLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingWorker{
		repo:      repo,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Recover requeues jobs left in processing by a previous run and enqueues
// materials that never got a job. Call it once before starting the loop.
func (w *EmbeddingWorker) Recover(ctx context.Context, startedAt time.Time) error {
	requeued, err := w.repo.RequeueStale(ctx, startedAt)
	if err != nil {
		return fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	if requeued > 0 {
		w.logger.Warn("requeued stale embedding jobs", zap.Int64("jobs", requeued))
	}
	if _, err := w.processor.EnqueueBackfill(ctx, w.cfg.BackfillLimit); err != nil {
		return fmt.Errorf("failed to enqueue backfill: %w", err)
	}
	return nil
}

// ProcessJobs implements the JobProcessor interface. Jobs run concurrently
// across materials. An idle tick enqueues backfill work instead.
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, w.cfg.Concurrency*4)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		if _, err := w.processor.EnqueueBackfill(ctx, w.cfg.BackfillLimit); err != nil {
			return fmt.Errorf("failed to enqueue backfill: %w", err)
		}
		return nil
	}

	w.logger.Debug("processing embedding jobs", zap.Int("jobs", len(jobs)))

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Error("error processing job", zap.String("job_id", job.ID), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *EmbeddingWorker) processJob(ctx context.Context, job *domain.EmbeddingJob) error {
	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("org_id", job.OrgID),
		zap.String("material_id", job.MaterialID),
	)
	if job.OrgID == "" || job.MaterialID == "" {
		return fmt.Errorf("job %s has no material", job.ID)
	}
	ctx, txn := telemetry.StartTransaction(ctx, "EmbeddingWorker.processJob", "job.embed")
	defer txn.End()
	telemetry.AddBreadcrumb(ctx, "embedding_job", fmt.Sprintf("processing job %s for material %s", job.ID, job.MaterialID))

	if err := w.processor.ProcessMaterial(ctx, job.OrgID, job.MaterialID); err != nil {
		txn.SetError(err)
		return w.handleJobFailure(ctx, log, job, err)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	telemetry.JobsProcessed.WithLabelValues("completed").Inc()
	log.Info("job completed")
	return nil
}

// handleJobFailure retries transient errors up to MaxRetries. Anything
// else, or a job out of retries, fails the job and its material.
func (w *EmbeddingWorker) handleJobFailure(ctx context.Context, log *zap.Logger, job *domain.EmbeddingJob, jobErr error) error {
	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	attempt := job.Retries + 1
	if domain.IsTransient(jobErr) && attempt < MaxRetries {
		log.Warn("job will be retried", zap.Int32("attempt", attempt), zap.Int("max_retries", MaxRetries), zap.Error(jobErr))
		errMsg := fmt.Sprintf("retry %d: %v", attempt, jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusPending, errMsg); err != nil {
			return fmt.Errorf("failed to reset job status to pending: %w", err)
		}
		telemetry.JobsProcessed.WithLabelValues("retried").Inc()
		return nil
	}

	errMsg := jobErr.Error()
	if domain.IsTransient(jobErr) {
		errMsg = fmt.Sprintf("max retries exceeded: %v", jobErr)
		telemetry.CaptureMessage(ctx, fmt.Sprintf("embedding job %s exhausted retries", job.ID))
	}
	log.Error("job failed", zap.Int32("attempt", attempt), zap.Error(jobErr))

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.EmbeddingJobStatusFailed, errMsg); err != nil {
		return fmt.Errorf("failed to update job status to failed: %w", err)
	}
	telemetry.JobsProcessed.WithLabelValues("failed").Inc()

	if err := w.processor.FailMaterial(ctx, job.OrgID, job.MaterialID, errMsg); err != nil {
		log.Warn("failed to mark material failed", zap.Error(err))
	}
	return nil
}
