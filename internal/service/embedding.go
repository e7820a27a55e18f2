package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"go.uber.org/zap"
)

// EmbeddingProvider generates embeddings for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EmbeddingConfig bounds provider usage.
type EmbeddingConfig struct {
	BatchSize int
	Timeout   time.Duration
}

// EmbeddingService drives a material through chunking and embedding. It is
// called by the background worker and always acts as the org's service
// principal.
type EmbeddingService struct {
	provider  EmbeddingProvider
	materials MaterialRepositoryInterface
	chunks    ChunkReader
	chunker   *MaterialService
	store     *EmbeddingStore
	jobs      EmbeddingJobWriter
	cfg       EmbeddingConfig
	uuidGen   UUIDGenerator
	logger    *zap.Logger
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(
	provider EmbeddingProvider,
	materials MaterialRepositoryInterface,
	chunks ChunkReader,
	chunker *MaterialService,
	store *EmbeddingStore,
	jobs EmbeddingJobWriter,
	cfg EmbeddingConfig,
	logger *zap.Logger,
) *EmbeddingService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &EmbeddingService{
		provider:  provider,
		materials: materials,
		chunks:    chunks,
		chunker:   chunker,
		store:     store,
		jobs:      jobs,
		cfg:       cfg,
		uuidGen:   &DefaultUUIDGenerator{},
		logger:    orNop(logger),
	}
}

// ProcessMaterial chunks the material when needed and embeds every chunk
// that has no vector yet. It is idempotent. When the provider fails,
// already committed batches stay and the rest remain NULL.
func (s *EmbeddingService) ProcessMaterial(ctx context.Context, orgID, materialID string) error {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingService.ProcessMaterial", telemetry.SpanAttributes{
		OrgID:      orgID,
		MaterialID: materialID,
		Operation:  string(tenant.OpEmbedChunks),
	})
	defer span.End()

	p := tenant.ServicePrincipal(orgID)

	m, err := s.materials.GetByID(ctx, orgID, materialID)
	if err != nil {
		return err
	}

	switch m.Status {
	case domain.MaterialStatusUnprocessed, domain.MaterialStatusFailed:
		if _, err := s.chunker.ChunkMaterial(ctx, p, materialID); err != nil {
			span.SetError(err)
			return err
		}
	}

	pending, err := s.chunks.ListMissingEmbeddings(ctx, orgID, materialID)
	if err != nil {
		return err
	}

	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(pending))
		batch := pending[start:end]

		ids := make([]string, len(batch))
		texts := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
			texts[i] = c.Content
		}

		vectors, err := s.embedBatch(ctx, texts)
		if err != nil {
			span.SetError(err)
			return err
		}
		if err := s.store.BatchEmbed(ctx, p, ids, vectors); err != nil {
			span.SetError(err)
			return err
		}
	}

	s.logger.Info("material embedded",
		zap.String("org_id", orgID),
		zap.String("material_id", materialID),
		zap.Int("chunks_embedded", len(pending)),
	)
	return nil
}

// FailMaterial marks the material failed after the worker gives up.
func (s *EmbeddingService) FailMaterial(ctx context.Context, orgID, materialID, reason string) error {
	return s.materials.MarkFailed(ctx, orgID, materialID, reason)
}

// EnqueueBackfill creates jobs for materials that still need chunking or
// embeddings and have no open job. It returns the number enqueued.
func (s *EmbeddingService) EnqueueBackfill(ctx context.Context, limit int) (int, error) {
	refs, err := s.materials.ListNeedingProcessing(ctx, limit)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	for i, ref := range refs {
		job := domain.NewEmbeddingJob(s.uuidGen.NewString(), ref.OrgID, ref.MaterialID, now)
		if err := s.jobs.Create(ctx, job); err != nil {
			return i, fmt.Errorf("failed to enqueue material %s: %w", ref.MaterialID, err)
		}
	}
	if len(refs) > 0 {
		s.logger.Info("backfill enqueued", zap.Int("jobs", len(refs)))
	}
	return len(refs), nil
}

func (s *EmbeddingService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	vectors, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, asProviderError(err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrBatchLengthMismatch.Message,
			fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)))
	}
	return vectors, nil
}
