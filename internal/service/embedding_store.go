package service

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"go.uber.org/zap"
)

// ChunkWriter is the transactional write side of chunk persistence.
type ChunkWriter interface {
	ReplaceChunks(ctx context.Context, orgID, materialID string, drafts []domain.ChunkDraft) ([]*domain.ContentChunk, error)
	BatchUpdateEmbeddings(ctx context.Context, orgID string, updates []domain.ChunkVector) ([]*domain.ContentChunk, error)
	GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.ContentChunk, error)
}

// MaterialGetter loads a material inside an organization.
type MaterialGetter interface {
	GetByID(ctx context.Context, orgID, id string) (*domain.Material, error)
}

// IndexPublisher receives committed chunks, e.g. the in-memory index.
type IndexPublisher interface {
	Publish(chunks []*domain.ContentChunk) error
	DeleteMaterial(orgID, materialID string) int
}

// EmbeddingStore persists chunks and their vectors. Every write is
// authorized and all-or-nothing. Writes to one material reach the publisher
// in commit order.
type EmbeddingStore struct {
	gate       Authorizer
	materials  MaterialGetter
	chunks     ChunkWriter
	dimensions int
	publisher  IndexPublisher
	locks      materialLocks
	logger     *zap.Logger
}

func NewEmbeddingStore(gate Authorizer, materials MaterialGetter, chunks ChunkWriter, dimensions int, logger *zap.Logger) *EmbeddingStore {
	return &EmbeddingStore{
		gate:       gate,
		materials:  materials,
		chunks:     chunks,
		dimensions: dimensions,
		logger:     orNop(logger),
	}
}

// WithPublisher mirrors committed writes into p.
func (s *EmbeddingStore) WithPublisher(p IndexPublisher) *EmbeddingStore {
	s.publisher = p
	return s
}

// Dimensions is the vector size every write must match.
func (s *EmbeddingStore) Dimensions() int {
	return s.dimensions
}

// Store replaces the material's chunks with drafts. Vectors start empty.
func (s *EmbeddingStore) Store(ctx context.Context, p tenant.Principal, materialID string, drafts []domain.ChunkDraft) ([]*domain.ContentChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingStore.Store", telemetry.SpanAttributes{
		OrgID:      p.OrgID,
		MaterialID: materialID,
		Operation:  string(tenant.OpStoreChunks),
	})
	defer span.End()

	if err := s.gate.Authorize(ctx, p, tenant.OpStoreChunks, tenant.OrgScope(p.OrgID)); err != nil {
		return nil, err
	}
	m, err := s.materials.GetByID(ctx, p.OrgID, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, p, tenant.OpStoreChunks, tenant.CourseScope(m.OrgID, m.CourseID)); err != nil {
		return nil, err
	}

	if err := domain.ValidateChunkSequence(drafts); err != nil {
		return nil, reportIntegrity(ctx, s.logger, err, zap.String("org_id", p.OrgID), zap.String("material_id", materialID))
	}
	for _, d := range drafts {
		if d.MaterialID != materialID {
			return nil, reportIntegrity(ctx, s.logger,
				domain.NewDomainErrorWithCause(domain.ErrCodeIntegrityViolation, domain.ErrChunkSequenceBroken.Message,
					fmt.Errorf("draft %d belongs to material %s", d.Ordinal, d.MaterialID)),
				zap.String("org_id", p.OrgID), zap.String("material_id", materialID))
		}
	}

	unlock := s.locks.lock(materialID)
	defer unlock()

	stored, err := s.chunks.ReplaceChunks(ctx, p.OrgID, materialID, drafts)
	if err != nil {
		span.SetError(err)
		return nil, reportIntegrity(ctx, s.logger, err, zap.String("org_id", p.OrgID), zap.String("material_id", materialID))
	}
	telemetry.ChunksStored.Add(float64(len(stored)))

	if s.publisher != nil {
		s.publisher.DeleteMaterial(p.OrgID, materialID)
	}
	return stored, nil
}

// EmbedAndStore overwrites one chunk's vector in place.
func (s *EmbeddingStore) EmbedAndStore(ctx context.Context, p tenant.Principal, chunkID string, vector []float32) error {
	return s.BatchEmbed(ctx, p, []string{chunkID}, [][]float32{vector})
}

// BatchEmbed writes vectors[i] to chunkIDs[i]. The batch is validated in
// full before anything is written, and the write commits every vector or none.
func (s *EmbeddingStore) BatchEmbed(ctx context.Context, p tenant.Principal, chunkIDs []string, vectors [][]float32) error {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingStore.BatchEmbed", telemetry.SpanAttributes{
		OrgID:     p.OrgID,
		Operation: string(tenant.OpEmbedChunks),
	})
	defer span.End()

	if err := s.gate.Authorize(ctx, p, tenant.OpEmbedChunks, tenant.OrgScope(p.OrgID)); err != nil {
		return err
	}

	updates, err := s.validateBatch(chunkIDs, vectors)
	if err != nil {
		return err
	}

	existing, err := s.chunks.GetByIDs(ctx, p.OrgID, chunkIDs)
	if err != nil {
		return err
	}
	if len(existing) != len(chunkIDs) {
		return reportIntegrity(ctx, s.logger,
			domain.NewDomainErrorWithCause(domain.ErrCodeIntegrityViolation, domain.ErrChunkOutsideOrg.Message,
				fmt.Errorf("%d of %d chunks found", len(existing), len(chunkIDs))),
			zap.String("org_id", p.OrgID))
	}
	courses := make(map[string]bool)
	materialIDs := make([]string, 0, 1)
	seenMaterials := make(map[string]bool)
	for _, c := range existing {
		if !seenMaterials[c.MaterialID] {
			seenMaterials[c.MaterialID] = true
			materialIDs = append(materialIDs, c.MaterialID)
		}
		if courses[c.CourseID] {
			continue
		}
		courses[c.CourseID] = true
		if err := s.gate.Authorize(ctx, p, tenant.OpEmbedChunks, tenant.CourseScope(p.OrgID, c.CourseID)); err != nil {
			return err
		}
	}

	// A concurrent Store of the same material must not clear the index
	// between this commit and the publish below.
	unlock := s.locks.lock(materialIDs...)
	defer unlock()

	updated, err := s.chunks.BatchUpdateEmbeddings(ctx, p.OrgID, updates)
	if err != nil {
		span.SetError(err)
		return reportIntegrity(ctx, s.logger, err, zap.String("org_id", p.OrgID))
	}
	telemetry.EmbeddingsWritten.Add(float64(len(updated)))

	if s.publisher != nil {
		if err := s.publisher.Publish(updated); err != nil {
			// The database is the source of truth; the index catches up on reload.
			s.logger.Warn("failed to publish embeddings to index",
				zap.String("org_id", p.OrgID),
				zap.Int("chunks", len(updated)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *EmbeddingStore) validateBatch(chunkIDs []string, vectors [][]float32) ([]domain.ChunkVector, error) {
	if len(chunkIDs) != len(vectors) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrBatchLengthMismatch.Message,
			fmt.Errorf("%d ids, %d vectors", len(chunkIDs), len(vectors)))
	}
	if len(chunkIDs) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	seen := make(map[string]bool, len(chunkIDs))
	updates := make([]domain.ChunkVector, len(chunkIDs))
	for i, id := range chunkIDs {
		if len(vectors[i]) != s.dimensions {
			return nil, domain.DimensionError(len(vectors[i]), s.dimensions)
		}
		if id == "" {
			return nil, domain.ErrMissingRequiredField
		}
		if seen[id] {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrDuplicateChunkID.Message,
				fmt.Errorf("chunk %s", id))
		}
		seen[id] = true
		updates[i] = domain.ChunkVector{ChunkID: id, Vector: vectors[i]}
	}
	return updates, nil
}
