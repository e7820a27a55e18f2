package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/chunking"
	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/pagination"
	"github.com/cloo-solutions/tutorcore/internal/storage"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"go.uber.org/zap"
)

// MaterialRepositoryInterface defines the repository interface for material persistence
type MaterialRepositoryInterface interface {
	GetByID(ctx context.Context, orgID, id string) (*domain.Material, error)
	MarkFailed(ctx context.Context, orgID, id, reason string) error
	Stats(ctx context.Context, orgID string) (*domain.MaterialStats, error)
	ListByCourse(ctx context.Context, orgID, courseID string, cursor *pagination.Cursor, limit int) (*MaterialPageResult, error)
	ListNeedingProcessing(ctx context.Context, limit int) ([]MaterialRef, error)
}

// ChunkReader reads persisted chunks, always qualified by organization.
type ChunkReader interface {
	GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.ContentChunk, error)
	ListByMaterial(ctx context.Context, orgID, materialID string) ([]*domain.ContentChunk, error)
	ListMissingEmbeddings(ctx context.Context, orgID, materialID string) ([]*domain.ContentChunk, error)
}

// ObjectStore keeps material text in object storage. Implemented by
// *storage.S3Client.
type ObjectStore interface {
	GetObjectText(ctx context.Context, key string) (string, error)
	PutObjectText(ctx context.Context, key, text string) error
	HeadObject(ctx context.Context, key string) (*storage.ObjectMetadata, error)
}

type MaterialPageResult struct {
	Items      []*domain.Material
	NextCursor string
	HasMore    bool
}

// MaterialRef identifies a material together with its tenant.
type MaterialRef struct {
	OrgID      string
	MaterialID string
}

// MaterialService owns the chunking side of the material pipeline.
type MaterialService struct {
	gate      Authorizer
	materials MaterialRepositoryInterface
	chunks    ChunkReader
	store     *EmbeddingStore
	objects   ObjectStore
	txRunner  TxRunner
	params    chunking.Params
	uuidGen   UUIDGenerator
	logger    *zap.Logger
}

// MaterialServiceDeps groups MaterialService collaborators. Objects and
// TxRunner are optional.
type MaterialServiceDeps struct {
	Gate      Authorizer
	Materials MaterialRepositoryInterface
	Chunks    ChunkReader
	Store     *EmbeddingStore
	Objects   ObjectStore
	TxRunner  TxRunner
	Params    chunking.Params
	Logger    *zap.Logger
}

func NewMaterialService(deps MaterialServiceDeps) *MaterialService {
	return &MaterialService{
		gate:      deps.Gate,
		materials: deps.Materials,
		chunks:    deps.Chunks,
		store:     deps.Store,
		objects:   deps.Objects,
		txRunner:  deps.TxRunner,
		params:    deps.Params,
		uuidGen:   &DefaultUUIDGenerator{},
		logger:    orNop(deps.Logger),
	}
}

// RegisterMaterialInput describes an uploaded material. Either Text or
// StorageKey must be set. With Upload, Text is written to object storage
// and only its key is kept in the database.
type RegisterMaterialInput struct {
	CourseID   string
	TopicID    string
	Title      string
	FileType   string
	FileSize   int64
	StorageKey string
	Text       string
	Upload     bool
}

// Register records a new unprocessed material and enqueues its embedding
// job in the same transaction.
func (s *MaterialService) Register(ctx context.Context, p tenant.Principal, in RegisterMaterialInput) (*domain.Material, error) {
	ctx, span := telemetry.StartSpan(ctx, "MaterialService.Register", telemetry.SpanAttributes{
		OrgID:     p.OrgID,
		CourseID:  in.CourseID,
		Operation: string(tenant.OpChunkMaterial),
	})
	defer span.End()

	if err := s.gate.Authorize(ctx, p, tenant.OpChunkMaterial, tenant.CourseScope(p.OrgID, in.CourseID)); err != nil {
		return nil, err
	}
	if s.txRunner == nil {
		return nil, fmt.Errorf("transaction runner not configured")
	}

	now := time.Now().UTC()
	m := &domain.Material{
		ID:         s.uuidGen.NewString(),
		OrgID:      p.OrgID,
		CourseID:   in.CourseID,
		TopicID:    in.TopicID,
		Title:      strings.TrimSpace(in.Title),
		FileType:   in.FileType,
		FileSize:   in.FileSize,
		StorageKey: in.StorageKey,
		Text:       in.Text,
		Status:     domain.MaterialStatusUnprocessed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := domain.ValidateMaterial(m); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message, err)
	}
	if err := s.placeText(ctx, m, in.Upload); err != nil {
		span.SetError(err)
		return nil, err
	}

	job := domain.NewEmbeddingJob(s.uuidGen.NewString(), m.OrgID, m.ID, now)
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Materials().Create(ctx, m); err != nil {
			return err
		}
		return repos.EmbeddingJobs().Create(ctx, job)
	})
	if err != nil {
		span.SetError(err)
		return nil, reportIntegrity(ctx, s.logger, err,
			zap.String("org_id", m.OrgID),
			zap.String("course_id", m.CourseID),
			zap.String("topic_id", m.TopicID),
		)
	}

	s.logger.Info("material registered",
		zap.String("org_id", m.OrgID),
		zap.String("course_id", m.CourseID),
		zap.String("material_id", m.ID),
		zap.String("job_id", job.ID),
	)
	return m, nil
}

// placeText uploads inline text when asked to, and checks that a given
// storage key names an object of acceptable size.
func (s *MaterialService) placeText(ctx context.Context, m *domain.Material, upload bool) error {
	if upload {
		if s.objects == nil {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "object storage not configured",
				fmt.Errorf("cannot upload material %s", m.ID))
		}
		if m.Text == "" {
			return domain.ErrMissingRequiredField
		}
		key := storage.MaterialKey(m.OrgID, m.CourseID, m.ID)
		if err := s.objects.PutObjectText(ctx, key, m.Text); err != nil {
			return err
		}
		if m.FileSize == 0 {
			m.FileSize = int64(len(m.Text))
		}
		m.StorageKey = key
		m.Text = ""
		return nil
	}

	if m.StorageKey == "" || m.Text != "" || s.objects == nil {
		return nil
	}
	meta, err := s.objects.HeadObject(ctx, m.StorageKey)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "storage object not found", err)
	}
	if meta.ContentLength > storage.MaxMaterialTextBytes {
		return storage.ErrMaterialTooLarge
	}
	if m.FileSize == 0 {
		m.FileSize = meta.ContentLength
	}
	return nil
}

// ChunkMaterial splits the material's text and replaces its chunks.
func (s *MaterialService) ChunkMaterial(ctx context.Context, p tenant.Principal, materialID string) ([]*domain.ContentChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "MaterialService.ChunkMaterial", telemetry.SpanAttributes{
		OrgID:      p.OrgID,
		MaterialID: materialID,
		Operation:  string(tenant.OpChunkMaterial),
	})
	defer span.End()

	m, err := s.authorizedMaterial(ctx, p, tenant.OpChunkMaterial, materialID)
	if err != nil {
		return nil, err
	}

	text, err := s.materialText(ctx, m)
	if err != nil {
		return nil, err
	}

	drafts, err := chunking.Chunk(m.ID, text, s.params)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Store(ctx, p, m.ID, drafts)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.logger.Debug("material chunked",
		zap.String("org_id", m.OrgID),
		zap.String("material_id", m.ID),
		zap.Int("chunks", len(stored)),
	)
	return stored, nil
}

// Chunks returns the material's chunks in reading order.
func (s *MaterialService) Chunks(ctx context.Context, p tenant.Principal, materialID string) ([]*domain.ContentChunk, error) {
	m, err := s.authorizedMaterial(ctx, p, tenant.OpReadMaterial, materialID)
	if err != nil {
		return nil, err
	}
	return s.chunks.ListByMaterial(ctx, m.OrgID, m.ID)
}

// Get returns one material of the caller's organization.
func (s *MaterialService) Get(ctx context.Context, p tenant.Principal, materialID string) (*domain.Material, error) {
	return s.authorizedMaterial(ctx, p, tenant.OpReadMaterial, materialID)
}

// List pages through a course's materials.
func (s *MaterialService) List(ctx context.Context, p tenant.Principal, courseID, cursor string, limit int) (*MaterialPageResult, error) {
	if err := s.gate.Authorize(ctx, p, tenant.OpReadMaterial, tenant.CourseScope(p.OrgID, courseID)); err != nil {
		return nil, err
	}
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return s.materials.ListByCourse(ctx, p.OrgID, courseID, c, limit)
}

// Stats reports pipeline progress for the caller's organization.
func (s *MaterialService) Stats(ctx context.Context, p tenant.Principal) (*domain.MaterialStats, error) {
	if err := s.gate.Authorize(ctx, p, tenant.OpReadMaterial, tenant.OrgScope(p.OrgID)); err != nil {
		return nil, err
	}
	return s.materials.Stats(ctx, p.OrgID)
}

// authorizedMaterial checks op at org level, loads the material inside the
// caller's org and checks op again against the material's course.
func (s *MaterialService) authorizedMaterial(ctx context.Context, p tenant.Principal, op tenant.Operation, materialID string) (*domain.Material, error) {
	if err := s.gate.Authorize(ctx, p, op, tenant.OrgScope(p.OrgID)); err != nil {
		return nil, err
	}
	m, err := s.materials.GetByID(ctx, p.OrgID, materialID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, p, op, tenant.CourseScope(m.OrgID, m.CourseID)); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MaterialService) materialText(ctx context.Context, m *domain.Material) (string, error) {
	if m.Text != "" || m.StorageKey == "" {
		return m.Text, nil
	}
	if s.objects == nil {
		return "", fmt.Errorf("material %s is stored at %q but no text source is configured", m.ID, m.StorageKey)
	}
	text, err := s.objects.GetObjectText(ctx, m.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to fetch material text: %w", err)
	}
	return text, nil
}
