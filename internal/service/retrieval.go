package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"go.uber.org/zap"
)

// QueryEmbedder turns query text into a vector. Implemented by the
// provider client and by the Redis-backed cache in front of it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// InteractionRepositoryInterface persists the tutoring audit trail.
type InteractionRepositoryInterface interface {
	Create(ctx context.Context, in *domain.AIInteraction) error
	ListByUser(ctx context.Context, orgID, userID, courseID string, limit int) ([]*domain.AIInteraction, error)
}

// RetrievalConfig tunes context retrieval.
type RetrievalConfig struct {
	Threshold float64
	Mode      domain.SearchMode
	Timeout   time.Duration
}

// DefaultRetrievalConfig returns the production defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Threshold: 0.7,
		Mode:      domain.SearchModeApproximate,
		Timeout:   30 * time.Second,
	}
}

// RetrievalResult is the grounding context for one tutoring query. Chunks
// follow the order of Matches. UsedFallback is set when nothing in scope
// cleared the threshold.
type RetrievalResult struct {
	Chunks       []*domain.ContentChunk
	Matches      []domain.ChunkMatch
	UsedFallback bool
}

// RetrievalService finds course content relevant to a tutoring query.
type RetrievalService struct {
	gate         Authorizer
	embedder     QueryEmbedder
	search       *SearchService
	chunks       ChunkReader
	interactions InteractionRepositoryInterface
	cfg          RetrievalConfig
	uuidGen      UUIDGenerator
	logger       *zap.Logger
}

func NewRetrievalService(
	gate Authorizer,
	embedder QueryEmbedder,
	search *SearchService,
	chunks ChunkReader,
	interactions InteractionRepositoryInterface,
	cfg RetrievalConfig,
	logger *zap.Logger,
) *RetrievalService {
	return &RetrievalService{
		gate:         gate,
		embedder:     embedder,
		search:       search,
		chunks:       chunks,
		interactions: interactions,
		cfg:          cfg,
		uuidGen:      &DefaultUUIDGenerator{},
		logger:       orNop(logger),
	}
}

// AnswerWithContext returns up to maxContextChunks chunks from scope that
// match queryText. The scope is never widened when nothing matches.
func (s *RetrievalService) AnswerWithContext(ctx context.Context, p tenant.Principal, queryText string, scope tenant.Scope, maxContextChunks int) (*RetrievalResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.AnswerWithContext", telemetry.SpanAttributes{
		OrgID:     scope.OrgID,
		CourseID:  scope.CourseID,
		Operation: string(tenant.OpRetrieve),
	})
	defer span.End()

	if err := s.gate.Authorize(ctx, p, tenant.OpRetrieve, scope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if maxContextChunks <= 0 {
		return nil, domain.ErrInvalidMaxResults
	}

	vector, err := s.embedQuery(ctx, queryText)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	matches, err := s.search.Search(ctx, p, domain.SimilarityQuery{
		Vector:     vector,
		Text:       queryText,
		OrgID:      scope.OrgID,
		CourseID:   scope.CourseID,
		Threshold:  s.cfg.Threshold,
		MaxResults: maxContextChunks,
		Mode:       s.cfg.Mode,
	})
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		telemetry.RetrievalFallbacks.Inc()
		s.logger.Info("retrieval found no context",
			zap.String("org_id", scope.OrgID),
			zap.String("course_id", scope.CourseID),
		)
		return &RetrievalResult{
			Chunks:       []*domain.ContentChunk{},
			Matches:      matches,
			UsedFallback: true,
		}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	loaded, err := s.chunks.GetByIDs(ctx, scope.OrgID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.ContentChunk, len(loaded))
	for _, c := range loaded {
		byID[c.ID] = c
	}

	result := &RetrievalResult{Chunks: make([]*domain.ContentChunk, 0, len(matches))}
	for _, m := range matches {
		// A chunk replaced between search and hydration is skipped.
		c, ok := byID[m.ChunkID]
		if !ok {
			continue
		}
		result.Chunks = append(result.Chunks, c)
		result.Matches = append(result.Matches, m)
	}
	if len(result.Chunks) == 0 {
		telemetry.RetrievalFallbacks.Inc()
		result.Matches = []domain.ChunkMatch{}
		result.UsedFallback = true
	}
	return result, nil
}

// RelatedMaterials embeds queryText and returns the best matching chunk of
// up to limit materials in scope.
func (s *RetrievalService) RelatedMaterials(ctx context.Context, p tenant.Principal, queryText string, scope tenant.Scope, limit int) ([]domain.ChunkMatch, error) {
	if err := s.gate.Authorize(ctx, p, tenant.OpRetrieve, scope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, domain.ErrEmptyQuery
	}

	vector, err := s.embedQuery(ctx, queryText)
	if err != nil {
		return nil, err
	}
	return s.search.RelatedMaterials(ctx, p, domain.SimilarityQuery{
		Vector:     vector,
		Text:       queryText,
		OrgID:      scope.OrgID,
		CourseID:   scope.CourseID,
		Threshold:  s.cfg.Threshold,
		MaxResults: limit,
		Mode:       s.cfg.Mode,
	})
}

// RecordInteraction stores one tutoring exchange for the audit trail.
func (s *RetrievalService) RecordInteraction(ctx context.Context, p tenant.Principal, in *domain.AIInteraction) error {
	scope := tenant.Scope{OrgID: in.OrgID, CourseID: in.CourseID, UserID: in.UserID}
	if err := s.gate.Authorize(ctx, p, tenant.OpWriteInteraction, scope); err != nil {
		return err
	}
	if strings.TrimSpace(in.Query) == "" {
		return domain.ErrEmptyQuery
	}
	if err := s.checkContextChunks(ctx, in); err != nil {
		return reportIntegrity(ctx, s.logger, err,
			zap.String("org_id", in.OrgID),
			zap.String("course_id", in.CourseID),
			zap.String("user_id", in.UserID),
		)
	}
	if in.ID == "" {
		in.ID = s.uuidGen.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	return s.interactions.Create(ctx, in)
}

// checkContextChunks deduplicates in.ContextChunkIDs and requires every id
// to name a chunk of the interaction's organization and, when set, course.
func (s *RetrievalService) checkContextChunks(ctx context.Context, in *domain.AIInteraction) error {
	if len(in.ContextChunkIDs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in.ContextChunkIDs))
	ids := make([]string, 0, len(in.ContextChunkIDs))
	for _, id := range in.ContextChunkIDs {
		if id == "" {
			return domain.ErrMissingRequiredField
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	loaded, err := s.chunks.GetByIDs(ctx, in.OrgID, ids)
	if err != nil {
		return err
	}
	if len(loaded) != len(ids) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeIntegrityViolation, domain.ErrCrossTenantReference.Message,
			fmt.Errorf("%d of %d context chunks found", len(loaded), len(ids)))
	}
	for _, c := range loaded {
		if in.CourseID != "" && c.CourseID != in.CourseID {
			return domain.NewDomainErrorWithCause(domain.ErrCodeIntegrityViolation, domain.ErrCrossTenantReference.Message,
				fmt.Errorf("chunk %s belongs to another course", c.ID))
		}
	}
	in.ContextChunkIDs = ids
	return nil
}

// Interactions lists a user's recent exchanges, newest first.
func (s *RetrievalService) Interactions(ctx context.Context, p tenant.Principal, userID, courseID string, limit int) ([]*domain.AIInteraction, error) {
	scope := tenant.Scope{OrgID: p.OrgID, CourseID: courseID, UserID: userID}
	if err := s.gate.Authorize(ctx, p, tenant.OpReadInteractions, scope); err != nil {
		return nil, err
	}
	return s.interactions.ListByUser(ctx, p.OrgID, userID, courseID, limit)
}

func (s *RetrievalService) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, asProviderError(err)
	}
	return vector, nil
}

// asProviderError maps provider failures onto the transient taxonomy.
// Errors already classified keep their code, and a caller's cancellation
// is returned as is.
func asProviderError(err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientProvider, domain.ErrProviderTimeout.Message, err)
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeTransientProvider, domain.ErrProviderUnavailable.Message, err)
}
