package service

import (
	"context"
	"sort"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"go.uber.org/zap"
)

// VectorSearcher is a similarity backend: pgvector or the in-memory index.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, q domain.SimilarityQuery) ([]domain.ChunkMatch, error)
}

// KeywordSearcher is the full-text leg of hybrid retrieval.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, q domain.KeywordQuery) ([]domain.ChunkMatch, error)
}

// relatedCandidateFactor widens the candidate pool for RelatedMaterials,
// since several top chunks usually come from the same material.
const relatedCandidateFactor = 5

// SearchService is the authorized front of the similarity backends.
type SearchService struct {
	gate     Authorizer
	backend  VectorSearcher
	keywords KeywordSearcher
	name     string
	logger   *zap.Logger
}

// NewSearchService wraps backend; name labels its metrics.
func NewSearchService(gate Authorizer, backend VectorSearcher, name string, logger *zap.Logger) *SearchService {
	return &SearchService{
		gate:    gate,
		backend: backend,
		name:    name,
		logger:  orNop(logger),
	}
}

// WithKeywordSearch enables hybrid mode.
func (s *SearchService) WithKeywordSearch(k KeywordSearcher) *SearchService {
	s.keywords = k
	return s
}

// Search returns chunks in q's scope with similarity above q.Threshold, in
// descending similarity with ordinal and chunk id as tie-breaks. In hybrid
// mode the threshold applies to the vector leg only and Similarity is the
// fused score. No match is an empty slice.
func (s *SearchService) Search(ctx context.Context, p tenant.Principal, q domain.SimilarityQuery) ([]domain.ChunkMatch, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		OrgID:     q.OrgID,
		CourseID:  q.CourseID,
		Operation: string(tenant.OpSearch),
	})
	defer span.End()

	if err := s.gate.Authorize(ctx, p, tenant.OpSearch, tenant.CourseScope(q.OrgID, q.CourseID)); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Mode == "" {
		q.Mode = domain.SearchModeApproximate
	}

	var out []domain.ChunkMatch
	var err error
	start := time.Now()
	if q.Mode == domain.SearchModeHybrid {
		out, err = s.hybrid(ctx, q)
	} else {
		out, err = s.semantic(ctx, q)
	}
	telemetry.SearchDuration.WithLabelValues(s.name, string(q.Mode)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return domain.LessMatch(out[i], out[j]) })
	if len(out) > q.MaxResults {
		out = out[:q.MaxResults]
	}

	s.logger.Debug("similarity search",
		zap.String("org_id", q.OrgID),
		zap.String("course_id", q.CourseID),
		zap.String("mode", string(q.Mode)),
		zap.Int("results", len(out)),
	)
	return out, nil
}

// semantic runs q on the vector backend and drops matches at or below the
// threshold.
func (s *SearchService) semantic(ctx context.Context, q domain.SimilarityQuery) ([]domain.ChunkMatch, error) {
	matches, err := s.backend.SearchSimilar(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChunkMatch, 0, len(matches))
	for _, m := range matches {
		if m.Similarity > q.Threshold {
			out = append(out, m)
		}
	}
	return out, nil
}

// RelatedMaterials returns the best matching chunk of each material, at
// most q.MaxResults materials, best first.
func (s *SearchService) RelatedMaterials(ctx context.Context, p tenant.Principal, q domain.SimilarityQuery) ([]domain.ChunkMatch, error) {
	limit := q.MaxResults
	if limit <= 0 {
		return nil, domain.ErrInvalidMaxResults
	}
	q.MaxResults = limit * relatedCandidateFactor

	matches, err := s.Search(ctx, p, q)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	related := make([]domain.ChunkMatch, 0, limit)
	for _, m := range matches {
		if seen[m.MaterialID] {
			continue
		}
		seen[m.MaterialID] = true
		related = append(related, m)
		if len(related) == limit {
			break
		}
	}
	return related, nil
}
