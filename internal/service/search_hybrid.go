package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCandidateMultiplier = 4
	defaultMinCandidates       = 20
	defaultMaxCandidates       = 200

	rrfK           = 60
	semanticWeight = 1.0
	lexicalWeight  = 0.85
)

// hybrid fuses approximate vector hits above the threshold with full-text
// hits using weighted reciprocal rank fusion. Similarity of each result is
// its fused score.
func (s *SearchService) hybrid(ctx context.Context, q domain.SimilarityQuery) ([]domain.ChunkMatch, error) {
	if s.keywords == nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid search mode",
			fmt.Errorf("hybrid search needs a keyword backend"))
	}
	candidates := candidateLimit(q.MaxResults)

	var semantic, lexical []domain.ChunkMatch
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sq := q
		sq.Mode = domain.SearchModeApproximate
		sq.MaxResults = candidates
		var err error
		semantic, err = s.semantic(gctx, sq)
		return err
	})
	g.Go(func() error {
		var err error
		lexical, err = s.keywords.KeywordSearch(gctx, domain.KeywordQuery{
			Text:       q.Text,
			OrgID:      q.OrgID,
			CourseID:   q.CourseID,
			MaxResults: candidates,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("hybrid candidates",
		zap.String("org_id", q.OrgID),
		zap.Int("semantic", len(semantic)),
		zap.Int("lexical", len(lexical)),
	)
	return fuseRanks(semantic, lexical), nil
}

func candidateLimit(limit int) int {
	n := limit * defaultCandidateMultiplier
	if n < defaultMinCandidates {
		n = defaultMinCandidates
	}
	if n > defaultMaxCandidates {
		n = defaultMaxCandidates
	}
	return n
}

// fuseRanks scores each chunk by sum(weight / (rrfK + rank + 1)) over the
// lists it appears in. Both lists must already be in rank order.
func fuseRanks(semantic, lexical []domain.ChunkMatch) []domain.ChunkMatch {
	fused := make(map[string]*domain.ChunkMatch, len(semantic)+len(lexical))
	add := func(list []domain.ChunkMatch, weight float64) {
		for i, m := range list {
			c, ok := fused[m.ChunkID]
			if !ok {
				c = &domain.ChunkMatch{ChunkID: m.ChunkID, MaterialID: m.MaterialID, Ordinal: m.Ordinal}
				fused[m.ChunkID] = c
			}
			c.Similarity += weight / float64(rrfK+i+1)
		}
	}
	sort.SliceStable(semantic, func(i, j int) bool { return domain.LessMatch(semantic[i], semantic[j]) })
	sort.SliceStable(lexical, func(i, j int) bool { return domain.LessMatch(lexical[i], lexical[j]) })
	add(semantic, semanticWeight)
	add(lexical, lexicalWeight)

	out := make([]domain.ChunkMatch, 0, len(fused))
	for _, c := range fused {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return domain.LessMatch(out[i], out[j]) })
	return out
}
