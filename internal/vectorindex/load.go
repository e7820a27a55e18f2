package vectorindex

import (
	"context"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"go.uber.org/zap"
)

// EmbeddedChunkSource pages through persisted chunks that have vectors.
type EmbeddedChunkSource interface {
	ListEmbedded(ctx context.Context, afterID string, limit int) ([]*domain.ContentChunk, error)
}

// Publish mirrors persisted chunks into the index. A chunk without an
// embedding is removed.
func (ix *Index) Publish(chunks []*domain.ContentChunk) error {
	entries := make([]Entry, 0, len(chunks))
	for _, c := range chunks {
		entries = append(entries, Entry{
			ChunkID:    c.ID,
			MaterialID: c.MaterialID,
			OrgID:      c.OrgID,
			CourseID:   c.CourseID,
			Ordinal:    c.Ordinal,
			Vector:     c.Embedding,
		})
	}
	return ix.Upsert(entries...)
}

// Load fills the index from src and trains it. It returns the number of
// vectors loaded.
func (ix *Index) Load(ctx context.Context, src EmbeddedChunkSource, pageSize int) (int, error) {
	loaded := 0
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		page, err := src.ListEmbedded(ctx, after, pageSize)
		if err != nil {
			return loaded, err
		}
		if len(page) == 0 {
			break
		}
		if err := ix.Publish(page); err != nil {
			return loaded, err
		}
		loaded += len(page)
		after = page[len(page)-1].ID
	}

	ix.Train()
	ix.logger.Info("vector index loaded", zap.Int("vectors", loaded), zap.Bool("trained", ix.Stats().Trained))
	return loaded, nil
}
