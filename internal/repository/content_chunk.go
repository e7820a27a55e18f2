package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const chunkColumns = `id, material_id, org_id, course_id, ordinal, content,
	start_offset, end_offset, overlap_chars, embedding, created_at, updated_at`

// ChunkSearchConfig tunes the pgvector search path.
type ChunkSearchConfig struct {
	Dimensions int
	Probes     int
}

// ChunkRepository persists content chunks and runs pgvector similarity search.
type ChunkRepository struct {
	db     dbtx
	search ChunkSearchConfig
}

func NewChunkRepository(pool *pgxpool.Pool, cfg ChunkSearchConfig) *ChunkRepository {
	return &ChunkRepository{db: pool, search: cfg}
}

func NewChunkRepositoryWithTx(tx pgx.Tx, cfg ChunkSearchConfig) *ChunkRepository {
	return &ChunkRepository{db: tx, search: cfg}
}

// ReplaceChunks swaps a material's chunks for drafts in one transaction
// under a per-material advisory lock. Embeddings start out NULL. The
// material moves to chunked, or straight to embedded when drafts is empty.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, orgID, materialID string, drafts []domain.ChunkDraft) ([]*domain.ContentChunk, error) {
	if err := domain.ValidateChunkSequence(drafts); err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if d.MaterialID != materialID {
			return nil, domain.ErrCrossTenantReference
		}
	}

	var stored []*domain.ContentChunk
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, materialID); err != nil {
			return fmt.Errorf("lock material: %w", err)
		}

		var courseID string
		err := tx.QueryRow(ctx,
			`SELECT course_id FROM materials WHERE id = $1 AND org_id = $2`,
			materialID, orgID,
		).Scan(&courseID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrMaterialNotFound
			}
			return err
		}
		if err := transitionStatus(ctx, tx, orgID, materialID, domain.MaterialStatusChunked); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM content_chunks WHERE material_id = $1 AND org_id = $2`,
			materialID, orgID,
		); err != nil {
			return err
		}

		now := time.Now().UTC()
		stored = make([]*domain.ContentChunk, 0, len(drafts))
		batch := &pgx.Batch{}
		for _, d := range drafts {
			c := &domain.ContentChunk{
				ID:           uuid.NewString(),
				MaterialID:   materialID,
				OrgID:        orgID,
				CourseID:     courseID,
				Ordinal:      d.Ordinal,
				Content:      d.Content,
				StartOffset:  d.StartOffset,
				EndOffset:    d.EndOffset,
				OverlapChars: d.OverlapChars,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			batch.Queue(
				`INSERT INTO content_chunks
					(id, material_id, org_id, course_id, ordinal, content, start_offset, end_offset, overlap_chars, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				c.ID, c.MaterialID, c.OrgID, c.CourseID, c.Ordinal, c.Content,
				c.StartOffset, c.EndOffset, c.OverlapChars, c.CreatedAt, c.UpdatedAt,
			)
			stored = append(stored, c)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return err
			}
			return nil
		}
		return transitionStatus(ctx, tx, orgID, materialID, domain.MaterialStatusEmbedded)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// BatchUpdateEmbeddings writes every vector or none. A chunk id that is
// missing or belongs to another organization aborts the whole batch. Any
// material whose chunks are now all embedded moves to embedded in the same
// transaction. It returns the updated chunks.
func (r *ChunkRepository) BatchUpdateEmbeddings(ctx context.Context, orgID string, updates []domain.ChunkVector) ([]*domain.ContentChunk, error) {
	if len(updates) == 0 {
		return []*domain.ContentChunk{}, nil
	}

	var updated []*domain.ContentChunk
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(
				`UPDATE content_chunks SET embedding = $1, updated_at = $2
				 WHERE id = $3 AND org_id = $4
				 RETURNING `+chunkColumns,
				pgvector.NewVector(u.Vector), now, u.ChunkID, orgID,
			)
		}

		br := tx.SendBatch(ctx, batch)
		updated = make([]*domain.ContentChunk, 0, len(updates))
		for _, u := range updates {
			c, err := scanChunk(br.QueryRow())
			if err != nil {
				_ = br.Close()
				if errors.Is(err, pgx.ErrNoRows) {
					return domain.NewDomainErrorWithCause(domain.ErrCodeIntegrityViolation,
						domain.ErrChunkOutsideOrg.Message, fmt.Errorf("chunk %s", u.ChunkID))
				}
				return err
			}
			updated = append(updated, c)
		}
		if err := br.Close(); err != nil {
			return err
		}

		seen := make(map[string]bool)
		for _, c := range updated {
			if seen[c.MaterialID] {
				continue
			}
			seen[c.MaterialID] = true

			var complete bool
			err := tx.QueryRow(ctx,
				`SELECT NOT EXISTS (
					 SELECT 1 FROM content_chunks WHERE material_id = $1 AND embedding IS NULL
				 )`,
				c.MaterialID,
			).Scan(&complete)
			if err != nil {
				return err
			}
			if complete {
				if err := transitionStatus(ctx, tx, orgID, c.MaterialID, domain.MaterialStatusEmbedded); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SearchSimilar ranks embedded chunks in the query's scope by cosine
// similarity. Exact mode disables index scans. Approximate mode probes the
// ivfflat index and lets it keep scanning until the filtered result is full.
func (r *ChunkRepository) SearchSimilar(ctx context.Context, q domain.SimilarityQuery) ([]domain.ChunkMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if r.search.Dimensions > 0 && len(q.Vector) != r.search.Dimensions {
		return nil, domain.DimensionError(len(q.Vector), r.search.Dimensions)
	}

	orderBy := `embedding <=> $1`
	if q.Mode == domain.SearchModeExact {
		orderBy = `embedding <=> $1, ordinal, id`
	}
	query := `
		SELECT id, material_id, ordinal, 1 - (embedding <=> $1) AS similarity
		FROM content_chunks
		WHERE org_id = $2
		  AND ($3::uuid IS NULL OR course_id = $3::uuid)
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) > $4
		ORDER BY ` + orderBy + `
		LIMIT $5`

	matches := make([]domain.ChunkMatch, 0)
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.configureSearch(ctx, tx, q.Mode); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, query,
			pgvector.NewVector(q.Vector), q.OrgID, nullableString(q.CourseID), q.Threshold, q.MaxResults,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m domain.ChunkMatch
			if err := rows.Scan(&m.ChunkID, &m.MaterialID, &m.Ordinal, &m.Similarity); err != nil {
				return err
			}
			matches = append(matches, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// KeywordSearch ranks chunks in the query's scope by full-text relevance
// (ts_rank over the english configuration). Chunks without a vector are
// included. Similarity carries the rank.
func (r *ChunkRepository) KeywordSearch(ctx context.Context, q domain.KeywordQuery) ([]domain.ChunkMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, material_id, ordinal,
		        ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS rank
		 FROM content_chunks
		 WHERE org_id = $2
		   AND ($3::uuid IS NULL OR course_id = $3::uuid)
		   AND to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		 ORDER BY rank DESC, ordinal, id
		 LIMIT $4`,
		q.Text, q.OrgID, nullableString(q.CourseID), q.MaxResults,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ChunkMatch, error) {
		var m domain.ChunkMatch
		var rank float32
		err := row.Scan(&m.ChunkID, &m.MaterialID, &m.Ordinal, &rank)
		m.Similarity = float64(rank)
		return m, err
	})
}

func (r *ChunkRepository) configureSearch(ctx context.Context, tx pgx.Tx, mode domain.SearchMode) error {
	if mode == domain.SearchModeExact {
		_, err := tx.Exec(ctx, `SELECT set_config('enable_indexscan', 'off', true)`)
		return err
	}
	probes := r.search.Probes
	if probes <= 0 {
		probes = 10
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('ivfflat.probes', $1, true)`, strconv.Itoa(probes)); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `SELECT set_config('ivfflat.iterative_scan', 'relaxed_order', true)`)
	return err
}

// GetByIDs returns the chunks among ids that belong to orgID, ordered by
// material and ordinal. Foreign ids are silently absent.
func (r *ChunkRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.ContentChunk, error) {
	if len(ids) == 0 {
		return []*domain.ContentChunk{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM content_chunks
		 WHERE org_id = $1 AND id = ANY($2)
		 ORDER BY material_id, ordinal`,
		orgID, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ListByMaterial returns a material's chunks in ordinal order.
func (r *ChunkRepository) ListByMaterial(ctx context.Context, orgID, materialID string) ([]*domain.ContentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM content_chunks
		 WHERE org_id = $1 AND material_id = $2
		 ORDER BY ordinal`,
		orgID, materialID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ListMissingEmbeddings returns a material's chunks that have no vector yet.
func (r *ChunkRepository) ListMissingEmbeddings(ctx context.Context, orgID, materialID string) ([]*domain.ContentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM content_chunks
		 WHERE org_id = $1 AND material_id = $2 AND embedding IS NULL
		 ORDER BY ordinal`,
		orgID, materialID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ListEmbedded pages through every embedded chunk in id order. It is used
// to warm the in-memory index at startup.
func (r *ChunkRepository) ListEmbedded(ctx context.Context, afterID string, limit int) ([]*domain.ContentChunk, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM content_chunks
		 WHERE embedding IS NOT NULL AND ($1::uuid IS NULL OR id > $1::uuid)
		 ORDER BY id
		 LIMIT $2`,
		nullableString(afterID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunk(row pgx.Row) (*domain.ContentChunk, error) {
	var c domain.ContentChunk
	var embedding *pgvector.Vector
	if err := row.Scan(&c.ID, &c.MaterialID, &c.OrgID, &c.CourseID, &c.Ordinal, &c.Content,
		&c.StartOffset, &c.EndOffset, &c.OverlapChars, &embedding, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	return &c, nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.ContentChunk, error) {
	results := make([]*domain.ContentChunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
