package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/pagination"
	"github.com/cloo-solutions/tutorcore/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const materialColumns = `id, org_id, course_id, topic_id, title, file_type, file_size, storage_key,
	text_content, status, retry_count, last_error, created_at, updated_at`

type MaterialRepository struct {
	db dbtx
}

func NewMaterialRepository(pool *pgxpool.Pool) *MaterialRepository {
	return &MaterialRepository{db: pool}
}

func NewMaterialRepositoryWithTx(tx pgx.Tx) *MaterialRepository {
	return &MaterialRepository{db: tx}
}

func (r *MaterialRepository) Create(ctx context.Context, m *domain.Material) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO materials (`+materialColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.OrgID, m.CourseID, nullableString(m.TopicID), m.Title, m.FileType, m.FileSize,
		nullableString(m.StorageKey), nullableString(m.Text), m.Status, m.RetryCount,
		nullableString(m.LastError), m.CreatedAt, m.UpdatedAt,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		if pgConstraint(err) == "materials_topic_fk" {
			return domain.ErrCrossTenantReference
		}
		return domain.ErrCourseNotFound
	}
	return err
}

// GetByID only finds materials inside orgID; a foreign material looks missing.
func (r *MaterialRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Material, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE id = $1 AND org_id = $2`,
		id, orgID,
	)
	m, err := scanMaterial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMaterialNotFound
		}
		return nil, err
	}
	return m, nil
}

// MarkFailed moves the material to failed and bumps its retry count.
func (r *MaterialRepository) MarkFailed(ctx context.Context, orgID, id, reason string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE materials
		 SET status = $1, retry_count = retry_count + 1, last_error = $2, updated_at = $3
		 WHERE id = $4 AND org_id = $5`,
		domain.MaterialStatusFailed, nullableString(reason), time.Now().UTC(), id, orgID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrMaterialNotFound
	}
	return nil
}

// ListByCourse pages through a course's materials, newest first.
func (r *MaterialRepository) ListByCourse(ctx context.Context, orgID, courseID string, cursor *pagination.Cursor, limit int) (*service.MaterialPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+materialColumns+` FROM materials
			 WHERE org_id = $1 AND course_id = $2 AND (created_at, id) < ($3, $4)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $5`,
			orgID, courseID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+materialColumns+` FROM materials
			 WHERE org_id = $1 AND course_id = $2
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			orgID, courseID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanMaterialRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.MaterialPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListNeedingProcessing returns materials that were never chunked or still
// have chunks without embeddings, across all organizations, oldest first.
// Materials with an open embedding job are skipped.
func (r *MaterialRepository) ListNeedingProcessing(ctx context.Context, limit int) ([]service.MaterialRef, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT m.org_id, m.id
		 FROM materials m
		 WHERE (m.status = $1
		        OR (m.status = $2 AND EXISTS (
		            SELECT 1 FROM content_chunks c WHERE c.material_id = m.id AND c.embedding IS NULL)))
		   AND NOT EXISTS (
		        SELECT 1 FROM embedding_jobs j
		        WHERE j.material_id = m.id AND j.status IN ($3, $4))
		 ORDER BY m.updated_at ASC, m.id ASC
		 LIMIT $5`,
		domain.MaterialStatusUnprocessed, domain.MaterialStatusChunked,
		domain.EmbeddingJobStatusPending, domain.EmbeddingJobStatusProcessing, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (service.MaterialRef, error) {
		var ref service.MaterialRef
		err := row.Scan(&ref.OrgID, &ref.MaterialID)
		return ref, err
	})
}

// Stats summarizes the pipeline for one organization.
func (r *MaterialRepository) Stats(ctx context.Context, orgID string) (*domain.MaterialStats, error) {
	stats := &domain.MaterialStats{ByStatus: make(map[domain.MaterialStatus]int)}

	rows, err := r.db.Query(ctx,
		`SELECT status, count(*) FROM materials WHERE org_id = $1 GROUP BY status`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.MaterialStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE embedding IS NULL)
		 FROM content_chunks WHERE org_id = $1`,
		orgID,
	).Scan(&stats.TotalChunks, &stats.ChunksMissingVector)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// transitionStatus locks the material row, checks the transition and applies it.
func transitionStatus(ctx context.Context, db dbtx, orgID, id string, to domain.MaterialStatus) error {
	var from domain.MaterialStatus
	err := db.QueryRow(ctx,
		`SELECT status FROM materials WHERE id = $1 AND org_id = $2 FOR UPDATE`,
		id, orgID,
	).Scan(&from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrMaterialNotFound
		}
		return err
	}
	if err := domain.CheckTransition(from, to); err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`UPDATE materials SET status = $1, last_error = NULL, updated_at = $2 WHERE id = $3 AND org_id = $4`,
		to, time.Now().UTC(), id, orgID,
	)
	return err
}

func scanMaterial(row pgx.Row) (*domain.Material, error) {
	var m domain.Material
	var topicID, storageKey, text, lastError *string
	if err := row.Scan(&m.ID, &m.OrgID, &m.CourseID, &topicID, &m.Title, &m.FileType, &m.FileSize,
		&storageKey, &text, &m.Status, &m.RetryCount, &lastError, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.TopicID = stringValue(topicID)
	m.StorageKey = stringValue(storageKey)
	m.Text = stringValue(text)
	m.LastError = stringValue(lastError)
	return &m, nil
}

func scanMaterialRows(rows pgx.Rows) ([]*domain.Material, error) {
	var results []*domain.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
