package repository

import (
	"context"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InteractionRepository keeps the audit trail of tutoring exchanges.
type InteractionRepository struct {
	db dbtx
}

func NewInteractionRepository(pool *pgxpool.Pool) *InteractionRepository {
	return &InteractionRepository{db: pool}
}

func (r *InteractionRepository) Create(ctx context.Context, in *domain.AIInteraction) error {
	ids := in.ContextChunkIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_interactions (id, org_id, user_id, course_id, query, context_chunk_ids, answer, used_fallback, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		in.ID, in.OrgID, in.UserID, nullableString(in.CourseID), in.Query, ids, in.Answer, in.UsedFallback, in.CreatedAt,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrCrossTenantReference
	}
	return err
}

// ListByUser returns the newest interactions first. An empty courseID
// matches every course.
func (r *InteractionRepository) ListByUser(ctx context.Context, orgID, userID, courseID string, limit int) ([]*domain.AIInteraction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, user_id, course_id, query, context_chunk_ids, answer, used_fallback, created_at
		 FROM ai_interactions
		 WHERE org_id = $1 AND user_id = $2 AND ($3::uuid IS NULL OR course_id = $3::uuid)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4`,
		orgID, userID, nullableString(courseID), limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.AIInteraction, error) {
		var in domain.AIInteraction
		var courseID *string
		err := row.Scan(&in.ID, &in.OrgID, &in.UserID, &courseID, &in.Query, &in.ContextChunkIDs,
			&in.Answer, &in.UsedFallback, &in.CreatedAt)
		in.CourseID = stringValue(courseID)
		return &in, err
	})
}
