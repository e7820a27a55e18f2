package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CourseRepository stores courses and their instructor roster.
type CourseRepository struct {
	db dbtx
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{db: pool}
}

// Create inserts the course and records its creator as an instructor.
func (r *CourseRepository) Create(ctx context.Context, c *domain.Course) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO courses (id, org_id, title, created_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.OrgID, c.Title, c.CreatedBy, c.CreatedAt,
		)
		if err != nil {
			if pgErrorCode(err) == pgForeignKeyViolation {
				return domain.ErrUserNotFound
			}
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO course_instructors (org_id, course_id, user_id) VALUES ($1, $2, $3)`,
			c.OrgID, c.ID, c.CreatedBy,
		)
		return err
	})
}

func (r *CourseRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Course, error) {
	var c domain.Course
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, title, created_by, created_at FROM courses WHERE id = $1 AND org_id = $2`,
		id, orgID,
	).Scan(&c.ID, &c.OrgID, &c.Title, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// AddInstructor fails with ErrCrossTenantReference when the user or course
// lives in another organization.
func (r *CourseRepository) AddInstructor(ctx context.Context, orgID, courseID, userID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO course_instructors (org_id, course_id, user_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		orgID, courseID, userID,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrCrossTenantReference
	}
	return err
}

// Teaches implements tenant.Roster.
func (r *CourseRepository) Teaches(ctx context.Context, orgID, userID, courseID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			 SELECT 1 FROM course_instructors
			 WHERE org_id = $1 AND user_id = $2 AND course_id = $3
		 )`,
		orgID, userID, courseID,
	).Scan(&ok)
	return ok, err
}
