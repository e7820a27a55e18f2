package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db dbtx
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, org_id, email, name, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.OrgID, u.Email, u.Name, u.Role, u.CreatedAt,
	)
	if pgErrorCode(err) == pgUniqueViolation {
		return domain.ErrUserAlreadyExists
	}
	return err
}

// GetByID only finds users inside orgID.
func (r *UserRepository) GetByID(ctx context.Context, orgID, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, email, name, role, created_at FROM users WHERE id = $1 AND org_id = $2`,
		id, orgID,
	).Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) SetLearningStyle(ctx context.Context, orgID string, ls *domain.LearningStyle) error {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO learning_styles (user_id, visual, auditory, reading, kinesthetic)
		 SELECT id, $3, $4, $5, $6 FROM users WHERE id = $1 AND org_id = $2
		 ON CONFLICT (user_id) DO UPDATE
		 SET visual = EXCLUDED.visual, auditory = EXCLUDED.auditory,
		     reading = EXCLUDED.reading, kinesthetic = EXCLUDED.kinesthetic`,
		ls.UserID, orgID, ls.Visual, ls.Auditory, ls.Reading, ls.Kinesthetic,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
