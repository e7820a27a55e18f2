package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuizRepository stores quizzes, questions and graded answers.
type QuizRepository struct {
	db dbtx
}

func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{db: pool}
}

func (r *QuizRepository) CreateQuiz(ctx context.Context, q *domain.Quiz) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO quizzes (id, org_id, course_id, title, created_at) VALUES ($1, $2, $3, $4, $5)`,
		q.ID, q.OrgID, q.CourseID, q.Title, q.CreatedAt,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrCourseNotFound
	}
	return err
}

// CreateQuestion inserts the question and its options together.
func (r *QuizRepository) CreateQuestion(ctx context.Context, q *domain.Question) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO questions (id, quiz_id, org_id, course_id, type, prompt, position, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			q.ID, q.QuizID, q.OrgID, q.CourseID, q.Type, q.Prompt, q.Position, q.CreatedAt,
		)
		if err != nil {
			if pgErrorCode(err) == pgForeignKeyViolation {
				return domain.ErrQuizNotFound
			}
			return err
		}
		for _, o := range q.Options {
			if _, err := tx.Exec(ctx,
				`INSERT INTO question_options (id, question_id, text, is_correct, position) VALUES ($1, $2, $3, $4, $5)`,
				o.ID, q.ID, o.Text, o.IsCorrect, o.Position,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListQuestionsByCourse returns the course's questions ordered by quiz
// creation, question position and id. Options are not loaded.
func (r *QuizRepository) ListQuestionsByCourse(ctx context.Context, orgID, courseID string) ([]domain.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT q.id, q.quiz_id, q.org_id, q.course_id, q.type, q.prompt, q.position, q.created_at
		 FROM questions q
		 JOIN quizzes z ON z.id = q.quiz_id AND z.org_id = q.org_id
		 WHERE q.org_id = $1 AND q.course_id = $2
		 ORDER BY z.created_at, z.id, q.position, q.id`,
		orgID, courseID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := row.Scan(&q.ID, &q.QuizID, &q.OrgID, &q.CourseID, &q.Type, &q.Prompt, &q.Position, &q.CreatedAt)
		return q, err
	})
}

func (r *QuizRepository) CreateAttempt(ctx context.Context, a *domain.QuizAttempt) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO quiz_attempts (id, org_id, user_id, quiz_id, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.OrgID, a.UserID, a.QuizID, a.StartedAt, a.CompletedAt,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrCrossTenantReference
	}
	return err
}

func (r *QuizRepository) CompleteAttempt(ctx context.Context, orgID, attemptID string, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE quiz_attempts SET completed_at = $1 WHERE id = $2 AND org_id = $3`,
		at, attemptID, orgID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// GetQuestion loads a question inside an organization. Options are not loaded.
func (r *QuizRepository) GetQuestion(ctx context.Context, orgID, id string) (*domain.Question, error) {
	var q domain.Question
	err := r.db.QueryRow(ctx,
		`SELECT id, quiz_id, org_id, course_id, type, prompt, position, created_at
		 FROM questions WHERE id = $1 AND org_id = $2`,
		id, orgID,
	).Scan(&q.ID, &q.QuizID, &q.OrgID, &q.CourseID, &q.Type, &q.Prompt, &q.Position, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuestionNotFound
		}
		return nil, err
	}
	return &q, nil
}

// RecordAnswer stores a graded answer. The question must belong to courseID
// and the attempt must be the user's attempt at the question's quiz;
// otherwise nothing is written and ErrQuestionNotFound is returned.
func (r *QuizRepository) RecordAnswer(ctx context.Context, courseID string, a *domain.QuestionAnswer) error {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO question_answers
			(id, org_id, attempt_id, question_id, user_id, quiz_id, course_id, correct, answered_at)
		 SELECT $1::uuid, q.org_id, t.id, q.id, t.user_id, q.quiz_id, q.course_id, $6::boolean, $7::timestamptz
		 FROM questions q
		 JOIN quiz_attempts t ON t.quiz_id = q.quiz_id AND t.org_id = q.org_id
		 WHERE q.id = $4 AND q.org_id = $2 AND q.course_id = $8
		   AND t.id = $3 AND t.user_id = $5`,
		a.ID, a.OrgID, a.AttemptID, a.QuestionID, a.UserID, a.Correct, a.AnsweredAt, courseID,
	)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return domain.ErrCrossTenantReference
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

// ListAnswers returns a user's graded answers to the course's questions.
func (r *QuizRepository) ListAnswers(ctx context.Context, orgID, userID, courseID string) ([]domain.QuestionAnswer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, attempt_id, question_id, user_id, correct, answered_at
		 FROM question_answers
		 WHERE org_id = $1 AND user_id = $2 AND course_id = $3
		 ORDER BY answered_at, id`,
		orgID, userID, courseID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.QuestionAnswer, error) {
		var a domain.QuestionAnswer
		err := row.Scan(&a.ID, &a.OrgID, &a.AttemptID, &a.QuestionID, &a.UserID, &a.Correct, &a.AnsweredAt)
		return a, err
	})
}

func (r *QuizRepository) GetQuiz(ctx context.Context, orgID, id string) (*domain.Quiz, error) {
	var q domain.Quiz
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, course_id, title, created_at FROM quizzes WHERE id = $1 AND org_id = $2`,
		id, orgID,
	).Scan(&q.ID, &q.OrgID, &q.CourseID, &q.Title, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuizNotFound
		}
		return nil, err
	}
	return &q, nil
}
