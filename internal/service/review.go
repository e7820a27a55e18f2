package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/review"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"go.uber.org/zap"
)

// QuizRepositoryInterface is what the scheduler needs from quiz storage.
type QuizRepositoryInterface interface {
	ListQuestionsByCourse(ctx context.Context, orgID, courseID string) ([]domain.Question, error)
	ListAnswers(ctx context.Context, orgID, userID, courseID string) ([]domain.QuestionAnswer, error)
	GetQuestion(ctx context.Context, orgID, id string) (*domain.Question, error)
	RecordAnswer(ctx context.Context, courseID string, a *domain.QuestionAnswer) error
}

// ReviewService picks the questions a student should practise next.
type ReviewService struct {
	gate    Authorizer
	quizzes QuizRepositoryInterface
	now     func() time.Time
	uuidGen UUIDGenerator
	logger  *zap.Logger
}

func NewReviewService(gate Authorizer, quizzes QuizRepositoryInterface, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		gate:    gate,
		quizzes: quizzes,
		now:     func() time.Time { return time.Now().UTC() },
		uuidGen: &DefaultUUIDGenerator{},
		logger:  orNop(logger),
	}
}

// NextQuestions returns up to count questions of the course for userID,
// never-answered ones first, then the most overdue.
func (s *ReviewService) NextQuestions(ctx context.Context, p tenant.Principal, userID, courseID string, count int) ([]domain.Question, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewService.NextQuestions", telemetry.SpanAttributes{
		OrgID:     p.OrgID,
		CourseID:  courseID,
		Operation: string(tenant.OpScheduleReview),
	})
	defer span.End()

	scope := tenant.Scope{OrgID: p.OrgID, CourseID: courseID, UserID: userID}
	if err := s.gate.Authorize(ctx, p, tenant.OpScheduleReview, scope); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, domain.ErrInvalidCount
	}
	if count == 0 {
		return []domain.Question{}, nil
	}

	questions, err := s.quizzes.ListQuestionsByCourse(ctx, p.OrgID, courseID)
	if err != nil {
		return nil, err
	}
	answers, err := s.quizzes.ListAnswers(ctx, p.OrgID, userID, courseID)
	if err != nil {
		return nil, err
	}

	next, err := review.Rank(questions, review.Summarize(answers), s.now(), count)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("review questions ranked",
		zap.String("org_id", p.OrgID),
		zap.String("course_id", courseID),
		zap.String("user_id", userID),
		zap.Int("candidates", len(questions)),
		zap.Int("returned", len(next)),
	)
	return next, nil
}

// History summarizes a user's answers per question for the course.
func (s *ReviewService) History(ctx context.Context, p tenant.Principal, userID, courseID string) (map[string]review.History, error) {
	scope := tenant.Scope{OrgID: p.OrgID, CourseID: courseID, UserID: userID}
	if err := s.gate.Authorize(ctx, p, tenant.OpReadAttempts, scope); err != nil {
		return nil, err
	}
	answers, err := s.quizzes.ListAnswers(ctx, p.OrgID, userID, courseID)
	if err != nil {
		return nil, err
	}
	return review.Summarize(answers), nil
}

// RecordAnswer stores a graded answer inside an attempt. The question must
// belong to courseID; a question of any other course is not found.
func (s *ReviewService) RecordAnswer(ctx context.Context, p tenant.Principal, courseID string, a *domain.QuestionAnswer) error {
	scope := tenant.Scope{OrgID: p.OrgID, CourseID: courseID, UserID: a.UserID}
	if err := s.gate.Authorize(ctx, p, tenant.OpWriteAttempt, scope); err != nil {
		return err
	}
	if courseID == "" || a.AttemptID == "" || a.QuestionID == "" {
		return domain.ErrMissingRequiredField
	}

	q, err := s.quizzes.GetQuestion(ctx, p.OrgID, a.QuestionID)
	if err != nil {
		return err
	}
	if q.CourseID != courseID {
		s.logger.Warn("answer targets a question outside the course",
			zap.String("org_id", p.OrgID),
			zap.String("course_id", courseID),
			zap.String("question_id", a.QuestionID),
		)
		return domain.ErrQuestionNotFound
	}

	a.OrgID = p.OrgID
	if a.ID == "" {
		a.ID = s.uuidGen.NewString()
	}
	if a.AnsweredAt.IsZero() {
		a.AnsweredAt = s.now()
	}
	return s.quizzes.RecordAnswer(ctx, courseID, a)
}
