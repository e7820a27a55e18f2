package domain

import (
	"fmt"
	"time"
)

// QuestionType enumerates supported question formats.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeFreeText       QuestionType = "free_text"
)

type Quiz struct {
	ID        string
	OrgID     string
	CourseID  string
	Title     string
	CreatedAt time.Time
}

type Question struct {
	ID        string
	QuizID    string
	OrgID     string
	CourseID  string
	Type      QuestionType
	Prompt    string
	Position  int
	Options   []QuestionOption
	CreatedAt time.Time
}

type QuestionOption struct {
	ID         string
	QuestionID string
	Text       string
	IsCorrect  bool
	Position   int
}

type QuizAttempt struct {
	ID          string
	OrgID       string
	UserID      string
	QuizID      string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// QuestionAnswer is one graded response inside an attempt.
type QuestionAnswer struct {
	ID         string
	OrgID      string
	AttemptID  string
	QuestionID string
	UserID     string
	Correct    bool
	AnsweredAt time.Time
}

// ValidateQuestion validates a Question instance
func ValidateQuestion(q *Question) error {
	if q == nil {
		return fmt.Errorf("question cannot be nil")
	}
	if q.ID == "" {
		return fmt.Errorf("question ID is required")
	}
	if q.QuizID == "" {
		return fmt.Errorf("question QuizID is required")
	}
	if q.Prompt == "" {
		return fmt.Errorf("question Prompt is required")
	}
	switch q.Type {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeFreeText:
	default:
		return fmt.Errorf("question Type is invalid: %s", q.Type)
	}
	if q.Type == QuestionTypeMultipleChoice {
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return fmt.Errorf("multiple choice question needs a correct option")
		}
	}
	return nil
}
