// Package review ranks quiz questions for spaced repetition.
package review

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cloo-solutions/tutorcore/internal/domain"
)

// DefaultPerformance is assumed when a question has history but no
// usable attempts.
const DefaultPerformance = 0.5

// History aggregates one user's answers to one question.
type History struct {
	QuestionID string
	Attempts   int
	Correct    int
	LastSeen   time.Time
}

// Performance is the fraction of correct attempts.
func (h History) Performance() float64 {
	if h.Attempts <= 0 {
		return DefaultPerformance
	}
	return float64(h.Correct) / float64(h.Attempts)
}

// Summarize folds raw answers into per-question history.
func Summarize(answers []domain.QuestionAnswer) map[string]History {
	out := make(map[string]History)
	for _, a := range answers {
		h := out[a.QuestionID]
		h.QuestionID = a.QuestionID
		h.Attempts++
		if a.Correct {
			h.Correct++
		}
		if a.AnsweredAt.After(h.LastSeen) {
			h.LastSeen = a.AnsweredAt
		}
		out[a.QuestionID] = h
	}
	return out
}

// Score is days_since_last_seen / 2^max(performance*5, 1). Performance
// below 0.2 does not raise the score further.
func Score(h History, now time.Time) float64 {
	days := now.Sub(h.LastSeen).Hours() / 24
	if days < 0 {
		days = 0
	}
	exponent := math.Max(h.Performance()*5, 1)
	return days / math.Pow(2, exponent)
}

// Rank returns up to count questions. Never-answered questions come first in
// the order given, then answered questions by descending Score with ties
// broken by question id.
func Rank(questions []domain.Question, history map[string]History, now time.Time, count int) ([]domain.Question, error) {
	if count < 0 {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidCount.Message, fmt.Errorf("got %d", count))
	}

	type scored struct {
		q     domain.Question
		score float64
	}
	var fresh []domain.Question
	var seen []scored
	for _, q := range questions {
		h, ok := history[q.ID]
		if !ok || h.Attempts == 0 {
			fresh = append(fresh, q)
			continue
		}
		seen = append(seen, scored{q: q, score: Score(h, now)})
	}

	sort.SliceStable(seen, func(i, j int) bool {
		if seen[i].score != seen[j].score {
			return seen[i].score > seen[j].score
		}
		return seen[i].q.ID < seen[j].q.ID
	})

	out := make([]domain.Question, 0, min(count, len(questions)))
	for _, q := range fresh {
		if len(out) == count {
			return out, nil
		}
		out = append(out, q)
	}
	for _, s := range seen {
		if len(out) == count {
			break
		}
		out = append(out, s.q)
	}
	return out, nil
}
