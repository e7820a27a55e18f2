package domain

import (
	"fmt"
	"strings"
)

// SearchMode selects between the approximate index, an exhaustive scan and
// hybrid retrieval, which fuses approximate vector hits with full-text hits.
type SearchMode string

const (
	SearchModeApproximate SearchMode = "approximate"
	SearchModeExact       SearchMode = "exact"
	SearchModeHybrid      SearchMode = "hybrid"
)

// ParseSearchMode maps user input to a mode; empty means approximate.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchModeApproximate:
		return SearchModeApproximate, nil
	case SearchModeExact:
		return SearchModeExact, nil
	case SearchModeHybrid:
		return SearchModeHybrid, nil
	}
	return "", NewDomainErrorWithCause(ErrCodeValidation, "invalid search mode", fmt.Errorf("%q", s))
}

// SimilarityQuery is a scoped nearest-neighbour request. OrgID is mandatory;
// CourseID optionally narrows the candidate set. Text is the query as typed
// and is only read in hybrid mode.
type SimilarityQuery struct {
	Vector     []float32
	Text       string
	OrgID      string
	CourseID   string
	Threshold  float64
	MaxResults int
	Mode       SearchMode
}

// Validate checks everything except the vector dimension, which only the
// backend knows.
func (q SimilarityQuery) Validate() error {
	if q.OrgID == "" {
		return ErrAccessDenied
	}
	if q.MaxResults <= 0 {
		return ErrInvalidMaxResults
	}
	if len(q.Vector) == 0 {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrDimensionMismatch.Message, fmt.Errorf("query vector is empty"))
	}
	if q.Mode == SearchModeHybrid && strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// KeywordQuery is a scoped full-text request.
type KeywordQuery struct {
	Text       string
	OrgID      string
	CourseID   string
	MaxResults int
}

func (q KeywordQuery) Validate() error {
	if q.OrgID == "" {
		return ErrAccessDenied
	}
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQuery
	}
	if q.MaxResults <= 0 {
		return ErrInvalidMaxResults
	}
	return nil
}

// DimensionError builds a DimensionMismatch error with the offending sizes.
func DimensionError(got, want int) error {
	return NewDomainErrorWithCause(ErrCodeValidation, ErrDimensionMismatch.Message,
		fmt.Errorf("got %d dimensions, want %d", got, want))
}

// LessMatch orders matches by descending similarity, then ascending
// ordinal, then chunk id, giving a total order.
func LessMatch(a, b ChunkMatch) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.Ordinal != b.Ordinal {
		return a.Ordinal < b.Ordinal
	}
	return a.ChunkID < b.ChunkID
}
