// Package chunking splits material text into overlapping, bounded segments.
//
// Offsets are rune offsets into the original text. Boundaries are chosen by
// preference: paragraph break, sentence end, whitespace, and only then a hard
// cut. No chunk exceeds one and a half times the target size.
package chunking

import (
	"fmt"
	"unicode"

	"github.com/cloo-solutions/tutorcore/internal/domain"
)

const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 100
)

// Params controls chunk size and overlap, both in runes.
type Params struct {
	TargetSize int
	Overlap    int
}

// DefaultParams returns the standard 1000/100 configuration.
func DefaultParams() Params {
	return Params{TargetSize: DefaultTargetSize, Overlap: DefaultOverlap}
}

// DefaultOverlapFor returns a 10% overlap for the given target size.
func DefaultOverlapFor(targetSize int) int {
	return targetSize / 10
}

// Validate rejects sizes the algorithm cannot make progress with.
func (p Params) Validate() error {
	if p.TargetSize <= 0 {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidChunkParams.Message,
			fmt.Errorf("target size must be positive, got %d", p.TargetSize))
	}
	if p.Overlap < 0 || p.Overlap >= p.TargetSize {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidChunkParams.Message,
			fmt.Errorf("overlap must be in [0, %d), got %d", p.TargetSize, p.Overlap))
	}
	return nil
}

// Ceiling is the largest chunk the chunker will ever emit.
func (p Params) Ceiling() int {
	return p.TargetSize * 3 / 2
}

// Chunk splits text into ordered drafts for materialID. Empty or
// whitespace-only text yields no chunks and no error.
func Chunk(materialID, text string, p Params) ([]domain.ChunkDraft, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	lo, hi := trimBounds(runes)
	if lo >= hi {
		return []domain.ChunkDraft{}, nil
	}

	var drafts []domain.ChunkDraft
	start, overlap := lo, 0
	for {
		end := hi
		if hi-start > p.TargetSize {
			end = findBreak(runes, start, hi, p)
		}

		drafts = append(drafts, domain.ChunkDraft{
			MaterialID:   materialID,
			Ordinal:      len(drafts),
			Content:      string(runes[start:end]),
			StartOffset:  start,
			EndOffset:    end,
			OverlapChars: overlap,
		})

		if end >= hi {
			break
		}
		start, overlap = end-p.Overlap, p.Overlap
	}

	if err := domain.ValidateChunkSequence(drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

func trimBounds(runes []rune) (int, int) {
	lo, hi := 0, len(runes)
	for lo < hi && unicode.IsSpace(runes[lo]) {
		lo++
	}
	for hi > lo && unicode.IsSpace(runes[hi-1]) {
		hi--
	}
	return lo, hi
}

type boundaryKind func(runes []rune, b int) bool

// boundaryKinds in preference order. Each reports whether a cut just before
// index b ends a unit of that kind.
var boundaryKinds = []boundaryKind{
	func(r []rune, b int) bool { return b >= 2 && r[b-1] == '\n' && r[b-2] == '\n' },
	func(r []rune, b int) bool { return b >= 2 && unicode.IsSpace(r[b-1]) && isSentenceEnd(r[b-2]) },
	func(r []rune, b int) bool { return b >= 1 && unicode.IsSpace(r[b-1]) },
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// findBreak picks the end of the chunk starting at start. The window starts
// far enough in that the next chunk's own range is never empty.
func findBreak(runes []rune, start, hi int, p Params) int {
	target := start + p.TargetSize
	lower := start + max(p.TargetSize/2, p.Overlap+1)
	upper := min(start+p.Ceiling(), hi)

	for _, isBoundary := range boundaryKinds {
		for b := target; b >= lower; b-- {
			if isBoundary(runes, b) {
				return b
			}
		}
		for b := target + 1; b <= upper; b++ {
			if isBoundary(runes, b) {
				return b
			}
		}
	}
	return target
}
