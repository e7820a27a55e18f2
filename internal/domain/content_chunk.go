package domain

import (
	"fmt"
	"time"
)

// ChunkDraft is a chunk produced by the chunker before it is persisted.
// Offsets count runes in the source text. [StartOffset, EndOffset) includes
// the leading overlap; the chunk's own range starts at StartOffset+OverlapChars.
type ChunkDraft struct {
	MaterialID   string
	Ordinal      int
	Content      string
	StartOffset  int
	EndOffset    int
	OverlapChars int
}

// OwnStart returns the first offset not shared with the previous chunk.
func (d ChunkDraft) OwnStart() int {
	return d.StartOffset + d.OverlapChars
}

// ContentChunk is a persisted retrievable segment of a material.
// Embedding is nil until computed.
type ContentChunk struct {
	ID           string
	MaterialID   string
	OrgID        string
	CourseID     string
	Ordinal      int
	Content      string
	StartOffset  int
	EndOffset    int
	OverlapChars int
	Embedding    []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasEmbedding reports whether the chunk is searchable.
func (c *ContentChunk) HasEmbedding() bool {
	return c != nil && len(c.Embedding) > 0
}

// ChunkVector pairs a chunk id with its computed embedding.
type ChunkVector struct {
	ChunkID string
	Vector  []float32
}

// ChunkMatch is one ranked similarity search hit.
type ChunkMatch struct {
	ChunkID    string
	MaterialID string
	Ordinal    int
	Similarity float64
}

// ValidateChunkSequence checks that drafts form one contiguous, gap-free
// sequence for a single material. Own ranges must abut exactly and overlaps
// must never reach back past the previous chunk's start.
func ValidateChunkSequence(drafts []ChunkDraft) error {
	for i, d := range drafts {
		if d.Ordinal != i {
			return chunkSequenceError("chunk %d has ordinal %d", i, d.Ordinal)
		}
		if d.StartOffset < 0 || d.EndOffset <= d.StartOffset {
			return chunkSequenceError("chunk %d has empty or negative range [%d,%d)", i, d.StartOffset, d.EndOffset)
		}
		if d.OverlapChars < 0 || d.OwnStart() >= d.EndOffset {
			return chunkSequenceError("chunk %d overlap %d covers its whole range", i, d.OverlapChars)
		}
		if i == 0 {
			if d.OverlapChars != 0 {
				return chunkSequenceError("first chunk cannot overlap")
			}
			continue
		}
		prev := drafts[i-1]
		if d.MaterialID != prev.MaterialID {
			return chunkSequenceError("chunk %d belongs to a different material", i)
		}
		if d.OwnStart() != prev.EndOffset {
			return chunkSequenceError("chunk %d starts its own range at %d, previous ended at %d", i, d.OwnStart(), prev.EndOffset)
		}
		if d.StartOffset <= prev.StartOffset {
			return chunkSequenceError("chunk %d overlap reaches past previous start", i)
		}
	}
	return nil
}

func chunkSequenceError(format string, args ...any) error {
	return NewDomainErrorWithCause(ErrCodeIntegrityViolation, ErrChunkSequenceBroken.Message, fmt.Errorf(format, args...))
}
