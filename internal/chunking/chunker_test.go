package chunking

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_FiftyTwoHundredChars(t *testing.T) {
	text := strings.Repeat("abcd ", 1040)
	require.Equal(t, 5200, utf8.RuneCountInString(text))

	drafts, err := Chunk("m1", text, Params{TargetSize: 1000, Overlap: 100})
	require.NoError(t, err)
	require.Len(t, drafts, 6)

	for i, d := range drafts {
		assert.Equal(t, i, d.Ordinal)
		assert.Equal(t, "m1", d.MaterialID)
		if i > 0 {
			assert.LessOrEqual(t, d.StartOffset, drafts[i-1].EndOffset)
			assert.Equal(t, 100, d.OverlapChars)
		}
	}
	assert.Equal(t, []int{0, 900, 1800, 2700, 3600, 4500}, startOffsets(drafts))
	assert.Equal(t, 5199, drafts[5].EndOffset)
}

func TestChunk_EmptyAndWhitespace(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t  \n"} {
		drafts, err := Chunk("m1", text, DefaultParams())
		require.NoError(t, err)
		assert.NotNil(t, drafts)
		assert.Empty(t, drafts)
	}
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	drafts, err := Chunk("m1", "  Gradient descent minimizes loss.  ", DefaultParams())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Gradient descent minimizes loss.", drafts[0].Content)
	assert.Equal(t, 2, drafts[0].StartOffset)
	assert.Equal(t, 34, drafts[0].EndOffset)
	assert.Equal(t, 0, drafts[0].OverlapChars)
}

func TestChunk_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"zero target", Params{TargetSize: 0}},
		{"negative target", Params{TargetSize: -5}},
		{"negative overlap", Params{TargetSize: 100, Overlap: -1}},
		{"overlap equals target", Params{TargetSize: 100, Overlap: 100}},
		{"overlap above target", Params{TargetSize: 100, Overlap: 150}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Chunk("m1", "some text", tt.params)
			require.Error(t, err)
			assert.True(t, domain.IsCode(err, domain.ErrCodeValidation))
			assert.ErrorIs(t, err, domain.ErrInvalidChunkParams)
		})
	}
}

func TestChunk_PrefersParagraphBreak(t *testing.T) {
	text := strings.Repeat("a ", 300) + "\n\n" + strings.Repeat("b ", 400)

	drafts, err := Chunk("m1", text, DefaultParams())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(drafts), 2)
	assert.Equal(t, 602, drafts[0].EndOffset)
	assert.True(t, strings.HasSuffix(drafts[0].Content, "\n\n"))
}

func TestChunk_PrefersSentenceOverWhitespace(t *testing.T) {
	text := strings.Repeat("x", 700) + ". " + strings.Repeat("y ", 300)

	drafts, err := Chunk("m1", text, DefaultParams())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(drafts), 2)
	assert.Equal(t, 702, drafts[0].EndOffset)
	assert.True(t, strings.HasSuffix(drafts[0].Content, ". "))
}

func TestChunk_HardCutWithoutBoundaries(t *testing.T) {
	drafts, err := Chunk("m1", strings.Repeat("z", 2500), DefaultParams())
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	assert.Equal(t, []int{0, 900, 1800}, startOffsets(drafts))
	assert.Equal(t, 1000, drafts[0].EndOffset)
	assert.Equal(t, 2500, drafts[2].EndOffset)
}

func TestChunk_BoundaryPastTargetWithinCeiling(t *testing.T) {
	text := strings.Repeat("q", 1400) + " " + strings.Repeat("r", 1400)

	drafts, err := Chunk("m1", text, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 1401, drafts[0].EndOffset)
	assert.LessOrEqual(t, drafts[0].EndOffset-drafts[0].StartOffset, DefaultParams().Ceiling())
}

func TestChunk_RuneOffsets(t *testing.T) {
	text := strings.Repeat("héllo wörld ñandú ", 120)
	runes := []rune(text)

	drafts, err := Chunk("m1", text, Params{TargetSize: 300, Overlap: 30})
	require.NoError(t, err)
	for _, d := range drafts {
		assert.Equal(t, string(runes[d.StartOffset:d.EndOffset]), d.Content)
	}
}

func TestChunk_Idempotent(t *testing.T) {
	text := randomText(rand.New(rand.NewSource(42)), 8000)
	p := Params{TargetSize: 700, Overlap: 120}

	first, err := Chunk("m1", text, p)
	require.NoError(t, err)
	second, err := Chunk("m1", text, p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunk_ContiguityProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		target := 20 + rng.Intn(1500)
		p := Params{TargetSize: target, Overlap: rng.Intn(target)}
		text := randomText(rng, rng.Intn(6000))
		runes := []rune(text)

		drafts, err := Chunk("m1", text, p)
		require.NoError(t, err)
		if strings.TrimSpace(text) == "" {
			assert.Empty(t, drafts)
			continue
		}

		lo, hi := trimBounds(runes)
		require.NotEmpty(t, drafts)
		assert.Equal(t, lo, drafts[0].StartOffset)
		assert.Equal(t, hi, drafts[len(drafts)-1].EndOffset)
		assert.NoError(t, domain.ValidateChunkSequence(drafts))

		for j, d := range drafts {
			assert.Equal(t, j, d.Ordinal)
			assert.LessOrEqual(t, d.EndOffset-d.StartOffset, p.Ceiling(), "chunk %d exceeds ceiling", j)
			assert.Equal(t, string(runes[d.StartOffset:d.EndOffset]), d.Content)
			if j > 0 {
				assert.Equal(t, drafts[j-1].EndOffset, d.OwnStart())
			}
		}
	}
}

func startOffsets(drafts []domain.ChunkDraft) []int {
	out := make([]int, len(drafts))
	for i, d := range drafts {
		out[i] = d.StartOffset
	}
	return out
}

var vocabulary = []string{"gradient", "descent", "neural", "network", "loss", "the", "a", "is", "über", "naïve", "Bayes"}

func randomText(rng *rand.Rand, approxLen int) string {
	var b strings.Builder
	for b.Len() < approxLen {
		b.WriteString(vocabulary[rng.Intn(len(vocabulary))])
		switch n := rng.Intn(40); {
		case n == 0:
			b.WriteString(".\n\n")
		case n < 4:
			b.WriteString(". ")
		case n < 5:
			b.WriteString("\n")
		case n < 6:
			b.WriteString(strings.Repeat("x", rng.Intn(300)))
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}
