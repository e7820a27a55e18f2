//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_EmbedBatch_RealAPI(t *testing.T) {
	apiKey := os.Getenv("TUTORCORE_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("TUTORCORE_OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	ctx := context.Background()

	embeddings, err := client.EmbedBatch(ctx, []string{
		"Mitochondria are the powerhouse of the cell.",
		"The French Revolution began in 1789.",
	})

	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Len(t, embeddings[0], DefaultEmbeddingDimensions)
	assert.Len(t, embeddings[1], DefaultEmbeddingDimensions)
}
