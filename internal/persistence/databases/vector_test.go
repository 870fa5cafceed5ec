package databases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/domain"
)

func row(id, content string, vec []float32) domain.EmbeddingMessage {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	return domain.EmbeddingMessage{
		ID: id, UserID: "u1", Embedding: vec, Content: content,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestBatchUpdateAppliesAllThreeKinds(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVector()
	require.NoError(t, v.Insert(ctx, []domain.EmbeddingMessage{
		row("keep", "Likes pizza", []float32{1, 0}),
		row("gone", "Likes sushi", []float32{0, 1}),
	}))

	updated := row("keep", "Loves pizza", []float32{1, 0})
	err := v.BatchUpdate(ctx,
		[]domain.EmbeddingMessage{row("fresh", "Likes mango", []float32{0.7, 0.7})},
		[]domain.EmbeddingMessage{updated},
		[]string{"gone"},
	)
	require.NoError(t, err)

	hits, err := v.Search(ctx, []float32{1, 0}, 10, 0, VectorFilter{UserID: "u1"})
	require.NoError(t, err)
	byID := map[string]string{}
	for _, h := range hits {
		byID[h.ID] = h.Content
	}
	assert.Equal(t, map[string]string{
		"keep":  "Loves pizza",
		"fresh": "Likes mango",
	}, byID)
}

// A bad entry anywhere in the batch leaves the store untouched: no partial
// application of the adds that preceded it.
func TestBatchUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVector()
	require.NoError(t, v.Insert(ctx, []domain.EmbeddingMessage{
		row("existing", "Likes pizza", []float32{1, 0}),
	}))

	err := v.BatchUpdate(ctx,
		[]domain.EmbeddingMessage{row("fresh", "Likes mango", []float32{0, 1})},
		[]domain.EmbeddingMessage{row("ghost", "no such row", []float32{0, 1})},
		[]string{"existing"},
	)
	require.Error(t, err)

	hits, err := v.Search(ctx, []float32{1, 0}, 10, 0, VectorFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "existing", hits[0].ID)
	assert.Equal(t, "Likes pizza", hits[0].Content)
}
