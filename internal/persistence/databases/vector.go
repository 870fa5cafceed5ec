// Package databases holds the vector and graph storage backends behind the
// memory pipeline: a pgvector-backed store, a Qdrant-backed
// alternative, and in-memory fakes for constructor-injected tests.
package databases

import (
	"context"
	"math"

	"github.com/metastable-lab/roleplay/internal/domain"
)

// VectorFilter scopes a search or mutation to one user and optionally to
// one character (agent_id) and/or session. agent_id carries the character
// id; session_id is a nullable column.
type VectorFilter struct {
	UserID    string
	AgentID   string
	SessionID string
}

// ScoredEmbedding is one search hit with its cosine similarity.
type ScoredEmbedding struct {
	domain.EmbeddingMessage
	Score float64
}

// VectorStore is the embedding-row store the Memory Reconciler writes
// through.
type VectorStore interface {
	Insert(ctx context.Context, rows []domain.EmbeddingMessage) error
	// Update overwrites embedding, content, and updated_at by id.
	Update(ctx context.Context, row domain.EmbeddingMessage) error
	// Delete removes all rows whose id is in ids (WHERE id = ANY($1)).
	Delete(ctx context.Context, ids []string) error
	// BatchUpdate applies inserts, overwrites, and deletes as one atomic
	// batch: either every mutation lands or none does. This is the write
	// path of a reconciliation pass. The Qdrant backend is the exception: it
	// issues one upsert call and then one delete call, and a failed delete
	// does not undo the upsert.
	BatchUpdate(ctx context.Context, adds []domain.EmbeddingMessage, updates []domain.EmbeddingMessage, deleteIDs []string) error
	// Search returns up to k rows with cosine similarity >= threshold,
	// filtered by f, ordered by similarity descending.
	Search(ctx context.Context, query []float32, k int, threshold float64, f VectorFilter) ([]ScoredEmbedding, error)
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
