package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/agent"
	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/llm/llmtest"
	"github.com/metastable-lab/roleplay/internal/persistence/databases"
)

// fakeEmbedder returns preassigned vectors by exact text; unknown inputs
// fail loudly so tests stay explicit about what gets embedded.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		v, ok := f.vectors[in]
		if !ok {
			return nil, fmt.Errorf("fakeEmbedder: no vector for %q", in)
		}
		out = append(out, v)
	}
	return out, nil
}

func memRuntime(p llm.Provider) *agent.Runtime {
	return agent.NewRuntime(p, 1, time.Minute)
}

func updateMemoryResponse(ops ...MemoryOp) llm.Response {
	return llmtest.ToolCallResponse("update_memory", map[string]any{"memory": ops})
}

// An existing "Likes durian" plus facts ["Likes durian", "Likes mango"]
// yields one ADD and one NOOP.
func TestReconcileAddAndNoop(t *testing.T) {
	ctx := context.Background()
	vectors := databases.NewMemoryVector()
	durianVec := []float32{1, 0, 0}
	mangoVec := []float32{0, 1, 0}
	existingID := "mem-durian"
	require.NoError(t, vectors.Insert(ctx, []domain.EmbeddingMessage{{
		ID: existingID, UserID: "u1", AgentID: "c1", Embedding: durianVec, Content: "Likes durian",
	}}))

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Likes durian": durianVec,
		"Likes mango":  mangoVec,
	}}
	provider := (&llmtest.ScriptedProvider{}).Enqueue(updateMemoryResponse(
		MemoryOp{Event: EventNoop, Content: "Likes durian"},
		MemoryOp{Event: EventAdd, Content: "Likes mango"},
	))
	r := NewReconciler(vectors, embedder, memRuntime(provider), NewUpdateAgent(), config.VectorConfig{}, nil)

	f := Filter{UserID: "u1", CharacterID: "c1"}
	summary, err := r.Reconcile(ctx, f, []string{"Likes durian", "Likes mango"})
	require.NoError(t, err)
	assert.Equal(t, BatchUpdateSummary{Added: 1, Updated: 0, Deleted: 0, Noop: 1}, summary)

	// The batch is total over the input facts.
	assert.Equal(t, 2, summary.Added+summary.Updated+summary.Deleted+summary.Noop)

	hits, err := vectors.Search(ctx, mangoVec, 10, 0.7, databases.VectorFilter{UserID: "u1", AgentID: "c1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Likes mango", hits[0].Content)

	// The update agent saw the durian candidate with its id.
	require.Len(t, provider.Requests, 1)
	assert.Contains(t, provider.Requests[0].Messages[1].Content, existingID)
}

// Idempotence: replaying the same facts cannot duplicate an
// ADD — a repeated ADD with content identical to an existing candidate is
// demoted to NOOP in code, regardless of what the model said.
func TestReconcileIdempotentOnStableInput(t *testing.T) {
	ctx := context.Background()
	vectors := databases.NewMemoryVector()
	mangoVec := []float32{0, 1, 0}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"Likes mango": mangoVec}}

	provider := (&llmtest.ScriptedProvider{}).
		Enqueue(updateMemoryResponse(MemoryOp{Event: EventAdd, Content: "Likes mango"})).
		Enqueue(updateMemoryResponse(MemoryOp{Event: EventAdd, Content: "Likes mango"}))
	r := NewReconciler(vectors, embedder, memRuntime(provider), NewUpdateAgent(), config.VectorConfig{}, nil)

	f := Filter{UserID: "u1", CharacterID: "c1"}
	first, err := r.Reconcile(ctx, f, []string{"Likes mango"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := r.Reconcile(ctx, f, []string{"Likes mango"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 1, second.Noop)

	hits, err := vectors.Search(ctx, mangoVec, 10, 0.7, databases.VectorFilter{UserID: "u1", AgentID: "c1"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestReconcileUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	vectors := databases.NewMemoryVector()
	pizzaVec := []float32{1, 0, 0}
	sushiVec := []float32{0, 1, 0}
	require.NoError(t, vectors.Insert(ctx, []domain.EmbeddingMessage{
		{ID: "mem-1", UserID: "u1", Embedding: pizzaVec, Content: "Likes pizza"},
		{ID: "mem-2", UserID: "u1", Embedding: sushiVec, Content: "Likes sushi"},
	}))

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Loves pizza":    pizzaVec,
		"Dislikes sushi": sushiVec,
	}}
	provider := (&llmtest.ScriptedProvider{}).Enqueue(updateMemoryResponse(
		MemoryOp{ID: "mem-1", Event: EventUpdate, Content: "Loves pizza"},
		MemoryOp{ID: "mem-2", Event: EventDelete, Content: "Likes sushi"},
	))
	r := NewReconciler(vectors, embedder, memRuntime(provider), NewUpdateAgent(), config.VectorConfig{}, nil)

	summary, err := r.Reconcile(ctx, Filter{UserID: "u1"}, []string{"Loves pizza", "Dislikes sushi"})
	require.NoError(t, err)
	assert.Equal(t, BatchUpdateSummary{Added: 0, Updated: 1, Deleted: 1, Noop: 0}, summary)

	hits, err := vectors.Search(ctx, pizzaVec, 10, 0.7, databases.VectorFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Loves pizza", hits[0].Content)
}

// Ops referencing unknown ids, or ADDs carrying an id, are demoted rather
// than applied.
func TestReconcileDemotesInvalidOps(t *testing.T) {
	ctx := context.Background()
	vectors := databases.NewMemoryVector()
	vec := []float32{1, 0, 0}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"some fact": vec}}

	provider := (&llmtest.ScriptedProvider{}).Enqueue(updateMemoryResponse(
		MemoryOp{ID: "ghost", Event: EventDelete, Content: "some fact"},
	))
	r := NewReconciler(vectors, embedder, memRuntime(provider), NewUpdateAgent(), config.VectorConfig{}, nil)

	summary, err := r.Reconcile(ctx, Filter{UserID: "u1"}, []string{"some fact"})
	require.NoError(t, err)
	assert.Equal(t, BatchUpdateSummary{Noop: 1}, summary)
}
