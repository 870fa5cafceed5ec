package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/llm"
	"github.com/metastable-lab/roleplay/internal/llm/llmtest"
	"github.com/metastable-lab/roleplay/internal/persistence/databases"
)

func entitiesResponse(tags ...EntityTag) llm.Response {
	return llmtest.ToolCallResponse("extract_entities", map[string]any{"entities": tags})
}

func relationshipsResponse(rels ...Relationship) llm.Response {
	return llmtest.ToolCallResponse("establish_relationships", map[string]any{"relationships": rels})
}

func deletionsResponse(rels ...Relationship) llm.Response {
	if rels == nil {
		rels = []Relationship{}
	}
	return llmtest.ToolCallResponse("delete_graph_memory", map[string]any{"relationships": rels})
}

func newGraphMemory(provider llm.Provider, embedder Embedder, graph databases.GraphStore) *GraphMemory {
	return NewGraphMemory(graph, embedder, memRuntime(provider),
		NewEntitiesAgent(), NewRelationshipsAgent(), NewDeleteAgent(), config.GraphConfig{}, nil)
}

// A re-extracted entity whose embedding is 0.96-similar to an existing
// node reuses that node instead of creating a near-duplicate.
func TestGraphEntityMergeBySimilarity(t *testing.T) {
	ctx := context.Background()
	graph := databases.NewMemoryGraph()

	beijingVec := []float32{1, 0}
	require.NoError(t, graph.InsertEntity(ctx, domain.GraphEntity{
		ID: "node-beijing", Name: "Beijing", UserID: "u1", Embedding: beijingVec, Mentions: 1,
	}))

	// cosine([1,0], [0.96, 0.28]) = 0.96 >= sigma_merge.
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Beijing ": {0.96, 0.28},
		"xiaoming": {0, 1},
	}}
	provider := (&llmtest.ScriptedProvider{}).
		Enqueue(entitiesResponse(
			EntityTag{EntityName: "xiaoming", EntityTag: "person"},
			EntityTag{EntityName: "Beijing ", EntityTag: "city"},
		)).
		Enqueue(relationshipsResponse(
			Relationship{Source: "xiaoming", Relationship: "works_at", Destination: "Beijing "},
		))

	g := newGraphMemory(provider, embedder, graph)
	require.NoError(t, g.Update(ctx, Filter{UserID: "u1"}, "xiaoming works at Beijing"))

	// The existing node was reused and bumped; only xiaoming is new.
	hits, err := graph.SearchEntities(ctx, beijingVec, "u1", "", 10, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "node-beijing", hits[0].ID)
	assert.Equal(t, 2, hits[0].Mentions)

	edges, err := graph.Neighbors(ctx, "u1", "node-beijing")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, databases.RelationTriple{
		Source: "xiaoming", Relationship: "works_at", Destination: "Beijing",
	}, edges[0])
}

func TestGraphDeletionReasoningRemovesContradictedEdge(t *testing.T) {
	ctx := context.Background()
	graph := databases.NewMemoryGraph()

	aliceVec := []float32{1, 0}
	sfVec := []float32{0, 1}
	require.NoError(t, graph.InsertEntity(ctx, domain.GraphEntity{
		ID: "node-alice", Name: "alice", UserID: "u1", Embedding: aliceVec, Mentions: 1,
	}))
	require.NoError(t, graph.InsertEntity(ctx, domain.GraphEntity{
		ID: "node-sf", Name: "San Francisco", UserID: "u1", Embedding: sfVec, Mentions: 1,
	}))
	require.NoError(t, graph.MergeRelation(ctx, "u1", "node-alice", "node-sf", "lives_in"))

	nycVec := []float32{0.5, 0.5}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"alice":    aliceVec,
		"New York": nycVec,
	}}
	provider := (&llmtest.ScriptedProvider{}).
		Enqueue(entitiesResponse(
			EntityTag{EntityName: "alice", EntityTag: "person"},
			EntityTag{EntityName: "New York", EntityTag: "city"},
		)).
		Enqueue(relationshipsResponse(
			Relationship{Source: "alice", Relationship: "lives_in", Destination: "New York"},
		)).
		Enqueue(deletionsResponse(
			Relationship{Source: "alice", Relationship: "lives_in", Destination: "San Francisco"},
		))

	g := newGraphMemory(provider, embedder, graph)
	require.NoError(t, g.Update(ctx, Filter{UserID: "u1"}, "alice moved to New York"))

	edges, err := graph.Neighbors(ctx, "u1", "node-alice")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "New York", edges[0].Destination)
}

// Triples whose endpoints the entity stage never produced are dropped, not
// written.
func TestGraphDropsTriplesOutsideEntitySet(t *testing.T) {
	ctx := context.Background()
	graph := databases.NewMemoryGraph()
	embedder := &fakeEmbedder{vectors: map[string][]float32{"bob": {1, 0}}}
	provider := (&llmtest.ScriptedProvider{}).
		Enqueue(entitiesResponse(EntityTag{EntityName: "bob", EntityTag: "person"})).
		Enqueue(relationshipsResponse(
			Relationship{Source: "bob", Relationship: "knows", Destination: "charlie"},
		))

	g := newGraphMemory(provider, embedder, graph)
	require.NoError(t, g.Update(ctx, Filter{UserID: "u1"}, "bob knows charlie"))

	hits, err := graph.SearchEntities(ctx, []float32{1, 0}, "u1", "", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	edges, err := graph.Neighbors(ctx, "u1", hits[0].ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestGraphSearchExpandsOneHop(t *testing.T) {
	ctx := context.Background()
	graph := databases.NewMemoryGraph()
	aliceVec := []float32{1, 0}
	sfVec := []float32{0, 1}
	require.NoError(t, graph.InsertEntity(ctx, domain.GraphEntity{
		ID: "node-alice", Name: "alice", UserID: "u1", Embedding: aliceVec,
	}))
	require.NoError(t, graph.InsertEntity(ctx, domain.GraphEntity{
		ID: "node-sf", Name: "San Francisco", UserID: "u1", Embedding: sfVec,
	}))
	require.NoError(t, graph.MergeRelation(ctx, "u1", "node-alice", "node-sf", "lives_in"))

	embedder := &fakeEmbedder{vectors: map[string][]float32{"alice": aliceVec}}
	g := newGraphMemory(&llmtest.ScriptedProvider{}, embedder, graph)

	hits, err := g.Search(ctx, Filter{UserID: "u1"}, []string{"alice"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "node-alice", hits[0].Entity.ID)
	require.Len(t, hits[0].Edges, 1)
	assert.Equal(t, "San Francisco", hits[0].Edges[0].Destination)
}
