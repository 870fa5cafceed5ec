package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/llm/llmtest"
	"github.com/metastable-lab/roleplay/internal/persistence/databases"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/roleplay"
)

func seedSession(t *testing.T, st *store.MemoryStore, messageCount int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	st.Seed(func(tx store.Tx) {
		require.NoError(t, tx.InsertUser(ctx, domain.User{ID: "u1", DisplayName: "Sam"}))
		require.NoError(t, tx.InsertCharacter(ctx, domain.Character{
			ID: "c1", Name: "Aria", Feature: domain.FeatureRoleplay, Status: domain.CharacterPublished,
		}))
		require.NoError(t, tx.InsertSession(ctx, domain.ChatSession{
			ID: "s1", OwnerID: "u1", CharacterID: "c1", UseCharacterMemory: true,
		}))
		for i := 0; i < messageCount; i++ {
			require.NoError(t, tx.InsertMessage(ctx, domain.Message{
				ID:             fmt.Sprintf("m%02d", i),
				OwnerID:        "u1",
				SessionID:      "s1",
				Summary:        fmt.Sprintf("summary %02d", i),
				IsMemorizeable: true,
				IsInMemory:     true,
				CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			}))
		}
	})
}

func newUpdaterFixture(st *store.MemoryStore, provider *llmtest.ScriptedProvider, embedder Embedder) *Updater {
	rt := memRuntime(provider)
	vectors := databases.NewMemoryVector()
	graph := databases.NewMemoryGraph()
	reconciler := NewReconciler(vectors, embedder, rt, NewUpdateAgent(), config.VectorConfig{}, nil)
	graphMemory := NewGraphMemory(graph, embedder, rt,
		NewEntitiesAgent(), NewRelationshipsAgent(), NewDeleteAgent(), config.GraphConfig{}, nil)
	return NewUpdater(st, rt, NewFactsAgent(), reconciler, graphMemory, nil, nil)
}

// Below the window threshold the task is a silent skip: no LLM call, no
// consumption row.
func TestUpdateMemorySkipsShortHistory(t *testing.T) {
	st := store.NewMemory()
	seedSession(t, st, 8) // 8 - 6 working context = 2 < 6
	provider := &llmtest.ScriptedProvider{}
	u := newUpdaterFixture(st, provider, &fakeEmbedder{})

	err := u.UpdateMemory(context.Background(), roleplay.MemoryTask{SessionID: "s1", LastMessageID: "m07"})
	require.NoError(t, err)
	assert.Empty(t, provider.Requests)
	assert.Empty(t, st.Consumptions())
}

func TestUpdateMemoryFullPipeline(t *testing.T) {
	st := store.NewMemory()
	seedSession(t, st, 13) // 13 - 6 = 7 >= 6: extraction runs over 7 summaries

	factVec := []float32{1, 0}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"名字是Sam":  factVec,
		"Sam":     {0, 1},
		"Beijing": {0.5, 0.5},
	}}
	provider := (&llmtest.ScriptedProvider{}).
		Enqueue(llmtest.ToolCallResponse("extract_facts", map[string]any{"facts": []string{"名字是Sam"}})).
		Enqueue(updateMemoryResponse(MemoryOp{Event: EventAdd, Content: "名字是Sam"})).
		Enqueue(entitiesResponse(
			EntityTag{EntityName: "Sam", EntityTag: "person"},
			EntityTag{EntityName: "Beijing", EntityTag: "city"},
		)).
		Enqueue(relationshipsResponse(
			Relationship{Source: "Sam", Relationship: "lives_in", Destination: "Beijing"},
		))
	u := newUpdaterFixture(st, provider, embedder)

	err := u.UpdateMemory(context.Background(), roleplay.MemoryTask{SessionID: "s1", LastMessageID: "m12"})
	require.NoError(t, err)

	// Zero-point audit row of kind MemoryUpdate.
	rows := st.Consumptions()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.KindMemoryUpdate, rows[0].Kind)
	assert.Equal(t, "c1", rows[0].CharacterID)
	assert.Zero(t, rows[0].FromClaimed+rows[0].FromPurchased+rows[0].FromMisc)

	// The extraction input skipped the 6 most recent messages: the newest
	// summaries stay out of the fact-extraction prompt as working context.
	factsPrompt := provider.Requests[0].Messages[1].Content
	assert.Contains(t, factsPrompt, "summary 06")
	assert.NotContains(t, factsPrompt, "summary 07")
	assert.NotContains(t, factsPrompt, "summary 12")
}

func TestUpdateMemoryEmptyFactsStopsEarly(t *testing.T) {
	st := store.NewMemory()
	seedSession(t, st, 13)
	provider := (&llmtest.ScriptedProvider{}).
		Enqueue(llmtest.ToolCallResponse("extract_facts", map[string]any{"facts": []string{}}))
	u := newUpdaterFixture(st, provider, &fakeEmbedder{})

	err := u.UpdateMemory(context.Background(), roleplay.MemoryTask{SessionID: "s1", LastMessageID: "m12"})
	require.NoError(t, err)
	// Only the extraction call ran; reconciliation and graph stages were
	// skipped on irrelevant input.
	assert.Len(t, provider.Requests, 1)
	assert.Len(t, st.Consumptions(), 1)
}
