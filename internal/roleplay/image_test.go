package roleplay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/llm/llmtest"
	"github.com/metastable-lab/roleplay/internal/objectstore"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
)

func TestGenerateAvatarRehostsAndPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	// The vendor-hosted image the agent reports back.
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer img.Close()

	objects := objectstore.NewMemoryStore()
	presigner := &objectstore.MemoryPresigner{Base: "https://cdn.test"}
	f.provider.Enqueue(llmtest.ToolCallResponse("generate_avatar", map[string]any{
		"prompt":    "a curious librarian, half-body portrait",
		"image_url": img.URL + "/gen.png",
	}))
	f.engine.SetAvatarAgent(NewAvatarAgent(objects, presigner, img.Client()))

	hosted, err := f.engine.GenerateAvatar(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hosted, "https://cdn.test/avatars/c1/"), hosted)

	// The image bytes landed in the object store under the character's key.
	listing, err := objects.List(ctx, objectstore.ListOptions{Prefix: "avatars/c1/"})
	require.NoError(t, err)
	require.Len(t, listing.Objects, 1)

	f.store.Seed(func(tx store.Tx) {
		c, err := tx.GetCharacter(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, hosted, c.AvatarURL)
		// c1 is published: the edit bumped the version and snapshotted.
		assert.Equal(t, 2, c.Version)
	})
	history := f.store.CharacterHistory()
	require.Len(t, history, 1)
	assert.Empty(t, history[0].Snapshot.AvatarURL)
}

func TestGenerateAvatarWithoutAgentConfigured(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.engine.GenerateAvatar(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, rpcerr.Is(err, rpcerr.NotFound))
}
