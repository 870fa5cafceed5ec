package roleplay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
)

func TestCharacterModerationFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.store.Seed(func(tx store.Tx) {
		require.NoError(t, tx.InsertCharacter(ctx, domain.Character{
			ID: "draft", Name: "Nova", Status: domain.CharacterDraft,
		}))
	})

	e := f.engine
	require.NoError(t, e.TransitionCharacter(ctx, "draft", "admin", domain.CharacterReviewing, ""))
	require.NoError(t, e.TransitionCharacter(ctx, "draft", "admin", domain.CharacterPublished, "looks good"))
	require.NoError(t, e.TransitionCharacter(ctx, "draft", "admin", domain.CharacterArchived, "retired"))

	logs := f.store.AuditLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, domain.CharacterDraft, logs[0].PrevStatus)
	assert.Equal(t, domain.CharacterReviewing, logs[0].NewStatus)
	assert.Equal(t, domain.CharacterArchived, logs[2].NewStatus)

	f.store.Seed(func(tx store.Tx) {
		c, err := tx.GetCharacter(ctx, "draft")
		require.NoError(t, err)
		assert.Equal(t, domain.CharacterArchived, c.Status)
		assert.Equal(t, "retired", c.StatusReason)
	})
}

func TestCharacterIllegalTransitionRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.store.Seed(func(tx store.Tx) {
		require.NoError(t, tx.InsertCharacter(ctx, domain.Character{
			ID: "draft", Name: "Nova", Status: domain.CharacterDraft,
		}))
	})

	err := f.engine.TransitionCharacter(ctx, "draft", "admin", domain.CharacterPublished, "")
	require.Error(t, err)
	assert.Empty(t, f.store.AuditLogs())
}

func TestUpdatePublishedCharacterSnapshotsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	edited := domain.Character{ID: "c1", Name: "Aria", Personality: "bolder"}
	require.NoError(t, f.engine.UpdateCharacter(ctx, edited))

	history := f.store.CharacterHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "c1", history[0].CharacterID)
	assert.Equal(t, 1, history[0].Version)

	f.store.Seed(func(tx store.Tx) {
		c, err := tx.GetCharacter(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "bolder", c.Personality)
		assert.Equal(t, 2, c.Version)
		// Status is preserved across edits; moderation owns it.
		assert.Equal(t, domain.CharacterPublished, c.Status)
	})
}
