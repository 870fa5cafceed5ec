package systemconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
)

func def(name, prompt string) domain.SystemConfig {
	return domain.SystemConfig{
		Name:         name,
		SystemPrompt: prompt,
		Model:        "test-model",
		Temperature:  0.7,
		MaxTokens:    4096,
		Functions:    []string{"send_message"},
	}
}

func TestUpsertInsertsAtVersionOne(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	var resolved domain.SystemConfig
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		resolved, err = UpsertByName(ctx, tx, def("roleplay_v1", "prompt"))
		return err
	}))
	assert.Equal(t, 1, resolved.Version)
	assert.NotEmpty(t, resolved.ID)
}

func TestUpsertNoDriftNoBump(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		_, err := UpsertByName(ctx, tx, def("roleplay_v1", "prompt"))
		return err
	}))
	var second domain.SystemConfig
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		second, err = UpsertByName(ctx, tx, def("roleplay_v1", "prompt"))
		return err
	}))
	assert.Equal(t, 1, second.Version)
}

func TestUpsertDriftBumpsVersion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		_, err := UpsertByName(ctx, tx, def("roleplay_v1", "prompt"))
		return err
	}))
	var bumped domain.SystemConfig
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		bumped, err = UpsertByName(ctx, tx, def("roleplay_v1", "prompt v2"))
		return err
	}))
	assert.Equal(t, 2, bumped.Version)
	assert.Equal(t, "prompt v2", bumped.SystemPrompt)

	// Function-list drift bumps too.
	d := def("roleplay_v1", "prompt v2")
	d.Functions = []string{"send_message", "generate_avatar"}
	require.NoError(t, st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		bumped, err = UpsertByName(ctx, tx, d)
		return err
	}))
	assert.Equal(t, 3, bumped.Version)
}

func TestPreloadAllListDeleteUpdate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	resolved, err := PreloadAll(ctx, st, []domain.SystemConfig{
		def("roleplay_v1", "a"),
		def("roleplay_character_creation_v0", "b"),
	})
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	configs, err := List(ctx, st)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	updated := configs[0]
	updated.MaxTokens = 1024
	require.NoError(t, Update(ctx, st, updated))

	require.NoError(t, Delete(ctx, st, configs[1].ID))
	configs, err = List(ctx, st)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 1024, configs[0].MaxTokens)
}
