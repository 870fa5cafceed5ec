package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/domain"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	st.Seed(func(tx Tx) {
		require.NoError(t, tx.InsertUser(ctx, domain.User{ID: "u1", Claimed: 10}))
		require.NoError(t, tx.InsertCharacter(ctx, domain.Character{ID: "c1", Name: "Aria"}))
		require.NoError(t, tx.InsertSession(ctx, domain.ChatSession{ID: "s1", OwnerID: "u1", CharacterID: "c1"}))
	})

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertMessage(ctx, domain.Message{ID: "m1", OwnerID: "u1", SessionID: "s1"}))
		require.NoError(t, tx.AppendSessionHistory(ctx, "s1", "m1"))
		u, err := tx.GetUserForUpdate(ctx, "u1")
		require.NoError(t, err)
		u.Claimed = 0
		require.NoError(t, tx.UpdateUserBalances(ctx, u))
		return boom
	})
	require.ErrorIs(t, err, boom)

	st.Seed(func(tx Tx) {
		_, err := tx.GetMessage(ctx, "m1")
		assert.ErrorIs(t, err, ErrNotFound)
		s, err := tx.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, s.History)
		u, err := tx.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.EqualValues(t, 10, u.Claimed)
	})
}

func TestListMemorizeableMessagesOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	st.Seed(func(tx Tx) {
		require.NoError(t, tx.InsertUser(ctx, domain.User{ID: "u1"}))
		require.NoError(t, tx.InsertCharacter(ctx, domain.Character{ID: "c1", Name: "Aria"}))
		require.NoError(t, tx.InsertSession(ctx, domain.ChatSession{ID: "s1", OwnerID: "u1", CharacterID: "c1"}))
		require.NoError(t, tx.InsertMessage(ctx, domain.Message{
			ID: "old", SessionID: "s1", OwnerID: "u1", IsMemorizeable: true, IsInMemory: true, CreatedAt: base,
		}))
		require.NoError(t, tx.InsertMessage(ctx, domain.Message{
			ID: "new", SessionID: "s1", OwnerID: "u1", IsMemorizeable: true, IsInMemory: true, CreatedAt: base.Add(time.Hour),
		}))
		require.NoError(t, tx.InsertMessage(ctx, domain.Message{
			ID: "hidden", SessionID: "s1", OwnerID: "u1", IsMemorizeable: false, CreatedAt: base.Add(2 * time.Hour),
		}))
	})

	st.Seed(func(tx Tx) {
		msgs, err := tx.ListMemorizeableMessages(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "new", msgs[0].ID) // created_at DESC
		assert.Equal(t, "old", msgs[1].ID)
	})
}

func TestMarkMessagesInMemoryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	st.Seed(func(tx Tx) {
		require.NoError(t, tx.InsertUser(ctx, domain.User{ID: "u1"}))
		require.NoError(t, tx.InsertCharacter(ctx, domain.Character{ID: "c1", Name: "Aria"}))
		require.NoError(t, tx.InsertSession(ctx, domain.ChatSession{ID: "s1", OwnerID: "u1", CharacterID: "c1"}))
		require.NoError(t, tx.InsertMessage(ctx, domain.Message{ID: "m1", SessionID: "s1", OwnerID: "u1"}))
	})

	err := st.WithTx(ctx, func(tx Tx) error {
		if err := tx.MarkMessagesInMemory(ctx, []string{"m1", "m1", "ghost"}); err != nil {
			return err
		}
		return tx.MarkMessagesInMemory(ctx, []string{"m1"})
	})
	require.NoError(t, err)

	st.Seed(func(tx Tx) {
		m, err := tx.GetMessage(ctx, "m1")
		require.NoError(t, err)
		assert.True(t, m.IsInMemory)
	})
}

func TestSessionHistoryAppendOrder(t *testing.T) {
	ctx := context.Background()
	st := NewMemory()
	st.Seed(func(tx Tx) {
		require.NoError(t, tx.InsertUser(ctx, domain.User{ID: "u1"}))
		require.NoError(t, tx.InsertCharacter(ctx, domain.Character{ID: "c1", Name: "Aria"}))
		require.NoError(t, tx.InsertSession(ctx, domain.ChatSession{ID: "s1", OwnerID: "u1", CharacterID: "c1"}))
	})

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, st.WithTx(ctx, func(tx Tx) error {
			return tx.AppendSessionHistory(ctx, "s1", id)
		}))
	}

	st.Seed(func(tx Tx) {
		s, err := tx.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"m1", "m2", "m3"}, s.History)
	})
}
