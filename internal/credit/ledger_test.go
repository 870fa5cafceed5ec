package credit

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
)

func testLedger(now time.Time) *Ledger {
	return NewLedger(config.CreditConfig{
		BalanceCap:        500,
		ReferralCodePrice: 10,
		FreeClaimInterval: 86400,
	}, func() time.Time { return now })
}

func TestTryClaimFreeRateLimited(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := testLedger(now)

	u := domain.User{Claimed: 5, FreeBalanceClaimedAt: now.Add(-time.Hour)}
	err := l.TryClaimFree(&u, 10)
	require.Error(t, err)
	assert.True(t, rpcerr.Is(err, rpcerr.RateLimited))
	assert.EqualValues(t, 5, u.Claimed)

	u.FreeBalanceClaimedAt = now.Add(-25 * time.Hour)
	require.NoError(t, l.TryClaimFree(&u, 10))
	assert.EqualValues(t, 15, u.Claimed)
	assert.Equal(t, now, u.FreeBalanceClaimedAt)
}

func TestTryClaimFreeCapTrimsClaimed(t *testing.T) {
	now := time.Now()
	l := testLedger(now)

	u := domain.User{Claimed: 490, Purchased: 5, FreeBalanceClaimedAt: now.Add(-48 * time.Hour)}
	require.NoError(t, l.TryClaimFree(&u, 100))
	// Trimmed so claimed + purchased + misc == cap.
	assert.EqualValues(t, 495, u.Claimed)
	assert.EqualValues(t, 500, u.Total())
}

func TestTryClaimFreePaidBucketsAboveCapNoop(t *testing.T) {
	now := time.Now()
	l := testLedger(now)

	u := domain.User{Claimed: 3, Purchased: 600, FreeBalanceClaimedAt: now.Add(-48 * time.Hour)}
	require.NoError(t, l.TryClaimFree(&u, 100))
	// Paid buckets are never auto-trimmed; the claim is silently a no-op.
	assert.EqualValues(t, 3, u.Claimed)
	assert.EqualValues(t, 600, u.Purchased)
}

func TestPayDrainOrder(t *testing.T) {
	l := testLedger(time.Now())
	u := domain.User{Claimed: 2, Misc: 3, Purchased: 10}

	d, ok := l.Pay(&u, 6)
	require.True(t, ok)
	assert.EqualValues(t, 2, d.FromClaimed)
	assert.EqualValues(t, 3, d.FromMisc)
	assert.EqualValues(t, 1, d.FromPurchased)
	assert.EqualValues(t, 0, u.Claimed)
	assert.EqualValues(t, 0, u.Misc)
	assert.EqualValues(t, 9, u.Purchased)
	assert.EqualValues(t, 6, u.BalanceUsage)
}

func TestPayInsufficientRestoresSnapshot(t *testing.T) {
	l := testLedger(time.Now())
	before := domain.User{
		ID: "u1", Claimed: 1, Misc: 1, Purchased: 1,
		BalanceUsage: 7, LastBalanceDeductionAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	u := before

	_, ok := l.Pay(&u, 4)
	require.False(t, ok)
	// The row is bitwise-identical to its pre-call snapshot.
	assert.Equal(t, before, u)
}

func TestPayAndLogAppendsConsumption(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Now()
	l := testLedger(now)

	u := domain.User{ID: "u1", Claimed: 5}
	st.Seed(func(tx store.Tx) {
		require.NoError(t, tx.InsertUser(ctx, u))
	})

	err := st.WithTx(ctx, func(tx store.Tx) error {
		return l.PayAndLog(ctx, tx, &u, 1, domain.KindLLMCall, "char-1")
	})
	require.NoError(t, err)

	rows := st.Consumptions()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.KindLLMCall, rows[0].Kind)
	assert.Equal(t, "char-1", rows[0].CharacterID)
	assert.EqualValues(t, 1, rows[0].FromClaimed)
	assert.EqualValues(t, 0, rows[0].FromPurchased)
}

func TestPayAndLogInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := testLedger(time.Now())

	u := domain.User{ID: "u1"}
	st.Seed(func(tx store.Tx) {
		require.NoError(t, tx.InsertUser(ctx, u))
	})

	err := st.WithTx(ctx, func(tx store.Tx) error {
		return l.PayAndLog(ctx, tx, &u, 1, domain.KindLLMCall, "char-1")
	})
	require.Error(t, err)
	assert.True(t, rpcerr.Is(err, rpcerr.InsufficientFunds))
	assert.Empty(t, st.Consumptions())
}

func TestBalanceInvariantUnderSequences(t *testing.T) {
	// Balances stay >= 0 and never exceed the cap right after a
	// claim, across an arbitrary op sequence.
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	l := testLedger(now)
	u := domain.User{FreeBalanceClaimedAt: now.Add(-48 * time.Hour)}

	require.NoError(t, l.TryClaimFree(&u, 600))
	assert.LessOrEqual(t, u.Total(), int64(500))

	l.Purchase(&u, 300)
	l.AddMisc(&u, 50)
	for i := 0; i < 20; i++ {
		l.Pay(&u, 37)
		assert.GreaterOrEqual(t, u.Claimed, int64(0))
		assert.GreaterOrEqual(t, u.Purchased, int64(0))
		assert.GreaterOrEqual(t, u.Misc, int64(0))
	}
}

func TestBuyReferralCode(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := testLedger(time.Now())

	u := domain.User{ID: "u1", Purchased: 25, Role: domain.RoleUser}
	st.Seed(func(tx store.Tx) {
		require.NoError(t, tx.InsertUser(ctx, u))
	})

	var codes []domain.UserReferral
	err := st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		codes, err = l.BuyReferralCode(ctx, tx, &u, 2)
		return err
	})
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.EqualValues(t, 5, u.Purchased) // 25 - 2*10
	assert.NotEqual(t, codes[0].Code, codes[1].Code)
	for _, c := range codes {
		assert.Len(t, c.Code, 16)
		_, err := hex.DecodeString(c.Code)
		assert.NoError(t, err)
	}
}

func TestBuyReferralCodeAdminIsFree(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := testLedger(time.Now())

	u := domain.User{ID: "admin", Role: domain.RoleAdmin}
	st.Seed(func(tx store.Tx) {
		require.NoError(t, tx.InsertUser(ctx, u))
	})

	err := st.WithTx(ctx, func(tx store.Tx) error {
		_, err := l.BuyReferralCode(ctx, tx, &u, 3)
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, st.Consumptions())
}
