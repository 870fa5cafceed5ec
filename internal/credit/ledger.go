// Package credit implements the Credit Ledger: the per-user
// three-bucket balance with deterministic drain order, daily-claim rate
// limit, snapshot-restore on failed deduction, and the append-only
// consumption log written in the same transaction as the deduction.
package credit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/config"
	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
)

// Ledger evaluates balance mutations on an in-memory User copy; persistence
// happens through the enclosing store transaction so a rollback discards the
// snapshot.
type Ledger struct {
	cfg config.CreditConfig
	now func() time.Time
}

// NewLedger returns a Ledger with the given constants and clock; a nil clock
// means time.Now.
func NewLedger(cfg config.CreditConfig, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	if cfg.BalanceCap <= 0 {
		cfg.BalanceCap = 500
	}
	if cfg.ReferralCodePrice <= 0 {
		cfg.ReferralCodePrice = 10
	}
	if cfg.FreeClaimInterval <= 0 {
		cfg.FreeClaimInterval = 86400
	}
	return &Ledger{cfg: cfg, now: now}
}

// Deduction records how much each bucket contributed to one pay call, the
// durable audit counterpart being the consumption row.
type Deduction struct {
	FromClaimed   int64
	FromPurchased int64
	FromMisc      int64
}

// TryClaimFree adds amount to the claimed bucket. It fails RateLimited when
// the previous claim is younger than the claim interval. If the post-claim
// total exceeds the cap, claimed is trimmed to keep the invariant; when the
// paid buckets alone already reach the cap the overflow is a silent
// no-op.
func (l *Ledger) TryClaimFree(u *domain.User, amount int64) error {
	now := l.now()
	if now.Sub(u.FreeBalanceClaimedAt) < time.Duration(l.cfg.FreeClaimInterval)*time.Second {
		return rpcerr.New(rpcerr.RateLimited, "credit.TryClaimFree",
			fmt.Errorf("last claim at %s", u.FreeBalanceClaimedAt.Format(time.RFC3339)))
	}
	paid := u.Purchased + u.Misc
	claimed := u.Claimed + amount
	if claimed+paid > l.cfg.BalanceCap {
		if paid < l.cfg.BalanceCap {
			claimed = l.cfg.BalanceCap - paid
		} else {
			claimed = u.Claimed
		}
	}
	u.Claimed = claimed
	u.FreeBalanceClaimedAt = now
	return nil
}

// Pay drains amount in order claimed -> misc -> purchased. When the three
// buckets combined are insufficient, u is restored to its pre-call snapshot
// and ok is false. On success balance_usage grows by amount and
// last_balance_deduction_at is stamped.
func (l *Ledger) Pay(u *domain.User, amount int64) (Deduction, bool) {
	snapshot := *u
	var d Deduction
	remaining := amount

	take := func(bucket *int64) int64 {
		n := min64(*bucket, remaining)
		*bucket -= n
		remaining -= n
		return n
	}
	d.FromClaimed = take(&u.Claimed)
	d.FromMisc = take(&u.Misc)
	d.FromPurchased = take(&u.Purchased)

	if remaining > 0 {
		*u = snapshot
		return Deduction{}, false
	}
	u.BalanceUsage += amount
	u.LastBalanceDeductionAt = l.now()
	return d, true
}

// PayAndLog runs Pay and, on success, persists the user row and appends
// the consumption row through tx, in the same database transaction. It
// returns InsufficientFunds when the buckets cannot cover amount
// and Fatal when a bucket went negative (invariant violation).
func (l *Ledger) PayAndLog(ctx context.Context, tx store.Tx, u *domain.User, amount int64, kind domain.ConsumptionKind, characterID string) error {
	d, ok := l.Pay(u, amount)
	if !ok {
		return rpcerr.New(rpcerr.InsufficientFunds, "credit.Pay",
			fmt.Errorf("balance %d < %d", u.Total(), amount))
	}
	if u.Claimed < 0 || u.Purchased < 0 || u.Misc < 0 {
		return rpcerr.New(rpcerr.Fatal, "credit.Pay",
			fmt.Errorf("negative bucket after pay: claimed=%d purchased=%d misc=%d", u.Claimed, u.Purchased, u.Misc))
	}
	if err := tx.UpdateUserBalances(ctx, *u); err != nil {
		return fmt.Errorf("persist balances: %w", err)
	}
	if err := tx.InsertConsumption(ctx, domain.UserPointsConsumption{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		Kind:          kind,
		CharacterID:   characterID,
		FromClaimed:   d.FromClaimed,
		FromPurchased: d.FromPurchased,
		FromMisc:      d.FromMisc,
		CreatedAt:     l.now(),
	}); err != nil {
		return fmt.Errorf("append consumption: %w", err)
	}
	return nil
}

// Purchase adds to the purchased bucket; no cap applies.
func (l *Ledger) Purchase(u *domain.User, amount int64) {
	u.Purchased += amount
}

// AddMisc adds to the misc bucket; no cap applies.
func (l *Ledger) AddMisc(u *domain.User, amount int64) {
	u.Misc += amount
}

// BuyReferralCode charges n * REFERRAL_CODE_PRICE (admins are exempt) and
// issues n referral rows with pseudo-random codes: the 16-hex-char prefix of
// a SHA-256 over the user id, a fresh random seed, and the sequence
// number.
func (l *Ledger) BuyReferralCode(ctx context.Context, tx store.Tx, u *domain.User, n int) ([]domain.UserReferral, error) {
	if n <= 0 {
		return nil, fmt.Errorf("credit.BuyReferralCode: n must be positive")
	}
	if u.Role != domain.RoleAdmin {
		price := int64(n) * l.cfg.ReferralCodePrice
		if err := l.PayAndLog(ctx, tx, u, price, domain.KindOther, ""); err != nil {
			return nil, err
		}
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("credit.BuyReferralCode: seed: %w", err)
	}
	out := make([]domain.UserReferral, 0, n)
	for i := 0; i < n; i++ {
		h := sha256.New()
		h.Write([]byte(u.ID))
		h.Write(seed)
		fmt.Fprintf(h, "%d", i)
		code := hex.EncodeToString(h.Sum(nil))[:16]
		r := domain.UserReferral{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			Code:      code,
			CreatedAt: l.now(),
		}
		if err := tx.InsertReferral(ctx, r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
