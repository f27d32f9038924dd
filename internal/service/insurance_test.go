package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/warrantyops/internal/domain"
)

func TestCalculatePremium(t *testing.T) {
	cases := []struct {
		name     string
		coverage int64
		duration int64
		want     int64
	}{
		{"zero everything", 0, 0, 10},
		{"below both thresholds", 99, 999, 10},
		{"exact thresholds", 100, 1000, 11},
		{"integer division truncates", 250, 2500, 14},
		{"large", 10000, 50000, 5010},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculatePremium(tc.coverage, tc.duration)
			assert.Equal(t, tc.want, got)
			// Pure: same inputs, same output.
			assert.Equal(t, got, CalculatePremium(tc.coverage, tc.duration))
		})
	}
}

func TestPurchaseMovesPremiumIntoPool(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	p, replay, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	require.Nil(t, replay)
	assert.Equal(t, int64(20), p.PremiumPaid)
	assert.Equal(t, int64(100), p.StartsAt)
	assert.Equal(t, int64(2100), p.EndsAt)
	assert.True(t, p.Active)

	assert.Equal(t, int64(80), e.balance(t, "alice"))
	assert.Equal(t, int64(20), e.balance(t, testPool))

	// Link written back onto the warranty.
	got, err := e.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.PolicyID)
}

func TestPurchaseRejectsNonOwnerAndInactive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)
	e.fund(t, "mallory", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	_, _, err = e.insurance.Purchase(ctx, "mallory", w.ID, 500, 2000, "", "")
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
	assert.Equal(t, int64(100), e.balance(t, "mallory"))
	assert.Equal(t, int64(0), e.balance(t, testPool))

	_, err = e.warranties.SetActive(ctx, testAdmin, w.ID, false)
	require.NoError(t, err)
	_, _, err = e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.ErrorIs(t, err, domain.ErrExpiredOrInactive)
}

func TestPurchaseInsufficientFundsRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 5) // premium will be 20

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	_, _, err = e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Nothing committed: balances untouched, no policy, no link.
	assert.Equal(t, int64(5), e.balance(t, "alice"))
	assert.Equal(t, int64(0), e.balance(t, testPool))
	got, err := e.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Zero(t, got.PolicyID)
}

func TestPurchaseIdempotency(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	p, replay, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "key-1", "hash-1")
	require.NoError(t, err)
	require.Nil(t, replay)
	require.NotNil(t, p)

	// Same key and hash replays the stored response without charging again.
	p2, replay2, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "key-1", "hash-1")
	require.NoError(t, err)
	require.NotNil(t, replay2)
	assert.Nil(t, p2)
	assert.Equal(t, 201, replay2.ResponseStatus)
	assert.Equal(t, int64(80), e.balance(t, "alice"))
	assert.Equal(t, int64(20), e.balance(t, testPool))

	// Same key, different payload is a hard error.
	_, _, err = e.insurance.Purchase(ctx, "alice", w.ID, 600, 2000, "key-1", "hash-2")
	require.ErrorIs(t, err, ErrIdempotencyMismatch)
	assert.Equal(t, int64(80), e.balance(t, "alice"))
}

func TestReinsuranceMovesLinkAndKeepsOldPolicy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 1000)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)

	first, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	second, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 800, 3000, "", "")
	require.NoError(t, err)

	got, err := e.warranties.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.PolicyID)

	// The orphaned first policy stays active and cancellable.
	p1, err := e.insurance.GetPolicy(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, p1.Active)
	_, err = e.insurance.Cancel(ctx, "alice", first.ID)
	require.NoError(t, err)
}

func TestFileClaimValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	p, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)

	_, err = e.insurance.FileClaim(ctx, "bob", p.ID, 100)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = e.insurance.FileClaim(ctx, "alice", p.ID, 0)
	require.ErrorIs(t, err, domain.ErrInvalidClaim)
	_, err = e.insurance.FileClaim(ctx, "alice", p.ID, 501)
	require.ErrorIs(t, err, domain.ErrInvalidClaim)

	// Amount equal to coverage is the upper bound and is accepted.
	c, err := e.insurance.FileClaim(ctx, "alice", p.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimPending, c.Status)

	// Past the policy end the claim window is closed.
	e.clock.Set(2101)
	_, err = e.insurance.FileClaim(ctx, "alice", p.ID, 100)
	require.ErrorIs(t, err, domain.ErrExpiredOrInactive)
}

func TestProcessClaimApprovePaysFromPool(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)
	e.fund(t, testPool, 1000)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	p, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	_, err = e.insurance.FileClaim(ctx, "alice", p.ID, 300)
	require.NoError(t, err)

	poolBefore := e.balance(t, testPool)
	aliceBefore := e.balance(t, "alice")

	c, err := e.insurance.ProcessClaim(ctx, testAdmin, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimApproved, c.Status)
	require.NotNil(t, c.ProcessedAt)
	assert.Equal(t, int64(100), *c.ProcessedAt)

	assert.Equal(t, poolBefore-300, e.balance(t, testPool))
	assert.Equal(t, aliceBefore+300, e.balance(t, "alice"))
}

func TestProcessClaimRejectMovesNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	p, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	_, err = e.insurance.FileClaim(ctx, "alice", p.ID, 300)
	require.NoError(t, err)

	poolBefore := e.balance(t, testPool)
	aliceBefore := e.balance(t, "alice")

	c, err := e.insurance.ProcessClaim(ctx, testAdmin, p.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimRejected, c.Status)
	assert.Equal(t, poolBefore, e.balance(t, testPool))
	assert.Equal(t, aliceBefore, e.balance(t, "alice"))
}

func TestProcessClaimExceedingPoolFailsCleanly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	p, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	// Pool holds only the premium (20); the claim asks for 300.
	_, err = e.insurance.FileClaim(ctx, "alice", p.ID, 300)
	require.NoError(t, err)

	_, err = e.insurance.ProcessClaim(ctx, testAdmin, p.ID, true)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Balances untouched, claim still pending and reprocessable.
	assert.Equal(t, int64(20), e.balance(t, testPool))
	assert.Equal(t, int64(80), e.balance(t, "alice"))
	c, err := e.insurance.GetClaim(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimPending, c.Status)
	assert.Nil(t, c.ProcessedAt)
}

func TestProcessClaimIsTerminal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)
	e.fund(t, testPool, 1000)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	p, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	_, err = e.insurance.FileClaim(ctx, "alice", p.ID, 300)
	require.NoError(t, err)
	_, err = e.insurance.ProcessClaim(ctx, testAdmin, p.ID, true)
	require.NoError(t, err)

	poolAfter := e.balance(t, testPool)
	aliceAfter := e.balance(t, "alice")

	// Approving or rejecting again changes nothing.
	_, err = e.insurance.ProcessClaim(ctx, testAdmin, p.ID, true)
	require.ErrorIs(t, err, domain.ErrClaimAlreadyProcessed)
	_, err = e.insurance.ProcessClaim(ctx, testAdmin, p.ID, false)
	require.ErrorIs(t, err, domain.ErrClaimAlreadyProcessed)
	assert.Equal(t, poolAfter, e.balance(t, testPool))
	assert.Equal(t, aliceAfter, e.balance(t, "alice"))
}

func TestProcessClaimRequiresAdminAndExistingClaim(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	p, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)

	_, err = e.insurance.ProcessClaim(ctx, "alice", p.ID, true)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = e.insurance.ProcessClaim(ctx, testAdmin, p.ID, true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelRefundsHalfPremium(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "alice", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-1", "alice", 1000)
	require.NoError(t, err)
	p, _, err := e.insurance.Purchase(ctx, "alice", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	require.Equal(t, int64(20), p.PremiumPaid)

	got, err := e.insurance.Cancel(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, int64(90), e.balance(t, "alice"))
	assert.Equal(t, int64(10), e.balance(t, testPool))

	// A cancelled policy cannot be cancelled again.
	_, err = e.insurance.Cancel(ctx, "alice", p.ID)
	require.ErrorIs(t, err, domain.ErrExpiredOrInactive)
}

func TestPoolBalanceZeroBeforeFunding(t *testing.T) {
	e := newEnv(t, 100)
	balance, err := e.insurance.PoolBalance(context.Background())
	require.NoError(t, err)
	assert.Zero(t, balance)
}

// TestClaimLifecycleEndToEnd walks the full lifecycle at fixed logical
// times and checks conservation at each step.
func TestClaimLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 100)
	e.fund(t, "account-a", 100)

	w, err := e.warranties.Create(ctx, testAdmin, "prod-42", "account-a", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), w.ExpiresAt)

	e.clock.Set(200)
	p, _, err := e.insurance.Purchase(ctx, "account-a", w.ID, 500, 2000, "", "")
	require.NoError(t, err)
	require.Equal(t, int64(20), p.PremiumPaid)
	assert.Equal(t, int64(20), e.balance(t, testPool))
	assert.Equal(t, int64(80), e.balance(t, "account-a"))

	e.clock.Set(300)
	c, err := e.insurance.FileClaim(ctx, "account-a", p.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(300), c.ClaimedAt)

	e.clock.Set(400)
	c, err = e.insurance.ProcessClaim(ctx, testAdmin, p.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimApproved, c.Status)
	assert.Equal(t, int64(0), e.balance(t, testPool))
	assert.Equal(t, int64(100), e.balance(t, "account-a"))

	e.clock.Set(500)
	_, err = e.insurance.ProcessClaim(ctx, testAdmin, p.ID, true)
	require.ErrorIs(t, err, domain.ErrClaimAlreadyProcessed)

	// Every transfer's ledger legs net to zero across all accounts.
	sums := map[int64]int64{}
	for _, acc := range []string{"account-a", testPool, ReserveAccount} {
		entries, err := e.store.ListLedgerEntries(ctx, acc)
		require.NoError(t, err)
		for _, entry := range entries {
			sums[entry.TransferID] += entry.Delta
		}
	}
	require.NotEmpty(t, sums)
	for id, sum := range sums {
		assert.Zerof(t, sum, "transfer %d legs do not balance", id)
	}
}
