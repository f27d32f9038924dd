package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/warrantyops/internal/clock"
	"github.com/punchamoorthee/warrantyops/internal/store"
)

const (
	testAdmin = "admin"
	testPool  = "pool"
)

// env wires the full service stack over the in-memory store with a
// manual clock, mirroring the production wiring in cmd/api.
type env struct {
	store      *store.Memory
	clock      *clock.ManualClock
	authz      *Authorizer
	warranties *WarrantyService
	claims     *ClaimService
	insurance  *InsuranceService
	accounts   *AccountService
}

func newEnv(t *testing.T, start int64) *env {
	t.Helper()
	st := store.NewMemory()
	ck := clock.NewManualClock(start)
	az := NewAuthorizer(testAdmin)
	return &env{
		store:      st,
		clock:      ck,
		authz:      az,
		warranties: NewWarrantyService(st, ck, az),
		claims:     NewClaimService(st, ck, az),
		insurance:  NewInsuranceService(st, ck, az, testPool),
		accounts:   NewAccountService(st, ck, az),
	}
}

// fund credits an account from the reserve via the admin faucet.
func (e *env) fund(t *testing.T, id string, amount int64) {
	t.Helper()
	_, err := e.accounts.Deposit(context.Background(), testAdmin, id, amount)
	require.NoError(t, err)
}

// balance returns the account balance, zero for never-funded accounts.
func (e *env) balance(t *testing.T, id string) int64 {
	t.Helper()
	acc, err := e.store.GetAccount(context.Background(), id)
	if err != nil {
		return 0
	}
	return acc.Balance
}
