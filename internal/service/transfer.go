package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/punchamoorthee/warrantyops/internal/clock"
	"github.com/punchamoorthee/warrantyops/internal/domain"
	"github.com/punchamoorthee/warrantyops/internal/store"
)

// ReserveAccount is the counter-account for administrator deposits.
// Every movement is double-entry, so issuance debits the reserve; its
// balance is the only one allowed to go negative.
const ReserveAccount = "reserve"

// MoveFunds executes one atomic debit/credit pair inside the caller's
// transaction: lock both accounts in deterministic order, check the
// source balance, record the transfer and its two ledger legs, adjust
// both balances. Any failure aborts the enclosing operation.
func MoveFunds(ctx context.Context, st store.Store, from, to string, amount int64, reason string, at int64) (*domain.Transfer, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative amount %d: %w", amount, domain.ErrInsufficientFunds)
	}
	if err := st.EnsureAccount(ctx, to); err != nil {
		return nil, fmt.Errorf("ensure destination account: %w", err)
	}

	// Lock in id order to prevent deadlocks between concurrent movers.
	first, second := from, to
	if first > second {
		first, second = second, first
	}
	if _, err := st.GetAccountForUpdate(ctx, first); err != nil {
		return nil, accountErr(first, err)
	}
	if _, err := st.GetAccountForUpdate(ctx, second); err != nil {
		return nil, accountErr(second, err)
	}

	src, err := st.GetAccount(ctx, from)
	if err != nil {
		return nil, accountErr(from, err)
	}
	// The reserve may go negative; every other source needs funds.
	if from != ReserveAccount && src.Balance < amount {
		return nil, fmt.Errorf("account %q has %d, needs %d: %w", from, src.Balance, amount, domain.ErrInsufficientFunds)
	}

	t := &domain.Transfer{From: from, To: to, Amount: amount, Reason: reason, At: at}
	if _, err := st.CreateTransfer(ctx, t); err != nil {
		return nil, err
	}
	if err := st.AppendLedgerEntries(ctx, []domain.LedgerEntry{
		{TransferID: t.ID, AccountID: from, Delta: -amount},
		{TransferID: t.ID, AccountID: to, Delta: amount},
	}); err != nil {
		return nil, err
	}
	if err := st.AdjustBalance(ctx, from, -amount); err != nil {
		return nil, err
	}
	if err := st.AdjustBalance(ctx, to, amount); err != nil {
		return nil, err
	}
	return t, nil
}

// accountErr maps a missing account to InsufficientFunds: an identity
// that never received funds simply has none to spend. The destination was
// ensured above, so only the source can be missing here.
func accountErr(id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("account %q: %w", id, domain.ErrInsufficientFunds)
	}
	return fmt.Errorf("lock acquisition failed for %q: %w", id, err)
}

// AccountService exposes balance operations: the administrator faucet and
// read-side lookups used for audit replay.
type AccountService struct {
	store store.Store
	clock clock.Clock
	authz *Authorizer
}

func NewAccountService(st store.Store, ck clock.Clock, az *Authorizer) *AccountService {
	return &AccountService{store: st, clock: ck, authz: az}
}

// Deposit credits an account from the reserve. Administrator only.
func (s *AccountService) Deposit(ctx context.Context, caller, to string, amount int64) (*domain.Transfer, error) {
	if err := s.authz.Authorize(caller, RoleAdmin, ""); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var out *domain.Transfer
	err := s.store.Atomic(ctx, func(st store.Store) error {
		if err := st.EnsureAccount(ctx, ReserveAccount); err != nil {
			return err
		}
		t, err := MoveFunds(ctx, st, ReserveAccount, to, amount, "deposit", now)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount returns the current balance.
func (s *AccountService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// ListEntries returns the account's ledger legs in write order, the
// replay trail for balance audits.
func (s *AccountService) ListEntries(ctx context.Context, id string) ([]domain.LedgerEntry, error) {
	return s.store.ListLedgerEntries(ctx, id)
}
