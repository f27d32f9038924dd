package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/punchamoorthee/warrantyops/internal/clock"
	"github.com/punchamoorthee/warrantyops/internal/domain"
	"github.com/punchamoorthee/warrantyops/internal/store"
)

// ErrIdempotencyMismatch flags reuse of an idempotency key with a
// different payload.
var ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")

// BaseRate is the flat component of every premium.
const BaseRate = 10

// CalculatePremium is the pure quoting function:
// base rate plus one unit per started 1000 of duration times one unit per
// started 100 of coverage, integer division throughout. No state access.
func CalculatePremium(coverageAmount, duration int64) int64 {
	return BaseRate + (duration/1000)*(coverageAmount/100)
}

// InsuranceService owns policies, insurance claims, and the pool. The
// pool is a real ledger account, so its balance is the custodial balance:
// premiums credit it, approved claims and refunds debit it, and it can
// never go negative.
type InsuranceService struct {
	store store.Store
	clock clock.Clock
	authz *Authorizer
	pool  string
}

func NewInsuranceService(st store.Store, ck clock.Clock, az *Authorizer, poolAccount string) *InsuranceService {
	return &InsuranceService{store: st, clock: ck, authz: az, pool: poolAccount}
}

// PoolAccount returns the reserved pool account id.
func (s *InsuranceService) PoolAccount() string { return s.pool }

// Purchase buys coverage for a warranty. Warranty owner only; the
// warranty must be active and the caller must afford the premium.
// Debit, pool credit, policy creation and link overwrite commit together
// or not at all. Re-insuring an already-covered warranty is permitted:
// the link moves to the new policy and the old one stays cancellable.
//
// idemKey enables exactly-once semantics over retries: a replayed key
// with the same request hash returns the stored response instead of
// purchasing twice.
func (s *InsuranceService) Purchase(ctx context.Context, caller string, warrantyID, coverageAmount, duration int64, idemKey, reqHash string) (*domain.InsurancePolicy, *domain.IdempotencyRecord, error) {
	now := s.clock.Now()
	var pol *domain.InsurancePolicy
	var replay *domain.IdempotencyRecord

	err := s.store.Atomic(ctx, func(st store.Store) error {
		if idemKey != "" {
			rec, err := st.GetIdempotencyRecord(ctx, idemKey)
			switch {
			case err == nil && rec.RequestHash != reqHash:
				return ErrIdempotencyMismatch
			case err == nil && rec.Status == domain.IdemCompleted:
				replay = rec
				return nil
			case err == nil:
				return store.ErrIdempotencyConflict
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
			if err := st.ReserveIdempotencyKey(ctx, idemKey, reqHash); err != nil {
				return err
			}
		}

		w, err := st.GetWarranty(ctx, warrantyID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(caller, RoleOwner, w.Owner); err != nil {
			return err
		}
		if !w.Active {
			return fmt.Errorf("warranty %d: %w", warrantyID, domain.ErrExpiredOrInactive)
		}

		premium := CalculatePremium(coverageAmount, duration)
		if _, err := MoveFunds(ctx, st, caller, s.pool, premium, "premium", now); err != nil {
			return err
		}

		p := &domain.InsurancePolicy{
			WarrantyID:     warrantyID,
			Holder:         caller,
			PremiumPaid:    premium,
			CoverageAmount: coverageAmount,
			StartsAt:       now,
			EndsAt:         now + duration,
			Active:         true,
		}
		if _, err := st.CreatePolicy(ctx, p); err != nil {
			return err
		}
		w.PolicyID = p.ID
		if err := st.UpdateWarranty(ctx, w); err != nil {
			return err
		}
		if err := st.AppendEvent(ctx, &domain.Event{
			WarrantyID: warrantyID, Action: "insurance.purchased", Actor: caller, At: now,
			Detail: fmt.Sprintf("policy %d premium %d", p.ID, premium),
		}); err != nil {
			return err
		}

		if idemKey != "" {
			body, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := st.CompleteIdempotencyKey(ctx, idemKey, http.StatusCreated, body); err != nil {
				return err
			}
		}
		pol = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return pol, replay, nil
}

// FileClaim opens an insurance claim. Policy holder only; the policy must
// be active and not past its end time, and the amount must be within
// coverage. Filing overwrites any prior claim for the policy.
func (s *InsuranceService) FileClaim(ctx context.Context, caller string, policyID, amount int64) (*domain.InsuranceClaim, error) {
	now := s.clock.Now()
	var out *domain.InsuranceClaim
	err := s.store.Atomic(ctx, func(st store.Store) error {
		p, err := st.GetPolicy(ctx, policyID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(caller, RoleHolder, p.Holder); err != nil {
			return err
		}
		if !p.Active || now > p.EndsAt {
			return fmt.Errorf("policy %d: %w", policyID, domain.ErrExpiredOrInactive)
		}
		if amount <= 0 || amount > p.CoverageAmount {
			return fmt.Errorf("amount %d vs coverage %d: %w", amount, p.CoverageAmount, domain.ErrInvalidClaim)
		}
		c := &domain.InsuranceClaim{
			PolicyID:  policyID,
			Amount:    amount,
			ClaimedAt: now,
			Status:    domain.ClaimPending,
		}
		if err := st.PutInsuranceClaim(ctx, c); err != nil {
			return err
		}
		out = c
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: p.WarrantyID, Action: "insurance.claim_filed", Actor: caller, At: now,
			Detail: fmt.Sprintf("policy %d amount %d", policyID, amount),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessClaim settles a pending claim. Administrator only. Approval pays
// the claim amount from the pool to the holder; rejection moves no funds.
// Both outcomes are terminal: a second call fails and changes nothing.
func (s *InsuranceService) ProcessClaim(ctx context.Context, caller string, policyID int64, approve bool) (*domain.InsuranceClaim, error) {
	if err := s.authz.Authorize(caller, RoleAdmin, ""); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var out *domain.InsuranceClaim
	err := s.store.Atomic(ctx, func(st store.Store) error {
		c, err := st.GetInsuranceClaim(ctx, policyID)
		if err != nil {
			return err
		}
		if c.Status != domain.ClaimPending {
			return fmt.Errorf("claim for policy %d is %s: %w", policyID, c.Status, domain.ErrClaimAlreadyProcessed)
		}
		p, err := st.GetPolicy(ctx, policyID)
		if err != nil {
			return err
		}

		if approve {
			if _, err := MoveFunds(ctx, st, s.pool, p.Holder, c.Amount, "claim payout", now); err != nil {
				return err
			}
			c.Status = domain.ClaimApproved
		} else {
			c.Status = domain.ClaimRejected
		}
		c.ProcessedAt = &now
		if err := st.PutInsuranceClaim(ctx, c); err != nil {
			return err
		}
		out = c
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: p.WarrantyID, Action: "insurance.claim_processed", Actor: caller, At: now,
			Detail: c.Status,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel deactivates a policy and refunds half the premium from the pool.
// Policy holder only; the policy must still be active. The pool account
// is authoritative, so a refund the pool cannot cover fails outright.
func (s *InsuranceService) Cancel(ctx context.Context, caller string, policyID int64) (*domain.InsurancePolicy, error) {
	now := s.clock.Now()
	var out *domain.InsurancePolicy
	err := s.store.Atomic(ctx, func(st store.Store) error {
		p, err := st.GetPolicy(ctx, policyID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(caller, RoleHolder, p.Holder); err != nil {
			return err
		}
		if !p.Active {
			return fmt.Errorf("policy %d: %w", policyID, domain.ErrExpiredOrInactive)
		}
		refund := p.PremiumPaid / 2
		if refund > 0 {
			if _, err := MoveFunds(ctx, st, s.pool, p.Holder, refund, "refund", now); err != nil {
				return err
			}
		}
		p.Active = false
		if err := st.UpdatePolicy(ctx, p); err != nil {
			return err
		}
		out = p
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: p.WarrantyID, Action: "insurance.cancelled", Actor: caller, At: now,
			Detail: fmt.Sprintf("refund %d", refund),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPolicy returns a policy record.
func (s *InsuranceService) GetPolicy(ctx context.Context, id int64) (*domain.InsurancePolicy, error) {
	return s.store.GetPolicy(ctx, id)
}

// GetClaim returns the policy's current claim.
func (s *InsuranceService) GetClaim(ctx context.Context, policyID int64) (*domain.InsuranceClaim, error) {
	return s.store.GetInsuranceClaim(ctx, policyID)
}

// PoolBalance returns the pool account's current balance; zero when the
// pool has never been funded.
func (s *InsuranceService) PoolBalance(ctx context.Context) (int64, error) {
	acc, err := s.store.GetAccount(ctx, s.pool)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}
