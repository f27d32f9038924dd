package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/warrantyops/internal/clock"
	"github.com/punchamoorthee/warrantyops/internal/domain"
	"github.com/punchamoorthee/warrantyops/internal/store"
)

// ClaimService tracks warranty claims. Storage is keyed solely by
// warranty id, so each warranty carries at most one claim on record and
// filing overwrites the previous outcome.
type ClaimService struct {
	store store.Store
	clock clock.Clock
	authz *Authorizer
}

func NewClaimService(st store.Store, ck clock.Clock, az *Authorizer) *ClaimService {
	return &ClaimService{store: st, clock: ck, authz: az}
}

// File opens a claim. Current owner only; the warranty must be active and
// not past its expiry. Filing at exactly the expiry time succeeds.
func (s *ClaimService) File(ctx context.Context, caller string, warrantyID int64, description string) (*domain.WarrantyClaim, error) {
	now := s.clock.Now()
	var out *domain.WarrantyClaim
	err := s.store.Atomic(ctx, func(st store.Store) error {
		w, err := st.GetWarranty(ctx, warrantyID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(caller, RoleOwner, w.Owner); err != nil {
			return err
		}
		if !w.Active || now > w.ExpiresAt {
			return fmt.Errorf("warranty %d: %w", warrantyID, domain.ErrExpiredOrInactive)
		}
		c := &domain.WarrantyClaim{
			WarrantyID:  warrantyID,
			Description: description,
			ClaimedAt:   now,
			Status:      domain.ClaimPending,
		}
		if err := st.PutWarrantyClaim(ctx, c); err != nil {
			return err
		}
		out = c
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: warrantyID, Action: "claim.filed", Actor: caller, At: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve overwrites the claim status with an administrator-supplied
// short code. No state-machine check: any existing claim may be
// re-resolved to any code.
func (s *ClaimService) Resolve(ctx context.Context, caller string, warrantyID int64, code string) (*domain.WarrantyClaim, error) {
	if err := s.authz.Authorize(caller, RoleAdmin, ""); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var out *domain.WarrantyClaim
	err := s.store.Atomic(ctx, func(st store.Store) error {
		c, err := st.GetWarrantyClaim(ctx, warrantyID)
		if err != nil {
			return err
		}
		c.Status = code
		if err := st.PutWarrantyClaim(ctx, c); err != nil {
			return err
		}
		out = c
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: warrantyID, Action: "claim.resolved", Actor: caller, At: now,
			Detail: code,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the warranty's current claim.
func (s *ClaimService) Get(ctx context.Context, warrantyID int64) (*domain.WarrantyClaim, error) {
	return s.store.GetWarrantyClaim(ctx, warrantyID)
}
