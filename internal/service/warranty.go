package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/punchamoorthee/warrantyops/internal/clock"
	"github.com/punchamoorthee/warrantyops/internal/domain"
	"github.com/punchamoorthee/warrantyops/internal/store"
)

// WarrantyService owns the warranty registry: creation, ownership
// transfer, status toggling, expiry extension, maintenance history, and
// the peripheral certificate and rating records.
type WarrantyService struct {
	store store.Store
	clock clock.Clock
	authz *Authorizer
}

func NewWarrantyService(st store.Store, ck clock.Clock, az *Authorizer) *WarrantyService {
	return &WarrantyService{store: st, clock: ck, authz: az}
}

// Create issues a new warranty. Administrator only. A zero duration is
// permitted and yields an already-expired warranty.
func (s *WarrantyService) Create(ctx context.Context, caller, productID, owner string, duration int64) (*domain.Warranty, error) {
	if err := s.authz.Authorize(caller, RoleAdmin, ""); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	w := &domain.Warranty{
		ProductID:    productID,
		Manufacturer: caller,
		Owner:        owner,
		IssuedAt:     now,
		ExpiresAt:    now + duration,
		Active:       true,
	}
	err := s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.CreateWarranty(ctx, w); err != nil {
			return err
		}
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: w.ID, Action: "warranty.created", Actor: caller, At: now,
			Detail: fmt.Sprintf("product %s for %s", productID, owner),
		})
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Transfer hands the warranty to a new owner. Current owner only; the
// warranty must be active. Expiry and maintenance count are untouched.
func (s *WarrantyService) Transfer(ctx context.Context, caller string, id int64, newOwner string) (*domain.Warranty, error) {
	now := s.clock.Now()
	var out *domain.Warranty
	err := s.store.Atomic(ctx, func(st store.Store) error {
		w, err := st.GetWarranty(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(caller, RoleOwner, w.Owner); err != nil {
			return err
		}
		if !w.Active {
			return fmt.Errorf("warranty %d: %w", id, domain.ErrExpiredOrInactive)
		}
		prev := w.Owner
		w.Owner = newOwner
		if err := st.UpdateWarranty(ctx, w); err != nil {
			return err
		}
		out = w
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: id, Action: "warranty.transferred", Actor: caller, At: now,
			Detail: fmt.Sprintf("%s -> %s", prev, newOwner),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Extend pushes the expiry out by extra. Administrator only; monotonic
// extension with no upper bound.
func (s *WarrantyService) Extend(ctx context.Context, caller string, id, extra int64) (*domain.Warranty, error) {
	if err := s.authz.Authorize(caller, RoleAdmin, ""); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var out *domain.Warranty
	err := s.store.Atomic(ctx, func(st store.Store) error {
		w, err := st.GetWarranty(ctx, id)
		if err != nil {
			return err
		}
		if !w.Active {
			return fmt.Errorf("warranty %d: %w", id, domain.ErrExpiredOrInactive)
		}
		w.ExpiresAt += extra
		if err := st.UpdateWarranty(ctx, w); err != nil {
			return err
		}
		out = w
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: id, Action: "warranty.extended", Actor: caller, At: now,
			Detail: fmt.Sprintf("expiry %d", w.ExpiresAt),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive overwrites the active flag unconditionally. Administrator
// only; this can reactivate an expired warranty.
func (s *WarrantyService) SetActive(ctx context.Context, caller string, id int64, active bool) (*domain.Warranty, error) {
	if err := s.authz.Authorize(caller, RoleAdmin, ""); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var out *domain.Warranty
	err := s.store.Atomic(ctx, func(st store.Store) error {
		w, err := st.GetWarranty(ctx, id)
		if err != nil {
			return err
		}
		w.Active = active
		if err := st.UpdateWarranty(ctx, w); err != nil {
			return err
		}
		out = w
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: id, Action: "warranty.set_active", Actor: caller, At: now,
			Detail: fmt.Sprintf("active=%t", active),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordMaintenance appends a service entry. Deliberately open to any
// caller so third-party service providers can log work; the caller
// identity is stored on the record.
func (s *WarrantyService) RecordMaintenance(ctx context.Context, caller string, id int64, description string) (*domain.MaintenanceRecord, error) {
	now := s.clock.Now()
	var out *domain.MaintenanceRecord
	err := s.store.Atomic(ctx, func(st store.Store) error {
		w, err := st.GetWarranty(ctx, id)
		if err != nil {
			return err
		}
		if !w.Active {
			return fmt.Errorf("warranty %d: %w", id, domain.ErrExpiredOrInactive)
		}
		rec := &domain.MaintenanceRecord{
			WarrantyID:  id,
			Seq:         w.MaintenanceCount,
			Description: description,
			RecordedBy:  caller,
			RecordedAt:  now,
		}
		if err := st.AppendMaintenance(ctx, rec); err != nil {
			return err
		}
		w.MaintenanceCount++
		if err := st.UpdateWarranty(ctx, w); err != nil {
			return err
		}
		out = rec
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: id, Action: "warranty.maintenance", Actor: caller, At: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MintCertificate binds a unique token to the warranty. Administrator
// only; a second mint for the same warranty fails.
func (s *WarrantyService) MintCertificate(ctx context.Context, caller string, id int64, metadataURI string) (*domain.Certificate, error) {
	if err := s.authz.Authorize(caller, RoleAdmin, ""); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	cert := &domain.Certificate{
		WarrantyID:  id,
		TokenID:     uuid.NewString(),
		MetadataURI: metadataURI,
		MintedAt:    now,
	}
	err := s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.GetWarranty(ctx, id); err != nil {
			return err
		}
		if err := st.CreateCertificate(ctx, cert); err != nil {
			return err
		}
		return st.AppendEvent(ctx, &domain.Event{
			WarrantyID: id, Action: "certificate.minted", Actor: caller, At: now,
			Detail: cert.TokenID,
		})
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// Rate records a 1..5 review, one per caller per warranty, upserted.
func (s *WarrantyService) Rate(ctx context.Context, caller string, id int64, score int, comment string) (*domain.Rating, error) {
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("score %d out of range 1..5: %w", score, domain.ErrInvalidClaim)
	}
	now := s.clock.Now()
	r := &domain.Rating{WarrantyID: id, Rater: caller, Score: score, Comment: comment, RatedAt: now}
	err := s.store.Atomic(ctx, func(st store.Store) error {
		if _, err := st.GetWarranty(ctx, id); err != nil {
			return err
		}
		return st.PutRating(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the warranty record.
func (s *WarrantyService) Get(ctx context.Context, id int64) (*domain.Warranty, error) {
	return s.store.GetWarranty(ctx, id)
}

// Maintenance returns the warranty's service history.
func (s *WarrantyService) Maintenance(ctx context.Context, id int64) ([]domain.MaintenanceRecord, error) {
	if _, err := s.store.GetWarranty(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMaintenance(ctx, id)
}

// Events returns the append-only mutation history for a warranty.
func (s *WarrantyService) Events(ctx context.Context, id int64) ([]domain.Event, error) {
	if _, err := s.store.GetWarranty(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, id)
}

// Certificate returns the minted certificate, if any.
func (s *WarrantyService) Certificate(ctx context.Context, id int64) (*domain.Certificate, error) {
	return s.store.GetCertificate(ctx, id)
}

// Ratings lists reviews for a warranty.
func (s *WarrantyService) Ratings(ctx context.Context, id int64) ([]domain.Rating, error) {
	if _, err := s.store.GetWarranty(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListRatings(ctx, id)
}
