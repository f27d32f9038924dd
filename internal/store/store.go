// Package store persists all core entities. Stores are interface-driven
// so the postgres and in-memory implementations are interchangeable: the
// service layer is written against Store and tested against the memory
// implementation.
package store

import (
	"context"
	"errors"

	"github.com/punchamoorthee/warrantyops/internal/domain"
)

// ErrIdempotencyConflict is returned when an idempotency key reservation
// collides with one still in progress.
var ErrIdempotencyConflict = errors.New("request in progress")

// Store is the persistence boundary for the warranty, claim, insurance
// and ledger state. All mutating service operations run inside Atomic so
// that a failure at any step leaves no partial state behind.
type Store interface {
	// Atomic runs fn against a transactional view of the store. Effects
	// commit together when fn returns nil and are discarded otherwise.
	Atomic(ctx context.Context, fn func(Store) error) error

	// Accounts and ledger.
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	// GetAccountForUpdate locks the account row for the remainder of the
	// enclosing transaction.
	GetAccountForUpdate(ctx context.Context, id string) (*domain.Account, error)
	// EnsureAccount creates the account with zero balance if absent.
	EnsureAccount(ctx context.Context, id string) error
	AdjustBalance(ctx context.Context, id string, delta int64) error
	CreateTransfer(ctx context.Context, t *domain.Transfer) (int64, error)
	AppendLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error)

	// Warranties.
	CreateWarranty(ctx context.Context, w *domain.Warranty) (int64, error)
	GetWarranty(ctx context.Context, id int64) (*domain.Warranty, error)
	UpdateWarranty(ctx context.Context, w *domain.Warranty) error
	AppendMaintenance(ctx context.Context, rec *domain.MaintenanceRecord) error
	ListMaintenance(ctx context.Context, warrantyID int64) ([]domain.MaintenanceRecord, error)

	// Warranty claims, keyed by warranty id; Put overwrites.
	PutWarrantyClaim(ctx context.Context, c *domain.WarrantyClaim) error
	GetWarrantyClaim(ctx context.Context, warrantyID int64) (*domain.WarrantyClaim, error)

	// Insurance policies and claims.
	CreatePolicy(ctx context.Context, p *domain.InsurancePolicy) (int64, error)
	GetPolicy(ctx context.Context, id int64) (*domain.InsurancePolicy, error)
	UpdatePolicy(ctx context.Context, p *domain.InsurancePolicy) error
	PutInsuranceClaim(ctx context.Context, c *domain.InsuranceClaim) error
	GetInsuranceClaim(ctx context.Context, policyID int64) (*domain.InsuranceClaim, error)

	// Certificates, ratings, event history.
	CreateCertificate(ctx context.Context, c *domain.Certificate) error
	GetCertificate(ctx context.Context, warrantyID int64) (*domain.Certificate, error)
	PutRating(ctx context.Context, r *domain.Rating) error
	ListRatings(ctx context.Context, warrantyID int64) ([]domain.Rating, error)
	AppendEvent(ctx context.Context, e *domain.Event) error
	ListEvents(ctx context.Context, warrantyID int64) ([]domain.Event, error)

	// Idempotency keys for money-moving endpoints.
	GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error
	CompleteIdempotencyKey(ctx context.Context, key string, status int, body []byte) error
}
