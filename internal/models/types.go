// Package models holds the HTTP request/response payloads.
package models

// CreateWarrantyRequest issues a new warranty (administrator only).
type CreateWarrantyRequest struct {
	ProductID string `json:"product_id"`
	Owner     string `json:"owner"`
	Duration  int64  `json:"duration"`
}

// TransferOwnershipRequest hands a warranty to a new owner.
type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner"`
}

// ExtendExpiryRequest pushes the expiry out (administrator only).
type ExtendExpiryRequest struct {
	ExtraDuration int64 `json:"extra_duration"`
}

// SetActiveRequest overwrites the active flag (administrator only).
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// MaintenanceRequest appends a service record.
type MaintenanceRequest struct {
	Description string `json:"description"`
}

// FileClaimRequest opens a warranty claim.
type FileClaimRequest struct {
	Description string `json:"description"`
}

// ResolveClaimRequest sets a claim's resolution code (administrator only).
type ResolveClaimRequest struct {
	Resolution string `json:"resolution"`
}

// PurchaseInsuranceRequest buys coverage for a warranty.
type PurchaseInsuranceRequest struct {
	WarrantyID     int64 `json:"warranty_id"`
	CoverageAmount int64 `json:"coverage_amount"`
	Duration       int64 `json:"duration"`
}

// InsuranceClaimRequest files a claim against a policy.
type InsuranceClaimRequest struct {
	Amount int64 `json:"amount"`
}

// ProcessClaimRequest settles a pending insurance claim (administrator
// only).
type ProcessClaimRequest struct {
	Approve bool `json:"approve"`
}

// MintCertificateRequest mints the warranty certificate (administrator
// only).
type MintCertificateRequest struct {
	MetadataURI string `json:"metadata_uri"`
}

// RatingRequest records a 1..5 review.
type RatingRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

// DepositRequest credits an account from the reserve (administrator
// only).
type DepositRequest struct {
	Amount int64 `json:"amount"`
}

// QuoteResponse is the premium quote for a coverage/duration pair.
type QuoteResponse struct {
	CoverageAmount int64 `json:"coverage_amount"`
	Duration       int64 `json:"duration"`
	Premium        int64 `json:"premium"`
}

// PoolResponse reports the insurance pool balance.
type PoolResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}
