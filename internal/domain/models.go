package domain

import "encoding/json"

// Claim status codes. Warranty claims additionally accept any
// administrator-supplied short code on resolution.
const (
	ClaimPending  = "PENDING"
	ClaimApproved = "APPROVED"
	ClaimRejected = "REJECTED"
)

// MaxProductIDLen bounds the free-form product identifier.
const MaxProductIDLen = 128

// Warranty is the authoritative warranty record. Warranties are never
// deleted; Manufacturer is fixed at creation.
type Warranty struct {
	ID               int64  `json:"id"`
	ProductID        string `json:"product_id"`
	Manufacturer     string `json:"manufacturer"`
	Owner            string `json:"owner"`
	IssuedAt         int64  `json:"issued_at"`
	ExpiresAt        int64  `json:"expires_at"`
	MaintenanceCount int64  `json:"maintenance_count"`
	Active           bool   `json:"active"`
	// PolicyID links to the current insurance policy and is overwritten
	// on repurchase. Zero means uninsured.
	PolicyID int64 `json:"policy_id,omitempty"`
}

// WarrantyClaim is the single outstanding claim for a warranty. Filing a
// new claim overwrites the previous one.
type WarrantyClaim struct {
	WarrantyID  int64  `json:"warranty_id"`
	Description string `json:"description"`
	ClaimedAt   int64  `json:"claimed_at"`
	Status      string `json:"status"`
}

// InsurancePolicy covers one warranty. A warranty may accumulate orphaned
// policies across repurchases; each stays queryable and cancellable.
type InsurancePolicy struct {
	ID             int64  `json:"id"`
	WarrantyID     int64  `json:"warranty_id"`
	Holder         string `json:"holder"`
	PremiumPaid    int64  `json:"premium_paid"`
	CoverageAmount int64  `json:"coverage_amount"`
	StartsAt       int64  `json:"starts_at"`
	EndsAt         int64  `json:"ends_at"`
	Active         bool   `json:"active"`
}

// InsuranceClaim is the single outstanding claim for a policy.
// Status moves PENDING -> {APPROVED, REJECTED} exactly once.
type InsuranceClaim struct {
	PolicyID    int64  `json:"policy_id"`
	Amount      int64  `json:"amount"`
	ClaimedAt   int64  `json:"claimed_at"`
	Status      string `json:"status"`
	ProcessedAt *int64 `json:"processed_at,omitempty"`
}

// MaintenanceRecord is one service entry, keyed (warranty id, sequence).
type MaintenanceRecord struct {
	WarrantyID  int64  `json:"warranty_id"`
	Seq         int64  `json:"seq"`
	Description string `json:"description"`
	RecordedBy  string `json:"recorded_by"`
	RecordedAt  int64  `json:"recorded_at"`
}

// Account represents a participant's balance in the ledger. Accounts are
// keyed by caller identity; the insurance pool is a reserved account.
type Account struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
}

// Transfer represents the immutable record of a funds movement.
type Transfer struct {
	ID     int64  `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
	At     int64  `json:"at"`
}

// LedgerEntry is one leg of a double-entry movement.
// The sum of Deltas for a given TransferID must always equal 0.
type LedgerEntry struct {
	TransferID int64  `json:"transfer_id"`
	AccountID  string `json:"account_id"`
	Delta      int64  `json:"delta"`
}

// Certificate binds a minted token to a warranty, at most one per
// warranty.
type Certificate struct {
	WarrantyID  int64  `json:"warranty_id"`
	TokenID     string `json:"token_id"`
	MetadataURI string `json:"metadata_uri"`
	MintedAt    int64  `json:"minted_at"`
}

// Rating is a 1..5 review, one per (warranty, rater), upserted.
type Rating struct {
	WarrantyID int64  `json:"warranty_id"`
	Rater      string `json:"rater"`
	Score      int    `json:"score"`
	Comment    string `json:"comment,omitempty"`
	RatedAt    int64  `json:"rated_at"`
}

// IdempotencyRecord holds the state of a request key for exactly-once
// handling of money-moving endpoints.
type IdempotencyRecord struct {
	Key            string          `json:"key"`
	RequestHash    string          `json:"request_hash"`
	Status         string          `json:"status"`
	ResponseStatus int             `json:"response_status,omitempty"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
}

// Idempotency key lifecycle states.
const (
	IdemInProgress = "in_progress"
	IdemCompleted  = "completed"
)

// Event is one append-only history entry for a core mutation.
type Event struct {
	ID         int64  `json:"id"`
	WarrantyID int64  `json:"warranty_id"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	At         int64  `json:"at"`
	Detail     string `json:"detail,omitempty"`
}
