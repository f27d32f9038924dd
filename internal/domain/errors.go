package domain

import "errors"

// Error taxonomy surfaced by every service operation. Handlers map these
// to HTTP status codes; nothing is swallowed and no partial state is left
// behind on any error path.
var (
	ErrNotAuthorized         = errors.New("not authorized")
	ErrNotFound              = errors.New("not found")
	ErrExpiredOrInactive     = errors.New("expired or inactive")
	ErrInvalidClaim          = errors.New("invalid claim")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrClaimAlreadyProcessed = errors.New("claim already processed")

	// ErrAlreadyExists covers unique records that may be written once,
	// such as the certificate minted for a warranty.
	ErrAlreadyExists = errors.New("already exists")
)
