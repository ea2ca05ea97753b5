/*
errors.go - Centralized error types for the credits core

PURPOSE:
  All error kinds the coordinator can surface, in one place. Callers
  classify with errors.Is / errors.As; nothing is signalled by string
  matching above the storage layer.

ERROR CATEGORIES:
  1. Client conditions - expected outcomes (insufficient balance,
     already owned, unknown item), shown to the user, never retried
  2. Replay conditions - duplicate receipts, treated as success
  3. Partial failures - credits committed but entitlement step failed;
     retry only the entitlement step

SEE ALSO:
  - coordinator.go: produces these errors
  - api/handlers.go: maps them to HTTP statuses
*/
package credits

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrItemNotFound is returned when a style or product id is absent
	// from the active catalog.
	ErrItemNotFound = errors.New("item not found")

	// ErrAlreadyOwned is returned when the user already holds the
	// entitlement. Benign: the client should just refresh state.
	ErrAlreadyOwned = errors.New("style already owned")

	// ErrInsufficientBalance is returned when a debit would make the
	// balance negative. Expected outcome, not retried.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateReceipt is returned by stores when an entry with the
	// same receipt id already exists. The coordinator treats it as an
	// idempotent replay, never as a caller-visible failure.
	ErrDuplicateReceipt = errors.New("receipt already processed")

	// ErrPartialGrant is returned when credits were durably granted but
	// the unlock-flag/entitlement step failed. Retrying the whole
	// operation is safe: the receipt guard prevents re-granting credits
	// and the entitlement step is idempotent.
	ErrPartialGrant = errors.New("credits granted but entitlement step failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a balance shortage on a spend attempt.
type InsufficientBalanceError struct {
	UserID    UserID
	Available int64
	Required  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %d, required %d",
		e.UserID, e.Available, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// PartialGrantError reports that a purchase grant committed its ledger
// entry but failed the entitlement step. The receipt id identifies the
// committed entry so the caller can retry safely.
type PartialGrantError struct {
	UserID    UserID
	ProductID string
	ReceiptID string
	Err       error
}

func (e *PartialGrantError) Error() string {
	return fmt.Sprintf("partial grant for %s (product %s, receipt %s): %v",
		e.UserID, e.ProductID, e.ReceiptID, e.Err)
}

func (e *PartialGrantError) Unwrap() error {
	return ErrPartialGrant
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is an ordinary user-visible
// condition rather than an incident.
func IsClientError(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrAlreadyOwned) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsRetryable reports whether repeating the operation can succeed.
// Partial grants are retryable because the receipt guard and the
// entitlement uniqueness make the retry idempotent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPartialGrant)
}
