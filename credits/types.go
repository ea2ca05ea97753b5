/*
Package credits implements the credit ledger and entitlement core.

PURPOSE:
  This package contains the domain types and the transaction coordinator
  for a user-facing credit economy: users hold a non-negative credit
  balance, spend credits to unlock catalog styles, and receive credits
  from verified in-app purchases.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: an immutable ledger record of one balance change
  - Entitlement: a durable record that a user unlocked a style
  - User: identity anchor with the one-way "unlocked" flag

DESIGN PRINCIPLES:
  1. Append-only: Entries are never modified, only compensated
  2. Derived balance: the balance is the latest Entry's BalanceAfter,
     never a separately mutated field that can drift
  3. Idempotency: purchase receipts are unique among ledger entries,
     so a replayed purchase notification cannot grant credits twice

SEE ALSO:
  - store.go: persistence interfaces
  - coordinator.go: SpendAndUnlock / GrantFromPurchase orchestration
  - errors.go: sentinel and structured errors
*/
package credits

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type StyleID string
type EntryID string

// =============================================================================
// LEDGER ENTRY - Atomic change to a user's credit balance
// =============================================================================

// Source tags the business reason for a ledger entry.
type Source string

const (
	// SourceIAPUnlock is a credit grant from the one-time unlock purchase.
	SourceIAPUnlock Source = "iap_unlock"

	// SourceIAPCreditPack is a credit grant from a consumable credit pack.
	SourceIAPCreditPack Source = "iap_credit_pack"

	// SourceStyleUnlock is a debit (or zero-delta audit record) for
	// unlocking a catalog style.
	SourceStyleUnlock Source = "style_unlock"

	// SourceRollback is a compensating entry that reverses a prior debit
	// after a dependent step failed or lost a race.
	SourceRollback Source = "rollback"
)

// Entry is one immutable row in the append-only credits ledger.
//
// BalanceAfter is the authoritative running balance at insertion time.
// It is written by the store inside the same critical section as the
// balance read, and is never recomputed by summing deltas.
type Entry struct {
	ID           EntryID
	UserID       UserID
	Delta        int64
	BalanceAfter int64
	Source       Source

	// ReceiptID is set only on purchase-sourced entries and is unique
	// among all entries that carry one. It is the idempotency key for
	// at-least-once purchase notifications.
	ReceiptID string

	// Metadata carries opaque audit context (style id, product id,
	// rollback reason). Never interpreted by the ledger itself.
	Metadata map[string]string

	CreatedAt time.Time
}

// =============================================================================
// ENTITLEMENT - Durable unlock record
// =============================================================================

// Entitlement records that a user owns a style. At most one row exists
// per (UserID, StyleID); the storage layer enforces the uniqueness.
type Entitlement struct {
	UserID     UserID
	StyleID    StyleID
	UnlockedAt time.Time
}

// =============================================================================
// USER
// =============================================================================

// User is the identity anchor. Unlocked transitions false -> true exactly
// once, when the unlock product is purchased; setting it true again is a
// no-op.
type User struct {
	ID        UserID
	Unlocked  bool
	CreatedAt time.Time
}
