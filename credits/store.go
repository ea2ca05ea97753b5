/*
store.go - Persistence interfaces for the credits core

PURPOSE:
  Defines the contract between the coordinator and storage. Two mutable
  tables exist: the append-only ledger and the entitlement table. The
  coordinator owns no storage of its own.

APPEND-ONLY CONTRACT:
  The ledger has exactly one write operation, Append. No Update, no
  Delete. Corrections are made by appending compensating entries with
  Source = SourceRollback.

CONCURRENCY CONTRACT:
  Append must be atomic per user: the balance read, the non-negativity
  check, and the insert happen under a serialization primitive scoped to
  that user (per-user lock, row lock, or equivalent). Two concurrent
  spends for the same user must never both observe the same starting
  balance. Cross-user appends may proceed fully in parallel.

  Grant must rely on a storage-level uniqueness constraint on
  (UserID, StyleID) - never application-level check-then-insert - so
  that exactly one of N racing unlock attempts wins.

IMPLEMENTATIONS:
  - store/sqlite: durable, unique indexes as arbiters
  - credits/store: in-memory, for tests and dev
*/
package credits

import "context"

// =============================================================================
// LEDGER STORE - Append-only balance history
// =============================================================================

// LedgerStore persists ledger entries and derives balances.
type LedgerStore interface {
	// Balance returns the BalanceAfter of the user's latest entry, or 0
	// if the user has no entries. The read is point-in-time consistent
	// with concurrent appends.
	Balance(ctx context.Context, userID UserID) (int64, error)

	// Append computes BalanceAfter = Balance(userID) + e.Delta atomically
	// with respect to other appends for the same user, assigns the entry
	// id and timestamp if unset, and inserts the row.
	//
	// Fails with InsufficientBalanceError if the resulting balance would
	// be negative, and with ErrDuplicateReceipt if e.ReceiptID is set and
	// already recorded. The returned Entry is the committed row; when an
	// error is returned, nothing was committed.
	Append(ctx context.Context, e Entry) (Entry, error)

	// FindByReceipt returns the entry recorded for a receipt id, or nil
	// if the receipt has not been processed.
	FindByReceipt(ctx context.Context, receiptID string) (*Entry, error)

	// Entries returns the user's full ledger history, oldest first.
	Entries(ctx context.Context, userID UserID) ([]Entry, error)
}

// =============================================================================
// ENTITLEMENT STORE - Who owns which style
// =============================================================================

// EntitlementStore persists style entitlements with (UserID, StyleID)
// uniqueness enforced by the storage layer itself.
type EntitlementStore interface {
	HasUnlocked(ctx context.Context, userID UserID, styleID StyleID) (bool, error)

	// Grant inserts the entitlement if absent. If it already exists,
	// Grant returns alreadyGranted = true without error and inserts
	// nothing. Under concurrency, exactly one caller observes
	// alreadyGranted = false.
	Grant(ctx context.Context, userID UserID, styleID StyleID) (alreadyGranted bool, err error)

	// ListUnlocked returns the ids of all styles the user has unlocked.
	ListUnlocked(ctx context.Context, userID UserID) ([]StyleID, error)
}

// =============================================================================
// USER STORE
// =============================================================================

// UserStore persists user records.
type UserStore interface {
	// Get returns the user, or nil if unknown.
	Get(ctx context.Context, userID UserID) (*User, error)

	// Ensure creates the user on first sight and returns it.
	Ensure(ctx context.Context, userID UserID) (*User, error)

	// SetUnlocked flips the unlock flag. Idempotent.
	SetUnlocked(ctx context.Context, userID UserID) error
}

// Store bundles all storage capabilities; store implementations in this
// repository satisfy the whole set.
type Store interface {
	LedgerStore
	EntitlementStore
	UserStore
}
