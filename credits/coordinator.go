/*
coordinator.go - Orchestration of spend-to-unlock and purchase grants

PURPOSE:
  The Coordinator is the only writer that touches both the ledger and
  the entitlement table. It holds the atomicity invariant: a paid style
  unlock commits a debit and an entitlement together, or compensates the
  debit and commits neither.

WHO WINS A RACE:
  In-process, a per-user mutex serializes spends and grants, so a
  concurrent unlock of an already-won style fails the entitlement
  pre-check cleanly. Across processes the entitlement uniqueness
  constraint is the arbiter: losers are detected by Grant returning
  alreadyGranted and are refunded with a rollback entry. Exactly one
  caller keeps the charge either way.

COMPENSATION:
  The rollback entry is only appended after the debit demonstrably
  committed (Append returned the committed row), so a retried operation
  can never double-refund.

SEE ALSO:
  - store.go: the contracts this file leans on
  - catalog: cost/inclusion lookups
*/
package credits

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prism/credit-engine/catalog"
	"github.com/prism/credit-engine/metrics"
)

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator orchestrates multi-step credit operations.
type Coordinator struct {
	store   Store
	catalog catalog.Catalog

	mu        sync.Mutex
	userLocks map[UserID]*sync.Mutex
}

// NewCoordinator creates a coordinator over the given store and catalog.
func NewCoordinator(store Store, cat catalog.Catalog) *Coordinator {
	return &Coordinator{
		store:     store,
		catalog:   cat,
		userLocks: make(map[UserID]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing this user's operations.
func (c *Coordinator) lockFor(userID UserID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		c.userLocks[userID] = l
	}
	return l
}

// SpendResult is the outcome of a successful SpendAndUnlock.
type SpendResult struct {
	StyleID      StyleID
	Cost         int64
	BalanceAfter int64
}

// GrantResult is the outcome of a GrantFromPurchase. It is also returned
// alongside a PartialGrantError, because by then the credits are durably
// committed.
type GrantResult struct {
	ProductID      string
	CreditsGranted int64
	BalanceAfter   int64
	Unlocked       bool

	// Replayed is true when the receipt had already been processed and
	// the previously computed result was returned without mutation.
	Replayed bool
}

// =============================================================================
// SPEND AND UNLOCK
// =============================================================================

// SpendAndUnlock debits the style's cost from the user's balance and
// records the entitlement, as a single logical unit.
//
// Error outcomes: ErrItemNotFound (unknown or inactive style),
// ErrAlreadyOwned (no charge), InsufficientBalanceError (no entitlement).
func (c *Coordinator) SpendAndUnlock(ctx context.Context, userID UserID, styleID StyleID) (*SpendResult, error) {
	style, ok := c.catalog.Style(string(styleID))
	if !ok || !style.Active {
		metrics.Spends.WithLabelValues("item_not_found").Inc()
		return nil, fmt.Errorf("style %q: %w", styleID, ErrItemNotFound)
	}

	l := c.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	if _, err := c.store.Ensure(ctx, userID); err != nil {
		metrics.Spends.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	owned, err := c.store.HasUnlocked(ctx, userID, styleID)
	if err != nil {
		metrics.Spends.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("check entitlement: %w", err)
	}
	if owned {
		metrics.Spends.WithLabelValues("already_owned").Inc()
		return nil, ErrAlreadyOwned
	}

	if style.Included || style.Cost == 0 {
		return c.unlockIncluded(ctx, userID, style)
	}
	return c.spendAndUnlockPaid(ctx, userID, style)
}

// unlockIncluded grants a free style. The entitlement insert is the
// commit point; the zero-delta ledger entry is an audit record written
// only for the first grant and never changes the balance.
func (c *Coordinator) unlockIncluded(ctx context.Context, userID UserID, style catalog.Style) (*SpendResult, error) {
	already, err := c.store.Grant(ctx, userID, StyleID(style.ID))
	if err != nil {
		metrics.Spends.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("grant entitlement: %w", err)
	}
	if already {
		metrics.Spends.WithLabelValues("already_owned").Inc()
		return nil, ErrAlreadyOwned
	}

	// Best effort: the grant above already committed, and the audit
	// entry carries no balance change.
	_, _ = c.store.Append(ctx, Entry{
		UserID: userID,
		Delta:  0,
		Source: SourceStyleUnlock,
		Metadata: map[string]string{
			"style_id": style.ID,
			"included": "true",
		},
	})

	balance, err := c.store.Balance(ctx, userID)
	if err != nil {
		metrics.Spends.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read balance: %w", err)
	}
	metrics.Spends.WithLabelValues("success").Inc()
	return &SpendResult{StyleID: StyleID(style.ID), Cost: 0, BalanceAfter: balance}, nil
}

func (c *Coordinator) spendAndUnlockPaid(ctx context.Context, userID UserID, style catalog.Style) (*SpendResult, error) {
	debit, err := c.store.Append(ctx, Entry{
		UserID: userID,
		Delta:  -style.Cost,
		Source: SourceStyleUnlock,
		Metadata: map[string]string{
			"style_id":   style.ID,
			"style_name": style.Name,
		},
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			metrics.Spends.WithLabelValues("insufficient_balance").Inc()
		} else {
			metrics.Spends.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	already, err := c.store.Grant(ctx, userID, StyleID(style.ID))
	if err != nil {
		// Storage fault after a committed debit: refund, then surface
		// the original failure.
		if _, cerr := c.compensate(ctx, debit, "grant_failed"); cerr != nil {
			metrics.Spends.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("grant entitlement: %w (compensation failed: %v)", err, cerr)
		}
		metrics.Spends.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("grant entitlement: %w", err)
	}
	if already {
		// Lost the race to a concurrent unlock. Refund this caller's
		// debit; the winner keeps the charge.
		if _, cerr := c.compensate(ctx, debit, "already_owned"); cerr != nil {
			metrics.Spends.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("refund after lost race: %w", cerr)
		}
		metrics.Spends.WithLabelValues("already_owned").Inc()
		return nil, ErrAlreadyOwned
	}

	metrics.Spends.WithLabelValues("success").Inc()
	return &SpendResult{
		StyleID:      StyleID(style.ID),
		Cost:         style.Cost,
		BalanceAfter: debit.BalanceAfter,
	}, nil
}

// compensate appends the reversing entry for a committed debit.
func (c *Coordinator) compensate(ctx context.Context, debit Entry, reason string) (Entry, error) {
	entry, err := c.store.Append(ctx, Entry{
		UserID: debit.UserID,
		Delta:  -debit.Delta,
		Source: SourceRollback,
		Metadata: map[string]string{
			"reverses": string(debit.ID),
			"reason":   reason,
		},
	})
	if err == nil {
		metrics.Rollbacks.Inc()
	}
	return entry, err
}

// =============================================================================
// GRANT FROM PURCHASE
// =============================================================================

// GrantFromPurchase applies a verified purchase: credits are appended to
// the ledger keyed by the receipt id, and the unlock product additionally
// flips the user's unlocked flag and grants the included styles.
//
// The operation is safe under at-least-once delivery: a receipt that was
// already recorded is answered with the previously computed result, and
// the entitlement step - the only part that can fail after the credits
// committed - is idempotent, so retrying after a PartialGrantError never
// re-grants credits.
func (c *Coordinator) GrantFromPurchase(ctx context.Context, userID UserID, productID, receiptID string) (*GrantResult, error) {
	product, ok := c.catalog.Product(productID)
	if !ok {
		metrics.Grants.WithLabelValues("item_not_found").Inc()
		return nil, fmt.Errorf("product %q: %w", productID, ErrItemNotFound)
	}

	l := c.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	if _, err := c.store.Ensure(ctx, userID); err != nil {
		metrics.Grants.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	prev, err := c.store.FindByReceipt(ctx, receiptID)
	if err != nil {
		metrics.Grants.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("receipt lookup: %w", err)
	}
	if prev != nil {
		return c.replay(ctx, product, prev)
	}

	entry, err := c.store.Append(ctx, Entry{
		UserID:    userID,
		Delta:     product.Credits,
		Source:    grantSource(product),
		ReceiptID: receiptID,
		Metadata: map[string]string{
			"product_id": product.ID,
			"price_usd":  product.Price.String(),
		},
	})
	if errors.Is(err, ErrDuplicateReceipt) {
		// Lost a race with a concurrent delivery of the same receipt.
		// Identical to "found by receipt": fetch and return the winner's
		// result.
		prev, ferr := c.store.FindByReceipt(ctx, receiptID)
		if ferr != nil {
			metrics.Grants.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("receipt lookup after duplicate insert: %w", ferr)
		}
		if prev == nil {
			metrics.Grants.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("receipt %q: duplicate insert but no recorded entry", receiptID)
		}
		return c.replay(ctx, product, prev)
	}
	if err != nil {
		metrics.Grants.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("append grant: %w", err)
	}

	result := &GrantResult{
		ProductID:      product.ID,
		CreditsGranted: product.Credits,
		BalanceAfter:   entry.BalanceAfter,
		Unlocked:       product.Unlock,
	}
	if product.Unlock {
		if err := c.applyUnlock(ctx, userID, product); err != nil {
			metrics.Grants.WithLabelValues("partial").Inc()
			return result, &PartialGrantError{
				UserID:    userID,
				ProductID: product.ID,
				ReceiptID: receiptID,
				Err:       err,
			}
		}
	}
	metrics.Grants.WithLabelValues("success").Inc()
	return result, nil
}

// replay answers a duplicate purchase notification from the recorded
// entry. The entitlement step is re-applied idempotently: this is the
// retry path after a PartialGrantError.
func (c *Coordinator) replay(ctx context.Context, product catalog.Product, prev *Entry) (*GrantResult, error) {
	metrics.ReceiptReplays.Inc()
	result := &GrantResult{
		ProductID:      product.ID,
		CreditsGranted: prev.Delta,
		BalanceAfter:   prev.BalanceAfter,
		Unlocked:       product.Unlock,
		Replayed:       true,
	}
	if product.Unlock {
		if err := c.applyUnlock(ctx, prev.UserID, product); err != nil {
			metrics.Grants.WithLabelValues("partial").Inc()
			return result, &PartialGrantError{
				UserID:    prev.UserID,
				ProductID: product.ID,
				ReceiptID: prev.ReceiptID,
				Err:       err,
			}
		}
	}
	metrics.Grants.WithLabelValues("replayed").Inc()
	return result, nil
}

// applyUnlock flips the user's unlock flag and grants the product's
// included styles. Every step is idempotent.
func (c *Coordinator) applyUnlock(ctx context.Context, userID UserID, product catalog.Product) error {
	if err := c.store.SetUnlocked(ctx, userID); err != nil {
		return fmt.Errorf("set unlocked: %w", err)
	}
	for _, styleID := range product.Unlocks {
		if _, err := c.store.Grant(ctx, userID, StyleID(styleID)); err != nil {
			return fmt.Errorf("grant included style %q: %w", styleID, err)
		}
	}
	return nil
}

func grantSource(p catalog.Product) Source {
	if p.Unlock {
		return SourceIAPUnlock
	}
	return SourceIAPCreditPack
}
