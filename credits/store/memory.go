// Package store provides an in-memory credits.Store for tests and dev.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prism/credit-engine/credits"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements credits.Store with maps under a single mutex. The
// mutex makes every append atomic with its balance read, which is a
// stricter serialization than the per-user requirement; fine for tests.
type Memory struct {
	mu       sync.Mutex
	entries  map[credits.UserID][]credits.Entry
	receipts map[string]credits.EntryID
	owned    map[credits.UserID]map[credits.StyleID]time.Time
	users    map[credits.UserID]*credits.User

	// Now is the clock used for entry timestamps. Tests may pin it.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[credits.UserID][]credits.Entry),
		receipts: make(map[string]credits.EntryID),
		owned:    make(map[credits.UserID]map[credits.StyleID]time.Time),
		users:    make(map[credits.UserID]*credits.User),
		Now:      time.Now,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) Balance(_ context.Context, userID credits.UserID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(userID), nil
}

func (m *Memory) balanceLocked(userID credits.UserID) int64 {
	entries := m.entries[userID]
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].BalanceAfter
}

func (m *Memory) Append(_ context.Context, e credits.Entry) (credits.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ReceiptID != "" {
		if _, dup := m.receipts[e.ReceiptID]; dup {
			return credits.Entry{}, credits.ErrDuplicateReceipt
		}
	}

	balance := m.balanceLocked(e.UserID)
	newBalance := balance + e.Delta
	if newBalance < 0 {
		return credits.Entry{}, &credits.InsufficientBalanceError{
			UserID:    e.UserID,
			Available: balance,
			Required:  -e.Delta,
		}
	}

	if e.ID == "" {
		e.ID = credits.EntryID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.Now().UTC()
	}
	e.BalanceAfter = newBalance

	m.entries[e.UserID] = append(m.entries[e.UserID], e)
	if e.ReceiptID != "" {
		m.receipts[e.ReceiptID] = e.ID
	}
	return e, nil
}

func (m *Memory) FindByReceipt(_ context.Context, receiptID string) (*credits.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.receipts[receiptID]
	if !ok {
		return nil, nil
	}
	for _, entries := range m.entries {
		for i := range entries {
			if entries[i].ID == id {
				e := entries[i]
				return &e, nil
			}
		}
	}
	return nil, nil
}

func (m *Memory) Entries(_ context.Context, userID credits.UserID) ([]credits.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]credits.Entry, len(m.entries[userID]))
	copy(out, m.entries[userID])
	return out, nil
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

func (m *Memory) HasUnlocked(_ context.Context, userID credits.UserID, styleID credits.StyleID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.owned[userID][styleID]
	return ok, nil
}

func (m *Memory) Grant(_ context.Context, userID credits.UserID, styleID credits.StyleID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned[userID][styleID]; ok {
		return true, nil
	}
	if m.owned[userID] == nil {
		m.owned[userID] = make(map[credits.StyleID]time.Time)
	}
	m.owned[userID][styleID] = m.Now().UTC()
	return false, nil
}

func (m *Memory) ListUnlocked(_ context.Context, userID credits.UserID) ([]credits.StyleID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	styles := make([]credits.StyleID, 0, len(m.owned[userID]))
	for styleID := range m.owned[userID] {
		styles = append(styles, styleID)
	}
	return styles, nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) Get(_ context.Context, userID credits.UserID) (*credits.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *Memory) Ensure(_ context.Context, userID credits.UserID) (*credits.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		copied := *u
		return &copied, nil
	}
	u := &credits.User{ID: userID, CreatedAt: m.Now().UTC()}
	m.users[userID] = u
	copied := *u
	return &copied, nil
}

func (m *Memory) SetUnlocked(_ context.Context, userID credits.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		u = &credits.User{ID: userID, CreatedAt: m.Now().UTC()}
		m.users[userID] = u
	}
	u.Unlocked = true
	return nil
}
