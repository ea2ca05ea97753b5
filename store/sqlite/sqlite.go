/*
Package sqlite provides the SQLite-backed implementation of credits.Store.

PURPOSE:
  Durable persistence for the append-only credits ledger, the entitlement
  table, and user records. The same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch the ledger table
  - Corrections happen via rollback entries appended by the coordinator

CONCURRENCY:
  Appends for the same user are serialized by a per-user mutex; the
  balance read, the non-negativity check, and the insert happen within
  one database transaction under that lock. Appends for different users
  take disjoint locks and run in parallel.

  Uniqueness constraints are the arbiters for races the lock cannot see:
  - idx_ledger_receipt: one ledger entry per purchase receipt
  - user_styles primary key: one entitlement per (user, style)

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/credits.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - credits/store.go: interface contracts
  - credits/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/prism/credit-engine/credits"
)

// Store implements credits.Store using SQLite.
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	userLocks map[credits.UserID]*sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pooled connection to ":memory:" would get its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, userLocks: make(map[credits.UserID]*sync.Mutex)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Credits ledger (append-only)
	CREATE TABLE IF NOT EXISTS credits_ledger (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		delta INTEGER NOT NULL,
		balance_after INTEGER NOT NULL CHECK (balance_after >= 0),
		source TEXT NOT NULL,
		receipt_id TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_user
		ON credits_ledger(user_id);

	-- CRITICAL: one ledger entry per purchase receipt. A replayed or
	-- concurrently delivered purchase notification loses here, and the
	-- coordinator answers it from the winner's row.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_receipt
		ON credits_ledger(receipt_id) WHERE receipt_id IS NOT NULL;

	-- Entitlements. The primary key is the concurrency arbiter for
	-- "who gets the unlock": exactly one of N racing inserts succeeds.
	CREATE TABLE IF NOT EXISTS user_styles (
		user_id TEXT NOT NULL,
		style_id TEXT NOT NULL,
		unlocked_at TEXT NOT NULL,
		PRIMARY KEY (user_id, style_id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		is_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// lockFor returns the append lock for a user, creating it on first use.
func (s *Store) lockFor(userID credits.UserID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// =============================================================================
// LEDGER STORE (credits.LedgerStore interface)
// =============================================================================

// Balance returns the latest entry's balance_after, or 0 with no entries.
//
// "Latest" is by rowid, not created_at: appends are serialized per user,
// so rowid is insert order, while RFC3339Nano strings trim trailing
// zeros and do not sort lexicographically.
func (s *Store) Balance(ctx context.Context, userID credits.UserID) (int64, error) {
	return s.balance(ctx, s.db, userID)
}

func (s *Store) balance(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, userID credits.UserID) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, `
		SELECT balance_after FROM credits_ledger
		WHERE user_id = ?
		ORDER BY rowid DESC
		LIMIT 1
	`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Append inserts a ledger entry, computing balance_after atomically with
// respect to other appends for the same user.
func (s *Store) Append(ctx context.Context, e credits.Entry) (credits.Entry, error) {
	lock := s.lockFor(e.UserID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return credits.Entry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := s.balance(ctx, tx, e.UserID)
	if err != nil {
		return credits.Entry{}, err
	}
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
		e.CreatedAt = time.Now().UTC()
	}
	e.BalanceAfter = newBalance

	metadataJSON, _ := json.Marshal(e.Metadata)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credits_ledger
		(id, user_id, delta, balance_after, source, receipt_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.UserID,
		e.Delta,
		e.BalanceAfter,
		e.Source,
		nullString(e.ReceiptID),
		string(metadataJSON),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return credits.Entry{}, credits.ErrDuplicateReceipt
		}
		return credits.Entry{}, fmt.Errorf("failed to append entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return credits.Entry{}, fmt.Errorf("failed to commit entry: %w", err)
	}
	return e, nil
}

// FindByReceipt returns the entry recorded for a receipt, or nil.
func (s *Store) FindByReceipt(ctx context.Context, receiptID string) (*credits.Entry, error) {
	entries, err := s.queryEntries(ctx, `
		SELECT id, user_id, delta, balance_after, source, receipt_id, metadata_json, created_at
		FROM credits_ledger
		WHERE receipt_id = ?
	`, receiptID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Entries returns the user's ledger history in insert order.
func (s *Store) Entries(ctx context.Context, userID credits.UserID) ([]credits.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT id, user_id, delta, balance_after, source, receipt_id, metadata_json, created_at
		FROM credits_ledger
		WHERE user_id = ?
		ORDER BY rowid ASC
	`, userID)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]credits.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []credits.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (credits.Entry, error) {
	var (
		e            credits.Entry
		receiptID    sql.NullString
		metadataJSON sql.NullString
		createdAt    string
	)

	err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.BalanceAfter, &e.Source,
		&receiptID, &metadataJSON, &createdAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ReceiptID = receiptID.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
	}
	return e, nil
}

// =============================================================================
// ENTITLEMENT STORE (credits.EntitlementStore interface)
// =============================================================================

// HasUnlocked reports whether the entitlement row exists.
func (s *Store) HasUnlocked(ctx context.Context, userID credits.UserID, styleID credits.StyleID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_styles WHERE user_id = ? AND style_id = ?",
		userID, styleID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check entitlement: %w", err)
	}
	return count > 0, nil
}

// Grant inserts the entitlement row if absent. The primary key decides
// races: losers see alreadyGranted = true.
func (s *Store) Grant(ctx context.Context, userID credits.UserID, styleID credits.StyleID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_styles (user_id, style_id, unlocked_at)
		VALUES (?, ?, ?)
	`, userID, styleID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("failed to grant entitlement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to grant entitlement: %w", err)
	}
	return affected == 0, nil
}

// ListUnlocked returns the user's unlocked style ids, oldest first.
func (s *Store) ListUnlocked(ctx context.Context, userID credits.UserID) ([]credits.StyleID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT style_id FROM user_styles
		WHERE user_id = ?
		ORDER BY unlocked_at ASC, style_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	defer rows.Close()

	var styles []credits.StyleID
	for rows.Next() {
		var id credits.StyleID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		styles = append(styles, id)
	}
	return styles, rows.Err()
}

// =============================================================================
// USER STORE (credits.UserStore interface)
// =============================================================================

// Get returns the user record, or nil if unknown.
func (s *Store) Get(ctx context.Context, userID credits.UserID) (*credits.User, error) {
	var (
		u         credits.User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, is_unlocked, created_at FROM users WHERE id = ?",
		userID,
	).Scan(&u.ID, &u.Unlocked, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &u, nil
}

// Ensure creates the user on first sight.
func (s *Store) Ensure(ctx context.Context, userID credits.UserID) (*credits.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (id, is_unlocked, created_at)
		VALUES (?, FALSE, ?)
	`, userID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return s.Get(ctx, userID)
}

// SetUnlocked flips the unlock flag. Idempotent.
func (s *Store) SetUnlocked(ctx context.Context, userID credits.UserID) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_unlocked = TRUE WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to set unlocked: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
