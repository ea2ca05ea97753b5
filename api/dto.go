/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain
  types. Response shapes follow the original client contract:
  {success, balance_after, error}.

NAMING CONVENTION:
  - *Request: request body types from clients
  - *Response / *DTO: types returned to clients

SEE ALSO:
  - handlers.go: uses these types
*/
package api

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SpendRequest asks to spend credits to unlock a style.
type SpendRequest struct {
	UserID  string `json:"user_id"`
	StyleID string `json:"style_id"`
}

// GrantRequest reports a purchase. ReceiptData is the opaque store
// receipt; the verifier oracle turns it into a stable receipt id.
type GrantRequest struct {
	UserID      string `json:"user_id"`
	ProductID   string `json:"product_id"`
	ReceiptData string `json:"receipt_data"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SpendResponse is the outcome of a spend-to-unlock call.
type SpendResponse struct {
	Success      bool   `json:"success"`
	StyleID      string `json:"style_id,omitempty"`
	Cost         int64  `json:"cost,omitempty"`
	BalanceAfter int64  `json:"balance_after"`
	LowBalance   bool   `json:"low_balance"`
}

// GrantResponse is the outcome of a purchase grant call.
type GrantResponse struct {
	Success        bool   `json:"success"`
	CreditsGranted int64  `json:"credits_granted"`
	BalanceAfter   int64  `json:"balance_after"`
	Unlocked       bool   `json:"unlocked"`
	Replayed       bool   `json:"replayed,omitempty"`
	LowBalance     bool   `json:"low_balance"`
}

// BalanceDTO is the read-only balance view.
type BalanceDTO struct {
	UserID     string `json:"user_id"`
	Balance    int64  `json:"balance"`
	LowBalance bool   `json:"low_balance"`
	Unlocked   bool   `json:"unlocked"`
}

// EntryDTO is one ledger history row.
type EntryDTO struct {
	ID           string            `json:"id"`
	Delta        int64             `json:"delta"`
	BalanceAfter int64             `json:"balance_after"`
	Source       string            `json:"source"`
	ReceiptID    string            `json:"receipt_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

// StylesDTO is the set of styles a user has unlocked.
type StylesDTO struct {
	UserID string   `json:"user_id"`
	Styles []string `json:"styles"`
}

// ErrorResponse is the uniform error body. BalanceAfter is included for
// the benign conditions (already owned, insufficient balance) so the
// client can refresh its display cache without another round trip.
type ErrorResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error"`
	Code         string `json:"code,omitempty"`
	Details      string `json:"details,omitempty"`
	BalanceAfter *int64 `json:"balance_after,omitempty"`
}
