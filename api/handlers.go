/*
handlers.go - HTTP API handlers for the credits service

PURPOSE:
  Exposes the credits core via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the coordinator and the stores.

ENDPOINTS:
  Operations:
    POST   /api/credits/spend          Spend credits to unlock a style
    POST   /api/purchases/grant        Apply a verified purchase

  Reads:
    GET    /api/users/{id}/balance     Current balance
    GET    /api/users/{id}/ledger      Full ledger history
    GET    /api/users/{id}/styles      Unlocked styles
    GET    /api/styles                 Active catalog styles
    GET    /api/products               Purchasable products

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 402: Insufficient balance
  - 404: Unknown style or product
  - 409: Style already owned
  - 500: Internal errors (incl. partial grants, with a distinct code)

  Duplicate receipts are NOT errors: the previously computed result is
  replayed with 200.

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prism/credit-engine/catalog"
	"github.com/prism/credit-engine/credits"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator *credits.Coordinator
	Store       credits.Store
	Catalog     catalog.Catalog
	Verifier    ReceiptVerifier

	// LowBalanceThreshold drives the low_balance response hint.
	LowBalanceThreshold int64
}

// NewHandler creates a handler with the default verifier.
func NewHandler(coord *credits.Coordinator, store credits.Store, cat catalog.Catalog, lowBalance int64) *Handler {
	return &Handler{
		Coordinator:         coord,
		Store:               store,
		Catalog:             cat,
		Verifier:            AcceptAllVerifier{},
		LowBalanceThreshold: lowBalance,
	}
}

func (h *Handler) lowBalance(balance int64) bool {
	return balance > 0 && balance <= h.LowBalanceThreshold
}

// =============================================================================
// OPERATION HANDLERS
// =============================================================================

// SpendCredits handles POST /api/credits/spend.
func (h *Handler) SpendCredits(w http.ResponseWriter, r *http.Request) {
	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.StyleID == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters", nil)
		return
	}

	result, err := h.Coordinator.SpendAndUnlock(r.Context(), credits.UserID(req.UserID), credits.StyleID(req.StyleID))
	if err != nil {
		h.writeSpendError(w, r, credits.UserID(req.UserID), err)
		return
	}

	writeJSON(w, http.StatusOK, SpendResponse{
		Success:      true,
		StyleID:      string(result.StyleID),
		Cost:         result.Cost,
		BalanceAfter: result.BalanceAfter,
		LowBalance:   h.lowBalance(result.BalanceAfter),
	})
}

func (h *Handler) writeSpendError(w http.ResponseWriter, r *http.Request, userID credits.UserID, err error) {
	switch {
	case errors.Is(err, credits.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "Style not found", err)

	case errors.Is(err, credits.ErrAlreadyOwned):
		// Benign: report the settled balance so the client refreshes.
		resp := ErrorResponse{Error: "Style already owned", Code: "already_owned"}
		if balance, berr := h.Store.Balance(r.Context(), userID); berr == nil {
			resp.BalanceAfter = &balance
		}
		writeJSON(w, http.StatusConflict, resp)

	case errors.Is(err, credits.ErrInsufficientBalance):
		resp := ErrorResponse{Error: "Insufficient credits", Code: "insufficient_balance"}
		var ib *credits.InsufficientBalanceError
		if errors.As(err, &ib) {
			resp.BalanceAfter = &ib.Available
		}
		writeJSON(w, http.StatusPaymentRequired, resp)

	default:
		writeError(w, http.StatusInternalServerError, "Failed to process transaction", err)
	}
}

// GrantPurchase handles POST /api/purchases/grant.
func (h *Handler) GrantPurchase(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.ProductID == "" || req.ReceiptData == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters", nil)
		return
	}

	receipt, err := h.Verifier.Verify(r.Context(), req.ReceiptData, req.ProductID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Receipt verification unavailable", err)
		return
	}
	if !receipt.Valid {
		writeError(w, http.StatusBadRequest, "Invalid receipt", nil)
		return
	}

	result, err := h.Coordinator.GrantFromPurchase(r.Context(), credits.UserID(req.UserID), req.ProductID, receipt.ReceiptID)
	switch {
	case errors.Is(err, credits.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "Unknown product", err)
		return

	case errors.Is(err, credits.ErrPartialGrant):
		// Credits are committed; only the entitlement step failed.
		// Retrying the whole call is safe and completes the unlock.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Purchase recorded but unlock incomplete, please retry",
			Code:    "partial_grant",
			Details: err.Error(),
		})
		return

	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to process purchase", err)
		return
	}

	writeJSON(w, http.StatusOK, GrantResponse{
		Success:        true,
		CreditsGranted: result.CreditsGranted,
		BalanceAfter:   result.BalanceAfter,
		Unlocked:       result.Unlocked,
		Replayed:       result.Replayed,
		LowBalance:     h.lowBalance(result.BalanceAfter),
	})
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// GetBalance handles GET /api/users/{id}/balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := credits.UserID(chi.URLParam(r, "id"))

	balance, err := h.Store.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}

	unlocked := false
	if user, err := h.Store.Get(r.Context(), userID); err == nil && user != nil {
		unlocked = user.Unlocked
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:     string(userID),
		Balance:    balance,
		LowBalance: h.lowBalance(balance),
		Unlocked:   unlocked,
	})
}

// GetLedger handles GET /api/users/{id}/ledger.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID := credits.UserID(chi.URLParam(r, "id"))

	entries, err := h.Store.Entries(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read ledger", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			ID:           string(e.ID),
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
			Source:       string(e.Source),
			ReceiptID:    e.ReceiptID,
			Metadata:     e.Metadata,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUserStyles handles GET /api/users/{id}/styles.
func (h *Handler) GetUserStyles(w http.ResponseWriter, r *http.Request) {
	userID := credits.UserID(chi.URLParam(r, "id"))

	styles, err := h.Store.ListUnlocked(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list styles", err)
		return
	}

	ids := make([]string, len(styles))
	for i, s := range styles {
		ids[i] = string(s)
	}
	writeJSON(w, http.StatusOK, StylesDTO{UserID: string(userID), Styles: ids})
}

// ListStyles handles GET /api/styles.
func (h *Handler) ListStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.ActiveStyles())
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.Products())
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
