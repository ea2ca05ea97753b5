package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/credit-engine/api"
	"github.com/prism/credit-engine/catalog"
	"github.com/prism/credit-engine/credits"
	"github.com/prism/credit-engine/credits/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mem := store.NewMemory()
	cat := catalog.Default()
	coord := credits.NewCoordinator(mem, cat)
	return api.NewRouter(api.NewHandler(coord, mem, cat, 30))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// fundUser buys a credit pack through the API.
func fundUser(t *testing.T, router http.Handler, userID, productID, receipt string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/purchases/grant", api.GrantRequest{
		UserID:      userID,
		ProductID:   productID,
		ReceiptData: receipt,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// SPEND
// =============================================================================

func TestSpendCredits_Success(t *testing.T) {
	router := newTestRouter(t)
	fundUser(t, router, "user-1", "credits_120_999", "R-fund")

	rec := doJSON(t, router, http.MethodPost, "/api/credits/spend", api.SpendRequest{
		UserID:  "user-1",
		StyleID: "neon_city",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.SpendResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "neon_city", resp.StyleID)
	assert.Equal(t, int64(30), resp.Cost)
	assert.Equal(t, int64(90), resp.BalanceAfter)
	assert.False(t, resp.LowBalance)
}

func TestSpendCredits_InsufficientBalance(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/credits/spend", api.SpendRequest{
		UserID:  "user-1",
		StyleID: "neon_city",
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	resp := decode[api.ErrorResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "insufficient_balance", resp.Code)
	require.NotNil(t, resp.BalanceAfter)
	assert.Equal(t, int64(0), *resp.BalanceAfter)
}

func TestSpendCredits_AlreadyOwned(t *testing.T) {
	router := newTestRouter(t)
	fundUser(t, router, "user-1", "credits_120_999", "R-fund")

	rec := doJSON(t, router, http.MethodPost, "/api/credits/spend", api.SpendRequest{
		UserID: "user-1", StyleID: "neon_city",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/credits/spend", api.SpendRequest{
		UserID: "user-1", StyleID: "neon_city",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "already_owned", resp.Code)
	require.NotNil(t, resp.BalanceAfter, "settled balance reported")
	assert.Equal(t, int64(90), *resp.BalanceAfter, "repeat attempt never charges")
}

func TestSpendCredits_UnknownStyle(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/credits/spend", api.SpendRequest{
		UserID: "user-1", StyleID: "no_such_style",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSpendCredits_MissingParameters(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/credits/spend", api.SpendRequest{
		UserID: "user-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// GRANT
// =============================================================================

func TestGrantPurchase_UnlockProduct(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/purchases/grant", api.GrantRequest{
		UserID:      "user-1",
		ProductID:   "unlock_plus_899",
		ReceiptData: "R1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.GrantResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(100), resp.CreditsGranted)
	assert.Equal(t, int64(100), resp.BalanceAfter)
	assert.True(t, resp.Unlocked)
	assert.False(t, resp.Replayed)

	// The included styles came with the unlock.
	rec = doJSON(t, router, http.MethodGet, "/api/users/user-1/styles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	styles := decode[api.StylesDTO](t, rec)
	assert.ElementsMatch(t, catalog.IncludedStyles, styles.Styles)
}

func TestGrantPurchase_ReceiptReplay(t *testing.T) {
	router := newTestRouter(t)
	fundUser(t, router, "user-1", "unlock_plus_899", "R1")

	rec := doJSON(t, router, http.MethodPost, "/api/purchases/grant", api.GrantRequest{
		UserID:      "user-1",
		ProductID:   "unlock_plus_899",
		ReceiptData: "R1",
	})
	require.Equal(t, http.StatusOK, rec.Code, "replay is not an error")

	resp := decode[api.GrantResponse](t, rec)
	assert.True(t, resp.Replayed)
	assert.Equal(t, int64(100), resp.BalanceAfter, "credits granted once")

	// Exactly one ledger row carries the receipt.
	rec = doJSON(t, router, http.MethodGet, "/api/users/user-1/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]api.EntryDTO](t, rec)
	withReceipt := 0
	for _, e := range entries {
		if e.ReceiptID == "R1" {
			withReceipt++
		}
	}
	assert.Equal(t, 1, withReceipt)
}

func TestGrantPurchase_UnknownProduct(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/purchases/grant", api.GrantRequest{
		UserID:      "user-1",
		ProductID:   "credits_999_bogus",
		ReceiptData: "R1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGrantPurchase_MissingReceipt(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/purchases/grant", api.GrantRequest{
		UserID:    "user-1",
		ProductID: "credits_40_399",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// READS
// =============================================================================

func TestGetBalance_LowBalanceHint(t *testing.T) {
	// GIVEN: 40 credits bought, 30 spent
	// WHEN: Reading the balance
	// THEN: 10 remaining, flagged as low

	router := newTestRouter(t)
	fundUser(t, router, "user-1", "credits_40_399", "R-fund")

	rec := doJSON(t, router, http.MethodPost, "/api/credits/spend", api.SpendRequest{
		UserID: "user-1", StyleID: "neon_city",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, int64(10), resp.Balance)
	assert.True(t, resp.LowBalance)
	assert.False(t, resp.Unlocked)
}

func TestGetBalance_UnknownUserIsZero(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/users/nobody/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, int64(0), resp.Balance)
	assert.False(t, resp.LowBalance, "zero is empty, not low")
}

func TestListStyles(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/styles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	styles := decode[[]catalog.Style](t, rec)
	assert.Len(t, styles, 15)
	assert.Equal(t, "minimal_clean", styles[0].ID, "display order")
}

func TestListProducts(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	products := decode[[]catalog.Product](t, rec)
	assert.Len(t, products, 5)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
