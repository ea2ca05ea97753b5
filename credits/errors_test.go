package credits_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prism/credit-engine/credits"
)

func TestStructuredErrors_UnwrapToSentinels(t *testing.T) {
	ib := &credits.InsufficientBalanceError{UserID: "u", Available: 10, Required: 30}
	assert.ErrorIs(t, ib, credits.ErrInsufficientBalance)

	wrapped := fmt.Errorf("spend: %w", ib)
	assert.ErrorIs(t, wrapped, credits.ErrInsufficientBalance)

	var got *credits.InsufficientBalanceError
	assert.ErrorAs(t, wrapped, &got)
	assert.Equal(t, int64(10), got.Available)

	pg := &credits.PartialGrantError{UserID: "u", ProductID: "unlock_plus_899", ReceiptID: "R1", Err: errors.New("boom")}
	assert.ErrorIs(t, pg, credits.ErrPartialGrant)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, credits.IsClientError(credits.ErrItemNotFound))
	assert.True(t, credits.IsClientError(credits.ErrAlreadyOwned))
	assert.True(t, credits.IsClientError(fmt.Errorf("spend: %w", credits.ErrInsufficientBalance)))
	assert.False(t, credits.IsClientError(credits.ErrPartialGrant))
	assert.False(t, credits.IsClientError(errors.New("disk on fire")))

	assert.True(t, credits.IsRetryable(&credits.PartialGrantError{Err: errors.New("boom")}))
	assert.False(t, credits.IsRetryable(credits.ErrAlreadyOwned))
}
