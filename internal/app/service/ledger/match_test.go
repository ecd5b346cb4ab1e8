package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/types"
)

func existingTx(accountID string, amount string) *models.LedgerTransaction {
	return &models.LedgerTransaction{
		ID:        "tx-1",
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
		Type:      types.TransactionTypePurchase,
	}
}

func TestMatchExisting_SameRequestIsDuplicate(t *testing.T) {
	err := matchExisting(existingTx("acct-1", "50"), "acct-1", types.TransactionTypePurchase, decimal.RequireFromString("50.00"))
	require.NoError(t, err)
}

func TestMatchExisting_DifferentAmountConflicts(t *testing.T) {
	err := matchExisting(existingTx("acct-1", "50"), "acct-1", types.TransactionTypePurchase, decimal.RequireFromString("60"))
	require.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestMatchExisting_DifferentAccountConflicts(t *testing.T) {
	err := matchExisting(existingTx("acct-1", "50"), "acct-2", types.TransactionTypePurchase, decimal.RequireFromString("50"))
	require.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestMatchExisting_DifferentTypeConflicts(t *testing.T) {
	err := matchExisting(existingTx("acct-1", "50"), "acct-1", types.TransactionTypeConsume, decimal.RequireFromString("50"))
	require.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestValidateAmount(t *testing.T) {
	require.NoError(t, validateAmount(types.AccountKindToken, decimal.NewFromInt(10)))
	require.NoError(t, validateAmount(types.AccountKindCredit, decimal.RequireFromString("9.99")))

	err := validateAmount(types.AccountKindToken, decimal.RequireFromString("1.5"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = validateAmount(types.AccountKindCredit, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = validateAmount(types.AccountKindCredit, decimal.RequireFromString("-3"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.True(t, errors.Is(err, ErrInvalidAmount))
}
