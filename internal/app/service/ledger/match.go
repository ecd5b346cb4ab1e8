package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/adscope/billing/internal/models"
	"github.com/adscope/billing/pkg/money"
	"github.com/adscope/billing/pkg/types"
)

// matchExisting validates a previously recorded transaction against a retried
// request. A match means the retry is a duplicate and the original row is
// returned to the caller; any mismatch is a conflict, never an overwrite.
func matchExisting(existing *models.LedgerTransaction, accountID string, txType types.TransactionType, amount decimal.Decimal) error {
	if existing.AccountID != accountID {
		return fmt.Errorf("%w: key recorded against account %s, requested %s", ErrIdempotencyConflict, existing.AccountID, accountID)
	}
	if existing.Type != txType {
		return fmt.Errorf("%w: key recorded as %s, requested %s", ErrIdempotencyConflict, existing.Type, txType)
	}
	if !money.Equal(existing.Amount, amount) {
		return fmt.Errorf("%w: key recorded amount %s, requested %s", ErrIdempotencyConflict, existing.Amount, amount)
	}
	return nil
}

// validateAmount checks an operation amount before any row is touched. op
// amounts are magnitudes: positive, non-zero, integral for token accounts.
func validateAmount(kind types.AccountKind, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	if kind == types.AccountKindToken && !amount.IsInteger() {
		return fmt.Errorf("%w: token amount must be integral, got %s", ErrInvalidAmount, amount)
	}
	return nil
}
