package ledger

import "errors"

var (
	// ErrInsufficientBalance is returned when a consume would take the balance
	// below zero. No transaction is created.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrIdempotencyConflict is returned when an idempotency key or external
	// ref is reused with a different account, type, or amount.
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	// ErrAccountNotFound is returned when the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAmount is returned for zero or negative operation amounts, or
	// fractional amounts against a token account.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidOwner is returned when an account does not name exactly one
	// owner (workspace or user).
	ErrInvalidOwner = errors.New("account must have exactly one owner")
)
