package core

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors below wrap one of these
// so the boundary can map them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrRateUnavailable     = errors.New("exchange rate unavailable")
	ErrInconsistentState   = errors.New("ledger possibly inconsistent, needs manual reconciliation")
	ErrPartiallyReverted   = errors.New("operation failed and was reverted")
	ErrPartialFailure      = errors.New("operation only partially applied")
	ErrTooManyTransactions = errors.New("too many transactions")
)

var (
	ErrUnknownCurrency     = fmt.Errorf("unknown currency: %w", ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("invalid amount: %w", ErrValidation)
	ErrCurrencyMismatch    = fmt.Errorf("currency mismatch: %w", ErrValidation)
	ErrCurrencyNotInPool   = fmt.Errorf("currency not in pool: %w", ErrValidation)
	ErrDuplicateCurrency   = fmt.Errorf("duplicate currency in pool balance: %w", ErrValidation)
	ErrEmptyDisplayName    = fmt.Errorf("empty display name: %w", ErrValidation)
	ErrEmptyBalance        = fmt.Errorf("pool needs at least one currency: %w", ErrValidation)
	ErrDescriptionTooLong  = fmt.Errorf("description too long (max 500 characters): %w", ErrValidation)
	ErrPoolNotFound        = fmt.Errorf("pool %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
)
