package service

import (
	"errors"
	"fmt"

	"coopledger/domain/services"

	"github.com/shopspring/decimal"
)

// Error kinds. Every error returned by this package matches one of these
// with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidTerm        = errors.New("no interest rate tier for term")
	ErrConflictingState   = errors.New("conflicting state")
	ErrPersistenceFailure = errors.New("persistence failure")
)

// Specific errors wrapping a kind
var (
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrLoanNotFound        = fmt.Errorf("loan %w", ErrNotFound)
	ErrInstallmentNotFound = fmt.Errorf("installment %w", ErrNotFound)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrAlreadyMatured      = fmt.Errorf("%w: time deposit already matured", ErrConflictingState)
	ErrNotYetMatured       = fmt.Errorf("%w: time deposit not yet matured", ErrConflictingState)
	ErrAccountClosed       = fmt.Errorf("%w: account is closed", ErrConflictingState)
	ErrDuplicateAccount    = fmt.Errorf("%w: member already holds an account for this product", ErrConflictingState)
	ErrLoanPaidOff         = fmt.Errorf("%w: loan is already paid off", ErrConflictingState)
	ErrReferenceExhausted  = fmt.Errorf("%w: could not allocate a unique reference number", ErrPersistenceFailure)
)

// InsufficientFundsError carries the figures behind a rejected debit
type InsufficientFundsError struct {
	AccountNumber  string
	Balance        decimal.Decimal
	Requested      decimal.Decimal
	MinimumBalance decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s: balance %s, requested %s, minimum balance %s",
		e.AccountNumber, e.Balance.StringFixed(2), e.Requested.StringFixed(2), e.MinimumBalance.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// ErrorKind classifies errors for callers that map them to responses
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindInvalidInput       ErrorKind = "invalid_input"
	KindNotFound           ErrorKind = "not_found"
	KindInsufficientFunds  ErrorKind = "insufficient_funds"
	KindInvalidTerm        ErrorKind = "invalid_term"
	KindConflictingState   ErrorKind = "conflicting_state"
	KindPersistenceFailure ErrorKind = "persistence_failure"
)

// KindOf classifies err. Unrecognized errors count as persistence failures
// since everything else this package returns is tagged.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput), errors.Is(err, services.ErrInvalidScheduleInput):
		return KindInvalidInput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInvalidTerm):
		return KindInvalidTerm
	case errors.Is(err, ErrConflictingState):
		return KindConflictingState
	default:
		return KindPersistenceFailure
	}
}

// IsRetryable reports whether the operation may succeed if attempted again
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindPersistenceFailure
}

// IsClientError reports whether err was caused by the request itself
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInvalidInput, KindInsufficientFunds, KindInvalidTerm, KindConflictingState:
		return true
	}
	return false
}

// IsNotFound reports whether err names a missing record
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// persistenceError tags an infrastructure error so KindOf recognizes it
// while keeping the driver error reachable through errors.Is/As.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindPersistenceFailure || errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailure, err)
}
