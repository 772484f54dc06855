package service

import (
	"context"
	"fmt"

	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
)

// maxReferenceAttempts bounds retries when a generated number is already taken
const maxReferenceAttempts = 5

// Posting is one signed balance change against an account that the caller
// has already locked inside uow.
type Posting struct {
	Account                   *models.Account
	Type                      models.TransactionType
	Amount                    decimal.Decimal // signed; credits positive
	AuthorizedBy              string
	MinimumBalance            decimal.Decimal
	CounterpartyAccountNumber string
	Remarks                   string
	Metadata                  map[string]any
}

func (p Posting) validate() error {
	if p.Account == nil {
		return fmt.Errorf("%w: posting has no account", ErrInvalidInput)
	}
	if p.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, p.Type)
	}
	if !isCents(p.Amount) {
		return fmt.Errorf("%w: amount %s has more than two decimal places", ErrInvalidInput, p.Amount)
	}

	switch p.Type {
	case models.TransactionTypeDeposit, models.TransactionTypeInterest:
		if !p.Amount.IsPositive() {
			return ErrInvalidAmount
		}
	case models.TransactionTypeWithdrawal:
		if !p.Amount.IsNegative() {
			return ErrInvalidAmount
		}
	case models.TransactionTypeTransfer:
		if p.Amount.IsZero() {
			return ErrInvalidAmount
		}
	}
	// Rollover deltas may be zero or negative

	if p.Account.IsClosed() {
		return fmt.Errorf("%w: %s", ErrAccountClosed, p.Account.AccountNumber)
	}
	return nil
}

// PostTransaction is the single way balances change. It checks the floor for
// debits, appends the ledger record under a fresh transaction number, writes
// the new balance and queues a BalanceChangedEvent. The caller owns uow and
// must hold the account's row lock.
func PostTransaction(ctx context.Context, uow UnitOfWork, refs ReferenceGenerator, p Posting) (*models.Transaction, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	account := p.Account
	before := account.Balance
	after := before.Add(p.Amount)

	if p.Amount.IsNegative() {
		floor := decimal.Max(p.MinimumBalance, decimal.Zero)
		if after.LessThan(floor) {
			return nil, &InsufficientFundsError{
				AccountNumber:  account.AccountNumber,
				Balance:        before,
				Requested:      p.Amount.Neg(),
				MinimumBalance: floor,
			}
		}
	}

	txn := &models.Transaction{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Type:          p.Type,
		Amount:        p.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		AuthorizedBy:  p.AuthorizedBy,
		Remarks:       p.Remarks,
		Metadata:      p.Metadata,
	}
	if p.CounterpartyAccountNumber != "" {
		counterparty := p.CounterpartyAccountNumber
		txn.CounterpartyAccountNumber = &counterparty
	}

	inserted := false
	for attempt := 0; attempt < maxReferenceAttempts && !inserted; attempt++ {
		txn.TransactionNumber = refs.NewTransactionNumber()

		var err error
		inserted, err = uow.TransactionRepository().Insert(ctx, txn)
		if err != nil {
			return nil, persistenceError("failed to record transaction", err)
		}
	}
	if !inserted {
		return nil, ErrReferenceExhausted
	}

	if err := uow.AccountRepository().UpdateBalance(ctx, account.ID, after); err != nil {
		return nil, persistenceError("failed to update balance", err)
	}
	account.Balance = after

	uow.EventBus().Publish(events.BalanceChangedEvent{
		AccountID:         account.ID,
		AccountNumber:     account.AccountNumber,
		MemberID:          account.MemberID,
		Product:           account.Product,
		TransactionNumber: txn.TransactionNumber,
		TransactionType:   txn.Type,
		Amount:            txn.Amount,
		BalanceBefore:     before,
		BalanceAfter:      after,
		AuthorizedBy:      txn.AuthorizedBy,
	})

	return txn, nil
}

// debitFloor is the floor a debit on account must respect. A request that
// leaves its own floor unset on regular savings gets savingsDefault.
func debitFloor(account *models.Account, requested, savingsDefault decimal.Decimal) decimal.Decimal {
	if requested.IsZero() && account.Product == models.ProductRegularSavings {
		return savingsDefault
	}
	return requested
}

// isCents reports whether d has at most two decimal places
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
