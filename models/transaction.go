package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of ledger posting
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeInterest   TransactionType = "interest"
	TransactionTypeRollover   TransactionType = "rollover"
)

// IsValid reports whether t is a known transaction type
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer,
		TransactionTypeInterest, TransactionTypeRollover:
		return true
	}
	return false
}

// Transaction is an immutable ledger record. Amount is signed: credits are
// positive and debits negative, so BalanceAfter = BalanceBefore + Amount.
type Transaction struct {
	ID                        int64           `db:"id"`
	TransactionNumber         string          `db:"transaction_number"`
	AccountID                 int64           `db:"account_id"`
	AccountNumber             string          `db:"account_number"`
	Type                      TransactionType `db:"transaction_type"`
	Amount                    decimal.Decimal `db:"amount"`
	BalanceBefore             decimal.Decimal `db:"balance_before"`
	BalanceAfter              decimal.Decimal `db:"balance_after"`
	AuthorizedBy              string          `db:"authorized_by"`
	CounterpartyAccountNumber *string         `db:"counterparty_account_number"`
	Remarks                   string          `db:"remarks"`
	Metadata                  map[string]any  `db:"metadata"`
	CreatedAt                 time.Time       `db:"created_at"`
}
