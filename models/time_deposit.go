package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeDeposit holds the terms of a time deposit account. InterestRate is a
// fraction (0.01 for 1%).
type TimeDeposit struct {
	AccountID    int64           `db:"account_id"`
	Principal    decimal.Decimal `db:"principal"`
	TermMonths   int             `db:"term_months"`
	InterestRate decimal.Decimal `db:"interest_rate"`
	Interest     decimal.Decimal `db:"interest"`
	Payout       decimal.Decimal `db:"payout"`
	OpenDate     time.Time       `db:"open_date"`
	MaturityDate time.Time       `db:"maturity_date"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// IsMatured reports whether asOf has reached the maturity date
func (td *TimeDeposit) IsMatured(asOf time.Time) bool {
	return !DateOnly(asOf).Before(DateOnly(td.MaturityDate))
}

// CoHolder is the optional second holder of a time deposit
type CoHolder struct {
	AccountID     int64  `db:"account_id"`
	Name          string `db:"name"`
	Relationship  string `db:"relationship"`
	ContactNumber string `db:"contact_number"`
}

// TimeDepositRollover is an append-only record of one rollover
type TimeDepositRollover struct {
	ID                   int64           `db:"id"`
	AccountID            int64           `db:"account_id"`
	PreviousMaturityDate time.Time       `db:"previous_maturity_date"`
	NewMaturityDate      time.Time       `db:"new_maturity_date"`
	InterestEarned       decimal.Decimal `db:"interest_earned"`
	RolloverAmount       decimal.Decimal `db:"rollover_amount"`
	TermMonths           int             `db:"term_months"`
	InterestRate         decimal.Decimal `db:"interest_rate"`
	TransactionNumber    string          `db:"transaction_number"`
	CreatedAt            time.Time       `db:"created_at"`
}

// TimeDepositDetail joins a time deposit account with its terms
type TimeDepositDetail struct {
	Account  *Account
	Terms    *TimeDeposit
	CoHolder *CoHolder
}

// DateOnly truncates t to midnight UTC of its calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months to t. Day overflow normalizes the way
// time.AddDate does (Jan 31 + 1 month is Mar 3 in non-leap years).
func AddMonths(t time.Time, n int) time.Time {
	return DateOnly(t).AddDate(0, n, 0)
}
