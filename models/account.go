package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product identifies which member fund an account belongs to
type Product string

const (
	ProductRegularSavings Product = "regular_savings"
	ProductShareCapital   Product = "share_capital"
	ProductTimeDeposit    Product = "time_deposit"
	ProductKalinga        Product = "kalinga"
)

// IsValid reports whether p is one of the known products
func (p Product) IsValid() bool {
	switch p {
	case ProductRegularSavings, ProductShareCapital, ProductTimeDeposit, ProductKalinga:
		return true
	}
	return false
}

// SinglePerMember reports whether a member may hold at most one open account of this product
func (p Product) SinglePerMember() bool {
	return p != ProductTimeDeposit
}

// AccountStatus represents the lifecycle state of an account
type AccountStatus string

const (
	AccountStatusActive         AccountStatus = "active"
	AccountStatusPreMature      AccountStatus = "pre_mature"
	AccountStatusMatured        AccountStatus = "matured"
	// AccountStatusRolledOver is accepted by the schema but never written: a rollover returns the deposit to active
	AccountStatusRolledOver     AccountStatus = "rolled_over"
	AccountStatusEarlyWithdrawn AccountStatus = "early_withdrawn"
	AccountStatusClosed         AccountStatus = "closed"
)

// Account is a member's balance in one product
type Account struct {
	ID            int64           `db:"id"`
	AccountNumber string          `db:"account_number"`
	MemberID      int64           `db:"member_id"`
	Product       Product         `db:"product"`
	Balance       decimal.Decimal `db:"balance"`
	Status        AccountStatus   `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// IsClosed reports whether the account accepts no further postings
func (a *Account) IsClosed() bool {
	return a.Status == AccountStatusClosed || a.Status == AccountStatusEarlyWithdrawn
}
