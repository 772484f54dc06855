package models

import (
	"github.com/shopspring/decimal"
)

// InterestRateTier is one row of a product's rate table. A tier applies to
// amounts at or above ThresholdAmount for the exact TermMonths.
type InterestRateTier struct {
	ID              int64           `db:"id"`
	Product         Product         `db:"product"`
	TermMonths      int             `db:"term_months"`
	ThresholdAmount decimal.Decimal `db:"threshold_amount"`
	RatePercent     decimal.Decimal `db:"rate_percent"`
}
