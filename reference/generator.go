// Package reference issues human-readable identifiers for ledger records.
// Identifiers are opaque and only probably unique; the store's UNIQUE
// constraints are the authority and callers retry on collision.
package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"coopledger/models"
)

const (
	PrefixTransaction    = "TXN-"
	PrefixRegularSavings = "RS-"
	PrefixShareCapital   = "SC-"
	PrefixTimeDeposit    = "TD-"
	PrefixKalinga        = "KF-"
	PrefixLoan           = "LN-"
	PrefixVoucher        = "VCH-"
)

var sixDigits = big.NewInt(1_000_000)

// Generator produces identifiers of the form <PREFIX><unix-millis>-<6 digits>
type Generator struct {
	now     func() time.Time
	random  func() (int64, error)
	counter atomic.Uint64
}

// NewGenerator creates a generator backed by the wall clock and crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		now:    time.Now,
		random: randomSixDigits,
	}
}

// NewTransactionNumber returns a fresh transaction number
func (g *Generator) NewTransactionNumber() string {
	return g.next(PrefixTransaction)
}

// NewAccountNumber returns a fresh account number for product
func (g *Generator) NewAccountNumber(product models.Product) string {
	return g.next(AccountPrefix(product))
}

// NewLoanNumber returns a fresh loan number
func (g *Generator) NewLoanNumber() string {
	return g.next(PrefixLoan)
}

// NewVoucherNumber returns a fresh voucher number
func (g *Generator) NewVoucherNumber() string {
	return g.next(PrefixVoucher)
}

// AccountPrefix maps a product to its account number prefix
func AccountPrefix(product models.Product) string {
	switch product {
	case models.ProductShareCapital:
		return PrefixShareCapital
	case models.ProductTimeDeposit:
		return PrefixTimeDeposit
	case models.ProductKalinga:
		return PrefixKalinga
	default:
		return PrefixRegularSavings
	}
}

func (g *Generator) next(prefix string) string {
	millis := g.now().UnixMilli()

	n, err := g.random()
	if err != nil {
		// Entropy unavailable; a process-local counter still keeps this
		// process from repeating itself within the same millisecond
		n = int64(g.counter.Add(1) % 1_000_000)
	}

	return fmt.Sprintf("%s%d-%06d", prefix, millis, n)
}

func randomSixDigits() (int64, error) {
	n, err := rand.Int(rand.Reader, sixDigits)
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
