package reference

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"coopledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var identifierPattern = regexp.MustCompile(`^[A-Z]+-\d+-\d{6}$`)

func TestGenerator_Format(t *testing.T) {
	g := NewGenerator()

	tests := []struct {
		name   string
		value  string
		prefix string
	}{
		{"transaction", g.NewTransactionNumber(), PrefixTransaction},
		{"regular savings", g.NewAccountNumber(models.ProductRegularSavings), PrefixRegularSavings},
		{"share capital", g.NewAccountNumber(models.ProductShareCapital), PrefixShareCapital},
		{"time deposit", g.NewAccountNumber(models.ProductTimeDeposit), PrefixTimeDeposit},
		{"kalinga", g.NewAccountNumber(models.ProductKalinga), PrefixKalinga},
		{"loan", g.NewLoanNumber(), PrefixLoan},
		{"voucher", g.NewVoucherNumber(), PrefixVoucher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.value, tt.prefix), "got %s", tt.value)
			assert.Regexp(t, identifierPattern, tt.value)
		})
	}
}

func TestGenerator_UsesClock(t *testing.T) {
	g := NewGenerator()
	g.now = func() time.Time { return time.UnixMilli(1700000000123) }
	g.random = func() (int64, error) { return 42, nil }

	assert.Equal(t, "TXN-1700000000123-000042", g.NewTransactionNumber())
}

func TestGenerator_FallsBackToCounterWhenEntropyFails(t *testing.T) {
	g := NewGenerator()
	g.now = func() time.Time { return time.UnixMilli(1700000000000) }
	g.random = func() (int64, error) { return 0, errors.New("no entropy") }

	first := g.NewTransactionNumber()
	second := g.NewTransactionNumber()

	assert.Equal(t, "TXN-1700000000000-000001", first)
	assert.Equal(t, "TXN-1700000000000-000002", second)
}

func TestGenerator_ConcurrentCallsRarelyCollide(t *testing.T) {
	g := NewGenerator()

	const workers = 8
	const perWorker = 250

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := g.NewTransactionNumber()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// The store rejects duplicates; a million-value suffix keeps them rare
	require.GreaterOrEqual(t, len(seen), workers*perWorker-5)
}
