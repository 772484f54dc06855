package services

import (
	"fmt"
	"sort"
	"time"

	"coopledger/models"

	"github.com/shopspring/decimal"
)

// TieBreak decides between tiers that share a threshold
type TieBreak int

const (
	// TieBreakLastSeen picks the later tier in input order
	TieBreakLastSeen TieBreak = iota
	// TieBreakHighestRate picks the tier with the higher rate
	TieBreakHighestRate
)

// ParseTieBreak maps the config value to a tie-break mode
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "last":
		return TieBreakLastSeen, nil
	case "highest":
		return TieBreakHighestRate, nil
	}
	return TieBreakLastSeen, fmt.Errorf("unknown rate tie-break %q", s)
}

const (
	sixMonthTerm       = 6
	sixMonthDayCount   = 182
	fullYearDayCount   = 365
	daysInInterestYear = 365
)

// TimeDepositTerms is the computed outcome of placing a deposit
type TimeDepositTerms struct {
	Principal    decimal.Decimal
	TermMonths   int
	Rate         decimal.Decimal // fraction
	DayCount     int
	Interest     decimal.Decimal
	Payout       decimal.Decimal
	OpenDate     time.Time
	MaturityDate time.Time
}

// InterestRateService resolves tiered rates and computes deposit interest
type InterestRateService struct {
	tieBreak TieBreak
}

// NewInterestRateService creates a new InterestRateService
func NewInterestRateService(tieBreak TieBreak) *InterestRateService {
	return &InterestRateService{tieBreak: tieBreak}
}

// ResolveRate returns the fractional rate for amount from the tiers of
// product and exactly termMonths. The highest threshold not above amount
// wins; no qualifying tier yields zero.
func (s *InterestRateService) ResolveRate(product models.Product, amount decimal.Decimal, termMonths int, tiers []*models.InterestRateTier) decimal.Decimal {
	if amount.IsNegative() || termMonths <= 0 {
		return decimal.Zero
	}

	candidates := FilterTiers(product, termMonths, tiers)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ThresholdAmount.LessThan(candidates[j].ThresholdAmount)
	})

	var selected *models.InterestRateTier
	for _, tier := range candidates {
		if tier.ThresholdAmount.GreaterThan(amount) {
			break
		}
		if selected != nil && s.tieBreak == TieBreakHighestRate &&
			tier.ThresholdAmount.Equal(selected.ThresholdAmount) &&
			tier.RatePercent.LessThan(selected.RatePercent) {
			continue
		}
		selected = tier
	}

	if selected == nil {
		return decimal.Zero
	}
	return selected.RatePercent.Div(hundred)
}

// FilterTiers returns the tiers for product with exactly termMonths, in input order
func FilterTiers(product models.Product, termMonths int, tiers []*models.InterestRateTier) []*models.InterestRateTier {
	var matching []*models.InterestRateTier
	for _, tier := range tiers {
		if tier != nil && tier.Product == product && tier.TermMonths == termMonths {
			matching = append(matching, tier)
		}
	}
	return matching
}

// DayCountForTerm is 182 days for a six month term and 365 otherwise
func DayCountForTerm(termMonths int) int {
	if termMonths == sixMonthTerm {
		return sixMonthDayCount
	}
	return fullYearDayCount
}

// TermInterest is principal·rate·dayCount/365 rounded to cents
func (s *InterestRateService) TermInterest(principal, rate decimal.Decimal, termMonths int) decimal.Decimal {
	days := decimal.NewFromInt(int64(DayCountForTerm(termMonths)))
	return principal.Mul(rate).Mul(days).Div(decimal.NewFromInt(daysInInterestYear)).Round(2)
}

// ComputeTimeDepositTerms derives interest, payout and maturity for a placement
func (s *InterestRateService) ComputeTimeDepositTerms(principal, rate decimal.Decimal, termMonths int, openDate time.Time) TimeDepositTerms {
	interest := s.TermInterest(principal, rate, termMonths)
	return TimeDepositTerms{
		Principal:    principal,
		TermMonths:   termMonths,
		Rate:         rate,
		DayCount:     DayCountForTerm(termMonths),
		Interest:     interest,
		Payout:       principal.Add(interest),
		OpenDate:     models.DateOnly(openDate),
		MaturityDate: models.AddMonths(openDate, termMonths),
	}
}
