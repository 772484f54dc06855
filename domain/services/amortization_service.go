package services

import (
	"errors"
	"fmt"
	"time"

	"coopledger/models"

	"github.com/shopspring/decimal"
)

// ErrInvalidScheduleInput is returned when a schedule cannot be built from the given terms
var ErrInvalidScheduleInput = errors.New("invalid amortization input")

// ResidualMode controls what happens to rounding cents left after the final period
type ResidualMode int

const (
	// ResidualAccept keeps every row on the level payment; the final ending
	// balance may carry residual cents.
	ResidualAccept ResidualMode = iota
	// ResidualFlushFinal makes the final row absorb the remainder so that the
	// principal portions sum to the principal and the last ending balance is zero.
	ResidualFlushFinal
)

// ParseResidualMode maps the config value to a mode
func ParseResidualMode(s string) (ResidualMode, error) {
	switch s {
	case "", "accept":
		return ResidualAccept, nil
	case "flush":
		return ResidualFlushFinal, nil
	}
	return ResidualAccept, fmt.Errorf("unknown residual mode %q", s)
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// ScheduleRow is one period of a level-payment schedule, rounded to cents
type ScheduleRow struct {
	Sequence           int
	DueDate            time.Time
	BeginningBalance   decimal.Decimal
	AmortizationAmount decimal.Decimal
	PrincipalPortion   decimal.Decimal
	InterestPortion    decimal.Decimal
	EndingBalance      decimal.Decimal
}

// ScheduleSummary totals a schedule
type ScheduleSummary struct {
	TotalPayments  decimal.Decimal
	TotalInterest  decimal.Decimal
	TotalPrincipal decimal.Decimal
	Installments   int
}

// AmortizationService builds declining-balance loan schedules
type AmortizationService struct {
	residualMode ResidualMode
}

// NewAmortizationService creates a new AmortizationService
func NewAmortizationService(mode ResidualMode) *AmortizationService {
	return &AmortizationService{residualMode: mode}
}

// MonthlyPayment returns the unrounded level payment for the loan terms
func (s *AmortizationService) MonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if err := validateScheduleInput(principal, annualRatePercent, termMonths); err != nil {
		return decimal.Zero, err
	}

	n := decimal.NewFromInt(int64(termMonths))
	rate := monthlyRate(annualRatePercent)
	if rate.IsZero() {
		return principal.Div(n), nil
	}

	// P·r·f / (f − 1), f = (1+r)^n
	factor := compound(decimal.NewFromInt(1).Add(rate), termMonths)
	return principal.Mul(rate).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))), nil
}

// BuildSchedule produces exactly termMonths rows. Interest accrues on the
// unrounded running balance; each row is rounded to cents as it is emitted.
func (s *AmortizationService) BuildSchedule(principal, annualRatePercent decimal.Decimal, termMonths int, startDate time.Time) ([]ScheduleRow, error) {
	payment, err := s.MonthlyPayment(principal, annualRatePercent, termMonths)
	if err != nil {
		return nil, err
	}

	rate := monthlyRate(annualRatePercent)
	running := principal
	principalPaid := decimal.Zero

	rows := make([]ScheduleRow, 0, termMonths)
	for seq := 1; seq <= termMonths; seq++ {
		interest := running.Mul(rate)
		principalPortion := payment.Sub(interest)
		ending := running.Sub(principalPortion)

		row := ScheduleRow{
			Sequence:           seq,
			DueDate:            models.AddMonths(startDate, seq),
			BeginningBalance:   running.Round(2),
			AmortizationAmount: payment.Round(2),
			PrincipalPortion:   principalPortion.Round(2),
			InterestPortion:    interest.Round(2),
			EndingBalance:      ending.Round(2),
		}

		if seq == termMonths && s.residualMode == ResidualFlushFinal {
			row.PrincipalPortion = principal.Sub(principalPaid)
			row.AmortizationAmount = row.PrincipalPortion.Add(row.InterestPortion)
			row.EndingBalance = decimal.Zero
		}

		principalPaid = principalPaid.Add(row.PrincipalPortion)
		running = ending
		rows = append(rows, row)
	}

	return rows, nil
}

// Summarize totals the rounded rows of a schedule
func (s *AmortizationService) Summarize(rows []ScheduleRow) ScheduleSummary {
	summary := ScheduleSummary{
		TotalPayments:  decimal.Zero,
		TotalInterest:  decimal.Zero,
		TotalPrincipal: decimal.Zero,
		Installments:   len(rows),
	}
	for _, row := range rows {
		summary.TotalPayments = summary.TotalPayments.Add(row.AmortizationAmount)
		summary.TotalInterest = summary.TotalInterest.Add(row.InterestPortion)
		summary.TotalPrincipal = summary.TotalPrincipal.Add(row.PrincipalPortion)
	}
	return summary
}

func validateScheduleInput(principal, annualRatePercent decimal.Decimal, termMonths int) error {
	if !principal.IsPositive() {
		return fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidScheduleInput, principal)
	}
	if termMonths <= 0 {
		return fmt.Errorf("%w: term must be positive, got %d months", ErrInvalidScheduleInput, termMonths)
	}
	if annualRatePercent.IsNegative() {
		return fmt.Errorf("%w: annual rate cannot be negative, got %s", ErrInvalidScheduleInput, annualRatePercent)
	}
	return nil
}

func monthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(hundred).Div(twelve)
}

// compound raises base to a non-negative integer power. Intermediate values
// are held to 24 places to bound the digit growth of long terms.
func compound(base decimal.Decimal, exponent int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for i := 0; i < exponent; i++ {
		result = result.Mul(base).Round(24)
	}
	return result
}
