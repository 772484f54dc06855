package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scheduleStart = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

func TestAmortizationService_BuildSchedule_TwelveMonthsAtTwelvePercent(t *testing.T) {
	svc := NewAmortizationService(ResidualAccept)

	rows, err := svc.BuildSchedule(dec("12000"), dec("12"), 12, scheduleStart)
	require.NoError(t, err)
	require.Len(t, rows, 12)

	first := rows[0]
	assert.Equal(t, 1, first.Sequence)
	assertDecimal(t, "12000.00", first.BeginningBalance)
	assertDecimal(t, "1066.19", first.AmortizationAmount)
	assertDecimal(t, "120.00", first.InterestPortion)
	assertDecimal(t, "946.19", first.PrincipalPortion)
	assertDecimal(t, "11053.81", first.EndingBalance)
	assert.Equal(t, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), first.DueDate)

	last := rows[11]
	assert.Equal(t, 12, last.Sequence)
	assertDecimal(t, "1055.63", last.BeginningBalance)
	assertDecimal(t, "10.56", last.InterestPortion)
	assertDecimal(t, "0", last.EndingBalance)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), last.DueDate)
}

func TestAmortizationService_BuildSchedule_Completeness(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		term      int
	}{
		{"short term", "12000", "12", 12},
		{"odd principal", "53721.37", "9.5", 36},
		{"long term", "250000", "7.25", 120},
		{"fractional monthly rate", "10000", "10", 24},
		{"zero interest", "10000", "0", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAmortizationService(ResidualAccept)
			principal := dec(tt.principal)

			rows, err := svc.BuildSchedule(principal, dec(tt.rate), tt.term, scheduleStart)
			require.NoError(t, err)
			require.Len(t, rows, tt.term)

			summary := svc.Summarize(rows)
			tolerance := decimal.NewFromFloat(0.01).Mul(decimal.NewFromInt(int64(tt.term)))
			assert.True(t, summary.TotalPrincipal.Sub(principal).Abs().LessThanOrEqual(tolerance),
				"principal portions sum to %s, expected about %s", summary.TotalPrincipal, principal)

			for i, row := range rows {
				assert.Equal(t, i+1, row.Sequence)
				assert.False(t, row.InterestPortion.IsNegative())
				if i > 0 {
					assert.True(t, row.InterestPortion.LessThanOrEqual(rows[i-1].InterestPortion),
						"interest must not grow on a declining balance")
				}
			}
		})
	}
}

func TestAmortizationService_BuildSchedule_ZeroRate(t *testing.T) {
	svc := NewAmortizationService(ResidualAccept)

	rows, err := svc.BuildSchedule(dec("10000"), decimal.Zero, 3, scheduleStart)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for _, row := range rows {
		assertDecimal(t, "3333.33", row.AmortizationAmount)
		assertDecimal(t, "0", row.InterestPortion)
	}
	assertDecimal(t, "0", rows[2].EndingBalance)
}

func TestAmortizationService_BuildSchedule_FlushFinal(t *testing.T) {
	svc := NewAmortizationService(ResidualFlushFinal)

	rows, err := svc.BuildSchedule(dec("10000"), decimal.Zero, 3, scheduleStart)
	require.NoError(t, err)

	last := rows[2]
	assertDecimal(t, "3333.34", last.PrincipalPortion)
	assertDecimal(t, "3333.34", last.AmortizationAmount)
	assertDecimal(t, "0", last.EndingBalance)

	summary := svc.Summarize(rows)
	assertDecimal(t, "10000", summary.TotalPrincipal)
	assertDecimal(t, "0", summary.TotalInterest)
	assertDecimal(t, "10000", summary.TotalPayments)
}

func TestAmortizationService_BuildSchedule_FlushFinalPrincipalExact(t *testing.T) {
	svc := NewAmortizationService(ResidualFlushFinal)

	principal := dec("53721.37")
	rows, err := svc.BuildSchedule(principal, dec("9.5"), 36, scheduleStart)
	require.NoError(t, err)

	summary := svc.Summarize(rows)
	assert.True(t, principal.Equal(summary.TotalPrincipal), "got %s", summary.TotalPrincipal)
	assertDecimal(t, "0", rows[35].EndingBalance)
}

func TestAmortizationService_Summarize(t *testing.T) {
	svc := NewAmortizationService(ResidualAccept)

	rows, err := svc.BuildSchedule(dec("12000"), dec("12"), 12, scheduleStart)
	require.NoError(t, err)

	summary := svc.Summarize(rows)
	assert.Equal(t, 12, summary.Installments)
	assertDecimal(t, "12000.00", summary.TotalPrincipal)
	assertDecimal(t, "794.24", summary.TotalInterest)
	assertDecimal(t, "12794.28", summary.TotalPayments)
}

func TestAmortizationService_BuildSchedule_InvalidInput(t *testing.T) {
	tests := []struct {
		name      string
		principal decimal.Decimal
		rate      decimal.Decimal
		term      int
	}{
		{"zero principal", decimal.Zero, dec("12"), 12},
		{"negative principal", dec("-100"), dec("12"), 12},
		{"zero term", dec("1000"), dec("12"), 0},
		{"negative term", dec("1000"), dec("12"), -3},
		{"negative rate", dec("1000"), dec("-1"), 12},
	}

	svc := NewAmortizationService(ResidualAccept)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := svc.BuildSchedule(tt.principal, tt.rate, tt.term, scheduleStart)
			assert.ErrorIs(t, err, ErrInvalidScheduleInput)
			assert.Nil(t, rows)
		})
	}
}

func TestAmortizationService_MonthEndDueDates(t *testing.T) {
	svc := NewAmortizationService(ResidualAccept)

	rows, err := svc.BuildSchedule(dec("1200"), dec("6"), 2, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Calendar month addition normalizes Feb 31 to Mar 2 in a leap year
	assert.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), rows[0].DueDate)
	assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), rows[1].DueDate)
}

func TestParseResidualMode(t *testing.T) {
	mode, err := ParseResidualMode("flush")
	require.NoError(t, err)
	assert.Equal(t, ResidualFlushFinal, mode)

	mode, err = ParseResidualMode("")
	require.NoError(t, err)
	assert.Equal(t, ResidualAccept, mode)

	_, err = ParseResidualMode("round")
	assert.Error(t, err)
}
