package repository

import (
	"context"
	"testing"
	"time"

	"coopledger/domain/services"
	"coopledger/models"
	"coopledger/repository/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewLoanRepository(testDB.DB)
	ctx := context.Background()

	loan := testutil.CreateTestLoan(500, "12000.00")

	t.Run("create and get", func(t *testing.T) {
		created, err := repo.Create(ctx, loan)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotZero(t, loan.ID)

		stored, err := repo.GetByID(ctx, loan.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, loan.LoanNumber, stored.LoanNumber)
		assert.True(t, decimal.NewFromInt(12).Equal(stored.AnnualInterestRate))
		assert.Equal(t, models.LoanStatusActive, stored.Status)
	})

	t.Run("taken loan number returns false", func(t *testing.T) {
		duplicate := testutil.CreateTestLoan(501, "500.00")
		duplicate.LoanNumber = loan.LoanNumber
		created, err := repo.Create(ctx, duplicate)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("update balance and status", func(t *testing.T) {
		require.NoError(t, repo.UpdateBalance(ctx, loan.ID, decimal.Zero, models.LoanStatusPaidOff))

		stored, err := repo.GetByIDForUpdate(ctx, loan.ID)
		require.NoError(t, err)
		assert.True(t, stored.Balance.IsZero())
		assert.Equal(t, models.LoanStatusPaidOff, stored.Status)
	})

	t.Run("list by member newest first", func(t *testing.T) {
		second := testutil.CreateTestLoan(500, "3000.00")
		_, err := repo.Create(ctx, second)
		require.NoError(t, err)

		loans, err := repo.ListByMember(ctx, 500)
		require.NoError(t, err)
		require.Len(t, loans, 2)
		assert.Equal(t, second.ID, loans[0].ID)
	})

	t.Run("missing loan is nil", func(t *testing.T) {
		stored, err := repo.GetByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
}

func TestInstallmentRepository_ScheduleAndRepayments(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	loans := NewLoanRepository(testDB.DB)
	repo := NewInstallmentRepository(testDB.DB)
	repayments := NewLoanRepaymentRepository(testDB.DB)
	ctx := context.Background()

	loan := testutil.CreateTestLoan(600, "12000.00")
	_, err := loans.Create(ctx, loan)
	require.NoError(t, err)

	rows, err := services.NewAmortizationService(services.ResidualAccept).BuildSchedule(
		loan.Principal, loan.AnnualInterestRate, loan.TermMonths, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	installments := make([]*models.Installment, len(rows))
	for i, row := range rows {
		installments[i] = &models.Installment{
			LoanID:             loan.ID,
			Sequence:           row.Sequence,
			BeginningBalance:   row.BeginningBalance,
			AmortizationAmount: row.AmortizationAmount,
			PrincipalPortion:   row.PrincipalPortion,
			InterestPortion:    row.InterestPortion,
			EndingBalance:      row.EndingBalance,
			DueDate:            row.DueDate,
			Status:             models.InstallmentStatusUnpaid,
			AmountRepaid:       decimal.Zero,
		}
	}

	t.Run("batch insert fills ids", func(t *testing.T) {
		require.NoError(t, repo.CreateBatch(ctx, installments))
		for _, inst := range installments {
			assert.NotZero(t, inst.ID)
		}

		stored, err := repo.ListByLoan(ctx, loan.ID)
		require.NoError(t, err)
		require.Len(t, stored, 12)
		assert.Equal(t, 1, stored[0].Sequence)
		assert.True(t, decimal.RequireFromString("1066.19").Equal(stored[0].AmortizationAmount))
		assert.True(t, decimal.RequireFromString("11053.81").Equal(stored[0].EndingBalance))
		assert.Equal(t, 12, stored[11].Sequence)
	})

	t.Run("duplicate sequence fails the batch", func(t *testing.T) {
		dup := *installments[0]
		dup.ID = 0
		assert.Error(t, repo.CreateBatch(ctx, []*models.Installment{&dup}))
	})

	t.Run("payment and repayment log", func(t *testing.T) {
		first := installments[0]
		require.NoError(t, repo.UpdatePayment(ctx, first.ID, first.AmortizationAmount, models.InstallmentStatusPaid))

		stored, err := repo.GetByIDForUpdate(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InstallmentStatusPaid, stored.Status)
		assert.True(t, first.AmortizationAmount.Equal(stored.AmountRepaid))

		repayment := &models.LoanRepayment{
			TransactionNumber: testutil.NextNumber("TXN-"),
			LoanID:            loan.ID,
			InstallmentID:     first.ID,
			Amount:            first.AmortizationAmount,
			Method:            models.RepaymentMethodCash,
			AuthorizedBy:      "test-teller",
		}
		inserted, err := repayments.Insert(ctx, repayment)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repayments.Insert(ctx, repayment)
		require.NoError(t, err)
		assert.False(t, inserted)

		logged, err := repayments.ListByLoan(ctx, loan.ID)
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, models.RepaymentMethodCash, logged[0].Method)
	})

	t.Run("missing installment is nil", func(t *testing.T) {
		stored, err := repo.GetByIDForUpdate(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
}
