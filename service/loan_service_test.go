package service

import (
	"context"
	"testing"
	"time"

	"coopledger/domain/services"
	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var disbursedDate = time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

func newTestLoanService(u *testUnit) *LoanService {
	service := NewLoanService(u.factory, u.refs, services.NewAmortizationService(services.ResidualAccept))
	service.now = func() time.Time { return disbursedDate }
	return service
}

func activeLoan(balance string) *models.Loan {
	return &models.Loan{
		ID:                 3,
		LoanNumber:         "LN-1706659200000-000001",
		MemberID:           42,
		Principal:          dec("12000"),
		AnnualInterestRate: dec("12"),
		TermMonths:         12,
		DisbursedDate:      disbursedDate,
		Balance:            dec(balance),
		Status:             models.LoanStatusActive,
	}
}

func firstInstallment(repaid string) *models.Installment {
	return &models.Installment{
		ID:                 11,
		LoanID:             3,
		Sequence:           1,
		BeginningBalance:   dec("12000"),
		AmortizationAmount: dec("1066.19"),
		PrincipalPortion:   dec("946.19"),
		InterestPortion:    dec("120"),
		EndingBalance:      dec("11053.81"),
		DueDate:            time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC),
		Status:             models.InstallmentStatusUnpaid,
		AmountRepaid:       dec(repaid),
	}
}

func TestLoanService_CreateLoan(t *testing.T) {
	ctx := context.Background()
	u := newTestUnit(ctx)
	service := newTestLoanService(u)

	u.refs.On("NewLoanNumber").Return("LN-1706659200000-000001")
	u.loans.On("Create", ctx, mock.AnythingOfType("*models.Loan")).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Loan).ID = 3
	}).Return(true, nil)
	u.installments.On("CreateBatch", ctx, mock.MatchedBy(func(rows []*models.Installment) bool {
		if len(rows) != 12 {
			return false
		}
		for _, row := range rows {
			if row.LoanID != 3 || row.Status != models.InstallmentStatusUnpaid {
				return false
			}
		}
		return true
	})).Return(nil)
	u.expectCommit()

	detail, err := service.CreateLoan(ctx, CreateLoanRequest{
		MemberID:           42,
		Principal:          dec("12000"),
		AnnualInterestRate: dec("12"),
		TermMonths:         12,
		AuthorizedBy:       "loan-officer-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "LN-1706659200000-000001", detail.Loan.LoanNumber)
	assert.Equal(t, models.LoanStatusActive, detail.Loan.Status)
	assertDecimal(t, "12000", detail.Loan.Balance)
	assert.Equal(t, disbursedDate, detail.Loan.DisbursedDate)

	first := detail.Installments[0]
	assert.Equal(t, 1, first.Sequence)
	assertDecimal(t, "1066.19", first.AmortizationAmount)
	assertDecimal(t, "120", first.InterestPortion)
	assertDecimal(t, "946.19", first.PrincipalPortion)
	assertDecimal(t, "11053.81", first.EndingBalance)
	assert.True(t, first.AmountRepaid.IsZero())

	created := pendingOfType[events.LoanCreatedEvent](u.bus)
	require.Len(t, created, 1)
	assertDecimal(t, "1066.19", created[0].MonthlyPayment)

	u.assertExpectations(t)
}

func TestLoanService_CreateLoan_InvalidRequests(t *testing.T) {
	valid := CreateLoanRequest{
		MemberID:           42,
		Principal:          dec("12000"),
		AnnualInterestRate: dec("12"),
		TermMonths:         12,
		AuthorizedBy:       "loan-officer-1",
	}

	tests := []struct {
		name   string
		mutate func(r *CreateLoanRequest)
	}{
		{"zero principal", func(r *CreateLoanRequest) { r.Principal = decimal.Zero }},
		{"fractional principal", func(r *CreateLoanRequest) { r.Principal = dec("100.001") }},
		{"negative rate", func(r *CreateLoanRequest) { r.AnnualInterestRate = dec("-1") }},
		{"zero term", func(r *CreateLoanRequest) { r.TermMonths = 0 }},
		{"no member", func(r *CreateLoanRequest) { r.MemberID = 0 }},
		{"no authorizer", func(r *CreateLoanRequest) { r.AuthorizedBy = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := new(MockUnitOfWorkFactory)
			service := NewLoanService(factory, new(MockReferenceGenerator), services.NewAmortizationService(services.ResidualAccept))

			req := valid
			tt.mutate(&req)

			_, err := service.CreateLoan(context.Background(), req)

			assert.Equal(t, KindInvalidInput, KindOf(err))
			factory.AssertNotCalled(t, "Create")
		})
	}
}

func TestLoanService_ApplyRepayment_Cash(t *testing.T) {
	tests := []struct {
		name          string
		alreadyRepaid string
		loanBefore    string
		pay           string
		wantRepaid    string
		wantStatus    models.InstallmentStatus
		loanAfter     string
	}{
		{"exact amortization", "0", "12000", "1066.19", "1066.19", models.InstallmentStatusPaid, "10933.81"},
		{"partial", "0", "12000", "500", "500", models.InstallmentStatusUnpaid, "11500"},
		{"completes partial", "566.19", "11433.81", "500", "1066.19", models.InstallmentStatusPaid, "10933.81"},
		{"overpayment", "0", "12000", "1200", "1200", models.InstallmentStatusPaid, "10800"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			u := newTestUnit(ctx)
			service := newTestLoanService(u)

			u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment(tt.alreadyRepaid), nil)
			u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(activeLoan(tt.loanBefore), nil)
			u.refs.On("NewTransactionNumber").Return("TXN-1709337600000-000001")
			u.repayments.On("Insert", ctx, mock.MatchedBy(func(r *models.LoanRepayment) bool {
				return r.LoanID == 3 && r.InstallmentID == 11 && r.Method == models.RepaymentMethodCash
			})).Return(true, nil)
			u.installments.On("UpdatePayment", ctx, int64(11), decEq(tt.wantRepaid), tt.wantStatus).Return(nil)
			u.loans.On("UpdateBalance", ctx, int64(3), decEq(tt.loanAfter), models.LoanStatusActive).Return(nil)
			u.expectCommit()

			result, err := service.ApplyRepayment(ctx, RepaymentRequest{
				InstallmentID: 11,
				AmountPaid:    dec(tt.pay),
				AuthorizedBy:  "teller-1",
			})

			require.NoError(t, err)
			assert.Equal(t, "TXN-1709337600000-000001", result.TransactionNumber)
			assert.Equal(t, tt.wantStatus, result.InstallmentStatus)
			assertDecimal(t, tt.wantRepaid, result.InstallmentAmountRepaid)
			assertDecimal(t, tt.loanAfter, result.LoanBalance)
			assert.Equal(t, models.LoanStatusActive, result.LoanStatus)
			assert.Empty(t, result.SavingsTransactionNumber)
			u.accounts.AssertNotCalled(t, "GetByNumberForUpdate", mock.Anything, mock.Anything)
			u.assertExpectations(t)
		})
	}
}

func TestLoanService_ApplyRepayment_FinalPaymentPaysOff(t *testing.T) {
	ctx := context.Background()
	u := newTestUnit(ctx)
	service := newTestLoanService(u)

	u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment("0"), nil)
	u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(activeLoan("1055.63"), nil)
	u.refs.On("NewTransactionNumber").Return("TXN-1709337600000-000001")
	u.repayments.On("Insert", ctx, mock.Anything).Return(true, nil)
	u.installments.On("UpdatePayment", ctx, int64(11), decEq("1066.19"), models.InstallmentStatusPaid).Return(nil)
	u.loans.On("UpdateBalance", ctx, int64(3), decEq("0"), models.LoanStatusPaidOff).Return(nil)
	u.expectCommit()

	result, err := service.ApplyRepayment(ctx, RepaymentRequest{
		InstallmentID: 11,
		AmountPaid:    dec("1066.19"),
		AuthorizedBy:  "teller-1",
	})

	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusPaidOff, result.LoanStatus)
	assert.True(t, result.LoanBalance.IsZero())

	applied := pendingOfType[events.LoanRepaymentAppliedEvent](u.bus)
	require.Len(t, applied, 1)
	assert.Equal(t, models.LoanStatusPaidOff, applied[0].LoanStatus)
	u.assertExpectations(t)
}

func TestLoanService_ApplyRepayment_SavingsDebit(t *testing.T) {
	ctx := context.Background()
	u := newTestUnit(ctx)
	service := newTestLoanService(u)

	savings := savingsAccount(1, "5000")
	u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment("0"), nil)
	u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(activeLoan("12000"), nil)
	u.accounts.On("GetByNumberForUpdate", ctx, savings.AccountNumber).Return(savings, nil)
	u.refs.On("NewVoucherNumber").Return("VCH-1709337600000-000001")
	u.refs.On("NewTransactionNumber").Return("TXN-1709337600000-000001").Once()
	u.refs.On("NewTransactionNumber").Return("TXN-1709337600000-000002").Once()
	u.expectPosting(ctx, 1, "3933.81")
	u.repayments.On("Insert", ctx, mock.MatchedBy(func(r *models.LoanRepayment) bool {
		return r.Method == models.RepaymentMethodSavingsDebit
	})).Return(true, nil)
	u.installments.On("UpdatePayment", ctx, int64(11), decEq("1066.19"), models.InstallmentStatusPaid).Return(nil)
	u.loans.On("UpdateBalance", ctx, int64(3), decEq("10933.81"), models.LoanStatusActive).Return(nil)
	u.expectCommit()

	result, err := service.ApplyRepayment(ctx, RepaymentRequest{
		InstallmentID:       11,
		AmountPaid:          dec("1066.19"),
		Method:              models.RepaymentMethodSavingsDebit,
		SourceAccountNumber: savings.AccountNumber,
		MinimumBalance:      dec("100"),
		AuthorizedBy:        "teller-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "TXN-1709337600000-000001", result.SavingsTransactionNumber)
	assert.Equal(t, "TXN-1709337600000-000002", result.TransactionNumber)
	assertDecimal(t, "3933.81", savings.Balance)

	debit := u.transactions.Calls[0].Arguments.Get(1).(*models.Transaction)
	assert.Equal(t, models.TransactionTypeWithdrawal, debit.Type)
	assert.Equal(t, "LN-1706659200000-000001", debit.Metadata["loan_number"])
	assert.Equal(t, "VCH-1709337600000-000001", debit.Metadata["voucher_number"])
	assert.Equal(t, "VCH-1709337600000-000001", result.VoucherNumber)
	u.assertExpectations(t)
}

func TestLoanService_ApplyRepayment_SavingsDebitRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("another member's savings", func(t *testing.T) {
		u := newTestUnit(ctx)
		service := newTestLoanService(u)

		savings := savingsAccount(1, "5000")
		savings.MemberID = 99
		u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment("0"), nil)
		u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(activeLoan("12000"), nil)
		u.accounts.On("GetByNumberForUpdate", ctx, savings.AccountNumber).Return(savings, nil)

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{
			InstallmentID: 11, AmountPaid: dec("100"), Method: models.RepaymentMethodSavingsDebit,
			SourceAccountNumber: savings.AccountNumber, AuthorizedBy: "teller-1",
		})

		assert.ErrorIs(t, err, ErrInvalidInput)
		u.transactions.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("share capital source", func(t *testing.T) {
		u := newTestUnit(ctx)
		service := newTestLoanService(u)

		capital := savingsAccount(1, "5000")
		capital.Product = models.ProductShareCapital
		u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment("0"), nil)
		u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(activeLoan("12000"), nil)
		u.accounts.On("GetByNumberForUpdate", ctx, capital.AccountNumber).Return(capital, nil)

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{
			InstallmentID: 11, AmountPaid: dec("100"), Method: models.RepaymentMethodSavingsDebit,
			SourceAccountNumber: capital.AccountNumber, AuthorizedBy: "teller-1",
		})

		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("savings below floor", func(t *testing.T) {
		u := newTestUnit(ctx)
		service := newTestLoanService(u)

		savings := savingsAccount(1, "1100")
		u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment("0"), nil)
		u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(activeLoan("12000"), nil)
		u.accounts.On("GetByNumberForUpdate", ctx, savings.AccountNumber).Return(savings, nil)
		u.refs.On("NewVoucherNumber").Return("VCH-1709337600000-000001")

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{
			InstallmentID: 11, AmountPaid: dec("1066.19"), Method: models.RepaymentMethodSavingsDebit,
			SourceAccountNumber: savings.AccountNumber, MinimumBalance: dec("100"), AuthorizedBy: "teller-1",
		})

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		u.repayments.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		u.installments.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("savings below default floor", func(t *testing.T) {
		u := newTestUnit(ctx)
		service := newTestLoanService(u)
		service.SetSavingsMinimumBalance(dec("100"))

		savings := savingsAccount(1, "1100")
		u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment("0"), nil)
		u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(activeLoan("12000"), nil)
		u.accounts.On("GetByNumberForUpdate", ctx, savings.AccountNumber).Return(savings, nil)
		u.refs.On("NewVoucherNumber").Return("VCH-1709337600000-000001")

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{
			InstallmentID: 11, AmountPaid: dec("1066.19"), Method: models.RepaymentMethodSavingsDebit,
			SourceAccountNumber: savings.AccountNumber, AuthorizedBy: "teller-1",
		})

		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assertDecimal(t, "1100", savings.Balance)
		u.repayments.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("missing source account", func(t *testing.T) {
		factory := new(MockUnitOfWorkFactory)
		service := NewLoanService(factory, new(MockReferenceGenerator), services.NewAmortizationService(services.ResidualAccept))

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{
			InstallmentID: 11, AmountPaid: dec("100"), Method: models.RepaymentMethodSavingsDebit, AuthorizedBy: "teller-1",
		})

		assert.ErrorIs(t, err, ErrInvalidInput)
		factory.AssertNotCalled(t, "Create")
	})
}

func TestLoanService_ApplyRepayment_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown installment", func(t *testing.T) {
		u := newTestUnit(ctx)
		service := newTestLoanService(u)
		u.installments.On("GetByIDForUpdate", ctx, int64(404)).Return(nil, nil)

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{InstallmentID: 404, AmountPaid: dec("10"), AuthorizedBy: "teller-1"})

		assert.ErrorIs(t, err, ErrInstallmentNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("paid off loan", func(t *testing.T) {
		u := newTestUnit(ctx)
		service := newTestLoanService(u)
		loan := activeLoan("0")
		loan.Status = models.LoanStatusPaidOff
		u.installments.On("GetByIDForUpdate", ctx, int64(11)).Return(firstInstallment("1066.19"), nil)
		u.loans.On("GetByIDForUpdate", ctx, int64(3)).Return(loan, nil)

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{InstallmentID: 11, AmountPaid: dec("10"), AuthorizedBy: "teller-1"})

		assert.ErrorIs(t, err, ErrLoanPaidOff)
		assert.Equal(t, KindConflictingState, KindOf(err))
		u.repayments.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("unknown method", func(t *testing.T) {
		factory := new(MockUnitOfWorkFactory)
		service := NewLoanService(factory, new(MockReferenceGenerator), services.NewAmortizationService(services.ResidualAccept))

		_, err := service.ApplyRepayment(ctx, RepaymentRequest{InstallmentID: 11, AmountPaid: dec("10"), Method: "cheque", AuthorizedBy: "teller-1"})

		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestLoanService_GetLoan(t *testing.T) {
	ctx := context.Background()
	u := newTestUnit(ctx)
	service := newTestLoanService(u)

	schedule := []*models.Installment{firstInstallment("0")}
	u.loans.On("GetByID", ctx, int64(3)).Return(activeLoan("12000"), nil)
	u.installments.On("ListByLoan", ctx, int64(3)).Return(schedule, nil)
	u.loans.On("GetByID", ctx, int64(404)).Return(nil, nil)

	detail, err := service.GetLoan(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, schedule, detail.Installments)

	_, err = service.GetSchedule(ctx, 404)
	assert.ErrorIs(t, err, ErrLoanNotFound)
}

func TestLoanService_PreviewSchedule(t *testing.T) {
	service := NewLoanService(new(MockUnitOfWorkFactory), new(MockReferenceGenerator), services.NewAmortizationService(services.ResidualAccept))

	rows, summary, err := service.PreviewSchedule(dec("12000"), dec("12"), 12, disbursedDate)
	require.NoError(t, err)
	assert.Len(t, rows, 12)
	assertDecimal(t, "794.24", summary.TotalInterest)

	_, _, err = service.PreviewSchedule(dec("12000"), dec("12"), 0, disbursedDate)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}
