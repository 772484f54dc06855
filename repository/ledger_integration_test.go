package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coopledger/domain/services"
	"coopledger/events"
	"coopledger/models"
	"coopledger/reference"
	"coopledger/repository/testutil"
	"coopledger/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerStack struct {
	bus          *events.Bus
	accounts     *service.AccountService
	ledger       *service.LedgerService
	timeDeposits *service.TimeDepositService
	loans        *service.LoanService
}

func newLedgerStack(t *testing.T) *ledgerStack {
	t.Helper()

	testDB := testutil.SetupTestDatabase(t)
	bus := events.NewBus()
	factory := NewUnitOfWorkFactory(testDB.DB, bus)
	refs := reference.NewGenerator()

	return &ledgerStack{
		bus:          bus,
		accounts:     service.NewAccountService(factory, refs),
		ledger:       service.NewLedgerService(factory, refs),
		timeDeposits: service.NewTimeDepositService(factory, refs, services.NewInterestRateService(services.TieBreakLastSeen)),
		loans:        service.NewLoanService(factory, refs, services.NewAmortizationService(services.ResidualAccept)),
	}
}

func (s *ledgerStack) open(t *testing.T, memberID int64, product models.Product, initial string) *models.Account {
	t.Helper()

	account, err := s.accounts.OpenAccount(context.Background(), service.OpenAccountRequest{
		MemberID:       memberID,
		Product:        product,
		InitialDeposit: decimal.RequireFromString(initial),
		AuthorizedBy:   "teller-1",
	})
	require.NoError(t, err)
	return account
}

func (s *ledgerStack) assertBalance(t *testing.T, accountNumber, expected string) {
	t.Helper()

	report, err := s.ledger.Reconcile(context.Background(), accountNumber)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString(expected).Equal(report.StoredBalance),
		"expected %s, got %s", expected, report.StoredBalance)
	assert.True(t, report.Balanced, "stored %s, ledger %s", report.StoredBalance, report.LedgerBalance)
}

func TestLedger_ConcurrentDepositsSerialize(t *testing.T) {
	stack := newLedgerStack(t)
	ctx := context.Background()

	account := stack.open(t, 800, models.ProductRegularSavings, "0")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.ledger.ApplyTransaction(ctx, service.TransactionRequest{
				AccountNumber: account.AccountNumber,
				Type:          models.TransactionTypeDeposit,
				Amount:        decimal.RequireFromString("10.25"),
				AuthorizedBy:  "teller-1",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stack.assertBalance(t, account.AccountNumber, "205.00")

	txns, err := stack.ledger.GetTransactions(ctx, account.AccountNumber, 0)
	require.NoError(t, err)
	assert.Len(t, txns, workers)
}

func TestLedger_ConcurrentWithdrawalsNeverBreachFloor(t *testing.T) {
	stack := newLedgerStack(t)
	ctx := context.Background()

	account := stack.open(t, 801, models.ProductRegularSavings, "150.00")

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, refused := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stack.ledger.ApplyTransaction(ctx, service.TransactionRequest{
				AccountNumber:  account.AccountNumber,
				Type:           models.TransactionTypeWithdrawal,
				Amount:         decimal.NewFromInt(10),
				AuthorizedBy:   "teller-1",
				MinimumBalance: decimal.NewFromInt(50),
			})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if errors.Is(err, service.ErrInsufficientFunds) {
				refused++
				return
			}
			t.Errorf("unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, refused)
	stack.assertBalance(t, account.AccountNumber, "50.00")
}

func TestLedger_OpposingTransfersConserveTotal(t *testing.T) {
	stack := newLedgerStack(t)
	ctx := context.Background()

	a := stack.open(t, 802, models.ProductRegularSavings, "1000.00")
	b := stack.open(t, 803, models.ProductRegularSavings, "1000.00")

	const rounds = 10
	var wg sync.WaitGroup
	errs := make(chan error, rounds*2)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := stack.ledger.Transfer(ctx, service.TransferRequest{
				FromAccountNumber: a.AccountNumber,
				ToAccountNumber:   b.AccountNumber,
				Amount:            decimal.NewFromInt(30),
				AuthorizedBy:      "teller-1",
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := stack.ledger.Transfer(ctx, service.TransferRequest{
				FromAccountNumber: b.AccountNumber,
				ToAccountNumber:   a.AccountNumber,
				Amount:            decimal.NewFromInt(20),
				AuthorizedBy:      "teller-1",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stack.assertBalance(t, a.AccountNumber, "900.00")
	stack.assertBalance(t, b.AccountNumber, "1100.00")
}

func TestLedger_FailedTransferLeavesBothAccounts(t *testing.T) {
	stack := newLedgerStack(t)
	ctx := context.Background()

	from := stack.open(t, 804, models.ProductRegularSavings, "100.00")
	to := stack.open(t, 805, models.ProductShareCapital, "0")

	_, err := stack.ledger.Transfer(ctx, service.TransferRequest{
		FromAccountNumber: from.AccountNumber,
		ToAccountNumber:   to.AccountNumber,
		Amount:            decimal.NewFromInt(80),
		AuthorizedBy:      "teller-1",
		MinimumBalance:    decimal.NewFromInt(50),
	})
	require.ErrorIs(t, err, service.ErrInsufficientFunds)

	stack.assertBalance(t, from.AccountNumber, "100.00")
	stack.assertBalance(t, to.AccountNumber, "0")

	txns, err := stack.ledger.GetTransactions(ctx, to.AccountNumber, 0)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestTimeDeposit_Lifecycle(t *testing.T) {
	stack := newLedgerStack(t)
	ctx := context.Background()

	placed, err := stack.timeDeposits.Open(ctx, service.OpenTimeDepositRequest{
		MemberID:     806,
		Principal:    decimal.NewFromInt(150000),
		TermMonths:   6,
		OpenDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		AuthorizedBy: "teller-1",
		CoHolder:     &service.CoHolderRequest{Name: "Jose Reyes", Relationship: "sibling"},
	})
	require.NoError(t, err)

	accountNumber := placed.Detail.Account.AccountNumber
	assert.True(t, decimal.RequireFromString("747.95").Equal(placed.Detail.Terms.Interest))

	sweep, err := stack.timeDeposits.MatureDue(ctx, time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, sweep.Due)

	sweep, err = stack.timeDeposits.MatureDue(ctx, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Matured)
	stack.assertBalance(t, accountNumber, "150747.95")

	rolled, err := stack.timeDeposits.Rollover(ctx, service.RolloverRequest{
		AccountNumber: accountNumber,
		AsOf:          time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		AuthorizedBy:  "teller-1",
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("751.67").Equal(rolled.Detail.Terms.Interest))
	assert.Equal(t, models.AccountStatusActive, rolled.Detail.Account.Status)

	rollovers, err := stack.timeDeposits.ListRollovers(ctx, accountNumber)
	require.NoError(t, err)
	assert.Len(t, rollovers, 1)

	detail, err := stack.timeDeposits.GetTimeDeposit(ctx, accountNumber)
	require.NoError(t, err)
	require.NotNil(t, detail.CoHolder)
	assert.Equal(t, "Jose Reyes", detail.CoHolder.Name)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), detail.Terms.MaturityDate.UTC())
}

func TestLoan_RepaymentFromSavings(t *testing.T) {
	stack := newLedgerStack(t)
	ctx := context.Background()

	savings := stack.open(t, 807, models.ProductRegularSavings, "5000.00")

	loan, err := stack.loans.CreateLoan(ctx, service.CreateLoanRequest{
		MemberID:           807,
		Principal:          decimal.NewFromInt(12000),
		AnnualInterestRate: decimal.NewFromInt(12),
		TermMonths:         12,
		DisbursedDate:      time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		AuthorizedBy:       "officer-1",
	})
	require.NoError(t, err)
	require.Len(t, loan.Installments, 12)

	first := loan.Installments[0]
	result, err := stack.loans.ApplyRepayment(ctx, service.RepaymentRequest{
		InstallmentID:       first.ID,
		AmountPaid:          first.AmortizationAmount,
		Method:              models.RepaymentMethodSavingsDebit,
		SourceAccountNumber: savings.AccountNumber,
		AuthorizedBy:        "teller-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentStatusPaid, result.InstallmentStatus)
	assert.True(t, decimal.RequireFromString("10933.81").Equal(result.LoanBalance))
	assert.NotEmpty(t, result.SavingsTransactionNumber)
	assert.Regexp(t, `^VCH-`, result.VoucherNumber)

	stack.assertBalance(t, savings.AccountNumber, "3933.81")

	repayments, err := stack.loans.ListRepayments(ctx, loan.Loan.ID)
	require.NoError(t, err)
	require.Len(t, repayments, 1)
	assert.Equal(t, models.RepaymentMethodSavingsDebit, repayments[0].Method)
}
