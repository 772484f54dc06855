package service

import (
	"context"
	"fmt"
	"testing"

	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// decEq matches a decimal argument by value rather than representation
func decEq(s string) any {
	want := dec(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), append([]any{"expected %s, got %s", expected, actual.String()}, msgAndArgs...)...)
}

// testUnit bundles a mocked unit of work with every repository wired in.
// Events land on a real TransactionalBus so tests can inspect what was queued.
type testUnit struct {
	factory      *MockUnitOfWorkFactory
	uow          *MockUnitOfWork
	accounts     *MockAccountRepository
	transactions *MockTransactionRepository
	tiers        *MockRateTierRepository
	deposits     *MockTimeDepositRepository
	loans        *MockLoanRepository
	installments *MockInstallmentRepository
	repayments   *MockLoanRepaymentRepository
	refs         *MockReferenceGenerator
	bus          *events.TransactionalBus
}

func newTestUnit(ctx context.Context) *testUnit {
	u := &testUnit{
		factory:      new(MockUnitOfWorkFactory),
		uow:          new(MockUnitOfWork),
		accounts:     new(MockAccountRepository),
		transactions: new(MockTransactionRepository),
		tiers:        new(MockRateTierRepository),
		deposits:     new(MockTimeDepositRepository),
		loans:        new(MockLoanRepository),
		installments: new(MockInstallmentRepository),
		repayments:   new(MockLoanRepaymentRepository),
		refs:         new(MockReferenceGenerator),
		bus:          events.NewTransactionalBus(events.NewBus()),
	}

	u.uow.SetLedgerRepositories(u.accounts, u.transactions, u.bus)
	u.uow.SetTimeDepositRepositories(u.tiers, u.deposits)
	u.uow.SetLoanRepositories(u.loans, u.installments, u.repayments)

	u.factory.On("Create").Return(u.uow)
	u.uow.On("Begin", ctx).Return(nil)
	u.uow.On("Rollback").Return(nil)
	return u
}

func (u *testUnit) expectCommit() {
	u.uow.On("Commit").Return(nil)
}

// expectPosting accepts any ledger insert and the balance write that follows it
func (u *testUnit) expectPosting(ctx context.Context, accountID int64, balanceAfter string) {
	u.transactions.On("Insert", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.AccountID == accountID
	})).Return(true, nil).Once()
	u.accounts.On("UpdateBalance", ctx, accountID, decEq(balanceAfter)).Return(nil).Once()
}

func (u *testUnit) assertExpectations(t *testing.T) {
	t.Helper()
	u.factory.AssertExpectations(t)
	u.uow.AssertExpectations(t)
	u.accounts.AssertExpectations(t)
	u.transactions.AssertExpectations(t)
	u.tiers.AssertExpectations(t)
	u.deposits.AssertExpectations(t)
	u.loans.AssertExpectations(t)
	u.installments.AssertExpectations(t)
	u.repayments.AssertExpectations(t)
	u.refs.AssertExpectations(t)
}

// pendingOfType returns the queued events of type T
func pendingOfType[T events.Event](bus *events.TransactionalBus) []T {
	var matched []T
	for _, e := range bus.Pending() {
		if typed, ok := e.(T); ok {
			matched = append(matched, typed)
		}
	}
	return matched
}

func savingsAccount(id int64, balance string) *models.Account {
	return &models.Account{
		ID:            id,
		AccountNumber: fmt.Sprintf("RS-1700000000000-%06d", id),
		MemberID:      42,
		Product:       models.ProductRegularSavings,
		Balance:       dec(balance),
		Status:        models.AccountStatusActive,
	}
}
