package service

import (
	"context"
	"time"

	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (bool, error) {
	args := m.Called(ctx, account)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) GetByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByNumberForUpdate(ctx context.Context, accountNumber string) (*models.Account, error) {
	args := m.Called(ctx, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetOpenByMemberAndProduct(ctx context.Context, memberID int64, product models.Product) (*models.Account, error) {
	args := m.Called(ctx, memberID, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) ListByMember(ctx context.Context, memberID int64) ([]*models.Account, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	args := m.Called(ctx, id, balance)
	return args.Error(0)
}

func (m *MockAccountRepository) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Insert(ctx context.Context, txn *models.Transaction) (bool, error) {
	args := m.Called(ctx, txn)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) GetByNumber(ctx context.Context, transactionNumber string) (*models.Transaction, error) {
	args := m.Called(ctx, transactionNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) SumByAccount(ctx context.Context, accountID int64) (decimal.Decimal, int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(decimal.Decimal), args.Get(1).(int64), args.Error(2)
}

// MockRateTierRepository is a mock implementation of RateTierRepository
type MockRateTierRepository struct {
	mock.Mock
}

func (m *MockRateTierRepository) ListByProduct(ctx context.Context, product models.Product) ([]*models.InterestRateTier, error) {
	args := m.Called(ctx, product)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InterestRateTier), args.Error(1)
}

func (m *MockRateTierRepository) Replace(ctx context.Context, product models.Product, tiers []*models.InterestRateTier) error {
	args := m.Called(ctx, product, tiers)
	return args.Error(0)
}

// MockTimeDepositRepository is a mock implementation of TimeDepositRepository
type MockTimeDepositRepository struct {
	mock.Mock
}

func (m *MockTimeDepositRepository) Create(ctx context.Context, td *models.TimeDeposit) error {
	args := m.Called(ctx, td)
	return args.Error(0)
}

func (m *MockTimeDepositRepository) GetByAccountID(ctx context.Context, accountID int64) (*models.TimeDeposit, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TimeDeposit), args.Error(1)
}

func (m *MockTimeDepositRepository) UpdateTerms(ctx context.Context, td *models.TimeDeposit) error {
	args := m.Called(ctx, td)
	return args.Error(0)
}

func (m *MockTimeDepositRepository) CreateCoHolder(ctx context.Context, coHolder *models.CoHolder) error {
	args := m.Called(ctx, coHolder)
	return args.Error(0)
}

func (m *MockTimeDepositRepository) GetCoHolder(ctx context.Context, accountID int64) (*models.CoHolder, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CoHolder), args.Error(1)
}

func (m *MockTimeDepositRepository) InsertRollover(ctx context.Context, rollover *models.TimeDepositRollover) error {
	args := m.Called(ctx, rollover)
	return args.Error(0)
}

func (m *MockTimeDepositRepository) ListRollovers(ctx context.Context, accountID int64) ([]*models.TimeDepositRollover, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TimeDepositRollover), args.Error(1)
}

func (m *MockTimeDepositRepository) ListDueForMaturity(ctx context.Context, asOf time.Time) ([]string, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockLoanRepository is a mock implementation of LoanRepository
type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *models.Loan) (bool, error) {
	args := m.Called(ctx, loan)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id int64) (*models.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) ListByMember(ctx context.Context, memberID int64) ([]*models.Loan, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Loan), args.Error(1)
}

func (m *MockLoanRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, status models.LoanStatus) error {
	args := m.Called(ctx, id, balance, status)
	return args.Error(0)
}

// MockInstallmentRepository is a mock implementation of InstallmentRepository
type MockInstallmentRepository struct {
	mock.Mock
}

func (m *MockInstallmentRepository) CreateBatch(ctx context.Context, installments []*models.Installment) error {
	args := m.Called(ctx, installments)
	return args.Error(0)
}

func (m *MockInstallmentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Installment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Installment), args.Error(1)
}

func (m *MockInstallmentRepository) ListByLoan(ctx context.Context, loanID int64) ([]*models.Installment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Installment), args.Error(1)
}

func (m *MockInstallmentRepository) UpdatePayment(ctx context.Context, id int64, amountRepaid decimal.Decimal, status models.InstallmentStatus) error {
	args := m.Called(ctx, id, amountRepaid, status)
	return args.Error(0)
}

// MockLoanRepaymentRepository is a mock implementation of LoanRepaymentRepository
type MockLoanRepaymentRepository struct {
	mock.Mock
}

func (m *MockLoanRepaymentRepository) Insert(ctx context.Context, repayment *models.LoanRepayment) (bool, error) {
	args := m.Called(ctx, repayment)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepaymentRepository) ListByLoan(ctx context.Context, loanID int64) ([]*models.LoanRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LoanRepayment), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockReferenceGenerator is a mock implementation of ReferenceGenerator
type MockReferenceGenerator struct {
	mock.Mock
}

func (m *MockReferenceGenerator) NewTransactionNumber() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockReferenceGenerator) NewAccountNumber(product models.Product) string {
	args := m.Called(product)
	return args.String(0)
}

func (m *MockReferenceGenerator) NewLoanNumber() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockReferenceGenerator) NewVoucherNumber() string {
	args := m.Called()
	return args.String(0)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return whatever was registered with the setters; nil ones are left unset.
type MockUnitOfWork struct {
	mock.Mock
	accountRepo       AccountRepository
	transactionRepo   TransactionRepository
	rateTierRepo      RateTierRepository
	timeDepositRepo   TimeDepositRepository
	loanRepo          LoanRepository
	installmentRepo   InstallmentRepository
	loanRepaymentRepo LoanRepaymentRepository
	eventBus          EventPublisher
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// SetLedgerRepositories registers the account and transaction repositories and the event bus
func (m *MockUnitOfWork) SetLedgerRepositories(accounts AccountRepository, transactions TransactionRepository, bus EventPublisher) {
	m.accountRepo = accounts
	m.transactionRepo = transactions
	m.eventBus = bus
}

// SetTimeDepositRepositories registers the rate tier and time deposit repositories
func (m *MockUnitOfWork) SetTimeDepositRepositories(tiers RateTierRepository, deposits TimeDepositRepository) {
	m.rateTierRepo = tiers
	m.timeDepositRepo = deposits
}

// SetLoanRepositories registers the loan, installment and repayment repositories
func (m *MockUnitOfWork) SetLoanRepositories(loans LoanRepository, installments InstallmentRepository, repayments LoanRepaymentRepository) {
	m.loanRepo = loans
	m.installmentRepo = installments
	m.loanRepaymentRepo = repayments
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository {
	return m.accountRepo
}

func (m *MockUnitOfWork) TransactionRepository() TransactionRepository {
	return m.transactionRepo
}

func (m *MockUnitOfWork) RateTierRepository() RateTierRepository {
	return m.rateTierRepo
}

func (m *MockUnitOfWork) TimeDepositRepository() TimeDepositRepository {
	return m.timeDepositRepo
}

func (m *MockUnitOfWork) LoanRepository() LoanRepository {
	return m.loanRepo
}

func (m *MockUnitOfWork) InstallmentRepository() InstallmentRepository {
	return m.installmentRepo
}

func (m *MockUnitOfWork) LoanRepaymentRepository() LoanRepaymentRepository {
	return m.loanRepaymentRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
