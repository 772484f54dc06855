package service

import (
	"context"
	"time"

	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
)

// AccountRepository defines the interface for account data access.
// Lookups return (nil, nil) when no row matches.
type AccountRepository interface {
	// Create inserts a new account, filling ID and timestamps. It returns
	// false without error when the account number is already taken.
	Create(ctx context.Context, account *models.Account) (bool, error)

	// GetByNumber retrieves an account without locking it
	GetByNumber(ctx context.Context, accountNumber string) (*models.Account, error)

	// GetByNumberForUpdate retrieves and row-locks an account until the transaction ends
	GetByNumberForUpdate(ctx context.Context, accountNumber string) (*models.Account, error)

	// GetByIDForUpdate retrieves and row-locks an account by ID
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error)

	// GetOpenByMemberAndProduct returns the member's open account for a product
	GetOpenByMemberAndProduct(ctx context.Context, memberID int64, product models.Product) (*models.Account, error)

	// ListByMember returns every account of a member, oldest first
	ListByMember(ctx context.Context, memberID int64) ([]*models.Account, error)

	// UpdateBalance sets the balance and touches updated_at
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error

	// UpdateStatus sets the lifecycle status and touches updated_at
	UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error
}

// TransactionRepository is the append-only ledger store
type TransactionRepository interface {
	// Insert appends a record, filling ID and CreatedAt. It returns false
	// without error when the transaction number is already taken.
	Insert(ctx context.Context, txn *models.Transaction) (bool, error)

	// GetByNumber retrieves a single record
	GetByNumber(ctx context.Context, transactionNumber string) (*models.Transaction, error)

	// ListByAccount returns the newest records first, at most limit (0 for all)
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Transaction, error)

	// SumByAccount returns the signed total and count of an account's records
	SumByAccount(ctx context.Context, accountID int64) (decimal.Decimal, int64, error)
}

// RateTierRepository reads the interest rate tables
type RateTierRepository interface {
	// ListByProduct returns every tier of a product in storage order
	ListByProduct(ctx context.Context, product models.Product) ([]*models.InterestRateTier, error)

	// Replace swaps a product's whole table
	Replace(ctx context.Context, product models.Product, tiers []*models.InterestRateTier) error
}

// TimeDepositRepository stores time deposit terms, co-holders and rollover history
type TimeDepositRepository interface {
	Create(ctx context.Context, td *models.TimeDeposit) error
	GetByAccountID(ctx context.Context, accountID int64) (*models.TimeDeposit, error)
	UpdateTerms(ctx context.Context, td *models.TimeDeposit) error

	CreateCoHolder(ctx context.Context, coHolder *models.CoHolder) error
	GetCoHolder(ctx context.Context, accountID int64) (*models.CoHolder, error)

	InsertRollover(ctx context.Context, rollover *models.TimeDepositRollover) error
	ListRollovers(ctx context.Context, accountID int64) ([]*models.TimeDepositRollover, error)

	// ListDueForMaturity returns account numbers of active deposits maturing on or before asOf
	ListDueForMaturity(ctx context.Context, asOf time.Time) ([]string, error)
}

// LoanRepository defines the interface for loan data access
type LoanRepository interface {
	// Create inserts a loan; false when the loan number is already taken
	Create(ctx context.Context, loan *models.Loan) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Loan, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Loan, error)
	ListByMember(ctx context.Context, memberID int64) ([]*models.Loan, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, status models.LoanStatus) error
}

// InstallmentRepository stores persisted amortization schedules
type InstallmentRepository interface {
	// CreateBatch inserts a whole schedule, filling IDs
	CreateBatch(ctx context.Context, installments []*models.Installment) error
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Installment, error)
	ListByLoan(ctx context.Context, loanID int64) ([]*models.Installment, error)
	UpdatePayment(ctx context.Context, id int64, amountRepaid decimal.Decimal, status models.InstallmentStatus) error
}

// LoanRepaymentRepository is the append-only repayment log
type LoanRepaymentRepository interface {
	// Insert appends a repayment; false when the transaction number is already taken
	Insert(ctx context.Context, repayment *models.LoanRepayment) (bool, error)
	ListByLoan(ctx context.Context, loanID int64) ([]*models.LoanRepayment, error)
}

// ReferenceGenerator issues opaque identifiers
type ReferenceGenerator interface {
	NewTransactionNumber() string
	NewAccountNumber(product models.Product) string
	NewLoanNumber() string
	NewVoucherNumber() string
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and releases queued events
	Commit() error

	// Rollback rolls back the transaction and drops queued events
	Rollback() error

	// Repository getters
	AccountRepository() AccountRepository
	TransactionRepository() TransactionRepository
	RateTierRepository() RateTierRepository
	TimeDepositRepository() TimeDepositRepository
	LoanRepository() LoanRepository
	InstallmentRepository() InstallmentRepository
	LoanRepaymentRepository() LoanRepaymentRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
