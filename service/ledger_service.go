package service

import (
	"context"
	"fmt"
	"time"

	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// TransactionRequest is a single deposit, withdrawal or interest credit.
// Amount is always positive; the type supplies the sign.
type TransactionRequest struct {
	AccountNumber  string
	Type           models.TransactionType
	Amount         decimal.Decimal
	AuthorizedBy   string
	MinimumBalance decimal.Decimal
	Remarks        string
	Metadata       map[string]any
}

// Validate checks the request before any state is touched
func (r TransactionRequest) Validate() error {
	if r.AccountNumber == "" {
		return fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}
	switch r.Type {
	case models.TransactionTypeDeposit, models.TransactionTypeWithdrawal, models.TransactionTypeInterest:
	default:
		return fmt.Errorf("%w: unsupported transaction type %q", ErrInvalidInput, r.Type)
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !isCents(r.Amount) {
		return fmt.Errorf("%w: amount %s has more than two decimal places", ErrInvalidInput, r.Amount)
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	return nil
}

func (r TransactionRequest) signedAmount() decimal.Decimal {
	if r.Type == models.TransactionTypeWithdrawal {
		return r.Amount.Neg()
	}
	return r.Amount
}

// TransactionResult reports a committed posting
type TransactionResult struct {
	TransactionNumber string
	AccountNumber     string
	Type              models.TransactionType
	Amount            decimal.Decimal // signed
	PreviousBalance   decimal.Decimal
	NewBalance        decimal.Decimal
	Timestamp         time.Time
}

func newTransactionResult(txn *models.Transaction) *TransactionResult {
	return &TransactionResult{
		TransactionNumber: txn.TransactionNumber,
		AccountNumber:     txn.AccountNumber,
		Type:              txn.Type,
		Amount:            txn.Amount,
		PreviousBalance:   txn.BalanceBefore,
		NewBalance:        txn.BalanceAfter,
		Timestamp:         txn.CreatedAt,
	}
}

// TransferRequest moves Amount between two accounts atomically
type TransferRequest struct {
	FromAccountNumber string
	ToAccountNumber   string
	Amount            decimal.Decimal
	AuthorizedBy      string
	MinimumBalance    decimal.Decimal
	Remarks           string
}

// Validate checks the request before any state is touched
func (r TransferRequest) Validate() error {
	if r.FromAccountNumber == "" || r.ToAccountNumber == "" {
		return fmt.Errorf("%w: source and target account numbers are required", ErrInvalidInput)
	}
	if r.FromAccountNumber == r.ToAccountNumber {
		return fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidInput)
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !isCents(r.Amount) {
		return fmt.Errorf("%w: amount %s has more than two decimal places", ErrInvalidInput, r.Amount)
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	return nil
}

// TransferResult reports both legs of a committed transfer
type TransferResult struct {
	Debit  *TransactionResult
	Credit *TransactionResult
}

// ReconciliationReport compares a stored balance with its ledger history
type ReconciliationReport struct {
	AccountNumber    string
	StoredBalance    decimal.Decimal
	LedgerBalance    decimal.Decimal
	TransactionCount int64
	Balanced         bool
}

// LedgerService mutates savings, share capital and Kalinga balances
type LedgerService struct {
	uowFactory   UnitOfWorkFactory
	refs         ReferenceGenerator
	savingsFloor decimal.Decimal
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory, refs ReferenceGenerator) *LedgerService {
	return &LedgerService{
		uowFactory: uowFactory,
		refs:       refs,
	}
}

// SetSavingsMinimumBalance sets the floor applied to regular savings debits
// whose request carries no floor of its own
func (s *LedgerService) SetSavingsMinimumBalance(floor decimal.Decimal) {
	s.savingsFloor = floor
}

// ApplyTransaction posts one deposit, withdrawal or interest credit. The
// account row stays locked from the balance read until commit, so concurrent
// callers on the same account serialize.
func (s *LedgerService) ApplyTransaction(ctx context.Context, req TransactionRequest) (*TransactionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := lockLedgerAccount(ctx, uow, req.AccountNumber)
	if err != nil {
		return nil, err
	}

	txn, err := PostTransaction(ctx, uow, s.refs, Posting{
		Account:        account,
		Type:           req.Type,
		Amount:         req.signedAmount(),
		AuthorizedBy:   req.AuthorizedBy,
		MinimumBalance: debitFloor(account, req.MinimumBalance, s.savingsFloor),
		Remarks:        req.Remarks,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account":     account.AccountNumber,
		"transaction": txn.TransactionNumber,
		"type":        txn.Type,
		"amount":      txn.Amount.StringFixed(2),
		"balance":     txn.BalanceAfter.StringFixed(2),
	}).Info("Posted ledger transaction")

	return newTransactionResult(txn), nil
}

// Transfer debits one account and credits another in a single unit. Both
// rows are locked in ascending ID order so opposing transfers cannot deadlock.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	accounts := uow.AccountRepository()

	fromRef, err := accounts.GetByNumber(ctx, req.FromAccountNumber)
	if err != nil {
		return nil, persistenceError("failed to get source account", err)
	}
	if fromRef == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, req.FromAccountNumber)
	}
	toRef, err := accounts.GetByNumber(ctx, req.ToAccountNumber)
	if err != nil {
		return nil, persistenceError("failed to get target account", err)
	}
	if toRef == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, req.ToAccountNumber)
	}

	firstID, secondID := fromRef.ID, toRef.ID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}
	locked := make(map[int64]*models.Account, 2)
	for _, id := range []int64{firstID, secondID} {
		account, err := accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, persistenceError("failed to lock account", err)
		}
		if account == nil {
			return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
		}
		if err := requireLedgerProduct(account); err != nil {
			return nil, err
		}
		locked[id] = account
	}
	from, to := locked[fromRef.ID], locked[toRef.ID]

	debit, err := PostTransaction(ctx, uow, s.refs, Posting{
		Account:                   from,
		Type:                      models.TransactionTypeTransfer,
		Amount:                    req.Amount.Neg(),
		AuthorizedBy:              req.AuthorizedBy,
		MinimumBalance:            debitFloor(from, req.MinimumBalance, s.savingsFloor),
		CounterpartyAccountNumber: to.AccountNumber,
		Remarks:                   req.Remarks,
	})
	if err != nil {
		return nil, err
	}

	credit, err := PostTransaction(ctx, uow, s.refs, Posting{
		Account:                   to,
		Type:                      models.TransactionTypeTransfer,
		Amount:                    req.Amount,
		AuthorizedBy:              req.AuthorizedBy,
		CounterpartyAccountNumber: from.AccountNumber,
		Remarks:                   req.Remarks,
		Metadata:                  map[string]any{"debit_transaction_number": debit.TransactionNumber},
	})
	if err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.TransferCompletedEvent{
		FromAccountNumber:       from.AccountNumber,
		ToAccountNumber:         to.AccountNumber,
		Amount:                  req.Amount,
		DebitTransactionNumber:  debit.TransactionNumber,
		CreditTransactionNumber: credit.TransactionNumber,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"from":   from.AccountNumber,
		"to":     to.AccountNumber,
		"amount": req.Amount.StringFixed(2),
	}).Info("Transfer completed")

	return &TransferResult{
		Debit:  newTransactionResult(debit),
		Credit: newTransactionResult(credit),
	}, nil
}

// GetAccount returns the current state of an account
func (s *LedgerService) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	if accountNumber == "" {
		return nil, fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByNumber(ctx, accountNumber)
	if err != nil {
		return nil, persistenceError("failed to get account", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
	}
	return account, nil
}

// GetTransactions returns an account's history, newest first. A limit of
// zero returns everything.
func (s *LedgerService) GetTransactions(ctx context.Context, accountNumber string, limit int) ([]*models.Transaction, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative", ErrInvalidInput)
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByNumber(ctx, accountNumber)
	if err != nil {
		return nil, persistenceError("failed to get account", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
	}

	txns, err := uow.TransactionRepository().ListByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, persistenceError("failed to list transactions", err)
	}
	return txns, nil
}

// Reconcile recomputes an account's balance from its ledger. The account
// row is locked while summing so no posting can land in between.
func (s *LedgerService) Reconcile(ctx context.Context, accountNumber string) (*ReconciliationReport, error) {
	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByNumberForUpdate(ctx, accountNumber)
	if err != nil {
		return nil, persistenceError("failed to lock account", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
	}

	sum, count, err := uow.TransactionRepository().SumByAccount(ctx, account.ID)
	if err != nil {
		return nil, persistenceError("failed to sum transactions", err)
	}

	report := &ReconciliationReport{
		AccountNumber:    account.AccountNumber,
		StoredBalance:    account.Balance,
		LedgerBalance:    sum,
		TransactionCount: count,
		Balanced:         sum.Equal(account.Balance),
	}
	if !report.Balanced {
		log.WithFields(log.Fields{
			"account": account.AccountNumber,
			"stored":  account.Balance.StringFixed(2),
			"ledger":  sum.StringFixed(2),
		}).Warn("Account balance does not match ledger")
	}
	return report, nil
}

// lockLedgerAccount locks an account that plain ledger postings may touch
func lockLedgerAccount(ctx context.Context, uow UnitOfWork, accountNumber string) (*models.Account, error) {
	account, err := uow.AccountRepository().GetByNumberForUpdate(ctx, accountNumber)
	if err != nil {
		return nil, persistenceError("failed to lock account", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountNumber)
	}
	if err := requireLedgerProduct(account); err != nil {
		return nil, err
	}
	return account, nil
}

// requireLedgerProduct rejects time deposits, whose balance only moves
// through their lifecycle operations.
func requireLedgerProduct(account *models.Account) error {
	if account.Product == models.ProductTimeDeposit {
		return fmt.Errorf("%w: %s is a time deposit", ErrConflictingState, account.AccountNumber)
	}
	return nil
}
