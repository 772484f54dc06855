package service

import (
	"context"
	"fmt"

	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// OpenAccountRequest opens a savings, share capital or Kalinga account
type OpenAccountRequest struct {
	MemberID       int64
	Product        models.Product
	InitialDeposit decimal.Decimal
	AuthorizedBy   string
}

// Validate checks the request before any state is touched
func (r OpenAccountRequest) Validate() error {
	if r.MemberID <= 0 {
		return fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if !r.Product.IsValid() {
		return fmt.Errorf("%w: unknown product %q", ErrInvalidInput, r.Product)
	}
	if r.Product == models.ProductTimeDeposit {
		return fmt.Errorf("%w: time deposits are opened through the time deposit service", ErrInvalidInput)
	}
	if r.InitialDeposit.IsNegative() || !isCents(r.InitialDeposit) {
		return fmt.Errorf("%w: initial deposit must be a non-negative amount in cents", ErrInvalidInput)
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	return nil
}

// AccountService opens and closes member accounts
type AccountService struct {
	uowFactory UnitOfWorkFactory
	refs       ReferenceGenerator
}

// NewAccountService creates a new account service
func NewAccountService(uowFactory UnitOfWorkFactory, refs ReferenceGenerator) *AccountService {
	return &AccountService{
		uowFactory: uowFactory,
		refs:       refs,
	}
}

// OpenAccount creates the account and posts the initial deposit, if any, in one unit
func (s *AccountService) OpenAccount(ctx context.Context, req OpenAccountRequest) (*models.Account, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := createAccount(ctx, uow, s.refs, req.MemberID, req.Product, models.AccountStatusActive)
	if err != nil {
		return nil, err
	}

	if req.InitialDeposit.IsPositive() {
		if _, err := PostTransaction(ctx, uow, s.refs, Posting{
			Account:      account,
			Type:         models.TransactionTypeDeposit,
			Amount:       req.InitialDeposit,
			AuthorizedBy: req.AuthorizedBy,
			Remarks:      "initial deposit",
		}); err != nil {
			return nil, err
		}
	}

	uow.EventBus().Publish(events.AccountOpenedEvent{
		AccountID:      account.ID,
		AccountNumber:  account.AccountNumber,
		MemberID:       account.MemberID,
		Product:        account.Product,
		InitialDeposit: req.InitialDeposit,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account": account.AccountNumber,
		"member":  account.MemberID,
		"product": account.Product,
	}).Info("Opened account")

	return account, nil
}

// CloseAccount closes an account whose balance is zero
func (s *AccountService) CloseAccount(ctx context.Context, accountNumber, authorizedBy string) (*models.Account, error) {
	if authorizedBy == "" {
		return nil, fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := lockLedgerAccount(ctx, uow, accountNumber)
	if err != nil {
		return nil, err
	}
	if account.IsClosed() {
		return nil, fmt.Errorf("%w: %s", ErrAccountClosed, account.AccountNumber)
	}
	if !account.Balance.IsZero() {
		return nil, fmt.Errorf("%w: %s still holds %s", ErrConflictingState, account.AccountNumber, account.Balance.StringFixed(2))
	}

	if err := uow.AccountRepository().UpdateStatus(ctx, account.ID, models.AccountStatusClosed); err != nil {
		return nil, persistenceError("failed to close account", err)
	}
	account.Status = models.AccountStatusClosed

	uow.EventBus().Publish(events.AccountClosedEvent{
		AccountNumber: account.AccountNumber,
		MemberID:      account.MemberID,
		Product:       account.Product,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account":      account.AccountNumber,
		"authorizedBy": authorizedBy,
	}).Info("Closed account")

	return account, nil
}

// ListMemberAccounts returns every account a member holds
func (s *AccountService) ListMemberAccounts(ctx context.Context, memberID int64) ([]*models.Account, error) {
	if memberID <= 0 {
		return nil, fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	accounts, err := uow.AccountRepository().ListByMember(ctx, memberID)
	if err != nil {
		return nil, persistenceError("failed to list accounts", err)
	}
	return accounts, nil
}

// createAccount inserts a zero-balance account under a fresh account number.
// Products limited to one open account per member are checked first.
func createAccount(ctx context.Context, uow UnitOfWork, refs ReferenceGenerator, memberID int64, product models.Product, status models.AccountStatus) (*models.Account, error) {
	if product.SinglePerMember() {
		existing, err := uow.AccountRepository().GetOpenByMemberAndProduct(ctx, memberID, product)
		if err != nil {
			return nil, persistenceError("failed to check existing accounts", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: member %d already holds %s", ErrDuplicateAccount, memberID, existing.AccountNumber)
		}
	}

	account := &models.Account{
		MemberID: memberID,
		Product:  product,
		Balance:  decimal.Zero,
		Status:   status,
	}

	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		account.AccountNumber = refs.NewAccountNumber(product)

		created, err := uow.AccountRepository().Create(ctx, account)
		if err != nil {
			return nil, persistenceError("failed to create account", err)
		}
		if created {
			return account, nil
		}
	}
	return nil, ErrReferenceExhausted
}
