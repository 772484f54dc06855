package service

import (
	"context"
	"fmt"
	"time"

	"coopledger/domain/services"
	"coopledger/events"
	"coopledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// SweepAuthorizer is recorded on postings made by the maturity sweep
const SweepAuthorizer = "system:maturity-sweep"

// CoHolderRequest names an optional second holder
type CoHolderRequest struct {
	Name          string
	Relationship  string
	ContactNumber string
}

// OpenTimeDepositRequest places a new time deposit
type OpenTimeDepositRequest struct {
	MemberID     int64
	Principal    decimal.Decimal
	TermMonths   int
	OpenDate     time.Time // defaults to today
	AuthorizedBy string
	CoHolder     *CoHolderRequest
}

// Validate checks the request before any state is touched
func (r OpenTimeDepositRequest) Validate() error {
	if r.MemberID <= 0 {
		return fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if !r.Principal.IsPositive() {
		return ErrInvalidAmount
	}
	if !isCents(r.Principal) {
		return fmt.Errorf("%w: principal %s has more than two decimal places", ErrInvalidInput, r.Principal)
	}
	if r.TermMonths <= 0 {
		return fmt.Errorf("%w: term must be positive", ErrInvalidInput)
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	if r.CoHolder != nil && r.CoHolder.Name == "" {
		return fmt.Errorf("%w: co-holder name is required", ErrInvalidInput)
	}
	return nil
}

// RolloverRequest places a matured deposit for a further term. Zero or
// invalid optional fields fall back to the deposit's current figures.
type RolloverRequest struct {
	AccountNumber  string
	TermMonths     int                 // 0 keeps the current term
	InterestEarned decimal.NullDecimal // defaults to the term's computed interest
	RolloverAmount decimal.NullDecimal // defaults to balance plus uncredited interest
	AsOf           time.Time           // defaults to today
	AuthorizedBy   string
}

// Validate checks the request before any state is touched
func (r RolloverRequest) Validate() error {
	if r.AccountNumber == "" {
		return fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}
	if r.TermMonths < 0 {
		return fmt.Errorf("%w: term cannot be negative", ErrInvalidInput)
	}
	if r.InterestEarned.Valid && (r.InterestEarned.Decimal.IsNegative() || !isCents(r.InterestEarned.Decimal)) {
		return fmt.Errorf("%w: interest earned must be a non-negative amount in cents", ErrInvalidInput)
	}
	if r.RolloverAmount.Valid && (!r.RolloverAmount.Decimal.IsPositive() || !isCents(r.RolloverAmount.Decimal)) {
		return fmt.Errorf("%w: rollover amount must be a positive amount in cents", ErrInvalidInput)
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	return nil
}

// EarlyWithdrawRequest takes money out before maturity. Without Amount the
// whole balance is withdrawn and the deposit ends.
type EarlyWithdrawRequest struct {
	AccountNumber string
	Amount        decimal.NullDecimal
	AsOf          time.Time // defaults to today
	AuthorizedBy  string
}

// Validate checks the request before any state is touched
func (r EarlyWithdrawRequest) Validate() error {
	if r.AccountNumber == "" {
		return fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}
	if r.Amount.Valid {
		if !r.Amount.Decimal.IsPositive() {
			return ErrInvalidAmount
		}
		if !isCents(r.Amount.Decimal) {
			return fmt.Errorf("%w: amount %s has more than two decimal places", ErrInvalidInput, r.Amount.Decimal)
		}
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	return nil
}

// TimeDepositResult is the deposit after an operation plus the postings it made
type TimeDepositResult struct {
	Detail       *models.TimeDepositDetail
	Transactions []*TransactionResult
	Rollover     *models.TimeDepositRollover
}

// SweepResult summarizes one maturity sweep
type SweepResult struct {
	Due     int
	Matured int
	Failed  int
}

// TimeDepositService runs the time deposit lifecycle
type TimeDepositService struct {
	uowFactory UnitOfWorkFactory
	refs       ReferenceGenerator
	rates      *services.InterestRateService
	now        func() time.Time
}

// NewTimeDepositService creates a new time deposit service
func NewTimeDepositService(uowFactory UnitOfWorkFactory, refs ReferenceGenerator, rates *services.InterestRateService) *TimeDepositService {
	return &TimeDepositService{
		uowFactory: uowFactory,
		refs:       refs,
		rates:      rates,
		now:        time.Now,
	}
}

// Open resolves the rate, creates the account and terms, and funds the deposit in one unit
func (s *TimeDepositService) Open(ctx context.Context, req OpenTimeDepositRequest) (*TimeDepositResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	openDate := s.dateOrToday(req.OpenDate)

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	rate, err := s.resolveRate(ctx, uow, req.Principal, req.TermMonths)
	if err != nil {
		return nil, err
	}
	terms := s.rates.ComputeTimeDepositTerms(req.Principal, rate, req.TermMonths, openDate)

	account, err := createAccount(ctx, uow, s.refs, req.MemberID, models.ProductTimeDeposit, models.AccountStatusPreMature)
	if err != nil {
		return nil, err
	}

	td := &models.TimeDeposit{
		AccountID:    account.ID,
		Principal:    terms.Principal,
		TermMonths:   terms.TermMonths,
		InterestRate: terms.Rate,
		Interest:     terms.Interest,
		Payout:       terms.Payout,
		OpenDate:     terms.OpenDate,
		MaturityDate: terms.MaturityDate,
	}
	if err := uow.TimeDepositRepository().Create(ctx, td); err != nil {
		return nil, persistenceError("failed to create time deposit terms", err)
	}

	var coHolder *models.CoHolder
	if req.CoHolder != nil {
		coHolder = &models.CoHolder{
			AccountID:     account.ID,
			Name:          req.CoHolder.Name,
			Relationship:  req.CoHolder.Relationship,
			ContactNumber: req.CoHolder.ContactNumber,
		}
		if err := uow.TimeDepositRepository().CreateCoHolder(ctx, coHolder); err != nil {
			return nil, persistenceError("failed to record co-holder", err)
		}
	}

	deposit, err := PostTransaction(ctx, uow, s.refs, Posting{
		Account:      account,
		Type:         models.TransactionTypeDeposit,
		Amount:       req.Principal,
		AuthorizedBy: req.AuthorizedBy,
		Remarks:      "time deposit placement",
		Metadata: map[string]any{
			"term_months":   terms.TermMonths,
			"interest_rate": terms.Rate.String(),
			"maturity_date": terms.MaturityDate.Format(time.DateOnly),
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.setStatus(ctx, uow, account, models.AccountStatusActive); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.TimeDepositOpenedEvent{
		AccountNumber: account.AccountNumber,
		MemberID:      account.MemberID,
		Principal:     td.Principal,
		TermMonths:    td.TermMonths,
		InterestRate:  td.InterestRate,
		Interest:      td.Interest,
		MaturityDate:  td.MaturityDate,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account":  account.AccountNumber,
		"member":   account.MemberID,
		"rate":     td.InterestRate.String(),
		"interest": td.Interest.StringFixed(2),
		"maturity": td.MaturityDate.Format(time.DateOnly),
	}).Info("Opened time deposit")

	return &TimeDepositResult{
		Detail:       &models.TimeDepositDetail{Account: account, Terms: td, CoHolder: coHolder},
		Transactions: []*TransactionResult{newTransactionResult(deposit)},
	}, nil
}

// Mature credits the term's interest once the maturity date is reached
func (s *TimeDepositService) Mature(ctx context.Context, accountNumber string, asOf time.Time, authorizedBy string) (*TimeDepositResult, error) {
	if authorizedBy == "" {
		return nil, fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	asOf = s.dateOrToday(asOf)

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, td, err := s.lockDeposit(ctx, uow, accountNumber)
	if err != nil {
		return nil, err
	}

	switch account.Status {
	case models.AccountStatusActive:
	case models.AccountStatusMatured:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMatured, account.AccountNumber)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrConflictingState, account.AccountNumber, account.Status)
	}
	if !td.IsMatured(asOf) {
		return nil, fmt.Errorf("%w: %s matures on %s", ErrNotYetMatured, account.AccountNumber, td.MaturityDate.Format(time.DateOnly))
	}

	var postings []*TransactionResult
	if td.Interest.IsPositive() {
		txn, err := s.creditInterest(ctx, uow, account, td, authorizedBy)
		if err != nil {
			return nil, err
		}
		postings = append(postings, newTransactionResult(txn))
	}

	if err := s.setStatus(ctx, uow, account, models.AccountStatusMatured); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.TimeDepositMaturedEvent{
		AccountNumber:    account.AccountNumber,
		InterestCredited: td.Interest,
		Balance:          account.Balance,
		MaturityDate:     td.MaturityDate,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account":  account.AccountNumber,
		"interest": td.Interest.StringFixed(2),
		"balance":  account.Balance.StringFixed(2),
	}).Info("Time deposit matured")

	return &TimeDepositResult{
		Detail:       &models.TimeDepositDetail{Account: account, Terms: td},
		Transactions: postings,
	}, nil
}

// Rollover re-places a deposit that has reached maturity. The balance is
// brought to the new principal with a single signed Rollover posting.
func (s *TimeDepositService) Rollover(ctx context.Context, req RolloverRequest) (*TimeDepositResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	asOf := s.dateOrToday(req.AsOf)

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, td, err := s.lockDeposit(ctx, uow, req.AccountNumber)
	if err != nil {
		return nil, err
	}

	if account.Status != models.AccountStatusActive && account.Status != models.AccountStatusMatured {
		return nil, fmt.Errorf("%w: %s is %s", ErrConflictingState, account.AccountNumber, account.Status)
	}
	if !td.IsMatured(asOf) {
		return nil, fmt.Errorf("%w: %s matures on %s", ErrNotYetMatured, account.AccountNumber, td.MaturityDate.Format(time.DateOnly))
	}

	termMonths := req.TermMonths
	if termMonths == 0 {
		termMonths = td.TermMonths
	}

	interestEarned := td.Interest
	if req.InterestEarned.Valid {
		interestEarned = req.InterestEarned.Decimal
	}

	var newPrincipal decimal.Decimal
	switch {
	case req.RolloverAmount.Valid:
		newPrincipal = req.RolloverAmount.Decimal
	case account.Status == models.AccountStatusActive:
		// Interest for the ending term was never credited
		newPrincipal = account.Balance.Add(interestEarned)
	default:
		newPrincipal = account.Balance
	}
	if !newPrincipal.IsPositive() {
		return nil, fmt.Errorf("%w: rollover principal must be positive", ErrInvalidInput)
	}

	rate, err := s.resolveRate(ctx, uow, newPrincipal, termMonths)
	if err != nil {
		return nil, err
	}
	previousMaturity := td.MaturityDate
	terms := s.rates.ComputeTimeDepositTerms(newPrincipal, rate, termMonths, previousMaturity)

	txn, err := PostTransaction(ctx, uow, s.refs, Posting{
		Account:      account,
		Type:         models.TransactionTypeRollover,
		Amount:       newPrincipal.Sub(account.Balance),
		AuthorizedBy: req.AuthorizedBy,
		Remarks:      "time deposit rollover",
		Metadata: map[string]any{
			"interest_earned":        interestEarned.StringFixed(2),
			"previous_maturity_date": previousMaturity.Format(time.DateOnly),
			"new_maturity_date":      terms.MaturityDate.Format(time.DateOnly),
		},
	})
	if err != nil {
		return nil, err
	}

	rollover := &models.TimeDepositRollover{
		AccountID:            account.ID,
		PreviousMaturityDate: previousMaturity,
		NewMaturityDate:      terms.MaturityDate,
		InterestEarned:       interestEarned,
		RolloverAmount:       newPrincipal,
		TermMonths:           termMonths,
		InterestRate:         rate,
		TransactionNumber:    txn.TransactionNumber,
	}
	if err := uow.TimeDepositRepository().InsertRollover(ctx, rollover); err != nil {
		return nil, persistenceError("failed to record rollover", err)
	}

	td.Principal = terms.Principal
	td.TermMonths = terms.TermMonths
	td.InterestRate = terms.Rate
	td.Interest = terms.Interest
	td.Payout = terms.Payout
	td.OpenDate = terms.OpenDate
	td.MaturityDate = terms.MaturityDate
	if err := uow.TimeDepositRepository().UpdateTerms(ctx, td); err != nil {
		return nil, persistenceError("failed to update time deposit terms", err)
	}

	if err := s.setStatus(ctx, uow, account, models.AccountStatusActive); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.TimeDepositRolledOverEvent{
		AccountNumber:        account.AccountNumber,
		PreviousMaturityDate: previousMaturity,
		NewMaturityDate:      td.MaturityDate,
		InterestEarned:       interestEarned,
		RolloverAmount:       newPrincipal,
		InterestRate:         rate,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account":   account.AccountNumber,
		"principal": newPrincipal.StringFixed(2),
		"maturity":  td.MaturityDate.Format(time.DateOnly),
	}).Info("Rolled over time deposit")

	return &TimeDepositResult{
		Detail:       &models.TimeDepositDetail{Account: account, Terms: td},
		Transactions: []*TransactionResult{newTransactionResult(txn)},
		Rollover:     rollover,
	}, nil
}

// EarlyWithdraw withdraws before maturity. A full withdrawal ends the
// deposit; a partial one keeps it active and recomputes interest on the
// reduced principal at the original rate.
func (s *TimeDepositService) EarlyWithdraw(ctx context.Context, req EarlyWithdrawRequest) (*TimeDepositResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	asOf := s.dateOrToday(req.AsOf)

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, td, err := s.lockDeposit(ctx, uow, req.AccountNumber)
	if err != nil {
		return nil, err
	}

	if account.Status == models.AccountStatusMatured || td.IsMatured(asOf) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMatured, account.AccountNumber)
	}
	if account.Status != models.AccountStatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrConflictingState, account.AccountNumber, account.Status)
	}

	amount := account.Balance
	if req.Amount.Valid {
		amount = req.Amount.Decimal
	}
	full := amount.Equal(account.Balance)

	txn, err := PostTransaction(ctx, uow, s.refs, Posting{
		Account:      account,
		Type:         models.TransactionTypeWithdrawal,
		Amount:       amount.Neg(),
		AuthorizedBy: req.AuthorizedBy,
		Remarks:      "time deposit early withdrawal",
	})
	if err != nil {
		return nil, err
	}

	if full {
		if err := s.setStatus(ctx, uow, account, models.AccountStatusEarlyWithdrawn); err != nil {
			return nil, err
		}
	} else {
		td.Principal = account.Balance
		td.Interest = s.rates.TermInterest(td.Principal, td.InterestRate, td.TermMonths)
		td.Payout = td.Principal.Add(td.Interest)
		if err := uow.TimeDepositRepository().UpdateTerms(ctx, td); err != nil {
			return nil, persistenceError("failed to update time deposit terms", err)
		}
	}

	uow.EventBus().Publish(events.TimeDepositWithdrawnEvent{
		AccountNumber:    account.AccountNumber,
		Amount:           amount,
		RemainingBalance: account.Balance,
		Full:             full,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account": account.AccountNumber,
		"amount":  amount.StringFixed(2),
		"full":    full,
	}).Info("Early withdrawal from time deposit")

	return &TimeDepositResult{
		Detail:       &models.TimeDepositDetail{Account: account, Terms: td},
		Transactions: []*TransactionResult{newTransactionResult(txn)},
	}, nil
}

// Close pays out a deposit that has reached maturity, crediting the term's
// interest first if the deposit was never matured.
func (s *TimeDepositService) Close(ctx context.Context, accountNumber string, asOf time.Time, authorizedBy string) (*TimeDepositResult, error) {
	if authorizedBy == "" {
		return nil, fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	asOf = s.dateOrToday(asOf)

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, td, err := s.lockDeposit(ctx, uow, accountNumber)
	if err != nil {
		return nil, err
	}

	if account.Status != models.AccountStatusActive && account.Status != models.AccountStatusMatured {
		return nil, fmt.Errorf("%w: %s is %s", ErrConflictingState, account.AccountNumber, account.Status)
	}
	if !td.IsMatured(asOf) {
		return nil, fmt.Errorf("%w: %s matures on %s", ErrNotYetMatured, account.AccountNumber, td.MaturityDate.Format(time.DateOnly))
	}

	var postings []*TransactionResult
	if account.Status == models.AccountStatusActive && td.Interest.IsPositive() {
		txn, err := s.creditInterest(ctx, uow, account, td, authorizedBy)
		if err != nil {
			return nil, err
		}
		postings = append(postings, newTransactionResult(txn))
	}

	payout := account.Balance
	if payout.IsPositive() {
		txn, err := PostTransaction(ctx, uow, s.refs, Posting{
			Account:      account,
			Type:         models.TransactionTypeWithdrawal,
			Amount:       payout.Neg(),
			AuthorizedBy: authorizedBy,
			Remarks:      "time deposit payout",
		})
		if err != nil {
			return nil, err
		}
		postings = append(postings, newTransactionResult(txn))
	}

	if err := s.setStatus(ctx, uow, account, models.AccountStatusClosed); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.TimeDepositClosedEvent{
		AccountNumber: account.AccountNumber,
		Payout:        payout,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account": account.AccountNumber,
		"payout":  payout.StringFixed(2),
	}).Info("Closed time deposit")

	return &TimeDepositResult{
		Detail:       &models.TimeDepositDetail{Account: account, Terms: td},
		Transactions: postings,
	}, nil
}

// MatureDue matures every active deposit due on or before asOf, one unit
// per deposit. Individual failures are logged and counted.
func (s *TimeDepositService) MatureDue(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	asOf = s.dateOrToday(asOf)

	due, err := s.listDue(ctx, asOf)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Due: len(due)}
	for _, accountNumber := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if _, err := s.Mature(ctx, accountNumber, asOf, SweepAuthorizer); err != nil {
			result.Failed++
			log.WithError(err).WithField("account", accountNumber).Error("Failed to mature time deposit")
			continue
		}
		result.Matured++
	}

	if result.Due > 0 {
		log.WithFields(log.Fields{
			"asOf":    asOf.Format(time.DateOnly),
			"due":     result.Due,
			"matured": result.Matured,
			"failed":  result.Failed,
		}).Info("Maturity sweep finished")
	}
	return result, nil
}

// ResolveRateForTerm quotes the fractional rate a placement of principal for
// termMonths would earn, without opening anything
func (s *TimeDepositService) ResolveRateForTerm(ctx context.Context, principal decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if termMonths <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %d months", ErrInvalidTerm, termMonths)
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return decimal.Zero, err
	}
	defer uow.Rollback()

	return s.resolveRate(ctx, uow, principal, termMonths)
}

// GetTimeDeposit returns a deposit with its terms and co-holder
func (s *TimeDepositService) GetTimeDeposit(ctx context.Context, accountNumber string) (*models.TimeDepositDetail, error) {
	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByNumber(ctx, accountNumber)
	if err != nil {
		return nil, persistenceError("failed to get account", err)
	}
	if account == nil || account.Product != models.ProductTimeDeposit {
		return nil, fmt.Errorf("%w: time deposit %s", ErrAccountNotFound, accountNumber)
	}

	td, err := uow.TimeDepositRepository().GetByAccountID(ctx, account.ID)
	if err != nil {
		return nil, persistenceError("failed to get time deposit terms", err)
	}
	if td == nil {
		return nil, fmt.Errorf("%w: terms for %s", ErrAccountNotFound, accountNumber)
	}

	coHolder, err := uow.TimeDepositRepository().GetCoHolder(ctx, account.ID)
	if err != nil {
		return nil, persistenceError("failed to get co-holder", err)
	}

	return &models.TimeDepositDetail{Account: account, Terms: td, CoHolder: coHolder}, nil
}

// ListRollovers returns a deposit's rollover history, oldest first
func (s *TimeDepositService) ListRollovers(ctx context.Context, accountNumber string) ([]*models.TimeDepositRollover, error) {
	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByNumber(ctx, accountNumber)
	if err != nil {
		return nil, persistenceError("failed to get account", err)
	}
	if account == nil || account.Product != models.ProductTimeDeposit {
		return nil, fmt.Errorf("%w: time deposit %s", ErrAccountNotFound, accountNumber)
	}

	rollovers, err := uow.TimeDepositRepository().ListRollovers(ctx, account.ID)
	if err != nil {
		return nil, persistenceError("failed to list rollovers", err)
	}
	return rollovers, nil
}

func (s *TimeDepositService) listDue(ctx context.Context, asOf time.Time) ([]string, error) {
	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	due, err := uow.TimeDepositRepository().ListDueForMaturity(ctx, asOf)
	if err != nil {
		return nil, persistenceError("failed to list maturing deposits", err)
	}
	return due, nil
}

// resolveRate loads the time deposit table and resolves the rate for the
// exact term. A term with no tiers at all is rejected.
func (s *TimeDepositService) resolveRate(ctx context.Context, uow UnitOfWork, principal decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	tiers, err := uow.RateTierRepository().ListByProduct(ctx, models.ProductTimeDeposit)
	if err != nil {
		return decimal.Zero, persistenceError("failed to load rate tiers", err)
	}
	if len(services.FilterTiers(models.ProductTimeDeposit, termMonths, tiers)) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %d months", ErrInvalidTerm, termMonths)
	}
	return s.rates.ResolveRate(models.ProductTimeDeposit, principal, termMonths, tiers), nil
}

func (s *TimeDepositService) lockDeposit(ctx context.Context, uow UnitOfWork, accountNumber string) (*models.Account, *models.TimeDeposit, error) {
	if accountNumber == "" {
		return nil, nil, fmt.Errorf("%w: account number is required", ErrInvalidInput)
	}

	account, err := uow.AccountRepository().GetByNumberForUpdate(ctx, accountNumber)
	if err != nil {
		return nil, nil, persistenceError("failed to lock account", err)
	}
	if account == nil || account.Product != models.ProductTimeDeposit {
		return nil, nil, fmt.Errorf("%w: time deposit %s", ErrAccountNotFound, accountNumber)
	}

	td, err := uow.TimeDepositRepository().GetByAccountID(ctx, account.ID)
	if err != nil {
		return nil, nil, persistenceError("failed to get time deposit terms", err)
	}
	if td == nil {
		return nil, nil, fmt.Errorf("%w: terms for %s", ErrAccountNotFound, accountNumber)
	}
	return account, td, nil
}

func (s *TimeDepositService) creditInterest(ctx context.Context, uow UnitOfWork, account *models.Account, td *models.TimeDeposit, authorizedBy string) (*models.Transaction, error) {
	return PostTransaction(ctx, uow, s.refs, Posting{
		Account:      account,
		Type:         models.TransactionTypeInterest,
		Amount:       td.Interest,
		AuthorizedBy: authorizedBy,
		Remarks:      "time deposit interest",
		Metadata: map[string]any{
			"interest_rate": td.InterestRate.String(),
			"day_count":     services.DayCountForTerm(td.TermMonths),
		},
	})
}

func (s *TimeDepositService) setStatus(ctx context.Context, uow UnitOfWork, account *models.Account, status models.AccountStatus) error {
	if err := uow.AccountRepository().UpdateStatus(ctx, account.ID, status); err != nil {
		return persistenceError("failed to update account status", err)
	}
	account.Status = status
	return nil
}

func (s *TimeDepositService) dateOrToday(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return models.DateOnly(t)
}
