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

// CreateLoanRequest disburses a loan and fixes its schedule
type CreateLoanRequest struct {
	MemberID           int64
	Principal          decimal.Decimal
	AnnualInterestRate decimal.Decimal // percent
	TermMonths         int
	DisbursedDate      time.Time // defaults to today
	AuthorizedBy       string
}

// Validate checks the request before any state is touched
func (r CreateLoanRequest) Validate() error {
	if r.MemberID <= 0 {
		return fmt.Errorf("%w: member id is required", ErrInvalidInput)
	}
	if !r.Principal.IsPositive() {
		return ErrInvalidAmount
	}
	if !isCents(r.Principal) {
		return fmt.Errorf("%w: principal %s has more than two decimal places", ErrInvalidInput, r.Principal)
	}
	if r.AnnualInterestRate.IsNegative() {
		return fmt.Errorf("%w: interest rate cannot be negative", ErrInvalidInput)
	}
	if r.TermMonths <= 0 {
		return fmt.Errorf("%w: term must be positive", ErrInvalidInput)
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	return nil
}

// RepaymentRequest applies money to one installment
type RepaymentRequest struct {
	InstallmentID       int64
	AmountPaid          decimal.Decimal
	Method              models.RepaymentMethod // defaults to cash
	AuthorizedBy        string
	SourceAccountNumber string          // savings account for savings_debit
	MinimumBalance      decimal.Decimal // floor kept on the savings account
}

// Validate checks the request before any state is touched
func (r RepaymentRequest) Validate() error {
	if r.InstallmentID <= 0 {
		return fmt.Errorf("%w: installment id is required", ErrInvalidInput)
	}
	if !r.AmountPaid.IsPositive() {
		return ErrInvalidAmount
	}
	if !isCents(r.AmountPaid) {
		return fmt.Errorf("%w: amount %s has more than two decimal places", ErrInvalidInput, r.AmountPaid)
	}
	switch r.method() {
	case models.RepaymentMethodCash:
	case models.RepaymentMethodSavingsDebit:
		if r.SourceAccountNumber == "" {
			return fmt.Errorf("%w: savings debit needs a source account", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown repayment method %q", ErrInvalidInput, r.Method)
	}
	if r.AuthorizedBy == "" {
		return fmt.Errorf("%w: authorizedBy is required", ErrInvalidInput)
	}
	return nil
}

func (r RepaymentRequest) method() models.RepaymentMethod {
	if r.Method == "" {
		return models.RepaymentMethodCash
	}
	return r.Method
}

// RepaymentResult reports the state left by a repayment
type RepaymentResult struct {
	TransactionNumber        string
	InstallmentStatus        models.InstallmentStatus
	InstallmentAmountRepaid  decimal.Decimal
	LoanBalance              decimal.Decimal
	LoanStatus               models.LoanStatus
	SavingsTransactionNumber string
	VoucherNumber            string // set for savings debits only
}

// LoanDetail is a loan with its persisted schedule
type LoanDetail struct {
	Loan         *models.Loan
	Installments []*models.Installment
}

// LoanService originates loans and records repayments
type LoanService struct {
	uowFactory   UnitOfWorkFactory
	refs         ReferenceGenerator
	amortization *services.AmortizationService
	savingsFloor decimal.Decimal
	now          func() time.Time
}

// NewLoanService creates a new loan service
func NewLoanService(uowFactory UnitOfWorkFactory, refs ReferenceGenerator, amortization *services.AmortizationService) *LoanService {
	return &LoanService{
		uowFactory:   uowFactory,
		refs:         refs,
		amortization: amortization,
		now:          time.Now,
	}
}

// SetSavingsMinimumBalance sets the floor applied to savings debits whose
// request carries no floor of its own
func (s *LoanService) SetSavingsMinimumBalance(floor decimal.Decimal) {
	s.savingsFloor = floor
}

// CreateLoan persists the loan and its whole schedule in one unit
func (s *LoanService) CreateLoan(ctx context.Context, req CreateLoanRequest) (*LoanDetail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	disbursed := req.DisbursedDate
	if disbursed.IsZero() {
		disbursed = s.now()
	}
	disbursed = models.DateOnly(disbursed)

	rows, err := s.amortization.BuildSchedule(req.Principal, req.AnnualInterestRate, req.TermMonths, disbursed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	loan := &models.Loan{
		MemberID:           req.MemberID,
		Principal:          req.Principal,
		AnnualInterestRate: req.AnnualInterestRate,
		TermMonths:         req.TermMonths,
		DisbursedDate:      disbursed,
		Balance:            req.Principal,
		Status:             models.LoanStatusActive,
		AuthorizedBy:       req.AuthorizedBy,
	}

	created := false
	for attempt := 0; attempt < maxReferenceAttempts && !created; attempt++ {
		loan.LoanNumber = s.refs.NewLoanNumber()
		created, err = uow.LoanRepository().Create(ctx, loan)
		if err != nil {
			return nil, persistenceError("failed to create loan", err)
		}
	}
	if !created {
		return nil, ErrReferenceExhausted
	}

	installments := make([]*models.Installment, 0, len(rows))
	for _, row := range rows {
		installments = append(installments, &models.Installment{
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
		})
	}
	if err := uow.InstallmentRepository().CreateBatch(ctx, installments); err != nil {
		return nil, persistenceError("failed to persist schedule", err)
	}

	uow.EventBus().Publish(events.LoanCreatedEvent{
		LoanID:             loan.ID,
		LoanNumber:         loan.LoanNumber,
		MemberID:           loan.MemberID,
		Principal:          loan.Principal,
		AnnualInterestRate: loan.AnnualInterestRate,
		TermMonths:         loan.TermMonths,
		MonthlyPayment:     rows[0].AmortizationAmount,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"loan":      loan.LoanNumber,
		"member":    loan.MemberID,
		"principal": loan.Principal.StringFixed(2),
		"term":      loan.TermMonths,
	}).Info("Created loan")

	return &LoanDetail{Loan: loan, Installments: installments}, nil
}

// ApplyRepayment records a repayment against an installment and its loan.
// The installment is locked before the loan; repayments on other
// installments of the same loan then queue on the loan row.
func (s *LoanService) ApplyRepayment(ctx context.Context, req RepaymentRequest) (*RepaymentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	method := req.method()

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	installment, err := uow.InstallmentRepository().GetByIDForUpdate(ctx, req.InstallmentID)
	if err != nil {
		return nil, persistenceError("failed to lock installment", err)
	}
	if installment == nil {
		return nil, fmt.Errorf("%w: %d", ErrInstallmentNotFound, req.InstallmentID)
	}

	loan, err := uow.LoanRepository().GetByIDForUpdate(ctx, installment.LoanID)
	if err != nil {
		return nil, persistenceError("failed to lock loan", err)
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, installment.LoanID)
	}
	if loan.Status == models.LoanStatusPaidOff {
		return nil, fmt.Errorf("%w: %s", ErrLoanPaidOff, loan.LoanNumber)
	}

	result := &RepaymentResult{}

	if method == models.RepaymentMethodSavingsDebit {
		savings, err := lockLedgerAccount(ctx, uow, req.SourceAccountNumber)
		if err != nil {
			return nil, err
		}
		if savings.MemberID != loan.MemberID {
			return nil, fmt.Errorf("%w: %s does not belong to the borrower", ErrInvalidInput, savings.AccountNumber)
		}
		if savings.Product != models.ProductRegularSavings {
			return nil, fmt.Errorf("%w: repayments can only debit regular savings", ErrInvalidInput)
		}

		voucher := s.refs.NewVoucherNumber()
		debit, err := PostTransaction(ctx, uow, s.refs, Posting{
			Account:        savings,
			Type:           models.TransactionTypeWithdrawal,
			Amount:         req.AmountPaid.Neg(),
			AuthorizedBy:   req.AuthorizedBy,
			MinimumBalance: debitFloor(savings, req.MinimumBalance, s.savingsFloor),
			Remarks:        "loan repayment",
			Metadata: map[string]any{
				"loan_number":          loan.LoanNumber,
				"installment_sequence": installment.Sequence,
				"voucher_number":       voucher,
			},
		})
		if err != nil {
			return nil, err
		}
		result.SavingsTransactionNumber = debit.TransactionNumber
		result.VoucherNumber = voucher
	}

	repayment := &models.LoanRepayment{
		LoanID:        loan.ID,
		InstallmentID: installment.ID,
		Amount:        req.AmountPaid,
		Method:        method,
		AuthorizedBy:  req.AuthorizedBy,
	}
	inserted := false
	for attempt := 0; attempt < maxReferenceAttempts && !inserted; attempt++ {
		repayment.TransactionNumber = s.refs.NewTransactionNumber()
		inserted, err = uow.LoanRepaymentRepository().Insert(ctx, repayment)
		if err != nil {
			return nil, persistenceError("failed to record repayment", err)
		}
	}
	if !inserted {
		return nil, ErrReferenceExhausted
	}

	installment.AmountRepaid = installment.AmountRepaid.Add(req.AmountPaid)
	if installment.AmountRepaid.GreaterThanOrEqual(installment.AmortizationAmount) {
		installment.Status = models.InstallmentStatusPaid
	}
	if err := uow.InstallmentRepository().UpdatePayment(ctx, installment.ID, installment.AmountRepaid, installment.Status); err != nil {
		return nil, persistenceError("failed to update installment", err)
	}

	loan.Balance = loan.Balance.Sub(req.AmountPaid)
	if !loan.Balance.IsPositive() {
		loan.Balance = decimal.Zero
		loan.Status = models.LoanStatusPaidOff
	}
	if err := uow.LoanRepository().UpdateBalance(ctx, loan.ID, loan.Balance, loan.Status); err != nil {
		return nil, persistenceError("failed to update loan balance", err)
	}

	uow.EventBus().Publish(events.LoanRepaymentAppliedEvent{
		LoanID:            loan.ID,
		LoanNumber:        loan.LoanNumber,
		InstallmentID:     installment.ID,
		TransactionNumber: repayment.TransactionNumber,
		Amount:            req.AmountPaid,
		Method:            method,
		InstallmentStatus: installment.Status,
		LoanBalance:       loan.Balance,
		LoanStatus:        loan.Status,
	})

	if err := commitUnit(uow); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"loan":        loan.LoanNumber,
		"installment": installment.Sequence,
		"amount":      req.AmountPaid.StringFixed(2),
		"balance":     loan.Balance.StringFixed(2),
		"loanStatus":  loan.Status,
	}).Info("Applied loan repayment")

	result.TransactionNumber = repayment.TransactionNumber
	result.InstallmentStatus = installment.Status
	result.InstallmentAmountRepaid = installment.AmountRepaid
	result.LoanBalance = loan.Balance
	result.LoanStatus = loan.Status
	return result, nil
}

// GetLoan returns a loan with its schedule
func (s *LoanService) GetLoan(ctx context.Context, loanID int64) (*LoanDetail, error) {
	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	loan, err := uow.LoanRepository().GetByID(ctx, loanID)
	if err != nil {
		return nil, persistenceError("failed to get loan", err)
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
	}

	installments, err := uow.InstallmentRepository().ListByLoan(ctx, loanID)
	if err != nil {
		return nil, persistenceError("failed to list installments", err)
	}
	return &LoanDetail{Loan: loan, Installments: installments}, nil
}

// GetSchedule returns a loan's installments in sequence order
func (s *LoanService) GetSchedule(ctx context.Context, loanID int64) ([]*models.Installment, error) {
	detail, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return detail.Installments, nil
}

// ListRepayments returns every repayment recorded for a loan, oldest first
func (s *LoanService) ListRepayments(ctx context.Context, loanID int64) ([]*models.LoanRepayment, error) {
	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	loan, err := uow.LoanRepository().GetByID(ctx, loanID)
	if err != nil {
		return nil, persistenceError("failed to get loan", err)
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
	}

	repayments, err := uow.LoanRepaymentRepository().ListByLoan(ctx, loanID)
	if err != nil {
		return nil, persistenceError("failed to list repayments", err)
	}
	return repayments, nil
}

// PreviewSchedule builds a schedule without persisting anything
func (s *LoanService) PreviewSchedule(principal, annualRatePercent decimal.Decimal, termMonths int, start time.Time) ([]services.ScheduleRow, services.ScheduleSummary, error) {
	rows, err := s.amortization.BuildSchedule(principal, annualRatePercent, termMonths, start)
	if err != nil {
		return nil, services.ScheduleSummary{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return rows, s.amortization.Summarize(rows), nil
}
