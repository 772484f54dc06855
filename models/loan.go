package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus represents the repayment state of a loan
type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "active"
	LoanStatusPaidOff LoanStatus = "paid_off"
)

// Loan is a disbursed member loan. Balance is the outstanding amount.
type Loan struct {
	ID                 int64           `db:"id"`
	LoanNumber         string          `db:"loan_number"`
	MemberID           int64           `db:"member_id"`
	Principal          decimal.Decimal `db:"principal"`
	AnnualInterestRate decimal.Decimal `db:"annual_interest_rate"` // percent
	TermMonths         int             `db:"term_months"`
	DisbursedDate      time.Time       `db:"disbursed_date"`
	Balance            decimal.Decimal `db:"balance"`
	Status             LoanStatus      `db:"status"`
	AuthorizedBy       string          `db:"authorized_by"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// InstallmentStatus represents whether a scheduled payment is settled
type InstallmentStatus string

const (
	InstallmentStatusUnpaid InstallmentStatus = "unpaid"
	InstallmentStatusPaid   InstallmentStatus = "paid"
)

// Installment is one persisted row of a loan's amortization schedule
type Installment struct {
	ID                 int64             `db:"id"`
	LoanID             int64             `db:"loan_id"`
	Sequence           int               `db:"sequence"`
	BeginningBalance   decimal.Decimal   `db:"beginning_balance"`
	AmortizationAmount decimal.Decimal   `db:"amortization_amount"`
	PrincipalPortion   decimal.Decimal   `db:"principal_portion"`
	InterestPortion    decimal.Decimal   `db:"interest_portion"`
	EndingBalance      decimal.Decimal   `db:"ending_balance"`
	DueDate            time.Time         `db:"due_date"`
	Status             InstallmentStatus `db:"status"`
	AmountRepaid       decimal.Decimal   `db:"amount_repaid"`
}

// RepaymentMethod is how a repayment was funded
type RepaymentMethod string

const (
	RepaymentMethodCash         RepaymentMethod = "cash"
	RepaymentMethodSavingsDebit RepaymentMethod = "savings_debit"
)

// LoanRepayment records money applied against an installment
type LoanRepayment struct {
	ID                int64           `db:"id"`
	TransactionNumber string          `db:"transaction_number"`
	LoanID            int64           `db:"loan_id"`
	InstallmentID     int64           `db:"installment_id"`
	Amount            decimal.Decimal `db:"amount"`
	Method            RepaymentMethod `db:"method"`
	AuthorizedBy      string          `db:"authorized_by"`
	CreatedAt         time.Time       `db:"created_at"`
}
