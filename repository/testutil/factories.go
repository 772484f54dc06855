package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"coopledger/models"

	"github.com/shopspring/decimal"
)

var sequence atomic.Int64

// NextNumber returns a unique reference with the given prefix
func NextNumber(prefix string) string {
	return fmt.Sprintf("%s%d-%06d", prefix, time.Now().UnixMilli(), sequence.Add(1))
}

// CreateTestAccount creates an unsaved account with a unique number
func CreateTestAccount(memberID int64, product models.Product) *models.Account {
	return &models.Account{
		AccountNumber: NextNumber("TEST-"),
		MemberID:      memberID,
		Product:       product,
		Balance:       decimal.Zero,
		Status:        models.AccountStatusActive,
	}
}

// CreateTestTransaction creates an unsaved ledger record moving account by amount
func CreateTestTransaction(account *models.Account, txnType models.TransactionType, amount string) *models.Transaction {
	delta := decimal.RequireFromString(amount)
	return &models.Transaction{
		TransactionNumber: NextNumber("TXN-"),
		AccountID:         account.ID,
		AccountNumber:     account.AccountNumber,
		Type:              txnType,
		Amount:            delta,
		BalanceBefore:     account.Balance,
		BalanceAfter:      account.Balance.Add(delta),
		AuthorizedBy:      "test-teller",
		Metadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestTimeDeposit creates unsaved six month terms for an account
func CreateTestTimeDeposit(accountID int64, principal string, openDate time.Time) *models.TimeDeposit {
	p := decimal.RequireFromString(principal)
	interest := p.Mul(decimal.RequireFromString("0.01")).Mul(decimal.NewFromInt(182)).Div(decimal.NewFromInt(365)).Round(2)
	return &models.TimeDeposit{
		AccountID:    accountID,
		Principal:    p,
		TermMonths:   6,
		InterestRate: decimal.RequireFromString("0.01"),
		Interest:     interest,
		Payout:       p.Add(interest),
		OpenDate:     models.DateOnly(openDate),
		MaturityDate: models.AddMonths(openDate, 6),
	}
}

// CreateTestLoan creates an unsaved active loan
func CreateTestLoan(memberID int64, principal string) *models.Loan {
	p := decimal.RequireFromString(principal)
	return &models.Loan{
		LoanNumber:         NextNumber("LN-"),
		MemberID:           memberID,
		Principal:          p,
		AnnualInterestRate: decimal.NewFromInt(12),
		TermMonths:         12,
		DisbursedDate:      models.DateOnly(time.Now()),
		Balance:            p,
		Status:             models.LoanStatusActive,
		AuthorizedBy:       "test-officer",
	}
}
