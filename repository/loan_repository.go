package repository

import (
	"context"
	"errors"
	"fmt"

	"coopledger/database"
	"coopledger/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const loanColumns = `id, loan_number, member_id, principal, annual_interest_rate, term_months,
	disbursed_date, balance, status, authorized_by, created_at, updated_at`

// LoanRepository implements the LoanRepository interface
type LoanRepository struct {
	q Queryable
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *database.DB) *LoanRepository {
	return &LoanRepository{q: db.Pool}
}

// newLoanRepositoryWithTx creates a new loan repository with a transaction
func newLoanRepositoryWithTx(tx Queryable) *LoanRepository {
	return &LoanRepository{q: tx}
}

// Create inserts a loan. It returns false when the loan number is taken.
func (r *LoanRepository) Create(ctx context.Context, loan *models.Loan) (bool, error) {
	query := `
		INSERT INTO loans (
			loan_number, member_id, principal, annual_interest_rate, term_months,
			disbursed_date, balance, status, authorized_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (loan_number) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		loan.LoanNumber,
		loan.MemberID,
		loan.Principal,
		loan.AnnualInterestRate,
		loan.TermMonths,
		loan.DisbursedDate,
		loan.Balance,
		loan.Status,
		loan.AuthorizedBy,
	).Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create loan for member %d: %w", loan.MemberID, err)
	}

	return true, nil
}

// GetByID retrieves a loan by ID
func (r *LoanRepository) GetByID(ctx context.Context, id int64) (*models.Loan, error) {
	return r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a loan by ID and locks its row
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Loan, error) {
	return r.getOne(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

// ListByMember returns a member's loans, newest first
func (r *LoanRepository) ListByMember(ctx context.Context, memberID int64) ([]*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE member_id = $1 ORDER BY id DESC`

	rows, err := r.q.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans for member %d: %w", memberID, err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, loan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loans: %w", err)
	}

	return loans, nil
}

// UpdateBalance sets a loan's outstanding balance and status
func (r *LoanRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal, status models.LoanStatus) error {
	query := `
		UPDATE loans
		SET balance = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.q.Exec(ctx, query, balance, status, id)
	if err != nil {
		return fmt.Errorf("failed to update balance for loan %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("loan %d not found", id)
	}

	return nil
}

func (r *LoanRepository) getOne(ctx context.Context, query string, id int64) (*models.Loan, error) {
	loan, err := scanLoan(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan %d: %w", id, err)
	}
	return loan, nil
}

func scanLoan(row pgx.Row) (*models.Loan, error) {
	var loan models.Loan
	err := row.Scan(
		&loan.ID,
		&loan.LoanNumber,
		&loan.MemberID,
		&loan.Principal,
		&loan.AnnualInterestRate,
		&loan.TermMonths,
		&loan.DisbursedDate,
		&loan.Balance,
		&loan.Status,
		&loan.AuthorizedBy,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}
