package repository

import (
	"context"
	"errors"
	"fmt"

	"coopledger/database"
	"coopledger/models"

	"github.com/jackc/pgx/v5"
)

// LoanRepaymentRepository implements the LoanRepaymentRepository interface
type LoanRepaymentRepository struct {
	q Queryable
}

// NewLoanRepaymentRepository creates a new loan repayment repository
func NewLoanRepaymentRepository(db *database.DB) *LoanRepaymentRepository {
	return &LoanRepaymentRepository{q: db.Pool}
}

// newLoanRepaymentRepositoryWithTx creates a new loan repayment repository with a transaction
func newLoanRepaymentRepositoryWithTx(tx Queryable) *LoanRepaymentRepository {
	return &LoanRepaymentRepository{q: tx}
}

// Insert appends a repayment. It returns false when the transaction number is taken.
func (r *LoanRepaymentRepository) Insert(ctx context.Context, repayment *models.LoanRepayment) (bool, error) {
	query := `
		INSERT INTO loan_repayments (transaction_number, loan_id, installment_id, amount, method, authorized_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_number) DO NOTHING
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		repayment.TransactionNumber,
		repayment.LoanID,
		repayment.InstallmentID,
		repayment.Amount,
		repayment.Method,
		repayment.AuthorizedBy,
	).Scan(&repayment.ID, &repayment.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record repayment for loan %d: %w", repayment.LoanID, err)
	}

	return true, nil
}

// ListByLoan returns a loan's repayments, oldest first
func (r *LoanRepaymentRepository) ListByLoan(ctx context.Context, loanID int64) ([]*models.LoanRepayment, error) {
	query := `
		SELECT id, transaction_number, loan_id, installment_id, amount, method, authorized_by, created_at
		FROM loan_repayments
		WHERE loan_id = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repayments for loan %d: %w", loanID, err)
	}
	defer rows.Close()

	var repayments []*models.LoanRepayment
	for rows.Next() {
		var repayment models.LoanRepayment
		if err := rows.Scan(
			&repayment.ID,
			&repayment.TransactionNumber,
			&repayment.LoanID,
			&repayment.InstallmentID,
			&repayment.Amount,
			&repayment.Method,
			&repayment.AuthorizedBy,
			&repayment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan repayment: %w", err)
		}
		repayments = append(repayments, &repayment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repayments: %w", err)
	}

	return repayments, nil
}
