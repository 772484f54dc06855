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

const installmentColumns = `id, loan_id, sequence, beginning_balance, amortization_amount, principal_portion,
	interest_portion, ending_balance, due_date, status, amount_repaid`

// InstallmentRepository implements the InstallmentRepository interface
type InstallmentRepository struct {
	q Queryable
}

// NewInstallmentRepository creates a new installment repository
func NewInstallmentRepository(db *database.DB) *InstallmentRepository {
	return &InstallmentRepository{q: db.Pool}
}

// newInstallmentRepositoryWithTx creates a new installment repository with a transaction
func newInstallmentRepositoryWithTx(tx Queryable) *InstallmentRepository {
	return &InstallmentRepository{q: tx}
}

// CreateBatch inserts a whole schedule in one round trip
func (r *InstallmentRepository) CreateBatch(ctx context.Context, installments []*models.Installment) error {
	if len(installments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, inst := range installments {
		batch.Queue(`
			INSERT INTO loan_installments (
				loan_id, sequence, beginning_balance, amortization_amount, principal_portion,
				interest_portion, ending_balance, due_date, status, amount_repaid
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`,
			inst.LoanID,
			inst.Sequence,
			inst.BeginningBalance,
			inst.AmortizationAmount,
			inst.PrincipalPortion,
			inst.InterestPortion,
			inst.EndingBalance,
			inst.DueDate,
			inst.Status,
			inst.AmountRepaid,
		)
	}

	results := r.q.SendBatch(ctx, batch)
	defer results.Close()

	for _, inst := range installments {
		if err := results.QueryRow().Scan(&inst.ID); err != nil {
			return fmt.Errorf("failed to insert installment %d of loan %d: %w", inst.Sequence, inst.LoanID, err)
		}
	}

	return nil
}

// GetByIDForUpdate retrieves an installment and locks its row
func (r *InstallmentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM loan_installments WHERE id = $1 FOR UPDATE`

	inst, err := scanInstallment(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment %d: %w", id, err)
	}
	return inst, nil
}

// ListByLoan returns a loan's schedule in sequence order
func (r *InstallmentRepository) ListByLoan(ctx context.Context, loanID int64) ([]*models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM loan_installments WHERE loan_id = $1 ORDER BY sequence`

	rows, err := r.q.Query(ctx, query, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installments for loan %d: %w", loanID, err)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		installments = append(installments, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installments: %w", err)
	}

	return installments, nil
}

// UpdatePayment records the cumulative amount repaid and the resulting status
func (r *InstallmentRepository) UpdatePayment(ctx context.Context, id int64, amountRepaid decimal.Decimal, status models.InstallmentStatus) error {
	query := `
		UPDATE loan_installments
		SET amount_repaid = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.q.Exec(ctx, query, amountRepaid, status, id)
	if err != nil {
		return fmt.Errorf("failed to update installment %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("installment %d not found", id)
	}

	return nil
}

func scanInstallment(row pgx.Row) (*models.Installment, error) {
	var inst models.Installment
	err := row.Scan(
		&inst.ID,
		&inst.LoanID,
		&inst.Sequence,
		&inst.BeginningBalance,
		&inst.AmortizationAmount,
		&inst.PrincipalPortion,
		&inst.InterestPortion,
		&inst.EndingBalance,
		&inst.DueDate,
		&inst.Status,
		&inst.AmountRepaid,
	)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}
