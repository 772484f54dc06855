package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coopledger/database"
	"coopledger/models"

	"github.com/jackc/pgx/v5"
)

// TimeDepositRepository implements the TimeDepositRepository interface
type TimeDepositRepository struct {
	q Queryable
}

// NewTimeDepositRepository creates a new time deposit repository
func NewTimeDepositRepository(db *database.DB) *TimeDepositRepository {
	return &TimeDepositRepository{q: db.Pool}
}

// newTimeDepositRepositoryWithTx creates a new time deposit repository with a transaction
func newTimeDepositRepositoryWithTx(tx Queryable) *TimeDepositRepository {
	return &TimeDepositRepository{q: tx}
}

// Create stores the terms of a newly placed deposit
func (r *TimeDepositRepository) Create(ctx context.Context, td *models.TimeDeposit) error {
	query := `
		INSERT INTO time_deposits (
			account_id, principal, term_months, interest_rate, interest, payout, open_date, maturity_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		td.AccountID,
		td.Principal,
		td.TermMonths,
		td.InterestRate,
		td.Interest,
		td.Payout,
		td.OpenDate,
		td.MaturityDate,
	).Scan(&td.CreatedAt, &td.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create time deposit for account %d: %w", td.AccountID, err)
	}

	return nil
}

// GetByAccountID retrieves the terms of a time deposit account
func (r *TimeDepositRepository) GetByAccountID(ctx context.Context, accountID int64) (*models.TimeDeposit, error) {
	query := `
		SELECT account_id, principal, term_months, interest_rate, interest, payout,
		       open_date, maturity_date, created_at, updated_at
		FROM time_deposits
		WHERE account_id = $1
	`

	var td models.TimeDeposit
	err := r.q.QueryRow(ctx, query, accountID).Scan(
		&td.AccountID,
		&td.Principal,
		&td.TermMonths,
		&td.InterestRate,
		&td.Interest,
		&td.Payout,
		&td.OpenDate,
		&td.MaturityDate,
		&td.CreatedAt,
		&td.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time deposit for account %d: %w", accountID, err)
	}

	return &td, nil
}

// UpdateTerms overwrites the current terms after a rollover or partial withdrawal
func (r *TimeDepositRepository) UpdateTerms(ctx context.Context, td *models.TimeDeposit) error {
	query := `
		UPDATE time_deposits
		SET principal = $1, term_months = $2, interest_rate = $3, interest = $4, payout = $5,
		    open_date = $6, maturity_date = $7, updated_at = NOW()
		WHERE account_id = $8
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		td.Principal,
		td.TermMonths,
		td.InterestRate,
		td.Interest,
		td.Payout,
		td.OpenDate,
		td.MaturityDate,
		td.AccountID,
	).Scan(&td.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("time deposit for account %d not found", td.AccountID)
	}
	if err != nil {
		return fmt.Errorf("failed to update time deposit for account %d: %w", td.AccountID, err)
	}

	return nil
}

// CreateCoHolder records the second holder of a deposit
func (r *TimeDepositRepository) CreateCoHolder(ctx context.Context, coHolder *models.CoHolder) error {
	query := `
		INSERT INTO time_deposit_co_holders (account_id, name, relationship, contact_number)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.q.Exec(ctx, query,
		coHolder.AccountID,
		coHolder.Name,
		coHolder.Relationship,
		coHolder.ContactNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to create co-holder for account %d: %w", coHolder.AccountID, err)
	}

	return nil
}

// GetCoHolder returns a deposit's co-holder, or nil when there is none
func (r *TimeDepositRepository) GetCoHolder(ctx context.Context, accountID int64) (*models.CoHolder, error) {
	query := `
		SELECT account_id, name, relationship, contact_number
		FROM time_deposit_co_holders
		WHERE account_id = $1
	`

	var coHolder models.CoHolder
	err := r.q.QueryRow(ctx, query, accountID).Scan(
		&coHolder.AccountID,
		&coHolder.Name,
		&coHolder.Relationship,
		&coHolder.ContactNumber,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get co-holder for account %d: %w", accountID, err)
	}

	return &coHolder, nil
}

// InsertRollover appends a rollover record
func (r *TimeDepositRepository) InsertRollover(ctx context.Context, rollover *models.TimeDepositRollover) error {
	query := `
		INSERT INTO time_deposit_rollovers (
			account_id, previous_maturity_date, new_maturity_date, interest_earned,
			rollover_amount, term_months, interest_rate, transaction_number
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		rollover.AccountID,
		rollover.PreviousMaturityDate,
		rollover.NewMaturityDate,
		rollover.InterestEarned,
		rollover.RolloverAmount,
		rollover.TermMonths,
		rollover.InterestRate,
		rollover.TransactionNumber,
	).Scan(&rollover.ID, &rollover.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record rollover for account %d: %w", rollover.AccountID, err)
	}

	return nil
}

// ListRollovers returns a deposit's rollover history, oldest first
func (r *TimeDepositRepository) ListRollovers(ctx context.Context, accountID int64) ([]*models.TimeDepositRollover, error) {
	query := `
		SELECT id, account_id, previous_maturity_date, new_maturity_date, interest_earned,
		       rollover_amount, term_months, interest_rate, transaction_number, created_at
		FROM time_deposit_rollovers
		WHERE account_id = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollovers for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var rollovers []*models.TimeDepositRollover
	for rows.Next() {
		var rollover models.TimeDepositRollover
		if err := rows.Scan(
			&rollover.ID,
			&rollover.AccountID,
			&rollover.PreviousMaturityDate,
			&rollover.NewMaturityDate,
			&rollover.InterestEarned,
			&rollover.RolloverAmount,
			&rollover.TermMonths,
			&rollover.InterestRate,
			&rollover.TransactionNumber,
			&rollover.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rollover: %w", err)
		}
		rollovers = append(rollovers, &rollover)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollovers: %w", err)
	}

	return rollovers, nil
}

// ListDueForMaturity returns account numbers of active deposits whose
// maturity date is on or before asOf, earliest first.
func (r *TimeDepositRepository) ListDueForMaturity(ctx context.Context, asOf time.Time) ([]string, error) {
	query := `
		SELECT a.account_number
		FROM time_deposits td
		JOIN accounts a ON a.id = td.account_id
		WHERE a.status = 'active' AND td.maturity_date <= $1
		ORDER BY td.maturity_date, a.id
	`

	rows, err := r.q.Query(ctx, query, models.DateOnly(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to list maturing deposits: %w", err)
	}
	defer rows.Close()

	var accountNumbers []string
	for rows.Next() {
		var accountNumber string
		if err := rows.Scan(&accountNumber); err != nil {
			return nil, fmt.Errorf("failed to scan account number: %w", err)
		}
		accountNumbers = append(accountNumbers, accountNumber)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating maturing deposits: %w", err)
	}

	return accountNumbers, nil
}
