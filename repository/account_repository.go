package repository

import (
	"context"
	"errors"
	"fmt"

	"coopledger/database"
	"coopledger/models"
	"coopledger/service"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, account_number, member_id, product, balance, status, created_at, updated_at`

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q Queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// newAccountRepositoryWithTx creates a new account repository with a transaction
func newAccountRepositoryWithTx(tx Queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

// Create inserts a new account. A taken account number returns false; a
// second open account for a single-per-member product is ErrDuplicateAccount.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (bool, error) {
	query := `
		INSERT INTO accounts (account_number, member_id, product, balance, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_number) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		account.AccountNumber,
		account.MemberID,
		account.Product,
		account.Balance,
		account.Status,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if isUniqueViolation(err, "idx_accounts_member_product") {
		return false, fmt.Errorf("%w: member %d, product %s", service.ErrDuplicateAccount, account.MemberID, account.Product)
	}
	if err != nil {
		return false, fmt.Errorf("failed to create account %s: %w", account.AccountNumber, err)
	}

	return true, nil
}

// GetByNumber retrieves an account by its account number
func (r *AccountRepository) GetByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return r.getOne(ctx, query, accountNumber)
}

// GetByNumberForUpdate retrieves an account and locks its row until the transaction ends
func (r *AccountRepository) GetByNumberForUpdate(ctx context.Context, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`
	return r.getOne(ctx, query, accountNumber)
}

// GetByIDForUpdate retrieves an account by ID and locks its row
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// GetOpenByMemberAndProduct returns the member's account for a product that is not closed
func (r *AccountRepository) GetOpenByMemberAndProduct(ctx context.Context, memberID int64, product models.Product) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE member_id = $1 AND product = $2 AND status NOT IN ('closed', 'early_withdrawn')
		ORDER BY id
		LIMIT 1
	`
	return r.getOne(ctx, query, memberID, product)
}

// ListByMember returns every account of a member, oldest first
func (r *AccountRepository) ListByMember(ctx context.Context, memberID int64) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE member_id = $1 ORDER BY id`

	rows, err := r.q.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for member %d: %w", memberID, err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateBalance sets an account's balance
func (r *AccountRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, balance, id)
	if err != nil {
		return fmt.Errorf("failed to update balance for account %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", id)
	}

	return nil
}

// UpdateStatus sets an account's lifecycle status
func (r *AccountRepository) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error {
	query := `
		UPDATE accounts
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status for account %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", id)
	}

	return nil
}

func (r *AccountRepository) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	account, err := scanAccount(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.AccountNumber,
		&account.MemberID,
		&account.Product,
		&account.Balance,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
