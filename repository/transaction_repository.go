package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"coopledger/database"
	"coopledger/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, transaction_number, account_id, account_number, transaction_type, amount,
	balance_before, balance_after, authorized_by, counterparty_account_number, remarks, metadata, created_at`

// TransactionRepository implements the TransactionRepository interface
type TransactionRepository struct {
	q Queryable
}

// NewTransactionRepository creates a new ledger transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new ledger transaction repository with a transaction
func newTransactionRepositoryWithTx(tx Queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// Insert appends a ledger record. It returns false when the transaction number is taken.
func (r *TransactionRepository) Insert(ctx context.Context, txn *models.Transaction) (bool, error) {
	var metadataJSON []byte
	if txn.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(txn.Metadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal transaction metadata: %w", err)
		}
	}

	query := `
		INSERT INTO ledger_transactions (
			transaction_number, account_id, account_number, transaction_type, amount,
			balance_before, balance_after, authorized_by, counterparty_account_number, remarks, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_number) DO NOTHING
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		txn.TransactionNumber,
		txn.AccountID,
		txn.AccountNumber,
		txn.Type,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.AuthorizedBy,
		txn.CounterpartyAccountNumber,
		txn.Remarks,
		metadataJSON,
	).Scan(&txn.ID, &txn.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction for account %s: %w", txn.AccountNumber, err)
	}

	return true, nil
}

// GetByNumber retrieves a ledger record by its transaction number
func (r *TransactionRepository) GetByNumber(ctx context.Context, transactionNumber string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE transaction_number = $1`

	txn, err := scanTransaction(r.q.QueryRow(ctx, query, transactionNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", transactionNumber, err)
	}
	return txn, nil
}

// ListByAccount returns an account's records newest first. A limit of zero returns all of them.
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY id DESC
	`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}

// SumByAccount returns the signed total and count of an account's records
func (r *TransactionRepository) SumByAccount(ctx context.Context, accountID int64) (decimal.Decimal, int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM ledger_transactions
		WHERE account_id = $1
	`

	var sum decimal.Decimal
	var count int64
	if err := r.q.QueryRow(ctx, query, accountID).Scan(&sum, &count); err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to sum transactions for account %d: %w", accountID, err)
	}
	return sum, count, nil
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var txn models.Transaction
	var metadataJSON []byte

	err := row.Scan(
		&txn.ID,
		&txn.TransactionNumber,
		&txn.AccountID,
		&txn.AccountNumber,
		&txn.Type,
		&txn.Amount,
		&txn.BalanceBefore,
		&txn.BalanceAfter,
		&txn.AuthorizedBy,
		&txn.CounterpartyAccountNumber,
		&txn.Remarks,
		&metadataJSON,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &txn.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
		}
	}

	return &txn, nil
}
