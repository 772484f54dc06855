package repository

import (
	"context"
	"fmt"

	"coopledger/database"
	"coopledger/models"

	"github.com/jackc/pgx/v5"
)

// RateTierRepository implements the RateTierRepository interface
type RateTierRepository struct {
	q  Queryable
	db *database.DB // set when the repository owns its transactions
}

// NewRateTierRepository creates a new rate tier repository
func NewRateTierRepository(db *database.DB) *RateTierRepository {
	return &RateTierRepository{q: db.Pool, db: db}
}

// newRateTierRepositoryWithTx creates a new rate tier repository with a transaction
func newRateTierRepositoryWithTx(tx Queryable) *RateTierRepository {
	return &RateTierRepository{q: tx}
}

// ListByProduct returns a product's tiers in insertion order, which is the
// order the last-seen tie-break relies on.
func (r *RateTierRepository) ListByProduct(ctx context.Context, product models.Product) ([]*models.InterestRateTier, error) {
	query := `
		SELECT id, product, term_months, threshold_amount, rate_percent
		FROM interest_rate_tiers
		WHERE product = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, product)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate tiers for %s: %w", product, err)
	}
	defer rows.Close()

	var tiers []*models.InterestRateTier
	for rows.Next() {
		var tier models.InterestRateTier
		if err := rows.Scan(
			&tier.ID,
			&tier.Product,
			&tier.TermMonths,
			&tier.ThresholdAmount,
			&tier.RatePercent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rate tier: %w", err)
		}
		tiers = append(tiers, &tier)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rate tiers: %w", err)
	}

	return tiers, nil
}

// Replace swaps a product's whole rate table. Outside a unit of work the
// delete and inserts run in their own transaction.
func (r *RateTierRepository) Replace(ctx context.Context, product models.Product, tiers []*models.InterestRateTier) error {
	if r.db == nil {
		return replaceTiers(ctx, r.q, product, tiers)
	}
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return replaceTiers(ctx, tx, product, tiers)
	})
}

func replaceTiers(ctx context.Context, q Queryable, product models.Product, tiers []*models.InterestRateTier) error {
	if _, err := q.Exec(ctx, `DELETE FROM interest_rate_tiers WHERE product = $1`, product); err != nil {
		return fmt.Errorf("failed to clear rate tiers for %s: %w", product, err)
	}
	if len(tiers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tier := range tiers {
		batch.Queue(`
			INSERT INTO interest_rate_tiers (product, term_months, threshold_amount, rate_percent)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, product, tier.TermMonths, tier.ThresholdAmount, tier.RatePercent)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for _, tier := range tiers {
		if err := results.QueryRow().Scan(&tier.ID); err != nil {
			return fmt.Errorf("failed to insert rate tier for %s: %w", product, err)
		}
		tier.Product = product
	}

	return nil
}
