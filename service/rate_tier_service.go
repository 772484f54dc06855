package service

import (
	"context"
	"fmt"

	"coopledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var hundredPercent = decimal.NewFromInt(100)

// RateTierService administers the interest rate tables the resolver reads
type RateTierService struct {
	uowFactory UnitOfWorkFactory
}

// NewRateTierService creates a new rate tier service
func NewRateTierService(uowFactory UnitOfWorkFactory) *RateTierService {
	return &RateTierService{uowFactory: uowFactory}
}

// ListTiers returns a product's table in storage order
func (s *RateTierService) ListTiers(ctx context.Context, product models.Product) ([]*models.InterestRateTier, error) {
	if !product.IsValid() {
		return nil, fmt.Errorf("%w: unknown product %q", ErrInvalidInput, product)
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	tiers, err := uow.RateTierRepository().ListByProduct(ctx, product)
	if err != nil {
		return nil, persistenceError("failed to list rate tiers", err)
	}
	return tiers, nil
}

// ReplaceTiers swaps a product's whole table in one unit. Input order is
// kept, so the later of two tiers sharing a threshold still wins under the
// last-seen tie-break.
func (s *RateTierService) ReplaceTiers(ctx context.Context, product models.Product, tiers []*models.InterestRateTier) error {
	if !product.IsValid() {
		return fmt.Errorf("%w: unknown product %q", ErrInvalidInput, product)
	}
	if len(tiers) == 0 {
		return fmt.Errorf("%w: a rate table needs at least one tier", ErrInvalidInput)
	}
	for i, tier := range tiers {
		if err := validateTier(tier); err != nil {
			return fmt.Errorf("tier %d: %w", i+1, err)
		}
	}

	uow, err := beginUnit(ctx, s.uowFactory)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.RateTierRepository().Replace(ctx, product, tiers); err != nil {
		return persistenceError("failed to replace rate tiers", err)
	}
	if err := commitUnit(uow); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"product": product,
		"tiers":   len(tiers),
	}).Info("Replaced interest rate table")
	return nil
}

func validateTier(tier *models.InterestRateTier) error {
	if tier == nil {
		return fmt.Errorf("%w: empty tier", ErrInvalidInput)
	}
	if tier.TermMonths <= 0 {
		return fmt.Errorf("%w: term must be positive, got %d", ErrInvalidInput, tier.TermMonths)
	}
	if tier.ThresholdAmount.IsNegative() {
		return fmt.Errorf("%w: threshold %s is negative", ErrInvalidInput, tier.ThresholdAmount)
	}
	if tier.RatePercent.IsNegative() || tier.RatePercent.GreaterThan(hundredPercent) {
		return fmt.Errorf("%w: rate %s%% is outside 0-100", ErrInvalidInput, tier.RatePercent)
	}
	return nil
}
