package service

import (
	"context"
)

// beginUnit creates and starts a unit of work. Callers defer Rollback, which
// is a no-op after a successful Commit.
func beginUnit(ctx context.Context, factory UnitOfWorkFactory) (UnitOfWork, error) {
	uow := factory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	return uow, nil
}

func commitUnit(uow UnitOfWork) error {
	return persistenceError("failed to commit transaction", uow.Commit())
}
