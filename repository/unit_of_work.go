package repository

import (
	"context"
	"errors"
	"fmt"

	"coopledger/database"
	"coopledger/events"
	"coopledger/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                *database.DB
	tx                pgx.Tx
	ctx               context.Context
	id                string
	transactionalBus  *events.TransactionalBus
	accountRepo       service.AccountRepository
	transactionRepo   service.TransactionRepository
	rateTierRepo      service.RateTierRepository
	timeDepositRepo   service.TimeDepositRepository
	loanRepo          service.LoanRepository
	installmentRepo   service.InstallmentRepository
	loanRepaymentRepo service.LoanRepaymentRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		id:               uuid.NewString(),
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories with the transaction
	u.accountRepo = newAccountRepositoryWithTx(tx)
	u.transactionRepo = newTransactionRepositoryWithTx(tx)
	u.rateTierRepo = newRateTierRepositoryWithTx(tx)
	u.timeDepositRepo = newTimeDepositRepositoryWithTx(tx)
	u.loanRepo = newLoanRepositoryWithTx(tx)
	u.installmentRepo = newInstallmentRepositoryWithTx(tx)
	u.loanRepaymentRepo = newLoanRepaymentRepositoryWithTx(tx)

	log.WithField("unitOfWork", u.id).Trace("Began unit of work")
	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	log.WithField("unitOfWork", u.id).Trace("Committed unit of work")
	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	log.WithField("unitOfWork", u.id).Trace("Rolled back unit of work")
	return nil
}

// AccountRepository returns the account repository for this unit of work
func (u *unitOfWork) AccountRepository() service.AccountRepository {
	if u.accountRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.accountRepo
}

// TransactionRepository returns the ledger repository for this unit of work
func (u *unitOfWork) TransactionRepository() service.TransactionRepository {
	if u.transactionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionRepo
}

// RateTierRepository returns the rate tier repository for this unit of work
func (u *unitOfWork) RateTierRepository() service.RateTierRepository {
	if u.rateTierRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.rateTierRepo
}

// TimeDepositRepository returns the time deposit repository for this unit of work
func (u *unitOfWork) TimeDepositRepository() service.TimeDepositRepository {
	if u.timeDepositRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.timeDepositRepo
}

// LoanRepository returns the loan repository for this unit of work
func (u *unitOfWork) LoanRepository() service.LoanRepository {
	if u.loanRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.loanRepo
}

// InstallmentRepository returns the installment repository for this unit of work
func (u *unitOfWork) InstallmentRepository() service.InstallmentRepository {
	if u.installmentRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.installmentRepo
}

// LoanRepaymentRepository returns the repayment repository for this unit of work
func (u *unitOfWork) LoanRepaymentRepository() service.LoanRepaymentRepository {
	if u.loanRepaymentRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.loanRepaymentRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
