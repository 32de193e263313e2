package repository

import (
	"context"
	"fmt"

	"almengine/database"
	"almengine/events"
	"almengine/service"
	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	timeBucketRepo   service.TimeBucketRepository
	cashflowRepo     service.CashflowRepository
	aggregateRepo    service.AggregateRepository
	reportRepo       service.ReportRepository
	referenceRepo    service.ReferenceRepository
	executionRepo    service.ExecutionRepository
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
	u.timeBucketRepo = newTimeBucketRepositoryWithTx(tx)
	u.cashflowRepo = newCashflowRepositoryWithTx(tx)
	u.aggregateRepo = newAggregateRepositoryWithTx(tx)
	u.reportRepo = newReportRepositoryWithTx(tx)
	u.referenceRepo = newReferenceRepositoryWithTx(tx)
	u.executionRepo = newExecutionRepositoryWithTx(tx)

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

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// TimeBucketRepository returns the time bucket repository for this unit of work
func (u *unitOfWork) TimeBucketRepository() service.TimeBucketRepository {
	if u.timeBucketRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.timeBucketRepo
}

// CashflowRepository returns the cashflow repository for this unit of work
func (u *unitOfWork) CashflowRepository() service.CashflowRepository {
	if u.cashflowRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.cashflowRepo
}

// AggregateRepository returns the aggregate repository for this unit of work
func (u *unitOfWork) AggregateRepository() service.AggregateRepository {
	if u.aggregateRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.aggregateRepo
}

// ReportRepository returns the report repository for this unit of work
func (u *unitOfWork) ReportRepository() service.ReportRepository {
	if u.reportRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.reportRepo
}

// ReferenceRepository returns the reference repository for this unit of work
func (u *unitOfWork) ReferenceRepository() service.ReferenceRepository {
	if u.referenceRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.referenceRepo
}

// ExecutionRepository returns the execution repository for this unit of work
func (u *unitOfWork) ExecutionRepository() service.ExecutionRepository {
	if u.executionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.executionRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
