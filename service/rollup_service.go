package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// rollupService implements the RollupService interface
type rollupService struct {
	uowFactory UnitOfWorkFactory
}

// NewRollupService creates a new rollup service
func NewRollupService(uowFactory UnitOfWorkFactory) RollupService {
	return &rollupService{uowFactory: uowFactory}
}

// Run deletes the snapshot's product aggregates and rebuilds them from
// the account aggregates in one transaction.
func (s *rollupService) Run(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	numbers, err := usableBucketNumbers(ctx, uow, processName, snapshot)
	if err != nil {
		return err
	}

	if _, err := uow.AggregateRepository().DeleteProductAggregates(ctx, processName, snapshot); err != nil {
		return err
	}

	rows, err := uow.AggregateRepository().RollUpProducts(ctx, processName, snapshot, numbers)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"process":  processName,
		"rows":     rows,
	}).Info("Rolled up account aggregates to product level")

	return uow.Commit()
}

// usableBucketNumbers returns the bucket numbers both present in the
// bucket master and physically backed by aggregate columns.
func usableBucketNumbers(ctx context.Context, uow UnitOfWork, processName string, snapshot time.Time) ([]int, error) {
	master, err := uow.TimeBucketRepository().ListForRun(ctx, processName, snapshot)
	if err != nil {
		return nil, err
	}
	if len(master) == 0 {
		return nil, fmt.Errorf("no bucket master rows for %s/%s, run the aggregation step first",
			processName, snapshot.Format("2006-01-02"))
	}

	physical, err := uow.AggregateRepository().PhysicalBucketCount(ctx)
	if err != nil {
		return nil, err
	}

	count := len(master)
	if count > physical {
		count = physical
	}

	numbers := make([]int, 0, count)
	for _, b := range master[:count] {
		numbers = append(numbers, b.BucketNumber)
	}
	return numbers, nil
}
