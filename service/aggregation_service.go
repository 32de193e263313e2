package service

import (
	"context"
	"fmt"
	"time"

	"almengine/events"
	"almengine/models"

	log "github.com/sirupsen/logrus"
)

// aggregationService implements the AggregationService interface
type aggregationService struct {
	uowFactory UnitOfWorkFactory
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(uowFactory UnitOfWorkFactory) AggregationService {
	return &aggregationService{uowFactory: uowFactory}
}

// Run flags the snapshot's cashflow events, regenerates the bucket
// master and rebuilds the account-level bucket aggregates from scratch.
// Everything happens in one transaction, so a failure leaves the
// previous aggregates untouched.
func (s *aggregationService) Run(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	flagged, err := uow.CashflowRepository().FlagEligible(ctx, snapshot)
	if err != nil {
		return err
	}
	if flagged == 0 {
		return fmt.Errorf("no cashflow events found for snapshot %s", snapshot.Format("2006-01-02"))
	}

	stats, err := uow.CashflowRepository().MissingDimensionStats(ctx, snapshot)
	if err != nil {
		return err
	}
	s.reportMissingDimensions(uow, snapshot, stats)

	defs, err := uow.TimeBucketRepository().ListDefinitions(ctx)
	if err != nil {
		return err
	}
	buckets, err := BuildBucketRanges(defs, snapshot)
	if err != nil {
		return err
	}

	// The master keeps every configured range; aggregation can only fill
	// as many as the aggregate tables physically carry.
	if err := uow.TimeBucketRepository().ReplaceForRun(ctx, processName, snapshot, buckets); err != nil {
		return err
	}

	physical, err := uow.AggregateRepository().PhysicalBucketCount(ctx)
	if err != nil {
		return err
	}
	usable := buckets
	if len(buckets) > physical {
		log.WithFields(log.Fields{
			"configured": len(buckets),
			"physical":   physical,
		}).Warn("More bucket ranges configured than physical columns, truncating")
		usable = buckets[:physical]
	}

	if _, err := uow.AggregateRepository().DeleteAccountAggregates(ctx, processName, snapshot); err != nil {
		return err
	}

	for _, element := range models.FinancialElements() {
		rows, err := uow.CashflowRepository().AggregateIntoBuckets(ctx, processName, snapshot, element, usable)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
			"element":  element,
			"rows":     rows,
		}).Info("Aggregated cashflow events into account buckets")
	}

	spanStart := usable[0].StartDate
	spanEnd := usable[len(usable)-1].EndDate
	outOfSpan, err := uow.CashflowRepository().OutOfSpanCount(ctx, snapshot, spanStart, spanEnd)
	if err != nil {
		return err
	}
	if outOfSpan > 0 {
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
			"count":    outOfSpan,
			"spanEnd":  spanEnd.Format("2006-01-02"),
		}).Warn("Cashflow events outside the bucket span were not aggregated")
	}

	return uow.Commit()
}

func (s *aggregationService) reportMissingDimensions(uow UnitOfWork, snapshot time.Time, stats models.DimensionStats) {
	if stats.Total() == 0 {
		return
	}

	if stats.MissingProductCode > 0 {
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
			"count":    stats.MissingProductCode,
			"samples":  sampleAccounts(stats.ProductCodeSamples),
		}).Warn("Cashflow events missing product code")
		uow.EventBus().Publish(events.DataQualityIssueEvent{
			SnapshotDate: snapshot,
			Dimension:    "product_code",
			Count:        stats.MissingProductCode,
		})
	}
	if stats.MissingLoanType > 0 {
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
			"count":    stats.MissingLoanType,
			"samples":  sampleAccounts(stats.LoanTypeSamples),
		}).Warn("Cashflow events missing loan type")
		uow.EventBus().Publish(events.DataQualityIssueEvent{
			SnapshotDate: snapshot,
			Dimension:    "loan_type",
			Count:        stats.MissingLoanType,
		})
	}
}

func sampleAccounts(samples []models.CashflowEvent) []string {
	accounts := make([]string, 0, len(samples))
	for _, s := range samples {
		accounts = append(accounts, s.AccountNumber)
	}
	return accounts
}
