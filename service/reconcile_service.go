package service

import (
	"context"
	"time"

	"almengine/events"
	"almengine/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// reconcileTolerance is the largest deviation between a bucket sum and
// its target balance that counts as aligned.
var reconcileTolerance = decimal.New(1, -2) // 0.01

// reconcileService implements the ReconcileService interface
type reconcileService struct {
	uowFactory UnitOfWorkFactory
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(uowFactory UnitOfWorkFactory) ReconcileService {
	return &reconcileService{uowFactory: uowFactory}
}

// ChooseAdjustmentBucket picks the bucket that absorbs a reconciliation
// difference. Preference goes to the largest-magnitude bucket whose
// sign matches the difference (zero counts as positive); when no bucket
// matches, the largest-magnitude bucket overall takes it. Ties resolve
// to the earliest bucket.
func ChooseAdjustmentBucket(diff decimal.Decimal, values []decimal.Decimal) int {
	if len(values) == 0 {
		return -1
	}

	candidate := -1
	var candidateAbs decimal.Decimal
	for i, v := range values {
		sameSign := (diff.Sign() > 0 && v.Sign() >= 0) || (diff.Sign() < 0 && v.Sign() < 0)
		if !sameSign {
			continue
		}
		if candidate == -1 || v.Abs().GreaterThan(candidateAbs) {
			candidate = i
			candidateAbs = v.Abs()
		}
	}
	if candidate != -1 {
		return candidate
	}

	candidate = 0
	candidateAbs = values[0].Abs()
	for i, v := range values[1:] {
		if v.Abs().GreaterThan(candidateAbs) {
			candidate = i + 1
			candidateAbs = v.Abs()
		}
	}
	return candidate
}

// Run compares every (product, currency) pair's bucket sum against its
// target balance and pushes the difference into one bucket. Pairs with
// no target are reported and left untouched. A residual above tolerance
// after adjusting is logged as an error but does not abort the run.
func (s *reconcileService) Run(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	table := models.ReportContractual.TableName(snapshot)
	_, columns, err := usableMasterColumns(ctx, uow, table, processName, snapshot)
	if err != nil {
		return err
	}

	rows, err := uow.ReportRepository().ListReconciliationRows(ctx, table, processName,
		models.ElementTotalCashflow, columns)
	if err != nil {
		return err
	}

	var adjusted, aligned int
	var missing []string

	for _, row := range rows {
		if row.Target == nil {
			missing = append(missing, row.ProductCode+"/"+row.CurrencyCode)
			continue
		}

		sum := decimal.Zero
		for _, v := range row.Values {
			sum = sum.Add(v)
		}

		diff := row.Target.Sub(sum).Round(2)
		if diff.IsZero() {
			aligned++
			continue
		}

		idx := ChooseAdjustmentBucket(diff, row.Values)
		newValue := row.Values[idx].Add(diff).Round(2)
		if err := uow.ReportRepository().ApplyAdjustment(ctx, table, columns[idx], row.ID, newValue); err != nil {
			return err
		}
		adjusted++

		// Re-read the persisted row to verify the adjustment closed the
		// gap, write path included
		persisted, err := uow.ReportRepository().BucketSum(ctx, table, row.ID, columns)
		if err != nil {
			return err
		}
		residual := row.Target.Sub(persisted).Abs()
		if residual.GreaterThan(reconcileTolerance) {
			log.WithFields(log.Fields{
				"product":  row.ProductCode,
				"currency": row.CurrencyCode,
				"residual": residual.String(),
			}).Error("Reconciliation residual above tolerance")
			uow.EventBus().Publish(events.AlignmentBreakEvent{
				SnapshotDate: snapshot,
				ProductCode:  row.ProductCode,
				CurrencyCode: row.CurrencyCode,
				Deviation:    residual.String(),
			})
		}
	}

	if len(missing) > 0 {
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
			"pairs":    missing,
		}).Warn("Report rows without a target balance were left untouched")
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"aligned":  aligned,
		"adjusted": adjusted,
		"missing":  len(missing),
	}).Info("Reconciled bucket sums against target balances")

	return uow.Commit()
}

// VerifyAlignment re-checks every pair with a target and returns the
// ones still deviating beyond tolerance.
func (s *reconcileService) VerifyAlignment(ctx context.Context, processName string, snapshot time.Time) ([]models.AlignmentBreak, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	table := models.ReportContractual.TableName(snapshot)
	_, columns, err := usableMasterColumns(ctx, uow, table, processName, snapshot)
	if err != nil {
		return nil, err
	}

	rows, err := uow.ReportRepository().ListReconciliationRows(ctx, table, processName,
		models.ElementTotalCashflow, columns)
	if err != nil {
		return nil, err
	}

	var breaks []models.AlignmentBreak
	for _, row := range rows {
		if row.Target == nil {
			continue
		}
		sum := decimal.Zero
		for _, v := range row.Values {
			sum = sum.Add(v)
		}
		deviation := row.Target.Sub(sum).Abs()
		if deviation.GreaterThan(reconcileTolerance) {
			breaks = append(breaks, models.AlignmentBreak{
				ProductCode:  row.ProductCode,
				CurrencyCode: row.CurrencyCode,
				Target:       *row.Target,
				BucketSum:    sum,
				Deviation:    deviation,
			})
		}
	}

	return breaks, uow.Commit()
}
