package service

import (
	"context"
	"testing"
	"time"

	"almengine/events"
	"almengine/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decs(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

// decimalEqual matches a decimal argument by numeric value, ignoring
// internal exponent representation.
func decimalEqual(want string) interface{} {
	return mock.MatchedBy(func(v decimal.Decimal) bool {
		return v.Equal(dec(want))
	})
}

func TestChooseAdjustmentBucketPrefersSameSign(t *testing.T) {
	// Positive difference goes to the largest non-negative bucket
	idx := ChooseAdjustmentBucket(dec("200"), decs("100", "500", "-900"))
	assert.Equal(t, 1, idx)

	// Negative difference goes to the largest-magnitude negative bucket
	idx = ChooseAdjustmentBucket(dec("-50"), decs("100", "-500", "-900"))
	assert.Equal(t, 2, idx)
}

func TestChooseAdjustmentBucketZeroCountsAsPositive(t *testing.T) {
	idx := ChooseAdjustmentBucket(dec("10"), decs("0", "-100", "-200"))
	assert.Equal(t, 0, idx)
}

func TestChooseAdjustmentBucketFallsBackToLargestMagnitude(t *testing.T) {
	// No negative bucket available for a negative difference
	idx := ChooseAdjustmentBucket(dec("-10"), decs("100", "700", "300"))
	assert.Equal(t, 1, idx)
}

func TestChooseAdjustmentBucketTieResolvesToEarliest(t *testing.T) {
	idx := ChooseAdjustmentBucket(dec("5"), decs("400", "400", "100"))
	assert.Equal(t, 0, idx)
}

func TestReconcileRunAdjustsDifferenceIntoLargestBucket(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()
	svc := NewReconcileService(&MockUnitOfWorkFactory{UoW: uow})

	master := []models.TimeBucket{
		{BucketNumber: 1, SnapshotDate: snapshot, StartDate: date(2025, time.April, 30), EndDate: date(2025, time.May, 7)},
		{BucketNumber: 2, SnapshotDate: snapshot, StartDate: date(2025, time.May, 8), EndDate: date(2025, time.June, 7)},
		{BucketNumber: 3, SnapshotDate: snapshot, StartDate: date(2025, time.June, 8), EndDate: date(2030, time.June, 7)},
	}
	columns := []string{
		"bucket_001_20250430_20250507",
		"bucket_002_20250508_20250607",
		"bucket_003_20250608_20300607",
	}

	uow.TimeBucketRepo.On("ListForRun", mock.Anything, "contractual", snapshot).Return(master, nil)
	uow.AggregateRepo.On("PhysicalBucketCount", mock.Anything).Return(50, nil)
	uow.ReportRepo.On("BucketColumns", mock.Anything, "report_contractual_20250430").Return(columns, nil)

	// One event of 1000 in bucket 2, target balance 1200
	target := dec("1200")
	rows := []*models.ReconciliationRow{
		{
			ID:           7,
			ProductCode:  "LOAN01",
			CurrencyCode: "USD",
			Values:       decs("0", "1000", "0"),
			Target:       &target,
		},
	}
	uow.ReportRepo.On("ListReconciliationRows", mock.Anything, "report_contractual_20250430",
		"contractual", models.ElementTotalCashflow, columns).Return(rows, nil)

	// The +200 difference lands on bucket 2, the largest non-negative bucket
	uow.ReportRepo.On("ApplyAdjustment", mock.Anything, "report_contractual_20250430",
		columns[1], int64(7), decimalEqual("1200")).Return(nil)
	uow.ReportRepo.On("BucketSum", mock.Anything, "report_contractual_20250430",
		int64(7), columns).Return(dec("1200"), nil)

	err := svc.Run(context.Background(), "contractual", snapshot)
	require.NoError(t, err)

	uow.ReportRepo.AssertExpectations(t)
	assert.Equal(t, 1, uow.Commits)
}

func TestReconcileRunFlagsResidualFromPersistedRow(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()
	svc := NewReconcileService(&MockUnitOfWorkFactory{UoW: uow})

	master := []models.TimeBucket{
		{BucketNumber: 1, SnapshotDate: snapshot, StartDate: date(2025, time.April, 30), EndDate: date(2025, time.May, 7)},
	}
	columns := []string{"bucket_001_20250430_20250507"}

	uow.TimeBucketRepo.On("ListForRun", mock.Anything, "contractual", snapshot).Return(master, nil)
	uow.AggregateRepo.On("PhysicalBucketCount", mock.Anything).Return(50, nil)
	uow.ReportRepo.On("BucketColumns", mock.Anything, "report_contractual_20250430").Return(columns, nil)

	target := dec("1200")
	rows := []*models.ReconciliationRow{
		{ID: 3, ProductCode: "LOAN01", CurrencyCode: "USD", Values: decs("1000"), Target: &target},
	}
	uow.ReportRepo.On("ListReconciliationRows", mock.Anything, "report_contractual_20250430",
		"contractual", models.ElementTotalCashflow, columns).Return(rows, nil)
	uow.ReportRepo.On("ApplyAdjustment", mock.Anything, "report_contractual_20250430",
		columns[0], int64(3), decimalEqual("1200")).Return(nil)

	// The database reports a different value than what was written, so
	// the residual check must fire off the persisted sum
	uow.ReportRepo.On("BucketSum", mock.Anything, "report_contractual_20250430",
		int64(3), columns).Return(dec("1100"), nil)

	err := svc.Run(context.Background(), "contractual", snapshot)
	require.NoError(t, err)

	require.Len(t, uow.Publisher.Events, 1)
	breakEvent, ok := uow.Publisher.Events[0].(events.AlignmentBreakEvent)
	require.True(t, ok)
	assert.Equal(t, "LOAN01", breakEvent.ProductCode)
	assert.Equal(t, "100", breakEvent.Deviation)
}

func TestReconcileRunLeavesMissingTargetsUntouched(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()
	svc := NewReconcileService(&MockUnitOfWorkFactory{UoW: uow})

	master := []models.TimeBucket{
		{BucketNumber: 1, SnapshotDate: snapshot, StartDate: date(2025, time.April, 30), EndDate: date(2025, time.May, 7)},
	}
	columns := []string{"bucket_001_20250430_20250507"}

	uow.TimeBucketRepo.On("ListForRun", mock.Anything, "contractual", snapshot).Return(master, nil)
	uow.AggregateRepo.On("PhysicalBucketCount", mock.Anything).Return(50, nil)
	uow.ReportRepo.On("BucketColumns", mock.Anything, "report_contractual_20250430").Return(columns, nil)

	rows := []*models.ReconciliationRow{
		{ID: 1, ProductCode: "DEP01", CurrencyCode: "EUR", Values: decs("300"), Target: nil},
	}
	uow.ReportRepo.On("ListReconciliationRows", mock.Anything, "report_contractual_20250430",
		"contractual", models.ElementTotalCashflow, columns).Return(rows, nil)

	err := svc.Run(context.Background(), "contractual", snapshot)
	require.NoError(t, err)

	uow.ReportRepo.AssertNotCalled(t, "ApplyAdjustment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileRunSkipsAlignedRows(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()
	svc := NewReconcileService(&MockUnitOfWorkFactory{UoW: uow})

	master := []models.TimeBucket{
		{BucketNumber: 1, SnapshotDate: snapshot, StartDate: date(2025, time.April, 30), EndDate: date(2025, time.May, 7)},
	}
	columns := []string{"bucket_001_20250430_20250507"}

	uow.TimeBucketRepo.On("ListForRun", mock.Anything, "contractual", snapshot).Return(master, nil)
	uow.AggregateRepo.On("PhysicalBucketCount", mock.Anything).Return(50, nil)
	uow.ReportRepo.On("BucketColumns", mock.Anything, "report_contractual_20250430").Return(columns, nil)

	target := dec("500.00")
	rows := []*models.ReconciliationRow{
		{ID: 2, ProductCode: "LOAN02", CurrencyCode: "USD", Values: decs("500.00"), Target: &target},
	}
	uow.ReportRepo.On("ListReconciliationRows", mock.Anything, "report_contractual_20250430",
		"contractual", models.ElementTotalCashflow, columns).Return(rows, nil)

	err := svc.Run(context.Background(), "contractual", snapshot)
	require.NoError(t, err)

	uow.ReportRepo.AssertNotCalled(t, "ApplyAdjustment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
