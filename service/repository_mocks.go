package service

import (
	"context"
	"time"

	"almengine/events"
	"almengine/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockTimeBucketRepository is a mock implementation of TimeBucketRepository
type MockTimeBucketRepository struct {
	mock.Mock
}

func (m *MockTimeBucketRepository) ListDefinitions(ctx context.Context) ([]models.BucketDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BucketDefinition), args.Error(1)
}

func (m *MockTimeBucketRepository) ReplaceForRun(ctx context.Context, processName string, snapshot time.Time, buckets []models.TimeBucket) error {
	args := m.Called(ctx, processName, snapshot, buckets)
	return args.Error(0)
}

func (m *MockTimeBucketRepository) ListForRun(ctx context.Context, processName string, snapshot time.Time) ([]models.TimeBucket, error) {
	args := m.Called(ctx, processName, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TimeBucket), args.Error(1)
}

// MockCashflowRepository is a mock implementation of CashflowRepository
type MockCashflowRepository struct {
	mock.Mock
}

func (m *MockCashflowRepository) FlagEligible(ctx context.Context, snapshot time.Time) (int64, error) {
	args := m.Called(ctx, snapshot)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCashflowRepository) MissingDimensionStats(ctx context.Context, snapshot time.Time) (models.DimensionStats, error) {
	args := m.Called(ctx, snapshot)
	return args.Get(0).(models.DimensionStats), args.Error(1)
}

func (m *MockCashflowRepository) OutOfSpanCount(ctx context.Context, snapshot, spanStart, spanEnd time.Time) (int64, error) {
	args := m.Called(ctx, snapshot, spanStart, spanEnd)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCashflowRepository) AggregateIntoBuckets(ctx context.Context, processName string, snapshot time.Time, element models.FinancialElement, buckets []models.TimeBucket) (int64, error) {
	args := m.Called(ctx, processName, snapshot, element, buckets)
	return args.Get(0).(int64), args.Error(1)
}

// MockAggregateRepository is a mock implementation of AggregateRepository
type MockAggregateRepository struct {
	mock.Mock
}

func (m *MockAggregateRepository) PhysicalBucketCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockAggregateRepository) DeleteAccountAggregates(ctx context.Context, processName string, snapshot time.Time) (int64, error) {
	args := m.Called(ctx, processName, snapshot)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAggregateRepository) DeleteProductAggregates(ctx context.Context, processName string, snapshot time.Time) (int64, error) {
	args := m.Called(ctx, processName, snapshot)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAggregateRepository) RollUpProducts(ctx context.Context, processName string, snapshot time.Time, bucketNumbers []int) (int64, error) {
	args := m.Called(ctx, processName, snapshot, bucketNumbers)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAggregateRepository) ListProductTotals(ctx context.Context, processName string, snapshot time.Time, element models.FinancialElement, bucketNumbers []int) ([]*models.ProductAggregate, error) {
	args := m.Called(ctx, processName, snapshot, element, bucketNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ProductAggregate), args.Error(1)
}

// MockReportRepository is a mock implementation of ReportRepository
type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) CreateTableLike(ctx context.Context, table, template string) error {
	args := m.Called(ctx, table, template)
	return args.Error(0)
}

func (m *MockReportRepository) TableExists(ctx context.Context, table string) (bool, error) {
	args := m.Called(ctx, table)
	return args.Bool(0), args.Error(1)
}

func (m *MockReportRepository) BucketColumns(ctx context.Context, table string) ([]string, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockReportRepository) DropBucketColumns(ctx context.Context, table string, columns []string) error {
	args := m.Called(ctx, table, columns)
	return args.Error(0)
}

func (m *MockReportRepository) AddBucketColumns(ctx context.Context, table string, columns []string) error {
	args := m.Called(ctx, table, columns)
	return args.Error(0)
}

func (m *MockReportRepository) DeleteRows(ctx context.Context, table, processName string) (int64, error) {
	args := m.Called(ctx, table, processName)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReportRepository) InsertStaticRow(ctx context.Context, table string, row *models.ReportRow) error {
	args := m.Called(ctx, table, row)
	return args.Error(0)
}

func (m *MockReportRepository) UpdateBucketValues(ctx context.Context, table, processName, productCode, currencyCode string, element models.FinancialElement, values map[string]decimal.Decimal) error {
	args := m.Called(ctx, table, processName, productCode, currencyCode, element, values)
	return args.Error(0)
}

func (m *MockReportRepository) ListReconciliationRows(ctx context.Context, table, processName string, element models.FinancialElement, columns []string) ([]*models.ReconciliationRow, error) {
	args := m.Called(ctx, table, processName, element, columns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ReconciliationRow), args.Error(1)
}

func (m *MockReportRepository) ApplyAdjustment(ctx context.Context, table, column string, rowID int64, newValue decimal.Decimal) error {
	args := m.Called(ctx, table, column, rowID, newValue)
	return args.Error(0)
}

func (m *MockReportRepository) BucketSum(ctx context.Context, table string, rowID int64, columns []string) (decimal.Decimal, error) {
	args := m.Called(ctx, table, rowID, columns)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockReportRepository) ListBucketRows(ctx context.Context, table, processName string, columns []string) ([]*models.BucketValueRow, error) {
	args := m.Called(ctx, table, processName, columns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BucketValueRow), args.Error(1)
}

func (m *MockReportRepository) CopyRowWithValues(ctx context.Context, srcTable, dstTable string, srcID int64, columns []string, values []decimal.Decimal) error {
	args := m.Called(ctx, srcTable, dstTable, srcID, columns, values)
	return args.Error(0)
}

func (m *MockReportRepository) CopyWithFX(ctx context.Context, srcTable, dstTable, processName, reportingCurrency string, columns []string, rates map[string]decimal.Decimal) (int64, error) {
	args := m.Called(ctx, srcTable, dstTable, processName, reportingCurrency, columns, rates)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReportRepository) CopyForProductTypes(ctx context.Context, srcTable, dstTable, processName string, columns []string, productTypes []string) (int64, error) {
	args := m.Called(ctx, srcTable, dstTable, processName, columns, productTypes)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReportRepository) RowCount(ctx context.Context, table, processName string) (int64, error) {
	args := m.Called(ctx, table, processName)
	return args.Get(0).(int64), args.Error(1)
}

// MockReferenceRepository is a mock implementation of ReferenceRepository
type MockReferenceRepository struct {
	mock.Mock
}

func (m *MockReferenceRepository) ProductsLatest(ctx context.Context, snapshot time.Time) (map[string]*models.Product, error) {
	args := m.Called(ctx, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.Product), args.Error(1)
}

func (m *MockReferenceRepository) AccountClassesLatest(ctx context.Context, snapshot time.Time) (map[string]*models.AccountClass, error) {
	args := m.Called(ctx, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.AccountClass), args.Error(1)
}

func (m *MockReferenceRepository) RatesAsOf(ctx context.Context, snapshot time.Time, reportingCurrency string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, snapshot, reportingCurrency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

func (m *MockReferenceRepository) RateSensitiveProductTypes(ctx context.Context, snapshot time.Time) ([]string, error) {
	args := m.Called(ctx, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockReferenceRepository) BehavioralPatterns(ctx context.Context) (map[string]*models.BehavioralPattern, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.BehavioralPattern), args.Error(1)
}

// MockExecutionRepository is a mock implementation of ExecutionRepository
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) NextRunNumber(ctx context.Context, snapshot time.Time, processName string) (int, error) {
	args := m.Called(ctx, snapshot, processName)
	return args.Int(0), args.Error(1)
}

func (m *MockExecutionRepository) LatestRunNumber(ctx context.Context, snapshot time.Time, processName string) (int, error) {
	args := m.Called(ctx, snapshot, processName)
	return args.Int(0), args.Error(1)
}

func (m *MockExecutionRepository) CreateSteps(ctx context.Context, steps []*models.StepExecution) error {
	args := m.Called(ctx, steps)
	return args.Error(0)
}

func (m *MockExecutionRepository) Update(ctx context.Context, step *models.StepExecution) error {
	args := m.Called(ctx, step)
	return args.Error(0)
}

func (m *MockExecutionRepository) ListRun(ctx context.Context, snapshot time.Time, runNumber int, processName string) ([]*models.StepExecution, error) {
	args := m.Called(ctx, snapshot, runNumber, processName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.StepExecution), args.Error(1)
}

func (m *MockExecutionRepository) ResetForResume(ctx context.Context, snapshot time.Time, runNumber int, processName string, fromOrder int) (int64, error) {
	args := m.Called(ctx, snapshot, runNumber, processName, fromOrder)
	return args.Get(0).(int64), args.Error(1)
}

// RecordingPublisher collects published events for assertions
type RecordingPublisher struct {
	Events []events.Event
}

func (p *RecordingPublisher) Publish(event events.Event) {
	p.Events = append(p.Events, event)
}

// MockUnitOfWork bundles mock repositories behind the UnitOfWork
// interface with no real transaction underneath.
type MockUnitOfWork struct {
	TimeBucketRepo *MockTimeBucketRepository
	CashflowRepo   *MockCashflowRepository
	AggregateRepo  *MockAggregateRepository
	ReportRepo     *MockReportRepository
	ReferenceRepo  *MockReferenceRepository
	ExecutionRepo  *MockExecutionRepository
	Publisher      *RecordingPublisher

	BeginErr   error
	CommitErr  error
	Commits    int
	Rollbacks  int
}

// NewMockUnitOfWork creates a unit of work with fresh mocks
func NewMockUnitOfWork() *MockUnitOfWork {
	return &MockUnitOfWork{
		TimeBucketRepo: &MockTimeBucketRepository{},
		CashflowRepo:   &MockCashflowRepository{},
		AggregateRepo:  &MockAggregateRepository{},
		ReportRepo:     &MockReportRepository{},
		ReferenceRepo:  &MockReferenceRepository{},
		ExecutionRepo:  &MockExecutionRepository{},
		Publisher:      &RecordingPublisher{},
	}
}

func (u *MockUnitOfWork) Begin(ctx context.Context) error { return u.BeginErr }

func (u *MockUnitOfWork) Commit() error {
	u.Commits++
	return u.CommitErr
}

func (u *MockUnitOfWork) Rollback() error {
	u.Rollbacks++
	return nil
}

func (u *MockUnitOfWork) TimeBucketRepository() TimeBucketRepository { return u.TimeBucketRepo }
func (u *MockUnitOfWork) CashflowRepository() CashflowRepository     { return u.CashflowRepo }
func (u *MockUnitOfWork) AggregateRepository() AggregateRepository   { return u.AggregateRepo }
func (u *MockUnitOfWork) ReportRepository() ReportRepository         { return u.ReportRepo }
func (u *MockUnitOfWork) ReferenceRepository() ReferenceRepository   { return u.ReferenceRepo }
func (u *MockUnitOfWork) ExecutionRepository() ExecutionRepository   { return u.ExecutionRepo }
func (u *MockUnitOfWork) EventBus() EventPublisher                   { return u.Publisher }

// MockUnitOfWorkFactory hands out the same mock unit of work
type MockUnitOfWorkFactory struct {
	UoW *MockUnitOfWork
}

func (f *MockUnitOfWorkFactory) Create() UnitOfWork { return f.UoW }
