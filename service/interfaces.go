package service

import (
	"context"
	"time"

	"almengine/events"
	"almengine/models"

	"github.com/shopspring/decimal"
)

// TimeBucketRepository defines the interface for bucket definition and
// bucket master access
type TimeBucketRepository interface {
	// ListDefinitions returns the configured bucket ladder ordered by serial number
	ListDefinitions(ctx context.Context) ([]models.BucketDefinition, error)

	// ReplaceForRun replaces the bucket master rows for one (process, snapshot) pair
	ReplaceForRun(ctx context.Context, processName string, snapshot time.Time, buckets []models.TimeBucket) error

	// ListForRun returns the bucket master rows for one (process, snapshot) pair
	ListForRun(ctx context.Context, processName string, snapshot time.Time) ([]models.TimeBucket, error)
}

// CashflowRepository defines the interface for cashflow event access
type CashflowRepository interface {
	// FlagEligible marks the snapshot's events for processing and returns the count
	FlagEligible(ctx context.Context, snapshot time.Time) (int64, error)

	// MissingDimensionStats reports flagged events without grouping dimensions
	MissingDimensionStats(ctx context.Context, snapshot time.Time) (models.DimensionStats, error)

	// OutOfSpanCount counts flagged events outside the bucket span
	OutOfSpanCount(ctx context.Context, snapshot, spanStart, spanEnd time.Time) (int64, error)

	// AggregateIntoBuckets folds one financial element into account aggregates
	AggregateIntoBuckets(ctx context.Context, processName string, snapshot time.Time, element models.FinancialElement, buckets []models.TimeBucket) (int64, error)
}

// AggregateRepository defines the interface for the bucket aggregate tables
type AggregateRepository interface {
	// PhysicalBucketCount returns how many bucket_N columns the aggregate tables carry
	PhysicalBucketCount(ctx context.Context) (int, error)

	// DeleteAccountAggregates removes every account aggregate row of one run
	DeleteAccountAggregates(ctx context.Context, processName string, snapshot time.Time) (int64, error)

	// DeleteProductAggregates removes every product aggregate row of one run
	DeleteProductAggregates(ctx context.Context, processName string, snapshot time.Time) (int64, error)

	// RollUpProducts sums account aggregates into product aggregates
	RollUpProducts(ctx context.Context, processName string, snapshot time.Time, bucketNumbers []int) (int64, error)

	// ListProductTotals returns per (product, currency) bucket sums for one element
	ListProductTotals(ctx context.Context, processName string, snapshot time.Time, element models.FinancialElement, bucketNumbers []int) ([]*models.ProductAggregate, error)
}

// ReportRepository defines the interface for the per-snapshot report tables
type ReportRepository interface {
	// CreateTableLike recreates the table from the template's structure
	CreateTableLike(ctx context.Context, table, template string) error

	// TableExists reports whether the table exists in the current schema
	TableExists(ctx context.Context, table string) (bool, error)

	// BucketColumns returns the table's bucket columns in definition order
	BucketColumns(ctx context.Context, table string) ([]string, error)

	// DropBucketColumns removes the given bucket columns from the table
	DropBucketColumns(ctx context.Context, table string, columns []string) error

	// AddBucketColumns adds the given bucket columns to the table
	AddBucketColumns(ctx context.Context, table string, columns []string) error

	// DeleteRows clears every row of the table for one process
	DeleteRows(ctx context.Context, table, processName string) (int64, error)

	// InsertStaticRow inserts the static portion of one report row
	InsertStaticRow(ctx context.Context, table string, row *models.ReportRow) error

	// UpdateBucketValues writes bucket values onto one report row
	UpdateBucketValues(ctx context.Context, table, processName, productCode, currencyCode string, element models.FinancialElement, values map[string]decimal.Decimal) error

	// ListReconciliationRows reads one element's rows with targets attached
	ListReconciliationRows(ctx context.Context, table, processName string, element models.FinancialElement, columns []string) ([]*models.ReconciliationRow, error)

	// ApplyAdjustment writes an adjusted bucket value onto one row
	ApplyAdjustment(ctx context.Context, table, column string, rowID int64, newValue decimal.Decimal) error

	// BucketSum reads one row's persisted bucket total
	BucketSum(ctx context.Context, table string, rowID int64, columns []string) (decimal.Decimal, error)

	// ListBucketRows reads every row's bucket values with its product type
	ListBucketRows(ctx context.Context, table, processName string, columns []string) ([]*models.BucketValueRow, error)

	// CopyRowWithValues copies one row's statics with replacement bucket values
	CopyRowWithValues(ctx context.Context, srcTable, dstTable string, srcID int64, columns []string, values []decimal.Decimal) error

	// CopyWithFX copies all rows converting amounts into the reporting currency
	CopyWithFX(ctx context.Context, srcTable, dstTable, processName, reportingCurrency string, columns []string, rates map[string]decimal.Decimal) (int64, error)

	// CopyForProductTypes copies rows whose product type is in the given set
	CopyForProductTypes(ctx context.Context, srcTable, dstTable, processName string, columns []string, productTypes []string) (int64, error)

	// RowCount returns the table's row count for one process
	RowCount(ctx context.Context, table, processName string) (int64, error)
}

// ReferenceRepository defines the interface for master data lookups
type ReferenceRepository interface {
	// ProductsLatest returns the newest product version per code at or before the snapshot
	ProductsLatest(ctx context.Context, snapshot time.Time) (map[string]*models.Product, error)

	// AccountClassesLatest returns the newest account class version per COA code
	AccountClassesLatest(ctx context.Context, snapshot time.Time) (map[string]*models.AccountClass, error)

	// RatesAsOf returns the latest rate into the reporting currency per source currency
	RatesAsOf(ctx context.Context, snapshot time.Time, reportingCurrency string) (map[string]decimal.Decimal, error)

	// RateSensitiveProductTypes returns product types flagged rate sensitive
	RateSensitiveProductTypes(ctx context.Context, snapshot time.Time) ([]string, error)

	// BehavioralPatterns returns every respread pattern keyed by product type
	BehavioralPatterns(ctx context.Context) (map[string]*models.BehavioralPattern, error)
}

// ExecutionRepository defines the interface for pipeline run state
type ExecutionRepository interface {
	// NextRunNumber returns the next unused run number for the snapshot
	NextRunNumber(ctx context.Context, snapshot time.Time, processName string) (int, error)

	// LatestRunNumber returns the most recent run number, 0 when never run
	LatestRunNumber(ctx context.Context, snapshot time.Time, processName string) (int, error)

	// CreateSteps inserts one Pending record per step for a new run
	CreateSteps(ctx context.Context, steps []*models.StepExecution) error

	// Update persists a step's current status, attempts and timestamps
	Update(ctx context.Context, step *models.StepExecution) error

	// ListRun returns every step record of one run in step order
	ListRun(ctx context.Context, snapshot time.Time, runNumber int, processName string) ([]*models.StepExecution, error)

	// ResetForResume flips non-Success steps at or after the order back to Pending
	ResetForResume(ctx context.Context, snapshot time.Time, runNumber int, processName string, fromOrder int) (int64, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork bundles transaction-scoped repositories. Every
// delete-then-rewrite step runs inside one so a failure leaves the
// previous complete data set in place.
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// TimeBucketRepository returns the bucket repository for this unit of work
	TimeBucketRepository() TimeBucketRepository

	// CashflowRepository returns the cashflow repository for this unit of work
	CashflowRepository() CashflowRepository

	// AggregateRepository returns the aggregate repository for this unit of work
	AggregateRepository() AggregateRepository

	// ReportRepository returns the report repository for this unit of work
	ReportRepository() ReportRepository

	// ReferenceRepository returns the reference repository for this unit of work
	ReferenceRepository() ReferenceRepository

	// ExecutionRepository returns the execution repository for this unit of work
	ExecutionRepository() ExecutionRepository

	// EventBus returns the transactional event bus for this unit of work
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// AggregationService rebuilds the account bucket aggregates of a snapshot
type AggregationService interface {
	// Run flags events, regenerates the bucket master and aggregates
	Run(ctx context.Context, processName string, snapshot time.Time) error
}

// RollupService sums account aggregates up to product level
type RollupService interface {
	// Run rebuilds the product aggregates from the account aggregates
	Run(ctx context.Context, processName string, snapshot time.Time) error
}

// SchemaService maintains the per-snapshot report tables' structure
type SchemaService interface {
	// CreateContractualTable recreates the snapshot's contractual table
	// and synchronizes its bucket columns with the bucket master
	CreateContractualTable(ctx context.Context, processName string, snapshot time.Time) error

	// SyncBucketColumns aligns one table's bucket columns with the master
	SyncBucketColumns(ctx context.Context, uow UnitOfWork, table, processName string, snapshot time.Time) error
}

// ContractualReportService loads the contractual report from product aggregates
type ContractualReportService interface {
	// Run fills the snapshot's contractual table
	Run(ctx context.Context, processName string, snapshot time.Time) error
}

// ReconcileService aligns bucketed cash flows with target balances
type ReconcileService interface {
	// Run adjusts report rows so bucket sums meet their target balances
	Run(ctx context.Context, processName string, snapshot time.Time) error

	// VerifyAlignment returns the pairs still deviating beyond tolerance
	VerifyAlignment(ctx context.Context, processName string, snapshot time.Time) ([]models.AlignmentBreak, error)
}

// ConsolidationService converts the report into the reporting currency
type ConsolidationService interface {
	// Run builds the snapshot's consolidated table
	Run(ctx context.Context, processName string, snapshot time.Time) error
}

// BehavioralService redistributes cash flows per behavioral patterns
type BehavioralService interface {
	// Run builds the snapshot's behavioral table
	Run(ctx context.Context, processName string, snapshot time.Time) error
}

// RateSensitiveService extracts rate sensitive products into their own table
type RateSensitiveService interface {
	// Run builds the snapshot's rate sensitive table
	Run(ctx context.Context, processName string, snapshot time.Time) error
}

// ExecutionService orchestrates pipeline runs and their persisted state
type ExecutionService interface {
	// Execute starts a fresh run for the snapshot and executes every step
	Execute(ctx context.Context, processName string, snapshot time.Time) error

	// Resume re-executes a previous run's unfinished steps. A runNumber of
	// 0 means the snapshot's latest run; an empty fromStep resumes at the
	// first step that is not Success.
	Resume(ctx context.Context, processName string, snapshot time.Time, runNumber int, fromStep string) error
}
