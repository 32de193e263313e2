package repository

import (
	"context"
	"testing"
	"time"

	"almengine/events"
	"almengine/models"
	"almengine/repository/testutil"
	"almengine/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipelineEndToEnd drives the full chain against a real database:
// aggregation, roll-up, table creation, report load, reconciliation and
// the three downstream reports.
func TestPipelineEndToEnd(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	snapshot := testutil.Date(2025, time.April, 30)
	const process = "contractual"

	testutil.SeedBucketDefinitions(t, testDB, []models.BucketDefinition{
		{SerialNumber: 1, Frequency: 7, Unit: models.UnitDays},
		{SerialNumber: 2, Frequency: 1, Unit: models.UnitMonths},
		{SerialNumber: 3, Frequency: 5, Unit: models.UnitYears},
	})

	// One event of 1000 falling into the second bucket
	testutil.SeedCashflowEvent(t, testDB, models.CashflowEvent{
		SnapshotDate:    snapshot,
		AccountNumber:   "ACC-001",
		ProductCode:     "LOAN01",
		CurrencyCode:    "USD",
		LoanType:        "FIXED",
		PartyTypeCode:   "RETAIL",
		CashflowDate:    testutil.Date(2025, time.May, 1),
		PrincipalAmount: decimal.RequireFromString("800"),
		InterestAmount:  decimal.RequireFromString("200"),
		TotalAmount:     decimal.RequireFromString("1000"),
		BalanceAmount:   decimal.RequireFromString("1200"),
	})

	testutil.SeedProduct(t, testDB, models.Product{
		ProductCode:     "LOAN01",
		SnapshotDate:    snapshot,
		ProductName:     "Term Loan",
		ProductType:     "TERM_LOAN",
		ProductTypeDesc: "Fixed term lending",
		RateSensitivity: "Y",
		CoaCode:         "COA1",
	})
	testutil.SeedAccountClass(t, testDB, models.AccountClass{
		CoaCode:      "COA1",
		CoaName:      "Loans to customers",
		AccountType:  "EARNINGASSETS",
		SnapshotDate: snapshot,
	})

	// Target balance exceeds the bucketed cash flows by 200
	testutil.SeedProductBalance(t, testDB, models.ProductBalance{
		SnapshotDate: snapshot,
		ProductCode:  "LOAN01",
		ProductType:  "TERM_LOAN",
		ProductName:  "Term Loan",
		CurrencyCode: "USD",
		Balance:      decimal.RequireFromString("1200"),
	})

	testutil.SeedBehavioralPattern(t, testDB, models.BehavioralPattern{
		ProductType: "TERM_LOAN",
		Description: "Core deposit style respread",
		Splits: map[int]decimal.Decimal{
			1: decimal.RequireFromString("25"),
			3: decimal.RequireFromString("75"),
		},
	})

	eventBus := events.NewBus()
	uowFactory := NewUnitOfWorkFactory(testDB.DB, eventBus)

	aggregation := service.NewAggregationService(uowFactory)
	rollup := service.NewRollupService(uowFactory)
	schema := service.NewSchemaService(uowFactory)
	report := service.NewContractualReportService(uowFactory)
	reconcile := service.NewReconcileService(uowFactory)
	behavioral := service.NewBehavioralService(uowFactory)
	consolidation := service.NewConsolidationService(uowFactory, "USD")
	rateSensitive := service.NewRateSensitiveService(uowFactory)

	require.NoError(t, aggregation.Run(ctx, process, snapshot))
	require.NoError(t, rollup.Run(ctx, process, snapshot))
	require.NoError(t, schema.CreateContractualTable(ctx, process, snapshot))
	require.NoError(t, report.Run(ctx, process, snapshot))

	const (
		bucket1 = "bucket_001_20250430_20250507"
		bucket2 = "bucket_002_20250508_20250607"
		bucket3 = "bucket_003_20250608_20300607"
	)

	t.Run("contractual report carries the bucketed event", func(t *testing.T) {
		var b1, b2, b3 string
		err := testDB.DB.QueryRow(ctx, `
			SELECT COALESCE(`+bucket1+`, 0)::text, COALESCE(`+bucket2+`, 0)::text, COALESCE(`+bucket3+`, 0)::text
			FROM report_contractual_20250430
			WHERE financial_element = 'TOTAL_CASH_FLOW'
		`).Scan(&b1, &b2, &b3)
		require.NoError(t, err)
		assert.Equal(t, "0", b1)
		assert.Equal(t, "1000.00", b2)
		assert.Equal(t, "0", b3)
	})

	require.NoError(t, reconcile.Run(ctx, process, snapshot))

	t.Run("reconciliation books the difference into the largest bucket", func(t *testing.T) {
		var b2, adjustment string
		err := testDB.DB.QueryRow(ctx, `
			SELECT `+bucket2+`::text, COALESCE(adjustment_amount, 0)::text
			FROM report_contractual_20250430
			WHERE financial_element = 'TOTAL_CASH_FLOW'
		`).Scan(&b2, &adjustment)
		require.NoError(t, err)
		assert.Equal(t, "1200.00", b2)
		// Only the chosen bucket moves, the adjustment column stays put
		assert.Equal(t, "0", adjustment)

		breaks, err := reconcile.VerifyAlignment(ctx, process, snapshot)
		require.NoError(t, err)
		assert.Empty(t, breaks)
	})

	require.NoError(t, behavioral.Run(ctx, process, snapshot))

	t.Run("behavioral respread follows the pattern", func(t *testing.T) {
		var b1, b2, b3 string
		err := testDB.DB.QueryRow(ctx, `
			SELECT COALESCE(`+bucket1+`, 0)::text, COALESCE(`+bucket2+`, 0)::text, COALESCE(`+bucket3+`, 0)::text
			FROM report_behavioral_20250430
			WHERE financial_element = 'TOTAL_CASH_FLOW'
		`).Scan(&b1, &b2, &b3)
		require.NoError(t, err)
		assert.Equal(t, "300.00", b1)
		assert.Equal(t, "0.00", b2)
		assert.Equal(t, "900.00", b3)
	})

	require.NoError(t, consolidation.Run(ctx, process, snapshot))

	t.Run("consolidated report keeps amounts in the reporting currency", func(t *testing.T) {
		var currency, b2 string
		err := testDB.DB.QueryRow(ctx, `
			SELECT currency_code, `+bucket2+`::text
			FROM report_consolidated_20250430
			WHERE financial_element = 'TOTAL_CASH_FLOW'
		`).Scan(&currency, &b2)
		require.NoError(t, err)
		assert.Equal(t, "USD", currency)
		assert.Equal(t, "1200.00", b2)
	})

	require.NoError(t, rateSensitive.Run(ctx, process, snapshot))

	t.Run("rate sensitive extract keeps flagged consolidated rows", func(t *testing.T) {
		var count int
		var currency, b2 string
		err := testDB.DB.QueryRow(ctx, `
			SELECT COUNT(*), MIN(currency_code), MIN(`+bucket2+`)::text
			FROM report_rate_sensitive_20250430
			WHERE product_type = 'TERM_LOAN'
		`).Scan(&count, &currency, &b2)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		// Rows come from the consolidated table, already in the
		// reporting currency
		assert.Equal(t, "USD", currency)
		assert.Equal(t, "1200.00", b2)
	})

	t.Run("report load is idempotent", func(t *testing.T) {
		require.NoError(t, aggregation.Run(ctx, process, snapshot))
		require.NoError(t, rollup.Run(ctx, process, snapshot))
		require.NoError(t, report.Run(ctx, process, snapshot))

		var rows int
		err := testDB.DB.QueryRow(ctx, `
			SELECT COUNT(*) FROM report_contractual_20250430
		`).Scan(&rows)
		require.NoError(t, err)
		// One total cash flow row per (product, currency)
		assert.Equal(t, 1, rows)
	})
}
