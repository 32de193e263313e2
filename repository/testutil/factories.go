package testutil

import (
	"context"
	"testing"
	"time"

	"almengine/models"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// SeedBucketDefinitions replaces the configured bucket ladder
func SeedBucketDefinitions(t *testing.T, db *TestDatabase, defs []models.BucketDefinition) {
	ctx := context.Background()

	err := db.DB.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM time_buckets`); err != nil {
			return err
		}
		for _, def := range defs {
			_, err := tx.Exec(ctx, `
				INSERT INTO time_buckets (serial_number, frequency, multiplier)
				VALUES ($1, $2, $3)
			`, def.SerialNumber, def.Frequency, string(def.Unit))
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// SeedCashflowEvent inserts one cashflow event and returns its id
func SeedCashflowEvent(t *testing.T, db *TestDatabase, e models.CashflowEvent) int64 {
	var id int64
	err := db.DB.QueryRow(context.Background(), `
		INSERT INTO cashflow_events
		(snapshot_date, account_number, product_code, currency_code, loan_type,
		 party_type_code, cashflow_date, principal_amount, interest_amount,
		 total_amount, balance_amount, record_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, e.SnapshotDate, e.AccountNumber, e.ProductCode, e.CurrencyCode, e.LoanType,
		e.PartyTypeCode, e.CashflowDate, e.PrincipalAmount.StringFixed(2),
		e.InterestAmount.StringFixed(2), e.TotalAmount.StringFixed(2),
		e.BalanceAmount.StringFixed(2), e.RecordCount).Scan(&id)
	require.NoError(t, err)
	return id
}

// SeedProduct inserts one product master row
func SeedProduct(t *testing.T, db *TestDatabase, p models.Product) {
	_, err := db.DB.Exec(context.Background(), `
		INSERT INTO product_master
		(product_code, snapshot_date, product_name, product_type, product_type_desc,
		 product_group_desc, rate_sensitivity, coa_code, balance_sheet_category,
		 balance_sheet_category_desc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ProductCode, p.SnapshotDate, p.ProductName, p.ProductType, p.ProductTypeDesc,
		p.ProductGroupDesc, p.RateSensitivity, p.CoaCode, p.BalanceSheetCategory,
		p.BalanceSheetCategoryDesc)
	require.NoError(t, err)
}

// SeedAccountClass inserts one account class row
func SeedAccountClass(t *testing.T, db *TestDatabase, c models.AccountClass) {
	_, err := db.DB.Exec(context.Background(), `
		INSERT INTO account_class_master (coa_code, coa_name, account_type, snapshot_date)
		VALUES ($1, $2, $3, $4)
	`, c.CoaCode, c.CoaName, c.AccountType, c.SnapshotDate)
	require.NoError(t, err)
}

// SeedExchangeRate inserts one exchange rate quote
func SeedExchangeRate(t *testing.T, db *TestDatabase, r models.ExchangeRate) {
	_, err := db.DB.Exec(context.Background(), `
		INSERT INTO exchange_rates (rate_date, from_currency, to_currency, rate)
		VALUES ($1, $2, $3, $4)
	`, r.RateDate, r.FromCurrency, r.ToCurrency, r.Rate.String())
	require.NoError(t, err)
}

// SeedProductBalance inserts one target balance row
func SeedProductBalance(t *testing.T, db *TestDatabase, b models.ProductBalance) {
	_, err := db.DB.Exec(context.Background(), `
		INSERT INTO product_balances
		(snapshot_date, product_code, product_type, product_name, currency_code, balance)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.SnapshotDate, b.ProductCode, b.ProductType, b.ProductName, b.CurrencyCode,
		b.Balance.StringFixed(2))
	require.NoError(t, err)
}

// SeedBehavioralPattern inserts one respread pattern with its splits
func SeedBehavioralPattern(t *testing.T, db *TestDatabase, p models.BehavioralPattern) {
	ctx := context.Background()

	var patternID int64
	err := db.DB.QueryRow(ctx, `
		INSERT INTO behavioral_patterns (product_type, description)
		VALUES ($1, $2)
		RETURNING id
	`, p.ProductType, p.Description).Scan(&patternID)
	require.NoError(t, err)

	for bucketNo, pct := range p.Splits {
		_, err := db.DB.Exec(ctx, `
			INSERT INTO behavioral_pattern_splits (pattern_id, bucket_number, percentage)
			VALUES ($1, $2, $3)
		`, patternID, bucketNo, pct.String())
		require.NoError(t, err)
	}
}

// Date builds a UTC date at midnight, the canonical form for snapshot
// and cashflow dates in tests.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
