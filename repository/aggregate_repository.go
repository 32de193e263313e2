package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"almengine/database"
	"almengine/models"
	"github.com/shopspring/decimal"
)

// AggregateRepository manages the account and product bucket aggregate
// tables, including the product roll-up.
type AggregateRepository struct {
	q queryable
}

// NewAggregateRepository creates a new aggregate repository
func NewAggregateRepository(db *database.DB) *AggregateRepository {
	return &AggregateRepository{q: db.Pool}
}

// newAggregateRepositoryWithTx creates a new aggregate repository bound to a transaction
func newAggregateRepositoryWithTx(tx queryable) *AggregateRepository {
	return &AggregateRepository{q: tx}
}

// PhysicalBucketCount returns how many bucket_N columns the aggregate
// tables carry. Runs with more configured ranges than physical columns
// truncate to this count.
func (r *AggregateRepository) PhysicalBucketCount(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM information_schema.columns
		WHERE table_name = 'account_bucket_aggregates'
		  AND column_name ~ '^bucket_[0-9]+$'
	`

	var count int
	if err := r.q.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count physical bucket columns: %w", err)
	}

	return count, nil
}

// DeleteAccountAggregates removes every account aggregate row of one run
func (r *AggregateRepository) DeleteAccountAggregates(ctx context.Context, processName string, snapshot time.Time) (int64, error) {
	query := `
		DELETE FROM account_bucket_aggregates
		WHERE snapshot_date = $1 AND process_name = $2
	`

	tag, err := r.q.Exec(ctx, query, snapshot, processName)
	if err != nil {
		return 0, fmt.Errorf("failed to delete account aggregates for %s/%s: %w",
			processName, snapshot.Format("2006-01-02"), err)
	}

	return tag.RowsAffected(), nil
}

// DeleteProductAggregates removes every product aggregate row of one run
func (r *AggregateRepository) DeleteProductAggregates(ctx context.Context, processName string, snapshot time.Time) (int64, error) {
	query := `
		DELETE FROM product_bucket_aggregates
		WHERE snapshot_date = $1 AND process_name = $2
	`

	tag, err := r.q.Exec(ctx, query, snapshot, processName)
	if err != nil {
		return 0, fmt.Errorf("failed to delete product aggregates for %s/%s: %w",
			processName, snapshot.Format("2006-01-02"), err)
	}

	return tag.RowsAffected(), nil
}

// RollUpProducts sums account aggregates into product aggregates,
// keeping loan type and party type as roll-up dimensions. Runs server
// side as a single INSERT ... SELECT.
func (r *AggregateRepository) RollUpProducts(ctx context.Context, processName string, snapshot time.Time, bucketNumbers []int) (int64, error) {
	insertCols := make([]string, 0, len(bucketNumbers))
	sumExprs := make([]string, 0, len(bucketNumbers))
	for _, n := range bucketNumbers {
		insertCols = append(insertCols, fmt.Sprintf("bucket_%d", n))
		sumExprs = append(sumExprs, fmt.Sprintf("SUM(COALESCE(bucket_%d, 0))", n))
	}

	query := fmt.Sprintf(`
		INSERT INTO product_bucket_aggregates
		(snapshot_date, process_name, product_code, currency_code,
		 loan_type, party_type_code, financial_element, %s)
		SELECT snapshot_date, process_name, product_code, currency_code,
		       loan_type, party_type_code, financial_element, %s
		FROM account_bucket_aggregates
		WHERE snapshot_date = $1 AND process_name = $2
		GROUP BY snapshot_date, process_name, product_code, currency_code,
		         loan_type, party_type_code, financial_element
	`, strings.Join(insertCols, ", "), strings.Join(sumExprs, ",\n		       "))

	tag, err := r.q.Exec(ctx, query, snapshot, processName)
	if err != nil {
		return 0, fmt.Errorf("failed to roll up products for %s/%s: %w",
			processName, snapshot.Format("2006-01-02"), err)
	}

	return tag.RowsAffected(), nil
}

// ListProductTotals returns per (product, currency) bucket sums for one
// financial element, collapsing the loan type and party type dimensions.
// This is the feed for the report loaders.
func (r *AggregateRepository) ListProductTotals(ctx context.Context, processName string, snapshot time.Time, element models.FinancialElement, bucketNumbers []int) ([]*models.ProductAggregate, error) {
	sumExprs := make([]string, 0, len(bucketNumbers))
	for _, n := range bucketNumbers {
		sumExprs = append(sumExprs, fmt.Sprintf("SUM(COALESCE(bucket_%d, 0))::text", n))
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(product_code, ''), currency_code,
		       MIN(COALESCE(loan_type, '')), MIN(COALESCE(party_type_code, '')), %s
		FROM product_bucket_aggregates
		WHERE snapshot_date = $1 AND process_name = $2 AND financial_element = $3
		GROUP BY product_code, currency_code
		ORDER BY product_code, currency_code
	`, strings.Join(sumExprs, ",\n		       "))

	rows, err := r.q.Query(ctx, query, snapshot, processName, string(element))
	if err != nil {
		return nil, fmt.Errorf("failed to list product totals for %s/%s: %w",
			processName, snapshot.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var aggs []*models.ProductAggregate
	for rows.Next() {
		agg := &models.ProductAggregate{
			SnapshotDate:     snapshot,
			ProcessName:      processName,
			FinancialElement: element,
			Buckets:          make(map[int]decimal.Decimal, len(bucketNumbers)),
		}

		bucketTexts := make([]string, len(bucketNumbers))
		dest := []any{&agg.ProductCode, &agg.CurrencyCode, &agg.LoanType, &agg.PartyTypeCode}
		for i := range bucketTexts {
			dest = append(dest, &bucketTexts[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan product totals: %w", err)
		}

		for i, n := range bucketNumbers {
			v, err := parseDecimal(bucketTexts[i])
			if err != nil {
				return nil, err
			}
			agg.Buckets[n] = v
		}

		aggs = append(aggs, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product totals: %w", err)
	}

	return aggs, nil
}
