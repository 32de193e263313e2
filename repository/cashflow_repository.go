package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"almengine/database"
	"almengine/models"
)

// CashflowRepository flags cashflow events for processing and folds them
// into the account-level bucket aggregates.
type CashflowRepository struct {
	q queryable
}

// NewCashflowRepository creates a new cashflow repository
func NewCashflowRepository(db *database.DB) *CashflowRepository {
	return &CashflowRepository{q: db.Pool}
}

// newCashflowRepositoryWithTx creates a new cashflow repository bound to a transaction
func newCashflowRepositoryWithTx(tx queryable) *CashflowRepository {
	return &CashflowRepository{q: tx}
}

// sourceColumn maps a financial element to the event column it sums.
// The returned name is interpolated into SQL, so unknown elements are
// rejected here.
func sourceColumn(element models.FinancialElement) (string, error) {
	switch element {
	case models.ElementTotalCashflow:
		return "total_amount", nil
	case models.ElementPrincipal:
		return "principal_amount", nil
	case models.ElementInterest:
		return "interest_amount", nil
	default:
		return "", fmt.Errorf("unknown financial element %q", element)
	}
}

// FlagEligible clears every processing flag for the snapshot and then
// flags all of its events, returning how many were flagged. Running the
// step twice flags the same set again.
func (r *CashflowRepository) FlagEligible(ctx context.Context, snapshot time.Time) (int64, error) {
	resetQuery := `
		UPDATE cashflow_events SET record_count = 0
		WHERE snapshot_date = $1 AND record_count <> 0
	`
	if _, err := r.q.Exec(ctx, resetQuery, snapshot); err != nil {
		return 0, fmt.Errorf("failed to reset cashflow flags for %s: %w",
			snapshot.Format("2006-01-02"), err)
	}

	flagQuery := `
		UPDATE cashflow_events SET record_count = 1
		WHERE snapshot_date = $1
	`
	tag, err := r.q.Exec(ctx, flagQuery, snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to flag cashflow events for %s: %w",
			snapshot.Format("2006-01-02"), err)
	}

	return tag.RowsAffected(), nil
}

// MissingDimensionStats counts flagged events without a product code or
// loan type and collects up to ten sample rows for each, so a run can
// log data-quality warnings without stopping.
func (r *CashflowRepository) MissingDimensionStats(ctx context.Context, snapshot time.Time) (models.DimensionStats, error) {
	var stats models.DimensionStats

	countQuery := `
		SELECT
			COUNT(*) FILTER (WHERE product_code IS NULL OR product_code = ''),
			COUNT(*) FILTER (WHERE loan_type IS NULL OR loan_type = '')
		FROM cashflow_events
		WHERE snapshot_date = $1 AND record_count = 1
	`
	err := r.q.QueryRow(ctx, countQuery, snapshot).Scan(
		&stats.MissingProductCode,
		&stats.MissingLoanType,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to count missing dimensions for %s: %w",
			snapshot.Format("2006-01-02"), err)
	}

	if stats.MissingProductCode > 0 {
		stats.ProductCodeSamples, err = r.sampleMissing(ctx, snapshot, "product_code")
		if err != nil {
			return stats, err
		}
	}
	if stats.MissingLoanType > 0 {
		stats.LoanTypeSamples, err = r.sampleMissing(ctx, snapshot, "loan_type")
		if err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (r *CashflowRepository) sampleMissing(ctx context.Context, snapshot time.Time, column string) ([]models.CashflowEvent, error) {
	query := fmt.Sprintf(`
		SELECT id, snapshot_date, account_number, COALESCE(product_code, ''),
		       currency_code, COALESCE(loan_type, ''), COALESCE(party_type_code, ''),
		       cashflow_date, total_amount::text
		FROM cashflow_events
		WHERE snapshot_date = $1 AND record_count = 1
		  AND (%s IS NULL OR %s = '')
		ORDER BY id
		LIMIT 10
	`, column, column)

	rows, err := r.q.Query(ctx, query, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to sample events missing %s: %w", column, err)
	}
	defer rows.Close()

	var samples []models.CashflowEvent
	for rows.Next() {
		var e models.CashflowEvent
		var total string
		err := rows.Scan(
			&e.ID,
			&e.SnapshotDate,
			&e.AccountNumber,
			&e.ProductCode,
			&e.CurrencyCode,
			&e.LoanType,
			&e.PartyTypeCode,
			&e.CashflowDate,
			&total,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample event: %w", err)
		}
		e.TotalAmount, err = parseDecimal(total)
		if err != nil {
			return nil, err
		}
		samples = append(samples, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sample events: %w", err)
	}

	return samples, nil
}

// OutOfSpanCount returns how many flagged events fall outside the
// bucket span for the snapshot. Those amounts silently drop out of the
// aggregates, so callers log the count.
func (r *CashflowRepository) OutOfSpanCount(ctx context.Context, snapshot, spanStart, spanEnd time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM cashflow_events
		WHERE snapshot_date = $1 AND record_count = 1
		  AND (cashflow_date < $2 OR cashflow_date > $3)
	`

	var count int64
	if err := r.q.QueryRow(ctx, query, snapshot, spanStart, spanEnd).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count out-of-span events for %s: %w",
			snapshot.Format("2006-01-02"), err)
	}

	return count, nil
}

// AggregateIntoBuckets sums one financial element of the flagged events
// into account_bucket_aggregates, one output column per bucket range.
// The whole fold runs server side as a single INSERT ... SELECT.
func (r *CashflowRepository) AggregateIntoBuckets(ctx context.Context, processName string, snapshot time.Time, element models.FinancialElement, buckets []models.TimeBucket) (int64, error) {
	col, err := sourceColumn(element)
	if err != nil {
		return 0, err
	}

	insertCols := make([]string, 0, len(buckets))
	selectExprs := make([]string, 0, len(buckets))
	args := []any{snapshot, processName, string(element)}
	for _, b := range buckets {
		insertCols = append(insertCols, fmt.Sprintf("bucket_%d", b.BucketNumber))
		selectExprs = append(selectExprs, fmt.Sprintf(
			"COALESCE(SUM(CASE WHEN cashflow_date BETWEEN $%d AND $%d THEN %s ELSE 0 END), 0)",
			len(args)+1, len(args)+2, col))
		args = append(args, b.StartDate, b.EndDate)
	}

	query := fmt.Sprintf(`
		INSERT INTO account_bucket_aggregates
		(snapshot_date, process_name, account_number, product_code, currency_code,
		 loan_type, party_type_code, financial_element, %s)
		SELECT snapshot_date, $2, account_number, product_code, currency_code,
		       loan_type, party_type_code, $3, %s
		FROM cashflow_events
		WHERE snapshot_date = $1 AND record_count = 1
		GROUP BY snapshot_date, account_number, product_code, currency_code,
		         loan_type, party_type_code
	`, strings.Join(insertCols, ", "), strings.Join(selectExprs, ",\n		       "))

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate %s for %s: %w",
			element, snapshot.Format("2006-01-02"), err)
	}

	return tag.RowsAffected(), nil
}
