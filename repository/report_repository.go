package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"almengine/database"
	"almengine/models"
	"github.com/shopspring/decimal"
)

// reportStaticColumns are the fixed columns every report table shares.
// Bucket columns come and go with the bucket master; these do not.
var reportStaticColumns = []string{
	"snapshot_date", "process_name", "loan_type", "party_type_code",
	"product_code", "currency_code", "financial_element",
	"product_name", "product_type", "product_type_desc",
	"account_type", "flow_type", "adjustment_amount",
}

// ReportRepository manages the per-snapshot report tables: their
// lifecycle, their dynamic bucket columns and their rows.
type ReportRepository struct {
	q queryable
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{q: db.Pool}
}

// newReportRepositoryWithTx creates a new report repository bound to a transaction
func newReportRepositoryWithTx(tx queryable) *ReportRepository {
	return &ReportRepository{q: tx}
}

// CreateTableLike drops the table if it exists and recreates it with the
// template's full structure, bucket columns included when the template
// has them.
func (r *ReportRepository) CreateTableLike(ctx context.Context, table, template string) error {
	drop := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(table))
	if _, err := r.q.Exec(ctx, drop); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}

	create := fmt.Sprintf(`CREATE TABLE %s (LIKE %s INCLUDING ALL)`,
		quoteIdent(table), quoteIdent(template))
	if _, err := r.q.Exec(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s from %s: %w", table, template, err)
	}

	return nil
}

// TableExists reports whether the table exists in the current schema
func (r *ReportRepository) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`

	var exists bool
	if err := r.q.QueryRow(ctx, query, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}

	return exists, nil
}

// BucketColumns returns the table's bucket columns in definition order
func (r *ReportRepository) BucketColumns(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		  AND column_name ~ '^bucket_'
		ORDER BY ordinal_position
	`

	rows, err := r.q.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols = append(cols, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bucket columns: %w", err)
	}

	return cols, nil
}

// DropBucketColumns removes the given bucket columns from the table
func (r *ReportRepository) DropBucketColumns(ctx context.Context, table string, columns []string) error {
	for _, col := range columns {
		query := fmt.Sprintf(`ALTER TABLE %s DROP COLUMN IF EXISTS %s`,
			quoteIdent(table), quoteIdent(col))
		if _, err := r.q.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to drop column %s from %s: %w", col, table, err)
		}
	}
	return nil
}

// AddBucketColumns adds the given bucket columns to the table. Columns
// that already exist are left untouched, which makes the sync
// re-runnable.
func (r *ReportRepository) AddBucketColumns(ctx context.Context, table string, columns []string) error {
	for _, col := range columns {
		query := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s NUMERIC(20,2)`,
			quoteIdent(table), quoteIdent(col))
		if _, err := r.q.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to add column %s to %s: %w", col, table, err)
		}
	}
	return nil
}

// DeleteRows clears every row of the table for one (process, snapshot)
func (r *ReportRepository) DeleteRows(ctx context.Context, table, processName string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE process_name = $1`, quoteIdent(table))

	tag, err := r.q.Exec(ctx, query, processName)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows from %s: %w", table, err)
	}

	return tag.RowsAffected(), nil
}

// InsertStaticRow inserts the static portion of one report row. Rows
// that already exist for the same key are left alone so re-running a
// load never duplicates.
func (r *ReportRepository) InsertStaticRow(ctx context.Context, table string, row *models.ReportRow) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(snapshot_date, process_name, loan_type, party_type_code,
		 product_code, currency_code, financial_element,
		 product_name, product_type, product_type_desc, account_type, flow_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (snapshot_date, process_name, product_code, currency_code, financial_element)
		DO NOTHING
	`, quoteIdent(table))

	_, err := r.q.Exec(ctx, query,
		row.SnapshotDate,
		row.ProcessName,
		row.LoanType,
		row.PartyTypeCode,
		row.ProductCode,
		row.CurrencyCode,
		string(row.FinancialElement),
		row.ProductName,
		row.ProductType,
		row.ProductTypeDesc,
		row.AccountType,
		string(row.FlowType),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report row %s/%s into %s: %w",
			row.ProductCode, row.CurrencyCode, table, err)
	}

	return nil
}

// UpdateBucketValues writes bucket values onto one report row, column by
// column. Only the columns present in values are touched.
func (r *ReportRepository) UpdateBucketValues(ctx context.Context, table, processName, productCode, currencyCode string, element models.FinancialElement, values map[string]decimal.Decimal) error {
	if len(values) == 0 {
		return nil
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	args := []any{processName, productCode, currencyCode, string(element)}
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(col), len(args)+1))
		args = append(args, values[col].StringFixed(2))
	}

	query := fmt.Sprintf(`
		UPDATE %s SET %s
		WHERE process_name = $1 AND product_code = $2
		  AND currency_code = $3 AND financial_element = $4
	`, quoteIdent(table), strings.Join(sets, ", "))

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update bucket values for %s/%s in %s: %w",
			productCode, currencyCode, table, err)
	}

	return nil
}

// ListReconciliationRows reads one element's rows with their bucket
// values and the matching target balance, if any. Values come back in
// the order of the given columns.
func (r *ReportRepository) ListReconciliationRows(ctx context.Context, table, processName string, element models.FinancialElement, columns []string) ([]*models.ReconciliationRow, error) {
	valueExprs := make([]string, 0, len(columns))
	for _, col := range columns {
		valueExprs = append(valueExprs, fmt.Sprintf("COALESCE(r.%s, 0)::text", quoteIdent(col)))
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.product_code, r.currency_code, pb.balance::text, %s
		FROM %s r
		LEFT JOIN product_balances pb
		  ON pb.snapshot_date = r.snapshot_date
		 AND pb.product_code = r.product_code
		 AND pb.currency_code = r.currency_code
		WHERE r.process_name = $1 AND r.financial_element = $2
		ORDER BY r.product_code, r.currency_code
	`, strings.Join(valueExprs, ", "), quoteIdent(table))

	rows, err := r.q.Query(ctx, query, processName, string(element))
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation rows from %s: %w", table, err)
	}
	defer rows.Close()

	var result []*models.ReconciliationRow
	for rows.Next() {
		row := &models.ReconciliationRow{Values: make([]decimal.Decimal, len(columns))}

		var targetText *string
		valueTexts := make([]string, len(columns))
		dest := []any{&row.ID, &row.ProductCode, &row.CurrencyCode, &targetText}
		for i := range valueTexts {
			dest = append(dest, &valueTexts[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation row: %w", err)
		}

		if targetText != nil {
			target, err := parseDecimal(*targetText)
			if err != nil {
				return nil, err
			}
			row.Target = &target
		}
		for i, text := range valueTexts {
			row.Values[i], err = parseDecimal(text)
			if err != nil {
				return nil, err
			}
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reconciliation rows: %w", err)
	}

	return result, nil
}

// ApplyAdjustment writes the adjusted bucket value onto one row. Only
// the chosen bucket column changes.
func (r *ReportRepository) ApplyAdjustment(ctx context.Context, table, column string, rowID int64, newValue decimal.Decimal) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET %s = $1
		WHERE id = $2
	`, quoteIdent(table), quoteIdent(column))

	if _, err := r.q.Exec(ctx, query, newValue.StringFixed(2), rowID); err != nil {
		return fmt.Errorf("failed to apply adjustment to row %d of %s: %w", rowID, table, err)
	}

	return nil
}

// BucketSum reads one row's persisted bucket total across the given
// columns.
func (r *ReportRepository) BucketSum(ctx context.Context, table string, rowID int64, columns []string) (decimal.Decimal, error) {
	exprs := make([]string, 0, len(columns))
	for _, col := range columns {
		exprs = append(exprs, fmt.Sprintf("COALESCE(%s, 0)", quoteIdent(col)))
	}

	query := fmt.Sprintf(`SELECT (%s)::text FROM %s WHERE id = $1`,
		strings.Join(exprs, " + "), quoteIdent(table))

	var text string
	if err := r.q.QueryRow(ctx, query, rowID).Scan(&text); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum buckets of row %d in %s: %w", rowID, table, err)
	}

	return parseDecimal(text)
}

// ListBucketRows reads every row's bucket values along with its product
// type, in the order of the given columns.
func (r *ReportRepository) ListBucketRows(ctx context.Context, table, processName string, columns []string) ([]*models.BucketValueRow, error) {
	valueExprs := make([]string, 0, len(columns))
	for _, col := range columns {
		valueExprs = append(valueExprs, fmt.Sprintf("COALESCE(%s, 0)::text", quoteIdent(col)))
	}

	query := fmt.Sprintf(`
		SELECT id, product_type, %s
		FROM %s
		WHERE process_name = $1
		ORDER BY id
	`, strings.Join(valueExprs, ", "), quoteIdent(table))

	rows, err := r.q.Query(ctx, query, processName)
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket rows from %s: %w", table, err)
	}
	defer rows.Close()

	var result []*models.BucketValueRow
	for rows.Next() {
		row := &models.BucketValueRow{Values: make([]decimal.Decimal, len(columns))}

		valueTexts := make([]string, len(columns))
		dest := []any{&row.ID, &row.ProductType}
		for i := range valueTexts {
			dest = append(dest, &valueTexts[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan bucket row: %w", err)
		}

		for i, text := range valueTexts {
			row.Values[i], err = parseDecimal(text)
			if err != nil {
				return nil, err
			}
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bucket rows: %w", err)
	}

	return result, nil
}

// CopyRowWithValues copies one row's static columns from the source
// table into the destination and writes the given bucket values in
// place of the source's. Both tables must share the full column set.
func (r *ReportRepository) CopyRowWithValues(ctx context.Context, srcTable, dstTable string, srcID int64, columns []string, values []decimal.Decimal) error {
	if len(columns) != len(values) {
		return fmt.Errorf("column/value count mismatch: %d vs %d", len(columns), len(values))
	}

	targetCols := make([]string, 0, len(reportStaticColumns)+len(columns))
	targetCols = append(targetCols, reportStaticColumns...)
	valueExprs := make([]string, 0, len(columns))
	args := make([]any, 0, len(values)+1)
	for i, col := range columns {
		targetCols = append(targetCols, quoteIdent(col))
		valueExprs = append(valueExprs, fmt.Sprintf("$%d", i+1))
		args = append(args, values[i].StringFixed(2))
	}
	args = append(args, srcID)

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s, %s
		FROM %s
		WHERE id = $%d
	`, quoteIdent(dstTable), strings.Join(targetCols, ", "),
		strings.Join(reportStaticColumns, ", "), strings.Join(valueExprs, ", "),
		quoteIdent(srcTable), len(args))

	if _, err := r.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to copy row %d from %s to %s: %w", srcID, srcTable, dstTable, err)
	}

	return nil
}

// CopyWithFX copies every row of the source table into the destination,
// converting bucket values and adjustments into the reporting currency.
// Currencies without a quoted rate pass through at 1, amounts rounded
// to two decimals half away from zero.
func (r *ReportRepository) CopyWithFX(ctx context.Context, srcTable, dstTable, processName, reportingCurrency string, columns []string, rates map[string]decimal.Decimal) (int64, error) {
	ccys := make([]string, 0, len(rates))
	for ccy := range rates {
		ccys = append(ccys, ccy)
	}
	sort.Strings(ccys)

	args := []any{processName, reportingCurrency}
	var fxJoin, rateExpr string
	if len(ccys) > 0 {
		valueRows := make([]string, 0, len(ccys))
		for _, ccy := range ccys {
			valueRows = append(valueRows, fmt.Sprintf("($%d::varchar, $%d::numeric)",
				len(args)+1, len(args)+2))
			args = append(args, ccy, rates[ccy].String())
		}
		fxJoin = fmt.Sprintf(`LEFT JOIN (VALUES %s) AS fx (currency_code, rate)
		  ON fx.currency_code = src.currency_code`, strings.Join(valueRows, ", "))
		rateExpr = "COALESCE(fx.rate, 1)"
	} else {
		fxJoin = ""
		rateExpr = "1"
	}

	targetCols := make([]string, 0, len(reportStaticColumns)+len(columns))
	targetCols = append(targetCols, reportStaticColumns...)
	convertedExprs := make([]string, 0, len(columns))
	for _, col := range columns {
		targetCols = append(targetCols, quoteIdent(col))
		convertedExprs = append(convertedExprs,
			fmt.Sprintf("ROUND(COALESCE(src.%s, 0) * %s, 2)", quoteIdent(col), rateExpr))
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT src.snapshot_date, src.process_name, src.loan_type, src.party_type_code,
		       src.product_code, $2, src.financial_element,
		       src.product_name, src.product_type, src.product_type_desc,
		       src.account_type, src.flow_type,
		       ROUND(COALESCE(src.adjustment_amount, 0) * %s, 2),
		       %s
		FROM %s src
		%s
		WHERE src.process_name = $1
	`, quoteIdent(dstTable), strings.Join(targetCols, ", "),
		rateExpr, strings.Join(convertedExprs, ",\n		       "),
		quoteIdent(srcTable), fxJoin)

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to copy %s to %s with fx conversion: %w", srcTable, dstTable, err)
	}

	return tag.RowsAffected(), nil
}

// CopyForProductTypes copies rows whose product type is in the given
// set, static and bucket columns alike.
func (r *ReportRepository) CopyForProductTypes(ctx context.Context, srcTable, dstTable, processName string, columns []string, productTypes []string) (int64, error) {
	targetCols := make([]string, 0, len(reportStaticColumns)+len(columns))
	targetCols = append(targetCols, reportStaticColumns...)
	for _, col := range columns {
		targetCols = append(targetCols, quoteIdent(col))
	}

	colList := strings.Join(targetCols, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s
		FROM %s
		WHERE process_name = $1 AND product_type = ANY($2)
	`, quoteIdent(dstTable), colList, colList, quoteIdent(srcTable))

	tag, err := r.q.Exec(ctx, query, processName, productTypes)
	if err != nil {
		return 0, fmt.Errorf("failed to copy rate sensitive rows from %s to %s: %w",
			srcTable, dstTable, err)
	}

	return tag.RowsAffected(), nil
}

// RowCount returns the table's row count for one process
func (r *ReportRepository) RowCount(ctx context.Context, table, processName string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE process_name = $1`, quoteIdent(table))

	var count int64
	if err := r.q.QueryRow(ctx, query, processName).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}

	return count, nil
}
