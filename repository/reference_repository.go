package repository

import (
	"context"
	"fmt"
	"time"

	"almengine/database"
	"almengine/models"
	"github.com/shopspring/decimal"
)

// ReferenceRepository reads the versioned master data the report
// loaders enrich rows with.
type ReferenceRepository struct {
	q queryable
}

// NewReferenceRepository creates a new reference repository
func NewReferenceRepository(db *database.DB) *ReferenceRepository {
	return &ReferenceRepository{q: db.Pool}
}

// newReferenceRepositoryWithTx creates a new reference repository bound to a transaction
func newReferenceRepositoryWithTx(tx queryable) *ReferenceRepository {
	return &ReferenceRepository{q: tx}
}

// ProductsLatest returns the newest product master version at or before
// the snapshot, keyed by product code.
func (r *ReferenceRepository) ProductsLatest(ctx context.Context, snapshot time.Time) (map[string]*models.Product, error) {
	query := `
		SELECT DISTINCT ON (product_code)
		       id, product_code, snapshot_date,
		       COALESCE(product_name, ''), COALESCE(product_type, ''),
		       COALESCE(product_type_desc, ''), COALESCE(product_group_desc, ''),
		       COALESCE(rate_sensitivity, ''), COALESCE(coa_code, ''),
		       COALESCE(balance_sheet_category, ''), COALESCE(balance_sheet_category_desc, '')
		FROM product_master
		WHERE snapshot_date <= $1
		ORDER BY product_code, snapshot_date DESC
	`

	rows, err := r.q.Query(ctx, query, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load product master: %w", err)
	}
	defer rows.Close()

	products := make(map[string]*models.Product)
	for rows.Next() {
		var p models.Product
		err := rows.Scan(
			&p.ID,
			&p.ProductCode,
			&p.SnapshotDate,
			&p.ProductName,
			&p.ProductType,
			&p.ProductTypeDesc,
			&p.ProductGroupDesc,
			&p.RateSensitivity,
			&p.CoaCode,
			&p.BalanceSheetCategory,
			&p.BalanceSheetCategoryDesc,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ProductCode] = &p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product master: %w", err)
	}

	return products, nil
}

// AccountClassesLatest returns the newest account class version at or
// before the snapshot, keyed by chart-of-accounts code.
func (r *ReferenceRepository) AccountClassesLatest(ctx context.Context, snapshot time.Time) (map[string]*models.AccountClass, error) {
	query := `
		SELECT DISTINCT ON (coa_code)
		       id, coa_code, COALESCE(coa_name, ''), COALESCE(account_type, ''), snapshot_date
		FROM account_class_master
		WHERE snapshot_date <= $1
		ORDER BY coa_code, snapshot_date DESC
	`

	rows, err := r.q.Query(ctx, query, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load account classes: %w", err)
	}
	defer rows.Close()

	classes := make(map[string]*models.AccountClass)
	for rows.Next() {
		var c models.AccountClass
		if err := rows.Scan(&c.ID, &c.CoaCode, &c.CoaName, &c.AccountType, &c.SnapshotDate); err != nil {
			return nil, fmt.Errorf("failed to scan account class: %w", err)
		}
		classes[c.CoaCode] = &c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account classes: %w", err)
	}

	return classes, nil
}

// RatesAsOf returns the latest conversion rate into the reporting
// currency per source currency, quoted on or before the snapshot.
func (r *ReferenceRepository) RatesAsOf(ctx context.Context, snapshot time.Time, reportingCurrency string) (map[string]decimal.Decimal, error) {
	query := `
		SELECT DISTINCT ON (from_currency)
		       from_currency, rate::text
		FROM exchange_rates
		WHERE to_currency = $1 AND rate_date <= $2
		ORDER BY from_currency, rate_date DESC
	`

	rows, err := r.q.Query(ctx, query, reportingCurrency, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange rates into %s: %w", reportingCurrency, err)
	}
	defer rows.Close()

	rates := make(map[string]decimal.Decimal)
	for rows.Next() {
		var ccy, rateText string
		if err := rows.Scan(&ccy, &rateText); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		rate, err := parseDecimal(rateText)
		if err != nil {
			return nil, err
		}
		rates[ccy] = rate
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exchange rates: %w", err)
	}

	return rates, nil
}

// RateSensitiveProductTypes returns the product types flagged 'Y' in the
// latest product master at or before the snapshot.
func (r *ReferenceRepository) RateSensitiveProductTypes(ctx context.Context, snapshot time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT product_type
		FROM (
			SELECT DISTINCT ON (product_code) product_type, rate_sensitivity
			FROM product_master
			WHERE snapshot_date <= $1 AND product_type IS NOT NULL
			ORDER BY product_code, snapshot_date DESC
		) latest
		WHERE rate_sensitivity = 'Y'
		ORDER BY product_type
	`

	rows, err := r.q.Query(ctx, query, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate sensitive product types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan product type: %w", err)
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product types: %w", err)
	}

	return types, nil
}

// BehavioralPatterns returns every configured respread pattern keyed by
// product type, splits included.
func (r *ReferenceRepository) BehavioralPatterns(ctx context.Context) (map[string]*models.BehavioralPattern, error) {
	query := `
		SELECT p.id, p.product_type, p.description, s.bucket_number, s.percentage::text
		FROM behavioral_patterns p
		JOIN behavioral_pattern_splits s ON s.pattern_id = p.id
		ORDER BY p.product_type, s.bucket_number
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load behavioral patterns: %w", err)
	}
	defer rows.Close()

	patterns := make(map[string]*models.BehavioralPattern)
	for rows.Next() {
		var (
			id          int64
			productType string
			description string
			bucketNo    int
			pctText     string
		)
		if err := rows.Scan(&id, &productType, &description, &bucketNo, &pctText); err != nil {
			return nil, fmt.Errorf("failed to scan behavioral pattern: %w", err)
		}

		pct, err := parseDecimal(pctText)
		if err != nil {
			return nil, err
		}

		p, ok := patterns[productType]
		if !ok {
			p = &models.BehavioralPattern{
				ID:          id,
				ProductType: productType,
				Description: description,
				Splits:      make(map[int]decimal.Decimal),
			}
			patterns[productType] = p
		}
		p.Splits[bucketNo] = pct
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate behavioral patterns: %w", err)
	}

	return patterns, nil
}
