package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is one product-master row. The master is versioned by
// snapshot date; lookups always take the latest version at or before
// the reporting snapshot.
type Product struct {
	ID                       int64
	ProductCode              string
	SnapshotDate             time.Time
	ProductName              string
	ProductType              string
	ProductTypeDesc          string
	ProductGroupDesc         string
	RateSensitivity          string
	CoaCode                  string
	BalanceSheetCategory     string
	BalanceSheetCategoryDesc string
}

// AccountClass maps a chart-of-accounts code to its balance-sheet
// account type.
type AccountClass struct {
	ID           int64
	CoaCode      string
	CoaName      string
	AccountType  string
	SnapshotDate time.Time
}

// ExchangeRate is one quoted conversion rate effective on RateDate
type ExchangeRate struct {
	ID           int64
	RateDate     time.Time
	FromCurrency string
	ToCurrency   string
	Rate         decimal.Decimal
}

// ProductBalance is the general-ledger target balance a product's
// bucketed cash flows are reconciled against.
type ProductBalance struct {
	ID           int64
	SnapshotDate time.Time
	ProductCode  string
	ProductType  string
	ProductName  string
	CurrencyCode string
	Balance      decimal.Decimal
}

// BehavioralPattern prescribes how a product type's contractual cash
// flows are redistributed across buckets. Splits maps 1-based bucket
// numbers to percentages.
type BehavioralPattern struct {
	ID          int64
	ProductType string
	Description string
	Splits      map[int]decimal.Decimal
}

// Validate checks that the split percentages sum to 100
func (p *BehavioralPattern) Validate() error {
	total := decimal.Zero
	for _, pct := range p.Splits {
		total = total.Add(pct)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		return fmt.Errorf("pattern for %s sums to %s, expected 100", p.ProductType, total)
	}
	return nil
}
