package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialElement names one measure that is bucketed independently.
// Each element produces its own set of aggregate rows per snapshot.
type FinancialElement string

const (
	ElementTotalCashflow FinancialElement = "TOTAL_CASH_FLOW"
	ElementPrincipal     FinancialElement = "PRINCIPAL_PAYMENT"
	ElementInterest      FinancialElement = "INTEREST_PAYMENT"
)

// FinancialElements returns the elements aggregated on every run, in
// the order their rows are written.
func FinancialElements() []FinancialElement {
	return []FinancialElement{ElementTotalCashflow, ElementPrincipal, ElementInterest}
}

// AccountAggregate is one account-level row of bucketed cash flows for
// a single financial element. Buckets maps 1-based bucket numbers to
// summed amounts; only physically populated buckets are present.
type AccountAggregate struct {
	ID               int64
	SnapshotDate     time.Time
	ProcessName      string
	AccountNumber    string
	ProductCode      string
	CurrencyCode     string
	LoanType         string
	PartyTypeCode    string
	FinancialElement FinancialElement
	Buckets          map[int]decimal.Decimal
}

// ProductAggregate is the product-level roll-up of account aggregates
type ProductAggregate struct {
	ID               int64
	SnapshotDate     time.Time
	ProcessName      string
	ProductCode      string
	CurrencyCode     string
	LoanType         string
	PartyTypeCode    string
	FinancialElement FinancialElement
	Buckets          map[int]decimal.Decimal
}
