package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReportKind selects one of the per-snapshot report tables
type ReportKind string

const (
	ReportContractual   ReportKind = "report_contractual"
	ReportBehavioral    ReportKind = "report_behavioral"
	ReportConsolidated  ReportKind = "report_consolidated"
	ReportRateSensitive ReportKind = "report_rate_sensitive"
)

// TableName returns the physical table for this kind and snapshot,
// e.g. report_contractual_20250430. One table per snapshot keeps the
// bucket columns, whose names encode dates, consistent within a table.
func (k ReportKind) TableName(snapshot time.Time) string {
	return fmt.Sprintf("%s_%s", k, snapshot.Format("20060102"))
}

// FlowType classifies a report row by balance-sheet side
type FlowType string

const (
	FlowInflow  FlowType = "inflow"
	FlowOutflow FlowType = "outflow"
	FlowUnknown FlowType = ""
)

// ReportRow is the static (non-bucket) portion of one report table row.
// Bucket values live in dynamically named columns and are read and
// written separately, keyed by bucket number.
type ReportRow struct {
	ID               int64
	SnapshotDate     time.Time
	ProcessName      string
	LoanType         string
	PartyTypeCode    string
	ProductCode      string
	CurrencyCode     string
	FinancialElement FinancialElement
	ProductName      string
	ProductType      string
	ProductTypeDesc  string
	AccountType      string
	FlowType         FlowType
	AdjustmentAmount decimal.Decimal
}

// ReconciliationRow couples one report row's bucket values with the
// target balance it reconciles against. Target is nil when no balance
// row exists for the (product, currency) pair. Values follow the order
// of the bucket columns the row was read with.
type ReconciliationRow struct {
	ID           int64
	ProductCode  string
	CurrencyCode string
	Values       []decimal.Decimal
	Target       *decimal.Decimal
}

// BucketValueRow is one report row's bucket values, keyed for the
// behavioral respreader by product type.
type BucketValueRow struct {
	ID          int64
	ProductType string
	Values      []decimal.Decimal
}

// AlignmentBreak is one (product, currency) whose bucket sum still
// deviates from the target balance by more than the tolerance after
// reconciliation.
type AlignmentBreak struct {
	ProductCode  string
	CurrencyCode string
	Target       decimal.Decimal
	BucketSum    decimal.Decimal
	Deviation    decimal.Decimal
}
