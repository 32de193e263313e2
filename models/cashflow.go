package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashflowEvent is one projected payment produced by the upstream
// per-instrument loaders. The engine only reads these rows; record_count
// flags the rows participating in the current aggregation pass.
type CashflowEvent struct {
	ID              int64           `db:"id"`
	SnapshotDate    time.Time       `db:"snapshot_date"`
	AccountNumber   string          `db:"account_number"`
	ProductCode     string          `db:"product_code"`
	CurrencyCode    string          `db:"currency_code"`
	LoanType        string          `db:"loan_type"`
	PartyTypeCode   string          `db:"party_type_code"`
	CashflowDate    time.Time       `db:"cashflow_date"`
	PrincipalAmount decimal.Decimal `db:"principal_amount"`
	InterestAmount  decimal.Decimal `db:"interest_amount"`
	TotalAmount     decimal.Decimal `db:"total_amount"`
	BalanceAmount   decimal.Decimal `db:"balance_amount"`
	RecordCount     int             `db:"record_count"`
}

// DimensionStats summarises missing grouping dimensions among the events
// flagged for a snapshot. Missing values do not stop the aggregation;
// they are surfaced as data-quality warnings with sample records.
type DimensionStats struct {
	MissingProductCode int64
	MissingLoanType    int64
	ProductCodeSamples []CashflowEvent
	LoanTypeSamples    []CashflowEvent
}

// Total returns the combined number of missing dimension values
func (s DimensionStats) Total() int64 {
	return s.MissingProductCode + s.MissingLoanType
}
