package service

import (
	"context"
	"fmt"
	"time"

	"almengine/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// contractualReportService implements the ContractualReportService interface
type contractualReportService struct {
	uowFactory UnitOfWorkFactory
}

// NewContractualReportService creates a new contractual report service
func NewContractualReportService(uowFactory UnitOfWorkFactory) ContractualReportService {
	return &contractualReportService{uowFactory: uowFactory}
}

// FlowTypeFor classifies a balance-sheet account type into a cash flow
// direction. Unknown account types stay unclassified rather than
// guessing a side.
func FlowTypeFor(accountType string) models.FlowType {
	switch accountType {
	case "EARNINGASSETS", "OTHERASSET":
		return models.FlowInflow
	case "INTBEARINGLIABS", "OTHERLIABS":
		return models.FlowOutflow
	default:
		return models.FlowUnknown
	}
}

// Run clears the snapshot's contractual table and reloads it from the
// total cash flow product aggregates, enriched with product master and
// account class attributes. Principal and interest aggregates stay in
// the aggregate tables; the report carries the total element only.
// Rows whose product is missing from the master still load, with empty
// attributes and a warning.
func (s *contractualReportService) Run(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	table := models.ReportContractual.TableName(snapshot)
	exists, err := uow.ReportRepository().TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %s does not exist, run the create table step first", table)
	}

	buckets, columns, err := usableMasterColumns(ctx, uow, table, processName, snapshot)
	if err != nil {
		return err
	}
	numbers := make([]int, len(buckets))
	for i, b := range buckets {
		numbers[i] = b.BucketNumber
	}

	if _, err := uow.ReportRepository().DeleteRows(ctx, table, processName); err != nil {
		return err
	}

	products, err := uow.ReferenceRepository().ProductsLatest(ctx, snapshot)
	if err != nil {
		return err
	}
	classes, err := uow.ReferenceRepository().AccountClassesLatest(ctx, snapshot)
	if err != nil {
		return err
	}

	element := models.ElementTotalCashflow
	totals, err := uow.AggregateRepository().ListProductTotals(ctx, processName, snapshot, element, numbers)
	if err != nil {
		return err
	}

	missingProducts := make(map[string]bool)

	for _, agg := range totals {
		row := &models.ReportRow{
			SnapshotDate:     snapshot,
			ProcessName:      processName,
			LoanType:         agg.LoanType,
			PartyTypeCode:    agg.PartyTypeCode,
			ProductCode:      agg.ProductCode,
			CurrencyCode:     agg.CurrencyCode,
			FinancialElement: element,
		}

		if p, ok := products[agg.ProductCode]; ok {
			row.ProductName = p.ProductName
			row.ProductType = p.ProductType
			row.ProductTypeDesc = p.ProductTypeDesc
			if c, ok := classes[p.CoaCode]; ok {
				row.AccountType = c.AccountType
			}
			row.FlowType = FlowTypeFor(row.AccountType)
		} else {
			missingProducts[agg.ProductCode] = true
		}

		if err := uow.ReportRepository().InsertStaticRow(ctx, table, row); err != nil {
			return err
		}

		values := make(map[string]decimal.Decimal)
		for i, n := range numbers {
			if v, ok := agg.Buckets[n]; ok && !v.IsZero() {
				values[columns[i]] = v
			}
		}
		err = uow.ReportRepository().UpdateBucketValues(ctx, table, processName,
			agg.ProductCode, agg.CurrencyCode, element, values)
		if err != nil {
			return err
		}
	}

	if len(missingProducts) > 0 {
		codes := make([]string, 0, len(missingProducts))
		for code := range missingProducts {
			codes = append(codes, code)
		}
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
			"products": codes,
		}).Warn("Report rows loaded without product master attributes")
	}

	loaded, err := uow.ReportRepository().RowCount(ctx, table, processName)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"table":    table,
		"rows":     loaded,
	}).Info("Loaded contractual report")

	return uow.Commit()
}

// usableMasterColumns returns the master buckets that are both backed by
// aggregate columns and present on the report table, with their column
// names in bucket order.
func usableMasterColumns(ctx context.Context, uow UnitOfWork, table, processName string, snapshot time.Time) ([]models.TimeBucket, []string, error) {
	master, err := uow.TimeBucketRepository().ListForRun(ctx, processName, snapshot)
	if err != nil {
		return nil, nil, err
	}
	if len(master) == 0 {
		return nil, nil, fmt.Errorf("no bucket master rows for %s/%s, run the aggregation step first",
			processName, snapshot.Format("2006-01-02"))
	}

	physical, err := uow.AggregateRepository().PhysicalBucketCount(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(master) > physical {
		master = master[:physical]
	}

	tableCols, err := uow.ReportRepository().BucketColumns(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	colSet := make(map[string]bool, len(tableCols))
	for _, c := range tableCols {
		colSet[c] = true
	}

	columns := make([]string, 0, len(master))
	buckets := make([]models.TimeBucket, 0, len(master))
	for i := range master {
		name := master[i].ColumnName()
		if !colSet[name] {
			return nil, nil, fmt.Errorf("table %s is missing bucket column %s, run the schema sync first",
				table, name)
		}
		columns = append(columns, name)
		buckets = append(buckets, master[i])
	}

	return buckets, columns, nil
}
