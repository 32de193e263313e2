package service

import (
	"context"
	"fmt"
	"time"

	"almengine/models"

	log "github.com/sirupsen/logrus"
)

// contractualTemplate is the structural template for fresh contractual
// tables. It carries no bucket columns; those come from the sync.
const contractualTemplate = "report_contractual_base"

// schemaService implements the SchemaService interface
type schemaService struct {
	uowFactory UnitOfWorkFactory
}

// NewSchemaService creates a new schema service
func NewSchemaService(uowFactory UnitOfWorkFactory) SchemaService {
	return &schemaService{uowFactory: uowFactory}
}

// CreateContractualTable drops and recreates the snapshot's contractual
// table from the base template and synchronizes its bucket columns with
// the bucket master.
func (s *schemaService) CreateContractualTable(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	table := models.ReportContractual.TableName(snapshot)
	if err := uow.ReportRepository().CreateTableLike(ctx, table, contractualTemplate); err != nil {
		return err
	}

	if err := s.SyncBucketColumns(ctx, uow, table, processName, snapshot); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"table":    table,
	}).Info("Created contractual report table")

	return uow.Commit()
}

// SyncBucketColumns aligns the table's bucket columns with the bucket
// master. Columns whose name no longer matches a master range are
// dropped; missing ones are added. Running it twice in a row changes
// nothing.
func (s *schemaService) SyncBucketColumns(ctx context.Context, uow UnitOfWork, table, processName string, snapshot time.Time) error {
	master, err := uow.TimeBucketRepository().ListForRun(ctx, processName, snapshot)
	if err != nil {
		return err
	}
	if len(master) == 0 {
		return fmt.Errorf("no bucket master rows for %s/%s, run the aggregation step first",
			processName, snapshot.Format("2006-01-02"))
	}

	expected := make([]string, 0, len(master))
	expectedSet := make(map[string]bool, len(master))
	for i := range master {
		name := master[i].ColumnName()
		expected = append(expected, name)
		expectedSet[name] = true
	}

	existing, err := uow.ReportRepository().BucketColumns(ctx, table)
	if err != nil {
		return err
	}

	var stale []string
	for _, col := range existing {
		if !expectedSet[col] {
			stale = append(stale, col)
		}
	}
	if len(stale) > 0 {
		log.WithFields(log.Fields{
			"table": table,
			"stale": stale,
		}).Warn("Dropping bucket columns that no longer match the bucket master")
		if err := uow.ReportRepository().DropBucketColumns(ctx, table, stale); err != nil {
			return err
		}
	}

	return uow.ReportRepository().AddBucketColumns(ctx, table, expected)
}
