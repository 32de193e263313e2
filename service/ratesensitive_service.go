package service

import (
	"context"
	"fmt"
	"time"

	"almengine/models"

	log "github.com/sirupsen/logrus"
)

// rateSensitiveService implements the RateSensitiveService interface
type rateSensitiveService struct {
	uowFactory UnitOfWorkFactory
}

// NewRateSensitiveService creates a new rate sensitive service
func NewRateSensitiveService(uowFactory UnitOfWorkFactory) RateSensitiveService {
	return &rateSensitiveService{uowFactory: uowFactory}
}

// Run rebuilds the snapshot's rate sensitive table with the
// consolidated rows whose product type is flagged rate sensitive in the
// product master. No flagged types yields an empty table, not an error.
func (s *rateSensitiveService) Run(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	src := models.ReportConsolidated.TableName(snapshot)
	exists, err := uow.ReportRepository().TableExists(ctx, src)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %s does not exist, run the consolidation step first", src)
	}

	dst := models.ReportRateSensitive.TableName(snapshot)
	if err := uow.ReportRepository().CreateTableLike(ctx, dst, src); err != nil {
		return err
	}

	types, err := uow.ReferenceRepository().RateSensitiveProductTypes(ctx, snapshot)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
		}).Warn("No rate sensitive product types configured, table left empty")
		return uow.Commit()
	}

	_, columns, err := usableMasterColumns(ctx, uow, src, processName, snapshot)
	if err != nil {
		return err
	}

	rows, err := uow.ReportRepository().CopyForProductTypes(ctx, src, dst, processName, columns, types)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"table":    dst,
		"types":    types,
		"rows":     rows,
	}).Info("Loaded rate sensitive report")

	return uow.Commit()
}
