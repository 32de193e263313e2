package service

import (
	"context"
	"time"

	"almengine/models"

	log "github.com/sirupsen/logrus"
)

// consolidationService implements the ConsolidationService interface
type consolidationService struct {
	uowFactory        UnitOfWorkFactory
	reportingCurrency string
}

// NewConsolidationService creates a new consolidation service
func NewConsolidationService(uowFactory UnitOfWorkFactory, reportingCurrency string) ConsolidationService {
	return &consolidationService{
		uowFactory:        uowFactory,
		reportingCurrency: reportingCurrency,
	}
}

// Run rebuilds the snapshot's consolidated table: every contractual row
// converted into the reporting currency at the latest rate quoted on or
// before the snapshot date. Currencies with no quote pass through at 1.
func (s *consolidationService) Run(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	src := models.ReportContractual.TableName(snapshot)
	dst := models.ReportConsolidated.TableName(snapshot)
	if err := uow.ReportRepository().CreateTableLike(ctx, dst, src); err != nil {
		return err
	}

	rates, err := uow.ReferenceRepository().RatesAsOf(ctx, snapshot, s.reportingCurrency)
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		log.WithFields(log.Fields{
			"snapshot": snapshot.Format("2006-01-02"),
			"currency": s.reportingCurrency,
		}).Warn("No exchange rates quoted, all amounts pass through unconverted")
	}

	_, columns, err := usableMasterColumns(ctx, uow, src, processName, snapshot)
	if err != nil {
		return err
	}

	rows, err := uow.ReportRepository().CopyWithFX(ctx, src, dst, processName,
		s.reportingCurrency, columns, rates)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"table":    dst,
		"currency": s.reportingCurrency,
		"rows":     rows,
	}).Info("Loaded consolidated report")

	return uow.Commit()
}
