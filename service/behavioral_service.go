package service

import (
	"context"
	"time"

	"almengine/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var oneHundred = decimal.NewFromInt(100)

// behavioralService implements the BehavioralService interface
type behavioralService struct {
	uowFactory UnitOfWorkFactory
}

// NewBehavioralService creates a new behavioral service
func NewBehavioralService(uowFactory UnitOfWorkFactory) BehavioralService {
	return &behavioralService{uowFactory: uowFactory}
}

// RespreadBuckets redistributes a row's bucket amounts per the split
// percentages. Every non-zero source bucket is spread across the
// pattern's destination buckets; results are rounded to two decimals at
// the end, so the total is conserved up to rounding.
func RespreadBuckets(values []decimal.Decimal, bucketNumbers []int, splits map[int]decimal.Decimal) []decimal.Decimal {
	indexByNumber := make(map[int]int, len(bucketNumbers))
	for i, n := range bucketNumbers {
		indexByNumber[n] = i
	}

	out := make([]decimal.Decimal, len(values))
	for _, amount := range values {
		if amount.IsZero() {
			continue
		}
		for dstNumber, pct := range splits {
			dst, ok := indexByNumber[dstNumber]
			if !ok {
				continue
			}
			out[dst] = out[dst].Add(amount.Mul(pct).Div(oneHundred))
		}
	}

	for i := range out {
		out[i] = out[i].Round(2)
	}
	return out
}

// Run rebuilds the snapshot's behavioral table: a fresh clone of the
// contractual table whose rows have their buckets redistributed per the
// product type's pattern. Rows without a pattern are skipped.
func (s *behavioralService) Run(ctx context.Context, processName string, snapshot time.Time) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	src := models.ReportContractual.TableName(snapshot)
	dst := models.ReportBehavioral.TableName(snapshot)
	if err := uow.ReportRepository().CreateTableLike(ctx, dst, src); err != nil {
		return err
	}

	patterns, err := uow.ReferenceRepository().BehavioralPatterns(ctx)
	if err != nil {
		return err
	}
	for productType, p := range patterns {
		if err := p.Validate(); err != nil {
			log.WithFields(log.Fields{
				"productType": productType,
				"error":       err.Error(),
			}).Warn("Behavioral pattern percentages do not sum to 100, applying as configured")
		}
	}

	buckets, columns, err := usableMasterColumns(ctx, uow, src, processName, snapshot)
	if err != nil {
		return err
	}
	numbers := make([]int, len(buckets))
	for i, b := range buckets {
		numbers[i] = b.BucketNumber
	}

	rows, err := uow.ReportRepository().ListBucketRows(ctx, src, processName, columns)
	if err != nil {
		return err
	}

	var respread, skipped int
	skippedTypes := make(map[string]bool)

	for _, row := range rows {
		pattern, ok := patterns[row.ProductType]
		if !ok {
			skipped++
			skippedTypes[row.ProductType] = true
			continue
		}

		out := RespreadBuckets(row.Values, numbers, pattern.Splits)
		if err := uow.ReportRepository().CopyRowWithValues(ctx, src, dst, row.ID, columns, out); err != nil {
			return err
		}
		respread++
	}

	if skipped > 0 {
		types := make([]string, 0, len(skippedTypes))
		for t := range skippedTypes {
			types = append(types, t)
		}
		log.WithFields(log.Fields{
			"snapshot":     snapshot.Format("2006-01-02"),
			"rows":         skipped,
			"productTypes": types,
		}).Warn("Rows without a behavioral pattern were not carried over")
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"table":    dst,
		"rows":     respread,
	}).Info("Loaded behavioral report")

	return uow.Commit()
}
