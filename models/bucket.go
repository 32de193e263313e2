package models

import (
	"fmt"
	"regexp"
	"time"
)

// BucketUnit is the calendar unit a bucket definition is expressed in
type BucketUnit string

const (
	UnitDays   BucketUnit = "Days"
	UnitMonths BucketUnit = "Months"
	UnitYears  BucketUnit = "Years"
)

// BucketDefinition is one row of the maturity-ladder configuration: the
// Nth bucket spans Frequency units starting where the previous one ended.
type BucketDefinition struct {
	SerialNumber int        `db:"serial_number"`
	Frequency    int        `db:"frequency"`
	Unit         BucketUnit `db:"multiplier"`
}

// TimeBucket is one bucket-master row: a concrete date range generated
// for a (process, snapshot date) run. Ranges are contiguous, ordered and
// non-overlapping; bucket numbers are 1-based and dense.
type TimeBucket struct {
	ID           int64     `db:"id"`
	ProcessName  string    `db:"process_name"`
	SnapshotDate time.Time `db:"snapshot_date"`
	BucketNumber int       `db:"bucket_number"`
	StartDate    time.Time `db:"start_date"`
	EndDate      time.Time `db:"end_date"`
	CreatedAt    time.Time `db:"created_at"`
}

var unsafeIdentChars = regexp.MustCompile(`[^0-9A-Za-z_]`)

// ColumnName builds the physical column name for this bucket. The bucket
// number is zero-padded so lexicographic order matches chronological
// order, and the name is truncated to the Postgres 63-byte identifier
// limit.
//
// Example for bucket 3 spanning 2025-01-01..2025-03-31:
//
//	bucket_003_20250101_20250331
func (b *TimeBucket) ColumnName() string {
	raw := fmt.Sprintf("bucket_%03d_%s_%s",
		b.BucketNumber,
		b.StartDate.Format("20060102"),
		b.EndDate.Format("20060102"),
	)
	name := unsafeIdentChars.ReplaceAllString(raw, "_")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
