package service

import (
	"fmt"
	"time"

	"almengine/models"
)

// BuildBucketRanges expands the configured ladder into concrete date
// ranges anchored at the snapshot date. The first bucket starts on the
// snapshot date itself; every later bucket starts the day after its
// predecessor ends, so the ranges tile the horizon with no gap and no
// overlap.
//
// Each definition advances an anchor by its calendar offset. Month and
// year arithmetic clamps to the last day of the target month, so a
// ladder anchored on Jan 31 lands on Feb 28 rather than spilling into
// March.
func BuildBucketRanges(defs []models.BucketDefinition, snapshot time.Time) ([]models.TimeBucket, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("no bucket definitions configured")
	}

	buckets := make([]models.TimeBucket, 0, len(defs))
	anchor := snapshot
	start := snapshot

	for i, def := range defs {
		if def.Frequency <= 0 {
			return nil, fmt.Errorf("bucket definition %d has non-positive frequency %d",
				def.SerialNumber, def.Frequency)
		}

		var end time.Time
		switch def.Unit {
		case models.UnitDays:
			end = anchor.AddDate(0, 0, def.Frequency)
		case models.UnitMonths:
			end = addMonthsClamped(anchor, def.Frequency)
		case models.UnitYears:
			end = addMonthsClamped(anchor, def.Frequency*12)
		default:
			return nil, fmt.Errorf("bucket definition %d has unknown unit %q",
				def.SerialNumber, def.Unit)
		}

		if !end.After(start) && i > 0 {
			return nil, fmt.Errorf("bucket definition %d produces an empty range", def.SerialNumber)
		}

		buckets = append(buckets, models.TimeBucket{
			SnapshotDate: snapshot,
			BucketNumber: i + 1,
			StartDate:    start,
			EndDate:      end,
		})

		anchor = end
		start = end.AddDate(0, 0, 1)
	}

	return buckets, nil
}

// addMonthsClamped adds whole months, clamping the day of month to the
// target month's last day instead of normalizing into the next month.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, t.Location())
}
