package service

import (
	"testing"
	"time"

	"almengine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildBucketRangesLadder(t *testing.T) {
	defs := []models.BucketDefinition{
		{SerialNumber: 1, Frequency: 7, Unit: models.UnitDays},
		{SerialNumber: 2, Frequency: 1, Unit: models.UnitMonths},
		{SerialNumber: 3, Frequency: 5, Unit: models.UnitYears},
	}

	buckets, err := BuildBucketRanges(defs, date(2025, time.April, 30))
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, date(2025, time.April, 30), buckets[0].StartDate)
	assert.Equal(t, date(2025, time.May, 7), buckets[0].EndDate)

	assert.Equal(t, date(2025, time.May, 8), buckets[1].StartDate)
	assert.Equal(t, date(2025, time.June, 7), buckets[1].EndDate)

	assert.Equal(t, date(2025, time.June, 8), buckets[2].StartDate)
	assert.Equal(t, date(2030, time.June, 7), buckets[2].EndDate)
}

func TestBuildBucketRangesContiguity(t *testing.T) {
	defs := []models.BucketDefinition{
		{SerialNumber: 1, Frequency: 1, Unit: models.UnitDays},
		{SerialNumber: 2, Frequency: 14, Unit: models.UnitDays},
		{SerialNumber: 3, Frequency: 3, Unit: models.UnitMonths},
		{SerialNumber: 4, Frequency: 6, Unit: models.UnitMonths},
		{SerialNumber: 5, Frequency: 2, Unit: models.UnitYears},
		{SerialNumber: 6, Frequency: 10, Unit: models.UnitYears},
	}

	buckets, err := BuildBucketRanges(defs, date(2025, time.January, 31))
	require.NoError(t, err)

	for i, b := range buckets {
		assert.Equal(t, i+1, b.BucketNumber)
		assert.False(t, b.EndDate.Before(b.StartDate),
			"bucket %d ends before it starts", b.BucketNumber)
		if i > 0 {
			prev := buckets[i-1]
			assert.Equal(t, prev.EndDate.AddDate(0, 0, 1), b.StartDate,
				"bucket %d does not start the day after bucket %d ends", b.BucketNumber, prev.BucketNumber)
		}
	}
}

func TestBuildBucketRangesMonthEndClamping(t *testing.T) {
	defs := []models.BucketDefinition{
		{SerialNumber: 1, Frequency: 1, Unit: models.UnitMonths},
	}

	buckets, err := BuildBucketRanges(defs, date(2025, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.February, 28), buckets[0].EndDate)

	buckets, err = BuildBucketRanges(defs, date(2024, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), buckets[0].EndDate)
}

func TestBuildBucketRangesRejectsBadDefinitions(t *testing.T) {
	_, err := BuildBucketRanges(nil, date(2025, time.April, 30))
	assert.Error(t, err)

	_, err = BuildBucketRanges([]models.BucketDefinition{
		{SerialNumber: 1, Frequency: 7, Unit: "Weeks"},
	}, date(2025, time.April, 30))
	assert.ErrorContains(t, err, "unknown unit")

	_, err = BuildBucketRanges([]models.BucketDefinition{
		{SerialNumber: 1, Frequency: 0, Unit: models.UnitDays},
	}, date(2025, time.April, 30))
	assert.ErrorContains(t, err, "non-positive frequency")
}
