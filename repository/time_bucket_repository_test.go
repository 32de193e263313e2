package repository

import (
	"context"
	"testing"
	"time"

	"almengine/models"
	"almengine/repository/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeBucketRepository_ListDefinitions(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewTimeBucketRepository(testDB.DB)
	ctx := context.Background()

	t.Run("empty ladder", func(t *testing.T) {
		testutil.SeedBucketDefinitions(t, testDB, nil)

		defs, err := repo.ListDefinitions(ctx)
		require.NoError(t, err)
		assert.Empty(t, defs)
	})

	t.Run("ordered by serial number", func(t *testing.T) {
		testutil.SeedBucketDefinitions(t, testDB, []models.BucketDefinition{
			{SerialNumber: 3, Frequency: 5, Unit: models.UnitYears},
			{SerialNumber: 1, Frequency: 7, Unit: models.UnitDays},
			{SerialNumber: 2, Frequency: 1, Unit: models.UnitMonths},
		})

		defs, err := repo.ListDefinitions(ctx)
		require.NoError(t, err)
		require.Len(t, defs, 3)

		assert.Equal(t, 1, defs[0].SerialNumber)
		assert.Equal(t, models.UnitDays, defs[0].Unit)
		assert.Equal(t, 2, defs[1].SerialNumber)
		assert.Equal(t, models.UnitMonths, defs[1].Unit)
		assert.Equal(t, 3, defs[2].SerialNumber)
		assert.Equal(t, 5, defs[2].Frequency)
	})
}

func TestTimeBucketRepository_ReplaceForRun(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewTimeBucketRepository(testDB.DB)
	ctx := context.Background()
	snapshot := testutil.Date(2025, time.April, 30)

	buckets := []models.TimeBucket{
		{BucketNumber: 1, StartDate: testutil.Date(2025, time.April, 30), EndDate: testutil.Date(2025, time.May, 7)},
		{BucketNumber: 2, StartDate: testutil.Date(2025, time.May, 8), EndDate: testutil.Date(2025, time.June, 7)},
	}

	t.Run("writes the master", func(t *testing.T) {
		err := repo.ReplaceForRun(ctx, "contractual", snapshot, buckets)
		require.NoError(t, err)

		stored, err := repo.ListForRun(ctx, "contractual", snapshot)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, 1, stored[0].BucketNumber)
		assert.Equal(t, testutil.Date(2025, time.May, 7), stored[0].EndDate)
		assert.Equal(t, "contractual", stored[0].ProcessName)
	})

	t.Run("rewrite replaces the previous set", func(t *testing.T) {
		narrower := buckets[:1]
		err := repo.ReplaceForRun(ctx, "contractual", snapshot, narrower)
		require.NoError(t, err)

		stored, err := repo.ListForRun(ctx, "contractual", snapshot)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, 1, stored[0].BucketNumber)
	})

	t.Run("other runs are untouched", func(t *testing.T) {
		other := testutil.Date(2025, time.May, 31)
		err := repo.ReplaceForRun(ctx, "contractual", other, buckets)
		require.NoError(t, err)

		err = repo.ReplaceForRun(ctx, "contractual", snapshot, buckets)
		require.NoError(t, err)

		stored, err := repo.ListForRun(ctx, "contractual", other)
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})
}
