package service

import (
	"context"
	"testing"
	"time"

	"almengine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRateSensitiveLoadRequiresConsolidatedTable(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()
	svc := NewRateSensitiveService(&MockUnitOfWorkFactory{UoW: uow})

	uow.ReportRepo.On("TableExists", mock.Anything, "report_consolidated_20250430").Return(false, nil)

	err := svc.Run(context.Background(), "contractual", snapshot)
	assert.ErrorContains(t, err, "does not exist")
	assert.Equal(t, 0, uow.Commits)
}

func TestRateSensitiveLoadCopiesFromConsolidatedTable(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()
	svc := NewRateSensitiveService(&MockUnitOfWorkFactory{UoW: uow})

	src := "report_consolidated_20250430"
	dst := "report_rate_sensitive_20250430"
	master := []models.TimeBucket{
		{BucketNumber: 1, SnapshotDate: snapshot, StartDate: date(2025, time.April, 30), EndDate: date(2025, time.May, 7)},
	}
	columns := []string{"bucket_001_20250430_20250507"}

	uow.ReportRepo.On("TableExists", mock.Anything, src).Return(true, nil)
	uow.ReportRepo.On("CreateTableLike", mock.Anything, dst, src).Return(nil)
	uow.ReferenceRepo.On("RateSensitiveProductTypes", mock.Anything, snapshot).
		Return([]string{"TERM_LOAN"}, nil)
	uow.TimeBucketRepo.On("ListForRun", mock.Anything, "contractual", snapshot).Return(master, nil)
	uow.AggregateRepo.On("PhysicalBucketCount", mock.Anything).Return(50, nil)
	uow.ReportRepo.On("BucketColumns", mock.Anything, src).Return(columns, nil)

	// Rows come out of the currency-consolidated table, not the raw
	// contractual one
	uow.ReportRepo.On("CopyForProductTypes", mock.Anything, src, dst, "contractual",
		columns, []string{"TERM_LOAN"}).Return(int64(1), nil)

	err := svc.Run(context.Background(), "contractual", snapshot)
	require.NoError(t, err)

	uow.ReportRepo.AssertExpectations(t)
	assert.Equal(t, 1, uow.Commits)
}

func TestRateSensitiveLoadWithoutFlaggedTypesLeavesTableEmpty(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()
	svc := NewRateSensitiveService(&MockUnitOfWorkFactory{UoW: uow})

	src := "report_consolidated_20250430"
	dst := "report_rate_sensitive_20250430"

	uow.ReportRepo.On("TableExists", mock.Anything, src).Return(true, nil)
	uow.ReportRepo.On("CreateTableLike", mock.Anything, dst, src).Return(nil)
	uow.ReferenceRepo.On("RateSensitiveProductTypes", mock.Anything, snapshot).
		Return([]string(nil), nil)

	err := svc.Run(context.Background(), "contractual", snapshot)
	require.NoError(t, err)

	uow.ReportRepo.AssertNotCalled(t, "CopyForProductTypes",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, uow.Commits)
}
