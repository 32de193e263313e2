package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"almengine/events"
	"almengine/models"
	"almengine/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pendingRecords(snapshot time.Time, runNumber int, names ...string) []*models.StepExecution {
	records := make([]*models.StepExecution, 0, len(names))
	for i, name := range names {
		records = append(records, &models.StepExecution{
			SnapshotDate: snapshot,
			RunNumber:    runNumber,
			ProcessName:  "contractual",
			StepOrder:    i,
			StepName:     name,
			Status:       models.StatusPending,
		})
	}
	return records
}

// recordStatuses captures every persisted (step, status) transition
func recordStatuses(repo *MockExecutionRepository, into *[]string) {
	repo.On("Update", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		rec := args.Get(1).(*models.StepExecution)
		*into = append(*into, rec.StepName+":"+string(rec.Status))
	}).Return(nil)
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()

	var ran []string
	pipe, err := pipeline.New(
		pipeline.Step{Name: "first", Run: func(ctx context.Context) error {
			ran = append(ran, "first")
			return nil
		}},
		pipeline.Step{Name: "second", DependsOn: []string{"first"}, Run: func(ctx context.Context) error {
			ran = append(ran, "second")
			return nil
		}},
	)
	require.NoError(t, err)

	svc := NewExecutionService(&MockUnitOfWorkFactory{UoW: uow}, pipe)

	uow.ExecutionRepo.On("NextRunNumber", mock.Anything, snapshot, "contractual").Return(1, nil)
	uow.ExecutionRepo.On("CreateSteps", mock.Anything, mock.MatchedBy(func(records []*models.StepExecution) bool {
		return len(records) == 2 &&
			records[0].StepName == "first" && records[0].StepOrder == 0 &&
			records[1].StepName == "second" && records[1].StepOrder == 1 &&
			records[0].Status == models.StatusPending
	})).Return(nil)
	uow.ExecutionRepo.On("ListRun", mock.Anything, snapshot, 1, "contractual").
		Return(pendingRecords(snapshot, 1, "first", "second"), nil)

	var statuses []string
	recordStatuses(uow.ExecutionRepo, &statuses)

	err = svc.Execute(context.Background(), "contractual", snapshot)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, []string{
		"first:Running", "first:Success",
		"second:Running", "second:Success",
	}, statuses)

	require.NotEmpty(t, uow.Publisher.Events)
	last, ok := uow.Publisher.Events[len(uow.Publisher.Events)-1].(events.RunCompletedEvent)
	require.True(t, ok)
	assert.True(t, last.Succeeded)
	assert.Equal(t, 2, last.StepsRun)
}

func TestExecuteHaltsOnFailureLeavingLaterStepsPending(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()

	var ran []string
	pipe, err := pipeline.New(
		pipeline.Step{Name: "first", Run: func(ctx context.Context) error {
			ran = append(ran, "first")
			return errors.New("source table missing")
		}},
		pipeline.Step{Name: "second", DependsOn: []string{"first"}, Run: func(ctx context.Context) error {
			ran = append(ran, "second")
			return nil
		}},
	)
	require.NoError(t, err)

	svc := NewExecutionService(&MockUnitOfWorkFactory{UoW: uow}, pipe)

	uow.ExecutionRepo.On("NextRunNumber", mock.Anything, snapshot, "contractual").Return(3, nil)
	uow.ExecutionRepo.On("CreateSteps", mock.Anything, mock.Anything).Return(nil)
	uow.ExecutionRepo.On("ListRun", mock.Anything, snapshot, 3, "contractual").
		Return(pendingRecords(snapshot, 3, "first", "second"), nil)

	var statuses []string
	recordStatuses(uow.ExecutionRepo, &statuses)

	err = svc.Execute(context.Background(), "contractual", snapshot)
	require.ErrorContains(t, err, "step first did not complete")

	// The failing step halts the run before the second step starts
	assert.Equal(t, []string{"first"}, ran)
	assert.Equal(t, []string{"first:Running", "first:Failed"}, statuses)

	last, ok := uow.Publisher.Events[len(uow.Publisher.Events)-1].(events.RunCompletedEvent)
	require.True(t, ok)
	assert.False(t, last.Succeeded)
}

func TestExecuteRecordsStoppedOnCancellation(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()

	ctx, cancel := context.WithCancel(context.Background())
	pipe, err := pipeline.New(
		pipeline.Step{Name: "first", Run: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		}},
	)
	require.NoError(t, err)

	svc := NewExecutionService(&MockUnitOfWorkFactory{UoW: uow}, pipe)

	uow.ExecutionRepo.On("NextRunNumber", mock.Anything, snapshot, "contractual").Return(1, nil)
	uow.ExecutionRepo.On("CreateSteps", mock.Anything, mock.Anything).Return(nil)
	uow.ExecutionRepo.On("ListRun", mock.Anything, snapshot, 1, "contractual").
		Return(pendingRecords(snapshot, 1, "first"), nil)

	var statuses []string
	recordStatuses(uow.ExecutionRepo, &statuses)

	err = svc.Execute(ctx, "contractual", snapshot)
	require.Error(t, err)

	assert.Equal(t, []string{"first:Running", "first:Stopped"}, statuses)
}

func TestResumeSkipsSucceededSteps(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()

	var ran []string
	pipe, err := pipeline.New(
		pipeline.Step{Name: "first", Run: func(ctx context.Context) error {
			ran = append(ran, "first")
			return nil
		}},
		pipeline.Step{Name: "second", DependsOn: []string{"first"}, Run: func(ctx context.Context) error {
			ran = append(ran, "second")
			return nil
		}},
	)
	require.NoError(t, err)

	svc := NewExecutionService(&MockUnitOfWorkFactory{UoW: uow}, pipe)

	records := pendingRecords(snapshot, 2, "first", "second")
	records[0].Status = models.StatusSuccess
	uow.ExecutionRepo.On("ListRun", mock.Anything, snapshot, 2, "contractual").Return(records, nil)
	uow.ExecutionRepo.On("ResetForResume", mock.Anything, snapshot, 2, "contractual", 0).Return(int64(1), nil)

	var statuses []string
	recordStatuses(uow.ExecutionRepo, &statuses)

	err = svc.Resume(context.Background(), "contractual", snapshot, 2, "")
	require.NoError(t, err)

	// The succeeded step keeps its record and never re-runs
	assert.Equal(t, []string{"second"}, ran)
	assert.Equal(t, []string{"second:Running", "second:Success"}, statuses)
}

func TestResumeResolvesLatestRunNumber(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()

	pipe, err := pipeline.New(
		pipeline.Step{Name: "first", Run: func(ctx context.Context) error { return nil }},
	)
	require.NoError(t, err)

	svc := NewExecutionService(&MockUnitOfWorkFactory{UoW: uow}, pipe)

	uow.ExecutionRepo.On("LatestRunNumber", mock.Anything, snapshot, "contractual").Return(0, nil)

	err = svc.Resume(context.Background(), "contractual", snapshot, 0, "")
	assert.ErrorContains(t, err, "no previous run")
}

func TestResumeRejectsUnknownRunAndStep(t *testing.T) {
	snapshot := date(2025, time.April, 30)
	uow := NewMockUnitOfWork()

	pipe, err := pipeline.New(
		pipeline.Step{Name: "first", Run: func(ctx context.Context) error { return nil }},
	)
	require.NoError(t, err)

	svc := NewExecutionService(&MockUnitOfWorkFactory{UoW: uow}, pipe)

	uow.ExecutionRepo.On("ListRun", mock.Anything, snapshot, 9, "contractual").
		Return([]*models.StepExecution{}, nil)
	err = svc.Resume(context.Background(), "contractual", snapshot, 9, "")
	assert.ErrorContains(t, err, "does not exist")

	uow.ExecutionRepo.On("ListRun", mock.Anything, snapshot, 2, "contractual").
		Return(pendingRecords(snapshot, 2, "first"), nil)
	err = svc.Resume(context.Background(), "contractual", snapshot, 2, "no-such-step")
	assert.ErrorContains(t, err, "unknown step")
}
