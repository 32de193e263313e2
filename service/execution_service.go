package service

import (
	"context"
	"fmt"
	"time"

	"almengine/events"
	"almengine/models"
	"almengine/pipeline"

	log "github.com/sirupsen/logrus"
)

// executionService implements the ExecutionService interface
type executionService struct {
	uowFactory UnitOfWorkFactory
	pipe       *pipeline.Pipeline
}

// NewExecutionService creates a new execution service
func NewExecutionService(uowFactory UnitOfWorkFactory, pipe *pipeline.Pipeline) ExecutionService {
	return &executionService{
		uowFactory: uowFactory,
		pipe:       pipe,
	}
}

// Execute starts a fresh run: allocates the next run number, creates one
// Pending record per step and executes the steps in order. A failing
// step halts the run and leaves the remaining records Pending so the
// run can be resumed.
func (s *executionService) Execute(ctx context.Context, processName string, snapshot time.Time) error {
	steps := s.pipe.Steps()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	runNumber, err := uow.ExecutionRepository().NextRunNumber(ctx, snapshot, processName)
	if err != nil {
		return err
	}

	records := make([]*models.StepExecution, 0, len(steps))
	for i, step := range steps {
		records = append(records, &models.StepExecution{
			SnapshotDate: snapshot,
			RunNumber:    runNumber,
			ProcessName:  processName,
			StepOrder:    i,
			StepName:     step.Name,
			Status:       models.StatusPending,
		})
	}
	if err := uow.ExecutionRepository().CreateSteps(ctx, records); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"process":  processName,
		"run":      runNumber,
		"steps":    len(records),
	}).Info("Starting pipeline run")

	return s.runPending(ctx, processName, snapshot, runNumber)
}

// Resume re-executes a previous run's unfinished steps under the same
// run number. Steps that already reached Success keep their record and
// are skipped; everything else from the resume point is reset to
// Pending and re-run.
func (s *executionService) Resume(ctx context.Context, processName string, snapshot time.Time, runNumber int, fromStep string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if runNumber == 0 {
		latest, err := uow.ExecutionRepository().LatestRunNumber(ctx, snapshot, processName)
		if err != nil {
			return err
		}
		if latest == 0 {
			return fmt.Errorf("no previous run for %s/%s to resume",
				processName, snapshot.Format("2006-01-02"))
		}
		runNumber = latest
	}

	records, err := uow.ExecutionRepository().ListRun(ctx, snapshot, runNumber, processName)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("run %d for %s/%s does not exist",
			runNumber, processName, snapshot.Format("2006-01-02"))
	}

	fromOrder := 0
	if fromStep != "" {
		pos, ok := s.pipe.Position(fromStep)
		if !ok {
			return fmt.Errorf("unknown step %s", fromStep)
		}
		fromOrder = pos
	}

	reset, err := uow.ExecutionRepository().ResetForResume(ctx, snapshot, runNumber, processName, fromOrder)
	if err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"process":  processName,
		"run":      runNumber,
		"reset":    reset,
	}).Info("Resuming pipeline run")

	return s.runPending(ctx, processName, snapshot, runNumber)
}

// runPending walks the steps in execution order, running every record
// that is not yet Success and persisting each lifecycle transition.
func (s *executionService) runPending(ctx context.Context, processName string, snapshot time.Time, runNumber int) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	records, err := uow.ExecutionRepository().ListRun(ctx, snapshot, runNumber, processName)
	if err != nil {
		uow.Rollback()
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	byName := make(map[string]*models.StepExecution, len(records))
	for _, rec := range records {
		byName[rec.StepName] = rec
	}

	var stepsRun int
	for _, step := range s.pipe.Steps() {
		rec, ok := byName[step.Name]
		if !ok {
			return fmt.Errorf("run %d has no record for step %s, the pipeline changed since the run was created",
				runNumber, step.Name)
		}
		if rec.Status == models.StatusSuccess {
			continue
		}

		started := time.Now().UTC()
		rec.Status = models.StatusRunning
		rec.StartedAt = &started
		rec.FinishedAt = nil
		rec.ErrorMessage = ""
		if err := s.persist(ctx, rec, events.StepStartedEvent{
			SnapshotDate: snapshot,
			RunNumber:    runNumber,
			ProcessName:  processName,
			StepName:     step.Name,
			Attempt:      1,
		}); err != nil {
			return err
		}

		attempts, runErr := s.pipe.RunStep(ctx, step.Name)
		finished := time.Now().UTC()
		rec.Attempts = attempts
		rec.FinishedAt = &finished

		if runErr != nil {
			rec.Status = models.StatusFailed
			if ctx.Err() != nil {
				rec.Status = models.StatusStopped
			}
			rec.ErrorMessage = runErr.Error()
			if err := s.persist(ctx, rec, events.StepFinishedEvent{
				SnapshotDate: snapshot,
				RunNumber:    runNumber,
				ProcessName:  processName,
				StepName:     step.Name,
				Status:       rec.Status,
				Duration:     finished.Sub(started),
				Error:        rec.ErrorMessage,
			}); err != nil {
				return err
			}
			s.publishRunCompleted(ctx, processName, snapshot, runNumber, false, stepsRun)
			return fmt.Errorf("step %s did not complete: %w", step.Name, runErr)
		}

		rec.Status = models.StatusSuccess
		if err := s.persist(ctx, rec, events.StepFinishedEvent{
			SnapshotDate: snapshot,
			RunNumber:    runNumber,
			ProcessName:  processName,
			StepName:     step.Name,
			Status:       models.StatusSuccess,
			Duration:     finished.Sub(started),
		}); err != nil {
			return err
		}
		stepsRun++
	}

	s.publishRunCompleted(ctx, processName, snapshot, runNumber, true, stepsRun)

	log.WithFields(log.Fields{
		"snapshot": snapshot.Format("2006-01-02"),
		"process":  processName,
		"run":      runNumber,
		"steps":    stepsRun,
	}).Info("Pipeline run completed")

	return nil
}

// persist writes one step record update and publishes its event after
// the commit.
func (s *executionService) persist(ctx context.Context, rec *models.StepExecution, event events.Event) error {
	// A cancelled context must not block recording the Stopped status
	if ctx.Err() != nil {
		ctx = context.Background()
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ExecutionRepository().Update(ctx, rec); err != nil {
		return err
	}
	uow.EventBus().Publish(event)

	return uow.Commit()
}

func (s *executionService) publishRunCompleted(ctx context.Context, processName string, snapshot time.Time, runNumber int, succeeded bool, stepsRun int) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return
	}
	defer uow.Rollback()

	uow.EventBus().Publish(events.RunCompletedEvent{
		SnapshotDate: snapshot,
		RunNumber:    runNumber,
		ProcessName:  processName,
		Succeeded:    succeeded,
		StepsRun:     stepsRun,
	})
	uow.Commit()
}
