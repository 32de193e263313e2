package repository

import (
	"context"
	"fmt"
	"time"

	"almengine/database"
	"almengine/models"
)

// maxErrorLength caps persisted error messages
const maxErrorLength = 4000

// ExecutionRepository persists pipeline run state, one row per step
// per run.
type ExecutionRepository struct {
	q queryable
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *database.DB) *ExecutionRepository {
	return &ExecutionRepository{q: db.Pool}
}

// newExecutionRepositoryWithTx creates a new execution repository bound to a transaction
func newExecutionRepositoryWithTx(tx queryable) *ExecutionRepository {
	return &ExecutionRepository{q: tx}
}

// NextRunNumber returns the next unused run number for the snapshot
func (r *ExecutionRepository) NextRunNumber(ctx context.Context, snapshot time.Time, processName string) (int, error) {
	query := `
		SELECT COALESCE(MAX(run_number), 0) + 1
		FROM execution_history
		WHERE snapshot_date = $1 AND process_name = $2
	`

	var next int
	if err := r.q.QueryRow(ctx, query, snapshot, processName).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to get next run number for %s: %w",
			snapshot.Format("2006-01-02"), err)
	}

	return next, nil
}

// LatestRunNumber returns the most recent run number for the snapshot,
// or 0 when the snapshot has never run.
func (r *ExecutionRepository) LatestRunNumber(ctx context.Context, snapshot time.Time, processName string) (int, error) {
	query := `
		SELECT COALESCE(MAX(run_number), 0)
		FROM execution_history
		WHERE snapshot_date = $1 AND process_name = $2
	`

	var latest int
	if err := r.q.QueryRow(ctx, query, snapshot, processName).Scan(&latest); err != nil {
		return 0, fmt.Errorf("failed to get latest run number for %s: %w",
			snapshot.Format("2006-01-02"), err)
	}

	return latest, nil
}

// CreateSteps inserts one Pending record per step for a new run
func (r *ExecutionRepository) CreateSteps(ctx context.Context, steps []*models.StepExecution) error {
	query := `
		INSERT INTO execution_history
		(snapshot_date, run_number, process_name, step_order, step_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	for _, step := range steps {
		err := r.q.QueryRow(ctx, query,
			step.SnapshotDate,
			step.RunNumber,
			step.ProcessName,
			step.StepOrder,
			step.StepName,
			string(step.Status),
		).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create step record %s for run %d: %w",
				step.StepName, step.RunNumber, err)
		}
	}

	return nil
}

// Update persists a step's current status, attempts and timestamps.
// Error messages are truncated so an oversized stack trace cannot fail
// the write.
func (r *ExecutionRepository) Update(ctx context.Context, step *models.StepExecution) error {
	msg := step.ErrorMessage
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}

	query := `
		UPDATE execution_history
		SET status = $1, attempts = $2, error_message = $3,
		    started_at = $4, finished_at = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		string(step.Status),
		step.Attempts,
		msg,
		step.StartedAt,
		step.FinishedAt,
		step.ID,
	).Scan(&step.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update step record %s: %w", step.StepName, err)
	}

	return nil
}

// ListRun returns every step record of one run in step order
func (r *ExecutionRepository) ListRun(ctx context.Context, snapshot time.Time, runNumber int, processName string) ([]*models.StepExecution, error) {
	query := `
		SELECT id, snapshot_date, run_number, process_name, step_order, step_name,
		       status, attempts, COALESCE(error_message, ''),
		       started_at, finished_at, created_at, updated_at
		FROM execution_history
		WHERE snapshot_date = $1 AND run_number = $2 AND process_name = $3
		ORDER BY step_order
	`

	rows, err := r.q.Query(ctx, query, snapshot, runNumber, processName)
	if err != nil {
		return nil, fmt.Errorf("failed to list run %d for %s: %w",
			runNumber, snapshot.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var steps []*models.StepExecution
	for rows.Next() {
		var step models.StepExecution
		var status string
		err := rows.Scan(
			&step.ID,
			&step.SnapshotDate,
			&step.RunNumber,
			&step.ProcessName,
			&step.StepOrder,
			&step.StepName,
			&status,
			&step.Attempts,
			&step.ErrorMessage,
			&step.StartedAt,
			&step.FinishedAt,
			&step.CreatedAt,
			&step.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}
		step.Status = models.StepStatus(status)
		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate step records: %w", err)
	}

	return steps, nil
}

// ResetForResume flips every non-Success step at or after the given
// order back to Pending so a resumed run re-executes it. Completed
// steps before the resume point keep their single Success record.
func (r *ExecutionRepository) ResetForResume(ctx context.Context, snapshot time.Time, runNumber int, processName string, fromOrder int) (int64, error) {
	query := `
		UPDATE execution_history
		SET status = $1, attempts = 0, error_message = NULL,
		    started_at = NULL, finished_at = NULL, updated_at = NOW()
		WHERE snapshot_date = $2 AND run_number = $3 AND process_name = $4
		  AND step_order >= $5 AND status <> $6
	`

	tag, err := r.q.Exec(ctx, query,
		string(models.StatusPending), snapshot, runNumber, processName,
		fromOrder, string(models.StatusSuccess))
	if err != nil {
		return 0, fmt.Errorf("failed to reset run %d for resume: %w", runNumber, err)
	}

	return tag.RowsAffected(), nil
}
