package models

import "time"

// StepStatus is the lifecycle state of one pipeline step execution
type StepStatus string

const (
	StatusPending StepStatus = "Pending"
	StatusRunning StepStatus = "Running"
	StatusSuccess StepStatus = "Success"
	StatusFailed  StepStatus = "Failed"
	StatusStopped StepStatus = "Stopped"
)

// StepExecution is one persisted step record of a pipeline run. A run
// is identified by (snapshot date, run number, process name); each step
// of the run gets exactly one record, updated in place as it moves
// through the lifecycle.
type StepExecution struct {
	ID           int64
	SnapshotDate time.Time
	RunNumber    int
	ProcessName  string
	StepOrder    int
	StepName     string
	Status       StepStatus
	Attempts     int
	ErrorMessage string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
