package events

import (
	"context"
	"sync"
	"time"

	"almengine/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeStepStarted       EventType = "step_started"
	EventTypeStepFinished      EventType = "step_finished"
	EventTypeRunCompleted      EventType = "run_completed"
	EventTypeAlignmentBreak    EventType = "alignment_break"
	EventTypeDataQualityIssue  EventType = "data_quality_issue"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// StepStartedEvent signals that a pipeline step began executing
type StepStartedEvent struct {
	SnapshotDate time.Time
	RunNumber    int
	ProcessName  string
	StepName     string
	Attempt      int
}

func (e StepStartedEvent) Type() EventType {
	return EventTypeStepStarted
}

// StepFinishedEvent signals that a pipeline step reached a terminal state
type StepFinishedEvent struct {
	SnapshotDate time.Time
	RunNumber    int
	ProcessName  string
	StepName     string
	Status       models.StepStatus
	Duration     time.Duration
	Error        string
}

func (e StepFinishedEvent) Type() EventType {
	return EventTypeStepFinished
}

// RunCompletedEvent signals that a whole pipeline run finished
type RunCompletedEvent struct {
	SnapshotDate time.Time
	RunNumber    int
	ProcessName  string
	Succeeded    bool
	StepsRun     int
}

func (e RunCompletedEvent) Type() EventType {
	return EventTypeRunCompleted
}

// AlignmentBreakEvent reports a (product, currency) whose buckets still
// deviate from the target balance after reconciliation.
type AlignmentBreakEvent struct {
	SnapshotDate time.Time
	ProductCode  string
	CurrencyCode string
	Deviation    string
}

func (e AlignmentBreakEvent) Type() EventType {
	return EventTypeAlignmentBreak
}

// DataQualityIssueEvent reports input rows with missing dimensions
type DataQualityIssueEvent struct {
	SnapshotDate time.Time
	Dimension    string
	Count        int64
}

func (e DataQualityIssueEvent) Type() EventType {
	return EventTypeDataQualityIssue
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make([]Handler, 0)
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking the pipeline
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Use background context for event emission to avoid issues with
	// transaction context expiration
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
