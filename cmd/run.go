package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"almengine/config"
	"almengine/database"
	"almengine/events"
	"almengine/pipeline"
	"almengine/repository"
	"almengine/service"
)

// Options selects what a single invocation runs
type Options struct {
	SnapshotDate time.Time
	Resume       bool
	RunNumber    int // 0 resumes the latest run
	FromStep     string
}

// Run initializes the application and executes one pipeline run
func Run(ctx context.Context, opts Options) error {
	// Load configuration
	cfg := config.Get()

	log.Printf("Starting cash flow pipeline for snapshot %s...", opts.SnapshotDate.Format("2006-01-02"))

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize event bus and progress logging
	eventBus := events.NewBus()
	subscribeProgressLogging(eventBus)

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize services
	aggregationService := service.NewAggregationService(uowFactory)
	rollupService := service.NewRollupService(uowFactory)
	schemaService := service.NewSchemaService(uowFactory)
	reportService := service.NewContractualReportService(uowFactory)
	reconcileService := service.NewReconcileService(uowFactory)
	behavioralService := service.NewBehavioralService(uowFactory)
	consolidationService := service.NewConsolidationService(uowFactory, cfg.ReportingCurrency)
	rateSensitiveService := service.NewRateSensitiveService(uowFactory)

	processName := cfg.ProcessName
	snapshot := opts.SnapshotDate
	retries := cfg.StepRetryCount

	pipe, err := pipeline.New(
		pipeline.Step{
			Name:       "aggregate_cashflows",
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return aggregationService.Run(ctx, processName, snapshot)
			},
		},
		pipeline.Step{
			Name:       "rollup_products",
			DependsOn:  []string{"aggregate_cashflows"},
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return rollupService.Run(ctx, processName, snapshot)
			},
		},
		pipeline.Step{
			Name:       "create_contractual_table",
			DependsOn:  []string{"aggregate_cashflows"},
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return schemaService.CreateContractualTable(ctx, processName, snapshot)
			},
		},
		pipeline.Step{
			Name:       "load_contractual_report",
			DependsOn:  []string{"rollup_products", "create_contractual_table"},
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return reportService.Run(ctx, processName, snapshot)
			},
		},
		pipeline.Step{
			Name:       "reconcile_balances",
			DependsOn:  []string{"load_contractual_report"},
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return reconcileService.Run(ctx, processName, snapshot)
			},
		},
		pipeline.Step{
			Name:       "load_behavioral_report",
			DependsOn:  []string{"reconcile_balances"},
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return behavioralService.Run(ctx, processName, snapshot)
			},
		},
		pipeline.Step{
			Name:       "consolidate_currency",
			DependsOn:  []string{"reconcile_balances"},
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return consolidationService.Run(ctx, processName, snapshot)
			},
		},
		pipeline.Step{
			Name:       "load_rate_sensitive_report",
			DependsOn:  []string{"consolidate_currency"},
			RetryCount: retries,
			Run: func(ctx context.Context) error {
				return rateSensitiveService.Run(ctx, processName, snapshot)
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	executionService := service.NewExecutionService(uowFactory, pipe)

	if opts.Resume {
		return executionService.Resume(ctx, processName, snapshot, opts.RunNumber, opts.FromStep)
	}
	return executionService.Execute(ctx, processName, snapshot)
}

// subscribeProgressLogging mirrors pipeline events onto the process log
func subscribeProgressLogging(bus *events.Bus) {
	bus.Subscribe(events.EventTypeStepStarted, func(ctx context.Context, event events.Event) {
		e := event.(events.StepStartedEvent)
		log.Printf("[run %d] step %s started", e.RunNumber, e.StepName)
	})
	bus.Subscribe(events.EventTypeStepFinished, func(ctx context.Context, event events.Event) {
		e := event.(events.StepFinishedEvent)
		if e.Error != "" {
			log.Printf("[run %d] step %s %s after %s: %s", e.RunNumber, e.StepName, e.Status, e.Duration, e.Error)
			return
		}
		log.Printf("[run %d] step %s %s after %s", e.RunNumber, e.StepName, e.Status, e.Duration)
	})
	bus.Subscribe(events.EventTypeRunCompleted, func(ctx context.Context, event events.Event) {
		e := event.(events.RunCompletedEvent)
		if e.Succeeded {
			log.Printf("[run %d] completed, %d steps run", e.RunNumber, e.StepsRun)
			return
		}
		log.Printf("[run %d] halted after %d steps, resume with -resume", e.RunNumber, e.StepsRun)
	})
	bus.Subscribe(events.EventTypeAlignmentBreak, func(ctx context.Context, event events.Event) {
		e := event.(events.AlignmentBreakEvent)
		log.Printf("alignment break for %s/%s: deviation %s", e.ProductCode, e.CurrencyCode, e.Deviation)
	})
	bus.Subscribe(events.EventTypeDataQualityIssue, func(ctx context.Context, event events.Event) {
		e := event.(events.DataQualityIssueEvent)
		log.Printf("data quality: %d events missing %s", e.Count, e.Dimension)
	})
}
