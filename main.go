package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"almengine/cmd"
	"almengine/database"
)

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error:", err)
		}
		return
	}

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		log.Fatal("Invalid arguments: ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown; in-flight steps are recorded as Stopped
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping pipeline...")
		cancel()
	}()

	if err := cmd.Run(ctx, opts); err != nil {
		log.Fatal("Pipeline error: ", err)
	}
}

func parseOptions(args []string) (cmd.Options, error) {
	fs := flag.NewFlagSet("almengine", flag.ContinueOnError)
	dateStr := fs.String("date", "", "snapshot date to process (YYYY-MM-DD, required)")
	resume := fs.Bool("resume", false, "resume a previous run instead of starting a new one")
	runNumber := fs.Int("run", 0, "run number to resume, 0 means the latest")
	fromStep := fs.String("from", "", "step name to resume from, empty means the first unfinished step")

	if err := fs.Parse(args); err != nil {
		return cmd.Options{}, err
	}

	if *dateStr == "" {
		return cmd.Options{}, fmt.Errorf("-date is required")
	}
	snapshot, err := time.ParseInLocation("2006-01-02", *dateStr, time.UTC)
	if err != nil {
		return cmd.Options{}, fmt.Errorf("invalid -date: %w", err)
	}
	if !*resume && (*runNumber != 0 || *fromStep != "") {
		return cmd.Options{}, fmt.Errorf("-run and -from require -resume")
	}

	return cmd.Options{
		SnapshotDate: snapshot,
		Resume:       *resume,
		RunNumber:    *runNumber,
		FromStep:     *fromStep,
	}, nil
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: almengine migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
