package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/seqlab/annopipe/internal/annotate"
	"github.com/seqlab/annopipe/internal/completion"
	"github.com/seqlab/annopipe/internal/config"
	"github.com/seqlab/annopipe/internal/records"
	"github.com/seqlab/annopipe/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run annotates one staged input file and performs the job epilogue. The
// process is launched by the dispatch service with the input path as its only
// positional argument and exits when the job is done.
func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("ANNOPIPE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	inputPath := flag.Arg(0)
	if inputPath == "" {
		return fmt.Errorf("usage: annotation-worker [-config path] <input-file>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := service.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting annotation worker",
		slog.String("input_path", inputPath),
	)

	dbClient, err := service.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := service.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	objClient, err := service.InitObjectStore(&cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	ctx := context.Background()

	runner := annotate.NewRunner(cfg.Annotator.Tool, appLogger.Logger)
	if err := runner.Run(ctx, inputPath); err != nil {
		// The workspace is left in place for inspection; the job record stays
		// RUNNING until the job is resubmitted.
		return fmt.Errorf("annotation failed: %w", err)
	}

	store := records.NewStore(dbClient.GetDB(), appLogger.Logger)
	epilogue := completion.NewStage(store, objClient, rabbitClient, &completion.Config{
		ResultsBucket:      cfg.Storage.ResultsBucket,
		KeyPrefix:          cfg.Storage.KeyPrefix,
		CompleteRoutingKey: cfg.RabbitMQ.Routing.JobComplete,
		ArchiveRoutingKey:  cfg.RabbitMQ.Routing.JobArchive,
	}, appLogger.Logger)

	report := epilogue.Run(ctx, inputPath)
	if failed := report.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, step := range failed {
			names[i] = step.Name
		}
		return fmt.Errorf("job %s epilogue finished with failed steps: %v", report.JobID, names)
	}

	appLogger.Info("Annotation worker finished",
		slog.String("job_id", report.JobID),
	)

	return nil
}
