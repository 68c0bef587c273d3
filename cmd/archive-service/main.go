package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/seqlab/annopipe/internal/archive"
	"github.com/seqlab/annopipe/internal/coldstore"
	"github.com/seqlab/annopipe/internal/config"
	"github.com/seqlab/annopipe/internal/records"
	"github.com/seqlab/annopipe/internal/service"
	"github.com/seqlab/annopipe/internal/stage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

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

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateArchiveConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := service.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting archive service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
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

	if err := objClient.EnsureBucket(context.Background(), cfg.Vault.Bucket); err != nil {
		return fmt.Errorf("failed to ensure vault bucket: %w", err)
	}

	vault := coldstore.NewObjectVault(objClient, rabbitClient, &coldstore.Config{
		Bucket:         cfg.Vault.Bucket,
		ThawRoutingKey: cfg.RabbitMQ.Routing.JobThaw,
		ExpeditedQuota: cfg.Vault.ExpeditedQuota,
		ExpeditedDelay: cfg.Vault.ExpeditedDelay,
		StandardDelay:  cfg.Vault.StandardDelay,
	}, appLogger.Logger)

	store := records.NewStore(dbClient.GetDB(), appLogger.Logger)
	archiveStage := archive.NewStage(store, objClient, vault, cfg.Archive.CoolingOff, appLogger.Logger)

	queue := stage.NewAMQPQueue(rabbitClient, cfg.RabbitMQ.Queues.ArchiveRequests.Name, "archive-service")
	runner := stage.NewRunner("archive", queue, archiveStage.Handle, appLogger.Logger, cfg.RabbitMQ.Consumer.PollWait)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- runner.Run(ctx)
	}()

	appLogger.Info("Archive service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && ctx.Err() == nil {
			appLogger.Error("Stage runner error",
				slog.Any("error", err),
			)
			return err
		}
	}

	appLogger.Info("Archive service shutdown complete")
	return nil
}
