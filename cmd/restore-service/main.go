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

	"github.com/seqlab/annopipe/internal/coldstore"
	"github.com/seqlab/annopipe/internal/config"
	"github.com/seqlab/annopipe/internal/records"
	"github.com/seqlab/annopipe/internal/restore"
	"github.com/seqlab/annopipe/internal/service"
	"github.com/seqlab/annopipe/internal/stage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run hosts both restore stages. They share one vault instance because
// retrieval jobs are tracked in the vault's memory: the thaw stage can only
// describe retrievals the initiate stage started in the same process.
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

	if err := cfg.ValidateRestoreConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := service.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting restore service",
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

	vault := coldstore.NewObjectVault(objClient, rabbitClient, &coldstore.Config{
		Bucket:         cfg.Vault.Bucket,
		ThawRoutingKey: cfg.RabbitMQ.Routing.JobThaw,
		ExpeditedQuota: cfg.Vault.ExpeditedQuota,
		ExpeditedDelay: cfg.Vault.ExpeditedDelay,
		StandardDelay:  cfg.Vault.StandardDelay,
	}, appLogger.Logger)

	store := records.NewStore(dbClient.GetDB(), appLogger.Logger)

	initiateStage := restore.NewInitiateStage(store, vault, appLogger.Logger)
	initiateQueue := stage.NewAMQPQueue(rabbitClient, cfg.RabbitMQ.Queues.RestoreRequests.Name, "restore-service")
	initiateRunner := stage.NewRunner("restore-initiate", initiateQueue, initiateStage.Handle, appLogger.Logger, cfg.RabbitMQ.Consumer.PollWait)

	thawStage := restore.NewThawStage(store, objClient, vault, cfg.Storage.ResultsBucket, appLogger.Logger)
	thawQueue := stage.NewAMQPQueue(rabbitClient, cfg.RabbitMQ.Queues.ThawEvents.Name, "thaw-service")
	thawRunner := stage.NewRunner("thaw", thawQueue, thawStage.Handle, appLogger.Logger, cfg.RabbitMQ.Consumer.PollWait)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		errChan <- initiateRunner.Run(ctx)
	}()
	go func() {
		errChan <- thawRunner.Run(ctx)
	}()

	appLogger.Info("Restore service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	stopped := 0
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		stopped++
		if err != nil && ctx.Err() == nil {
			appLogger.Error("Stage runner error",
				slog.Any("error", err),
			)
		}
	}

	cancel()
	for ; stopped < 2; stopped++ {
		<-errChan
	}

	appLogger.Info("Restore service shutdown complete")
	return nil
}
