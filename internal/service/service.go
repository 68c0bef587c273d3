// Package service holds the shared bootstrap helpers used by every binary:
// translating config sections into client configs and building the queue
// topology.
package service

import (
	"log/slog"

	"github.com/seqlab/annopipe/internal/config"
	"github.com/seqlab/annopipe/shared/logger"
	"github.com/seqlab/annopipe/shared/objstore"
	"github.com/seqlab/annopipe/shared/postgresql"
	"github.com/seqlab/annopipe/shared/rabbitmq"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
	}

	return logger.New(loggerCfg)
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// QueueSpecs builds the full pipeline queue topology from the config. Every
// service declares all queues so the topology exists regardless of which
// service connects first.
func QueueSpecs(cfg *config.RabbitMQConfig) []rabbitmq.QueueSpec {
	return []rabbitmq.QueueSpec{
		{
			Name:       cfg.Queues.JobRequests.Name,
			RoutingKey: cfg.Routing.JobRequest,
			RetryDelay: cfg.Queues.JobRequests.RetryDelay,
		},
		{
			Name:       cfg.Queues.ArchiveRequests.Name,
			RoutingKey: cfg.Routing.JobArchive,
			RetryDelay: cfg.Queues.ArchiveRequests.RetryDelay,
		},
		{
			Name:       cfg.Queues.RestoreRequests.Name,
			RoutingKey: cfg.Routing.JobRestore,
			RetryDelay: cfg.Queues.RestoreRequests.RetryDelay,
		},
		{
			Name:       cfg.Queues.ThawEvents.Name,
			RoutingKey: cfg.Routing.JobThaw,
			RetryDelay: cfg.Queues.ThawEvents.RetryDelay,
		},
	}
}

// InitRabbitMQ initializes the RabbitMQ client with the pipeline topology
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		Exchange:      cfg.Exchange,
		Queues:        QueueSpecs(cfg),
		RetryAttempts: cfg.Connection.RetryAttempts,
		RetryInterval: cfg.Connection.RetryInterval,
		Heartbeat:     cfg.Connection.Heartbeat,
		PrefetchCount: cfg.Consumer.PrefetchCount,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// InitObjectStore initializes the hot object storage client
func InitObjectStore(cfg *config.StorageConfig, logger *slog.Logger) (*objstore.Client, error) {
	storeConfig := &objstore.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
	}

	return objstore.NewClient(storeConfig, logger)
}
