package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete pipeline configuration. Every service loads
// the same file and validates only the sections it depends on.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Storage   StorageConfig   `yaml:"storage"`
	Vault     VaultConfig     `yaml:"vault"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Annotator AnnotatorConfig `yaml:"annotator"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
}

// ServerConfig holds HTTP server configuration for the gateway
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and topology configuration
type RabbitMQConfig struct {
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	User       string            `yaml:"user"`
	Password   string            `yaml:"password"`
	VHost      string            `yaml:"vhost"`
	Exchange   string            `yaml:"exchange"`
	Connection ConnectionConfig  `yaml:"connection"`
	Consumer   ConsumerConfig    `yaml:"consumer"`
	Queues     QueueTopology     `yaml:"queues"`
	Routing    RoutingKeysConfig `yaml:"routing"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int           `yaml:"prefetch_count"`
	PollWait      time.Duration `yaml:"poll_wait"`
}

// QueueConfig holds one work queue's name and retry delay
type QueueConfig struct {
	Name       string        `yaml:"name"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// QueueTopology names the four work queues of the pipeline
type QueueTopology struct {
	JobRequests     QueueConfig `yaml:"job_requests"`
	ArchiveRequests QueueConfig `yaml:"archive_requests"`
	RestoreRequests QueueConfig `yaml:"restore_requests"`
	ThawEvents      QueueConfig `yaml:"thaw_events"`
}

// RoutingKeysConfig holds the routing keys messages are published under
type RoutingKeysConfig struct {
	JobRequest  string `yaml:"job_request"`
	JobComplete string `yaml:"job_complete"`
	JobArchive  string `yaml:"job_archive"`
	JobRestore  string `yaml:"job_restore"`
	JobThaw     string `yaml:"job_thaw"`
}

// StorageConfig holds hot object storage configuration
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	UseSSL        bool   `yaml:"use_ssl"`
	InputsBucket  string `yaml:"inputs_bucket"`
	ResultsBucket string `yaml:"results_bucket"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// VaultConfig holds cold-storage vault configuration
type VaultConfig struct {
	Bucket         string        `yaml:"bucket"`
	ExpeditedQuota int           `yaml:"expedited_quota"`
	ExpeditedDelay time.Duration `yaml:"expedited_delay"`
	StandardDelay  time.Duration `yaml:"standard_delay"`
}

// DispatchConfig holds dispatch service configuration
type DispatchConfig struct {
	WorkspaceRoot string `yaml:"workspace_root"`
	WorkerBin     string `yaml:"worker_bin"`
}

// AnnotatorConfig holds annotation tool configuration
type AnnotatorConfig struct {
	Tool string `yaml:"tool"`
}

// ArchiveConfig holds archive service configuration
type ArchiveConfig struct {
	CoolingOff time.Duration `yaml:"cooling_off"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks the sections shared by every service
func (c *Config) Validate() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage endpoint is required")
	}

	if c.Storage.InputsBucket == "" {
		return fmt.Errorf("storage inputs bucket is required")
	}

	if c.Storage.ResultsBucket == "" {
		return fmt.Errorf("storage results bucket is required")
	}

	return nil
}

// ValidateGatewayConfig checks the sections the gateway service needs
func (c *Config) ValidateGatewayConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Storage.InputsBucket == "" {
		return fmt.Errorf("storage inputs bucket is required")
	}

	if c.RabbitMQ.Routing.JobRequest == "" {
		return fmt.Errorf("job_request routing key is required")
	}

	if c.RabbitMQ.Routing.JobRestore == "" {
		return fmt.Errorf("job_restore routing key is required")
	}

	return nil
}

// ValidateDispatchConfig checks the sections the dispatch service needs
func (c *Config) ValidateDispatchConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.RabbitMQ.Queues.JobRequests.Name == "" {
		return fmt.Errorf("job_requests queue name is required")
	}

	if c.Dispatch.WorkspaceRoot == "" {
		return fmt.Errorf("dispatch workspace_root is required")
	}

	if c.Dispatch.WorkerBin == "" {
		return fmt.Errorf("dispatch worker_bin is required")
	}

	return nil
}

// ValidateWorkerConfig checks the sections the annotation worker needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Annotator.Tool == "" {
		return fmt.Errorf("annotator tool is required")
	}

	if c.RabbitMQ.Routing.JobComplete == "" {
		return fmt.Errorf("job_complete routing key is required")
	}

	if c.RabbitMQ.Routing.JobArchive == "" {
		return fmt.Errorf("job_archive routing key is required")
	}

	return nil
}

// ValidateArchiveConfig checks the sections the archive service needs
func (c *Config) ValidateArchiveConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Vault.Bucket == "" {
		return fmt.Errorf("vault bucket is required")
	}

	if c.RabbitMQ.Queues.ArchiveRequests.Name == "" {
		return fmt.Errorf("archive_requests queue name is required")
	}

	return nil
}

// ValidateRestoreConfig checks the sections the restore and thaw services need
func (c *Config) ValidateRestoreConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Vault.Bucket == "" {
		return fmt.Errorf("vault bucket is required")
	}

	if c.RabbitMQ.Queues.RestoreRequests.Name == "" {
		return fmt.Errorf("restore_requests queue name is required")
	}

	if c.RabbitMQ.Queues.ThawEvents.Name == "" {
		return fmt.Errorf("thaw_events queue name is required")
	}

	return nil
}
