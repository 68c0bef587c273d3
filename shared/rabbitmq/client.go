package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSpec describes one durable work queue bound to the shared exchange.
//
// Every work queue gets a companion "<name>.dead" queue that collects rejected
// messages, and, when RetryDelay is set, a "<name>.retry" queue whose message
// TTL dead-letters expired messages back onto the work queue. Publishing a copy
// to the retry queue and acking the original is how consumers defer a message
// without busy-looping on immediate redelivery.
type QueueSpec struct {
	Name       string
	RoutingKey string
	RetryDelay time.Duration
}

// RetryQueueName returns the name of the companion delay queue.
func (s QueueSpec) RetryQueueName() string {
	return s.Name + ".retry"
}

// DeadQueueName returns the name of the companion dead-letter queue.
func (s QueueSpec) DeadQueueName() string {
	return s.Name + ".dead"
}

// Config holds RabbitMQ connection and topology configuration
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	VHost         string
	Exchange      string
	Queues        []QueueSpec
	RetryAttempts int
	RetryInterval time.Duration
	Heartbeat     time.Duration
	PrefetchCount int
}

// Client represents a RabbitMQ client owning one connection and channel
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	specs       map[string]QueueSpec
	closeChan   chan *amqp.Error
	isConnected bool
}

// NewClient creates a new RabbitMQ client and declares the exchange and queues
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
		specs:  make(map[string]QueueSpec, len(config.Queues)),
	}

	for _, spec := range config.Queues {
		client.specs[spec.Name] = spec
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup exchange and queues: %w", err)
	}

	c.closeChan = make(chan *amqp.Error)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.Exchange),
		slog.Int("queues", len(c.config.Queues)),
	)

	return nil
}

// setup declares the topic exchange and each queue's work/retry/dead topology
func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, spec := range c.config.Queues {
		if err := c.declareQueue(spec); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) declareQueue(spec QueueSpec) error {
	// Dead-letter queue for rejected messages; kept for inspection, never consumed here
	_, err := c.channel.QueueDeclare(
		spec.DeadQueueName(),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead queue for %q: %w", spec.Name, err)
	}

	// Work queue; rejects route to the dead queue via the default exchange
	_, err = c.channel.QueueDeclare(
		spec.Name,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": spec.DeadQueueName(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", spec.Name, err)
	}

	err = c.channel.QueueBind(
		spec.Name,
		spec.RoutingKey,
		c.config.Exchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", spec.Name, err)
	}

	if spec.RetryDelay <= 0 {
		return nil
	}

	// Delay queue; expired messages dead-letter back onto the work queue
	_, err = c.channel.QueueDeclare(
		spec.RetryQueueName(),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl":             spec.RetryDelay.Milliseconds(),
			"x-dead-letter-exchange":    c.config.Exchange,
			"x-dead-letter-routing-key": spec.RoutingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry queue for %q: %w", spec.Name, err)
	}

	return nil
}

// Publish publishes a persistent message to the exchange under a routing key
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.config.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(body)),
	)

	return nil
}

// Requeue places a copy of body on the queue's delay queue so it reappears on
// the work queue after the queue's RetryDelay elapses
func (c *Client) Requeue(ctx context.Context, queueName string, body []byte) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	spec, ok := c.specs[queueName]
	if !ok {
		return fmt.Errorf("unknown queue %q", queueName)
	}
	if spec.RetryDelay <= 0 {
		return fmt.Errorf("queue %q has no retry queue configured", queueName)
	}

	err := c.channel.PublishWithContext(
		ctx,
		"", // default exchange routes by queue name
		spec.RetryQueueName(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to requeue message on %q: %w", queueName, err)
	}

	return nil
}

// Consume starts consuming messages from the named queue with manual ack
func (c *Client) Consume(queueName, consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	prefetch := c.config.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}

	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := c.channel.Consume(
		queueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", queueName),
		slog.String("consumer_tag", consumerTag),
	)

	return messages, nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}
