package config

import (
	"errors"
	"fmt"
	"net/url"
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

// Worker defaults for a single local deployment
const (
	DefaultQueueName         = "exam_jobs"
	DefaultPrefetchCount     = 3
	DefaultNotifierURL       = "http://localhost:8000/api/job-complete"
	DefaultNotifierMessage   = "Processing complete"
	DefaultImageStepDuration = time.Second
	DefaultMinImages         = 10
	DefaultMaxImageBytes     = 2 << 20
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Worker   WorkerConfig   `yaml:"worker"`
	Notifier NotifierConfig `yaml:"notifier"`
	Exam     ExamConfig     `yaml:"exam"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
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

// RabbitMQConfig holds RabbitMQ connection and queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration. An empty name
// publishes through the default exchange straight to the queue.
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string `yaml:"name"`
	Durable            bool   `yaml:"durable"`
	AutoDelete         bool   `yaml:"auto_delete"`
	Exclusive          bool   `yaml:"exclusive"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// RedisConfig holds the exam status cache settings
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	ImageStepDuration time.Duration `yaml:"image_step_duration"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// NotifierConfig holds the job-complete callback settings
type NotifierConfig struct {
	URL     string        `yaml:"url"`
	Message string        `yaml:"message"`
	Timeout time.Duration `yaml:"timeout"`
}

// ExamConfig holds exam intake rules for the API service
type ExamConfig struct {
	MinImages     int    `yaml:"min_images"`
	MaxImageBytes int64  `yaml:"max_image_bytes"`
	UploadDir     string `yaml:"upload_dir"`
}

// Default returns a configuration for a local setup:
// a local broker and the local job-complete endpoint.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "exam-worker",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			VHost:    "/",
			Queue: QueueConfig{
				Name:    DefaultQueueName,
				Durable: true,
			},
			RoutingKey: DefaultQueueName,
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     2 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 30 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
			},
			Consumer: ConsumerConfig{
				PrefetchCount: DefaultPrefetchCount,
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			StatusTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Worker: WorkerConfig{
			ImageStepDuration: DefaultImageStepDuration,
			ShutdownTimeout:   30 * time.Second,
		},
		Notifier: NotifierConfig{
			URL:     DefaultNotifierURL,
			Message: DefaultNotifierMessage,
			Timeout: 10 * time.Second,
		},
		Exam: ExamConfig{
			MinImages:     DefaultMinImages,
			MaxImageBytes: DefaultMaxImageBytes,
			UploadDir:     "storage/public",
		},
	}
}

// Load reads and parses the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// pool size follows the broker limit unless set explicitly
	if config.Worker.Concurrency == 0 {
		config.Worker.Concurrency = config.RabbitMQ.Consumer.PrefetchCount
	}

	return config, nil
}

// Validate checks the settings shared by both services.
func (c *Config) Validate() error {
	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}

	if c.RabbitMQ.Exchange.Name != "" && c.RabbitMQ.Exchange.Type == "" {
		return errors.New("rabbitmq exchange type is required when exchange name is set")
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.RabbitMQ.Consumer.PrefetchCount <= 0 {
		return errors.New("rabbitmq consumer prefetch_count must be greater than 0")
	}

	if c.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be greater than 0")
	}

	if c.Worker.ImageStepDuration < 0 {
		return errors.New("worker image_step_duration must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return errors.New("worker shutdown_timeout must be greater than 0")
	}

	u, err := url.Parse(c.Notifier.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid notifier url: %q", c.Notifier.URL)
	}

	if c.Notifier.Timeout <= 0 {
		return errors.New("notifier timeout must be greater than 0")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis addr is required when redis is enabled")
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service needs.
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	if c.Exam.MinImages < 0 {
		return errors.New("exam min_images must not be negative")
	}

	if c.Exam.MaxImageBytes <= 0 {
		return errors.New("exam max_image_bytes must be greater than 0")
	}

	if c.Exam.UploadDir == "" {
		return errors.New("exam upload_dir is required")
	}

	return nil
}
