package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/exam-worker/internal/config"
	"github.com/cuongbtq/exam-worker/internal/worker"
	"github.com/cuongbtq/exam-worker/internal/worker/notifier"
	"github.com/cuongbtq/exam-worker/internal/worker/storage"
	"github.com/cuongbtq/exam-worker/shared/logger"
	"github.com/cuongbtq/exam-worker/shared/rabbitmq"
	"github.com/cuongbtq/exam-worker/shared/redis"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue", cfg.RabbitMQ.Queue.Name),
		slog.Int("prefetch_count", cfg.RabbitMQ.Consumer.PrefetchCount),
	)

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	statusStore, closeStatus, err := initStatusStore(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize status store: %w", err)
	}
	defer closeStatus()

	jobNotifier, err := notifier.New(notifier.Config{
		URL:     cfg.Notifier.URL,
		Timeout: cfg.Notifier.Timeout,
		Logger:  appLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	// Create worker instance
	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:          appLogger.Logger,
		Broker:          rabbitClient,
		Processor:       worker.NewProcessor(appLogger.Logger, cfg.Worker.ImageStepDuration, cfg.Notifier.Message),
		Notifier:        jobNotifier,
		StatusStore:     statusStore,
		QueueName:       cfg.RabbitMQ.Queue.Name,
		ConsumerTag:     cfg.RabbitMQ.Consumer.Tag,
		PrefetchCount:   cfg.RabbitMQ.Consumer.PrefetchCount,
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// Canceled on SIGINT/SIGTERM; the worker then drains in-flight jobs
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	g.Go(func() error {
		select {
		case amqpErr, ok := <-rabbitClient.NotifyClose():
			if ok && amqpErr != nil {
				appLogger.Error("RabbitMQ channel closed by broker",
					slog.String("error", amqpErr.Error()),
				)
				return fmt.Errorf("rabbitmq channel closed: %w", amqpErr)
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	}

	return logger.New(loggerCfg)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initStatusStore connects to Redis when status tracking is enabled
func initStatusStore(cfg *config.Config, logger *slog.Logger) (storage.StatusStore, func(), error) {
	if !cfg.Redis.Enabled {
		logger.Info("Exam status tracking disabled")
		return storage.NoopStore{}, func() {}, nil
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewRedisStore(redisClient.GetClient(), cfg.Redis.StatusTTL, logger)
	return store, func() { _ = redisClient.Close() }, nil
}
