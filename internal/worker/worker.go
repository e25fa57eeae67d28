package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
	"github.com/cuongbtq/exam-worker/internal/worker/storage"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the subset of the RabbitMQ channel the consumer loop drives.
// Implementations need not be safe for concurrent use: the worker calls
// every method from the goroutine running Start.
type Broker interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
	Ack(deliveryTag uint64) error
	Nack(deliveryTag uint64, requeue bool) error
}

// JobProcessor analyses a decoded job
type JobProcessor interface {
	Process(ctx context.Context, job *domain.Job) domain.CompletionResult
}

// JobNotifier reports a finished job
type JobNotifier interface {
	Notify(ctx context.Context, examID domain.ID, result domain.CompletionResult) domain.NotificationOutcome
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Broker          Broker
	Processor       JobProcessor
	Notifier        JobNotifier
	StatusStore     storage.StatusStore
	QueueName       string
	ConsumerTag     string
	PrefetchCount   int
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Worker consumes exam jobs, runs them on a bounded pool and acknowledges
// each delivery from its own consumer loop.
type Worker struct {
	logger          *slog.Logger
	broker          Broker
	processor       JobProcessor
	notifier        JobNotifier
	status          storage.StatusStore
	queueName       string
	workerID        string
	prefetchCount   int
	concurrency     int
	shutdownTimeout time.Duration

	pool        *Pool
	ackCh       chan uint64
	loopDone    chan struct{}
	taskCtx     context.Context
	cancelTasks context.CancelFunc
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Broker == nil || cfg.Processor == nil || cfg.Notifier == nil {
		return nil, errors.New("worker requires a broker, processor and notifier")
	}
	if cfg.PrefetchCount <= 0 {
		return nil, fmt.Errorf("invalid prefetch count: %d", cfg.PrefetchCount)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = cfg.PrefetchCount
	}

	workerID := cfg.ConsumerTag
	if workerID == "" {
		workerID = "exam-worker-" + uuid.NewString()
	}

	status := cfg.StatusStore
	if status == nil {
		status = storage.NoopStore{}
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("worker_id", workerID))
	taskCtx, cancelTasks := context.WithCancel(context.Background())

	return &Worker{
		logger:          logger,
		broker:          cfg.Broker,
		processor:       cfg.Processor,
		notifier:        cfg.Notifier,
		status:          status,
		queueName:       cfg.QueueName,
		workerID:        workerID,
		prefetchCount:   cfg.PrefetchCount,
		concurrency:     concurrency,
		shutdownTimeout: shutdownTimeout,
		pool:            NewPool(concurrency, workerID, logger),
		ackCh:           make(chan uint64),
		loopDone:        make(chan struct{}),
		taskCtx:         taskCtx,
		cancelTasks:     cancelTasks,
	}, nil
}

// ID returns the consumer tag used with the broker
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes until ctx is canceled, then drains in-flight jobs for at
// most the shutdown timeout. It returns an error when the broker closes the
// delivery stream on its own. A Worker can be started once.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
		slog.Duration("shutdown_timeout", w.shutdownTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		close(w.loopDone)
		w.cancelTasks()
		return err
	}

	w.pool.Start()

	loopErr := w.consume(ctx, deliveries)

	// anything still running is past the drain deadline or lost its connection
	w.cancelTasks()
	w.pool.Stop()

	w.logger.Info("Worker stopped")
	return loopErr
}

// runJob is the unit of work executed on the pool for one delivery
func (w *Worker) runJob(tag uint64, job *domain.Job) {
	defer w.RequestAck(tag)

	ctx := w.taskCtx
	logger := w.logger.With(
		slog.String("exam_id", job.ExamID.String()),
		slog.Uint64("delivery_tag", tag),
	)

	if err := w.status.MarkProcessing(ctx, job.ExamID); err != nil {
		logger.Warn("Failed to record exam status", slog.String("error", err.Error()))
	}

	result := w.processor.Process(ctx, job)
	outcome := w.notifier.Notify(ctx, job.ExamID, result)

	if err := w.status.MarkCompleted(ctx, result, outcome); err != nil {
		logger.Warn("Failed to record exam status", slog.String("error", err.Error()))
	}

	logger.Debug("Job finished, requesting ack",
		slog.String("notification", string(outcome.Kind)),
	)
}
