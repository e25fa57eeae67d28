package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
	goredis "github.com/redis/go-redis/v9"
)

// StatusStore records where an exam is in the worker pipeline. Callers treat
// failures as informational; they never affect acknowledgment.
type StatusStore interface {
	MarkProcessing(ctx context.Context, examID domain.ID) error
	MarkCompleted(ctx context.Context, result domain.CompletionResult, outcome domain.NotificationOutcome) error
}

// StatusKey is the Redis key holding an exam's status
func StatusKey(examID domain.ID) string {
	return fmt.Sprintf("exam:%s:status", examID)
}

// NotificationKey is the Redis key holding the last notification outcome
func NotificationKey(examID domain.ID) string {
	return fmt.Sprintf("exam:%s:notification", examID)
}

// RedisStore keeps exam statuses in Redis with a TTL
type RedisStore struct {
	rdb    goredis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a Redis backed StatusStore
func NewRedisStore(rdb goredis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// MarkProcessing sets the exam status to PROCESSING
func (s *RedisStore) MarkProcessing(ctx context.Context, examID domain.ID) error {
	if err := s.rdb.Set(ctx, StatusKey(examID), domain.ExamStatusProcessing, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set exam status: %w", err)
	}

	s.logger.Debug("Exam status updated",
		slog.String("exam_id", examID.String()),
		slog.String("status", domain.ExamStatusProcessing),
	)
	return nil
}

// MarkCompleted sets the exam status to COMPLETED and stores the notification outcome
func (s *RedisStore) MarkCompleted(ctx context.Context, result domain.CompletionResult, outcome domain.NotificationOutcome) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, StatusKey(result.ExamID), domain.ExamStatusCompleted, s.ttl)
	pipe.HSet(ctx, NotificationKey(result.ExamID),
		"outcome", string(outcome.Kind),
		"status_code", outcome.StatusCode,
		"images_processed", result.ImagesProcessed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	pipe.Expire(ctx, NotificationKey(result.ExamID), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record exam completion: %w", err)
	}

	s.logger.Debug("Exam status updated",
		slog.String("exam_id", result.ExamID.String()),
		slog.String("status", domain.ExamStatusCompleted),
		slog.String("notification", string(outcome.Kind)),
	)
	return nil
}

// NoopStore is used when status tracking is disabled
type NoopStore struct{}

// MarkProcessing does nothing
func (NoopStore) MarkProcessing(context.Context, domain.ID) error { return nil }

// MarkCompleted does nothing
func (NoopStore) MarkCompleted(context.Context, domain.CompletionResult, domain.NotificationOutcome) error {
	return nil
}
