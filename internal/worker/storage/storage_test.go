package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/exam-worker/internal/worker/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "exam:42:status", StatusKey("42"))
	assert.Equal(t, "exam:E1:notification", NotificationKey("E1"))
}

func TestNoopStore(t *testing.T) {
	var store StatusStore = NoopStore{}
	assert.NoError(t, store.MarkProcessing(context.Background(), "E1"))
	assert.NoError(t, store.MarkCompleted(context.Background(), domain.CompletionResult{ExamID: "E1"}, domain.NotificationOutcome{}))
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb, ttl, slog.New(slog.NewTextHandler(io.Discard, nil))), mr, rdb
}

func TestRedisStore_StatusTransitions(t *testing.T) {
	store, mr, rdb := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.MarkProcessing(ctx, "42"))

	status, err := rdb.Get(ctx, "exam:42:status").Result()
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStatusProcessing, status)
	assert.Greater(t, mr.TTL("exam:42:status"), time.Duration(0))

	require.NoError(t, store.MarkCompleted(ctx,
		domain.CompletionResult{ExamID: "42", ImagesProcessed: 3, Duration: 1500 * time.Millisecond},
		domain.NotificationOutcome{Kind: domain.OutcomeDelivered, StatusCode: 200},
	))

	status, err = rdb.Get(ctx, "exam:42:status").Result()
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStatusCompleted, status)

	fields, err := rdb.HGetAll(ctx, "exam:42:notification").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"outcome":          "delivered",
		"status_code":      "200",
		"images_processed": "3",
		"duration_ms":      "1500",
	}, fields)

	ttl, err := rdb.TTL(ctx, "exam:42:notification").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestRedisStore_TransportErrorOutcome(t *testing.T) {
	store, _, rdb := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.MarkCompleted(ctx,
		domain.CompletionResult{ExamID: "E7"},
		domain.NotificationOutcome{Kind: domain.OutcomeTransportError},
	))

	fields, err := rdb.HGetAll(ctx, NotificationKey("E7")).Result()
	require.NoError(t, err)
	assert.Equal(t, "transport_error", fields["outcome"])
	assert.Equal(t, "0", fields["status_code"])
}

func TestRedisStore_KeysExpire(t *testing.T) {
	store, mr, _ := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.MarkCompleted(ctx,
		domain.CompletionResult{ExamID: "E1"},
		domain.NotificationOutcome{Kind: domain.OutcomeFailedStatus, StatusCode: 500},
	))
	require.True(t, mr.Exists(StatusKey("E1")))
	require.True(t, mr.Exists(NotificationKey("E1")))

	mr.FastForward(2 * time.Minute)

	assert.False(t, mr.Exists(StatusKey("E1")))
	assert.False(t, mr.Exists(NotificationKey("E1")))
}

func TestRedisStore_RedisDown(t *testing.T) {
	store, mr, _ := newTestRedisStore(t, time.Hour)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := store.MarkProcessing(ctx, "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set exam status")

	err = store.MarkCompleted(ctx, domain.CompletionResult{ExamID: "42"}, domain.NotificationOutcome{Kind: domain.OutcomeDelivered})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record exam completion")
}

// Runs against a real Redis when REDIS_ADDR is set.
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	examID := domain.ID("it-" + time.Now().Format("150405.000000"))
	defer rdb.Del(ctx, StatusKey(examID), NotificationKey(examID))

	store := NewRedisStore(rdb, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, store.MarkProcessing(ctx, examID))
	status, err := rdb.Get(ctx, StatusKey(examID)).Result()
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStatusProcessing, status)

	require.NoError(t, store.MarkCompleted(ctx,
		domain.CompletionResult{ExamID: examID, ImagesProcessed: 2},
		domain.NotificationOutcome{Kind: domain.OutcomeFailedStatus, StatusCode: 500},
	))

	status, err = rdb.Get(ctx, StatusKey(examID)).Result()
	require.NoError(t, err)
	assert.Equal(t, domain.ExamStatusCompleted, status)

	fields, err := rdb.HGetAll(ctx, NotificationKey(examID)).Result()
	require.NoError(t, err)
	assert.Equal(t, "failed_status", fields["outcome"])
	assert.Equal(t, "500", fields["status_code"])
	assert.Equal(t, "2", fields["images_processed"])

	ttl, err := rdb.TTL(ctx, NotificationKey(examID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
