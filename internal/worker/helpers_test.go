package worker

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// goroutineID parses the current goroutine id from the stack header
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))
	id, _ := strconv.ParseUint(fields[0], 10, 64)
	return id
}

type nackCall struct {
	tag     uint64
	requeue bool
}

// fakeBroker records every call and the goroutine it came from
type fakeBroker struct {
	mu sync.Mutex

	deliveries    chan amqp.Delivery
	closeOnCancel bool
	closed        bool

	owner     uint64
	offOwner  int
	qos       int
	consumer  string
	cancelled bool
	acks      map[uint64]int
	nacks     []nackCall

	inCall  atomic.Bool
	overlap atomic.Int32
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		deliveries:    make(chan amqp.Delivery, 64),
		closeOnCancel: true,
		acks:          make(map[uint64]int),
	}
}

func (b *fakeBroker) enter() func() {
	if !b.inCall.CompareAndSwap(false, true) {
		b.overlap.Add(1)
	}
	gid := goroutineID()

	b.mu.Lock()
	if b.owner == 0 {
		b.owner = gid
	} else if gid != b.owner {
		b.offOwner++
	}
	b.mu.Unlock()

	return func() { b.inCall.Store(false) }
}

func (b *fakeBroker) Qos(prefetchCount int) error {
	defer b.enter()()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.qos = prefetchCount
	return nil
}

func (b *fakeBroker) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	defer b.enter()()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumer = consumerTag
	return b.deliveries, nil
}

func (b *fakeBroker) Cancel(string) error {
	defer b.enter()()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = true
	if b.closeOnCancel && !b.closed {
		b.closed = true
		close(b.deliveries)
	}
	return nil
}

func (b *fakeBroker) Ack(tag uint64) error {
	defer b.enter()()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks[tag]++
	return nil
}

func (b *fakeBroker) Nack(tag uint64, requeue bool) error {
	defer b.enter()()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nacks = append(b.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (b *fakeBroker) deliver(tag uint64, body string) {
	b.deliveries <- amqp.Delivery{DeliveryTag: tag, Body: []byte(body)}
}

func (b *fakeBroker) closeDeliveries() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.deliveries)
	}
}

func (b *fakeBroker) ackCount(tag uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks[tag]
}

func (b *fakeBroker) totalAcks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.acks {
		total += n
	}
	return total
}

func (b *fakeBroker) nackCalls() []nackCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]nackCall(nil), b.nacks...)
}

func (b *fakeBroker) callsOffOwner() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offOwner
}

// fakeProcessor tracks concurrency and optionally blocks in hold
type fakeProcessor struct {
	mu   sync.Mutex
	jobs []*domain.Job

	current atomic.Int32
	max     atomic.Int32

	hold func(ctx context.Context, job *domain.Job)
}

func (p *fakeProcessor) Process(ctx context.Context, job *domain.Job) domain.CompletionResult {
	n := p.current.Add(1)
	defer p.current.Add(-1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			break
		}
	}

	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()

	if p.hold != nil {
		p.hold(ctx, job)
	}

	return domain.CompletionResult{
		ExamID:          job.ExamID,
		Success:         true,
		Message:         "Processing complete",
		ImagesProcessed: len(job.Images),
	}
}

func (p *fakeProcessor) started() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

type fakeNotifier struct {
	mu      sync.Mutex
	calls   []domain.ID
	outcome domain.NotificationOutcome
}

func (n *fakeNotifier) Notify(_ context.Context, examID domain.ID, _ domain.CompletionResult) domain.NotificationOutcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, examID)
	return n.outcome
}

func (n *fakeNotifier) notified() []domain.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.ID(nil), n.calls...)
}

type startedWorker struct {
	*Worker
	cancel context.CancelFunc
	errCh  chan error
}

// stop cancels the worker and waits for Start to return
func (s *startedWorker) stop(t *testing.T) error {
	t.Helper()
	s.cancel()
	select {
	case err := <-s.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
		return nil
	}
}

func startWorker(t *testing.T, cfg *Config) *startedWorker {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "exam_jobs"
	}

	w, err := NewWorker(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(ctx)
	}()

	t.Cleanup(cancel)
	return &startedWorker{Worker: w, cancel: cancel, errCh: errCh}
}
