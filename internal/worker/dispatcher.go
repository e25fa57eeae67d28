package worker

import (
	"log/slog"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type pendingJob struct {
	tag uint64
	job *domain.Job
}

// dispatchState is owned by the consumer loop goroutine
type dispatchState struct {
	// every delivery handed to the pool or waiting for a free worker
	inFlight map[uint64]domain.ID
	// accepted deliveries waiting for a free worker, in arrival order
	backlog []pendingJob
}

func newDispatchState() *dispatchState {
	return &dispatchState{
		inFlight: make(map[uint64]domain.ID),
	}
}

func (d *dispatchState) outstanding() int {
	return len(d.inFlight)
}

func (d *dispatchState) running() int {
	return len(d.inFlight) - len(d.backlog)
}

// dispatch decodes a delivery and hands it to the pool without blocking the
// loop. Deliveries that arrive while every worker is busy wait in the backlog.
func (w *Worker) dispatch(d *dispatchState, delivery amqp.Delivery) {
	job, err := domain.DecodeJob(delivery.Body)
	if err != nil {
		w.logger.Error("Failed to parse message",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
		)
		// malformed payloads are not retried; a dead-letter exchange catches them if configured
		w.nack(delivery.DeliveryTag, false)
		return
	}

	if _, dup := d.inFlight[delivery.DeliveryTag]; dup {
		w.logger.Warn("Duplicate delivery tag, ignoring",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
		)
		return
	}

	d.inFlight[delivery.DeliveryTag] = job.ExamID
	d.backlog = append(d.backlog, pendingJob{tag: delivery.DeliveryTag, job: job})

	w.flushBacklog(d)
}

// flushBacklog starts waiting jobs while workers are free
func (w *Worker) flushBacklog(d *dispatchState) {
	for len(d.backlog) > 0 && d.running() < w.concurrency {
		next := d.backlog[0]
		d.backlog[0] = pendingJob{}
		d.backlog = d.backlog[1:]

		w.pool.Submit(func() {
			w.runJob(next.tag, next.job)
		})

		w.logger.Debug("Job dispatched to worker pool",
			slog.String("exam_id", next.job.ExamID.String()),
			slog.Uint64("delivery_tag", next.tag),
			slog.Int("running", d.running()),
		)
	}

	if n := len(d.backlog); n > 0 {
		w.logger.Debug("Workers busy, jobs waiting",
			slog.Int("waiting", n),
		)
	}
}
