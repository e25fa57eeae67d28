package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets QoS and starts consuming. It runs on the goroutine
// that later owns the consumer loop.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	// prefetch bounds the number of unacknowledged deliveries held by this consumer
	if err := w.broker.Qos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.broker.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// RequestAck asks the consumer loop to acknowledge a delivery. Safe to call
// from any goroutine; it only hands the tag over. Requests made after the
// loop has exited are dropped and the broker redelivers those messages.
func (w *Worker) RequestAck(deliveryTag uint64) {
	select {
	case w.ackCh <- deliveryTag:
	case <-w.loopDone:
		w.logger.Warn("Consumer loop stopped, ack request dropped",
			slog.Uint64("delivery_tag", deliveryTag),
		)
	}
}

// consume is the consumer loop. It is the only place Ack and Nack are sent
// to the broker.
func (w *Worker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	defer close(w.loopDone)

	d := newDispatchState()
	done := ctx.Done()
	stopping := false

	var drainTimer *time.Timer
	var drainDeadline <-chan time.Time
	defer func() {
		if drainTimer != nil {
			drainTimer.Stop()
		}
	}()

	w.logger.Info("Consumer loop started")

	for {
		if stopping && d.outstanding() == 0 {
			w.logger.Info("All in-flight jobs acknowledged, consumer loop exiting")
			return nil
		}

		select {
		case <-done:
			done = nil
			stopping = true

			w.logger.Info("Shutdown requested, draining in-flight jobs",
				slog.Int("in_flight", d.outstanding()),
				slog.Duration("timeout", w.shutdownTimeout),
			)

			if err := w.broker.Cancel(w.workerID); err != nil {
				w.logger.Error("Failed to cancel consumer",
					slog.String("error", err.Error()),
				)
			}
			w.requeueBacklog(d)

			drainTimer = time.NewTimer(w.shutdownTimeout)
			drainDeadline = drainTimer.C

		case delivery, ok := <-deliveries:
			if !ok {
				if stopping {
					deliveries = nil
					continue
				}
				w.logger.Warn("RabbitMQ delivery channel closed",
					slog.Int("in_flight", d.outstanding()),
				)
				return domain.ErrDeliveriesClosed
			}

			if stopping {
				// arrived after cancel; let another consumer take it
				w.nack(delivery.DeliveryTag, true)
				continue
			}

			w.dispatch(d, delivery)

		case tag := <-w.ackCh:
			w.acknowledge(d, tag)
			if !stopping {
				w.flushBacklog(d)
			}

		case <-drainDeadline:
			w.logger.Warn("Shutdown timeout reached, leaving unacknowledged jobs to the broker",
				slog.Int("in_flight", d.outstanding()),
			)
			return nil
		}
	}
}

// acknowledge sends the ack for a finished job. Each tag is acked at most once.
func (w *Worker) acknowledge(d *dispatchState, tag uint64) {
	examID, ok := d.inFlight[tag]
	if !ok {
		w.logger.Warn("Ignoring ack request for unknown delivery",
			slog.Uint64("delivery_tag", tag),
		)
		return
	}
	delete(d.inFlight, tag)

	if err := w.broker.Ack(tag); err != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("exam_id", examID.String()),
			slog.Uint64("delivery_tag", tag),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Debug("Message acknowledged",
		slog.String("exam_id", examID.String()),
		slog.Uint64("delivery_tag", tag),
	)
}

func (w *Worker) nack(tag uint64, requeue bool) {
	if err := w.broker.Nack(tag, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", tag),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
	}
}

// requeueBacklog returns jobs that never started to the queue
func (w *Worker) requeueBacklog(d *dispatchState) {
	for _, p := range d.backlog {
		delete(d.inFlight, p.tag)
		w.nack(p.tag, true)
	}
	if n := len(d.backlog); n > 0 {
		w.logger.Info("Requeued jobs that had not started",
			slog.Int("count", n),
		)
	}
	d.backlog = nil
}
