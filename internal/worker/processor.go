package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
)

// StepFunc analyses a single image of an exam. The real analysis algorithm
// plugs in here; the default only waits.
type StepFunc func(ctx context.Context, job *domain.Job, image string) error

// Processor runs the per-image steps of a job. It holds no mutable state and
// is safe for concurrent use.
type Processor struct {
	logger        *slog.Logger
	step          StepFunc
	resultMessage string
}

// NewProcessor creates a processor that spends stepDuration on every image.
func NewProcessor(logger *slog.Logger, stepDuration time.Duration, resultMessage string) *Processor {
	return NewProcessorWithStep(logger, SimulatedStep(stepDuration), resultMessage)
}

// NewProcessorWithStep creates a processor with a custom per-image step.
func NewProcessorWithStep(logger *slog.Logger, step StepFunc, resultMessage string) *Processor {
	return &Processor{
		logger:        logger,
		step:          step,
		resultMessage: resultMessage,
	}
}

// SimulatedStep returns a step that sleeps for d, returning early when ctx is done.
func SimulatedStep(d time.Duration) StepFunc {
	return func(ctx context.Context, _ *domain.Job, _ string) error {
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Process runs one step per image, in order, and always produces a
// completion result for job.ExamID.
func (p *Processor) Process(ctx context.Context, job *domain.Job) domain.CompletionResult {
	start := time.Now()

	p.logger.Info("Received exam",
		slog.String("exam_id", job.ExamID.String()),
		slog.String("user_id", job.UserID.String()),
		slog.Int("images", len(job.Images)),
	)

	processed := 0
	for i, image := range job.Images {
		p.logger.Info("Processing image",
			slog.String("exam_id", job.ExamID.String()),
			slog.String("image", image),
			slog.Int("index", i),
		)

		if err := p.step(ctx, job, image); err != nil {
			// step failures are logged only, there is no failure path for a job
			p.logger.Warn("Image step did not finish",
				slog.String("exam_id", job.ExamID.String()),
				slog.String("image", image),
				slog.String("error", err.Error()),
			)
		}
		processed++
	}

	result := domain.CompletionResult{
		ExamID:          job.ExamID,
		Success:         true,
		Message:         p.resultMessage,
		ImagesProcessed: processed,
		Duration:        time.Since(start),
	}

	p.logger.Info("Finished processing exam",
		slog.String("exam_id", job.ExamID.String()),
		slog.Int("images_processed", processed),
		slog.Duration("duration", result.Duration),
	)

	return result
}
