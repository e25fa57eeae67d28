package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/exam-worker/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStep struct {
	mu     sync.Mutex
	images []string
	err    error
}

func (r *recordingStep) step(_ context.Context, _ *domain.Job, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, image)
	return r.err
}

func (r *recordingStep) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.images...)
}

func TestProcessor_Process(t *testing.T) {
	tests := []struct {
		name   string
		images []string
	}{
		{name: "no images", images: []string{}},
		{name: "one image", images: []string{"a.png"}},
		{name: "two images in order", images: []string{"a.png", "b.png"}},
		{name: "many images", images: []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingStep{}
			p := NewProcessorWithStep(discardLogger(), rec.step, "Processing complete")

			job := &domain.Job{ExamID: "E1", UserID: "U1", Images: tt.images}
			result := p.Process(context.Background(), job)

			assert.Equal(t, tt.images, append([]string{}, rec.seen()...))
			assert.Equal(t, domain.ID("E1"), result.ExamID)
			assert.True(t, result.Success)
			assert.Equal(t, "Processing complete", result.Message)
			assert.Equal(t, len(tt.images), result.ImagesProcessed)
		})
	}
}

func TestProcessor_StepErrorStillCompletes(t *testing.T) {
	rec := &recordingStep{err: errors.New("model unavailable")}
	p := NewProcessorWithStep(discardLogger(), rec.step, "done")

	result := p.Process(context.Background(), &domain.Job{ExamID: "E2", Images: []string{"a.png", "b.png"}})

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ImagesProcessed)
	assert.Equal(t, []string{"a.png", "b.png"}, rec.seen())
}

func TestProcessor_SimulatedStepDuration(t *testing.T) {
	p := NewProcessor(discardLogger(), 20*time.Millisecond, "done")

	start := time.Now()
	result := p.Process(context.Background(), &domain.Job{ExamID: "E3", Images: []string{"a", "b", "c"}})

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.GreaterOrEqual(t, result.Duration, 60*time.Millisecond)
}

func TestSimulatedStep_ContextCanceled(t *testing.T) {
	step := SimulatedStep(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := step(ctx, &domain.Job{}, "a.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_ConcurrentUse(t *testing.T) {
	p := NewProcessor(discardLogger(), time.Millisecond, "done")

	var wg sync.WaitGroup
	results := make([]domain.CompletionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Process(context.Background(), &domain.Job{
				ExamID: domain.ID(fmt.Sprintf("E%d", i)),
				Images: []string{"x", "y"},
			})
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		assert.Equal(t, domain.ID(fmt.Sprintf("E%d", i)), r.ExamID)
		assert.Equal(t, 2, r.ImagesProcessed)
	}
}
