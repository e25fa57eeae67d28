package worker

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Pool runs tasks on a fixed number of goroutines. The task buffer has the
// same size as the pool, so Submit never blocks as long as callers keep at
// most size tasks outstanding.
type Pool struct {
	size   int
	tasks  chan func()
	wg     sync.WaitGroup
	logger *slog.Logger
	name   string
}

// NewPool creates a pool with size workers. Call Start before Submit.
func NewPool(size int, name string, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:   size,
		tasks:  make(chan func(), size),
		logger: logger,
		name:   name,
	}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// Start spawns the worker goroutines
func (p *Pool) Start() {
	p.logger.Info("Spawning worker pool",
		slog.Int("concurrency", p.size),
		slog.String("worker_id", p.name),
	)

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
}

// Submit queues a task
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Stop closes the task queue and waits for running tasks to return
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped",
		slog.String("worker_id", p.name),
	)
}

func (p *Pool) workerLoop(workerNum int) {
	defer p.wg.Done()

	workerName := fmt.Sprintf("%s-%d", p.name, workerNum)
	p.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for task := range p.tasks {
		p.run(workerName, task)
	}

	p.logger.Debug("Worker goroutine stopping - task queue closed",
		slog.String("worker_name", workerName),
	)
}

func (p *Pool) run(workerName string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				slog.String("worker_name", workerName),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}
