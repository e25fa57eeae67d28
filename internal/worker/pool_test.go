package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(3, "test", discardLogger())
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		p.Submit(func() { ran.Add(1) })
	}
	p.Stop()

	assert.Equal(t, int32(3), ran.Load())
}

func TestPool_SizeDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, NewPool(0, "test", discardLogger()).Size())
	assert.Equal(t, 1, NewPool(-4, "test", discardLogger()).Size())
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(1, "test", discardLogger())
	p.Start()

	var after atomic.Bool
	p.Submit(func() { panic("boom") })
	p.Submit(func() { after.Store(true) })
	p.Stop()

	assert.True(t, after.Load(), "worker survives a panicking task")
}

func TestPool_StopWaitsForRunningTasks(t *testing.T) {
	p := NewPool(2, "test", discardLogger())
	p.Start()

	var finished atomic.Int32
	for i := 0; i < 2; i++ {
		p.Submit(func() {
			time.Sleep(30 * time.Millisecond)
			finished.Add(1)
		})
	}
	p.Stop()

	assert.Equal(t, int32(2), finished.Load())
}

func TestPool_SubmitDoesNotBlockUpToSize(t *testing.T) {
	p := NewPool(2, "test", discardLogger())
	// not started: the buffer alone must absorb size tasks
	done := make(chan struct{})
	go func() {
		p.Submit(func() {})
		p.Submit(func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked with free buffer")
	}

	p.Start()
	p.Stop()
}
