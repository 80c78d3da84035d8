package utils

import (
	"sync"
)

// Job represents a task to be executed by the dispatcher.
type Job struct {
	Task func()
}

// Dispatcher runs submitted jobs one at a time, in submission order, on a single
// worker goroutine. Submit never blocks, so it is safe to call while holding a lock
// that the jobs themselves may need.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []Job
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its worker.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go d.worker()
	return d
}

// worker drains the queue until the dispatcher is shut down.
func (d *Dispatcher) worker() {
	defer close(d.stopped)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			if d.closed {
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			<-d.wake
			continue
		}
		job := d.queue[0]
		d.queue[0] = Job{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		job.Task()
	}
}

// Submit appends a job to the queue. Jobs submitted after Shutdown are dropped.
func (d *Dispatcher) Submit(task func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, Job{Task: task})
	d.mu.Unlock()

	d.signal()
	return true
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Shutdown stops accepting jobs, lets the queued ones finish and waits for the worker.
// It must not be called from inside a job.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.signal()
	<-d.stopped
}
