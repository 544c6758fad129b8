// Package dispatch runs generation jobs off the authoritative loop and hands
// their continuations back to it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultWorkers    = 2
	DefaultQueueSize  = 64
	DefaultJobTimeout = 120 * time.Second
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// Job performs one blocking call and returns the continuation that must run on
// the authoritative loop. A nil continuation is allowed.
type Job func(ctx context.Context) func()

// Options tunes the pool.
type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
	return o
}

type task struct {
	name string
	job  Job
}

// Dispatcher is a fixed worker pool over a bounded queue. When the queue is
// full the submitting goroutine runs the job itself (caller-runs); the
// continuation is still posted to the main queue either way.
type Dispatcher struct {
	opts   Options
	main   *Queue
	logger *zap.Logger

	tasks chan task
	ctx   context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// New builds a dispatcher that posts continuations onto main.
func New(opts Options, main *Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		opts:   opts,
		main:   main,
		logger: logger.Named("dispatch"),
		tasks:  make(chan task, opts.QueueSize),
		ctx:    ctx,
		stop:   cancel,
	}
}

// Options returns the effective options.
func (d *Dispatcher) Options() Options { return d.opts }

// Start launches the workers. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("worker pool started",
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue", d.opts.QueueSize),
		zap.Duration("job_timeout", d.opts.JobTimeout))
}

// Stop rejects new submissions, lets workers finish the queued backlog and
// waits for them. In-flight calls see their context cancelled.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.stop()
	d.wg.Wait()
	d.logger.Info("worker pool stopped")
}

// Submit enqueues job. It never blocks on a full queue: the job runs on the
// calling goroutine instead.
func (d *Dispatcher) Submit(name string, job Job) error {
	if job == nil {
		return fmt.Errorf("submit %s: nil job", name)
	}
	t := task{name: name, job: job}
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrStopped
	}
	if d.started {
		select {
		case d.tasks <- t:
			d.mu.RUnlock()
			return nil
		default:
		}
	}
	d.mu.RUnlock()

	d.logger.Debug("queue saturated, running in caller", zap.String("job", name))
	d.run(t)
	return nil
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for t := range d.tasks {
		d.run(t)
	}
	d.logger.Debug("worker exit", zap.Int("worker", id))
}

func (d *Dispatcher) run(t task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.JobTimeout)
	defer cancel()

	started := time.Now()
	cont := d.safeCall(ctx, t)
	d.logger.Debug("job finished",
		zap.String("job", t.name),
		zap.Duration("elapsed", time.Since(started)))
	if cont != nil {
		d.main.Post(cont)
	}
}

func (d *Dispatcher) safeCall(ctx context.Context, t task) (cont func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked", zap.String("job", t.name), zap.Any("panic", r))
			cont = nil
		}
	}()
	return t.job(ctx)
}
