// Package worker runs claim processing jobs on a bounded set of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned when submitting to a pool that no longer accepts jobs
var ErrPoolClosed = errors.New("worker pool is closed")

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// JobFunc adapts a function to the Job interface
type JobFunc func(ctx context.Context) Result

// Execute implements Job
func (f JobFunc) Execute(ctx context.Context) Result {
	return f(ctx)
}

// ErrorResult is a Result carrying only an error
type ErrorResult struct {
	Err error
}

// GetError implements Result
func (r ErrorResult) GetError() error {
	return r.Err
}

// Pool manages a pool of workers that execute jobs concurrently.
// By default results are collected and returned by Wait; a pool built with
// WithResultHandler hands each result to the handler instead, which suits
// long-running background pools.
type Pool struct {
	workers    int
	jobQueue   chan Job
	collector  *ResultCollector
	onResult   func(Result)
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

// Option configures a Pool
type Option func(*Pool)

// WithResultHandler sends every result to fn instead of collecting it
func WithResultHandler(fn func(Result)) Option {
	return func(p *Pool) {
		p.onResult = fn
		p.collector = nil
	}
}

// WithQueueSize sets how many jobs may wait for a free worker
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.jobQueue = make(chan Job, n)
		}
	}
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		collector:  NewResultCollector(),
		ctx:        ctx,
		cancelFunc: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the number of worker goroutines
func (p *Pool) Workers() int {
	return p.workers
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.deliver(job.Execute(p.ctx))
		}
	}
}

func (p *Pool) deliver(r Result) {
	if p.onResult != nil {
		p.onResult(r)
		return
	}
	p.collector.Add(r)
}

// Submit queues a job, blocking while the queue is full.
// It fails once the pool is closing or ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobQueue <- job:
		return nil
	}
}

// TrySubmit queues a job only if the queue has room
func (p *Pool) TrySubmit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.ctx.Err() != nil {
		return false
	}

	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

func (p *Pool) closeQueue() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobQueue)
		p.mu.Unlock()
	})
}

// Wait stops accepting jobs, lets queued jobs finish and returns the
// collected results
func (p *Pool) Wait() []Result {
	p.closeQueue()
	p.wg.Wait()

	if p.collector == nil {
		return nil
	}
	return p.collector.Results()
}

// Drain stops accepting jobs and waits for queued jobs to finish or ctx to
// end, in which case running jobs are cancelled
func (p *Pool) Drain(ctx context.Context) error {
	p.closeQueue()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.cancelFunc()
		<-done
		return ctx.Err()
	}
}

// Shutdown cancels running jobs and stops the workers immediately
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.closeQueue()
	p.wg.Wait()
}

// ResultCollector provides a safer way to collect results as they arrive
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add adds a result to the collector (thread-safe)
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns all collected results
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}
