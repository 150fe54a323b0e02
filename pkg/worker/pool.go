// Package worker provides the bounded worker pool that runs consolidation jobs
// off the maintenance loop, and reports per-tier queue depth as the
// backpressure signal the circuit breaker reads.
package worker

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
)

var (
	defaultNumWorkers   uint = 4
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute.
type Job struct {
	// Source is the tier the job drains; backpressure is reported per source.
	Source memory.TierName

	// Key identifies the job in logs.
	Key string

	Run func()
}

// Load is the backpressure reading for one tier.
type Load struct {
	Queued   int `json:"queued"`
	InFlight int `json:"in_flight"`

	// PeakQueued is the deepest the tier's queue got since the last
	// ResetPeaks. A cycle waits for its own jobs, so the backlog it built
	// only shows up here.
	PeakQueued int `json:"peak_queued"`
}

// Backlog is the larger of the current and peak queue depth.
func (l Load) Backlog() int {
	return max(l.Queued, l.PeakQueued)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool runs jobs on a fixed set of goroutines.
type Pool struct {
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	load   map[memory.TierName]*Load
	closed bool
}

// NewPool creates a Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger).With("component", "worker-pool"),
		load:   make(map[memory.TierName]*Load),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "key", job.Key)
		return false
	}

	select {
	case p.queue <- job:
		l := p.loadFor(job.Source)
		l.Queued++
		l.PeakQueued = max(l.PeakQueued, l.Queued)
		p.logger.Debug("job queued", "key", job.Key, "source", job.Source)
		return true
	default:
		p.logger.Warn("job not queued, queue full, job dropped", "key", job.Key, "source", job.Source)
		return false
	}
}

// Backpressure returns a snapshot of queued and in-flight jobs per source
// tier. Tiers with no recorded jobs are omitted.
func (p *Pool) Backpressure() map[memory.TierName]Load {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[memory.TierName]Load, len(p.load))
	for tier, l := range p.load {
		out[tier] = *l
	}
	return out
}

// ResetPeaks starts a new peak window: every tier's PeakQueued drops to its
// current queue depth.
func (p *Pool) ResetPeaks() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range p.load {
		l.PeakQueued = l.Queued
	}
}

// Close stops accepting jobs and waits for queued and in-flight jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.process(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) process(job Job) {
	p.mu.Lock()
	l := p.loadFor(job.Source)
	l.Queued--
	l.InFlight++
	p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "key", job.Key, "panic", r)
		}
		p.mu.Lock()
		p.loadFor(job.Source).InFlight--
		p.mu.Unlock()
	}()

	if job.Run != nil {
		job.Run()
	}
}

// loadFor must be called with mu held.
func (p *Pool) loadFor(tier memory.TierName) *Load {
	l, ok := p.load[tier]
	if !ok {
		l = &Load{}
		p.load[tier] = l
	}
	return l
}
