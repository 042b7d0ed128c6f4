// Package pool runs submitted tasks on a bounded, elastic set of worker
// goroutines with a bounded FIFO backlog.
//
// MinWorkers goroutines are started up front and stay for the life of the
// pool. Extra workers up to MaxWorkers are spawned when a task arrives and
// no worker is idle; they retire as soon as the backlog is empty. Submit
// blocks while the backlog is full.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
)

var ErrPoolClosed = errors.New("pool: closed")

const (
	DefaultMinWorkers = 4
	DefaultMaxWorkers = 32
	DefaultQueueSize  = 64
)

// Task is one unit of work.
type Task func()

// Config sizes a pool. Zero fields take the defaults.
type Config struct {
	MinWorkers int
	MaxWorkers int
	QueueSize  int
}

func (c Config) withDefaults() Config {
	if c.MinWorkers <= 0 {
		c.MinWorkers = DefaultMinWorkers
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Workers   int
	Idle      int
	Queued    int
	Submitted uint64
	Completed uint64
	Panics    uint64
}

type Pool struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	backlog  *queue.Queue
	workers  int
	idle     int
	closed   bool

	wg        sync.WaitGroup
	closeOnce sync.Once

	submitted atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64
}

// New starts MinWorkers workers and returns the pool.
func New(cfg Config, logger zerolog.Logger) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:     cfg,
		logger:  logger,
		backlog: queue.New(),
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)

	p.mu.Lock()
	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()
	return p
}

func (p *Pool) Config() Config { return p.cfg }

// Submit queues task. It blocks while the backlog is full and returns
// ctx.Err() if ctx ends first, or ErrPoolClosed once Close has begun.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.notFull.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return ErrPoolClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.backlog.Length() < p.cfg.QueueSize {
			break
		}
		p.notFull.Wait()
	}

	p.backlog.Add(task)
	p.submitted.Add(1)
	switch {
	case p.idle > 0:
		p.idle--
		p.notEmpty.Signal()
	case p.workers < p.cfg.MaxWorkers:
		p.spawnLocked()
	}
	return nil
}

// Stats reports current occupancy and lifetime counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:   p.workers,
		Idle:      p.idle,
		Queued:    p.backlog.Length(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

// Close stops accepting tasks, lets workers drain the backlog and waits for
// every running task to return. It is idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.idle = 0
		p.notEmpty.Broadcast()
		p.notFull.Broadcast()
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *Pool) spawnLocked() {
	p.workers++
	p.wg.Add(1)
	go p.work()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.backlog.Length() == 0 && !p.closed {
			if p.workers > p.cfg.MinWorkers {
				p.workers--
				p.mu.Unlock()
				return
			}
			p.idle++
			p.notEmpty.Wait()
		}
		if p.backlog.Length() == 0 {
			p.workers--
			p.mu.Unlock()
			return
		}
		task := p.backlog.Remove().(Task)
		p.notFull.Signal()
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error().Interface("panic", r).Msg("pool task panicked")
		}
		p.completed.Add(1)
	}()
	task()
}
