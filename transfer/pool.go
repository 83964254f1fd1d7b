package transfer

import (
	"errors"
	"sync"
	"sync/atomic"

	"uptofetch/internal"
)

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool runs submitted tasks on a fixed number of worker goroutines
type Pool struct {
	workers  int
	jobs     chan func()
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closing  atomic.Bool
	shutdown sync.Once
	logger   *internal.SecureLogger
}

var _ internal.Executor = (*Pool)(nil)

// NewPool creates a pool with the given number of workers and starts them
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		workers: workers,
		jobs:    make(chan func(), workers*2),
		logger:  internal.GetLogger(),
	}
	p.start()
	return p
}

func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues fn, blocking while the queue is full
func (p *Pool) Submit(fn func()) error {
	if fn == nil {
		return errors.New("nil task")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closing.Load() {
		return ErrPoolClosed
	}
	p.jobs <- fn
	return nil
}

// Shutdown stops accepting tasks and waits for queued ones to finish
func (p *Pool) Shutdown() {
	p.shutdown.Do(func() {
		p.closing.Store(true)

		p.mu.Lock()
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
	})
}

// Workers returns the number of worker goroutines
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for fn := range p.jobs {
		p.run(id, fn)
	}
}

func (p *Pool) run(id int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker %d: task panicked: %v", id, r)
		}
	}()
	fn()
}
