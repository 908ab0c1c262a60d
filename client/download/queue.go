package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// WorkFunc is the signature for async work. It returns the path of
// the downloaded file.
type WorkFunc func(ctx context.Context) (string, error)

// Queue runs a batch of downloads on a bounded worker pool.
type Queue struct {
	pool     *ants.Pool
	wg       sync.WaitGroup
	mu       sync.Mutex
	shutdown atomic.Bool
	errs     []error
}

// NewQueue creates a Queue running at most maxConcurrent downloads at
// once. If maxConcurrent <= 0, concurrency is unlimited.
func NewQueue(maxConcurrent int) (*Queue, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = -1
	}

	pool, err := ants.NewPool(maxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	return &Queue{pool: pool}, nil
}

// Wait blocks until all downloads in the queue complete.
// Returns all errors joined via errors.Join.
func (g *Queue) Wait() error {
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()

	return errors.Join(g.errs...)
}

// Shutdown prevents queued work that has not started from executing.
func (g *Queue) Shutdown() {
	g.shutdown.Store(true)
}

// Release waits for running work and frees the worker pool.
func (g *Queue) Release() error {
	err := g.Wait()
	g.pool.Release()
	return err
}

// Running returns the number of downloads currently executing.
func (g *Queue) Running() int {
	return g.pool.Running()
}

// Start schedules fn on the pool and returns a Result for tracking
// the individual download. It never blocks; waiting for a free worker
// happens in the background.
func (g *Queue) Start(ctx context.Context, fn WorkFunc) *Result {
	ctx, cancel := context.WithCancel(ctx)
	r := &Result{
		done:   make(chan struct{}),
		cancel: cancel,
		group:  g,
	}

	finish := func(path string, err error) {
		r.path, r.err = path, err
		if err != nil {
			g.recordErr(err)
		}
		cancel()
		close(r.done)
		g.wg.Done()
	}

	task := func() {
		if err := ctx.Err(); err != nil {
			finish("", err)
			return
		}
		if g.shutdown.Load() {
			finish("", ErrQueueShutdown)
			return
		}
		finish(fn(ctx))
	}

	g.wg.Add(1)
	go func() {
		if err := ctx.Err(); err != nil {
			finish("", err)
			return
		}
		if err := g.pool.Submit(task); err != nil {
			finish("", fmt.Errorf("%w: %w", ErrQueueShutdown, err))
		}
	}()

	return r
}
