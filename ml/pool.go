// pool.go - Pool unabhaengiger Core-Instanzen
//
// Jede Lane besteht aus einem Core und einem eigenen Blob-Container.
// Parallelitaet entsteht ueber mehrere Lanes, nie ueber geteilte Cores.
package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Lane is one core with its own container.
type Lane struct {
	Index int
	Core  InferCore
	Blobs *Blobs
}

// Process runs the pipeline on the lane's container.
func (l *Lane) Process(ctx context.Context) error {
	return Process(ctx, l.Core, NewRequest(l.Blobs))
}

// Pool hands out lanes to concurrent callers.
type Pool struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	free   []*Lane
	lanes  []*Lane
	closed bool
}

// NewPool creates n cores from f concurrently. If any creation fails, all
// cores created so far are closed.
func NewPool(ctx context.Context, f Factory, n int) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("pool: need at least one lane, got %d", n)
	}

	lanes := make([]*Lane, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			core, err := f.Create()
			if err != nil {
				return fmt.Errorf("lane %d: %w", i, err)
			}
			lanes[i] = &Lane{Index: i, Core: core}

			blobs, err := core.AllocBlobsBuffer()
			if err != nil {
				return fmt.Errorf("lane %d: %w", i, err)
			}
			lanes[i].Blobs = blobs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, l := range lanes {
			if l != nil {
				if cerr := l.Core.Close(); cerr != nil {
					slog.Warn("closing lane after failed pool init", "lane", l.Index, "error", cerr)
				}
			}
		}
		return nil, err
	}

	free := make([]*Lane, n)
	copy(free, lanes)
	return &Pool{
		sem:   semaphore.NewWeighted(int64(n)),
		free:  free,
		lanes: lanes,
	}, nil
}

// Size returns the number of lanes.
func (p *Pool) Size() int { return len(p.lanes) }

// Acquire blocks until a lane is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Lane, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem.Release(1)
		return nil, ErrReleased
	}

	l := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return l, nil
}

// Release returns a lane to the pool.
func (p *Pool) Release(l *Lane) {
	p.mu.Lock()
	p.free = append(p.free, l)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Do acquires a lane, runs fn and releases the lane.
func (p *Pool) Do(ctx context.Context, fn func(*Lane) error) error {
	l, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(l)
	return fn(l)
}

// Lanes returns all lanes. Callers must not use them concurrently with
// Acquire.
func (p *Pool) Lanes() []*Lane { return p.lanes }

// Close waits for all lanes to be released and closes every core.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.sem.Acquire(context.Background(), int64(len(p.lanes))); err != nil {
		return err
	}
	defer p.sem.Release(int64(len(p.lanes)))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for _, l := range p.lanes {
		errs = append(errs, l.Core.Close())
	}
	return errors.Join(errs...)
}
