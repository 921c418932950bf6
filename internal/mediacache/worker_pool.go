package mediacache

import (
	"context"
	"sync"
)

// workerPool is a fixed-size goroutine pool with a bounded input queue. Jobs
// are fire-and-forget: process reports its own failures.
type workerPool[T any] struct {
	queue   chan T
	process func(ctx context.Context, t T)
	wg      sync.WaitGroup
	once    sync.Once
}

// newWorkerPool starts n goroutines reading from a queue of capacity size.
func newWorkerPool[T any](ctx context.Context, n, size int, fn func(context.Context, T)) *workerPool[T] {
	if n < 1 {
		n = 1
	}
	p := &workerPool[T]{
		queue:   make(chan T, size),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues without blocking; false means the queue is full.
func (p *workerPool[T]) Submit(t T) bool {
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// Drain closes the queue and waits for the workers to finish what is queued.
func (p *workerPool[T]) Drain() {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
}

// QueueLen returns how many jobs are waiting.
func (p *workerPool[T]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the queue capacity.
func (p *workerPool[T]) QueueCap() int {
	return cap(p.queue)
}
