// Package workpool implements the bounded FIFO + fixed worker-goroutine
// group of spec.md §4.8, decoupling parsing/response assembly from the
// reactor goroutine in the single-process deployment.
//
// Grounded on the teacher's NUMA-aware executor (internal/concurrency in the
// example pack), which dispatches tasks through an eapache/queue.Queue
// behind a mutex: this keeps the same queue library and the same
// lock-around-dequeue shape, generalized from opaque TaskFunc closures to
// the spec's typed WorkItem (a bare connection reference) and given the
// spec's explicit bounded-reject semantics the original executor lacked.
package workpool

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrFull is returned by Submit when the queue is at capacity.
var ErrFull = errors.New("workpool: queue full")

// Item is anything the pool can hand to a worker. In this server it is
// always a *netconn.Conn, but the pool stays type-agnostic so it can be
// unit-tested without pulling in netconn.
type Item interface{}

// Pool is the bounded work queue plus its fixed worker group.
type Pool struct {
	mu       sync.Mutex
	q        *queue.Queue
	capacity int
	ready    chan struct{}

	process func(Item)

	stop chan struct{}
	wg   sync.WaitGroup
}

// New starts numWorkers goroutines, each calling process for every item
// pulled off the queue. capacity bounds the number of pending items; Submit
// rejects with ErrFull beyond it, exactly as spec.md's append() does.
func New(numWorkers, capacity int, process func(Item)) *Pool {
	p := &Pool{
		q:        queue.New(),
		capacity: capacity,
		ready:    make(chan struct{}, capacity),
		process:  process,
		stop:     make(chan struct{}),
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues item for processing by the next free worker. It never
// blocks: a full queue is reported via ErrFull rather than backpressured,
// matching spec.md's "append(conn) rejects with 'full'."
func (p *Pool) Submit(item Item) error {
	p.mu.Lock()
	if p.q.Length() >= p.capacity {
		p.mu.Unlock()
		return ErrFull
	}
	p.q.Add(item)
	p.mu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
		// Another Submit already signaled a pending item; the semaphore
		// count still matches queue length since we only get here after
		// a successful enqueue above.
	}
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-p.ready:
			p.mu.Lock()
			var item Item
			if p.q.Length() > 0 {
				item = p.q.Peek()
				p.q.Remove()
			}
			p.mu.Unlock()
			if item != nil {
				p.process(item)
			}
		}
	}
}

// Len reports the number of items currently queued, used by metrics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}

// Close stops all workers once their current item finishes. Pending items
// are not drained; callers that need graceful drain should stop accepting
// new connections before calling Close.
func (p *Pool) Close() {
	close(p.stop)
	p.wg.Wait()
}
