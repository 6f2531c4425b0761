package workpool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reactorweb/httpd/workpool"
)

func TestSubmitProcessesEveryItem(t *testing.T) {
	var processed int64
	var wg sync.WaitGroup
	wg.Add(100)

	p := workpool.New(4, 1000, func(workpool.Item) {
		atomic.AddInt64(&processed, 1)
		wg.Done()
	})
	defer p.Close()

	for i := 0; i < 100; i++ {
		if err := p.Submit(i); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("processed %d/100 items before timeout", atomic.LoadInt64(&processed))
	}
}

func TestSubmitRejectsWhenFull(t *testing.T) {
	block := make(chan struct{})
	p := workpool.New(1, 1, func(workpool.Item) { <-block })
	defer func() {
		close(block)
		p.Close()
	}()

	if err := p.Submit("first"); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	// Give the single worker a moment to pick up "first" so the queue is
	// empty and the next Submit occupies the only queue slot.
	time.Sleep(20 * time.Millisecond)
	if err := p.Submit("second"); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if err := p.Submit("third"); err != workpool.ErrFull {
		t.Fatalf("third Submit = %v, want ErrFull", err)
	}
}

func TestClosePreventsFurtherProcessing(t *testing.T) {
	var processed int64
	p := workpool.New(2, 10, func(workpool.Item) { atomic.AddInt64(&processed, 1) })
	p.Close()

	if err := p.Submit("after close"); err != nil {
		t.Fatalf("Submit after Close: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt64(&processed) != 0 {
		t.Fatalf("processed = %d, want 0 once workers are stopped", processed)
	}
}
