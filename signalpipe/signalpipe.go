// Package signalpipe implements the self-pipe unification of spec.md §4.2:
// OS signals and a periodic timer tick are funneled into ordinary bytes on
// a pipe the reactor watches like any other descriptor, so the reactor
// never special-cases signal delivery.
//
// Go cannot run arbitrary code inside an asynchronous OS signal handler the
// way the C original does (Go's runtime already serializes signal delivery
// onto a dedicated internal goroutine before user code sees it), so the byte
// is written by a goroutine fed from signal.Notify and a time.Ticker rather
// than from a handler body. The protocol on the pipe — and the rule that the
// reactor observes a signal no earlier than its next Wait — is unchanged.
package signalpipe

import (
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Kind identifies what caused a byte to appear on the pipe.
type Kind byte

const (
	KindTerm  Kind = 'T' // SIGTERM/SIGINT: shutdown requested
	KindChild Kind = 'C' // SIGCHLD: a supervised worker process exited
	KindTick  Kind = 'A' // periodic tick standing in for SIGALRM
)

// Funnel owns the self-pipe and the goroutine that feeds it.
type Funnel struct {
	readFd  int
	writeFd int

	notifyCh chan os.Signal
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{} // closed when relay has returned
}

// New opens the pipe, installs signal.Notify for SIGTERM/SIGINT/SIGCHLD, and
// starts relaying a tick every period (spec's TIMESLOT, 5s) as KindTick.
func New(period time.Duration) (*Funnel, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if err := syscall.SetNonblock(int(w.Fd()), true); err != nil {
		return nil, err
	}

	f := &Funnel{
		readFd:   int(r.Fd()),
		writeFd:  int(w.Fd()),
		notifyCh: make(chan os.Signal, 16),
		ticker:   time.NewTicker(period),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	signal.Notify(f.notifyCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGCHLD)
	go f.relay()
	return f, nil
}

// ReadFd is the descriptor to register with the reactor for READ interest.
func (f *Funnel) ReadFd() int { return f.readFd }

func (f *Funnel) relay() {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case sig := <-f.notifyCh:
			var k Kind
			switch sig {
			case syscall.SIGCHLD:
				k = KindChild
			default:
				k = KindTerm
			}
			f.write(k)
		case <-f.ticker.C:
			f.write(KindTick)
		}
	}
}

func (f *Funnel) write(k Kind) {
	buf := [1]byte{byte(k)}
	_, _ = syscall.Write(f.writeFd, buf[:])
}

// Drain reads all pending bytes (non-blocking semantics: the reactor only
// calls this after Wait reports the read end readable) and returns one Kind
// per byte read, in the order they were written; repeats are kept.
func (f *Funnel) Drain() ([]Kind, error) {
	var buf [1024]byte
	n, err := syscall.Read(f.readFd, buf[:])
	if err != nil {
		if err == syscall.EAGAIN {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Kind, n)
	for i := 0; i < n; i++ {
		out[i] = Kind(buf[i])
	}
	return out, nil
}

// Close stops the relay goroutine and releases the pipe.
func (f *Funnel) Close() error {
	close(f.stop)
	<-f.done
	f.ticker.Stop()
	signal.Stop(f.notifyCh)
	syscall.Close(f.writeFd)
	return syscall.Close(f.readFd)
}
