// Supervisor implements the multi-process deployment's parent half of
// spec.md §4.3: it owns the listen fd, round-robins "new connection
// available" tokens to live children over UNIX-domain socket pairs, and
// marks a child dead when it exits; exited children are not restarted.
//
// Go has no fork(); spec.md §9 redesigns this as re-exec: the supervisor
// starts N copies of its own binary via os.StartProcess, each inheriting a
// dup'd listen fd and one end of a net.UnixConn pair through ExtraFiles —
// the same inherited-fd convention the teacher's process-spawning code uses
// for handing descriptors to a child it starts.
package acceptor

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reactorweb/httpd/config"
	"github.com/reactorweb/httpd/logging"
	"github.com/reactorweb/httpd/signalpipe"
)

// ChildEnvVar is the environment variable a re-exec'd worker checks to enter
// child mode instead of starting the supervisor again.
const ChildEnvVar = "HTTPD_WORKER_TOKEN_FD"

type child struct {
	proc  *os.Process
	conn  *os.File // supervisor's side of the UnixConn pair, passed as a plain fd
	alive bool
}

// Supervisor is the parent process of spec.md's multi-process deployment.
type Supervisor struct {
	exePath  string
	listenFd int
	log      *logging.Logger

	mu       sync.Mutex
	children []*child
	next     int

	funnel *signalpipe.Funnel
}

// NewSupervisor spawns n worker processes, each re-executing the current
// binary with the shared listener and a dedicated token socket inherited via
// ExtraFiles.
func NewSupervisor(n int, listenFd int, log *logging.Logger) (*Supervisor, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("supervisor: executable path: %w", err)
	}
	funnel, err := signalpipe.New(config.TimeSlot)
	if err != nil {
		return nil, fmt.Errorf("supervisor: signalpipe: %w", err)
	}

	sv := &Supervisor{exePath: exePath, listenFd: listenFd, log: log, funnel: funnel}
	for i := 0; i < n; i++ {
		if err := sv.spawn(); err != nil {
			sv.shutdownAll()
			return nil, err
		}
	}
	return sv, nil
}

func (sv *Supervisor) spawn() error {
	parentSock, childSock, err := socketPair()
	if err != nil {
		return fmt.Errorf("supervisor: socketpair: %w", err)
	}

	listenerCopy, err := dupFile(sv.listenFd, "listener")
	if err != nil {
		childSock.Close()
		parentSock.Close()
		return fmt.Errorf("supervisor: dup listener: %w", err)
	}

	proc, err := os.StartProcess(sv.exePath, os.Args, &os.ProcAttr{
		Env:   append(os.Environ(), ChildEnvVar+"=4"),
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr, listenerCopy, childSock},
	})
	listenerCopy.Close()
	childSock.Close()
	if err != nil {
		parentSock.Close()
		return fmt.Errorf("supervisor: start worker: %w", err)
	}

	sv.mu.Lock()
	sv.children = append(sv.children, &child{proc: proc, conn: parentSock, alive: true})
	sv.mu.Unlock()
	if sv.log != nil {
		sv.log.Info("worker process started", map[string]interface{}{"pid": proc.Pid})
	}
	return nil
}

// Dispatch sends a one-byte "new connection available" token to the next
// live child in round-robin order. If no child is alive, it reports that the
// caller should shut down (spec.md §4.3: "If the chosen child has no
// successor alive, parent sets the shutdown flag").
func (sv *Supervisor) Dispatch() (dispatched bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	n := len(sv.children)
	for i := 0; i < n; i++ {
		idx := (sv.next + i) % n
		c := sv.children[idx]
		if !c.alive {
			continue
		}
		sv.next = (idx + 1) % n
		if _, err := c.conn.Write([]byte{1}); err != nil {
			c.alive = false
			continue
		}
		return true
	}
	return false
}

// ReapExited marks any child whose process has already exited as dead,
// using a non-blocking WNOHANG wait so a still-running sibling never stalls
// the reap of the one that actually triggered the KindChild signal.
func (sv *Supervisor) ReapExited() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for _, c := range sv.children {
		if !c.alive {
			continue
		}
		if exited := waitNoHang(c.proc.Pid); exited {
			c.alive = false
			if sv.log != nil {
				sv.log.Warn("worker process exited", map[string]interface{}{"pid": c.proc.Pid})
			}
		}
	}
}

// LiveChildren reports how many children are currently marked alive.
func (sv *Supervisor) LiveChildren() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	n := 0
	for _, c := range sv.children {
		if c.alive {
			n++
		}
	}
	return n
}

// Run watches the listen fd (readiness only — the supervisor never accepts
// itself) and the signal funnel, dispatching tokens and reaping children
// until ctx is cancelled, a termination signal arrives, or no live child
// remains.
func (sv *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sv.watchSignals(ctx) })
	g.Go(func() error { return sv.watchListener(ctx) })
	return g.Wait()
}

func (sv *Supervisor) watchSignals(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !waitReadable(sv.funnel.ReadFd()) {
			continue
		}
		kinds, err := sv.funnel.Drain()
		if err != nil {
			return err
		}
		for _, k := range kinds {
			switch k {
			case signalpipe.KindTerm:
				sv.shutdownAll()
				return nil
			case signalpipe.KindChild:
				sv.ReapExited()
				if sv.LiveChildren() == 0 {
					return fmt.Errorf("supervisor: no live children remain")
				}
			}
		}
	}
}

func (sv *Supervisor) watchListener(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !waitReadable(sv.listenFd) {
			continue
		}
		if !sv.Dispatch() {
			return fmt.Errorf("supervisor: no live successor to dispatch to")
		}
	}
}

func (sv *Supervisor) shutdownAll() {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for _, c := range sv.children {
		if c.alive {
			c.proc.Signal(os.Interrupt)
		}
		c.conn.Close()
	}
	sv.funnel.Close()
}
