// Package acceptor implements the acceptor/dispatcher of spec.md §4.3
// (component C) and the connection lifecycle of §4.4 (component D): it owns
// the listening socket, the reactor's event loop, the idle-timeout heap, and
// the hand-off into the work-queue worker pool that runs the HTTP parser (E),
// router (G), and response assembler (F) for each connection.
//
// Grounded on original_source's POST-Webserver/SimpleWebServer/src/main.cpp's
// epoll_wait loop: accept() drained to EAGAIN on the listen fd, read_once()
// performed directly in the loop that owns the reactor before handing the
// connection to the thread pool, and write() performed directly in that same
// loop on EPOLLOUT — only parsing/routing/response assembly is offloaded to
// workers, matching the original's split between the epoll thread and the
// thread pool.
package acceptor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/reactorweb/httpd/config"
	"github.com/reactorweb/httpd/httpparse"
	"github.com/reactorweb/httpd/logging"
	"github.com/reactorweb/httpd/metrics"
	"github.com/reactorweb/httpd/netconn"
	"github.com/reactorweb/httpd/reactor"
	"github.com/reactorweb/httpd/response"
	"github.com/reactorweb/httpd/router"
	"github.com/reactorweb/httpd/signalpipe"
	"github.com/reactorweb/httpd/timerheap"
	"github.com/reactorweb/httpd/workpool"
)

const busyMessage = "Internal server is busy"

// Server is the single-process deployment of spec.md §4.3: one reactor, one
// idle-timeout heap, one worker pool, all driven from one goroutine's event
// loop.
type Server struct {
	cfg    config.Config
	rx     reactor.Reactor
	funnel *signalpipe.Funnel
	pool   *workpool.Pool
	router *router.Router
	log    *logging.Logger
	mx     *metrics.Registry

	listenFd  int
	triggerFd int // fd whose readiness means "call acceptLoop": listenFd itself in single-process mode, or a supervisor token socket in a multi-process child

	// heapMu guards the idle-timeout heap. timerheap.Heap documents itself
	// as owned exclusively by the reactor goroutine, but here a worker
	// goroutine's teardown (a response that does not fit the write buffer,
	// a failed re-arm, or closePending) also removes a Timer, so unlike the original (where only the epoll thread
	// ever touches timer_lst) this needs a lock around every heap access.
	heapMu sync.Mutex
	heap   *timerheap.Heap

	mu    sync.Mutex
	conns map[int]*netconn.Conn
	live  int

	stopped bool
}

// New wires the full single-process server around an already-open listener
// fd (non-blocking, bound and listening — see Listen). The server itself
// watches listenFd for readiness and accepts directly.
func New(cfg config.Config, listenFd int, rt *router.Router, log *logging.Logger, mx *metrics.Registry) (*Server, error) {
	return newServer(cfg, listenFd, listenFd, rt, log, mx)
}

// NewChild wires a multi-process worker (spec.md §4.3's "child reactor"): it
// accepts on listenFd (a dup'd, inherited descriptor shared with the parent
// and every sibling) but only calls accept() when notified, via tokenFd (one
// side of the UnixConn pair the supervisor dials this child on), rather than
// registering listenFd with its own reactor — avoiding every child waking on
// every connection (the thundering-herd problem the spec's round-robin
// hand-off exists to avoid).
func NewChild(cfg config.Config, listenFd, tokenFd int, rt *router.Router, log *logging.Logger, mx *metrics.Registry) (*Server, error) {
	if err := syscall.SetNonblock(tokenFd, true); err != nil {
		return nil, fmt.Errorf("acceptor: token nonblock: %w", err)
	}
	return newServer(cfg, listenFd, tokenFd, rt, log, mx)
}

func newServer(cfg config.Config, listenFd, triggerFd int, rt *router.Router, log *logging.Logger, mx *metrics.Registry) (*Server, error) {
	rx, err := reactor.New()
	if err != nil {
		return nil, fmt.Errorf("acceptor: reactor: %w", err)
	}
	funnel, err := signalpipe.New(config.TimeSlot)
	if err != nil {
		rx.Close()
		return nil, fmt.Errorf("acceptor: signalpipe: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		rx:        rx,
		funnel:    funnel,
		heap:      timerheap.New(),
		router:    rt,
		log:       log,
		mx:        mx,
		listenFd:  listenFd,
		triggerFd: triggerFd,
		conns:     make(map[int]*netconn.Conn),
	}
	s.pool = workpool.New(cfg.WorkerCount, cfg.QueueCapacity, s.processConn)

	if err := rx.Register(triggerFd, reactor.Read, reactor.EdgeTriggered, 0); err != nil {
		return nil, fmt.Errorf("acceptor: register accept trigger: %w", err)
	}
	if err := rx.Register(funnel.ReadFd(), reactor.Read, reactor.EdgeTriggered, 0); err != nil {
		return nil, fmt.Errorf("acceptor: register signal pipe: %w", err)
	}
	return s, nil
}

// Listen implements spec.md §6's socket setup: SO_REUSEADDR, bind, listen
// with a fixed backlog, non-blocking.
func Listen(port int) (int, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("acceptor: socket: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("acceptor: reuseaddr: %w", err)
	}
	addr := syscall.SockaddrInet4{Port: port}
	if err := syscall.Bind(fd, &addr); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("acceptor: bind: %w", err)
	}
	if err := syscall.Listen(fd, config.ListenBacklog); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("acceptor: listen: %w", err)
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("acceptor: nonblock: %w", err)
	}
	return fd, nil
}

// Run drives the event loop until Stop is called or a fatal reactor error
// occurs. It blocks the calling goroutine.
func (s *Server) Run() error {
	events := make([]reactor.Event, 1024)
	for {
		n, err := s.rx.Wait(events, -1)
		if err != nil {
			if err == reactor.ErrInterrupted {
				continue
			}
			return fmt.Errorf("acceptor: wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			switch {
			case ev.Fd == s.triggerFd:
				if s.triggerFd != s.listenFd {
					drainToken(s.triggerFd)
				}
				s.acceptLoop()
			case ev.Fd == s.funnel.ReadFd():
				s.handleSignals()
			default:
				s.handleConnEvent(ev)
			}
		}

		if s.isStopped() {
			return nil
		}
	}
}

// Stop requests a graceful shutdown: the next iteration of Run's loop exits
// after processing the current event batch.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Close tears down the reactor, signal funnel, and worker pool. Call after
// Run returns.
func (s *Server) Close() error {
	s.pool.Close()
	s.funnel.Close()
	return s.rx.Close()
}

func (s *Server) acceptLoop() {
	for {
		fd, sa, err := syscall.Accept(s.listenFd)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return
			}
			if s.log != nil {
				s.log.Warn("accept error", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		if s.liveCount() >= config.MaxLiveConnections {
			syscall.Write(fd, []byte(busyMessage))
			syscall.Close(fd)
			continue
		}

		syscall.SetNonblock(fd, true)
		c := netconn.New(fd, sockaddrToAddr(sa))

		if err := s.rx.Register(fd, reactor.Read|reactor.PeerClosed, reactor.EdgeTriggered|reactor.OneShot, 0); err != nil {
			syscall.Close(fd)
			continue
		}

		t := &timerheap.Timer{Owner: c, Expiry: nowSeconds() + int64(config.IdleDeadline.Seconds())}
		s.heapMu.Lock()
		s.heap.Add(t)
		heapLen := s.heap.Len()
		s.heapMu.Unlock()
		c.Timer = t

		s.mu.Lock()
		s.conns[fd] = c
		s.live++
		s.mu.Unlock()
		if s.mx != nil {
			s.mx.SetLiveConnections(int64(s.liveCount()))
			s.mx.SetTimerHeapSize(int64(heapLen))
		}
	}
}

func (s *Server) handleSignals() {
	kinds, err := s.funnel.Drain()
	if err != nil {
		return
	}
	for _, k := range kinds {
		switch k {
		case signalpipe.KindTerm:
			s.Stop()
		case signalpipe.KindTick:
			s.heapMu.Lock()
			expired := s.heap.Tick(nowSeconds())
			heapLen := s.heap.Len()
			s.heapMu.Unlock()
			if s.mx != nil {
				s.mx.SetTimerHeapSize(int64(heapLen))
			}
			// Connections a worker currently owns only had closePending
			// flagged above; they tear themselves down in processConn. A
			// purely idle connection has no worker to notice that flag, so
			// the reactor closes it here (spec.md §8 scenario #5).
			for _, t := range expired {
				if c, ok := t.Owner.(*netconn.Conn); ok {
					s.teardown(c)
				}
			}
		case signalpipe.KindChild:
			// Only meaningful to the multi-process supervisor; ignored here.
		}
	}
}

func (s *Server) handleConnEvent(ev reactor.Event) {
	s.mu.Lock()
	c, ok := s.conns[ev.Fd]
	s.mu.Unlock()
	if !ok {
		return
	}

	if ev.Ready&reactor.PeerClosed != 0 {
		s.teardown(c)
		return
	}

	if ev.Ready&reactor.Read != 0 {
		s.handleReadable(c)
		return
	}
	if ev.Ready&reactor.Write != 0 {
		s.handleWritable(c)
	}
}

// handleReadable mirrors main.cpp's EPOLLIN branch: read_once() happens
// directly on the reactor goroutine; only the parse/route/assemble work
// (process()) is handed to the worker pool.
func (s *Server) handleReadable(c *netconn.Conn) {
	switch c.ReadOnce() {
	case netconn.ReadClosed, netconn.ReadError:
		s.teardown(c)
		return
	}
	// ReadOverrun (a full buffer) still goes to the parser: a request that
	// fits exactly is parsed, and an incomplete one is reported by Parse as
	// BadRequest.

	s.adjustTimer(c)

	c.MarkOwned()
	if err := s.pool.Submit(c); err != nil {
		// Queue full: the spec's append()-rejects-when-full contract; the
		// connection is dropped rather than silently stalled.
		c.ClearOwned()
		s.teardown(c)
	}
}

// processConn runs on a worker goroutine: parse (E), route (G), assemble
// response (F), then re-arm for WRITE — the work main.cpp's process() does.
func (s *Server) processConn(item workpool.Item) {
	c, ok := item.(*netconn.Conn)
	if !ok {
		return
	}
	// Held for the rest of this function, covering every return path
	// (teardown or re-arm): a timer firing before this clears only flags
	// closePending instead of tearing the connection down out from under us.
	defer c.ClearOwned()

	if c.ClosePending() {
		s.teardown(c)
		return
	}

	c.SetState(netconn.StateParsing)
	result := httpparse.Parse(c)

	switch result {
	case httpparse.NoRequest:
		if err := s.rx.Modify(c.Fd, reactor.Read); err != nil {
			s.teardown(c)
		}
		return
	case httpparse.BadRequest:
		response.Assemble(c, router.BadRequestResult)
	case httpparse.GetRequest:
		outcome := s.router.Route(context.Background(), c)
		if !response.Assemble(c, outcome) {
			s.teardown(c)
			return
		}
	}

	c.SetState(netconn.StateWriting)
	if c.ClosePending() {
		s.teardown(c)
		return
	}
	if err := s.rx.Modify(c.Fd, reactor.Write); err != nil {
		s.teardown(c)
	}
}

// handleWritable mirrors main.cpp's EPOLLOUT branch: the reactor goroutine
// performs the gathered write directly.
func (s *Server) handleWritable(c *netconn.Conn) {
	done, wouldBlock, err := c.WriteOnce()
	if err != nil {
		s.teardown(c)
		return
	}
	if wouldBlock {
		s.rx.Modify(c.Fd, reactor.Write)
		return
	}
	if !done {
		return
	}

	c.Unmap()
	s.adjustTimer(c)

	if !c.KeepAlive {
		s.teardown(c)
		return
	}

	c.Reset()
	if err := s.rx.Modify(c.Fd, reactor.Read); err != nil {
		s.teardown(c)
	}
}

func (s *Server) adjustTimer(c *netconn.Conn) {
	if c.Timer == nil {
		return
	}
	s.heapMu.Lock()
	s.heap.Adjust(c.Timer, nowSeconds()+int64(config.IdleDeadline.Seconds()))
	s.heapMu.Unlock()
}

// teardown unregisters and closes a connection. Called from both the
// reactor goroutine (read/write errors, peer close) and worker goroutines
// (response does not fit the write buffer, failed re-arm, closePending) — safe from either
// since every shared structure it touches (heap, conns map) is guarded.
func (s *Server) teardown(c *netconn.Conn) {
	s.rx.Unregister(c.Fd)
	if c.Timer != nil {
		s.heapMu.Lock()
		s.heap.Remove(c.Timer)
		s.heapMu.Unlock()
		c.Timer = nil
	}
	c.Unmap()
	c.CloseFd()
	c.SetState(netconn.StateClosed)

	s.mu.Lock()
	delete(s.conns, c.Fd)
	s.live--
	live := s.live
	s.mu.Unlock()

	if s.mx != nil {
		s.heapMu.Lock()
		heapLen := s.heap.Len()
		s.heapMu.Unlock()
		s.mx.SetLiveConnections(int64(live))
		s.mx.SetTimerHeapSize(int64(heapLen))
	}
}

func (s *Server) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func sockaddrToAddr(sa syscall.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *syscall.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}

// processStart anchors nowSeconds to the monotonic clock.
var processStart = time.Now()

func nowSeconds() int64 { return int64(time.Since(processStart) / time.Second) }

// drainToken reads and discards every pending byte on a child's token
// socket, matching the edge-triggered drain-to-EAGAIN discipline used
// everywhere else in the reactor.
func drainToken(fd int) {
	var buf [256]byte
	for {
		n, err := syscall.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
