// Package netconn implements the per-connection state and buffers of
// spec.md §3 (component D): fixed-size read/write buffers, the cursors the
// parser advances, request fields, the resolved file mapping, the gathered
// write descriptor, and the back-pointer to the connection's idle timer.
//
// A Conn is owned by exactly one execution context at a time — either the
// reactor goroutine between events, or a worker goroutine while processing
// — matching spec.md §3's ownership invariant; this package itself does not
// enforce that (the reactor/acceptor/workpool wiring does, via ONE_SHOT
// registration), it only holds the data the two sides hand off.
package netconn

import (
	"net"
	"sync/atomic"

	"github.com/reactorweb/httpd/config"
	"github.com/reactorweb/httpd/timerheap"
)

// CheckState is the HTTP request-parser's main-state-machine position
// (spec.md §4.5 RP).
type CheckState int

const (
	CheckRequestLine CheckState = iota
	CheckHeaders
	CheckBody
)

// Method is the HTTP method of the current request. Only GET and POST are
// honored (spec.md §3); any other verb is a Bad Request.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
)

// LifecycleState tracks the connection through spec.md §4.4's state
// machine.
type LifecycleState int32

const (
	StateIdle LifecycleState = iota
	StateParsing
	StateWriting
	StateClosed
)

// IOVec is one segment of a gathered write (spec.md glossary).
type IOVec struct {
	Base []byte
	Len  int
}

// Conn is the per-connection record of spec.md §3.
type Conn struct {
	Fd   int
	Peer net.Addr

	// Read buffer and cursors. filled <= cap(ReadBuf); scanned <= filled;
	// lineStart <= scanned (spec.md §3 invariant).
	ReadBuf   [config.ReadBufferSize]byte
	Filled    int
	Scanned   int
	LineStart int

	// Write buffer, built by the response assembler.
	WriteBuf   [config.WriteBufferSize]byte
	WriteIdx   int
	CheckState CheckState

	Method       Method
	URL          string
	Version      string
	Host         string
	ContentLen   int
	KeepAlive    bool
	Body         []byte // points into ReadBuf; valid until the next Reset
	ResolvedPath string

	// Mapped file body, set by the router/resource resolver (F,G).
	MappedFile []byte
	FileSize   int64

	// Gathered-write state (spec.md §4.6 write step).
	IOVecs      [2]IOVec
	IOVecCount  int
	BytesToSend int
	BytesSent   int

	Timer *timerheap.Timer

	state        atomic.Int32
	closePending atomic.Bool // set by a timer firing while a worker owns the conn
	owned        atomic.Bool // true while a worker goroutine holds this conn
}

// New constructs a Conn for a freshly accepted socket, in StateIdle with a
// clean parser (spec.md §4.4: Accept -> IDLE, registered for READ).
func New(fd int, peer net.Addr) *Conn {
	c := &Conn{Fd: fd, Peer: peer}
	c.Reset()
	return c
}

// Reset re-initializes parsing/response state for a new request on a
// keep-alive connection (spec.md §4.4 "re-init state").
func (c *Conn) Reset() {
	c.Filled, c.Scanned, c.LineStart = 0, 0, 0
	c.WriteIdx = 0
	c.CheckState = CheckRequestLine
	c.Method = MethodUnknown
	c.URL, c.Version, c.Host = "", "", ""
	c.ContentLen = 0
	c.KeepAlive = false
	c.Body = nil
	c.ResolvedPath = ""
	c.MappedFile = nil
	c.FileSize = 0
	c.IOVecCount = 0
	c.BytesToSend, c.BytesSent = 0, 0
	c.state.Store(int32(StateIdle))
	c.owned.Store(false)
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() LifecycleState { return LifecycleState(c.state.Load()) }

// SetState transitions the connection's lifecycle state.
func (c *Conn) SetState(s LifecycleState) { c.state.Store(int32(s)) }

// MarkClosePending records that the idle timer fired while this connection
// was queued or being processed by a worker; the owning worker must tear
// the connection down itself on return instead of re-arming it. This is the
// resolution of spec.md §9's timer double-fire hazard.
func (c *Conn) MarkClosePending() { c.closePending.Store(true) }

// ClosePending reports whether a timer fired while this connection was
// owned by a worker.
func (c *Conn) ClosePending() bool { return c.closePending.Load() }

// MarkOwned records that a worker goroutine now holds this connection
// (between workpool.Submit and processConn returning), so a timer firing
// concurrently must not touch the socket itself.
func (c *Conn) MarkOwned() { c.owned.Store(true) }

// ClearOwned records that no worker currently holds this connection; from
// this point a timer firing is the reactor goroutine's to handle directly.
func (c *Conn) ClearOwned() { c.owned.Store(false) }

// OwnedByWorker implements timerheap.Owner: it reports whether a worker
// goroutine currently holds this connection. timerheap.Heap.Tick uses it to
// decide whether the reactor must tear the connection down itself (not
// owned) or merely flag closePending for the owning worker to notice on
// return (owned).
func (c *Conn) OwnedByWorker() bool { return c.owned.Load() }

// OnTimerExpired implements timerheap.Owner. It never touches the socket —
// that stays exclusively the reactor/acceptor's job, via Heap.Tick's
// teardown list for connections not currently owned by a worker, or via the
// owning worker's own closePending check otherwise.
func (c *Conn) OnTimerExpired() {
	c.Timer = nil
	c.MarkClosePending()
}

// Unmap releases any memory-mapped file body. Safe to call when none is
// mapped.
func (c *Conn) Unmap() error {
	if c.MappedFile == nil {
		return nil
	}
	err := unmapFile(c.MappedFile)
	c.MappedFile = nil
	return err
}

// CloseFd closes the underlying socket descriptor.
func (c *Conn) CloseFd() error {
	return closeFd(c.Fd)
}
