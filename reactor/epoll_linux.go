//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor on Linux using epoll(7).
//
// userData is tracked in a side map keyed by fd rather than packed into the
// epoll_data union: packing a 64-bit value across EpollEvent's Fd/Pad int32
// pair only works if the struct's in-memory layout has no trailing padding,
// which golang.org/x/sys/unix does not guarantee across architectures, so a
// plain map avoids depending on that.
type epollReactor struct {
	epfd int

	mu       sync.Mutex
	userData map[int]uintptr
}

// New constructs the Linux epoll-backed Reactor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollReactor{
		epfd:     epfd,
		userData: make(map[int]uintptr),
	}, nil
}

func toEpollEvents(interest Interest, flags Flags) uint32 {
	var ev uint32
	if interest&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	if interest&PeerClosed != 0 {
		ev |= unix.EPOLLRDHUP
	}
	if flags&EdgeTriggered != 0 {
		ev |= unix.EPOLLET
	}
	if flags&OneShot != 0 {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

func (r *epollReactor) Register(fd int, interest Interest, flags Flags, userData uintptr) error {
	r.mu.Lock()
	r.userData[fd] = userData
	r.mu.Unlock()

	ev := &unix.EpollEvent{Events: toEpollEvents(interest, flags), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

// Modify re-arms fd for the given interest, always edge-triggered + one-shot
// + peer-closed — the only combination the spec uses for live connections.
func (r *epollReactor) Modify(fd int, interest Interest) error {
	ev := &unix.EpollEvent{
		Events: toEpollEvents(interest, EdgeTriggered|OneShot) | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (r *epollReactor) Unregister(fd int) error {
	r.mu.Lock()
	delete(r.userData, fd)
	r.mu.Unlock()
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (r *epollReactor) Wait(out []Event, timeoutMs int) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(r.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, ErrInterrupted
		}
		return 0, err
	}

	r.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		var ready Interest
		if raw[i].Events&unix.EPOLLIN != 0 {
			ready |= Read
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ready |= Write
		}
		if raw[i].Events&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ready |= PeerClosed
		}
		out[i] = Event{Fd: fd, Ready: ready, UserData: r.userData[fd]}
	}
	r.mu.Unlock()

	return n, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
