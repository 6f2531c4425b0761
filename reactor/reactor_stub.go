//go:build !linux

// Stub for platforms other than Linux. The server's reactor relies on
// epoll-specific semantics (EPOLLONESHOT, EPOLLET, EPOLLRDHUP) that have no
// portable equivalent in scope for this server; spec.md's non-goals do not
// ask for one.
package reactor

import "errors"

func New() (Reactor, error) {
	return nil, errors.New("reactor: only linux is supported")
}
