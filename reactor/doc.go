// Package reactor implements the readiness-notification event loop: a
// single-threaded wait/dispatch core that multiplexes accept, connection
// I/O, the signal pipe, and timer ticks across one descriptor set.
//
// Linux is the only supported platform (epoll); spec.md's non-goals make no
// promise of portability and the original program is epoll-specific.
package reactor
