//go:build linux

package acceptor

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// socketPair creates a connected pair of UNIX-domain sockets, one for the
// supervisor and one to be inherited by the child via ExtraFiles (spec.md
// §4.3's "paired UNIX-domain socket").
func socketPair() (parent, childSock *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	return os.NewFile(uintptr(fds[0]), "supervisor-sock"),
		os.NewFile(uintptr(fds[1]), "child-sock"), nil
}

// dupFile duplicates fd into a new *os.File so it survives being handed to
// os.StartProcess independently of the original descriptor's lifetime.
func dupFile(fd int, name string) (*os.File, error) {
	newFd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	// Clear CLOEXEC: os.StartProcess needs the fd to survive into the child
	// via Files/ExtraFiles, which requires it not be closed on exec.
	if _, _, errno := syscall.Syscall(syscall.SYS_FCNTL, uintptr(newFd), syscall.F_SETFD, 0); errno != 0 {
		syscall.Close(newFd)
		return nil, errno
	}
	return os.NewFile(uintptr(newFd), name), nil
}

// waitNoHang reaps pid if it has already exited, without blocking when it
// hasn't (WNOHANG) — letting the reap loop check every child in one pass.
func waitNoHang(pid int) bool {
	var status syscall.WaitStatus
	got, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil)
	return err == nil && got == pid
}

// waitReadable blocks until fd is readable, a signal interrupts the wait, or
// one second passes, returning false in the last two cases so the caller can
// recheck its context.
func waitReadable(fd int) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 1000)
	if err != nil || n == 0 {
		return false
	}
	return fds[0].Revents&unix.POLLIN != 0
}
