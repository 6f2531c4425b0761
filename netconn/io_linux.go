//go:build linux

package netconn

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ReadResult is the outcome of one ReadOnce call (spec.md §4.5 "Read step").
type ReadResult int

const (
	ReadAgain   ReadResult = iota // drained to EAGAIN, nothing more pending
	ReadClosed                    // peer closed (zero-length recv)
	ReadError                     // a real recv error
	ReadOverrun                   // buffer filled to capacity; whether it holds a complete request is not checked
)

// ReadOnce loops recv into ReadBuf[Filled:] until the kernel reports
// EAGAIN, matching spec.md's edge-triggered "drain until would-block"
// contract. A zero-length read is peer close; once the buffer is full it
// returns ReadOverrun without looking at whether the buffered bytes already
// form a complete request (the parser decides that).
func (c *Conn) ReadOnce() ReadResult {
	for c.Filled < len(c.ReadBuf) {
		n, err := syscall.Read(c.Fd, c.ReadBuf[c.Filled:])
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				return ReadAgain
			}
			return ReadError
		}
		if n == 0 {
			return ReadClosed
		}
		c.Filled += n
	}
	return ReadOverrun
}

// WriteOnce performs one gathered write of the remaining IOVecs, advancing
// BytesSent and the segment pointers on partial progress (spec.md §4.6
// write step). It returns (done, wouldBlock, err).
func (c *Conn) WriteOnce() (done bool, wouldBlock bool, err error) {
	if c.BytesToSend == 0 {
		return true, false, nil
	}

	iovecs := make([][]byte, 0, 2)
	for i := 0; i < c.IOVecCount; i++ {
		if c.IOVecs[i].Len > 0 {
			iovecs = append(iovecs, c.IOVecs[i].Base[:c.IOVecs[i].Len])
		}
	}

	n, werr := writev(c.Fd, iovecs)
	if werr != nil {
		if werr == syscall.EAGAIN || werr == syscall.EWOULDBLOCK {
			return false, true, nil
		}
		return false, false, werr
	}

	c.BytesSent += n
	c.BytesToSend -= n
	advanceIOVecs(&c.IOVecs, &c.IOVecCount, n)

	if c.BytesToSend <= 0 {
		return true, false, nil
	}
	return false, false, nil
}

// advanceIOVecs consumes n bytes from the front of the segment list,
// mutating lengths/bases in place so the next writev call resumes exactly
// where the previous one left off.
func advanceIOVecs(vecs *[2]IOVec, count *int, n int) {
	i := 0
	for n > 0 && i < *count {
		v := &vecs[i]
		if n < v.Len {
			v.Base = v.Base[n:]
			v.Len -= n
			n = 0
		} else {
			n -= v.Len
			v.Len = 0
			i++
		}
	}
}

func writev(fd int, bufs [][]byte) (int, error) {
	nonEmpty := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if len(b) > 0 {
			nonEmpty = append(nonEmpty, b)
		}
	}
	if len(nonEmpty) == 0 {
		return 0, nil
	}
	n, err := unix.Writev(fd, nonEmpty)
	return n, err
}

func closeFd(fd int) error {
	return syscall.Close(fd)
}

// MapFile opens path read-only, memory-maps it, and closes the fd — the
// mapping itself keeps the file alive, exactly as spec.md §4.6 describes.
func MapFile(path string, size int64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	fd, err := syscall.Open(path, syscall.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer syscall.Close(fd)

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func unmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
