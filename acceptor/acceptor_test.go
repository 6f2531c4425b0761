package acceptor_test

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/reactorweb/httpd/acceptor"
	"github.com/reactorweb/httpd/config"
	"github.com/reactorweb/httpd/router"
	"github.com/reactorweb/httpd/userstore"
)

func listenOnFreePort(t *testing.T) (fd int, port int) {
	t.Helper()
	fd, err := acceptor.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	sa, err := syscall.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return fd, a.Port
	default:
		t.Fatalf("unexpected sockaddr type %T", sa)
		return 0, 0
	}
}

func startServer(t *testing.T) (port int, stop func()) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "judge.html"), []byte("hello from judge"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{
		DocumentRoot:  root,
		WorkerCount:   2,
		QueueCapacity: 64,
	}
	rt := router.New(cfg, userstore.New(), nil, nil)

	fd, port := listenOnFreePort(t)
	srv, err := acceptor.New(cfg, fd, rt, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	go func() {
		srv.Run()
		close(done)
	}()

	return port, func() {
		srv.Stop()
		<-done
		srv.Close()
	}
}

func TestServerServesFileOverRealSocket(t *testing.T) {
	port, stop := startServer(t)
	defer stop()

	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 50*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte("GET /judge.html HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if status != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("status line = %q, want 200 OK", status)
	}
}

func TestServerReturns404ForMissingFile(t *testing.T) {
	port, stop := startServer(t)
	defer stop()

	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 50*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte("GET /nope.html HTTP/1.1\r\nConnection: close\r\n\r\n"))

	reader := bufio.NewReader(conn)
	status, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if status != "HTTP/1.1 404 Not Found\r\n" {
		t.Fatalf("status line = %q, want 404 Not Found", status)
	}
}
