package logging_test

import (
	"bufio"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reactorweb/httpd/logging"
)

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	orig := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	fn()
	w.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestInfoIsFlushedBeforeClose(t *testing.T) {
	out := captureStderr(t, func() {
		lg := logging.New(logrus.InfoLevel, 16)
		lg.Info("connection accepted", logrus.Fields{"fd": 7})
		lg.Close()
	})
	if !strings.Contains(out, "connection accepted") {
		t.Fatalf("output = %q, want it to contain the logged message", out)
	}
}

func TestCloseDrainsPendingEntries(t *testing.T) {
	out := captureStderr(t, func() {
		lg := logging.New(logrus.InfoLevel, 16)
		for i := 0; i < 10; i++ {
			lg.Info("event", logrus.Fields{"n": i})
		}
		lg.Close()
	})
	if strings.Count(out, "event") != 10 {
		t.Fatalf("output contains %d of 10 events: %q", strings.Count(out, "event"), out)
	}
}

func TestSubmittingAfterCloseDoesNotHang(t *testing.T) {
	lg := logging.New(logrus.InfoLevel, 4)
	lg.Info("before close", nil)
	lg.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { recover() }() // send on closed channel panics; that's fine, just don't hang
		lg.Info("after close", nil)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("logging after Close appears to have hung")
	}
}
