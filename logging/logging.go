// Package logging is the server's log sink: a single mutex-protected append
// target plus a bounded queue for async flushing, matching spec.md §5's
// description of the log subsystem ("single mutex protecting file appends,
// plus a bounded blocking queue for async flushing"). Built on logrus
// (pack-grounded — see DESIGN.md) instead of a hand-rolled formatter: the
// teacher's own code has no logging dependency to imitate, so this is
// enrichment from the rest of the example corpus rather than a direct port.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

type item struct {
	level  logrus.Level
	msg    string
	fields logrus.Fields
}

// Logger wraps a logrus.Logger with the spec's async bounded-queue flush
// discipline: entries are pushed onto a channel and drained by one
// goroutine, so request-handling workers never block on I/O to the log
// sink (original_source's log.h uses an analogous bounded blocking queue
// fed by worker threads and drained by one writer thread).
type Logger struct {
	base  *logrus.Logger
	queue chan item
	done  chan struct{}
}

// New creates a Logger writing to stderr at the given level, backed by a
// queue of the given capacity. Entries submitted once the queue is full
// block the caller — the spec calls this queue "bounded blocking."
func New(level logrus.Level, queueCapacity int) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	l := &Logger{
		base:  base,
		queue: make(chan item, queueCapacity),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l
}

func (l *Logger) drain() {
	for it := range l.queue {
		entry := l.base.WithFields(it.fields)
		switch it.level {
		case logrus.ErrorLevel:
			entry.Error(it.msg)
		case logrus.WarnLevel:
			entry.Warn(it.msg)
		default:
			entry.Info(it.msg)
		}
	}
	close(l.done)
}

// Info logs a request-outcome or lifecycle line.
func (l *Logger) Info(msg string, fields logrus.Fields) {
	l.queue <- item{logrus.InfoLevel, msg, fields}
}

// Warn logs a recoverable anomaly, e.g. an unrecognized header.
func (l *Logger) Warn(msg string, fields logrus.Fields) {
	l.queue <- item{logrus.WarnLevel, msg, fields}
}

// Error logs a failure that caused a connection to close.
func (l *Logger) Error(msg string, fields logrus.Fields) {
	l.queue <- item{logrus.ErrorLevel, msg, fields}
}

// Close stops accepting new entries and waits for the queue to drain.
func (l *Logger) Close() {
	close(l.queue)
	<-l.done
}
