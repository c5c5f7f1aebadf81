// Package statuslog is the outbound stream of human-readable status lines.
//
// Lines are appended in order and handed to consumers once; the log is never
// replayed or cleared. A bounded overlapped ring buffer holds lines until they
// are drained, so a slow consumer loses the oldest lines instead of blocking
// the BLE pipeline.
package statuslog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the number of undrained lines kept.
const DefaultCapacity uint32 = 1024

// Line is one status line.
type Line struct {
	Seq  uint64
	Time time.Time
	Text string
}

func (l Line) String() string {
	return l.Text
}

// Log is an append-only, ordered status line stream. Safe for concurrent use.
type Log struct {
	buffer mpmc.RichOverlappedRingBuffer[Line]
	logger *logrus.Logger

	mu          sync.Mutex // orders sequence numbers with enqueue
	seq         uint64
	overwritten atomic.Int64
	notify      chan struct{}
}

// New creates a Log holding up to capacity undrained lines.
func New(capacity uint32, logger *logrus.Logger) *Log {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Log{
		buffer: mpmc.NewOverlappedRingBuffer[Line](capacity),
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

// Printf appends a formatted line and returns it.
func (l *Log) Printf(format string, args ...any) Line {
	text := fmt.Sprintf(format, args...)

	l.mu.Lock()
	l.seq++
	line := Line{Seq: l.seq, Time: time.Now(), Text: text}
	overwrites, err := l.buffer.EnqueueM(line)
	l.mu.Unlock()

	if err != nil {
		l.logger.WithError(err).Warn("Failed to enqueue status line")
	}
	if overwrites > 0 {
		l.overwritten.Add(int64(overwrites))
	}
	l.logger.WithField("seq", line.Seq).Debug(text)

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return line
}

// Drain removes and returns all pending lines in append order.
func (l *Log) Drain() []Line {
	var lines []Line
	for !l.buffer.IsEmpty() {
		line, err := l.buffer.Dequeue()
		if err != nil {
			break
		}
		lines = append(lines, line)
	}
	return lines
}

// Ready is signalled after lines were appended. It coalesces signals, so a
// consumer should Drain after each receive.
func (l *Log) Ready() <-chan struct{} {
	return l.notify
}

// Overwritten reports how many lines were dropped before being drained.
func (l *Log) Overwritten() int64 {
	return l.overwritten.Load()
}
