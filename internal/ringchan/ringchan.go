// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer that never blocks producers.
// When the buffer is full the oldest element is discarded.
//
//	rc := ringchan.New[telemetry.Frame](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(frame(i))
//	}
//	for f := range rc.C() {
//	    fmt.Println(f) // only the last 3 frames
//	}
//
// Sends after Close are dropped instead of panicking, so a producer racing
// with shutdown is harmless.
type RingChannel[T any] struct {
	ch     chan T
	mu     sync.Mutex
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
	dropped     atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was discarded.
func (rc *RingChannel[T]) Send(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		rc.dropped.Add(1)
		return false
	}

	overwrote := false
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return overwrote
		default:
		}
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			overwrote = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the receive side. It is idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// Stats is a snapshot of channel counters.
type Stats struct {
	Written     int64
	Overwritten int64
	Dropped     int64 // sends after Close
}

// Stats returns the current counters.
func (rc *RingChannel[T]) Stats() Stats {
	return Stats{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
		Dropped:     rc.dropped.Load(),
	}
}
