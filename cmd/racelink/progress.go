package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// CountdownPrinter shows the remaining time of a bounded operation on one
// terminal line.
//
//	p := NewCountdownPrinter(out, "Scanning for race controllers", timeout)
//	p.Start()
//	defer p.Stop()
//
// A CountdownPrinter is single-use and must be stopped to release its goroutine.
type CountdownPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration
	enabled  bool

	started atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewCountdownPrinter creates a printer that counts down from duration.
// It prints nothing unless the output is an interactive terminal.
func NewCountdownPrinter(out io.Writer, prefix string, duration time.Duration) *CountdownPrinter {
	return &CountdownPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		enabled:  !color.NoColor,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once.
func (p *CountdownPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("CountdownPrinter.Start called more than once")
	}
	if !p.enabled {
		close(p.done)
		return
	}

	startTime := time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.print(p.duration)

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.print(p.duration - time.Since(startTime))
			}
		}
	}()
}

func (p *CountdownPrinter) print(remaining time.Duration) {
	// Round to the nearest second, never below zero
	seconds := 0
	if remaining > 0 {
		seconds = int(remaining.Seconds() + 0.5)
	}
	fmt.Fprintf(p.out, "\r%s (%ds)   ", p.prefix, seconds)
}

// Stop stops the display and clears the line. Safe to call more than once.
func (p *CountdownPrinter) Stop() {
	if !p.started.Load() || !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stop)
	<-p.done
	if p.enabled {
		fmt.Fprint(p.out, clearLineSequence)
	}
}
