// Package dispatch routes notification payloads from the transport to the
// telemetry decoder and to frame subscribers.
//
// Every subscribed characteristic gets its own Route: a buffered channel
// drained by one named goroutine, so payloads of one characteristic are
// processed strictly in arrival order while characteristics never block each
// other.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/groutine"
	"github.com/srg/racelink/internal/statuslog"
	"github.com/srg/racelink/internal/telemetry"
)

// DefaultBufferSize is the per-route channel capacity.
const DefaultBufferSize = 64

// NotifyFunc receives every notification of a route after it was processed.
type NotifyFunc func(device.Notification)

// FrameFunc receives decoded telemetry frames.
type FrameFunc func(telemetry.Frame)

// ValueRecorder stores the last raw value of a characteristic. It returns
// false when generation is stale and the value was not recorded.
type ValueRecorder interface {
	RecordValue(generation uint64, key, hex string) bool
}

// Options configures a Dispatcher.
type Options struct {
	// Layout decodes payloads; nil uses telemetry.DefaultLayout.
	Layout     *telemetry.Layout
	Log        *statuslog.Log
	Recorder   ValueRecorder
	Logger     *logrus.Logger
	BufferSize int
}

// Dispatcher owns the routes of one session.
type Dispatcher struct {
	layout     telemetry.Layout
	log        *statuslog.Log
	recorder   ValueRecorder
	logger     *logrus.Logger
	bufferSize int

	routes *hashmap.Map[string, *Route]

	subsMu      sync.RWMutex
	subscribers []FrameFunc

	openMu sync.Mutex
	open   map[*Route]struct{}
	group  groutine.Group
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Log == nil {
		opts.Log = statuslog.New(statuslog.DefaultCapacity, opts.Logger)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	layout := telemetry.DefaultLayout
	if opts.Layout != nil {
		layout = *opts.Layout
	}
	return &Dispatcher{
		layout:     layout,
		log:        opts.Log,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		bufferSize: opts.BufferSize,
		routes:     hashmap.New[string, *Route](),
		open:       make(map[*Route]struct{}),
	}
}

// OnFrame registers fn for every successfully decoded frame.
func (d *Dispatcher) OnFrame(fn FrameFunc) {
	if fn == nil {
		return
	}
	d.subsMu.Lock()
	d.subscribers = append(d.subscribers, fn)
	d.subsMu.Unlock()
}

// Open creates and starts a route that is not yet registered. Payloads
// delivered to it are processed immediately; Register makes it visible to
// Rebind and Close.
func (d *Dispatcher) Open(generation uint64, serviceUUID, charUUID string, onNotify NotifyFunc) *Route {
	r := &Route{
		ServiceUUID:        device.NormalizeUUID(serviceUUID),
		CharacteristicUUID: device.NormalizeUUID(charUUID),
		generation:         generation,
		ch:                 make(chan []byte, d.bufferSize),
		done:               make(chan struct{}),
		exited:             make(chan struct{}),
	}
	r.key = device.CharacteristicKey(r.ServiceUUID, r.CharacteristicUUID)
	r.setCallback(onNotify)

	d.openMu.Lock()
	d.open[r] = struct{}{}
	d.openMu.Unlock()

	d.group.Go(context.Background(), "route:"+r.key, func(ctx context.Context) {
		d.run(r)
	})

	d.logger.WithFields(logrus.Fields{
		"route":      r.key,
		"generation": generation,
	}).Debug("Route opened")
	return r
}

// Register publishes r, closing any route previously registered for the same key.
func (d *Dispatcher) Register(r *Route) {
	if prev, ok := d.routes.Get(r.key); ok && prev != r {
		prev.close()
	}
	d.routes.Set(r.key, r)
}

// Rebind swaps the callback of a registered route.
func (d *Dispatcher) Rebind(key string, onNotify NotifyFunc) bool {
	r, ok := d.routes.Get(key)
	if !ok {
		return false
	}
	r.setCallback(onNotify)
	return true
}

// Close stops and unregisters the route for key. Once it returns no further
// payload of that route is processed.
func (d *Dispatcher) Close(key string) bool {
	r, ok := d.routes.Get(key)
	if !ok {
		return false
	}
	d.routes.Del(key)
	r.close()
	return true
}

// CloseAll stops every route, registered or not, and waits for the route
// goroutines to exit.
func (d *Dispatcher) CloseAll() {
	var keys []string
	d.routes.Range(func(key string, _ *Route) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		d.Close(key)
	}

	d.openMu.Lock()
	pending := make([]*Route, 0, len(d.open))
	for r := range d.open {
		pending = append(pending, r)
	}
	d.openMu.Unlock()
	for _, r := range pending {
		r.close()
	}
	d.group.Wait()
}

// Len returns the number of registered routes.
func (d *Dispatcher) Len() int {
	return d.routes.Len()
}

func (d *Dispatcher) run(r *Route) {
	defer func() {
		d.openMu.Lock()
		delete(d.open, r)
		d.openMu.Unlock()
		close(r.exited)
	}()
	for {
		// closed routes must not process buffered payloads
		select {
		case <-r.done:
			return
		default:
		}

		select {
		case <-r.done:
			return
		case data := <-r.ch:
			d.process(r, data)
		}
	}
}

func (d *Dispatcher) process(r *Route, data []byte) {
	hex := telemetry.FormatHex(data)

	if d.recorder != nil && !d.recorder.RecordValue(r.generation, r.key, hex) {
		d.logger.WithFields(logrus.Fields{
			"route":      r.key,
			"generation": r.generation,
		}).Debug("Dropping value of a stale characteristic table")
	}

	d.log.Printf("Notify %s: %s", r.CharacteristicUUID, hex)

	if frame, ok := d.layout.Decode(data); ok {
		d.subsMu.RLock()
		subs := d.subscribers
		d.subsMu.RUnlock()
		for _, fn := range subs {
			fn(frame)
		}
	} else {
		d.logger.WithFields(logrus.Fields{
			"route":  r.key,
			"length": len(data),
		}).Debug("Payload too short for a telemetry frame")
	}

	if fn := r.onNotify.Load(); fn != nil && *fn != nil {
		(*fn)(device.Notification{
			ServiceUUID:        r.ServiceUUID,
			CharacteristicUUID: r.CharacteristicUUID,
			Data:               data,
		})
	}
}

// Route carries the notifications of one characteristic.
type Route struct {
	ServiceUUID        string
	CharacteristicUUID string

	key        string
	generation uint64
	ch         chan []byte
	done       chan struct{}
	exited     chan struct{}
	closeOnce  sync.Once
	onNotify   atomic.Pointer[NotifyFunc]
}

// Key returns the characteristic key of the route.
func (r *Route) Key() string { return r.key }

// Deliver queues a copy of data for processing. It blocks while the route
// buffer is full and returns false once the route is closed.
func (r *Route) Deliver(data []byte) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	select {
	case r.ch <- cp:
		return true
	case <-r.done:
		return false
	}
}

// Close stops the route and waits for its goroutine to exit. Must not be
// called from a NotifyFunc or FrameFunc.
func (r *Route) Close() {
	r.close()
}

func (r *Route) close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	<-r.exited
}

func (r *Route) setCallback(fn NotifyFunc) {
	r.onNotify.Store(&fn)
}
