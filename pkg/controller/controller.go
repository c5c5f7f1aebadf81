// Package controller is the entry point of the race controller core.
//
// A Controller holds at most one GATT session and exposes the operations a UI
// or automation layer drives: scan, connect, subscribe, write, send a race
// command and disconnect. Every operation returns a human-readable status and
// appends it to the status log; decoded telemetry frames are pushed to
// subscribers and to an overwrite-oldest frame channel.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/discovery"
	"github.com/srg/racelink/internal/groutine"
	"github.com/srg/racelink/internal/ringchan"
	"github.com/srg/racelink/internal/session"
	"github.com/srg/racelink/internal/statuslog"
	"github.com/srg/racelink/internal/telemetry"
	"github.com/srg/racelink/pkg/config"
)

// State is the connection state of the controller.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

const defaultConnectTimeout = 30 * time.Second

// ErrNoControlCharacteristic is returned by SendCommand when no control
// characteristic is configured.
var ErrNoControlCharacteristic = errors.New("no control characteristic configured")

// Controller composes discovery, session and telemetry decoding.
type Controller struct {
	radio    device.Radio
	cfg      *config.Config
	logger   *logrus.Logger
	log      *statuslog.Log
	scanner  *discovery.Scanner
	commands telemetry.CommandTable
	frames   *ringchan.RingChannel[telemetry.Frame]

	// opMu serializes inbound operations.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	status  string
	session *session.Session

	subsMu      sync.RWMutex
	subscribers []func(telemetry.Frame)
}

// New creates a Controller. A nil cfg uses config.DefaultConfig.
func New(radio device.Radio, cfg *config.Config, logger *logrus.Logger) (*Controller, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	commands, err := cfg.CommandTable()
	if err != nil {
		return nil, fmt.Errorf("invalid command table: %w", err)
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}

	frameBuffer := cfg.FrameBuffer
	if frameBuffer <= 0 {
		frameBuffer = 256
	}

	log := statuslog.New(cfg.LogBuffer, logger)
	return &Controller{
		radio:  radio,
		cfg:    cfg,
		logger: logger,
		log:    log,
		scanner: discovery.NewScanner(radio, discovery.Options{
			NameFilters: cfg.NameFilters,
			Timeout:     cfg.ScanTimeout,
			Log:         log,
			Logger:      logger,
		}),
		commands: commands,
		frames:   ringchan.New[telemetry.Frame](frameBuffer),
		status:   "Disconnected",
	}, nil
}

// Log returns the status line stream.
func (c *Controller) Log() *statuslog.Log { return c.log }

// Frames returns the decoded frame stream. When the consumer falls behind the
// oldest frames are dropped. The channel is closed by Close.
func (c *Controller) Frames() <-chan telemetry.Frame { return c.frames.C() }

// OnFrame registers fn for every decoded frame. fn runs on a dispatcher
// goroutine and must not call back into the Controller.
func (c *Controller) OnFrame(fn func(telemetry.Frame)) {
	if fn == nil {
		return
	}
	c.subsMu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.subsMu.Unlock()
}

// State returns the connection state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns the last status string.
func (c *Controller) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Characteristics returns the descriptor list of the live session, or nil.
func (c *Controller) Characteristics() []device.CharacteristicDescriptor {
	c.mu.RLock()
	sess := c.session
	c.mu.RUnlock()
	if sess == nil {
		return nil
	}
	return sess.Characteristics()
}

// Scan runs one discovery window.
func (c *Controller) Scan(ctx context.Context) ([]device.DiscoveredDevice, string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	devices, err := c.scanner.Scan(ctx)
	if err != nil {
		var derr *device.DiscoveryError
		if errors.As(err, &derr) {
			// the scanner already reported it
			return nil, c.setStatus("Scan failed: %v", derr.Err), err
		}
		return nil, c.report("Scan failed: %v", err), err
	}
	return devices, c.setStatus("Scan finished – %d candidates found.", len(devices)), nil
}

// Connect opens a session to target, replacing any existing session, and
// subscribes all Notify characteristics when auto-subscribe is enabled.
func (c *Controller) Connect(ctx context.Context, target device.DiscoveredDevice) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.disconnectLocked()

	c.mu.Lock()
	c.state = Connecting
	c.mu.Unlock()

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	layout := c.cfg.Layout
	sess, err := session.Connect(connectCtx, c.radio, target, session.Deps{
		Log:         c.log,
		Logger:      c.logger,
		Layout:      &layout,
		OnFrame:     c.handleFrame,
		RouteBuffer: c.cfg.RouteBuffer,
	})
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return c.report("Connect failed: %v", err), err
	}

	c.mu.Lock()
	c.session = sess
	c.state = Connected
	c.mu.Unlock()

	groutine.Go(context.Background(), "session-watch:"+target.ID, func(context.Context) {
		c.watch(sess)
	})

	status := c.report("Connected to %s", sess.Name())
	if !c.cfg.AutoSubscribe {
		return status, nil
	}
	return c.subscribeAllLocked(ctx)
}

// SubscribeAll subscribes every Notify characteristic of the live session.
func (c *Controller) SubscribeAll(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.subscribeAllLocked(ctx)
}

func (c *Controller) subscribeAllLocked(ctx context.Context) (string, error) {
	sess := c.current()
	if sess == nil {
		return c.report("Not connected"), device.ErrNotConnected
	}

	n, err := sess.SubscribeAll(ctx, nil)
	if err != nil {
		return c.report("Subscribed to %d characteristics, failed: %v", n, err), err
	}
	return c.report("Subscribed to %d characteristics", n), nil
}

// Write writes payload to the first writable characteristic with the UUID.
func (c *Controller) Write(ctx context.Context, characteristicUUID string, payload []byte) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.writeLocked(ctx, characteristicUUID, payload)
}

func (c *Controller) writeLocked(ctx context.Context, characteristicUUID string, payload []byte) (string, error) {
	sess := c.current()
	if sess == nil {
		return c.report("Not connected"), device.ErrNotConnected
	}

	uuid := device.NormalizeUUID(characteristicUUID)
	err := sess.Write(ctx, uuid, payload)
	switch {
	case err == nil:
		return c.report("Write %s: Success", uuid), nil
	case errors.Is(err, device.ErrWriteNotFound):
		return c.report("Write characteristic not found or not writable."), err
	default:
		return c.report("Write %s: %v", uuid, err), err
	}
}

// SendCommand encodes cmd and writes it to the control characteristic.
func (c *Controller) SendCommand(ctx context.Context, cmd telemetry.Command) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	payload, err := c.commands.Encode(cmd)
	if err != nil {
		return c.report("Race %s failed: %v", cmd, err), err
	}
	if c.cfg.ControlCharacteristic == "" {
		return c.report("Race %s failed: %v", cmd, ErrNoControlCharacteristic), ErrNoControlCharacteristic
	}

	if _, err := c.writeLocked(ctx, c.cfg.ControlCharacteristic, payload); err != nil {
		return c.report("Race %s failed: %v", cmd, err), err
	}
	return c.report("Race %s sent", cmd), nil
}

// Disconnect tears down the live session. Without a session it only reports.
func (c *Controller) Disconnect() (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	name, had, err := c.disconnectLocked()
	if !had {
		return c.report("Not connected"), nil
	}
	if err != nil {
		return c.report("Disconnected from %s: %v", name, err), err
	}
	return c.report("Disconnected from %s", name), nil
}

// Close disconnects and closes the frame stream.
func (c *Controller) Close() error {
	_, err := c.Disconnect()
	c.frames.Close()
	return err
}

func (c *Controller) disconnectLocked() (name string, had bool, err error) {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.state = Disconnected
	c.mu.Unlock()

	if sess == nil {
		return "", false, nil
	}
	return sess.Name(), true, sess.Disconnect()
}

// watch drops the session when the transport reports a link loss.
func (c *Controller) watch(sess *session.Session) {
	<-sess.Done()
	if !sess.LinkLost() {
		return
	}

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.state = Disconnected
	c.mu.Unlock()

	c.logger.WithField("address", sess.Address()).Warn("Session ended by link loss")
	c.report("Connection lost: %s", sess.Name())
}

func (c *Controller) handleFrame(f telemetry.Frame) {
	c.log.Printf("%s", f)
	c.frames.Send(f)

	c.subsMu.RLock()
	subs := c.subscribers
	c.subsMu.RUnlock()
	for _, fn := range subs {
		fn(f)
	}
}

func (c *Controller) current() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// setStatus records a status without appending a line.
func (c *Controller) setStatus(format string, args ...any) string {
	status := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	return status
}

// report records a status and appends it to the status log.
func (c *Controller) report(format string, args ...any) string {
	status := c.setStatus(format, args...)
	c.log.Printf("%s", status)
	return status
}
