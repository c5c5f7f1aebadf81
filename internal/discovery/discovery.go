// Package discovery scans for race controllers.
package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/statuslog"
)

// DefaultNameFilters are the name fragments advertised by Carrera controllers.
var DefaultNameFilters = []string{"Carrera", "AppConnect"}

// DefaultScanTimeout is the default scan window.
const DefaultScanTimeout = 10 * time.Second

// Options configures a Scanner.
type Options struct {
	NameFilters []string
	Timeout     time.Duration
	Log         *statuslog.Log
	Logger      *logrus.Logger
}

// Scanner finds advertising peripherals whose name matches an allow-list.
type Scanner struct {
	radio   device.Radio
	filters []string
	timeout time.Duration
	log     *statuslog.Log
	logger  *logrus.Logger
}

// NewScanner creates a Scanner over radio.
func NewScanner(radio device.Radio, opts Options) *Scanner {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Log == nil {
		opts.Log = statuslog.New(statuslog.DefaultCapacity, opts.Logger)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultScanTimeout
	}
	filters := opts.NameFilters
	if len(filters) == 0 {
		filters = DefaultNameFilters
	}
	lowered := make([]string, 0, len(filters))
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" {
			lowered = append(lowered, strings.ToLower(f))
		}
	}
	return &Scanner{
		radio:   radio,
		filters: lowered,
		timeout: opts.Timeout,
		log:     opts.Log,
		logger:  opts.Logger,
	}
}

// Matches reports whether name contains one of the filter fragments, ignoring case.
func (s *Scanner) Matches(name string) bool {
	lname := strings.ToLower(name)
	for _, f := range s.filters {
		if strings.Contains(lname, f) {
			return true
		}
	}
	return false
}

// Scan blocks for the scan window and returns the matching peripherals in
// discovery order, de-duplicated by address. The end of the scan window is
// normal completion; cancellation of ctx returns ctx.Err().
func (s *Scanner) Scan(ctx context.Context) ([]device.DiscoveredDevice, error) {
	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var mu sync.Mutex
	found := orderedmap.New[string, device.DiscoveredDevice]()

	s.logger.WithFields(logrus.Fields{
		"timeout": s.timeout,
		"filters": s.filters,
	}).Info("Scanning for devices...")

	err := s.radio.Scan(scanCtx, false, func(adv device.Advertisement) {
		name := adv.LocalName()
		if !s.Matches(name) {
			return
		}
		addr := adv.Addr()

		mu.Lock()
		defer mu.Unlock()
		if prev, ok := found.Get(addr); ok {
			// keep discovery position, refresh the signal
			prev.RSSI = adv.RSSI()
			found.Set(addr, prev)
			return
		}
		found.Set(addr, device.DiscoveredDevice{ID: addr, Name: name, RSSI: adv.RSSI()})
		s.logger.WithFields(logrus.Fields{
			"address": addr,
			"name":    name,
			"rssi":    adv.RSSI(),
		}).Debug("Discovered candidate")
	})

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			// scan window elapsed
		default:
			s.log.Printf("Scan failed: %v", err)
			return nil, &device.DiscoveryError{Err: err}
		}
	}

	mu.Lock()
	devices := make([]device.DiscoveredDevice, 0, found.Len())
	for pair := found.Oldest(); pair != nil; pair = pair.Next() {
		devices = append(devices, pair.Value)
	}
	mu.Unlock()

	s.log.Printf("Scan finished – %d candidates found.", len(devices))
	return devices, nil
}
