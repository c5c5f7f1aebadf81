package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/racelink/internal/device"
	"github.com/srg/racelink/internal/telemetry"
)

// Config holds application configuration
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`

	// NameFilters are case-insensitive name fragments of race controllers.
	NameFilters []string `yaml:"name_filters"`

	// AutoSubscribe subscribes every Notify characteristic right after connect.
	AutoSubscribe bool `yaml:"auto_subscribe" default:"true"`

	// ControlCharacteristic receives command payloads.
	ControlCharacteristic string `yaml:"control_characteristic"`

	// Commands maps command names ("start", "stop") to hex payloads.
	Commands map[string]string `yaml:"commands"`

	Layout telemetry.Layout `yaml:"layout"`

	LogBuffer   uint32 `yaml:"log_buffer" default:"1024"`
	FrameBuffer int    `yaml:"frame_buffer" default:"256"`
	RouteBuffer int    `yaml:"route_buffer" default:"64"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.NameFilters = []string{"Carrera", "AppConnect"}
	cfg.Commands = map[string]string{}
	cfg.Layout = telemetry.DefaultLayout
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.ControlCharacteristic != "" {
		uuids, err := device.ValidateUUID(c.ControlCharacteristic)
		if err != nil {
			return fmt.Errorf("control_characteristic: %w", err)
		}
		c.ControlCharacteristic = uuids[0]
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if _, err := c.CommandTable(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// CommandTable parses the configured command payloads.
func (c *Config) CommandTable() (telemetry.CommandTable, error) {
	return telemetry.ParseCommandTable(c.Commands)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
