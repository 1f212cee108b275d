package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/rovermap/internal/serialmux"
	"github.com/banshee-data/rovermap/internal/units"
)

// Defaults. Speed, tick and canvas geometry match the rover's calibration.
const (
	DefaultPort           = "/dev/ttyUSB0"
	DefaultSpeed          = 18.3
	DefaultSpeedUnit      = units.IN
	DefaultTickPeriod     = 30 * time.Millisecond
	DefaultScale          = 0.65
	DefaultCanvasWidth    = 1400
	DefaultCanvasHeight   = 900
	DefaultHistoryCap     = 2500
	DefaultListen         = ":8080"
	DefaultDBPath         = "rovermap.db"
	DefaultMQTTTopic      = "rovermap/status"
	DefaultMQTTClientID   = "rovermap"
	DefaultMQTTInterval   = time.Second
	DefaultReplayInterval = 500 * time.Millisecond
)

// DefaultOriginX places the start point a sixth of the way across the canvas.
const DefaultOriginX = DefaultCanvasWidth / 6

// DefaultOriginY centres the start point vertically.
const DefaultOriginY = DefaultCanvasHeight / 2

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the startup configuration. Every field is optional; the Get*
// methods supply defaults for anything left unset, so partial files are
// safe. Durations are strings like "30ms".
type Config struct {
	// Serial link
	Port           *string `json:"port,omitempty" yaml:"port,omitempty"`
	BaudRate       *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits       *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits       *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity         *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	ReadTimeout    *string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	ReconnectDelay *string `json:"reconnect_delay,omitempty" yaml:"reconnect_delay,omitempty"`

	// Dead reckoning
	Speed       *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	SpeedUnit   *string  `json:"speed_unit,omitempty" yaml:"speed_unit,omitempty"`         // length unit per second
	SpeedCMPerS *float64 `json:"speed_cm_per_s,omitempty" yaml:"speed_cm_per_s,omitempty"` // overrides speed
	TickPeriod  *string  `json:"tick_period,omitempty" yaml:"tick_period,omitempty"`
	HistoryCap  *int     `json:"history_cap,omitempty" yaml:"history_cap,omitempty"`

	// Map view
	Scale        *float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	OriginX      *float64 `json:"origin_x,omitempty" yaml:"origin_x,omitempty"`
	OriginY      *float64 `json:"origin_y,omitempty" yaml:"origin_y,omitempty"`
	CanvasWidth  *int     `json:"canvas_width,omitempty" yaml:"canvas_width,omitempty"`
	CanvasHeight *int     `json:"canvas_height,omitempty" yaml:"canvas_height,omitempty"`

	// Services
	Listen       *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	DBPath       *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	MQTTBroker   *string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"` // empty disables MQTT
	MQTTTopic    *string `json:"mqtt_topic,omitempty" yaml:"mqtt_topic,omitempty"`
	MQTTClientID *string `json:"mqtt_client_id,omitempty" yaml:"mqtt_client_id,omitempty"`
	MQTTInterval *string `json:"mqtt_interval,omitempty" yaml:"mqtt_interval,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Defaults returns a Config with every field set to its default, suitable
// for writing out as a starting file.
func Defaults() *Config {
	return &Config{
		Port:           ptrString(DefaultPort),
		BaudRate:       ptrInt(serialmux.DefaultBaudRate),
		DataBits:       ptrInt(8),
		StopBits:       ptrInt(1),
		Parity:         ptrString("N"),
		ReadTimeout:    ptrString(serialmux.DefaultReadTimeout.String()),
		ReconnectDelay: ptrString("0s"),
		Speed:          ptrFloat64(DefaultSpeed),
		SpeedUnit:      ptrString(DefaultSpeedUnit),
		TickPeriod:     ptrString(DefaultTickPeriod.String()),
		HistoryCap:     ptrInt(DefaultHistoryCap),
		Scale:          ptrFloat64(DefaultScale),
		OriginX:        ptrFloat64(DefaultOriginX),
		OriginY:        ptrFloat64(DefaultOriginY),
		CanvasWidth:    ptrInt(DefaultCanvasWidth),
		CanvasHeight:   ptrInt(DefaultCanvasHeight),
		Listen:         ptrString(DefaultListen),
		DBPath:         ptrString(DefaultDBPath),
		MQTTBroker:     ptrString(""),
		MQTTTopic:      ptrString(DefaultMQTTTopic),
		MQTTClientID:   ptrString(DefaultMQTTClientID),
		MQTTInterval:   ptrString(DefaultMQTTInterval.String()),
	}
}

// Load reads a Config from a .json, .yaml or .yml file of at most 1MB and
// validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"read_timeout", c.ReadTimeout},
		{"reconnect_delay", c.ReconnectDelay},
		{"tick_period", c.TickPeriod},
		{"mqtt_interval", c.MQTTInterval},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.v)
		}
	}
	if c.TickPeriod != nil && *c.TickPeriod != "" && c.GetTickPeriod() == 0 {
		return fmt.Errorf("tick_period must be positive")
	}

	if c.Speed != nil && *c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %f", *c.Speed)
	}
	if c.SpeedUnit != nil && *c.SpeedUnit != "" && !units.IsValid(*c.SpeedUnit) {
		return fmt.Errorf("invalid speed_unit '%s': must be one of %s", *c.SpeedUnit, units.GetValidUnitsString())
	}
	if c.SpeedCMPerS != nil && *c.SpeedCMPerS <= 0 {
		return fmt.Errorf("speed_cm_per_s must be positive, got %f", *c.SpeedCMPerS)
	}
	if c.HistoryCap != nil && *c.HistoryCap <= 0 {
		return fmt.Errorf("history_cap must be positive, got %d", *c.HistoryCap)
	}
	if c.Scale != nil && *c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %f", *c.Scale)
	}
	if c.CanvasWidth != nil && *c.CanvasWidth <= 0 {
		return fmt.Errorf("canvas_width must be positive, got %d", *c.CanvasWidth)
	}
	if c.CanvasHeight != nil && *c.CanvasHeight <= 0 {
		return fmt.Errorf("canvas_height must be positive, got %d", *c.CanvasHeight)
	}
	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetPort returns the serial device path.
func (c *Config) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return DefaultPort
	}
	return *c.Port
}

// PortOptions returns the serial parameters. Unset values are left zero for
// PortOptions.Normalize to default.
func (c *Config) PortOptions() serialmux.PortOptions {
	var o serialmux.PortOptions
	if c.BaudRate != nil {
		o.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		o.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		o.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		o.Parity = *c.Parity
	}
	o.ReadTimeout = c.GetReadTimeout()
	return o
}

// GetReadTimeout returns the serial read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, serialmux.DefaultReadTimeout)
}

// GetReconnectDelay returns the delay between reopen attempts. Zero means
// the link is not reopened after a failure.
func (c *Config) GetReconnectDelay() time.Duration {
	return durationOr(c.ReconnectDelay, 0)
}

// GetSpeedCMPerS returns the nominal drive speed in cm/s.
func (c *Config) GetSpeedCMPerS() float64 {
	if c.SpeedCMPerS != nil {
		return *c.SpeedCMPerS
	}
	speed := DefaultSpeed
	if c.Speed != nil {
		speed = *c.Speed
	}
	unit := DefaultSpeedUnit
	if c.SpeedUnit != nil && *c.SpeedUnit != "" {
		unit = *c.SpeedUnit
	}
	return units.ToCM(speed, unit)
}

// GetTickPeriod returns the control loop period.
func (c *Config) GetTickPeriod() time.Duration {
	return durationOr(c.TickPeriod, DefaultTickPeriod)
}

// GetHistoryCap returns the per-sequence record cap.
func (c *Config) GetHistoryCap() int {
	if c.HistoryCap == nil {
		return DefaultHistoryCap
	}
	return *c.HistoryCap
}

// GetScale returns canvas pixels per centimetre.
func (c *Config) GetScale() float64 {
	if c.Scale == nil {
		return DefaultScale
	}
	return *c.Scale
}

// GetOrigin returns the canvas position of the world origin.
func (c *Config) GetOrigin() (x, y float64) {
	x, y = DefaultOriginX, DefaultOriginY
	if c.OriginX != nil {
		x = *c.OriginX
	}
	if c.OriginY != nil {
		y = *c.OriginY
	}
	return x, y
}

// GetCanvasSize returns the canvas width and height in pixels.
func (c *Config) GetCanvasSize() (w, h int) {
	w, h = DefaultCanvasWidth, DefaultCanvasHeight
	if c.CanvasWidth != nil {
		w = *c.CanvasWidth
	}
	if c.CanvasHeight != nil {
		h = *c.CanvasHeight
	}
	return w, h
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetDBPath returns the SQLite database path.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetMQTTBroker returns the broker URL, or "" when MQTT is disabled.
func (c *Config) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the status topic.
func (c *Config) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return DefaultMQTTTopic
	}
	return *c.MQTTTopic
}

// GetMQTTClientID returns the MQTT client identifier.
func (c *Config) GetMQTTClientID() string {
	if c.MQTTClientID == nil || *c.MQTTClientID == "" {
		return DefaultMQTTClientID
	}
	return *c.MQTTClientID
}

// GetMQTTInterval returns the minimum gap between status publishes.
func (c *Config) GetMQTTInterval() time.Duration {
	return durationOr(c.MQTTInterval, DefaultMQTTInterval)
}
