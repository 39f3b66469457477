package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"epdtimeline/internal/layout"
)

// ICSConfig describes a single ICS subscription.
type ICSConfig struct {
	// URL is the feed endpoint. http(s)://, webcal:// and file paths work.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging and cache keys.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Color is applied to events that carry no COLOR of their own.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// TimelineConfig is the day grid geometry. Every field maps onto
// layout.Options except Width, which is the container width handed to the
// packer.
type TimelineConfig struct {
	// StartHour and EndHour bound the display window (0 <= start < end <= 24).
	StartHour float64 `yaml:"start_hour" json:"start_hour"`
	EndHour   float64 `yaml:"end_hour" json:"end_hour"`

	// PixelsPerHour is the vertical scale.
	PixelsPerHour float64 `yaml:"pixels_per_hour" json:"pixels_per_hour"`

	// Width is the pixel width available to event boxes, excluding the
	// hour gutter.
	Width float64 `yaml:"width" json:"width"`

	// InsetLeft and InsetRight are removed from Width before it is split
	// between overlapping events.
	InsetLeft  float64 `yaml:"inset_left" json:"inset_left"`
	InsetRight float64 `yaml:"inset_right" json:"inset_right"`

	// MinEventHeight is the smallest height an event box is drawn with.
	MinEventHeight float64 `yaml:"min_event_height" json:"min_event_height"`
}

// Options converts the section into packer options.
func (t TimelineConfig) Options() layout.Options {
	return layout.Options{
		StartHour:     t.StartHour,
		EndHour:       t.EndHour,
		PixelsPerHour: t.PixelsPerHour,
		InsetLeft:     t.InsetLeft,
		InsetRight:    t.InsetRight,
		MinHeight:     t.MinEventHeight,
	}
}

// CaptureConfig controls the headless browser screenshot.
type CaptureConfig struct {
	Width          int `yaml:"width" json:"width"`
	Height         int `yaml:"height" json:"height"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the capture timeout as a duration.
func (c CaptureConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone events are displayed in (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a standard 5-field cron spec for the refresh loop.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how many days ahead the refresh loop expands.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds the ICS disk cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// PreviewPath is where the captured PNG is written and served from.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	Timeline TimelineConfig `yaml:"timeline" json:"timeline"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`

	// ICS is the list of subscribed feeds.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns the configuration written on first run. The
// timeline geometry matches the 1304x984 tri-color panel in landscape.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Seoul",
		RefreshCron: "*/15 * * * *",
		HorizonDays: 7,
		LogLevel:    "info",
		CacheDir:    "/var/lib/epdtimeline/ics-cache",
		PreviewPath: "/var/lib/epdtimeline/preview.png",
		Timeline: TimelineConfig{
			StartHour:      7,
			EndHour:        22,
			PixelsPerHour:  62,
			Width:          1200,
			MinEventHeight: layout.DefaultMinHeight,
		},
		Capture: CaptureConfig{
			Width:          1304,
			Height:         984,
			TimeoutSeconds: 30,
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills zero values with defaults so partially written or older
// files still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.PreviewPath == "" {
		c.PreviewPath = def.PreviewPath
	}

	// StartHour 0 is a legitimate value and is left alone.
	if c.Timeline.EndHour == 0 {
		c.Timeline.EndHour = 24
	}
	if c.Timeline.PixelsPerHour == 0 {
		c.Timeline.PixelsPerHour = def.Timeline.PixelsPerHour
	}
	if c.Timeline.Width == 0 {
		c.Timeline.Width = def.Timeline.Width
	}
	if c.Timeline.MinEventHeight == 0 {
		c.Timeline.MinEventHeight = def.Timeline.MinEventHeight
	}

	if c.Capture.Width <= 0 {
		c.Capture.Width = def.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = def.Capture.Height
	}
	if c.Capture.TimeoutSeconds <= 0 {
		c.Capture.TimeoutSeconds = def.Capture.TimeoutSeconds
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate reports settings that would make every refresh fail.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
	}
	if err := c.Timeline.Options().Validate(c.Timeline.Width); err != nil {
		return fmt.Errorf("config: timeline: %w", err)
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads the YAML config at path. A missing file is created with
// defaults (0600) and those defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epdtimeline-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
