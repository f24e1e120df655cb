// Package config handles capture configuration from YAML files. A missing
// file is not an error for callers that start from Default(): every field
// has a default matching the original batch behaviour.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level capture configuration.
type Config struct {
	Manifest    string            `yaml:"manifest"`
	Output      OutputConfig      `yaml:"output"`
	Policy      string            `yaml:"policy"` // abort | continue
	Viewport    ViewportConfig    `yaml:"viewport"`
	Idle        IdleConfig        `yaml:"idle"`
	Browser     BrowserConfig     `yaml:"browser"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Transcripts bool              `yaml:"transcripts"`
	PDF         bool              `yaml:"pdf"`
	Ledger      string            `yaml:"ledger"` // SQLite path, empty = off
	Sinks       []SinkConfig      `yaml:"sinks"`
}

// OutputConfig names the artifact directories.
type OutputConfig struct {
	Logs        string `yaml:"logs"`
	Screenshots string `yaml:"screenshots"`
}

// ViewportConfig is the rendering viewport.
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// IdleConfig controls network-idle waits. The navigate wait is idle with
// fewer than NavigateBelow requests in flight, the post-scroll wait with
// fewer than ScrollBelow.
type IdleConfig struct {
	NavigateBelow int           `yaml:"navigate_below"`
	ScrollBelow   int           `yaml:"scroll_below"`
	Quiet         time.Duration `yaml:"quiet"`
	Timeout       time.Duration `yaml:"timeout"`
	BodyTimeout   time.Duration `yaml:"body_timeout"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string `yaml:"remote"`
	Bin              string `yaml:"bin"`
	Stealth          string `yaml:"stealth"` // plain | headless | headful
	XvfbDisplay      string `yaml:"xvfb_display"`
	IgnoreCertErrors bool   `yaml:"ignore_cert_errors"`
}

// FingerprintConfig selects the fingerprint hash.
type FingerprintConfig struct {
	Hash string `yaml:"hash"` // sha256 | blake2b
}

// SinkConfig defines a report output.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot honour.
func (c *Config) Validate() error {
	switch c.Policy {
	case "abort", "continue":
	default:
		return fmt.Errorf("config: policy must be abort or continue, got %q", c.Policy)
	}
	switch c.Fingerprint.Hash {
	case "sha256", "blake2b":
	default:
		return fmt.Errorf("config: unknown fingerprint hash %q", c.Fingerprint.Hash)
	}
	switch c.Browser.Stealth {
	case "plain", "headless", "headful":
	default:
		return fmt.Errorf("config: unknown stealth level %q", c.Browser.Stealth)
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("config: viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	for _, s := range c.Sinks {
		if s.Type == "webhook" && s.URL == "" {
			return fmt.Errorf("config: webhook sink needs a url")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Manifest == "" {
		c.Manifest = "review-links.json"
	}
	if c.Output.Logs == "" {
		c.Output.Logs = "logs"
	}
	if c.Output.Screenshots == "" {
		c.Output.Screenshots = "screenshots"
	}
	if c.Policy == "" {
		c.Policy = "abort"
	}
	if c.Viewport.Width == 0 {
		c.Viewport.Width = 2560
	}
	if c.Viewport.Height == 0 {
		c.Viewport.Height = 1600
	}
	if c.Idle.NavigateBelow <= 0 {
		c.Idle.NavigateBelow = 2
	}
	if c.Idle.ScrollBelow <= 0 {
		c.Idle.ScrollBelow = 1
	}
	if c.Idle.Quiet <= 0 {
		c.Idle.Quiet = 500 * time.Millisecond
	}
	if c.Idle.Timeout <= 0 {
		c.Idle.Timeout = 30 * time.Second
	}
	if c.Idle.BodyTimeout <= 0 {
		c.Idle.BodyTimeout = 10 * time.Second
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "plain"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Fingerprint.Hash == "" {
		c.Fingerprint.Hash = "sha256"
	}
}
