package capture

import (
	"github.com/hazyhaar/evidence/capture/internal/config"
)

// Config is the top-level capture configuration. Re-exported from internal.
type Config = config.Config

// OutputConfig names the artifact directories.
type OutputConfig = config.OutputConfig

// ViewportConfig is the rendering viewport.
type ViewportConfig = config.ViewportConfig

// IdleConfig controls network-idle waits.
type IdleConfig = config.IdleConfig

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// SinkConfig defines a report output.
type SinkConfig = config.SinkConfig

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
