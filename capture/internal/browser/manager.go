// Package browser is the go-rod implementation of the capture engine. A
// Manager owns one Chrome process (local via launcher or remote via its
// DevTools URL) for the duration of a run; each target gets its own page
// session.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/evidence/capture/engine"
)

// StealthLevel controls how pages are opened.
type StealthLevel int

const (
	LevelPlain    StealthLevel = 0 // plain headless page
	LevelHeadless StealthLevel = 1 // headless + stealth evasions
	LevelHeadful  StealthLevel = 2 // headful + stealth under Xvfb
)

// ParseStealth maps a config value to a StealthLevel.
func ParseStealth(s string) (StealthLevel, error) {
	switch s {
	case "", "plain", "none":
		return LevelPlain, nil
	case "headless", "stealth":
		return LevelHeadless, nil
	case "headful":
		return LevelHeadful, nil
	}
	return LevelPlain, fmt.Errorf("browser: unknown stealth level %q", s)
}

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome binary for local launches. Empty lets launcher
	// find or download one.
	Bin string

	Stealth StealthLevel

	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	IgnoreCertErrors bool

	// Quiet is how long the in-flight count must stay under the threshold
	// before the network counts as idle. Default: 500ms.
	Quiet time.Duration

	// IdleTimeout bounds each WaitNetworkIdle call. Default: 30s.
	IdleTimeout time.Duration

	// BodyTimeout bounds how long a response body is awaited. Default: 10s.
	BodyTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Quiet <= 0 {
		c.Quiet = 500 * time.Millisecond
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.BodyTimeout <= 0 {
		c.BodyTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages the Chrome lifecycle and implements engine.Browser.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	closed  bool
}

var _ engine.Browser = (*Manager)(nil)

// NewManager creates a Manager. Call Start before opening sessions.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome, or connects to the remote instance.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		m.cleanup()
		return err
	}
	m.browser = b
	return nil
}

// NewSession opens a fresh page.
func (m *Manager) NewSession(ctx context.Context) (engine.Session, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	return openSession(ctx, b, m.cfg)
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Stealth == LevelHeadful && m.cfg.RemoteURL == "" {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}

		if m.cfg.Stealth == LevelHeadful {
			l = l.Headless(false).Env("DISPLAY=" + m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		if m.cfg.Stealth != LevelPlain {
			l = l.Set("disable-blink-features", "AutomationControlled")
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if m.cfg.IgnoreCertErrors {
		if err := b.IgnoreCertErrors(true); err != nil {
			log.Warn("browser: ignore cert errors failed", "error", err)
		}
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}
