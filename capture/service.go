// Package capture records reproducible evidence of web pages. For each
// target of a manifest it logs the page's network traffic as JSON records
// and takes four screenshots at fixed interaction checkpoints: initial
// load, scrolled to the bottom, wheel-scrolled, and reloaded.
//
// capture records, it does not interpret. Records are written to the logs
// directory, checkpoints to the screenshots directory, and per-target
// outcomes are emitted to sinks (stdout, webhook, ledger, callback).
package capture

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/evidence/capture/artifact"
	"github.com/hazyhaar/evidence/capture/engine"
	"github.com/hazyhaar/evidence/capture/internal/browser"
	"github.com/hazyhaar/evidence/capture/internal/sink"
	"github.com/hazyhaar/evidence/dbopen"
	"github.com/hazyhaar/evidence/fingerprint"
	"github.com/hazyhaar/evidence/observability"
)

// Service is the top-level orchestrator. It owns the browser, the output
// store and the sinks. Runs are serialised: at most one page session is
// open at a time.
type Service struct {
	cfg    *Config
	mgr    *browser.Manager // nil when the browser is injected
	store  *Store
	namer  *fingerprint.Namer
	seq    *Sequencer
	sinkR  *sink.Router
	ledger *observability.Ledger
	db     *sql.DB
	logger *slog.Logger

	mu sync.Mutex
}

// New creates a Service driving Chrome through go-rod.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	level, err := browser.ParseStealth(cfg.Browser.Stealth)
	if err != nil {
		return nil, err
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		Stealth:          level,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		IgnoreCertErrors: cfg.Browser.IgnoreCertErrors,
		Quiet:            cfg.Idle.Quiet,
		IdleTimeout:      cfg.Idle.Timeout,
		BodyTimeout:      cfg.Idle.BodyTimeout,
		Logger:           logger,
	})
	s, err := NewWithBrowser(cfg, mgr, logger, sinks...)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	s.mgr = mgr
	return s, nil
}

// NewWithBrowser creates a Service over any engine.Browser.
func NewWithBrowser(cfg *Config, b engine.Browser, logger *slog.Logger, sinks ...Sink) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	newHash, err := fingerprint.HashByName(cfg.Fingerprint.Hash)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		store:  NewStore(cfg.Output.Logs, cfg.Output.Screenshots),
		namer:  fingerprint.New(fingerprint.WithHash(newHash)),
		logger: logger,
	}

	if cfg.Ledger != "" {
		db, err := dbopen.Open(cfg.Ledger, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
		if err != nil {
			return nil, fmt.Errorf("capture: open ledger: %w", err)
		}
		s.db = db
		s.ledger = observability.NewLedger(db, observability.WithLogger(logger))
		sinks = append(sinks, sink.NewLedger(s.ledger))
	}
	s.sinkR = sink.NewRouter(logger, sinks...)

	var tr *Transcriber
	if cfg.Transcripts {
		tr = NewTranscriber()
	}
	s.seq = NewSequencer(SequencerConfig{
		Browser:       b,
		Store:         s.store,
		Namer:         s.namer,
		Width:         cfg.Viewport.Width,
		Height:        cfg.Viewport.Height,
		NavigateBelow: cfg.Idle.NavigateBelow,
		ScrollBelow:   cfg.Idle.ScrollBelow,
		Transcriber:   tr,
		PDF:           cfg.PDF,
		Logger:        logger,
		OnDrop: func(d artifact.Drop) {
			s.sinkR.SendDrop(context.Background(), d)
		},
	})
	return s, nil
}

// Start launches the browser, if the Service owns one.
func (s *Service) Start(ctx context.Context) error {
	if s.mgr == nil {
		return nil
	}
	if err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("capture: start browser: %w", err)
	}
	return nil
}

// Run captures targets under the configured failure policy.
func (s *Service) Run(ctx context.Context, targets []Target) (*artifact.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := NewRunner(RunnerConfig{
		Sequencer: s.seq,
		Store:     s.store,
		Sink:      s.sinkR,
		Policy:    artifact.Policy(s.cfg.Policy),
		Manifest:  s.cfg.Manifest,
		Logger:    s.logger,
	})
	return r.Run(ctx, targets)
}

// RunManifest loads the configured manifest and runs it.
func (s *Service) RunManifest(ctx context.Context) (*artifact.Report, error) {
	targets, err := LoadManifest(s.cfg.Manifest)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, targets)
}

// CaptureOne captures a single URL as a one-target run.
func (s *Service) CaptureOne(ctx context.Context, rawURL string) (*artifact.Report, error) {
	t, err := ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, []Target{t})
}

// Fingerprint names a URL the way the recorder would.
func (s *Service) Fingerprint(rawURL string, headers map[string]string) (string, error) {
	return s.namer.Filename(rawURL, headers)
}

// Ledger returns the run ledger, or nil when it is disabled.
func (s *Service) Ledger() *observability.Ledger {
	return s.ledger
}

// Stop closes the sinks, the ledger and the browser.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.sinkR.Close()
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if s.mgr != nil {
		s.mgr.Close()
	}
	return err
}
