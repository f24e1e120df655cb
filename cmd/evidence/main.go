// Command evidence captures reproducible evidence bundles for the pages of
// a manifest: network records in logs/ and four checkpoint screenshots in
// screenshots/.
//
// Usage:
//
//	evidence                                  # capture ./review-links.json
//	evidence run --config evidence.yaml --continue-on-error
//	evidence fingerprint https://example.com/x -H Accept=text/html
//	evidence serve --addr :8090               # /health and /mcp over HTTP
//	evidence mcp                              # MCP over stdio
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/evidence/capture"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		newLogger(logLevel(root)).Error("evidence: fatal", "error", err)
		os.Exit(1)
	}
}

// runFlags are the capture overrides shared by run, serve and mcp.
type runFlags struct {
	config          string
	manifest        string
	logs            string
	screenshots     string
	continueOnError bool
	ledger          string
	transcripts     bool
	pdf             bool
	stealth         string
	remote          string
}

func newRootCmd() *cobra.Command {
	var f runFlags

	root := &cobra.Command{
		Use:   "evidence",
		Short: "Capture network records and checkpoint screenshots for a list of pages",
		Long: `evidence visits each URL of a JSON manifest in order, logs every
outgoing request and every application/text response as JSON under logs/,
and takes four screenshots per page (loaded, scrolled to the bottom,
wheel-scrolled, reloaded) under screenshots/.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapture(cmd, &f)
		},
	}
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	bindRunFlags(root, &f)

	run := &cobra.Command{
		Use:   "run",
		Short: "Capture every target of the manifest (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapture(cmd, &f)
		},
	}
	bindRunFlags(run, &f)

	root.AddCommand(run, newFingerprintCmd(), newServeCmd(), newMCPCmd())
	return root
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "path to evidence.yaml")
	fl.StringVar(&f.manifest, "manifest", "", "manifest path (default review-links.json)")
	fl.StringVar(&f.logs, "logs", "", "network records directory (default logs)")
	fl.StringVar(&f.screenshots, "screenshots", "", "screenshots directory (default screenshots)")
	fl.BoolVar(&f.continueOnError, "continue-on-error", false, "capture remaining targets after a failure")
	fl.StringVar(&f.ledger, "ledger", "", "SQLite run ledger path")
	fl.BoolVar(&f.transcripts, "transcripts", false, "write a Markdown transcript at each checkpoint")
	fl.BoolVar(&f.pdf, "pdf", false, "bundle the four screenshots into a PDF")
	fl.StringVar(&f.stealth, "stealth", "", "page mode: plain, headless, headful")
	fl.StringVar(&f.remote, "remote", "", "DevTools WebSocket URL of a running Chrome")
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(cmd *cobra.Command, f *runFlags) (*capture.Config, error) {
	cfg := capture.DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = capture.LoadConfigFile(f.config); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("manifest") {
		cfg.Manifest = f.manifest
	}
	if changed("logs") {
		cfg.Output.Logs = f.logs
	}
	if changed("screenshots") {
		cfg.Output.Screenshots = f.screenshots
	}
	if changed("continue-on-error") {
		cfg.Policy = "abort"
		if f.continueOnError {
			cfg.Policy = "continue"
		}
	}
	if changed("ledger") {
		cfg.Ledger = f.ledger
	}
	if changed("transcripts") {
		cfg.Transcripts = f.transcripts
	}
	if changed("pdf") {
		cfg.PDF = f.pdf
	}
	if changed("stealth") {
		cfg.Browser.Stealth = f.stealth
	}
	if changed("remote") {
		cfg.Browser.Remote = f.remote
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newService builds and starts a capture service from flags.
func newService(cmd *cobra.Command, f *runFlags, logger *slog.Logger) (*capture.Service, error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, err
	}
	sinks, err := capture.SinksFromConfig(cfg.Sinks, cmd.OutOrStdout(), logger)
	if err != nil {
		return nil, err
	}
	svc, err := capture.New(cfg, logger, sinks...)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(cmd.Context()); err != nil {
		svc.Stop()
		return nil, err
	}
	return svc, nil
}

func runCapture(cmd *cobra.Command, f *runFlags) error {
	logger := newLogger(logLevel(cmd))
	svc, err := newService(cmd, f, logger)
	if err != nil {
		return err
	}
	defer svc.Stop()

	report, err := svc.RunManifest(cmd.Context())
	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		logger.Warn("evidence: run finished with failures", "failed", n, "run_id", report.RunID)
	}
	return nil
}

func logLevel(cmd *cobra.Command) string {
	v, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return "info"
	}
	return v
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
