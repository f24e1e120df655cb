package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hazyhaar/evidence/capture/artifact"
	"github.com/hazyhaar/evidence/capture/engine"
	"github.com/hazyhaar/evidence/fingerprint"
)

// NavigationError means the target could not be loaded: the navigation
// failed or the page never reached network idle.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("capture: navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// StepError is any other failure during a capture. Step is the last state
// fully reached before Op failed.
type StepError struct {
	URL  string
	Step artifact.Step
	Op   string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("capture: %s after %s on %s: %v", e.Op, e.Step, e.URL, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// SequencerConfig configures a Sequencer.
type SequencerConfig struct {
	Browser engine.Browser
	Store   *Store
	Namer   *fingerprint.Namer

	Width, Height int

	// NavigateBelow and ScrollBelow are the in-flight thresholds of the
	// idle waits after navigation and after scrolling to the bottom.
	NavigateBelow int
	ScrollBelow   int

	Transcriber *Transcriber // nil disables transcripts
	PDF         bool

	Logger *slog.Logger
	OnDrop func(artifact.Drop)
}

func (c *SequencerConfig) defaults() {
	if c.Width <= 0 {
		c.Width = 2560
	}
	if c.Height <= 0 {
		c.Height = 1600
	}
	if c.NavigateBelow <= 0 {
		c.NavigateBelow = 2
	}
	if c.ScrollBelow <= 0 {
		c.ScrollBelow = 1
	}
	if c.Namer == nil {
		c.Namer = fingerprint.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Sequencer drives one target through the capture states:
// init, navigated, scrolled to bottom, wheel-scrolled, reloaded, done.
// A screenshot is taken at each of the four middle states.
type Sequencer struct {
	cfg SequencerConfig
}

// NewSequencer creates a Sequencer.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	cfg.defaults()
	return &Sequencer{cfg: cfg}
}

// Capture runs the state machine for t. The outcome is always filled in,
// also on error; errors are *NavigationError or *StepError.
func (s *Sequencer) Capture(ctx context.Context, runID string, seq int, t Target) (artifact.Outcome, error) {
	out := artifact.Outcome{
		RunID:       runID,
		Seq:         seq,
		URL:         t.URL,
		MentionID:   t.MentionID,
		Status:      artifact.StatusFailed,
		Step:        artifact.StepInit,
		Screenshots: []string{},
		StartedAt:   time.Now(),
	}

	err := s.run(ctx, t, &out)
	out.FinishedAt = time.Now()
	if err != nil {
		out.Error = err.Error()
		return out, err
	}
	out.Status = artifact.StatusOK
	return out, nil
}

func (s *Sequencer) run(ctx context.Context, t Target, out *artifact.Outcome) error {
	log := s.cfg.Logger.With("url", t.URL)

	fail := func(op string, cause error) error {
		return &StepError{URL: t.URL, Step: out.Step, Op: op, Err: cause}
	}

	sess, err := s.cfg.Browser.NewSession(ctx)
	if err != nil {
		return fail("open session", err)
	}

	rec := NewRecorder(t, s.cfg.Store, s.cfg.Namer, s.cfg.Logger,
		WithDropHandler(s.cfg.OnDrop), WithRecorderRunID(out.RunID))
	sess.Subscribe(rec.Handlers(ctx))

	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		if cerr := sess.Close(); cerr != nil {
			log.Warn("capture: close session", "error", cerr)
		}
		rec.Wait()
		st := rec.Stats()
		out.Requests, out.Responses, out.Dropped = st.Requests, st.Responses, st.Dropped
	}
	defer closeSession()

	if err := sess.SetViewport(ctx, s.cfg.Width, s.cfg.Height); err != nil {
		return fail("set viewport", err)
	}

	if err := sess.Navigate(ctx, t.URL); err != nil {
		return &NavigationError{URL: t.URL, Err: err}
	}
	if err := sess.WaitNetworkIdle(ctx, s.cfg.NavigateBelow); err != nil {
		return &NavigationError{URL: t.URL, Err: err}
	}
	out.Step = artifact.StepNavigated
	log.Debug("capture: navigated")

	slug := t.Slug()
	checkpoint := func(n int) error {
		png, err := sess.Screenshot(ctx)
		if err != nil {
			return fail("screenshot "+strconv.Itoa(n), err)
		}
		path, err := s.cfg.Store.WriteScreenshot(slug+"-"+strconv.Itoa(n)+".png", png)
		if err != nil {
			return fail("screenshot "+strconv.Itoa(n), err)
		}
		out.Screenshots = append(out.Screenshots, path)
		s.annotate(ctx, sess, t, n, out, log)
		return nil
	}

	if err := checkpoint(0); err != nil {
		return err
	}

	if err := sess.ScrollToBottom(ctx); err != nil {
		return fail("scroll to bottom", err)
	}
	if err := sess.WaitNetworkIdle(ctx, s.cfg.ScrollBelow); err != nil {
		return fail("wait network idle", err)
	}
	out.Step = artifact.StepScrolledBottom
	if err := checkpoint(1); err != nil {
		return err
	}

	if err := sess.Wheel(ctx, float64(s.cfg.Height)); err != nil {
		return fail("mouse wheel", err)
	}
	out.Step = artifact.StepWheelScrolled
	if err := checkpoint(2); err != nil {
		return err
	}

	// The last screenshot follows the reload without an idle wait.
	if err := sess.Reload(ctx); err != nil {
		return fail("reload", err)
	}
	out.Step = artifact.StepReloaded
	if err := checkpoint(3); err != nil {
		return err
	}

	closeSession()
	out.Step = artifact.StepDone

	if s.cfg.PDF {
		pdf, err := s.cfg.Store.ScreenshotPath(slug + ".pdf")
		if err == nil {
			err = BundlePDF(out.Screenshots, pdf)
		}
		if err != nil {
			log.Warn("capture: pdf bundle failed", "error", err)
		} else {
			out.Bundle = pdf
		}
	}
	return nil
}

// annotate records the page title at the first checkpoint and writes the
// checkpoint transcript when enabled. Failures are logged only.
func (s *Sequencer) annotate(ctx context.Context, sess engine.Session, t Target, n int, out *artifact.Outcome, log *slog.Logger) {
	if n != 0 && s.cfg.Transcriber == nil {
		return
	}
	doc, err := sess.HTML(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("capture: read document failed", "checkpoint", n, "error", err)
		}
		return
	}
	if n == 0 {
		out.Title = PageTitle(doc)
	}
	if s.cfg.Transcriber == nil {
		return
	}
	md, err := s.cfg.Transcriber.Markdown(doc, t.URL)
	if err != nil {
		log.Warn("capture: transcript failed", "checkpoint", n, "error", err)
		return
	}
	path, err := s.cfg.Store.WriteScreenshot(t.Slug()+"-"+strconv.Itoa(n)+".md", []byte(md))
	if err != nil {
		log.Warn("capture: write transcript failed", "checkpoint", n, "error", err)
		return
	}
	out.Transcripts = append(out.Transcripts, path)
}
