package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/evidence/capture/engine"
)

var (
	errRedirectBody  = errors.New("browser: response body is unavailable for redirect responses")
	errSessionClosed = errors.New("browser: session closed")
)

// session wraps one Rod page: it tracks in-flight requests for idle waits
// and forwards network events to the subscribed handlers.
type session struct {
	page   *rod.Page
	cfg    Config
	idle   *idleTracker
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	handlers engine.Handlers
	bodies   map[proto.NetworkRequestID]chan struct{}
}

var _ engine.Session = (*session)(nil)

func openSession(ctx context.Context, b *rod.Browser, cfg Config) (*session, error) {
	var page *rod.Page
	var err error

	if cfg.Stealth >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		page:   page,
		cfg:    cfg,
		idle:   newIdleTracker(),
		ctx:    sctx,
		cancel: cancel,
		bodies: make(map[proto.NetworkRequestID]chan struct{}),
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		cancel()
		page.Close()
		return nil, fmt.Errorf("browser: enable network: %w", err)
	}

	wait := page.Context(sctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) { s.onRequestWillBeSent(e) },
		func(e *proto.NetworkResponseReceived) { s.onResponseReceived(e) },
		func(e *proto.NetworkLoadingFinished) { s.onLoadingDone(e.RequestID) },
		func(e *proto.NetworkLoadingFailed) { s.onLoadingDone(e.RequestID) },
	)
	go wait()

	return s, nil
}

func (s *session) Subscribe(h engine.Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

func (s *session) SetViewport(ctx context.Context, width, height int) error {
	return s.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

func (s *session) Navigate(ctx context.Context, url string) error {
	return s.page.Context(ctx).Navigate(url)
}

func (s *session) WaitNetworkIdle(ctx context.Context, below int) error {
	return s.idle.wait(ctx, below, s.cfg.Quiet, s.cfg.IdleTimeout)
}

func (s *session) ScrollToBottom(ctx context.Context) error {
	_, err := s.page.Context(ctx).Eval(`() => { window.scrollTo(0, document.body.scrollHeight); }`)
	return err
}

func (s *session) Wheel(ctx context.Context, deltaY float64) error {
	return s.page.Context(ctx).Mouse.Scroll(0, deltaY, 1)
}

func (s *session) Reload(ctx context.Context) error {
	return s.page.Context(ctx).Reload()
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (s *session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close detaches the handlers, stops the event loop and closes the page.
// Pending Content calls fail with errSessionClosed.
func (s *session) Close() error {
	s.detach()
	return s.page.Close()
}

func (s *session) detach() {
	s.mu.Lock()
	s.handlers = engine.Handlers{}
	s.mu.Unlock()
	s.cancel()
}

func (s *session) onRequestWillBeSent(e *proto.NetworkRequestWillBeSent) {
	s.idle.started(string(e.RequestID))

	s.mu.RLock()
	h := s.handlers
	s.mu.RUnlock()

	if e.RedirectResponse != nil && h.OnResponse != nil {
		h.OnResponse(&response{
			s:        s,
			id:       e.RequestID,
			url:      e.RedirectResponse.URL,
			status:   e.RedirectResponse.Status,
			headers:  headerMap(e.RedirectResponse.Headers),
			redirect: true,
		})
	}
	if h.OnRequest != nil && e.Request != nil {
		h.OnRequest(&request{
			s:       s,
			id:      e.RequestID,
			url:     e.Request.URL + e.Request.URLFragment,
			method:  e.Request.Method,
			headers: headerMap(e.Request.Headers),
			body:    e.Request.PostData,
			hasBody: e.Request.HasPostData || e.Request.PostData != "",
		})
	}
}

func (s *session) onResponseReceived(e *proto.NetworkResponseReceived) {
	if e.Response == nil {
		return
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.bodies[e.RequestID] = done
	h := s.handlers
	s.mu.Unlock()

	if h.OnResponse == nil {
		return
	}
	h.OnResponse(&response{
		s:       s,
		id:      e.RequestID,
		url:     e.Response.URL,
		status:  e.Response.Status,
		headers: headerMap(e.Response.Headers),
		done:    done,
	})
}

func (s *session) onLoadingDone(id proto.NetworkRequestID) {
	s.idle.finished(string(id))

	s.mu.Lock()
	if done, ok := s.bodies[id]; ok {
		close(done)
		delete(s.bodies, id)
	}
	s.mu.Unlock()
}

func headerMap(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

type request struct {
	s       *session
	id      proto.NetworkRequestID
	url     string
	method  string
	headers map[string]string
	body    string
	hasBody bool

	once sync.Once
}

func (r *request) URL() string                { return r.url }
func (r *request) Method() string             { return r.method }
func (r *request) Headers() map[string]string { return r.headers }

// PostData fetches bodies Chrome left out of the event (large or
// multipart) on first use.
func (r *request) PostData() (string, bool) {
	r.once.Do(func() {
		if !r.hasBody || r.body != "" {
			return
		}
		res, err := proto.NetworkGetRequestPostData{RequestID: r.id}.Call(r.s.page.Context(r.s.ctx))
		if err != nil {
			r.s.cfg.Logger.Debug("browser: post data unavailable", "url", r.url, "error", err)
			return
		}
		r.body = res.PostData
	})
	return r.body, r.hasBody
}

type response struct {
	s        *session
	id       proto.NetworkRequestID
	url      string
	status   int
	headers  map[string]string
	redirect bool
	done     chan struct{}
}

func (r *response) URL() string                { return r.url }
func (r *response) Status() int                { return r.status }
func (r *response) Headers() map[string]string { return r.headers }

func (r *response) Content(ctx context.Context) ([]byte, error) {
	if r.redirect {
		return nil, errRedirectBody
	}

	ctx, cancel := context.WithTimeout(ctx, r.s.cfg.BodyTimeout)
	defer cancel()

	select {
	case <-r.done:
	case <-r.s.ctx.Done():
		return nil, errSessionClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("browser: await body: %w", ctx.Err())
	}

	res, err := proto.NetworkGetResponseBody{RequestID: r.id}.Call(r.s.page.Context(r.s.ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: get body: %w", err)
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}
