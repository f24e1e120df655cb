package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/hazyhaar/evidence/capture/engine"
)

type fakeRequest struct {
	url, method string
	headers     map[string]string
	body        string
	hasBody     bool
}

func (r *fakeRequest) URL() string                { return r.url }
func (r *fakeRequest) Method() string             { return r.method }
func (r *fakeRequest) Headers() map[string]string { return r.headers }
func (r *fakeRequest) PostData() (string, bool)   { return r.body, r.hasBody }

type fakeResponse struct {
	url     string
	status  int
	headers map[string]string
	body    []byte
	bodyErr error
}

func (r *fakeResponse) URL() string                { return r.url }
func (r *fakeResponse) Status() int                { return r.status }
func (r *fakeResponse) Headers() map[string]string { return r.headers }
func (r *fakeResponse) Content(context.Context) ([]byte, error) {
	if r.bodyErr != nil {
		return nil, r.bodyErr
	}
	return r.body, nil
}

// fakeBrowser scripts sessions per target URL.
type fakeBrowser struct {
	mu       sync.Mutex
	calls    []string
	navErr   map[string]error // Navigate fails
	idleErr  map[string]error // first idle wait fails
	stepErr  map[string]error // keyed "reload", "wheel", "scroll", "screenshot"
	traffic  map[string][]any // events emitted on Navigate, *fakeRequest or *fakeResponse
	html     string
	shot     func(n int) []byte
	sessions int
	open     int
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		navErr:  map[string]error{},
		idleErr: map[string]error{},
		stepErr: map[string]error{},
		traffic: map[string][]any{},
		html:    "<html><head><title>Review</title></head><body><h1>Hello</h1></body></html>",
		shot:    func(int) []byte { return testPNG() },
	}
}

func (b *fakeBrowser) record(format string, args ...any) {
	b.mu.Lock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
	b.mu.Unlock()
}

func (b *fakeBrowser) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBrowser) NewSession(context.Context) (engine.Session, error) {
	b.mu.Lock()
	b.sessions++
	b.open++
	b.mu.Unlock()
	b.record("open")
	return &fakeSession{b: b}, nil
}

type fakeSession struct {
	b      *fakeBrowser
	mu     sync.Mutex
	h      engine.Handlers
	url    string
	shots  int
	closed bool
}

func (s *fakeSession) Subscribe(h engine.Handlers) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

func (s *fakeSession) SetViewport(_ context.Context, w, h int) error {
	s.b.record("viewport %dx%d", w, h)
	return nil
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.b.record("navigate %s", url)
	s.url = url
	if err := s.b.navErr[url]; err != nil {
		return err
	}
	s.mu.Lock()
	h := s.h
	s.mu.Unlock()
	for _, ev := range s.b.traffic[url] {
		switch ev := ev.(type) {
		case *fakeRequest:
			if h.OnRequest != nil {
				h.OnRequest(ev)
			}
		case *fakeResponse:
			if h.OnResponse != nil {
				h.OnResponse(ev)
			}
		}
	}
	return nil
}

func (s *fakeSession) WaitNetworkIdle(_ context.Context, below int) error {
	s.b.record("idle %d", below)
	if below == 2 {
		return s.b.idleErr[s.url]
	}
	return nil
}

func (s *fakeSession) ScrollToBottom(context.Context) error {
	s.b.record("scroll")
	return s.b.stepErr["scroll"]
}

func (s *fakeSession) Wheel(_ context.Context, dy float64) error {
	s.b.record("wheel %.0f", dy)
	return s.b.stepErr["wheel"]
}

func (s *fakeSession) Reload(context.Context) error {
	s.b.record("reload")
	return s.b.stepErr["reload"]
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	s.b.record("screenshot")
	if err := s.b.stepErr["screenshot"]; err != nil {
		return nil, err
	}
	n := s.shots
	s.shots++
	return s.b.shot(n), nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	return s.b.html, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("fake: closed twice")
	}
	s.closed = true
	s.h = engine.Handlers{}
	s.b.mu.Lock()
	s.b.open--
	s.b.mu.Unlock()
	s.b.record("close")
	return nil
}

func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
