package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/evidence/capture/engine"
)

// newEventSession builds a session without a page. Only the event
// handlers and the paths that never reach CDP can be exercised on it.
func newEventSession(t *testing.T, bodyTimeout time.Duration) *session {
	t.Helper()
	cfg := Config{BodyTimeout: bodyTimeout}
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &session{
		cfg:    cfg,
		idle:   newIdleTracker(),
		ctx:    ctx,
		cancel: cancel,
		bodies: make(map[proto.NetworkRequestID]chan struct{}),
	}
}

type captured struct {
	mu        sync.Mutex
	order     []string
	requests  []engine.Request
	responses []engine.Response
}

func (c *captured) handlers() engine.Handlers {
	return engine.Handlers{
		OnRequest: func(r engine.Request) {
			c.mu.Lock()
			c.order = append(c.order, "request "+r.URL())
			c.requests = append(c.requests, r)
			c.mu.Unlock()
		},
		OnResponse: func(r engine.Response) {
			c.mu.Lock()
			c.order = append(c.order, "response "+r.URL())
			c.responses = append(c.responses, r)
			c.mu.Unlock()
		},
	}
}

func TestSession_RequestWillBeSent(t *testing.T) {
	tests := []struct {
		name      string
		event     *proto.NetworkRequestWillBeSent
		wantOrder []string
		wantBody  string
		wantHas   bool
	}{
		{
			name: "plain get",
			event: &proto.NetworkRequestWillBeSent{
				RequestID: "1",
				Request: &proto.NetworkRequest{
					URL: "https://api.example.com/a", Method: "GET",
					Headers: proto.NetworkHeaders{"Accept": gson.New("*/*")},
				},
			},
			wantOrder: []string{"request https://api.example.com/a"},
		},
		{
			name: "inline post body and fragment",
			event: &proto.NetworkRequestWillBeSent{
				RequestID: "2",
				Request: &proto.NetworkRequest{
					URL: "https://api.example.com/b", URLFragment: "#top", Method: "POST",
					PostData: `{"q":1}`, HasPostData: true,
				},
			},
			wantOrder: []string{"request https://api.example.com/b#top"},
			wantBody:  `{"q":1}`,
			wantHas:   true,
		},
		{
			name: "redirect hop emits the previous response first",
			event: &proto.NetworkRequestWillBeSent{
				RequestID: "3",
				Request:   &proto.NetworkRequest{URL: "https://site.example/new", Method: "GET"},
				RedirectResponse: &proto.NetworkResponse{
					URL: "https://site.example/old", Status: 301,
					Headers: proto.NetworkHeaders{"Location": gson.New("/new")},
				},
			},
			wantOrder: []string{"response https://site.example/old", "request https://site.example/new"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newEventSession(t, time.Second)
			var c captured
			s.Subscribe(c.handlers())

			s.onRequestWillBeSent(tt.event)

			if len(c.order) != len(tt.wantOrder) {
				t.Fatalf("events: got %v, want %v", c.order, tt.wantOrder)
			}
			for i := range tt.wantOrder {
				if c.order[i] != tt.wantOrder[i] {
					t.Errorf("event %d: got %q, want %q", i, c.order[i], tt.wantOrder[i])
				}
			}
			if s.idle.count() != 1 {
				t.Errorf("in flight: %d, want 1", s.idle.count())
			}
			body, has := c.requests[0].PostData()
			if body != tt.wantBody || has != tt.wantHas {
				t.Errorf("PostData = %q, %v; want %q, %v", body, has, tt.wantBody, tt.wantHas)
			}
		})
	}
}

func TestSession_RedirectResponseHasNoBody(t *testing.T) {
	s := newEventSession(t, time.Second)
	var c captured
	s.Subscribe(c.handlers())

	s.onRequestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID:        "r",
		Request:          &proto.NetworkRequest{URL: "https://site.example/new", Method: "GET"},
		RedirectResponse: &proto.NetworkResponse{URL: "https://site.example/old", Status: 302},
	})

	resp := c.responses[0]
	if resp.Status() != 302 || resp.Headers() == nil {
		t.Errorf("redirect response: status %d headers %v", resp.Status(), resp.Headers())
	}
	body, err := resp.Content(context.Background())
	if !errors.Is(err, errRedirectBody) || len(body) != 0 {
		t.Errorf("Content = %q, %v; want empty, errRedirectBody", body, err)
	}
}

func TestSession_ContentFailsAfterDetach(t *testing.T) {
	s := newEventSession(t, 5*time.Second)
	var c captured
	s.Subscribe(c.handlers())

	s.onResponseReceived(&proto.NetworkResponseReceived{
		RequestID: "7",
		Response: &proto.NetworkResponse{
			URL: "https://api.example.com/slow", Status: 200,
			Headers: proto.NetworkHeaders{"Content-Type": gson.New("application/text")},
		},
	})
	if len(c.responses) != 1 {
		t.Fatalf("responses: %d", len(c.responses))
	}
	if got := c.responses[0].Headers()["Content-Type"]; got != "application/text" {
		t.Errorf("header: %q", got)
	}

	errc := make(chan error, 1)
	go func() {
		body, err := c.responses[0].Content(context.Background())
		if len(body) != 0 {
			err = errors.New("unexpected body")
		}
		errc <- err
	}()

	s.detach()

	select {
	case err := <-errc:
		if !errors.Is(err, errSessionClosed) {
			t.Errorf("Content: got %v, want errSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Content did not return after the session closed")
	}

	// Handlers are gone: later events reach nobody.
	s.onResponseReceived(&proto.NetworkResponseReceived{
		RequestID: "8",
		Response:  &proto.NetworkResponse{URL: "https://api.example.com/late", Status: 200},
	})
	if len(c.responses) != 1 {
		t.Errorf("late event delivered: %d responses", len(c.responses))
	}
}

func TestSession_ContentTimesOutWithoutLoadingFinished(t *testing.T) {
	s := newEventSession(t, 30*time.Millisecond)
	var c captured
	s.Subscribe(c.handlers())

	s.onResponseReceived(&proto.NetworkResponseReceived{
		RequestID: "9",
		Response:  &proto.NetworkResponse{URL: "https://api.example.com/stuck", Status: 200},
	})

	_, err := c.responses[0].Content(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Content: got %v, want deadline exceeded", err)
	}
}

func TestSession_LoadingDoneReleasesBodyAndIdle(t *testing.T) {
	s := newEventSession(t, time.Second)
	var c captured
	s.Subscribe(c.handlers())

	s.onRequestWillBeSent(&proto.NetworkRequestWillBeSent{
		RequestID: "5",
		Request:   &proto.NetworkRequest{URL: "https://api.example.com/x", Method: "GET"},
	})
	s.onResponseReceived(&proto.NetworkResponseReceived{
		RequestID: "5",
		Response:  &proto.NetworkResponse{URL: "https://api.example.com/x", Status: 200},
	})
	done := c.responses[0].(*response).done

	s.onLoadingDone("5")

	select {
	case <-done:
	default:
		t.Error("body channel not closed by loadingFinished")
	}
	if s.idle.count() != 0 {
		t.Errorf("in flight: %d, want 0", s.idle.count())
	}
	s.mu.RLock()
	pending := len(s.bodies)
	s.mu.RUnlock()
	if pending != 0 {
		t.Errorf("pending bodies: %d", pending)
	}

	// A second loadingFailed for the same id is harmless.
	s.onLoadingDone("5")
}

func TestSession_ResponseWithoutPayloadIgnored(t *testing.T) {
	s := newEventSession(t, time.Second)
	var c captured
	s.Subscribe(c.handlers())
	s.onResponseReceived(&proto.NetworkResponseReceived{RequestID: "0"})
	if len(c.responses) != 0 {
		t.Errorf("responses: %d", len(c.responses))
	}
}
