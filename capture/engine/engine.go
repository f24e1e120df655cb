// Package engine declares what the capture pipeline needs from a browser:
// page sessions that navigate, scroll, reload, take screenshots, wait for
// network idle and publish network events. The go-rod implementation lives
// in capture/internal/browser; tests use in-memory fakes.
package engine

import (
	"context"
	"errors"
)

// ErrIdleTimeout is returned by WaitNetworkIdle when the page never
// settles within the configured timeout.
var ErrIdleTimeout = errors.New("engine: network idle timeout")

// Request is an intercepted outgoing request. Values are captured when the
// event fires; accessors never block.
type Request interface {
	URL() string
	Method() string
	Headers() map[string]string
	// PostData returns the raw body and whether the request has one.
	PostData() (string, bool)
}

// Response is an incoming response.
type Response interface {
	URL() string
	Status() int
	Headers() map[string]string
	// Content blocks until the body is available and returns it. It fails
	// for bodies the engine cannot capture (redirects, streams, evicted
	// buffers) or once the session is closed.
	Content(ctx context.Context) ([]byte, error)
}

// Handlers receive network events. The session calls them from its event
// loop; they must return quickly and must not panic.
type Handlers struct {
	OnRequest  func(Request)
	OnResponse func(Response)
}

// Session is one open page.
type Session interface {
	// Subscribe registers handlers for the session's lifetime. Close
	// detaches them.
	Subscribe(h Handlers)
	SetViewport(ctx context.Context, width, height int) error
	Navigate(ctx context.Context, url string) error
	// WaitNetworkIdle blocks until fewer than below requests are in flight
	// for the session's quiet window, or fails with ErrIdleTimeout.
	WaitNetworkIdle(ctx context.Context, below int) error
	ScrollToBottom(ctx context.Context) error
	Wheel(ctx context.Context, deltaY float64) error
	Reload(ctx context.Context) error
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	// HTML returns the serialised document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser opens sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}
