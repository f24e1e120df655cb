package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/evidence/capture/artifact"
	"github.com/hazyhaar/evidence/capture/engine"
	"github.com/hazyhaar/evidence/fingerprint"
)

// contentTypePrefix is the only response Content-Type that gets logged.
const contentTypePrefix = "application/text"

// RecorderStats counts what a Recorder did.
type RecorderStats struct {
	Requests  int // request records written
	Responses int // response records written
	Skipped   int // responses filtered out by Content-Type
	Dropped   int // records lost to a failure
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithDropHandler is called once per dropped record.
func WithDropHandler(fn func(artifact.Drop)) RecorderOption {
	return func(r *Recorder) { r.onDrop = fn }
}

// WithRecorderRunID tags drops with the run they belong to.
func WithRecorderRunID(id string) RecorderOption {
	return func(r *Recorder) { r.runID = id }
}

// Recorder turns one target's network events into JSON records in the logs
// directory. Handlers run on their own goroutines; failures are logged and
// counted, never returned to the engine.
type Recorder struct {
	target Target
	store  *Store
	namer  *fingerprint.Namer
	logger *slog.Logger
	onDrop func(artifact.Drop)
	runID  string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	requests, responses, skipped, dropped atomic.Int64
}

// NewRecorder creates a Recorder for target.
func NewRecorder(target Target, store *Store, namer *fingerprint.Namer, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{target: target, store: store, namer: namer, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handlers returns engine handlers that dispatch each event to a goroutine.
// Response bodies are fetched with ctx.
func (r *Recorder) Handlers(ctx context.Context) engine.Handlers {
	return engine.Handlers{
		OnRequest: func(req engine.Request) {
			r.spawn("request", req.URL(), func() { r.OnRequest(ctx, req) })
		},
		OnResponse: func(resp engine.Response) {
			r.spawn("response", resp.URL(), func() { r.OnResponse(ctx, resp) })
		},
	}
}

// Wait blocks until every handler goroutine has finished. Events delivered
// after Wait starts are ignored.
func (r *Recorder) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

// Stats returns the counters so far.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Requests:  int(r.requests.Load()),
		Responses: int(r.responses.Load()),
		Skipped:   int(r.skipped.Load()),
		Dropped:   int(r.dropped.Load()),
	}
}

func (r *Recorder) spawn(kind, url string, fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Debug("capture: event after close ignored", "kind", kind, "url", url)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.drop(kind, url, fmt.Errorf("panic: %v", p))
			}
		}()
		fn()
	}()
}

// OnRequest writes logs/mention-id-<id>-<fingerprint>.request.json.
func (r *Recorder) OnRequest(ctx context.Context, req engine.Request) {
	url := req.URL()
	headers := req.Headers()
	if headers == nil {
		headers = map[string]string{}
	}

	prefix, err := r.namer.Filename(url, headers)
	if err != nil {
		r.drop("request", url, fmt.Errorf("fingerprint: %w", err))
		return
	}
	r.logger.Info("capture: logging request for "+url, "url", url)

	body, hasBody := req.PostData()
	data, err := artifact.MarshalRecord(artifact.NewRequestRecord(url, req.Method(), headers, body, hasBody))
	if err != nil {
		r.drop("request", url, fmt.Errorf("serialize: %w", err))
		return
	}

	name := "mention-id-" + r.target.RequestMentionID() + "-" + prefix + ".request.json"
	if _, err := r.store.WriteLog(name, data); err != nil {
		r.drop("request", url, err)
		return
	}
	r.requests.Add(1)
}

// OnResponse writes logs/<id>-<fingerprint>.response.json for responses
// whose Content-Type starts with application/text. Others are skipped.
func (r *Recorder) OnResponse(ctx context.Context, resp engine.Response) {
	headers := resp.Headers()
	if !strings.HasPrefix(headerValue(headers, "Content-Type"), contentTypePrefix) {
		r.skipped.Add(1)
		return
	}

	url := resp.URL()
	prefix, err := r.namer.Filename(url, headers)
	if err != nil {
		r.drop("response", url, fmt.Errorf("fingerprint: %w", err))
		return
	}
	r.logger.Info("capture: logging response for "+url, "url", url)

	content, err := resp.Content(ctx)
	if err != nil {
		r.logger.Debug("capture: response body unavailable", "url", url, "error", err)
		content = []byte{}
	}

	data, err := artifact.MarshalRecord(artifact.ResponseRecord{
		URL:     url,
		Content: content,
		Headers: headers,
		Status:  resp.Status(),
	})
	if err != nil {
		r.drop("response", url, fmt.Errorf("serialize: %w", err))
		return
	}

	name := r.target.ResponseMentionID() + "-" + prefix + ".response.json"
	if _, err := r.store.WriteLog(name, data); err != nil {
		r.drop("response", url, err)
		return
	}
	r.responses.Add(1)
}

func (r *Recorder) drop(kind, url string, err error) {
	r.dropped.Add(1)
	r.logger.Error("capture: error logging "+kind+" for "+url, "url", url, "error", err)
	if r.onDrop != nil {
		r.onDrop(artifact.Drop{
			RunID:     r.runID,
			TargetURL: r.target.URL,
			Kind:      kind,
			URL:       url,
			Reason:    err.Error(),
			At:        time.Now(),
		})
	}
}

// headerValue looks name up case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
