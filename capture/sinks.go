package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/evidence/capture/artifact"
	"github.com/hazyhaar/evidence/capture/internal/sink"
)

// Sink is the output interface for run reports.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink. Any handler may be
// nil.
func NewCallbackSink(
	onOutcome func(ctx context.Context, o artifact.Outcome) error,
	onDrop func(ctx context.Context, d artifact.Drop) error,
	onFinish func(ctx context.Context, run artifact.Report) error,
) Sink {
	return sink.NewCallback(onOutcome, onDrop, onFinish)
}

// SinksFromConfig builds the sinks listed in the configuration.
func SinksFromConfig(cfgs []SinkConfig, stdout io.Writer, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, NewStdoutSink(stdout))
		case "webhook":
			out = append(out, NewWebhookSink(c.URL, logger))
		default:
			return nil, fmt.Errorf("capture: unknown sink type %q", c.Type)
		}
	}
	return out, nil
}
