package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/evidence/capture/artifact"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) StartRun(_ context.Context, run artifact.Report) error {
	return s.write("run_started", run)
}

func (s *Stdout) SendOutcome(_ context.Context, o artifact.Outcome) error {
	return s.write("outcome", o)
}

func (s *Stdout) SendDrop(_ context.Context, d artifact.Drop) error {
	return s.write("drop", d)
}

func (s *Stdout) FinishRun(_ context.Context, run artifact.Report) error {
	return s.write("run_finished", run)
}

func (s *Stdout) Close() error { return nil }

func (s *Stdout) write(typ string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: typ, Data: data})
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
