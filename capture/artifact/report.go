package artifact

import "time"

// Status is the result of one target's capture.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Step names the capture states in order.
type Step string

const (
	StepInit           Step = "init"
	StepNavigated      Step = "navigated"
	StepScrolledBottom Step = "scrolled_bottom"
	StepWheelScrolled  Step = "wheel_scrolled"
	StepReloaded       Step = "reloaded"
	StepDone           Step = "done"
)

// Policy decides what a batch does after a failed target.
type Policy string

const (
	PolicyAbort    Policy = "abort"    // stop at the first failure
	PolicyContinue Policy = "continue" // capture the rest, report failures
)

// Outcome is the result of one target's capture.
type Outcome struct {
	RunID       string    `json:"run_id"`
	Seq         int       `json:"seq"`
	URL         string    `json:"url"`
	MentionID   string    `json:"mention_id"`
	Status      Status    `json:"status"`
	Step        Step      `json:"step"` // last state fully reached
	Error       string    `json:"error,omitempty"`
	Title       string    `json:"title,omitempty"`
	Screenshots []string  `json:"screenshots"`
	Transcripts []string  `json:"transcripts,omitempty"`
	Bundle      string    `json:"bundle,omitempty"`
	Requests    int       `json:"requests"`
	Responses   int       `json:"responses"`
	Dropped     int       `json:"dropped"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Drop describes a network record the recorder discarded.
type Drop struct {
	RunID     string    `json:"run_id"`
	TargetURL string    `json:"target_url"`
	Kind      string    `json:"kind"` // "request" | "response"
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// Report is the summary of one batch run.
type Report struct {
	RunID      string    `json:"run_id"`
	Manifest   string    `json:"manifest,omitempty"`
	Policy     Policy    `json:"policy"`
	Targets    int       `json:"targets"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Aborted    bool      `json:"aborted"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Failed counts failed outcomes.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			n++
		}
	}
	return n
}
