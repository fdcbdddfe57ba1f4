package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is where a job is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots serialize the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for _, s := range []State{StateIdle, StateRunning, StateSucceeded, StateFailed} {
		if s.String() == name {
			return s, nil
		}
	}
	return StateIdle, fmt.Errorf("unknown job state %q", name)
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Failure details that callers may match on.
const (
	DetailNoOutput  = "no output"
	DetailCancelled = "cancelled"
	DetailTimeout   = "timeout"
)

// Snapshot is an immutable copy of a job.
type Snapshot struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId,omitempty"`
	State       State      `json:"state"`
	Output      string     `json:"output"`
	ExitCode    *int       `json:"exitCode,omitempty"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
	Model       string     `json:"model"`
	CommandLine string     `json:"commandLine"`
	PayloadDir  string     `json:"payloadDir,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// job is owned by the orchestrator. mu guards every field below it.
// deliverMu covers a delivery's stop check and append, not the observer call.
type job struct {
	id          string
	sessionID   string
	model       string
	commandLine string
	startedAt   time.Time

	deliverMu sync.Mutex

	mu          sync.Mutex
	state       State
	output      strings.Builder
	exitCode    *int
	errorDetail string
	payloadDir  string
	finishedAt  *time.Time
	cancelled   bool
	timedOut    bool
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:          j.id,
		SessionID:   j.sessionID,
		State:       j.state,
		Output:      j.output.String(),
		ErrorDetail: j.errorDetail,
		Model:       j.model,
		CommandLine: j.commandLine,
		PayloadDir:  j.payloadDir,
		StartedAt:   j.startedAt,
	}
	if j.exitCode != nil {
		code := *j.exitCode
		s.ExitCode = &code
	}
	if j.finishedAt != nil {
		t := *j.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// appendChunk adds a chunk and returns the accumulated text.
func (j *job) appendChunk(chunk string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.output.WriteString(chunk)
	return j.output.String()
}

func (j *job) stopDetail() (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopDetailLocked()
}

// succeed and fail classify the job. A stop that landed after the worker
// last looked wins, so an accepted Terminate always ends Failed("cancelled").
func (j *job) succeed(code int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.exitCode = &code
	if detail, stopped := j.stopDetailLocked(); stopped {
		j.state = StateFailed
		j.errorDetail = detail
		return
	}
	j.state = StateSucceeded
}

func (j *job) fail(detail string, code *int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if d, stopped := j.stopDetailLocked(); stopped {
		detail = d
	}
	j.state = StateFailed
	j.errorDetail = detail
	j.exitCode = code
}

func (j *job) stopDetailLocked() (string, bool) {
	switch {
	case j.cancelled:
		return DetailCancelled, true
	case j.timedOut:
		return DetailTimeout, true
	default:
		return "", false
	}
}

// finish stamps the end time. A job still Running at this point never got
// classified, which only happens when the worker panicked.
func (j *job) finish(now time.Time, fallbackDetail string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.Terminal() {
		j.state = StateFailed
		j.errorDetail = fallbackDetail
	}
	j.finishedAt = &now
}
