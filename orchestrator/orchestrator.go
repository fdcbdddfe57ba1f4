package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"github.com/byt3hx/ollama-ai-analyzer/runner"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBusy rejects a submission while another job is running.
	ErrBusy = errors.New("analysis already in progress")
	// ErrNotRunning is returned by Terminate when there is nothing to stop.
	ErrNotRunning = errors.New("no analysis in progress")
)

const recordTimeout = 10 * time.Second

type Option func(*Orchestrator)

// WithTimeout terminates jobs that run longer than d. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithRecorders registers sinks for finished jobs.
func WithRecorders(recorders ...Recorder) Option {
	return func(o *Orchestrator) {
		o.recorders = append(o.recorders, recorders...)
	}
}

// Orchestrator runs at most one analysis job at a time.
type Orchestrator struct {
	runner    runner.Runner
	logger    *zap.Logger
	timeout   time.Duration
	recorders []Recorder

	mu      sync.Mutex
	running bool
	current *job
	handle  runner.Handle
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

func New(r runner.Runner, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		runner: r,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit starts req in the background and returns its job id.
func (o *Orchestrator) Submit(req analyzer.AnalysisRequest, obs Observer) (string, error) {
	return o.SubmitFor("", req, obs)
}

// SubmitFor is Submit with the originating session recorded on the job.
// It fails with a *analyzer.ValidationError when there is nothing to
// analyze and with ErrBusy when a job is already running; in both cases
// no process is started.
func (o *Orchestrator) SubmitFor(sessionID string, req analyzer.AnalysisRequest, obs Observer) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if obs == nil {
		obs = ObserverFuncs{}
	}

	cmd := runner.Command{Path: req.ExecutablePath, Args: req.Args()}
	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		cancel()
		o.logger.Info("Analysis rejected, another job is running",
			zap.String("session_id", sessionID))
		return "", ErrBusy
	}
	j := &job{
		id:          uuid.NewString(),
		sessionID:   sessionID,
		model:       req.ModelName,
		commandLine: cmd.String(),
		startedAt:   time.Now().UTC(),
		state:       StateRunning,
	}
	o.running = true
	o.current = j
	o.handle = nil
	o.cancel = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("Analysis job accepted",
		zap.String("job_id", j.id),
		zap.String("session_id", sessionID),
		zap.String("model", req.ModelName),
		zap.Int("system_prompt_length", len(req.SystemInstruction)))

	go o.run(ctx, j, cmd, req.Payload(), obs)
	return j.id, nil
}

// Terminate cancels the running job. Once it returns no new chunk is
// handed to the job's observer and the job ends Failed("cancelled"). It is
// safe to call from an observer callback. A job that has already been
// classified is past cancelling and gets ErrNotRunning.
func (o *Orchestrator) Terminate() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	j := o.current
	o.mu.Unlock()

	if !o.stop(j, false) {
		return ErrNotRunning
	}
	o.logger.Info("Analysis cancellation requested", zap.String("job_id", j.id))
	return nil
}

// stop flags j and asks its process to exit. It reports false when j was
// already classified. deliverMu is never held across an observer call, so
// taking it here only waits out a delivery that is between its stop check
// and appending its chunk.
func (o *Orchestrator) stop(j *job, timedOut bool) bool {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return false
	}
	if timedOut {
		j.timedOut = true
	} else {
		j.cancelled = true
	}
	j.mu.Unlock()

	j.deliverMu.Lock()
	j.deliverMu.Unlock()

	o.mu.Lock()
	var (
		h      runner.Handle
		cancel context.CancelFunc
	)
	if o.current == j && o.running {
		h, cancel = o.handle, o.cancel
	}
	o.mu.Unlock()

	if h != nil {
		if err := h.Terminate(); err != nil {
			o.logger.Warn("Model runner terminate failed", zap.String("job_id", j.id), zap.Error(err))
		}
	}
	if cancel != nil {
		cancel()
	}
	return true
}

// Current returns the running job, or the last one if none is running.
func (o *Orchestrator) Current() (Snapshot, bool) {
	o.mu.Lock()
	j := o.current
	o.mu.Unlock()
	if j == nil {
		return Snapshot{}, false
	}
	return j.snapshot(), true
}

// Busy reports whether a job holds the slot.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Wait blocks until the current job, if any, has fully completed.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
