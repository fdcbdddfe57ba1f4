package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"github.com/byt3hx/ollama-ai-analyzer/runner"
	"go.uber.org/zap"
)

func (o *Orchestrator) run(ctx context.Context, j *job, cmd runner.Command, payload string, obs Observer) {
	defer o.wg.Done()
	defer func() {
		fallback := "internal error"
		if r := recover(); r != nil {
			o.logger.Error("Analysis worker panicked",
				zap.String("job_id", j.id),
				zap.Any("panic", r))
			fallback = fmt.Sprintf("internal error: %v", r)
			o.abandon(j)
		}
		o.complete(j, obs, fallback)
	}()

	if o.timeout > 0 {
		timer := time.AfterFunc(o.timeout, func() {
			o.logger.Warn("Analysis timed out",
				zap.String("job_id", j.id),
				zap.Duration("timeout", o.timeout))
			o.stop(j, true)
		})
		defer timer.Stop()
	}

	o.execute(ctx, j, cmd, payload, obs)
}

func (o *Orchestrator) execute(ctx context.Context, j *job, cmd runner.Command, payload string, obs Observer) {
	h, err := o.runner.Start(ctx, cmd, payload)
	if err != nil {
		o.logger.Error("Model runner launch failed",
			zap.String("job_id", j.id),
			zap.String("command", cmd.String()),
			zap.Error(err))
		if detail, stopped := j.stopDetail(); stopped {
			j.fail(detail, nil)
			return
		}
		var spawnErr *runner.SpawnError
		if errors.As(err, &spawnErr) {
			j.fail(spawnErr.Error(), nil)
		} else {
			j.fail(fmt.Sprintf("failed to launch model runner: %v", err), nil)
		}
		return
	}

	o.mu.Lock()
	o.handle = h
	o.mu.Unlock()

	j.mu.Lock()
	j.payloadDir = h.PayloadDir()
	j.mu.Unlock()

	// Terminate may have landed between Start and publishing the handle.
	if _, stopped := j.stopDetail(); stopped {
		h.Terminate()
	}

	for chunk := range runner.Chunks(h) {
		o.deliverChunk(j, obs, analyzer.Strip(chunk))
	}

	status, waitErr := h.Wait()
	o.classify(j, status, waitErr)
}

func (o *Orchestrator) deliverChunk(j *job, obs Observer, chunk string) {
	if chunk == "" {
		return
	}

	j.deliverMu.Lock()
	if _, stopped := j.stopDetail(); stopped {
		j.deliverMu.Unlock()
		return
	}
	accumulated := j.appendChunk(chunk)
	j.deliverMu.Unlock()

	o.safely(j.id, "OnChunk", func() { obs.OnChunk(accumulated) })
}

func (o *Orchestrator) classify(j *job, status runner.ExitStatus, waitErr error) {
	code := status.Code
	stderr := strings.TrimSpace(status.Stderr)

	if detail, stopped := j.stopDetail(); stopped {
		j.fail(detail, &code)
		return
	}
	if waitErr != nil {
		j.fail(waitErr.Error(), &code)
		return
	}
	if code != 0 {
		detail := stderr
		if detail == "" {
			detail = fmt.Sprintf("model runner exited with status %d", code)
		}
		j.fail(detail, &code)
		return
	}

	j.mu.Lock()
	blank := strings.TrimSpace(j.output.String()) == ""
	j.mu.Unlock()
	if blank {
		detail := DetailNoOutput
		if stderr != "" {
			detail += ": " + stderr
		}
		j.fail(detail, &code)
		return
	}

	j.succeed(code)
}

// complete releases the slot first, then tells the observer and the recorders.
func (o *Orchestrator) complete(j *job, obs Observer, fallback string) {
	j.finish(time.Now().UTC(), fallback)
	snap := j.snapshot()

	o.mu.Lock()
	if o.current == j {
		o.running = false
		o.handle = nil
		if o.cancel != nil {
			o.cancel()
			o.cancel = nil
		}
	}
	o.mu.Unlock()

	o.logger.Info("Analysis job finished",
		zap.String("job_id", snap.ID),
		zap.Stringer("state", snap.State),
		zap.String("error_detail", snap.ErrorDetail),
		zap.Int("output_length", len(snap.Output)),
		zap.Duration("duration", snap.FinishedAt.Sub(snap.StartedAt)))

	if snap.State == StateSucceeded {
		o.safely(snap.ID, "OnSucceeded", func() { obs.OnSucceeded(snap.Output) })
	} else {
		o.safely(snap.ID, "OnFailed", func() { obs.OnFailed(snap.ErrorDetail) })
	}

	for _, r := range o.recorders {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		o.safely(snap.ID, "Record", func() {
			if err := r.Record(ctx, snap); err != nil {
				o.logger.Warn("Job record failed",
					zap.String("job_id", snap.ID),
					zap.String("recorder", fmt.Sprintf("%T", r)),
					zap.Error(err))
			}
		})
		cancel()
	}
}

// abandon stops the process of a job whose worker is unwinding.
func (o *Orchestrator) abandon(j *job) {
	o.mu.Lock()
	h := o.handle
	if o.current != j {
		h = nil
	}
	o.mu.Unlock()
	if h != nil {
		h.Terminate()
		go h.Wait()
	}
}

func (o *Orchestrator) safely(jobID, callback string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Job callback panicked",
				zap.String("job_id", jobID),
				zap.String("callback", callback),
				zap.Any("panic", r))
		}
	}()
	fn()
}
