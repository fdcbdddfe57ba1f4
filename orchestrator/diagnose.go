package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"github.com/byt3hx/ollama-ai-analyzer/runner"
	"go.uber.org/zap"
)

// DiagnosticResult is the outcome of a connectivity check.
type DiagnosticResult struct {
	OK          bool   `json:"ok"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	CommandLine string `json:"commandLine"`
}

// Diagnose runs "<path> list" to check that the model runner is usable.
// It does not take the single-flight slot.
func (o *Orchestrator) Diagnose(ctx context.Context, path string) DiagnosticResult {
	cmd := runner.Command{Path: path, Args: []string{"list"}}
	result := DiagnosticResult{CommandLine: cmd.String()}

	h, err := o.runner.Start(ctx, cmd, "")
	if err != nil {
		o.logger.Warn("Model runner check failed to launch", zap.String("path", path), zap.Error(err))
		result.Error = err.Error()
		return result
	}

	var out strings.Builder
	for chunk := range runner.Chunks(h) {
		out.WriteString(analyzer.Strip(chunk))
	}
	status, waitErr := h.Wait()

	if strings.TrimSpace(out.String()) != "" {
		result.OK = true
		result.Output = out.String()
		return result
	}

	msg := "no output received"
	if stderr := strings.TrimSpace(status.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	if waitErr != nil {
		msg = fmt.Sprintf("%s (%v)", msg, waitErr)
	}
	result.Error = msg
	o.logger.Warn("Model runner check failed", zap.String("path", path), zap.String("error", msg))
	return result
}
