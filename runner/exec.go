package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// PayloadFileName is the file inside the payload directory that becomes stdin.
const PayloadFileName = "http_traffic.txt"

const (
	payloadDirPattern  = "ollama_"
	defaultGracePeriod = 5 * time.Second
)

// Exec runs commands as local OS processes.
type Exec struct {
	Logger *zap.Logger
	// PayloadBase is where payload directories are created. Empty means os.TempDir().
	PayloadBase string
	// Sanitize strips terminal control sequences from every chunk.
	Sanitize bool
	// GracePeriod is how long Terminate waits after interrupting before it kills.
	GracePeriod time.Duration
}

// Start launches cmd. A non-empty stdinPayload is written to a fresh
// temporary directory and redirected as the process's standard input; the
// directory is left in place for inspection.
func (e *Exec) Start(ctx context.Context, cmd Command, stdinPayload string) (Handle, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		stdin      *os.File
		payloadDir string
	)
	if stdinPayload != "" {
		dir, f, err := writePayload(e.PayloadBase, stdinPayload)
		if err != nil {
			return nil, &SpawnError{Path: cmd.Path, Err: err}
		}
		payloadDir = dir
		stdin = f
		logger.Info("Payload written for model runner",
			zap.String("payload_dir", payloadDir),
			zap.Int("size_bytes", len(stdinPayload)))
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)
	c.Dir = cmd.Dir
	if stdin != nil {
		c.Stdin = stdin
	}
	c.Cancel = func() error {
		// Interrupt first; platforms without it get killed straight away.
		if err := c.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return c.Process.Kill()
		}
		return nil
	}
	c.WaitDelay = e.GracePeriod
	if c.WaitDelay <= 0 {
		c.WaitDelay = defaultGracePeriod
	}

	p := &process{
		cmd:        c,
		cancel:     cancel,
		stdin:      stdin,
		payloadDir: payloadDir,
		sanitize:   e.Sanitize,
		logger:     logger,
	}
	c.Stderr = &p.stderr

	stdout, err := c.StdoutPipe()
	if err != nil {
		p.release()
		return nil, &SpawnError{Path: cmd.Path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	if err := c.Start(); err != nil {
		p.release()
		return nil, &SpawnError{Path: cmd.Path, Err: err}
	}
	p.reader = bufio.NewReader(transform.NewReader(stdout, unicode.UTF8.NewDecoder()))

	logger.Info("Model runner started",
		zap.String("command", cmd.String()),
		zap.Int("pid", c.Process.Pid))

	return p, nil
}

func writePayload(base, payload string) (string, *os.File, error) {
	dir, err := os.MkdirTemp(base, payloadDirPattern)
	if err != nil {
		return "", nil, fmt.Errorf("create payload dir: %w", err)
	}
	path := filepath.Join(dir, PayloadFileName)
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		return "", nil, fmt.Errorf("write payload: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open payload: %w", err)
	}
	return dir, f, nil
}

// process is the Handle for an OS process. Next must be called from one
// goroutine; Terminate may be called from any.
type process struct {
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	stdin      *os.File
	payloadDir string
	sanitize   bool
	logger     *zap.Logger

	reader *bufio.Reader
	stderr bytes.Buffer
	eof    bool

	terminated atomic.Bool

	waitOnce sync.Once
	status   ExitStatus
	waitErr  error
}

func (p *process) Next() (string, bool) {
	if p.eof {
		return "", false
	}

	line, err := p.reader.ReadString('\n')
	if err != nil {
		p.eof = true
		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
			p.logger.Warn("Model runner output read failed", zap.Error(err))
		}
		if line == "" {
			return "", false
		}
	}

	if p.sanitize {
		line = analyzer.Strip(line)
	}
	return line, true
}

func (p *process) Wait() (ExitStatus, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.release()

		p.status = ExitStatus{Code: -1, Stderr: decode(p.stderr.Bytes())}
		if p.cmd.ProcessState != nil {
			p.status.Code = p.cmd.ProcessState.ExitCode()
		}

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && !p.terminated.Load() {
			p.waitErr = fmt.Errorf("wait for model runner: %w", err)
		}

		p.logger.Info("Model runner exited",
			zap.Int("exit_code", p.status.Code),
			zap.Bool("terminated", p.terminated.Load()))
	})
	return p.status, p.waitErr
}

func (p *process) Terminate() error {
	if !p.terminated.CompareAndSwap(false, true) {
		return nil
	}
	if p.cmd.Process != nil {
		p.logger.Info("Terminating model runner", zap.Int("pid", p.cmd.Process.Pid))
	}
	p.cancel()
	return nil
}

func (p *process) PayloadDir() string { return p.payloadDir }

func (p *process) release() {
	p.cancel()
	if p.stdin != nil {
		p.stdin.Close()
	}
}

// decode turns raw bytes into text, replacing malformed UTF-8 with U+FFFD.
func decode(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
