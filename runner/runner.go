package runner

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Command is a program invocation. Args never pass through a shell.
type Command struct {
	Path string
	Args []string
	// Env is appended to the inherited host environment.
	Env []string
	Dir string
}

// String renders the command the way it would be typed, with double quotes
// escaped inside quoted arguments. It is meant for logs only.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\"'") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// ExitStatus is what a finished process reports.
type ExitStatus struct {
	Code   int
	Stderr string
}

// Handle is one running invocation.
type Handle interface {
	// Next returns the next decoded output chunk. It returns false once the
	// process has closed its output; the sequence cannot be restarted.
	Next() (string, bool)
	// Wait blocks until the process has exited. Call it after Next returned false.
	Wait() (ExitStatus, error)
	// Terminate asks the process to stop. It does not wait for it to die.
	Terminate() error
	// PayloadDir is the directory holding the stdin payload file, if any.
	PayloadDir() string
}

// Runner starts processes.
type Runner interface {
	Start(ctx context.Context, cmd Command, stdinPayload string) (Handle, error)
}

// SpawnError means the process never started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Chunks adapts a handle's output to a range-over-func sequence.
func Chunks(h Handle) iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			chunk, ok := h.Next()
			if !ok {
				return
			}
			if !yield(chunk) {
				return
			}
		}
	}
}
