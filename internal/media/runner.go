// Package media wraps the external media tools (ffmpeg, ffprobe, yt-dlp)
// behind context-aware Go APIs. Every invocation is bounded by the caller's
// context and captures a capped tail of tool output for diagnostics.
package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// maxCapturedLines bounds how much tool output is retained for error
// reporting. ffmpeg can emit megabytes of log; only the tail explains a
// failure.
const maxCapturedLines = 40

// Command describes one external tool invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// OnLine, when set, receives each line of combined tool output as it
	// arrives. Used for progress parsing.
	OnLine func(line string)
	// Stdout, when set, receives raw stdout instead of line scanning
	// (for tools whose stdout is data, not logs).
	Stdout io.Writer
}

// Runner executes external tools.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	lines []string
	max   int
}

func (b *tailBuffer) add(line string) {
	if b.max <= 0 {
		b.max = maxCapturedLines
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	return strings.Join(b.lines, "\n")
}

// Run executes the command and waits for it to finish. On failure the error
// carries the exit status and the output tail. Cancellation of ctx kills the
// process.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir

	tail := &tailBuffer{max: maxCapturedLines}

	stderr, err := c.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	var stdout io.ReadCloser
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	} else {
		stdout, err = c.StdoutPipe()
		if err != nil {
			return fmt.Errorf("creating stdout pipe: %w", err)
		}
	}

	r.logger.Debug("running external tool",
		slog.String("path", cmd.Path),
		slog.Int("args", len(cmd.Args)),
	)

	if err := c.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", cmd.Path, err)
	}

	scan := func(rd io.Reader) {
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.add(line)
			if cmd.OnLine != nil {
				cmd.OnLine(line)
			}
		}
	}

	done := make(chan struct{})
	if stdout != nil {
		go func() {
			scan(stdout)
			close(done)
		}()
	} else {
		close(done)
	}
	scan(stderr)
	<-done

	if err := c.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", cmd.Path, ctx.Err())
		}
		return &ToolError{Tool: cmd.Path, Err: err, OutputTail: tail.String()}
	}
	return nil
}

// Output executes the command and returns its stdout, with stderr captured
// for diagnostics.
func (r *Runner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	if err := r.Run(ctx, cmd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToolError reports a failed external tool run with its output tail.
type ToolError struct {
	Tool       string
	Err        error
	OutputTail string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.OutputTail == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v\n%s", e.Tool, e.Err, e.OutputTail)
}

// Unwrap returns the underlying exec error.
func (e *ToolError) Unwrap() error {
	return e.Err
}
