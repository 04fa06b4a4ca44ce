package backbone

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecBackend drives a quantized (GGUF) runner process over stdio: the
// prompt token ids are written space-separated on one line at prefill, and
// the runner prints one sampled token id per line. Sampling happens inside
// the runner, so Step returns already-sampled tokens.
type ExecBackend struct {
	cmd []string
}

// NewExecBackend parses the configured runner command line.
func NewExecBackend(command string) (*ExecBackend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse backbone command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("backbone command is empty")
	}
	return &ExecBackend{cmd: args}, nil
}

// execState owns one runner process for the lifetime of a session.
type execState struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	done    sync.Once
}

// Release terminates the runner process. Safe to call multiple times.
func (s *execState) Release() {
	s.done.Do(func() {
		_ = s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	})
}

// Prefill starts the runner and hands it the prompt. The process is the
// generation state; it begins emitting tokens as soon as the prompt line is
// consumed.
func (b *ExecBackend) Prefill(ctx context.Context, prompt []int64) (State, error) {
	cmd := exec.CommandContext(ctx, b.cmd[0], b.cmd[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("runner stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start runner: %w", err)
	}

	fields := make([]string, len(prompt))
	for i, tok := range prompt {
		fields[i] = strconv.FormatInt(tok, 10)
	}
	if _, err := io.WriteString(stdin, strings.Join(fields, " ")+"\n"); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("write prompt: %w", err)
	}

	return &execState{
		cmd:     cmd,
		stdin:   stdin,
		scanner: bufio.NewScanner(stdout),
	}, nil
}

// Step reads the next sampled token id from the runner.
func (b *ExecBackend) Step(ctx context.Context, state State, _ int64) (StepResult, error) {
	st, ok := state.(*execState)
	if !ok {
		return StepResult{}, fmt.Errorf("step: invalid state")
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	if !st.scanner.Scan() {
		if err := st.scanner.Err(); err != nil {
			return StepResult{}, fmt.Errorf("read token: %w", err)
		}
		return StepResult{}, fmt.Errorf("runner closed token stream")
	}

	line := strings.TrimSpace(st.scanner.Text())
	token, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return StepResult{}, fmt.Errorf("parse token %q: %w", line, err)
	}

	return StepResult{Token: token, Sampled: true}, nil
}

// Close is a no-op; each session's process is released with its state.
func (b *ExecBackend) Close() {}
