// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/coredhcp/coredhcp/logger"
	"github.com/ironcore-dev/vmtopology/internal/logctx"
	"github.com/ironcore-dev/vmtopology/internal/printer"
)

var log = logger.GetLogger("shell")

// Command is a command line to run. Retry is the number of attempts until
// the exit status matches: zero, or non-zero when Negative is set. Probes
// only look at the system and never change it.
type Command struct {
	Args         []string
	Retry        int
	Negative     bool
	IgnoreErrors bool
	Probe        bool
}

// Cmd builds a command from its arguments.
func Cmd(args ...string) Command {
	return Command{Args: args}
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Sh runs a shell snippet, for redirections only.
func Sh(script string) Command {
	return Command{Args: []string{"sh", "-c", script}}
}

// CommandError is returned when a command did not reach the expected exit
// status within its attempts.
type CommandError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ret_code=%d, error message=%q. cmd=%q", e.Code, e.Stderr, e.Cmd)
}

// Process is a command started in the background.
type Process interface {
	Wait() (string, error)
	String() string
}

// Runner runs host commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	if len(cmd.Args) == 0 {
		return "", fmt.Errorf("empty command")
	}
	attempts := cmd.Retry
	if attempts < 1 {
		attempts = 1
	}
	var (
		out, stderr string
		code        int
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		out, stderr, code, err = run(ctx, cmd.Args)
		if err != nil {
			return "", err
		}
		printer.VerboseCommand(logctx.FromContext(ctx, log), cmd.Args, attempt, code, out, stderr)
		if (code == 0) != cmd.Negative {
			return out, nil
		}
	}
	if cmd.IgnoreErrors {
		return out, nil
	}
	return out, &CommandError{Cmd: cmd.String(), Code: code, Stderr: strings.TrimSpace(stderr)}
}

// run executes the command once. Only failures to start are errors, a non-zero
// exit status is returned as code.
func run(ctx context.Context, args []string) (string, string, int, error) {
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), stderr.String(), 0, nil
	case errors.As(err, &exitErr):
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	case ctx.Err() != nil:
		return "", "", -1, ctx.Err()
	default:
		// command not found and friends behave like a failed command
		return "", err.Error(), 127, nil
	}
}

func (r *ExecRunner) Start(ctx context.Context, cmd Command) (Process, error) {
	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	p := &execProcess{cmd: c, line: cmd.String()}
	c.Stdout = &p.stdout
	c.Stderr = &p.stderr
	logctx.FromContext(ctx, log).Debugf("*** START: %s", p.line)
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", p.line, err)
	}
	return p, nil
}

type execProcess struct {
	cmd            *exec.Cmd
	line           string
	stdout, stderr bytes.Buffer
}

func (p *execProcess) Wait() (string, error) {
	if err := p.cmd.Wait(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		stderr := strings.TrimSpace(p.stderr.String())
		if stderr == "" {
			stderr = err.Error()
		}
		return p.stdout.String(), &CommandError{Cmd: p.line, Code: code, Stderr: stderr}
	}
	return p.stdout.String(), nil
}

func (p *execProcess) String() string { return p.line }

// ObserveFunc is called after every command with its duration and result.
type ObserveFunc func(cmd Command, took time.Duration, err error)

type observed struct {
	Runner
	observe ObserveFunc
}

// WithObserver reports every command run by r to observe.
func WithObserver(r Runner, observe ObserveFunc) Runner {
	return &observed{Runner: r, observe: observe}
}

func (o *observed) Run(ctx context.Context, cmd Command) (string, error) {
	start := time.Now()
	out, err := o.Runner.Run(ctx, cmd)
	o.observe(cmd, time.Since(start), err)
	return out, err
}
