// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package shell

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner records commands. Handle decides the output and the exit
// status; a nil Handle makes every command succeed with no output.
type FakeRunner struct {
	Handle func(cmd Command) (string, int)

	mu       sync.Mutex
	commands []Command
	started  []Command
}

func (f *FakeRunner) Run(_ context.Context, cmd Command) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()

	out, code := f.handle(cmd)
	if (code == 0) != cmd.Negative {
		return out, nil
	}
	if cmd.IgnoreErrors {
		return out, nil
	}
	return out, &CommandError{Cmd: cmd.String(), Code: code}
}

func (f *FakeRunner) Start(_ context.Context, cmd Command) (Process, error) {
	f.mu.Lock()
	f.started = append(f.started, cmd)
	f.mu.Unlock()

	out, code := f.handle(cmd)
	return fakeProcess{line: cmd.String(), out: out, code: code}, nil
}

func (f *FakeRunner) handle(cmd Command) (string, int) {
	if f.Handle == nil {
		return "", 0
	}
	return f.Handle(cmd)
}

// Lines returns the command lines run so far, probes excluded.
func (f *FakeRunner) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.commands {
		if !c.Probe {
			out = append(out, c.String())
		}
	}
	return out
}

// StartedLines returns the command lines started in the background.
func (f *FakeRunner) StartedLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.started))
	for _, c := range f.started {
		out = append(out, c.String())
	}
	return out
}

// Ran reports whether a non-probe command line containing all parts ran.
func (f *FakeRunner) Ran(parts ...string) bool {
	for _, l := range f.Lines() {
		matched := true
		for _, p := range parts {
			if !strings.Contains(l, p) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

type fakeProcess struct {
	line string
	out  string
	code int
}

func (p fakeProcess) Wait() (string, error) {
	if p.code != 0 {
		return p.out, &CommandError{Cmd: p.line, Code: p.code}
	}
	return p.out, nil
}

func (p fakeProcess) String() string { return p.line }
