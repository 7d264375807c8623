// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package shell

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// DryRunner prints commands instead of running them. Probes fail, so the
// printed plan is the one for a host where nothing exists yet.
type DryRunner struct {
	mu  sync.Mutex
	out io.Writer
}

func NewDryRunner(out io.Writer) *DryRunner {
	return &DryRunner{out: out}
}

func (r *DryRunner) Run(_ context.Context, cmd Command) (string, error) {
	if cmd.Probe {
		if cmd.Negative || cmd.IgnoreErrors {
			return "", nil
		}
		return "", &CommandError{Cmd: cmd.String(), Code: 1, Stderr: "dry run"}
	}
	r.print(cmd)
	return "", nil
}

func (r *DryRunner) Start(_ context.Context, cmd Command) (Process, error) {
	r.print(cmd)
	return doneProcess(cmd.String()), nil
}

func (r *DryRunner) print(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, cmd.String())
}

type doneProcess string

func (p doneProcess) Wait() (string, error) { return "", nil }

func (p doneProcess) String() string { return string(p) }
