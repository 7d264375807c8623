// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package shell

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// DefaultBatchTimeout bounds how long a batch waits for its processes.
const DefaultBatchTimeout = 600 * time.Second

// Batch collects background processes and a scratch directory for the files
// they read. Wait reaps all processes and reports every failure.
type Batch struct {
	runner Runner
	dir    string
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	procs []Process
}

func NewBatch(ctx context.Context, runner Runner, timeout time.Duration) (*Batch, error) {
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	dir, err := os.MkdirTemp("", "vmtopology-")
	if err != nil {
		return nil, fmt.Errorf("failed to create batch directory: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return &Batch{runner: runner, dir: dir, ctx: ctx, cancel: cancel}, nil
}

// Dir is removed by Wait.
func (b *Batch) Dir() string { return b.dir }

// WriteFile writes a scratch file and returns its path.
func (b *Batch) WriteFile(pattern string, lines []string) (string, error) {
	f, err := os.CreateTemp(b.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create batch file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	for _, l := range lines {
		if _, err := fmt.Fprintln(f, l); err != nil {
			return "", fmt.Errorf("failed to write batch file: %w", err)
		}
	}
	return f.Name(), nil
}

func (b *Batch) Start(cmd Command) error {
	p, err := b.runner.Start(b.ctx, cmd)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.procs = append(b.procs, p)
	b.mu.Unlock()
	return nil
}

func (b *Batch) Wait() error {
	defer b.cancel()
	b.mu.Lock()
	procs := b.procs
	b.procs = nil
	b.mu.Unlock()

	var errs error
	for _, p := range procs {
		if _, err := p.Wait(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if err := os.RemoveAll(b.dir); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return fmt.Errorf("one of the batch commands failed: %w", errs)
	}
	return nil
}
