// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package worker

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/ironcore-dev/vmtopology/internal/logctx"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	MinWorkerCount = 8
	logSeparator   = "========================================"
)

// DefaultCount is the worker count used when none is configured.
func DefaultCount() int {
	return max(MinWorkerCount, runtime.NumCPU()/8)
}

// Pool runs tasks on a bounded set of goroutines. Each task logs into its
// own buffer which is flushed in one piece when the task is done, so lines
// of concurrent tasks do not interleave.
type Pool struct {
	parallel bool
	size     int
	flushMu  sync.Mutex
}

// New returns a pool. A non-parallel pool runs tasks one by one in order.
func New(parallel bool, size int) *Pool {
	if size < 1 {
		size = DefaultCount()
	}
	return &Pool{parallel: parallel, size: size}
}

// Task is one unit of work. log must be used for all output of the task, it
// is also stored in ctx for the commands the task runs.
type Task[T any] func(ctx context.Context, log *logrus.Entry, item T) error

// Map applies task to every item. The first error cancels the remaining
// tasks and is returned.
func Map[T any](ctx context.Context, p *Pool, log *logrus.Entry, items []T, task Task[T]) error {
	if !p.parallel {
		for _, item := range items {
			if err := task(ctx, log, item); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for _, item := range items {
		g.Go(func() error {
			buffered, buf := bufferedEntry(log)
			buffered.Debug(logSeparator)
			err := task(logctx.NewContext(ctx, buffered), buffered, item)
			buffered.Debug(logSeparator)
			p.flush(log, buf)
			return err
		})
	}
	return g.Wait()
}

// bufferedEntry clones the logger of log into one writing to a buffer.
func bufferedEntry(log *logrus.Entry) (*logrus.Entry, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.SetOutput(buf)
	l.SetFormatter(log.Logger.Formatter)
	l.SetLevel(log.Logger.GetLevel())
	l.ReplaceHooks(log.Logger.Hooks)
	return logrus.NewEntry(l).WithFields(log.Data), buf
}

func (p *Pool) flush(log *logrus.Entry, buf *bytes.Buffer) {
	if buf.Len() == 0 {
		return
	}
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	if _, err := log.Logger.Out.Write(buf.Bytes()); err != nil {
		log.Errorf("Failed to flush task logs: %v", strings.TrimSpace(err.Error()))
	}
}
