// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worker runs one isolated compile worker per project.
//
// A Worker owns exclusive access to one toolchain instance and processes
// compile jobs strictly serially: no two compiles for the same project
// ever run concurrently, which keeps toolchain state race-free. Multiple
// projects run fully independent workers in parallel.
//
// A toolchain crash during one job is recovered at the worker boundary:
// the job completes with an error, the toolchain is restarted lazily
// before the next job, and the worker stays usable.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/tidepool/services/langd/source"
	"github.com/AleutianAI/tidepool/services/langd/toolchain"
)

// =============================================================================
// WORKER STATE
// =============================================================================

// State represents the lifecycle state of a Worker.
type State int

const (
	// StateUninitialized is the initial state before Start is called.
	StateUninitialized State = iota

	// StateRunning means the worker loop is processing jobs.
	StateRunning

	// StateStopped means the worker has terminated.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	names := []string{"uninitialized", "running", "stopped"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// JOBS
// =============================================================================

// Job is one scheduled compile. Ephemeral: it exists only for the
// duration of the compile and is never persisted.
type Job struct {
	// Project names the owning project.
	Project string

	// File is the single file to compile; nil for full-project jobs.
	File *source.File

	// FullProject requests a whole-project compile.
	FullProject bool

	// ForceFull requests a from-scratch pass for full-project jobs.
	// When false the toolchain may run a lighter incremental pass if it
	// supports one.
	ForceFull bool

	// Done receives the completion. Called from the worker loop
	// goroutine, so completions for one project arrive serialized and
	// in submission order.
	Done func(Completion)
}

// Completion is the outcome of one Job.
type Completion struct {
	Job     Job
	Result  *toolchain.Result
	Err     error
	Elapsed time.Duration
}

// Crashed reports whether the completion's error was a toolchain crash.
func (c Completion) Crashed() bool {
	return errors.Is(c.Err, toolchain.ErrToolchainCrashed)
}

// =============================================================================
// WORKER
// =============================================================================

// starter is implemented by toolchains with a process to launch.
type starter interface {
	Start(ctx context.Context) error
}

// stopper is implemented by toolchains with a process to tear down.
type stopper interface {
	Stop(ctx context.Context)
}

// Option configures a Worker.
type Option func(*Worker)

// WithQueueSize sets the job queue capacity. Default 64.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Worker serializes compile jobs against one toolchain instance.
//
// Thread Safety:
//
//	Safe for concurrent use after Start() returns successfully.
type Worker struct {
	project string
	root    string
	tc      toolchain.Toolchain

	queueSize int
	jobs      chan Job

	state   State
	stateMu sync.RWMutex

	// needRestart is only touched from the loop goroutine.
	needRestart bool

	loopDone chan struct{}
}

// New creates a Worker (not started) for one project.
func New(project, root string, tc toolchain.Toolchain, opts ...Option) *Worker {
	w := &Worker{
		project:   project,
		root:      root,
		tc:        tc,
		queueSize: 64,
		state:     StateUninitialized,
		loopDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.jobs = make(chan Job, w.queueSize)
	return w
}

// Project returns the project this worker serves.
func (w *Worker) Project() string {
	return w.project
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// setState transitions the lifecycle state.
func (w *Worker) setState(s State) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

// Start brings the worker up.
//
// Description:
//
//	Synchronous from the caller's perspective: the toolchain process
//	(if any) is launched before Start returns, and a failure to start
//	is a fatal condition for this project's compile capability,
//	surfaced as an error and not retried automatically.
func (w *Worker) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	w.stateMu.Lock()
	if w.state != StateUninitialized {
		w.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	w.state = StateRunning
	w.stateMu.Unlock()

	if err := initMetrics(); err != nil {
		slog.Warn("worker metrics unavailable", slog.String("error", err.Error()))
	}

	if s, ok := w.tc.(starter); ok {
		if err := s.Start(ctx); err != nil {
			w.setState(StateStopped)
			close(w.loopDone)
			return fmt.Errorf("start toolchain for %s: %w", w.project, err)
		}
	}

	go w.loop()

	slog.Info("compile worker started",
		slog.String("project", w.project),
		slog.String("root", w.root))
	return nil
}

// Submit enqueues a job. Non-blocking.
//
// The read lock is held across the check-and-send so Stop cannot close
// the queue between the state check and the enqueue.
//
// Errors:
//
//	ErrWorkerStopped - worker not running
//	ErrQueueFull - queue at capacity; caller decides whether to retry
func (w *Worker) Submit(job Job) error {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	if w.state != StateRunning {
		return ErrWorkerStopped
	}
	select {
	case w.jobs <- job:
		recordSubmit(w.project)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop terminates the worker. Pending jobs already in the queue are
// still processed; new submissions are rejected. Idempotent.
//
// The queue is closed under the write lock, which excludes any Submit
// holding the read lock mid-send.
func (w *Worker) Stop(ctx context.Context) {
	w.stateMu.Lock()
	if w.state != StateRunning {
		w.stateMu.Unlock()
		return
	}
	w.state = StateStopped
	close(w.jobs)
	w.stateMu.Unlock()

	select {
	case <-w.loopDone:
	case <-ctx.Done():
	}

	if s, ok := w.tc.(stopper); ok {
		s.Stop(ctx)
	}

	slog.Info("compile worker stopped", slog.String("project", w.project))
}

// =============================================================================
// JOB LOOP
// =============================================================================

// loop processes jobs one at a time, in submission order.
func (w *Worker) loop() {
	defer close(w.loopDone)

	for job := range w.jobs {
		start := time.Now()
		res, err := w.runJob(job)
		elapsed := time.Since(start)

		if err != nil && errors.Is(err, toolchain.ErrToolchainCrashed) {
			// In-process toolchains hold no state across jobs, so only
			// restartable (process-backed) ones need a restart.
			if _, ok := w.tc.(toolchain.Restartable); ok {
				w.needRestart = true
			}
			recordCrash(w.project)
			slog.Error("toolchain crashed during compile",
				slog.String("project", w.project),
				slog.Bool("full_project", job.FullProject),
				slog.String("error", err.Error()))
		}

		recordCompile(w.project, job.FullProject, elapsed, err == nil)

		if job.Done != nil {
			job.Done(Completion{Job: job, Result: res, Err: err, Elapsed: elapsed})
		}
	}
}

// runJob executes one compile with panic isolation. A panicking
// toolchain is treated exactly like a crashed process.
func (w *Worker) runJob(job Job) (res *toolchain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: panic: %v", toolchain.ErrToolchainCrashed, r)
		}
	}()

	ctx := context.Background()

	if w.needRestart {
		if r, ok := w.tc.(toolchain.Restartable); ok {
			if rerr := r.Restart(ctx); rerr != nil {
				return nil, fmt.Errorf("restart toolchain: %w", rerr)
			}
			slog.Info("toolchain restarted after crash", slog.String("project", w.project))
		}
		w.needRestart = false
	}

	if job.FullProject || job.File == nil {
		return w.tc.CompileProject(ctx, w.root, job.ForceFull)
	}
	return w.tc.CompileFile(ctx, job.File.Path, job.File.Doc.Bytes())
}
