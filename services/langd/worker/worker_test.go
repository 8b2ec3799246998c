// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tidepool/services/langd/source"
	"github.com/AleutianAI/tidepool/services/langd/toolchain"
)

// fakeToolchain scripts compile outcomes for worker tests.
type fakeToolchain struct {
	mu       sync.Mutex
	calls    []string
	panicOn  map[int]bool // call index -> panic
	crashOn  map[int]bool // call index -> ErrToolchainCrashed
	restarts int

	// gate, when non-nil, blocks every compile until closed.
	gate chan struct{}
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		panicOn: make(map[int]bool),
		crashOn: make(map[int]bool),
	}
}

func (f *fakeToolchain) compile(name string) (*toolchain.Result, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, name)
	doPanic := f.panicOn[idx]
	doCrash := f.crashOn[idx]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if doPanic {
		panic("toolchain exploded")
	}
	if doCrash {
		return nil, toolchain.ErrToolchainCrashed
	}
	return &toolchain.Result{
		Modules: []toolchain.ModuleMetadata{{Name: name, Functions: []toolchain.Symbol{}, Macros: []toolchain.Symbol{}}},
	}, nil
}

func (f *fakeToolchain) CompileProject(ctx context.Context, root string, forceFull bool) (*toolchain.Result, error) {
	return f.compile("project:" + root)
}

func (f *fakeToolchain) CompileFile(ctx context.Context, path string, src []byte) (*toolchain.Result, error) {
	return f.compile("file:" + path)
}

func (f *fakeToolchain) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// restartableToolchain additionally records restarts.
type restartableToolchain struct {
	*fakeToolchain
}

func (r *restartableToolchain) Restart(ctx context.Context) error {
	r.mu.Lock()
	r.restarts++
	r.mu.Unlock()
	return nil
}

func startWorker(t *testing.T, tc toolchain.Toolchain) *Worker {
	t.Helper()
	w := New("proj", "/proj", tc)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { w.Stop(context.Background()) })
	return w
}

func submitAndWait(t *testing.T, w *Worker, job Job) Completion {
	t.Helper()
	ch := make(chan Completion, 1)
	job.Done = func(c Completion) { ch <- c }
	require.NoError(t, w.Submit(job))
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Completion{}
	}
}

func TestWorker_Lifecycle(t *testing.T) {
	w := New("proj", "/proj", newFakeToolchain())
	assert.Equal(t, StateUninitialized, w.State())

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StateRunning, w.State())

	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)

	w.Stop(context.Background())
	assert.Equal(t, StateStopped, w.State())

	// Stop is idempotent.
	w.Stop(context.Background())

	assert.ErrorIs(t, w.Submit(Job{Project: "proj"}), ErrWorkerStopped)
}

func TestWorker_SerializesInSubmissionOrder(t *testing.T) {
	tc := newFakeToolchain()
	w := startWorker(t, tc)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	for _, name := range []string{"a.x", "b.x", "c.x", "d.x"} {
		wg.Add(1)
		f := source.NewFile("file:///"+name, "/proj/"+name, 1, []byte("x"))
		require.NoError(t, w.Submit(Job{
			Project: "proj",
			File:    &f,
			Done: func(c Completion) {
				mu.Lock()
				order = append(order, c.Job.File.Path)
				mu.Unlock()
				wg.Done()
			},
		}))
	}
	wg.Wait()

	assert.Equal(t, []string{"/proj/a.x", "/proj/b.x", "/proj/c.x", "/proj/d.x"}, order)
	assert.Equal(t, []string{"file:/proj/a.x", "file:/proj/b.x", "file:/proj/c.x", "file:/proj/d.x"}, tc.callNames())
}

func TestWorker_PanicIsolation(t *testing.T) {
	tc := newFakeToolchain()
	tc.panicOn[0] = true
	w := startWorker(t, tc)

	crashed := submitAndWait(t, w, Job{Project: "proj", FullProject: true})
	require.Error(t, crashed.Err)
	assert.True(t, crashed.Crashed())

	// A crash must not prevent a subsequently scheduled job from
	// completing successfully.
	ok := submitAndWait(t, w, Job{Project: "proj", FullProject: true})
	require.NoError(t, ok.Err)
	require.NotNil(t, ok.Result)
}

func TestWorker_RestartsProcessToolchainAfterCrash(t *testing.T) {
	tc := &restartableToolchain{fakeToolchain: newFakeToolchain()}
	tc.crashOn[0] = true
	w := startWorker(t, tc)

	crashed := submitAndWait(t, w, Job{Project: "proj", FullProject: true})
	assert.True(t, crashed.Crashed())

	ok := submitAndWait(t, w, Job{Project: "proj", FullProject: true})
	require.NoError(t, ok.Err)

	tc.mu.Lock()
	restarts := tc.restarts
	tc.mu.Unlock()
	assert.Equal(t, 1, restarts, "toolchain should restart lazily before the next job")
}

func TestWorker_QueueFull(t *testing.T) {
	tc := newFakeToolchain()
	tc.gate = make(chan struct{})

	w := New("proj", "/proj", tc, WithQueueSize(1))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	// First job occupies the loop (blocked on the gate); wait until the
	// toolchain has actually picked it up so the queue state is known.
	require.NoError(t, w.Submit(Job{Project: "proj", FullProject: true}))
	deadline := time.Now().Add(5 * time.Second)
	for len(tc.callNames()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the first job to start")
		}
		time.Sleep(time.Millisecond)
	}

	// Second fills the size-1 queue; a third must be rejected rather
	// than block.
	require.NoError(t, w.Submit(Job{Project: "proj", FullProject: true}))
	err := w.Submit(Job{Project: "proj", FullProject: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull))

	close(tc.gate)
}

func TestWorker_SubmitDuringStopDoesNotPanic(t *testing.T) {
	// Submissions racing a concurrent Stop must resolve to enqueued or
	// ErrWorkerStopped, never a send on a closed queue.
	for i := 0; i < 50; i++ {
		w := New("proj", "/proj", newFakeToolchain())
		require.NoError(t, w.Start(context.Background()))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := w.Submit(Job{Project: "proj", FullProject: true})
				if errors.Is(err, ErrWorkerStopped) {
					return
				}
			}
		}()

		w.Stop(context.Background())
		wg.Wait()
		assert.Equal(t, StateStopped, w.State())
	}
}

func TestWorker_StartFailureIsFatal(t *testing.T) {
	proc := toolchain.NewProc(toolchain.ProcConfig{Command: "no-such-toolchain-binary"})
	w := New("proj", "/proj", proc)

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, toolchain.ErrStartFailed))
	assert.Equal(t, StateStopped, w.State())
}
