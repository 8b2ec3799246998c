// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package build

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tidepool/services/langd/diag"
	"github.com/AleutianAI/tidepool/services/langd/events"
	"github.com/AleutianAI/tidepool/services/langd/source"
	"github.com/AleutianAI/tidepool/services/langd/toolchain"
)

// outcome is one scripted toolchain response.
type outcome struct {
	res   *toolchain.Result
	err   error
	panic bool
}

// scriptedToolchain returns pre-scripted outcomes in call order. When
// the script runs out, the last outcome repeats.
type scriptedToolchain struct {
	mu     sync.Mutex
	script []outcome
	calls  int
}

func (s *scriptedToolchain) next() outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.script) == 0 {
		return outcome{res: &toolchain.Result{}}
	}
	o := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	return o
}

func (s *scriptedToolchain) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedToolchain) CompileProject(ctx context.Context, root string, forceFull bool) (*toolchain.Result, error) {
	o := s.next()
	if o.panic {
		panic("scripted toolchain failure")
	}
	return o.res, o.err
}

func (s *scriptedToolchain) CompileFile(ctx context.Context, path string, src []byte) (*toolchain.Result, error) {
	o := s.next()
	if o.panic {
		panic("scripted toolchain failure")
	}
	return o.res, o.err
}

// recorder collects published events. Handlers must stay trivial: they
// run on the completion path.
type recorder struct {
	mu      sync.Mutex
	all     []events.Event
	arrived chan events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{arrived: make(chan events.Event, 64)}
	bus.Subscribe(func(e *events.Event) {
		r.mu.Lock()
		r.all = append(r.all, *e)
		r.mu.Unlock()
		r.arrived <- *e
	})
	return r
}

// waitFor blocks until an event of the given type arrives.
func (r *recorder) waitFor(t *testing.T, typ events.Type) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-r.arrived:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

// updatesSince returns the module_updated payloads recorded so far.
func (r *recorder) updates() []events.ModuleUpdated {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.ModuleUpdated
	for _, e := range r.all {
		if e.Type == events.TypeModuleUpdated {
			out = append(out, e.Data.(events.ModuleUpdated))
		}
	}
	return out
}

func resultWith(modules ...toolchain.ModuleMetadata) *toolchain.Result {
	return &toolchain.Result{Modules: modules}
}

func newTestCoordinator(t *testing.T, tc toolchain.Toolchain) (*Coordinator, *events.Bus, *recorder) {
	t.Helper()
	bus := events.NewBus()
	rec := record(bus)
	co, err := NewCoordinator(bus, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, co.AddProject(context.Background(), "demo", t.TempDir(), tc))
	t.Cleanup(func() { _ = co.Close(context.Background()) })
	return co, bus, rec
}

func TestCoordinator_PublishesModuleDeltas(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{
		{res: resultWith(toolchain.ModuleMetadata{
			Name:      "auth",
			Functions: []toolchain.Symbol{{Name: "login", Arity: 1}},
		})},
		{res: resultWith(toolchain.ModuleMetadata{
			Name:      "auth",
			Functions: []toolchain.Symbol{{Name: "login", Arity: 2}},
		})},
		{res: resultWith(toolchain.ModuleMetadata{
			Name:      "auth",
			Functions: []toolchain.Symbol{{Name: "login", Arity: 2}},
		})},
	}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	e := rec.waitFor(t, events.TypeProjectCompiled)
	assert.Equal(t, events.StatusOK, e.Data.(events.ProjectCompiled).Status)

	ups := rec.updates()
	require.Len(t, ups, 1, "first sighting of a module is a delta")
	assert.Equal(t, "auth", ups[0].Module)
	assert.Equal(t, []toolchain.Symbol{{Name: "login", Arity: 1}}, ups[0].Functions)

	// Arity change publishes exactly one more delta with the full list.
	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	rec.waitFor(t, events.TypeProjectCompiled)

	ups = rec.updates()
	require.Len(t, ups, 2)
	assert.Equal(t, []toolchain.Symbol{{Name: "login", Arity: 2}}, ups[1].Functions)

	// Identical result publishes no delta at all.
	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	rec.waitFor(t, events.TypeProjectCompiled)
	assert.Len(t, rec.updates(), 2)
}

func TestCoordinator_RemovedModulePublishesEmptyLists(t *testing.T) {
	both := resultWith(
		toolchain.ModuleMetadata{Name: "auth", Functions: []toolchain.Symbol{{Name: "login", Arity: 1}}},
		toolchain.ModuleMetadata{Name: "billing", Functions: []toolchain.Symbol{{Name: "charge", Arity: 2}}},
	)
	onlyAuth := resultWith(
		toolchain.ModuleMetadata{Name: "auth", Functions: []toolchain.Symbol{{Name: "login", Arity: 1}}},
	)
	tc := &scriptedToolchain{script: []outcome{{res: both}, {res: onlyAuth}}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	rec.waitFor(t, events.TypeProjectCompiled)
	require.Len(t, rec.updates(), 2)

	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	rec.waitFor(t, events.TypeProjectCompiled)

	ups := rec.updates()
	require.Len(t, ups, 3)
	assert.Equal(t, "billing", ups[2].Module)
	assert.Empty(t, ups[2].Functions)
	assert.Empty(t, ups[2].Macros)
	assert.NotNil(t, ups[2].Functions, "absent module still carries [] not null")
}

func TestCoordinator_SingleFileDoesNotRemoveModules(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{
		{res: resultWith(
			toolchain.ModuleMetadata{Name: "auth", Functions: []toolchain.Symbol{{Name: "login", Arity: 1}}},
			toolchain.ModuleMetadata{Name: "billing", Functions: []toolchain.Symbol{{Name: "charge", Arity: 2}}},
		)},
		{res: resultWith(
			toolchain.ModuleMetadata{Name: "auth", Functions: []toolchain.Symbol{{Name: "login", Arity: 1}}},
		)},
	}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	rec.waitFor(t, events.TypeProjectCompiled)
	require.Len(t, rec.updates(), 2)

	// A file compile only mentions auth; billing must survive untouched.
	f := source.NewFile("file:///src/auth.ext", "/src/auth.ext", 3, []byte("defmodule auth"))
	require.NoError(t, co.CompileSourceFile(ctx, "demo", f))
	rec.waitFor(t, events.TypeFileCompiled)
	assert.Len(t, rec.updates(), 2, "single-file compile never concludes a module was removed")
}

func TestCoordinator_FileCompiledCarriesVersionAndDiagnostics(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{{
		res: &toolchain.Result{Diagnostics: []toolchain.RawDiagnostic{
			{Severity: "warning", Line: 4, Column: 2, Message: "unused variable"},
		}},
	}}}
	co, _, rec := newTestCoordinator(t, tc)

	f := source.NewFile("file:///src/a.ext", "/src/a.ext", 7, []byte("x = 1"))
	require.NoError(t, co.CompileSourceFile(context.Background(), "demo", f))

	e := rec.waitFor(t, events.TypeFileCompiled)
	fc := e.Data.(events.FileCompiled)
	assert.Equal(t, "file:///src/a.ext", fc.URI)
	assert.Equal(t, int32(7), fc.Version)
	assert.Equal(t, events.StatusOK, fc.Status, "warnings alone do not fail the compile")
	require.Len(t, fc.Diagnostics, 1)
	assert.Equal(t, diag.SeverityWarning, fc.Diagnostics[0].Severity)
}

func TestCoordinator_CrashBecomesSyntheticDiagnostic(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{
		{panic: true},
		{res: resultWith()},
	}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	e := rec.waitFor(t, events.TypeProjectCompiled)
	pc := e.Data.(events.ProjectCompiled)
	assert.Equal(t, events.StatusError, pc.Status)
	require.Len(t, pc.Diagnostics, 1)
	assert.Equal(t, diag.SeverityError, pc.Diagnostics[0].Severity)
	assert.Contains(t, pc.Diagnostics[0].Message, "compilation failed")

	// The crash never takes the coordinator down: the next compile runs.
	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	e = rec.waitFor(t, events.TypeProjectCompiled)
	assert.Equal(t, events.StatusOK, e.Data.(events.ProjectCompiled).Status)
}

func TestCoordinator_ErrorDiagnosticsFlipStatus(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{{
		res: &toolchain.Result{Diagnostics: []toolchain.RawDiagnostic{
			{Severity: "error", Line: 1, Message: "undefined function frob/2",
				Module: "auth", Function: "frob", Arity: 2},
		}},
	}}}
	co, _, rec := newTestCoordinator(t, tc)

	require.NoError(t, co.ScheduleCompile(context.Background(), "demo", true))
	e := rec.waitFor(t, events.TypeProjectCompiled)
	pc := e.Data.(events.ProjectCompiled)
	assert.Equal(t, events.StatusError, pc.Status)
	require.Len(t, pc.Diagnostics, 1)
	require.NotNil(t, pc.Diagnostics[0].Detail)
	assert.Equal(t, 2, pc.Diagnostics[0].Detail.Arity)
}

func TestCoordinator_CacheReplaysIdenticalContent(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{{res: resultWith()}}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	f := source.NewFile("file:///src/a.ext", "/src/a.ext", 1, []byte("x = 1"))
	require.NoError(t, co.CompileSourceFile(ctx, "demo", f))
	rec.waitFor(t, events.TypeFileCompiled)
	require.Equal(t, 1, tc.callCount())

	// Same path, same bytes: served from cache, event still published.
	f2 := source.NewFile("file:///src/a.ext", "/src/a.ext", 2, []byte("x = 1"))
	require.NoError(t, co.CompileSourceFile(ctx, "demo", f2))
	e := rec.waitFor(t, events.TypeFileCompiled)
	assert.Equal(t, int32(2), e.Data.(events.FileCompiled).Version)
	assert.Equal(t, 1, tc.callCount(), "identical content must not re-invoke the toolchain")

	// Different content misses.
	f3 := source.NewFile("file:///src/a.ext", "/src/a.ext", 3, []byte("x = 2"))
	require.NoError(t, co.CompileSourceFile(ctx, "demo", f3))
	rec.waitFor(t, events.TypeFileCompiled)
	assert.Equal(t, 2, tc.callCount())
}

func TestCoordinator_DirtyTracking(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{{res: resultWith()}}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	co.MarkDirty("demo", "file:///b.ext")
	co.MarkDirty("demo", "file:///a.ext")
	co.MarkDirty("demo", "file:///a.ext")
	assert.Equal(t, []string{"file:///a.ext", "file:///b.ext"}, co.DirtyFiles("demo"))

	require.NoError(t, co.ScheduleCompile(ctx, "demo", false))
	rec.waitFor(t, events.TypeProjectCompiled)
	assert.Empty(t, co.DirtyFiles("demo"), "successful full compile clears the dirty set")
}

func TestCoordinator_UnknownProject(t *testing.T) {
	tc := &scriptedToolchain{}
	co, _, _ := newTestCoordinator(t, tc)
	ctx := context.Background()

	err := co.ScheduleCompile(ctx, "nope", true)
	assert.ErrorIs(t, err, ErrUnknownProject)

	f := source.NewFile("file:///x", "/x", 1, nil)
	err = co.CompileSourceFile(ctx, "nope", f)
	assert.ErrorIs(t, err, ErrUnknownProject)

	assert.Nil(t, co.DirtyFiles("nope"))
}

func TestCoordinator_DuplicateProject(t *testing.T) {
	tc := &scriptedToolchain{}
	co, _, _ := newTestCoordinator(t, tc)

	err := co.AddProject(context.Background(), "demo", t.TempDir(), &scriptedToolchain{})
	assert.ErrorIs(t, err, ErrProjectExists)
	assert.Equal(t, []string{"demo"}, co.Projects())
}

func TestCoordinator_ClosedRejectsWork(t *testing.T) {
	bus := events.NewBus()
	co, err := NewCoordinator(bus, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, co.AddProject(context.Background(), "demo", t.TempDir(), &scriptedToolchain{}))

	require.NoError(t, co.Close(context.Background()))
	require.NoError(t, co.Close(context.Background()), "close is idempotent")

	assert.ErrorIs(t, co.ScheduleCompile(context.Background(), "demo", true), ErrClosed)
	assert.ErrorIs(t, co.AddProject(context.Background(), "late", t.TempDir(), &scriptedToolchain{}), ErrClosed)
}

func TestCoordinator_SignaturesSurviveRestart(t *testing.T) {
	store := NewMemoryStore()
	mods := resultWith(toolchain.ModuleMetadata{
		Name:      "auth",
		Functions: []toolchain.Symbol{{Name: "login", Arity: 1}},
	})
	ctx := context.Background()

	bus := events.NewBus()
	rec := record(bus)
	co, err := NewCoordinator(bus, Config{Store: store, ResultCacheSize: 8})
	require.NoError(t, err)
	require.NoError(t, co.AddProject(ctx, "demo", t.TempDir(),
		&scriptedToolchain{script: []outcome{{res: mods}}}))
	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	rec.waitFor(t, events.TypeProjectCompiled)
	require.Len(t, rec.updates(), 1)
	require.NoError(t, co.Close(ctx))

	// A new coordinator over the same store already knows the module, so
	// an identical compile publishes no delta.
	bus2 := events.NewBus()
	rec2 := record(bus2)
	co2, err := NewCoordinator(bus2, Config{Store: store, ResultCacheSize: 8})
	require.NoError(t, err)
	require.NoError(t, co2.AddProject(ctx, "demo", t.TempDir(),
		&scriptedToolchain{script: []outcome{{res: mods}}}))
	require.NoError(t, co2.ScheduleCompile(ctx, "demo", true))
	rec2.waitFor(t, events.TypeProjectCompiled)
	assert.Empty(t, rec2.updates())
	require.NoError(t, co2.Close(ctx))
}

func TestCoordinator_CompletionOrderMatchesSubmission(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{{res: resultWith()}}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	require.NoError(t, co.ScheduleCompile(ctx, "demo", true))
	f := source.NewFile("file:///src/a.ext", "/src/a.ext", 1, []byte("x"))
	require.NoError(t, co.CompileSourceFile(ctx, "demo", f))

	first := rec.waitFor(t, events.TypeProjectCompiled)
	second := rec.waitFor(t, events.TypeFileCompiled)
	require.NotNil(t, first)
	require.NotNil(t, second)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var terminal []events.Type
	for _, e := range rec.all {
		if e.Type != events.TypeModuleUpdated {
			terminal = append(terminal, e.Type)
		}
	}
	assert.Equal(t, []events.Type{events.TypeProjectCompiled, events.TypeFileCompiled}, terminal)
}

func TestCoordinator_ManyFilesSerialized(t *testing.T) {
	tc := &scriptedToolchain{script: []outcome{{res: resultWith()}}}
	co, _, rec := newTestCoordinator(t, tc)
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		f := source.NewFile(
			fmt.Sprintf("file:///src/f%d.ext", i),
			fmt.Sprintf("/src/f%d.ext", i),
			1,
			[]byte(fmt.Sprintf("content %d", i)),
		)
		require.NoError(t, co.CompileSourceFile(ctx, "demo", f))
	}
	for i := 0; i < n; i++ {
		rec.waitFor(t, events.TypeFileCompiled)
	}
	assert.Equal(t, n, tc.callCount())
}
