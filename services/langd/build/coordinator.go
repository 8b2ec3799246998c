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
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/tidepool/services/langd/diag"
	"github.com/AleutianAI/tidepool/services/langd/events"
	"github.com/AleutianAI/tidepool/services/langd/source"
	"github.com/AleutianAI/tidepool/services/langd/toolchain"
	"github.com/AleutianAI/tidepool/services/langd/worker"
)

// Config configures a Coordinator.
type Config struct {
	// Store persists module signature snapshots. Nil means a fresh
	// in-memory store.
	Store SignatureStore

	// ResultCacheSize bounds the single-file compile result cache.
	// Zero disables caching; default 128.
	ResultCacheSize int

	// WorkerQueueSize is passed through to each project's worker.
	WorkerQueueSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ResultCacheSize: 128, WorkerQueueSize: 64}
}

// project is the coordinator's per-project state.
type project struct {
	name string
	root string
	w    *worker.Worker

	// mu serializes the completion path (worker loop plus cache
	// replays). The signature table and dirty set are only touched
	// under it.
	mu    sync.Mutex
	sigs  map[string]Signature
	dirty map[string]struct{}
}

// Coordinator owns the mapping from project to its compile worker,
// schedules compiles, and republishes toolchain output as events.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Coordinator struct {
	bus   *events.Bus
	store SignatureStore
	cache *resultCache

	workerQueue int

	mu       sync.Mutex
	closed   bool
	projects map[string]*project
}

// NewCoordinator creates a Coordinator publishing to bus.
func NewCoordinator(bus *events.Bus, cfg Config) (*Coordinator, error) {
	if bus == nil {
		return nil, fmt.Errorf("bus must not be nil")
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	cache, err := newResultCache(cfg.ResultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	if err := initMetrics(); err != nil {
		slog.Warn("build metrics unavailable", slog.String("error", err.Error()))
	}
	if cfg.WorkerQueueSize <= 0 {
		cfg.WorkerQueueSize = 64
	}
	return &Coordinator{
		bus:         bus,
		store:       cfg.Store,
		cache:       cache,
		workerQueue: cfg.WorkerQueueSize,
		projects:    make(map[string]*project),
	}, nil
}

// AddProject registers a project and starts its compile worker.
//
// Description:
//
//	Starting the worker is synchronous; a toolchain that fails to start
//	is fatal for this project's compile capability and surfaces here as
//	an error. Previously persisted module signatures are loaded so the
//	first compile only publishes real deltas.
func (c *Coordinator) AddProject(ctx context.Context, name, root string, tc toolchain.Toolchain) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.projects[name]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProjectExists, name)
	}
	c.mu.Unlock()

	sigs, err := c.store.Load(name)
	if err != nil {
		return fmt.Errorf("load signatures: %w", err)
	}

	w := worker.New(name, root, tc, worker.WithQueueSize(c.workerQueue))
	if err := w.Start(ctx); err != nil {
		return err
	}

	ps := &project{
		name:  name,
		root:  root,
		w:     w,
		sigs:  sigs,
		dirty: make(map[string]struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		w.Stop(ctx)
		return ErrClosed
	}
	c.projects[name] = ps

	slog.Info("project registered",
		slog.String("project", name),
		slog.String("root", root),
		slog.Int("known_modules", len(sigs)))
	return nil
}

// RemoveProject stops and forgets a project's worker. The persisted
// signature snapshot is kept for a future re-registration.
func (c *Coordinator) RemoveProject(ctx context.Context, name string) {
	c.mu.Lock()
	ps, ok := c.projects[name]
	delete(c.projects, name)
	c.mu.Unlock()
	if ok {
		ps.w.Stop(ctx)
	}
}

// Projects returns the registered project names, sorted.
func (c *Coordinator) Projects() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.projects))
	for name := range c.projects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// lookup finds a registered project.
func (c *Coordinator) lookup(name string) (*project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	ps, ok := c.projects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, name)
	}
	return ps, nil
}

// ScheduleCompile enqueues a full-project compile. Non-blocking: the
// compile runs on the project's worker and results arrive as events.
//
// forceFull=false may be satisfied by a lighter incremental pass when
// the toolchain supports one; otherwise it behaves like full.
func (c *Coordinator) ScheduleCompile(ctx context.Context, projectName string, forceFull bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ps, err := c.lookup(projectName)
	if err != nil {
		return err
	}

	job := worker.Job{
		Project:     projectName,
		FullProject: true,
		ForceFull:   forceFull,
		Done:        func(comp worker.Completion) { c.onCompletion(ps, comp) },
	}
	if err := ps.w.Submit(job); err != nil {
		return fmt.Errorf("schedule compile for %s: %w", projectName, err)
	}
	recordScheduled(projectName, true)
	return nil
}

// CompileSourceFile enqueues a single-file compile for immediate
// feedback while the file is being edited, independent of any pending
// full-project compile.
//
// An in-flight compile for the same file is never cancelled: both
// complete and both publish events, in completion order. A file whose
// content hash matches a previously compiled version replays the
// cached result without invoking the toolchain.
func (c *Coordinator) CompileSourceFile(ctx context.Context, projectName string, f source.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ps, err := c.lookup(projectName)
	if err != nil {
		return err
	}

	content := f.Doc.Bytes()
	key := c.cache.key(f.Path, content)
	if res, ok := c.cache.get(key); ok {
		recordCacheHit(projectName)
		slog.Debug("replaying cached compile result",
			slog.String("project", projectName),
			slog.String("uri", f.URI))
		fileCopy := f
		go c.onCompletion(ps, worker.Completion{
			Job:    worker.Job{Project: projectName, File: &fileCopy},
			Result: res,
		})
		return nil
	}

	fileCopy := f
	job := worker.Job{
		Project: projectName,
		File:    &fileCopy,
		Done: func(comp worker.Completion) {
			if comp.Err == nil {
				c.cache.put(key, comp.Result)
			}
			c.onCompletion(ps, comp)
		},
	}
	if err := ps.w.Submit(job); err != nil {
		return fmt.Errorf("compile %s: %w", f.URI, err)
	}
	recordScheduled(projectName, false)
	return nil
}

// MarkDirty records that a file changed since the last full compile.
func (c *Coordinator) MarkDirty(projectName, uri string) {
	ps, err := c.lookup(projectName)
	if err != nil {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dirty[uri] = struct{}{}
}

// DirtyFiles returns the URIs marked dirty since the last successful
// full-project compile, sorted.
func (c *Coordinator) DirtyFiles(projectName string) []string {
	ps, err := c.lookup(projectName)
	if err != nil {
		return nil
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]string, 0, len(ps.dirty))
	for uri := range ps.dirty {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Close stops every worker and closes the signature store.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	workers := make([]*worker.Worker, 0, len(c.projects))
	for _, ps := range c.projects {
		workers = append(workers, ps.w)
	}
	c.projects = make(map[string]*project)
	c.mu.Unlock()

	for _, w := range workers {
		w.Stop(ctx)
	}
	return c.store.Close()
}

// =============================================================================
// COMPLETION PATH
// =============================================================================

// onCompletion turns one compile outcome into events and signature
// updates. Runs under the project mutex: completions from the worker
// loop and cache replays are mutually serialized, and events publish in
// completion order. Module deltas publish before the terminal
// file_compiled/project_compiled event, so a listener that sees the
// terminal event has already seen every delta from that compile.
//
// Event handlers run on this goroutine while the project mutex is held;
// they must not call back into the Coordinator for the same project.
func (c *Coordinator) onCompletion(ps *project, comp worker.Completion) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var diags []diag.Diagnostic
	if comp.Result != nil {
		diags = diag.TranslateAll(comp.Result.Diagnostics)
	} else {
		diags = make([]diag.Diagnostic, 0, 1)
	}
	if comp.Err != nil {
		// A toolchain crash is reported as a compile outcome, never as
		// a coordinator failure.
		diags = append(diags, diag.Synthetic(fmt.Sprintf("compilation failed: %v", comp.Err)))
	}

	status := events.StatusOK
	if comp.Err != nil || diag.HasErrors(diags) {
		status = events.StatusError
	}

	if comp.Err == nil && comp.Result != nil {
		c.applyDeltas(ps, comp.Result.Modules, comp.Job.FullProject)
	}

	if comp.Job.FullProject || comp.Job.File == nil {
		c.bus.Publish(events.Event{
			Type:    events.TypeProjectCompiled,
			Project: ps.name,
			Data:    events.ProjectCompiled{Status: status, Diagnostics: diags},
		})
	} else {
		c.bus.Publish(events.Event{
			Type:    events.TypeFileCompiled,
			Project: ps.name,
			Data: events.FileCompiled{
				URI:         comp.Job.File.URI,
				Version:     comp.Job.File.Version,
				Status:      status,
				Diagnostics: diags,
			},
		})
	}

	if comp.Job.FullProject && comp.Err == nil {
		ps.dirty = make(map[string]struct{})
	}
}

// applyDeltas diffs reported modules against the signature table and
// publishes module_updated events. Only a full-project compile can
// conclude that a module no longer exists; a single-file compile has
// no visibility into the rest of the project.
func (c *Coordinator) applyDeltas(ps *project, modules []toolchain.ModuleMetadata, fullProject bool) {
	seen := make(map[string]struct{}, len(modules))

	for _, m := range modules {
		seen[m.Name] = struct{}{}
		sig := signatureOf(m)
		old, known := ps.sigs[m.Name]
		if known && old.Equal(sig) {
			continue
		}
		ps.sigs[m.Name] = sig
		recordDelta(ps.name)
		c.bus.Publish(events.Event{
			Type:    events.TypeModuleUpdated,
			Project: ps.name,
			Data: events.ModuleUpdated{
				Module:    m.Name,
				Functions: sig.Functions,
				Macros:    sig.Macros,
			},
		})
	}

	if fullProject {
		for name := range ps.sigs {
			if _, ok := seen[name]; ok {
				continue
			}
			delete(ps.sigs, name)
			recordDelta(ps.name)
			c.bus.Publish(events.Event{
				Type:    events.TypeModuleUpdated,
				Project: ps.name,
				Data: events.ModuleUpdated{
					Module:    name,
					Functions: []toolchain.Symbol{},
					Macros:    []toolchain.Symbol{},
				},
			})
		}
	}

	if err := c.store.Save(ps.name, ps.sigs); err != nil {
		slog.Warn("persisting module signatures failed",
			slog.String("project", ps.name),
			slog.String("error", err.Error()))
	}
}
