// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch turns file-system activity under a project root into
// debounced change batches, which the serve path feeds into the build
// coordinator as dirty marks and compile requests.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CHANGES
// =============================================================================

// Op classifies a file-system change.
type Op int

const (
	// OpCreate indicates a file was created.
	OpCreate Op = iota

	// OpWrite indicates a file was modified.
	OpWrite

	// OpRemove indicates a file was deleted.
	OpRemove

	// OpRename indicates a file was renamed.
	OpRename
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one observed file-system change.
type Change struct {
	// Path is the absolute path of the changed file.
	Path string

	// Op classifies the change.
	Op Op

	// Time is when the change was observed.
	Time time.Time
}

// Handler receives one debounced, deduplicated batch of changes.
type Handler func(changes []Change)

// =============================================================================
// WATCHER
// =============================================================================

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for further changes before flushing
	// a batch. Default 100ms.
	Debounce time.Duration

	// Ignore lists directory/file name patterns to skip. Defaults cover
	// VCS metadata, build output, and editor temp files.
	Ignore []string

	// Extensions limits reported files to these suffixes (e.g. ".ex").
	// Empty means all files.
	Extensions []string

	// BufferSize is the raw change channel capacity. Default 1024.
	BufferSize int
}

// DefaultOptions returns the defaults used when Options fields are zero.
func DefaultOptions() Options {
	return Options{
		Debounce:   100 * time.Millisecond,
		Ignore:     []string{".git", ".hg", "_build", "deps", "node_modules", "vendor", "*.swp", "*.tmp", "*~"},
		BufferSize: 1024,
	}
}

// Watcher observes a project root recursively and delivers debounced
// change batches to a handler.
//
// Description:
//
//	Raw events are collected into a batch; when the debounce window
//	passes without new activity the batch is deduplicated (last change
//	per path wins) and handed to the handler. Rapid-fire saves during
//	active editing therefore trigger one compile, not dozens.
//
// Thread Safety:
//
//	Safe for concurrent use. The handler runs on a single goroutine.
type Watcher struct {
	root    string
	handler Handler
	opts    Options

	fsw     *fsnotify.Watcher
	changes chan Change

	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	running bool
}

// New creates a Watcher over root. Call Start to begin observing.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.Ignore == nil {
		opts.Ignore = defaults.Ignore
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    root,
		handler: handler,
		opts:    opts,
		fsw:     fsw,
		changes: make(chan Change, opts.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching root and all non-ignored subdirectories.
// Directories created later are picked up automatically.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.pump(ctx)
	go w.debounce(ctx)

	slog.Info("file watcher started", slog.String("root", w.root))
	return nil
}

// Stop terminates the watcher. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()

		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	})
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// addRecursive registers root and every non-ignored subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// ignored reports whether path matches an ignore pattern.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.Ignore {
		if base == pattern {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// wanted reports whether a file path passes the extension filter.
func (w *Watcher) wanted(path string) bool {
	if len(w.opts.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, want := range w.opts.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// pump converts raw fsnotify events into Changes.
func (w *Watcher) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(ev.Name) {
				continue
			}

			// New directories join the watch set immediately so files
			// created inside them are not missed.
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						slog.Warn("watching new directory failed",
							slog.String("path", ev.Name),
							slog.String("error", err.Error()))
					}
					continue
				}
			}

			if !w.wanted(ev.Name) {
				continue
			}

			change := Change{Path: ev.Name, Op: opOf(ev.Op), Time: time.Now()}
			select {
			case w.changes <- change:
			default:
				slog.Warn("change buffer full, dropping event",
					slog.String("path", ev.Name))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// opOf maps fsnotify operations onto Op.
func opOf(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

// debounce batches changes and flushes after a quiet window.
func (w *Watcher) debounce(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupe(batch)
			if w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the most recent change per path, preserving first-seen
// order of paths.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
