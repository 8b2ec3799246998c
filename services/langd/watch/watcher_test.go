// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe(t *testing.T) {
	now := time.Now()
	in := []Change{
		{Path: "/a", Op: OpCreate, Time: now},
		{Path: "/b", Op: OpWrite, Time: now},
		{Path: "/a", Op: OpWrite, Time: now.Add(time.Millisecond)},
	}
	out := dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "/a", out[0].Path)
	assert.Equal(t, OpWrite, out[0].Op, "later change for the same path wins")
	assert.Equal(t, "/b", out[1].Path)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(99).String())
}

func TestWatcher_Filters(t *testing.T) {
	w, err := New(t.TempDir(), nil, Options{Extensions: []string{".ex", ".exs"}})
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.wanted("/proj/lib/auth.ex"))
	assert.True(t, w.wanted("/proj/test/auth_test.exs"))
	assert.False(t, w.wanted("/proj/README.md"))

	assert.True(t, w.ignored("/proj/.git"))
	assert.True(t, w.ignored("/proj/_build"))
	assert.True(t, w.ignored("/proj/lib/auth.ex.swp"))
	assert.False(t, w.ignored("/proj/lib"))
}

func TestWatcher_DeliversDebouncedBatch(t *testing.T) {
	root := t.TempDir()
	batches := make(chan []Change, 4)

	w, err := New(root, func(changes []Change) { batches <- changes },
		Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.True(t, w.Running())

	path := filepath.Join(root, "auth.ex")
	require.NoError(t, os.WriteFile(path, []byte("defmodule Auth do\nend\n"), 0o644))

	select {
	case batch := <-batches:
		require.NotEmpty(t, batch)
		found := false
		for _, c := range batch {
			if c.Path == path {
				found = true
			}
		}
		assert.True(t, found, "batch should contain the written file")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), nil, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
	assert.False(t, w.Running())
}

type fakeScheduler struct {
	mu        sync.Mutex
	dirty     []string
	scheduled int
}

func (f *fakeScheduler) MarkDirty(project, uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = append(f.dirty, uri)
}

func (f *fakeScheduler) ScheduleCompile(ctx context.Context, project string, forceFull bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled++
	return nil
}

func TestCompileTrigger(t *testing.T) {
	s := &fakeScheduler{}
	h := CompileTrigger(context.Background(), s, "demo")

	h([]Change{
		{Path: "/proj/lib/a.ex", Op: OpWrite},
		{Path: "/proj/lib/b.ex", Op: OpCreate},
	})

	assert.Equal(t, []string{"file:///proj/lib/a.ex", "file:///proj/lib/b.ex"}, s.dirty)
	assert.Equal(t, 1, s.scheduled, "one batch schedules one compile")
}
