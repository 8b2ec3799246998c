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
	"log/slog"
)

// Scheduler is the slice of the build coordinator the trigger needs.
type Scheduler interface {
	MarkDirty(project, uri string)
	ScheduleCompile(ctx context.Context, project string, forceFull bool) error
}

// CompileTrigger builds a Handler that marks every changed file dirty
// and schedules one project compile per batch.
//
// One batch means one compile regardless of how many files changed;
// the worker's serialization takes care of overlap with in-flight work.
func CompileTrigger(ctx context.Context, s Scheduler, project string) Handler {
	return func(changes []Change) {
		for _, c := range changes {
			s.MarkDirty(project, fileURI(c.Path))
		}
		if err := s.ScheduleCompile(ctx, project, false); err != nil {
			slog.Warn("scheduling compile after file change failed",
				slog.String("project", project),
				slog.Int("changes", len(changes)),
				slog.String("error", err.Error()))
		}
	}
}

// fileURI converts an absolute path to a file URI.
func fileURI(path string) string {
	return "file://" + path
}
