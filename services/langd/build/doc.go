// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package build schedules compiles and turns raw toolchain output into
// structural-delta events.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                          Coordinator                             │
//	│                                                                  │
//	│  ScheduleCompile ──┐                     ┌── signature table     │
//	│  CompileSourceFile ┼──► worker (1/proj) ─┼── result LRU cache    │
//	│  MarkDirty ────────┘     serialized      └── signature store     │
//	│                              │                (memory / badger)  │
//	│                              ▼                                   │
//	│                     completion path ──► events.Bus               │
//	│                                          file_compiled           │
//	│                                          module_updated          │
//	│                                          project_compiled        │
//	└──────────────────────────────────────────────────────────────────┘
//
// Each project owns one compile worker; completions arrive on that
// worker's loop goroutine or, for cache replays, a short-lived replay
// goroutine. A per-project mutex serializes the two, so the signature
// table is only ever mutated from one completion at a time.
//
// # Delta Semantics
//
// A module_updated event always carries the module's full current
// function/macro lists, not a patch. A module that disappears from a
// full-project compile is published once with empty lists and dropped
// from the table.
//
// # Failure Policy
//
// A toolchain crash during a compile is reported as a file_compiled or
// project_compiled event with status error and a synthetic diagnostic;
// it never propagates as a failure of the Coordinator, which remains
// usable for subsequent compiles.
package build
