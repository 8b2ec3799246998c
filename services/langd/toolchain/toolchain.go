// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import "context"

// Symbol is one exported function or macro with its arity.
type Symbol struct {
	Name  string `json:"name"`
	Arity int    `json:"arity"`
}

// ModuleMetadata is the structural snapshot of one module as reported
// by a single compile.
type ModuleMetadata struct {
	Name      string   `json:"name"`
	Functions []Symbol `json:"functions"`
	Macros    []Symbol `json:"macros"`
}

// RawDiagnostic is the toolchain's diagnostic record, an external
// versioned contract. diag.Translate converts it to the stable shape;
// nothing else in the system should consume this type.
type RawDiagnostic struct {
	// Severity is the toolchain's severity word ("error", "warning").
	Severity string `json:"severity"`

	// Line and Column are zero-based.
	Line   int `json:"line"`
	Column int `json:"column"`

	Message string `json:"message"`

	// Module/Function/Arity optionally name the associated symbol.
	Module   string `json:"module,omitempty"`
	Function string `json:"function,omitempty"`
	Arity    int    `json:"arity,omitempty"`
}

// Result is the outcome of one compile invocation.
type Result struct {
	Diagnostics []RawDiagnostic  `json:"diagnostics"`
	Modules     []ModuleMetadata `json:"modules"`
}

// Toolchain is the black-box compile capability.
//
// Implementations are not required to be safe for concurrent use: the
// worker layer guarantees one in-flight call per instance.
type Toolchain interface {
	// CompileProject compiles every source file under root. forceFull
	// requests a from-scratch pass; implementations without an
	// incremental mode may ignore the flag and always compile fully.
	CompileProject(ctx context.Context, root string, forceFull bool) (*Result, error)

	// CompileFile compiles a single in-memory source, independent of
	// on-disk state.
	CompileFile(ctx context.Context, path string, src []byte) (*Result, error)
}

// Restartable is implemented by toolchains whose backing state can be
// torn down and rebuilt after a crash.
type Restartable interface {
	// Restart discards the toolchain's current state and brings up a
	// fresh instance. Called by the worker before the job following a
	// crash.
	Restart(ctx context.Context) error
}
