// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolchain defines the opaque compile capability the build
// pipeline orchestrates, plus two implementations.
//
// The pipeline never defines a compiler; it treats compilation as a
// black-box "compile(source) -> {diagnostics, module metadata}" call
// supplied by the host language's tooling.
//
// # Implementations
//
//   - Ref: an in-process reference toolchain backed by tree-sitter.
//     It extracts function declarations (name + arity) per package and
//     surfaces syntax-error nodes as diagnostics. Used by tests and as
//     a runnable default for projects without an external toolchain.
//
//   - Proc: an out-of-process toolchain. Proc launches the configured
//     binary and speaks Content-Length framed JSON over stdin/stdout,
//     so toolchain state never survives or leaks across a crash.
//
// # Crash Semantics
//
// A Proc whose process exits mid-request reports ErrToolchainCrashed.
// The worker layer converts that into a synthetic diagnostic and
// restarts the toolchain before the next job; callers of this package
// only ever see request/response semantics.
package toolchain
