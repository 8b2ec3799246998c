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

import "errors"

// Sentinel errors for toolchain operations.
var (
	// ErrToolchainCrashed indicates the toolchain process terminated
	// unexpectedly during a request.
	ErrToolchainCrashed = errors.New("toolchain crashed")

	// ErrNotStarted indicates a request was sent before Start.
	ErrNotStarted = errors.New("toolchain not started")

	// ErrAlreadyStarted indicates Start was called twice without an
	// intervening Stop or Restart.
	ErrAlreadyStarted = errors.New("toolchain already started")

	// ErrStartFailed indicates the toolchain process could not be
	// launched. Fatal for the owning project's compile capability; not
	// retried automatically.
	ErrStartFailed = errors.New("toolchain start failed")

	// ErrFileTooLarge indicates input content exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidResponse indicates a toolchain reply could not be
	// parsed.
	ErrInvalidResponse = errors.New("invalid toolchain response")
)
