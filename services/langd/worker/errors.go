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

import "errors"

// Sentinel errors for worker operations.
var (
	// ErrAlreadyStarted indicates Start was called on a running worker.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrWorkerStopped indicates a job was submitted to a worker that
	// is not running.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrQueueFull indicates the job queue is at capacity.
	ErrQueueFull = errors.New("worker queue full")
)
