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

import "errors"

// Sentinel errors for coordinator operations.
var (
	// ErrUnknownProject indicates no worker is registered for the
	// named project.
	ErrUnknownProject = errors.New("unknown project")

	// ErrProjectExists indicates AddProject was called twice for the
	// same project name.
	ErrProjectExists = errors.New("project already registered")

	// ErrClosed indicates the coordinator has been shut down.
	ErrClosed = errors.New("coordinator closed")
)
