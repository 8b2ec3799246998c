// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"errors"
	"fmt"
)

// Sentinel errors for edit application.
var (
	// ErrInvalidVersion indicates an edit version not newer than the
	// file's current version. Protocol-level rejection of a single edit;
	// never surfaced as a document diagnostic.
	ErrInvalidVersion = errors.New("edit version not newer than current")

	// ErrInvalidRange indicates a malformed range in a content change.
	ErrInvalidRange = errors.New("invalid edit range")
)

// RangeError reports a malformed range and carries the offending range
// for diagnostics.
type RangeError struct {
	// Range is the offending range as delivered.
	Range Range
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid edit range %s", e.Range)
}

// Unwrap makes errors.Is(err, ErrInvalidRange) true.
func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// VersionError reports a rejected edit version.
type VersionError struct {
	// Current is the file's version at rejection time.
	Current int32

	// Proposed is the version the edit carried.
	Proposed int32
}

// Error implements the error interface.
func (e *VersionError) Error() string {
	return fmt.Sprintf("edit version %d not newer than current %d", e.Proposed, e.Current)
}

// Unwrap makes errors.Is(err, ErrInvalidVersion) true.
func (e *VersionError) Unwrap() error {
	return ErrInvalidVersion
}
