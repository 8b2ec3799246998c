// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides the typed publish/subscribe channel that
// decouples the build coordinator from its consumers.
//
// The coordinator publishes compile outcomes here; the protocol layer
// (and anything else) subscribes without the coordinator ever knowing
// its consumers' identities.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use. Events
//	are immutable after creation.
package events

import (
	"time"

	"github.com/AleutianAI/tidepool/services/langd/diag"
	"github.com/AleutianAI/tidepool/services/langd/toolchain"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeFileCompiled is published when a single-file compile finishes.
	TypeFileCompiled Type = "file_compiled"

	// TypeModuleUpdated is published when a module's structural
	// signature (functions/macros with arities) changes.
	TypeModuleUpdated Type = "module_updated"

	// TypeProjectCompiled is published when a full-project compile
	// finishes.
	TypeProjectCompiled Type = "project_compiled"
)

// Status summarizes a compile outcome.
type Status string

const (
	// StatusOK means the compile completed without error diagnostics.
	StatusOK Status = "ok"

	// StatusError means the compile reported errors or crashed.
	StatusError Status = "error"
)

// Event is one published occurrence.
//
// Data holds one of the typed payloads: FileCompiled, ModuleUpdated,
// ProjectCompiled, matching Type.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// Project names the project the event belongs to.
	Project string `json:"project"`

	// Timestamp is when the event was published (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`

	// Data is the typed payload.
	Data any `json:"data"`
}

// FileCompiled is the payload of TypeFileCompiled.
type FileCompiled struct {
	URI         string            `json:"uri"`
	Version     int32             `json:"version"`
	Status      Status            `json:"status"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

// ProjectCompiled is the payload of TypeProjectCompiled.
type ProjectCompiled struct {
	Status      Status            `json:"status"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

// ModuleUpdated is the payload of TypeModuleUpdated.
//
// Functions and Macros always carry the module's full current symbol
// lists, never a patch; listeners diff themselves if needed. Empty
// lists mean the module is no longer defined.
type ModuleUpdated struct {
	Module    string             `json:"name"`
	Functions []toolchain.Symbol `json:"functions"`
	Macros    []toolchain.Symbol `json:"macros"`
}

// now returns the event timestamp for the current instant.
func now() int64 {
	return time.Now().UTC().UnixMilli()
}
