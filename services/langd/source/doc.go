// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source implements the versioned, dirty-tracked editing unit of
// the language server core.
//
// A File wraps a text.Document with a URI, file-system path, version
// counter, and dirty flag. Files are immutable values: applying content
// changes returns a new File and leaves every previously observed value
// intact, so no locking is needed: each caller holds its own reference
// to the latest version it has seen.
//
// # Edit Application
//
//	┌──────────────┐   ApplyContentChanges    ┌──────────────┐
//	│ File v3      │ ───────────────────────► │ File v4      │
//	│ clean        │   version gate +         │ dirty        │
//	│ Document     │   left-fold of changes   │ new Document │
//	└──────────────┘                          └──────────────┘
//
// Version gating rejects any edit whose version is not strictly greater
// than the file's current version, so retransmitted or out-of-order edit
// deliveries are refused rather than silently corrupting state.
//
// Positions address bytes: Character is a byte offset into the line's
// text. Translation from editor UTF-16 offsets happens at the protocol
// boundary, outside this package.
package source
