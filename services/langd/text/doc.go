// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package text provides the line-structured document model used by the
// editing core.
//
// A Document is an immutable view of one file's content, split into
// logical lines with their original line terminators preserved. Documents
// are replaced wholesale on every edit, never patched in place: the edit
// engine folds over the current lines, concatenates the result, and
// re-splits it into a fresh Document.
//
// # Invariants
//
//   - Line numbers are contiguous from the document's starting index.
//   - Concatenating Text + Ending for every line, in order, reproduces
//     the exact original byte sequence (round-trip invariant).
//   - An empty input yields a single empty line with no ending.
//
// # Thread Safety
//
// Documents are immutable after construction and safe to share across
// goroutines. Callers must not mutate the byte slices a Line exposes.
package text
