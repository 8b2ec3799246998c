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

import "fmt"

// Position addresses a point in a document.
//
// Character is a byte offset into the line's text in the internal
// coordinate space; the protocol layer owns UTF-16 translation.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p orders strictly before other in
// (line, character) lexicographic order.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// String returns "line:character" for log output.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range is a (start, end) Position pair addressing a span of text for an
// edit. A Range outside current document bounds is a valid edit target
// (see the append/prepend policy in the edit engine) but never a valid
// read target.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// String returns "start-end" for log output.
func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

// valid reports whether the range can drive a ranged replace.
//
// Character offsets must be non-negative and the end must not order
// before the start. Line numbers may exceed document bounds (append)
// or be negative at the start (prepend); those are policy, not errors.
func (r Range) valid() bool {
	if r.Start.Character < 0 || r.End.Character < 0 {
		return false
	}
	if r.End.Before(r.Start) {
		return false
	}
	return true
}
