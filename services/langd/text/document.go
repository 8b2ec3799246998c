// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

import "bytes"

// Document is an immutable, line-structured view of one file's content.
//
// Description:
//
//	Wraps an ordered line index with a starting line offset (normally 0).
//	Construction never fails; any byte sequence is a valid document.
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent use.
type Document struct {
	lines []Line
	start int
}

// NewDocument splits raw into a Document with line numbers starting at 0.
func NewDocument(raw []byte) Document {
	return NewDocumentAt(raw, 0)
}

// NewDocumentAt splits raw into a Document whose first line is numbered
// start. Used when a document represents a fragment of a larger buffer.
func NewDocumentAt(raw []byte, start int) Document {
	return Document{lines: split(raw, start), start: start}
}

// Start returns the line-number origin of the document.
func (d Document) Start() int {
	return d.start
}

// LineCount returns the number of logical lines.
func (d Document) LineCount() int {
	return len(d.lines)
}

// LastLine returns the number of the last valid line.
func (d Document) LastLine() int {
	return d.start + len(d.lines) - 1
}

// Line returns the line with the given absolute number.
//
// Outputs:
//
//	Line - The requested line (zero value when not found)
//	bool - False when n is outside the document's bounds
func (d Document) Line(n int) (Line, bool) {
	i := n - d.start
	if i < 0 || i >= len(d.lines) {
		return Line{}, false
	}
	return d.lines[i], true
}

// Lines returns the ordered line sequence. The returned slice must be
// treated as read-only.
func (d Document) Lines() []Line {
	return d.lines
}

// Bytes reconstructs the exact original byte sequence: the concatenation
// of Text + Ending for every line, in order.
func (d Document) Bytes() []byte {
	n := 0
	for _, l := range d.lines {
		n += len(l.Text) + len(l.Ending)
	}
	buf := make([]byte, 0, n)
	for _, l := range d.lines {
		buf = append(buf, l.Text...)
		buf = append(buf, l.Ending...)
	}
	return buf
}

// Reduce folds fn over the document's lines in order.
//
// The edit engine uses this to rebuild content in a single pass without
// materializing an intermediate line structure.
func Reduce[T any](d Document, init T, fn func(T, Line) T) T {
	acc := init
	for _, l := range d.lines {
		acc = fn(acc, l)
	}
	return acc
}

// ReduceBuffer is a Reduce specialization for the common case of
// accumulating bytes.
func ReduceBuffer(d Document, fn func(*bytes.Buffer, Line)) []byte {
	var buf bytes.Buffer
	for _, l := range d.lines {
		fn(&buf, l)
	}
	return buf.Bytes()
}
