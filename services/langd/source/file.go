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
	"bytes"

	"github.com/AleutianAI/tidepool/services/langd/text"
)

// File is the externally addressable editing unit: a versioned,
// dirty-tracked document identified by URI.
//
// Description:
//
//	File is an immutable value. Every successful edit returns a new File
//	with a strictly greater version; the previous value remains valid and
//	unaffected for any other holder.
//
// Thread Safety:
//
//	Safe for concurrent use as a value. Concurrency safety comes from
//	each caller holding its own exclusive reference to the latest File
//	it has observed, not from locking.
type File struct {
	// URI identifies the file to the editor client.
	URI string

	// Path is the file-system path backing the document.
	Path string

	// Version increases strictly across every successful edit.
	Version int32

	// Dirty is set on any successful edit and cleared only by MarkClean.
	Dirty bool

	// Doc is the current document content.
	Doc text.Document
}

// ContentChange is one edit delivered by the editor client.
//
// A nil Range means full replace: the entire document is replaced by a
// freshly split document of Text. A present Range means ranged replace
// of the addressed byte span.
type ContentChange struct {
	Range *Range
	Text  string
}

// NewFile creates a File over the given content at the given version.
func NewFile(uri, path string, version int32, content []byte) File {
	return File{
		URI:     uri,
		Path:    path,
		Version: version,
		Doc:     text.NewDocument(content),
	}
}

// MarkClean clears the dirty flag. Invoked by the persistence
// collaborator after the file is saved to disk.
func MarkClean(f File) File {
	f.Dirty = false
	return f
}

// ApplyContentChanges applies an ordered list of edits to f.
//
// Description:
//
//	Validates the version gate, then left-folds the changes over the
//	document. The first failing change aborts the whole application; the
//	returned error carries no partially mutated file, and f itself is
//	never modified. An empty change list is a no-op, not an error.
//
// Inputs:
//
//	f - The file to edit (unmodified)
//	newVersion - Must be strictly greater than f.Version
//	changes - Edits applied in list order
//
// Outputs:
//
//	File - The edited file: new document, Version=newVersion, Dirty set
//	error - ErrInvalidVersion or ErrInvalidRange (via VersionError /
//	        RangeError) on rejection
func ApplyContentChanges(f File, newVersion int32, changes []ContentChange) (File, error) {
	if newVersion <= f.Version {
		return f, &VersionError{Current: f.Version, Proposed: newVersion}
	}
	if len(changes) == 0 {
		return f, nil
	}

	doc := f.Doc
	for _, change := range changes {
		next, err := applyChange(doc, change)
		if err != nil {
			return f, err
		}
		doc = next
	}

	f.Doc = doc
	f.Version = newVersion
	f.Dirty = true
	return f, nil
}

// applyChange applies a single content change to doc.
func applyChange(doc text.Document, change ContentChange) (text.Document, error) {
	if change.Range == nil {
		// Full replace always succeeds and discards prior content.
		return text.NewDocumentAt([]byte(change.Text), doc.Start()), nil
	}

	r := *change.Range
	if !r.valid() {
		return doc, &RangeError{Range: r}
	}
	return rangedReplace(doc, r, change.Text), nil
}

// rangedReplace replaces the byte span addressed by r with newText,
// re-deriving line structure for the whole document afterward. No
// incremental line patching: correctness over micro-optimization.
func rangedReplace(doc text.Document, r Range, newText string) text.Document {
	// A start line past the last valid line is an append: whole current
	// content followed by the new text, with no line-boundary slicing.
	if r.Start.Line >= doc.Start()+doc.LineCount() {
		raw := append(doc.Bytes(), newText...)
		return text.NewDocumentAt(raw, doc.Start())
	}

	// A negative start line is a prepend.
	if r.Start.Line < doc.Start() {
		raw := append([]byte(newText), doc.Bytes()...)
		return text.NewDocumentAt(raw, doc.Start())
	}

	out := text.ReduceBuffer(doc, func(buf *bytes.Buffer, l text.Line) {
		switch {
		case l.Number < r.Start.Line || l.Number > r.End.Line:
			// Outside the edited span: kept verbatim.
			buf.Write(l.Text)
			buf.WriteString(string(l.Ending))

		case l.Number == r.Start.Line && l.Number == r.End.Line:
			// Single-line edit: prefix + new text + suffix + ending.
			buf.Write(linePrefix(l, r.Start.Character))
			buf.WriteString(newText)
			buf.Write(lineSuffix(l, r.End.Character))
			buf.WriteString(string(l.Ending))

		case l.Number == r.Start.Line:
			// Multi-line edit start: the line's own ending is superseded
			// by whatever follows in the inserted text or the next kept
			// line.
			buf.Write(linePrefix(l, r.Start.Character))
			buf.WriteString(newText)

		case l.Number == r.End.Line:
			// Multi-line edit end: suffix and ending survive.
			buf.Write(lineSuffix(l, r.End.Character))
			buf.WriteString(string(l.Ending))

			// Interior lines are dropped entirely.
		}
	})

	return text.NewDocumentAt(out, doc.Start())
}

// linePrefix returns the bytes of l before character c, clamping c to the
// line's byte length.
func linePrefix(l text.Line, c int) []byte {
	if c > l.Len() {
		c = l.Len()
	}
	return l.Text[:c]
}

// lineSuffix returns the bytes of l from character c onward, clamping c
// to the line's byte length.
func lineSuffix(l text.Line, c int) []byte {
	if c > l.Len() {
		c = l.Len()
	}
	return l.Text[c:]
}
