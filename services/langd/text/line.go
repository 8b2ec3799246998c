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

// Ending is a line terminator as it appeared in the source bytes.
type Ending string

const (
	// EndingLF is a Unix line ending.
	EndingLF Ending = "\n"

	// EndingCRLF is a Windows line ending.
	EndingCRLF Ending = "\r\n"

	// EndingCR is a classic Mac line ending.
	EndingCR Ending = "\r"

	// EndingNone marks the last line of a document that does not end
	// with a terminator.
	EndingNone Ending = ""
)

// Line is one logical line of a document.
//
// Lines are immutable once produced; edits regenerate lines wholesale
// rather than patching them in place.
type Line struct {
	// Number is the line number in the document's coordinate space
	// (absolute, i.e. already offset by the document's starting index).
	Number int

	// Text is the line content without its terminator.
	Text []byte

	// Ending is the terminator that followed Text in the source bytes,
	// or EndingNone for an unterminated final line.
	Ending Ending
}

// Len returns the byte length of the line's text, excluding the ending.
func (l Line) Len() int {
	return len(l.Text)
}

// split cuts raw into lines, preserving each terminator verbatim.
//
// The number of lines is always the number of terminators plus one, so
// "a\n" yields ["a", ""] and an empty input yields a single empty line.
// This keeps the append/prepend edge cases of the edit engine uniform:
// a document ending in a newline has an addressable empty last line.
func split(raw []byte, start int) []Line {
	lines := make([]Line, 0, countLines(raw))
	lineStart := 0
	num := start

	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\n':
			lines = append(lines, Line{Number: num, Text: raw[lineStart:i:i], Ending: EndingLF})
			lineStart = i + 1
			num++
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				lines = append(lines, Line{Number: num, Text: raw[lineStart:i:i], Ending: EndingCRLF})
				i++
			} else {
				lines = append(lines, Line{Number: num, Text: raw[lineStart:i:i], Ending: EndingCR})
			}
			lineStart = i + 1
			num++
		}
	}

	lines = append(lines, Line{Number: num, Text: raw[lineStart:len(raw):len(raw)], Ending: EndingNone})
	return lines
}

// countLines pre-sizes the line slice for split.
func countLines(raw []byte) int {
	n := 1
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\n':
			n++
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
			n++
		}
	}
	return n
}
