// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag defines the stable diagnostic shape shared by file-level
// and project-level compile reports.
//
// The toolchain's diagnostic record is an external, versioned contract.
// Translate is the single function at that boundary; the rest of the
// system only ever sees the types in this package.
package diag

import "github.com/AleutianAI/tidepool/services/langd/toolchain"

// Severity classifies a diagnostic.
type Severity string

const (
	// SeverityError marks a diagnostic that fails the compile.
	SeverityError Severity = "error"

	// SeverityWarning marks a recoverable diagnostic.
	SeverityWarning Severity = "warning"
)

// SymbolRef optionally associates a diagnostic with a symbol.
type SymbolRef struct {
	Module   string `json:"module"`
	Function string `json:"function"`
	Arity    int    `json:"arity"`
}

// Diagnostic is the stable diagnostic shape published to listeners.
//
// Line and Column are zero-based positions in the internal byte-offset
// coordinate space.
type Diagnostic struct {
	Severity Severity   `json:"severity"`
	Line     int        `json:"line"`
	Column   int        `json:"column"`
	Message  string     `json:"message"`
	Detail   *SymbolRef `json:"detail,omitempty"`
}

// Translate converts one opaque toolchain diagnostic record into the
// stable shape.
//
// Unknown raw severities map to errors: an unrecognized record from a
// newer toolchain must surface loudly, not vanish.
func Translate(raw toolchain.RawDiagnostic) Diagnostic {
	d := Diagnostic{
		Severity: SeverityError,
		Line:     raw.Line,
		Column:   raw.Column,
		Message:  raw.Message,
	}
	if raw.Severity == string(SeverityWarning) {
		d.Severity = SeverityWarning
	}
	if raw.Module != "" || raw.Function != "" {
		d.Detail = &SymbolRef{
			Module:   raw.Module,
			Function: raw.Function,
			Arity:    raw.Arity,
		}
	}
	return d
}

// TranslateAll translates a slice of raw records, preserving order.
// A nil input yields an empty, non-nil slice so event payloads always
// marshal as [] rather than null.
func TranslateAll(raw []toolchain.RawDiagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(raw))
	for _, r := range raw {
		out = append(out, Translate(r))
	}
	return out
}

// Synthetic builds the diagnostic used to report a toolchain crash or
// other internal failure as a compile result.
func Synthetic(msg string) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Message:  msg,
	}
}

// HasErrors reports whether any diagnostic in ds is an error.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
