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

import "github.com/AleutianAI/tidepool/services/langd/toolchain"

// Signature is the last-known structural snapshot of one module:
// its functions and macros with arities, in sorted order.
//
// Signatures are exclusively owned and mutated by the Coordinator for
// one project; they are never shared across projects.
type Signature struct {
	Functions []toolchain.Symbol `json:"functions"`
	Macros    []toolchain.Symbol `json:"macros"`
}

// signatureOf builds a Signature from reported module metadata.
// Nil symbol slices normalize to empty so snapshots always marshal as
// [] and compare consistently.
func signatureOf(m toolchain.ModuleMetadata) Signature {
	return Signature{
		Functions: normalize(m.Functions),
		Macros:    normalize(m.Macros),
	}
}

// Equal reports whether two signatures describe the same structure.
func (s Signature) Equal(other Signature) bool {
	return symbolsEqual(s.Functions, other.Functions) &&
		symbolsEqual(s.Macros, other.Macros)
}

// symbolsEqual compares two ordered symbol lists.
func symbolsEqual(a, b []toolchain.Symbol) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalize returns a non-nil copy of syms.
func normalize(syms []toolchain.Symbol) []toolchain.Symbol {
	out := make([]toolchain.Symbol, len(syms))
	copy(out, syms)
	return out
}
