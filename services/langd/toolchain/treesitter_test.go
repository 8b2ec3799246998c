// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_CompileFile_Functions(t *testing.T) {
	src := []byte(`package demo

func Zero() {}

func One(a int) {}

func Grouped(a, b int) {}

func Unnamed(int, string) {}

func Variadic(prefix string, rest ...int) {}

func (s *Server) Method(x int) {}
`)

	ref := NewRef()
	res, err := ref.CompileFile(context.Background(), "/proj/demo.go", src)
	require.NoError(t, err)
	require.Len(t, res.Modules, 1)

	m := res.Modules[0]
	assert.Equal(t, "demo", m.Name)
	assert.Equal(t, []Symbol{
		{Name: "Grouped", Arity: 2},
		{Name: "Method", Arity: 1},
		{Name: "One", Arity: 1},
		{Name: "Unnamed", Arity: 2},
		{Name: "Variadic", Arity: 2},
		{Name: "Zero", Arity: 0},
	}, m.Functions)
	assert.Empty(t, m.Macros)
	assert.NotNil(t, m.Macros)
}

func TestRef_CompileFile_SyntaxErrors(t *testing.T) {
	src := []byte("package broken\n\nfunc Oops( {\n")

	ref := NewRef()
	res, err := ref.CompileFile(context.Background(), "/proj/broken.go", src)
	require.NoError(t, err)
	require.NotEmpty(t, res.Diagnostics)
	assert.Equal(t, "error", res.Diagnostics[0].Severity)
}

func TestRef_CompileFile_TooLarge(t *testing.T) {
	ref := NewRef(WithMaxFileSize(8))

	_, err := ref.CompileFile(context.Background(), "/proj/big.go", []byte("package aaaaaaaa"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
}

func TestRef_CompileFile_InvalidUTF8(t *testing.T) {
	ref := NewRef()

	res, err := ref.CompileFile(context.Background(), "/proj/bin.go", []byte{0xff, 0xfe, 0x00})
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "error", res.Diagnostics[0].Severity)
}

func TestRef_CompileProject_MergesPackages(t *testing.T) {
	root := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	write("a.go", "package demo\n\nfunc A() {}\n")
	write("b.go", "package demo\n\nfunc B(x int) {}\n")
	write("other.go", "package other\n\nfunc C() {}\n")
	write("notes.txt", "not source")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor"), 0o755))
	write(filepath.Join("vendor", "v.go"), "package vendored\n\nfunc V() {}\n")

	ref := NewRef()
	res, err := ref.CompileProject(context.Background(), root, true)
	require.NoError(t, err)

	require.Len(t, res.Modules, 2)
	assert.Equal(t, "demo", res.Modules[0].Name)
	assert.Equal(t, []Symbol{{Name: "A"}, {Name: "B", Arity: 1}}, res.Modules[0].Functions)
	assert.Equal(t, "other", res.Modules[1].Name)
}

func TestRef_CompileProject_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ref := NewRef()
	_, err := ref.CompileProject(ctx, t.TempDir(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
