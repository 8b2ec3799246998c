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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// File size constants for input validation.
const (
	// DefaultMaxFileSize is the maximum file size Ref will accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024
)

// RefOption configures a Ref instance.
type RefOption func(*Ref)

// WithMaxFileSize sets the maximum file size Ref will accept.
func WithMaxFileSize(bytes int64) RefOption {
	return func(r *Ref) {
		if bytes > 0 {
			r.maxFileSize = bytes
		}
	}
}

// Ref is the in-process reference toolchain, backed by tree-sitter.
//
// Description:
//
//	Ref compiles Go sources: each package is a module, each function or
//	method declaration a symbol whose arity is its parameter count.
//	Syntax-error nodes become error diagnostics. Ref is error-tolerant
//	and returns partial metadata for syntactically invalid code.
//
// Thread Safety:
//
//	Safe for concurrent use; each call creates its own tree-sitter
//	parser instance. The worker layer serializes calls anyway.
type Ref struct {
	maxFileSize int64
}

// NewRef creates a reference toolchain with the given options.
func NewRef(opts ...RefOption) *Ref {
	r := &Ref{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CompileFile compiles a single in-memory source.
func (r *Ref) CompileFile(ctx context.Context, path string, src []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.compileOne(ctx, path, src, "")
}

// CompileProject compiles every Go source under root, merging symbols
// of the same package into one module.
//
// Ref has no incremental mode, so forceFull=false is satisfied by the
// same full pass.
func (r *Ref) CompileProject(ctx context.Context, root string, forceFull bool) (*Result, error) {
	_ = forceFull

	merged := &Result{
		Diagnostics: make([]RawDiagnostic, 0),
		Modules:     make([]ModuleMetadata, 0),
	}
	modules := make(map[string]map[Symbol]struct{})

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "node_modules" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}

		src, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read %s: %w", path, rerr)
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			rel = path
		}

		res, cerr := r.compileOne(ctx, path, src, rel)
		if cerr != nil {
			return cerr
		}

		merged.Diagnostics = append(merged.Diagnostics, res.Diagnostics...)
		for _, m := range res.Modules {
			set, ok := modules[m.Name]
			if !ok {
				set = make(map[Symbol]struct{})
				modules[m.Name] = set
			}
			for _, fn := range m.Functions {
				set[fn] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		merged.Modules = append(merged.Modules, ModuleMetadata{
			Name:      name,
			Functions: sortedSymbols(modules[name]),
			Macros:    make([]Symbol, 0),
		})
	}
	return merged, nil
}

// compileOne parses one source and extracts its module metadata. When
// relPath is non-empty, diagnostic messages are prefixed with it so
// project-level reports identify the file.
func (r *Ref) compileOne(ctx context.Context, path string, src []byte, relPath string) (*Result, error) {
	if int64(len(src)) > r.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, len(src))
	}
	if len(src) > WarnFileSize {
		slog.Warn("compiling large file",
			slog.String("file", path),
			slog.Int("size_bytes", len(src)))
	}
	if !utf8.Valid(src) {
		return &Result{
			Diagnostics: []RawDiagnostic{{
				Severity: "error",
				Message:  prefixed(relPath, "source is not valid UTF-8"),
			}},
			Modules: make([]ModuleMetadata, 0),
		}, nil
	}

	// New parser instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	res := &Result{
		Diagnostics: make([]RawDiagnostic, 0),
		Modules:     make([]ModuleMetadata, 0),
	}
	if root == nil {
		res.Diagnostics = append(res.Diagnostics, RawDiagnostic{
			Severity: "error",
			Message:  prefixed(relPath, "parser returned no syntax tree"),
		})
		return res, nil
	}

	moduleName := packageName(root, src)
	if moduleName == "" {
		moduleName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if root.HasError() {
		collectSyntaxErrors(root, relPath, moduleName, res)
	}

	functions := make(map[Symbol]struct{})
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_declaration", "method_declaration":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			functions[Symbol{
				Name:  nameNode.Content(src),
				Arity: parameterCount(child.ChildByFieldName("parameters"), src),
			}] = struct{}{}
		}
	}

	res.Modules = append(res.Modules, ModuleMetadata{
		Name:      moduleName,
		Functions: sortedSymbols(functions),
		Macros:    make([]Symbol, 0),
	})
	return res, nil
}

// packageName extracts the package clause identifier.
func packageName(root *sitter.Node, src []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "package_clause" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			if id := child.NamedChild(j); id.Type() == "package_identifier" {
				return id.Content(src)
			}
		}
	}
	return ""
}

// parameterCount counts declared parameters, expanding grouped names
// (a, b int) and counting unnamed parameters once per declaration.
func parameterCount(params *sitter.Node, src []byte) int {
	if params == nil {
		return 0
	}
	count := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		decl := params.NamedChild(i)
		switch decl.Type() {
		case "parameter_declaration":
			names := 0
			for j := 0; j < int(decl.NamedChildCount()); j++ {
				if decl.NamedChild(j).Type() == "identifier" {
					names++
				}
			}
			if names == 0 {
				names = 1
			}
			count += names
		case "variadic_parameter_declaration":
			count++
		}
	}
	return count
}

// collectSyntaxErrors walks the tree and reports ERROR and missing
// nodes as diagnostics.
func collectSyntaxErrors(node *sitter.Node, relPath, module string, res *Result) {
	if node.IsError() || node.IsMissing() {
		res.Diagnostics = append(res.Diagnostics, RawDiagnostic{
			Severity: "error",
			Line:     int(node.StartPoint().Row),
			Column:   int(node.StartPoint().Column),
			Message:  prefixed(relPath, "syntax error"),
			Module:   module,
		})
		return
	}
	if !node.HasError() {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxErrors(node.Child(i), relPath, module, res)
	}
}

// sortedSymbols flattens a symbol set into the ordered list the
// metadata contract requires: by name, then arity.
func sortedSymbols(set map[Symbol]struct{}) []Symbol {
	out := make([]Symbol, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Arity < out[j].Arity
	})
	return out
}

// prefixed prepends a file path to a diagnostic message when present.
func prefixed(relPath, msg string) string {
	if relPath == "" {
		return msg
	}
	return relPath + ": " + msg
}
