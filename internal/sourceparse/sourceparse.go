// Package sourceparse implements the Source Parser collaborator described in
// §6.1: it turns raw file bytes into a concrete syntax tree, never throwing
// for recoverable syntax errors. Those are instead collected and returned
// alongside the tree so the per-file pipeline can decide what to do with
// them.
package sourceparse

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/standardbeagle/flowparse/internal/fkey"
)

// Options mirrors the grammar-affecting subset of ParsingOptions that the
// Source Parser itself needs (§6.1's option list): everything else is the
// concern of later pipeline steps.
type Options struct {
	Components                  bool
	Enums                        bool
	EsproposalDecorators         bool
	Types                        bool
	UseStrict                    bool
	ModuleRefPrefix              string
	ModuleRefPrefixLegacyInterop string
}

// ParseError is a single recoverable syntax error found while parsing. It
// never aborts parsing: the AST returned alongside it covers as much of the
// file as the grammar could recover.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// AST wraps the tree-sitter concrete syntax tree for a single file. Callers
// must call Close when done with it; tree-sitter trees are backed by
// manually managed memory.
type AST struct {
	tree   *tree_sitter.Tree
	source []byte
	lang   *tree_sitter.Language
}

// Tree exposes the underlying tree-sitter tree for collaborators (file
// signature extraction, type signature packing) that need to walk it.
func (a *AST) Tree() *tree_sitter.Tree { return a.tree }

// Source returns the exact bytes the tree was parsed from, needed to resolve
// node text via byte offsets.
func (a *AST) Source() []byte { return a.source }

// Language returns the grammar the tree was parsed with, needed by
// collaborators that compile their own tree-sitter queries against it.
func (a *AST) Language() *tree_sitter.Language { return a.lang }

// Close releases the tree-sitter tree. Safe to call on a nil receiver.
func (a *AST) Close() {
	if a == nil || a.tree == nil {
		return
	}
	a.tree.Close()
}

const maxCollectedErrors = 200

// ParseSource is the Source Parser's single operation (§6.1):
// parse_source(content, file, opts) -> (ast, parse_errors[]). The grammar is
// selected from file's extension and opts.Types: with Types set, or for a
// .ts/.tsx path, the file parses as TSX, otherwise as JavaScript (JSX is
// always enabled, matching this dialect's convention of treating .js as
// possibly containing JSX).
func ParseSource(content []byte, file fkey.FileKey, opts Options) (*AST, []ParseError) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	lang := languageFor(file, opts)
	if err := parser.SetLanguage(lang); err != nil {
		return nil, []ParseError{{Line: 1, Column: 1, Message: "unsupported grammar: " + err.Error()}}
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, []ParseError{{Line: 1, Column: 1, Message: "parser produced no tree"}}
	}

	ast := &AST{tree: tree, source: content, lang: lang}
	errs := collectSyntaxErrors(tree.RootNode())
	return ast, errs
}

// languageFor picks the tree-sitter grammar for file. Flow's type syntax is
// close enough to TypeScript's that the typescript grammar (in its TSX
// form, so JSX still parses) handles it; untyped files use the plain
// JavaScript grammar so they pay no TypeScript-specific parsing cost.
func languageFor(file fkey.FileKey, opts Options) *tree_sitter.Language {
	if opts.Types || fkey.HasExt(file.Path(), "ts", "tsx") {
		return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	}
	return tree_sitter.NewLanguage(tree_sitter_javascript.Language())
}

// collectSyntaxErrors walks the tree depth-first looking for ERROR and
// MISSING nodes, each of which becomes one recoverable ParseError. The walk
// stops early once maxCollectedErrors have been found: a file with
// thousands of cascading errors gains nothing from an exhaustive list, and
// an unbounded walk is a resource-exhaustion risk on adversarial input.
func collectSyntaxErrors(root *tree_sitter.Node) []ParseError {
	if root == nil {
		return nil
	}
	if !root.HasError() {
		return nil
	}

	var errs []ParseError
	var walk func(node *tree_sitter.Node)
	walk = func(node *tree_sitter.Node) {
		if node == nil || len(errs) >= maxCollectedErrors {
			return
		}
		if node.IsMissing() {
			pos := node.StartPosition()
			errs = append(errs, ParseError{
				Line:    int(pos.Row) + 1,
				Column:  int(pos.Column) + 1,
				Message: fmt.Sprintf("missing %s", node.Kind()),
			})
			return
		}
		if node.IsError() {
			pos := node.StartPosition()
			errs = append(errs, ParseError{
				Line:    int(pos.Row) + 1,
				Column:  int(pos.Column) + 1,
				Message: "unexpected token",
			})
			return
		}
		count := node.ChildCount()
		for i := uint(0); i < count && len(errs) < maxCollectedErrors; i++ {
			walk(node.Child(i))
		}
	}
	walk(root)
	return errs
}
