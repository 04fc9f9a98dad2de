// Package filesig implements the file-signature extractor collaborator
// referenced by §4.3 step 5: it walks a parsed AST for the module-level
// facts the rest of the checker needs before type inference ever runs —
// the require/import set, enum declarations, and relay-style module
// references.
package filesig

import (
	"sort"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/flowparse/internal/sourceparse"
)

// Options parameterizes extraction per §4.3 step 5: enum support, and the
// relay module-reference integration (disabled per-file via a regex
// exclude list, with its prefix chosen by a path-matched override; both
// are resolved by the caller through popts.ParsingOptions before calling
// Extract).
type Options struct {
	EnableEnums            bool
	EnableRelayIntegration bool
	RelayModulePrefix      string
}

// TolerableError is an error that degrades gracefully (the caller maps it
// into ParseOutcome.tolerable_errors) — file signature extraction never
// produces a hard failure, only tolerable ones, matching §4.3's
// "tolerable_errors[]" result shape.
type TolerableError struct {
	Line    int
	Column  int
	Message string
}

// FileSig is the derived module-level signature of one source file.
type FileSig struct {
	// RequireSet holds every string literal argument to a CommonJS
	// require(...) call found anywhere in the file, deduplicated and in
	// first-seen order (sorting for §4.3 step 6 is the caller's job, via
	// SortUniqueRequires).
	RequireSet []string

	// ImportSources holds the module specifier of every ES `import`
	// declaration.
	ImportSources []string

	// ExportNames holds every top-level `export`-bound identifier this
	// file declares (named exports only; default exports are recorded
	// as the sentinel "default").
	ExportNames []string

	// RelayModuleRefs holds one entry per graphql`...` tagged template (or
	// graphql(...) call) in the file, each entry being RelayModulePrefix,
	// when relay integration is enabled for this file. The template text
	// itself is not recorded.
	RelayModuleRefs []string

	// HasEnumDeclaration is set when EnableEnums is on and the file
	// contains at least one Flow `enum` declaration.
	HasEnumDeclaration bool
}

var requireQuery = mustCompileQuery(`
(call_expression
  function: (identifier) @fn
  arguments: (arguments (string (string_fragment) @arg))
) @call
`)

var importQuery = mustCompileQuery(`
(import_statement source: (string (string_fragment) @src))
`)

var exportNamedQuery = mustCompileQuery(`
(export_statement
  declaration: [
    (function_declaration name: (identifier) @name)
    (class_declaration name: (identifier) @name)
    (lexical_declaration (variable_declarator name: (identifier) @name))
  ]
)
`)

var exportDefaultQuery = mustCompileQuery(`
(export_statement "default")
`)

func mustCompileQuery(src string) *queryTemplate {
	return &queryTemplate{src: src}
}

// queryTemplate defers tree-sitter query compilation until a language is
// known, since a *tree_sitter.Query is bound to one grammar and this
// package serves both the JavaScript and TypeScript grammars.
type queryTemplate struct {
	src string
}

func (t *queryTemplate) compile(lang *tree_sitter.Language) (*tree_sitter.Query, error) {
	return tree_sitter.NewQuery(lang, t.src)
}

// Extract derives a FileSig from a parsed AST. It is best-effort: a
// malformed or unexpected node shape degrades to a TolerableError rather
// than aborting, matching the no-hard-failure contract of §4.3 step 5.
func Extract(ast *sourceparse.AST, opts Options) (FileSig, []TolerableError) {
	var sig FileSig
	var errs []TolerableError

	root := ast.Tree().RootNode()
	lang := ast.Language()
	source := ast.Source()

	seenRequire := map[string]bool{}
	if q, err := requireQuery.compile(lang); err == nil {
		defer q.Close()
		runQuery(q, root, source, func(m queryMatch) {
			if m.text("fn") != "require" {
				return
			}
			arg := m.text("arg")
			if arg == "" || seenRequire[arg] {
				return
			}
			seenRequire[arg] = true
			sig.RequireSet = append(sig.RequireSet, arg)
		})
	} else {
		errs = append(errs, TolerableError{Message: "require query unsupported for this grammar: " + err.Error()})
	}

	if q, err := importQuery.compile(lang); err == nil {
		defer q.Close()
		runQuery(q, root, source, func(m queryMatch) {
			if src := m.text("src"); src != "" {
				sig.ImportSources = append(sig.ImportSources, src)
			}
		})
	}

	if q, err := exportNamedQuery.compile(lang); err == nil {
		defer q.Close()
		runQuery(q, root, source, func(m queryMatch) {
			if name := m.text("name"); name != "" {
				sig.ExportNames = append(sig.ExportNames, name)
			}
		})
	}

	if q, err := exportDefaultQuery.compile(lang); err == nil {
		defer q.Close()
		hasDefault := false
		runQuery(q, root, source, func(m queryMatch) { hasDefault = true })
		if hasDefault {
			sig.ExportNames = append(sig.ExportNames, "default")
		}
	}

	if opts.EnableEnums {
		sig.HasEnumDeclaration = hasEnumDeclaration(root)
	}

	if opts.EnableRelayIntegration {
		sig.RelayModuleRefs = extractRelayRefs(root, source, opts.RelayModulePrefix)
	}

	return sig, errs
}

// SortUniqueRequires implements §4.3 step 6: requires := sort(unique(...)).
func SortUniqueRequires(sig FileSig) []string {
	seen := make(map[string]bool, len(sig.RequireSet))
	out := make([]string, 0, len(sig.RequireSet))
	for _, r := range sig.RequireSet {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

type queryMatch struct {
	names    []string
	captures []tree_sitter.QueryCapture
	source   []byte
}

func (m queryMatch) text(captureName string) string {
	for i, c := range m.captures {
		if m.names[i] == captureName {
			return string(m.source[c.Node.StartByte():c.Node.EndByte()])
		}
	}
	return ""
}

func runQuery(q *tree_sitter.Query, root *tree_sitter.Node, source []byte, fn func(queryMatch)) {
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	names := q.CaptureNames()
	matches := qc.Matches(q, root, source)
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		matchNames := make([]string, len(match.Captures))
		for i, c := range match.Captures {
			matchNames[i] = names[c.Index]
		}
		fn(queryMatch{names: matchNames, captures: match.Captures, source: source})
	}
}

func hasEnumDeclaration(root *tree_sitter.Node) bool {
	found := false
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil || found {
			return
		}
		if n.Kind() == "enum_declaration" {
			found = true
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return found
}

func extractRelayRefs(root *tree_sitter.Node, source []byte, prefix string) []string {
	var refs []string
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if n.Kind() == "call_expression" {
			fn := n.ChildByFieldName("function")
			if fn != nil && string(source[fn.StartByte():fn.EndByte()]) == "graphql" {
				refs = append(refs, prefix)
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return refs
}
