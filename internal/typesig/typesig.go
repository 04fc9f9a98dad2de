// Package typesig implements the type-signature packer collaborator of
// §4.3 step 9: it distills a file's function, class, type alias and
// interface declarations into a compact TypeSig, separately from the full
// AST, so
// downstream inference never has to re-walk the tree for signature-only
// questions.
package typesig

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/sourceparse"
)

// ErrorKind distinguishes the two sig_error variants of §4.3 step 9: only
// SigError is tolerable and surfaces to the caller; CheckError is dropped
// entirely (it belongs to the out-of-scope inference phase).
type ErrorKind uint8

const (
	SigError ErrorKind = iota
	CheckError
)

// SigErr is one packing error, carrying an index into the Locs table
// returned alongside it rather than an inline position — matching the
// pipeline's contract of mapping sig_error locations through `locs`
// (§4.3 step 9).
type SigErr struct {
	Kind    ErrorKind
	LocIdx  int
	Message string
}

// Loc is a source location referenced by index from a SigErr.
type Loc struct {
	Line   int
	Column int
}

// TypeKind classifies one packed export/type binding.
type TypeKind uint8

const (
	KindFunction TypeKind = iota
	KindClass
	KindTypeAlias
	KindInterface
	KindOpaqueType
	KindValue
)

// Binding is one named, typed entity a module exposes.
type Binding struct {
	Name      string
	Kind      TypeKind
	Signature string // rendered type text, e.g. "(x: number) => number"
}

// TypeSig is the packed signature of a module: one binding per function,
// class, type alias or interface declaration found anywhere in the file,
// exported or not (callers intersect it with the file's export names).
type TypeSig struct {
	Bindings []Binding
}

var declQuery = mustCompileQuery(`
[
  (function_declaration name: (identifier) @name) @decl
  (class_declaration name: (identifier) @name) @decl
  (type_alias_declaration name: (type_identifier) @name) @decl
  (interface_declaration name: (type_identifier) @name) @decl
]
`)

func mustCompileQuery(src string) *queryTemplate { return &queryTemplate{src: src} }

type queryTemplate struct{ src string }

func (t *queryTemplate) compile(lang *tree_sitter.Language) (*tree_sitter.Query, error) {
	return tree_sitter.NewQuery(lang, t.src)
}

// Pack runs the type-signature packer (§4.3 step 9) over ast, gated by
// whether the caller's docblock was strict; opts does not affect packing.
// In strict files every function declaration (exported or not) with no
// type annotation anywhere in it gets a SigError; non-strict files only
// record bindings, never erroring on missing types (mirroring Flow's
// weak-mode leniency).
func Pack(ast *sourceparse.AST, isStrict bool, opts popts.ParsingOptions) ([]SigErr, []Loc, TypeSig) {
	var sig TypeSig
	var errs []SigErr
	var locs []Loc

	root := ast.Tree().RootNode()
	lang := ast.Language()
	source := ast.Source()

	q, err := declQuery.compile(lang)
	if err != nil {
		return errs, locs, sig
	}
	defer q.Close()

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	names := q.CaptureNames()
	matches := qc.Matches(q, root, source)

	for {
		match := matches.Next()
		if match == nil {
			break
		}
		var declNode, nameNode *tree_sitter.Node
		for i, c := range match.Captures {
			switch names[c.Index] {
			case "decl":
				n := c.Node
				declNode = &n
			case "name":
				n := c.Node
				nameNode = &n
			}
		}
		if declNode == nil || nameNode == nil {
			continue
		}
		name := string(source[nameNode.StartByte():nameNode.EndByte()])
		kind := kindOf(declNode.Kind())
		binding := Binding{
			Name:      name,
			Kind:      kind,
			Signature: string(source[declNode.StartByte():declNode.EndByte()]),
		}

		if isStrict && kind == KindFunction && !hasTypeAnnotations(*declNode, source) {
			pos := nameNode.StartPosition()
			locs = append(locs, Loc{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1})
			errs = append(errs, SigErr{
				Kind:    SigError,
				LocIdx:  len(locs) - 1,
				Message: "function " + name + " is missing a type annotation under strict mode",
			})
		}

		sig.Bindings = append(sig.Bindings, binding)
	}

	return errs, locs, sig
}

func kindOf(nodeKind string) TypeKind {
	switch nodeKind {
	case "function_declaration":
		return KindFunction
	case "class_declaration":
		return KindClass
	case "type_alias_declaration":
		return KindTypeAlias
	case "interface_declaration":
		return KindInterface
	default:
		return KindValue
	}
}

// hasTypeAnnotations reports whether a function declaration's parameters or
// return position carry an explicit type_annotation node.
func hasTypeAnnotations(fn tree_sitter.Node, source []byte) bool {
	found := false
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil || found {
			return
		}
		if n.Kind() == "type_annotation" {
			found = true
			return
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(&fn)
	return found
}
