package pipeline

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/flowparse/internal/sourceparse"
)

// extractGlobals is the scope/SSA pass of §4.3 step 8: the set of names a
// module binds at its top level, which later phases (out of scope here)
// resolve free variable references against. enableEnums additionally pulls
// in Flow enum declarations, which bind a runtime value alongside their
// type.
func extractGlobals(ast *sourceparse.AST, enableEnums bool) []string {
	root := ast.Tree().RootNode()
	source := ast.Source()

	seen := map[string]bool{}
	var globals []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			globals = append(globals, name)
		}
	}

	count := root.ChildCount()
	for i := uint(0); i < count; i++ {
		child := root.Child(i)
		collectTopLevelBindings(child, source, enableEnums, add)
	}
	return globals
}

// collectTopLevelBindings inspects one direct child of the program node,
// unwrapping a leading `export` so `export function f() {}` still
// contributes `f` to the global set.
func collectTopLevelBindings(node *tree_sitter.Node, source []byte, enableEnums bool, add func(string)) {
	if node == nil {
		return
	}
	if node.Kind() == "export_statement" {
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			collectTopLevelBindings(decl, source, enableEnums, add)
		}
		return
	}

	switch node.Kind() {
	case "function_declaration", "class_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			add(string(source[name.StartByte():name.EndByte()]))
		}
	case "enum_declaration":
		if enableEnums {
			if name := node.ChildByFieldName("name"); name != nil {
				add(string(source[name.StartByte():name.EndByte()]))
			}
		}
	case "lexical_declaration", "variable_declaration":
		for i := uint(0); i < node.ChildCount(); i++ {
			decl := node.Child(i)
			if decl == nil || decl.Kind() != "variable_declarator" {
				continue
			}
			if name := decl.ChildByFieldName("name"); name != nil && name.Kind() == "identifier" {
				add(string(source[name.StartByte():name.EndByte()]))
			}
		}
	}
}
