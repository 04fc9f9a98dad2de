package typesig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/popts"
	"github.com/standardbeagle/flowparse/internal/sourceparse"
)

func parse(t *testing.T, src string) *sourceparse.AST {
	t.Helper()
	ast, errs := sourceparse.ParseSource([]byte(src), fkey.NewSource("a.ts"), sourceparse.Options{Types: true})
	require.Empty(t, errs)
	t.Cleanup(ast.Close)
	return ast
}

func TestPack_CollectsFunctionAndClassBindings(t *testing.T) {
	ast := parse(t, "function f(x: number): number { return x; }\nclass C {}\n")
	errs, locs, sig := Pack(ast, false, popts.ParsingOptions{})
	assert.Empty(t, errs)
	assert.Empty(t, locs)
	names := map[string]TypeKind{}
	for _, b := range sig.Bindings {
		names[b.Name] = b.Kind
	}
	assert.Equal(t, KindFunction, names["f"])
	assert.Equal(t, KindClass, names["C"])
}

func TestPack_StrictModeFlagsUntypedFunction(t *testing.T) {
	ast := parse(t, "function f(x) { return x; }\n")
	errs, locs, _ := Pack(ast, true, popts.ParsingOptions{})
	require.Len(t, errs, 1)
	assert.Equal(t, SigError, errs[0].Kind)
	require.Len(t, locs, 1)
}

func TestPack_NonStrictDoesNotFlagUntypedFunction(t *testing.T) {
	ast := parse(t, "function f(x) { return x; }\n")
	errs, _, _ := Pack(ast, false, popts.ParsingOptions{})
	assert.Empty(t, errs)
}
