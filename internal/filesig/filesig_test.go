package filesig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/sourceparse"
)

func parse(t *testing.T, src string) *sourceparse.AST {
	t.Helper()
	ast, errs := sourceparse.ParseSource([]byte(src), fkey.NewSource("a.js"), sourceparse.Options{})
	require.Empty(t, errs)
	t.Cleanup(ast.Close)
	return ast
}

func TestExtract_RequireSet(t *testing.T) {
	ast := parse(t, "const a = require('./a');\nconst b = require('./b');\nconst c = require('./a');\n")
	sig, errs := Extract(ast, Options{})
	assert.Empty(t, errs)
	assert.Equal(t, []string{"./a", "./b"}, sig.RequireSet)
}

func TestSortUniqueRequires(t *testing.T) {
	sig := FileSig{RequireSet: []string{"./b", "./a", "./b"}}
	assert.Equal(t, []string{"./a", "./b"}, SortUniqueRequires(sig))
}

func TestExtract_ImportSources(t *testing.T) {
	ast := parse(t, "import foo from './foo';\nimport {bar} from './bar';\n")
	sig, _ := Extract(ast, Options{})
	assert.Equal(t, []string{"./foo", "./bar"}, sig.ImportSources)
}

func TestExtract_ExportNames(t *testing.T) {
	ast := parse(t, "export function f() {}\nexport class C {}\nexport const x = 1;\n")
	sig, _ := Extract(ast, Options{})
	assert.Contains(t, sig.ExportNames, "f")
	assert.Contains(t, sig.ExportNames, "C")
	assert.Contains(t, sig.ExportNames, "x")
}

func TestExtract_NoEnumDeclaration(t *testing.T) {
	ast := parse(t, "const a = 1;\n")
	sig, _ := Extract(ast, Options{EnableEnums: true})
	assert.False(t, sig.HasEnumDeclaration)
}
