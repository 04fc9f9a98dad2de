package sourceparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/fkey"
)

func TestParseSource_ValidJS(t *testing.T) {
	src := []byte("const a = require('./a');\nmodule.exports = a;\n")
	ast, errs := ParseSource(src, fkey.NewSource("a.js"), Options{})
	require.NotNil(t, ast)
	defer ast.Close()
	assert.Empty(t, errs)
	assert.Equal(t, src, ast.Source())
	assert.NotNil(t, ast.Tree().RootNode())
}

func TestParseSource_TypesRequireTypescriptGrammar(t *testing.T) {
	src := []byte("function f(x: number): number { return x; }\n")
	ast, errs := ParseSource(src, fkey.NewSource("a.js"), Options{Types: true})
	require.NotNil(t, ast)
	defer ast.Close()
	assert.Empty(t, errs)
}

func TestParseSource_RecoverableSyntaxErrorDoesNotPanic(t *testing.T) {
	src := []byte("const a = ;\n")
	ast, errs := ParseSource(src, fkey.NewSource("a.js"), Options{})
	require.NotNil(t, ast)
	defer ast.Close()
	assert.NotEmpty(t, errs)
}

func TestParseSource_TSExtensionForcesTypescriptGrammarEvenWithoutOption(t *testing.T) {
	src := []byte("let x: string = 'hi';\n")
	ast, errs := ParseSource(src, fkey.NewSource("a.ts"), Options{})
	require.NotNil(t, ast)
	defer ast.Close()
	assert.Empty(t, errs)
}
