package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/docblock"
	"github.com/standardbeagle/flowparse/internal/fkey"
	"github.com/standardbeagle/flowparse/internal/popts"
)

func TestRun_ResourceFileSkips(t *testing.T) {
	out := Run(context.Background(), fkey.NewResource("logo.png"), nil, Inputs{})
	assert.Equal(t, OutcomeSkip, out.Kind)
	assert.Equal(t, SkipResource, out.SkipKind)
}

func TestRun_NonPackageJSONSkipsAsResource(t *testing.T) {
	out := Run(context.Background(), fkey.NewJSON("tsconfig.json"), []byte("{}"), Inputs{})
	assert.Equal(t, OutcomeSkip, out.Kind)
	assert.Equal(t, SkipResource, out.SkipKind)
}

func TestRun_PackageJSONOk(t *testing.T) {
	content := []byte(`{"name":"demo","main":"./index.js"}`)
	out := Run(context.Background(), fkey.NewJSON("package.json"), content, Inputs{
		Options: popts.ParsingOptions{NodeMainFields: []string{"main"}},
	})
	require.Equal(t, OutcomeSkip, out.Kind)
	require.Equal(t, SkipPackage, out.SkipKind)
	require.NotNil(t, out.Package.Info)
	assert.Nil(t, out.Package.Err)
	assert.Equal(t, "demo", out.Package.Info.Name)
	assert.Equal(t, "./index.js", out.Package.Info.MainEntries["main"])
}

func TestRun_PackageJSONMalformed(t *testing.T) {
	out := Run(context.Background(), fkey.NewJSON("package.json"), []byte("{"), Inputs{})
	require.Equal(t, OutcomeSkip, out.Kind)
	require.Equal(t, SkipPackage, out.SkipKind)
	assert.Nil(t, out.Package.Info)
	assert.NotNil(t, out.Package.Err)
}

func TestRun_NonFlowSkipsUnderForbiddenDefault(t *testing.T) {
	out := Run(context.Background(), fkey.NewSource("a.js"), []byte("export const x = 1;\n"), Inputs{
		Options: popts.ParsingOptions{TypesMode: popts.TypesForbiddenByDefault},
	})
	assert.Equal(t, OutcomeSkip, out.Kind)
	assert.Equal(t, SkipNonFlow, out.SkipKind)
}

func TestRun_OkForFlowAnnotatedFile(t *testing.T) {
	ann := docblock.OptIn
	out := Run(context.Background(), fkey.NewSource("a.js"),
		[]byte("// @flow\nconst a = require('./a');\nexport function f(x: number): number { return x; }\n"),
		Inputs{
			Options:  popts.ParsingOptions{TypesMode: popts.TypesForbiddenByDefault},
			Docblock: docblock.Docblock{Flow: &ann},
		})
	require.Equal(t, OutcomeOk, out.Kind)
	require.NotNil(t, out.Ok)
	assert.Equal(t, []string{"./a"}, out.Ok.Requires)
	assert.Contains(t, out.Ok.Exports, "f")
	out.Ok.AST.Close()
}

func TestRun_RecoveredOnSyntaxError(t *testing.T) {
	ann := docblock.OptIn
	out := Run(context.Background(), fkey.NewSource("a.js"),
		[]byte("// @flow\nconst a = ;\n"),
		Inputs{
			Options:  popts.ParsingOptions{TypesMode: popts.TypesForbiddenByDefault},
			Docblock: docblock.Docblock{Flow: &ann},
		})
	require.Equal(t, OutcomeRecovered, out.Kind)
	assert.NotEmpty(t, out.Recovered.ParseErrors)
	out.Recovered.AST.Close()
}
