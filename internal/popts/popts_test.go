package popts

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/flowparse/internal/docblock"
)

func TestResolve_TypesModeCallerOverrideWins(t *testing.T) {
	global := GlobalOptions{AllTypesAllowed: false}
	allowed := TypesAllowed
	got := Resolve(global, Overrides{TypesMode: &allowed})
	assert.Equal(t, TypesAllowed, got.TypesMode)
}

func TestResolve_TypesModeFallsBackToGlobalAll(t *testing.T) {
	got := Resolve(GlobalOptions{AllTypesAllowed: true}, Overrides{})
	assert.Equal(t, TypesAllowed, got.TypesMode)
}

func TestResolve_TypesModeDefaultsForbidden(t *testing.T) {
	got := Resolve(GlobalOptions{AllTypesAllowed: false}, Overrides{})
	assert.Equal(t, TypesForbiddenByDefault, got.TypesMode)
}

func TestResolve_UseStrictCallerOverrideWins(t *testing.T) {
	useStrict := true
	got := Resolve(GlobalOptions{ModulesAreUseStrict: false}, Overrides{UseStrict: &useStrict})
	assert.True(t, got.UseStrict)
}

func TestResolve_UseStrictFallsBackToGlobal(t *testing.T) {
	got := Resolve(GlobalOptions{ModulesAreUseStrict: true}, Overrides{})
	assert.True(t, got.UseStrict)
}

func TestResolve_CopiesRemainingFieldsThrough(t *testing.T) {
	global := GlobalOptions{
		NodeMainFields: []string{"main", "module"},
		MaxLiteralLen:  64,
		EnableEnums:    true,
	}
	got := Resolve(global, Overrides{})
	require.Equal(t, []string{"main", "module"}, got.NodeMainFields)
	assert.Equal(t, 64, got.MaxLiteralLen)
	assert.True(t, got.EnableEnums)
}

func TestTypesChecked(t *testing.T) {
	optIn := docblock.OptIn
	optInStrict := docblock.OptInStrict
	optInStrictLocal := docblock.OptInStrictLocal
	optOut := docblock.OptOut

	tests := []struct {
		name string
		mode TypesMode
		db   docblock.Docblock
		want bool
	}{
		{"types allowed always checked, no annotation", TypesAllowed, docblock.Docblock{}, true},
		{"forbidden by default, no annotation", TypesForbiddenByDefault, docblock.Docblock{}, false},
		{"forbidden by default, opt-in", TypesForbiddenByDefault, docblock.Docblock{Flow: &optIn}, true},
		{"forbidden by default, opt-in-strict", TypesForbiddenByDefault, docblock.Docblock{Flow: &optInStrict}, true},
		{"forbidden by default, opt-in-strict-local", TypesForbiddenByDefault, docblock.Docblock{Flow: &optInStrictLocal}, true},
		{"forbidden by default, opt-out", TypesForbiddenByDefault, docblock.Docblock{Flow: &optOut}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypesChecked(tt.mode, tt.db))
		})
	}
}

func TestRelayModulePrefixFor_FirstMatchWins(t *testing.T) {
	opts := ParsingOptions{
		RelayIntegrationModulePrefix: "default/",
		RelayIntegrationModulePrefixIncludes: []RelayPrefixOverride{
			{Pattern: regexp.MustCompile(`^src/widgets/`), Prefix: "widgets/"},
			{Pattern: regexp.MustCompile(`^src/`), Prefix: "src/"},
		},
	}

	assert.Equal(t, "widgets/", opts.RelayModulePrefixFor("src/widgets/Foo.js"))
	assert.Equal(t, "src/", opts.RelayModulePrefixFor("src/other/Foo.js"))
	assert.Equal(t, "default/", opts.RelayModulePrefixFor("lib/Foo.js"))
}

func TestRelayDisabledFor(t *testing.T) {
	opts := ParsingOptions{
		EnableRelayIntegration:   true,
		RelayIntegrationExcludes: []*regexp.Regexp{regexp.MustCompile(`__generated__`)},
	}

	assert.False(t, opts.RelayDisabledFor("src/Foo.js"))
	assert.True(t, opts.RelayDisabledFor("src/__generated__/Foo.js"))

	opts.EnableRelayIntegration = false
	assert.True(t, opts.RelayDisabledFor("src/Foo.js"))
}
