// Package popts implements C2, the Parse-Options Resolver: a pure function
// from global options plus per-call overrides to an immutable ParsingOptions
// bundle, plus the types_checked predicate that gates the pipeline.
package popts

import (
	"regexp"

	"github.com/standardbeagle/flowparse/internal/docblock"
)

// TypesMode is the closed set of type-checking postures a file can be
// resolved into.
type TypesMode uint8

const (
	// TypesForbiddenByDefault requires an explicit opt-in docblock
	// annotation before type syntax is checked.
	TypesForbiddenByDefault TypesMode = iota
	// TypesAllowed checks type syntax in every file regardless of
	// docblock annotation.
	TypesAllowed
)

func (m TypesMode) String() string {
	if m == TypesAllowed {
		return "types-allowed"
	}
	return "types-forbidden-by-default"
}

// ParsingOptions is the immutable, per-call configuration bundle threaded
// through the per-file pipeline (§6.4 enumerates every field).
type ParsingOptions struct {
	TypesMode      TypesMode
	UseStrict      bool
	MungeUnderscores bool

	ModuleRefPrefix             string
	ModuleRefPrefixLegacyInterop string

	FacebookFBT   bool
	SuppressTypes map[string]struct{}
	MaxLiteralLen int

	ComponentSyntax bool
	ExactByDefault  bool

	EnableEnums              bool
	EnableRelayIntegration   bool
	RelayIntegrationExcludes []*regexp.Regexp
	RelayIntegrationModulePrefix         string
	RelayIntegrationModulePrefixIncludes []RelayPrefixOverride

	NodeMainFields []string

	Distributed bool

	EnableConditionalTypes bool
	EnableMappedTypes      bool
	TupleEnhancements      bool
}

// RelayPrefixOverride pairs a path-matching regex with the module prefix to
// use for files it matches; the first match in declaration order wins
// (§4.3 step 5).
type RelayPrefixOverride struct {
	Pattern *regexp.Regexp
	Prefix  string
}

// GlobalOptions is the process-wide configuration every per-file
// ParsingOptions is resolved against.
type GlobalOptions struct {
	AllTypesAllowed       bool // global "all" flag (§4.2 types_mode fallback)
	ModulesAreUseStrict   bool // global fallback for use_strict

	MungeUnderscores bool
	ModuleRefPrefix              string
	ModuleRefPrefixLegacyInterop string
	FacebookFBT                  bool
	SuppressTypes                map[string]struct{}
	MaxLiteralLen                int
	ComponentSyntax              bool
	ExactByDefault               bool
	EnableEnums                  bool
	EnableRelayIntegration       bool
	RelayIntegrationExcludes     []*regexp.Regexp
	RelayIntegrationModulePrefix         string
	RelayIntegrationModulePrefixIncludes []RelayPrefixOverride
	NodeMainFields               []string
	Distributed                  bool
	EnableConditionalTypes       bool
	EnableMappedTypes            bool
	TupleEnhancements            bool
}

// Overrides carries the two caller-suppliable per-call overrides (§4.2):
// types_mode and use_strict. A nil pointer means "use the global fallback."
type Overrides struct {
	TypesMode *TypesMode
	UseStrict *bool
}

// Resolve is C2: a pure function from global options + overrides to a
// ParsingOptions bundle. Only types_mode and use_strict have
// caller-override-wins-else-fallback semantics; every other field is a
// straight copy-through from global options (§4.2).
func Resolve(global GlobalOptions, overrides Overrides) ParsingOptions {
	typesMode := TypesForbiddenByDefault
	switch {
	case overrides.TypesMode != nil:
		typesMode = *overrides.TypesMode
	case global.AllTypesAllowed:
		typesMode = TypesAllowed
	}

	useStrict := global.ModulesAreUseStrict
	if overrides.UseStrict != nil {
		useStrict = *overrides.UseStrict
	}

	return ParsingOptions{
		TypesMode:                    typesMode,
		UseStrict:                    useStrict,
		MungeUnderscores:             global.MungeUnderscores,
		ModuleRefPrefix:              global.ModuleRefPrefix,
		ModuleRefPrefixLegacyInterop: global.ModuleRefPrefixLegacyInterop,
		FacebookFBT:                  global.FacebookFBT,
		SuppressTypes:                global.SuppressTypes,
		MaxLiteralLen:                global.MaxLiteralLen,
		ComponentSyntax:              global.ComponentSyntax,
		ExactByDefault:               global.ExactByDefault,
		EnableEnums:                  global.EnableEnums,
		EnableRelayIntegration:       global.EnableRelayIntegration,
		RelayIntegrationExcludes:     global.RelayIntegrationExcludes,
		RelayIntegrationModulePrefix:         global.RelayIntegrationModulePrefix,
		RelayIntegrationModulePrefixIncludes: global.RelayIntegrationModulePrefixIncludes,
		NodeMainFields:               global.NodeMainFields,
		Distributed:                  global.Distributed,
		EnableConditionalTypes:       global.EnableConditionalTypes,
		EnableMappedTypes:            global.EnableMappedTypes,
		TupleEnhancements:            global.TupleEnhancements,
	}
}

// TypesChecked is the secondary predicate of §4.2: whether a file's type
// syntax should be checked, given the resolved mode and its docblock.
func TypesChecked(mode TypesMode, db docblock.Docblock) bool {
	if mode == TypesAllowed {
		return true
	}
	if db.Flow == nil {
		return false
	}
	switch *db.Flow {
	case docblock.OptIn, docblock.OptInStrict, docblock.OptInStrictLocal:
		return true
	default:
		return false
	}
}

// RelayModulePrefixFor resolves the relay integration module prefix for a
// given path, per §4.3 step 5: the default prefix, overridden by the first
// matching entry in RelayIntegrationModulePrefixIncludes in declaration
// order.
func (p ParsingOptions) RelayModulePrefixFor(path string) string {
	for _, o := range p.RelayIntegrationModulePrefixIncludes {
		if o.Pattern != nil && o.Pattern.MatchString(path) {
			return o.Prefix
		}
	}
	return p.RelayIntegrationModulePrefix
}

// RelayDisabledFor reports whether relay integration is disabled for path,
// either globally or because path matches one of RelayIntegrationExcludes
// (§4.3 step 5).
func (p ParsingOptions) RelayDisabledFor(path string) bool {
	if !p.EnableRelayIntegration {
		return true
	}
	for _, re := range p.RelayIntegrationExcludes {
		if re != nil && re.MatchString(path) {
			return true
		}
	}
	return false
}
