// Package config loads the ambient, process-wide GlobalOptions every
// per-file ParsingOptions is resolved against (popts.Resolve), from a TOML
// configuration file.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/flowparse/internal/popts"
)

// rawRelayOverride is the TOML shape of one relay-prefix override entry:
// a path-matching pattern paired with the prefix to use for matches.
type rawRelayOverride struct {
	Pattern string `toml:"pattern"`
	Prefix  string `toml:"prefix"`
}

// raw is the on-disk TOML shape. Regex fields are plain strings here;
// convert compiles them and reports any that don't parse.
type raw struct {
	AllTypesAllowed     bool `toml:"all_types_allowed"`
	ModulesAreUseStrict bool `toml:"modules_are_use_strict"`

	MungeUnderscores             bool   `toml:"munge_underscores"`
	ModuleRefPrefix               string `toml:"module_ref_prefix"`
	ModuleRefPrefixLegacyInterop  string `toml:"module_ref_prefix_legacy_interop"`
	FacebookFBT                   bool   `toml:"facebook_fbt"`
	SuppressTypes                 []string `toml:"suppress_types"`
	MaxLiteralLen                  int    `toml:"max_literal_len"`
	ComponentSyntax                 bool   `toml:"component_syntax"`
	ExactByDefault                  bool   `toml:"exact_by_default"`

	EnableEnums                  bool               `toml:"enable_enums"`
	EnableRelayIntegration       bool               `toml:"enable_relay_integration"`
	RelayIntegrationExcludes     []string           `toml:"relay_integration_excludes"`
	RelayIntegrationModulePrefix string             `toml:"relay_integration_module_prefix"`
	RelayIntegrationModulePrefixIncludes []rawRelayOverride `toml:"relay_integration_module_prefix_includes"`

	NodeMainFields []string `toml:"node_main_fields"`

	Distributed bool `toml:"distributed"`

	EnableConditionalTypes bool `toml:"enable_conditional_types"`
	EnableMappedTypes      bool `toml:"enable_mapped_types"`
	TupleEnhancements      bool `toml:"tuple_enhancements"`
}

// defaultRaw is applied before unmarshalling, so an absent config file (or
// one that only sets a handful of fields) still resolves to a usable
// GlobalOptions.
func defaultRaw() raw {
	return raw{
		NodeMainFields:               []string{"main"},
		ModuleRefPrefix:              "",
		RelayIntegrationModulePrefix: "",
	}
}

// Load reads and parses the TOML configuration file at path into a
// popts.GlobalOptions, validating every field Validate checks. A missing
// file is not an error — it resolves to the built-in defaults.
func Load(path string) (popts.GlobalOptions, error) {
	r := defaultRaw()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return popts.GlobalOptions{}, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &r); err != nil {
			return popts.GlobalOptions{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	return r.convert()
}

func (r raw) convert() (popts.GlobalOptions, error) {
	excludes, err := compileAll(r.RelayIntegrationExcludes)
	if err != nil {
		return popts.GlobalOptions{}, fmt.Errorf("config: relay_integration_excludes: %w", err)
	}

	includes := make([]popts.RelayPrefixOverride, 0, len(r.RelayIntegrationModulePrefixIncludes))
	for _, o := range r.RelayIntegrationModulePrefixIncludes {
		pat, err := regexp.Compile(o.Pattern)
		if err != nil {
			return popts.GlobalOptions{}, fmt.Errorf("config: relay_integration_module_prefix_includes %q: %w", o.Pattern, err)
		}
		includes = append(includes, popts.RelayPrefixOverride{Pattern: pat, Prefix: o.Prefix})
	}

	suppress := make(map[string]struct{}, len(r.SuppressTypes))
	for _, s := range r.SuppressTypes {
		suppress[s] = struct{}{}
	}

	nodeMainFields := r.NodeMainFields
	if len(nodeMainFields) == 0 {
		nodeMainFields = []string{"main"}
	}

	opts := popts.GlobalOptions{
		AllTypesAllowed:                      r.AllTypesAllowed,
		ModulesAreUseStrict:                  r.ModulesAreUseStrict,
		MungeUnderscores:                     r.MungeUnderscores,
		ModuleRefPrefix:                      r.ModuleRefPrefix,
		ModuleRefPrefixLegacyInterop:         r.ModuleRefPrefixLegacyInterop,
		FacebookFBT:                          r.FacebookFBT,
		SuppressTypes:                        suppress,
		MaxLiteralLen:                        r.MaxLiteralLen,
		ComponentSyntax:                      r.ComponentSyntax,
		ExactByDefault:                       r.ExactByDefault,
		EnableEnums:                          r.EnableEnums,
		EnableRelayIntegration:               r.EnableRelayIntegration,
		RelayIntegrationExcludes:             excludes,
		RelayIntegrationModulePrefix:         r.RelayIntegrationModulePrefix,
		RelayIntegrationModulePrefixIncludes: includes,
		NodeMainFields:                       nodeMainFields,
		Distributed:                          r.Distributed,
		EnableConditionalTypes:               r.EnableConditionalTypes,
		EnableMappedTypes:                    r.EnableMappedTypes,
		TupleEnhancements:                    r.TupleEnhancements,
	}

	if err := Validate(opts); err != nil {
		return popts.GlobalOptions{}, err
	}
	return opts, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Validate applies the same "reject nonsensical values, leave the rest
// alone" posture the teacher's config validator uses: a handful of
// numeric/collection fields get a sanity check, everything else passes
// through untouched.
func Validate(opts popts.GlobalOptions) error {
	if opts.MaxLiteralLen < 0 {
		return fmt.Errorf("config: max_literal_len must be non-negative, got %d", opts.MaxLiteralLen)
	}
	if len(opts.NodeMainFields) == 0 {
		return fmt.Errorf("config: node_main_fields must not be empty")
	}
	return nil
}
